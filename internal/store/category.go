package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("store: not found")

// PutCategory inserts or replaces a category.
func (db *DB) PutCategory(ctx context.Context, c Category) error {
	query := `
	INSERT INTO categories (id, name, is_default, archived, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		name = excluded.name,
		is_default = excluded.is_default,
		archived = excluded.archived,
		updated_at = excluded.updated_at
	`

	_, err := db.conn.ExecContext(ctx, query,
		c.ID, c.Name, boolToInt(c.IsDefault), boolToInt(c.Archived),
		formatTime(c.CreatedAt), formatTime(c.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert category: %w", err)
	}

	db.emit(changeEvent{TableCategories, c.ID, ChangeUpsert, c.UpdatedAt})
	return nil
}

// GetCategory returns the category with the given id.
func (db *DB) GetCategory(ctx context.Context, id string) (Category, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT id, name, is_default, archived, created_at, updated_at
		 FROM categories WHERE id = ?`, id)
	return scanCategory(row)
}

// ListCategories returns all categories ordered by name.
func (db *DB) ListCategories(ctx context.Context) ([]Category, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, name, is_default, archived, created_at, updated_at
		 FROM categories ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	defer rows.Close()

	var categories []Category
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, err
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

// DeleteCategory removes a category. Items keep their category_id; callers
// enforce the business rule that populated categories are archived instead.
func (db *DB) DeleteCategory(ctx context.Context, id string) error {
	res, err := db.conn.ExecContext(ctx, `DELETE FROM categories WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete category: %w", err)
	}

	if n, _ := res.RowsAffected(); n > 0 {
		db.emit(changeEvent{TableCategories, id, ChangeDelete, time.Now().UTC()})
	}
	return nil
}

// EnsureDefaultCategories creates any missing default categories, matching
// by name so a category renamed or pulled from another device is not
// duplicated. Called on first open and after every pull.
func (db *DB) EnsureDefaultCategories(ctx context.Context) error {
	existing, err := db.ListCategories(ctx)
	if err != nil {
		return err
	}

	seen := make(map[string]bool, len(existing))
	for _, c := range existing {
		seen[c.Name] = true
	}

	now := time.Now().UTC()
	for _, name := range DefaultCategories {
		if seen[name] {
			continue
		}
		c := Category{
			ID:        uuid.NewString(),
			Name:      name,
			IsDefault: true,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := db.PutCategory(ctx, c); err != nil {
			return err
		}
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCategory(row rowScanner) (Category, error) {
	var c Category
	var isDefault, archived int
	var createdAt, updatedAt string

	err := row.Scan(&c.ID, &c.Name, &isDefault, &archived, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Category{}, ErrNotFound
	}
	if err != nil {
		return Category{}, fmt.Errorf("failed to scan category: %w", err)
	}

	c.IsDefault = isDefault != 0
	c.Archived = archived != 0
	c.CreatedAt = parseTime(createdAt)
	c.UpdatedAt = parseTime(updatedAt)
	return c, nil
}
