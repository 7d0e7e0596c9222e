package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// PutOutfit inserts or replaces an outfit.
func (db *DB) PutOutfit(ctx context.Context, o Outfit) error {
	query := `
	INSERT INTO outfits (id, name, item_ids, occasion, notes, is_favorite, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		name = excluded.name,
		item_ids = excluded.item_ids,
		occasion = excluded.occasion,
		notes = excluded.notes,
		is_favorite = excluded.is_favorite,
		updated_at = excluded.updated_at
	`

	_, err := db.conn.ExecContext(ctx, query,
		o.ID, o.Name, marshalStrings(o.ItemIDs), o.Occasion, o.Notes,
		boolToInt(o.IsFavorite), formatTime(o.CreatedAt), formatTime(o.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert outfit: %w", err)
	}

	db.emit(changeEvent{TableOutfits, o.ID, ChangeUpsert, o.UpdatedAt})
	return nil
}

// GetOutfit returns the outfit with the given id.
func (db *DB) GetOutfit(ctx context.Context, id string) (Outfit, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT id, name, item_ids, occasion, notes, is_favorite, created_at, updated_at
		 FROM outfits WHERE id = ?`, id)
	return scanOutfit(row)
}

// ListOutfits returns all outfits ordered by name.
func (db *DB) ListOutfits(ctx context.Context) ([]Outfit, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, name, item_ids, occasion, notes, is_favorite, created_at, updated_at
		 FROM outfits ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list outfits: %w", err)
	}
	defer rows.Close()

	var outfits []Outfit
	for rows.Next() {
		o, err := scanOutfit(rows)
		if err != nil {
			return nil, err
		}
		outfits = append(outfits, o)
	}
	return outfits, rows.Err()
}

// DeleteOutfit removes an outfit.
func (db *DB) DeleteOutfit(ctx context.Context, id string) error {
	res, err := db.conn.ExecContext(ctx, `DELETE FROM outfits WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete outfit: %w", err)
	}

	if n, _ := res.RowsAffected(); n > 0 {
		db.emit(changeEvent{TableOutfits, id, ChangeDelete, time.Now().UTC()})
	}
	return nil
}

func scanOutfit(row rowScanner) (Outfit, error) {
	var o Outfit
	var itemIDs, createdAt, updatedAt string
	var isFavorite int

	err := row.Scan(&o.ID, &o.Name, &itemIDs, &o.Occasion, &o.Notes,
		&isFavorite, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Outfit{}, ErrNotFound
	}
	if err != nil {
		return Outfit{}, fmt.Errorf("failed to scan outfit: %w", err)
	}

	o.ItemIDs = unmarshalStrings(itemIDs)
	o.IsFavorite = isFavorite != 0
	o.CreatedAt = parseTime(createdAt)
	o.UpdatedAt = parseTime(updatedAt)
	return o, nil
}
