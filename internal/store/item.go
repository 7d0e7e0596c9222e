package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// PutItem inserts or replaces a clothing item.
func (db *DB) PutItem(ctx context.Context, it Item) error {
	query := `
	INSERT INTO items (
		id, name, category_id, status, color, brand, size, notes,
		season_tags, photo_ids, created_at, updated_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		name = excluded.name,
		category_id = excluded.category_id,
		status = excluded.status,
		color = excluded.color,
		brand = excluded.brand,
		size = excluded.size,
		notes = excluded.notes,
		season_tags = excluded.season_tags,
		photo_ids = excluded.photo_ids,
		updated_at = excluded.updated_at
	`

	_, err := db.conn.ExecContext(ctx, query,
		it.ID, it.Name, it.CategoryID, string(it.Status),
		it.Color, it.Brand, it.Size, it.Notes,
		marshalStrings(it.SeasonTags), marshalStrings(it.PhotoIDs),
		formatTime(it.CreatedAt), formatTime(it.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert item: %w", err)
	}

	db.emit(changeEvent{TableItems, it.ID, ChangeUpsert, it.UpdatedAt})
	return nil
}

// GetItem returns the item with the given id.
func (db *DB) GetItem(ctx context.Context, id string) (Item, error) {
	row := db.conn.QueryRowContext(ctx, selectItem+` WHERE id = ?`, id)
	return scanItem(row)
}

// ListItems returns all items ordered by name.
func (db *DB) ListItems(ctx context.Context) ([]Item, error) {
	rows, err := db.conn.QueryContext(ctx, selectItem+` ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list items: %w", err)
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// DeleteItem removes an item and cascades: its photos and status logs are
// deleted and its id is stripped from every outfit's item list. All rows
// change in one transaction; the notifier sees one event per touched row.
func (db *DB) DeleteItem(ctx context.Context, id string) error {
	now := time.Now().UTC()

	return db.withTx(ctx, func(tx *sql.Tx) ([]changeEvent, error) {
		var exists int
		if err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM items WHERE id = ?`, id).Scan(&exists); err != nil {
			return nil, fmt.Errorf("failed to check item: %w", err)
		}
		if exists == 0 {
			return nil, nil
		}

		var events []changeEvent

		photoIDs, err := collectIDs(ctx, tx, `SELECT id FROM photos WHERE item_id = ?`, id)
		if err != nil {
			return nil, err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM photos WHERE item_id = ?`, id); err != nil {
			return nil, fmt.Errorf("failed to delete item photos: %w", err)
		}
		for _, photoID := range photoIDs {
			events = append(events, changeEvent{TablePhotos, photoID, ChangeDelete, now})
		}

		logIDs, err := collectIDs(ctx, tx, `SELECT id FROM status_logs WHERE item_id = ?`, id)
		if err != nil {
			return nil, err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM status_logs WHERE item_id = ?`, id); err != nil {
			return nil, fmt.Errorf("failed to delete item status logs: %w", err)
		}
		for _, logID := range logIDs {
			events = append(events, changeEvent{TableStatusLogs, logID, ChangeDelete, now})
		}

		outfitEvents, err := stripItemFromOutfits(ctx, tx, id, now)
		if err != nil {
			return nil, err
		}
		events = append(events, outfitEvents...)

		if _, err := tx.ExecContext(ctx, `DELETE FROM items WHERE id = ?`, id); err != nil {
			return nil, fmt.Errorf("failed to delete item: %w", err)
		}
		events = append(events, changeEvent{TableItems, id, ChangeDelete, now})

		return events, nil
	})
}

// SetItemStatus transitions an item between statuses and records a status
// log entry in the same transaction.
func (db *DB) SetItemStatus(ctx context.Context, itemID string, to Status, log StatusLog) error {
	now := time.Now().UTC()

	return db.withTx(ctx, func(tx *sql.Tx) ([]changeEvent, error) {
		res, err := tx.ExecContext(ctx,
			`UPDATE items SET status = ?, updated_at = ? WHERE id = ?`,
			string(to), formatTime(now), itemID)
		if err != nil {
			return nil, fmt.Errorf("failed to update item status: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return nil, ErrNotFound
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO status_logs (id, item_id, from_status, to_status, changed_at, reason)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			log.ID, itemID, string(log.FromStatus), string(log.ToStatus),
			formatTime(log.ChangedAt), string(log.Reason)); err != nil {
			return nil, fmt.Errorf("failed to insert status log: %w", err)
		}

		return []changeEvent{
			{TableItems, itemID, ChangeUpsert, now},
			{TableStatusLogs, log.ID, ChangeUpsert, log.ChangedAt},
		}, nil
	})
}

func stripItemFromOutfits(ctx context.Context, tx *sql.Tx, itemID string, now time.Time) ([]changeEvent, error) {
	rows, err := tx.QueryContext(ctx, `SELECT id, item_ids FROM outfits`)
	if err != nil {
		return nil, fmt.Errorf("failed to query outfits: %w", err)
	}
	defer rows.Close()

	type patch struct {
		id      string
		itemIDs []string
	}
	var patches []patch

	for rows.Next() {
		var id, itemIDsJSON string
		if err := rows.Scan(&id, &itemIDsJSON); err != nil {
			return nil, fmt.Errorf("failed to scan outfit: %w", err)
		}

		itemIDs := unmarshalStrings(itemIDsJSON)
		filtered := itemIDs[:0]
		removed := false
		for _, candidate := range itemIDs {
			if candidate == itemID {
				removed = true
				continue
			}
			filtered = append(filtered, candidate)
		}
		if removed {
			patches = append(patches, patch{id: id, itemIDs: filtered})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate outfits: %w", err)
	}

	var events []changeEvent
	for _, p := range patches {
		if _, err := tx.ExecContext(ctx,
			`UPDATE outfits SET item_ids = ?, updated_at = ? WHERE id = ?`,
			marshalStrings(p.itemIDs), formatTime(now), p.id); err != nil {
			return nil, fmt.Errorf("failed to update outfit %s: %w", p.id, err)
		}
		events = append(events, changeEvent{TableOutfits, p.id, ChangeUpsert, now})
	}
	return events, nil
}

func collectIDs(ctx context.Context, tx *sql.Tx, query string, args ...any) ([]string, error) {
	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

const selectItem = `
	SELECT id, name, category_id, status, color, brand, size, notes,
	       season_tags, photo_ids, created_at, updated_at
	FROM items`

func scanItem(row rowScanner) (Item, error) {
	var it Item
	var status, seasonTags, photoIDs, createdAt, updatedAt string

	err := row.Scan(&it.ID, &it.Name, &it.CategoryID, &status,
		&it.Color, &it.Brand, &it.Size, &it.Notes,
		&seasonTags, &photoIDs, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Item{}, ErrNotFound
	}
	if err != nil {
		return Item{}, fmt.Errorf("failed to scan item: %w", err)
	}

	it.Status = Status(status)
	it.SeasonTags = unmarshalStrings(seasonTags)
	it.PhotoIDs = unmarshalStrings(photoIDs)
	it.CreatedAt = parseTime(createdAt)
	it.UpdatedAt = parseTime(updatedAt)
	return it, nil
}
