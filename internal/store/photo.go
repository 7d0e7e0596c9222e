package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// PutPhoto inserts or replaces a photo and links it into the owning item's
// photo id list inside the same transaction, so an item row never references
// a photo that is not yet stored.
func (db *DB) PutPhoto(ctx context.Context, p Photo) error {
	return db.withTx(ctx, func(tx *sql.Tx) ([]changeEvent, error) {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO photos (id, item_id, data, mime_type, width, height, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT(id) DO UPDATE SET
				item_id = excluded.item_id,
				data = excluded.data,
				mime_type = excluded.mime_type,
				width = excluded.width,
				height = excluded.height`,
			p.ID, p.ItemID, p.Data, p.MimeType, p.Width, p.Height,
			formatTime(p.CreatedAt)); err != nil {
			return nil, fmt.Errorf("failed to upsert photo: %w", err)
		}

		events := []changeEvent{{TablePhotos, p.ID, ChangeUpsert, p.CreatedAt}}

		linked, err := linkPhotoToItem(ctx, tx, p.ItemID, p.ID)
		if err != nil {
			return nil, err
		}
		if linked {
			events = append(events, changeEvent{TableItems, p.ItemID, ChangeUpsert, time.Now().UTC()})
		}
		return events, nil
	})
}

// GetPhoto returns the photo with the given id, including its bytes.
func (db *DB) GetPhoto(ctx context.Context, id string) (Photo, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT id, item_id, data, mime_type, width, height, created_at
		 FROM photos WHERE id = ?`, id)
	return scanPhoto(row)
}

// ListPhotos returns all photos for an item, oldest first. An empty itemID
// returns every photo.
func (db *DB) ListPhotos(ctx context.Context, itemID string) ([]Photo, error) {
	query := `SELECT id, item_id, data, mime_type, width, height, created_at FROM photos`
	var args []any
	if itemID != "" {
		query += ` WHERE item_id = ?`
		args = append(args, itemID)
	}
	query += ` ORDER BY created_at ASC`

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list photos: %w", err)
	}
	defer rows.Close()

	var photos []Photo
	for rows.Next() {
		p, err := scanPhoto(rows)
		if err != nil {
			return nil, err
		}
		photos = append(photos, p)
	}
	return photos, rows.Err()
}

// DeletePhoto removes a photo and strips its id from the owning item's photo
// list. fallbackItemID is used when the photo row is already gone (e.g. a
// tombstone arrived for a photo this device never stored).
func (db *DB) DeletePhoto(ctx context.Context, id, fallbackItemID string) error {
	now := time.Now().UTC()

	return db.withTx(ctx, func(tx *sql.Tx) ([]changeEvent, error) {
		itemID := fallbackItemID
		var existed bool

		var storedItemID string
		err := tx.QueryRowContext(ctx,
			`SELECT item_id FROM photos WHERE id = ?`, id).Scan(&storedItemID)
		switch {
		case err == nil:
			itemID = storedItemID
			existed = true
		case errors.Is(err, sql.ErrNoRows):
		default:
			return nil, fmt.Errorf("failed to look up photo: %w", err)
		}

		if existed {
			if _, err := tx.ExecContext(ctx, `DELETE FROM photos WHERE id = ?`, id); err != nil {
				return nil, fmt.Errorf("failed to delete photo: %w", err)
			}
		}

		var events []changeEvent
		if existed {
			events = append(events, changeEvent{TablePhotos, id, ChangeDelete, now})
		}

		if itemID != "" {
			unlinked, err := unlinkPhotoFromItem(ctx, tx, itemID, id, now)
			if err != nil {
				return nil, err
			}
			if unlinked {
				events = append(events, changeEvent{TableItems, itemID, ChangeUpsert, now})
			}
		}
		return events, nil
	})
}

// linkPhotoToItem adds photoID to the item's photo_ids if the item exists
// and does not already reference it. Reports whether the item row changed.
func linkPhotoToItem(ctx context.Context, tx *sql.Tx, itemID, photoID string) (bool, error) {
	var photoIDsJSON string
	err := tx.QueryRowContext(ctx,
		`SELECT photo_ids FROM items WHERE id = ?`, itemID).Scan(&photoIDsJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to look up item: %w", err)
	}

	photoIDs := unmarshalStrings(photoIDsJSON)
	for _, existing := range photoIDs {
		if existing == photoID {
			return false, nil
		}
	}
	photoIDs = append(photoIDs, photoID)

	if _, err := tx.ExecContext(ctx,
		`UPDATE items SET photo_ids = ? WHERE id = ?`,
		marshalStrings(photoIDs), itemID); err != nil {
		return false, fmt.Errorf("failed to link photo to item: %w", err)
	}
	return true, nil
}

func unlinkPhotoFromItem(ctx context.Context, tx *sql.Tx, itemID, photoID string, now time.Time) (bool, error) {
	var photoIDsJSON string
	err := tx.QueryRowContext(ctx,
		`SELECT photo_ids FROM items WHERE id = ?`, itemID).Scan(&photoIDsJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to look up item: %w", err)
	}

	photoIDs := unmarshalStrings(photoIDsJSON)
	filtered := photoIDs[:0]
	removed := false
	for _, existing := range photoIDs {
		if existing == photoID {
			removed = true
			continue
		}
		filtered = append(filtered, existing)
	}
	if !removed {
		return false, nil
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE items SET photo_ids = ?, updated_at = ? WHERE id = ?`,
		marshalStrings(filtered), formatTime(now), itemID); err != nil {
		return false, fmt.Errorf("failed to unlink photo from item: %w", err)
	}
	return true, nil
}

func scanPhoto(row rowScanner) (Photo, error) {
	var p Photo
	var createdAt string

	err := row.Scan(&p.ID, &p.ItemID, &p.Data, &p.MimeType, &p.Width, &p.Height, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Photo{}, ErrNotFound
	}
	if err != nil {
		return Photo{}, fmt.Errorf("failed to scan photo: %w", err)
	}

	p.CreatedAt = parseTime(createdAt)
	return p, nil
}
