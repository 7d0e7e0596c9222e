package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Dataset is a complete snapshot of every entity table, as carried by a
// backup document.
type Dataset struct {
	Categories []Category
	Items      []Item
	Outfits    []Outfit
	StatusLogs []StatusLog
	Photos     []Photo
}

// RestoreDataset replaces the contents of every entity table with ds in a
// single transaction; a failure leaves the previous dataset intact. After
// commit the notifier sees a delete for each row absent from ds and an
// upsert for each restored row, so an armed sync capture propagates the
// restore like fresh local edits.
func (db *DB) RestoreDataset(ctx context.Context, ds Dataset) error {
	return db.withTx(ctx, func(tx *sql.Tx) ([]changeEvent, error) {
		var events []changeEvent
		now := time.Now().UTC()

		restored := restoredIDs(ds)
		for _, table := range Tables() {
			ids, err := tableIDs(ctx, tx, table)
			if err != nil {
				return nil, err
			}
			for _, id := range ids {
				if !restored[table][id] {
					events = append(events, changeEvent{table, id, ChangeDelete, now})
				}
			}
			if _, err := tx.ExecContext(ctx, `DELETE FROM `+string(table)); err != nil {
				return nil, fmt.Errorf("failed to clear %s: %w", table, err)
			}
		}

		for _, c := range ds.Categories {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO categories (id, name, is_default, archived, created_at, updated_at)
				 VALUES (?, ?, ?, ?, ?, ?)`,
				c.ID, c.Name, boolToInt(c.IsDefault), boolToInt(c.Archived),
				formatTime(c.CreatedAt), formatTime(c.UpdatedAt)); err != nil {
				return nil, fmt.Errorf("failed to restore category %s: %w", c.ID, err)
			}
			events = append(events, changeEvent{TableCategories, c.ID, ChangeUpsert, c.UpdatedAt})
		}

		for _, it := range ds.Items {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO items (
					id, name, category_id, status, color, brand, size, notes,
					season_tags, photo_ids, created_at, updated_at
				) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				it.ID, it.Name, it.CategoryID, string(it.Status),
				it.Color, it.Brand, it.Size, it.Notes,
				marshalStrings(it.SeasonTags), marshalStrings(it.PhotoIDs),
				formatTime(it.CreatedAt), formatTime(it.UpdatedAt)); err != nil {
				return nil, fmt.Errorf("failed to restore item %s: %w", it.ID, err)
			}
			events = append(events, changeEvent{TableItems, it.ID, ChangeUpsert, it.UpdatedAt})
		}

		for _, o := range ds.Outfits {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO outfits (id, name, item_ids, occasion, notes, is_favorite, created_at, updated_at)
				 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
				o.ID, o.Name, marshalStrings(o.ItemIDs), o.Occasion, o.Notes,
				boolToInt(o.IsFavorite), formatTime(o.CreatedAt), formatTime(o.UpdatedAt)); err != nil {
				return nil, fmt.Errorf("failed to restore outfit %s: %w", o.ID, err)
			}
			events = append(events, changeEvent{TableOutfits, o.ID, ChangeUpsert, o.UpdatedAt})
		}

		for _, l := range ds.StatusLogs {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO status_logs (id, item_id, from_status, to_status, changed_at, reason)
				 VALUES (?, ?, ?, ?, ?, ?)`,
				l.ID, l.ItemID, string(l.FromStatus), string(l.ToStatus),
				formatTime(l.ChangedAt), string(l.Reason)); err != nil {
				return nil, fmt.Errorf("failed to restore status log %s: %w", l.ID, err)
			}
			events = append(events, changeEvent{TableStatusLogs, l.ID, ChangeUpsert, l.ChangedAt})
		}

		for _, p := range ds.Photos {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO photos (id, item_id, data, mime_type, width, height, created_at)
				 VALUES (?, ?, ?, ?, ?, ?, ?)`,
				p.ID, p.ItemID, p.Data, p.MimeType, p.Width, p.Height,
				formatTime(p.CreatedAt)); err != nil {
				return nil, fmt.Errorf("failed to restore photo %s: %w", p.ID, err)
			}
			events = append(events, changeEvent{TablePhotos, p.ID, ChangeUpsert, p.CreatedAt})
		}

		return events, nil
	})
}

func restoredIDs(ds Dataset) map[Table]map[string]bool {
	ids := map[Table]map[string]bool{
		TableCategories: make(map[string]bool, len(ds.Categories)),
		TableItems:      make(map[string]bool, len(ds.Items)),
		TableOutfits:    make(map[string]bool, len(ds.Outfits)),
		TableStatusLogs: make(map[string]bool, len(ds.StatusLogs)),
		TablePhotos:     make(map[string]bool, len(ds.Photos)),
	}
	for _, c := range ds.Categories {
		ids[TableCategories][c.ID] = true
	}
	for _, it := range ds.Items {
		ids[TableItems][it.ID] = true
	}
	for _, o := range ds.Outfits {
		ids[TableOutfits][o.ID] = true
	}
	for _, l := range ds.StatusLogs {
		ids[TableStatusLogs][l.ID] = true
	}
	for _, p := range ds.Photos {
		ids[TablePhotos][p.ID] = true
	}
	return ids
}

func tableIDs(ctx context.Context, tx *sql.Tx, table Table) ([]string, error) {
	rows, err := tx.QueryContext(ctx, `SELECT id FROM `+string(table))
	if err != nil {
		return nil, fmt.Errorf("failed to list %s ids: %w", table, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
