package sync

import (
	"context"
	"fmt"

	"github.com/closetd/closet/internal/remote"
	"github.com/closetd/closet/internal/store"
)

// pull fetches remote changes newer than the stored cursor for each table
// and applies them locally. Tables are processed independently; relations
// are resolved by id at apply time, so cross-table ordering does not
// matter.
func (e *Engine) pull(ctx context.Context, accountID string) error {
	meta, err := e.meta.Load(ctx)
	if err != nil {
		return err
	}

	categoryDeletes := 0
	for _, table := range store.Tables() {
		deletes, err := e.pullTable(ctx, accountID, table, meta.Cursors[table])
		if table == store.TableCategories {
			categoryDeletes = deletes
		}
		if err != nil {
			return err
		}
	}

	// Another device may have tombstoned one of the built-in categories.
	// Recreate the missing ones so every device converges on the base set;
	// the recreation is captured and pushed like any local change.
	if categoryDeletes > 0 {
		if err := e.db.EnsureDefaultCategories(ctx); err != nil {
			return err
		}
	}
	return nil
}

// pullTable consumes remote pages for one table, strictly after the given
// cursor, applying rows in (serverUpdatedAt, id) order. It stops early when
// it meets a row whose entity has a pending local entry: the local write
// wins for now, and the cursor is not advanced past the contested row, so
// it is re-evaluated next cycle once pushed. The advanced cursor is
// persisted however the loop ends.
func (e *Engine) pullTable(ctx context.Context, accountID string, table store.Table, cursor remote.Cursor) (deletes int, err error) {
	pending, err := e.queue.PendingIDs(ctx, table)
	if err != nil {
		return 0, err
	}

	start := cursor
	defer func() {
		if start.Less(cursor) {
			if saveErr := e.meta.SaveCursor(ctx, table, cursor); saveErr != nil {
				e.logger.Printf("failed to persist %s cursor: %v", table, saveErr)
				if err == nil {
					err = saveErr
				}
			}
		}
	}()

	for page := 0; page < maxPullPages; page++ {
		rows, err := e.rows.PullSince(ctx, table, accountID, cursor, pullBatchSize)
		if err != nil {
			return deletes, err
		}

		for _, row := range rows {
			meta := row.Meta()
			if _, contested := pending[meta.ID]; contested {
				return deletes, nil
			}
			if err := e.applyRow(ctx, row); err != nil {
				return deletes, fmt.Errorf("failed to apply %s/%s: %w", table, meta.ID, err)
			}
			if meta.DeletedAt != nil {
				deletes++
			}
			cursor = remote.Cursor{ServerUpdatedAt: meta.ServerUpdatedAt, ID: meta.ID}
		}

		if len(rows) < pullBatchSize {
			return deletes, nil
		}
	}
	return deletes, nil
}

// applyRow writes one remote row into the local store with capture muted,
// so applying someone else's change is not re-queued as a fresh local one.
// Tombstones cascade exactly like local deletes; live rows upsert, with
// photo blobs downloaded before the metadata row.
func (e *Engine) applyRow(ctx context.Context, row remote.Row) error {
	e.muted.Store(true)
	defer e.muted.Store(false)

	switch r := row.(type) {
	case remote.CategoryRow:
		if r.DeletedAt != nil {
			return e.db.DeleteCategory(ctx, r.ID)
		}
		return e.db.PutCategory(ctx, categoryFromRow(r))
	case remote.ItemRow:
		if r.DeletedAt != nil {
			return e.db.DeleteItem(ctx, r.ID)
		}
		return e.db.PutItem(ctx, itemFromRow(r))
	case remote.OutfitRow:
		if r.DeletedAt != nil {
			return e.db.DeleteOutfit(ctx, r.ID)
		}
		return e.db.PutOutfit(ctx, outfitFromRow(r))
	case remote.StatusLogRow:
		if r.DeletedAt != nil {
			return e.db.DeleteStatusLog(ctx, r.ID)
		}
		return e.db.PutStatusLog(ctx, statusLogFromRow(r))
	case remote.PhotoRow:
		if r.DeletedAt != nil {
			return e.db.DeletePhoto(ctx, r.ID, r.ItemID)
		}
		data, err := e.blobs.Get(ctx, r.StoragePath)
		if err != nil {
			return fmt.Errorf("failed to download photo blob: %w", err)
		}
		return e.db.PutPhoto(ctx, photoFromRow(r, data))
	default:
		return fmt.Errorf("unhandled row type %T", row)
	}
}
