package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/closetd/closet/internal/remote"
	"github.com/closetd/closet/internal/store"
)

// push drains the queue against the remote store. Entries are processed in
// batches until the queue is empty of due work or the turn cap is hit.
// A failing entry is deferred with backoff and never blocks the rest of the
// batch; only an authentication failure aborts the whole phase.
func (e *Engine) push(ctx context.Context, accountID string) error {
	for turn := 0; turn < maxPushTurns; turn++ {
		due, err := e.queue.ListDue(ctx, pushBatchSize, time.Now())
		if err != nil {
			return err
		}
		if len(due) == 0 {
			return nil
		}

		for _, entry := range due {
			if err := ctx.Err(); err != nil {
				return err
			}

			err := e.pushEntry(ctx, accountID, entry)
			if err == nil {
				if err := e.queue.Remove(ctx, entry.ID); err != nil {
					return err
				}
				continue
			}
			if remote.IsUnauthorized(err) {
				return err
			}

			e.logger.Printf("push %s/%s failed (attempt %d): %v", entry.Table, entry.EntityID, entry.RetryCount+1, err)
			if markErr := e.queue.MarkFailure(ctx, entry.ID, err, time.Now()); markErr != nil {
				return markErr
			}
		}
	}
	return nil
}

func (e *Engine) pushEntry(ctx context.Context, accountID string, entry Entry) error {
	if entry.Op == store.ChangeDelete {
		return e.pushDelete(ctx, accountID, entry)
	}

	if entry.Table == store.TablePhotos {
		return e.pushPhoto(ctx, accountID, entry)
	}

	row, err := e.loadRow(ctx, accountID, entry)
	if errors.Is(err, store.ErrNotFound) {
		// The entity vanished locally after the upsert was queued; deliver
		// the deletion instead.
		return e.pushDelete(ctx, accountID, entry)
	}
	if err != nil {
		return err
	}

	return e.rows.Upsert(ctx, row)
}

// pushPhoto uploads the blob before the metadata row so a remote photo row
// is never visible without its payload.
func (e *Engine) pushPhoto(ctx context.Context, accountID string, entry Entry) error {
	p, err := e.db.GetPhoto(ctx, entry.EntityID)
	if errors.Is(err, store.ErrNotFound) {
		return e.pushDelete(ctx, accountID, entry)
	}
	if err != nil {
		return err
	}

	path := photoStoragePath(accountID, p)
	if err := e.blobs.Put(ctx, path, p.Data, p.MimeType); err != nil {
		return fmt.Errorf("failed to upload photo blob: %w", err)
	}
	return e.rows.Upsert(ctx, photoToRow(accountID, p, path))
}

// loadRow reads the current local entity and maps it to its remote shape.
func (e *Engine) loadRow(ctx context.Context, accountID string, entry Entry) (remote.Row, error) {
	switch entry.Table {
	case store.TableCategories:
		c, err := e.db.GetCategory(ctx, entry.EntityID)
		if err != nil {
			return nil, err
		}
		return categoryToRow(accountID, c), nil
	case store.TableItems:
		it, err := e.db.GetItem(ctx, entry.EntityID)
		if err != nil {
			return nil, err
		}
		return itemToRow(accountID, it), nil
	case store.TableOutfits:
		o, err := e.db.GetOutfit(ctx, entry.EntityID)
		if err != nil {
			return nil, err
		}
		return outfitToRow(accountID, o), nil
	case store.TableStatusLogs:
		l, err := e.db.GetStatusLog(ctx, entry.EntityID)
		if err != nil {
			return nil, err
		}
		return statusLogToRow(accountID, l), nil
	default:
		return nil, fmt.Errorf("unknown table %q", entry.Table)
	}
}

// pushDelete tombstones the remote row. For photos the backing blob is
// removed first so storage never outlives the metadata row.
func (e *Engine) pushDelete(ctx context.Context, accountID string, entry Entry) error {
	if entry.Table == store.TablePhotos {
		path, err := e.rows.PhotoStoragePath(ctx, accountID, entry.EntityID)
		if err != nil {
			return err
		}
		if path != "" {
			if err := e.blobs.Remove(ctx, path); err != nil {
				return fmt.Errorf("failed to remove photo blob: %w", err)
			}
		}
	}
	return e.rows.MarkDeleted(ctx, entry.Table, accountID, entry.EntityID)
}
