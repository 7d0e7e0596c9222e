package sync

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/closetd/closet/internal/store"
)

// Entry is one pending operation awaiting delivery to the remote store.
// The queue holds at most one entry per (table, entity) pair.
type Entry struct {
	ID          string
	Table       store.Table
	EntityID    string
	Op          store.ChangeOp
	ChangedAt   time.Time
	RetryCount  int
	NextRetryAt time.Time // zero when due immediately
	LastError   string
	CreatedAt   time.Time
}

// Queue is the durable pending-operation log, stored in the sync_queue
// table of the local database so entity writes and queue writes share one
// transaction boundary.
type Queue struct {
	db       *sql.DB
	onChange func()
}

// NewQueue returns a queue over the given database handle.
func NewQueue(db *sql.DB) *Queue {
	return &Queue{db: db}
}

// SetOnChange installs a callback invoked after every Enqueue. The engine
// uses it to wake up when new work arrives.
func (q *Queue) SetOnChange(fn func()) {
	q.onChange = fn
}

// Enqueue records a pending operation, collapsing into any existing entry
// for the same entity: the newest op always wins (a delete replaces a
// queued upsert, and an upsert after a delete reverts the entry back to
// upsert for re-creation). Collapsing resets retry state, since a fresh
// local change deserves an immediate attempt.
func (q *Queue) Enqueue(ctx context.Context, table store.Table, entityID string, op store.ChangeOp, changedAt time.Time) (Entry, error) {
	now := time.Now()

	_, err := q.db.ExecContext(ctx, `
		INSERT INTO sync_queue (id, tbl, entity_id, op, changed_at, retry_count, next_retry_at, last_error, created_at)
		VALUES (?, ?, ?, ?, ?, 0, NULL, '', ?)
		ON CONFLICT (tbl, entity_id) DO UPDATE SET
			op = excluded.op,
			changed_at = excluded.changed_at,
			retry_count = 0,
			next_retry_at = NULL,
			last_error = ''`,
		uuid.NewString(), string(table), entityID, string(op), formatTime(changedAt), formatTime(now))
	if err != nil {
		return Entry{}, fmt.Errorf("failed to enqueue %s/%s: %w", table, entityID, err)
	}

	entry, err := q.get(ctx, table, entityID)
	if err != nil {
		return Entry{}, err
	}

	if q.onChange != nil {
		q.onChange()
	}
	return entry, nil
}

// ListDue returns entries whose retry time has arrived, oldest first, so
// long-stuck entries are attempted before fresh ones.
func (q *Queue) ListDue(ctx context.Context, limit int, now time.Time) ([]Entry, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, tbl, entity_id, op, changed_at, retry_count, next_retry_at, last_error, created_at
		FROM sync_queue
		WHERE next_retry_at IS NULL OR next_retry_at <= ?
		ORDER BY created_at ASC
		LIMIT ?`,
		formatTime(now), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list due queue entries: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

// MarkFailure records a failed push attempt: increments the retry count,
// stores the error, and defers the entry with capped exponential backoff.
func (q *Queue) MarkFailure(ctx context.Context, id string, cause error, now time.Time) error {
	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var retryCount int
	err = tx.QueryRowContext(ctx, "SELECT retry_count FROM sync_queue WHERE id = ?", id).Scan(&retryCount)
	if err == sql.ErrNoRows {
		return nil // entry collapsed away concurrently
	}
	if err != nil {
		return fmt.Errorf("failed to read queue entry %s: %w", id, err)
	}

	retryCount++
	next := now.Add(backoff(retryCount))

	_, err = tx.ExecContext(ctx, `
		UPDATE sync_queue SET retry_count = ?, next_retry_at = ?, last_error = ?
		WHERE id = ?`,
		retryCount, formatTime(next), cause.Error(), id)
	if err != nil {
		return fmt.Errorf("failed to mark queue entry %s failed: %w", id, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Remove deletes an entry after its operation was confirmed remotely.
func (q *Queue) Remove(ctx context.Context, id string) error {
	if _, err := q.db.ExecContext(ctx, "DELETE FROM sync_queue WHERE id = ?", id); err != nil {
		return fmt.Errorf("failed to remove queue entry %s: %w", id, err)
	}
	return nil
}

// Clear discards every pending entry.
func (q *Queue) Clear(ctx context.Context) error {
	if _, err := q.db.ExecContext(ctx, "DELETE FROM sync_queue"); err != nil {
		return fmt.Errorf("failed to clear queue: %w", err)
	}
	return nil
}

// PendingCount returns the number of entries awaiting push.
func (q *Queue) PendingCount(ctx context.Context) (int, error) {
	var n int
	if err := q.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM sync_queue").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count queue entries: %w", err)
	}
	return n, nil
}

// PendingIDs returns the entity ids with an outstanding entry for one
// table. Pull consults this set to let in-flight local writes win over
// concurrently observed remote rows.
func (q *Queue) PendingIDs(ctx context.Context, table store.Table) (map[string]struct{}, error) {
	rows, err := q.db.QueryContext(ctx, "SELECT entity_id FROM sync_queue WHERE tbl = ?", string(table))
	if err != nil {
		return nil, fmt.Errorf("failed to list pending ids for %s: %w", table, err)
	}
	defer rows.Close()

	ids := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan pending id: %w", err)
		}
		ids[id] = struct{}{}
	}
	return ids, rows.Err()
}

// SeedFromStore enqueues an upsert for every existing local row. Called
// once when a device is first linked to an account, so the remote store
// converges to the full local snapshot without a separate import path.
func (q *Queue) SeedFromStore(ctx context.Context, db *store.DB) error {
	categories, err := db.ListCategories(ctx)
	if err != nil {
		return err
	}
	for _, c := range categories {
		if _, err := q.Enqueue(ctx, store.TableCategories, c.ID, store.ChangeUpsert, changedAtFor(store.TableCategories, c.CreatedAt, c.UpdatedAt)); err != nil {
			return err
		}
	}

	items, err := db.ListItems(ctx)
	if err != nil {
		return err
	}
	for _, it := range items {
		if _, err := q.Enqueue(ctx, store.TableItems, it.ID, store.ChangeUpsert, changedAtFor(store.TableItems, it.CreatedAt, it.UpdatedAt)); err != nil {
			return err
		}
		logs, err := db.ListStatusLogs(ctx, it.ID, 0)
		if err != nil {
			return err
		}
		for _, l := range logs {
			if _, err := q.Enqueue(ctx, store.TableStatusLogs, l.ID, store.ChangeUpsert, l.ChangedAt); err != nil {
				return err
			}
		}
		photos, err := db.ListPhotos(ctx, it.ID)
		if err != nil {
			return err
		}
		for _, p := range photos {
			if _, err := q.Enqueue(ctx, store.TablePhotos, p.ID, store.ChangeUpsert, p.CreatedAt); err != nil {
				return err
			}
		}
	}

	outfits, err := db.ListOutfits(ctx)
	if err != nil {
		return err
	}
	for _, o := range outfits {
		if _, err := q.Enqueue(ctx, store.TableOutfits, o.ID, store.ChangeUpsert, changedAtFor(store.TableOutfits, o.CreatedAt, o.UpdatedAt)); err != nil {
			return err
		}
	}
	return nil
}

func (q *Queue) get(ctx context.Context, table store.Table, entityID string) (Entry, error) {
	row := q.db.QueryRowContext(ctx, `
		SELECT id, tbl, entity_id, op, changed_at, retry_count, next_retry_at, last_error, created_at
		FROM sync_queue WHERE tbl = ? AND entity_id = ?`,
		string(table), entityID)

	entry, err := scanEntry(row.Scan)
	if err != nil {
		return Entry{}, fmt.Errorf("failed to read queue entry %s/%s: %w", table, entityID, err)
	}
	return entry, nil
}

// backoff returns the delay before retry attempt n (1-based), doubling
// each attempt up to the cap.
func backoff(retryCount int) time.Duration {
	d := retryBase
	for i := 1; i < retryCount; i++ {
		d *= 2
		if d >= retryMax {
			return retryMax
		}
	}
	return min(d, retryMax)
}

func scanEntries(rows *sql.Rows) ([]Entry, error) {
	var entries []Entry
	for rows.Next() {
		entry, err := scanEntry(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan queue entry: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func scanEntry(scan func(...any) error) (Entry, error) {
	var (
		e                             Entry
		tbl, op, changedAt, createdAt string
		nextRetryAt                   sql.NullString
	)
	err := scan(&e.ID, &tbl, &e.EntityID, &op, &changedAt, &e.RetryCount, &nextRetryAt, &e.LastError, &createdAt)
	if err != nil {
		return Entry{}, err
	}

	e.Table = store.Table(tbl)
	e.Op = store.ChangeOp(op)
	e.ChangedAt = parseTime(changedAt)
	e.CreatedAt = parseTime(createdAt)
	if nextRetryAt.Valid {
		e.NextRetryAt = parseTime(nextRetryAt.String)
	}
	return e, nil
}

// timeLayout mirrors the store's fixed-width timestamp codec: a constant
// nine-digit fraction keeps TEXT comparisons (next_retry_at <= now, the
// created_at ordering) chronological.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
