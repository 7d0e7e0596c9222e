package sync

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/closetd/closet/internal/remote"
	"github.com/closetd/closet/internal/store"
)

// metaKey is the primary key of the single sync_meta row.
const metaKey = "device"

// Meta is the per-device sync record: the feature flag, the device
// identity, the account link, last-cycle bookkeeping, and the pull cursor
// per table.
type Meta struct {
	Enabled         bool
	DeviceID        string
	LinkedAccountID string
	LastSyncedAt    time.Time
	LastError       string
	Cursors         map[store.Table]remote.Cursor
}

// MetaStore persists the Meta record in the sync_meta table.
type MetaStore struct {
	db *sql.DB
}

// NewMetaStore returns a meta store over the given database handle.
func NewMetaStore(db *sql.DB) *MetaStore {
	return &MetaStore{db: db}
}

// Load reads the record, creating it with a fresh device id on first
// access.
func (m *MetaStore) Load(ctx context.Context) (Meta, error) {
	row := m.db.QueryRowContext(ctx, `
		SELECT enabled, device_id, linked_account_id, last_synced_at, last_error, cursors
		FROM sync_meta WHERE key = ?`, metaKey)

	var (
		enabled            int
		meta               Meta
		lastSyncedAt, curs string
	)
	err := row.Scan(&enabled, &meta.DeviceID, &meta.LinkedAccountID, &lastSyncedAt, &meta.LastError, &curs)
	if err == sql.ErrNoRows {
		return m.create(ctx)
	}
	if err != nil {
		return Meta{}, fmt.Errorf("failed to load sync meta: %w", err)
	}

	meta.Enabled = enabled != 0
	if lastSyncedAt != "" {
		meta.LastSyncedAt = parseTime(lastSyncedAt)
	}
	meta.Cursors, err = decodeCursors(curs)
	if err != nil {
		return Meta{}, err
	}
	return meta, nil
}

// SetEnabled flips the feature flag.
func (m *MetaStore) SetEnabled(ctx context.Context, enabled bool) error {
	return m.update(ctx, "UPDATE sync_meta SET enabled = ? WHERE key = ?", boolToInt(enabled), metaKey)
}

// Link records the account this device dataset belongs to. The link is
// immutable once set; callers must check for a mismatch before linking.
func (m *MetaStore) Link(ctx context.Context, accountID string) error {
	return m.update(ctx, "UPDATE sync_meta SET linked_account_id = ? WHERE key = ?", accountID, metaKey)
}

// RecordCycle stores the outcome of a sync cycle.
func (m *MetaStore) RecordCycle(ctx context.Context, syncedAt time.Time, lastError string) error {
	return m.update(ctx, "UPDATE sync_meta SET last_synced_at = ?, last_error = ? WHERE key = ?",
		formatTime(syncedAt), lastError, metaKey)
}

// RecordError stores a cycle error without touching the success timestamp.
func (m *MetaStore) RecordError(ctx context.Context, lastError string) error {
	return m.update(ctx, "UPDATE sync_meta SET last_error = ? WHERE key = ?", lastError, metaKey)
}

// SaveCursor persists the advanced pull cursor for one table.
func (m *MetaStore) SaveCursor(ctx context.Context, table store.Table, cursor remote.Cursor) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var curs string
	err = tx.QueryRowContext(ctx, "SELECT cursors FROM sync_meta WHERE key = ?", metaKey).Scan(&curs)
	if err != nil {
		return fmt.Errorf("failed to read cursors: %w", err)
	}

	cursors, err := decodeCursors(curs)
	if err != nil {
		return err
	}
	cursors[table] = cursor

	encoded, err := json.Marshal(cursors)
	if err != nil {
		return fmt.Errorf("failed to encode cursors: %w", err)
	}

	if _, err := tx.ExecContext(ctx, "UPDATE sync_meta SET cursors = ? WHERE key = ?", string(encoded), metaKey); err != nil {
		return fmt.Errorf("failed to save cursor for %s: %w", table, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Reset clears cursors and cycle bookkeeping but keeps the device id and
// the account link. Used before re-seeding or after a local data reset.
func (m *MetaStore) Reset(ctx context.Context) error {
	return m.update(ctx,
		"UPDATE sync_meta SET last_synced_at = '', last_error = '', cursors = '{}' WHERE key = ?", metaKey)
}

// Unlink removes the account link on top of Reset. Only an explicit local
// data reset goes through here; nothing unlinks implicitly.
func (m *MetaStore) Unlink(ctx context.Context) error {
	if err := m.Reset(ctx); err != nil {
		return err
	}
	return m.update(ctx, "UPDATE sync_meta SET enabled = 0, linked_account_id = '' WHERE key = ?", metaKey)
}

func (m *MetaStore) create(ctx context.Context) (Meta, error) {
	meta := Meta{
		DeviceID: uuid.NewString(),
		Cursors:  map[store.Table]remote.Cursor{},
	}

	_, err := m.db.ExecContext(ctx, `
		INSERT INTO sync_meta (key, enabled, device_id, linked_account_id, last_synced_at, last_error, cursors)
		VALUES (?, 0, ?, '', '', '', '{}')
		ON CONFLICT (key) DO NOTHING`,
		metaKey, meta.DeviceID)
	if err != nil {
		return Meta{}, fmt.Errorf("failed to create sync meta: %w", err)
	}

	// A concurrent create may have won; read back the authoritative row.
	return m.Load(ctx)
}

func (m *MetaStore) update(ctx context.Context, query string, args ...any) error {
	if _, err := m.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to update sync meta: %w", err)
	}
	return nil
}

func decodeCursors(data string) (map[store.Table]remote.Cursor, error) {
	cursors := map[store.Table]remote.Cursor{}
	if data == "" || data == "{}" {
		return cursors, nil
	}
	if err := json.Unmarshal([]byte(data), &cursors); err != nil {
		return nil, fmt.Errorf("failed to decode cursors: %w", err)
	}
	return cursors, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
