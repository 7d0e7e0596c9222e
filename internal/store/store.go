// Package store provides the embedded SQLite database that is the record of
// truth for all local data: entity tables, the pending sync queue, and sync
// metadata. The UI and CLI operate exclusively against this store; the sync
// engine observes it through a ChangeNotifier and writes remote state back
// through the same CRUD surface.
//
// The database runs in WAL mode so reads are never blocked by the sync
// engine's writes.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// DB wraps the SQLite connection with entity-level operations.
type DB struct {
	conn *sql.DB
	path string

	mu       sync.RWMutex
	notifier ChangeNotifier
}

// Open creates or opens the database at path and initializes the schema.
// The caller must Close() the returned DB.
func Open(path string) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", "file:"+path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(5 * time.Minute)

	db := &DB{conn: conn, path: path}

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.conn.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	if err := db.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	return db, nil
}

// Raw returns the underlying sql.DB connection. The sync bookkeeping tables
// (sync_queue, sync_meta) are accessed through this handle.
func (db *DB) Raw() *sql.DB {
	return db.conn
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}

// Close checkpoints the WAL and closes the connection.
func (db *DB) Close() error {
	if db.conn == nil {
		return nil
	}

	if _, err := db.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to checkpoint WAL: %v\n", err)
	}

	if err := db.conn.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	db.conn = nil
	return nil
}

// SetNotifier installs the change notifier invoked after every committed
// mutation. Passing nil detaches the current notifier.
func (db *DB) SetNotifier(n ChangeNotifier) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.notifier = n
}

// changeEvent is a mutation recorded during a transaction and emitted to the
// notifier after commit.
type changeEvent struct {
	table     Table
	entityID  string
	op        ChangeOp
	changedAt time.Time
}

func (db *DB) emit(events ...changeEvent) {
	db.mu.RLock()
	n := db.notifier
	db.mu.RUnlock()

	if n == nil {
		return
	}
	for _, ev := range events {
		n.EntityChanged(ev.table, ev.entityID, ev.op, ev.changedAt)
	}
}

// withTx runs fn inside a transaction and, on commit, emits the change
// events fn returned.
func (db *DB) withTx(ctx context.Context, fn func(tx *sql.Tx) ([]changeEvent, error)) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	events, err := fn(tx)
	if err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	db.emit(events...)
	return nil
}

func (db *DB) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS categories (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		is_default INTEGER NOT NULL DEFAULT 0,
		archived INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS items (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		category_id TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'clean',
		color TEXT NOT NULL DEFAULT '',
		brand TEXT NOT NULL DEFAULT '',
		size TEXT NOT NULL DEFAULT '',
		notes TEXT NOT NULL DEFAULT '',
		season_tags TEXT NOT NULL DEFAULT '[]',  -- JSON array
		photo_ids TEXT NOT NULL DEFAULT '[]',    -- JSON array
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS outfits (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		item_ids TEXT NOT NULL DEFAULT '[]',  -- JSON array
		occasion TEXT NOT NULL DEFAULT '',
		notes TEXT NOT NULL DEFAULT '',
		is_favorite INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS status_logs (
		id TEXT PRIMARY KEY,
		item_id TEXT NOT NULL,
		from_status TEXT NOT NULL,
		to_status TEXT NOT NULL,
		changed_at TEXT NOT NULL,
		reason TEXT NOT NULL DEFAULT 'manual'
	);

	CREATE TABLE IF NOT EXISTS photos (
		id TEXT PRIMARY KEY,
		item_id TEXT NOT NULL,
		data BLOB NOT NULL,
		mime_type TEXT NOT NULL,
		width INTEGER NOT NULL DEFAULT 0,
		height INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL
	);

	-- Sync bookkeeping. Lives in the same database so entity writes and
	-- queue writes share transaction boundaries.
	CREATE TABLE IF NOT EXISTS sync_queue (
		id TEXT PRIMARY KEY,
		tbl TEXT NOT NULL,
		entity_id TEXT NOT NULL,
		op TEXT NOT NULL,
		changed_at TEXT NOT NULL,
		retry_count INTEGER NOT NULL DEFAULT 0,
		next_retry_at TEXT,
		last_error TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		UNIQUE (tbl, entity_id)
	);

	CREATE TABLE IF NOT EXISTS sync_meta (
		key TEXT PRIMARY KEY,
		enabled INTEGER NOT NULL DEFAULT 0,
		device_id TEXT NOT NULL DEFAULT '',
		linked_account_id TEXT NOT NULL DEFAULT '',
		last_synced_at TEXT NOT NULL DEFAULT '',
		last_error TEXT NOT NULL DEFAULT '',
		cursors TEXT NOT NULL DEFAULT '{}'  -- JSON map: table -> cursor
	);

	CREATE INDEX IF NOT EXISTS idx_items_category ON items(category_id);
	CREATE INDEX IF NOT EXISTS idx_items_status ON items(status);
	CREATE INDEX IF NOT EXISTS idx_status_logs_item ON status_logs(item_id);
	CREATE INDEX IF NOT EXISTS idx_photos_item ON photos(item_id);
	CREATE INDEX IF NOT EXISTS idx_sync_queue_due ON sync_queue(next_retry_at, created_at);
	`

	if _, err := db.conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	return nil
}

// timeLayout is RFC 3339 with a fixed nine-digit fraction. RFC3339Nano
// trims trailing zeros, which breaks lexical ordering of TEXT timestamps
// ("…05Z" sorts after "…05.5Z"); the fixed width keeps SQL comparisons
// chronological.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// formatTime and parseTime are the canonical timestamp codec for TEXT
// columns. Nanosecond precision matters for sync cursor comparisons.
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

func marshalStrings(values []string) string {
	if values == nil {
		values = []string{}
	}
	data, err := json.Marshal(values)
	if err != nil {
		return "[]"
	}
	return string(data)
}

func unmarshalStrings(data string) []string {
	if data == "" || data == "null" {
		return []string{}
	}
	var values []string
	if err := json.Unmarshal([]byte(data), &values); err != nil {
		return []string{}
	}
	return values
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
