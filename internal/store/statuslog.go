package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// PutStatusLog inserts or replaces a status log entry.
func (db *DB) PutStatusLog(ctx context.Context, l StatusLog) error {
	query := `
	INSERT INTO status_logs (id, item_id, from_status, to_status, changed_at, reason)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		item_id = excluded.item_id,
		from_status = excluded.from_status,
		to_status = excluded.to_status,
		changed_at = excluded.changed_at,
		reason = excluded.reason
	`

	_, err := db.conn.ExecContext(ctx, query,
		l.ID, l.ItemID, string(l.FromStatus), string(l.ToStatus),
		formatTime(l.ChangedAt), string(l.Reason),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert status log: %w", err)
	}

	db.emit(changeEvent{TableStatusLogs, l.ID, ChangeUpsert, l.ChangedAt})
	return nil
}

// GetStatusLog returns the status log entry with the given id.
func (db *DB) GetStatusLog(ctx context.Context, id string) (StatusLog, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT id, item_id, from_status, to_status, changed_at, reason
		 FROM status_logs WHERE id = ?`, id)
	return scanStatusLog(row)
}

// ListStatusLogs returns status log entries, newest first. A non-empty
// itemID filters to one item; limit 0 means no limit.
func (db *DB) ListStatusLogs(ctx context.Context, itemID string, limit int) ([]StatusLog, error) {
	query := `SELECT id, item_id, from_status, to_status, changed_at, reason FROM status_logs`
	var args []any
	if itemID != "" {
		query += ` WHERE item_id = ?`
		args = append(args, itemID)
	}
	query += ` ORDER BY changed_at DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list status logs: %w", err)
	}
	defer rows.Close()

	var logs []StatusLog
	for rows.Next() {
		l, err := scanStatusLog(rows)
		if err != nil {
			return nil, err
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

// DeleteStatusLog removes a status log entry.
func (db *DB) DeleteStatusLog(ctx context.Context, id string) error {
	res, err := db.conn.ExecContext(ctx, `DELETE FROM status_logs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete status log: %w", err)
	}

	if n, _ := res.RowsAffected(); n > 0 {
		db.emit(changeEvent{TableStatusLogs, id, ChangeDelete, time.Now().UTC()})
	}
	return nil
}

func scanStatusLog(row rowScanner) (StatusLog, error) {
	var l StatusLog
	var from, to, changedAt, reason string

	err := row.Scan(&l.ID, &l.ItemID, &from, &to, &changedAt, &reason)
	if errors.Is(err, sql.ErrNoRows) {
		return StatusLog{}, ErrNotFound
	}
	if err != nil {
		return StatusLog{}, fmt.Errorf("failed to scan status log: %w", err)
	}

	l.FromStatus = Status(from)
	l.ToStatus = Status(to)
	l.ChangedAt = parseTime(changedAt)
	l.Reason = LogReason(reason)
	return l, nil
}
