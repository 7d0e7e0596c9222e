package remote

import (
	"context"
	"errors"
	"net"
	"net/url"
	"time"

	"github.com/closetd/closet/internal/store"
)

// ErrUnauthorized indicates the remote rejected the request's credentials.
// The sync engine treats this as fatal for the current cycle: it stops its
// runtime instead of retrying against a stale session.
var ErrUnauthorized = errors.New("remote: unauthorized")

// ErrUnavailable indicates the remote could not be reached. The sync engine
// reports it as offline rather than a hard error.
var ErrUnavailable = errors.New("remote: unavailable")

// Cursor is the incremental-pull watermark for one table. Rows are totally
// ordered by (ServerUpdatedAt, ID); a pull resumes strictly after the
// cursor.
type Cursor struct {
	ServerUpdatedAt time.Time `json:"server_updated_at"`
	ID              string    `json:"id"`
}

// IsZero reports whether the cursor has never been advanced.
func (c Cursor) IsZero() bool {
	return c.ServerUpdatedAt.IsZero() && c.ID == ""
}

// Less orders cursors by (ServerUpdatedAt, ID).
func (c Cursor) Less(other Cursor) bool {
	if c.ServerUpdatedAt.Equal(other.ServerUpdatedAt) {
		return c.ID < other.ID
	}
	return c.ServerUpdatedAt.Before(other.ServerUpdatedAt)
}

// Store is the row-level surface of the multi-tenant remote store. Upserts
// are keyed by (owner, id) and must be idempotent under retry; deletes are
// soft (tombstones).
type Store interface {
	Upsert(ctx context.Context, row Row) error
	MarkDeleted(ctx context.Context, table store.Table, ownerID, id string) error
	PullSince(ctx context.Context, table store.Table, ownerID string, cursor Cursor, limit int) ([]Row, error)

	// PhotoStoragePath returns the blob path recorded on a remote photo
	// row, or "" when the row does not exist or has no blob.
	PhotoStoragePath(ctx context.Context, ownerID, id string) (string, error)

	// PhotoStoragePaths returns every blob path owned by the account.
	// Used by the remote wipe.
	PhotoStoragePaths(ctx context.Context, ownerID string) ([]string, error)

	// DeleteAll hard-deletes every row of a table owned by the account.
	// Only the remote wipe uses this.
	DeleteAll(ctx context.Context, table store.Table, ownerID string) error
}

// BlobStore is the object storage holding photo payloads.
type BlobStore interface {
	Put(ctx context.Context, path string, data []byte, contentType string) error
	Get(ctx context.Context, path string) ([]byte, error)
	Remove(ctx context.Context, paths ...string) error
}

// Notifier delivers realtime change notifications for an account. The
// returned channel receives a signal whenever any of the account's rows
// change remotely and is closed when the subscription ends.
type Notifier interface {
	Subscribe(ctx context.Context, accountID string) (<-chan struct{}, error)
}

// IsUnauthorized reports whether err is an authentication or authorization
// failure.
func IsUnauthorized(err error) bool {
	return errors.Is(err, ErrUnauthorized)
}

// IsNetwork reports whether err looks like a connectivity problem rather
// than a remote rejection: timeouts, refused connections, DNS failures and
// cancelled deadlines all count.
func IsNetwork(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrUnavailable) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return true
	}
	return false
}
