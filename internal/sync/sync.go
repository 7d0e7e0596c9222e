// Package sync reconciles the local store with the remote account store.
//
// It owns three pieces of durable state inside the local database: the
// pending-operation queue (sync_queue), the per-device metadata record
// (sync_meta), and the per-table pull cursors stored inside that record.
// Everything else (status, pending count) is derived on demand.
//
// The engine never blocks local reads or writes. Local mutations are
// captured through the store's ChangeNotifier hook, collapsed into the
// queue, and drained by background cycles. Remote changes are pulled
// incrementally per table and applied with capture muted so they do not
// feed back into the queue.
package sync

import (
	"time"

	"github.com/closetd/closet/internal/store"
)

// Cadence and batch limits for sync cycles.
const (
	// SyncInterval is the periodic cycle cadence while the engine runs.
	SyncInterval = 2 * time.Minute

	// pushBatchSize caps how many due queue entries one push turn drains.
	pushBatchSize = 100

	// maxPushTurns bounds a push phase even if entries keep re-queuing.
	maxPushTurns = 40

	// pullBatchSize is the page size for incremental pulls.
	pullBatchSize = 200

	// maxPullPages bounds one table's pull loop within a single cycle.
	maxPullPages = 30

	// blobRemoveBatch caps how many storage paths one remove call carries.
	blobRemoveBatch = 100
)

// Retry backoff for failed queue entries.
const (
	retryBase = time.Second
	retryMax  = 60 * time.Second
)

// Status is the externally observable engine state. It is always derived
// from enabled/auth/connectivity/error inputs, never persisted.
type Status string

const (
	StatusDisabled Status = "disabled" // feature flag off
	StatusPaused   Status = "paused"   // enabled, no authenticated session
	StatusOffline  Status = "offline"  // enabled, authenticated, no network
	StatusIdle     Status = "idle"     // at rest after a clean cycle
	StatusSyncing  Status = "syncing"  // a cycle is in flight
	StatusError    Status = "error"    // last cycle failed (non-auth, non-network)
)

// State is the snapshot published to observers after every transition.
type State struct {
	Enabled       bool
	Authenticated bool
	Status        Status
	PendingCount  int
	LastSyncedAt  time.Time
	LastError     string
}

// AuthProvider supplies the current authenticated account. An empty
// account id means signed out. OnChange registers a callback invoked
// whenever the authentication state changes; the engine uses it to sync
// promptly after sign-in and to resume a runtime halted by a rejected
// session.
type AuthProvider interface {
	AccountID() string
	OnChange(fn func())
}

// Connectivity reports whether the remote endpoint is reachable right now.
type Connectivity interface {
	Online() bool
}

// changedAtFor picks the queue timestamp for a seeded entity: the last
// local modification when the table tracks one, creation time otherwise.
func changedAtFor(table store.Table, createdAt, updatedAt time.Time) time.Time {
	switch table {
	case store.TableStatusLogs, store.TablePhotos:
		return createdAt
	default:
		return updatedAt
	}
}
