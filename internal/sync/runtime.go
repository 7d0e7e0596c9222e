package sync

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	stdsync "sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/closetd/closet/internal/remote"
	"github.com/closetd/closet/internal/store"
)

// ErrAccountMismatch is returned when sync is enabled (or remote data
// wiped) under an account that differs from the one this device dataset is
// linked to. Switching accounts requires an explicit link reset, never a
// silent relink.
var ErrAccountMismatch = errors.New("sync: device is linked to a different account")

// ErrNotAuthenticated is returned by operations that need a signed-in
// account.
var ErrNotAuthenticated = errors.New("sync: not signed in")

// Options configures an Engine. DB, Remote, Blobs, Auth and Connectivity
// are required; Realtime and Logger are optional.
type Options struct {
	DB           *store.DB
	Remote       remote.Store
	Blobs        remote.BlobStore
	Realtime     remote.Notifier
	Auth         AuthProvider
	Connectivity Connectivity
	Logger       *log.Logger

	// Interval overrides the periodic cycle cadence. Zero means
	// SyncInterval.
	Interval time.Duration
}

// Engine owns the sync runtime: the queue, the meta record, the push and
// pull pipelines, and the status state machine. At most one cycle is in
// flight at any time; every trigger funnels into that single cycle.
type Engine struct {
	db       *store.DB
	queue    *Queue
	meta     *MetaStore
	rows     remote.Store
	blobs    remote.BlobStore
	realtime remote.Notifier
	auth     AuthProvider
	net      Connectivity
	logger   *log.Logger
	interval time.Duration

	group      singleflight.Group
	muted      atomic.Bool // remote-apply in progress; suppress capture
	capture    atomic.Bool // sync enabled; mutations feed the queue
	syncing    atomic.Bool // a cycle is in flight
	authPaused atomic.Bool // runtime halted by a rejected session

	kick chan struct{} // coalesced queue-change wakeups

	mu      stdsync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      stdsync.WaitGroup
	subs    map[int]chan State
	nextSub int
}

// New wires an Engine to its collaborators and installs it as the store's
// change notifier. The engine captures nothing until Start or
// RefreshCapture loads the enabled flag.
func New(opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	interval := opts.Interval
	if interval <= 0 {
		interval = SyncInterval
	}

	e := &Engine{
		db:       opts.DB,
		queue:    NewQueue(opts.DB.Raw()),
		meta:     NewMetaStore(opts.DB.Raw()),
		rows:     opts.Remote,
		blobs:    opts.Blobs,
		realtime: opts.Realtime,
		auth:     opts.Auth,
		net:      opts.Connectivity,
		logger:   logger,
		interval: interval,
		kick:     make(chan struct{}, 1),
		subs:     make(map[int]chan State),
	}

	e.queue.SetOnChange(e.wake)
	opts.DB.SetNotifier(e)
	opts.Auth.OnChange(e.authChanged)
	return e
}

// Queue exposes the engine's queue for inspection.
func (e *Engine) Queue() *Queue {
	return e.queue
}

// EntityChanged implements store.ChangeNotifier. Local mutations are
// captured into the queue unless the engine is applying remote rows or
// sync is disabled.
func (e *Engine) EntityChanged(table store.Table, entityID string, op store.ChangeOp, changedAt time.Time) {
	if e.muted.Load() || !e.capture.Load() {
		return
	}
	if _, err := e.queue.Enqueue(context.Background(), table, entityID, op, changedAt); err != nil {
		e.logger.Printf("failed to capture %s %s/%s: %v", op, table, entityID, err)
	}
}

// RefreshCapture loads the enabled flag and arms or disarms mutation
// capture accordingly. Start does this implicitly; short-lived commands
// that mutate the store without running the full runtime call it directly.
func (e *Engine) RefreshCapture(ctx context.Context) error {
	meta, err := e.meta.Load(ctx)
	if err != nil {
		return err
	}
	e.capture.Store(meta.Enabled)
	return nil
}

// Start launches the background runtime: the periodic ticker, the
// queue-change listener, and the realtime subscription. It requests an
// initial cycle immediately. Start is idempotent.
func (e *Engine) Start(ctx context.Context) error {
	if err := e.RefreshCapture(ctx); err != nil {
		return err
	}

	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return nil
	}
	runCtx, cancel := context.WithCancel(context.Background())
	e.running = true
	e.cancel = cancel
	e.mu.Unlock()
	e.authPaused.Store(false)

	e.wg.Add(1)
	go e.run(runCtx)

	if e.realtime != nil {
		e.wg.Add(1)
		go e.watchRealtime(runCtx)
	}

	e.requestSync("startup")
	return nil
}

// Stop cancels the background runtime and waits for it to finish. The
// mutation capture flag is left alone: local changes made while stopped
// still queue for the next run.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	e.running = false
	cancel := e.cancel
	e.mu.Unlock()

	cancel()
	e.wg.Wait()
}

// run is the trigger loop: periodic ticks, connectivity-regain detection,
// and coalesced queue-change wakeups all request a cycle.
func (e *Engine) run(ctx context.Context) {
	defer e.wg.Done()

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	wasOnline := e.net.Online()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			online := e.net.Online()
			if online && !wasOnline {
				e.requestSync("online")
			} else if online {
				e.requestSync("interval")
			}
			wasOnline = online
		case <-e.kick:
			e.requestSync("queue-change")
		}
	}
}

// watchRealtime keeps a realtime subscription alive for the authenticated
// account, reconnecting with backoff, and requests a cycle per
// notification.
func (e *Engine) watchRealtime(ctx context.Context) {
	defer e.wg.Done()

	delay := retryBase
	for ctx.Err() == nil {
		accountID := e.auth.AccountID()
		if accountID == "" {
			if !sleep(ctx, 5*time.Second) {
				return
			}
			continue
		}

		events, err := e.realtime.Subscribe(ctx, accountID)
		if err != nil {
			if ctx.Err() == nil {
				e.logger.Printf("realtime subscribe failed: %v", err)
			}
			if !sleep(ctx, delay) {
				return
			}
			delay = min(delay*2, retryMax)
			continue
		}
		delay = retryBase

		for range events {
			e.requestSync("realtime")
		}
	}
}

// wake coalesces queue-change notifications into one pending trigger.
func (e *Engine) wake() {
	select {
	case e.kick <- struct{}{}:
	default:
	}
}

// authChanged reacts to authentication-state changes. Signing out does
// nothing here: the next cycle's precondition check handles it. A fresh
// session restarts a runtime that a rejected session halted; otherwise it
// just requests a cycle so re-auth syncs promptly.
func (e *Engine) authChanged() {
	if e.auth.AccountID() == "" {
		return
	}
	if e.authPaused.CompareAndSwap(true, false) {
		if err := e.Start(context.Background()); err != nil {
			e.logger.Printf("failed to resume sync after re-auth: %v", err)
		}
		return
	}
	e.requestSync("auth-change")
}

// requestSync asks for a cycle without blocking the caller. It is a no-op
// unless the runtime is started; failures are captured into status and the
// log, never surfaced to background triggers.
func (e *Engine) requestSync(reason string) {
	e.mu.Lock()
	running := e.running
	e.mu.Unlock()
	if !running {
		return
	}

	go func() {
		if err := e.SyncNow(context.Background(), reason); err != nil && !remote.IsNetwork(err) {
			e.logger.Printf("sync (%s): %v", reason, err)
		}
	}()
}

// SyncNow runs a sync cycle, or joins the one already in flight: all
// concurrent callers share a single cycle and its result.
func (e *Engine) SyncNow(ctx context.Context, reason string) error {
	_, err, _ := e.group.Do("cycle", func() (any, error) {
		return nil, e.runCycle(ctx, reason)
	})
	return err
}

// runCycle is the single-flight body: push, then pull, then bookkeeping.
// It is a no-op while sync is disabled or no session is present.
func (e *Engine) runCycle(ctx context.Context, reason string) error {
	meta, err := e.meta.Load(ctx)
	if err != nil {
		return err
	}
	if !meta.Enabled {
		return nil
	}

	accountID := e.auth.AccountID()
	if accountID == "" {
		return nil
	}

	if err := e.ensureLinked(ctx, meta, accountID); err != nil {
		e.recordFailure(ctx, err)
		return err
	}

	e.syncing.Store(true)
	e.publish()
	defer func() {
		e.syncing.Store(false)
		e.publish()
	}()

	err = e.push(ctx, accountID)
	if err == nil {
		err = e.pull(ctx, accountID)
	}

	switch {
	case err == nil:
		if err := e.meta.RecordCycle(ctx, time.Now(), ""); err != nil {
			return err
		}
		e.logger.Printf("sync cycle complete (%s)", reason)
		return nil
	case remote.IsUnauthorized(err):
		// Stop the runtime instead of hammering a dead session; an
		// auth-state change or a fresh Start resumes. Capture stays armed
		// so local changes keep queuing meanwhile, and the failure is
		// recorded so status and lastError reflect it.
		e.logger.Printf("sync cycle aborted (%s): session rejected: %v", reason, err)
		e.recordFailure(ctx, err)
		e.authPaused.Store(true)
		e.Stop()
		return err
	case remote.IsNetwork(err):
		// Reported as offline through status derivation, not as an error.
		e.logger.Printf("sync offline (%s): %v", reason, err)
		return err
	default:
		e.recordFailure(ctx, err)
		return err
	}
}

// ensureLinked enforces the one-account-per-device invariant. The first
// authenticated cycle links the device and seeds the queue from the full
// local snapshot; any later account mismatch is rejected outright.
func (e *Engine) ensureLinked(ctx context.Context, meta Meta, accountID string) error {
	if meta.LinkedAccountID == accountID {
		return nil
	}
	if meta.LinkedAccountID != "" {
		return fmt.Errorf("%w: linked=%s current=%s", ErrAccountMismatch, meta.LinkedAccountID, accountID)
	}

	// Seed before linking: if seeding is interrupted, the next cycle
	// repeats it (enqueue collapses duplicates), whereas linking first
	// could strand a partial snapshot.
	if err := e.queue.SeedFromStore(ctx, e.db); err != nil {
		return fmt.Errorf("failed to seed queue: %w", err)
	}
	if err := e.meta.Link(ctx, accountID); err != nil {
		return err
	}

	e.logger.Printf("linked device to account %s", accountID)
	return nil
}

// SetEnabled flips the sync feature flag. Enabling under an account that
// differs from the existing link fails without touching any state.
func (e *Engine) SetEnabled(ctx context.Context, enabled bool) error {
	if !enabled {
		if err := e.meta.SetEnabled(ctx, false); err != nil {
			return err
		}
		e.capture.Store(false)
		e.publish()
		return nil
	}

	meta, err := e.meta.Load(ctx)
	if err != nil {
		return err
	}
	if accountID := e.auth.AccountID(); accountID != "" && meta.LinkedAccountID != "" && meta.LinkedAccountID != accountID {
		return fmt.Errorf("%w: linked=%s current=%s", ErrAccountMismatch, meta.LinkedAccountID, accountID)
	}

	if err := e.meta.SetEnabled(ctx, true); err != nil {
		return err
	}
	e.capture.Store(true)
	e.publish()
	e.requestSync("enabled")
	return nil
}

// ResetLink disables sync and severs the account link so the device can be
// linked to a different account. Local entities are kept; the pending
// queue and pull cursors are discarded.
func (e *Engine) ResetLink(ctx context.Context) error {
	if err := e.queue.Clear(ctx); err != nil {
		return err
	}
	if err := e.meta.Unlink(ctx); err != nil {
		return err
	}
	e.capture.Store(false)
	e.publish()
	return nil
}

// ClearQueue discards all pending operations without pushing them.
func (e *Engine) ClearQueue(ctx context.Context) error {
	if err := e.queue.Clear(ctx); err != nil {
		return err
	}
	e.publish()
	return nil
}

// WipeRemote deletes every remote row and blob belonging to the account,
// blobs first so storage never outlives its metadata. Sync is disabled and
// the pending queue cleared before anything is deleted, and any in-flight
// cycle is joined first, so nothing re-pushes local data after the wipe.
func (e *Engine) WipeRemote(ctx context.Context) error {
	accountID := e.auth.AccountID()
	if accountID == "" {
		return ErrNotAuthenticated
	}

	meta, err := e.meta.Load(ctx)
	if err != nil {
		return err
	}
	if meta.LinkedAccountID != "" && meta.LinkedAccountID != accountID {
		return fmt.Errorf("%w: linked=%s current=%s", ErrAccountMismatch, meta.LinkedAccountID, accountID)
	}

	if err := e.meta.SetEnabled(ctx, false); err != nil {
		return err
	}
	e.capture.Store(false)

	// Join the cycle already in flight, if any. New cycles see the
	// disabled flag and no-op, so the deletes below cannot race a push.
	_, _, _ = e.group.Do("cycle", func() (any, error) { return nil, nil })

	if err := e.queue.Clear(ctx); err != nil {
		return err
	}

	paths, err := e.rows.PhotoStoragePaths(ctx, accountID)
	if err != nil {
		return err
	}
	for len(paths) > 0 {
		batch := paths
		if len(batch) > blobRemoveBatch {
			batch = batch[:blobRemoveBatch]
		}
		if err := e.blobs.Remove(ctx, batch...); err != nil {
			return fmt.Errorf("failed to remove photo blobs: %w", err)
		}
		paths = paths[len(batch):]
	}

	tables := store.Tables()
	for i := len(tables) - 1; i >= 0; i-- {
		if err := e.rows.DeleteAll(ctx, tables[i], accountID); err != nil {
			return err
		}
	}

	if err := e.meta.Reset(ctx); err != nil {
		return err
	}
	e.publish()
	return nil
}

// State derives the current externally observable snapshot.
func (e *Engine) State(ctx context.Context) (State, error) {
	meta, err := e.meta.Load(ctx)
	if err != nil {
		return State{}, err
	}
	pending, err := e.queue.PendingCount(ctx)
	if err != nil {
		return State{}, err
	}

	authenticated := e.auth.AccountID() != ""
	return State{
		Enabled:       meta.Enabled,
		Authenticated: authenticated,
		Status:        e.deriveStatus(meta, authenticated),
		PendingCount:  pending,
		LastSyncedAt:  meta.LastSyncedAt,
		LastError:     meta.LastError,
	}, nil
}

func (e *Engine) deriveStatus(meta Meta, authenticated bool) Status {
	switch {
	case !meta.Enabled:
		return StatusDisabled
	case !authenticated:
		return StatusPaused
	case e.syncing.Load():
		return StatusSyncing
	case !e.net.Online():
		return StatusOffline
	case meta.LastError != "":
		return StatusError
	default:
		return StatusIdle
	}
}

// Subscribe registers an observer for state snapshots. Snapshots are
// dropped rather than blocking a slow observer. The returned cancel
// function unregisters and closes the channel.
func (e *Engine) Subscribe() (<-chan State, func()) {
	ch := make(chan State, 4)

	e.mu.Lock()
	id := e.nextSub
	e.nextSub++
	e.subs[id] = ch
	e.mu.Unlock()

	cancel := func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		if _, ok := e.subs[id]; ok {
			delete(e.subs, id)
			close(ch)
		}
	}
	return ch, cancel
}

// publish pushes a fresh state snapshot to every observer.
func (e *Engine) publish() {
	st, err := e.State(context.Background())
	if err != nil {
		e.logger.Printf("failed to derive sync state: %v", err)
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	for _, ch := range e.subs {
		select {
		case ch <- st:
		default:
		}
	}
}

func (e *Engine) recordFailure(ctx context.Context, cause error) {
	if err := e.meta.RecordError(ctx, cause.Error()); err != nil {
		e.logger.Printf("failed to record sync error: %v", err)
	}
	e.publish()
}

// sleep waits for d or until ctx is cancelled; it reports whether the full
// duration elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
