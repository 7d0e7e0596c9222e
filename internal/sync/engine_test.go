package sync

import (
	"context"
	"errors"
	"fmt"
	"sort"
	stdsync "sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/closetd/closet/internal/remote"
	"github.com/closetd/closet/internal/store"
)

// fakeRemote is an in-memory remote store, blob store and connectivity
// probe.
type fakeRemote struct {
	mu    stdsync.Mutex
	rows  map[store.Table]map[string]remote.Row
	blobs map[string][]byte
	clock time.Time

	offline      bool
	unauthorized bool
	failUpserts  int // fail this many upserts with a generic error

	upsertCalls int
	deleteCalls int
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		rows:  make(map[store.Table]map[string]remote.Row),
		blobs: make(map[string][]byte),
		clock: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (f *fakeRemote) check() error {
	if f.unauthorized {
		return remote.ErrUnauthorized
	}
	if f.offline {
		return remote.ErrUnavailable
	}
	return nil
}

func (f *fakeRemote) tick() time.Time {
	f.clock = f.clock.Add(time.Second)
	return f.clock
}

func (f *fakeRemote) tableRows(table store.Table) map[string]remote.Row {
	if f.rows[table] == nil {
		f.rows[table] = make(map[string]remote.Row)
	}
	return f.rows[table]
}

func (f *fakeRemote) Upsert(ctx context.Context, row remote.Row) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upsertCalls++

	if err := f.check(); err != nil {
		return err
	}
	if f.failUpserts > 0 {
		f.failUpserts--
		return errors.New("simulated upsert failure")
	}

	meta := row.Meta()
	meta.DeletedAt = nil
	meta.ServerUpdatedAt = f.tick()
	f.tableRows(row.Table())[meta.ID] = withMeta(row, meta)
	return nil
}

func (f *fakeRemote) MarkDeleted(ctx context.Context, table store.Table, ownerID, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleteCalls++

	if err := f.check(); err != nil {
		return err
	}

	now := f.tick()
	existing, ok := f.tableRows(table)[id]
	if !ok {
		existing = emptyRow(table)
	}
	meta := existing.Meta()
	meta.OwnerID = ownerID
	meta.ID = id
	meta.DeletedAt = &now
	meta.ServerUpdatedAt = now
	f.tableRows(table)[id] = withMeta(existing, meta)
	return nil
}

func (f *fakeRemote) PullSince(ctx context.Context, table store.Table, ownerID string, cursor remote.Cursor, limit int) ([]remote.Row, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.check(); err != nil {
		return nil, err
	}

	var rows []remote.Row
	for _, row := range f.tableRows(table) {
		meta := row.Meta()
		if cursor.Less(remote.Cursor{ServerUpdatedAt: meta.ServerUpdatedAt, ID: meta.ID}) {
			rows = append(rows, row)
		}
	}
	sort.Slice(rows, func(i, j int) bool {
		a, b := rows[i].Meta(), rows[j].Meta()
		ca := remote.Cursor{ServerUpdatedAt: a.ServerUpdatedAt, ID: a.ID}
		return ca.Less(remote.Cursor{ServerUpdatedAt: b.ServerUpdatedAt, ID: b.ID})
	})
	if len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, nil
}

func (f *fakeRemote) PhotoStoragePath(ctx context.Context, ownerID, id string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.check(); err != nil {
		return "", err
	}
	if row, ok := f.tableRows(store.TablePhotos)[id]; ok {
		if photo, ok := row.(remote.PhotoRow); ok {
			return photo.StoragePath, nil
		}
	}
	return "", nil
}

func (f *fakeRemote) PhotoStoragePaths(ctx context.Context, ownerID string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var paths []string
	for _, row := range f.tableRows(store.TablePhotos) {
		if photo, ok := row.(remote.PhotoRow); ok && photo.StoragePath != "" {
			paths = append(paths, photo.StoragePath)
		}
	}
	return paths, nil
}

func (f *fakeRemote) DeleteAll(ctx context.Context, table store.Table, ownerID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.check(); err != nil {
		return err
	}
	delete(f.rows, table)
	return nil
}

func (f *fakeRemote) Put(ctx context.Context, path string, data []byte, contentType string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.check(); err != nil {
		return err
	}
	f.blobs[path] = data
	return nil
}

func (f *fakeRemote) Get(ctx context.Context, path string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.check(); err != nil {
		return nil, err
	}
	data, ok := f.blobs[path]
	if !ok {
		return nil, fmt.Errorf("no blob at %s", path)
	}
	return data, nil
}

func (f *fakeRemote) Remove(ctx context.Context, paths ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.check(); err != nil {
		return err
	}
	for _, path := range paths {
		delete(f.blobs, path)
	}
	return nil
}

func (f *fakeRemote) Online() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.offline
}

func (f *fakeRemote) row(table store.Table, id string) (remote.Row, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.tableRows(table)[id]
	return row, ok
}

func withMeta(row remote.Row, meta remote.RowMeta) remote.Row {
	switch r := row.(type) {
	case remote.CategoryRow:
		r.RowMeta = meta
		return r
	case remote.ItemRow:
		r.RowMeta = meta
		return r
	case remote.OutfitRow:
		r.RowMeta = meta
		return r
	case remote.StatusLogRow:
		r.RowMeta = meta
		return r
	case remote.PhotoRow:
		r.RowMeta = meta
		return r
	default:
		panic(fmt.Sprintf("unhandled row type %T", row))
	}
}

func emptyRow(table store.Table) remote.Row {
	switch table {
	case store.TableCategories:
		return remote.CategoryRow{}
	case store.TableItems:
		return remote.ItemRow{}
	case store.TableOutfits:
		return remote.OutfitRow{}
	case store.TableStatusLogs:
		return remote.StatusLogRow{}
	default:
		return remote.PhotoRow{}
	}
}

type staticAuth struct{ id string }

func (a staticAuth) AccountID() string { return a.id }
func (a staticAuth) OnChange(func())   {}

// switchableAuth is an AuthProvider whose session can change mid-test,
// firing registered callbacks like a real auth layer.
type switchableAuth struct {
	mu  stdsync.Mutex
	id  string
	fns []func()
}

func (a *switchableAuth) AccountID() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.id
}

func (a *switchableAuth) OnChange(fn func()) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.fns = append(a.fns, fn)
}

func (a *switchableAuth) set(id string) {
	a.mu.Lock()
	a.id = id
	fns := append([]func(){}, a.fns...)
	a.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

func newTestEngine(t *testing.T, db *store.DB, f *fakeRemote, accountID string) *Engine {
	t.Helper()
	return New(Options{
		DB:           db,
		Remote:       f,
		Blobs:        f,
		Auth:         staticAuth{id: accountID},
		Connectivity: f,
		Interval:     time.Hour,
	})
}

func putTestItem(t *testing.T, db *store.DB, id, name string) store.Item {
	t.Helper()
	now := time.Now()
	item := store.Item{
		ID: id, Name: name, CategoryID: "c1", Status: store.StatusClean,
		CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, db.PutItem(context.Background(), item))
	return item
}

func TestEngine_PushUpsertEmptiesQueue(t *testing.T) {
	db := testStore(t)
	f := newFakeRemote()
	e := newTestEngine(t, db, f, "acct")
	ctx := context.Background()

	require.NoError(t, e.SetEnabled(ctx, true))
	putTestItem(t, db, "i1", "Oxford")

	pending, err := e.queue.PendingCount(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, pending, "local mutation should be captured")

	require.NoError(t, e.SyncNow(ctx, "test"))

	pending, err = e.queue.PendingCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, pending, "queue should drain after push")

	row, ok := f.row(store.TableItems, "i1")
	require.True(t, ok, "remote should hold the pushed row")
	item := row.(remote.ItemRow)
	assert.Equal(t, "Oxford", item.Name)
	assert.Equal(t, "acct", item.OwnerID)
	assert.Nil(t, item.DeletedAt)
}

func TestEngine_FirstLinkSeedsSnapshot(t *testing.T) {
	db := testStore(t)
	ctx := context.Background()

	// Data exists before sync is ever enabled.
	now := time.Now()
	require.NoError(t, db.PutCategory(ctx, store.Category{ID: "c1", Name: "Shirts", CreatedAt: now, UpdatedAt: now}))
	putTestItem(t, db, "i1", "Oxford")

	f := newFakeRemote()
	e := newTestEngine(t, db, f, "acct")
	require.NoError(t, e.SetEnabled(ctx, true))
	require.NoError(t, e.SyncNow(ctx, "test"))

	_, ok := f.row(store.TableCategories, "c1")
	assert.True(t, ok, "pre-existing category should reach the remote")
	_, ok = f.row(store.TableItems, "i1")
	assert.True(t, ok, "pre-existing item should reach the remote")

	meta, err := e.meta.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "acct", meta.LinkedAccountID)
}

func TestEngine_DeleteCollapsesToSingleRemoteCall(t *testing.T) {
	db := testStore(t)
	f := newFakeRemote()
	e := newTestEngine(t, db, f, "acct")
	ctx := context.Background()

	require.NoError(t, e.SetEnabled(ctx, true))
	putTestItem(t, db, "i1", "Oxford")
	require.NoError(t, db.DeleteItem(ctx, "i1"))

	entries, err := e.queue.ListDue(ctx, 10, time.Now())
	require.NoError(t, err)
	require.Len(t, entries, 1, "upsert and delete should collapse")
	assert.Equal(t, store.ChangeDelete, entries[0].Op)

	require.NoError(t, e.SyncNow(ctx, "test"))

	assert.Equal(t, 1, f.deleteCalls, "one remote call, not two")
	assert.Zero(t, f.upsertCalls)

	row, ok := f.row(store.TableItems, "i1")
	require.True(t, ok)
	assert.NotNil(t, row.Meta().DeletedAt, "remote row should be tombstoned")
}

func TestEngine_PushIsIdempotent(t *testing.T) {
	db := testStore(t)
	f := newFakeRemote()
	e := newTestEngine(t, db, f, "acct")
	ctx := context.Background()

	require.NoError(t, e.SetEnabled(ctx, true))
	item := putTestItem(t, db, "i1", "Oxford")
	require.NoError(t, e.SyncNow(ctx, "test"))

	// The same entity pushed again (e.g. after a retried partial failure)
	// must leave identical remote state.
	require.NoError(t, db.PutItem(ctx, item))
	require.NoError(t, e.SyncNow(ctx, "test"))

	f.mu.Lock()
	count := len(f.rows[store.TableItems])
	f.mu.Unlock()
	assert.Equal(t, 1, count, "no duplicate rows")

	row, _ := f.row(store.TableItems, "i1")
	assert.Equal(t, "Oxford", row.(remote.ItemRow).Name)
}

func TestEngine_FailedEntryDoesNotBlockBatch(t *testing.T) {
	db := testStore(t)
	f := newFakeRemote()
	e := newTestEngine(t, db, f, "acct")
	ctx := context.Background()

	require.NoError(t, e.SetEnabled(ctx, true))
	putTestItem(t, db, "i1", "First")
	putTestItem(t, db, "i2", "Second")

	f.mu.Lock()
	f.failUpserts = 1
	f.mu.Unlock()

	require.NoError(t, e.SyncNow(ctx, "test"))

	pending, err := e.queue.PendingCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, pending, "only the failed entry should remain")

	entries, err := e.queue.ListDue(ctx, 10, time.Now().Add(2*time.Second))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, 1, entries[0].RetryCount)
	assert.Contains(t, entries[0].LastError, "simulated")
}

func TestEngine_PhotoBlobUploadedWithRow(t *testing.T) {
	db := testStore(t)
	f := newFakeRemote()
	e := newTestEngine(t, db, f, "acct")
	ctx := context.Background()

	require.NoError(t, e.SetEnabled(ctx, true))
	putTestItem(t, db, "i1", "Oxford")
	photo := store.Photo{
		ID: "p1", ItemID: "i1", Data: []byte{0xff, 0xd8}, MimeType: "image/jpeg",
		CreatedAt: time.Now(),
	}
	require.NoError(t, db.PutPhoto(ctx, photo))

	require.NoError(t, e.SyncNow(ctx, "test"))

	row, ok := f.row(store.TablePhotos, "p1")
	require.True(t, ok)
	path := row.(remote.PhotoRow).StoragePath
	assert.Equal(t, "acct/i1/p1.jpg", path)

	f.mu.Lock()
	blob := f.blobs[path]
	f.mu.Unlock()
	assert.Equal(t, []byte{0xff, 0xd8}, blob)

	// Deleting the photo removes the blob before tombstoning the row.
	require.NoError(t, db.DeletePhoto(ctx, "p1", ""))
	require.NoError(t, e.SyncNow(ctx, "test"))

	f.mu.Lock()
	_, blobLeft := f.blobs[path]
	f.mu.Unlock()
	assert.False(t, blobLeft, "blob should be removed on delete")
}

func TestEngine_AuthFailureStopsRuntime(t *testing.T) {
	db := testStore(t)
	f := newFakeRemote()
	e := newTestEngine(t, db, f, "acct")
	ctx := context.Background()

	f.mu.Lock()
	f.unauthorized = true
	f.mu.Unlock()

	require.NoError(t, e.SetEnabled(ctx, true))
	require.NoError(t, e.Start(ctx))
	putTestItem(t, db, "i1", "Oxford")

	err := e.SyncNow(ctx, "test")
	require.Error(t, err)
	assert.True(t, remote.IsUnauthorized(err))

	e.mu.Lock()
	running := e.running
	e.mu.Unlock()
	assert.False(t, running, "runtime should stop on auth failure")

	// Capture stays armed: changes made while paused still queue.
	putTestItem(t, db, "i2", "Second")
	pending, err := e.queue.PendingCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, pending)
}

func TestEngine_AuthFailureSurfacesError(t *testing.T) {
	db := testStore(t)
	f := newFakeRemote()
	e := newTestEngine(t, db, f, "acct")
	ctx := context.Background()

	f.mu.Lock()
	f.unauthorized = true
	f.mu.Unlock()

	require.NoError(t, e.SetEnabled(ctx, true))
	putTestItem(t, db, "i1", "Oxford")

	err := e.SyncNow(ctx, "test")
	require.Error(t, err)
	require.True(t, remote.IsUnauthorized(err))

	st, err := e.State(ctx)
	require.NoError(t, err)
	assert.Equal(t, StatusError, st.Status, "rejected session must be visible in status")
	assert.NotEmpty(t, st.LastError)

	// A later clean cycle clears the recorded failure.
	f.mu.Lock()
	f.unauthorized = false
	f.mu.Unlock()

	require.NoError(t, e.SyncNow(ctx, "test"))
	st, err = e.State(ctx)
	require.NoError(t, err)
	assert.Equal(t, StatusIdle, st.Status)
	assert.Empty(t, st.LastError)
}

func TestEngine_AuthChangeResumesRuntime(t *testing.T) {
	db := testStore(t)
	f := newFakeRemote()
	auth := &switchableAuth{id: "acct"}
	e := New(Options{
		DB:           db,
		Remote:       f,
		Blobs:        f,
		Auth:         auth,
		Connectivity: f,
		Interval:     time.Hour,
	})
	ctx := context.Background()
	defer e.Stop()

	f.mu.Lock()
	f.unauthorized = true
	f.mu.Unlock()

	require.NoError(t, e.SetEnabled(ctx, true))
	require.NoError(t, e.Start(ctx))
	putTestItem(t, db, "i1", "Oxford")

	err := e.SyncNow(ctx, "test")
	require.Error(t, err)
	require.True(t, remote.IsUnauthorized(err))

	e.mu.Lock()
	running := e.running
	e.mu.Unlock()
	require.False(t, running, "runtime should stop on auth failure")

	// A fresh session restarts the runtime, and its startup cycle drains
	// the queue that accumulated while halted.
	f.mu.Lock()
	f.unauthorized = false
	f.mu.Unlock()
	auth.set("acct")

	require.Eventually(t, func() bool {
		pending, err := e.queue.PendingCount(ctx)
		return err == nil && pending == 0
	}, 5*time.Second, 10*time.Millisecond, "startup cycle should push the queued item")

	e.mu.Lock()
	running = e.running
	e.mu.Unlock()
	assert.True(t, running, "runtime should be running again after re-auth")

	f.mu.Lock()
	_, pushed := f.rows[store.TableItems]["i1"]
	f.mu.Unlock()
	assert.True(t, pushed)
}

func TestEngine_AccountGuardRejectsMismatch(t *testing.T) {
	db := testStore(t)
	f := newFakeRemote()
	e := newTestEngine(t, db, f, "account-b")
	ctx := context.Background()

	require.NoError(t, e.meta.Link(ctx, "account-a"))

	err := e.SetEnabled(ctx, true)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAccountMismatch)

	meta, loadErr := e.meta.Load(ctx)
	require.NoError(t, loadErr)
	assert.Equal(t, "account-a", meta.LinkedAccountID, "link must not change")
	assert.False(t, meta.Enabled, "enable must not stick")
}

func TestEngine_CycleRejectsMismatchedAccount(t *testing.T) {
	db := testStore(t)
	f := newFakeRemote()
	e := newTestEngine(t, db, f, "account-b")
	ctx := context.Background()

	require.NoError(t, e.meta.Link(ctx, "account-a"))
	require.NoError(t, e.meta.SetEnabled(ctx, true))

	err := e.SyncNow(ctx, "test")
	assert.ErrorIs(t, err, ErrAccountMismatch)
}

func TestEngine_PullAppliesRemoteRowsMuted(t *testing.T) {
	db := testStore(t)
	f := newFakeRemote()
	e := newTestEngine(t, db, f, "acct")
	ctx := context.Background()

	// Remote state from another device.
	require.NoError(t, f.Upsert(ctx, remote.CategoryRow{
		RowMeta: remote.RowMeta{OwnerID: "acct", ID: "c1"},
		Name:    "Shirts", CreatedAt: time.Now(), UpdatedAt: time.Now(),
	}))
	require.NoError(t, f.Upsert(ctx, remote.ItemRow{
		RowMeta: remote.RowMeta{OwnerID: "acct", ID: "i1"},
		Name:    "Remote Oxford", CategoryID: "c1", Status: "clean",
		CreatedAt: time.Now(), UpdatedAt: time.Now(),
	}))
	require.NoError(t, f.Put(ctx, "acct/i1/p1.png", []byte{0x89, 0x50}, "image/png"))
	require.NoError(t, f.Upsert(ctx, remote.PhotoRow{
		RowMeta: remote.RowMeta{OwnerID: "acct", ID: "p1"},
		ItemID:  "i1", StoragePath: "acct/i1/p1.png", MimeType: "image/png",
		CreatedAt: time.Now(),
	}))

	require.NoError(t, e.SetEnabled(ctx, true))
	require.NoError(t, e.SyncNow(ctx, "test"))

	item, err := db.GetItem(ctx, "i1")
	require.NoError(t, err)
	assert.Equal(t, "Remote Oxford", item.Name)

	photo, err := db.GetPhoto(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, []byte{0x89, 0x50}, photo.Data, "blob should be downloaded")

	pending, err := e.queue.PendingCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, pending, "applying remote rows must not re-enqueue")
}

func TestEngine_PullAppliesTombstoneCascade(t *testing.T) {
	db := testStore(t)
	f := newFakeRemote()
	e := newTestEngine(t, db, f, "acct")
	ctx := context.Background()

	require.NoError(t, e.SetEnabled(ctx, true))
	putTestItem(t, db, "i1", "Oxford")
	photo := store.Photo{ID: "p1", ItemID: "i1", Data: []byte{1}, MimeType: "image/jpeg", CreatedAt: time.Now()}
	require.NoError(t, db.PutPhoto(ctx, photo))
	require.NoError(t, e.SyncNow(ctx, "test"))

	// Another device deletes the item remotely.
	require.NoError(t, f.MarkDeleted(ctx, store.TableItems, "acct", "i1"))
	require.NoError(t, e.SyncNow(ctx, "test"))

	_, err := db.GetItem(ctx, "i1")
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = db.GetPhoto(ctx, "p1")
	assert.ErrorIs(t, err, store.ErrNotFound, "cascade should remove the photo locally")
}

func TestEngine_PullSkipsContestedEntity(t *testing.T) {
	db := testStore(t)
	f := newFakeRemote()
	e := newTestEngine(t, db, f, "acct")
	ctx := context.Background()

	// Remote has i1 and a later i2.
	require.NoError(t, f.Upsert(ctx, remote.ItemRow{
		RowMeta: remote.RowMeta{OwnerID: "acct", ID: "i1"},
		Name:    "Remote Version", CategoryID: "c1", Status: "clean",
		CreatedAt: time.Now(), UpdatedAt: time.Now(),
	}))
	require.NoError(t, f.Upsert(ctx, remote.ItemRow{
		RowMeta: remote.RowMeta{OwnerID: "acct", ID: "i2"},
		Name:    "Later Row", CategoryID: "c1", Status: "clean",
		CreatedAt: time.Now(), UpdatedAt: time.Now(),
	}))

	// A local edit of i1 is still pending.
	local := putTestItem(t, db, "i1", "Local Version")
	_, err := e.queue.Enqueue(ctx, store.TableItems, "i1", store.ChangeUpsert, local.UpdatedAt)
	require.NoError(t, err)

	require.NoError(t, e.pull(ctx, "acct"))

	item, err := db.GetItem(ctx, "i1")
	require.NoError(t, err)
	assert.Equal(t, "Local Version", item.Name, "pending local write must win")

	_, err = db.GetItem(ctx, "i2")
	assert.ErrorIs(t, err, store.ErrNotFound, "page consumption stops at the contested row")

	meta, err := e.meta.Load(ctx)
	require.NoError(t, err)
	assert.True(t, meta.Cursors[store.TableItems].IsZero(), "cursor must not advance past the contested row")

	// Once the pending entry is pushed, the next pull converges to the
	// remote value (it is newer after our own push round-trips).
	require.NoError(t, e.push(ctx, "acct"))
	require.NoError(t, e.pull(ctx, "acct"))

	item, err = db.GetItem(ctx, "i1")
	require.NoError(t, err)
	assert.Equal(t, "Local Version", item.Name, "pushed value is now the remote value")
	_, err = db.GetItem(ctx, "i2")
	assert.NoError(t, err, "later rows apply once the conflict clears")
}

func TestEngine_CursorMonotonic(t *testing.T) {
	db := testStore(t)
	f := newFakeRemote()
	e := newTestEngine(t, db, f, "acct")
	ctx := context.Background()

	require.NoError(t, e.SetEnabled(ctx, true))

	require.NoError(t, f.Upsert(ctx, remote.ItemRow{
		RowMeta: remote.RowMeta{OwnerID: "acct", ID: "i1"},
		Name:    "One", CategoryID: "c1", Status: "clean",
		CreatedAt: time.Now(), UpdatedAt: time.Now(),
	}))
	require.NoError(t, e.SyncNow(ctx, "test"))

	meta, err := e.meta.Load(ctx)
	require.NoError(t, err)
	first := meta.Cursors[store.TableItems]
	require.False(t, first.IsZero())

	// No new rows: cursor stays put.
	require.NoError(t, e.SyncNow(ctx, "test"))
	meta, err = e.meta.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, first, meta.Cursors[store.TableItems])

	// New rows: cursor strictly advances.
	require.NoError(t, f.Upsert(ctx, remote.ItemRow{
		RowMeta: remote.RowMeta{OwnerID: "acct", ID: "i2"},
		Name:    "Two", CategoryID: "c1", Status: "clean",
		CreatedAt: time.Now(), UpdatedAt: time.Now(),
	}))
	require.NoError(t, e.SyncNow(ctx, "test"))
	meta, err = e.meta.Load(ctx)
	require.NoError(t, err)
	assert.True(t, first.Less(meta.Cursors[store.TableItems]))
}

func TestEngine_NetworkFailureReportsOffline(t *testing.T) {
	db := testStore(t)
	f := newFakeRemote()
	e := newTestEngine(t, db, f, "acct")
	ctx := context.Background()

	require.NoError(t, e.SetEnabled(ctx, true))
	require.NoError(t, e.SyncNow(ctx, "test")) // link while online

	f.mu.Lock()
	f.offline = true
	f.mu.Unlock()

	err := e.SyncNow(ctx, "test")
	require.Error(t, err)
	assert.True(t, remote.IsNetwork(err))

	st, err := e.State(ctx)
	require.NoError(t, err)
	assert.Equal(t, StatusOffline, st.Status)
	assert.Empty(t, st.LastError, "network failures are not hard errors")
}

func TestEngine_StateDerivation(t *testing.T) {
	db := testStore(t)
	f := newFakeRemote()
	ctx := context.Background()

	// Disabled.
	e := newTestEngine(t, db, f, "acct")
	st, err := e.State(ctx)
	require.NoError(t, err)
	assert.Equal(t, StatusDisabled, st.Status)

	// Enabled but signed out: paused.
	require.NoError(t, e.meta.SetEnabled(ctx, true))
	paused := New(Options{DB: db, Remote: f, Blobs: f, Auth: staticAuth{}, Connectivity: f})
	st, err = paused.State(ctx)
	require.NoError(t, err)
	assert.Equal(t, StatusPaused, st.Status)
	assert.False(t, st.Authenticated)

	// Enabled, signed in, online, no error: idle.
	st, err = e.State(ctx)
	require.NoError(t, err)
	assert.Equal(t, StatusIdle, st.Status)

	// A recorded cycle error surfaces as error status.
	require.NoError(t, e.meta.RecordError(ctx, "kaboom"))
	st, err = e.State(ctx)
	require.NoError(t, err)
	assert.Equal(t, StatusError, st.Status)
	assert.Equal(t, "kaboom", st.LastError)
}

func TestEngine_SingleFlightCoalesces(t *testing.T) {
	db := testStore(t)
	f := newFakeRemote()
	e := newTestEngine(t, db, f, "acct")
	ctx := context.Background()

	require.NoError(t, e.SetEnabled(ctx, true))
	for i := 0; i < 20; i++ {
		putTestItem(t, db, fmt.Sprintf("i%d", i), fmt.Sprintf("Item %d", i))
	}

	var wg stdsync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = e.SyncNow(ctx, "concurrent")
		}()
	}
	wg.Wait()

	pending, err := e.queue.PendingCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, pending)

	f.mu.Lock()
	count := len(f.rows[store.TableItems])
	f.mu.Unlock()
	assert.Equal(t, 20, count)
}

func TestEngine_WipeRemote(t *testing.T) {
	db := testStore(t)
	f := newFakeRemote()
	e := newTestEngine(t, db, f, "acct")
	ctx := context.Background()

	require.NoError(t, e.SetEnabled(ctx, true))
	putTestItem(t, db, "i1", "Oxford")
	photo := store.Photo{ID: "p1", ItemID: "i1", Data: []byte{1}, MimeType: "image/jpeg", CreatedAt: time.Now()}
	require.NoError(t, db.PutPhoto(ctx, photo))
	require.NoError(t, e.SyncNow(ctx, "test"))

	require.NoError(t, e.WipeRemote(ctx))

	f.mu.Lock()
	rowsLeft := len(f.rows[store.TableItems]) + len(f.rows[store.TablePhotos])
	blobsLeft := len(f.blobs)
	f.mu.Unlock()
	assert.Zero(t, rowsLeft)
	assert.Zero(t, blobsLeft)

	meta, err := e.meta.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, meta.Cursors, "cursors reset after wipe")
}

func TestEngine_WipeRemoteDisablesSyncAndClearsQueue(t *testing.T) {
	db := testStore(t)
	f := newFakeRemote()
	e := newTestEngine(t, db, f, "acct")
	ctx := context.Background()

	require.NoError(t, e.SetEnabled(ctx, true))
	putTestItem(t, db, "i1", "Oxford")

	pending, err := e.queue.PendingCount(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, pending)

	require.NoError(t, e.WipeRemote(ctx))

	meta, err := e.meta.Load(ctx)
	require.NoError(t, err)
	assert.False(t, meta.Enabled, "wipe must disable sync")

	pending, err = e.queue.PendingCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, pending, "wipe must drop pending entries")

	// Capture is disarmed: new local changes stay out of the queue.
	putTestItem(t, db, "i2", "Second")
	pending, err = e.queue.PendingCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, pending)

	// A later cycle must not re-push the wiped data.
	require.NoError(t, e.SyncNow(ctx, "test"))
	f.mu.Lock()
	count := len(f.rows[store.TableItems])
	f.mu.Unlock()
	assert.Zero(t, count, "remote should stay empty after wipe")
}
