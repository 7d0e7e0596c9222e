package sync

import (
	"context"
	"testing"
	"time"

	"github.com/closetd/closet/internal/remote"
	"github.com/closetd/closet/internal/store"
)

func TestMetaStore_CreatesOnFirstLoad(t *testing.T) {
	m := NewMetaStore(testStore(t).Raw())
	ctx := context.Background()

	meta, err := m.Load(ctx)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if meta.DeviceID == "" {
		t.Error("DeviceID is empty")
	}
	if meta.Enabled {
		t.Error("Enabled = true, want false")
	}
	if meta.LinkedAccountID != "" {
		t.Errorf("LinkedAccountID = %q, want empty", meta.LinkedAccountID)
	}

	// The device id is stable across loads.
	again, err := m.Load(ctx)
	if err != nil {
		t.Fatalf("second Load() failed: %v", err)
	}
	if again.DeviceID != meta.DeviceID {
		t.Errorf("DeviceID changed: %q -> %q", meta.DeviceID, again.DeviceID)
	}
}

func TestMetaStore_EnabledAndLink(t *testing.T) {
	m := NewMetaStore(testStore(t).Raw())
	ctx := context.Background()

	if err := m.SetEnabled(ctx, true); err != nil {
		t.Fatalf("SetEnabled() failed: %v", err)
	}
	if err := m.Link(ctx, "acct-1"); err != nil {
		t.Fatalf("Link() failed: %v", err)
	}

	meta, err := m.Load(ctx)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if !meta.Enabled {
		t.Error("Enabled = false, want true")
	}
	if meta.LinkedAccountID != "acct-1" {
		t.Errorf("LinkedAccountID = %q, want acct-1", meta.LinkedAccountID)
	}
}

func TestMetaStore_SaveCursorPerTable(t *testing.T) {
	m := NewMetaStore(testStore(t).Raw())
	ctx := context.Background()

	if _, err := m.Load(ctx); err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	itemCursor := remote.Cursor{ServerUpdatedAt: time.Now().UTC().Truncate(time.Millisecond), ID: "i9"}
	if err := m.SaveCursor(ctx, store.TableItems, itemCursor); err != nil {
		t.Fatalf("SaveCursor() failed: %v", err)
	}
	photoCursor := remote.Cursor{ServerUpdatedAt: time.Now().UTC().Truncate(time.Millisecond), ID: "p3"}
	if err := m.SaveCursor(ctx, store.TablePhotos, photoCursor); err != nil {
		t.Fatalf("SaveCursor() failed: %v", err)
	}

	meta, err := m.Load(ctx)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if got := meta.Cursors[store.TableItems]; got.ID != "i9" || !got.ServerUpdatedAt.Equal(itemCursor.ServerUpdatedAt) {
		t.Errorf("items cursor = %+v, want %+v", got, itemCursor)
	}
	if got := meta.Cursors[store.TablePhotos]; got.ID != "p3" {
		t.Errorf("photos cursor = %+v, want %+v", got, photoCursor)
	}
}

func TestMetaStore_RecordCycleAndReset(t *testing.T) {
	m := NewMetaStore(testStore(t).Raw())
	ctx := context.Background()

	if _, err := m.Load(ctx); err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if err := m.Link(ctx, "acct-1"); err != nil {
		t.Fatalf("Link() failed: %v", err)
	}

	syncedAt := time.Now()
	if err := m.RecordCycle(ctx, syncedAt, "kaboom"); err != nil {
		t.Fatalf("RecordCycle() failed: %v", err)
	}
	if err := m.SaveCursor(ctx, store.TableItems, remote.Cursor{ID: "i1"}); err != nil {
		t.Fatalf("SaveCursor() failed: %v", err)
	}

	meta, err := m.Load(ctx)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if meta.LastError != "kaboom" {
		t.Errorf("LastError = %q, want kaboom", meta.LastError)
	}
	if meta.LastSyncedAt.IsZero() {
		t.Error("LastSyncedAt is zero")
	}

	// Reset clears bookkeeping but keeps the link.
	if err := m.Reset(ctx); err != nil {
		t.Fatalf("Reset() failed: %v", err)
	}
	meta, err = m.Load(ctx)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if meta.LastError != "" || !meta.LastSyncedAt.IsZero() || len(meta.Cursors) != 0 {
		t.Errorf("Reset() left bookkeeping: %+v", meta)
	}
	if meta.LinkedAccountID != "acct-1" {
		t.Errorf("Reset() touched the link: %q", meta.LinkedAccountID)
	}

	// Unlink severs the link too.
	if err := m.Unlink(ctx); err != nil {
		t.Fatalf("Unlink() failed: %v", err)
	}
	meta, err = m.Load(ctx)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if meta.LinkedAccountID != "" || meta.Enabled {
		t.Errorf("Unlink() left state: %+v", meta)
	}
}
