// Package remote defines the wire model of the cloud store (one soft-
// deletable row shape per synced table) and the collaborator interfaces the
// sync engine consumes: the row store, the photo blob store, and the
// realtime change notifier. HTTP implementations live in this package too;
// the engine itself depends only on the interfaces.
package remote

import (
	"time"

	"github.com/closetd/closet/internal/store"
)

// RowMeta carries the fields every remote row has: the owning account, the
// entity id, the tombstone marker, and the server-assigned ordering
// timestamp. Rows are never hard-deleted remotely; a non-nil DeletedAt is a
// tombstone retained so deletions propagate through incremental pulls.
type RowMeta struct {
	OwnerID         string     `json:"owner_id"`
	ID              string     `json:"id"`
	DeletedAt       *time.Time `json:"deleted_at"`
	ServerUpdatedAt time.Time  `json:"server_updated_at"`
}

// Row is the sealed union of per-table remote row shapes. Conversions in the
// sync engine switch over the concrete types, so adding a table without
// handling it everywhere fails to compile.
type Row interface {
	Meta() RowMeta
	Table() store.Table
}

type CategoryRow struct {
	RowMeta
	Name      string    `json:"name"`
	IsDefault bool      `json:"is_default"`
	Archived  bool      `json:"archived"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type ItemRow struct {
	RowMeta
	Name       string    `json:"name"`
	CategoryID string    `json:"category_id"`
	Status     string    `json:"status"`
	Color      string    `json:"color"`
	Brand      string    `json:"brand"`
	Size       string    `json:"size"`
	Notes      string    `json:"notes"`
	SeasonTags []string  `json:"season_tags"`
	PhotoIDs   []string  `json:"photo_ids"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type OutfitRow struct {
	RowMeta
	Name       string    `json:"name"`
	ItemIDs    []string  `json:"item_ids"`
	Occasion   string    `json:"occasion"`
	Notes      string    `json:"notes"`
	IsFavorite bool      `json:"is_favorite"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type StatusLogRow struct {
	RowMeta
	ItemID     string    `json:"item_id"`
	FromStatus string    `json:"from_status"`
	ToStatus   string    `json:"to_status"`
	ChangedAt  time.Time `json:"changed_at"`
	Reason     string    `json:"reason"`
}

type PhotoRow struct {
	RowMeta
	ItemID      string    `json:"item_id"`
	StoragePath string    `json:"storage_path"`
	MimeType    string    `json:"mime_type"`
	Width       int       `json:"width"`
	Height      int       `json:"height"`
	CreatedAt   time.Time `json:"created_at"`
}

func (r CategoryRow) Meta() RowMeta  { return r.RowMeta }
func (r ItemRow) Meta() RowMeta      { return r.RowMeta }
func (r OutfitRow) Meta() RowMeta    { return r.RowMeta }
func (r StatusLogRow) Meta() RowMeta { return r.RowMeta }
func (r PhotoRow) Meta() RowMeta     { return r.RowMeta }

func (CategoryRow) Table() store.Table  { return store.TableCategories }
func (ItemRow) Table() store.Table      { return store.TableItems }
func (OutfitRow) Table() store.Table    { return store.TableOutfits }
func (StatusLogRow) Table() store.Table { return store.TableStatusLogs }
func (PhotoRow) Table() store.Table     { return store.TablePhotos }
