package sync

import (
	"fmt"

	"github.com/closetd/closet/internal/remote"
	"github.com/closetd/closet/internal/store"
)

// rowMeta builds the common remote fields for a live (non-tombstone) row.
// ServerUpdatedAt is left zero; the remote store assigns it on upsert.
func rowMeta(ownerID, id string) remote.RowMeta {
	return remote.RowMeta{OwnerID: ownerID, ID: id}
}

func categoryToRow(ownerID string, c store.Category) remote.CategoryRow {
	return remote.CategoryRow{
		RowMeta:   rowMeta(ownerID, c.ID),
		Name:      c.Name,
		IsDefault: c.IsDefault,
		Archived:  c.Archived,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
}

func itemToRow(ownerID string, it store.Item) remote.ItemRow {
	return remote.ItemRow{
		RowMeta:    rowMeta(ownerID, it.ID),
		Name:       it.Name,
		CategoryID: it.CategoryID,
		Status:     string(it.Status),
		Color:      it.Color,
		Brand:      it.Brand,
		Size:       it.Size,
		Notes:      it.Notes,
		SeasonTags: it.SeasonTags,
		PhotoIDs:   it.PhotoIDs,
		CreatedAt:  it.CreatedAt,
		UpdatedAt:  it.UpdatedAt,
	}
}

func outfitToRow(ownerID string, o store.Outfit) remote.OutfitRow {
	return remote.OutfitRow{
		RowMeta:    rowMeta(ownerID, o.ID),
		Name:       o.Name,
		ItemIDs:    o.ItemIDs,
		Occasion:   o.Occasion,
		Notes:      o.Notes,
		IsFavorite: o.IsFavorite,
		CreatedAt:  o.CreatedAt,
		UpdatedAt:  o.UpdatedAt,
	}
}

func statusLogToRow(ownerID string, l store.StatusLog) remote.StatusLogRow {
	return remote.StatusLogRow{
		RowMeta:    rowMeta(ownerID, l.ID),
		ItemID:     l.ItemID,
		FromStatus: string(l.FromStatus),
		ToStatus:   string(l.ToStatus),
		ChangedAt:  l.ChangedAt,
		Reason:     string(l.Reason),
	}
}

func photoToRow(ownerID string, p store.Photo, storagePath string) remote.PhotoRow {
	return remote.PhotoRow{
		RowMeta:     rowMeta(ownerID, p.ID),
		ItemID:      p.ItemID,
		StoragePath: storagePath,
		MimeType:    p.MimeType,
		Width:       p.Width,
		Height:      p.Height,
		CreatedAt:   p.CreatedAt,
	}
}

func categoryFromRow(r remote.CategoryRow) store.Category {
	return store.Category{
		ID:        r.ID,
		Name:      r.Name,
		IsDefault: r.IsDefault,
		Archived:  r.Archived,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

func itemFromRow(r remote.ItemRow) store.Item {
	status, ok := store.ParseStatus(r.Status)
	if !ok {
		status = store.StatusClean
	}
	return store.Item{
		ID:         r.ID,
		Name:       r.Name,
		CategoryID: r.CategoryID,
		Status:     status,
		Color:      r.Color,
		Brand:      r.Brand,
		Size:       r.Size,
		Notes:      r.Notes,
		SeasonTags: r.SeasonTags,
		PhotoIDs:   r.PhotoIDs,
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
	}
}

func outfitFromRow(r remote.OutfitRow) store.Outfit {
	return store.Outfit{
		ID:         r.ID,
		Name:       r.Name,
		ItemIDs:    r.ItemIDs,
		Occasion:   r.Occasion,
		Notes:      r.Notes,
		IsFavorite: r.IsFavorite,
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
	}
}

func statusLogFromRow(r remote.StatusLogRow) store.StatusLog {
	return store.StatusLog{
		ID:         r.ID,
		ItemID:     r.ItemID,
		FromStatus: store.Status(r.FromStatus),
		ToStatus:   store.Status(r.ToStatus),
		ChangedAt:  r.ChangedAt,
		Reason:     store.LogReason(r.Reason),
	}
}

func photoFromRow(r remote.PhotoRow, data []byte) store.Photo {
	return store.Photo{
		ID:        r.ID,
		ItemID:    r.ItemID,
		Data:      data,
		MimeType:  r.MimeType,
		Width:     r.Width,
		Height:    r.Height,
		CreatedAt: r.CreatedAt,
	}
}

// photoStoragePath derives the object-storage path for a photo blob:
// account / item / photo, with the extension taken from the MIME type.
func photoStoragePath(ownerID string, p store.Photo) string {
	return fmt.Sprintf("%s/%s/%s.%s", ownerID, p.ItemID, p.ID, extFromMIME(p.MimeType))
}

func extFromMIME(mimeType string) string {
	switch mimeType {
	case "image/png":
		return "png"
	case "image/webp":
		return "webp"
	case "image/gif":
		return "gif"
	default:
		return "jpg"
	}
}
