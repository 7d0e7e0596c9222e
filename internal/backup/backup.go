// Package backup exports and imports the full local dataset as a single
// JSON document. Photo payloads are embedded base64. The backup covers
// local entities only; sync bookkeeping (queue, cursors, account link) is
// deliberately excluded so a restored dataset syncs like fresh local edits.
package backup

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/closetd/closet/internal/store"
)

// formatVersion guards against importing documents written by a newer
// incompatible exporter.
const formatVersion = 1

type document struct {
	Version    int               `json:"version"`
	ExportedAt time.Time         `json:"exported_at"`
	Categories []store.Category  `json:"categories"`
	Items      []store.Item      `json:"items"`
	Outfits    []store.Outfit    `json:"outfits"`
	StatusLogs []store.StatusLog `json:"status_logs"`
	Photos     []store.Photo     `json:"photos"`
}

// Export writes the entire dataset to w.
func Export(ctx context.Context, db *store.DB, w io.Writer) error {
	doc := document{Version: formatVersion, ExportedAt: time.Now().UTC()}

	var err error
	if doc.Categories, err = db.ListCategories(ctx); err != nil {
		return err
	}
	if doc.Items, err = db.ListItems(ctx); err != nil {
		return err
	}
	if doc.Outfits, err = db.ListOutfits(ctx); err != nil {
		return err
	}
	if doc.StatusLogs, err = db.ListStatusLogs(ctx, "", 0); err != nil {
		return err
	}
	for _, it := range doc.Items {
		photos, err := db.ListPhotos(ctx, it.ID)
		if err != nil {
			return err
		}
		doc.Photos = append(doc.Photos, photos...)
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("failed to encode backup: %w", err)
	}
	return nil
}

// Import reads a backup document from r and replaces the local dataset
// with it, atomically: rows absent from the document are removed, and a
// mid-import failure leaves the previous dataset untouched. The
// replacement is reported to the store's change notifier, so with sync
// enabled a restore is captured and pushed like any local change.
func Import(ctx context.Context, db *store.DB, r io.Reader) error {
	var doc document
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return fmt.Errorf("failed to decode backup: %w", err)
	}
	if doc.Version > formatVersion {
		return fmt.Errorf("unsupported backup version %d", doc.Version)
	}

	return db.RestoreDataset(ctx, store.Dataset{
		Categories: doc.Categories,
		Items:      doc.Items,
		Outfits:    doc.Outfits,
		StatusLogs: doc.StatusLogs,
		Photos:     doc.Photos,
	})
}
