// Package importer watches a drop folder and attaches image files to
// items. A file named <itemID>-<anything>.<ext> is stored as a photo of
// that item and removed from the folder once committed.
package importer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	stdsync "sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"

	"github.com/closetd/closet/internal/store"
)

// debounceInterval batches rapid write events while a file is still being
// copied into the folder.
const debounceInterval = 500 * time.Millisecond

var mimeByExt = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".webp": "image/webp",
	".gif":  "image/gif",
}

// Importer watches one directory for droppable photo files.
type Importer struct {
	db     *store.DB
	dir    string
	logger *log.Logger

	watcher *fsnotify.Watcher

	mu      stdsync.Mutex
	pending map[string]time.Time // path -> last event
	running bool
	cancel  context.CancelFunc
	wg      stdsync.WaitGroup
}

// New creates an importer for dir, creating the directory if needed.
func New(db *store.DB, dir string, logger *log.Logger) (*Importer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create import directory: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	return &Importer{
		db:      db,
		dir:     dir,
		logger:  logger,
		watcher: watcher,
		pending: make(map[string]time.Time),
	}, nil
}

// Start begins watching. Files already sitting in the folder are imported
// immediately.
func (im *Importer) Start() error {
	im.mu.Lock()
	defer im.mu.Unlock()
	if im.running {
		return errors.New("importer already running")
	}

	if err := im.watcher.Add(im.dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", im.dir, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	im.cancel = cancel
	im.running = true

	im.wg.Add(1)
	go im.run(ctx)

	go im.sweepExisting(ctx)
	return nil
}

// Stop stops watching and waits for in-flight imports to finish.
func (im *Importer) Stop() {
	im.mu.Lock()
	if !im.running {
		im.mu.Unlock()
		return
	}
	im.running = false
	cancel := im.cancel
	im.mu.Unlock()

	cancel()
	_ = im.watcher.Close()
	im.wg.Wait()
}

func (im *Importer) run(ctx context.Context) {
	defer im.wg.Done()

	ticker := time.NewTicker(debounceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-im.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			if _, ok := mimeByExt[strings.ToLower(filepath.Ext(event.Name))]; !ok {
				continue
			}
			im.mu.Lock()
			im.pending[event.Name] = time.Now()
			im.mu.Unlock()

		case err, ok := <-im.watcher.Errors:
			if !ok {
				return
			}
			im.logger.Printf("import watcher error: %v", err)

		case now := <-ticker.C:
			for _, path := range im.takeSettled(now) {
				if err := im.importFile(ctx, path); err != nil {
					im.logger.Printf("failed to import %s: %v", filepath.Base(path), err)
				}
			}
		}
	}
}

// takeSettled returns pending paths whose last event is old enough that
// the file is likely fully written.
func (im *Importer) takeSettled(now time.Time) []string {
	im.mu.Lock()
	defer im.mu.Unlock()

	var settled []string
	for path, last := range im.pending {
		if now.Sub(last) >= debounceInterval {
			settled = append(settled, path)
			delete(im.pending, path)
		}
	}
	return settled
}

func (im *Importer) sweepExisting(ctx context.Context) {
	entries, err := os.ReadDir(im.dir)
	if err != nil {
		im.logger.Printf("failed to scan import directory: %v", err)
		return
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(im.dir, entry.Name())
		if _, ok := mimeByExt[strings.ToLower(filepath.Ext(path))]; !ok {
			continue
		}
		if err := im.importFile(ctx, path); err != nil {
			im.logger.Printf("failed to import %s: %v", entry.Name(), err)
		}
	}
}

// importFile attaches one dropped file to its item and deletes the file.
// The filename (minus extension) is the item id, optionally followed by
// "-label".
func (im *Importer) importFile(ctx context.Context, path string) error {
	base := filepath.Base(path)
	itemID, err := im.resolveItemID(ctx, strings.TrimSuffix(base, filepath.Ext(base)))
	if err != nil {
		return err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	photo := store.Photo{
		ID:        uuid.NewString(),
		ItemID:    itemID,
		Data:      data,
		MimeType:  mimeByExt[strings.ToLower(filepath.Ext(path))],
		CreatedAt: time.Now(),
	}
	if err := im.db.PutPhoto(ctx, photo); err != nil {
		return err
	}

	if err := os.Remove(path); err != nil {
		im.logger.Printf("imported %s but could not remove source: %v", base, err)
	} else {
		im.logger.Printf("imported %s as photo %s of item %s", base, photo.ID, itemID)
	}
	return nil
}

// resolveItemID matches a filename stem to an existing item: the whole
// stem, a leading uuid, or the prefix before the first dash.
func (im *Importer) resolveItemID(ctx context.Context, stem string) (string, error) {
	candidates := []string{stem}
	if len(stem) >= 36 && uuid.Validate(stem[:36]) == nil {
		candidates = append(candidates, stem[:36])
	}
	if prefix, _, found := strings.Cut(stem, "-"); found && prefix != "" {
		candidates = append(candidates, prefix)
	}

	for _, id := range candidates {
		if _, err := im.db.GetItem(ctx, id); err == nil {
			return id, nil
		} else if !errors.Is(err, store.ErrNotFound) {
			return "", err
		}
	}
	return "", fmt.Errorf("no item matches filename %q", stem)
}
