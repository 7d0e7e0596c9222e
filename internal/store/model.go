package store

import "time"

// Table identifies one of the synced entity tables.
type Table string

const (
	TableCategories Table = "categories"
	TableItems      Table = "items"
	TableOutfits    Table = "outfits"
	TableStatusLogs Table = "status_logs"
	TablePhotos     Table = "photos"
)

// Tables returns all synced tables in parent-before-child order.
// Pull processes tables in this order; wipe uses the reverse.
func Tables() []Table {
	return []Table{TableCategories, TableItems, TableOutfits, TableStatusLogs, TablePhotos}
}

// ParseTable validates a table name.
func ParseTable(name string) (Table, bool) {
	switch Table(name) {
	case TableCategories, TableItems, TableOutfits, TableStatusLogs, TablePhotos:
		return Table(name), true
	}
	return "", false
}

// ChangeOp is the kind of local mutation reported to a ChangeNotifier.
type ChangeOp string

const (
	ChangeUpsert ChangeOp = "upsert"
	ChangeDelete ChangeOp = "delete"
)

// ChangeNotifier receives a callback after every committed local mutation,
// including each row touched by a cascade. The store never calls it while a
// transaction is open, so implementations may write back to the store.
type ChangeNotifier interface {
	EntityChanged(table Table, entityID string, op ChangeOp, changedAt time.Time)
}

// Status is the lifecycle state of a clothing item.
type Status string

const (
	StatusClean   Status = "clean"
	StatusDirty   Status = "dirty"
	StatusWashing Status = "washing"
	StatusDrying  Status = "drying"
)

// ParseStatus validates an item status.
func ParseStatus(s string) (Status, bool) {
	switch Status(s) {
	case StatusClean, StatusDirty, StatusWashing, StatusDrying:
		return Status(s), true
	}
	return "", false
}

// LogReason records why an item changed status.
type LogReason string

const (
	ReasonManual LogReason = "manual"
	ReasonCycle  LogReason = "cycle"
)

// DefaultCategories are created on first open and re-created after a pull
// removes them, so every device converges on the same base set.
var DefaultCategories = []string{
	"Shirts",
	"Pants",
	"Underwear",
	"Socks",
	"Outerwear",
	"Shoes",
	"Sportswear",
	"Accessories",
}

type Category struct {
	ID        string
	Name      string
	IsDefault bool
	Archived  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Item struct {
	ID         string
	Name       string
	CategoryID string
	Status     Status
	Color      string
	Brand      string
	Size       string
	Notes      string
	SeasonTags []string
	PhotoIDs   []string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

type Outfit struct {
	ID         string
	Name       string
	ItemIDs    []string
	Occasion   string
	Notes      string
	IsFavorite bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

type StatusLog struct {
	ID         string
	ItemID     string
	FromStatus Status
	ToStatus   Status
	ChangedAt  time.Time
	Reason     LogReason
}

type Photo struct {
	ID        string
	ItemID    string
	Data      []byte
	MimeType  string
	Width     int
	Height    int
	CreatedAt time.Time
}
