// Package ui renders CLI output: styled when stdout is a terminal, plain
// text otherwise.
package ui

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/closetd/closet/internal/store"
	"github.com/closetd/closet/internal/sync"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true)
	labelStyle   = lipgloss.NewStyle().Faint(true)
	goodStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	badStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	neutralStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
)

// Styled reports whether output should carry ANSI styling.
func Styled() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

func render(style lipgloss.Style, s string) string {
	if !Styled() {
		return s
	}
	return style.Render(s)
}

// RenderState formats the sync status block.
func RenderState(st sync.State) string {
	var b strings.Builder

	b.WriteString(render(titleStyle, "Sync") + "\n")
	b.WriteString(fmt.Sprintf("  %s %s\n", render(labelStyle, "status:"), renderStatus(st.Status)))
	b.WriteString(fmt.Sprintf("  %s %d\n", render(labelStyle, "pending:"), st.PendingCount))

	last := "never"
	if !st.LastSyncedAt.IsZero() {
		last = st.LastSyncedAt.Local().Format(time.RFC3339)
	}
	b.WriteString(fmt.Sprintf("  %s %s\n", render(labelStyle, "last sync:"), last))

	if st.LastError != "" {
		b.WriteString(fmt.Sprintf("  %s %s\n", render(labelStyle, "last error:"), render(badStyle, st.LastError)))
	}
	return b.String()
}

func renderStatus(status sync.Status) string {
	switch status {
	case sync.StatusIdle:
		return render(goodStyle, string(status))
	case sync.StatusSyncing:
		return render(goodStyle, string(status))
	case sync.StatusOffline, sync.StatusPaused:
		return render(warnStyle, string(status))
	case sync.StatusError:
		return render(badStyle, string(status))
	default:
		return render(neutralStyle, string(status))
	}
}

// RenderItems formats an item listing with category names resolved.
func RenderItems(items []store.Item, categories []store.Category) string {
	names := make(map[string]string, len(categories))
	for _, c := range categories {
		names[c.ID] = c.Name
	}

	var b strings.Builder
	for _, it := range items {
		category := names[it.CategoryID]
		if category == "" {
			category = "?"
		}
		b.WriteString(fmt.Sprintf("%s  %s %s %s\n",
			render(labelStyle, shortID(it.ID)),
			it.Name,
			render(neutralStyle, "("+category+")"),
			renderItemStatus(it.Status)))
	}
	if len(items) == 0 {
		b.WriteString(render(labelStyle, "no items") + "\n")
	}
	return b.String()
}

func renderItemStatus(status store.Status) string {
	switch status {
	case store.StatusClean:
		return render(goodStyle, string(status))
	case store.StatusDirty:
		return render(badStyle, string(status))
	default:
		return render(warnStyle, string(status))
	}
}

// RenderCategories formats a category listing.
func RenderCategories(categories []store.Category) string {
	var b strings.Builder
	for _, c := range categories {
		line := fmt.Sprintf("%s  %s", render(labelStyle, shortID(c.ID)), c.Name)
		if c.Archived {
			line += " " + render(neutralStyle, "[archived]")
		}
		b.WriteString(line + "\n")
	}
	return b.String()
}

// RenderOutfits formats an outfit listing.
func RenderOutfits(outfits []store.Outfit) string {
	var b strings.Builder
	for _, o := range outfits {
		line := fmt.Sprintf("%s  %s %s", render(labelStyle, shortID(o.ID)), o.Name,
			render(neutralStyle, fmt.Sprintf("(%d items)", len(o.ItemIDs))))
		if o.IsFavorite {
			line += " " + render(warnStyle, "*")
		}
		b.WriteString(line + "\n")
	}
	return b.String()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
