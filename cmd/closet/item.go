package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/closetd/closet/internal/store"
	"github.com/closetd/closet/internal/ui"
)

var itemCmd = &cobra.Command{
	Use:     "item",
	GroupID: "data",
	Short:   "Manage clothing items",
}

var (
	itemCategory string
	itemColor    string
	itemBrand    string
	itemSize     string
	itemNotes    string
	itemSeasons  []string
)

var itemAddCmd = &cobra.Command{
	Use:   "add NAME",
	Short: "Add a clothing item",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		a, err := openApp(ctx, false)
		if err != nil {
			fatal(err)
		}
		defer a.close()

		category, err := resolveCategory(ctx, a, itemCategory)
		if err != nil {
			fatal(err)
		}

		now := time.Now()
		item := store.Item{
			ID:         uuid.NewString(),
			Name:       args[0],
			CategoryID: category.ID,
			Status:     store.StatusClean,
			Color:      itemColor,
			Brand:      itemBrand,
			Size:       itemSize,
			Notes:      itemNotes,
			SeasonTags: itemSeasons,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if err := a.db.PutItem(ctx, item); err != nil {
			fatal(err)
		}
		fmt.Printf("Added %s (%s)\n", item.Name, item.ID)
	},
}

var itemListCmd = &cobra.Command{
	Use:   "list",
	Short: "List clothing items",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		a, err := openApp(ctx, false)
		if err != nil {
			fatal(err)
		}
		defer a.close()

		items, err := a.db.ListItems(ctx)
		if err != nil {
			fatal(err)
		}
		categories, err := a.db.ListCategories(ctx)
		if err != nil {
			fatal(err)
		}
		fmt.Print(ui.RenderItems(items, categories))
	},
}

var itemShowCmd = &cobra.Command{
	Use:   "show ID",
	Short: "Show one item with its photos and status history",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		a, err := openApp(ctx, false)
		if err != nil {
			fatal(err)
		}
		defer a.close()

		item, err := a.db.GetItem(ctx, args[0])
		if err != nil {
			fatal(err)
		}

		fmt.Printf("%s (%s)\n", item.Name, item.ID)
		fmt.Printf("  status: %s\n", item.Status)
		if item.Color != "" {
			fmt.Printf("  color:  %s\n", item.Color)
		}
		if item.Brand != "" {
			fmt.Printf("  brand:  %s\n", item.Brand)
		}
		if item.Size != "" {
			fmt.Printf("  size:   %s\n", item.Size)
		}
		if len(item.SeasonTags) > 0 {
			fmt.Printf("  seasons: %s\n", strings.Join(item.SeasonTags, ", "))
		}
		if item.Notes != "" {
			fmt.Printf("  notes:  %s\n", item.Notes)
		}

		photos, err := a.db.ListPhotos(ctx, item.ID)
		if err != nil {
			fatal(err)
		}
		for _, p := range photos {
			fmt.Printf("  photo:  %s (%s, %d bytes)\n", p.ID, p.MimeType, len(p.Data))
		}

		logs, err := a.db.ListStatusLogs(ctx, item.ID, 10)
		if err != nil {
			fatal(err)
		}
		for _, l := range logs {
			fmt.Printf("  %s: %s -> %s (%s)\n",
				l.ChangedAt.Local().Format(time.RFC3339), l.FromStatus, l.ToStatus, l.Reason)
		}
	},
}

var itemStatusCmd = &cobra.Command{
	Use:   "status ID STATUS",
	Short: "Change an item's status (clean|dirty|washing|drying)",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		a, err := openApp(ctx, false)
		if err != nil {
			fatal(err)
		}
		defer a.close()

		to, ok := store.ParseStatus(args[1])
		if !ok {
			fatal(fmt.Errorf("invalid status %q", args[1]))
		}

		item, err := a.db.GetItem(ctx, args[0])
		if err != nil {
			fatal(err)
		}

		logEntry := store.StatusLog{
			ID:         uuid.NewString(),
			ItemID:     item.ID,
			FromStatus: item.Status,
			ToStatus:   to,
			ChangedAt:  time.Now(),
			Reason:     store.ReasonManual,
		}
		if err := a.db.SetItemStatus(ctx, item.ID, to, logEntry); err != nil {
			fatal(err)
		}
		fmt.Printf("%s: %s -> %s\n", item.Name, item.Status, to)
	},
}

var itemRmCmd = &cobra.Command{
	Use:   "rm ID",
	Short: "Delete an item and its photos and status history",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		a, err := openApp(ctx, false)
		if err != nil {
			fatal(err)
		}
		defer a.close()

		if err := a.db.DeleteItem(ctx, args[0]); err != nil {
			fatal(err)
		}
		fmt.Println("Deleted")
	},
}

// resolveCategory accepts a category id or name; empty picks the first
// default category.
func resolveCategory(ctx context.Context, a *app, ref string) (store.Category, error) {
	categories, err := a.db.ListCategories(ctx)
	if err != nil {
		return store.Category{}, err
	}

	if ref == "" {
		for _, c := range categories {
			if c.IsDefault {
				return c, nil
			}
		}
		return store.Category{}, fmt.Errorf("no category given and no default exists")
	}

	for _, c := range categories {
		if c.ID == ref || strings.EqualFold(c.Name, ref) {
			return c, nil
		}
	}
	return store.Category{}, fmt.Errorf("unknown category %q", ref)
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

func init() {
	itemAddCmd.Flags().StringVarP(&itemCategory, "category", "c", "", "category name or id")
	itemAddCmd.Flags().StringVar(&itemColor, "color", "", "item color")
	itemAddCmd.Flags().StringVar(&itemBrand, "brand", "", "brand")
	itemAddCmd.Flags().StringVar(&itemSize, "size", "", "size")
	itemAddCmd.Flags().StringVar(&itemNotes, "notes", "", "free-form notes")
	itemAddCmd.Flags().StringSliceVar(&itemSeasons, "season", nil, "season tags (repeatable)")

	itemCmd.AddCommand(itemAddCmd, itemListCmd, itemShowCmd, itemStatusCmd, itemRmCmd)
	rootCmd.AddCommand(itemCmd)
}
