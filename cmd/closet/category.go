package main

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/closetd/closet/internal/store"
	"github.com/closetd/closet/internal/ui"
)

var categoryCmd = &cobra.Command{
	Use:     "category",
	GroupID: "data",
	Short:   "Manage categories",
}

var categoryAddCmd = &cobra.Command{
	Use:   "add NAME",
	Short: "Add a category",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		a, err := openApp(ctx, false)
		if err != nil {
			fatal(err)
		}
		defer a.close()

		now := time.Now()
		c := store.Category{
			ID:        uuid.NewString(),
			Name:      args[0],
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := a.db.PutCategory(ctx, c); err != nil {
			fatal(err)
		}
		fmt.Printf("Added %s (%s)\n", c.Name, c.ID)
	},
}

var categoryListCmd = &cobra.Command{
	Use:   "list",
	Short: "List categories",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		a, err := openApp(ctx, false)
		if err != nil {
			fatal(err)
		}
		defer a.close()

		categories, err := a.db.ListCategories(ctx)
		if err != nil {
			fatal(err)
		}
		fmt.Print(ui.RenderCategories(categories))
	},
}

var categoryArchiveCmd = &cobra.Command{
	Use:   "archive ID",
	Short: "Archive a category (hidden from pickers, items keep it)",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		a, err := openApp(ctx, false)
		if err != nil {
			fatal(err)
		}
		defer a.close()

		c, err := a.db.GetCategory(ctx, args[0])
		if err != nil {
			fatal(err)
		}
		c.Archived = true
		c.UpdatedAt = time.Now()
		if err := a.db.PutCategory(ctx, c); err != nil {
			fatal(err)
		}
		fmt.Printf("Archived %s\n", c.Name)
	},
}

var categoryRmCmd = &cobra.Command{
	Use:   "rm ID",
	Short: "Delete a category",
	Args:  cobra.ExactArgs(1),
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
		for _, it := range items {
			if it.CategoryID == args[0] {
				fatal(fmt.Errorf("category still has items (e.g. %s); move or delete them first", it.Name))
			}
		}

		if err := a.db.DeleteCategory(ctx, args[0]); err != nil {
			fatal(err)
		}
		fmt.Println("Deleted")
	},
}

func init() {
	categoryCmd.AddCommand(categoryAddCmd, categoryListCmd, categoryArchiveCmd, categoryRmCmd)
	rootCmd.AddCommand(categoryCmd)
}
