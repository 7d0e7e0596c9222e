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

var outfitCmd = &cobra.Command{
	Use:     "outfit",
	GroupID: "data",
	Short:   "Manage outfits",
}

var (
	outfitItems    []string
	outfitOccasion string
	outfitNotes    string
	outfitFavorite bool
)

var outfitAddCmd = &cobra.Command{
	Use:   "add NAME",
	Short: "Add an outfit from existing items",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		a, err := openApp(ctx, false)
		if err != nil {
			fatal(err)
		}
		defer a.close()

		for _, id := range outfitItems {
			if _, err := a.db.GetItem(ctx, id); err != nil {
				fatal(fmt.Errorf("item %s: %w", id, err))
			}
		}

		now := time.Now()
		o := store.Outfit{
			ID:         uuid.NewString(),
			Name:       args[0],
			ItemIDs:    outfitItems,
			Occasion:   outfitOccasion,
			Notes:      outfitNotes,
			IsFavorite: outfitFavorite,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if err := a.db.PutOutfit(ctx, o); err != nil {
			fatal(err)
		}
		fmt.Printf("Added %s (%s)\n", o.Name, o.ID)
	},
}

var outfitListCmd = &cobra.Command{
	Use:   "list",
	Short: "List outfits",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		a, err := openApp(ctx, false)
		if err != nil {
			fatal(err)
		}
		defer a.close()

		outfits, err := a.db.ListOutfits(ctx)
		if err != nil {
			fatal(err)
		}
		fmt.Print(ui.RenderOutfits(outfits))
	},
}

var outfitRmCmd = &cobra.Command{
	Use:   "rm ID",
	Short: "Delete an outfit",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		a, err := openApp(ctx, false)
		if err != nil {
			fatal(err)
		}
		defer a.close()

		if err := a.db.DeleteOutfit(ctx, args[0]); err != nil {
			fatal(err)
		}
		fmt.Println("Deleted")
	},
}

func init() {
	outfitAddCmd.Flags().StringSliceVarP(&outfitItems, "items", "i", nil, "item ids (repeatable)")
	outfitAddCmd.Flags().StringVar(&outfitOccasion, "occasion", "", "occasion")
	outfitAddCmd.Flags().StringVar(&outfitNotes, "notes", "", "free-form notes")
	outfitAddCmd.Flags().BoolVar(&outfitFavorite, "favorite", false, "mark as favorite")

	outfitCmd.AddCommand(outfitAddCmd, outfitListCmd, outfitRmCmd)
	rootCmd.AddCommand(outfitCmd)
}
