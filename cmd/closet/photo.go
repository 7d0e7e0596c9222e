package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/closetd/closet/internal/store"
)

var photoCmd = &cobra.Command{
	Use:     "photo",
	GroupID: "data",
	Short:   "Manage item photos",
}

var photoAddCmd = &cobra.Command{
	Use:   "add ITEM_ID FILE",
	Short: "Attach an image file to an item",
	Args:  cobra.ExactArgs(2),
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

		data, err := os.ReadFile(args[1])
		if err != nil {
			fatal(err)
		}

		photo := store.Photo{
			ID:        uuid.NewString(),
			ItemID:    item.ID,
			Data:      data,
			MimeType:  mimeFromExt(filepath.Ext(args[1])),
			CreatedAt: time.Now(),
		}
		if err := a.db.PutPhoto(ctx, photo); err != nil {
			fatal(err)
		}
		fmt.Printf("Attached %s to %s\n", photo.ID, item.Name)
	},
}

var photoRmCmd = &cobra.Command{
	Use:   "rm ID",
	Short: "Delete a photo",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		a, err := openApp(ctx, false)
		if err != nil {
			fatal(err)
		}
		defer a.close()

		if err := a.db.DeletePhoto(ctx, args[0], ""); err != nil {
			fatal(err)
		}
		fmt.Println("Deleted")
	},
}

func mimeFromExt(ext string) string {
	switch strings.ToLower(ext) {
	case ".png":
		return "image/png"
	case ".webp":
		return "image/webp"
	case ".gif":
		return "image/gif"
	default:
		return "image/jpeg"
	}
}

func init() {
	photoCmd.AddCommand(photoAddCmd, photoRmCmd)
	rootCmd.AddCommand(photoCmd)
}
