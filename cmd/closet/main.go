// Command closet is a local-first wardrobe catalogue with background sync
// to a personal account server.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "closet",
	Short: "Local-first wardrobe catalogue",
	Long: `closet tracks clothing items, categories, outfits and photos in a local
SQLite database. All commands work offline; with sync enabled, changes are
queued and reconciled with your account in the background.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.AddGroup(
		&cobra.Group{ID: "data", Title: "Data Commands:"},
		&cobra.Group{ID: "sync", Title: "Sync Commands:"},
	)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
