package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/closetd/closet/internal/backup"
)

var backupCmd = &cobra.Command{
	Use:     "backup",
	GroupID: "data",
	Short:   "Export or import the full dataset as JSON",
}

var backupExportCmd = &cobra.Command{
	Use:   "export [FILE]",
	Short: "Write a JSON backup to FILE (default stdout)",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		a, err := openApp(ctx, false)
		if err != nil {
			fatal(err)
		}
		defer a.close()

		out := os.Stdout
		if len(args) == 1 {
			f, err := os.Create(args[0])
			if err != nil {
				fatal(err)
			}
			defer f.Close()
			out = f
		}

		if err := backup.Export(ctx, a.db, out); err != nil {
			fatal(err)
		}
		if len(args) == 1 {
			fmt.Fprintf(os.Stderr, "Exported to %s\n", args[0])
		}
	},
}

var backupImportCmd = &cobra.Command{
	Use:   "import FILE",
	Short: "Restore a JSON backup (existing rows with matching ids are overwritten)",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		a, err := openApp(ctx, false)
		if err != nil {
			fatal(err)
		}
		defer a.close()

		f, err := os.Open(args[0])
		if err != nil {
			fatal(err)
		}
		defer f.Close()

		if err := backup.Import(ctx, a.db, f); err != nil {
			fatal(err)
		}
		fmt.Println("Backup imported")
	},
}

func init() {
	backupCmd.AddCommand(backupExportCmd, backupImportCmd)
	rootCmd.AddCommand(backupCmd)
}
