package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/closetd/closet/internal/ui"
)

var syncCmd = &cobra.Command{
	Use:     "sync",
	GroupID: "sync",
	Short:   "Manage background sync",
}

var syncEnableCmd = &cobra.Command{
	Use:   "enable",
	Short: "Enable sync for the configured account",
	Long: `Enable background sync. The first enable under an authenticated account
links this device to it and queues the full local dataset for upload.
Enabling under a different account than the one linked fails; use
"closet sync reset" first.`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		a, err := openApp(ctx, false)
		if err != nil {
			fatal(err)
		}
		defer a.close()

		if err := a.engine.SetEnabled(ctx, true); err != nil {
			fatal(err)
		}
		fmt.Println("Sync enabled")

		if a.cfg.AccountID != "" {
			if err := a.engine.SyncNow(ctx, "enable"); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: initial sync failed: %v\n", err)
			}
		}
	},
}

var syncDisableCmd = &cobra.Command{
	Use:   "disable",
	Short: "Disable sync (pending changes are kept)",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		a, err := openApp(ctx, false)
		if err != nil {
			fatal(err)
		}
		defer a.close()

		if err := a.engine.SetEnabled(ctx, false); err != nil {
			fatal(err)
		}
		fmt.Println("Sync disabled")
	},
}

var syncNowCmd = &cobra.Command{
	Use:   "now",
	Short: "Run one sync cycle and wait for it",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		a, err := openApp(ctx, false)
		if err != nil {
			fatal(err)
		}
		defer a.close()

		if err := a.engine.SyncNow(ctx, "manual"); err != nil {
			fatal(err)
		}

		st, err := a.engine.State(ctx)
		if err != nil {
			fatal(err)
		}
		fmt.Print(ui.RenderState(st))
	},
}

var syncStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show sync status",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		a, err := openApp(ctx, false)
		if err != nil {
			fatal(err)
		}
		defer a.close()

		st, err := a.engine.State(ctx)
		if err != nil {
			fatal(err)
		}
		fmt.Print(ui.RenderState(st))
	},
}

var syncClearQueueCmd = &cobra.Command{
	Use:   "clear-queue",
	Short: "Discard all pending changes without pushing them",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		a, err := openApp(ctx, false)
		if err != nil {
			fatal(err)
		}
		defer a.close()

		if !confirm("Discard all pending changes?") {
			return
		}
		if err := a.engine.ClearQueue(ctx); err != nil {
			fatal(err)
		}
		fmt.Println("Queue cleared")
	},
}

var syncResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Unlink this device from its account",
	Long: `Disable sync and sever the account link so the device can be linked to a
different account. Local data is kept; pending changes and pull cursors
are discarded.`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		a, err := openApp(ctx, false)
		if err != nil {
			fatal(err)
		}
		defer a.close()

		if !confirm("Unlink this device from its account?") {
			return
		}
		if err := a.engine.ResetLink(ctx); err != nil {
			fatal(err)
		}
		fmt.Println("Device unlinked")
	},
}

var syncWipeCmd = &cobra.Command{
	Use:   "wipe-remote",
	Short: "Delete all remote data for the account",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		a, err := openApp(ctx, false)
		if err != nil {
			fatal(err)
		}
		defer a.close()

		if !confirm("Delete ALL remote rows and photos for this account? Sync will be disabled.") {
			return
		}
		if err := a.engine.WipeRemote(ctx); err != nil {
			fatal(err)
		}
		fmt.Println("Remote data wiped; sync disabled")
	},
}

func confirm(prompt string) bool {
	fmt.Printf("%s [y/N]: ", prompt)
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}

func init() {
	syncCmd.AddCommand(syncEnableCmd, syncDisableCmd, syncNowCmd, syncStatusCmd,
		syncClearQueueCmd, syncResetCmd, syncWipeCmd)
	rootCmd.AddCommand(syncCmd)
}
