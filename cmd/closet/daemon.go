package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/closetd/closet/internal/importer"
)

var daemonCmd = &cobra.Command{
	Use:     "daemon",
	GroupID: "sync",
	Short:   "Run the background sync daemon",
	Long: `Run in the foreground: periodic sync cycles, realtime change
notifications, and the photo import drop folder. Stop with Ctrl-C.`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		a, err := openApp(ctx, true)
		if err != nil {
			fatal(err)
		}
		defer a.close()

		if err := a.engine.Start(ctx); err != nil {
			fatal(err)
		}
		defer a.engine.Stop()

		imp, err := importer.New(a.db, a.cfg.ImportPath(), a.logger)
		if err != nil {
			fatal(err)
		}
		if err := imp.Start(); err != nil {
			fatal(err)
		}
		defer imp.Stop()

		a.logger.Printf("daemon running (db=%s import=%s)", a.cfg.DatabasePath(), a.cfg.ImportPath())
		fmt.Println("closet daemon running, Ctrl-C to stop")

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		<-sigCh

		a.logger.Printf("daemon shutting down")
	},
}

func init() {
	rootCmd.AddCommand(daemonCmd)
}
