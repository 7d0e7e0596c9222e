package main

import (
	"context"
	"fmt"
	"io"
	"log"

	"github.com/closetd/closet/internal/config"
	"github.com/closetd/closet/internal/logging"
	"github.com/closetd/closet/internal/remote"
	"github.com/closetd/closet/internal/store"
	"github.com/closetd/closet/internal/sync"
)

// app bundles the wired subsystems every command needs.
type app struct {
	cfg    *config.Config
	db     *store.DB
	engine *sync.Engine
	client *remote.Client
	logger *log.Logger

	logCloser io.Closer
}

// openApp loads config, opens the database, and wires the sync engine.
// Mutation capture is armed according to the persisted enabled flag, so
// one-shot commands queue their changes without running the full runtime.
func openApp(ctx context.Context, logToStderr bool) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	logger, logCloser := logging.New(logging.Options{
		File:       cfg.LogPath(),
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
		Stderr:     logToStderr,
	})

	db, err := store.Open(cfg.DatabasePath())
	if err != nil {
		logCloser.Close()
		return nil, err
	}

	client := remote.NewClient(cfg.ServerURL, cfg.Token)
	engine := sync.New(sync.Options{
		DB:           db,
		Remote:       client,
		Blobs:        client,
		Realtime:     remote.NewWebsocketNotifier(cfg.ServerURL, cfg.Token, logger),
		Auth:         config.StaticAuth{ID: cfg.AccountID},
		Connectivity: client,
		Logger:       logger,
		Interval:     cfg.SyncInterval,
	})

	if err := engine.RefreshCapture(ctx); err != nil {
		db.Close()
		logCloser.Close()
		return nil, err
	}

	// Runs after capture is armed so recreated defaults propagate.
	if err := db.EnsureDefaultCategories(ctx); err != nil {
		db.Close()
		logCloser.Close()
		return nil, fmt.Errorf("failed to ensure default categories: %w", err)
	}

	return &app{
		cfg:       cfg,
		db:        db,
		engine:    engine,
		client:    client,
		logger:    logger,
		logCloser: logCloser,
	}, nil
}

func (a *app) close() {
	if err := a.db.Close(); err != nil {
		a.logger.Printf("close: %v", err)
	}
	a.logCloser.Close()
}
