package main

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/richardjkendall/todoapp/internal/config"
	"github.com/richardjkendall/todoapp/internal/logging"
	"github.com/richardjkendall/todoapp/internal/remote"
	"github.com/richardjkendall/todoapp/internal/store"
	"github.com/richardjkendall/todoapp/internal/syncer"
	"github.com/richardjkendall/todoapp/internal/task"
)

// app bundles the wired-up pieces every command needs.
type app struct {
	cfg *config.Config
	kv  *store.Store
	sy  *syncer.Syncer
}

// openApp loads configuration and opens the settings store and syncer.
// Callers must call close when done.
func openApp() (*app, error) {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data dir: %w", err)
	}

	kv, err := store.Open(cfg.DatabasePath())
	if err != nil {
		return nil, fmt.Errorf("failed to open settings store: %w", err)
	}

	var remoteStore remote.Store
	if cfg.Sync.RemoteURL != "" {
		client := &http.Client{Timeout: time.Duration(cfg.Sync.TimeoutSeconds) * time.Second}
		remoteStore = remote.NewHTTPStore(cfg.Sync.RemoteURL, remote.StaticToken(cfg.Sync.Token), client)
	}

	sy, err := syncer.New(remoteStore, kv, cfg.MirrorPath(), &syncer.Config{
		DebounceInterval: time.Duration(cfg.Sync.DebounceMS) * time.Millisecond,
		Logger:           newLogger("[sync] ", cfg),
	})
	if err != nil {
		kv.Close()
		return nil, err
	}

	return &app{cfg: cfg, kv: kv, sy: sy}, nil
}

func (a *app) close() {
	a.sy.Close()
	_ = a.kv.Close()
}

// todos returns the current committed collection.
func (a *app) todos() task.Collection {
	return a.sy.Committed()
}

func newLogger(prefix string, cfg *config.Config) *log.Logger {
	return logging.New(prefix, logging.Options{
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		Quiet:      flagQuiet,
	})
}
