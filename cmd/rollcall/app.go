package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rollcall/attendance/internal/flatstore"
	"github.com/rollcall/attendance/internal/notify"
	"github.com/rollcall/attendance/internal/reconcile"
	"github.com/rollcall/attendance/internal/storage"
	"github.com/rollcall/attendance/internal/watcher"
)

// app holds the components shared by commands.
type app struct {
	coord     *storage.Coordinator
	engine    *reconcile.Engine
	configs   *watcher.ConfigStore
	publisher *notify.Publisher
}

// openApp opens the stores under the configured data directory. The mirror
// is negotiated once; when it cannot be opened the app runs flat-only.
func openApp(ctx context.Context) (*app, error) {
	opts := flatstore.DefaultOptions()
	opts.CacheTTL = appConfig.CacheTTL
	opts.Logger = logger
	flat, err := flatstore.Open(appConfig.DataDir, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open data directory: %w", err)
	}

	capability := storage.Negotiate(ctx, appConfig.MirrorPath(), logger)
	coord := storage.New(flat, capability, logger)

	return &app{
		coord:     coord,
		engine:    reconcile.New(reconcile.FromCoordinator(coord), logger),
		configs:   watcher.NewConfigStore(appConfig.DataDir),
		publisher: notify.NewPublisher(appConfig.DataDir, logger),
	}, nil
}

func (a *app) Close() {
	if err := a.coord.Close(); err != nil {
		logger.WithError(err).Warn("failed to close mirror")
	}
}

// mustOpenApp opens the app or exits.
func mustOpenApp(ctx context.Context) *app {
	a, err := openApp(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	return a
}

// cycleLockPath is the lock file shared by every process running cycles for
// one watcher kind, so "rollcall sync" waits for a running "rollcall serve".
func cycleLockPath(name string) string {
	return filepath.Join(appConfig.DataDir, name+"-watcher.lock")
}

func (a *app) fileRunner() (*watcher.Runner, *watcher.FileSource) {
	src := watcher.NewFileSource(a.configs, logger)
	return watcher.NewRunner(src, a.engine, a.publisher, watcher.Config{
		Kind:     notify.TypeFileImport,
		Logger:   logger,
		LockPath: cycleLockPath(src.Name()),
	}), src
}

func (a *app) remoteRunner() (*watcher.Runner, *watcher.SheetsSource) {
	src := watcher.NewSheetsSource(a.configs, nil, logger)
	return watcher.NewRunner(src, a.engine, a.publisher, watcher.Config{
		Kind:     notify.TypeRemoteImport,
		Logger:   logger,
		LockPath: cycleLockPath(src.Name()),
	}), src
}
