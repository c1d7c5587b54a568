// Package app wires configuration, storage backend, migration gate, sweep
// scheduler and HTTP surface into one process lifecycle.
package app

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"aphorist/internal/sweeper"
	"aphorist/pkg/banner"
	"aphorist/pkg/commands"
	"aphorist/pkg/commands/redisstore"
	"aphorist/pkg/commands/treestore"
	"aphorist/pkg/config"
	"aphorist/pkg/content"
	"aphorist/pkg/logger"
	"aphorist/pkg/migrate"
	"aphorist/pkg/state"
)

// App encapsulates the server components and lifecycle.
type App struct {
	cfg     *config.Config
	version string

	store commands.Store
	svc   *content.Service

	srv   *http.Server
	ready atomic.Bool
}

// New initializes resources that do not require a running context: logging,
// state dirs and the (unconnected) storage backend. Call Run to connect,
// migrate and serve.
func New(cfg *config.Config, version string) (*App, error) {
	logger.InitWithLevel(cfg.Logging.Level)

	if err := state.EnsureStateDirs(cfg.Storage.StateDir); err != nil {
		return nil, fmt.Errorf("state dirs: %w", err)
	}

	var backend commands.Store
	switch cfg.Storage.Backend {
	case config.BackendTree:
		ts := treestore.New(cfg.Storage.DBPath)
		if n := cfg.Storage.CacheSize.Int64(); n > 0 {
			ts.SetCacheSize(n)
		}
		backend = ts
	case config.BackendRedis:
		backend = redisstore.New(cfg.Storage.Redis.Addr, cfg.Storage.Redis.Password, cfg.Storage.Redis.DB)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}

	store := commands.WithLogging(backend, cfg.Storage.Backend)
	return &App{
		cfg:     cfg,
		version: version,
		store:   store,
		svc:     content.New(store),
	}, nil
}

// Run connects the backend, gates startup on migration, starts the sweep
// scheduler and the HTTP server, and blocks until ctx is canceled or a
// fatal server error occurs.
func (a *App) Run(ctx context.Context) error {
	// A store we cannot reach is fatal; serving without it would turn
	// every request into an error.
	if err := a.store.Connect(ctx); err != nil {
		return fmt.Errorf("storage connect: %w", err)
	}
	defer func() {
		if err := a.store.Disconnect(context.Background()); err != nil {
			logger.Error("storage_disconnect_failed", "error", err)
		}
	}()

	if err := a.runMigrationGate(ctx); err != nil {
		return err
	}

	sweepCancel, err := sweeper.Start(ctx, a.store, a.cfg.Sweep)
	if err != nil {
		return fmt.Errorf("sweep scheduler: %w", err)
	}
	defer sweepCancel()

	a.ready.Store(true)
	banner.Print(a.cfg, a.version)

	errCh := a.startHTTP()
	select {
	case <-ctx.Done():
		a.ready.Store(false)
		shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := a.srv.Shutdown(shutCtx); err != nil {
			logger.Error("http_shutdown_failed", "error", err)
		}
		return nil
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

// runMigrationGate refuses traffic until the schema is current. Only the
// tree backend carries the legacy layout; the native backend is assumed
// provisioned at the current schema.
func (a *App) runMigrationGate(ctx context.Context) error {
	if a.cfg.Storage.Backend != config.BackendTree {
		logger.Info("migration_gate_skipped", "backend", a.cfg.Storage.Backend)
		return nil
	}
	m, err := migrate.New(a.store, state.DeadLetterPath(a.cfg.Storage.StateDir))
	if err != nil {
		return fmt.Errorf("migration gate: %w", err)
	}
	res, err := m.Run(ctx)
	if err != nil {
		return fmt.Errorf("migration gate: %w", err)
	}
	logger.Info("migration_gate_passed",
		"status", string(res.Status),
		"posts", res.MigratedPosts,
		"replies", res.MigratedReplies,
		"skipped", res.Skipped)
	return nil
}
