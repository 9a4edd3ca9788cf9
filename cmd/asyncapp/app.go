package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/phrazzld/asyncapp/internal/app"
	"github.com/phrazzld/asyncapp/internal/auth"
	"github.com/phrazzld/asyncapp/internal/config"
	"github.com/phrazzld/asyncapp/internal/messenger"
	"github.com/phrazzld/asyncapp/internal/platform/postgres"
	"github.com/phrazzld/asyncapp/internal/probe"
	"github.com/phrazzld/asyncapp/internal/task"
	"golang.org/x/sync/errgroup"
)

// application holds all the shared application dependencies to simplify management
// and ensure proper cleanup on shutdown.
type application struct {
	config *config.Config
	logger *slog.Logger

	// db is nil unless the postgres messenger is used
	db        *sql.DB
	messenger messenger.Messenger

	runtime *app.App

	// sampler is nil when the platform cannot be inspected
	sampler *probe.Sampler

	// tokenService is nil when no JWT secret is configured
	tokenService auth.TokenService
}

// newApplication creates a new application instance with all dependencies
// initialized and every configured task registered.
func newApplication(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*application, error) {
	a := &application{
		config: cfg,
		logger: logger,
	}

	var err error
	a.messenger, err = a.setupMessenger(ctx)
	if err != nil {
		return nil, err
	}

	a.runtime = app.New(*cfg, a.messenger, logger)

	a.sampler, err = probe.NewSampler(logger)
	if err != nil {
		logger.Warn("resource monitoring unavailable", "error", err)
	}

	if err := a.runtime.AddMonitors(cfg.Monitoring, a.sampler); err != nil {
		a.cleanup()
		return nil, fmt.Errorf("failed to add monitors: %w", err)
	}

	if cfg.Demo.Enabled {
		if err := registerDemo(a.runtime, cfg.Demo, logger); err != nil {
			a.cleanup()
			return nil, fmt.Errorf("failed to add demo tasks: %w", err)
		}
	}

	if cfg.Server.JWTSecret != "" {
		a.tokenService, err = auth.NewTokenService(cfg.Server)
		if err != nil {
			a.cleanup()
			return nil, fmt.Errorf("failed to initialize token service: %w", err)
		}
		logger.Info("operator authentication enabled",
			"token_lifetime", cfg.Server.TokenLifetime)
	}

	logger.Info("application initialized", "app", a.runtime.Name())
	return a, nil
}

// setupMessenger creates the configured messenger backend.
func (a *application) setupMessenger(ctx context.Context) (messenger.Messenger, error) {
	switch a.config.Messenger.Backend {
	case "postgres":
		db, err := postgres.Open(ctx, a.config.Messenger.DatabaseURL, a.logger)
		if err != nil {
			return nil, err
		}
		a.db = db

		if a.config.Messenger.AutoMigrate {
			if err := postgres.Migrate(ctx, db, "up", a.logger); err != nil {
				a.cleanup()
				return nil, fmt.Errorf("failed to migrate messenger schema: %w", err)
			}
		}
		return postgres.NewPostgresMessenger(db, a.logger), nil

	default:
		return messenger.NewInMemoryMessenger(a.logger), nil
	}
}

// Run executes the task runtime and, when enabled, the status server. The
// server keeps serving for the configured linger period once every task has
// returned, or until ctx is cancelled.
func (a *application) Run(ctx context.Context) ([]task.Record, error) {
	g, gctx := errgroup.WithContext(ctx)

	serverCtx, stopServer := context.WithCancel(gctx)
	defer stopServer()

	var records []task.Record
	g.Go(func() error {
		var err error
		records, err = a.runtime.Run(ctx)
		if err == nil {
			a.linger(gctx)
		}
		stopServer()
		return err
	})

	if a.config.Server.Enabled {
		router := a.setupRouter(serverCtx)
		g.Go(func() error {
			if err := a.startHTTPServer(serverCtx, router); err != nil {
				a.runtime.Exit("status server failed")
				return fmt.Errorf("server error: %w", err)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return records, err
	}
	return records, nil
}

// linger blocks for the server linger period, ending early when ctx is done.
func (a *application) linger(ctx context.Context) {
	d := a.config.Server.Linger
	if !a.config.Server.Enabled || d <= 0 {
		return
	}

	a.logger.Info("run finished, serving results", "linger", d)
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}

// cleanup handles graceful shutdown of application resources.
func (a *application) cleanup() {
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Error("error closing database connection", "error", err)
		}
		a.db = nil
	}
	a.logger.Info("application shutdown completed")
}
