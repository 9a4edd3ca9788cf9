package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/phrazzld/asyncapp/internal/config"
	"github.com/phrazzld/asyncapp/internal/platform/postgres"
)

// handleMigrations runs a goose command against the messenger database.
func handleMigrations(ctx context.Context, cfg *config.Config, command string, logger *slog.Logger) error {
	if cfg.Messenger.DatabaseURL == "" {
		return fmt.Errorf("migrations need messenger.database_url to be set")
	}

	logger.Info("executing migrations",
		"command", command,
		"database", postgres.MaskURL(cfg.Messenger.DatabaseURL))

	db, err := postgres.Open(ctx, cfg.Messenger.DatabaseURL, logger)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := db.Close(); cerr != nil {
			logger.Error("error closing database connection", "error", cerr)
		}
	}()

	if err := postgres.Migrate(ctx, db, command, logger); err != nil {
		return fmt.Errorf("migration %s failed: %w", command, err)
	}
	logger.Info("migrations finished", "command", command)
	return nil
}
