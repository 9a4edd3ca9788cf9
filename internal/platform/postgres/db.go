package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx driver
)

// driverName is the database/sql driver registered by pgx/v5/stdlib
const driverName = "pgx"

// pingTimeout bounds the connectivity check performed by Open
const pingTimeout = 5 * time.Second

// Open connects to the database at dbURL and verifies the connection.
func Open(ctx context.Context, dbURL string, logger *slog.Logger) (*sql.DB, error) {
	if dbURL == "" {
		return nil, fmt.Errorf("database URL is empty: check your configuration")
	}

	logger = logger.With("component", "postgres")
	logger.Info("opening database connection", "url", MaskURL(dbURL))

	db, err := sql.Open(driverName, dbURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	// One connection per active subscriber is held for LISTEN, the rest serve
	// publish/set/get.
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("database ping timed out after %s: %w", pingTimeout, err)
		}
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Debug("database connection established")
	return db, nil
}

// MaskURL masks the password in a database URL for safe logging.
func MaskURL(dbURL string) string {
	parsedURL, err := url.Parse(dbURL)
	if err != nil {
		return "invalid-url"
	}

	if parsedURL.User != nil {
		if _, hasPassword := parsedURL.User.Password(); hasPassword {
			parsedURL.User = url.UserPassword(parsedURL.User.Username(), "****")
		}
		return parsedURL.String()
	}
	return dbURL
}
