package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/phrazzld/asyncapp/internal/messenger"
)

// PostgreSQL error codes
const (
	// undefinedTableCode is returned when messenger_kv does not exist yet
	undefinedTableCode = "42P01"

	// invalidParameterValueCode is returned by pg_notify for oversized payloads
	invalidParameterValueCode = "22023"
)

// MapError maps a database error to the matching messenger error.
// The original error is wrapped to preserve context.
func MapError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, sql.ErrNoRows) || errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: %v", messenger.ErrNotFound, err)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case undefinedTableCode:
			return fmt.Errorf(
				"%w: table %s is missing, run the migrations: %v",
				messenger.ErrTransport,
				kvTable,
				err,
			)
		case invalidParameterValueCode:
			return fmt.Errorf(
				"%w: notification payload rejected (%s): %v",
				messenger.ErrTransport,
				pgErr.Message,
				err,
			)
		}
	}

	return fmt.Errorf("%w: %v", messenger.ErrTransport, err)
}

// IsUndefinedTable checks if err reports a missing table.
func IsUndefinedTable(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == undefinedTableCode
}

// IsCancellation reports whether err stems from context cancellation rather
// than from the database.
func IsCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
