package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/phrazzld/asyncapp/internal/messenger"
	"github.com/phrazzld/asyncapp/internal/redact"
)

// kvTable holds the latest value per namespace
const kvTable = "messenger_kv"

// maxNotifyPayload is the largest payload PostgreSQL accepts for NOTIFY
const maxNotifyPayload = 8000

// PostgresMessenger implements messenger.Messenger on top of PostgreSQL.
// Namespaces are used verbatim as NOTIFY channel names.
type PostgresMessenger struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ messenger.Messenger = (*PostgresMessenger)(nil)

// NewPostgresMessenger creates a messenger using db. The messenger_kv table
// must exist; see Migrate.
func NewPostgresMessenger(db *sql.DB, logger *slog.Logger) *PostgresMessenger {
	return &PostgresMessenger{
		db:     db,
		logger: logger.With("component", "postgres_messenger"),
	}
}

// Publish sends payload as a notification on the namespace channel.
func (m *PostgresMessenger) Publish(ctx context.Context, namespace string, payload any) error {
	data, err := messenger.Encode(payload)
	if err != nil {
		return err
	}
	if len(data) >= maxNotifyPayload {
		return fmt.Errorf("%w: payload of %d bytes exceeds the notification limit",
			messenger.ErrTransport, len(data))
	}

	if _, err := m.db.ExecContext(ctx, `SELECT pg_notify($1, $2)`, namespace, string(data)); err != nil {
		m.logger.Error("failed to publish message",
			"namespace", namespace,
			"error", redact.Error(err))
		return MapError(err)
	}
	return nil
}

// Set upserts payload as the latest value of namespace.
func (m *PostgresMessenger) Set(ctx context.Context, namespace string, payload any) error {
	data, err := messenger.Encode(payload)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO messenger_kv (namespace, payload, updated_at)
		VALUES ($1, $2::jsonb, NOW())
		ON CONFLICT (namespace)
		DO UPDATE SET payload = EXCLUDED.payload, updated_at = EXCLUDED.updated_at
	`
	if _, err := m.db.ExecContext(ctx, query, namespace, string(data)); err != nil {
		m.logger.Error("failed to set value",
			"namespace", namespace,
			"error", redact.Error(err))
		return MapError(err)
	}
	return nil
}

// Get decodes the latest value of namespace into dst.
func (m *PostgresMessenger) Get(ctx context.Context, namespace string, dst any) error {
	var data []byte
	err := m.db.QueryRowContext(ctx,
		`SELECT payload FROM messenger_kv WHERE namespace = $1`,
		namespace,
	).Scan(&data)
	if err != nil {
		return MapError(err)
	}

	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("%w: failed to decode value of %s: %v", messenger.ErrTransport, namespace, err)
	}
	return nil
}

// Subscribe holds a dedicated connection listening on the namespace channel
// and calls handler for every notification until ctx is cancelled.
func (m *PostgresMessenger) Subscribe(ctx context.Context, namespace string, handler messenger.Handler) error {
	conn, err := m.db.Conn(ctx)
	if err != nil {
		return MapError(err)
	}
	defer func() {
		if cerr := conn.Close(); cerr != nil {
			m.logger.Debug("failed to release listening connection", "error", redact.Error(cerr))
		}
	}()

	return conn.Raw(func(driverConn any) error {
		sc, ok := driverConn.(*stdlib.Conn)
		if !ok {
			return fmt.Errorf("%w: unexpected driver connection %T", messenger.ErrTransport, driverConn)
		}
		return m.listen(ctx, sc.Conn(), namespace, handler)
	})
}

func (m *PostgresMessenger) listen(
	ctx context.Context,
	conn *pgx.Conn,
	namespace string,
	handler messenger.Handler,
) error {
	channel := pgx.Identifier{namespace}.Sanitize()
	if _, err := conn.Exec(ctx, "LISTEN "+channel); err != nil {
		if IsCancellation(err) && ctx.Err() != nil {
			return nil
		}
		return MapError(err)
	}
	m.logger.Debug("listening", "namespace", namespace)

	defer func() {
		if conn.IsClosed() {
			return
		}
		if _, err := conn.Exec(context.Background(), "UNLISTEN "+channel); err != nil {
			m.logger.Debug("failed to unlisten", "namespace", namespace, "error", redact.Error(err))
		}
	}()

	for {
		n, err := conn.WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			m.logger.Error("stopped listening", "namespace", namespace, "error", redact.Error(err))
			return MapError(err)
		}

		msg := messenger.Message{Namespace: n.Channel, Payload: json.RawMessage(n.Payload)}
		if err := handler(ctx, msg); err != nil {
			m.logger.Error("subscriber failed to handle message",
				"namespace", namespace,
				"error", redact.Error(err))
		}
	}
}
