//go:build integration

package testdb

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/phrazzld/asyncapp/internal/platform/postgres"
	"github.com/stretchr/testify/require"
)

// TestTimeout defines a default timeout for test database operations.
const TestTimeout = 5 * time.Second

// databaseURLEnvVars are checked in order of precedence
var databaseURLEnvVars = []string{"ASYNCAPP_TEST_DB_URL", "DATABASE_URL"}

// DatabaseURL returns the first configured test database URL, or "".
func DatabaseURL() string {
	for _, envVar := range databaseURLEnvVars {
		if v := os.Getenv(envVar); v != "" {
			return v
		}
	}
	return ""
}

// ciEnvVars are set by the common CI providers
var ciEnvVars = []string{"CI", "GITHUB_ACTIONS", "GITLAB_CI", "JENKINS_URL", "CIRCLECI"}

// IsCI reports whether the tests run in a CI environment.
func IsCI() bool {
	for _, envVar := range ciEnvVars {
		if os.Getenv(envVar) != "" {
			return true
		}
	}
	return false
}

// ShouldSkipDatabaseTest reports whether no test database is configured.
func ShouldSkipDatabaseTest() bool {
	return DatabaseURL() == ""
}

// GetTestDBWithT opens the test database, applies the migrations and closes
// the connection when the test ends. The test is skipped without a database.
func GetTestDBWithT(t *testing.T) *sql.DB {
	t.Helper()

	if ShouldSkipDatabaseTest() {
		if IsCI() {
			t.Fatal("no test database configured in CI, set ASYNCAPP_TEST_DB_URL or DATABASE_URL")
		}
		t.Skip("no test database configured, set ASYNCAPP_TEST_DB_URL or DATABASE_URL")
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	ctx, cancel := context.WithTimeout(context.Background(), TestTimeout)
	defer cancel()

	db, err := postgres.Open(ctx, DatabaseURL(), logger)
	require.NoError(t, err, "failed to open test database")

	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Logf("failed to close test database: %v", err)
		}
	})

	require.NoError(t, postgres.Migrate(ctx, db, "up", logger), "failed to apply migrations")
	return db
}

// ResetNamespace removes any stored value for namespace so tests start clean.
func ResetNamespace(t *testing.T, db *sql.DB, namespace string) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), TestTimeout)
	defer cancel()

	_, err := db.ExecContext(ctx, `DELETE FROM messenger_kv WHERE namespace = $1`, namespace)
	require.NoError(t, err, "failed to reset namespace %s", namespace)
}
