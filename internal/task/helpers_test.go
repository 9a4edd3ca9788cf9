package task

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/phrazzld/asyncapp/internal/platform/logger"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return logger.DiscardLogger()
}

// returning builds a Func that returns v.
func returning(v any) Func {
	return func(ctx context.Context, args Args) (any, error) {
		return v, nil
	}
}

// mustDescription unwraps a constructor result, failing the test on error:
// mustDescription(t)(Init(fn)).
func mustDescription(t *testing.T) func(Description, error) Description {
	return func(d Description, err error) Description {
		t.Helper()
		require.NoError(t, err)
		return d
	}
}

// finishedUnit builds a unit that already went through completion bookkeeping.
func finishedUnit(t *testing.T, name string, result any, err error) *Unit {
	t.Helper()
	d := mustDescription(t)(Init(returning(nil), WithName(name)))
	u := newUnit(d)
	u.finish(outcome{result: result, err: err})
	u.record()
	return u
}

func newTestDriver(registry *Registry, grace time.Duration) *Driver {
	cfg := DefaultDriverConfig()
	cfg.Pool = WorkerPoolConfig{WorkerCount: 4, QueueSize: 4}
	cfg.ShutdownGrace = grace
	return NewDriver(registry, NewRunFlag(), cfg, testLogger())
}
