package task

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func recordByName(records []Record) map[string]Record {
	out := make(map[string]Record, len(records))
	for _, r := range records {
		out[r.Name] = r
	}
	return out
}

func TestDriverRun_MixedOutcomes(t *testing.T) {
	registry := NewRegistry(testLogger())
	release := make(chan struct{})
	defer close(release)

	require.NoError(t, registry.AddAll([]Spec{
		{Kind: "continuous", Name: "A", Function: returning(42)},
		{Kind: "continuous", Name: "B", Function: func(ctx context.Context, args Args) (any, error) {
			return nil, errors.New("x")
		}},
		// C ignores cancellation and outlives the grace period
		{Kind: "continuous", Name: "C", Function: func(ctx context.Context, args Args) (any, error) {
			<-release
			return "late", nil
		}},
	}))

	d := newTestDriver(registry, 100*time.Millisecond)
	time.AfterFunc(50*time.Millisecond, d.Flag().Stop)

	records, err := d.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 3)

	byName := recordByName(records)
	assert.Equal(t, 42, byName["A"].Result)
	assert.Empty(t, byName["A"].Exception)

	assert.Contains(t, byName["B"].Exception, "x")
	assert.Nil(t, byName["B"].Result)

	assert.True(t, byName["C"].Unqueryable)

	results, exceptions, unqueryable := Summarize(records)
	assert.Equal(t, map[string][]any{"A": {42}}, results)
	assert.Len(t, exceptions["B"], 1)
	assert.Equal(t, []string{"C"}, unqueryable)
}

func TestDriverRun_OneRecordPerUnit(t *testing.T) {
	registry := NewRegistry(testLogger())

	const n = 12
	for i := 0; i < n; i++ {
		fn := returning(i)
		if i == 5 {
			fn = func(ctx context.Context, args Args) (any, error) {
				return nil, errors.New("unit five failed")
			}
		}
		_, err := registry.Add(Spec{Kind: "continuous", Function: fn})
		require.NoError(t, err)
	}

	d := newTestDriver(registry, time.Second)
	records, err := d.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, records, n)

	failed := 0
	for _, r := range records {
		assert.False(t, r.Unqueryable)
		if r.Exception != "" {
			failed++
		}
	}
	assert.Equal(t, 1, failed)
}

func TestDriverRun_PhaseOrder(t *testing.T) {
	registry := NewRegistry(testLogger())

	var (
		initDone       atomic.Bool
		listenerDone   atomic.Bool
		cleanups       atomic.Int32
		cleanupTooSoon atomic.Bool
	)

	require.NoError(t, registry.AddAll([]Spec{
		{Kind: "cleanup", Name: "cleanup", Function: func(ctx context.Context, args Args) (any, error) {
			if !listenerDone.Load() {
				cleanupTooSoon.Store(true)
			}
			cleanups.Add(1)
			return nil, nil
		}},
		{Kind: "continuous", Name: "reader", Function: func(ctx context.Context, args Args) (any, error) {
			return initDone.Load(), nil
		}},
		{Kind: "continuous", Name: "listener", Function: func(ctx context.Context, args Args) (any, error) {
			<-ctx.Done()
			time.Sleep(10 * time.Millisecond)
			listenerDone.Store(true)
			return "closed", nil
		}},
		{Kind: "init", Name: "loader", Function: func(ctx context.Context, args Args) (any, error) {
			time.Sleep(20 * time.Millisecond)
			initDone.Store(true)
			return "loaded", nil
		}},
	}))

	d := newTestDriver(registry, time.Second)
	time.AfterFunc(50*time.Millisecond, d.Flag().Stop)

	records, err := d.Run(context.Background())
	require.NoError(t, err)

	// Cleanup descriptions become hooks, not units
	require.Len(t, records, 3)
	byName := recordByName(records)
	assert.Equal(t, "loaded", byName["loader"].Result)
	assert.Equal(t, true, byName["reader"].Result)
	assert.Equal(t, "closed", byName["listener"].Result)
	assert.Equal(t, int32(1), cleanups.Load())
	assert.False(t, cleanupTooSoon.Load(), "cleanup ran before the long-lived unit returned")
	assert.False(t, d.Flag().KeepRunning())

	_, err = d.Run(context.Background())
	assert.ErrorIs(t, err, ErrAlreadyRunning)
	assert.Equal(t, int32(1), cleanups.Load())
}

func TestDriverRun_InitFailureDoesNotStopRun(t *testing.T) {
	registry := NewRegistry(testLogger())
	require.NoError(t, registry.AddAll([]Spec{
		{Kind: "init", Name: "broken", Function: func(ctx context.Context, args Args) (any, error) {
			return nil, errors.New("config missing")
		}},
		{Kind: "continuous", Name: "worker", Function: returning("ran")},
	}))

	records, err := newTestDriver(registry, time.Second).Run(context.Background())
	require.NoError(t, err)

	byName := recordByName(records)
	assert.Contains(t, byName["broken"].Exception, "config missing")
	assert.Equal(t, "ran", byName["worker"].Result)
}

func TestDriverRun_PeriodicStopsWithFlag(t *testing.T) {
	registry := NewRegistry(testLogger())

	var ticks atomic.Int32
	_, err := registry.Add(Spec{
		Kind:      "periodic",
		Name:      "ticker",
		Frequency: 50,
		Monitor:   true,
		Function: func(ctx context.Context, args Args) (any, error) {
			ticks.Add(1)
			return nil, nil
		},
	})
	require.NoError(t, err)
	_, err = registry.Add(Spec{
		Kind: "continuous",
		Name: "stopper",
		Function: func(ctx context.Context, args Args) (any, error) {
			<-ctx.Done()
			return "stopped", nil
		},
	})
	require.NoError(t, err)

	d := newTestDriver(registry, time.Second)
	time.AfterFunc(200*time.Millisecond, d.Flag().Stop)

	records, err := d.Run(context.Background())
	require.NoError(t, err)

	byName := recordByName(records)
	count, ok := byName["ticker"].Result.(int)
	require.True(t, ok, "periodic result is its invocation count")
	assert.Equal(t, int(ticks.Load()), count)
	assert.Positive(t, count)
	assert.Equal(t, "stopped", byName["stopper"].Result)
}

func TestDriverRun_BlockingAndPanics(t *testing.T) {
	registry := NewRegistry(testLogger())
	require.NoError(t, registry.AddAll([]Spec{
		{Kind: "continuous", Name: "crunch", Blocking: true, Function: func(ctx context.Context, args Args) (any, error) {
			time.Sleep(10 * time.Millisecond)
			return args.Arg(0), nil
		}, Args: []any{"crunched"}},
		{Kind: "continuous", Name: "explode", Function: func(ctx context.Context, args Args) (any, error) {
			panic("nil map")
		}},
	}))

	records, err := newTestDriver(registry, time.Second).Run(context.Background())
	require.NoError(t, err)

	byName := recordByName(records)
	assert.Equal(t, "crunched", byName["crunch"].Result)
	assert.Contains(t, byName["explode"].Exception, "task panicked: nil map")
}

func TestDriverRun_HardCancellation(t *testing.T) {
	registry := NewRegistry(testLogger())

	var cleaned atomic.Bool
	require.NoError(t, registry.AddAll([]Spec{
		{Kind: "continuous", Name: "waiter", Function: func(ctx context.Context, args Args) (any, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		}},
		{Kind: "cleanup", Name: "cleanup", Function: func(ctx context.Context, args Args) (any, error) {
			cleaned.Store(true)
			return nil, nil
		}},
	}))

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(30*time.Millisecond, cancel)

	records, err := newTestDriver(registry, time.Second).Run(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.True(t, cleaned.Load(), "cleanup still runs after hard cancellation")

	// The waiter either made it through the sweep or was left unqueryable
	r := records[0]
	assert.True(t, r.Unqueryable || r.Exception != "")
}

func TestDriverRun_BlockingCleanupWithSaturatedPool(t *testing.T) {
	registry := NewRegistry(testLogger())
	release := make(chan struct{})
	defer close(release)

	var cleaned atomic.Bool
	require.NoError(t, registry.AddAll([]Spec{
		// Holds the only worker and ignores cancellation
		{Kind: "continuous", Name: "stuck", Blocking: true, Function: func(ctx context.Context, args Args) (any, error) {
			<-release
			return nil, nil
		}},
		{Kind: "cleanup", Name: "flush", Blocking: true, Function: func(ctx context.Context, args Args) (any, error) {
			cleaned.Store(true)
			return nil, nil
		}},
	}))

	cfg := DefaultDriverConfig()
	cfg.Pool = WorkerPoolConfig{WorkerCount: 1, QueueSize: 1}
	cfg.ShutdownGrace = 50 * time.Millisecond
	d := NewDriver(registry, NewRunFlag(), cfg, testLogger())
	time.AfterFunc(20*time.Millisecond, d.Flag().Stop)

	type runResult struct {
		records []Record
		err     error
	}
	done := make(chan runResult, 1)
	go func() {
		records, err := d.Run(context.Background())
		done <- runResult{records: records, err: err}
	}()

	select {
	case res := <-done:
		require.NoError(t, res.err)
		require.Len(t, res.records, 1)
		assert.True(t, res.records[0].Unqueryable)
		assert.True(t, cleaned.Load(), "blocking cleanup runs even with every worker busy")
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return with the worker pool saturated")
	}
}

func TestDriverRun_CleanupBoundedByGrace(t *testing.T) {
	registry := NewRegistry(testLogger())
	release := make(chan struct{})
	defer close(release)

	_, err := registry.Add(Spec{Kind: "cleanup", Name: "hang", Function: func(ctx context.Context, args Args) (any, error) {
		<-release
		return nil, nil
	}})
	require.NoError(t, err)

	d := newTestDriver(registry, 50*time.Millisecond)
	d.Flag().Stop()

	start := time.Now()
	records, err := d.Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, records)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestDriverCreate_Once(t *testing.T) {
	registry := NewRegistry(testLogger())
	_, err := registry.Add(Spec{Kind: "init", Function: returning(1)})
	require.NoError(t, err)

	d := newTestDriver(registry, time.Second)
	ctx := context.Background()

	first := d.Create(ctx, KindInit)
	require.Len(t, first, 1)
	assert.Empty(t, d.Create(ctx, KindInit))
	assert.Equal(t, 1, d.Units().Len())

	finished, err := d.RunToCompletion(ctx, first)
	require.NoError(t, err)
	require.Len(t, finished, 1)
	assert.Equal(t, StateCompleted, finished[0].State())
}

func TestRunToCompletion_GraceExpires(t *testing.T) {
	registry := NewRegistry(testLogger())
	release := make(chan struct{})
	defer close(release)

	_, err := registry.Add(Spec{Kind: "continuous", Function: func(ctx context.Context, args Args) (any, error) {
		<-release
		return nil, nil
	}})
	require.NoError(t, err)

	d := newTestDriver(registry, 50*time.Millisecond)
	units := d.Create(context.Background(), KindContinuous)
	d.Flag().Stop()

	finished, err := d.RunToCompletion(context.Background(), units)
	assert.ErrorIs(t, err, ErrShutdownTimeout)
	assert.Empty(t, finished)
	assert.Equal(t, StateRunning, units[0].State())
}

func TestRunToCompletion_Empty(t *testing.T) {
	d := newTestDriver(NewRegistry(testLogger()), time.Second)
	finished, err := d.RunToCompletion(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, finished)
}
