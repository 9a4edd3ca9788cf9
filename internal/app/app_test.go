package app

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/phrazzld/asyncapp/internal/config"
	"github.com/phrazzld/asyncapp/internal/messenger"
	"github.com/phrazzld/asyncapp/internal/mocks"
	"github.com/phrazzld/asyncapp/internal/platform/logger"
	"github.com/phrazzld/asyncapp/internal/probe"
	"github.com/phrazzld/asyncapp/internal/task"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() config.Config {
	return config.Config{
		App: config.AppConfig{
			Name:          "test_app",
			LogLevel:      "debug",
			WorkerCount:   4,
			QueueSize:     4,
			ShutdownGrace: time.Second,
		},
		Messenger: config.MessengerConfig{Backend: "memory"},
	}
}

func newTestApp(m messenger.Messenger) *App {
	if m == nil {
		m = &mocks.MockMessenger{}
	}
	return New(testConfig(), m, logger.DiscardLogger())
}

func waitForever(ctx context.Context, _ task.Args) (any, error) {
	<-ctx.Done()
	return "stopped", nil
}

func TestApp_RunAndResults(t *testing.T) {
	a := newTestApp(nil)
	assert.Equal(t, "test_app", a.Name())

	_, err := a.Results()
	assert.ErrorIs(t, err, ErrRunNotFinished)

	require.NoError(t, a.AddTasks([]task.Spec{
		{Kind: "init", Name: "return42", Function: func(ctx context.Context, _ task.Args) (any, error) {
			return 42, nil
		}},
		{Kind: "continuous", Name: "waiter", Function: waitForever},
		{Kind: "continuous", Name: "exceptional", Function: func(ctx context.Context, _ task.Args) (any, error) {
			return nil, errors.New("this task raises")
		}},
	}))

	time.AfterFunc(50*time.Millisecond, func() { a.Exit("test finished") })

	records, err := a.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.False(t, a.KeepRunning())

	stored, err := a.Results()
	require.NoError(t, err)
	assert.Equal(t, records, stored)

	results, exceptions, unqueryable := task.Summarize(stored)
	assert.Equal(t, []any{42}, results["return42"])
	assert.Equal(t, []any{"stopped"}, results["waiter"])
	assert.Contains(t, exceptions["exceptional"][0], "this task raises")
	assert.Empty(t, unqueryable)
}

func TestApp_AddPeriodical(t *testing.T) {
	a := newTestApp(nil)

	var calls atomic.Int32
	tick := func(ctx context.Context, _ task.Args) (any, error) {
		calls.Add(1)
		return nil, nil
	}

	require.NoError(t, a.AddPeriodical(tick, 0), "zero frequency disables the task")
	assert.ErrorIs(t, a.AddPeriodical(tick, -2), task.ErrInvalidFrequency)
	require.NoError(t, a.AddPeriodical(tick, 100, task.WithName("tick"), task.WithMonitor()))

	time.AfterFunc(100*time.Millisecond, a.Stop)
	records, err := a.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "tick", records[0].Name)
	assert.Equal(t, int(calls.Load()), records[0].Result)

	reports := a.Periodicals()
	require.Len(t, reports, 1)
	assert.Equal(t, "tick", reports[0].Name)
}

func TestApp_AddMonitors(t *testing.T) {
	mock := &mocks.MockMessenger{}
	a := newTestApp(mock)

	sampler, err := probe.NewSampler(logger.DiscardLogger())
	require.NoError(t, err)

	require.NoError(t, a.AddMonitors(config.MonitoringConfig{
		TaskFrequency:        50,
		PeriodicalsFrequency: 50,
		ProcessFrequency:     0,
		SystemFrequency:      0,
	}, sampler))
	_, err = a.AddTask(task.Spec{Kind: "continuous", Name: "waiter", Function: waitForever})
	require.NoError(t, err)

	time.AfterFunc(150*time.Millisecond, a.Stop)
	records, err := a.Run(context.Background())
	require.NoError(t, err)

	names := make([]string, 0, len(records))
	for _, r := range records {
		names = append(names, r.Name)
	}
	assert.ElementsMatch(t, []string{"waiter", "task_monitor", "periodicals_monitor"}, names)

	namespaces := make(map[string]bool)
	for _, c := range mock.Published() {
		namespaces[c.Namespace] = true
	}
	assert.True(t, namespaces["test_app:task_monitor"])
	assert.True(t, namespaces["test_app:periodicals_monitor"])
	assert.False(t, namespaces["test_app:app_monitor"])

	var snapshot task.Snapshot
	require.NoError(t, mock.Get(context.Background(), "test_app:task_monitor", &snapshot))
}

func TestApp_AddMonitorsWithoutSampler(t *testing.T) {
	a := newTestApp(nil)

	require.NoError(t, a.AddMonitors(config.MonitoringConfig{
		TaskFrequency:    1,
		ProcessFrequency: 1,
		SystemFrequency:  1,
	}, nil))

	a.Stop()
	records, err := a.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "task_monitor", records[0].Name)
}

func TestApp_MonitorTransportErrorFailsUnit(t *testing.T) {
	mock := &mocks.MockMessenger{
		PublishFn: func(ctx context.Context, namespace string, payload any) error {
			return messenger.ErrTransport
		},
	}
	a := newTestApp(mock)

	require.NoError(t, a.AddMonitors(config.MonitoringConfig{TaskFrequency: 10}, nil))

	records, err := a.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Contains(t, records[0].Exception, "messenger transport error")
}

func TestApp_ExitIsIdempotent(t *testing.T) {
	a := newTestApp(nil)
	assert.True(t, a.KeepRunning())

	a.Exit("first")
	a.Exit("second")

	assert.False(t, a.KeepRunning())
	select {
	case <-a.Done():
	default:
		t.Fatal("done not closed after Exit")
	}
}

func TestApp_Snapshot(t *testing.T) {
	a := newTestApp(nil)
	_, err := a.AddTask(task.Spec{Kind: "continuous", Name: "waiter", Function: waitForever})
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = a.Run(context.Background())
	}()

	require.Eventually(t, func() bool {
		return a.Snapshot().Running.Count == 1
	}, time.Second, 5*time.Millisecond)

	a.Stop()
	<-done

	s := a.Snapshot()
	assert.Equal(t, 0, s.Running.Count)
	assert.Equal(t, []string{"waiter"}, s.Done.Tasks)
}
