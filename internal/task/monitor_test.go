package task

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/phrazzld/asyncapp/internal/messenger"
	"github.com/phrazzld/asyncapp/internal/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func monitorFixture(t *testing.T) *UnitSet {
	t.Helper()
	units := &UnitSet{}

	running := newUnit(mustDescription(t)(Continuous(returning(nil), WithName("worker"))))
	units.Add(running)
	units.Add(finishedUnit(t, "loader", "ok", nil))
	units.Add(finishedUnit(t, "broken", nil, errors.New("bad")))

	// Finished but not yet recorded by the driver
	pending := newUnit(mustDescription(t)(Continuous(returning(nil), WithName("pending"))))
	pending.finish(outcome{result: 1})
	units.Add(pending)

	crashed := newUnit(mustDescription(t)(Continuous(returning(nil), WithName("crashed"))))
	crashed.finish(outcome{err: errors.New("lost connection")})
	units.Add(crashed)

	return units
}

func TestMonitorSnapshot(t *testing.T) {
	m := NewMonitor(monitorFixture(t), &mocks.MockMessenger{}, "test_app", testLogger())

	s := m.Snapshot()
	assert.Equal(t, 1, s.Running.Count)
	assert.Equal(t, []string{"worker"}, s.Running.Tasks)
	assert.Equal(t, 2, s.Done.Count)
	assert.Equal(t, []string{"loader", "pending"}, s.Done.Tasks)
	assert.Equal(t, 2, s.Failed.Count)
	assert.Equal(t, []string{"broken", "crashed"}, s.Failed.Tasks)
}

func TestMonitorSnapshot_DoesNotRecordUnits(t *testing.T) {
	units := monitorFixture(t)
	NewMonitor(units, &mocks.MockMessenger{}, "test_app", testLogger()).Snapshot()

	for _, u := range units.All() {
		if u.Name() != "pending" {
			continue
		}
		_, _, recorded := u.Outcome()
		assert.False(t, recorded, "completion bookkeeping stays with the driver")
		assert.Equal(t, StateRunning, u.State())
	}
}

func TestMonitorSnapshot_EmptyGroupsEncodeAsLists(t *testing.T) {
	m := NewMonitor(&UnitSet{}, &mocks.MockMessenger{}, "test_app", testLogger())

	data, err := json.Marshal(m.Snapshot())
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"running": {"count": 0, "tasks": []},
		"done": {"count": 0, "tasks": []},
		"failed": {"count": 0, "tasks": []}
	}`, string(data))
}

func TestMonitorPeriodicals(t *testing.T) {
	units := &UnitSet{}

	monitored := newUnit(mustDescription(t)(Periodic(returning(nil), 10, WithMonitor(), WithName("sampled"))))
	base := time.Unix(1000, 0)
	for i := 0; i < 5; i++ {
		monitored.Timing().Record(base.Add(time.Duration(i) * 100 * time.Millisecond))
	}
	units.Add(monitored)

	fresh := newUnit(mustDescription(t)(Periodic(returning(nil), 2, WithMonitor(), WithName("fresh"))))
	units.Add(fresh)

	// Unmonitored periodic units are not reported
	units.Add(newUnit(mustDescription(t)(Periodic(returning(nil), 1, WithName("quiet")))))

	reports := NewMonitor(units, &mocks.MockMessenger{}, "test_app", testLogger()).Periodicals()
	require.Len(t, reports, 2)

	assert.Equal(t, "sampled", reports[0].Name)
	assert.Equal(t, "ok", reports[0].Status)
	assert.Equal(t, 5, reports[0].Samples)
	assert.InDelta(t, 10.0, reports[0].Frequency, 1e-6)
	assert.InDelta(t, 10.0, reports[0].Target, 1e-9)

	assert.Equal(t, "fresh", reports[1].Name)
	assert.Equal(t, "insufficient data", reports[1].Status)
	assert.Zero(t, reports[1].Frequency)
}

func TestMonitorTaskMonitor_PublishesAndSets(t *testing.T) {
	mock := &mocks.MockMessenger{}
	m := NewMonitor(monitorFixture(t), mock, "test_app", testLogger())

	result, err := m.TaskMonitor(context.Background(), Args{})
	require.NoError(t, err)
	assert.Nil(t, result)

	published := mock.Published()
	require.Len(t, published, 1)
	assert.Equal(t, "test_app:task_monitor", published[0].Namespace)

	var got Snapshot
	require.NoError(t, json.Unmarshal(published[0].Payload, &got))
	assert.Equal(t, 2, got.Failed.Count)

	var stored Snapshot
	require.NoError(t, mock.Get(context.Background(), "test_app:task_monitor", &stored))
	assert.Equal(t, got, stored)
}

func TestMonitorPeriodicalsMonitor_PublishesAndSets(t *testing.T) {
	mock := &mocks.MockMessenger{}
	m := NewMonitor(&UnitSet{}, mock, "test_app", testLogger())

	_, err := m.PeriodicalsMonitor(context.Background(), Args{})
	require.NoError(t, err)

	require.Len(t, mock.Published(), 1)
	require.Len(t, mock.Sets(), 1)
	assert.Equal(t, "test_app:periodicals_monitor", mock.Sets()[0].Namespace)
	assert.JSONEq(t, `[]`, string(mock.Sets()[0].Payload))
}

func TestMonitorTaskMonitor_TransportErrors(t *testing.T) {
	t.Run("publish fails", func(t *testing.T) {
		setCalled := false
		mock := &mocks.MockMessenger{
			PublishFn: func(ctx context.Context, namespace string, payload any) error {
				return messenger.ErrTransport
			},
			SetFn: func(ctx context.Context, namespace string, payload any) error {
				setCalled = true
				return nil
			},
		}
		m := NewMonitor(&UnitSet{}, mock, "test_app", testLogger())

		_, err := m.TaskMonitor(context.Background(), Args{})
		assert.ErrorIs(t, err, messenger.ErrTransport)
		assert.Contains(t, err.Error(), "failed to publish test_app:task_monitor")
		assert.False(t, setCalled)
	})

	t.Run("set fails", func(t *testing.T) {
		mock := &mocks.MockMessenger{
			SetFn: func(ctx context.Context, namespace string, payload any) error {
				return messenger.ErrTransport
			},
		}
		m := NewMonitor(&UnitSet{}, mock, "test_app", testLogger())

		_, err := m.TaskMonitor(context.Background(), Args{})
		assert.ErrorIs(t, err, messenger.ErrTransport)
		assert.Contains(t, err.Error(), "failed to set")
	})
}

func TestMonitor_AsPeriodicUnit(t *testing.T) {
	registry := NewRegistry(testLogger())
	mock := &mocks.MockMessenger{}
	d := newTestDriver(registry, time.Second)
	m := NewMonitor(d.Units(), mock, "test_app", testLogger())

	require.NoError(t, registry.AddAll([]Spec{
		{Kind: "periodic", Name: "task_monitor", Frequency: 100, Function: m.TaskMonitor},
		{Kind: "continuous", Name: "worker", Function: func(ctx context.Context, args Args) (any, error) {
			<-ctx.Done()
			return nil, nil
		}},
	}))

	time.AfterFunc(100*time.Millisecond, d.Flag().Stop)
	records, err := d.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 2)

	published := mock.Published()
	require.NotEmpty(t, published)

	var first Snapshot
	require.NoError(t, json.Unmarshal(published[0].Payload, &first))
	assert.Equal(t, 2, first.Running.Count)
}
