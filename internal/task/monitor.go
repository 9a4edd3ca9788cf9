package task

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/phrazzld/asyncapp/internal/messenger"
)

// Namespace suffixes the monitors publish under.
const (
	TaskMonitorSuffix        = "task_monitor"
	PeriodicalsMonitorSuffix = "periodicals_monitor"
)

// StatusGroup is one bucket of a Snapshot.
type StatusGroup struct {
	Count int      `json:"count"`
	Tasks []string `json:"tasks"`
}

// Snapshot classifies every known unit at one point in time.
type Snapshot struct {
	Running StatusGroup `json:"running"`
	Done    StatusGroup `json:"done"`
	Failed  StatusGroup `json:"failed"`
}

// PeriodicalReport is the observed cadence of one monitored periodic unit.
type PeriodicalReport struct {
	Name   string  `json:"name"`
	Target float64 `json:"target_frequency"`

	// Frequency is zero when Status is "insufficient data"
	Frequency float64 `json:"frequency"`
	Samples   int     `json:"samples"`
	Status    string  `json:"status"`
}

const (
	periodicalOK           = "ok"
	periodicalInsufficient = "insufficient data"
)

// Monitor reports on the units of a run. It only reads unit state.
type Monitor struct {
	units     *UnitSet
	messenger messenger.Messenger
	appName   string
	logger    *slog.Logger
}

// NewMonitor creates a monitor over units publishing through m under
// namespaces prefixed with appName.
func NewMonitor(units *UnitSet, m messenger.Messenger, appName string, logger *slog.Logger) *Monitor {
	return &Monitor{
		units:     units,
		messenger: m,
		appName:   appName,
		logger:    logger.With("component", "task_monitor"),
	}
}

// Snapshot classifies every known unit into running, done and failed. A unit
// counts as done or failed as soon as its function has returned.
func (m *Monitor) Snapshot() Snapshot {
	s := Snapshot{
		Running: StatusGroup{Tasks: []string{}},
		Done:    StatusGroup{Tasks: []string{}},
		Failed:  StatusGroup{Tasks: []string{}},
	}

	for _, u := range m.units.All() {
		var g *StatusGroup
		switch u.observedState() {
		case StateCompleted:
			g = &s.Done
		case StateFailed:
			g = &s.Failed
		default:
			g = &s.Running
		}
		g.Count++
		g.Tasks = append(g.Tasks, u.Name())
	}
	return s
}

// Periodicals reports the observed frequency of every monitored periodic unit.
func (m *Monitor) Periodicals() []PeriodicalReport {
	reports := make([]PeriodicalReport, 0)
	for _, u := range m.units.All() {
		t := u.Timing()
		if t == nil {
			continue
		}

		r := PeriodicalReport{
			Name:    u.Name(),
			Target:  u.desc.Frequency,
			Samples: t.Len(),
			Status:  periodicalInsufficient,
		}
		if f, ok := t.Frequency(); ok {
			r.Frequency = f
			r.Status = periodicalOK
		}
		reports = append(reports, r)
	}
	return reports
}

// TaskMonitor publishes the current Snapshot and stores it as the latest
// value. It has the Func signature so it can be scheduled as a periodic task.
func (m *Monitor) TaskMonitor(ctx context.Context, _ Args) (any, error) {
	snapshot := m.Snapshot()
	if err := m.emit(ctx, TaskMonitorSuffix, snapshot); err != nil {
		return nil, err
	}

	m.logger.Debug("task status",
		"running", snapshot.Running.Count,
		"done", snapshot.Done.Count,
		"failed", snapshot.Failed.Count)
	return nil, nil
}

// PeriodicalsMonitor publishes the Periodicals report and stores it as the
// latest value.
func (m *Monitor) PeriodicalsMonitor(ctx context.Context, _ Args) (any, error) {
	reports := m.Periodicals()
	if err := m.emit(ctx, PeriodicalsMonitorSuffix, reports); err != nil {
		return nil, err
	}

	for _, r := range reports {
		m.logger.Debug("periodical frequency",
			"task", r.Name,
			"frequency", r.Frequency,
			"target", r.Target,
			"status", r.Status)
	}
	return nil, nil
}

func (m *Monitor) emit(ctx context.Context, suffix string, payload any) error {
	ns := messenger.Namespace(m.appName, suffix)
	if err := m.messenger.Publish(ctx, ns, payload); err != nil {
		return fmt.Errorf("failed to publish %s: %w", ns, err)
	}
	if err := m.messenger.Set(ctx, ns, payload); err != nil {
		return fmt.Errorf("failed to set %s: %w", ns, err)
	}
	return nil
}
