package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/phrazzld/asyncapp/internal/config"
	"github.com/phrazzld/asyncapp/internal/messenger"
	"github.com/phrazzld/asyncapp/internal/probe"
	"github.com/phrazzld/asyncapp/internal/task"
)

// ErrRunNotFinished is returned by Results while the run is still going.
var ErrRunNotFinished = errors.New("run has not finished")

// App is a single-process task runtime.
type App struct {
	name      string
	registry  *task.Registry
	flag      *task.RunFlag
	driver    *task.Driver
	monitor   *task.Monitor
	messenger messenger.Messenger
	logger    *slog.Logger

	mu       sync.RWMutex
	records  []task.Record
	finished bool
}

// New creates an application publishing its status through m.
func New(cfg config.Config, m messenger.Messenger, logger *slog.Logger) *App {
	registry := task.NewRegistry(logger)
	flag := task.NewRunFlag()
	driver := task.NewDriver(registry, flag, task.DriverConfig{
		Pool: task.WorkerPoolConfig{
			WorkerCount: cfg.App.WorkerCount,
			QueueSize:   cfg.App.QueueSize,
		},
		ShutdownGrace: cfg.App.ShutdownGrace,
	}, logger)

	return &App{
		name:      cfg.App.Name,
		registry:  registry,
		flag:      flag,
		driver:    driver,
		monitor:   task.NewMonitor(driver.Units(), m, cfg.App.Name, logger),
		messenger: m,
		logger:    logger.With("component", "app"),
	}
}

// Name returns the application name namespaces are prefixed with.
func (a *App) Name() string { return a.name }

// Messenger returns the messenger status is published through.
func (a *App) Messenger() messenger.Messenger { return a.messenger }

// Monitor returns the task state monitor of the run.
func (a *App) Monitor() *task.Monitor { return a.monitor }

// AddTask adds a free-form task declaration.
func (a *App) AddTask(spec task.Spec) (task.Description, error) {
	return a.registry.Add(spec)
}

// AddTasks adds every declaration, keeping going past invalid ones.
func (a *App) AddTasks(specs []task.Spec) error {
	return a.registry.AddAll(specs)
}

// AddTaskDescription adds a description built by one of the task constructors.
func (a *App) AddTaskDescription(d task.Description) error {
	return a.registry.AddDescription(d)
}

// AddPeriodical schedules fn at frequency Hz. A zero frequency disables the
// task: nothing is added and no error is returned.
func (a *App) AddPeriodical(fn task.Func, frequency float64, opts ...task.Option) error {
	if frequency == 0 {
		a.logger.Debug("periodical disabled by zero frequency")
		return nil
	}

	d, err := task.Periodic(fn, frequency, opts...)
	if err != nil {
		return err
	}
	return a.registry.AddDescription(d)
}

// AddMonitors registers the built-in monitors at their configured
// frequencies. sampler may be nil, in which case the process and system
// monitors are skipped.
func (a *App) AddMonitors(cfg config.MonitoringConfig, sampler *probe.Sampler) error {
	var errs []error
	add := func(name string, fn task.Func, frequency float64, opts ...task.Option) {
		opts = append(opts, task.WithName(name))
		if err := a.AddPeriodical(fn, frequency, opts...); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}

	add("task_monitor", a.monitor.TaskMonitor, cfg.TaskFrequency)
	add("periodicals_monitor", a.monitor.PeriodicalsMonitor, cfg.PeriodicalsFrequency)

	if sampler != nil {
		add("process_monitor", sampler.ProcessMonitor(a.messenger, a.name), cfg.ProcessFrequency, task.WithBlocking())
		add("system_monitor", sampler.SystemMonitor(a.messenger, a.name), cfg.SystemFrequency, task.WithBlocking())
	}

	return errors.Join(errs...)
}

// Run executes every registered task until the run flag stops and all units
// have returned, then records and returns the results. Cancelling ctx is a
// hard cancellation.
func (a *App) Run(ctx context.Context) ([]task.Record, error) {
	a.logger.Info("starting application", "app", a.name)

	records, err := a.driver.Run(ctx)
	if err != nil {
		return nil, err
	}

	a.mu.Lock()
	a.records = records
	a.finished = true
	a.mu.Unlock()

	return records, nil
}

// KeepRunning reports whether the run flag is still set.
func (a *App) KeepRunning() bool {
	return a.flag.KeepRunning()
}

// Stop clears the run flag, asking every unit to return.
func (a *App) Stop() {
	a.flag.Stop()
}

// Exit stops the run on behalf of reason, e.g. a received signal.
func (a *App) Exit(reason string) {
	if a.flag.KeepRunning() {
		a.logger.Info("exit requested", "reason", reason)
	}
	a.flag.Stop()
}

// Done is closed once the run flag has stopped.
func (a *App) Done() <-chan struct{} {
	return a.flag.Done()
}

// Results returns the records of a finished run.
func (a *App) Results() ([]task.Record, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if !a.finished {
		return nil, ErrRunNotFinished
	}
	out := make([]task.Record, len(a.records))
	copy(out, a.records)
	return out, nil
}

// Snapshot classifies the units of the run.
func (a *App) Snapshot() task.Snapshot {
	return a.monitor.Snapshot()
}

// Periodicals reports the observed frequencies of monitored periodic units.
func (a *App) Periodicals() []task.PeriodicalReport {
	return a.monitor.Periodicals()
}
