package task

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// DriverConfig holds configuration for the execution driver
type DriverConfig struct {
	// Pool configures the worker pool used for blocking functions
	Pool WorkerPoolConfig

	// ShutdownGrace bounds how long RunToCompletion keeps waiting for units once
	// the run flag has stopped. Units still running afterwards are reported as
	// unqueryable. Zero waits indefinitely.
	ShutdownGrace time.Duration
}

// DefaultDriverConfig returns a DriverConfig with reasonable defaults
func DefaultDriverConfig() DriverConfig {
	return DriverConfig{
		Pool:          DefaultWorkerPoolConfig(),
		ShutdownGrace: 5 * time.Second,
	}
}

// Driver turns registered descriptions into running units, phase by phase.
type Driver struct {
	registry *Registry
	flag     *RunFlag
	pool     *WorkerPool
	hooks    *ShutdownHooks
	units    *UnitSet
	config   DriverConfig
	logger   *slog.Logger

	mu      sync.Mutex
	created map[uuid.UUID]struct{}

	running atomic.Bool
}

// NewDriver creates a driver executing the descriptions of registry.
func NewDriver(registry *Registry, flag *RunFlag, config DriverConfig, logger *slog.Logger) *Driver {
	return &Driver{
		registry: registry,
		flag:     flag,
		pool:     NewWorkerPool(config.Pool, logger),
		hooks:    NewShutdownHooks(logger),
		units:    &UnitSet{},
		config:   config,
		logger:   logger.With("component", "task_driver"),
		created:  make(map[uuid.UUID]struct{}),
	}
}

// Units returns every unit created so far.
func (d *Driver) Units() *UnitSet { return d.units }

// Hooks returns the shutdown hooks cleanup descriptions are registered with.
func (d *Driver) Hooks() *ShutdownHooks { return d.hooks }

// Flag returns the run flag shared by all units.
func (d *Driver) Flag() *RunFlag { return d.flag }

// Create starts one unit per description of kind, in registry order, and adds
// it to the unit set. Cleanup descriptions are registered as shutdown hooks
// instead and produce no units. A description that already produced a unit is
// skipped.
func (d *Driver) Create(ctx context.Context, kind Kind) []*Unit {
	descs := d.registry.Get(kind)
	d.pool.Start()

	if kind == KindCleanup {
		for _, desc := range descs {
			if !d.claim(desc) {
				continue
			}
			d.hooks.Register(desc.Name, d.cleanupHook(desc))
		}
		return nil
	}

	units := make([]*Unit, 0, len(descs))
	for _, desc := range descs {
		if !d.claim(desc) {
			continue
		}

		u := newUnit(desc)
		d.units.Add(u)
		go d.execute(ctx, u)

		d.logger.Debug("created task unit",
			"task", desc.Name,
			"task_id", desc.ID,
			"kind", kind.String(),
			"mode", desc.Mode.String())
		units = append(units, u)
	}
	return units
}

// claim reserves desc for this run, reporting false if it was already used.
func (d *Driver) claim(desc Description) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.created[desc.ID]; ok {
		d.logger.Warn("skipping task description",
			"task", desc.Name,
			"task_id", desc.ID,
			"error", ErrAlreadyCreated)
		return false
	}
	d.created[desc.ID] = struct{}{}
	return true
}

// execute runs the unit to its end and hands the outcome back through done.
func (d *Driver) execute(ctx context.Context, u *Unit) {
	var o outcome
	if u.Kind() == KindPeriodic {
		o.result, o.err = d.periodicFor(u).Run(ctx)
	} else {
		o.result, o.err = d.invoke(ctx, u.desc)
	}
	u.finish(o)
}

func (d *Driver) periodicFor(u *Unit) *periodicLoop {
	action := func(ctx context.Context) error {
		_, err := d.invoke(ctx, u.desc)
		return err
	}

	p := newPeriodicLoop(action, u.desc.Frequency, d.flag)
	if t := u.Timing(); t != nil {
		p.WithMonitor(t.Record)
	}
	return p
}

// invoke calls the description's function once, offloading blocking ones.
func (d *Driver) invoke(ctx context.Context, desc Description) (any, error) {
	if desc.Mode == Blocking {
		o := <-d.pool.Submit(ctx, desc.Name, desc.Fn, desc.Args)
		return o.result, o.err
	}
	return call(ctx, desc.Fn, desc.Args)
}

func (d *Driver) cleanupContext() (context.Context, context.CancelFunc) {
	if d.config.ShutdownGrace > 0 {
		return context.WithTimeout(context.Background(), d.config.ShutdownGrace)
	}
	return context.WithCancel(context.Background())
}

// cleanupHook runs desc on its own goroutine rather than the worker pool, which
// may still be held by blocking units that ignored shutdown. The wait is bounded
// by the shutdown grace period.
func (d *Driver) cleanupHook(desc Description) func() error {
	return func() error {
		d.logger.Info("running cleanup task", "task", desc.Name)

		ctx, cancel := d.cleanupContext()
		defer cancel()

		done := make(chan outcome, 1)
		go func() {
			result, err := call(ctx, desc.Fn, desc.Args)
			done <- outcome{result: result, err: err}
		}()

		select {
		case o := <-done:
			return o.err
		case <-ctx.Done():
			return fmt.Errorf("cleanup task %s: %w", desc.Name, ErrShutdownTimeout)
		}
	}
}

// RunToCompletion waits for every unit in units to finish and records its
// terminal state, in completion order. A failing unit never stops the wait on
// its siblings. The wait ends early when ctx is cancelled, or when the run flag
// has been stopped for longer than the shutdown grace period; the units that
// finished are returned together with the reason.
func (d *Driver) RunToCompletion(ctx context.Context, units []*Unit) ([]*Unit, error) {
	finished := make([]*Unit, 0, len(units))
	if len(units) == 0 {
		return finished, nil
	}

	stop := make(chan struct{})
	defer close(stop)

	completions := make(chan *Unit, len(units))
	for _, u := range units {
		go func(u *Unit) {
			select {
			case <-u.done:
				completions <- u
			case <-stop:
			}
		}(u)
	}

	flagDone := d.flag.Done()
	var grace <-chan time.Time

	for len(finished) < len(units) {
		select {
		case u := <-completions:
			d.recordUnit(u)
			finished = append(finished, u)

		case <-ctx.Done():
			d.logger.Warn("stopped waiting for tasks",
				"reason", "cancelled",
				"outstanding", len(units)-len(finished))
			return finished, ctx.Err()

		case <-flagDone:
			flagDone = nil
			if d.config.ShutdownGrace > 0 {
				timer := time.NewTimer(d.config.ShutdownGrace)
				defer timer.Stop()
				grace = timer.C
			}

		case <-grace:
			d.logger.Warn("stopped waiting for tasks",
				"reason", "shutdown grace period expired",
				"grace", d.config.ShutdownGrace,
				"outstanding", len(units)-len(finished))
			return finished, ErrShutdownTimeout
		}
	}
	return finished, nil
}

func (d *Driver) recordUnit(u *Unit) {
	switch u.record() {
	case StateFailed:
		_, err, _ := u.Outcome()
		d.logger.Error("task failed with an error",
			"task", u.Name(),
			"task_id", u.ID(),
			"error", err)
	default:
		result, _, _ := u.Outcome()
		d.logger.Info("task completed",
			"task", u.Name(),
			"task_id", u.ID(),
			"result", result)
	}
}

// Run executes all registered descriptions in strict phase order:
//
//  1. cleanup descriptions are registered as shutdown hooks
//  2. init units are created and drained; failures do not stop the run
//  3. continuous and periodic units are created together and drained
//  4. shutdown hooks run once
//  5. every unit is turned into a Record
//
// Cancelling ctx is a hard cancellation: units see it through their context
// and the driver stops waiting, but cleanup still runs and records are still
// returned. Run may be called once per driver.
func (d *Driver) Run(ctx context.Context) ([]Record, error) {
	if !d.running.CompareAndSwap(false, true) {
		return nil, ErrAlreadyRunning
	}

	d.logger.Info("starting run", "description_count", d.registry.Len())

	unitCtx, cancelUnits := d.flag.Context(ctx)
	defer cancelUnits()

	d.Create(unitCtx, KindCleanup)

	inits := d.Create(unitCtx, KindInit)
	if _, err := d.RunToCompletion(ctx, inits); err != nil {
		d.logger.Warn("init phase interrupted", "error", err)
	}

	if ctx.Err() == nil {
		longLived := d.Create(unitCtx, KindContinuous)
		longLived = append(longLived, d.Create(unitCtx, KindPeriodic)...)

		d.logger.Info("waiting for tasks to finish", "unit_count", len(longLived))
		if _, err := d.RunToCompletion(ctx, longLived); err != nil {
			d.logger.Warn("run interrupted", "error", err)
		}
	}

	d.flag.Stop()
	cancelUnits()

	d.hooks.Run()
	d.stopPool()
	d.sweep()

	records := Aggregate(d.units.All())
	d.logOutcome(records)
	return records, nil
}

// sweep records units that finished after their drain stopped waiting.
func (d *Driver) sweep() {
	for _, u := range d.units.All() {
		if _, _, ok := u.Outcome(); ok {
			continue
		}
		select {
		case <-u.done:
			d.recordUnit(u)
		default:
		}
	}
}

func (d *Driver) stopPool() {
	timeout := d.config.ShutdownGrace
	if timeout < time.Second {
		timeout = time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := d.pool.Stop(ctx); err != nil {
		d.logger.Warn("worker pool did not stop cleanly", "error", err)
	}
}

func (d *Driver) logOutcome(records []Record) {
	results, exceptions, unqueryable := Summarize(records)
	for _, name := range unqueryable {
		d.logger.Warn("task did not reach a terminal state",
			"task", name,
			"error", ErrUnqueryableState)
	}
	d.logger.Info("all work is done",
		"results", results,
		"exceptions", exceptions,
		"unqueryable", unqueryable)
}
