package task

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// WorkerPool runs blocking task functions on a fixed set of worker goroutines,
// so a call that never yields cannot hold up the driver. Results travel back to
// the caller on a per-job channel.
//
// A blocking continuous unit occupies one worker for its whole lifetime, so
// WorkerCount must exceed the number of blocking units expected to run at once.
type WorkerPool struct {
	// jobs is the queue workers consume from
	jobs chan job

	// workerCount is the number of concurrent workers to start
	workerCount int

	// wg tracks active worker goroutines for clean shutdown
	wg sync.WaitGroup

	// ctx is cancelled by Stop
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	started bool
	stopped bool

	// submitting is held shared by Submit while it enqueues; Stop takes it
	// exclusively so no job can enter the queue after the final drain
	submitting sync.RWMutex

	logger *slog.Logger
}

// WorkerPoolConfig holds configuration options for the worker pool
type WorkerPoolConfig struct {
	// WorkerCount determines how many concurrent worker goroutines to start
	// If zero or negative, defaults to 1
	WorkerCount int

	// QueueSize is the buffer of jobs waiting for a free worker
	// If zero or negative, defaults to WorkerCount
	QueueSize int
}

// DefaultWorkerPoolConfig returns a WorkerPoolConfig with reasonable defaults
func DefaultWorkerPoolConfig() WorkerPoolConfig {
	return WorkerPoolConfig{
		WorkerCount: 32,
		QueueSize:   64,
	}
}

// outcome is the terminal value of one function call.
type outcome struct {
	result any
	err    error
}

type job struct {
	ctx  context.Context
	name string
	fn   Func
	args Args
	done chan outcome
}

// NewWorkerPool creates a new worker pool with the specified configuration
func NewWorkerPool(config WorkerPoolConfig, logger *slog.Logger) *WorkerPool {
	logger = logger.With("component", "worker_pool")

	// Apply defaults for invalid config values
	workerCount := config.WorkerCount
	if workerCount <= 0 {
		workerCount = 1
		logger.Warn("invalid worker count specified, using default",
			"specified_count", config.WorkerCount,
			"default_count", 1)
	}
	queueSize := config.QueueSize
	if queueSize <= 0 {
		queueSize = workerCount
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &WorkerPool{
		jobs:        make(chan job, queueSize),
		workerCount: workerCount,
		ctx:         ctx,
		cancel:      cancel,
		logger:      logger,
	}
}

// Start launches the workers. Calling Start more than once is a no-op.
func (p *WorkerPool) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started || p.stopped {
		return
	}
	p.started = true

	for i := 0; i < p.workerCount; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
	p.logger.Debug("worker pool started", "worker_count", p.workerCount)
}

// Stop signals the workers to exit once their current job returns and waits
// for them until ctx expires. Jobs still queued are answered with ErrPoolClosed,
// also when the wait times out.
func (p *WorkerPool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return nil
	}
	p.stopped = true
	p.mu.Unlock()

	p.cancel()
	p.submitting.Lock()
	//nolint:staticcheck // empty critical section waits out in-flight Submit calls
	p.submitting.Unlock()

	waited := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(waited)
	}()

	select {
	case <-waited:
		p.drainQueued()
		p.logger.Debug("worker pool stopped")
		return nil
	case <-ctx.Done():
		p.drainQueued()
		p.logger.Warn("worker pool stop timed out, blocking jobs still running",
			"error", ctx.Err())
		return ctx.Err()
	}
}

// Submit queues fn and returns the channel its outcome is delivered on. The
// channel always receives exactly one value.
func (p *WorkerPool) Submit(ctx context.Context, name string, fn Func, args Args) <-chan outcome {
	done := make(chan outcome, 1)

	p.submitting.RLock()
	defer p.submitting.RUnlock()

	p.mu.Lock()
	stopped := p.stopped
	p.mu.Unlock()
	if stopped || p.ctx.Err() != nil {
		done <- outcome{err: ErrPoolClosed}
		return done
	}

	select {
	case p.jobs <- job{ctx: ctx, name: name, fn: fn, args: args, done: done}:
		p.logger.Debug("blocking job queued",
			"task", name,
			"queue_len", len(p.jobs),
			"queue_cap", cap(p.jobs))
	case <-ctx.Done():
		done <- outcome{err: ctx.Err()}
	case <-p.ctx.Done():
		done <- outcome{err: ErrPoolClosed}
	}
	return done
}

// worker processes jobs from the queue
func (p *WorkerPool) worker(id int) {
	defer p.wg.Done()

	p.logger.Debug("starting worker", "worker_id", id)

	for {
		select {
		case <-p.ctx.Done():
			p.logger.Debug("stopping worker", "worker_id", id)
			return

		case j := <-p.jobs:
			result, err := call(j.ctx, j.fn, j.args)
			j.done <- outcome{result: result, err: err}
		}
	}
}

func (p *WorkerPool) drainQueued() {
	for {
		select {
		case j := <-p.jobs:
			j.done <- outcome{err: ErrPoolClosed}
		default:
			return
		}
	}
}

// call invokes fn, converting a panic into an error wrapping ErrPanicked.
func call(ctx context.Context, fn Func, args Args) (result any, err error) {
	defer func() {
		if p := recover(); p != nil {
			result = nil
			err = fmt.Errorf("%w: %v", ErrPanicked, p)
		}
	}()
	return fn(ctx, args)
}
