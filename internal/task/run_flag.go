package task

import (
	"context"
	"sync"
	"sync/atomic"
)

// RunFlag is the cooperative shutdown signal shared by every unit of a run.
// It starts out running; Stop flips it exactly once and closes Done.
type RunFlag struct {
	stopped atomic.Bool
	once    sync.Once
	done    chan struct{}
}

// NewRunFlag returns a flag in the running state.
func NewRunFlag() *RunFlag {
	return &RunFlag{done: make(chan struct{})}
}

// KeepRunning reports whether the flag is still set.
func (f *RunFlag) KeepRunning() bool {
	return !f.stopped.Load()
}

// Stop clears the flag. It is safe to call more than once and from any goroutine.
func (f *RunFlag) Stop() {
	f.once.Do(func() {
		f.stopped.Store(true)
		close(f.done)
	})
}

// Done is closed once Stop has been called.
func (f *RunFlag) Done() <-chan struct{} {
	return f.done
}

// Context derives a context from parent that is also cancelled when the flag
// stops. Units receive this context, so ctx.Done() doubles as the run flag at
// every suspension point.
func (f *RunFlag) Context(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	go func() {
		select {
		case <-f.done:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}
