package task

import (
	"fmt"
	"log/slog"
	"sync"
)

// ShutdownHooks collects functions that run exactly once when a run ends,
// in registration order.
type ShutdownHooks struct {
	mu     sync.Mutex
	hooks  []hook
	once   sync.Once
	ran    bool
	logger *slog.Logger
}

type hook struct {
	name string
	fn   func() error
}

// NewShutdownHooks creates an empty hook list.
func NewShutdownHooks(logger *slog.Logger) *ShutdownHooks {
	return &ShutdownHooks{
		logger: logger.With("component", "shutdown_hooks"),
	}
}

// Register adds fn. Hooks registered after Run has fired are ignored.
func (h *ShutdownHooks) Register(name string, fn func() error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.ran {
		h.logger.Warn("ignoring shutdown hook registered after shutdown", "hook", name)
		return
	}
	h.hooks = append(h.hooks, hook{name: name, fn: fn})
	h.logger.Debug("registered shutdown hook", "hook", name, "hook_count", len(h.hooks))
}

// Len returns the number of registered hooks.
func (h *ShutdownHooks) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.hooks)
}

// Run executes every hook once. A failing or panicking hook is logged and does
// not prevent the others from running. Subsequent calls do nothing and return 0.
func (h *ShutdownHooks) Run() int {
	executed := 0
	h.once.Do(func() {
		h.mu.Lock()
		h.ran = true
		hooks := make([]hook, len(h.hooks))
		copy(hooks, h.hooks)
		h.mu.Unlock()

		h.logger.Info("running shutdown hooks", "hook_count", len(hooks))
		for _, hk := range hooks {
			if err := runHook(hk); err != nil {
				h.logger.Error("shutdown hook failed", "hook", hk.name, "error", err)
			}
			executed++
		}
	})
	return executed
}

func runHook(hk hook) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("%w: %v", ErrPanicked, p)
		}
	}()
	return hk.fn()
}
