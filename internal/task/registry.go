package task

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// Spec is the free-form declaration of a task, as it would come from a list of
// task records. Registry.Add normalizes it into a Description.
type Spec struct {
	// Kind is any recognized synonym of init, continuous, periodic or cleanup
	Kind string `validate:"required"`

	// Function is the callable to run
	Function Func `validate:"required"`

	// Name overrides the name derived from Function
	Name string

	Args   []any
	Kwargs map[string]any

	// Frequency in Hz, periodic only
	Frequency float64

	// CallEvery is the period in seconds, converted to Frequency = 1/CallEvery
	CallEvery float64

	// Monitor enables invocation timing, periodic only
	Monitor bool

	// Blocking offloads Function to the worker pool
	Blocking bool
}

// Registry holds descriptions grouped by kind in insertion order.
type Registry struct {
	mu       sync.RWMutex
	byKind   map[Kind][]Description
	validate *validator.Validate
	logger   *slog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		byKind:   make(map[Kind][]Description, len(Kinds())),
		validate: validator.New(),
		logger:   logger.With("component", "task_registry"),
	}
}

// Add normalizes spec and inserts it. Unknown kinds and invalid frequencies are
// rejected; the registry is left unchanged in that case.
func (r *Registry) Add(spec Spec) (Description, error) {
	if err := r.validate.Struct(spec); err != nil {
		r.logger.Error("dropping invalid task description", "error", err)
		return Description{}, fmt.Errorf("%w: %v", ErrInvalidDescription, err)
	}

	kind, err := ParseKind(spec.Kind)
	if err != nil {
		r.logger.Error("dropping task description with unknown kind",
			"kind", spec.Kind,
			"error", err)
		return Description{}, err
	}

	frequency := spec.Frequency
	if kind == KindPeriodic && frequency == 0 && spec.CallEvery > 0 {
		frequency = 1 / spec.CallEvery
	}

	opts := []Option{WithName(spec.Name)}
	if len(spec.Args) > 0 {
		opts = append(opts, WithArgs(spec.Args...))
	}
	if spec.Kwargs != nil {
		opts = append(opts, WithKwargs(spec.Kwargs))
	}
	if spec.Monitor {
		opts = append(opts, WithMonitor())
	}
	if spec.Blocking {
		opts = append(opts, WithBlocking())
	}

	d, err := newDescription(kind, spec.Function, frequency, opts)
	if err != nil {
		r.logger.Error("dropping task description",
			"kind", kind.String(),
			"error", err)
		return Description{}, err
	}

	r.insert(d)
	return d, nil
}

// AddAll adds every spec, continuing past invalid entries. The returned error
// joins the individual failures.
func (r *Registry) AddAll(specs []Spec) error {
	var errs []error
	for i, spec := range specs {
		if _, err := r.Add(spec); err != nil {
			errs = append(errs, fmt.Errorf("task description %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}

// AddDescription inserts a description built by one of the kind constructors.
func (r *Registry) AddDescription(d Description) error {
	if d.ID == uuid.Nil {
		return fmt.Errorf("%w: description was not built by a constructor", ErrInvalidDescription)
	}
	r.insert(d)
	return nil
}

func (r *Registry) insert(d Description) {
	r.mu.Lock()
	r.byKind[d.Kind] = append(r.byKind[d.Kind], d)
	r.mu.Unlock()

	r.logger.Info("task description added",
		"task", d.Name,
		"task_id", d.ID,
		"kind", d.Kind.String(),
		"mode", d.Mode.String(),
		"frequency", d.Frequency)
}

// Get returns a copy of the descriptions of kind, in insertion order.
func (r *Registry) Get(kind Kind) []Description {
	r.mu.RLock()
	defer r.mu.RUnlock()

	src := r.byKind[kind]
	out := make([]Description, len(src))
	copy(out, src)
	return out
}

// Len returns the number of descriptions across all kinds.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, ds := range r.byKind {
		n += len(ds)
	}
	return n
}
