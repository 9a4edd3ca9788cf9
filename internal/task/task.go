package task

import (
	"context"
	"fmt"
	"reflect"
	"runtime"
	"strings"

	"github.com/google/uuid"
)

// Func is the callable bound to a Description.
//
// Suspending functions must watch ctx: it is cancelled once the run flag is
// stopped, which is how long-lived continuous work learns it should return.
type Func func(ctx context.Context, args Args) (any, error)

// Args carries the positional and keyword arguments a Func is invoked with.
type Args struct {
	Positional []any
	Keyword    map[string]any
}

// Arg returns the i-th positional argument, or nil if there is none.
func (a Args) Arg(i int) any {
	if i < 0 || i >= len(a.Positional) {
		return nil
	}
	return a.Positional[i]
}

// Kwarg returns the keyword argument for key.
func (a Args) Kwarg(key string) (any, bool) {
	v, ok := a.Keyword[key]
	return v, ok
}

// Mode is the capability a function declares at registration.
type Mode int

const (
	// Suspending functions cooperate with ctx and run on their own goroutine.
	Suspending Mode = iota
	// Blocking functions may ignore ctx; they are offloaded to the WorkerPool
	// so they never stall the driver.
	Blocking
)

func (m Mode) String() string {
	switch m {
	case Suspending:
		return "suspending"
	case Blocking:
		return "blocking"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// Description is a validated, immutable task declaration.
type Description struct {
	// ID is generated when the description is built
	ID uuid.UUID

	// Name is derived from the function's identity unless set explicitly
	Name string

	Kind Kind
	Mode Mode
	Fn   Func
	Args Args

	// Frequency is the target invocation rate in Hz (periodic only)
	Frequency float64

	// Monitor records invocation timestamps so the observed frequency can be
	// reported (periodic only)
	Monitor bool
}

// Option customizes a Description built by one of the kind constructors.
type Option func(*Description)

// WithArgs sets the positional arguments.
func WithArgs(args ...any) Option {
	return func(d *Description) {
		d.Args.Positional = args
	}
}

// WithKwargs sets the keyword arguments.
func WithKwargs(kwargs map[string]any) Option {
	return func(d *Description) {
		d.Args.Keyword = kwargs
	}
}

// WithName overrides the derived display name.
func WithName(name string) Option {
	return func(d *Description) {
		d.Name = strings.TrimSpace(name)
	}
}

// WithBlocking marks the function as blocking so it is offloaded to the pool.
func WithBlocking() Option {
	return func(d *Description) {
		d.Mode = Blocking
	}
}

// WithMonitor enables invocation timing for a periodic description.
func WithMonitor() Option {
	return func(d *Description) {
		d.Monitor = true
	}
}

// Init builds a one-shot setup description.
func Init(fn Func, opts ...Option) (Description, error) {
	return newDescription(KindInit, fn, 0, opts)
}

// Continuous builds a long-running description.
func Continuous(fn Func, opts ...Option) (Description, error) {
	return newDescription(KindContinuous, fn, 0, opts)
}

// Periodic builds a description invoked at frequency Hz.
func Periodic(fn Func, frequency float64, opts ...Option) (Description, error) {
	return newDescription(KindPeriodic, fn, frequency, opts)
}

// Cleanup builds a description run once at shutdown.
func Cleanup(fn Func, opts ...Option) (Description, error) {
	return newDescription(KindCleanup, fn, 0, opts)
}

func newDescription(kind Kind, fn Func, frequency float64, opts []Option) (Description, error) {
	d := Description{
		Kind:      kind,
		Fn:        fn,
		Frequency: frequency,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&d)
		}
	}
	if err := d.finalize(); err != nil {
		return Description{}, err
	}
	return d, nil
}

// finalize validates the description and fills the generated fields.
func (d *Description) finalize() error {
	if d.Fn == nil {
		return fmt.Errorf("%w: function is required", ErrInvalidDescription)
	}

	switch d.Kind {
	case KindPeriodic:
		if !(d.Frequency > 0) {
			return fmt.Errorf("%w: periodic task needs a positive frequency, got %v",
				ErrInvalidFrequency, d.Frequency)
		}
	case KindInit, KindContinuous, KindCleanup:
		if d.Monitor {
			return fmt.Errorf("%w: monitor applies to periodic tasks only", ErrInvalidDescription)
		}
		if d.Frequency != 0 {
			return fmt.Errorf("%w: frequency applies to periodic tasks only", ErrInvalidDescription)
		}
	default:
		return fmt.Errorf("%w: %v", ErrUnknownTaskKind, d.Kind)
	}

	d.ID = uuid.New()
	if d.Name == "" {
		d.Name = funcName(d.Fn)
	}
	return nil
}

// funcName derives a readable name from the function's symbol, e.g.
// "main.sayHello" or "app.(*App).TaskMonitor".
func funcName(fn Func) string {
	f := runtime.FuncForPC(reflect.ValueOf(fn).Pointer())
	if f == nil {
		return "task"
	}
	name := f.Name()
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	return strings.TrimSuffix(name, "-fm")
}
