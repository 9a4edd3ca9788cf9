package task

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// State is the lifecycle state of a Unit.
type State int

const (
	StateRunning State = iota
	StateCompleted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Unit is one concurrently scheduled execution of a Description.
//
// The unit goroutine stores its raw outcome and closes done; only the driver
// turns that into the terminal state. Monitors read under the lock.
type Unit struct {
	desc   Description
	timing *Timing

	// done is closed after pending is written by the unit goroutine
	done    chan struct{}
	pending outcome

	mu       sync.RWMutex
	state    State
	recorded bool
	result   any
	err      error
}

func newUnit(d Description) *Unit {
	u := &Unit{
		desc:  d,
		done:  make(chan struct{}),
		state: StateRunning,
	}
	if d.Kind == KindPeriodic && d.Monitor {
		u.timing = NewTiming(DefaultTimingCapacity)
	}
	return u
}

// ID returns the description id the unit was created from.
func (u *Unit) ID() uuid.UUID { return u.desc.ID }

// Name returns the unit's display name.
func (u *Unit) Name() string { return u.desc.Name }

// Kind returns the kind of the underlying description.
func (u *Unit) Kind() Kind { return u.desc.Kind }

// Description returns the description the unit was created from.
func (u *Unit) Description() Description { return u.desc }

// Timing returns the invocation timing buffer, or nil if the unit is not a
// monitored periodic unit.
func (u *Unit) Timing() *Timing { return u.timing }

// State returns the recorded state.
func (u *Unit) State() State {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.state
}

// observedState is State, except that a unit whose goroutine has already
// returned but which the driver has not recorded yet reports the state its
// outcome implies.
func (u *Unit) observedState() State {
	if s := u.State(); s != StateRunning {
		return s
	}
	select {
	case <-u.done:
		if u.pending.err != nil {
			return StateFailed
		}
		return StateCompleted
	default:
		return StateRunning
	}
}

// Outcome returns the terminal result and error. ok is false while the unit has
// not been through completion bookkeeping.
func (u *Unit) Outcome() (result any, err error, ok bool) {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.result, u.err, u.recorded
}

// finish is called once by the unit goroutine.
func (u *Unit) finish(o outcome) {
	u.pending = o
	close(u.done)
}

// record performs completion bookkeeping. It must only be called by the driver
// after done is closed.
func (u *Unit) record() State {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.recorded {
		return u.state
	}
	u.recorded = true
	u.result = u.pending.result
	if u.pending.err != nil {
		u.err = &TaskExecutionError{Task: u.desc.Name, Err: u.pending.err}
		u.state = StateFailed
	} else {
		u.state = StateCompleted
	}
	return u.state
}

// UnitSet is the ordered set of every unit created during a run.
type UnitSet struct {
	mu    sync.RWMutex
	units []*Unit
}

// Add appends u.
func (s *UnitSet) Add(u *Unit) {
	s.mu.Lock()
	s.units = append(s.units, u)
	s.mu.Unlock()
}

// All returns a copy of the units in creation order.
func (s *UnitSet) All() []*Unit {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Unit, len(s.units))
	copy(out, s.units)
	return out
}

// Len returns the number of units.
func (s *UnitSet) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.units)
}
