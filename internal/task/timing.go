package task

import (
	"sync"
	"time"
)

// DefaultTimingCapacity is the number of invocation timestamps kept per
// monitored periodic unit.
const DefaultTimingCapacity = 21

// Timing is a fixed-capacity ring buffer of recent invocation timestamps.
// Once full, the oldest entry is overwritten.
type Timing struct {
	mu   sync.Mutex
	buf  []time.Time
	next int
	full bool
}

// NewTiming creates a buffer holding capacity timestamps. A non-positive
// capacity falls back to DefaultTimingCapacity.
func NewTiming(capacity int) *Timing {
	if capacity <= 0 {
		capacity = DefaultTimingCapacity
	}
	return &Timing{buf: make([]time.Time, capacity)}
}

// Record appends a timestamp.
func (t *Timing) Record(ts time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.buf[t.next] = ts
	t.next = (t.next + 1) % len(t.buf)
	if t.next == 0 {
		t.full = true
	}
}

// Len returns the number of stored timestamps.
func (t *Timing) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.full {
		return len(t.buf)
	}
	return t.next
}

// Cap returns the buffer capacity.
func (t *Timing) Cap() int {
	return len(t.buf)
}

// Samples returns the stored timestamps, oldest first.
func (t *Timing) Samples() []time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.full {
		out := make([]time.Time, t.next)
		copy(out, t.buf[:t.next])
		return out
	}

	out := make([]time.Time, 0, len(t.buf))
	out = append(out, t.buf[t.next:]...)
	out = append(out, t.buf[:t.next]...)
	return out
}

// Frequency returns the observed frequency in Hz, 1 / mean of the consecutive
// deltas. It reports false with fewer than two samples.
func (t *Timing) Frequency() (float64, bool) {
	samples := t.Samples()
	if len(samples) < 2 {
		return 0, false
	}

	// The mean of consecutive deltas telescopes to (last - first) / (n - 1).
	span := samples[len(samples)-1].Sub(samples[0])
	if span <= 0 {
		return 0, false
	}
	mean := span.Seconds() / float64(len(samples)-1)
	return 1 / mean, true
}
