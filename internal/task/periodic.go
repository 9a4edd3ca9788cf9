package task

import (
	"context"
	"time"
)

// periodicLoop invokes an action at a target frequency while the run flag is set.
//
// Each tick sleeps for max(0, 1/f - elapsed), where elapsed covers the action and
// the monitoring callback. A tick that overruns the period is followed
// immediately by the next one; missed ticks are never replayed.
type periodicLoop struct {
	action    func(ctx context.Context) error
	frequency float64
	flag      *RunFlag
	onTick    func(time.Time)
	now       func() time.Time
}

// newPeriodicLoop wraps action. frequency must be positive.
func newPeriodicLoop(action func(ctx context.Context) error, frequency float64, flag *RunFlag) *periodicLoop {
	return &periodicLoop{
		action:    action,
		frequency: frequency,
		flag:      flag,
		now:       time.Now,
	}
}

// WithMonitor attaches a callback invoked right after every action with the
// completion time, so it sees the actual cadence.
func (p *periodicLoop) WithMonitor(onTick func(time.Time)) *periodicLoop {
	p.onTick = onTick
	return p
}

// Period is the target interval between invocations.
func (p *periodicLoop) Period() time.Duration {
	return time.Duration(float64(time.Second) / p.frequency)
}

// Run loops until the flag stops or ctx is cancelled and returns the number of
// invocations. An action error ends the loop and is returned as is.
func (p *periodicLoop) Run(ctx context.Context) (int, error) {
	period := p.Period()
	invocations := 0

	for p.flag.KeepRunning() && ctx.Err() == nil {
		start := p.now()

		if err := p.action(ctx); err != nil {
			return invocations, err
		}
		invocations++

		if p.onTick != nil {
			p.onTick(p.now())
		}

		if sleepFor := period - p.now().Sub(start); sleepFor > 0 {
			p.sleep(ctx, sleepFor)
		}
	}
	return invocations, nil
}

// sleep suspends for d, waking early when ctx is cancelled or the flag stops.
func (p *periodicLoop) sleep(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
	case <-ctx.Done():
	case <-p.flag.Done():
	}
}
