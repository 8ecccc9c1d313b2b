package engine

import "time"

// Clock provides the current time. Injected so tests can substitute a
// controllable fake instead of relying on real wall-clock delays.
type Clock interface {
	Now() time.Time
}

// CancelFunc cancels a scheduled callback. Reports whether the callback was
// cancelled before it ran.
type CancelFunc func() bool

// Scheduler schedules a callback to run after a delay.
type Scheduler interface {
	AfterFunc(d time.Duration, fn func()) CancelFunc
}

// SystemClock is the wall-clock Clock used outside tests.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// SystemScheduler schedules callbacks on the runtime timer heap.
type SystemScheduler struct{}

func (SystemScheduler) AfterFunc(d time.Duration, fn func()) CancelFunc {
	t := time.AfterFunc(d, fn)
	return t.Stop
}
