package engine

import (
	"sync"
	"time"
)

const tickInterval = time.Second

// TickFunc receives the recomputed remaining time once per tick.
type TickFunc func(remaining time.Duration)

// ExpireFunc is fired exactly once when the countdown reaches zero.
type ExpireFunc func()

// CountdownTimer is a wall-clock-anchored countdown. It is pinned to an
// absolute expiration instant computed once at start; every tick recomputes
// remaining time as max(0, expiresAt - now), which makes the countdown immune
// to missed ticks and lets a reload reconstruct it from a persisted snapshot
// instead of restarting a full duration. Tick granularity is one second.
type CountdownTimer struct {
	clock Clock
	sched Scheduler

	expiresAt time.Time
	onTick    TickFunc
	onExpire  ExpireFunc

	mu      sync.Mutex
	cancel  CancelFunc
	stopped bool
	expired bool
}

// StartCountdown starts a fresh countdown of the given duration.
func StartCountdown(clock Clock, sched Scheduler, duration time.Duration, onTick TickFunc, onExpire ExpireFunc) *CountdownTimer {
	return ResumeCountdown(clock, sched, clock.Now().Add(duration), onTick, onExpire)
}

// ResumeCountdown reconstructs a countdown from an absolute expiration
// instant, typically read back from a timer snapshot. If the instant is
// already in the past the countdown expires on its first tick.
func ResumeCountdown(clock Clock, sched Scheduler, expiresAt time.Time, onTick TickFunc, onExpire ExpireFunc) *CountdownTimer {
	t := &CountdownTimer{
		clock:     clock,
		sched:     sched,
		expiresAt: expiresAt,
		onTick:    onTick,
		onExpire:  onExpire,
	}

	t.mu.Lock()
	t.scheduleLocked()
	t.mu.Unlock()

	return t
}

// ExpiresAt returns the absolute expiration instant the countdown is
// anchored to.
func (t *CountdownTimer) ExpiresAt() time.Time {
	return t.expiresAt
}

// Remaining recomputes the remaining time from the expiration instant.
// Never negative.
func (t *CountdownTimer) Remaining() time.Duration {
	remaining := t.expiresAt.Sub(t.clock.Now())
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Expired reports whether the countdown has fired its expiration callback.
func (t *CountdownTimer) Expired() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.expired
}

// Stop cancels the countdown. Safe to call on an already-expired or
// already-stopped timer (no-op).
func (t *CountdownTimer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return
	}
	t.stopped = true
	if t.cancel != nil {
		t.cancel()
		t.cancel = nil
	}
}

// scheduleLocked arms the next tick. Caller holds t.mu.
func (t *CountdownTimer) scheduleLocked() {
	delay := tickInterval
	if remaining := t.Remaining(); remaining < delay {
		delay = remaining
	}
	t.cancel = t.sched.AfterFunc(delay, t.tick)
}

func (t *CountdownTimer) tick() {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return
	}

	remaining := t.Remaining()
	if remaining > 0 {
		t.scheduleLocked()
		onTick := t.onTick
		t.mu.Unlock()

		if onTick != nil {
			onTick(remaining)
		}
		return
	}

	// Reached zero: cancel own scheduling and fire onExpire exactly once.
	t.stopped = true
	t.expired = true
	t.cancel = nil
	onExpire := t.onExpire
	t.mu.Unlock()

	if onExpire != nil {
		onExpire()
	}
}
