package engine

import (
	"sync"
	"testing"
	"time"
)

func TestCountdownTicksRecomputeRemaining(t *testing.T) {
	clock := newFakeClock()
	sched := newFakeScheduler(clock)

	var mu sync.Mutex
	var ticks []time.Duration
	timer := StartCountdown(clock, sched, 5*time.Second, func(remaining time.Duration) {
		mu.Lock()
		ticks = append(ticks, remaining)
		mu.Unlock()
	}, nil)

	sched.advance(3 * time.Second)

	mu.Lock()
	defer mu.Unlock()
	want := []time.Duration{4 * time.Second, 3 * time.Second, 2 * time.Second}
	if len(ticks) != len(want) {
		t.Fatalf("got %d ticks, want %d", len(ticks), len(want))
	}
	for i, remaining := range want {
		if ticks[i] != remaining {
			t.Errorf("tick %d: remaining = %v, want %v", i, ticks[i], remaining)
		}
	}
	if timer.Remaining() != 2*time.Second {
		t.Errorf("Remaining() = %v, want 2s", timer.Remaining())
	}
}

func TestCountdownResumeFromAbsoluteInstant(t *testing.T) {
	clock := newFakeClock()
	sched := newFakeScheduler(clock)

	expiresAt := clock.Now().Add(90 * time.Second)
	timer := ResumeCountdown(clock, sched, expiresAt, nil, nil)

	if timer.Remaining() != 90*time.Second {
		t.Fatalf("Remaining() = %v, want 90s", timer.Remaining())
	}
	if !timer.ExpiresAt().Equal(expiresAt) {
		t.Fatalf("ExpiresAt() = %v, want %v", timer.ExpiresAt(), expiresAt)
	}

	sched.advance(30 * time.Second)
	if timer.Remaining() != 60*time.Second {
		t.Errorf("after 30s: Remaining() = %v, want 60s", timer.Remaining())
	}
	if timer.Expired() {
		t.Error("countdown expired with time remaining")
	}
}

func TestCountdownExpiryFiresExactlyOnce(t *testing.T) {
	clock := newFakeClock()
	sched := newFakeScheduler(clock)

	expirations := 0
	timer := StartCountdown(clock, sched, 3*time.Second, nil, func() {
		expirations++
	})

	sched.advance(10 * time.Second)

	if expirations != 1 {
		t.Fatalf("expirations = %d, want 1", expirations)
	}
	if !timer.Expired() {
		t.Error("Expired() = false after expiry")
	}
	if timer.Remaining() != 0 {
		t.Errorf("Remaining() = %v, want 0", timer.Remaining())
	}

	// Further advancing must not re-fire.
	sched.advance(10 * time.Second)
	if expirations != 1 {
		t.Errorf("expirations after extra advance = %d, want 1", expirations)
	}
}

func TestCountdownExpiredInstantExpiresImmediately(t *testing.T) {
	clock := newFakeClock()
	sched := newFakeScheduler(clock)

	expirations := 0
	expiresAt := clock.Now().Add(-time.Minute)
	timer := ResumeCountdown(clock, sched, expiresAt, nil, func() {
		expirations++
	})

	if timer.Remaining() != 0 {
		t.Fatalf("Remaining() = %v, want 0", timer.Remaining())
	}

	sched.advance(0)
	if expirations != 1 {
		t.Fatalf("expirations = %d, want 1", expirations)
	}
}

func TestCountdownStopIsIdempotent(t *testing.T) {
	clock := newFakeClock()
	sched := newFakeScheduler(clock)

	expirations := 0
	timer := StartCountdown(clock, sched, 3*time.Second, nil, func() {
		expirations++
	})

	timer.Stop()
	timer.Stop()

	sched.advance(10 * time.Second)
	if expirations != 0 {
		t.Errorf("expirations = %d after Stop, want 0", expirations)
	}
	if timer.Expired() {
		t.Error("stopped countdown reported expired")
	}
}
