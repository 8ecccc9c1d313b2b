package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
)

// Concurrent submissions must collapse to a single CompletedAttempt: one
// caller wins the claim, every other caller gets the winner's result back.
func TestConcurrentSubmitsProduceOneAttempt(t *testing.T) {
	f := newFixture()
	sess := startSession(t, f, practiceConfig(), makeQuestions(5))

	const submitters = 16
	var wg sync.WaitGroup
	results := make([]uuid.UUID, submitters)
	errs := make([]error, submitters)

	wg.Add(submitters)
	for i := 0; i < submitters; i++ {
		go func(i int) {
			defer wg.Done()
			attempt, err := sess.Submit(context.Background(), TriggerManual)
			if attempt != nil {
				results[i] = attempt.ID
			}
			errs[i] = err
		}(i)
	}
	wg.Wait()

	if f.recorder.count() != 1 {
		t.Fatalf("recorder calls = %d, want exactly 1", f.recorder.count())
	}

	winner := sess.Attempt().ID
	for i := 0; i < submitters; i++ {
		if errs[i] != nil {
			t.Errorf("submitter %d: err = %v, want nil", i, errs[i])
		}
		if results[i] != winner {
			t.Errorf("submitter %d: attempt = %s, want winner %s", i, results[i], winner)
		}
	}
}

// A manual submit racing the expiry callback must not double-record either.
func TestExpiryAndManualSubmitRace(t *testing.T) {
	f := newFixture()
	sess := startSession(t, f, timedConfig(5), makeQuestions(3))

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		// Drives the countdown to zero, which forces an expiry submission.
		f.sched.advance(5 * time.Second)
	}()
	go func() {
		defer wg.Done()
		// Races the expiry; either gets rejected with time remaining or
		// returns the expiry attempt, never a second one.
		sess.Submit(context.Background(), TriggerManual)
	}()
	wg.Wait()

	if f.recorder.count() != 1 {
		t.Fatalf("recorder calls = %d, want exactly 1", f.recorder.count())
	}
	if sess.Phase() != PhaseCompleted {
		t.Errorf("phase = %s, want %s", sess.Phase(), PhaseCompleted)
	}
}
