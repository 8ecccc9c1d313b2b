package engine

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prepdrill/prepdrill-backend/internal/model"
)

// fakeClock is a manually driven Clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 9, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if t.After(c.now) {
		c.now = t
	}
}

type fakeTimerEntry struct {
	at   time.Time
	fn   func()
	done bool
}

// fakeScheduler fires scheduled callbacks synchronously, in timestamp order,
// as the fake clock is advanced.
type fakeScheduler struct {
	mu     sync.Mutex
	clock  *fakeClock
	timers []*fakeTimerEntry
}

func newFakeScheduler(clock *fakeClock) *fakeScheduler {
	return &fakeScheduler{clock: clock}
}

func (s *fakeScheduler) AfterFunc(d time.Duration, fn func()) CancelFunc {
	s.mu.Lock()
	entry := &fakeTimerEntry{at: s.clock.Now().Add(d), fn: fn}
	s.timers = append(s.timers, entry)
	s.mu.Unlock()

	return func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		if entry.done {
			return false
		}
		entry.done = true
		return true
	}
}

// advance moves the clock forward by d, firing every due callback in order.
// Callbacks may schedule further timers; those fire too if they fall inside
// the window.
func (s *fakeScheduler) advance(d time.Duration) {
	target := s.clock.Now().Add(d)
	for {
		s.mu.Lock()
		var next *fakeTimerEntry
		for _, entry := range s.timers {
			if entry.done || entry.at.After(target) {
				continue
			}
			if next == nil || entry.at.Before(next.at) {
				next = entry
			}
		}
		if next == nil {
			s.mu.Unlock()
			break
		}
		next.done = true
		s.mu.Unlock()

		s.clock.set(next.at)
		next.fn()
	}
	s.clock.set(target)
}

// memStore is an in-memory SessionStore.
type memStore struct {
	mu        sync.Mutex
	snapshots map[uuid.UUID]model.TimerSnapshot
	drafts    map[uuid.UUID]model.SessionDraft
}

func newMemStore() *memStore {
	return &memStore{
		snapshots: make(map[uuid.UUID]model.TimerSnapshot),
		drafts:    make(map[uuid.UUID]model.SessionDraft),
	}
}

func (m *memStore) SaveTimerSnapshot(_ context.Context, snap model.TimerSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots[snap.SessionID] = snap
	return nil
}

func (m *memStore) LoadTimerSnapshot(_ context.Context, sessionID uuid.UUID) (*model.TimerSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap, ok := m.snapshots[sessionID]
	if !ok {
		return nil, nil
	}
	return &snap, nil
}

func (m *memStore) DeleteTimerSnapshot(_ context.Context, sessionID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.snapshots, sessionID)
	return nil
}

func (m *memStore) SaveDraft(_ context.Context, draft model.SessionDraft) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.drafts[draft.SessionID] = draft
	return nil
}

func (m *memStore) LoadDraft(_ context.Context, sessionID uuid.UUID) (*model.SessionDraft, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	draft, ok := m.drafts[sessionID]
	if !ok {
		return nil, nil
	}
	return &draft, nil
}

func (m *memStore) DeleteDraft(_ context.Context, sessionID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.drafts, sessionID)
	return nil
}

// fakeRecorder captures recorded attempts and can simulate storage failure.
type fakeRecorder struct {
	mu       sync.Mutex
	attempts []*model.CompletedAttempt
	failWith error
}

func (r *fakeRecorder) Record(_ context.Context, attempt *model.CompletedAttempt) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failWith != nil {
		return r.failWith
	}
	r.attempts = append(r.attempts, attempt)
	return nil
}

func (r *fakeRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.attempts)
}
