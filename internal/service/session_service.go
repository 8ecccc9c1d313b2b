package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prepdrill/prepdrill-backend/internal/config"
	"github.com/prepdrill/prepdrill-backend/internal/engine"
	"github.com/prepdrill/prepdrill-backend/internal/model"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Session orchestration errors.
var (
	ErrActiveSessionExists = errors.New("an active session already exists")
	ErrNoActiveSession     = errors.New("no active session")
	ErrSelectionIncomplete = errors.New("selection is missing its required dimension")
	ErrSessionNotFound     = errors.New("session not found")
)

// How long a completed session stays addressable for review before eviction.
const completedRetention = time.Hour

// SessionEvent is a live notification fanned out to stream subscribers.
type SessionEvent struct {
	Type             string                  `json:"type"`
	SessionID        uuid.UUID               `json:"session_id"`
	RemainingSeconds int                     `json:"remaining_seconds,omitempty"`
	Attempt          *model.CompletedAttempt `json:"attempt,omitempty"`
}

const (
	EventTick    = "tick"
	EventExpired = "expired"
)

// SessionService owns the registry of live session machines and the
// start/resume/conflict workflow around them. One user has at most one
// active session; a second start or a resume from another context hits the
// conflict path and proceeds only with the explicit override flag.
type SessionService struct {
	cfg       *config.Config
	durations *DurationService
	questions *QuestionService
	store     engine.SessionStore
	recorder  engine.AttemptRecorder
	rdb       *redis.Client
	clock     engine.Clock
	sched     engine.Scheduler
	log       zerolog.Logger

	mu        sync.Mutex
	live      map[uuid.UUID]*engine.Session
	listeners map[uuid.UUID]map[chan SessionEvent]struct{}
}

// NewSessionService creates a new SessionService.
func NewSessionService(
	cfg *config.Config,
	durations *DurationService,
	questions *QuestionService,
	store engine.SessionStore,
	recorder engine.AttemptRecorder,
	rdb *redis.Client,
	clock engine.Clock,
	sched engine.Scheduler,
	log zerolog.Logger,
) *SessionService {
	return &SessionService{
		cfg:       cfg,
		durations: durations,
		questions: questions,
		store:     store,
		recorder:  recorder,
		rdb:       rdb,
		clock:     clock,
		sched:     sched,
		log:       log.With().Str("component", "session_service").Logger(),
		live:      make(map[uuid.UUID]*engine.Session),
		listeners: make(map[uuid.UUID]map[chan SessionEvent]struct{}),
	}
}

func (s *SessionService) deps() engine.Deps {
	return engine.Deps{
		Clock:    s.clock,
		Sched:    s.sched,
		Store:    s.store,
		Recorder: s.recorder,
		Log:      s.log,
		Origin:   s.cfg.InstanceID,
		OnTick: func(sessionID uuid.UUID, remaining time.Duration) {
			s.publish(SessionEvent{
				Type:             EventTick,
				SessionID:        sessionID,
				RemainingSeconds: int(remaining / time.Second),
			})
		},
		OnExpired: func(sessionID uuid.UUID, attempt *model.CompletedAttempt) {
			s.publish(SessionEvent{
				Type:      EventExpired,
				SessionID: sessionID,
				Attempt:   attempt,
			})
			s.finish(context.Background(), sessionID, attempt.UserID)
		},
	}
}

// Start begins a new quiz session for the user. A timed session resolves its
// duration once, here; with AllowUntimedFallback set, a missing rule chain
// downgrades the session to practice instead of failing.
func (s *SessionService) Start(ctx context.Context, userID int, req *model.StartSessionRequest) (*engine.Session, error) {
	cfg := model.SessionConfig{
		ExamType:  model.ExamType(req.ExamType),
		Mode:      model.Mode(req.Mode),
		Selection: model.SelectionMethod(req.Selection),
		SubjectID: req.SubjectID,
		Year:      req.Year,
	}
	switch cfg.Selection {
	case model.SelectBySubject:
		if cfg.SubjectID == nil {
			return nil, ErrSelectionIncomplete
		}
	case model.SelectByYear:
		if cfg.Year == nil {
			return nil, ErrSelectionIncomplete
		}
	}

	if err := s.resolveConflict(ctx, userID, req.DiscardConflicting); err != nil {
		return nil, err
	}

	if cfg.Mode == model.ModeTimed {
		seconds, err := s.durations.ResolveDuration(ctx, cfg.ExamType, cfg.SubjectID, cfg.Year)
		switch {
		case err == nil:
			cfg.DurationSeconds = seconds
		case errors.Is(err, engine.ErrConfigurationFault) && req.AllowUntimedFallback:
			s.log.Warn().
				Str("exam_type", req.ExamType).
				Int("user_id", userID).
				Msg("No duration rule matched, falling back to untimed practice")
			cfg.Mode = model.ModePractice
		default:
			return nil, err
		}
	}

	questions, err := s.questions.LoadQuestions(ctx, cfg.ExamType, cfg.SubjectID, cfg.Year)
	if err != nil {
		return nil, err
	}

	sess := engine.NewSession(s.deps(), userID, cfg)
	if err := sess.Activate(ctx, questions); err != nil {
		return nil, err
	}

	s.register(sess)
	if err := s.rdb.Set(ctx, config.CacheKey.UserActiveSessionKey(userID), sess.ID().String(), 24*time.Hour).Err(); err != nil {
		s.log.Warn().Err(err).Msg("Failed to record active session key")
	}

	s.log.Info().
		Int("user_id", userID).
		Str("session_id", sess.ID().String()).
		Str("mode", string(cfg.Mode)).
		Int("duration_seconds", cfg.DurationSeconds).
		Int("questions", len(questions)).
		Msg("Session started")
	return sess, nil
}

// Resume restores the user's active session. An in-memory live session is
// returned as is; otherwise the persisted draft is reloaded and a timed
// countdown continues from its stored expiration instant. A snapshot owned
// by a different server context is a conflict unless takeOver is set.
func (s *SessionService) Resume(ctx context.Context, userID int, takeOver bool) (*engine.Session, error) {
	raw, err := s.rdb.Get(ctx, config.CacheKey.UserActiveSessionKey(userID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNoActiveSession
		}
		return nil, fmt.Errorf("lookup active session: %w", err)
	}
	sessionID, err := uuid.Parse(raw)
	if err != nil {
		return nil, ErrNoActiveSession
	}

	s.mu.Lock()
	if sess, ok := s.live[sessionID]; ok {
		s.mu.Unlock()
		if sess.Phase() == engine.PhaseActive {
			return sess, nil
		}
		return nil, ErrNoActiveSession
	}
	s.mu.Unlock()

	draft, err := s.store.LoadDraft(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load draft: %w", err)
	}
	if draft == nil || draft.UserID != userID {
		s.rdb.Del(ctx, config.CacheKey.UserActiveSessionKey(userID))
		return nil, ErrNoActiveSession
	}

	questions, err := s.questions.LoadByIDs(ctx, draft.QuestionIDs)
	if err != nil {
		return nil, err
	}

	sess, err := engine.Resume(ctx, s.deps(), draft, questions, takeOver)
	if err != nil {
		return nil, err
	}

	s.register(sess)
	s.log.Info().
		Int("user_id", userID).
		Str("session_id", sess.ID().String()).
		Bool("take_over", takeOver).
		Msg("Session resumed")
	return sess, nil
}

// Get returns a live session scoped to its owner.
func (s *SessionService) Get(sessionID uuid.UUID, userID int) (*engine.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.live[sessionID]
	if !ok || sess.UserID() != userID {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

// RecordAnswer records one answer on the user's session.
func (s *SessionService) RecordAnswer(ctx context.Context, sessionID uuid.UUID, userID int, questionID uuid.UUID, answer string) (*model.Feedback, error) {
	sess, err := s.Get(sessionID, userID)
	if err != nil {
		return nil, err
	}
	return sess.RecordAnswer(ctx, questionID, answer)
}

// Advance moves the session to the next question.
func (s *SessionService) Advance(ctx context.Context, sessionID uuid.UUID, userID int) (*model.SessionView, error) {
	sess, err := s.Get(sessionID, userID)
	if err != nil {
		return nil, err
	}
	if err := sess.Advance(ctx); err != nil {
		return nil, err
	}
	view := sess.View()
	return &view, nil
}

// GoTo jumps the session to an arbitrary question position.
func (s *SessionService) GoTo(ctx context.Context, sessionID uuid.UUID, userID int, index int) (*model.SessionView, error) {
	sess, err := s.Get(sessionID, userID)
	if err != nil {
		return nil, err
	}
	if err := sess.GoTo(ctx, index); err != nil {
		return nil, err
	}
	view := sess.View()
	return &view, nil
}

// Submit completes the session manually and releases the user's active slot.
func (s *SessionService) Submit(ctx context.Context, sessionID uuid.UUID, userID int) (*model.CompletedAttempt, error) {
	sess, err := s.Get(sessionID, userID)
	if err != nil {
		return nil, err
	}
	attempt, err := sess.Submit(ctx, engine.TriggerManual)
	if err != nil {
		return nil, err
	}
	s.finish(ctx, sessionID, userID)
	return attempt, nil
}

// Abandon cancels the session without producing an attempt.
func (s *SessionService) Abandon(ctx context.Context, sessionID uuid.UUID, userID int) error {
	sess, err := s.Get(sessionID, userID)
	if err != nil {
		return err
	}
	if err := sess.Abandon(ctx); err != nil {
		return err
	}
	s.finish(ctx, sessionID, userID)
	s.evict(sessionID)
	return nil
}

// View returns the renderable state of a session.
func (s *SessionService) View(sessionID uuid.UUID, userID int) (*model.SessionView, error) {
	sess, err := s.Get(sessionID, userID)
	if err != nil {
		return nil, err
	}
	view := sess.View()
	return &view, nil
}

// Subscribe registers a listener for a session's live events. The returned
// cancel function must be called when the listener goes away. Events are
// delivered best-effort: a slow listener drops ticks rather than stalling
// the countdown.
func (s *SessionService) Subscribe(sessionID uuid.UUID) (<-chan SessionEvent, func()) {
	ch := make(chan SessionEvent, 16)

	s.mu.Lock()
	subs, ok := s.listeners[sessionID]
	if !ok {
		subs = make(map[chan SessionEvent]struct{})
		s.listeners[sessionID] = subs
	}
	subs[ch] = struct{}{}
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if subs, ok := s.listeners[sessionID]; ok {
			delete(subs, ch)
			if len(subs) == 0 {
				delete(s.listeners, sessionID)
			}
		}
	}
	return ch, cancel
}

// ─── Internals ──────────────────────────────────────────────────────

// resolveConflict enforces the one-active-session rule at start time.
func (s *SessionService) resolveConflict(ctx context.Context, userID int, discard bool) error {
	raw, err := s.rdb.Get(ctx, config.CacheKey.UserActiveSessionKey(userID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("lookup active session: %w", err)
	}
	existingID, err := uuid.Parse(raw)
	if err != nil {
		s.rdb.Del(ctx, config.CacheKey.UserActiveSessionKey(userID))
		return nil
	}

	s.mu.Lock()
	existing, inMemory := s.live[existingID]
	s.mu.Unlock()

	if inMemory {
		phase := existing.Phase()
		if phase != engine.PhaseActive && phase != engine.PhaseInitializing {
			s.rdb.Del(ctx, config.CacheKey.UserActiveSessionKey(userID))
			return nil
		}
		if !discard {
			return ErrActiveSessionExists
		}
		if err := existing.Abandon(ctx); err != nil {
			return fmt.Errorf("discard conflicting session: %w", err)
		}
		s.evict(existingID)
		s.rdb.Del(ctx, config.CacheKey.UserActiveSessionKey(userID))
		return nil
	}

	// Not live here; a draft from an earlier context may still exist.
	draft, err := s.store.LoadDraft(ctx, existingID)
	if err != nil {
		return fmt.Errorf("load draft: %w", err)
	}
	if draft == nil {
		s.rdb.Del(ctx, config.CacheKey.UserActiveSessionKey(userID))
		return nil
	}
	if !discard {
		return ErrActiveSessionExists
	}

	if err := s.store.DeleteTimerSnapshot(ctx, existingID); err != nil {
		s.log.Warn().Err(err).Msg("Failed to delete conflicting timer snapshot")
	}
	if err := s.store.DeleteDraft(ctx, existingID); err != nil {
		s.log.Warn().Err(err).Msg("Failed to delete conflicting draft")
	}
	s.rdb.Del(ctx, config.CacheKey.UserActiveSessionKey(userID))
	return nil
}

func (s *SessionService) register(sess *engine.Session) {
	s.mu.Lock()
	s.live[sess.ID()] = sess
	s.mu.Unlock()
}

func (s *SessionService) evict(sessionID uuid.UUID) {
	s.mu.Lock()
	delete(s.live, sessionID)
	s.mu.Unlock()
}

// finish releases the user's active slot once a session completes. The
// session itself stays in the registry for a retention window so the client
// can still render the review screen, then gets evicted.
func (s *SessionService) finish(ctx context.Context, sessionID uuid.UUID, userID int) {
	key := config.CacheKey.UserActiveSessionKey(userID)
	if raw, err := s.rdb.Get(ctx, key).Result(); err == nil && raw == sessionID.String() {
		s.rdb.Del(ctx, key)
	}
	s.sched.AfterFunc(completedRetention, func() {
		s.evict(sessionID)
	})
}

func (s *SessionService) publish(event SessionEvent) {
	s.mu.Lock()
	subs := s.listeners[event.SessionID]
	channels := make([]chan SessionEvent, 0, len(subs))
	for ch := range subs {
		channels = append(channels, ch)
	}
	s.mu.Unlock()

	for _, ch := range channels {
		select {
		case ch <- event:
		default:
		}
	}
}
