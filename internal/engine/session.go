package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/prepdrill/prepdrill-backend/internal/model"
	"github.com/rs/zerolog"
)

// Phase enumerates session lifecycle states.
type Phase string

const (
	PhaseInitializing Phase = "INITIALIZING"
	PhaseActive       Phase = "ACTIVE"
	PhaseCompleted    Phase = "COMPLETED"
	PhaseAbandoned    Phase = "ABANDONED"
	PhaseErrored      Phase = "ERRORED"
)

// SubmitTrigger identifies what initiated a submission.
type SubmitTrigger string

const (
	TriggerManual SubmitTrigger = "manual"
	TriggerExpiry SubmitTrigger = "expiry"
)

// SessionStore is the durable client storage used for timer snapshots and
// in-progress drafts. All snapshot and draft access goes through the session
// machine; no other component touches this store.
type SessionStore interface {
	SaveTimerSnapshot(ctx context.Context, snap model.TimerSnapshot) error
	LoadTimerSnapshot(ctx context.Context, sessionID uuid.UUID) (*model.TimerSnapshot, error)
	DeleteTimerSnapshot(ctx context.Context, sessionID uuid.UUID) error
	SaveDraft(ctx context.Context, draft model.SessionDraft) error
	LoadDraft(ctx context.Context, sessionID uuid.UUID) (*model.SessionDraft, error)
	DeleteDraft(ctx context.Context, sessionID uuid.UUID) error
}

// AttemptRecorder persists a finished attempt. Implementations must recover
// from transient failure internally (queue and retry); the in-memory attempt
// stays available for review regardless of the persistence outcome.
type AttemptRecorder interface {
	Record(ctx context.Context, attempt *model.CompletedAttempt) error
}

// Deps bundles the collaborators a session needs.
type Deps struct {
	Clock    Clock
	Sched    Scheduler
	Store    SessionStore
	Recorder AttemptRecorder
	Log      zerolog.Logger
	// Origin identifies this server context in timer snapshots.
	Origin string
	// OnTick, if set, receives countdown ticks for live streaming.
	OnTick func(sessionID uuid.UUID, remaining time.Duration)
	// OnExpired, if set, is notified after an expiry-forced completion.
	OnExpired func(sessionID uuid.UUID, attempt *model.CompletedAttempt)
}

type recordedAnswer struct {
	answer    string
	timeSpent time.Duration
}

// Session owns the full lifecycle of one quiz attempt: loaded questions,
// current position, recorded answers, feedback visibility and completion.
// All operations are serialized on an internal mutex; the completion claim
// itself is an atomic compare-and-set so the timer-expiry/manual-submit race
// resolves to exactly one CompletedAttempt by construction.
type Session struct {
	id     uuid.UUID
	userID int
	cfg    model.SessionConfig
	deps   Deps
	log    zerolog.Logger

	mu              sync.Mutex
	phase           Phase
	questions       []model.QuestionRef
	byID            map[uuid.UUID]*model.QuestionRef
	answers         map[uuid.UUID]recordedAnswer
	firstShown      map[uuid.UUID]time.Time
	current         int
	feedbackVisible bool
	startedAt       time.Time
	timer           *CountdownTimer
	attempt         *model.CompletedAttempt

	claimed atomic.Bool
}

// NewSession creates a session in the Initializing phase. Mode invariants are
// assumed already enforced by the caller: practice carries no duration, timed
// carries a resolved duration > 0.
func NewSession(deps Deps, userID int, cfg model.SessionConfig) *Session {
	id := uuid.New()
	return &Session{
		id:     id,
		userID: userID,
		cfg:    cfg,
		deps:   deps,
		log: deps.Log.With().
			Str("component", "session").
			Str("session_id", id.String()).
			Logger(),
		phase:      PhaseInitializing,
		answers:    make(map[uuid.UUID]recordedAnswer),
		firstShown: make(map[uuid.UUID]time.Time),
	}
}

// Activate transitions Initializing → Active once questions are available.
// An empty question set fails to the Errored terminal state and no partial
// session state is exposed.
func (s *Session) Activate(ctx context.Context, questions []model.QuestionRef) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase != PhaseInitializing {
		return &InvalidTransitionError{Op: "activate", Reason: ReasonSessionNotActive}
	}
	if len(questions) == 0 {
		s.phase = PhaseErrored
		return ErrNoQuestionsAvailable
	}
	if s.cfg.Mode == model.ModeTimed && s.cfg.DurationSeconds <= 0 {
		s.phase = PhaseErrored
		return ErrConfigurationFault
	}

	s.questions = questions
	s.byID = make(map[uuid.UUID]*model.QuestionRef, len(questions))
	for i := range questions {
		s.byID[questions[i].ID] = &questions[i]
	}

	now := s.deps.Clock.Now()
	s.startedAt = now
	s.current = 0
	s.firstShown[questions[0].ID] = now
	// Feedback policy is computed once per session from mode, not per
	// question: practice exposes it immediately, timed defers to completion.
	s.feedbackVisible = s.cfg.Mode == model.ModePractice
	s.phase = PhaseActive

	if s.cfg.Mode == model.ModeTimed {
		duration := time.Duration(s.cfg.DurationSeconds) * time.Second
		s.timer = StartCountdown(s.deps.Clock, s.deps.Sched, duration, s.handleTick, s.handleExpiry)

		snap := model.TimerSnapshot{
			SessionID: s.id,
			ExpiresAt: s.timer.ExpiresAt(),
			Origin:    s.deps.Origin,
		}
		if err := s.deps.Store.SaveTimerSnapshot(ctx, snap); err != nil {
			s.log.Warn().Err(err).Msg("Failed to persist timer snapshot")
		}
	}

	s.saveDraftLocked(ctx)
	return nil
}

// Resume reconstructs an Active session from its persisted draft. A timed
// session resumes its countdown from the stored absolute expiration instant,
// not a fresh full duration; if the instant has already passed, the countdown
// expires on its first tick. A snapshot held by a different origin context is
// a conflict unless takeOver is set.
func Resume(ctx context.Context, deps Deps, draft *model.SessionDraft, questions []model.QuestionRef, takeOver bool) (*Session, error) {
	if len(questions) == 0 {
		return nil, ErrNoQuestionsAvailable
	}

	s := NewSession(deps, draft.UserID, draft.Config)
	s.id = draft.SessionID
	s.log = deps.Log.With().
		Str("component", "session").
		Str("session_id", s.id.String()).
		Logger()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.questions = questions
	s.byID = make(map[uuid.UUID]*model.QuestionRef, len(questions))
	for i := range questions {
		s.byID[questions[i].ID] = &questions[i]
	}

	for qid, rec := range draft.Answers {
		id, err := uuid.Parse(qid)
		if err != nil {
			continue
		}
		s.answers[id] = recordedAnswer{
			answer:    rec.Answer,
			timeSpent: time.Duration(rec.TimeSpentSeconds) * time.Second,
		}
	}

	s.startedAt = draft.StartedAt
	s.current = draft.Current
	if s.current < 0 || s.current >= len(questions) {
		s.current = 0
	}
	now := s.deps.Clock.Now()
	s.firstShown[questions[s.current].ID] = now
	s.feedbackVisible = s.cfg.Mode == model.ModePractice
	s.phase = PhaseActive

	if s.cfg.Mode == model.ModeTimed {
		expiresAt := draft.StartedAt.Add(time.Duration(s.cfg.DurationSeconds) * time.Second)

		snap, err := s.deps.Store.LoadTimerSnapshot(ctx, s.id)
		if err != nil {
			s.log.Warn().Err(err).Msg("Failed to load timer snapshot, recomputing from draft")
		}
		if snap != nil {
			if snap.Origin != s.deps.Origin && !takeOver {
				s.phase = PhaseErrored
				return nil, ErrConflictingSession
			}
			expiresAt = snap.ExpiresAt
		}

		s.timer = ResumeCountdown(s.deps.Clock, s.deps.Sched, expiresAt, s.handleTick, s.handleExpiry)

		// Re-stamp the snapshot so this context owns the countdown.
		rewrite := model.TimerSnapshot{SessionID: s.id, ExpiresAt: expiresAt, Origin: s.deps.Origin}
		if err := s.deps.Store.SaveTimerSnapshot(ctx, rewrite); err != nil {
			s.log.Warn().Err(err).Msg("Failed to re-stamp timer snapshot")
		}
	}

	return s, nil
}

// ID returns the session identifier.
func (s *Session) ID() uuid.UUID { return s.id }

// UserID returns the owning user.
func (s *Session) UserID() int { return s.userID }

// Config returns the immutable session configuration.
func (s *Session) Config() model.SessionConfig { return s.cfg }

// Phase returns the current lifecycle phase.
func (s *Session) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// Attempt returns the completed attempt, or nil before completion.
func (s *Session) Attempt() *model.CompletedAttempt {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempt
}

// RecordAnswer stores an answer for a question. Re-answering overwrites the
// prior answer (last write wins). Time spent is measured from when the
// question was first shown. Returns feedback only in practice mode; a call
// after completion is rejected, not silently dropped.
func (s *Session) RecordAnswer(ctx context.Context, questionID uuid.UUID, answer string) (*model.Feedback, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase == PhaseCompleted {
		return nil, &InvalidTransitionError{Op: "record_answer", Reason: ReasonSessionCompleted}
	}
	if s.phase != PhaseActive {
		return nil, &InvalidTransitionError{Op: "record_answer", Reason: ReasonSessionNotActive}
	}

	q, ok := s.byID[questionID]
	if !ok {
		return nil, &InvalidTransitionError{Op: "record_answer", Reason: ReasonUnknownQuestion}
	}

	timeSpent := s.answers[questionID].timeSpent
	if shown, ok := s.firstShown[questionID]; ok {
		timeSpent = s.deps.Clock.Now().Sub(shown)
	}
	s.answers[questionID] = recordedAnswer{answer: answer, timeSpent: timeSpent}

	s.saveDraftLocked(ctx)

	if s.cfg.Mode != model.ModePractice {
		return nil, nil
	}
	return &model.Feedback{
		Correct:       answer == q.CorrectAnswer,
		CorrectAnswer: q.CorrectAnswer,
		Explanation:   q.Explanation,
	}, nil
}

// Advance moves the current position to the next question.
func (s *Session) Advance(ctx context.Context) error {
	s.mu.Lock()
	current := s.current
	s.mu.Unlock()
	return s.GoTo(ctx, current+1)
}

// GoTo moves the current position. Has no effect on recorded answers.
func (s *Session) GoTo(ctx context.Context, index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase == PhaseCompleted {
		return &InvalidTransitionError{Op: "goto", Reason: ReasonSessionCompleted}
	}
	if s.phase != PhaseActive {
		return &InvalidTransitionError{Op: "goto", Reason: ReasonSessionNotActive}
	}
	if index < 0 || index >= len(s.questions) {
		return &InvalidTransitionError{Op: "goto", Reason: ReasonIndexOutOfRange}
	}

	s.current = index
	qid := s.questions[index].ID
	if _, ok := s.firstShown[qid]; !ok {
		s.firstShown[qid] = s.deps.Clock.Now()
	}

	s.saveDraftLocked(ctx)
	return nil
}

// Submit completes the session and builds the CompletedAttempt exactly once.
// Manual submission is accepted while Active only in practice mode, or in
// timed mode once the countdown has expired; a timed session with time
// remaining rejects it here, in the state machine, so no caller can bypass
// the restriction. A second Submit (the loser of the expiry/manual race) is
// a no-op returning the same attempt.
func (s *Session) Submit(ctx context.Context, trigger SubmitTrigger) (*model.CompletedAttempt, error) {
	s.mu.Lock()

	if s.phase == PhaseCompleted {
		attempt := s.attempt
		s.mu.Unlock()
		return attempt, nil
	}
	if s.phase != PhaseActive {
		s.mu.Unlock()
		return nil, &InvalidTransitionError{Op: "submit", Reason: ReasonSessionNotActive}
	}
	if trigger == TriggerManual && s.cfg.Mode == model.ModeTimed && s.timer != nil && !s.timer.Expired() && s.timer.Remaining() > 0 {
		s.mu.Unlock()
		return nil, &InvalidTransitionError{Op: "submit", Reason: ReasonTimeRemaining}
	}

	// Claim completion atomically; the losing racer gets the winner's result.
	if !s.claimed.CompareAndSwap(false, true) {
		attempt := s.attempt
		s.mu.Unlock()
		return attempt, nil
	}

	attempt := s.buildAttemptLocked()
	s.attempt = attempt
	s.phase = PhaseCompleted
	// Review requirement: feedback becomes visible for all questions.
	s.feedbackVisible = true

	timer := s.timer
	s.mu.Unlock()

	if timer != nil {
		timer.Stop()
	}
	if err := s.deps.Store.DeleteTimerSnapshot(ctx, s.id); err != nil {
		s.log.Warn().Err(err).Msg("Failed to delete timer snapshot")
	}
	if err := s.deps.Store.DeleteDraft(ctx, s.id); err != nil {
		s.log.Warn().Err(err).Msg("Failed to delete session draft")
	}

	// Persistence failure never rolls back the in-memory attempt; the
	// recorder queues a retry and review proceeds immediately.
	if err := s.deps.Recorder.Record(ctx, attempt); err != nil {
		s.log.Warn().Err(err).Str("trigger", string(trigger)).Msg("Attempt persistence deferred")
	}

	s.log.Info().
		Str("trigger", string(trigger)).
		Float64("score", attempt.Score).
		Int("correct", attempt.CorrectCount).
		Int("total", attempt.TotalQuestions).
		Msg("Session completed")

	return attempt, nil
}

// Abandon cancels an unfinished session: the countdown is stopped and its
// snapshot deleted, and no CompletedAttempt is built or persisted.
func (s *Session) Abandon(ctx context.Context) error {
	s.mu.Lock()

	if s.phase == PhaseCompleted {
		s.mu.Unlock()
		return &InvalidTransitionError{Op: "abandon", Reason: ReasonSessionCompleted}
	}
	if s.phase != PhaseActive && s.phase != PhaseInitializing {
		s.mu.Unlock()
		return &InvalidTransitionError{Op: "abandon", Reason: ReasonSessionNotActive}
	}

	s.phase = PhaseAbandoned
	timer := s.timer
	s.mu.Unlock()

	if timer != nil {
		timer.Stop()
	}
	if err := s.deps.Store.DeleteTimerSnapshot(ctx, s.id); err != nil {
		s.log.Warn().Err(err).Msg("Failed to delete timer snapshot")
	}
	if err := s.deps.Store.DeleteDraft(ctx, s.id); err != nil {
		s.log.Warn().Err(err).Msg("Failed to delete session draft")
	}

	s.log.Info().Msg("Session abandoned")
	return nil
}

// View returns a read-only snapshot of the session for rendering. Correct
// answers and explanations appear only where the feedback policy allows:
// answered questions in practice mode, every question once completed.
func (s *Session) View() model.SessionView {
	s.mu.Lock()
	defer s.mu.Unlock()

	view := model.SessionView{
		SessionID:       s.id,
		Phase:           string(s.phase),
		Config:          s.cfg,
		Current:         s.current,
		FeedbackVisible: s.feedbackVisible,
		Answers:         make(map[string]string, len(s.answers)),
		Questions:       make([]model.QuestionView, 0, len(s.questions)),
	}

	for qid, rec := range s.answers {
		view.Answers[qid.String()] = rec.answer
	}

	for i := range s.questions {
		q := &s.questions[i]
		qv := model.QuestionView{ID: q.ID, Text: q.Text, Options: q.Options}
		_, answered := s.answers[q.ID]
		if s.phase == PhaseCompleted || (s.feedbackVisible && answered) {
			qv.CorrectAnswer = q.CorrectAnswer
			qv.Explanation = q.Explanation
		}
		view.Questions = append(view.Questions, qv)
	}

	if s.timer != nil && s.phase == PhaseActive && !s.timer.Expired() {
		view.TimerActive = true
		view.RemainingSeconds = int(s.timer.Remaining() / time.Second)
	}

	return view
}

// Remaining returns the countdown's remaining time, or 0 for untimed sessions.
func (s *Session) Remaining() time.Duration {
	s.mu.Lock()
	timer := s.timer
	s.mu.Unlock()
	if timer == nil {
		return 0
	}
	return timer.Remaining()
}

// ─── Internals ──────────────────────────────────────────────────────

// buildAttemptLocked is a pure computation over session state: score is the
// count of correct recorded answers over total questions, with unanswered
// questions recorded as no-answer and counted incorrect. Caller holds s.mu.
func (s *Session) buildAttemptLocked() *model.CompletedAttempt {
	now := s.deps.Clock.Now()

	records := make([]model.AnswerRecord, 0, len(s.questions))
	correct := 0
	for i := range s.questions {
		q := &s.questions[i]
		record := model.AnswerRecord{
			QuestionID:    q.ID,
			CorrectAnswer: q.CorrectAnswer,
		}
		if rec, ok := s.answers[q.ID]; ok {
			record.Answered = true
			record.Answer = rec.answer
			record.Correct = rec.answer == q.CorrectAnswer
			record.TimeSpentSeconds = int(rec.timeSpent / time.Second)
			if record.Correct {
				correct++
			}
		}
		records = append(records, record)
	}

	total := len(s.questions)
	var score float64
	if total > 0 {
		score = float64(correct) / float64(total) * 100
	}

	return &model.CompletedAttempt{
		ID:             uuid.New(),
		SessionID:      s.id,
		UserID:         s.userID,
		Config:         s.cfg,
		Answers:        records,
		CorrectCount:   correct,
		TotalQuestions: total,
		Score:          score,
		ElapsedSeconds: int(now.Sub(s.startedAt) / time.Second),
		CompletedAt:    now,
	}
}

func (s *Session) saveDraftLocked(ctx context.Context) {
	draft := model.SessionDraft{
		SessionID:   s.id,
		UserID:      s.userID,
		Origin:      s.deps.Origin,
		Config:      s.cfg,
		QuestionIDs: make([]uuid.UUID, 0, len(s.questions)),
		Answers:     make(map[string]model.DraftAnswer, len(s.answers)),
		Current:     s.current,
		StartedAt:   s.startedAt,
	}
	for i := range s.questions {
		draft.QuestionIDs = append(draft.QuestionIDs, s.questions[i].ID)
	}
	for qid, rec := range s.answers {
		draft.Answers[qid.String()] = model.DraftAnswer{
			Answer:           rec.answer,
			TimeSpentSeconds: int(rec.timeSpent / time.Second),
		}
	}

	if err := s.deps.Store.SaveDraft(ctx, draft); err != nil {
		s.log.Warn().Err(err).Msg("Failed to persist session draft")
	}
}

func (s *Session) handleTick(remaining time.Duration) {
	if s.deps.OnTick != nil {
		s.deps.OnTick(s.id, remaining)
	}
}

// handleExpiry forces a transition to submission regardless of answer
// completeness.
func (s *Session) handleExpiry() {
	attempt, err := s.Submit(context.Background(), TriggerExpiry)
	if err != nil {
		// Only possible if the session already left Active (e.g. abandoned
		// between the final tick and this callback).
		s.log.Debug().Err(err).Msg("Expiry submission skipped")
		return
	}
	if s.deps.OnExpired != nil {
		s.deps.OnExpired(s.id, attempt)
	}
}
