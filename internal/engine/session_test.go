package engine

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prepdrill/prepdrill-backend/internal/model"
	"github.com/rs/zerolog"
)

type sessionFixture struct {
	clock    *fakeClock
	sched    *fakeScheduler
	store    *memStore
	recorder *fakeRecorder
	deps     Deps
}

func newFixture() *sessionFixture {
	clock := newFakeClock()
	sched := newFakeScheduler(clock)
	f := &sessionFixture{
		clock:    clock,
		sched:    sched,
		store:    newMemStore(),
		recorder: &fakeRecorder{},
	}
	f.deps = Deps{
		Clock:    clock,
		Sched:    sched,
		Store:    f.store,
		Recorder: f.recorder,
		Log:      zerolog.Nop(),
		Origin:   "ctx-a",
	}
	return f
}

// makeQuestions builds n questions whose correct answer is always "A".
func makeQuestions(n int) []model.QuestionRef {
	questions := make([]model.QuestionRef, n)
	for i := range questions {
		questions[i] = model.QuestionRef{
			ID:            uuid.New(),
			ExamType:      model.ExamTypeJAMB,
			SubjectID:     1,
			Year:          2023,
			Text:          fmt.Sprintf("question %d", i+1),
			Options:       []string{"A", "B", "C", "D"},
			CorrectAnswer: "A",
			Explanation:   "because A",
			OrderNum:      i,
		}
	}
	return questions
}

func practiceConfig() model.SessionConfig {
	subjectID := 1
	return model.SessionConfig{
		ExamType:  model.ExamTypeJAMB,
		Mode:      model.ModePractice,
		Selection: model.SelectBySubject,
		SubjectID: &subjectID,
	}
}

func timedConfig(seconds int) model.SessionConfig {
	cfg := practiceConfig()
	cfg.Mode = model.ModeTimed
	cfg.DurationSeconds = seconds
	return cfg
}

func startSession(t *testing.T, f *sessionFixture, cfg model.SessionConfig, questions []model.QuestionRef) *Session {
	t.Helper()
	sess := NewSession(f.deps, 7, cfg)
	if err := sess.Activate(context.Background(), questions); err != nil {
		t.Fatalf("Activate: %v", err)
	}
	return sess
}

func TestActivateWithoutQuestionsFails(t *testing.T) {
	f := newFixture()
	sess := NewSession(f.deps, 7, practiceConfig())

	err := sess.Activate(context.Background(), nil)
	if !errors.Is(err, ErrNoQuestionsAvailable) {
		t.Fatalf("err = %v, want ErrNoQuestionsAvailable", err)
	}
	if sess.Phase() != PhaseErrored {
		t.Errorf("phase = %s, want %s", sess.Phase(), PhaseErrored)
	}
}

func TestPracticeModeImmediateFeedback(t *testing.T) {
	f := newFixture()
	questions := makeQuestions(3)
	sess := startSession(t, f, practiceConfig(), questions)

	feedback, err := sess.RecordAnswer(context.Background(), questions[0].ID, "A")
	if err != nil {
		t.Fatalf("RecordAnswer: %v", err)
	}
	if feedback == nil || !feedback.Correct {
		t.Fatalf("feedback = %+v, want correct", feedback)
	}

	feedback, err = sess.RecordAnswer(context.Background(), questions[1].ID, "C")
	if err != nil {
		t.Fatalf("RecordAnswer: %v", err)
	}
	if feedback == nil || feedback.Correct {
		t.Fatalf("feedback = %+v, want incorrect", feedback)
	}
	if feedback.CorrectAnswer != "A" {
		t.Errorf("CorrectAnswer = %q, want A", feedback.CorrectAnswer)
	}

	view := sess.View()
	if view.TimerActive {
		t.Error("practice session reports an active countdown")
	}
	if !view.FeedbackVisible {
		t.Error("practice session hides feedback")
	}
}

func TestTimedModeDefersFeedbackUntilCompletion(t *testing.T) {
	f := newFixture()
	questions := makeQuestions(3)
	sess := startSession(t, f, timedConfig(600), questions)

	feedback, err := sess.RecordAnswer(context.Background(), questions[0].ID, "A")
	if err != nil {
		t.Fatalf("RecordAnswer: %v", err)
	}
	if feedback != nil {
		t.Fatalf("feedback = %+v, want nil while timed session is active", feedback)
	}

	view := sess.View()
	if view.FeedbackVisible {
		t.Error("timed session exposes feedback before completion")
	}
	for _, q := range view.Questions {
		if q.CorrectAnswer != "" || q.Explanation != "" {
			t.Errorf("question %s leaks correct answer before completion", q.ID)
		}
	}
	if !view.TimerActive {
		t.Error("timed session reports no active countdown")
	}
	if view.RemainingSeconds != 600 {
		t.Errorf("RemainingSeconds = %d, want 600", view.RemainingSeconds)
	}
}

func TestTimedManualSubmitRejectedWithTimeRemaining(t *testing.T) {
	f := newFixture()
	questions := makeQuestions(2)
	sess := startSession(t, f, timedConfig(600), questions)

	_, err := sess.Submit(context.Background(), TriggerManual)
	ite, ok := AsInvalidTransition(err)
	if !ok {
		t.Fatalf("err = %v, want InvalidTransitionError", err)
	}
	if ite.Reason != ReasonTimeRemaining {
		t.Fatalf("reason = %s, want %s", ite.Reason, ReasonTimeRemaining)
	}
	if sess.Phase() != PhaseActive {
		t.Errorf("phase = %s after rejected submit, want %s", sess.Phase(), PhaseActive)
	}
	if f.recorder.count() != 0 {
		t.Errorf("recorder calls = %d after rejected submit, want 0", f.recorder.count())
	}
}

func TestExpiryForcesSubmission(t *testing.T) {
	f := newFixture()
	questions := makeQuestions(4)

	var expired *model.CompletedAttempt
	f.deps.OnExpired = func(_ uuid.UUID, attempt *model.CompletedAttempt) {
		expired = attempt
	}
	sess := startSession(t, f, timedConfig(5), questions)

	if _, err := sess.RecordAnswer(context.Background(), questions[0].ID, "A"); err != nil {
		t.Fatalf("RecordAnswer: %v", err)
	}
	if _, err := sess.RecordAnswer(context.Background(), questions[1].ID, "D"); err != nil {
		t.Fatalf("RecordAnswer: %v", err)
	}

	f.sched.advance(5 * time.Second)

	if sess.Phase() != PhaseCompleted {
		t.Fatalf("phase = %s after expiry, want %s", sess.Phase(), PhaseCompleted)
	}
	if expired == nil {
		t.Fatal("OnExpired was not notified")
	}
	if f.recorder.count() != 1 {
		t.Fatalf("recorder calls = %d, want 1", f.recorder.count())
	}

	attempt := sess.Attempt()
	if attempt.CorrectCount != 1 || attempt.TotalQuestions != 4 {
		t.Errorf("correct/total = %d/%d, want 1/4", attempt.CorrectCount, attempt.TotalQuestions)
	}
	if attempt.Score != 25 {
		t.Errorf("score = %v, want 25", attempt.Score)
	}

	answered := 0
	for _, rec := range attempt.Answers {
		if rec.Answered {
			answered++
		}
	}
	if answered != 2 {
		t.Errorf("answered records = %d, want 2 (unanswered kept as no-answer)", answered)
	}

	// Snapshot and draft are gone once the session completes.
	if snap, _ := f.store.LoadTimerSnapshot(context.Background(), sess.ID()); snap != nil {
		t.Error("timer snapshot survived completion")
	}
	if draft, _ := f.store.LoadDraft(context.Background(), sess.ID()); draft != nil {
		t.Error("session draft survived completion")
	}
}

func TestExpiryWithNoAnswersScoresZero(t *testing.T) {
	f := newFixture()
	questions := makeQuestions(3)
	sess := startSession(t, f, timedConfig(5), questions)

	f.sched.advance(10 * time.Second)

	attempt := sess.Attempt()
	if attempt == nil {
		t.Fatal("no attempt after expiry")
	}
	if attempt.Score != 0 || attempt.CorrectCount != 0 {
		t.Errorf("score/correct = %v/%d, want 0/0", attempt.Score, attempt.CorrectCount)
	}
}

func TestManualSubmitAfterExpiryReturnsSameAttempt(t *testing.T) {
	f := newFixture()
	questions := makeQuestions(2)
	sess := startSession(t, f, timedConfig(5), questions)

	f.sched.advance(5 * time.Second)

	first := sess.Attempt()
	if first == nil {
		t.Fatal("no attempt after expiry")
	}

	second, err := sess.Submit(context.Background(), TriggerManual)
	if err != nil {
		t.Fatalf("Submit after expiry: %v", err)
	}
	if second.ID != first.ID {
		t.Error("second submit produced a different attempt")
	}
	if f.recorder.count() != 1 {
		t.Errorf("recorder calls = %d, want 1", f.recorder.count())
	}
}

func TestReanswerLastWriteWins(t *testing.T) {
	f := newFixture()
	questions := makeQuestions(2)
	sess := startSession(t, f, practiceConfig(), questions)

	if _, err := sess.RecordAnswer(context.Background(), questions[0].ID, "A"); err != nil {
		t.Fatalf("RecordAnswer: %v", err)
	}
	if _, err := sess.RecordAnswer(context.Background(), questions[0].ID, "B"); err != nil {
		t.Fatalf("RecordAnswer: %v", err)
	}

	attempt, err := sess.Submit(context.Background(), TriggerManual)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if attempt.Answers[0].Answer != "B" {
		t.Errorf("answer = %q, want B (last write wins)", attempt.Answers[0].Answer)
	}
	if attempt.Answers[0].Correct {
		t.Error("overwritten answer still scored as the original")
	}
}

func TestRecordAnswerAfterCompletionRejected(t *testing.T) {
	f := newFixture()
	questions := makeQuestions(2)
	sess := startSession(t, f, practiceConfig(), questions)

	if _, err := sess.Submit(context.Background(), TriggerManual); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	_, err := sess.RecordAnswer(context.Background(), questions[0].ID, "A")
	ite, ok := AsInvalidTransition(err)
	if !ok || ite.Reason != ReasonSessionCompleted {
		t.Fatalf("err = %v, want rejection with %s", err, ReasonSessionCompleted)
	}
}

func TestRecordAnswerUnknownQuestionRejected(t *testing.T) {
	f := newFixture()
	sess := startSession(t, f, practiceConfig(), makeQuestions(2))

	_, err := sess.RecordAnswer(context.Background(), uuid.New(), "A")
	ite, ok := AsInvalidTransition(err)
	if !ok || ite.Reason != ReasonUnknownQuestion {
		t.Fatalf("err = %v, want rejection with %s", err, ReasonUnknownQuestion)
	}
}

func TestGoToOutOfRangeRejected(t *testing.T) {
	f := newFixture()
	sess := startSession(t, f, practiceConfig(), makeQuestions(3))

	for _, index := range []int{-1, 3} {
		err := sess.GoTo(context.Background(), index)
		ite, ok := AsInvalidTransition(err)
		if !ok || ite.Reason != ReasonIndexOutOfRange {
			t.Errorf("GoTo(%d): err = %v, want rejection with %s", index, err, ReasonIndexOutOfRange)
		}
	}

	if err := sess.GoTo(context.Background(), 2); err != nil {
		t.Fatalf("GoTo(2): %v", err)
	}
	if view := sess.View(); view.Current != 2 {
		t.Errorf("Current = %d, want 2", view.Current)
	}
}

func TestAbandonProducesNoAttempt(t *testing.T) {
	f := newFixture()
	questions := makeQuestions(2)
	sess := startSession(t, f, timedConfig(60), questions)

	if _, err := sess.RecordAnswer(context.Background(), questions[0].ID, "A"); err != nil {
		t.Fatalf("RecordAnswer: %v", err)
	}
	if err := sess.Abandon(context.Background()); err != nil {
		t.Fatalf("Abandon: %v", err)
	}
	if sess.Phase() != PhaseAbandoned {
		t.Fatalf("phase = %s, want %s", sess.Phase(), PhaseAbandoned)
	}

	// The countdown is dead: blowing past the deadline changes nothing.
	f.sched.advance(2 * time.Minute)
	if f.recorder.count() != 0 {
		t.Errorf("recorder calls = %d after abandon, want 0", f.recorder.count())
	}
	if sess.Attempt() != nil {
		t.Error("abandoned session produced an attempt")
	}
	if snap, _ := f.store.LoadTimerSnapshot(context.Background(), sess.ID()); snap != nil {
		t.Error("timer snapshot survived abandon")
	}
}

func TestCompletedViewExposesAllFeedback(t *testing.T) {
	f := newFixture()
	questions := makeQuestions(2)
	sess := startSession(t, f, timedConfig(5), questions)

	f.sched.advance(5 * time.Second)

	view := sess.View()
	if !view.FeedbackVisible {
		t.Error("completed session hides feedback")
	}
	for _, q := range view.Questions {
		if q.CorrectAnswer != "A" {
			t.Errorf("question %s: CorrectAnswer = %q, want A", q.ID, q.CorrectAnswer)
		}
	}
	if view.TimerActive {
		t.Error("completed session reports an active countdown")
	}
}

func TestResumeContinuesCountdownFromStoredInstant(t *testing.T) {
	f := newFixture()
	questions := makeQuestions(3)
	sess := startSession(t, f, timedConfig(600), questions)

	if _, err := sess.RecordAnswer(context.Background(), questions[0].ID, "A"); err != nil {
		t.Fatalf("RecordAnswer: %v", err)
	}
	if err := sess.GoTo(context.Background(), 1); err != nil {
		t.Fatalf("GoTo: %v", err)
	}

	f.sched.advance(200 * time.Second)

	// Simulate a reload: stop the live machine and rebuild from the draft.
	draft, err := f.store.LoadDraft(context.Background(), sess.ID())
	if err != nil || draft == nil {
		t.Fatalf("LoadDraft: draft=%v err=%v", draft, err)
	}

	resumed, err := Resume(context.Background(), f.deps, draft, questions, false)
	if err != nil {
		t.Fatalf("Resume: %v", err)
	}

	if got := resumed.Remaining(); got != 400*time.Second {
		t.Errorf("Remaining() = %v after resume, want 400s (not a fresh 600s)", got)
	}
	view := resumed.View()
	if view.Current != 1 {
		t.Errorf("Current = %d after resume, want 1", view.Current)
	}
	if len(view.Answers) != 1 {
		t.Errorf("answers after resume = %d, want 1", len(view.Answers))
	}
}

func TestResumePastDeadlineExpiresImmediately(t *testing.T) {
	f := newFixture()
	questions := makeQuestions(2)
	sess := startSession(t, f, timedConfig(30), questions)

	draft, _ := f.store.LoadDraft(context.Background(), sess.ID())
	sess.Abandon(context.Background())
	// Abandon wiped the persisted state; put it back to model a stale client
	// resuming after its deadline passed while offline.
	f.store.SaveDraft(context.Background(), *draft)
	f.store.SaveTimerSnapshot(context.Background(), model.TimerSnapshot{
		SessionID: draft.SessionID,
		ExpiresAt: f.clock.Now().Add(-time.Minute),
		Origin:    f.deps.Origin,
	})

	resumed, err := Resume(context.Background(), f.deps, draft, questions, false)
	if err != nil {
		t.Fatalf("Resume: %v", err)
	}

	f.sched.advance(0)
	if resumed.Phase() != PhaseCompleted {
		t.Errorf("phase = %s, want %s (expired countdown completes on first tick)", resumed.Phase(), PhaseCompleted)
	}
}

func TestResumeFromForeignOriginConflicts(t *testing.T) {
	f := newFixture()
	questions := makeQuestions(2)
	sess := startSession(t, f, timedConfig(600), questions)

	draft, _ := f.store.LoadDraft(context.Background(), sess.ID())

	foreign := f.deps
	foreign.Origin = "ctx-b"

	if _, err := Resume(context.Background(), foreign, draft, questions, false); !errors.Is(err, ErrConflictingSession) {
		t.Fatalf("err = %v, want ErrConflictingSession", err)
	}

	resumed, err := Resume(context.Background(), foreign, draft, questions, true)
	if err != nil {
		t.Fatalf("Resume with takeOver: %v", err)
	}

	// Take-over re-stamps the snapshot with the claiming origin.
	snap, _ := f.store.LoadTimerSnapshot(context.Background(), resumed.ID())
	if snap == nil || snap.Origin != "ctx-b" {
		t.Errorf("snapshot origin = %+v, want ctx-b", snap)
	}
}

func TestSubmitSurvivesRecorderFailure(t *testing.T) {
	f := newFixture()
	f.recorder.failWith = errors.New("storage down")
	questions := makeQuestions(2)
	sess := startSession(t, f, practiceConfig(), questions)

	attempt, err := sess.Submit(context.Background(), TriggerManual)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if attempt == nil {
		t.Fatal("persistence failure blocked the in-memory attempt")
	}
	if sess.Phase() != PhaseCompleted {
		t.Errorf("phase = %s, want %s", sess.Phase(), PhaseCompleted)
	}
}
