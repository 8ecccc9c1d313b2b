package model

import (
	"time"

	"github.com/google/uuid"
)

// ExamType enumerates the two supported standardized tests.
type ExamType string

const (
	ExamTypeJAMB ExamType = "JAMB"
	ExamTypeWAEC ExamType = "WAEC"
)

// Valid reports whether the exam type is one of the supported values.
func (t ExamType) Valid() bool {
	return t == ExamTypeJAMB || t == ExamTypeWAEC
}

// Mode enumerates the quiz modes.
type Mode string

const (
	// ModePractice is untimed with immediate per-answer feedback.
	ModePractice Mode = "practice"
	// ModeTimed is duration-bounded with feedback deferred until completion.
	ModeTimed Mode = "timed"
)

// Valid reports whether the mode is one of the supported values.
func (m Mode) Valid() bool {
	return m == ModePractice || m == ModeTimed
}

// SelectionMethod enumerates how questions are selected for a session.
type SelectionMethod string

const (
	SelectBySubject SelectionMethod = "by-subject"
	SelectByYear    SelectionMethod = "by-year"
)

// SessionConfig describes one quiz session. Immutable once the session starts.
// DurationSeconds is 0 for practice mode and always > 0 for timed mode; the
// duration is resolved once at start and never re-resolved mid-session.
type SessionConfig struct {
	ExamType        ExamType        `json:"exam_type"`
	Mode            Mode            `json:"mode"`
	Selection       SelectionMethod `json:"selection"`
	SubjectID       *int            `json:"subject_id,omitempty"`
	Year            *int            `json:"year,omitempty"`
	DurationSeconds int             `json:"duration_seconds"`
}

// TimerSnapshot is the persisted representation of a running countdown.
// It stores the absolute expiration instant rather than a remaining duration
// so a reload reconstructs the true remaining time.
type TimerSnapshot struct {
	SessionID uuid.UUID `json:"session_id"`
	ExpiresAt time.Time `json:"expires_at"`
	// Origin identifies the server context that started the countdown.
	// A resume arriving from a different origin is a detectable conflict.
	Origin string `json:"origin"`
}

// DraftAnswer is one recorded answer inside a session draft.
type DraftAnswer struct {
	Answer           string `json:"answer"`
	TimeSpentSeconds int    `json:"time_spent_seconds"`
}

// SessionDraft is the durable in-progress state of one session, written on
// every mutation and deleted on completion or abandonment. Question content
// is referential: only the ordered ID list is stored.
type SessionDraft struct {
	SessionID   uuid.UUID              `json:"session_id"`
	UserID      int                    `json:"user_id"`
	Origin      string                 `json:"origin"`
	Config      SessionConfig          `json:"config"`
	QuestionIDs []uuid.UUID            `json:"question_ids"`
	Answers     map[string]DraftAnswer `json:"answers"`
	Current     int                    `json:"current"`
	StartedAt   time.Time              `json:"started_at"`
}

// Feedback is the per-answer correctness feedback exposed immediately in
// practice mode and suppressed until completion in timed mode.
type Feedback struct {
	Correct       bool   `json:"correct"`
	CorrectAnswer string `json:"correct_answer"`
	Explanation   string `json:"explanation,omitempty"`
}

// QuestionView is a question as rendered to the client. CorrectAnswer and
// Explanation are populated only while feedback is visible.
type QuestionView struct {
	ID            uuid.UUID `json:"id"`
	Text          string    `json:"text"`
	Options       []string  `json:"options"`
	CorrectAnswer string    `json:"correct_answer,omitempty"`
	Explanation   string    `json:"explanation,omitempty"`
}

// SessionView is the read-only state exposed for rendering.
type SessionView struct {
	SessionID        uuid.UUID         `json:"session_id"`
	Phase            string            `json:"phase"`
	Config           SessionConfig     `json:"config"`
	Questions        []QuestionView    `json:"questions"`
	Answers          map[string]string `json:"answers"`
	Current          int               `json:"current"`
	FeedbackVisible  bool              `json:"feedback_visible"`
	TimerActive      bool              `json:"timer_active"`
	RemainingSeconds int               `json:"remaining_seconds"`
}

// ─── Request payloads ───────────────────────────────────────────────

// StartSessionRequest is the payload for starting a quiz session.
type StartSessionRequest struct {
	ExamType  string `json:"exam_type" binding:"required,oneof=JAMB WAEC"`
	Mode      string `json:"mode" binding:"required,oneof=practice timed"`
	Selection string `json:"selection" binding:"required,oneof=by-subject by-year"`
	SubjectID *int   `json:"subject_id" binding:"omitempty,min=1"`
	Year      *int   `json:"year" binding:"omitempty,min=1990,max=2100"`
	// AllowUntimedFallback opts in to downgrading a timed session to
	// practice when no duration rule matches even the exam-type default.
	AllowUntimedFallback bool `json:"allow_untimed_fallback"`
	// DiscardConflicting discards an existing live session for this user
	// instead of reporting a conflict.
	DiscardConflicting bool `json:"discard_conflicting"`
}

// RecordAnswerRequest is the payload for recording one answer.
type RecordAnswerRequest struct {
	QuestionID string `json:"question_id" binding:"required,uuid"`
	Answer     string `json:"answer" binding:"required,max=10"`
}

// GoToRequest is the payload for jumping to a question position.
type GoToRequest struct {
	Index int `json:"index" binding:"min=0"`
}
