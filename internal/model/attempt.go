package model

import (
	"time"

	"github.com/google/uuid"
)

// AnswerRecord is the per-question outcome inside a completed attempt.
// An unanswered question keeps Answered false and counts as incorrect.
type AnswerRecord struct {
	QuestionID       uuid.UUID `json:"question_id"`
	Answer           string    `json:"answer"`
	CorrectAnswer    string    `json:"correct_answer"`
	Answered         bool      `json:"answered"`
	Correct          bool      `json:"correct"`
	TimeSpentSeconds int       `json:"time_spent_seconds"`
}

// CompletedAttempt is the terminal, immutable record of one finished session.
// Created exactly once per session by the submission guard; Synced flips to
// true once the background worker confirms persistence.
type CompletedAttempt struct {
	ID             uuid.UUID      `json:"id"`
	SessionID      uuid.UUID      `json:"session_id"`
	UserID         int            `json:"user_id"`
	Config         SessionConfig  `json:"config"`
	Answers        []AnswerRecord `json:"answers"`
	CorrectCount   int            `json:"correct_count"`
	TotalQuestions int            `json:"total_questions"`
	Score          float64        `json:"score"`
	ElapsedSeconds int            `json:"elapsed_seconds"`
	CompletedAt    time.Time      `json:"completed_at"`
	Synced         bool           `json:"synced"`
}
