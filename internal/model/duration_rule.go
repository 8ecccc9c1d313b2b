package model

import "time"

// DurationRule maps an (exam type, optional subject, optional year) key to a
// session time limit in seconds. Nil dimensions mean "any". The (exam_type,
// subject_id, year) tuple is unique, and each exam type carries one
// unconditional default row with both dimensions absent.
type DurationRule struct {
	ID              int       `json:"id"`
	ExamType        ExamType  `json:"exam_type"`
	SubjectID       *int      `json:"subject_id,omitempty"`
	Year            *int      `json:"year,omitempty"`
	DurationSeconds int       `json:"duration_seconds"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// UpsertDurationRuleRequest is the payload for creating or updating a rule.
type UpsertDurationRuleRequest struct {
	ExamType        string `json:"exam_type" binding:"required,oneof=JAMB WAEC"`
	SubjectID       *int   `json:"subject_id" binding:"omitempty,min=1"`
	Year            *int   `json:"year" binding:"omitempty,min=1990,max=2100"`
	DurationSeconds int    `json:"duration_seconds" binding:"required,min=1,max=86400"`
}
