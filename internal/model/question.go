package model

import (
	"github.com/google/uuid"
)

// QuestionRef is a single quiz question as loaded for a session. The correct
// answer and explanation never leave the server before feedback is visible.
type QuestionRef struct {
	ID            uuid.UUID `json:"id"`
	ExamType      ExamType  `json:"exam_type"`
	SubjectID     int       `json:"subject_id"`
	Year          int       `json:"year"`
	Text          string    `json:"text"`
	Options       []string  `json:"options"`
	CorrectAnswer string    `json:"correct_answer"`
	Explanation   string    `json:"explanation"`
	OrderNum      int       `json:"order_num"`
}
