package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/prepdrill/prepdrill-backend/internal/engine"
	"github.com/prepdrill/prepdrill-backend/internal/model"
)

// QuestionSource is the question catalog persistence consumed by the loader.
type QuestionSource interface {
	ListByFilter(ctx context.Context, examType model.ExamType, subjectID *int, year *int) ([]model.QuestionRef, error)
	ListByIDs(ctx context.Context, ids []uuid.UUID) ([]model.QuestionRef, error)
}

// QuestionService is the question loader collaborator: it returns the
// ordered question sequence for a selection or signals that none exist.
type QuestionService struct {
	questions QuestionSource
}

// NewQuestionService creates a new QuestionService.
func NewQuestionService(questions QuestionSource) *QuestionService {
	return &QuestionService{questions: questions}
}

// LoadQuestions returns a non-empty ordered sequence for the selection or
// engine.ErrNoQuestionsAvailable.
func (s *QuestionService) LoadQuestions(ctx context.Context, examType model.ExamType, subjectID, year *int) ([]model.QuestionRef, error) {
	questions, err := s.questions.ListByFilter(ctx, examType, subjectID, year)
	if err != nil {
		return nil, fmt.Errorf("load questions: %w", err)
	}
	if len(questions) == 0 {
		return nil, engine.ErrNoQuestionsAvailable
	}
	return questions, nil
}

// LoadByIDs reloads a session's questions in their original order when
// resuming from a draft.
func (s *QuestionService) LoadByIDs(ctx context.Context, ids []uuid.UUID) ([]model.QuestionRef, error) {
	questions, err := s.questions.ListByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load questions by id: %w", err)
	}
	if len(questions) == 0 {
		return nil, engine.ErrNoQuestionsAvailable
	}
	return questions, nil
}
