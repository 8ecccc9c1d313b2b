package service

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/prepdrill/prepdrill-backend/internal/engine"
	"github.com/prepdrill/prepdrill-backend/internal/model"
)

type questionSourceStub struct {
	questions []model.QuestionRef
}

func (s *questionSourceStub) ListByFilter(_ context.Context, examType model.ExamType, subjectID *int, _ *int) ([]model.QuestionRef, error) {
	var out []model.QuestionRef
	for _, q := range s.questions {
		if q.ExamType != examType {
			continue
		}
		if subjectID != nil && q.SubjectID != *subjectID {
			continue
		}
		out = append(out, q)
	}
	return out, nil
}

func (s *questionSourceStub) ListByIDs(_ context.Context, ids []uuid.UUID) ([]model.QuestionRef, error) {
	var out []model.QuestionRef
	for _, id := range ids {
		for _, q := range s.questions {
			if q.ID == id {
				out = append(out, q)
			}
		}
	}
	return out, nil
}

func TestLoadQuestionsEmptySelectionFails(t *testing.T) {
	svc := NewQuestionService(&questionSourceStub{questions: []model.QuestionRef{
		{ID: uuid.New(), ExamType: model.ExamTypeWAEC, SubjectID: 1},
	}})

	_, err := svc.LoadQuestions(context.Background(), model.ExamTypeJAMB, nil, nil)
	if !errors.Is(err, engine.ErrNoQuestionsAvailable) {
		t.Fatalf("err = %v, want ErrNoQuestionsAvailable", err)
	}
}

func TestLoadByIDsPreservesOrder(t *testing.T) {
	q1 := model.QuestionRef{ID: uuid.New(), ExamType: model.ExamTypeJAMB, SubjectID: 1}
	q2 := model.QuestionRef{ID: uuid.New(), ExamType: model.ExamTypeJAMB, SubjectID: 1}
	q3 := model.QuestionRef{ID: uuid.New(), ExamType: model.ExamTypeJAMB, SubjectID: 1}
	svc := NewQuestionService(&questionSourceStub{questions: []model.QuestionRef{q1, q2, q3}})

	// The draft's stored order, not catalog order, drives a resume.
	got, err := svc.LoadByIDs(context.Background(), []uuid.UUID{q3.ID, q1.ID, q2.ID})
	if err != nil {
		t.Fatalf("LoadByIDs: %v", err)
	}
	want := []uuid.UUID{q3.ID, q1.ID, q2.ID}
	if len(got) != len(want) {
		t.Fatalf("got %d questions, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].ID != want[i] {
			t.Errorf("position %d: got %s, want %s", i, got[i].ID, want[i])
		}
	}
}
