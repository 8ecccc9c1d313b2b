package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prepdrill/prepdrill-backend/internal/model"
)

// QuestionRepository handles question catalog data access.
type QuestionRepository struct {
	pool *pgxpool.Pool
}

// NewQuestionRepository creates a new QuestionRepository.
func NewQuestionRepository(pool *pgxpool.Pool) *QuestionRepository {
	return &QuestionRepository{pool: pool}
}

// ListByFilter retrieves the ordered question sequence for an exam type,
// optionally narrowed by subject and/or year.
func (r *QuestionRepository) ListByFilter(ctx context.Context, examType model.ExamType, subjectID *int, year *int) ([]model.QuestionRef, error) {
	query := `SELECT id, exam_type, subject_id, year, question_text, options, correct_answer, explanation, order_num
		 FROM questions
		 WHERE exam_type = $1`
	args := []any{examType}

	if subjectID != nil {
		args = append(args, *subjectID)
		query += ` AND subject_id = $2`
	}
	if year != nil {
		args = append(args, *year)
		if subjectID != nil {
			query += ` AND year = $3`
		} else {
			query += ` AND year = $2`
		}
	}
	query += ` ORDER BY order_num ASC, id ASC`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanQuestions(rows)
}

// ListByIDs retrieves questions by ID, preserving the given order. Used when
// resuming a session from its draft so the original sequence is kept.
func (r *QuestionRepository) ListByIDs(ctx context.Context, ids []uuid.UUID) ([]model.QuestionRef, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT q.id, q.exam_type, q.subject_id, q.year, q.question_text, q.options, q.correct_answer, q.explanation, q.order_num
		 FROM questions q
		 JOIN UNNEST($1::uuid[]) WITH ORDINALITY AS t (id, ord) ON q.id = t.id
		 ORDER BY t.ord ASC`, ids,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanQuestions(rows)
}

type questionRows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanQuestions(rows questionRows) ([]model.QuestionRef, error) {
	var questions []model.QuestionRef
	for rows.Next() {
		var q model.QuestionRef
		if err := rows.Scan(&q.ID, &q.ExamType, &q.SubjectID, &q.Year, &q.Text, &q.Options, &q.CorrectAnswer, &q.Explanation, &q.OrderNum); err != nil {
			return nil, err
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}
