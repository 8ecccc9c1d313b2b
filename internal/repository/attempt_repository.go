package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prepdrill/prepdrill-backend/internal/model"
)

// AttemptRepository handles completed attempt data access. Attempts are
// write-once: rows are inserted on completion and never updated.
type AttemptRepository struct {
	pool *pgxpool.Pool
}

// NewAttemptRepository creates a new AttemptRepository.
func NewAttemptRepository(pool *pgxpool.Pool) *AttemptRepository {
	return &AttemptRepository{pool: pool}
}

// Save persists an attempt and its per-question answer records in one
// transaction. Idempotent on the session key: a retried save after a partial
// failure does not produce a second record.
func (r *AttemptRepository) Save(ctx context.Context, a *model.CompletedAttempt) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx,
		`INSERT INTO attempts (id, session_id, user_id, exam_type, mode, selection, subject_id, year,
		                       duration_seconds, correct_count, total_questions, score, elapsed_seconds, completed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		 ON CONFLICT (session_id) DO NOTHING`,
		a.ID, a.SessionID, a.UserID, a.Config.ExamType, a.Config.Mode, a.Config.Selection,
		a.Config.SubjectID, a.Config.Year, a.Config.DurationSeconds,
		a.CorrectCount, a.TotalQuestions, a.Score, a.ElapsedSeconds, a.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("insert attempt: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Already persisted by an earlier retry.
		return tx.Commit(ctx)
	}

	for i := range a.Answers {
		rec := &a.Answers[i]
		if _, err := tx.Exec(ctx,
			`INSERT INTO attempt_answers (attempt_id, question_id, answer, correct_answer, answered, correct, time_spent_seconds)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			a.ID, rec.QuestionID, rec.Answer, rec.CorrectAnswer, rec.Answered, rec.Correct, rec.TimeSpentSeconds,
		); err != nil {
			return fmt.Errorf("insert answer: %w", err)
		}
	}

	return tx.Commit(ctx)
}

// ListByUser retrieves a user's attempts ordered by completion time
// descending, with pagination.
func (r *AttemptRepository) ListByUser(ctx context.Context, userID, page, perPage int) ([]model.CompletedAttempt, int64, error) {
	var total int64
	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM attempts WHERE user_id = $1`, userID,
	).Scan(&total); err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * perPage
	rows, err := r.pool.Query(ctx,
		`SELECT id, session_id, user_id, exam_type, mode, selection, subject_id, year,
		        duration_seconds, correct_count, total_questions, score, elapsed_seconds, completed_at
		 FROM attempts
		 WHERE user_id = $1
		 ORDER BY completed_at DESC
		 LIMIT $2 OFFSET $3`, userID, perPage, offset,
	)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var attempts []model.CompletedAttempt
	for rows.Next() {
		var a model.CompletedAttempt
		if err := rows.Scan(&a.ID, &a.SessionID, &a.UserID, &a.Config.ExamType, &a.Config.Mode, &a.Config.Selection,
			&a.Config.SubjectID, &a.Config.Year, &a.Config.DurationSeconds,
			&a.CorrectCount, &a.TotalQuestions, &a.Score, &a.ElapsedSeconds, &a.CompletedAt); err != nil {
			return nil, 0, err
		}
		a.Synced = true
		attempts = append(attempts, a)
	}
	return attempts, total, rows.Err()
}

// ListAll retrieves attempts across all users ordered by completion time
// descending, with pagination. Admin surface.
func (r *AttemptRepository) ListAll(ctx context.Context, page, perPage int) ([]model.CompletedAttempt, int64, error) {
	var total int64
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM attempts`).Scan(&total); err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * perPage
	rows, err := r.pool.Query(ctx,
		`SELECT id, session_id, user_id, exam_type, mode, selection, subject_id, year,
		        duration_seconds, correct_count, total_questions, score, elapsed_seconds, completed_at
		 FROM attempts
		 ORDER BY completed_at DESC
		 LIMIT $1 OFFSET $2`, perPage, offset,
	)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var attempts []model.CompletedAttempt
	for rows.Next() {
		var a model.CompletedAttempt
		if err := rows.Scan(&a.ID, &a.SessionID, &a.UserID, &a.Config.ExamType, &a.Config.Mode, &a.Config.Selection,
			&a.Config.SubjectID, &a.Config.Year, &a.Config.DurationSeconds,
			&a.CorrectCount, &a.TotalQuestions, &a.Score, &a.ElapsedSeconds, &a.CompletedAt); err != nil {
			return nil, 0, err
		}
		a.Synced = true
		attempts = append(attempts, a)
	}
	return attempts, total, rows.Err()
}

// GetByID retrieves a single attempt with its answer records, scoped to the
// owning user.
func (r *AttemptRepository) GetByID(ctx context.Context, attemptID uuid.UUID, userID int) (*model.CompletedAttempt, error) {
	a := &model.CompletedAttempt{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, session_id, user_id, exam_type, mode, selection, subject_id, year,
		        duration_seconds, correct_count, total_questions, score, elapsed_seconds, completed_at
		 FROM attempts
		 WHERE id = $1 AND user_id = $2`, attemptID, userID,
	).Scan(&a.ID, &a.SessionID, &a.UserID, &a.Config.ExamType, &a.Config.Mode, &a.Config.Selection,
		&a.Config.SubjectID, &a.Config.Year, &a.Config.DurationSeconds,
		&a.CorrectCount, &a.TotalQuestions, &a.Score, &a.ElapsedSeconds, &a.CompletedAt)
	if err != nil {
		return nil, err
	}
	a.Synced = true

	rows, err := r.pool.Query(ctx,
		`SELECT question_id, answer, correct_answer, answered, correct, time_spent_seconds
		 FROM attempt_answers
		 WHERE attempt_id = $1
		 ORDER BY id ASC`, attemptID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var rec model.AnswerRecord
		if err := rows.Scan(&rec.QuestionID, &rec.Answer, &rec.CorrectAnswer, &rec.Answered, &rec.Correct, &rec.TimeSpentSeconds); err != nil {
			return nil, err
		}
		a.Answers = append(a.Answers, rec)
	}
	return a, rows.Err()
}
