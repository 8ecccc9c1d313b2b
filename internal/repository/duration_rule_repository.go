package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prepdrill/prepdrill-backend/internal/model"
)

// DurationRuleRepository handles duration rule data access. Every read hits
// PostgreSQL directly so a rule update is visible to the very next
// resolution call with no cache invalidation step.
type DurationRuleRepository struct {
	pool *pgxpool.Pool
}

// NewDurationRuleRepository creates a new DurationRuleRepository.
func NewDurationRuleRepository(pool *pgxpool.Pool) *DurationRuleRepository {
	return &DurationRuleRepository{pool: pool}
}

// ListByExamType retrieves all rules for one exam type.
func (r *DurationRuleRepository) ListByExamType(ctx context.Context, examType model.ExamType) ([]model.DurationRule, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, exam_type, subject_id, year, duration_seconds, created_at, updated_at
		 FROM duration_rules
		 WHERE exam_type = $1
		 ORDER BY id ASC`, examType,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []model.DurationRule
	for rows.Next() {
		var rule model.DurationRule
		if err := rows.Scan(&rule.ID, &rule.ExamType, &rule.SubjectID, &rule.Year, &rule.DurationSeconds, &rule.CreatedAt, &rule.UpdatedAt); err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

// ListAll retrieves every rule, for the admin listing.
func (r *DurationRuleRepository) ListAll(ctx context.Context) ([]model.DurationRule, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, exam_type, subject_id, year, duration_seconds, created_at, updated_at
		 FROM duration_rules
		 ORDER BY exam_type ASC, subject_id ASC NULLS FIRST, year ASC NULLS FIRST`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []model.DurationRule
	for rows.Next() {
		var rule model.DurationRule
		if err := rows.Scan(&rule.ID, &rule.ExamType, &rule.SubjectID, &rule.Year, &rule.DurationSeconds, &rule.CreatedAt, &rule.UpdatedAt); err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

// Upsert inserts a rule or updates the duration of the existing rule with
// the same (exam_type, subject_id, year) key tuple. NULL dimensions take
// part in the uniqueness constraint via COALESCE sentinels.
func (r *DurationRuleRepository) Upsert(ctx context.Context, rule *model.DurationRule) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO duration_rules (exam_type, subject_id, year, duration_seconds)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (exam_type, COALESCE(subject_id, 0), COALESCE(year, 0)) DO UPDATE
		 SET duration_seconds = EXCLUDED.duration_seconds, updated_at = NOW()
		 RETURNING id, created_at, updated_at`,
		rule.ExamType, rule.SubjectID, rule.Year, rule.DurationSeconds,
	).Scan(&rule.ID, &rule.CreatedAt, &rule.UpdatedAt)
}

// Delete removes a rule by ID.
func (r *DurationRuleRepository) Delete(ctx context.Context, id int) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM duration_rules WHERE id = $1`, id)
	return err
}
