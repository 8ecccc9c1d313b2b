package service

import (
	"context"
	"fmt"

	"github.com/prepdrill/prepdrill-backend/internal/engine"
	"github.com/prepdrill/prepdrill-backend/internal/model"
	"github.com/rs/zerolog"
)

// DurationRuleStore is the rule persistence consumed by the resolver.
type DurationRuleStore interface {
	ListByExamType(ctx context.Context, examType model.ExamType) ([]model.DurationRule, error)
	ListAll(ctx context.Context) ([]model.DurationRule, error)
	Upsert(ctx context.Context, rule *model.DurationRule) error
	Delete(ctx context.Context, id int) error
}

// DurationService resolves session durations from the rule table and exposes
// the admin rule CRUD. Resolution reads rules fresh on every call, so an
// update is visible to the next call with no invalidation step; already
// started sessions keep the duration captured at start.
type DurationService struct {
	rules DurationRuleStore
	log   zerolog.Logger
}

// NewDurationService creates a new DurationService.
func NewDurationService(rules DurationRuleStore, log zerolog.Logger) *DurationService {
	return &DurationService{
		rules: rules,
		log:   log.With().Str("component", "duration_service").Logger(),
	}
}

// ResolveDuration returns the duration in seconds for a selection. Matching
// is most-specific-first: (type, subject, year) → (type, year) →
// (type, subject) → exam-type default; the first matching rule wins. No
// match even at the default is a configuration-integrity fault — the
// resolver never returns zero or a negative duration.
func (s *DurationService) ResolveDuration(ctx context.Context, examType model.ExamType, subjectID, year *int) (int, error) {
	rules, err := s.rules.ListByExamType(ctx, examType)
	if err != nil {
		return 0, fmt.Errorf("list rules: %w", err)
	}

	if seconds, ok := resolveFromRules(rules, subjectID, year); ok {
		return seconds, nil
	}

	s.log.Error().
		Str("exam_type", string(examType)).
		Msg("No duration rule matched, not even the exam-type default")
	return 0, engine.ErrConfigurationFault
}

// resolveFromRules applies the specificity order over one exam type's rules.
// A rule only matches when the query supplies every dimension the rule pins.
func resolveFromRules(rules []model.DurationRule, subjectID, year *int) (int, bool) {
	type matchFunc func(r *model.DurationRule) bool

	passes := []matchFunc{
		// (exam type, subject, year)
		func(r *model.DurationRule) bool {
			return r.SubjectID != nil && r.Year != nil &&
				subjectID != nil && year != nil &&
				*r.SubjectID == *subjectID && *r.Year == *year
		},
		// (exam type, year)
		func(r *model.DurationRule) bool {
			return r.SubjectID == nil && r.Year != nil &&
				year != nil && *r.Year == *year
		},
		// (exam type, subject)
		func(r *model.DurationRule) bool {
			return r.SubjectID != nil && r.Year == nil &&
				subjectID != nil && *r.SubjectID == *subjectID
		},
		// (exam type) default
		func(r *model.DurationRule) bool {
			return r.SubjectID == nil && r.Year == nil
		},
	}

	for _, matches := range passes {
		for i := range rules {
			if rules[i].DurationSeconds > 0 && matches(&rules[i]) {
				return rules[i].DurationSeconds, true
			}
		}
	}
	return 0, false
}

// ListRules returns every rule for the admin surface.
func (s *DurationService) ListRules(ctx context.Context) ([]model.DurationRule, error) {
	return s.rules.ListAll(ctx)
}

// UpsertRule creates or updates a rule; the next resolution call sees it.
func (s *DurationService) UpsertRule(ctx context.Context, rule *model.DurationRule) error {
	if err := s.rules.Upsert(ctx, rule); err != nil {
		return fmt.Errorf("upsert rule: %w", err)
	}
	s.log.Info().
		Str("exam_type", string(rule.ExamType)).
		Int("duration_seconds", rule.DurationSeconds).
		Msg("Duration rule upserted")
	return nil
}

// DeleteRule removes a rule by ID.
func (s *DurationService) DeleteRule(ctx context.Context, id int) error {
	return s.rules.Delete(ctx, id)
}
