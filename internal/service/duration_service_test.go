package service

import (
	"context"
	"errors"
	"testing"

	"github.com/prepdrill/prepdrill-backend/internal/engine"
	"github.com/prepdrill/prepdrill-backend/internal/model"
	"github.com/rs/zerolog"
)

type ruleStoreStub struct {
	rules []model.DurationRule
}

func (s *ruleStoreStub) ListByExamType(_ context.Context, examType model.ExamType) ([]model.DurationRule, error) {
	var out []model.DurationRule
	for _, r := range s.rules {
		if r.ExamType == examType {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *ruleStoreStub) ListAll(_ context.Context) ([]model.DurationRule, error) {
	return s.rules, nil
}

func (s *ruleStoreStub) Upsert(_ context.Context, rule *model.DurationRule) error {
	s.rules = append(s.rules, *rule)
	return nil
}

func (s *ruleStoreStub) Delete(_ context.Context, _ int) error { return nil }

func rule(examType model.ExamType, subjectID, year *int, seconds int) model.DurationRule {
	return model.DurationRule{
		ExamType:        examType,
		SubjectID:       subjectID,
		Year:            year,
		DurationSeconds: seconds,
	}
}

func intp(v int) *int { return &v }

func TestResolveDurationSpecificityOrder(t *testing.T) {
	math, english := 1, 2
	y2023 := 2023

	store := &ruleStoreStub{rules: []model.DurationRule{
		rule(model.ExamTypeJAMB, nil, nil, 7200),                // default
		rule(model.ExamTypeJAMB, intp(math), nil, 1800),         // subject
		rule(model.ExamTypeJAMB, nil, intp(y2023), 2400),        // year
		rule(model.ExamTypeJAMB, intp(math), intp(y2023), 1500), // subject+year
		rule(model.ExamTypeWAEC, nil, nil, 3600),
	}}
	svc := NewDurationService(store, zerolog.Nop())
	ctx := context.Background()

	cases := []struct {
		name      string
		subjectID *int
		year      *int
		want      int
	}{
		{"subject and year beats everything", intp(math), intp(y2023), 1500},
		{"year rule beats subject rule", intp(english), intp(y2023), 2400},
		{"subject rule when year has no rule", intp(math), intp(2020), 1800},
		{"default when nothing specific matches", intp(english), intp(2020), 7200},
		{"default when no dimensions supplied", nil, nil, 7200},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := svc.ResolveDuration(ctx, model.ExamTypeJAMB, tc.subjectID, tc.year)
			if err != nil {
				t.Fatalf("ResolveDuration: %v", err)
			}
			if got != tc.want {
				t.Errorf("duration = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestResolveDurationSpecificBeatsGeneralDespiteValue(t *testing.T) {
	math := 1
	store := &ruleStoreStub{rules: []model.DurationRule{
		rule(model.ExamTypeJAMB, nil, nil, 3600),
		rule(model.ExamTypeJAMB, intp(math), nil, 1800),
	}}
	svc := NewDurationService(store, zerolog.Nop())

	// The shorter but more specific 1800s rule wins over the 3600s default.
	got, err := svc.ResolveDuration(context.Background(), model.ExamTypeJAMB, intp(math), nil)
	if err != nil {
		t.Fatalf("ResolveDuration: %v", err)
	}
	if got != 1800 {
		t.Errorf("duration = %d, want 1800", got)
	}
}

func TestResolveDurationPinnedRuleNeedsItsDimension(t *testing.T) {
	math := 1
	store := &ruleStoreStub{rules: []model.DurationRule{
		rule(model.ExamTypeJAMB, nil, nil, 7200),
		rule(model.ExamTypeJAMB, intp(math), nil, 1800),
	}}
	svc := NewDurationService(store, zerolog.Nop())

	// No subject in the query, so the subject-pinned rule cannot match.
	got, err := svc.ResolveDuration(context.Background(), model.ExamTypeJAMB, nil, intp(2023))
	if err != nil {
		t.Fatalf("ResolveDuration: %v", err)
	}
	if got != 7200 {
		t.Errorf("duration = %d, want the 7200 default", got)
	}
}

func TestResolveDurationNoMatchIsConfigurationFault(t *testing.T) {
	store := &ruleStoreStub{rules: []model.DurationRule{
		// WAEC only; JAMB has no rules at all, not even a default.
		rule(model.ExamTypeWAEC, nil, nil, 3600),
	}}
	svc := NewDurationService(store, zerolog.Nop())

	_, err := svc.ResolveDuration(context.Background(), model.ExamTypeJAMB, nil, nil)
	if !errors.Is(err, engine.ErrConfigurationFault) {
		t.Fatalf("err = %v, want ErrConfigurationFault", err)
	}
}

func TestResolveDurationNeverReturnsNonPositive(t *testing.T) {
	store := &ruleStoreStub{rules: []model.DurationRule{
		rule(model.ExamTypeJAMB, nil, nil, 0), // corrupt row
	}}
	svc := NewDurationService(store, zerolog.Nop())

	_, err := svc.ResolveDuration(context.Background(), model.ExamTypeJAMB, nil, nil)
	if !errors.Is(err, engine.ErrConfigurationFault) {
		t.Fatalf("err = %v, want ErrConfigurationFault for a zero-duration rule", err)
	}
}
