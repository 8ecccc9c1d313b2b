package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/prepdrill/prepdrill-backend/internal/config"
	"github.com/prepdrill/prepdrill-backend/internal/model"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// AttemptStore is the attempt persistence consumed by the recorder.
type AttemptStore interface {
	Save(ctx context.Context, a *model.CompletedAttempt) error
	ListByUser(ctx context.Context, userID, page, perPage int) ([]model.CompletedAttempt, int64, error)
	ListAll(ctx context.Context, page, perPage int) ([]model.CompletedAttempt, int64, error)
	GetByID(ctx context.Context, attemptID uuid.UUID, userID int) (*model.CompletedAttempt, error)
}

// AttemptService persists completed attempts and serves attempt history.
// It implements engine.AttemptRecorder: a direct save failure queues the
// attempt for background retry instead of surfacing to the submitter, so
// review is never blocked on persistence.
type AttemptService struct {
	attemptRepo AttemptStore
	rdb         *redis.Client
	log         zerolog.Logger
}

// NewAttemptService creates a new AttemptService.
func NewAttemptService(attemptRepo AttemptStore, rdb *redis.Client, log zerolog.Logger) *AttemptService {
	return &AttemptService{
		attemptRepo: attemptRepo,
		rdb:         rdb,
		log:         log.With().Str("component", "attempt_service").Logger(),
	}
}

// Record saves the attempt. On storage failure the attempt is enqueued on
// the persist queue for the sync worker; the returned error then reports the
// original failure for logging while the attempt itself is safe.
func (s *AttemptService) Record(ctx context.Context, attempt *model.CompletedAttempt) error {
	saveErr := s.attemptRepo.Save(ctx, attempt)
	if saveErr == nil {
		attempt.Synced = true
		return nil
	}

	payload, err := json.Marshal(attempt)
	if err != nil {
		return fmt.Errorf("marshal attempt: %w", err)
	}
	if err := s.rdb.RPush(ctx, config.WorkerKey.PersistAttemptsQueue, payload).Err(); err != nil {
		s.log.Error().Err(err).
			Str("session_id", attempt.SessionID.String()).
			Msg("Attempt save failed and enqueue failed")
		return fmt.Errorf("enqueue attempt: %w", err)
	}

	s.log.Warn().Err(saveErr).
		Str("session_id", attempt.SessionID.String()).
		Msg("Attempt save failed, queued for retry")
	return fmt.Errorf("save attempt: %w", saveErr)
}

// ListByUser returns a user's attempt history page, newest first.
func (s *AttemptService) ListByUser(ctx context.Context, userID, page, perPage int) ([]model.CompletedAttempt, int64, error) {
	return s.attemptRepo.ListByUser(ctx, userID, page, perPage)
}

// ListAll returns an attempt history page across all users, newest first.
func (s *AttemptService) ListAll(ctx context.Context, page, perPage int) ([]model.CompletedAttempt, int64, error) {
	return s.attemptRepo.ListAll(ctx, page, perPage)
}

// GetByID returns one of the user's attempts with its full answer breakdown.
func (s *AttemptService) GetByID(ctx context.Context, attemptID uuid.UUID, userID int) (*model.CompletedAttempt, error) {
	return s.attemptRepo.GetByID(ctx, attemptID, userID)
}
