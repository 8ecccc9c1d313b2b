package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/prepdrill/prepdrill-backend/internal/config"
	"github.com/prepdrill/prepdrill-backend/internal/model"
	"github.com/prepdrill/prepdrill-backend/internal/repository"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// AttemptSyncWorker consumes the persist queue and writes attempts that
// failed their direct save to PostgreSQL. The attempt insert is idempotent on
// session_id, so redelivery after a crash cannot duplicate a record.
type AttemptSyncWorker struct {
	attemptRepo *repository.AttemptRepository
	rdb         *redis.Client
	log         zerolog.Logger

	// Backoff doubles on consecutive persist failures and resets on success.
	backoff time.Duration
}

const (
	minBackoff = time.Second
	maxBackoff = time.Minute
)

// NewAttemptSyncWorker creates a new AttemptSyncWorker.
func NewAttemptSyncWorker(attemptRepo *repository.AttemptRepository, rdb *redis.Client, log zerolog.Logger) *AttemptSyncWorker {
	return &AttemptSyncWorker{
		attemptRepo: attemptRepo,
		rdb:         rdb,
		log:         log.With().Str("component", "attempt_sync_worker").Logger(),
	}
}

// Start begins the infinite worker loop. Call in a goroutine.
func (w *AttemptSyncWorker) Start(ctx context.Context) {
	w.log.Info().Msg("Worker started")

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Worker stopping...")
			// Drain remaining items before exit.
			w.drain(context.Background())
			w.log.Info().Msg("Worker stopped")
			return
		default:
			w.processNext(ctx)
		}
	}
}

func (w *AttemptSyncWorker) processNext(ctx context.Context) {
	// BLPop blocks until an item is available or timeout (1 second).
	result, err := w.rdb.BLPop(ctx, time.Second, config.WorkerKey.PersistAttemptsQueue).Result()
	if err != nil {
		if err != redis.Nil && ctx.Err() == nil {
			w.log.Error().Err(err).Msg("BLPop error")
		}
		return
	}

	if len(result) < 2 {
		return
	}

	var attempt model.CompletedAttempt
	if err := json.Unmarshal([]byte(result[1]), &attempt); err != nil {
		w.log.Error().Err(err).Msg("Unmarshal error")
		return
	}

	if err := w.attemptRepo.Save(ctx, &attempt); err != nil {
		if w.backoff < minBackoff {
			w.backoff = minBackoff
		} else if w.backoff < maxBackoff {
			w.backoff *= 2
		}
		w.log.Error().Err(err).
			Str("session_id", attempt.SessionID.String()).
			Int("user_id", attempt.UserID).
			Dur("backoff", w.backoff).
			Msg("Persist error, backing off")
		// Push back to queue for retry.
		w.rdb.RPush(ctx, config.WorkerKey.PersistAttemptsQueue, result[1])
		select {
		case <-ctx.Done():
		case <-time.After(w.backoff):
		}
		return
	}

	w.backoff = 0
	w.log.Info().
		Str("session_id", attempt.SessionID.String()).
		Msg("Deferred attempt persisted")
}

// drain processes all remaining items in the queue before shutdown.
func (w *AttemptSyncWorker) drain(ctx context.Context) {
	drained := 0
	for {
		result, err := w.rdb.LPop(ctx, config.WorkerKey.PersistAttemptsQueue).Result()
		if err != nil {
			break
		}

		var attempt model.CompletedAttempt
		if err := json.Unmarshal([]byte(result), &attempt); err != nil {
			w.log.Error().Err(err).Msg("Drain unmarshal error")
			continue
		}

		if err := w.attemptRepo.Save(ctx, &attempt); err != nil {
			w.log.Error().Err(err).Msg("Drain persist error")
			w.rdb.RPush(ctx, config.WorkerKey.PersistAttemptsQueue, result)
			break
		}
		drained++
	}

	if drained > 0 {
		w.log.Info().Int("count", drained).Msg("Drained remaining attempts")
	}
}
