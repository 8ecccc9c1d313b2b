package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/prepdrill/prepdrill-backend/internal/config"
	"github.com/prepdrill/prepdrill-backend/internal/model"
	"github.com/redis/go-redis/v9"
)

// RedisSessionStore implements engine.SessionStore on Redis. It holds only
// the timer snapshots and in-progress drafts of live sessions; both are
// deleted explicitly on completion, expiration or abandonment.
type RedisSessionStore struct {
	rdb *redis.Client
}

// NewRedisSessionStore creates a new RedisSessionStore.
func NewRedisSessionStore(rdb *redis.Client) *RedisSessionStore {
	return &RedisSessionStore{rdb: rdb}
}

// SaveTimerSnapshot writes the countdown's absolute expiration instant.
func (s *RedisSessionStore) SaveTimerSnapshot(ctx context.Context, snap model.TimerSnapshot) error {
	raw, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	return s.rdb.Set(ctx, config.CacheKey.TimerSnapshotKey(snap.SessionID.String()), raw, 0).Err()
}

// LoadTimerSnapshot reads a snapshot back. Returns (nil, nil) when none exists.
func (s *RedisSessionStore) LoadTimerSnapshot(ctx context.Context, sessionID uuid.UUID) (*model.TimerSnapshot, error) {
	raw, err := s.rdb.Get(ctx, config.CacheKey.TimerSnapshotKey(sessionID.String())).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("get snapshot: %w", err)
	}

	var snap model.TimerSnapshot
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return &snap, nil
}

// DeleteTimerSnapshot removes a snapshot. No-op if absent.
func (s *RedisSessionStore) DeleteTimerSnapshot(ctx context.Context, sessionID uuid.UUID) error {
	return s.rdb.Del(ctx, config.CacheKey.TimerSnapshotKey(sessionID.String())).Err()
}

// SaveDraft writes the in-progress session draft.
func (s *RedisSessionStore) SaveDraft(ctx context.Context, draft model.SessionDraft) error {
	raw, err := json.Marshal(draft)
	if err != nil {
		return fmt.Errorf("marshal draft: %w", err)
	}
	return s.rdb.Set(ctx, config.CacheKey.SessionDraftKey(draft.SessionID.String()), raw, 0).Err()
}

// LoadDraft reads a draft back. Returns (nil, nil) when none exists.
func (s *RedisSessionStore) LoadDraft(ctx context.Context, sessionID uuid.UUID) (*model.SessionDraft, error) {
	raw, err := s.rdb.Get(ctx, config.CacheKey.SessionDraftKey(sessionID.String())).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("get draft: %w", err)
	}

	var draft model.SessionDraft
	if err := json.Unmarshal([]byte(raw), &draft); err != nil {
		return nil, fmt.Errorf("unmarshal draft: %w", err)
	}
	return &draft, nil
}

// DeleteDraft removes a draft. No-op if absent.
func (s *RedisSessionStore) DeleteDraft(ctx context.Context, sessionID uuid.UUID) error {
	return s.rdb.Del(ctx, config.CacheKey.SessionDraftKey(sessionID.String())).Err()
}
