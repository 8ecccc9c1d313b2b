package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// UserLoginKey returns the cache key for a user's login session
func (r *CacheKeyStruct) UserLoginKey(userID int) string {
	return fmt.Sprintf("login:%d", userID)
}

// TimerSnapshotKey returns the cache key for a session's countdown snapshot
func (r *CacheKeyStruct) TimerSnapshotKey(sessionID string) string {
	return fmt.Sprintf("session:%s:timer", sessionID)
}

// SessionDraftKey returns the cache key for a session's in-progress draft
func (r *CacheKeyStruct) SessionDraftKey(sessionID string) string {
	return fmt.Sprintf("session:%s:draft", sessionID)
}

// UserActiveSessionKey returns the cache key for a user's currently live session
func (r *CacheKeyStruct) UserActiveSessionKey(userID int) string {
	return fmt.Sprintf("user:%d:active_session", userID)
}

var CacheKey = NewCacheKeyStruct()
