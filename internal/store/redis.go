// Package store keeps session state in Redis.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/example/mri-check/internal/session"
)

const keyPrefix = "session:"

// RedisSessionStore stores each session as JSON under session:<id>. Keys expire after ttl
// of inactivity, which is how a session ends when the tab is closed.
type RedisSessionStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisSessionStore constructs a Redis-backed session store.
func NewRedisSessionStore(client *redis.Client, ttl time.Duration) *RedisSessionStore {
	return &RedisSessionStore{client: client, ttl: ttl}
}

// Load returns the stored state, or a fresh one for unknown sessions.
func (s *RedisSessionStore) Load(ctx context.Context, sessionID string) (*session.Result, error) {
	raw, err := s.client.Get(ctx, keyPrefix+sessionID).Bytes()
	if errors.Is(err, redis.Nil) {
		return session.New(), nil
	}
	if err != nil {
		return nil, err
	}
	var state session.Result
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &state, nil
}

// Save writes state and refreshes the expiry.
func (s *RedisSessionStore) Save(ctx context.Context, sessionID string, state *session.Result) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	return s.client.Set(ctx, keyPrefix+sessionID, raw, s.ttl).Err()
}

// Delete removes the session.
func (s *RedisSessionStore) Delete(ctx context.Context, sessionID string) error {
	return s.client.Del(ctx, keyPrefix+sessionID).Err()
}

// Ping checks connectivity.
func (s *RedisSessionStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
