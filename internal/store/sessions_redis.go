package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/civicdesk/chatflow/internal/engine"
	"github.com/civicdesk/chatflow/internal/model"
)

// RedisSessionStore persists sessions as TTL'd JSON values in Redis.
type RedisSessionStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisSessionStore creates a Redis-backed session store.
func NewRedisSessionStore(client *redis.Client, ttl time.Duration) *RedisSessionStore {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &RedisSessionStore{client: client, ttl: ttl}
}

func sessionKey(conversationID string) string {
	return "chatflow:session:" + conversationID
}

// Get retrieves a session by conversation id.
func (s *RedisSessionStore) Get(ctx context.Context, conversationID string) (*model.Session, error) {
	data, err := s.client.Get(ctx, sessionKey(conversationID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, engine.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("session get: %w", err)
	}

	var sess model.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("session decode: %w", err)
	}
	if sess.Variables == nil {
		sess.Variables = map[string]any{}
	}
	return &sess, nil
}

// Save persists a session, refreshing its TTL.
func (s *RedisSessionStore) Save(ctx context.Context, session *model.Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("session encode: %w", err)
	}
	if err := s.client.Set(ctx, sessionKey(session.ConversationID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("session save: %w", err)
	}
	return nil
}

// Delete removes a session. Only external retention jobs call this.
func (s *RedisSessionStore) Delete(ctx context.Context, conversationID string) error {
	if err := s.client.Del(ctx, sessionKey(conversationID)).Err(); err != nil {
		return fmt.Errorf("session delete: %w", err)
	}
	return nil
}
