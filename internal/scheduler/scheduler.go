// Package scheduler defers session resumptions for delay steps. One pending
// resumption exists per conversation at most; scheduling again replaces it.
package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	queueKey   = "chatflow:delay:due"
	payloadKey = "chatflow:delay:payload"
)

// Resumption is one deferred re-entry into a conversation.
type Resumption struct {
	ConversationID string    `json:"conversation_id"`
	TenantID       string    `json:"tenant_id"`
	ResumeStepID   string    `json:"resume_step_id"`
	DueAt          time.Time `json:"due_at"`
}

// RedisScheduler stores due times in a sorted set scored by unix millis,
// with payloads in a companion hash so a resumption can be cancelled by
// conversation id.
type RedisScheduler struct {
	client *redis.Client
}

// NewRedisScheduler creates a Redis-backed delay scheduler.
func NewRedisScheduler(client *redis.Client) *RedisScheduler {
	return &RedisScheduler{client: client}
}

// Schedule registers a resumption, replacing any pending one for the
// conversation.
func (s *RedisScheduler) Schedule(ctx context.Context, conversationID, tenantID, resumeStepID string, delay time.Duration) error {
	due := time.Now().Add(delay)
	payload, err := json.Marshal(Resumption{
		ConversationID: conversationID,
		TenantID:       tenantID,
		ResumeStepID:   resumeStepID,
		DueAt:          due,
	})
	if err != nil {
		return fmt.Errorf("encode resumption: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.ZAdd(ctx, queueKey, redis.Z{
		Score:  float64(due.UnixMilli()),
		Member: conversationID,
	})
	pipe.HSet(ctx, payloadKey, conversationID, payload)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("schedule resumption: %w", err)
	}
	return nil
}

// Cancel removes any pending resumption for the conversation.
func (s *RedisScheduler) Cancel(ctx context.Context, conversationID string) error {
	pipe := s.client.TxPipeline()
	pipe.ZRem(ctx, queueKey, conversationID)
	pipe.HDel(ctx, payloadKey, conversationID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("cancel resumption: %w", err)
	}
	return nil
}

// PopDue removes and returns every resumption due at or before now.
func (s *RedisScheduler) PopDue(ctx context.Context, now time.Time) ([]Resumption, error) {
	max := strconv.FormatInt(now.UnixMilli(), 10)

	ids, err := s.client.ZRangeByScore(ctx, queueKey, &redis.ZRangeBy{
		Min: "0",
		Max: max,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("pop due: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	pipe := s.client.TxPipeline()
	payloads := pipe.HMGet(ctx, payloadKey, ids...)
	pipe.ZRemRangeByScore(ctx, queueKey, "0", max)
	pipe.HDel(ctx, payloadKey, ids...)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("pop due: %w", err)
	}

	var out []Resumption
	for _, raw := range payloads.Val() {
		str, ok := raw.(string)
		if !ok {
			continue
		}
		var r Resumption
		if err := json.Unmarshal([]byte(str), &r); err != nil {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

// MemoryScheduler is the in-process equivalent, used in tests.
type MemoryScheduler struct {
	mu      sync.Mutex
	pending map[string]Resumption
}

// NewMemoryScheduler creates an in-memory delay scheduler.
func NewMemoryScheduler() *MemoryScheduler {
	return &MemoryScheduler{pending: make(map[string]Resumption)}
}

// Schedule registers a resumption, replacing any pending one.
func (s *MemoryScheduler) Schedule(ctx context.Context, conversationID, tenantID, resumeStepID string, delay time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending[conversationID] = Resumption{
		ConversationID: conversationID,
		TenantID:       tenantID,
		ResumeStepID:   resumeStepID,
		DueAt:          time.Now().Add(delay),
	}
	return nil
}

// Cancel removes any pending resumption for the conversation.
func (s *MemoryScheduler) Cancel(ctx context.Context, conversationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pending, conversationID)
	return nil
}

// PopDue removes and returns every resumption due at or before now.
func (s *MemoryScheduler) PopDue(ctx context.Context, now time.Time) ([]Resumption, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Resumption
	for id, r := range s.pending {
		if !r.DueAt.After(now) {
			out = append(out, r)
			delete(s.pending, id)
		}
	}
	return out, nil
}

// Pending reports whether a resumption is queued for the conversation.
func (s *MemoryScheduler) Pending(conversationID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.pending[conversationID]
	return ok
}
