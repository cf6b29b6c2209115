package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisConversationLocks serializes event handling per conversation across
// engine instances using SET NX PX with a fencing token, released only by
// the holder.
type RedisConversationLocks struct {
	client   *redis.Client
	ttl      time.Duration
	pollWait time.Duration
}

// Compare-and-delete so a lock that expired mid-handle is never released
// out from under the next holder.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// Compare-and-extend: only the holder may push the expiry out.
var extendScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("pexpire", KEYS[1], ARGV[2])
end
return 0
`)

// NewRedisConversationLocks creates Redis-backed per-conversation locks.
func NewRedisConversationLocks(client *redis.Client, ttl time.Duration) *RedisConversationLocks {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &RedisConversationLocks{
		client:   client,
		ttl:      ttl,
		pollWait: 50 * time.Millisecond,
	}
}

func lockKey(conversationID string) string {
	return "chatflow:lock:" + conversationID
}

// Acquire blocks until the conversation lock is held or the context ends.
func (l *RedisConversationLocks) Acquire(ctx context.Context, conversationID string) (func(), error) {
	key := lockKey(conversationID)
	token := uuid.New().String()

	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("lock acquire: %w", err)
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(l.pollWait):
		}
	}

	// Event handling can legally outlive the TTL (an apiCall retry budget
	// alone may exceed it), so the holder keeps refreshing the key until
	// release. The TTL then only has to cover a crashed holder.
	stop := make(chan struct{})
	go l.keepAlive(key, token, stop)

	release := func() {
		close(stop)
		releaseScript.Run(context.Background(), l.client, []string{key}, token)
	}
	return release, nil
}

func (l *RedisConversationLocks) keepAlive(key, token string, stop <-chan struct{}) {
	ticker := time.NewTicker(l.ttl / 3)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			extendScript.Run(context.Background(), l.client, []string{key}, token, l.ttl.Milliseconds())
		}
	}
}

// MemoryConversationLocks is the single-process equivalent: one mutex per
// conversation id.
type MemoryConversationLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewMemoryConversationLocks creates in-process per-conversation locks.
func NewMemoryConversationLocks() *MemoryConversationLocks {
	return &MemoryConversationLocks{locks: make(map[string]*sync.Mutex)}
}

// Acquire blocks until the conversation lock is held.
func (l *MemoryConversationLocks) Acquire(ctx context.Context, conversationID string) (func(), error) {
	l.mu.Lock()
	m, ok := l.locks[conversationID]
	if !ok {
		m = &sync.Mutex{}
		l.locks[conversationID] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock, nil
}
