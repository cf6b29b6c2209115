package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisDeduper drops redelivered events using SET NX with a TTL window.
// Transport retries arrive within seconds; the window just needs to outlive
// them.
type RedisDeduper struct {
	client *redis.Client
	window time.Duration
}

// NewRedisDeduper creates a Redis-backed event deduper.
func NewRedisDeduper(client *redis.Client, window time.Duration) *RedisDeduper {
	if window <= 0 {
		window = 10 * time.Minute
	}
	return &RedisDeduper{client: client, window: window}
}

// Seen marks the event id and reports whether it was already marked.
func (d *RedisDeduper) Seen(ctx context.Context, eventID string) (bool, error) {
	set, err := d.client.SetNX(ctx, "chatflow:event:"+eventID, 1, d.window).Result()
	if err != nil {
		return false, fmt.Errorf("dedup setnx: %w", err)
	}
	return !set, nil
}

// Forget unmarks an event id so a redelivery is processed again. The runner
// calls it when handling failed after the mark.
func (d *RedisDeduper) Forget(ctx context.Context, eventID string) error {
	if err := d.client.Del(ctx, "chatflow:event:"+eventID).Err(); err != nil {
		return fmt.Errorf("dedup del: %w", err)
	}
	return nil
}

// MemoryDeduper is the in-process equivalent of RedisDeduper.
type MemoryDeduper struct {
	window time.Duration
	mu     sync.Mutex
	seen   map[string]time.Time
}

// NewMemoryDeduper creates an in-memory event deduper.
func NewMemoryDeduper(window time.Duration) *MemoryDeduper {
	if window <= 0 {
		window = 10 * time.Minute
	}
	return &MemoryDeduper{
		window: window,
		seen:   make(map[string]time.Time),
	}
}

// Seen marks the event id and reports whether it was already marked.
func (d *MemoryDeduper) Seen(ctx context.Context, eventID string) (bool, error) {
	now := time.Now()

	d.mu.Lock()
	defer d.mu.Unlock()

	for id, at := range d.seen {
		if now.Sub(at) > d.window {
			delete(d.seen, id)
		}
	}
	if _, ok := d.seen[eventID]; ok {
		return true, nil
	}
	d.seen[eventID] = now
	return false, nil
}

// Forget unmarks an event id so a redelivery is processed again.
func (d *MemoryDeduper) Forget(ctx context.Context, eventID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.seen, eventID)
	return nil
}
