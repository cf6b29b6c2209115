package store

import (
	"context"
	"sync"
	"time"

	"github.com/civicdesk/chatflow/internal/engine"
	"github.com/civicdesk/chatflow/internal/model"
)

// MemorySessionStore keeps sessions in process memory with a TTL. Used in
// tests and single-node deployments; production uses RedisSessionStore.
type MemorySessionStore struct {
	ttl      time.Duration
	mu       sync.RWMutex
	sessions map[string]memorySession
}

type memorySession struct {
	session   model.Session
	expiresAt time.Time
}

// NewMemorySessionStore creates an in-memory session store.
func NewMemorySessionStore(ttl time.Duration) *MemorySessionStore {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &MemorySessionStore{
		ttl:      ttl,
		sessions: make(map[string]memorySession),
	}
}

// Get retrieves a session by conversation id.
func (s *MemorySessionStore) Get(ctx context.Context, conversationID string) (*model.Session, error) {
	s.mu.RLock()
	entry, ok := s.sessions[conversationID]
	s.mu.RUnlock()

	if !ok || time.Now().After(entry.expiresAt) {
		return nil, engine.ErrSessionNotFound
	}
	cp := entry.session
	return &cp, nil
}

// Save persists a session, refreshing its TTL.
func (s *MemorySessionStore) Save(ctx context.Context, session *model.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.ConversationID] = memorySession{
		session:   *session,
		expiresAt: time.Now().Add(s.ttl),
	}
	return nil
}

// Delete removes a session. Only external retention jobs call this.
func (s *MemorySessionStore) Delete(ctx context.Context, conversationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, conversationID)
	return nil
}
