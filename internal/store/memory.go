package store

import (
	"context"
	"sync"
	"time"

	"github.com/ashureev/flight-assistant/internal/domain"
)

// MemoryStore implements Repository in process memory. Safe for concurrent use.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]*domain.ConversationState
}

// NewMemory creates an empty in-memory repository.
func NewMemory() *MemoryStore {
	return &MemoryStore{data: make(map[string]*domain.ConversationState)}
}

// Load returns a copy of the stored state so callers cannot mutate the store by pointer.
func (s *MemoryStore) Load(_ context.Context, threadID string) (*domain.ConversationState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state, ok := s.data[threadID]
	if !ok {
		return nil, ErrNotFound
	}
	return state.Clone(), nil
}

// Save stores a copy of the state.
func (s *MemoryStore) Save(_ context.Context, state *domain.ConversationState) error {
	copied := state.Clone()
	if copied.CreatedAt.IsZero() {
		copied.CreatedAt = time.Now()
	}
	copied.UpdatedAt = time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[state.ThreadID] = copied
	return nil
}

// Delete removes the state.
func (s *MemoryStore) Delete(_ context.Context, threadID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, threadID)
	return nil
}

// CleanupExpired drops threads not updated within ttl.
func (s *MemoryStore) CleanupExpired(_ context.Context, ttl time.Duration) (int64, error) {
	threshold := time.Now().Add(-ttl)

	s.mu.Lock()
	defer s.mu.Unlock()

	var removed int64
	for id, state := range s.data {
		if state.UpdatedAt.Before(threshold) {
			delete(s.data, id)
			removed++
		}
	}
	return removed, nil
}

// Ping always succeeds.
func (s *MemoryStore) Ping(context.Context) error { return nil }

// Close is a no-op.
func (s *MemoryStore) Close() error { return nil }
