// Package store provides conversation checkpoint persistence.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/ashureev/flight-assistant/internal/domain"
)

// ErrNotFound is returned when no state exists for a thread.
var ErrNotFound = errors.New("conversation not found")

// Repository persists ConversationState keyed by thread ID.
type Repository interface {
	// Load retrieves the state for a thread. Returns ErrNotFound if absent.
	Load(ctx context.Context, threadID string) (*domain.ConversationState, error)

	// Save creates or replaces the state for a thread.
	Save(ctx context.Context, state *domain.ConversationState) error

	// Delete removes the state for a thread. Deleting a missing thread is not an error.
	Delete(ctx context.Context, threadID string) error

	// CleanupExpired removes threads not updated within ttl and returns how many were removed.
	CleanupExpired(ctx context.Context, ttl time.Duration) (int64, error)

	// Ping verifies backend connectivity.
	Ping(ctx context.Context) error

	// Close releases the backend connection.
	Close() error
}
