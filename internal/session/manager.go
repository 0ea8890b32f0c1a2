package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ashureev/flight-assistant/internal/domain"
	"github.com/ashureev/flight-assistant/internal/logging"
	"github.com/ashureev/flight-assistant/internal/store"
)

const defaultLockTTL = 5 * time.Minute

// Locker acquires cross-process locks. store.RedisLocker satisfies it.
type Locker interface {
	Lock(ctx context.Context, key string, ttl time.Duration) (store.UnlockFunc, error)
}

// lockEntry holds the mutex and the reference count.
type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// Manager orchestrates thread access. Lock entries are reference counted
// and dropped once no caller holds or waits on them.
type Manager struct {
	repo store.Repository

	mu    sync.Mutex
	locks map[string]*lockEntry

	locker  Locker
	lockTTL time.Duration
	logger  *slog.Logger
	now     func() time.Time
}

// Option configures the Manager.
type Option func(*Manager)

// WithLocker enables distributed locking.
func WithLocker(locker Locker) Option {
	return func(m *Manager) {
		m.locker = locker
	}
}

// WithLockTTL bounds how long a distributed lock survives a crashed holder.
func WithLockTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		if ttl > 0 {
			m.lockTTL = ttl
		}
	}
}

// WithLogger configures a logger for the Manager.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// NewManager creates a Manager over the given repository.
func NewManager(repo store.Repository, opts ...Option) *Manager {
	m := &Manager{
		repo:    repo,
		locks:   make(map[string]*lockEntry),
		lockTTL: defaultLockTTL,
		logger:  logging.NewNop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) acquire(threadID string) *lockEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.locks[threadID]
	if !ok {
		entry = &lockEntry{}
		m.locks[threadID] = entry
	}
	entry.refs++
	return entry
}

func (m *Manager) release(threadID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.locks[threadID]
	if !ok {
		return
	}
	entry.refs--
	if entry.refs <= 0 {
		delete(m.locks, threadID)
	}
}

// activeLocks reports how many lock entries are currently tracked.
func (m *Manager) activeLocks() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.locks)
}

// WithLock runs fn while holding the lock for threadID.
// fn must use Store() directly; calling other Manager methods for the
// same thread from inside fn deadlocks.
func (m *Manager) WithLock(ctx context.Context, threadID string, fn func(context.Context) error) error {
	entry := m.acquire(threadID)
	entry.mu.Lock()
	defer func() {
		entry.mu.Unlock()
		m.release(threadID)
	}()

	if m.locker != nil {
		unlock, err := m.locker.Lock(ctx, threadID, m.lockTTL)
		if err != nil {
			return fmt.Errorf("acquire distributed lock: %w", err)
		}
		defer func() {
			// The turn context may already be canceled; release on a fresh one.
			releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := unlock(releaseCtx); err != nil {
				m.logger.Warn("Failed to release distributed lock (will expire via TTL)",
					"thread_id", threadID,
					"err", err,
				)
			}
		}()
	}

	return fn(ctx)
}

// Load retrieves a thread's state. Returns store.ErrNotFound if absent.
func (m *Manager) Load(ctx context.Context, threadID string) (*domain.ConversationState, error) {
	var state *domain.ConversationState
	err := m.WithLock(ctx, threadID, func(ctx context.Context) error {
		var err error
		state, err = m.repo.Load(ctx, threadID)
		return err
	})
	return state, err
}

// LoadOrStart loads a thread or returns a fresh, unsaved state when none exists.
func (m *Manager) LoadOrStart(ctx context.Context, threadID string) (*domain.ConversationState, error) {
	var state *domain.ConversationState
	err := m.WithLock(ctx, threadID, func(ctx context.Context) error {
		var err error
		state, err = LoadOrNew(ctx, m.repo, threadID, m.now())
		return err
	})
	return state, err
}

// Save persists a thread's state.
func (m *Manager) Save(ctx context.Context, state *domain.ConversationState) error {
	return m.WithLock(ctx, state.ThreadID, func(ctx context.Context) error {
		return m.repo.Save(ctx, state)
	})
}

// Delete removes a thread.
func (m *Manager) Delete(ctx context.Context, threadID string) error {
	return m.WithLock(ctx, threadID, func(ctx context.Context) error {
		return m.repo.Delete(ctx, threadID)
	})
}

// Store returns the underlying repository.
func (m *Manager) Store() store.Repository {
	return m.repo
}

// LoadOrNew loads a thread from repo, falling back to an empty state.
func LoadOrNew(ctx context.Context, repo store.Repository, threadID string, now time.Time) (*domain.ConversationState, error) {
	state, err := repo.Load(ctx, threadID)
	if err == nil {
		return state, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("load thread %s: %w", threadID, err)
	}
	return domain.NewConversationState(threadID, now), nil
}
