package session

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/ashureev/flight-assistant/internal/domain"
	"github.com/ashureev/flight-assistant/internal/store"
	backend "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// slowStore simulates IO latency so unserialized read-modify-write would lose updates.
type slowStore struct {
	*store.MemoryStore
}

func (s slowStore) Load(ctx context.Context, threadID string) (*domain.ConversationState, error) {
	time.Sleep(2 * time.Millisecond)
	return s.MemoryStore.Load(ctx, threadID)
}

func (s slowStore) Save(ctx context.Context, state *domain.ConversationState) error {
	time.Sleep(2 * time.Millisecond)
	return s.MemoryStore.Save(ctx, state)
}

func appendTurn(t *testing.T, m *Manager, threadID, text string) {
	t.Helper()
	err := m.WithLock(context.Background(), threadID, func(ctx context.Context) error {
		state, err := LoadOrNew(ctx, m.Store(), threadID, time.Now())
		if err != nil {
			return err
		}
		state.BeginTurn(text, "")
		return m.Store().Save(ctx, state)
	})
	assert.NoError(t, err)
}

func TestManager_SerializesTurnsOnOneThread(t *testing.T) {
	m := NewManager(slowStore{store.NewMemory()})
	const writers = 10

	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			appendTurn(t, m, "race", "hello")
		}()
	}
	wg.Wait()

	state, err := m.Load(context.Background(), "race")
	require.NoError(t, err)
	assert.Len(t, state.Messages, writers)
	assert.Zero(t, m.activeLocks())
}

func TestManager_ThreadsAreIndependent(t *testing.T) {
	m := NewManager(store.NewMemory())
	ctx := context.Background()

	holding := make(chan struct{})
	releaseA := make(chan struct{})
	done := make(chan struct{})

	go func() {
		_ = m.WithLock(ctx, "a", func(context.Context) error {
			close(holding)
			<-releaseA
			return nil
		})
		close(done)
	}()
	<-holding

	var ran atomic.Bool
	err := m.WithLock(ctx, "b", func(context.Context) error {
		ran.Store(true)
		return nil
	})
	require.NoError(t, err)
	assert.True(t, ran.Load(), "thread b must not wait on thread a")

	close(releaseA)
	<-done
}

func TestManager_LoadOrStart(t *testing.T) {
	m := NewManager(store.NewMemory())
	ctx := context.Background()

	state, err := m.LoadOrStart(ctx, "new-thread")
	require.NoError(t, err)
	assert.Equal(t, "new-thread", state.ThreadID)
	assert.Empty(t, state.Messages)

	state.BeginTurn("hi", "")
	require.NoError(t, m.Save(ctx, state))

	again, err := m.LoadOrStart(ctx, "new-thread")
	require.NoError(t, err)
	assert.Len(t, again.Messages, 1)

	require.NoError(t, m.Delete(ctx, "new-thread"))
	_, err = m.Load(ctx, "new-thread")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestManager_DistributedLock(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	client := backend.NewClient(&backend.Options{Addr: mr.Addr()})
	locker := store.NewRedisLocker(client, "test:")
	m := NewManager(store.NewMemory(), WithLocker(locker), WithLockTTL(time.Minute))

	err = m.WithLock(context.Background(), "t1", func(context.Context) error {
		assert.True(t, mr.Exists("test:lock:t1"))
		return nil
	})
	require.NoError(t, err)
	assert.False(t, mr.Exists("test:lock:t1"))
}
