package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ashureev/flight-assistant/internal/domain"
	backend "github.com/redis/go-redis/v9"
)

const defaultRedisPrefix = "flightassistant:thread:"

// RedisStore implements Repository using Redis. Each thread is a JSON value
// plus a member of a sorted-set index scored by last update time.
type RedisStore struct {
	client *backend.Client
	prefix string
	ttl    time.Duration
}

// RedisOption configures a RedisStore.
type RedisOption func(*RedisStore)

// WithTTL sets the key expiration for threads. Zero means no expiration.
func WithTTL(ttl time.Duration) RedisOption {
	return func(s *RedisStore) {
		s.ttl = ttl
	}
}

// WithPrefix sets the key prefix.
func WithPrefix(prefix string) RedisOption {
	return func(s *RedisStore) {
		s.prefix = prefix
	}
}

// NewRedis connects a RedisStore to the given server.
func NewRedis(address, password string, db int, opts ...RedisOption) *RedisStore {
	rdb := backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	return NewRedisFromClient(rdb, opts...)
}

// NewRedisFromClient creates a RedisStore from an existing client.
func NewRedisFromClient(client *backend.Client, opts ...RedisOption) *RedisStore {
	s := &RedisStore{
		client: client,
		prefix: defaultRedisPrefix,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Client exposes the underlying client so a Locker can share the connection pool.
func (s *RedisStore) Client() *backend.Client {
	return s.client
}

func (s *RedisStore) key(threadID string) string {
	return s.prefix + threadID
}

func (s *RedisStore) indexKey() string {
	return s.prefix + "index"
}

// Save persists the state as JSON and records it in the index.
func (s *RedisStore) Save(ctx context.Context, state *domain.ConversationState) error {
	copied := state.Clone()
	now := time.Now()
	if copied.CreatedAt.IsZero() {
		copied.CreatedAt = now
	}
	copied.UpdatedAt = now

	data, err := json.Marshal(copied)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.key(state.ThreadID), data, s.ttl)
	pipe.ZAdd(ctx, s.indexKey(), backend.Z{
		Score:  float64(now.Unix()),
		Member: state.ThreadID,
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save to redis: %w", err)
	}
	return nil
}

// Load retrieves the state for a thread.
func (s *RedisStore) Load(ctx context.Context, threadID string) (*domain.ConversationState, error) {
	val, err := s.client.Get(ctx, s.key(threadID)).Result()
	if err != nil {
		if errors.Is(err, backend.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get from redis: %w", err)
	}

	var state domain.ConversationState
	if err := json.Unmarshal([]byte(val), &state); err != nil {
		return nil, fmt.Errorf("unmarshal state: %w", err)
	}
	return &state, nil
}

// Delete removes the thread and its index entry.
func (s *RedisStore) Delete(ctx context.Context, threadID string) error {
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, s.key(threadID))
	pipe.ZRem(ctx, s.indexKey(), threadID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("delete from redis: %w", err)
	}
	return nil
}

// CleanupExpired removes threads whose last update is older than ttl.
func (s *RedisStore) CleanupExpired(ctx context.Context, ttl time.Duration) (int64, error) {
	threshold := fmt.Sprintf("(%d", time.Now().Add(-ttl).Unix())

	expired, err := s.client.ZRangeByScore(ctx, s.indexKey(), &backend.ZRangeBy{
		Min: "-inf",
		Max: threshold,
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("list expired threads: %w", err)
	}
	if len(expired) == 0 {
		return 0, nil
	}

	keys := make([]string, len(expired))
	members := make([]interface{}, len(expired))
	for i, id := range expired {
		keys[i] = s.key(id)
		members[i] = id
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, keys...)
	pipe.ZRem(ctx, s.indexKey(), members...)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("remove expired threads: %w", err)
	}
	return int64(len(expired)), nil
}

// Ping verifies connectivity.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the redis client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
