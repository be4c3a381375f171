package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"fragment-loader/internal/models"
)

// RedisStatusStore stores load status in Redis.
type RedisStatusStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStatusStore initializes a Redis-backed StatusStore.
func NewRedisStatusStore(addr, prefix string, ttl time.Duration) *RedisStatusStore {
	return NewRedisStatusStoreWithClient(redis.NewClient(&redis.Options{Addr: addr}), prefix, ttl)
}

// NewRedisStatusStoreWithClient wraps an existing client.
func NewRedisStatusStoreWithClient(client *redis.Client, prefix string, ttl time.Duration) *RedisStatusStore {
	return &RedisStatusStore{client: client, prefix: prefix, ttl: ttl}
}

// Close closes the Redis client.
func (s *RedisStatusStore) Close() error {
	return s.client.Close()
}

// Ping checks that Redis is reachable.
func (s *RedisStatusStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// SetStatus writes the status record to Redis.
func (s *RedisStatusStore) SetStatus(ctx context.Context, status models.LoadStatus) error {
	payload, err := json.Marshal(status)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.key(status.LoadID), payload, s.ttl).Err()
}

// GetStatus reads the status record from Redis.
func (s *RedisStatusStore) GetStatus(ctx context.Context, loadID string) (models.LoadStatus, bool, error) {
	val, err := s.client.Get(ctx, s.key(loadID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return models.LoadStatus{}, false, nil
		}
		return models.LoadStatus{}, false, err
	}

	var status models.LoadStatus
	if err := json.Unmarshal([]byte(val), &status); err != nil {
		return models.LoadStatus{}, false, err
	}
	return status, true, nil
}

func (s *RedisStatusStore) key(loadID string) string {
	return s.prefix + loadID
}
