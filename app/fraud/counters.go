package fraud

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// CounterStore is the atomic, TTL-bearing key-value surface the engine
// needs. Counters live in a shared store, not process memory, so velocity
// stays correct across replicas.
type CounterStore interface {
	IncrWithExpiry(ctx context.Context, key string, by int64, ttl time.Duration) (int64, error)
	GetInt(ctx context.Context, key string) (int64, error)
	SetFlag(ctx context.Context, key string, ttl time.Duration) error
	HasFlag(ctx context.Context, key string) (bool, error)
}

type RedisCounterStore struct {
	client  *redis.Client
	timeout time.Duration
}

func NewRedisCounterStore(client *redis.Client, timeout time.Duration) *RedisCounterStore {
	if timeout <= 0 {
		timeout = 500 * time.Millisecond
	}
	return &RedisCounterStore{client: client, timeout: timeout}
}

func (s *RedisCounterStore) IncrWithExpiry(ctx context.Context, key string, by int64, ttl time.Duration) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	pipe := s.client.TxPipeline()
	incr := pipe.IncrBy(ctx, key, by)
	pipe.Expire(ctx, key, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

func (s *RedisCounterStore) GetInt(ctx context.Context, key string) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	val, err := s.client.Get(ctx, key).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return val, nil
}

func (s *RedisCounterStore) SetFlag(ctx context.Context, key string, ttl time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	return s.client.Set(ctx, key, "1", ttl).Err()
}

func (s *RedisCounterStore) HasFlag(ctx context.Context, key string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	n, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

var _ CounterStore = (*RedisCounterStore)(nil)
