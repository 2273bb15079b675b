package assignment

import (
	"context"
	"fmt"

	redis "github.com/redis/go-redis/v9"
)

const rotationKeyPrefix = "flowmill:rotation:"

// RedisRotationStore shares round-robin cursors across engine replicas via a
// Redis counter per pool.
type RedisRotationStore struct {
	client redis.UniversalClient
}

func NewRedisRotationStore(client redis.UniversalClient) *RedisRotationStore {
	return &RedisRotationStore{client: client}
}

func (s *RedisRotationStore) NextIndex(ctx context.Context, poolKey string, poolSize int) (int, error) {
	counter, err := s.client.Incr(ctx, rotationKeyPrefix+poolKey).Result()
	if err != nil {
		return 0, fmt.Errorf("redis rotation counter: %w", err)
	}

	// INCR returns the post-increment value, so the first caller gets index 0.
	return int((counter - 1) % int64(poolSize)), nil
}
