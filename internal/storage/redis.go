package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore handles interactions with Redis for per-job locks.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(addr string) *RedisStore {
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	return &RedisStore{client: rdb}
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// AcquireJobLock takes the single-flight lock for a job. It returns
// false when another execution of the same job already holds it. The
// TTL bounds how long a crashed execution can block the job.
func (s *RedisStore) AcquireJobLock(ctx context.Context, jobID string, ttl time.Duration) (bool, error) {
	key := fmt.Sprintf("joblock:%s", jobID)
	return s.client.SetNX(ctx, key, "1", ttl).Result()
}

// ReleaseJobLock frees the single-flight lock after an execution.
func (s *RedisStore) ReleaseJobLock(ctx context.Context, jobID string) error {
	key := fmt.Sprintf("joblock:%s", jobID)
	return s.client.Del(ctx, key).Err()
}
