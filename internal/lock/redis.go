// Package lock provides a cross-process lock for collection tasks.
package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// DefaultTTL bounds how long a crashed holder keeps the lock.
const DefaultTTL = 6 * time.Hour

// release deletes the key only while it still holds the caller's token.
var release = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// Redis is a lock held as a single key set with NX and a TTL.
type Redis struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

// NewClient parses redisURL and verifies connectivity.
func NewClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// NewRedis creates a lock stored under key. A non-positive ttl uses DefaultTTL.
func NewRedis(client *redis.Client, key string, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Redis{client: client, key: key, ttl: ttl}
}

// Acquire takes the lock. ok is false when another holder has it.
func (r *Redis) Acquire(ctx context.Context) (string, bool, error) {
	token := uuid.NewString()
	err := r.client.SetArgs(ctx, r.key, token, redis.SetArgs{Mode: "NX", TTL: r.ttl}).Err()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("set lock: %w", err)
	}
	return token, true, nil
}

// Release drops the lock if token still holds it.
func (r *Redis) Release(ctx context.Context, token string) error {
	if err := release.Run(ctx, r.client, []string{r.key}, token).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release lock: %w", err)
	}
	return nil
}

// holder returns the token currently holding the lock, or "" when free.
func (r *Redis) holder(ctx context.Context) (string, error) {
	token, err := r.client.Get(ctx, r.key).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get lock: %w", err)
	}
	return token, nil
}
