package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/goliatone/go-magiclink/pkg/types"
	"github.com/redis/go-redis/v9"
)

const defaultRedisPrefix = "magiclink:ratelimit:"

// hitScript increments the counter and arms the expiry only on the first hit
// so the window stays anchored to it.
var hitScript = redis.NewScript(`
	local count = redis.call('INCR', KEYS[1])
	if count == 1 then
		redis.call('PEXPIRE', KEYS[1], ARGV[1])
	end
	return count
`)

// RedisLimiter shares fixed windows across instances through Redis.
type RedisLimiter struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisLimiter creates a Redis limiter. An empty prefix uses
// "magiclink:ratelimit:".
func NewRedisLimiter(client redis.UniversalClient, prefix string) (*RedisLimiter, error) {
	if client == nil {
		return nil, errors.New("ratelimit: redis client required")
	}
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	return &RedisLimiter{client: client, prefix: prefix}, nil
}

var _ types.RateLimiter = (*RedisLimiter)(nil)

func (r *RedisLimiter) key(k string) string {
	return r.prefix + k
}

// TooManyAttempts reports whether key reached maxAttempts in its window.
func (r *RedisLimiter) TooManyAttempts(ctx context.Context, key string, maxAttempts int) (bool, error) {
	count, err := r.count(ctx, key)
	if err != nil {
		return false, err
	}
	return count >= maxAttempts, nil
}

// Hit records one attempt and returns the count in the current window.
func (r *RedisLimiter) Hit(ctx context.Context, key string, window time.Duration) (int, error) {
	result, err := hitScript.Run(ctx, r.client, []string{r.key(key)}, window.Milliseconds()).Result()
	if err != nil {
		return 0, fmt.Errorf("redis rate limit: hit failed: %w", err)
	}
	count, ok := result.(int64)
	if !ok {
		return 0, fmt.Errorf("redis rate limit: unexpected result type %T", result)
	}
	return int(count), nil
}

// Remaining returns the attempts left before key is throttled.
func (r *RedisLimiter) Remaining(ctx context.Context, key string, maxAttempts int) (int, error) {
	count, err := r.count(ctx, key)
	if err != nil {
		return 0, err
	}
	return clampRemaining(maxAttempts - count), nil
}

// AvailableIn returns the time until key's window resets.
func (r *RedisLimiter) AvailableIn(ctx context.Context, key string) (time.Duration, error) {
	ttl, err := r.client.PTTL(ctx, r.key(key)).Result()
	if err != nil {
		return 0, fmt.Errorf("redis rate limit: ttl failed: %w", err)
	}
	if ttl < 0 {
		return 0, nil
	}
	return ttl, nil
}

// Clear drops the window for key.
func (r *RedisLimiter) Clear(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.key(key)).Err(); err != nil {
		return fmt.Errorf("redis rate limit: clear failed: %w", err)
	}
	return nil
}

func (r *RedisLimiter) count(ctx context.Context, key string) (int, error) {
	raw, err := r.client.Get(ctx, r.key(key)).Result()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("redis rate limit: read failed: %w", err)
	}
	count, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("redis rate limit: parse count failed: %w", err)
	}
	return count, nil
}
