package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newRedisLimiter(t *testing.T) (*RedisLimiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = client.Close()
	})
	limiter, err := NewRedisLimiter(client, "")
	require.NoError(t, err)
	return limiter, mr
}

func TestRedisLimiter_FixedWindow(t *testing.T) {
	ctx := context.Background()
	limiter, mr := newRedisLimiter(t)
	key := "magic-link:alice@example.com"

	for i := 1; i <= 2; i++ {
		count, err := limiter.Hit(ctx, key, 10*time.Minute)
		require.NoError(t, err)
		require.Equal(t, i, count)
	}

	blocked, err := limiter.TooManyAttempts(ctx, key, 2)
	require.NoError(t, err)
	require.True(t, blocked)
	require.True(t, mr.Exists(defaultRedisPrefix+key))

	wait, err := limiter.AvailableIn(ctx, key)
	require.NoError(t, err)
	require.Equal(t, 10*time.Minute, wait)

	mr.FastForward(10 * time.Minute)

	blocked, err = limiter.TooManyAttempts(ctx, key, 2)
	require.NoError(t, err)
	require.False(t, blocked)

	remaining, err := limiter.Remaining(ctx, key, 2)
	require.NoError(t, err)
	require.Equal(t, 2, remaining)
}

func TestRedisLimiter_WindowAnchoredToFirstHit(t *testing.T) {
	ctx := context.Background()
	limiter, mr := newRedisLimiter(t)

	_, err := limiter.Hit(ctx, "k", time.Minute)
	require.NoError(t, err)
	mr.FastForward(40 * time.Second)
	_, err = limiter.Hit(ctx, "k", time.Minute)
	require.NoError(t, err)

	wait, err := limiter.AvailableIn(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, 20*time.Second, wait)
}

func TestRedisLimiter_ClearAndMissingKey(t *testing.T) {
	ctx := context.Background()
	limiter, _ := newRedisLimiter(t)

	wait, err := limiter.AvailableIn(ctx, "missing")
	require.NoError(t, err)
	require.Zero(t, wait)

	_, err = limiter.Hit(ctx, "k", time.Minute)
	require.NoError(t, err)
	require.NoError(t, limiter.Clear(ctx, "k"))

	remaining, err := limiter.Remaining(ctx, "k", 5)
	require.NoError(t, err)
	require.Equal(t, 5, remaining)
}

func TestRedisLimiter_ConcurrentHits(t *testing.T) {
	ctx := context.Background()
	limiter, _ := newRedisLimiter(t)

	const hits = 20
	var wg sync.WaitGroup
	for i := 0; i < hits; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = limiter.Hit(ctx, "shared", time.Minute)
		}()
	}
	wg.Wait()

	remaining, err := limiter.Remaining(ctx, "shared", hits)
	require.NoError(t, err)
	require.Equal(t, 0, remaining)
}

func TestNewRedisLimiterRequiresClient(t *testing.T) {
	_, err := NewRedisLimiter(nil, "")
	require.Error(t, err)
}
