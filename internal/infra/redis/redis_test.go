//go:build integration

package redis_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/ObraztsovOleg/consultant-bot/internal/config"
	"github.com/ObraztsovOleg/consultant-bot/internal/infra/redis"
)

func startRedis(t *testing.T) *redis.Client {
	t.Helper()
	ctx := context.Background()
	ctr, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = ctr.Terminate(ctx) })

	host, err := ctr.Host(ctx)
	require.NoError(t, err)
	port, err := ctr.MappedPort(ctx, "6379")
	require.NoError(t, err)

	c, err := redis.NewClient(ctx, config.RedisConfig{URL: fmt.Sprintf("redis://%s:%s/0", host, port.Port())})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestRedis(t *testing.T) {
	c := startRedis(t)
	ctx := context.Background()

	t.Run("should allow up to the limit within a window", func(t *testing.T) {
		rl := redis.NewRateLimiter(c, 3, time.Minute)
		key := redis.UserUpdateKey(42)

		var allowed int
		for i := 0; i < 5; i++ {
			ok, err := rl.Allow(ctx, key)
			require.NoError(t, err)
			if ok {
				allowed++
			}
		}

		assert.Equal(t, 3, allowed)
	})

	t.Run("should reset after the window", func(t *testing.T) {
		rl := redis.NewRateLimiter(c, 1, time.Second)
		key := redis.UserUpdateKey(7)
		ok, _ := rl.Allow(ctx, key)
		require.True(t, ok)
		ok, _ = rl.Allow(ctx, key)
		require.False(t, ok)

		time.Sleep(1100 * time.Millisecond)
		ok, err := rl.Allow(ctx, key)

		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("should hand a lock to one holder at a time", func(t *testing.T) {
		l := redis.NewLocker(c)
		token, err := l.TryLock(ctx, "lock:sweep", time.Minute)
		require.NoError(t, err)

		_, err = l.TryLock(ctx, "lock:sweep", time.Minute)
		assert.ErrorIs(t, err, redis.ErrLockHeld)

		// a stale token must not release someone else's lock
		require.NoError(t, l.Unlock(ctx, "lock:sweep", "not-mine"))
		_, err = l.TryLock(ctx, "lock:sweep", time.Minute)
		assert.ErrorIs(t, err, redis.ErrLockHeld)

		require.NoError(t, l.Unlock(ctx, "lock:sweep", token))
		_, err = l.TryLock(ctx, "lock:sweep", time.Minute)
		assert.NoError(t, err)
	})

	t.Run("should report how long a limited key must wait", func(t *testing.T) {
		rl := redis.NewRateLimiter(c, 1, time.Minute)
		key := redis.UserUpdateKey(99)

		wait, err := rl.RetryAfter(ctx, key)
		require.NoError(t, err)
		assert.Zero(t, wait)

		_, _ = rl.Allow(ctx, key)
		_, _ = rl.Allow(ctx, key)
		wait, err = rl.RetryAfter(ctx, key)

		require.NoError(t, err)
		assert.Greater(t, wait, 50*time.Second)
	})
}
