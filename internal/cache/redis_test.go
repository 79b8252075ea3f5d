package cache

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
)

func setupRedis(t *testing.T) *RedisCache {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()
	container, err := tcredis.Run(ctx, "redis:7-alpine")
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("Failed to terminate redis container: %v", err)
		}
	})

	uri, err := container.ConnectionString(ctx)
	require.NoError(t, err)
	opts, err := redis.ParseURL(uri)
	require.NoError(t, err)

	c := NewFromClient(redis.NewClient(opts))
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestAllowRequest(t *testing.T) {
	c := setupRedis(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		allowed, err := c.AllowRequest(ctx, "rate:limit:u1:vote", 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, allowed, "request %d", i+1)
	}

	allowed, err := c.AllowRequest(ctx, "rate:limit:u1:vote", 3, time.Minute)
	require.NoError(t, err)
	assert.False(t, allowed)

	allowed, err = c.AllowRequest(ctx, "rate:limit:u2:vote", 3, time.Minute)
	require.NoError(t, err)
	assert.True(t, allowed, "limits are per key")
}

func TestAllowRequest_WindowExpires(t *testing.T) {
	c := setupRedis(t)
	ctx := context.Background()

	allowed, err := c.AllowRequest(ctx, "rate:limit:u1:vote", 1, 200*time.Millisecond)
	require.NoError(t, err)
	assert.True(t, allowed)

	allowed, _ = c.AllowRequest(ctx, "rate:limit:u1:vote", 1, 200*time.Millisecond)
	assert.False(t, allowed)

	assert.Eventually(t, func() bool {
		allowed, err := c.AllowRequest(ctx, "rate:limit:u1:vote", 1, 200*time.Millisecond)
		return err == nil && allowed
	}, 3*time.Second, 100*time.Millisecond)
}

func TestHealth(t *testing.T) {
	c := setupRedis(t)
	assert.Equal(t, "up", c.Health(context.Background())["status"])
}
