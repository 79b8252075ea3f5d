package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/emilythestrangee/devoverflow/backend/internal/config"
)

// allowScript counts a request and starts the window on the first hit.
var allowScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if tonumber(current) == 1 then
    redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return current
`)

type RedisCache struct {
	client *redis.Client
}

func New(ctx context.Context, cfg *config.Config) (*RedisCache, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	if _, err := rdb.Ping(ctx).Result(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisCache{client: rdb}, nil
}

func NewFromClient(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

// AllowRequest reports whether the request identified by key is within
// limit requests per window. On a Redis error it allows the request and
// returns the error so callers can log it.
func (c *RedisCache) AllowRequest(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	count, err := allowScript.Run(ctx, c.client, []string{key}, window.Milliseconds()).Int()
	if err != nil {
		return true, err
	}

	return count <= limit, nil
}

func (c *RedisCache) Health(ctx context.Context) map[string]string {
	stats := make(map[string]string)
	if err := c.client.Ping(ctx).Err(); err != nil {
		stats["status"] = "down"
		stats["error"] = fmt.Sprintf("redis down: %v", err)
		return stats
	}
	stats["status"] = "up"
	return stats
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}
