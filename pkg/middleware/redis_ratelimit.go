package middleware

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// incrWindow counts one unit and gives any key without a TTL the window, so
// a counter can never outlive its window
var incrWindow = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if redis.call("PTTL", KEYS[1]) < 0 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return count
`)

// RedisRateLimiter keeps windows in Redis so limits are shared by all instances
type RedisRateLimiter struct {
	redis  *redis.Client
	config RateLimitConfig
	prefix string
}

// NewRedisRateLimiter creates a Redis-backed limiter
func NewRedisRateLimiter(client *redis.Client, config RateLimitConfig, prefix string) *RedisRateLimiter {
	if prefix == "" {
		prefix = "ratelimit"
	}
	return &RedisRateLimiter{
		redis:  client,
		config: config,
		prefix: prefix,
	}
}

func (rl *RedisRateLimiter) key(key string) string {
	return fmt.Sprintf("%s:%s", rl.prefix, key)
}

// Config returns the limit
func (rl *RedisRateLimiter) Config() RateLimitConfig {
	return rl.config
}

// Allow implements Limiter. The window starts with the first unit.
func (rl *RedisRateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	count, err := incrWindow.Run(ctx, rl.redis, []string{rl.key(key)}, rl.config.Window.Milliseconds()).Int64()
	if err != nil {
		return false, fmt.Errorf("failed to count %s: %w", key, err)
	}
	return count <= int64(rl.config.Limit), nil
}

// Remaining implements Limiter
func (rl *RedisRateLimiter) Remaining(ctx context.Context, key string) (int, error) {
	count, err := rl.redis.Get(ctx, rl.key(key)).Int()
	if errors.Is(err, redis.Nil) {
		return rl.config.Limit, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read %s: %w", key, err)
	}
	return max(rl.config.Limit-count, 0), nil
}

// TTL returns the time until the window of key resets
func (rl *RedisRateLimiter) TTL(ctx context.Context, key string) (time.Duration, error) {
	return rl.redis.TTL(ctx, rl.key(key)).Result()
}

// Reset implements Limiter
func (rl *RedisRateLimiter) Reset(ctx context.Context, key string) error {
	if err := rl.redis.Del(ctx, rl.key(key)).Err(); err != nil {
		return fmt.Errorf("failed to reset %s: %w", key, err)
	}
	return nil
}
