package middleware

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// fixedWindow counts a hit and starts the window on the first one, atomically
var fixedWindow = redis.NewScript(`
local count = redis.call('INCR', KEYS[1])
if count == 1 then
	redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
return count
`)

// DistributedRateLimiter is a fixed-window limiter kept in Redis so every
// API instance shares the same per-client budget
type DistributedRateLimiter struct {
	redis  *redis.Client
	limit  int64
	window time.Duration
	prefix string
}

// NewDistributedRateLimiter creates a new Redis-backed rate limiter. Keys are
// stored as <prefix>:<key>.
func NewDistributedRateLimiter(redisClient *redis.Client, config *RateLimitConfig, prefix string) *DistributedRateLimiter {
	if config == nil {
		config = DefaultAuthRateLimitConfig()
	}
	if prefix == "" {
		prefix = "ratelimit"
	}
	return &DistributedRateLimiter{
		redis:  redisClient,
		limit:  int64(max(config.RequestsPerWindow, 1)),
		window: config.WindowDuration,
		prefix: prefix,
	}
}

func (rl *DistributedRateLimiter) key(key string) string {
	return rl.prefix + ":" + key
}

// Allow counts the request in the current window. On Redis errors the
// request is allowed and the error returned so the caller can log it.
func (rl *DistributedRateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	count, err := fixedWindow.Run(ctx, rl.redis, []string{rl.key(key)}, rl.window.Milliseconds()).Int64()
	if err != nil {
		return true, fmt.Errorf("rate limit counter unavailable: %w", err)
	}
	return count <= rl.limit, nil
}

// Remaining returns the requests left in the current window
func (rl *DistributedRateLimiter) Remaining(ctx context.Context, key string) (int, error) {
	count, err := rl.redis.Get(ctx, rl.key(key)).Int64()
	if errors.Is(err, redis.Nil) {
		return int(rl.limit), nil
	}
	if err != nil {
		return 0, err
	}
	return int(max(rl.limit-count, 0)), nil
}

// TTL returns the time until the window resets
func (rl *DistributedRateLimiter) TTL(ctx context.Context, key string) (time.Duration, error) {
	return rl.redis.PTTL(ctx, rl.key(key)).Result()
}

// Reset clears the window for a key
func (rl *DistributedRateLimiter) Reset(ctx context.Context, key string) error {
	return rl.redis.Del(ctx, rl.key(key)).Err()
}
