package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	blacklistPrefix      = "blacklist"
	failedAttemptsPrefix = "failed_attempts"
)

// incrWithWindow counts an attempt and starts the window on the first one
var incrWithWindow = redis.NewScript(`
local count = redis.call('INCR', KEYS[1])
if count == 1 or redis.call('PTTL', KEYS[1]) < 0 then
	redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
return count
`)

// ErrUnavailable is returned by Optional when no store is configured
var ErrUnavailable = errors.New("session store unavailable")

// Store is the external key-value store backing the token denylist and
// failed-login counters. Every key is independent; no multi-key atomicity is assumed.
type Store interface {
	// Blacklist marks token invalid for ttl
	Blacklist(ctx context.Context, token string, ttl time.Duration) error
	// IsBlacklisted reports whether token is on the denylist
	IsBlacklisted(ctx context.Context, token string) (bool, error)
	// IncrementFailedAttempts atomically increments the counter for email,
	// starting the expiry window on the first attempt
	IncrementFailedAttempts(ctx context.Context, email string, window time.Duration) (int64, error)
	// FailedAttempts returns the current counter for email
	FailedAttempts(ctx context.Context, email string) (int64, error)
	// ClearFailedAttempts resets the counter for email
	ClearFailedAttempts(ctx context.Context, email string) error
	// Ping checks connectivity
	Ping(ctx context.Context) error
	// Close releases the connection
	Close() error
}

// RedisStore implements Store on Redis
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a session store on an existing Redis client
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func blacklistKey(token string) string {
	return fmt.Sprintf("%s:%s", blacklistPrefix, token)
}

func failedAttemptsKey(email string) string {
	return fmt.Sprintf("%s:%s", failedAttemptsPrefix, email)
}

// Blacklist stores the token with SETEX so the entry expires with the token
func (s *RedisStore) Blacklist(ctx context.Context, token string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	if err := s.client.SetEX(ctx, blacklistKey(token), "1", ttl).Err(); err != nil {
		return fmt.Errorf("failed to blacklist token: %w", err)
	}
	return nil
}

// IsBlacklisted checks for the denylist entry
func (s *RedisStore) IsBlacklisted(ctx context.Context, token string) (bool, error) {
	n, err := s.client.Exists(ctx, blacklistKey(token)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check blacklist: %w", err)
	}
	return n > 0, nil
}

// IncrementFailedAttempts increments the counter and sets the expiry in one
// script so a counter never outlives its window. A counter found without a
// TTL gets one on the next attempt.
func (s *RedisStore) IncrementFailedAttempts(ctx context.Context, email string, window time.Duration) (int64, error) {
	count, err := incrWithWindow.Run(ctx, s.client, []string{failedAttemptsKey(email)}, window.Milliseconds()).Int64()
	if err != nil {
		return 0, fmt.Errorf("failed to increment failed attempts: %w", err)
	}
	return count, nil
}

// FailedAttempts returns the counter, zero when absent
func (s *RedisStore) FailedAttempts(ctx context.Context, email string) (int64, error) {
	count, err := s.client.Get(ctx, failedAttemptsKey(email)).Int64()
	if err == redis.Nil {
		return 0, nil
	} else if err != nil {
		return 0, fmt.Errorf("failed to get failed attempts: %w", err)
	}
	return count, nil
}

// ClearFailedAttempts deletes the counter
func (s *RedisStore) ClearFailedAttempts(ctx context.Context, email string) error {
	if err := s.client.Del(ctx, failedAttemptsKey(email)).Err(); err != nil {
		return fmt.Errorf("failed to clear failed attempts: %w", err)
	}
	return nil
}

// Ping checks Redis connectivity
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the Redis client
func (s *RedisStore) Close() error {
	return s.client.Close()
}
