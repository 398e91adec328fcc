package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimiter_Burst(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(&RateLimitConfig{RequestsPerWindow: 60, WindowDuration: time.Minute, BurstSize: 3})
	rl.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		allowed, err := rl.Allow(ctx, "ip:1.2.3.4")
		require.NoError(t, err)
		assert.True(t, allowed, "request %d", i)
	}

	allowed, _ := rl.Allow(ctx, "ip:1.2.3.4")
	assert.False(t, allowed)

	// other keys have their own bucket
	allowed, _ = rl.Allow(ctx, "ip:5.6.7.8")
	assert.True(t, allowed)

	// one token refills per second at 60/min
	now = now.Add(time.Second)
	allowed, _ = rl.Allow(ctx, "ip:1.2.3.4")
	assert.True(t, allowed)
}

func TestRateLimiter_Cleanup(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(&RateLimitConfig{RequestsPerWindow: 10, WindowDuration: time.Minute, BurstSize: 1})
	rl.now = func() time.Time { return now }

	rl.Allow(context.Background(), "a")
	now = now.Add(90 * time.Second)
	rl.Allow(context.Background(), "b")
	require.Equal(t, 2, rl.Len())

	now = now.Add(45 * time.Second)
	rl.Cleanup()

	assert.Equal(t, 1, rl.Len())
}

func TestNewRateLimiter_Defaults(t *testing.T) {
	rl := NewRateLimiter(nil)
	assert.Equal(t, 20, rl.config.RequestsPerWindow)
	assert.Equal(t, 15*time.Minute, rl.config.WindowDuration)

	rl = NewRateLimiter(&RateLimitConfig{RequestsPerWindow: 1, WindowDuration: time.Second})
	assert.Equal(t, 1, rl.config.BurstSize)
}

func TestDistributedRateLimiter(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	rl := NewDistributedRateLimiter(client, &RateLimitConfig{RequestsPerWindow: 2, WindowDuration: time.Minute}, "")
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		allowed, err := rl.Allow(ctx, "ip:1.2.3.4")
		require.NoError(t, err)
		assert.True(t, allowed)
	}
	allowed, err := rl.Allow(ctx, "ip:1.2.3.4")
	require.NoError(t, err)
	assert.False(t, allowed)

	remaining, err := rl.Remaining(ctx, "ip:1.2.3.4")
	require.NoError(t, err)
	assert.Zero(t, remaining)
	assert.True(t, mr.Exists("ratelimit:ip:1.2.3.4"))

	ttl, err := rl.TTL(ctx, "ip:1.2.3.4")
	require.NoError(t, err)
	assert.Equal(t, time.Minute, ttl)

	mr.FastForward(time.Minute + time.Second)
	allowed, err = rl.Allow(ctx, "ip:1.2.3.4")
	require.NoError(t, err)
	assert.True(t, allowed)

	require.NoError(t, rl.Reset(ctx, "ip:1.2.3.4"))
	remaining, err = rl.Remaining(ctx, "ip:1.2.3.4")
	require.NoError(t, err)
	assert.Equal(t, 2, remaining)
}

func TestDistributedRateLimiter_RedisDown(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer client.Close()
	mr.Close()

	rl := NewDistributedRateLimiter(client, nil, "auth")
	allowed, err := rl.Allow(context.Background(), "ip:1.2.3.4")

	assert.Error(t, err)
	assert.True(t, allowed)
}

type stubLimiter struct {
	allowed bool
	err     error
	keys    []string
}

func (s *stubLimiter) Allow(_ context.Context, key string) (bool, error) {
	s.keys = append(s.keys, key)
	return s.allowed, s.err
}

func TestRateLimit(t *testing.T) {
	t.Run("rejects with retry-after", func(t *testing.T) {
		limiter := &stubLimiter{}
		req := httptest.NewRequest("POST", "/api/auth/login", nil)
		req.RemoteAddr = "10.0.0.7:51234"

		w := httptest.NewRecorder()
		RateLimit(limiter, 15*time.Minute, testLogger())(okHandler()).ServeHTTP(w, req)

		assert.Equal(t, http.StatusTooManyRequests, w.Code)
		assert.Equal(t, "900", w.Header().Get("Retry-After"))
		assert.Equal(t, "RATE_LIMITED", decode(t, w)["code"])
		assert.Equal(t, []string{"ip:10.0.0.7"}, limiter.keys)
	})

	t.Run("allows", func(t *testing.T) {
		w := httptest.NewRecorder()
		RateLimit(&stubLimiter{allowed: true}, time.Minute, testLogger())(okHandler()).
			ServeHTTP(w, httptest.NewRequest("POST", "/api/auth/login", nil))

		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("limiter failure allows the request", func(t *testing.T) {
		w := httptest.NewRecorder()
		RateLimit(&stubLimiter{err: errors.New("redis down")}, time.Minute, testLogger())(okHandler()).
			ServeHTTP(w, httptest.NewRequest("POST", "/api/auth/login", nil))

		assert.Equal(t, http.StatusOK, w.Code)
	})
}
