package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/platinummonkey/helios/pkg/httputil"
	"github.com/platinummonkey/helios/pkg/observability"
	"github.com/platinummonkey/helios/pkg/session"
)

func newRedisService(t *testing.T) (*Service, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	logger := observability.NewLogger(observability.ErrorLevel, &bytes.Buffer{})
	sessions := session.NewOptional(session.NewRedisStore(client), session.DefaultLockoutPolicy(), logger)
	return NewService(newTestTokenService(t), sessions, WithBcryptCost(bcrypt.MinCost)), mr
}

func TestService_Passwords(t *testing.T) {
	svc, _ := newRedisService(t)

	hash, err := svc.HashPassword("hunter22")
	require.NoError(t, err)
	assert.True(t, svc.VerifyPassword("hunter22", hash))
	assert.False(t, svc.VerifyPassword("hunter23", hash))

	assert.True(t, svc.ValidatePasswordStrength("hunter22").Valid)

	strict := NewService(newTestTokenService(t), session.Disabled(nil), WithPasswordPolicy(StrictPasswordPolicy()))
	assert.False(t, strict.ValidatePasswordStrength("hunter22").Valid)
}

func TestService_Blacklist(t *testing.T) {
	svc, mr := newRedisService(t)
	ctx := context.Background()

	token, err := svc.IssueAccessToken(testIdentity())
	require.NoError(t, err)
	assert.False(t, svc.IsTokenBlacklisted(ctx, token))

	svc.BlacklistToken(ctx, token, time.Minute)
	assert.True(t, svc.IsTokenBlacklisted(ctx, token))
	assert.True(t, mr.Exists("blacklist:"+token))

	mr.FastForward(2 * time.Minute)
	assert.False(t, svc.IsTokenBlacklisted(ctx, token))
}

func TestService_BlacklistDefaultTTL(t *testing.T) {
	svc, mr := newRedisService(t)

	svc.BlacklistToken(context.Background(), "tok", 0)
	assert.Equal(t, DefaultBlacklistTTL, mr.TTL("blacklist:tok"))
}

func TestService_BlacklistConfiguredTTL(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	logger := observability.NewLogger(observability.ErrorLevel, &bytes.Buffer{})
	sessions := session.NewOptional(session.NewRedisStore(client), session.DefaultLockoutPolicy(), logger)
	svc := NewService(newTestTokenService(t), sessions, WithBlacklistTTL(time.Hour))

	svc.BlacklistToken(context.Background(), "tok", 0)
	assert.Equal(t, time.Hour, mr.TTL("blacklist:tok"))
}

func TestService_Lockout(t *testing.T) {
	svc, mr := newRedisService(t)
	ctx := context.Background()
	email := "alice@example.com"

	for i := 1; i <= session.DefaultMaxLoginAttempts; i++ {
		assert.False(t, svc.IsAccountLocked(ctx, email), "attempt %d", i)
		remaining := svc.RecordFailedLogin(ctx, email)
		assert.Equal(t, session.DefaultMaxLoginAttempts-i, remaining)
	}
	assert.True(t, svc.IsAccountLocked(ctx, email))

	mr.FastForward(session.DefaultLockoutDuration + time.Second)
	assert.False(t, svc.IsAccountLocked(ctx, email))

	svc.RecordFailedLogin(ctx, email)
	svc.ClearFailedLogins(ctx, email)
	assert.False(t, mr.Exists("failed_attempts:"+email))
}

func TestService_WithoutSessionStore(t *testing.T) {
	svc := NewService(newTestTokenService(t), session.Disabled(nil))
	ctx := context.Background()

	svc.BlacklistToken(ctx, "tok", time.Minute)
	assert.False(t, svc.IsTokenBlacklisted(ctx, "tok"))

	for i := 0; i < 10; i++ {
		assert.Equal(t, session.DefaultMaxLoginAttempts, svc.RecordFailedLogin(ctx, "a@b.c"))
	}
	assert.False(t, svc.IsAccountLocked(ctx, "a@b.c"))
}

func TestService_SecureTokens(t *testing.T) {
	svc := NewService(newTestTokenService(t), session.Disabled(nil))

	token, err := svc.GenerateSecureToken(0)
	require.NoError(t, err)
	assert.Len(t, token, SecureTokenLength)
	assert.Len(t, svc.HashToken(token), 64)
}

func TestAuditLogger(t *testing.T) {
	var buf bytes.Buffer
	al := NewAuditLogger(observability.NewLogger(observability.InfoLevel, &buf))

	trusted, err := httputil.ParseTrustedProxies([]string{"10.0.0.0/8"})
	require.NoError(t, err)

	req := httptest.NewRequest("POST", "/api/auth/login", nil)
	req.RemoteAddr = "10.0.0.2:40000"
	req.Header.Set("User-Agent", "test-agent")
	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")

	httputil.ClientIPMiddleware(trusted)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		al.LogFromRequest(r, AuditEvent{
			Action:  AuditActionLogin,
			Email:   "alice@example.com",
			Success: false,
			Reason:  "invalid credentials",
		})
	})).ServeHTTP(httptest.NewRecorder(), req)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "warning", entry["level"])
	assert.Equal(t, AuditActionLogin, entry["action"])
	assert.Equal(t, "203.0.113.7", entry["ip_address"])
	assert.Equal(t, "test-agent", entry["user_agent"])
	assert.Equal(t, "invalid credentials", entry["reason"])
	assert.Equal(t, "audit", entry["component"])
}
