package auth

import (
	"context"
	"time"

	"github.com/platinummonkey/helios/pkg/session"
)

// DefaultBlacklistTTL is used when a token's remaining validity is unknown
const DefaultBlacklistTTL = 900 * time.Second

// Service is the credential and token facade used by middleware, handlers and
// the realtime hub. Denylist and lockout operations are best-effort and never
// fail when the session store is absent.
type Service struct {
	tokens       *TokenService
	sessions     *session.Optional
	generator    *TokenGenerator
	policy       PasswordPolicy
	bcryptCost   int
	blacklistTTL time.Duration
}

// ServiceOption customizes a Service
type ServiceOption func(*Service)

// WithPasswordPolicy replaces the default length-only policy
func WithPasswordPolicy(policy PasswordPolicy) ServiceOption {
	return func(s *Service) {
		s.policy = policy
	}
}

// WithBcryptCost sets the password hashing work factor
func WithBcryptCost(cost int) ServiceOption {
	return func(s *Service) {
		if cost > 0 {
			s.bcryptCost = cost
		}
	}
}

// WithBlacklistTTL sets the denylist lifetime used when a token's remaining
// validity is unknown
func WithBlacklistTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) {
		if ttl > 0 {
			s.blacklistTTL = ttl
		}
	}
}

// NewService creates a credential service; sessions may wrap a nil store
func NewService(tokens *TokenService, sessions *session.Optional, opts ...ServiceOption) *Service {
	s := &Service{
		tokens:       tokens,
		sessions:     sessions,
		generator:    NewTokenGenerator(),
		policy:       DefaultPasswordPolicy(),
		bcryptCost:   DefaultBcryptCost,
		blacklistTTL: DefaultBlacklistTTL,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Tokens returns the underlying token service
func (s *Service) Tokens() *TokenService {
	return s.tokens
}

// Sessions returns the optional session store
func (s *Service) Sessions() *session.Optional {
	return s.sessions
}

// HashPassword hashes with the configured cost
func (s *Service) HashPassword(password string) (string, error) {
	return HashPassword(password, s.bcryptCost)
}

// VerifyPassword compares plaintext against hash
func (s *Service) VerifyPassword(password, hash string) bool {
	return VerifyPassword(password, hash)
}

// ValidatePasswordStrength checks password against the configured policy
func (s *Service) ValidatePasswordStrength(password string) PasswordValidation {
	return s.policy.Validate(password)
}

// GenerateSecureToken returns a random alphanumeric secret
func (s *Service) GenerateSecureToken(length int) (string, error) {
	return s.generator.GenerateSecureToken(length)
}

// HashToken hashes an opaque token for storage
func (s *Service) HashToken(token string) string {
	return s.generator.HashToken(token)
}

// IssueAccessToken signs an access token
func (s *Service) IssueAccessToken(identity Identity) (string, error) {
	return s.tokens.IssueAccessToken(identity)
}

// IssueRefreshToken signs a refresh token
func (s *Service) IssueRefreshToken(identity Identity, remember bool) (string, error) {
	return s.tokens.IssueRefreshToken(identity, remember)
}

// VerifyAccessToken validates an access token
func (s *Service) VerifyAccessToken(token string) (*Claims, error) {
	return s.tokens.VerifyAccessToken(token)
}

// VerifyRefreshToken validates a refresh token
func (s *Service) VerifyRefreshToken(token string) (*Claims, error) {
	return s.tokens.VerifyRefreshToken(token)
}

// BlacklistToken denylists token for ttl, or the configured default when ttl <= 0
func (s *Service) BlacklistToken(ctx context.Context, token string, ttl time.Duration) {
	if ttl <= 0 {
		ttl = s.blacklistTTL
	}
	s.sessions.Blacklist(ctx, token, ttl)
}

// IsTokenBlacklisted reports denylist membership, false when the store is absent
func (s *Service) IsTokenBlacklisted(ctx context.Context, token string) bool {
	return s.sessions.IsBlacklisted(ctx, token)
}

// IsAccountLocked reports whether email is locked out
func (s *Service) IsAccountLocked(ctx context.Context, email string) bool {
	return s.sessions.IsLocked(ctx, email)
}

// RecordFailedLogin counts a failed attempt and returns the attempts remaining
func (s *Service) RecordFailedLogin(ctx context.Context, email string) int {
	count := s.sessions.RecordFailedLogin(ctx, email)
	return s.sessions.Policy().Remaining(count)
}

// ClearFailedLogins resets the failed attempt counter
func (s *Service) ClearFailedLogins(ctx context.Context, email string) {
	s.sessions.ClearFailedLogins(ctx, email)
}
