package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	// DefaultIssuer is the fixed issuer claim of platform tokens
	DefaultIssuer = "helios-platform"
	// DefaultAudience is the fixed audience claim of platform tokens
	DefaultAudience = "helios-users"

	DefaultAccessTTL   = 15 * time.Minute
	DefaultRefreshTTL  = 7 * 24 * time.Hour
	DefaultRememberTTL = 30 * 24 * time.Hour
)

// ErrInvalidToken indicates a token failed signature, claim, or type validation
var ErrInvalidToken = errors.New("invalid token")

// Claims is the signed payload of access and refresh tokens
type Claims struct {
	Identity
	TokenType TokenType `json:"tokenType"`
	jwt.RegisteredClaims
}

// TokenPair is returned to clients after a successful login
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    int64  `json:"expiresIn"`
	RefreshTTL   int64  `json:"-"`
}

// TokenService issues and verifies signed access and refresh tokens.
// Access and refresh tokens are signed with distinct secrets.
type TokenService struct {
	accessSecret  []byte
	refreshSecret []byte
	issuer        string
	audience      string
	accessTTL     time.Duration
	refreshTTL    time.Duration
	rememberTTL   time.Duration
	now           func() time.Time
}

// TokenOption customizes a TokenService
type TokenOption func(*TokenService)

// WithAccessTTL overrides the access token lifetime
func WithAccessTTL(ttl time.Duration) TokenOption {
	return func(s *TokenService) {
		if ttl > 0 {
			s.accessTTL = ttl
		}
	}
}

// WithRefreshTTL overrides the default refresh token lifetime
func WithRefreshTTL(ttl time.Duration) TokenOption {
	return func(s *TokenService) {
		if ttl > 0 {
			s.refreshTTL = ttl
		}
	}
}

// WithRememberTTL overrides the refresh token lifetime used for "remember me" logins
func WithRememberTTL(ttl time.Duration) TokenOption {
	return func(s *TokenService) {
		if ttl > 0 {
			s.rememberTTL = ttl
		}
	}
}

// WithIssuer overrides the issuer claim
func WithIssuer(issuer string) TokenOption {
	return func(s *TokenService) {
		if issuer != "" {
			s.issuer = issuer
		}
	}
}

// WithAudience overrides the audience claim
func WithAudience(audience string) TokenOption {
	return func(s *TokenService) {
		if audience != "" {
			s.audience = audience
		}
	}
}

// WithClock replaces the time source, mainly for tests
func WithClock(now func() time.Time) TokenOption {
	return func(s *TokenService) {
		if now != nil {
			s.now = now
		}
	}
}

// NewTokenService creates a token service from the two signing secrets
func NewTokenService(accessSecret, refreshSecret string, opts ...TokenOption) (*TokenService, error) {
	if accessSecret == "" || refreshSecret == "" {
		return nil, fmt.Errorf("access and refresh secrets are required")
	}

	s := &TokenService{
		accessSecret:  []byte(accessSecret),
		refreshSecret: []byte(refreshSecret),
		issuer:        DefaultIssuer,
		audience:      DefaultAudience,
		accessTTL:     DefaultAccessTTL,
		refreshTTL:    DefaultRefreshTTL,
		rememberTTL:   DefaultRememberTTL,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// AccessTTL returns the configured access token lifetime
func (s *TokenService) AccessTTL() time.Duration {
	return s.accessTTL
}

// RefreshTTL returns the refresh token lifetime for the given remember flag
func (s *TokenService) RefreshTTL(remember bool) time.Duration {
	if remember {
		return s.rememberTTL
	}
	return s.refreshTTL
}

// IssueAccessToken signs a short-lived access token for identity
func (s *TokenService) IssueAccessToken(identity Identity) (string, error) {
	return s.sign(identity, TokenTypeAccess, s.accessSecret, s.accessTTL)
}

// IssueRefreshToken signs a long-lived refresh token for identity
func (s *TokenService) IssueRefreshToken(identity Identity, remember bool) (string, error) {
	return s.sign(identity, TokenTypeRefresh, s.refreshSecret, s.RefreshTTL(remember))
}

// IssueTokenPair signs both tokens for a login
func (s *TokenService) IssueTokenPair(identity Identity, remember bool) (*TokenPair, error) {
	access, err := s.IssueAccessToken(identity)
	if err != nil {
		return nil, err
	}
	refresh, err := s.IssueRefreshToken(identity, remember)
	if err != nil {
		return nil, err
	}
	return &TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int64(s.accessTTL / time.Second),
		RefreshTTL:   int64(s.RefreshTTL(remember) / time.Second),
	}, nil
}

// VerifyAccessToken validates an access token. Refresh tokens are rejected.
func (s *TokenService) VerifyAccessToken(token string) (*Claims, error) {
	return s.verify(token, TokenTypeAccess, s.accessSecret)
}

// VerifyRefreshToken validates a refresh token. Access tokens are rejected.
func (s *TokenService) VerifyRefreshToken(token string) (*Claims, error) {
	return s.verify(token, TokenTypeRefresh, s.refreshSecret)
}

// RemainingValidity returns how long claims stay valid, never negative
func (s *TokenService) RemainingValidity(claims *Claims) time.Duration {
	if claims == nil || claims.ExpiresAt == nil {
		return 0
	}
	remaining := claims.ExpiresAt.Time.Sub(s.now())
	if remaining < 0 {
		return 0
	}
	return remaining
}

func (s *TokenService) sign(identity Identity, tokenType TokenType, secret []byte, ttl time.Duration) (string, error) {
	if identity.ID == "" {
		return "", fmt.Errorf("identity id is required")
	}
	if identity.Memberships == nil {
		identity.Memberships = []Membership{}
	}

	now := s.now()
	claims := Claims{
		Identity:  identity,
		TokenType: tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   identity.ID,
			Audience:  jwt.ClaimStrings{s.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign %s token: %w", tokenType, err)
	}
	return signed, nil
}

func (s *TokenService) verify(token string, expected TokenType, secret []byte) (*Claims, error) {
	if token == "" {
		return nil, ErrInvalidToken
	}

	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		return secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithAudience(s.audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if claims.TokenType != expected {
		return nil, fmt.Errorf("%w: expected %s token, got %q", ErrInvalidToken, expected, claims.TokenType)
	}
	return claims, nil
}
