package session

import (
	"context"
	"time"

	"github.com/platinummonkey/helios/pkg/observability"
)

const (
	DefaultMaxLoginAttempts = 5
	DefaultLockoutDuration  = 30 * time.Minute
)

// LockoutPolicy decides when repeated failed logins lock an account
type LockoutPolicy struct {
	MaxAttempts int
	Window      time.Duration
}

// DefaultLockoutPolicy returns 5 attempts per 30 minute window
func DefaultLockoutPolicy() LockoutPolicy {
	return LockoutPolicy{
		MaxAttempts: DefaultMaxLoginAttempts,
		Window:      DefaultLockoutDuration,
	}
}

// Locked reports whether count has reached the threshold
func (p LockoutPolicy) Locked(count int64) bool {
	return count >= int64(p.MaxAttempts)
}

// Remaining returns the attempts left before lockout, never negative
func (p LockoutPolicy) Remaining(count int64) int {
	remaining := p.MaxAttempts - int(count)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Optional is the explicit "store may be absent" capability. With no store
// every query answers the permissive default: not blacklisted, no failed
// attempts, not locked. Store errors are logged and treated the same way,
// trading revocation and lockout for availability.
type Optional struct {
	store   Store
	policy  LockoutPolicy
	timeout time.Duration
	logger  *observability.Logger
}

// NewOptional wraps store, which may be nil
func NewOptional(store Store, policy LockoutPolicy, logger *observability.Logger) *Optional {
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = DefaultMaxLoginAttempts
	}
	if policy.Window <= 0 {
		policy.Window = DefaultLockoutDuration
	}
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, nil)
	}
	return &Optional{
		store:   store,
		policy:  policy,
		timeout: 2 * time.Second,
		logger:  logger.WithField("component", "session"),
	}
}

// Disabled returns an Optional with no backing store
func Disabled(logger *observability.Logger) *Optional {
	return NewOptional(nil, DefaultLockoutPolicy(), logger)
}

// Available reports whether a backing store is configured
func (o *Optional) Available() bool {
	return o.store != nil
}

// Policy returns the lockout policy
func (o *Optional) Policy() LockoutPolicy {
	return o.policy
}

// Store returns the backing store, or ErrUnavailable
func (o *Optional) Store() (Store, error) {
	if o.store == nil {
		return nil, ErrUnavailable
	}
	return o.store, nil
}

func (o *Optional) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, o.timeout)
}

// Blacklist denylists token for ttl; a no-op without a store
func (o *Optional) Blacklist(ctx context.Context, token string, ttl time.Duration) {
	if o.store == nil || token == "" {
		return
	}
	ctx, cancel := o.withTimeout(ctx)
	defer cancel()

	if err := o.store.Blacklist(ctx, token, ttl); err != nil {
		o.logger.WithError(err).Warn("token blacklist write failed")
	}
}

// IsBlacklisted reports denylist membership; false without a store or on error
func (o *Optional) IsBlacklisted(ctx context.Context, token string) bool {
	if o.store == nil || token == "" {
		return false
	}
	ctx, cancel := o.withTimeout(ctx)
	defer cancel()

	blacklisted, err := o.store.IsBlacklisted(ctx, token)
	if err != nil {
		o.logger.WithError(err).Warn("token blacklist check failed, allowing")
		return false
	}
	return blacklisted
}

// RecordFailedLogin increments the counter for email and returns the new count
func (o *Optional) RecordFailedLogin(ctx context.Context, email string) int64 {
	if o.store == nil {
		return 0
	}
	ctx, cancel := o.withTimeout(ctx)
	defer cancel()

	count, err := o.store.IncrementFailedAttempts(ctx, email, o.policy.Window)
	if err != nil {
		o.logger.WithError(err).WithField("email", email).Warn("failed login counter update failed")
	}
	return count
}

// FailedLogins returns the counter for email; zero without a store or on error
func (o *Optional) FailedLogins(ctx context.Context, email string) int64 {
	if o.store == nil {
		return 0
	}
	ctx, cancel := o.withTimeout(ctx)
	defer cancel()

	count, err := o.store.FailedAttempts(ctx, email)
	if err != nil {
		o.logger.WithError(err).WithField("email", email).Warn("failed login counter read failed")
		return 0
	}
	return count
}

// ClearFailedLogins resets the counter for email
func (o *Optional) ClearFailedLogins(ctx context.Context, email string) {
	if o.store == nil {
		return
	}
	ctx, cancel := o.withTimeout(ctx)
	defer cancel()

	if err := o.store.ClearFailedAttempts(ctx, email); err != nil {
		o.logger.WithError(err).WithField("email", email).Warn("failed login counter reset failed")
	}
}

// IsLocked reports whether email has reached the lockout threshold
func (o *Optional) IsLocked(ctx context.Context, email string) bool {
	if o.store == nil {
		return false
	}
	return o.policy.Locked(o.FailedLogins(ctx, email))
}

// Close closes the backing store if present
func (o *Optional) Close() error {
	if o.store == nil {
		return nil
	}
	return o.store.Close()
}
