package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/platinummonkey/helios/pkg/auth"
	"github.com/platinummonkey/helios/pkg/contextkeys"
	"github.com/platinummonkey/helios/pkg/httputil"
	"github.com/platinummonkey/helios/pkg/observability"
	"github.com/platinummonkey/helios/pkg/users"
)

// Authentication failure codes
const (
	CodeNoToken          = "NO_TOKEN"
	CodeTokenBlacklisted = "TOKEN_BLACKLISTED"
	CodeInvalidToken     = "INVALID_TOKEN"
	CodeUserNotFound     = "USER_NOT_FOUND"
	CodeEmailNotVerified = "EMAIL_NOT_VERIFIED"
	CodeAuthError        = "AUTH_ERROR"
)

// IdentityLoader loads a user together with organization memberships
type IdentityLoader interface {
	LoadIdentity(ctx context.Context, userID string) (*auth.User, error)
}

// Failure is a terminal authentication outcome
type Failure struct {
	Status int
	Body   httputil.APIError
}

func (f *Failure) Error() string {
	return f.Body.Code + ": " + f.Body.Message
}

var (
	failNoToken = &Failure{http.StatusUnauthorized, httputil.APIError{
		Error: "Authentication required", Message: "No authentication token provided", Code: CodeNoToken}}
	failBlacklisted = &Failure{http.StatusUnauthorized, httputil.APIError{
		Error: "Authentication failed", Message: "Token has been revoked", Code: CodeTokenBlacklisted}}
	failInvalidToken = &Failure{http.StatusUnauthorized, httputil.APIError{
		Error: "Authentication failed", Message: "Invalid or expired token", Code: CodeInvalidToken}}
	failUserNotFound = &Failure{http.StatusUnauthorized, httputil.APIError{
		Error: "Authentication failed", Message: "User not found", Code: CodeUserNotFound}}
	failEmailNotVerified = &Failure{http.StatusUnauthorized, httputil.APIError{
		Error: "Email verification required", Message: "Please verify your email address before accessing the platform", Code: CodeEmailNotVerified}}
	failAuthError = &Failure{http.StatusInternalServerError, httputil.APIError{
		Error: "Authentication error", Message: "Unable to resolve the authenticated user", Code: CodeAuthError}}
)

// Authenticator resolves bearer tokens into request identities
type Authenticator struct {
	auth    *auth.Service
	users   IdentityLoader
	metrics *observability.Metrics
	logger  *observability.Logger
}

// NewAuthenticator creates a new Authenticator; metrics may be nil
func NewAuthenticator(svc *auth.Service, loader IdentityLoader, metrics *observability.Metrics, logger *observability.Logger) *Authenticator {
	return &Authenticator{
		auth:    svc,
		users:   loader,
		metrics: metrics,
		logger:  logger.WithField("component", "authenticator"),
	}
}

// ExtractBearerToken returns the token of a "Bearer <token>" header, or ""
func ExtractBearerToken(header string) string {
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(header[len("Bearer "):])
}

// ResolveToken runs the authentication pipeline for a raw token. Known
// outcomes are returned as *Failure.
func (a *Authenticator) ResolveToken(ctx context.Context, token string) (*auth.AuthContext, error) {
	if token == "" {
		return nil, failNoToken
	}

	if a.auth.IsTokenBlacklisted(ctx, token) {
		return nil, failBlacklisted
	}

	claims, err := a.auth.VerifyAccessToken(token)
	if err != nil {
		return nil, failInvalidToken
	}

	user, err := a.users.LoadIdentity(ctx, claims.Identity.ID)
	if errors.Is(err, users.ErrNotFound) {
		return nil, failUserNotFound
	}
	if err != nil {
		a.logger.WithError(err).WithField("user_id", claims.Identity.ID).Error("failed to load identity")
		return nil, failAuthError
	}

	if !user.EmailVerified {
		return nil, failEmailNotVerified
	}

	return &auth.AuthContext{
		User:        user,
		Token:       token,
		Claims:      claims,
		Permissions: auth.PermissionsFor(user.Role, user.Memberships),
		Memberships: user.Memberships,
	}, nil
}

// Authenticate requires a valid identity
func (a *Authenticator) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := ExtractBearerToken(r.Header.Get("Authorization"))

		authCtx, err := a.ResolveToken(r.Context(), token)
		if err != nil {
			var failure *Failure
			if !errors.As(err, &failure) {
				failure = failAuthError
			}
			a.metrics.RecordAuthFailure(failure.Body.Code)
			httputil.WriteAPIError(w, failure.Status, failure.Body)
			return
		}

		next.ServeHTTP(w, r.WithContext(withIdentity(r.Context(), authCtx)))
	})
}

// Optional attaches an identity when the request carries a valid one and
// otherwise continues anonymously
func (a *Authenticator) Optional(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := ExtractBearerToken(r.Header.Get("Authorization"))
		if token == "" {
			next.ServeHTTP(w, r)
			return
		}

		authCtx, err := a.ResolveToken(r.Context(), token)
		if err != nil {
			next.ServeHTTP(w, r)
			return
		}

		next.ServeHTTP(w, r.WithContext(withIdentity(r.Context(), authCtx)))
	})
}

func withIdentity(ctx context.Context, authCtx *auth.AuthContext) context.Context {
	ctx = contextkeys.WithAuth(ctx, authCtx)
	return observability.WithUserID(ctx, authCtx.User.ID)
}

// GetAuthContext extracts auth context from request
func GetAuthContext(r *http.Request) *auth.AuthContext {
	authCtx, ok := r.Context().Value(contextkeys.AuthKey).(*auth.AuthContext)
	if !ok {
		return nil
	}
	return authCtx
}
