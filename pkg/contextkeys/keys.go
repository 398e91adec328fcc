// Package contextkeys provides centralized context key definitions
//
// IMPORTANT: All request-scoped identity values must be stored under the keys
// defined here. Logging keys (request and user IDs) live in pkg/observability.
//
// USAGE PATTERN:
//
//	ctx = contextkeys.WithAuth(ctx, authCtx)
//	authCtx, _ := ctx.Value(contextkeys.AuthKey).(*auth.AuthContext)
package contextkeys

import "context"

// Key is the type for context keys to prevent collisions
type Key string

const (
	// AuthKey contains *auth.AuthContext
	// Set by: middleware.Authenticator (pkg/middleware/auth.go)
	// Required by: protected API endpoints, permission and role guards
	AuthKey Key = "auth_context"

	// OrgKey contains *auth.OrganizationContext
	// Set by: middleware.OrgContext (pkg/middleware/org.go)
	// Required by: organization-scoped endpoints
	OrgKey Key = "organization"
)

// WithAuth adds authentication context to the context
func WithAuth(ctx context.Context, authCtx interface{}) context.Context {
	return context.WithValue(ctx, AuthKey, authCtx)
}

// WithOrg adds the resolved organization context to the context
func WithOrg(ctx context.Context, org interface{}) context.Context {
	return context.WithValue(ctx, OrgKey, org)
}

// ClientIPKey contains the caller address as a string
// Set by: httputil.ClientIPMiddleware (pkg/httputil/clientip.go)
// Required by: rate limiting, audit logging, refresh token records
const ClientIPKey Key = "client_ip"
