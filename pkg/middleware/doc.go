// Package middleware provides HTTP middleware for authentication, authorization, and rate limiting.
//
// # Authentication
//
// Authenticator resolves a "Bearer <token>" header in a fixed order: token
// present, not denylisted, valid signature and claims, user exists, email
// verified. Each failure maps to a 401 with a stable code (NO_TOKEN,
// TOKEN_BLACKLISTED, INVALID_TOKEN, USER_NOT_FOUND, EMAIL_NOT_VERIFIED).
//
//	authn := middleware.NewAuthenticator(authService, userStore, metrics, logger)
//	router.Handle("/api/auth/me", authn.Authenticate(meHandler))
//	router.Handle("/api/feed", authn.Optional(feedHandler))
//
// # Authorization
//
//	orgRoutes.Use(authn.Authenticate, middleware.OrgContext)
//	orgRoutes.Handle("/members", middleware.RequirePermission("organization:members")(h))
//	admin.Use(middleware.RequireRole(auth.RoleAdmin, auth.RoleSuperAdmin))
//
// OrgContext reads the slug from the orgSlug route variable or the
// X-Organization-Slug header and requires an active membership.
//
// # Rate Limiting
//
// RateLimiter is an in-process token bucket (golang.org/x/time/rate);
// DistributedRateLimiter is a Redis fixed window shared across instances.
// Both satisfy Limiter and plug into RateLimit, which keys by client IP.
//
// # Related Packages
//
//   - pkg/auth: token verification and permission resolution
//   - pkg/users: identity loading
package middleware
