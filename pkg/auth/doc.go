// Package auth provides credentials, signed tokens, and permission resolution
// for the Helios platform.
//
// # Overview
//
// Every user carries one global UserRole and any number of organization
// memberships, each with its own OrganizationRole. The effective permission
// set is the union of the global role's capabilities and those of every
// active membership:
//
//	perms := auth.PermissionsFor(user.Role, user.Memberships)
//	auth.HasPermission(perms, []string{auth.PermProjectsWrite})
//
// SUPER_ADMIN holds the wildcard "*", which satisfies any check.
//
// # Tokens
//
// Access and refresh tokens are HS256 JWTs signed with distinct secrets and
// carrying a tokenType claim, so one cannot be replayed as the other:
//
//	tokens, _ := auth.NewTokenService(accessSecret, refreshSecret)
//	pair, _ := tokens.IssueTokenPair(user.Identity(), rememberMe)
//	claims, err := tokens.VerifyAccessToken(pair.AccessToken)
//
// Opaque one-off secrets (email verification, stored refresh tokens) come from
// TokenGenerator and are persisted only as SHA-256 hashes.
//
// # Service
//
// Service combines password hashing, token issuance, and the optional session
// store. Denylist and lockout calls degrade to permissive answers when Redis
// is not configured:
//
//	svc := auth.NewService(tokens, session.Disabled(logger))
//	svc.IsTokenBlacklisted(ctx, token) // always false
//
// # Related Packages
//
//   - pkg/session: Token denylist and failed-login counters
//   - pkg/middleware: Request authentication and guards
//   - pkg/users: Account persistence
package auth
