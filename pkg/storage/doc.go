// Package storage holds connection settings for the Helios persistence backends.
//
// # Overview
//
// Helios keeps users, organizations, memberships, refresh tokens, and projects
// in PostgreSQL. Redis is optional and only backs the session store (token
// denylist and failed-login counters); when it is absent the platform keeps
// serving with revocation and lockout disabled.
//
// Connection code lives in the postgres subpackage:
//
//	cm, err := postgres.NewConnectionManager(postgres.ConnectionConfigFrom(cfg), logger)
//	if err != nil {
//		return err
//	}
//	defer cm.Close()
//
//	if err := postgres.EnsureSchema(ctx, cm.Primary()); err != nil {
//		return err
//	}
//
//	rdb, err := postgres.NewRedisClient(cfg)
//
// Read-mostly queries (analytics, operational project listings) may use
// cm.Replica(), which falls back to the primary when no replicas are healthy.
//
// # Related Packages
//
//   - pkg/session: Redis-backed session store
//   - pkg/users, pkg/orgs, pkg/projects: Table access
package storage
