// Package users persists platform accounts and their refresh tokens.
//
// PostgresStore is the lookup used by authentication: LoadIdentity returns
// a user together with organization memberships (joined with the
// organization slug) so the authorization resolver can compute the
// effective permission set without further queries.
//
// Refresh tokens are stored only as SHA-256 hashes. A token is usable while
// it has not been revoked and has not expired.
package users
