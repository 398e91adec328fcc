package users

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/platinummonkey/helios/pkg/auth"
)

// SaveRefreshToken records an issued refresh token by its hash
func (s *PostgresStore) SaveRefreshToken(ctx context.Context, token *auth.RefreshToken) error {
	if token.ID == "" {
		token.ID = uuid.NewString()
	}
	if token.UserAgent == "" {
		token.UserAgent = "Unknown"
	}

	query := `
		INSERT INTO refresh_tokens (id, user_id, token_hash, user_agent, ip_address, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`
	err := s.db.QueryRowContext(ctx, query,
		token.ID, token.UserID, token.TokenHash, token.UserAgent, token.IPAddress, token.ExpiresAt,
	).Scan(&token.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save refresh token: %w", err)
	}
	return nil
}

// GetRefreshToken retrieves a refresh token record by hash
func (s *PostgresStore) GetRefreshToken(ctx context.Context, tokenHash string) (*auth.RefreshToken, error) {
	query := `
		SELECT id, user_id, token_hash, user_agent, ip_address, expires_at, created_at, revoked_at
		FROM refresh_tokens
		WHERE token_hash = $1
	`
	var (
		token   auth.RefreshToken
		revoked sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, query, tokenHash).Scan(
		&token.ID, &token.UserID, &token.TokenHash, &token.UserAgent, &token.IPAddress,
		&token.ExpiresAt, &token.CreatedAt, &revoked,
	)
	if err == sql.ErrNoRows {
		return nil, ErrTokenNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get refresh token: %w", err)
	}
	if revoked.Valid {
		token.RevokedAt = &revoked.Time
	}
	return &token, nil
}

// RevokeRefreshToken marks the user's refresh token revoked. Revoking an
// unknown or already revoked token returns ErrTokenNotFound.
func (s *PostgresStore) RevokeRefreshToken(ctx context.Context, userID, tokenHash string, at time.Time) error {
	query := `
		UPDATE refresh_tokens SET revoked_at = $1
		WHERE token_hash = $2 AND user_id = $3 AND revoked_at IS NULL
	`
	result, err := s.db.ExecContext(ctx, query, at, tokenHash, userID)
	if err != nil {
		return fmt.Errorf("failed to revoke refresh token: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrTokenNotFound
	}
	return nil
}

// RevokeAllRefreshTokens revokes every outstanding refresh token of a user
func (s *PostgresStore) RevokeAllRefreshTokens(ctx context.Context, userID string, at time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`UPDATE refresh_tokens SET revoked_at = $1 WHERE user_id = $2 AND revoked_at IS NULL`, at, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to revoke refresh tokens: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}
