package users

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/platinummonkey/helios/pkg/auth"
	"github.com/platinummonkey/helios/pkg/orgs"
)

var (
	ErrNotFound      = errors.New("user not found")
	ErrInvalidToken  = errors.New("invalid or expired verification token")
	ErrTokenNotFound = errors.New("refresh token not found")
	ErrUserExists    = errors.New("user already exists")
)

// uniqueViolation is the PostgreSQL error code for a duplicate key
const uniqueViolation = "23505"

// VerificationTTL is how long an email verification token stays valid
const VerificationTTL = 24 * time.Hour

// DefaultPreferences returns the preferences assigned to new accounts
func DefaultPreferences() map[string]any {
	return map[string]any{
		"theme": "light",
		"notifications": map[string]any{
			"email":     true,
			"push":      true,
			"marketing": false,
		},
		"language": "en",
		"timezone": "UTC",
	}
}

// PostgresStore implements user persistence on PostgreSQL
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgresStore
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const userColumns = `id, email, username, password_hash, first_name, last_name, role,
		       email_verified, email_verification_token, email_verification_expires_at,
		       is_active, preferences, last_login_at, created_at, updated_at`

// GetByID retrieves a user by ID without memberships
func (s *PostgresStore) GetByID(ctx context.Context, id string) (*auth.User, error) {
	return s.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

// GetByEmail retrieves a user by email, case-insensitively
func (s *PostgresStore) GetByEmail(ctx context.Context, email string) (*auth.User, error) {
	return s.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, NormalizeEmail(email))
}

// LoadIdentity retrieves a user together with all organization memberships
func (s *PostgresStore) LoadIdentity(ctx context.Context, id string) (*auth.User, error) {
	user, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	memberships, err := s.ListMemberships(ctx, id)
	if err != nil {
		return nil, err
	}
	user.Memberships = memberships
	return user, nil
}

// ListMemberships returns the user's memberships, active or not, oldest first
func (s *PostgresStore) ListMemberships(ctx context.Context, userID string) ([]auth.Membership, error) {
	query := `
		SELECT om.organization_id, o.slug, om.role, om.is_active
		FROM organization_members om
		JOIN organizations o ON o.id = om.organization_id
		WHERE om.user_id = $1
		ORDER BY om.joined_at ASC
	`
	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list memberships: %w", err)
	}
	defer rows.Close()

	memberships := []auth.Membership{}
	for rows.Next() {
		var m auth.Membership
		if err := rows.Scan(&m.OrganizationID, &m.OrganizationSlug, &m.Role, &m.IsActive); err != nil {
			return nil, fmt.Errorf("failed to scan membership: %w", err)
		}
		memberships = append(memberships, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list memberships: %w", err)
	}
	return memberships, nil
}

// ExistsByEmailOrUsername reports which of email and username are already registered
func (s *PostgresStore) ExistsByEmailOrUsername(ctx context.Context, email, username string) (emailTaken, usernameTaken bool, err error) {
	query := `
		SELECT EXISTS(SELECT 1 FROM users WHERE email = $1),
		       EXISTS(SELECT 1 FROM users WHERE username = $2)
	`
	err = s.db.QueryRowContext(ctx, query, NormalizeEmail(email), username).Scan(&emailTaken, &usernameTaken)
	if err != nil {
		return false, false, fmt.Errorf("failed to check user existence: %w", err)
	}
	return emailTaken, usernameTaken, nil
}

// EmailAvailable reports whether no account uses email
func (s *PostgresStore) EmailAvailable(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE email = $1)`, NormalizeEmail(email)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check email: %w", err)
	}
	return !exists, nil
}

// UsernameAvailable reports whether no account uses username
func (s *PostgresStore) UsernameAvailable(ctx context.Context, username string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE username = $1)`, username).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check username: %w", err)
	}
	return !exists, nil
}

// Create inserts a new unverified user
func (s *PostgresStore) Create(ctx context.Context, user *auth.User) error {
	return insertUser(ctx, s.db, user)
}

// CreateWithOrganization inserts the user, the organization and the user's
// OWNER membership in one transaction
func (s *PostgresStore) CreateWithOrganization(ctx context.Context, user *auth.User, org *orgs.Organization) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := insertUser(ctx, tx, user); err != nil {
		return err
	}

	orgSvc := orgs.NewPostgresService(tx)
	if err := orgSvc.CreateOrganization(ctx, org); err != nil {
		return err
	}
	if err := orgSvc.AddMember(ctx, org.ID, user.ID, auth.OrgRoleOwner); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit registration: %w", err)
	}

	user.Memberships = []auth.Membership{{
		OrganizationID:   org.ID,
		OrganizationSlug: org.Slug,
		Role:             auth.OrgRoleOwner,
		IsActive:         true,
	}}
	return nil
}

// CreateWithMembership inserts the user and a MEMBER membership in the active
// organization with slug, in one transaction. Returns orgs.ErrNotFound when no
// active organization has the slug.
func (s *PostgresStore) CreateWithMembership(ctx context.Context, user *auth.User, orgSlug string) (*orgs.Organization, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	orgSvc := orgs.NewPostgresService(tx)
	org, err := orgSvc.GetOrganizationBySlug(ctx, orgSlug)
	if err != nil {
		return nil, err
	}
	if !org.IsActive {
		return nil, orgs.ErrNotFound
	}

	if err := insertUser(ctx, tx, user); err != nil {
		return nil, err
	}
	if err := orgSvc.AddMember(ctx, org.ID, user.ID, auth.OrgRoleMember); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit registration: %w", err)
	}

	user.Memberships = []auth.Membership{{
		OrganizationID:   org.ID,
		OrganizationSlug: org.Slug,
		Role:             auth.OrgRoleMember,
		IsActive:         true,
	}}
	return org, nil
}

// UpdateLastLogin stamps the user's last successful sign-in
func (s *PostgresStore) UpdateLastLogin(ctx context.Context, id string, at time.Time) error {
	result, err := s.db.ExecContext(ctx, `UPDATE users SET last_login_at = $1, updated_at = NOW() WHERE id = $2`, at, id)
	if err != nil {
		return fmt.Errorf("failed to update last login: %w", err)
	}
	return requireRow(result)
}

// VerifyEmail consumes a verification token and marks the owning user verified
func (s *PostgresStore) VerifyEmail(ctx context.Context, token string, now time.Time) (string, error) {
	query := `
		UPDATE users
		SET email_verified = true, email_verification_token = NULL,
		    email_verification_expires_at = NULL, updated_at = NOW()
		WHERE email_verification_token = $1 AND email_verification_expires_at > $2
		RETURNING id
	`
	var id string
	err := s.db.QueryRowContext(ctx, query, token, now).Scan(&id)
	if err == sql.ErrNoRows {
		return "", ErrInvalidToken
	}
	if err != nil {
		return "", fmt.Errorf("failed to verify email: %w", err)
	}
	return id, nil
}

// NormalizeEmail lowercases and trims an email address
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func insertUser(ctx context.Context, db orgs.DBTX, user *auth.User) error {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	user.Email = NormalizeEmail(user.Email)
	if user.Role == "" {
		user.Role = auth.RoleUser
	}
	if user.Preferences == nil {
		user.Preferences = DefaultPreferences()
	}
	user.IsActive = true

	prefs, err := json.Marshal(user.Preferences)
	if err != nil {
		return fmt.Errorf("failed to encode preferences: %w", err)
	}

	query := `
		INSERT INTO users (id, email, username, password_hash, first_name, last_name, role,
		                   email_verified, email_verification_token, email_verification_expires_at,
		                   is_active, preferences)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING created_at, updated_at
	`
	err = db.QueryRowContext(ctx, query,
		user.ID, user.Email, user.Username, user.PasswordHash, user.FirstName, user.LastName, string(user.Role),
		user.EmailVerified, nullString(user.EmailVerificationToken), user.EmailVerificationExpiresAt,
		user.IsActive, string(prefs),
	).Scan(&user.CreatedAt, &user.UpdatedAt)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return ErrUserExists
	}
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

func (s *PostgresStore) getOne(ctx context.Context, query string, arg string) (*auth.User, error) {
	var (
		user         auth.User
		verifyToken  sql.NullString
		verifyExpiry sql.NullTime
		lastLogin    sql.NullTime
		prefs        []byte
	)
	err := s.db.QueryRowContext(ctx, query, arg).Scan(
		&user.ID, &user.Email, &user.Username, &user.PasswordHash, &user.FirstName, &user.LastName, &user.Role,
		&user.EmailVerified, &verifyToken, &verifyExpiry,
		&user.IsActive, &prefs, &lastLogin, &user.CreatedAt, &user.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	user.EmailVerificationToken = verifyToken.String
	if verifyExpiry.Valid {
		user.EmailVerificationExpiresAt = &verifyExpiry.Time
	}
	if lastLogin.Valid {
		user.LastLoginAt = &lastLogin.Time
	}
	if len(prefs) > 0 {
		if err := json.Unmarshal(prefs, &user.Preferences); err != nil {
			return nil, fmt.Errorf("failed to decode preferences: %w", err)
		}
	}
	return &user, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func requireRow(result sql.Result) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
