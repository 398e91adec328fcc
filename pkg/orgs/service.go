package orgs

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
)

// PostgresService implements Service using PostgreSQL
type PostgresService struct {
	db DBTX
}

// NewPostgresService creates a new PostgresService on a database or transaction
func NewPostgresService(db DBTX) *PostgresService {
	return &PostgresService{db: db}
}

// CreateOrganization inserts org, generating its ID and slug when empty.
// Returns ErrSlugTaken if the slug is already in use.
func (s *PostgresService) CreateOrganization(ctx context.Context, org *Organization) error {
	if org.Slug == "" {
		org.Slug = GenerateSlug(org.Name)
	}
	if err := ValidateSlug(org.Slug); err != nil {
		return err
	}

	available, err := s.SlugAvailable(ctx, org.Slug)
	if err != nil {
		return err
	}
	if !available {
		return ErrSlugTaken
	}

	if org.ID == "" {
		org.ID = uuid.NewString()
	}
	org.IsActive = true

	query := `
		INSERT INTO organizations (id, name, slug, description, is_active)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at
	`
	err = s.db.QueryRowContext(ctx, query, org.ID, org.Name, org.Slug, org.Description, org.IsActive).
		Scan(&org.CreatedAt, &org.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create organization: %w", err)
	}

	return nil
}

// GetOrganization retrieves an organization by ID
func (s *PostgresService) GetOrganization(ctx context.Context, id string) (*Organization, error) {
	query := `
		SELECT id, name, slug, description, is_active, created_at, updated_at
		FROM organizations
		WHERE id = $1
	`
	return s.getOne(ctx, query, id)
}

// GetOrganizationBySlug retrieves an organization by slug
func (s *PostgresService) GetOrganizationBySlug(ctx context.Context, slug string) (*Organization, error) {
	query := `
		SELECT id, name, slug, description, is_active, created_at, updated_at
		FROM organizations
		WHERE slug = $1
	`
	return s.getOne(ctx, query, slug)
}

func (s *PostgresService) getOne(ctx context.Context, query string, arg string) (*Organization, error) {
	org := &Organization{}
	err := s.db.QueryRowContext(ctx, query, arg).Scan(
		&org.ID, &org.Name, &org.Slug, &org.Description, &org.IsActive,
		&org.CreatedAt, &org.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get organization: %w", err)
	}
	return org, nil
}

// SlugAvailable reports whether no organization uses slug
func (s *PostgresService) SlugAvailable(ctx context.Context, slug string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM organizations WHERE slug = $1)`, slug).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check slug: %w", err)
	}
	return !exists, nil
}
