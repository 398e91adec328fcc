package orgs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/platinummonkey/helios/pkg/auth"
)

var (
	ErrNotFound       = errors.New("organization not found")
	ErrSlugTaken      = errors.New("organization slug taken")
	ErrInvalidSlug    = errors.New("invalid organization slug")
	ErrMemberExists   = errors.New("member already exists")
	ErrMemberNotFound = errors.New("member not found")
)

const (
	MinSlugLength = 3
	MaxSlugLength = 50
)

var slugPattern = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

// Organization is a tenant
type Organization struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Slug        string    `json:"slug"`
	Description string    `json:"description,omitempty"`
	IsActive    bool      `json:"isActive"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Member is a membership row joined with the member's user profile
type Member struct {
	ID             string                `json:"id"`
	OrganizationID string                `json:"organizationId"`
	UserID         string                `json:"userId"`
	Role           auth.OrganizationRole `json:"role"`
	IsActive       bool                  `json:"isActive"`
	JoinedAt       time.Time             `json:"joinedAt"`
	Username       string                `json:"username"`
	Email          string                `json:"email"`
	FirstName      string                `json:"firstName"`
	LastName       string                `json:"lastName"`
}

// Service is the organization store used by handlers
type Service interface {
	CreateOrganization(ctx context.Context, org *Organization) error
	GetOrganization(ctx context.Context, id string) (*Organization, error)
	GetOrganizationBySlug(ctx context.Context, slug string) (*Organization, error)
	SlugAvailable(ctx context.Context, slug string) (bool, error)

	AddMember(ctx context.Context, orgID, userID string, role auth.OrganizationRole) error
	UpdateMemberRole(ctx context.Context, orgID, userID string, role auth.OrganizationRole) error
	RemoveMember(ctx context.Context, orgID, userID string) error
	ListMembers(ctx context.Context, orgID string) ([]*Member, error)
}

// DBTX is satisfied by both *sql.DB and *sql.Tx
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// ValidateSlug checks that slug is lowercase alphanumeric words joined by hyphens
func ValidateSlug(slug string) error {
	if len(slug) < MinSlugLength || len(slug) > MaxSlugLength {
		return fmt.Errorf("%w: must be %d-%d characters", ErrInvalidSlug, MinSlugLength, MaxSlugLength)
	}
	if !slugPattern.MatchString(slug) {
		return fmt.Errorf("%w: only lowercase letters, numbers and single hyphens are allowed", ErrInvalidSlug)
	}
	return nil
}

// GenerateSlug derives a slug candidate from a display name
func GenerateSlug(name string) string {
	var out []rune
	lastHyphen := true
	for _, r := range name {
		switch {
		case r >= 'A' && r <= 'Z':
			out = append(out, r+('a'-'A'))
			lastHyphen = false
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'):
			out = append(out, r)
			lastHyphen = false
		case r == ' ' || r == '-' || r == '_':
			if !lastHyphen {
				out = append(out, '-')
				lastHyphen = true
			}
		}
	}
	if n := len(out); n > 0 && out[n-1] == '-' {
		out = out[:n-1]
	}
	if len(out) > MaxSlugLength {
		out = out[:MaxSlugLength]
	}
	return string(out)
}
