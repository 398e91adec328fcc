package auth

import "time"

// UserRole is the single platform-wide role carried by every user
type UserRole string

const (
	RoleSuperAdmin     UserRole = "SUPER_ADMIN"     // Unrestricted access
	RoleAdmin          UserRole = "ADMIN"           // Platform administration
	RoleProjectManager UserRole = "PROJECT_MANAGER" // Manages projects and staff
	RoleEngineer       UserRole = "ENGINEER"        // Technologies and calculations
	RoleTechnician     UserRole = "TECHNICIAN"      // Field maintenance
	RoleUser           UserRole = "USER"            // Default for new accounts
	RoleViewer         UserRole = "VIEWER"          // Read-only
)

// Valid reports whether r is a known global role
func (r UserRole) Valid() bool {
	_, ok := rolePermissions[r]
	return ok
}

// OrganizationRole is a role scoped to a single organization membership
type OrganizationRole string

const (
	OrgRoleOwner   OrganizationRole = "OWNER"
	OrgRoleAdmin   OrganizationRole = "ADMIN"
	OrgRoleManager OrganizationRole = "MANAGER"
	OrgRoleMember  OrganizationRole = "MEMBER"
	OrgRoleViewer  OrganizationRole = "VIEWER"
)

// Valid reports whether r is a known organization role
func (r OrganizationRole) Valid() bool {
	_, ok := orgRolePermissions[r]
	return ok
}

// TokenType distinguishes access tokens from refresh tokens
type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

// Membership links a user to an organization with an organization-scoped role
type Membership struct {
	OrganizationID   string           `json:"organizationId"`
	OrganizationSlug string           `json:"organizationSlug"`
	Role             OrganizationRole `json:"role"`
	IsActive         bool             `json:"isActive"`
}

// User represents a platform account
type User struct {
	ID                         string         `json:"id"`
	Email                      string         `json:"email"`
	Username                   string         `json:"username"`
	FirstName                  string         `json:"firstName"`
	LastName                   string         `json:"lastName"`
	PasswordHash               string         `json:"-"`
	Role                       UserRole       `json:"role"`
	EmailVerified              bool           `json:"emailVerified"`
	EmailVerificationToken     string         `json:"-"`
	EmailVerificationExpiresAt *time.Time     `json:"-"`
	IsActive                   bool           `json:"isActive"`
	Preferences                map[string]any `json:"preferences,omitempty"`
	LastLoginAt                *time.Time     `json:"lastLoginAt,omitempty"`
	CreatedAt                  time.Time      `json:"createdAt"`
	UpdatedAt                  time.Time      `json:"updatedAt"`
	Memberships                []Membership   `json:"organizationMemberships,omitempty"`
}

// Identity returns the denormalized snapshot embedded in signed tokens
func (u *User) Identity() Identity {
	memberships := make([]Membership, len(u.Memberships))
	copy(memberships, u.Memberships)
	return Identity{
		ID:          u.ID,
		Email:       u.Email,
		Username:    u.Username,
		Role:        u.Role,
		Memberships: memberships,
	}
}

// Identity is the user snapshot carried inside access and refresh tokens
type Identity struct {
	ID          string       `json:"id"`
	Email       string       `json:"email"`
	Username    string       `json:"username"`
	Role        UserRole     `json:"role"`
	Memberships []Membership `json:"organizationMemberships"`
}

// OrganizationContext is the organization resolved for an org-scoped request
type OrganizationContext struct {
	OrganizationID string           `json:"organizationId"`
	Slug           string           `json:"slug"`
	Role           OrganizationRole `json:"role"`
}

// RefreshToken is the server-side record of an issued refresh token
type RefreshToken struct {
	ID        string     `json:"id"`
	UserID    string     `json:"userId"`
	TokenHash string     `json:"-"` // Never expose hash
	UserAgent string     `json:"userAgent,omitempty"`
	IPAddress string     `json:"ipAddress,omitempty"`
	ExpiresAt time.Time  `json:"expiresAt"`
	CreatedAt time.Time  `json:"createdAt"`
	RevokedAt *time.Time `json:"revokedAt,omitempty"`
}

// Usable reports whether the refresh token is neither revoked nor expired at now
func (t *RefreshToken) Usable(now time.Time) bool {
	return t.RevokedAt == nil && now.Before(t.ExpiresAt)
}

// AuthContext holds the resolved identity of an authenticated request
type AuthContext struct {
	User         *User
	Token        string
	Claims       *Claims
	Permissions  PermissionSet
	Memberships  []Membership
	Organization *OrganizationContext
}

// HasPermission checks the context's permission set with OR semantics
func (ac *AuthContext) HasPermission(required ...string) bool {
	return HasPermission(ac.Permissions, required)
}

// HasRole checks if the user's global role is one of roles
func (ac *AuthContext) HasRole(roles ...UserRole) bool {
	if ac.User == nil {
		return false
	}
	return HasRole(ac.User.Role, roles)
}

// ActiveMembership returns the caller's active membership for an organization slug
func (ac *AuthContext) ActiveMembership(slug string) (Membership, bool) {
	for _, m := range ac.Memberships {
		if m.IsActive && m.OrganizationSlug == slug {
			return m, true
		}
	}
	return Membership{}, false
}

// ActiveMembershipByID returns the caller's active membership for an organization ID
func (ac *AuthContext) ActiveMembershipByID(orgID string) (Membership, bool) {
	for _, m := range ac.Memberships {
		if m.IsActive && m.OrganizationID == orgID {
			return m, true
		}
	}
	return Membership{}, false
}
