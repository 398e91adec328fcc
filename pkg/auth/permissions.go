package auth

import "sort"

// PermissionAll is the wildcard capability that implies every other permission
const PermissionAll = "*"

// Capability strings are resource:action pairs
const (
	PermUsersRead          = "users:read"
	PermUsersWrite         = "users:write"
	PermProjectsRead       = "projects:read"
	PermProjectsWrite      = "projects:write"
	PermOrganizationsRead  = "organizations:read"
	PermOrganizationsWrite = "organizations:write"
	PermTechnologiesRead   = "technologies:read"
	PermTechnologiesWrite  = "technologies:write"
	PermCalculationsRead   = "calculations:read"
	PermCalculationsWrite  = "calculations:write"
	PermMaintenanceRead    = "maintenance:read"
	PermMaintenanceWrite   = "maintenance:write"
	PermProfileRead        = "profile:read"
	PermProfileWrite       = "profile:write"

	PermOrgAdmin       = "organization:admin"
	PermOrgBilling     = "organization:billing"
	PermOrgMembers     = "organization:members"
	PermOrgManage      = "organization:manage"
	PermOrgProjects    = "organization:projects"
	PermOrgReports     = "organization:reports"
	PermOrgView        = "organization:view"
	PermOrgViewLimited = "organization:view-limited"
)

var rolePermissions = map[UserRole][]string{
	RoleSuperAdmin: {PermissionAll},
	RoleAdmin: {
		PermUsersRead, PermUsersWrite,
		PermProjectsRead, PermProjectsWrite,
		PermOrganizationsRead, PermOrganizationsWrite,
	},
	RoleProjectManager: {PermProjectsRead, PermProjectsWrite, PermUsersRead},
	RoleEngineer: {
		PermProjectsRead,
		PermTechnologiesRead, PermTechnologiesWrite,
		PermCalculationsRead, PermCalculationsWrite,
	},
	RoleTechnician: {PermProjectsRead, PermMaintenanceRead, PermMaintenanceWrite},
	RoleUser:       {PermProjectsRead, PermProfileRead, PermProfileWrite},
	RoleViewer:     {PermProjectsRead},
}

var orgRolePermissions = map[OrganizationRole][]string{
	OrgRoleOwner:   {PermOrgAdmin, PermOrgBilling, PermOrgMembers},
	OrgRoleAdmin:   {PermOrgManage, PermOrgMembers},
	OrgRoleManager: {PermOrgProjects, PermOrgReports},
	OrgRoleMember:  {PermOrgView},
	OrgRoleViewer:  {PermOrgViewLimited},
}

// PermissionSet is a derived set of capability strings
type PermissionSet map[string]struct{}

// NewPermissionSet builds a set from a list of permissions
func NewPermissionSet(perms ...string) PermissionSet {
	set := make(PermissionSet, len(perms))
	for _, p := range perms {
		set[p] = struct{}{}
	}
	return set
}

// Has reports whether the set contains perm, without wildcard expansion
func (s PermissionSet) Has(perm string) bool {
	_, ok := s[perm]
	return ok
}

// Slice returns the permissions in sorted order
func (s PermissionSet) Slice() []string {
	out := make([]string, 0, len(s))
	for p := range s {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// PermissionsFor derives the permission set from a global role and the
// organization roles of every active membership. Inactive memberships
// contribute nothing.
func PermissionsFor(role UserRole, memberships []Membership) PermissionSet {
	set := NewPermissionSet(rolePermissions[role]...)
	for _, m := range memberships {
		if !m.IsActive {
			continue
		}
		for _, p := range orgRolePermissions[m.Role] {
			set[p] = struct{}{}
		}
	}
	return set
}

// HasPermission is true if set holds the wildcard or any of required.
// An empty required list is never satisfied.
func HasPermission(set PermissionSet, required []string) bool {
	if len(required) == 0 {
		return false
	}
	if set.Has(PermissionAll) {
		return true
	}
	for _, p := range required {
		if set.Has(p) {
			return true
		}
	}
	return false
}

// HasRole is an exact membership test of role in allowed
func HasRole(role UserRole, allowed []UserRole) bool {
	for _, r := range allowed {
		if r == role {
			return true
		}
	}
	return false
}
