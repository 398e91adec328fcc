// Package orgs manages organizations and their memberships.
//
// # Overview
//
// An organization is the tenant boundary of the platform. Users join
// organizations through memberships that carry an organization-scoped role
// (OWNER, ADMIN, MANAGER, MEMBER, VIEWER) independent of their global role.
// At most one membership exists per (organization, user) pair.
//
// # Usage
//
//	svc := orgs.NewPostgresService(db)
//	org := &orgs.Organization{Name: "Acme Solar", Slug: "acme-solar"}
//	if err := svc.CreateOrganization(ctx, org); errors.Is(err, orgs.ErrSlugTaken) {
//		// 409
//	}
//	err = svc.AddMember(ctx, org.ID, userID, auth.OrgRoleOwner)
//
// PostgresService accepts any DBTX, so the same code runs inside a
// transaction when an organization is created together with its owner.
//
// Slugs never change once created, which lets CachedService keep slug
// lookups in an expiring LRU.
package orgs
