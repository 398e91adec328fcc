package orgs

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/platinummonkey/helios/pkg/auth"
)

// ListMembers retrieves all members of an organization
func (s *PostgresService) ListMembers(ctx context.Context, orgID string) ([]*Member, error) {
	query := `
		SELECT om.id, om.organization_id, om.user_id, om.role, om.is_active, om.joined_at,
		       u.username, u.email, u.first_name, u.last_name
		FROM organization_members om
		JOIN users u ON u.id = om.user_id
		WHERE om.organization_id = $1
		ORDER BY om.joined_at ASC
	`
	rows, err := s.db.QueryContext(ctx, query, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	defer rows.Close()

	members := []*Member{}
	for rows.Next() {
		member := &Member{}
		if err := rows.Scan(
			&member.ID, &member.OrganizationID, &member.UserID, &member.Role,
			&member.IsActive, &member.JoinedAt,
			&member.Username, &member.Email, &member.FirstName, &member.LastName,
		); err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		members = append(members, member)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}

	return members, nil
}

// AddMember adds an active membership; ErrMemberExists if the pair already exists
func (s *PostgresService) AddMember(ctx context.Context, orgID, userID string, role auth.OrganizationRole) error {
	if !role.Valid() {
		return fmt.Errorf("invalid organization role %q", role)
	}

	query := `
		INSERT INTO organization_members (id, organization_id, user_id, role, is_active)
		VALUES ($1, $2, $3, $4, true)
		ON CONFLICT (organization_id, user_id) DO NOTHING
	`
	result, err := s.db.ExecContext(ctx, query, uuid.NewString(), orgID, userID, role)
	if err != nil {
		return fmt.Errorf("failed to add member: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrMemberExists
	}

	return nil
}

// UpdateMemberRole changes a member's organization role
func (s *PostgresService) UpdateMemberRole(ctx context.Context, orgID, userID string, role auth.OrganizationRole) error {
	if !role.Valid() {
		return fmt.Errorf("invalid organization role %q", role)
	}

	query := `UPDATE organization_members SET role = $1 WHERE organization_id = $2 AND user_id = $3`
	result, err := s.db.ExecContext(ctx, query, role, orgID, userID)
	if err != nil {
		return fmt.Errorf("failed to update member role: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrMemberNotFound
	}

	return nil
}

// RemoveMember deactivates a membership; the row is kept
func (s *PostgresService) RemoveMember(ctx context.Context, orgID, userID string) error {
	query := `UPDATE organization_members SET is_active = false WHERE organization_id = $1 AND user_id = $2 AND is_active`
	result, err := s.db.ExecContext(ctx, query, orgID, userID)
	if err != nil {
		return fmt.Errorf("failed to remove member: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrMemberNotFound
	}

	return nil
}
