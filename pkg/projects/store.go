package projects

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// Store is the project persistence used by the realtime service
type Store interface {
	Get(ctx context.Context, id string) (*Project, error)
	Update(ctx context.Context, id string, update ProjectUpdate) (*Project, error)
	ListOperational(ctx context.Context) ([]*Project, error)
	ListForAnalytics(ctx context.Context, filter AnalyticsFilter) ([]*Project, error)
}

// Connections supplies a writable primary and a read connection
type Connections interface {
	Primary() *sql.DB
	Replica() *sql.DB
}

// PostgresStore implements Store using PostgreSQL
type PostgresStore struct {
	conns Connections
}

// NewPostgresStore creates a new PostgresStore
func NewPostgresStore(conns Connections) *PostgresStore {
	return &PostgresStore{conns: conns}
}

const projectColumns = `id, organization_id, COALESCE(owner_id::text, ''), name, description, project_type,
		       energy_source, status, system_capacity, estimated_generation, estimated_cost,
		       currency, location, progress, is_active, created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanProject(row scanner) (*Project, error) {
	var (
		p          Project
		generation sql.NullFloat64
		cost       sql.NullFloat64
	)
	err := row.Scan(
		&p.ID, &p.OrganizationID, &p.OwnerID, &p.Name, &p.Description, &p.Type,
		&p.EnergySource, &p.Status, &p.SystemCapacity, &generation, &cost,
		&p.Currency, &p.Location, &p.Progress, &p.IsActive, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if generation.Valid {
		p.EstimatedGeneration = &generation.Float64
	}
	if cost.Valid {
		p.EstimatedCost = &cost.Float64
	}
	return &p, nil
}

// Get retrieves a project by ID
func (s *PostgresStore) Get(ctx context.Context, id string) (*Project, error) {
	row := s.conns.Replica().QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects WHERE id = $1`, id)
	p, err := scanProject(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get project: %w", err)
	}
	return p, nil
}

// Update applies a validated partial update and returns the updated project
func (s *PostgresStore) Update(ctx context.Context, id string, update ProjectUpdate) (*Project, error) {
	if err := update.Validate(); err != nil {
		return nil, err
	}

	var (
		sets []string
		args []any
	)
	set := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if update.Name != nil {
		set("name", *update.Name)
	}
	if update.Description != nil {
		set("description", *update.Description)
	}
	if update.Status != nil {
		set("status", string(*update.Status))
	}
	if update.SystemCapacity != nil {
		set("system_capacity", *update.SystemCapacity)
	}
	if update.EstimatedGeneration != nil {
		set("estimated_generation", *update.EstimatedGeneration)
	}
	if update.EstimatedCost != nil {
		set("estimated_cost", *update.EstimatedCost)
	}
	if update.Progress != nil {
		set("progress", *update.Progress)
	}
	if update.Location != nil {
		set("location", *update.Location)
	}
	if update.IsActive != nil {
		set("is_active", *update.IsActive)
	}

	args = append(args, id)
	query := fmt.Sprintf(`UPDATE projects SET %s, updated_at = NOW() WHERE id = $%d RETURNING %s`,
		strings.Join(sets, ", "), len(args), projectColumns)

	p, err := scanProject(s.conns.Primary().QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update project: %w", err)
	}
	return p, nil
}

// ListOperational returns every project in OPERATIONAL status
func (s *PostgresStore) ListOperational(ctx context.Context) ([]*Project, error) {
	query := `SELECT ` + projectColumns + ` FROM projects WHERE status = $1 ORDER BY created_at ASC`
	return s.list(ctx, query, string(StatusOperational))
}

// ListForAnalytics returns the projects matching filter
func (s *PostgresStore) ListForAnalytics(ctx context.Context, filter AnalyticsFilter) ([]*Project, error) {
	var (
		where []string
		args  []any
	)
	if filter.OrganizationID != "" {
		args = append(args, filter.OrganizationID)
		where = append(where, fmt.Sprintf("organization_id = $%d", len(args)))
	}
	if filter.ProjectID != "" {
		args = append(args, filter.ProjectID)
		where = append(where, fmt.Sprintf("id = $%d", len(args)))
	}

	query := `SELECT ` + projectColumns + ` FROM projects`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at ASC`
	return s.list(ctx, query, args...)
}

func (s *PostgresStore) list(ctx context.Context, query string, args ...any) ([]*Project, error) {
	rows, err := s.conns.Replica().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	defer rows.Close()

	projects := []*Project{}
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan project: %w", err)
		}
		projects = append(projects, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	return projects, nil
}
