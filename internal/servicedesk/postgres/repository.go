// Package postgres provides PostgreSQL implementation of the service desk repository.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/bissquit/itsm-garden/internal/domain"
	"github.com/bissquit/itsm-garden/internal/servicedesk"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	uniqueViolation = "23505"

	openProvenanceIndex = "idx_incidents_open_provenance"
)

// querier is an interface for database operations that both *pgxpool.Pool and pgx.Tx implement.
type querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// rowScanner is satisfied by pgx.Row and pgx.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// Repository implements servicedesk.Repository using PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new PostgreSQL repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

const ciColumns = `id, name, type, status, location, environment, owner, dependencies, created_at, updated_at`

func scanCI(row rowScanner) (domain.ConfigurationItem, error) {
	var ci domain.ConfigurationItem
	err := row.Scan(
		&ci.ID,
		&ci.Name,
		&ci.Type,
		&ci.Status,
		&ci.Location,
		&ci.Environment,
		&ci.Owner,
		&ci.Dependencies,
		&ci.CreatedAt,
		&ci.UpdatedAt,
	)
	return ci, err
}

// CreateCI inserts a configuration item.
func (r *Repository) CreateCI(ctx context.Context, ci *domain.ConfigurationItem) error {
	query := `
		INSERT INTO configuration_items (id, name, type, status, location, environment, owner, dependencies, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := r.db.Exec(ctx, query,
		ci.ID,
		ci.Name,
		ci.Type,
		ci.Status,
		ci.Location,
		ci.Environment,
		ci.Owner,
		nonNil(ci.Dependencies),
		ci.CreatedAt,
		ci.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return servicedesk.ErrCIExists
		}
		return fmt.Errorf("create configuration item: %w", err)
	}
	return nil
}

// GetCI retrieves a configuration item by ID.
func (r *Repository) GetCI(ctx context.Context, id string) (*domain.ConfigurationItem, error) {
	query := `SELECT ` + ciColumns + ` FROM configuration_items WHERE id = $1`
	ci, err := scanCI(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, servicedesk.ErrCINotFound
		}
		return nil, fmt.Errorf("get configuration item: %w", err)
	}
	return &ci, nil
}

// ListCIs retrieves configuration items with optional filters.
func (r *Repository) ListCIs(ctx context.Context, filter servicedesk.CIFilter) ([]domain.ConfigurationItem, error) {
	query := `SELECT ` + ciColumns + ` FROM configuration_items WHERE 1=1`
	args := []any{}
	argNum := 1

	if filter.Type != nil {
		query += fmt.Sprintf(" AND type = $%d", argNum)
		args = append(args, *filter.Type)
		argNum++
	}
	if filter.Status != nil {
		query += fmt.Sprintf(" AND status = $%d", argNum)
		args = append(args, *filter.Status)
		argNum++
	}
	if filter.Location != nil {
		query += fmt.Sprintf(" AND location = $%d", argNum)
		args = append(args, *filter.Location)
	}
	query += " ORDER BY id"

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list configuration items: %w", err)
	}
	defer rows.Close()

	cis := make([]domain.ConfigurationItem, 0)
	for rows.Next() {
		ci, err := scanCI(rows)
		if err != nil {
			return nil, fmt.Errorf("scan configuration item: %w", err)
		}
		cis = append(cis, ci)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate configuration items: %w", err)
	}
	return cis, nil
}

// UpdateCIStatus changes the status of a configuration item.
func (r *Repository) UpdateCIStatus(ctx context.Context, id string, status domain.CIStatus) error {
	result, err := r.db.Exec(ctx,
		`UPDATE configuration_items SET status = $2, updated_at = NOW() WHERE id = $1`,
		id, status,
	)
	if err != nil {
		return fmt.Errorf("update configuration item status: %w", err)
	}
	if result.RowsAffected() == 0 {
		return servicedesk.ErrCINotFound
	}
	return nil
}

const incidentColumns = `
	id, title, description, severity, status, assigned_group, ci_id,
	sla_response_time, sla_resolution_time, escalation_time,
	escalated, escalation_level, escalated_at, escalation_reason,
	provenance, created_at, updated_at, resolved_at`

func scanIncident(row rowScanner) (domain.Incident, error) {
	var inc domain.Incident
	err := row.Scan(
		&inc.ID,
		&inc.Title,
		&inc.Description,
		&inc.Severity,
		&inc.Status,
		&inc.AssignedGroup,
		&inc.CIID,
		&inc.SLAResponseTime,
		&inc.SLAResolutionTime,
		&inc.EscalationTime,
		&inc.Escalated,
		&inc.EscalationLevel,
		&inc.EscalatedAt,
		&inc.EscalationReason,
		&inc.Provenance,
		&inc.CreatedAt,
		&inc.UpdatedAt,
		&inc.ResolvedAt,
	)
	return inc, err
}

// CreateIncident inserts an incident.
func (r *Repository) CreateIncident(ctx context.Context, inc *domain.Incident) error {
	query := `
		INSERT INTO incidents (` + incidentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	`
	_, err := r.db.Exec(ctx, query,
		inc.ID,
		inc.Title,
		inc.Description,
		inc.Severity,
		inc.Status,
		inc.AssignedGroup,
		inc.CIID,
		inc.SLAResponseTime,
		inc.SLAResolutionTime,
		inc.EscalationTime,
		inc.Escalated,
		inc.EscalationLevel,
		inc.EscalatedAt,
		inc.EscalationReason,
		inc.Provenance,
		inc.CreatedAt,
		inc.UpdatedAt,
		inc.ResolvedAt,
	)
	if err != nil {
		if isOpenProvenanceViolation(err) {
			return servicedesk.ErrDuplicateProvenance
		}
		return fmt.Errorf("create incident: %w", err)
	}
	return nil
}

// GetIncident retrieves an incident by ID.
func (r *Repository) GetIncident(ctx context.Context, id string) (*domain.Incident, error) {
	query := `SELECT ` + incidentColumns + ` FROM incidents WHERE id = $1`
	inc, err := scanIncident(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, servicedesk.ErrIncidentNotFound
		}
		return nil, fmt.Errorf("get incident: %w", err)
	}
	return &inc, nil
}

// GetIncidentByProvenance retrieves the most recent incident opened for an
// alert id or external ticket key.
func (r *Repository) GetIncidentByProvenance(ctx context.Context, provenance string) (*domain.Incident, error) {
	query := `SELECT ` + incidentColumns + `
		FROM incidents
		WHERE provenance = $1
		ORDER BY created_at DESC
		LIMIT 1`
	inc, err := scanIncident(r.db.QueryRow(ctx, query, provenance))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, servicedesk.ErrIncidentNotFound
		}
		return nil, fmt.Errorf("get incident by provenance: %w", err)
	}
	return &inc, nil
}

// ListIncidents retrieves incidents with optional filters, oldest first.
// A zero limit returns every match.
func (r *Repository) ListIncidents(ctx context.Context, filter servicedesk.IncidentFilter) ([]domain.Incident, error) {
	query := `SELECT ` + incidentColumns + ` FROM incidents WHERE 1=1`
	args := []any{}
	argNum := 1

	if filter.Status != nil {
		query += fmt.Sprintf(" AND status = $%d", argNum)
		args = append(args, *filter.Status)
		argNum++
	}
	if filter.Severity != nil {
		query += fmt.Sprintf(" AND severity = $%d", argNum)
		args = append(args, *filter.Severity)
		argNum++
	}
	if filter.CIID != nil {
		query += fmt.Sprintf(" AND ci_id = $%d", argNum)
		args = append(args, *filter.CIID)
		argNum++
	}

	query += " ORDER BY created_at, id"

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argNum)
		args = append(args, filter.Limit)
		argNum++
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argNum)
		args = append(args, filter.Offset)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list incidents: %w", err)
	}
	defer rows.Close()

	incidents := make([]domain.Incident, 0)
	for rows.Next() {
		inc, err := scanIncident(rows)
		if err != nil {
			return nil, fmt.Errorf("scan incident: %w", err)
		}
		incidents = append(incidents, inc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate incidents: %w", err)
	}
	return incidents, nil
}

// UpdateIncident overwrites the mutable fields of an incident.
func (r *Repository) UpdateIncident(ctx context.Context, inc *domain.Incident) error {
	return r.updateIncident(ctx, r.db, inc)
}

// UpdateIncidentTx updates an incident within a transaction.
func (r *Repository) UpdateIncidentTx(ctx context.Context, tx pgx.Tx, inc *domain.Incident) error {
	return r.updateIncident(ctx, tx, inc)
}

func (r *Repository) updateIncident(ctx context.Context, q querier, inc *domain.Incident) error {
	query := `
		UPDATE incidents SET
			title = $2, description = $3, severity = $4, status = $5,
			assigned_group = $6, ci_id = $7,
			sla_response_time = $8, sla_resolution_time = $9, escalation_time = $10,
			escalated = $11, escalation_level = $12, escalated_at = $13, escalation_reason = $14,
			updated_at = $15, resolved_at = $16
		WHERE id = $1
	`
	result, err := q.Exec(ctx, query,
		inc.ID,
		inc.Title,
		inc.Description,
		inc.Severity,
		inc.Status,
		inc.AssignedGroup,
		inc.CIID,
		inc.SLAResponseTime,
		inc.SLAResolutionTime,
		inc.EscalationTime,
		inc.Escalated,
		inc.EscalationLevel,
		inc.EscalatedAt,
		inc.EscalationReason,
		inc.UpdatedAt,
		inc.ResolvedAt,
	)
	if err != nil {
		if isOpenProvenanceViolation(err) {
			return servicedesk.ErrDuplicateProvenance
		}
		return fmt.Errorf("update incident: %w", err)
	}
	if result.RowsAffected() == 0 {
		return servicedesk.ErrIncidentNotFound
	}
	return nil
}

const problemColumns = `
	id, title, description, status, priority, assigned_group, ci_id,
	linked_incidents, root_cause, solution, created_at, updated_at, closed_at`

func scanProblem(row rowScanner) (domain.Problem, error) {
	var p domain.Problem
	err := row.Scan(
		&p.ID,
		&p.Title,
		&p.Description,
		&p.Status,
		&p.Priority,
		&p.AssignedGroup,
		&p.CIID,
		&p.LinkedIncidents,
		&p.RootCause,
		&p.Solution,
		&p.CreatedAt,
		&p.UpdatedAt,
		&p.ClosedAt,
	)
	return p, err
}

// CreateProblem inserts a problem.
func (r *Repository) CreateProblem(ctx context.Context, p *domain.Problem) error {
	query := `
		INSERT INTO problems (` + problemColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`
	_, err := r.db.Exec(ctx, query,
		p.ID,
		p.Title,
		p.Description,
		p.Status,
		p.Priority,
		p.AssignedGroup,
		p.CIID,
		nonNil(p.LinkedIncidents),
		p.RootCause,
		p.Solution,
		p.CreatedAt,
		p.UpdatedAt,
		p.ClosedAt,
	)
	if err != nil {
		return fmt.Errorf("create problem: %w", err)
	}
	return nil
}

// GetProblem retrieves a problem by ID.
func (r *Repository) GetProblem(ctx context.Context, id string) (*domain.Problem, error) {
	query := `SELECT ` + problemColumns + ` FROM problems WHERE id = $1`
	p, err := scanProblem(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, servicedesk.ErrProblemNotFound
		}
		return nil, fmt.Errorf("get problem: %w", err)
	}
	return &p, nil
}

// ListProblems retrieves problems with optional filters.
func (r *Repository) ListProblems(ctx context.Context, filter servicedesk.ProblemFilter) ([]domain.Problem, error) {
	query := `SELECT ` + problemColumns + ` FROM problems WHERE 1=1`
	args := []any{}
	argNum := 1

	if filter.Status != nil {
		query += fmt.Sprintf(" AND status = $%d", argNum)
		args = append(args, *filter.Status)
		argNum++
	}
	if filter.CIID != nil {
		query += fmt.Sprintf(" AND ci_id = $%d", argNum)
		args = append(args, *filter.CIID)
	}
	query += " ORDER BY created_at DESC, id"

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list problems: %w", err)
	}
	defer rows.Close()

	problems := make([]domain.Problem, 0)
	for rows.Next() {
		p, err := scanProblem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan problem: %w", err)
		}
		problems = append(problems, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate problems: %w", err)
	}
	return problems, nil
}

// UpdateProblem overwrites the mutable fields of a problem.
func (r *Repository) UpdateProblem(ctx context.Context, p *domain.Problem) error {
	return r.updateProblem(ctx, r.db, p)
}

// UpdateProblemTx updates a problem within a transaction.
func (r *Repository) UpdateProblemTx(ctx context.Context, tx pgx.Tx, p *domain.Problem) error {
	return r.updateProblem(ctx, tx, p)
}

func (r *Repository) updateProblem(ctx context.Context, q querier, p *domain.Problem) error {
	query := `
		UPDATE problems SET
			title = $2, description = $3, status = $4, priority = $5, assigned_group = $6,
			linked_incidents = $7, root_cause = $8, solution = $9, updated_at = $10, closed_at = $11
		WHERE id = $1
	`
	result, err := q.Exec(ctx, query,
		p.ID,
		p.Title,
		p.Description,
		p.Status,
		p.Priority,
		p.AssignedGroup,
		nonNil(p.LinkedIncidents),
		p.RootCause,
		p.Solution,
		p.UpdatedAt,
		p.ClosedAt,
	)
	if err != nil {
		return fmt.Errorf("update problem: %w", err)
	}
	if result.RowsAffected() == 0 {
		return servicedesk.ErrProblemNotFound
	}
	return nil
}

const changeColumns = `
	id, title, description, status, ci_id, COALESCE(linked_problem, ''), linked_incidents,
	solution, risk_level, rollback_plan, implementation_date, created_at, updated_at, completed_at`

func scanChange(row rowScanner) (domain.Change, error) {
	var c domain.Change
	err := row.Scan(
		&c.ID,
		&c.Title,
		&c.Description,
		&c.Status,
		&c.CIID,
		&c.LinkedProblem,
		&c.LinkedIncidents,
		&c.Solution,
		&c.RiskLevel,
		&c.RollbackPlan,
		&c.ImplementationDate,
		&c.CreatedAt,
		&c.UpdatedAt,
		&c.CompletedAt,
	)
	return c, err
}

// CreateChange inserts a change.
func (r *Repository) CreateChange(ctx context.Context, c *domain.Change) error {
	return r.createChange(ctx, r.db, c)
}

// CreateChangeTx inserts a change within a transaction.
func (r *Repository) CreateChangeTx(ctx context.Context, tx pgx.Tx, c *domain.Change) error {
	return r.createChange(ctx, tx, c)
}

func (r *Repository) createChange(ctx context.Context, q querier, c *domain.Change) error {
	query := `
		INSERT INTO changes (
			id, title, description, status, ci_id, linked_problem, linked_incidents,
			solution, risk_level, rollback_plan, implementation_date, created_at, updated_at, completed_at
		) VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7, $8, $9, $10, $11, $12, $13, $14)
	`
	_, err := q.Exec(ctx, query,
		c.ID,
		c.Title,
		c.Description,
		c.Status,
		c.CIID,
		c.LinkedProblem,
		nonNil(c.LinkedIncidents),
		c.Solution,
		c.RiskLevel,
		c.RollbackPlan,
		c.ImplementationDate,
		c.CreatedAt,
		c.UpdatedAt,
		c.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("create change: %w", err)
	}
	return nil
}

// GetChange retrieves a change by ID.
func (r *Repository) GetChange(ctx context.Context, id string) (*domain.Change, error) {
	query := `SELECT ` + changeColumns + ` FROM changes WHERE id = $1`
	c, err := scanChange(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, servicedesk.ErrChangeNotFound
		}
		return nil, fmt.Errorf("get change: %w", err)
	}
	return &c, nil
}

// ListChanges retrieves changes with optional filters.
func (r *Repository) ListChanges(ctx context.Context, filter servicedesk.ChangeFilter) ([]domain.Change, error) {
	query := `SELECT ` + changeColumns + ` FROM changes WHERE 1=1`
	args := []any{}
	argNum := 1

	if filter.Status != nil {
		query += fmt.Sprintf(" AND status = $%d", argNum)
		args = append(args, *filter.Status)
		argNum++
	}
	if filter.CIID != nil {
		query += fmt.Sprintf(" AND ci_id = $%d", argNum)
		args = append(args, *filter.CIID)
	}
	query += " ORDER BY created_at DESC, id"

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list changes: %w", err)
	}
	defer rows.Close()

	changes := make([]domain.Change, 0)
	for rows.Next() {
		c, err := scanChange(rows)
		if err != nil {
			return nil, fmt.Errorf("scan change: %w", err)
		}
		changes = append(changes, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate changes: %w", err)
	}
	return changes, nil
}

// UpdateChange overwrites the mutable fields of a change.
func (r *Repository) UpdateChange(ctx context.Context, c *domain.Change) error {
	return r.updateChange(ctx, r.db, c)
}

// UpdateChangeTx updates a change within a transaction.
func (r *Repository) UpdateChangeTx(ctx context.Context, tx pgx.Tx, c *domain.Change) error {
	return r.updateChange(ctx, tx, c)
}

func (r *Repository) updateChange(ctx context.Context, q querier, c *domain.Change) error {
	query := `
		UPDATE changes SET
			title = $2, description = $3, status = $4, linked_incidents = $5,
			solution = $6, risk_level = $7, rollback_plan = $8, implementation_date = $9,
			updated_at = $10, completed_at = $11
		WHERE id = $1
	`
	result, err := q.Exec(ctx, query,
		c.ID,
		c.Title,
		c.Description,
		c.Status,
		nonNil(c.LinkedIncidents),
		c.Solution,
		c.RiskLevel,
		c.RollbackPlan,
		c.ImplementationDate,
		c.UpdatedAt,
		c.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("update change: %w", err)
	}
	if result.RowsAffected() == 0 {
		return servicedesk.ErrChangeNotFound
	}
	return nil
}

// BeginTx starts a new database transaction.
func (r *Repository) BeginTx(ctx context.Context) (pgx.Tx, error) {
	return r.db.Begin(ctx)
}

// isOpenProvenanceViolation reports whether err comes from the index that
// allows one open incident per provenance.
func isOpenProvenanceViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation && pgErr.ConstraintName == openProvenanceIndex
}

// nonNil keeps NOT NULL array columns from receiving NULL.
func nonNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}
