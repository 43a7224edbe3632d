package servicedesk

import (
	"context"

	"github.com/bissquit/itsm-garden/internal/domain"
	"github.com/jackc/pgx/v5"
)

// Repository defines the storage operations of the service desk.
type Repository interface {
	CreateCI(ctx context.Context, ci *domain.ConfigurationItem) error
	GetCI(ctx context.Context, id string) (*domain.ConfigurationItem, error)
	ListCIs(ctx context.Context, filter CIFilter) ([]domain.ConfigurationItem, error)
	UpdateCIStatus(ctx context.Context, id string, status domain.CIStatus) error

	CreateIncident(ctx context.Context, incident *domain.Incident) error
	GetIncident(ctx context.Context, id string) (*domain.Incident, error)
	GetIncidentByProvenance(ctx context.Context, provenance string) (*domain.Incident, error)
	ListIncidents(ctx context.Context, filter IncidentFilter) ([]domain.Incident, error)
	UpdateIncident(ctx context.Context, incident *domain.Incident) error

	CreateProblem(ctx context.Context, problem *domain.Problem) error
	GetProblem(ctx context.Context, id string) (*domain.Problem, error)
	ListProblems(ctx context.Context, filter ProblemFilter) ([]domain.Problem, error)
	UpdateProblem(ctx context.Context, problem *domain.Problem) error

	CreateChange(ctx context.Context, change *domain.Change) error
	GetChange(ctx context.Context, id string) (*domain.Change, error)
	ListChanges(ctx context.Context, filter ChangeFilter) ([]domain.Change, error)
	UpdateChange(ctx context.Context, change *domain.Change) error

	// Transaction support
	BeginTx(ctx context.Context) (pgx.Tx, error)
	CreateChangeTx(ctx context.Context, tx pgx.Tx, change *domain.Change) error
	UpdateProblemTx(ctx context.Context, tx pgx.Tx, problem *domain.Problem) error
	UpdateIncidentTx(ctx context.Context, tx pgx.Tx, incident *domain.Incident) error
	UpdateChangeTx(ctx context.Context, tx pgx.Tx, change *domain.Change) error
}

// CIFilter holds filter options for listing configuration items.
type CIFilter struct {
	Type     *string
	Status   *domain.CIStatus
	Location *string
}

// IncidentFilter holds filter options for listing incidents.
type IncidentFilter struct {
	Status   *domain.IncidentStatus
	Severity *domain.Severity
	CIID     *string
	Limit    int
	Offset   int
}

// ProblemFilter holds filter options for listing problems.
type ProblemFilter struct {
	Status *domain.ProblemStatus
	CIID   *string
}

// ChangeFilter holds filter options for listing changes.
type ChangeFilter struct {
	Status *domain.ChangeStatus
	CIID   *string
}
