// Package servicedesk stores configuration items, incidents, problems and
// changes, and runs the automation engine against them.
package servicedesk

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/bissquit/itsm-garden/internal/automation"
	"github.com/bissquit/itsm-garden/internal/domain"
	"github.com/jackc/pgx/v5"
)

// CIIDPrefix prefixes generated configuration item ids.
const CIIDPrefix = "CI"

// Notifier delivers automation outcomes to on-call staff.
type Notifier interface {
	NotifyViolations(ctx context.Context, violations []automation.Violation) error
	NotifyEscalation(ctx context.Context, incident domain.Incident) error
	NotifyProblem(ctx context.Context, problem domain.Problem) error
}

// Service implements service desk business logic.
type Service struct {
	repo     Repository
	engine   *automation.Engine
	notifier Notifier
	patterns automation.PatternOptions
	newID    automation.IDGenerator
	now      func() time.Time

	runMu sync.Mutex
}

// Option configures a Service.
type Option func(*Service)

// WithNotifier sets the notifier used by escalations and automation runs.
func WithNotifier(n Notifier) Option {
	return func(s *Service) {
		s.notifier = n
	}
}

// WithPatternOptions overrides the pattern linker settings.
func WithPatternOptions(opts automation.PatternOptions) Option {
	return func(s *Service) {
		s.patterns = opts
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// WithIDGenerator overrides id generation for records created through the API.
func WithIDGenerator(gen automation.IDGenerator) Option {
	return func(s *Service) {
		s.newID = gen
	}
}

// NewService creates a new service desk service.
func NewService(repo Repository, engine *automation.Engine, opts ...Option) *Service {
	s := &Service{
		repo:     repo,
		engine:   engine,
		patterns: automation.DefaultPatternOptions(),
		newID:    automation.NewID,
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateCIInput holds data for registering a configuration item.
type CreateCIInput struct {
	ID           string
	Name         string
	Type         string
	Status       domain.CIStatus
	Location     string
	Environment  string
	Owner        string
	Dependencies []string
}

// CreateCI registers a configuration item. Every dependency must already exist.
func (s *Service) CreateCI(ctx context.Context, input CreateCIInput) (*domain.ConfigurationItem, error) {
	status := input.Status
	if status == "" {
		status = domain.CIStatusActive
	}
	if !status.IsValid() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidStatus, status)
	}

	id := input.ID
	if id == "" {
		id = s.newID(CIIDPrefix)
	}

	deps := make([]string, 0, len(input.Dependencies))
	for _, depID := range input.Dependencies {
		if depID == id {
			return nil, fmt.Errorf("%w: %s depends on itself", ErrUnknownDependency, id)
		}
		if _, err := s.repo.GetCI(ctx, depID); err != nil {
			if errors.Is(err, ErrCINotFound) {
				return nil, fmt.Errorf("%w: %s", ErrUnknownDependency, depID)
			}
			return nil, fmt.Errorf("get dependency %s: %w", depID, err)
		}
		deps = append(deps, depID)
	}

	now := s.now()
	ci := &domain.ConfigurationItem{
		ID:           id,
		Name:         input.Name,
		Type:         input.Type,
		Status:       status,
		Location:     input.Location,
		Environment:  input.Environment,
		Owner:        input.Owner,
		Dependencies: deps,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.CreateCI(ctx, ci); err != nil {
		return nil, fmt.Errorf("create configuration item: %w", err)
	}
	return ci, nil
}

// GetCI returns a configuration item by id.
func (s *Service) GetCI(ctx context.Context, id string) (*domain.ConfigurationItem, error) {
	return s.repo.GetCI(ctx, id)
}

// ListCIs returns configuration items matching the filter.
func (s *Service) ListCIs(ctx context.Context, filter CIFilter) ([]domain.ConfigurationItem, error) {
	return s.repo.ListCIs(ctx, filter)
}

// UpdateCIStatus changes the operational status of a configuration item.
// Items are never deleted; Inactive takes them out of service.
func (s *Service) UpdateCIStatus(ctx context.Context, id string, status domain.CIStatus) (*domain.ConfigurationItem, error) {
	if !status.IsValid() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidStatus, status)
	}
	if err := s.repo.UpdateCIStatus(ctx, id, status); err != nil {
		return nil, err
	}
	return s.repo.GetCI(ctx, id)
}

// CreateIncidentInput holds data for opening an incident by hand.
type CreateIncidentInput struct {
	Title       string
	Description string
	Severity    domain.Severity
	CIID        string
	Provenance  string
	// OpenedAt backdates the incident when it was opened elsewhere first.
	// Zero or future values mean now.
	OpenedAt time.Time
}

// CreateIncident opens an incident routed and budgeted the same way as an
// ingested alert.
func (s *Service) CreateIncident(ctx context.Context, input CreateIncidentInput) (*domain.Incident, error) {
	if !input.Severity.IsValid() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidSeverity, input.Severity)
	}

	ci := domain.CIMetadata{ID: input.CIID}
	if input.CIID != "" {
		item, err := s.repo.GetCI(ctx, input.CIID)
		if err != nil {
			return nil, err
		}
		ci = item.Metadata()
	}

	sla, err := s.engine.Policy().Lookup(input.Severity)
	if err != nil {
		return nil, err
	}
	rule, err := s.engine.Matrix().Resolve(input.Severity, ci.Type, ci.Location)
	if err != nil {
		return nil, err
	}

	now := s.now()
	createdAt := now
	if !input.OpenedAt.IsZero() && input.OpenedAt.Before(now) {
		createdAt = input.OpenedAt
	}
	incident := &domain.Incident{
		ID:                s.newID(automation.IncidentIDPrefix),
		Title:             input.Title,
		Description:       input.Description,
		Severity:          input.Severity,
		Status:            domain.IncidentStatusOpen,
		AssignedGroup:     rule.AssignedGroup,
		CIID:              input.CIID,
		SLAResponseTime:   sla.ResponseTime,
		SLAResolutionTime: sla.ResolutionTime,
		EscalationTime:    sla.EscalationTime,
		EscalationLevel:   automation.Tier(rule.AssignedGroup),
		Provenance:        input.Provenance,
		CreatedAt:         createdAt,
		UpdatedAt:         now,
	}
	if err := s.repo.CreateIncident(ctx, incident); err != nil {
		return nil, fmt.Errorf("create incident: %w", err)
	}
	return incident, nil
}

// GetIncident returns an incident by id.
func (s *Service) GetIncident(ctx context.Context, id string) (*domain.Incident, error) {
	return s.repo.GetIncident(ctx, id)
}

// FindIncidentByProvenance returns the most recent incident opened for an
// external record such as an alert id or a ticket key.
func (s *Service) FindIncidentByProvenance(ctx context.Context, provenance string) (*domain.Incident, error) {
	return s.repo.GetIncidentByProvenance(ctx, provenance)
}

// ListIncidents returns incidents matching the filter.
func (s *Service) ListIncidents(ctx context.Context, filter IncidentFilter) ([]domain.Incident, error) {
	return s.repo.ListIncidents(ctx, filter)
}

// UpdateIncidentStatus moves an incident along its lifecycle.
func (s *Service) UpdateIncidentStatus(ctx context.Context, id string, status domain.IncidentStatus) (*domain.Incident, error) {
	if !status.IsValid() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidStatus, status)
	}

	incident, err := s.repo.GetIncident(ctx, id)
	if err != nil {
		return nil, err
	}
	if incident.Status == status {
		return incident, nil
	}
	if !incident.Status.CanTransitionTo(status) {
		return nil, fmt.Errorf("%w: %s to %s", ErrInvalidTransition, incident.Status, status)
	}

	incident.SetStatus(status, s.now())
	if err := s.repo.UpdateIncident(ctx, incident); err != nil {
		return nil, fmt.Errorf("update incident: %w", err)
	}
	return incident, nil
}

// IngestAlert turns a monitoring alert into a stored incident. A repeated
// alert id returns the incident already opened for it while that incident
// is still open; created reports whether a new incident was stored.
func (s *Service) IngestAlert(ctx context.Context, alert domain.MonitoringAlert) (incident *domain.Incident, created bool, err error) {
	if !alert.Source.IsValid() {
		return nil, false, fmt.Errorf("%w: unknown alert source %q", automation.ErrInvalidInput, alert.Source)
	}
	if alert.ID == "" {
		return nil, false, fmt.Errorf("%w: alert id is required", automation.ErrInvalidInput)
	}

	existing, err := s.repo.GetIncidentByProvenance(ctx, alert.ID)
	switch {
	case err == nil && !automation.DefaultIncidentTerminal().Contains(existing.Status):
		return existing, false, nil
	case err != nil && !errors.Is(err, ErrIncidentNotFound):
		return nil, false, fmt.Errorf("find incident for alert %s: %w", alert.ID, err)
	}

	ci, err := s.ciMetadata(ctx, alert.CIID)
	if err != nil {
		return nil, false, err
	}

	draft, err := s.engine.Ingest(alert, ci, s.now())
	if err != nil {
		return nil, false, err
	}
	if err := s.repo.CreateIncident(ctx, &draft); err != nil {
		if errors.Is(err, ErrDuplicateProvenance) {
			// A concurrent delivery of the same alert stored it first.
			existing, findErr := s.repo.GetIncidentByProvenance(ctx, alert.ID)
			if findErr != nil {
				return nil, false, fmt.Errorf("find incident for alert %s: %w", alert.ID, findErr)
			}
			return existing, false, nil
		}
		return nil, false, fmt.Errorf("create incident: %w", err)
	}

	recordAlertIngested(alert.Source)
	slog.Info("alert ingested",
		"alert_id", alert.ID,
		"source", alert.Source,
		"incident_id", draft.ID,
		"assigned_group", draft.AssignedGroup,
	)
	return &draft, true, nil
}

// EscalateIncident routes an incident to the next support tier.
func (s *Service) EscalateIncident(ctx context.Context, id string) (*domain.Incident, error) {
	incident, err := s.repo.GetIncident(ctx, id)
	if err != nil {
		return nil, err
	}

	escalated, changed, err := s.escalate(ctx, *incident, nil)
	if err != nil {
		return nil, err
	}
	if changed {
		s.notifyEscalation(ctx, escalated)
	}
	return &escalated, nil
}

// escalate applies one escalation step and stores the result. The flag
// reports whether the incident moved to another group. cis may be nil, in
// which case the CI is loaded from the repository.
func (s *Service) escalate(ctx context.Context, incident domain.Incident, cis map[string]domain.CIMetadata) (domain.Incident, bool, error) {
	var ci domain.CIMetadata
	if cis != nil {
		ci = cis[incident.CIID]
	} else {
		var err error
		if ci, err = s.ciMetadata(ctx, incident.CIID); err != nil {
			return domain.Incident{}, false, err
		}
	}

	escalated, err := s.engine.Escalate(incident, ci, s.now())
	if err != nil {
		return domain.Incident{}, false, err
	}
	moved := escalated.AssignedGroup != incident.AssignedGroup
	if !moved && escalated.Escalated == incident.Escalated {
		return escalated, false, nil
	}

	if err := s.repo.UpdateIncident(ctx, &escalated); err != nil {
		return domain.Incident{}, false, fmt.Errorf("update incident: %w", err)
	}
	if !moved {
		slog.Info("incident marked escalated at last tier",
			"incident_id", escalated.ID,
			"group", escalated.AssignedGroup,
		)
		return escalated, false, nil
	}

	recordEscalation(escalated.EscalationLevel)
	slog.Info("incident escalated",
		"incident_id", escalated.ID,
		"from_group", incident.AssignedGroup,
		"to_group", escalated.AssignedGroup,
		"level", escalated.EscalationLevel,
	)
	return escalated, true, nil
}

// CheckViolations reports the SLA violations of all stored incidents.
func (s *Service) CheckViolations(ctx context.Context) ([]automation.Violation, error) {
	incidents, err := s.repo.ListIncidents(ctx, IncidentFilter{})
	if err != nil {
		return nil, fmt.Errorf("list incidents: %w", err)
	}
	return s.engine.CheckViolations(incidents, s.now(), automation.DefaultIncidentTerminal())
}

// FindPatterns reports CIs with recurring open incidents.
func (s *Service) FindPatterns(ctx context.Context) ([]automation.Pattern, error) {
	incidents, err := s.repo.ListIncidents(ctx, IncidentFilter{})
	if err != nil {
		return nil, fmt.Errorf("list incidents: %w", err)
	}
	return automation.FindPatterns(incidents, s.now(), s.patterns), nil
}

// AnalyzeImpact builds the impact report of a configuration item.
func (s *Service) AnalyzeImpact(ctx context.Context, ciID string) (automation.ImpactReport, error) {
	snap, err := s.snapshot(ctx)
	if err != nil {
		return automation.ImpactReport{}, err
	}
	return automation.Analyze(ciID, snap)
}

// GetProblem returns a problem by id.
func (s *Service) GetProblem(ctx context.Context, id string) (*domain.Problem, error) {
	return s.repo.GetProblem(ctx, id)
}

// ListProblems returns problems matching the filter.
func (s *Service) ListProblems(ctx context.Context, filter ProblemFilter) ([]domain.Problem, error) {
	return s.repo.ListProblems(ctx, filter)
}

// CreateChangeFromProblem plans a change from the RCA of a problem. The new
// change and the updated problem are written in one transaction.
func (s *Service) CreateChangeFromProblem(ctx context.Context, problemID string, rca automation.RCA) (*automation.ChangeSynthesis, error) {
	problem, err := s.repo.GetProblem(ctx, problemID)
	if err != nil {
		if errors.Is(err, ErrProblemNotFound) {
			return nil, &automation.NotFoundError{Kind: "problem", ID: problemID}
		}
		return nil, fmt.Errorf("get problem: %w", err)
	}

	result, err := s.engine.CreateChange(*problem, rca, s.now())
	if err != nil {
		return nil, err
	}

	tx, err := s.repo.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			slog.Error("failed to rollback transaction", "error", err)
		}
	}()

	if err := s.repo.CreateChangeTx(ctx, tx, &result.Change); err != nil {
		return nil, fmt.Errorf("create change: %w", err)
	}
	if err := s.repo.UpdateProblemTx(ctx, tx, &result.Problem); err != nil {
		return nil, fmt.Errorf("update problem: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}

	slog.Info("change planned from problem",
		"change_id", result.Change.ID,
		"problem_id", problemID,
		"linked_incidents", len(result.Change.LinkedIncidents),
	)
	return &result, nil
}

// GetChange returns a change by id.
func (s *Service) GetChange(ctx context.Context, id string) (*domain.Change, error) {
	return s.repo.GetChange(ctx, id)
}

// ListChanges returns changes matching the filter.
func (s *Service) ListChanges(ctx context.Context, filter ChangeFilter) ([]domain.Change, error) {
	return s.repo.ListChanges(ctx, filter)
}

// UpdateChangeStatus moves a change forward. Closing goes through CloseChange
// so that linked records are closed with it.
func (s *Service) UpdateChangeStatus(ctx context.Context, id string, status domain.ChangeStatus) (*domain.Change, error) {
	if !status.IsValid() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidStatus, status)
	}

	change, err := s.repo.GetChange(ctx, id)
	if err != nil {
		return nil, err
	}
	if !change.Status.CanTransitionTo(status) {
		return nil, fmt.Errorf("%w: %s to %s", ErrInvalidTransition, change.Status, status)
	}

	if status == domain.ChangeStatusClosed {
		result, err := s.CloseChange(ctx, id)
		if err != nil {
			return nil, err
		}
		return &result.Change, nil
	}

	change.Status = status
	change.UpdatedAt = s.now()
	if err := s.repo.UpdateChange(ctx, change); err != nil {
		return nil, fmt.Errorf("update change: %w", err)
	}
	return change, nil
}

// CloseChange closes a change together with its linked incidents and
// problem in one transaction. Each linked record is written under its own
// savepoint: when some of them cannot be closed the change and the other
// records still commit, and a *automation.PartialCompletionError lists what
// was applied.
func (s *Service) CloseChange(ctx context.Context, id string) (automation.SyncCloseResult, error) {
	change, err := s.repo.GetChange(ctx, id)
	if err != nil {
		return automation.SyncCloseResult{}, err
	}

	now := s.now()
	result, err := automation.SyncClose(*change, now)
	if err != nil {
		return automation.SyncCloseResult{}, err
	}

	tx, err := s.repo.BeginTx(ctx)
	if err != nil {
		return automation.SyncCloseResult{}, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			slog.Error("failed to rollback transaction", "error", err)
		}
	}()

	if err := s.repo.UpdateChangeTx(ctx, tx, &result.Change); err != nil {
		return automation.SyncCloseResult{}, fmt.Errorf("close change: %w", err)
	}

	succeeded := []string{result.Change.ID}
	failed := make(map[string]error)

	for _, incidentID := range result.ClosedIncidentIDs {
		err := withSavepoint(ctx, tx, func(sp pgx.Tx) error {
			return s.closeIncident(ctx, sp, incidentID, now)
		})
		if err != nil {
			failed[incidentID] = err
			continue
		}
		succeeded = append(succeeded, incidentID)
	}
	for _, problemID := range result.ClosedProblemIDs {
		err := withSavepoint(ctx, tx, func(sp pgx.Tx) error {
			return s.closeProblem(ctx, sp, problemID, now)
		})
		if err != nil {
			failed[problemID] = err
			continue
		}
		succeeded = append(succeeded, problemID)
	}

	if err := tx.Commit(ctx); err != nil {
		return automation.SyncCloseResult{}, fmt.Errorf("commit transaction: %w", err)
	}

	if len(failed) > 0 {
		slog.Warn("change closed with failed cascades",
			"change_id", id,
			"succeeded", len(succeeded),
			"failed", len(failed),
		)
		return result, &automation.PartialCompletionError{
			Operation: "close change " + id,
			Succeeded: succeeded,
			Failed:    failed,
		}
	}
	return result, nil
}

// withSavepoint runs fn in a nested transaction of tx. A failure rolls back
// only the work of fn.
func withSavepoint(ctx context.Context, tx pgx.Tx, fn func(pgx.Tx) error) error {
	sp, err := tx.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin savepoint: %w", err)
	}
	if err := fn(sp); err != nil {
		if rbErr := sp.Rollback(ctx); rbErr != nil {
			return errors.Join(err, fmt.Errorf("rollback savepoint: %w", rbErr))
		}
		return err
	}
	return sp.Commit(ctx)
}

func (s *Service) closeIncident(ctx context.Context, tx pgx.Tx, id string, now time.Time) error {
	incident, err := s.repo.GetIncident(ctx, id)
	if err != nil {
		return err
	}
	if incident.Status == domain.IncidentStatusClosed {
		return nil
	}
	incident.SetStatus(domain.IncidentStatusClosed, now)
	return s.repo.UpdateIncidentTx(ctx, tx, incident)
}

func (s *Service) closeProblem(ctx context.Context, tx pgx.Tx, id string, now time.Time) error {
	problem, err := s.repo.GetProblem(ctx, id)
	if err != nil {
		return err
	}
	if problem.Status == domain.ProblemStatusClosed {
		return nil
	}
	closedAt := now
	problem.Status = domain.ProblemStatusClosed
	problem.ClosedAt = &closedAt
	problem.UpdatedAt = now
	return s.repo.UpdateProblemTx(ctx, tx, problem)
}

// ciMetadata loads routing attributes of a CI. CI references on incidents are
// weak, so a missing CI yields bare metadata instead of an error.
func (s *Service) ciMetadata(ctx context.Context, id string) (domain.CIMetadata, error) {
	if strings.TrimSpace(id) == "" {
		return domain.CIMetadata{}, nil
	}
	ci, err := s.repo.GetCI(ctx, id)
	if err != nil {
		if errors.Is(err, ErrCINotFound) {
			slog.Warn("incident references unknown configuration item", "ci_id", id)
			return domain.CIMetadata{ID: id}, nil
		}
		return domain.CIMetadata{}, fmt.Errorf("get configuration item: %w", err)
	}
	return ci.Metadata(), nil
}

func (s *Service) snapshot(ctx context.Context) (automation.Snapshot, error) {
	cis, err := s.repo.ListCIs(ctx, CIFilter{})
	if err != nil {
		return automation.Snapshot{}, fmt.Errorf("list configuration items: %w", err)
	}
	incidents, err := s.repo.ListIncidents(ctx, IncidentFilter{})
	if err != nil {
		return automation.Snapshot{}, fmt.Errorf("list incidents: %w", err)
	}
	problems, err := s.repo.ListProblems(ctx, ProblemFilter{})
	if err != nil {
		return automation.Snapshot{}, fmt.Errorf("list problems: %w", err)
	}
	changes, err := s.repo.ListChanges(ctx, ChangeFilter{})
	if err != nil {
		return automation.Snapshot{}, fmt.Errorf("list changes: %w", err)
	}
	return automation.Snapshot{
		CIs:       cis,
		Incidents: incidents,
		Problems:  problems,
		Changes:   changes,
	}, nil
}

func (s *Service) notifyEscalation(ctx context.Context, incident domain.Incident) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.NotifyEscalation(ctx, incident); err != nil {
		slog.Error("failed to notify escalation", "incident_id", incident.ID, "error", err)
	}
}
