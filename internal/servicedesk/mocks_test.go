package servicedesk

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"testing"
	"time"

	"github.com/bissquit/itsm-garden/internal/automation"
	"github.com/bissquit/itsm-garden/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

// mockTx records how a transaction ended. Methods other than Commit and
// Rollback are not used by the service.
type mockTx struct {
	pgx.Tx
	committed  bool
	rolledBack bool
	commitErr  error
}

func (t *mockTx) Commit(_ context.Context) error {
	if t.commitErr != nil {
		return t.commitErr
	}
	t.committed = true
	return nil
}

func (t *mockTx) Rollback(_ context.Context) error {
	if t.committed {
		return pgx.ErrTxClosed
	}
	t.rolledBack = true
	return nil
}

// mockRepository implements Repository in memory. Writes made inside a
// transaction are staged and applied on commit.
type mockRepository struct {
	cis       map[string]*domain.ConfigurationItem
	incidents map[string]*domain.Incident
	problems  map[string]*domain.Problem
	changes   map[string]*domain.Change

	tx      *mockTx
	staged  []func()
	listErr error

	// provenanceMisses makes that many provenance lookups report not found.
	provenanceMisses int

	createChangeTxErr  error
	updateProblemTxErr error
	updateIncidentErr  map[string]error
	updateProblemErr   map[string]error
}

func newMockRepository() *mockRepository {
	return &mockRepository{
		cis:               make(map[string]*domain.ConfigurationItem),
		incidents:         make(map[string]*domain.Incident),
		problems:          make(map[string]*domain.Problem),
		changes:           make(map[string]*domain.Change),
		updateIncidentErr: make(map[string]error),
		updateProblemErr:  make(map[string]error),
	}
}

func (m *mockRepository) CreateCI(_ context.Context, ci *domain.ConfigurationItem) error {
	if _, ok := m.cis[ci.ID]; ok {
		return ErrCIExists
	}
	c := *ci
	m.cis[ci.ID] = &c
	return nil
}

func (m *mockRepository) GetCI(_ context.Context, id string) (*domain.ConfigurationItem, error) {
	ci, ok := m.cis[id]
	if !ok {
		return nil, ErrCINotFound
	}
	c := *ci
	return &c, nil
}

func (m *mockRepository) ListCIs(_ context.Context, _ CIFilter) ([]domain.ConfigurationItem, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	out := make([]domain.ConfigurationItem, 0, len(m.cis))
	for _, ci := range m.cis {
		out = append(out, *ci)
	}
	slices.SortFunc(out, func(a, b domain.ConfigurationItem) int { return compareStrings(a.ID, b.ID) })
	return out, nil
}

func (m *mockRepository) UpdateCIStatus(_ context.Context, id string, status domain.CIStatus) error {
	ci, ok := m.cis[id]
	if !ok {
		return ErrCINotFound
	}
	ci.Status = status
	return nil
}

func (m *mockRepository) CreateIncident(_ context.Context, incident *domain.Incident) error {
	if m.openProvenanceTaken(incident) {
		return ErrDuplicateProvenance
	}
	i := *incident
	m.incidents[incident.ID] = &i
	return nil
}

func (m *mockRepository) GetIncident(_ context.Context, id string) (*domain.Incident, error) {
	incident, ok := m.incidents[id]
	if !ok {
		return nil, ErrIncidentNotFound
	}
	i := *incident
	return &i, nil
}

func (m *mockRepository) GetIncidentByProvenance(_ context.Context, provenance string) (*domain.Incident, error) {
	if m.provenanceMisses > 0 {
		m.provenanceMisses--
		return nil, ErrIncidentNotFound
	}
	for _, incident := range m.incidents {
		if incident.Provenance == provenance {
			i := *incident
			return &i, nil
		}
	}
	return nil, ErrIncidentNotFound
}

func (m *mockRepository) ListIncidents(_ context.Context, filter IncidentFilter) ([]domain.Incident, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	out := make([]domain.Incident, 0, len(m.incidents))
	for _, incident := range m.incidents {
		if filter.Status != nil && incident.Status != *filter.Status {
			continue
		}
		out = append(out, *incident)
	}
	slices.SortFunc(out, func(a, b domain.Incident) int { return compareStrings(a.ID, b.ID) })
	return out, nil
}

func (m *mockRepository) UpdateIncident(_ context.Context, incident *domain.Incident) error {
	if err := m.updateIncidentErr[incident.ID]; err != nil {
		return err
	}
	if _, ok := m.incidents[incident.ID]; !ok {
		return ErrIncidentNotFound
	}
	i := *incident
	m.incidents[incident.ID] = &i
	return nil
}

// openProvenanceTaken mirrors the unique index over provenance of open
// incidents.
func (m *mockRepository) openProvenanceTaken(incident *domain.Incident) bool {
	if incident.Provenance == "" || automation.DefaultIncidentTerminal().Contains(incident.Status) {
		return false
	}
	for _, other := range m.incidents {
		if other.ID != incident.ID && other.Provenance == incident.Provenance &&
			!automation.DefaultIncidentTerminal().Contains(other.Status) {
			return true
		}
	}
	return false
}

func (m *mockRepository) CreateProblem(_ context.Context, problem *domain.Problem) error {
	p := *problem
	m.problems[problem.ID] = &p
	return nil
}

func (m *mockRepository) GetProblem(_ context.Context, id string) (*domain.Problem, error) {
	problem, ok := m.problems[id]
	if !ok {
		return nil, ErrProblemNotFound
	}
	p := *problem
	return &p, nil
}

func (m *mockRepository) ListProblems(_ context.Context, _ ProblemFilter) ([]domain.Problem, error) {
	out := make([]domain.Problem, 0, len(m.problems))
	for _, problem := range m.problems {
		out = append(out, *problem)
	}
	slices.SortFunc(out, func(a, b domain.Problem) int { return compareStrings(a.ID, b.ID) })
	return out, nil
}

func (m *mockRepository) UpdateProblem(_ context.Context, problem *domain.Problem) error {
	if err := m.updateProblemErr[problem.ID]; err != nil {
		return err
	}
	if _, ok := m.problems[problem.ID]; !ok {
		return ErrProblemNotFound
	}
	p := *problem
	m.problems[problem.ID] = &p
	return nil
}

func (m *mockRepository) CreateChange(_ context.Context, change *domain.Change) error {
	c := *change
	m.changes[change.ID] = &c
	return nil
}

func (m *mockRepository) GetChange(_ context.Context, id string) (*domain.Change, error) {
	change, ok := m.changes[id]
	if !ok {
		return nil, ErrChangeNotFound
	}
	c := *change
	return &c, nil
}

func (m *mockRepository) ListChanges(_ context.Context, _ ChangeFilter) ([]domain.Change, error) {
	out := make([]domain.Change, 0, len(m.changes))
	for _, change := range m.changes {
		out = append(out, *change)
	}
	slices.SortFunc(out, func(a, b domain.Change) int { return compareStrings(a.ID, b.ID) })
	return out, nil
}

func (m *mockRepository) UpdateChange(_ context.Context, change *domain.Change) error {
	if _, ok := m.changes[change.ID]; !ok {
		return ErrChangeNotFound
	}
	c := *change
	m.changes[change.ID] = &c
	return nil
}

func (m *mockRepository) BeginTx(_ context.Context) (pgx.Tx, error) {
	if m.tx == nil {
		m.tx = &mockTx{}
	}
	m.staged = nil
	return &stagingTx{mockTx: m.tx, repo: m}, nil
}

func (m *mockRepository) CreateChangeTx(_ context.Context, _ pgx.Tx, change *domain.Change) error {
	if m.createChangeTxErr != nil {
		return m.createChangeTxErr
	}
	c := *change
	m.staged = append(m.staged, func() { m.changes[c.ID] = &c })
	return nil
}

func (m *mockRepository) UpdateProblemTx(_ context.Context, _ pgx.Tx, problem *domain.Problem) error {
	if m.updateProblemTxErr != nil {
		return m.updateProblemTxErr
	}
	if err := m.updateProblemErr[problem.ID]; err != nil {
		return err
	}
	p := *problem
	m.staged = append(m.staged, func() { m.problems[p.ID] = &p })
	return nil
}

func (m *mockRepository) UpdateIncidentTx(_ context.Context, _ pgx.Tx, incident *domain.Incident) error {
	if err := m.updateIncidentErr[incident.ID]; err != nil {
		return err
	}
	if _, ok := m.incidents[incident.ID]; !ok {
		return ErrIncidentNotFound
	}
	i := *incident
	m.staged = append(m.staged, func() { m.incidents[i.ID] = &i })
	return nil
}

func (m *mockRepository) UpdateChangeTx(_ context.Context, _ pgx.Tx, change *domain.Change) error {
	if _, ok := m.changes[change.ID]; !ok {
		return ErrChangeNotFound
	}
	c := *change
	m.staged = append(m.staged, func() { m.changes[c.ID] = &c })
	return nil
}

// stagingTx applies the staged writes of its repository on commit.
type stagingTx struct {
	*mockTx
	repo *mockRepository
}

func (t *stagingTx) Commit(ctx context.Context) error {
	if err := t.mockTx.Commit(ctx); err != nil {
		return err
	}
	for _, apply := range t.repo.staged {
		apply()
	}
	t.repo.staged = nil
	return nil
}

// Begin opens a savepoint over the writes staged so far.
func (t *stagingTx) Begin(_ context.Context) (pgx.Tx, error) {
	return &savepointTx{repo: t.repo, mark: len(t.repo.staged)}, nil
}

// savepointTx discards the writes staged after it was opened on rollback.
type savepointTx struct {
	pgx.Tx
	repo *mockRepository
	mark int
}

func (t *savepointTx) Commit(_ context.Context) error {
	return nil
}

func (t *savepointTx) Rollback(_ context.Context) error {
	t.repo.staged = t.repo.staged[:t.mark]
	return nil
}

// mockNotifier records notifications.
type mockNotifier struct {
	violations  [][]automation.Violation
	escalations []domain.Incident
	problems    []domain.Problem
	err         error
}

func (n *mockNotifier) NotifyViolations(_ context.Context, violations []automation.Violation) error {
	n.violations = append(n.violations, violations)
	return n.err
}

func (n *mockNotifier) NotifyEscalation(_ context.Context, incident domain.Incident) error {
	n.escalations = append(n.escalations, incident)
	return n.err
}

func (n *mockNotifier) NotifyProblem(_ context.Context, problem domain.Problem) error {
	n.problems = append(n.problems, problem)
	return n.err
}

func compareStrings(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// sequentialIDs returns an id generator producing PREFIX-<name>-<n>.
func sequentialIDs(name string) automation.IDGenerator {
	seq := 0
	return func(prefix string) string {
		seq++
		return fmt.Sprintf("%s-%s%d", prefix, name, seq)
	}
}

func newTestService(t *testing.T, repo *mockRepository, opts ...Option) *Service {
	t.Helper()

	policy, err := automation.NewSLAPolicy(automation.DefaultSLAThresholds())
	require.NoError(t, err)
	matrix, err := automation.NewAssignmentMatrix(automation.DefaultAssignmentRules())
	require.NoError(t, err)
	engine, err := automation.NewEngine(policy, matrix, automation.WithIDGenerator(sequentialIDs("")))
	require.NoError(t, err)

	base := []Option{
		WithClock(func() time.Time { return testNow }),
		WithIDGenerator(sequentialIDs("api")),
	}
	return NewService(repo, engine, append(base, opts...)...)
}

func seedCI(repo *mockRepository, id, ciType string, status domain.CIStatus, deps ...string) {
	repo.cis[id] = &domain.ConfigurationItem{
		ID:           id,
		Name:         "ci " + id,
		Type:         ciType,
		Status:       status,
		Location:     "DC-HCM-01",
		Dependencies: deps,
	}
}

func seedIncident(repo *mockRepository, id, ciID string, severity domain.Severity, status domain.IncidentStatus, createdAt time.Time) *domain.Incident {
	incident := &domain.Incident{
		ID:            id,
		Title:         "incident " + id,
		Severity:      severity,
		Status:        status,
		AssignedGroup: "L1-ServiceDesk",
		CIID:          ciID,
		CreatedAt:     createdAt,
		UpdatedAt:     createdAt,
	}
	repo.incidents[id] = incident
	return incident
}

var errStore = errors.New("store unavailable")
