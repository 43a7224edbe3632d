package jira

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bissquit/itsm-garden/internal/automation"
	"github.com/bissquit/itsm-garden/internal/domain"
	"github.com/bissquit/itsm-garden/internal/pkg/ctxlog"
	"github.com/bissquit/itsm-garden/internal/servicedesk"
)

// Searcher finds issues by JQL.
type Searcher interface {
	Search(ctx context.Context, jql string) ([]Issue, error)
}

// IncidentStore is the part of the service desk the importer writes to.
type IncidentStore interface {
	FindIncidentByProvenance(ctx context.Context, provenance string) (*domain.Incident, error)
	CreateIncident(ctx context.Context, input servicedesk.CreateIncidentInput) (*domain.Incident, error)
	UpdateIncidentStatus(ctx context.Context, id string, status domain.IncidentStatus) (*domain.Incident, error)
}

// Sync outcomes per issue.
const (
	outcomeCreated   = "created"
	outcomeUpdated   = "updated"
	outcomeUnchanged = "unchanged"
	outcomeSkipped   = "skipped"
	outcomeFailed    = "failed"
)

// SyncResult summarizes one import.
type SyncResult struct {
	Fetched   int               `json:"fetched"`
	Created   int               `json:"created"`
	Updated   int               `json:"updated"`
	Unchanged int               `json:"unchanged"`
	Skipped   int               `json:"skipped"`
	Failed    map[string]string `json:"failed,omitempty"`
}

// Syncer upserts incidents from JIRA issues, keyed by provenance jira:<KEY>.
// A new issue becomes an incident routed by the assignment matrix. A known
// issue only moves the incident's status, and only along allowed transitions.
type Syncer struct {
	client Searcher
	store  IncidentStore
	jql    string
}

// NewSyncer creates a new syncer.
func NewSyncer(client Searcher, store IncidentStore, jql string) *Syncer {
	return &Syncer{
		client: client,
		store:  store,
		jql:    jql,
	}
}

// Sync imports every issue matching the configured JQL. Per-issue failures
// are collected in the result; only a failed search returns an error.
func (s *Syncer) Sync(ctx context.Context) (*SyncResult, error) {
	start := time.Now()

	issues, err := s.client.Search(ctx, s.jql)
	if err != nil {
		recordSync("error", time.Since(start))
		return nil, fmt.Errorf("search jira: %w", err)
	}

	logger := ctxlog.FromContext(ctx)
	result := &SyncResult{Fetched: len(issues)}
	for _, issue := range issues {
		outcome, err := s.syncIssue(ctx, issue)
		recordIssue(outcome)

		switch outcome {
		case outcomeCreated:
			result.Created++
		case outcomeUpdated:
			result.Updated++
		case outcomeUnchanged:
			result.Unchanged++
		case outcomeSkipped:
			result.Skipped++
		case outcomeFailed:
			if result.Failed == nil {
				result.Failed = make(map[string]string)
			}
			result.Failed[issue.Key] = err.Error()
			logger.Warn("jira issue not imported", "key", issue.Key, "error", err)
		}
	}

	status := "success"
	if len(result.Failed) > 0 {
		status = "partial"
	}
	recordSync(status, time.Since(start))

	logger.Info("jira sync finished",
		"fetched", result.Fetched,
		"created", result.Created,
		"updated", result.Updated,
		"failed", len(result.Failed),
		"duration", time.Since(start),
	)
	return result, nil
}

func (s *Syncer) syncIssue(ctx context.Context, issue Issue) (string, error) {
	status := MapStatus(issue.Fields.Status)

	existing, err := s.store.FindIncidentByProvenance(ctx, Provenance(issue.Key))
	if errors.Is(err, servicedesk.ErrIncidentNotFound) {
		return s.create(ctx, issue, status)
	}
	if err != nil {
		return outcomeFailed, fmt.Errorf("find incident: %w", err)
	}

	if existing.Status == status || (existing.Status.IsInitial() && status.IsInitial()) {
		return outcomeUnchanged, nil
	}
	if !existing.Status.CanTransitionTo(status) {
		ctxlog.FromContext(ctx).Debug("jira status not applicable",
			"key", issue.Key,
			"incident_id", existing.ID,
			"from", existing.Status,
			"to", status,
		)
		return outcomeUnchanged, nil
	}

	if _, err := s.store.UpdateIncidentStatus(ctx, existing.ID, status); err != nil {
		return outcomeFailed, fmt.Errorf("update incident %s: %w", existing.ID, err)
	}
	return outcomeUpdated, nil
}

func (s *Syncer) create(ctx context.Context, issue Issue, status domain.IncidentStatus) (string, error) {
	if automation.DefaultIncidentTerminal().Contains(status) {
		return outcomeSkipped, nil
	}

	input := IncidentInput(issue)
	incident, err := s.store.CreateIncident(ctx, input)
	if errors.Is(err, servicedesk.ErrCINotFound) {
		ctxlog.FromContext(ctx).Warn("jira issue references unknown CI, importing without it",
			"key", issue.Key,
			"ci_id", input.CIID,
		)
		input.CIID = ""
		incident, err = s.store.CreateIncident(ctx, input)
	}
	if err != nil {
		return outcomeFailed, fmt.Errorf("create incident: %w", err)
	}

	if !status.IsInitial() && incident.Status.CanTransitionTo(status) {
		if _, err := s.store.UpdateIncidentStatus(ctx, incident.ID, status); err != nil {
			return outcomeFailed, fmt.Errorf("update incident %s: %w", incident.ID, err)
		}
	}
	return outcomeCreated, nil
}
