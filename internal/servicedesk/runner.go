package servicedesk

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bissquit/itsm-garden/internal/automation"
	"github.com/bissquit/itsm-garden/internal/domain"
	"github.com/bissquit/itsm-garden/internal/pkg/ctxlog"
)

// RunReport summarizes one automation pipeline run.
type RunReport struct {
	StartedAt       time.Time              `json:"started_at"`
	FinishedAt      time.Time              `json:"finished_at"`
	Violations      []automation.Violation `json:"violations"`
	Escalated       []string               `json:"escalated"`
	Patterns        []automation.Pattern   `json:"patterns"`
	ProblemsCreated []string               `json:"problems_created"`
	SkippedPatterns []string               `json:"skipped_patterns"`
	Errors          []string               `json:"errors,omitempty"`
}

// RunAutomation runs the pipeline once over a fresh snapshot: detect SLA
// violations, escalate the incidents that need it, notify, then link
// recurring incidents into new problems.
//
// Runs are serialized. Failures on individual records are collected in the
// report; a failure to read the snapshot or a configuration error aborts the
// run.
func (s *Service) RunAutomation(ctx context.Context) (*RunReport, error) {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	start := s.now()
	report := &RunReport{
		StartedAt:       start,
		Escalated:       make([]string, 0),
		ProblemsCreated: make([]string, 0),
		SkippedPatterns: make([]string, 0),
	}

	report, err := s.run(ctx, report)
	duration := s.now().Sub(start)
	if err != nil {
		recordRun(runResultError, duration)
		return nil, err
	}

	report.FinishedAt = s.now()
	result := runResultSuccess
	if len(report.Errors) > 0 {
		result = runResultPartial
	}
	recordRun(result, duration)

	ctxlog.FromContext(ctx).Info("automation run finished",
		"violations", len(report.Violations),
		"escalated", len(report.Escalated),
		"patterns", len(report.Patterns),
		"problems_created", len(report.ProblemsCreated),
		"errors", len(report.Errors),
		"duration_ms", duration.Milliseconds(),
	)
	return report, nil
}

func (s *Service) run(ctx context.Context, report *RunReport) (*RunReport, error) {
	snap, err := s.snapshot(ctx)
	if err != nil {
		return nil, err
	}

	cis := make(map[string]domain.CIMetadata, len(snap.CIs))
	for i := range snap.CIs {
		cis[snap.CIs[i].ID] = snap.CIs[i].Metadata()
	}
	incidents := make(map[string]int, len(snap.Incidents))
	for i := range snap.Incidents {
		incidents[snap.Incidents[i].ID] = i
	}

	violations, err := s.engine.CheckViolations(snap.Incidents, report.StartedAt, automation.DefaultIncidentTerminal())
	if err != nil {
		return nil, fmt.Errorf("check violations: %w", err)
	}
	report.Violations = violations
	recordViolations(violations)

	for _, v := range violations {
		if v.Type != automation.ViolationEscalationRequired {
			continue
		}
		idx := incidents[v.IncidentID]
		escalated, changed, err := s.escalate(ctx, snap.Incidents[idx], cis)
		if err != nil {
			report.addError("escalate %s: %v", v.IncidentID, err)
			continue
		}
		snap.Incidents[idx] = escalated
		if changed {
			report.Escalated = append(report.Escalated, escalated.ID)
			s.notifyEscalation(ctx, escalated)
		}
	}

	if len(violations) > 0 && s.notifier != nil {
		if err := s.notifier.NotifyViolations(ctx, violations); err != nil {
			report.addError("notify violations: %v", err)
		}
	}

	report.Patterns = automation.FindPatterns(snap.Incidents, report.StartedAt, s.patterns)
	for _, pattern := range report.Patterns {
		if linkedByOpenProblem(pattern, snap.Problems) {
			report.SkippedPatterns = append(report.SkippedPatterns, pattern.CIID)
			continue
		}

		ci, ok := cis[pattern.CIID]
		if !ok {
			ci = domain.CIMetadata{ID: pattern.CIID}
		}
		problem, err := s.engine.CreateProblem(pattern, ci, report.StartedAt)
		if err != nil {
			report.addError("create problem for %s: %v", pattern.CIID, err)
			continue
		}
		if err := s.repo.CreateProblem(ctx, &problem); err != nil {
			report.addError("store problem for %s: %v", pattern.CIID, err)
			continue
		}

		report.ProblemsCreated = append(report.ProblemsCreated, problem.ID)
		recordProblemCreated(problem.Priority)
		if s.notifier != nil {
			if err := s.notifier.NotifyProblem(ctx, problem); err != nil {
				report.addError("notify problem %s: %v", problem.ID, err)
			}
		}
	}

	return report, nil
}

// linkedByOpenProblem reports whether a problem that is not closed already
// covers the pattern's CI and one of its incidents.
func linkedByOpenProblem(pattern automation.Pattern, problems []domain.Problem) bool {
	for i := range problems {
		p := &problems[i]
		if p.CIID != pattern.CIID || p.Status == domain.ProblemStatusClosed {
			continue
		}
		for _, id := range pattern.IncidentIDs {
			if p.Links(id) {
				return true
			}
		}
	}
	return false
}

func (r *RunReport) addError(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	slog.Error("automation step failed", "error", msg)
	r.Errors = append(r.Errors, msg)
}
