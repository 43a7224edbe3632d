package automation

import (
	"github.com/bissquit/itsm-garden/internal/domain"
)

// RiskLevel is the coarse risk label of a CI.
type RiskLevel string

// Risk levels.
const (
	RiskHigh   RiskLevel = "High"
	RiskMedium RiskLevel = "Medium"
	RiskLow    RiskLevel = "Low"
)

// Recommendation texts, in the order they are checked.
const (
	RecommendProblemRecord = "Multiple open incidents detected: create a problem record to investigate the recurring cause"
	RecommendMaintenance   = "CI is degraded: schedule a maintenance window"
	RecommendPrioritizeRCA = "Problems under investigation: prioritize root cause analysis"
)

// Snapshot is a point-in-time copy of every entity collection.
type Snapshot struct {
	CIs       []domain.ConfigurationItem
	Incidents []domain.Incident
	Problems  []domain.Problem
	Changes   []domain.Change
}

// DirectImpact counts the tickets raised against a CI.
type DirectImpact struct {
	Incidents     int `json:"incidents"`
	Problems      int `json:"problems"`
	Changes       int `json:"changes"`
	OpenIncidents int `json:"open_incidents"`
	OpenIssues    int `json:"open_issues"`
}

// Relationships lists the CIs around the analyzed one.
type Relationships struct {
	DependentCIs        []domain.CIMetadata `json:"dependent_cis"`
	DependencyCIs       []domain.CIMetadata `json:"dependency_cis"`
	MissingDependencies []string            `json:"missing_dependencies,omitempty"`
}

// ImpactReport is the outcome of Analyze.
type ImpactReport struct {
	CI              domain.ConfigurationItem `json:"ci"`
	DirectImpact    DirectImpact             `json:"direct_impact"`
	Relationships   Relationships            `json:"relationships"`
	RiskAssessment  RiskLevel                `json:"risk_assessment"`
	Recommendations []string                 `json:"recommendations"`
}

// Analyze computes the impact report of a CI over a snapshot.
//
// Risk is High when the CI has any Critical incident, or more than two open
// incidents and more than three dependents. It is Medium with more than one
// open incident or more than one dependent, and Low otherwise.
func Analyze(ciID string, snap Snapshot) (ImpactReport, error) {
	byID := make(map[string]domain.ConfigurationItem, len(snap.CIs))
	for _, ci := range snap.CIs {
		byID[ci.ID] = ci
	}
	ci, ok := byID[ciID]
	if !ok {
		return ImpactReport{}, &NotFoundError{Kind: "configuration item", ID: ciID}
	}

	incidentTerminal := DefaultIncidentTerminal()
	changeTerminal := DefaultChangeTerminal()

	var direct DirectImpact
	hasCritical := false
	for _, inc := range snap.Incidents {
		if inc.CIID != ciID {
			continue
		}
		direct.Incidents++
		if inc.Severity == domain.SeverityCritical {
			hasCritical = true
		}
		if !incidentTerminal.Contains(inc.Status) {
			direct.OpenIncidents++
			direct.OpenIssues++
		}
	}

	investigating := false
	for _, p := range snap.Problems {
		if p.CIID != ciID {
			continue
		}
		direct.Problems++
		if p.Status != domain.ProblemStatusClosed {
			direct.OpenIssues++
		}
		if p.Status == domain.ProblemStatusInvestigation {
			investigating = true
		}
	}

	for _, c := range snap.Changes {
		if c.CIID != ciID {
			continue
		}
		direct.Changes++
		if !changeTerminal.Contains(c.Status) {
			direct.OpenIssues++
		}
	}

	rel := Relationships{
		DependentCIs:  make([]domain.CIMetadata, 0),
		DependencyCIs: make([]domain.CIMetadata, 0, len(ci.Dependencies)),
	}
	for i := range snap.CIs {
		other := &snap.CIs[i]
		if other.ID != ciID && other.DependsOn(ciID) {
			rel.DependentCIs = append(rel.DependentCIs, other.Metadata())
		}
	}
	for _, depID := range ci.Dependencies {
		dep, ok := byID[depID]
		if !ok {
			rel.MissingDependencies = append(rel.MissingDependencies, depID)
			continue
		}
		rel.DependencyCIs = append(rel.DependencyCIs, dep.Metadata())
	}

	recommendations := make([]string, 0, 3)
	if direct.OpenIncidents > 2 {
		recommendations = append(recommendations, RecommendProblemRecord)
	}
	if ci.Status == domain.CIStatusDegraded {
		recommendations = append(recommendations, RecommendMaintenance)
	}
	if investigating {
		recommendations = append(recommendations, RecommendPrioritizeRCA)
	}

	return ImpactReport{
		CI:              ci,
		DirectImpact:    direct,
		Relationships:   rel,
		RiskAssessment:  assessRisk(hasCritical, direct.OpenIncidents, len(rel.DependentCIs)),
		Recommendations: recommendations,
	}, nil
}

func assessRisk(hasCritical bool, openIncidents, dependents int) RiskLevel {
	switch {
	case hasCritical || (openIncidents > 2 && dependents > 3):
		return RiskHigh
	case openIncidents > 1 || dependents > 1:
		return RiskMedium
	default:
		return RiskLow
	}
}
