package automation

import (
	"github.com/bissquit/itsm-garden/internal/domain"
)

// SLAThreshold holds SLA time budgets in minutes.
type SLAThreshold struct {
	Severity       domain.Severity `json:"severity" koanf:"severity"`
	ResponseTime   int             `json:"response_time" koanf:"response_time"`
	ResolutionTime int             `json:"resolution_time" koanf:"resolution_time"`
	EscalationTime int             `json:"escalation_time" koanf:"escalation_time"`
}

// SLAPolicy maps severities to SLA thresholds.
type SLAPolicy struct {
	thresholds map[domain.Severity]SLAThreshold
}

// DefaultSLAThresholds returns the stock SLA table.
func DefaultSLAThresholds() []SLAThreshold {
	return []SLAThreshold{
		{Severity: domain.SeverityCritical, ResponseTime: 15, ResolutionTime: 240, EscalationTime: 30},
		{Severity: domain.SeverityHigh, ResponseTime: 30, ResolutionTime: 480, EscalationTime: 60},
		{Severity: domain.SeverityMedium, ResponseTime: 120, ResolutionTime: 1440, EscalationTime: 240},
		{Severity: domain.SeverityLow, ResponseTime: 480, ResolutionTime: 4320, EscalationTime: 960},
	}
}

// NewSLAPolicy builds a policy and checks that every severity is covered.
func NewSLAPolicy(thresholds []SLAThreshold) (*SLAPolicy, error) {
	p := &SLAPolicy{thresholds: make(map[domain.Severity]SLAThreshold, len(thresholds))}
	for _, t := range thresholds {
		if !t.Severity.IsValid() {
			return nil, configErrorf("sla policy: unknown severity %q", t.Severity)
		}
		if _, dup := p.thresholds[t.Severity]; dup {
			return nil, configErrorf("sla policy: duplicate entry for %s", t.Severity)
		}
		if t.ResponseTime <= 0 || t.ResolutionTime <= 0 || t.EscalationTime <= 0 {
			return nil, configErrorf("sla policy: non-positive budget for %s", t.Severity)
		}
		p.thresholds[t.Severity] = t
	}
	for _, s := range domain.SeverityOrder {
		if _, ok := p.thresholds[s]; !ok {
			return nil, configErrorf("sla policy: no entry for severity %s", s)
		}
	}
	return p, nil
}

// Lookup returns the thresholds for a severity.
func (p *SLAPolicy) Lookup(severity domain.Severity) (SLAThreshold, error) {
	t, ok := p.thresholds[severity]
	if !ok {
		return SLAThreshold{}, configErrorf("no sla entry for severity %q", severity)
	}
	return t, nil
}
