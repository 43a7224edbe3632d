package automation

import (
	"sort"
	"time"

	"github.com/bissquit/itsm-garden/internal/domain"
)

// Pattern link defaults.
const (
	DefaultPatternWindow   = 240 * time.Minute
	DefaultPatternMinCount = 2
)

// PatternOptions tunes the pattern linker.
type PatternOptions struct {
	Window   time.Duration
	MinCount int
	Terminal StatusSet[domain.IncidentStatus]
}

// DefaultPatternOptions returns a 240 minute window and a minimum of two incidents.
func DefaultPatternOptions() PatternOptions {
	return PatternOptions{
		Window:   DefaultPatternWindow,
		MinCount: DefaultPatternMinCount,
		Terminal: DefaultIncidentTerminal(),
	}
}

// Pattern is a CI with repeated recent incidents, a problem record candidate.
type Pattern struct {
	CIID        string          `json:"ci_id"`
	IncidentIDs []string        `json:"incident_ids"`
	Count       int             `json:"count"`
	Severity    domain.Severity `json:"severity"`
	FirstSeen   time.Time       `json:"first_seen"`
	LastSeen    time.Time       `json:"last_seen"`
}

// FindPatterns groups open incidents by CI and reports every CI with at
// least MinCount incidents created within Window of now. Patterns are
// ordered by CI id; incident ids are ordered by creation time.
func FindPatterns(incidents []domain.Incident, now time.Time, opts PatternOptions) []Pattern {
	if opts.Window <= 0 {
		opts.Window = DefaultPatternWindow
	}
	if opts.MinCount <= 0 {
		opts.MinCount = DefaultPatternMinCount
	}
	if opts.Terminal == nil {
		opts.Terminal = DefaultIncidentTerminal()
	}

	byCI := make(map[string][]domain.Incident)
	for _, inc := range incidents {
		if inc.CIID == "" || opts.Terminal.Contains(inc.Status) {
			continue
		}
		byCI[inc.CIID] = append(byCI[inc.CIID], inc)
	}

	patterns := make([]Pattern, 0)
	for ciID, group := range byCI {
		if len(group) < opts.MinCount {
			continue
		}

		recent := make([]domain.Incident, 0, len(group))
		for _, inc := range group {
			if withinWindow(inc.CreatedAt, now, opts.Window) {
				recent = append(recent, inc)
			}
		}
		if len(recent) < opts.MinCount {
			continue
		}

		sort.SliceStable(recent, func(i, j int) bool {
			return recent[i].CreatedAt.Before(recent[j].CreatedAt)
		})

		ids := make([]string, len(recent))
		for i, inc := range recent {
			ids[i] = inc.ID
		}

		patterns = append(patterns, Pattern{
			CIID:        ciID,
			IncidentIDs: ids,
			Count:       len(recent),
			Severity:    highestSeverity(recent),
			FirstSeen:   recent[0].CreatedAt,
			LastSeen:    recent[len(recent)-1].CreatedAt,
		})
	}

	sort.Slice(patterns, func(i, j int) bool {
		return patterns[i].CIID < patterns[j].CIID
	})
	return patterns
}

// withinWindow reports whether t lies within window of now in either direction.
func withinWindow(t, now time.Time, window time.Duration) bool {
	d := now.Sub(t)
	if d < 0 {
		d = -d
	}
	return d <= window
}

// highestSeverity scans the fixed order Critical, High, Medium, Low and
// returns the first severity present.
func highestSeverity(incidents []domain.Incident) domain.Severity {
	for _, s := range domain.SeverityOrder {
		for _, inc := range incidents {
			if inc.Severity == s {
				return s
			}
		}
	}
	return domain.SeverityLow
}
