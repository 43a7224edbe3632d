// Package domain contains the ITSM entities shared by the automation core,
// storage and HTTP layers.
package domain

// Severity represents the severity (priority) of an incident or problem.
type Severity string

// Severity levels.
const (
	SeverityCritical Severity = "Critical"
	SeverityHigh     Severity = "High"
	SeverityMedium   Severity = "Medium"
	SeverityLow      Severity = "Low"
)

// SeverityOrder lists severities from highest to lowest.
var SeverityOrder = []Severity{SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow}

// IsValid checks if the severity is valid.
func (s Severity) IsValid() bool {
	switch s {
	case SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow:
		return true
	}
	return false
}

// Rank returns 0 for the highest severity; unknown values rank last.
func (s Severity) Rank() int {
	for i, v := range SeverityOrder {
		if v == s {
			return i
		}
	}
	return len(SeverityOrder)
}

// Priority returns the P-notation used by ticketing tools (P1 is Critical).
func (s Severity) Priority() string {
	switch s {
	case SeverityCritical:
		return "P1"
	case SeverityHigh:
		return "P2"
	case SeverityMedium:
		return "P3"
	case SeverityLow:
		return "P4"
	}
	return "P5"
}

// SeverityFromPriority converts P-notation back to a severity.
// P5 is folded into Low.
func SeverityFromPriority(p string) (Severity, bool) {
	switch p {
	case "P1":
		return SeverityCritical, true
	case "P2":
		return SeverityHigh, true
	case "P3":
		return SeverityMedium, true
	case "P4", "P5":
		return SeverityLow, true
	}
	return "", false
}
