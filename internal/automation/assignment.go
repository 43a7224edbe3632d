package automation

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/bissquit/itsm-garden/internal/domain"
)

// Wildcard matches any value in an assignment rule field.
const Wildcard = "*"

// MaxTier is the last support tier an incident can be escalated to.
const MaxTier = 3

// AssignmentRule routes incidents matching (severity, ci type, location)
// to a support group and names the group to escalate to.
type AssignmentRule struct {
	Severity        string `json:"severity" koanf:"severity"`
	CIType          string `json:"ci_type" koanf:"ci_type"`
	Location        string `json:"location" koanf:"location"`
	AssignedGroup   string `json:"assigned_group" koanf:"assigned_group"`
	EscalationGroup string `json:"escalation_group" koanf:"escalation_group"`
}

func (r AssignmentRule) isCatchAll() bool {
	return r.Severity == Wildcard && r.CIType == Wildcard && r.Location == Wildcard
}

// specificity is the number of non-wildcard fields, or -1 if the rule does not match.
func (r AssignmentRule) specificity(severity domain.Severity, ciType, location string) int {
	score := 0
	for _, f := range []struct{ rule, value string }{
		{r.Severity, string(severity)},
		{r.CIType, ciType},
		{r.Location, location},
	} {
		if f.rule == Wildcard {
			continue
		}
		if !strings.EqualFold(f.rule, f.value) {
			return -1
		}
		score++
	}
	return score
}

// AssignmentMatrix resolves support groups for incidents.
type AssignmentMatrix struct {
	rules []AssignmentRule
}

// DefaultAssignmentRules returns the stock routing table.
func DefaultAssignmentRules() []AssignmentRule {
	return []AssignmentRule{
		{Severity: "Critical", CIType: domain.CITypeDatabase, Location: Wildcard, AssignedGroup: "L1-Database", EscalationGroup: "L2-Database-Expert"},
		{Severity: "Critical", CIType: domain.CITypeServer, Location: Wildcard, AssignedGroup: "L1-Server", EscalationGroup: "L2-Server-Expert"},
		{Severity: "Critical", CIType: domain.CITypeNetwork, Location: Wildcard, AssignedGroup: "L1-Network", EscalationGroup: "L2-Network-Expert"},
		{Severity: "Critical", CIType: Wildcard, Location: Wildcard, AssignedGroup: "L1-Critical-Response", EscalationGroup: "L2-Critical-Response"},
		{Severity: "High", CIType: domain.CITypeDatabase, Location: Wildcard, AssignedGroup: "L1-Database", EscalationGroup: "L2-Database"},
		{Severity: "High", CIType: Wildcard, Location: Wildcard, AssignedGroup: "L1-ServiceDesk", EscalationGroup: "L2-ServiceDesk"},
		{Severity: Wildcard, CIType: domain.CITypeSecurity, Location: Wildcard, AssignedGroup: "L1-Security", EscalationGroup: "L2-Security"},
		{Severity: Wildcard, CIType: Wildcard, Location: Wildcard, AssignedGroup: "L1-ServiceDesk", EscalationGroup: "L2-ServiceDesk"},
	}
}

// NewAssignmentMatrix validates the rules. A catch-all {*,*,*} rule is required.
func NewAssignmentMatrix(rules []AssignmentRule) (*AssignmentMatrix, error) {
	hasCatchAll := false
	for i, r := range rules {
		if r.Severity == "" || r.CIType == "" || r.Location == "" {
			return nil, configErrorf("assignment rule %d: empty match field, use %q for any", i, Wildcard)
		}
		if r.Severity != Wildcard && !domain.Severity(r.Severity).IsValid() {
			return nil, configErrorf("assignment rule %d: unknown severity %q", i, r.Severity)
		}
		if r.AssignedGroup == "" || r.EscalationGroup == "" {
			return nil, configErrorf("assignment rule %d: assigned and escalation groups are required", i)
		}
		if r.isCatchAll() {
			hasCatchAll = true
		}
	}
	if !hasCatchAll {
		return nil, configErrorf("assignment matrix has no catch-all {*,*,*} rule")
	}
	return &AssignmentMatrix{rules: append([]AssignmentRule(nil), rules...)}, nil
}

// Resolve returns the most specific matching rule. Among equally specific
// rules the one declared first wins.
func (m *AssignmentMatrix) Resolve(severity domain.Severity, ciType, location string) (AssignmentRule, error) {
	best, bestScore := -1, -1
	for i, r := range m.rules {
		if score := r.specificity(severity, ciType, location); score > bestScore {
			best, bestScore = i, score
		}
	}
	if best < 0 {
		return AssignmentRule{}, configErrorf("no assignment rule matches (%s, %s, %s)", severity, ciType, location)
	}
	return m.rules[best], nil
}

// Rules returns a copy of the configured rules.
func (m *AssignmentMatrix) Rules() []AssignmentRule {
	return append([]AssignmentRule(nil), m.rules...)
}

// Tier parses the support tier from a group name like "L2-Database".
// Groups without a tier prefix are tier 0.
func Tier(group string) int {
	if len(group) < 3 || (group[0] != 'L' && group[0] != 'l') {
		return 0
	}
	prefix, _, ok := strings.Cut(group[1:], "-")
	if !ok {
		return 0
	}
	n, err := strconv.Atoi(prefix)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// withTier rewrites the tier prefix of group.
func withTier(group string, tier int) string {
	rest := group
	if Tier(group) > 0 {
		_, rest, _ = strings.Cut(group, "-")
	}
	return fmt.Sprintf("L%d-%s", tier, rest)
}
