package automation

import (
	"testing"

	"github.com/bissquit/itsm-garden/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAssignmentMatrix_ResolveIsTotal(t *testing.T) {
	matrix, err := NewAssignmentMatrix(DefaultAssignmentRules())
	require.NoError(t, err)

	severities := append(append([]domain.Severity(nil), domain.SeverityOrder...), "Unknown")
	ciTypes := []string{domain.CITypeDatabase, domain.CITypeServer, domain.CITypeNetwork, domain.CITypeSecurity, "Printer", ""}
	locations := []string{"DC-HCM-01", "DC-HN-02", ""}

	for _, severity := range severities {
		for _, ciType := range ciTypes {
			for _, location := range locations {
				rule, err := matrix.Resolve(severity, ciType, location)
				require.NoError(t, err, "(%s, %s, %s)", severity, ciType, location)
				assert.NotEmpty(t, rule.AssignedGroup)
				assert.NotEmpty(t, rule.EscalationGroup)
			}
		}
	}
}

func TestAssignmentMatrix_MostSpecificWins(t *testing.T) {
	matrix, err := NewAssignmentMatrix([]AssignmentRule{
		{Severity: "*", CIType: "*", Location: "*", AssignedGroup: "L1-ServiceDesk", EscalationGroup: "L2-ServiceDesk"},
		{Severity: "Critical", CIType: "*", Location: "*", AssignedGroup: "L1-Critical", EscalationGroup: "L2-Critical"},
		{Severity: "Critical", CIType: "Database", Location: "*", AssignedGroup: "L1-Database", EscalationGroup: "L2-Database"},
		{Severity: "Critical", CIType: "Database", Location: "DC-HCM-01", AssignedGroup: "L1-HCM-Database", EscalationGroup: "L2-HCM-Database"},
	})
	require.NoError(t, err)

	tests := []struct {
		name     string
		severity domain.Severity
		ciType   string
		location string
		expected string
	}{
		{"exact match", domain.SeverityCritical, "Database", "DC-HCM-01", "L1-HCM-Database"},
		{"partial match", domain.SeverityCritical, "Database", "DC-HN-02", "L1-Database"},
		{"severity only", domain.SeverityCritical, "Server", "DC-HN-02", "L1-Critical"},
		{"catch-all", domain.SeverityLow, "Server", "DC-HN-02", "L1-ServiceDesk"},
		{"case-insensitive type", domain.SeverityCritical, "database", "DC-HN-02", "L1-Database"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule, err := matrix.Resolve(tt.severity, tt.ciType, tt.location)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, rule.AssignedGroup)
		})
	}
}

func TestAssignmentMatrix_TieGoesToFirstDeclared(t *testing.T) {
	matrix, err := NewAssignmentMatrix([]AssignmentRule{
		{Severity: "High", CIType: "*", Location: "*", AssignedGroup: "L1-First", EscalationGroup: "L2-First"},
		{Severity: "*", CIType: "Server", Location: "*", AssignedGroup: "L1-Second", EscalationGroup: "L2-Second"},
		{Severity: "*", CIType: "*", Location: "*", AssignedGroup: "L1-Any", EscalationGroup: "L2-Any"},
	})
	require.NoError(t, err)

	rule, err := matrix.Resolve(domain.SeverityHigh, "Server", "DC-1")
	require.NoError(t, err)
	assert.Equal(t, "L1-First", rule.AssignedGroup)
}

func TestNewAssignmentMatrix_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		rules []AssignmentRule
	}{
		{"no catch-all", []AssignmentRule{
			{Severity: "Critical", CIType: "*", Location: "*", AssignedGroup: "L1-A", EscalationGroup: "L2-A"},
		}},
		{"empty rules", nil},
		{"empty match field", []AssignmentRule{
			{Severity: "*", CIType: "", Location: "*", AssignedGroup: "L1-A", EscalationGroup: "L2-A"},
		}},
		{"missing escalation group", []AssignmentRule{
			{Severity: "*", CIType: "*", Location: "*", AssignedGroup: "L1-A"},
		}},
		{"unknown severity", []AssignmentRule{
			{Severity: "Urgent", CIType: "*", Location: "*", AssignedGroup: "L1-A", EscalationGroup: "L2-A"},
			{Severity: "*", CIType: "*", Location: "*", AssignedGroup: "L1-A", EscalationGroup: "L2-A"},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewAssignmentMatrix(tt.rules)
			assert.ErrorIs(t, err, ErrConfiguration)
		})
	}
}

func TestTier(t *testing.T) {
	tests := []struct {
		group    string
		expected int
	}{
		{"L1-Database", 1},
		{"L2-Database-Expert", 2},
		{"L3-Server-Expert", 3},
		{"ServiceDesk", 0},
		{"L-Database", 0},
		{"Lx-Database", 0},
		{"", 0},
	}

	for _, tt := range tests {
		t.Run(tt.group, func(t *testing.T) {
			assert.Equal(t, tt.expected, Tier(tt.group))
		})
	}
}

func TestWithTier(t *testing.T) {
	assert.Equal(t, "L3-Database-Expert", withTier("L2-Database-Expert", 3))
	assert.Equal(t, "L1-ServiceDesk", withTier("ServiceDesk", 1))
}
