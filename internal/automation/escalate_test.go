package automation

import (
	"testing"
	"time"

	"github.com/bissquit/itsm-garden/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEscalate_AdvancesOneTierPerCall(t *testing.T) {
	engine := newTestEngine(t)
	ci := domain.CIMetadata{ID: "ci-002", Type: domain.CITypeDatabase, Location: "DC-HCM-01"}

	inc := incident("INC-1", "ci-002", domain.SeverityCritical, domain.IncidentStatusOpen, baseTime)
	inc.AssignedGroup = "L1-Database"
	inc.EscalationLevel = 1

	now := baseTime.Add(31 * time.Minute)
	second, err := engine.Escalate(inc, ci, now)
	require.NoError(t, err)

	assert.Equal(t, "L2-Database-Expert", second.AssignedGroup)
	assert.Equal(t, 2, second.EscalationLevel)
	assert.True(t, second.Escalated)
	require.NotNil(t, second.EscalatedAt)
	assert.Equal(t, now, *second.EscalatedAt)
	assert.Equal(t, EscalationReason, second.EscalationReason)
	assert.Equal(t, "L1-Database", inc.AssignedGroup, "input must not be modified")

	third, err := engine.Escalate(second, ci, now.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, "L3-Database-Expert", third.AssignedGroup)
	assert.Equal(t, 3, third.EscalationLevel)

	again, err := engine.Escalate(third, ci, now.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, third, again, "escalation at the last tier is a no-op")
}

func TestEscalate_AtLastTierMarksOnce(t *testing.T) {
	engine := newTestEngine(t)
	ci := domain.CIMetadata{ID: "ci-002", Type: domain.CITypeDatabase}

	inc := incident("INC-1", "ci-002", domain.SeverityCritical, domain.IncidentStatusAssigned, baseTime)
	inc.AssignedGroup = "L3-DBA"

	now := baseTime.Add(2 * time.Hour)
	marked, err := engine.Escalate(inc, ci, now)
	require.NoError(t, err)
	assert.Equal(t, "L3-DBA", marked.AssignedGroup)
	assert.Equal(t, MaxTier, marked.EscalationLevel)
	assert.True(t, marked.Escalated)
	require.NotNil(t, marked.EscalatedAt)
	assert.Equal(t, now, *marked.EscalatedAt)

	violations, err := engine.CheckViolations([]domain.Incident{inc}, now, nil)
	require.NoError(t, err)
	require.Len(t, violations, 1)
	assert.Equal(t, ViolationEscalationRequired, violations[0].Type)

	violations, err = engine.CheckViolations([]domain.Incident{marked}, now, nil)
	require.NoError(t, err)
	assert.Empty(t, violations)

	again, err := engine.Escalate(marked, ci, now.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, marked, again)
}

func TestEscalate_TierNeverDecreases(t *testing.T) {
	engine := newTestEngine(t)

	tests := []struct {
		name     string
		group    string
		severity domain.Severity
		ci       domain.CIMetadata
	}{
		{"untiered group", "ServiceDesk", domain.SeverityLow, domain.CIMetadata{Type: domain.CITypeStorage}},
		{"manual L2 assignment", "L2-ServiceDesk", domain.SeverityCritical, domain.CIMetadata{Type: domain.CITypeDatabase}},
		{"L1 server", "L1-Server", domain.SeverityCritical, domain.CIMetadata{Type: domain.CITypeServer}},
		{"L1 security", "L1-Security", domain.SeverityMedium, domain.CIMetadata{Type: domain.CITypeSecurity}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inc := incident("INC-1", "ci-1", tt.severity, domain.IncidentStatusAssigned, baseTime)
			inc.AssignedGroup = tt.group

			previous := Tier(inc.AssignedGroup)
			for i := 0; i < MaxTier+2; i++ {
				next, err := engine.Escalate(inc, tt.ci, baseTime.Add(time.Duration(i)*time.Hour))
				require.NoError(t, err)

				tier := Tier(next.AssignedGroup)
				assert.GreaterOrEqual(t, tier, previous)
				assert.LessOrEqual(t, tier, MaxTier)
				previous = tier
				inc = next
			}
			assert.Equal(t, MaxTier, previous)
		})
	}
}

func TestEscalate_ManualL2MovesToL3(t *testing.T) {
	engine := newTestEngine(t)

	inc := incident("INC-1", "ci-1", domain.SeverityCritical, domain.IncidentStatusAssigned, baseTime)
	inc.AssignedGroup = "L2-ServiceDesk"

	next, err := engine.Escalate(inc, domain.CIMetadata{Type: domain.CITypeDatabase}, baseTime)
	require.NoError(t, err)
	assert.Equal(t, "L3-ServiceDesk", next.AssignedGroup)
}

func TestEscalate_TerminalIncident(t *testing.T) {
	engine := newTestEngine(t)

	inc := incident("INC-1", "ci-1", domain.SeverityCritical, domain.IncidentStatusClosed, baseTime)
	inc.AssignedGroup = "L1-Database"

	_, err := engine.Escalate(inc, domain.CIMetadata{Type: domain.CITypeDatabase}, baseTime)
	assert.ErrorIs(t, err, ErrInvalidInput)
}
