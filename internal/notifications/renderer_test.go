package notifications

import (
	"testing"
	"time"

	"github.com/bissquit/itsm-garden/internal/automation"
	"github.com/bissquit/itsm-garden/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var renderNow = time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

func TestNewRenderer(t *testing.T) {
	r, err := NewRenderer()
	require.NoError(t, err)
	assert.Len(t, r.templates, len(messageTypes))
}

func TestRenderer_Violations(t *testing.T) {
	r, err := NewRenderer()
	require.NoError(t, err)

	payload := NewViolationsPayload([]automation.Violation{
		{Type: automation.ViolationEscalationRequired, IncidentID: "INC-1", Severity: domain.SeverityCritical, ElapsedMinutes: 45, ThresholdMinutes: 30},
		{Type: automation.ViolationResponseOverdue, IncidentID: "INC-1", Severity: domain.SeverityCritical, ElapsedMinutes: 45, ThresholdMinutes: 15},
		{Type: automation.ViolationResponseOverdue, IncidentID: "INC-7", Severity: domain.SeverityLow, ElapsedMinutes: 540, ThresholdMinutes: 480},
	}, renderNow)

	subject, body, err := r.Render(payload)
	require.NoError(t, err)

	assert.Equal(t, "[SLA] 3 violations", subject)
	assert.Contains(t, body, "🔴 **INC-1** Escalation Required: 45m elapsed, threshold 30m")
	assert.Contains(t, body, "🔴 **INC-1** Response Overdue: 45m elapsed, threshold 15m")
	assert.Contains(t, body, "🟢 **INC-7** Response Overdue: 9h elapsed, threshold 8h")
	assert.Contains(t, body, "Mar 2, 2026 12:00 UTC")
}

func TestRenderer_Escalation(t *testing.T) {
	r, err := NewRenderer()
	require.NoError(t, err)

	incident := domain.Incident{
		ID:               "INC-1",
		Title:            "[Zabbix] db-primary: CPU 95%",
		Severity:         domain.SeverityHigh,
		AssignedGroup:    "L2-Database",
		CIID:             "ci-db",
		EscalationLevel:  2,
		EscalationReason: "SLA threshold breach",
		CreatedAt:        renderNow.Add(-time.Hour),
	}

	subject, body, err := r.Render(NewEscalationPayload(incident, renderNow))
	require.NoError(t, err)

	assert.Equal(t, "[Escalation] INC-1: [Zabbix] db-primary: CPU 95%", subject)
	assert.Contains(t, body, "| Severity | 🟠 High |")
	assert.Contains(t, body, "| Tier | L2 |")
	assert.Contains(t, body, "| Assigned group | L2-Database |")
	assert.Contains(t, body, "| CI | ci-db |")
	assert.Contains(t, body, "Reason: SLA threshold breach")

	incident.CIID = ""
	incident.EscalationReason = ""
	_, body, err = r.Render(NewEscalationPayload(incident, renderNow))
	require.NoError(t, err)
	assert.NotContains(t, body, "| CI |")
	assert.NotContains(t, body, "Reason:")
}

func TestRenderer_Problem(t *testing.T) {
	r, err := NewRenderer()
	require.NoError(t, err)

	problem := domain.Problem{
		ID:              "PRB-1",
		Title:           "Recurring incidents on db-primary (2 incidents)",
		Priority:        domain.SeverityCritical,
		AssignedGroup:   "L3-Database-Expert",
		LinkedIncidents: []string{"INC-1", "INC-2"},
	}

	subject, body, err := r.Render(NewProblemPayload(problem, renderNow))
	require.NoError(t, err)

	assert.Equal(t, "[Problem] Recurring incidents on db-primary (2 incidents)", subject)
	assert.Contains(t, body, "Priority: 🔴 Critical")
	assert.Contains(t, body, "Linked incidents (2): INC-1, INC-2")
}

func TestRenderer_UnknownMessageType(t *testing.T) {
	r, err := NewRenderer()
	require.NoError(t, err)

	_, _, err = r.Render(Payload{MessageType: "digest"})
	assert.ErrorIs(t, err, ErrTemplateNotFound)
}

func TestFormatMinutes(t *testing.T) {
	tests := []struct {
		minutes int
		want    string
	}{
		{0, "0m"},
		{45, "45m"},
		{60, "1h"},
		{135, "2h 15m"},
		{4320, "72h"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, formatMinutes(tt.minutes))
		})
	}
}

func TestSeverityEmoji(t *testing.T) {
	assert.Equal(t, "🔴", severityEmoji(domain.SeverityCritical))
	assert.Equal(t, "🟠", severityEmoji(domain.SeverityHigh))
	assert.Equal(t, "🟡", severityEmoji(domain.SeverityMedium))
	assert.Equal(t, "🟢", severityEmoji(domain.SeverityLow))
	assert.Equal(t, "⚪", severityEmoji("Unknown"))
}
