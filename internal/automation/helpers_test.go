package automation

import (
	"fmt"
	"testing"
	"time"

	"github.com/bissquit/itsm-garden/internal/domain"
	"github.com/stretchr/testify/require"
)

var baseTime = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

// newTestEngine builds an engine over the default tables with sequential ids.
func newTestEngine(t *testing.T) *Engine {
	t.Helper()

	policy, err := NewSLAPolicy(DefaultSLAThresholds())
	require.NoError(t, err)
	matrix, err := NewAssignmentMatrix(DefaultAssignmentRules())
	require.NoError(t, err)

	seq := 0
	engine, err := NewEngine(policy, matrix, WithIDGenerator(func(prefix string) string {
		seq++
		return fmt.Sprintf("%s-%d", prefix, seq)
	}))
	require.NoError(t, err)
	return engine
}

func incident(id, ciID string, severity domain.Severity, status domain.IncidentStatus, createdAt time.Time) domain.Incident {
	return domain.Incident{
		ID:        id,
		Title:     "incident " + id,
		Severity:  severity,
		Status:    status,
		CIID:      ciID,
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}
}
