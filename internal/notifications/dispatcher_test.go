package notifications

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bissquit/itsm-garden/internal/automation"
	"github.com/bissquit/itsm-garden/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSender struct {
	mu   sync.Mutex
	errs []error
	sent []Notification
}

func (s *fakeSender) Name() string { return "fake" }

func (s *fakeSender) Send(_ context.Context, n Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sent = append(s.sent, n)
	if len(s.errs) == 0 {
		return nil
	}
	err := s.errs[0]
	s.errs = s.errs[1:]
	return err
}

func newTestDispatcher(t *testing.T, sender Sender) *Dispatcher {
	t.Helper()
	r, err := NewRenderer()
	require.NoError(t, err)
	d := NewDispatcher(r, sender, Config{
		Target:         "https://chat.example.com/hooks/abc",
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
	})
	d.now = func() time.Time { return renderNow }
	return d
}

func TestNewDispatcher_Defaults(t *testing.T) {
	d := NewDispatcher(nil, &fakeSender{}, Config{})

	assert.Equal(t, DefaultMaxAttempts, d.config.MaxAttempts)
	assert.Equal(t, DefaultInitialBackoff, d.config.InitialBackoff)
	assert.Equal(t, DefaultMaxBackoff, d.config.MaxBackoff)
	assert.Equal(t, DefaultBackoffMultiplier, d.config.BackoffMultiplier)
}

func TestDispatcher_NotifyEscalation(t *testing.T) {
	sender := &fakeSender{}
	d := newTestDispatcher(t, sender)

	err := d.NotifyEscalation(context.Background(), domain.Incident{
		ID:              "INC-1",
		Title:           "db down",
		Severity:        domain.SeverityCritical,
		AssignedGroup:   "L2-Database-Expert",
		EscalationLevel: 2,
	})
	require.NoError(t, err)

	require.Len(t, sender.sent, 1)
	assert.Equal(t, "https://chat.example.com/hooks/abc", sender.sent[0].To)
	assert.Equal(t, "[Escalation] INC-1: db down", sender.sent[0].Subject)
	assert.Contains(t, sender.sent[0].Body, "L2-Database-Expert")
}

func TestDispatcher_NotifyViolations_Empty(t *testing.T) {
	sender := &fakeSender{}
	d := newTestDispatcher(t, sender)

	require.NoError(t, d.NotifyViolations(context.Background(), nil))
	assert.Empty(t, sender.sent)
}

func TestDispatcher_NotifyProblem(t *testing.T) {
	sender := &fakeSender{}
	d := newTestDispatcher(t, sender)

	err := d.NotifyProblem(context.Background(), domain.Problem{
		ID:              "PRB-1",
		Title:           "Recurring incidents on api (3 incidents)",
		Priority:        domain.SeverityHigh,
		LinkedIncidents: []string{"INC-1", "INC-2", "INC-3"},
	})
	require.NoError(t, err)
	require.Len(t, sender.sent, 1)
	assert.Contains(t, sender.sent[0].Body, "Linked incidents (3)")
}

func TestDispatcher_Retries(t *testing.T) {
	violations := []automation.Violation{
		{Type: automation.ViolationResponseOverdue, IncidentID: "INC-1", Severity: domain.SeverityLow, ElapsedMinutes: 500, ThresholdMinutes: 480},
	}
	temporary := NewRetryableError(errors.New("503"))
	permanent := NewNonRetryableError(errors.New("404"))

	tests := []struct {
		name      string
		errs      []error
		wantErr   error
		wantSends int
	}{
		{name: "first attempt", wantSends: 1},
		{name: "recovers after retry", errs: []error{temporary}, wantSends: 2},
		{name: "gives up after max attempts", errs: []error{temporary, temporary, temporary}, wantErr: temporary, wantSends: 3},
		{name: "permanent error is not retried", errs: []error{permanent}, wantErr: permanent, wantSends: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sender := &fakeSender{errs: append([]error(nil), tt.errs...)}
			d := newTestDispatcher(t, sender)

			err := d.NotifyViolations(context.Background(), violations)
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
			}
			assert.Len(t, sender.sent, tt.wantSends)
		})
	}
}

func TestDispatcher_StopsRetryingWhenCancelled(t *testing.T) {
	sender := &fakeSender{errs: []error{NewRetryableError(errors.New("503"))}}
	r, err := NewRenderer()
	require.NoError(t, err)
	d := NewDispatcher(r, sender, Config{InitialBackoff: time.Hour, MaxAttempts: 5})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err = d.NotifyEscalation(ctx, domain.Incident{ID: "INC-1", Severity: domain.SeverityLow})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, sender.sent, 1)
}

func TestDispatcher_Backoff(t *testing.T) {
	d := NewDispatcher(nil, &fakeSender{}, Config{
		InitialBackoff:    time.Second,
		MaxBackoff:        5 * time.Second,
		BackoffMultiplier: 2,
	})

	assert.Equal(t, time.Second, d.backoff(1))
	assert.Equal(t, 2*time.Second, d.backoff(2))
	assert.Equal(t, 4*time.Second, d.backoff(3))
	assert.Equal(t, 5*time.Second, d.backoff(4))
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain error", errors.New("boom"), true},
		{"retryable", NewRetryableError(errors.New("x")), true},
		{"non retryable", NewNonRetryableError(errors.New("x")), false},
		{"wrapped non retryable", errors.Join(errors.New("ctx"), NewNonRetryableError(errors.New("x"))), false},
		{"cancelled", context.Canceled, false},
		{"deadline", context.DeadlineExceeded, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryable(tt.err))
		})
	}
}
