package notifications

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bissquit/itsm-garden/internal/automation"
	"github.com/bissquit/itsm-garden/internal/domain"
)

// Dispatcher defaults.
const (
	DefaultMaxAttempts       = 3
	DefaultInitialBackoff    = time.Second
	DefaultMaxBackoff        = 30 * time.Second
	DefaultBackoffMultiplier = 2.0
)

// Config configures delivery of rendered notifications.
type Config struct {
	Target            string // sender specific destination, e.g. a webhook URL
	MaxAttempts       int
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	BackoffMultiplier float64
}

// Dispatcher renders automation outcomes and sends them through a Sender,
// retrying retryable failures with exponential backoff.
type Dispatcher struct {
	config   Config
	renderer *Renderer
	sender   Sender
	now      func() time.Time
}

// NewDispatcher creates a new notification dispatcher.
func NewDispatcher(renderer *Renderer, sender Sender, config Config) *Dispatcher {
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = DefaultMaxAttempts
	}
	if config.InitialBackoff <= 0 {
		config.InitialBackoff = DefaultInitialBackoff
	}
	if config.MaxBackoff <= 0 {
		config.MaxBackoff = DefaultMaxBackoff
	}
	if config.BackoffMultiplier < 1 {
		config.BackoffMultiplier = DefaultBackoffMultiplier
	}

	return &Dispatcher{
		config:   config,
		renderer: renderer,
		sender:   sender,
		now:      time.Now,
	}
}

// NotifyViolations sends one summary for all violations. An empty list
// sends nothing.
func (d *Dispatcher) NotifyViolations(ctx context.Context, violations []automation.Violation) error {
	if len(violations) == 0 {
		return nil
	}
	return d.dispatch(ctx, NewViolationsPayload(violations, d.now()))
}

// NotifyEscalation announces an escalated incident.
func (d *Dispatcher) NotifyEscalation(ctx context.Context, incident domain.Incident) error {
	return d.dispatch(ctx, NewEscalationPayload(incident, d.now()))
}

// NotifyProblem announces a newly opened problem.
func (d *Dispatcher) NotifyProblem(ctx context.Context, problem domain.Problem) error {
	return d.dispatch(ctx, NewProblemPayload(problem, d.now()))
}

func (d *Dispatcher) dispatch(ctx context.Context, payload Payload) error {
	name := d.sender.Name()

	subject, body, err := d.renderer.Render(payload)
	if err != nil {
		recordNotificationSent(name, payload.MessageType, statusFailed)
		return fmt.Errorf("render %s notification: %w", payload.MessageType, err)
	}

	notification := Notification{
		To:      d.config.Target,
		Subject: subject,
		Body:    body,
	}

	start := time.Now()
	attempt := 1
	for ; ; attempt++ {
		err = d.sender.Send(ctx, notification)
		if err == nil {
			recordNotificationSent(name, payload.MessageType, statusSuccess)
			recordDelivery(name, attempt, time.Since(start))
			slog.Debug("notification sent",
				"sender", name,
				"message_type", payload.MessageType,
				"attempts", attempt,
			)
			return nil
		}

		if !IsRetryable(err) || attempt >= d.config.MaxAttempts {
			break
		}

		backoff := d.backoff(attempt)
		slog.Warn("send failed, retrying",
			"sender", name,
			"message_type", payload.MessageType,
			"attempt", attempt,
			"max_attempts", d.config.MaxAttempts,
			"backoff", backoff,
			"error", err,
		)
		recordNotificationSent(name, payload.MessageType, statusRetry)

		if !sleep(ctx, backoff) {
			err = fmt.Errorf("%w (last error: %v)", ctx.Err(), err)
			break
		}
	}

	recordNotificationSent(name, payload.MessageType, statusFailed)
	recordDelivery(name, attempt, time.Since(start))
	return fmt.Errorf("send %s notification: %w", payload.MessageType, err)
}

func (d *Dispatcher) backoff(attempt int) time.Duration {
	backoff := float64(d.config.InitialBackoff)
	for i := 1; i < attempt; i++ {
		backoff *= d.config.BackoffMultiplier
	}

	if backoff > float64(d.config.MaxBackoff) {
		backoff = float64(d.config.MaxBackoff)
	}

	return time.Duration(backoff)
}

func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
