// Package mattermost delivers notifications through Mattermost incoming webhooks.
package mattermost

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/bissquit/itsm-garden/internal/notifications"
)

// Name identifies the sender in logs and metrics.
const Name = "mattermost"

const (
	defaultTimeout  = 10 * time.Second
	defaultUsername = "itsm-garden"

	// maxPostLength is the server side limit on a post message.
	maxPostLength = 16383
	truncatedNote = "\n\n_(message truncated)_"
	maxErrorBody  = 4 << 10
)

// ErrEmptyWebhook is returned when a notification has no destination.
var ErrEmptyWebhook = errors.New("mattermost: webhook URL is empty")

// Config holds Mattermost sender configuration. The webhook URL travels
// in Notification.To.
type Config struct {
	Username string        // display name, default "itsm-garden"
	IconURL  string        // optional
	Channel  string        // overrides the webhook's default channel when set
	Timeout  time.Duration // request timeout
}

// Sender posts notifications to an incoming webhook.
type Sender struct {
	config     Config
	httpClient *http.Client
}

// NewSender creates a new Mattermost sender.
func NewSender(config Config) *Sender {
	if config.Username == "" {
		config.Username = defaultUsername
	}
	if config.Timeout <= 0 {
		config.Timeout = defaultTimeout
	}

	return &Sender{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
	}
}

// Name returns the sender name.
func (s *Sender) Name() string {
	return Name
}

// Send posts the notification to the webhook in notification.To. The
// subject becomes a heading above the body.
func (s *Sender) Send(ctx context.Context, notification notifications.Notification) error {
	if notification.To == "" {
		return notifications.NewNonRetryableError(ErrEmptyWebhook)
	}

	body, err := json.Marshal(webhookPayload{
		Text:     postText(notification),
		Username: s.config.Username,
		IconURL:  s.config.IconURL,
		Channel:  s.config.Channel,
	})
	if err != nil {
		return notifications.NewNonRetryableError(fmt.Errorf("marshal payload: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, notification.To, bytes.NewReader(body))
	if err != nil {
		return notifications.NewNonRetryableError(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("send request: %w", ctxErr)
		}
		return &WebhookError{Message: fmt.Sprintf("send request: %v", err)}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
		slog.Debug("mattermost message sent", "webhook", maskWebhookURL(notification.To))
		return nil
	}

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &WebhookError{
		StatusCode: resp.StatusCode,
		Message:    statusMessage(resp.StatusCode, strings.TrimSpace(string(respBody))),
	}
}

type webhookPayload struct {
	Text     string `json:"text"`
	Username string `json:"username,omitempty"`
	IconURL  string `json:"icon_url,omitempty"`
	Channel  string `json:"channel,omitempty"`
}

func postText(n notifications.Notification) string {
	text := n.Body
	if n.Subject != "" {
		text = "### " + n.Subject + "\n\n" + n.Body
	}
	if len(text) <= maxPostLength {
		return text
	}

	cut := maxPostLength - len(truncatedNote)
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut] + truncatedNote
}

func statusMessage(code int, body string) string {
	switch code {
	case http.StatusUnauthorized, http.StatusForbidden:
		return "invalid or expired webhook"
	case http.StatusNotFound:
		return "webhook not found"
	case http.StatusTooManyRequests:
		return "rate limited"
	}
	if body == "" {
		return http.StatusText(code)
	}
	return body
}

// maskWebhookURL keeps the host and hides the webhook key.
func maskWebhookURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "***"
	}
	return u.Scheme + "://" + u.Host + "/***"
}

// WebhookError is a failed webhook call. A zero StatusCode means no
// response was received.
type WebhookError struct {
	StatusCode int
	Message    string
}

func (e *WebhookError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("mattermost error %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("mattermost error: %s", e.Message)
}

// IsRetryable reports whether the call may succeed if repeated: transport
// failures, rate limiting and server errors.
func (e *WebhookError) IsRetryable() bool {
	return e.StatusCode == 0 || e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}
