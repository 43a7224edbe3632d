package mattermost

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/bissquit/itsm-garden/internal/notifications"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSender_Defaults(t *testing.T) {
	sender := NewSender(Config{})

	assert.Equal(t, defaultUsername, sender.config.Username)
	assert.Equal(t, defaultTimeout, sender.config.Timeout)
	assert.Equal(t, Name, sender.Name())
}

func TestSender_Send_Payload(t *testing.T) {
	var got webhookPayload
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	sender := NewSender(Config{
		Username: "sla-bot",
		IconURL:  "https://example.com/icon.png",
		Channel:  "itsm-alerts",
	})
	err := sender.Send(context.Background(), notifications.Notification{
		To:      server.URL,
		Subject: "[Escalation] INC-1: db down",
		Body:    "Tier L2",
	})
	require.NoError(t, err)

	assert.Equal(t, "### [Escalation] INC-1: db down\n\nTier L2", got.Text)
	assert.Equal(t, "sla-bot", got.Username)
	assert.Equal(t, "https://example.com/icon.png", got.IconURL)
	assert.Equal(t, "itsm-alerts", got.Channel)
}

func TestSender_Send_WithoutSubject(t *testing.T) {
	var got webhookPayload
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	err := NewSender(Config{}).Send(context.Background(), notifications.Notification{
		To:   server.URL,
		Body: "plain",
	})
	require.NoError(t, err)
	assert.Equal(t, "plain", got.Text)
	assert.Empty(t, got.Channel)
}

func TestSender_Send_StatusHandling(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		retryable bool
		contains  string
	}{
		{"bad request", http.StatusBadRequest, "invalid payload", false, "invalid payload"},
		{"unauthorized", http.StatusUnauthorized, "", false, "invalid or expired webhook"},
		{"forbidden", http.StatusForbidden, "", false, "invalid or expired webhook"},
		{"not found", http.StatusNotFound, "", false, "webhook not found"},
		{"teapot", http.StatusTeapot, "short and stout", false, "418: short and stout"},
		{"rate limited", http.StatusTooManyRequests, "", true, "rate limited"},
		{"server error", http.StatusInternalServerError, "boom", true, "500: boom"},
		{"unavailable", http.StatusServiceUnavailable, "", true, "Service Unavailable"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			err := NewSender(Config{}).Send(context.Background(), notifications.Notification{
				To:   server.URL,
				Body: "msg",
			})

			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.contains)
			assert.Equal(t, tt.retryable, notifications.IsRetryable(err))

			var webhookErr *WebhookError
			require.ErrorAs(t, err, &webhookErr)
			assert.Equal(t, tt.status, webhookErr.StatusCode)
		})
	}
}

func TestSender_Send_EmptyWebhook(t *testing.T) {
	err := NewSender(Config{}).Send(context.Background(), notifications.Notification{Body: "msg"})

	require.ErrorIs(t, err, ErrEmptyWebhook)
	assert.False(t, notifications.IsRetryable(err))
}

func TestSender_Send_NetworkError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {}))
	url := server.URL
	server.Close()

	err := NewSender(Config{Timeout: 100 * time.Millisecond}).Send(context.Background(), notifications.Notification{
		To:   url,
		Body: "msg",
	})

	var webhookErr *WebhookError
	require.ErrorAs(t, err, &webhookErr)
	assert.Zero(t, webhookErr.StatusCode)
	assert.Contains(t, webhookErr.Message, "send request")
	assert.True(t, notifications.IsRetryable(err))
}

func TestSender_Send_ContextCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := NewSender(Config{}).Send(ctx, notifications.Notification{
		To:   server.URL,
		Body: "msg",
	})

	require.ErrorIs(t, err, context.Canceled)
	assert.False(t, notifications.IsRetryable(err))
}

func TestPostText_Truncates(t *testing.T) {
	long := strings.Repeat("é", maxPostLength)

	text := postText(notifications.Notification{Subject: "[SLA] 1 violations", Body: long})

	assert.LessOrEqual(t, len(text), maxPostLength)
	assert.True(t, strings.HasSuffix(text, truncatedNote))
	assert.True(t, utf8.ValidString(text))
	assert.True(t, strings.HasPrefix(text, "### [SLA] 1 violations\n\n"))
}

func TestMaskWebhookURL(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"https://chat.example.com/hooks/abcdefghijklmnop", "https://chat.example.com/***"},
		{"http://localhost:8065/hooks/x", "http://localhost:8065/***"},
		{"not a url", "***"},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			assert.Equal(t, tt.want, maskWebhookURL(tt.url))
		})
	}
}

func TestWebhookError_Error(t *testing.T) {
	assert.Equal(t, "mattermost error 400: bad request", (&WebhookError{StatusCode: 400, Message: "bad request"}).Error())
	assert.Equal(t, "mattermost error: connection refused", (&WebhookError{Message: "connection refused"}).Error())
}
