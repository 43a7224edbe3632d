package httputil

import (
	"context"
	"errors"
	"net/http"

	"github.com/bissquit/itsm-garden/internal/pkg/ctxlog"
)

// ErrorMapping defines how a domain error maps to an HTTP response.
// Match, when set, is used instead of errors.Is against Error.
type ErrorMapping struct {
	Error   error
	Match   func(error) bool
	Status  int
	Message string // if empty, uses err.Error()
}

func (m ErrorMapping) matches(err error) bool {
	if m.Match != nil {
		return m.Match(err)
	}
	return errors.Is(err, m.Error)
}

// HandleError maps a domain error to an HTTP response using provided mappings.
// A request abandoned by its caller gets 503. If no mapping matches, the
// error is logged and 500 Internal Server Error is returned.
func HandleError(ctx context.Context, w http.ResponseWriter, err error, mappings []ErrorMapping) {
	logger := ctxlog.FromContext(ctx)

	for _, m := range mappings {
		if m.matches(err) {
			msg := m.Message
			if msg == "" {
				msg = err.Error()
			}
			logger.Debug("request failed", "status", m.Status, "error", err)
			Error(w, m.Status, msg)
			return
		}
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		logger.Warn("request aborted", "error", err)
		Error(w, http.StatusServiceUnavailable, "request aborted")
		return
	}

	logger.Error("internal error", "error", err)
	Error(w, http.StatusInternalServerError, "internal error")
}
