package httputil

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errMissing = errors.New("thing not found")

type codedError struct{ code int }

func (e *codedError) Error() string { return fmt.Sprintf("coded %d", e.code) }

func TestHandleError(t *testing.T) {
	mappings := []ErrorMapping{
		{Error: errMissing, Status: http.StatusNotFound, Message: "not found"},
		{
			Match: func(err error) bool {
				var c *codedError
				return errors.As(err, &c)
			},
			Status: http.StatusConflict,
		},
	}

	tests := []struct {
		name    string
		err     error
		status  int
		message string
	}{
		{"sentinel", fmt.Errorf("get: %w", errMissing), http.StatusNotFound, "not found"},
		{"matcher uses error text", fmt.Errorf("wrap: %w", &codedError{code: 7}), http.StatusConflict, "wrap: coded 7"},
		{"canceled", fmt.Errorf("query: %w", context.Canceled), http.StatusServiceUnavailable, "request aborted"},
		{"unmapped", errors.New("boom"), http.StatusInternalServerError, "internal error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			HandleError(context.Background(), rec, tt.err, mappings)

			assert.Equal(t, tt.status, rec.Code)
			var body struct {
				Error struct {
					Message string `json:"message"`
				} `json:"error"`
			}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.message, body.Error.Message)
		})
	}
}

func TestErrorWithDetails(t *testing.T) {
	rec := httptest.NewRecorder()
	ErrorWithDetails(rec, http.StatusMultiStatus, "partly done", map[string]any{
		"failed":  map[string]string{"PRB-1": "boom"},
		"message": "ignored",
	})

	assert.Equal(t, http.StatusMultiStatus, rec.Code)
	assert.JSONEq(t, `{"error":{"message":"partly done","failed":{"PRB-1":"boom"}}}`, rec.Body.String())
}

func TestValidationError(t *testing.T) {
	type request struct {
		Title string `json:"title" validate:"required"`
	}
	err := validator.New().Struct(request{})
	require.Error(t, err)

	rec := httptest.NewRecorder()
	ValidationError(rec, err)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t,
		`{"error":{"message":"validation error","details":[{"field":"Title","message":"required"}]}}`,
		rec.Body.String())
}

func TestSuccess(t *testing.T) {
	rec := httptest.NewRecorder()
	Success(rec, http.StatusCreated, map[string]string{"id": "INC-1"})

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"data":{"id":"INC-1"}}`, rec.Body.String())
}

func TestCORSMiddleware(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	tests := []struct {
		name        string
		allowed     []string
		method      string
		origin      string
		preflight   bool
		wantStatus  int
		wantOrigin  string
		wantMethods bool
	}{
		{"allowed origin", []string{"https://ops.example.com"}, http.MethodGet, "https://ops.example.com", false, http.StatusTeapot, "https://ops.example.com", false},
		{"other origin", []string{"https://ops.example.com"}, http.MethodGet, "https://evil.example.com", false, http.StatusTeapot, "", false},
		{"wildcard", []string{"*"}, http.MethodGet, "https://any.example.com", false, http.StatusTeapot, "*", false},
		{"preflight", []string{"https://ops.example.com"}, http.MethodOptions, "https://ops.example.com", true, http.StatusNoContent, "https://ops.example.com", true},
		{"preflight from other origin", []string{"https://ops.example.com"}, http.MethodOptions, "https://evil.example.com", true, http.StatusNoContent, "", false},
		{"plain options", []string{"*"}, http.MethodOptions, "https://any.example.com", false, http.StatusTeapot, "*", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/api/v1/incidents", nil)
			req.Header.Set("Origin", tt.origin)
			if tt.preflight {
				req.Header.Set("Access-Control-Request-Method", http.MethodPost)
			}
			rec := httptest.NewRecorder()

			CORSMiddleware(tt.allowed)(next).ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantOrigin, rec.Header().Get("Access-Control-Allow-Origin"))
			assert.Equal(t, tt.wantMethods, rec.Header().Get("Access-Control-Allow-Methods") != "")
		})
	}
}

func TestRequestLevel(t *testing.T) {
	assert.Equal(t, slog.LevelError, requestLevel("/api/v1/incidents", http.StatusBadGateway))
	assert.Equal(t, slog.LevelWarn, requestLevel("/api/v1/incidents", http.StatusNotFound))
	assert.Equal(t, slog.LevelDebug, requestLevel("/healthz", http.StatusOK))
	assert.Equal(t, slog.LevelInfo, requestLevel("/api/v1/incidents", http.StatusOK))
}
