package servicedesk

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/bissquit/itsm-garden/internal/automation"
	"github.com/bissquit/itsm-garden/internal/domain"
	"github.com/bissquit/itsm-garden/internal/pkg/httputil"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

// Pagination constants.
const (
	DefaultIncidentsLimit = 100
	MaxIncidentsLimit     = 500
)

var errorMappings = []httputil.ErrorMapping{
	{Error: ErrCINotFound, Status: http.StatusNotFound, Message: "configuration item not found"},
	{Error: ErrIncidentNotFound, Status: http.StatusNotFound, Message: "incident not found"},
	{Error: ErrProblemNotFound, Status: http.StatusNotFound, Message: "problem not found"},
	{Error: ErrChangeNotFound, Status: http.StatusNotFound, Message: "change not found"},
	{Error: automation.ErrNotFound, Status: http.StatusNotFound},
	{Error: ErrCIExists, Status: http.StatusConflict, Message: "configuration item already exists"},
	{Error: ErrDuplicateProvenance, Status: http.StatusConflict, Message: "open incident with this provenance already exists"},
	{Error: ErrInvalidStatus, Status: http.StatusBadRequest},
	{Error: ErrInvalidSeverity, Status: http.StatusBadRequest},
	{Error: ErrInvalidTransition, Status: http.StatusConflict},
	{Error: ErrUnknownDependency, Status: http.StatusBadRequest},
	{Error: automation.ErrInvalidInput, Status: http.StatusBadRequest},
	{Error: automation.ErrConfiguration, Status: http.StatusUnprocessableEntity},
}

// Handler handles HTTP requests for the service desk.
type Handler struct {
	service   *Service
	validator *validator.Validate
}

// NewHandler creates a new service desk handler.
func NewHandler(service *Service) *Handler {
	return &Handler{
		service:   service,
		validator: validator.New(),
	}
}

// RegisterRoutes registers all service desk routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/cis", func(r chi.Router) {
		r.Get("/", h.ListCIs)
		r.Post("/", h.CreateCI)
		r.Get("/{id}", h.GetCI)
		r.Patch("/{id}/status", h.UpdateCIStatus)
		r.Get("/{id}/impact", h.GetImpact)
	})

	r.Route("/incidents", func(r chi.Router) {
		r.Get("/", h.ListIncidents)
		r.Post("/", h.CreateIncident)
		r.Get("/{id}", h.GetIncident)
		r.Patch("/{id}/status", h.UpdateIncidentStatus)
		r.Post("/{id}/escalate", h.EscalateIncident)
	})

	r.Route("/problems", func(r chi.Router) {
		r.Get("/", h.ListProblems)
		r.Get("/{id}", h.GetProblem)
		r.Post("/{id}/changes", h.CreateChange)
	})

	r.Route("/changes", func(r chi.Router) {
		r.Get("/", h.ListChanges)
		r.Get("/{id}", h.GetChange)
		r.Patch("/{id}/status", h.UpdateChangeStatus)
		r.Post("/{id}/close", h.CloseChange)
	})

	r.Post("/alerts", h.IngestAlert)

	r.Route("/automation", func(r chi.Router) {
		r.Post("/run", h.RunAutomation)
		r.Get("/violations", h.GetViolations)
		r.Get("/patterns", h.GetPatterns)
	})
}

// CreateCIRequest represents the request body for registering a CI.
type CreateCIRequest struct {
	ID           string   `json:"id" validate:"omitempty,max=64"`
	Name         string   `json:"name" validate:"required,min=1,max=255"`
	Type         string   `json:"type" validate:"required,min=1,max=64"`
	Status       string   `json:"status" validate:"omitempty,oneof=Active Maintenance Inactive Degraded Down"`
	Location     string   `json:"location" validate:"max=255"`
	Environment  string   `json:"environment" validate:"max=64"`
	Owner        string   `json:"owner" validate:"max=255"`
	Dependencies []string `json:"dependencies" validate:"dive,required"`
}

// UpdateCIStatusRequest represents the request body for changing a CI status.
type UpdateCIStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=Active Maintenance Inactive Degraded Down"`
}

// CreateIncidentRequest represents the request body for opening an incident.
type CreateIncidentRequest struct {
	Title       string `json:"title" validate:"required,min=1,max=500"`
	Description string `json:"description"`
	Severity    string `json:"severity" validate:"required,oneof=Critical High Medium Low"`
	CIID        string `json:"ci_id"`
}

// UpdateIncidentStatusRequest represents the request body for an incident status change.
type UpdateIncidentStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

// IngestAlertRequest represents a monitoring alert pushed by a monitoring tool.
type IngestAlertRequest struct {
	ID        string             `json:"id" validate:"required"`
	Source    string             `json:"source" validate:"required,oneof=Zabbix Prometheus Nagios Datadog Grafana Manual"`
	Severity  string             `json:"severity" validate:"required"`
	Message   string             `json:"message" validate:"required"`
	CIID      string             `json:"ci_id"`
	Timestamp *time.Time         `json:"timestamp"`
	Metrics   map[string]float64 `json:"metrics"`
}

// ToDomain converts the request to a domain alert.
func (r *IngestAlertRequest) ToDomain() domain.MonitoringAlert {
	alert := domain.MonitoringAlert{
		ID:       r.ID,
		Source:   domain.AlertSource(r.Source),
		Severity: domain.Severity(r.Severity),
		Message:  r.Message,
		CIID:     r.CIID,
		Metrics:  r.Metrics,
	}
	if r.Timestamp != nil {
		alert.Timestamp = *r.Timestamp
	}
	return alert
}

// CreateChangeRequest carries the root cause analysis a change is planned from.
type CreateChangeRequest struct {
	RootCause          string     `json:"root_cause" validate:"required"`
	Solution           string     `json:"solution" validate:"required"`
	ImplementationDate *time.Time `json:"implementation_date"`
	RiskLevel          string     `json:"risk_level" validate:"omitempty,oneof=High Medium Low"`
	RollbackPlan       string     `json:"rollback_plan"`
}

// UpdateChangeStatusRequest represents the request body for a change status change.
type UpdateChangeStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

// ListCIs handles GET /cis.
func (h *Handler) ListCIs(w http.ResponseWriter, r *http.Request) {
	var filter CIFilter
	q := r.URL.Query()
	if v := q.Get("type"); v != "" {
		filter.Type = &v
	}
	if v := q.Get("status"); v != "" {
		status := domain.CIStatus(v)
		filter.Status = &status
	}
	if v := q.Get("location"); v != "" {
		filter.Location = &v
	}

	cis, err := h.service.ListCIs(r.Context(), filter)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}
	httputil.Success(w, http.StatusOK, cis)
}

// CreateCI handles POST /cis.
func (h *Handler) CreateCI(w http.ResponseWriter, r *http.Request) {
	var req CreateCIRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	ci, err := h.service.CreateCI(r.Context(), CreateCIInput{
		ID:           req.ID,
		Name:         req.Name,
		Type:         req.Type,
		Status:       domain.CIStatus(req.Status),
		Location:     req.Location,
		Environment:  req.Environment,
		Owner:        req.Owner,
		Dependencies: req.Dependencies,
	})
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}
	httputil.Success(w, http.StatusCreated, ci)
}

// GetCI handles GET /cis/{id}.
func (h *Handler) GetCI(w http.ResponseWriter, r *http.Request) {
	ci, err := h.service.GetCI(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}
	httputil.Success(w, http.StatusOK, ci)
}

// UpdateCIStatus handles PATCH /cis/{id}/status.
func (h *Handler) UpdateCIStatus(w http.ResponseWriter, r *http.Request) {
	var req UpdateCIStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	ci, err := h.service.UpdateCIStatus(r.Context(), chi.URLParam(r, "id"), domain.CIStatus(req.Status))
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}
	httputil.Success(w, http.StatusOK, ci)
}

// GetImpact handles GET /cis/{id}/impact.
func (h *Handler) GetImpact(w http.ResponseWriter, r *http.Request) {
	report, err := h.service.AnalyzeImpact(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}
	httputil.Success(w, http.StatusOK, report)
}

// ListIncidents handles GET /incidents.
func (h *Handler) ListIncidents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := IncidentFilter{Limit: DefaultIncidentsLimit}
	if v := q.Get("status"); v != "" {
		status := domain.IncidentStatus(v)
		filter.Status = &status
	}
	if v := q.Get("severity"); v != "" {
		severity := domain.Severity(v)
		filter.Severity = &severity
	}
	if v := q.Get("ci_id"); v != "" {
		filter.CIID = &v
	}
	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 1 {
			httputil.Error(w, http.StatusBadRequest, "invalid limit")
			return
		}
		filter.Limit = min(limit, MaxIncidentsLimit)
	}
	if v := q.Get("offset"); v != "" {
		offset, err := strconv.Atoi(v)
		if err != nil || offset < 0 {
			httputil.Error(w, http.StatusBadRequest, "invalid offset")
			return
		}
		filter.Offset = offset
	}

	incidents, err := h.service.ListIncidents(r.Context(), filter)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}
	httputil.Success(w, http.StatusOK, incidents)
}

// CreateIncident handles POST /incidents.
func (h *Handler) CreateIncident(w http.ResponseWriter, r *http.Request) {
	var req CreateIncidentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	incident, err := h.service.CreateIncident(r.Context(), CreateIncidentInput{
		Title:       req.Title,
		Description: req.Description,
		Severity:    domain.Severity(req.Severity),
		CIID:        req.CIID,
	})
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}
	httputil.Success(w, http.StatusCreated, incident)
}

// GetIncident handles GET /incidents/{id}.
func (h *Handler) GetIncident(w http.ResponseWriter, r *http.Request) {
	incident, err := h.service.GetIncident(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}
	httputil.Success(w, http.StatusOK, incident)
}

// UpdateIncidentStatus handles PATCH /incidents/{id}/status.
func (h *Handler) UpdateIncidentStatus(w http.ResponseWriter, r *http.Request) {
	var req UpdateIncidentStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	incident, err := h.service.UpdateIncidentStatus(r.Context(), chi.URLParam(r, "id"), domain.IncidentStatus(req.Status))
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}
	httputil.Success(w, http.StatusOK, incident)
}

// EscalateIncident handles POST /incidents/{id}/escalate.
func (h *Handler) EscalateIncident(w http.ResponseWriter, r *http.Request) {
	incident, err := h.service.EscalateIncident(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}
	httputil.Success(w, http.StatusOK, incident)
}

// IngestAlert handles POST /alerts.
func (h *Handler) IngestAlert(w http.ResponseWriter, r *http.Request) {
	var req IngestAlertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	incident, created, err := h.service.IngestAlert(r.Context(), req.ToDomain())
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	httputil.Success(w, status, incident)
}

// ListProblems handles GET /problems.
func (h *Handler) ListProblems(w http.ResponseWriter, r *http.Request) {
	var filter ProblemFilter
	if v := r.URL.Query().Get("status"); v != "" {
		status := domain.ProblemStatus(v)
		filter.Status = &status
	}
	if v := r.URL.Query().Get("ci_id"); v != "" {
		filter.CIID = &v
	}

	problems, err := h.service.ListProblems(r.Context(), filter)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}
	httputil.Success(w, http.StatusOK, problems)
}

// GetProblem handles GET /problems/{id}.
func (h *Handler) GetProblem(w http.ResponseWriter, r *http.Request) {
	problem, err := h.service.GetProblem(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}
	httputil.Success(w, http.StatusOK, problem)
}

// CreateChange handles POST /problems/{id}/changes.
func (h *Handler) CreateChange(w http.ResponseWriter, r *http.Request) {
	var req CreateChangeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	result, err := h.service.CreateChangeFromProblem(r.Context(), chi.URLParam(r, "id"), automation.RCA{
		RootCause:          req.RootCause,
		Solution:           req.Solution,
		ImplementationDate: req.ImplementationDate,
		RiskLevel:          req.RiskLevel,
		RollbackPlan:       req.RollbackPlan,
	})
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}
	httputil.Success(w, http.StatusCreated, map[string]any{
		"change":  result.Change,
		"problem": result.Problem,
	})
}

// ListChanges handles GET /changes.
func (h *Handler) ListChanges(w http.ResponseWriter, r *http.Request) {
	var filter ChangeFilter
	if v := r.URL.Query().Get("status"); v != "" {
		status := domain.ChangeStatus(v)
		filter.Status = &status
	}
	if v := r.URL.Query().Get("ci_id"); v != "" {
		filter.CIID = &v
	}

	changes, err := h.service.ListChanges(r.Context(), filter)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}
	httputil.Success(w, http.StatusOK, changes)
}

// GetChange handles GET /changes/{id}.
func (h *Handler) GetChange(w http.ResponseWriter, r *http.Request) {
	change, err := h.service.GetChange(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}
	httputil.Success(w, http.StatusOK, change)
}

// UpdateChangeStatus handles PATCH /changes/{id}/status.
func (h *Handler) UpdateChangeStatus(w http.ResponseWriter, r *http.Request) {
	var req UpdateChangeStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	change, err := h.service.UpdateChangeStatus(r.Context(), chi.URLParam(r, "id"), domain.ChangeStatus(req.Status))
	if err != nil {
		h.handleCloseError(w, r, err)
		return
	}
	httputil.Success(w, http.StatusOK, change)
}

// CloseChange handles POST /changes/{id}/close.
func (h *Handler) CloseChange(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.CloseChange(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.handleCloseError(w, r, err)
		return
	}
	httputil.Success(w, http.StatusOK, result)
}

// handleCloseError reports partially applied closures with the records
// that were and were not closed.
func (h *Handler) handleCloseError(w http.ResponseWriter, r *http.Request, err error) {
	var partial *automation.PartialCompletionError
	if !errors.As(err, &partial) {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	failed := make(map[string]string, len(partial.Failed))
	for id, ferr := range partial.Failed {
		failed[id] = ferr.Error()
	}
	httputil.ErrorWithDetails(w, http.StatusMultiStatus, "change closed but some linked records were not", map[string]any{
		"succeeded": partial.Succeeded,
		"failed":    failed,
	})
}

// RunAutomation handles POST /automation/run.
func (h *Handler) RunAutomation(w http.ResponseWriter, r *http.Request) {
	report, err := h.service.RunAutomation(r.Context())
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}
	httputil.Success(w, http.StatusOK, report)
}

// GetViolations handles GET /automation/violations.
func (h *Handler) GetViolations(w http.ResponseWriter, r *http.Request) {
	violations, err := h.service.CheckViolations(r.Context())
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}
	httputil.Success(w, http.StatusOK, violations)
}

// GetPatterns handles GET /automation/patterns.
func (h *Handler) GetPatterns(w http.ResponseWriter, r *http.Request) {
	patterns, err := h.service.FindPatterns(r.Context())
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}
	httputil.Success(w, http.StatusOK, patterns)
}
