package http

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	apperrors "ineqmx/internal/errors"
	"ineqmx/internal/infrastructure"
	"ineqmx/internal/operations"
)

// EventOperationUpdate is broadcast when a job is queued or cancelled over HTTP
const EventOperationUpdate = "operation_update"

// OperationsHandler handles operation-related HTTP requests
type OperationsHandler struct {
	service OperationService
	hub     Hub
	errors  *apperrors.ErrorHandler
	logger  *slog.Logger
}

// NewOperationsHandler creates a new operations handler
func NewOperationsHandler(service OperationService, hub Hub, errorHandler *apperrors.ErrorHandler, logger *slog.Logger) *OperationsHandler {
	if service == nil {
		panic("service cannot be nil")
	}
	if logger == nil {
		logger = infrastructure.GetLogger()
	}
	if errorHandler == nil {
		errorHandler = apperrors.NewErrorHandler(logger, false)
	}
	return &OperationsHandler{
		service: service,
		hub:     hub,
		errors:  errorHandler,
		logger:  logger.With(slog.String("handler", "operations")),
	}
}

// StartOperationRequest is the body of POST /api/operations
type StartOperationRequest struct {
	operations.OperationRequest
}

// Bind normalizes the request after decoding
func (s *StartOperationRequest) Bind(r *http.Request) error {
	s.ID = ""
	s.Mode = strings.ToLower(strings.TrimSpace(s.Mode))
	steps := make([]string, 0, len(s.Steps))
	for _, step := range s.Steps {
		step = strings.TrimSpace(step)
		if step != "" && !slices.Contains(steps, step) {
			steps = append(steps, step)
		}
	}
	s.Steps = steps
	for i, level := range s.Levels {
		s.Levels[i] = strings.ToLower(strings.TrimSpace(level))
	}
	return nil
}

// Routes returns a chi router for operations endpoints
func (h *OperationsHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/types", h.GetOperationTypes)
	r.Get("/metrics", h.GetMetrics)
	r.Post("/", h.StartOperation)
	r.Get("/", h.ListJobs)
	r.Get("/{id}", h.GetJob)
	r.Get("/{id}/manifest", h.GetManifest)
	r.Delete("/{id}", h.CancelJob)
	return r
}

// StartOperation handles POST /api/operations. An empty body runs the full pipeline.
func (h *OperationsHandler) StartOperation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	req := &StartOperationRequest{}
	if err := render.DecodeJSON(r.Body, req); err != nil && !errors.Is(err, io.EOF) {
		h.errors.HandleError(w, r, apperrors.ErrInvalidBody)
		return
	}
	if err := req.Bind(r); err != nil {
		h.errors.HandleError(w, r, apperrors.ErrValidation("body", err.Error()))
		return
	}

	job, err := h.service.StartOperation(ctx, req.OperationRequest)
	if err != nil {
		h.errors.HandleError(w, r, err)
		return
	}

	h.logger.InfoContext(ctx, "operation job enqueued",
		slog.String("job_id", job.ID),
		slog.String("operation_id", job.OperationID),
		slog.String("request_id", middleware.GetReqID(ctx)))

	if h.hub != nil {
		h.hub.BroadcastUpdate(EventOperationUpdate, "queued", string(job.Status), map[string]interface{}{
			"job_id":       job.ID,
			"operation_id": job.OperationID,
			"mode":         job.Request.Mode,
			"steps":        job.Request.Steps,
			"timestamp":    time.Now().UTC(),
		})
	}

	w.Header().Set("Location", "/api/operations/"+job.ID)
	render.Status(r, http.StatusAccepted)
	render.JSON(w, r, map[string]interface{}{
		"job_id":       job.ID,
		"operation_id": job.OperationID,
		"status":       job.Status,
		"message":      "Operation queued for processing",
		"poll_url":     "/api/operations/" + job.ID,
	})
}

// GetJob handles GET /api/operations/{id}
func (h *OperationsHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	job, err := h.service.GetJob(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.errors.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, job)
}

// GetManifest handles GET /api/operations/{id}/manifest
func (h *OperationsHandler) GetManifest(w http.ResponseWriter, r *http.Request) {
	manifest, err := h.service.GetManifest(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.errors.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, manifest)
}

// CancelJob handles DELETE /api/operations/{id}
func (h *OperationsHandler) CancelJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.service.CancelJob(r.Context(), id); err != nil {
		h.errors.HandleError(w, r, err)
		return
	}
	if h.hub != nil {
		h.hub.BroadcastUpdate(EventOperationUpdate, "cancelled", string(operations.JobStatusCancelled), map[string]interface{}{
			"job_id":    id,
			"timestamp": time.Now().UTC(),
		})
	}
	render.Status(r, http.StatusAccepted)
	render.JSON(w, r, map[string]interface{}{
		"job_id":  id,
		"message": "Cancellation requested",
	})
}

// ListJobs handles GET /api/operations?status=&limit=
func (h *OperationsHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 500 {
			h.errors.HandleError(w, r, apperrors.ErrValidation("limit", "must be an integer between 1 and 500"))
			return
		}
		limit = n
	}

	jobs, err := h.service.ListJobs(r.Context(), r.URL.Query().Get("status"), limit)
	if err != nil {
		h.errors.HandleError(w, r, err)
		return
	}
	if jobs == nil {
		jobs = []*operations.Job{}
	}
	render.JSON(w, r, map[string]interface{}{
		"jobs":  jobs,
		"count": len(jobs),
	})
}

// GetOperationTypes handles GET /api/operations/types
func (h *OperationsHandler) GetOperationTypes(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, h.service.GetOperationTypes(r.Context()))
}

// GetMetrics handles GET /api/operations/metrics
func (h *OperationsHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	metrics, err := h.service.GetOperationMetrics(r.Context())
	if err != nil {
		h.errors.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, metrics)
}
