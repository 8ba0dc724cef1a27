package http

import (
	"bytes"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"ineqmx/internal/dataset"
	apperrors "ineqmx/internal/errors"
	"ineqmx/internal/inequality"
	"ineqmx/internal/tabular"
)

// TableLayout turns results into the exported column layout of a level
type TableLayout interface {
	Table(results []inequality.Result, level dataset.Level) *tabular.Table
}

// InequalityHandler serves Gini and decile tables
type InequalityHandler struct {
	service InequalityService
	layout  TableLayout
	errors  *apperrors.ErrorHandler
	logger  *slog.Logger
}

// NewInequalityHandler creates a new inequality handler. layout may be nil,
// in which case only JSON is served.
func NewInequalityHandler(service InequalityService, layout TableLayout, errorHandler *apperrors.ErrorHandler, logger *slog.Logger) *InequalityHandler {
	if logger == nil {
		logger = slog.Default()
	}
	if errorHandler == nil {
		errorHandler = apperrors.NewErrorHandler(logger, false)
	}
	return &InequalityHandler{
		service: service,
		layout:  layout,
		errors:  errorHandler,
		logger:  logger.With(slog.String("handler", "inequality")),
	}
}

// Routes returns a chi router for inequality endpoints
func (h *InequalityHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/levels", h.Levels)
	r.Get("/{year}", h.GetResults)
	return r
}

// Levels handles GET /api/inequality/levels
func (h *InequalityHandler) Levels(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, dataset.Levels)
}

// GetResults handles GET /api/inequality/{year}?level=state&format=csv
func (h *InequalityHandler) GetResults(w http.ResponseWriter, r *http.Request) {
	year, err := strconv.Atoi(chi.URLParam(r, "year"))
	if err != nil {
		h.errors.HandleError(w, r, apperrors.ErrValidation("year", "must be a four digit year"))
		return
	}
	level, err := dataset.ParseLevel(r.URL.Query().Get("level"))
	if err != nil {
		h.errors.HandleError(w, r, apperrors.ErrValidation("level", err.Error()))
		return
	}

	format := r.URL.Query().Get("format")
	if format != "" && format != "json" && format != "csv" {
		h.errors.HandleError(w, r, apperrors.ErrValidation("format", "must be json or csv"))
		return
	}
	if format == "csv" && h.layout == nil {
		h.errors.HandleError(w, r, apperrors.ErrCSVUnavailable)
		return
	}

	report, err := h.service.Results(r.Context(), year, level)
	if err != nil {
		h.errors.HandleError(w, r, err)
		return
	}

	if format != "csv" {
		render.JSON(w, r, report)
		return
	}

	var buf bytes.Buffer
	if err := h.layout.Table(report.Results, level).Write(&buf); err != nil {
		h.errors.HandleError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%q", fmt.Sprintf("resultados_%s_enigh_%d.csv", level.Suffix(), year)))
	if _, err := w.Write(buf.Bytes()); err != nil {
		h.logger.WarnContext(r.Context(), "failed to write csv response", slog.String("error", err.Error()))
	}
}
