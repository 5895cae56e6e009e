// Package http provides the HTTP API for usage reports and bumps.
package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/mapmeter/mapmeter/app"
	"github.com/mapmeter/mapmeter/ports"
)

// Handler serves the usage API.
type Handler struct {
	reports *app.ReportService
	ledger  *app.LedgerService
	logger  zerolog.Logger
}

// Config contains dependencies for the handler.
type Config struct {
	Reports *app.ReportService
	Ledger  *app.LedgerService
	Logger  zerolog.Logger
}

// New creates the HTTP handler.
func New(cfg Config) *Handler {
	return &Handler{
		reports: cfg.Reports,
		ledger:  cfg.Ledger,
		logger:  cfg.Logger,
	}
}

// Router builds the service router. metricsPath is empty when Prometheus
// metrics are disabled.
func (h *Handler) Router(metricsPath string) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Route("/api/usage", func(r chi.Router) {
		r.Get("/", h.GetReport)
		r.Get("/local", h.GetLocalSummary)
		r.Get("/events", h.GetEvents)
		r.Post("/bump", h.Bump)
		r.Post("/reset", h.Reset)
	})

	r.Get("/healthz", h.Health)
	if metricsPath != "" {
		r.Handle(metricsPath, promhttp.Handler())
	}

	return r
}

// BumpRequest is the bump mutation body. Reason is informational only and
// lands in the audit ledger.
type BumpRequest struct {
	Service string `json:"service"`
	Amount  int64  `json:"amount"`
	Reason  string `json:"reason,omitempty"`
}

// MessageResponse is a simple confirmation body.
type MessageResponse struct {
	Message string `json:"message"`
}

// ErrorResponse is the error body for all endpoints.
type ErrorResponse struct {
	Error string `json:"error"`
}

// GetReport handles GET /api/usage: the remote-derived reconciliation
// report for the current month.
func (h *Handler) GetReport(w http.ResponseWriter, r *http.Request) {
	report, err := h.reports.Build(r.Context())
	if err != nil {
		if errors.Is(err, app.ErrNotConfigured) {
			h.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.writeError(w, http.StatusBadGateway, fmt.Sprintf("usage report failed: %v", err))
		return
	}
	h.writeJSON(w, http.StatusOK, report)
}

// GetLocalSummary handles GET /api/usage/local: the current month's bump
// ledger reconciled against quotas.
func (h *Handler) GetLocalSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.ledger.Summary(r.Context())
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, fmt.Sprintf("read usage ledger: %v", err))
		return
	}
	h.writeJSON(w, http.StatusOK, summary)
}

// GetEvents handles GET /api/usage/events?limit=N.
func (h *Handler) GetEvents(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			h.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	events, err := h.ledger.Events(r.Context(), limit)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, fmt.Sprintf("read bump events: %v", err))
		return
	}
	if events == nil {
		events = []ports.BumpEvent{}
	}
	h.writeJSON(w, http.StatusOK, events)
}

// Bump handles POST /api/usage/bump.
func (h *Handler) Bump(w http.ResponseWriter, r *http.Request) {
	var req BumpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	event, err := h.ledger.Bump(r.Context(), req.Service, req.Amount, req.Reason)
	if err != nil {
		if errors.Is(err, app.ErrEmptyService) {
			h.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.writeError(w, http.StatusInternalServerError, fmt.Sprintf("record bump: %v", err))
		return
	}

	h.writeJSON(w, http.StatusOK, MessageResponse{
		Message: fmt.Sprintf("bumped %s by %d", event.Product, event.Amount),
	})
}

// Reset handles POST /api/usage/reset: clears the current month only.
func (h *Handler) Reset(w http.ResponseWriter, r *http.Request) {
	month, err := h.ledger.Reset(r.Context())
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, fmt.Sprintf("reset usage ledger: %v", err))
		return
	}
	h.writeJSON(w, http.StatusOK, MessageResponse{
		Message: fmt.Sprintf("cleared usage for %s", month),
	})
}

// Health handles GET /healthz.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error().Err(err).Msg("write response")
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, msg string) {
	if status >= 500 {
		h.logger.Error().Int("status", status).Str("error", msg).Msg("request failed")
	}
	h.writeJSON(w, status, ErrorResponse{Error: msg})
}
