package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/voxnote/voxnote-api/internal/api/shared"
	"github.com/voxnote/voxnote-api/internal/monitor"
)

// ProcessingResetter clears stuck processing locks. Implemented by the
// worker orchestrator.
type ProcessingResetter interface {
	ResetStuckProcessing(ctx context.Context, force bool) (int, error)
}

// BreakerAdmin exposes the administrative reset of the circuit breaker.
type BreakerAdmin interface {
	Reset(ctx context.Context)
}

// MonitorService serves the observability aggregates. Implemented by
// monitor.Monitor.
type MonitorService interface {
	SystemLoad(ctx context.Context) (*monitor.SystemLoad, error)
	PerformanceInsights(ctx context.Context, userID *uuid.UUID, days int) (*monitor.PerformanceInsights, error)
	CostSummary(ctx context.Context, userID *uuid.UUID, days int) (*monitor.CostSummary, error)
}

// AdminHandler serves the administrative surface: processing resets and
// the action dispatch endpoint.
type AdminHandler struct {
	resetter ProcessingResetter
	breaker  BreakerAdmin
	monitor  MonitorService
	logger   *slog.Logger
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(resetter ProcessingResetter, breaker BreakerAdmin, monitorSvc MonitorService, log *slog.Logger) *AdminHandler {
	if log == nil {
		log = slog.Default()
	}
	return &AdminHandler{
		resetter: resetter,
		breaker:  breaker,
		monitor:  monitorSvc,
		logger:   log.With(slog.String("component", "admin_handler")),
	}
}

// ResetProcessing handles POST /api/admin/reset-processing.
// An empty body means a normal (stale-only) reset.
func (h *AdminHandler) ResetProcessing(w http.ResponseWriter, r *http.Request) {
	var req ResetProcessingRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := shared.DecodeJSON(r, &req); err != nil {
			shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
			return
		}
	}

	count, err := h.resetter.ResetStuckProcessing(r.Context(), req.ForceReset)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusInternalServerError,
			"Failed to reset processing locks", err)
		return
	}

	h.logger.Info("processing locks reset via admin endpoint",
		slog.Int("count", count),
		slog.Bool("force", req.ForceReset))

	shared.RespondWithJSON(w, r, http.StatusOK, ResetProcessingResponse{
		Success:    true,
		Reset:      count,
		ForceReset: req.ForceReset,
	})
}

// Dispatch handles POST /api/admin/dispatch. The action field selects
// which administrative operation runs; responses are keyed by action.
func (h *AdminHandler) Dispatch(w http.ResponseWriter, r *http.Request) {
	var req DispatchRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}
	if err := shared.ValidateRequest(req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid dispatch action")
		return
	}

	days := req.Days
	if days == 0 {
		days = 7
	}

	// Dispatch runs under the service credential, so aggregates are
	// system-wide; SystemWide is accepted for forward compatibility.
	resp := DispatchResponse{Action: req.Action}

	switch req.Action {
	case ActionHealthMetrics:
		load, err := h.monitor.SystemLoad(r.Context())
		if err != nil {
			shared.RespondWithErrorAndLog(w, r, http.StatusInternalServerError,
				"Failed to collect health metrics", err)
			return
		}
		resp.HealthMetrics = load

	case ActionPerformanceInsights:
		insights, err := h.monitor.PerformanceInsights(r.Context(), nil, days)
		if err != nil {
			shared.RespondWithErrorAndLog(w, r, http.StatusInternalServerError,
				"Failed to aggregate performance insights", err)
			return
		}
		resp.Insights = insights

	case ActionCostSummary:
		summary, err := h.monitor.CostSummary(r.Context(), nil, days)
		if err != nil {
			shared.RespondWithErrorAndLog(w, r, http.StatusInternalServerError,
				"Failed to aggregate cost summary", err)
			return
		}
		resp.CostSummary = summary

	case ActionResetBreaker:
		h.breaker.Reset(r.Context())
		h.logger.Warn("circuit breaker reset via admin dispatch")
		resp.BreakerReset = true
	}

	shared.RespondWithJSON(w, r, http.StatusOK, resp)
}
