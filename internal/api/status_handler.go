package api

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/voxnote/voxnote-api/internal/api/middleware"
	"github.com/voxnote/voxnote-api/internal/api/shared"
	"github.com/voxnote/voxnote-api/internal/store"
)

// UserStatsReader summarizes one user's notes by derived state.
// Implemented by store.NoteStore.
type UserStatsReader interface {
	UserStats(ctx context.Context, userID uuid.UUID, lockTimeout time.Duration, maxAttempts int) (*store.UserNoteStats, error)
}

// StatusHandler serves the pipeline status endpoint.
type StatusHandler struct {
	stats       UserStatsReader
	monitor     MonitorService
	lockTimeout time.Duration
	maxAttempts int
	logger      *slog.Logger
}

// NewStatusHandler creates a new StatusHandler.
func NewStatusHandler(stats UserStatsReader, monitorSvc MonitorService, lockTimeout time.Duration, maxAttempts int, log *slog.Logger) *StatusHandler {
	if log == nil {
		log = slog.Default()
	}
	return &StatusHandler{
		stats:       stats,
		monitor:     monitorSvc,
		lockTimeout: lockTimeout,
		maxAttempts: maxAttempts,
		logger:      log.With(slog.String("component", "status_handler")),
	}
}

// GetStatus handles GET /api/status. User-token requests get their own
// stats plus system load; service-credential requests get system-wide
// scope. The insights and cost blocks are included on request.
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var scopeUser *uuid.UUID
	if !shared.HasServiceScope(ctx) {
		userID, ok := middleware.GetUserID(r)
		if !ok {
			shared.RespondWithError(w, r, http.StatusUnauthorized, "Authentication required")
			return
		}
		scopeUser = &userID
	}

	resp := StatusResponse{}

	if scopeUser != nil {
		stats, err := h.stats.UserStats(ctx, *scopeUser, h.lockTimeout, h.maxAttempts)
		if err != nil {
			shared.RespondWithErrorAndLog(w, r, http.StatusInternalServerError,
				"Failed to load note statistics", err)
			return
		}
		resp.UserStats = stats
	}

	load, err := h.monitor.SystemLoad(ctx)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusInternalServerError,
			"Failed to load system status", err)
		return
	}
	resp.SystemLoad = load

	days := parseDays(r.URL.Query().Get("days"))

	if r.URL.Query().Get("insights") == "true" {
		insights, err := h.monitor.PerformanceInsights(ctx, scopeUser, days)
		if err != nil {
			shared.RespondWithErrorAndLog(w, r, http.StatusInternalServerError,
				"Failed to aggregate insights", err)
			return
		}
		resp.Insights = insights
	}

	if r.URL.Query().Get("cost") == "true" {
		cost, err := h.monitor.CostSummary(ctx, scopeUser, days)
		if err != nil {
			shared.RespondWithErrorAndLog(w, r, http.StatusInternalServerError,
				"Failed to aggregate cost summary", err)
			return
		}
		resp.Cost = cost
	}

	shared.RespondWithJSON(w, r, http.StatusOK, resp)
}

// parseDays interprets the days query parameter, defaulting to 7 and
// clamping to a year.
func parseDays(raw string) int {
	if raw == "" {
		return 7
	}
	days, err := strconv.Atoi(raw)
	if err != nil || days < 1 {
		return 7
	}
	if days > 365 {
		return 365
	}
	return days
}
