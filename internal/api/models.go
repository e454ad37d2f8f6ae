package api

import (
	"encoding/json"

	"github.com/google/uuid"
	"github.com/voxnote/voxnote-api/internal/monitor"
	"github.com/voxnote/voxnote-api/internal/store"
)

// Dispatch actions accepted by the admin dispatch endpoint.
const (
	ActionHealthMetrics       = "health_metrics"
	ActionPerformanceInsights = "performance_insights"
	ActionCostSummary         = "cost_summary"
	ActionResetBreaker        = "reset_breaker"
)

// ResetProcessingRequest is the request body for the processing reset endpoint.
type ResetProcessingRequest struct {
	ForceReset bool `json:"force_reset"`
}

// ResetProcessingResponse is the response body for the processing reset endpoint.
type ResetProcessingResponse struct {
	Success    bool `json:"success"`
	Reset      int  `json:"reset"`
	ForceReset bool `json:"force_reset"`
}

// DispatchRequest is the request body for the admin dispatch endpoint.
type DispatchRequest struct {
	Action     string `json:"action"     validate:"required,oneof=health_metrics performance_insights cost_summary reset_breaker"`
	SystemWide bool   `json:"system_wide"`
	Days       int    `json:"days"       validate:"omitempty,min=1,max=365"`
}

// DispatchResponse is the action-keyed response body for the dispatch endpoint.
type DispatchResponse struct {
	Action        string                       `json:"action"`
	HealthMetrics *monitor.SystemLoad          `json:"health_metrics,omitempty"`
	Insights      *monitor.PerformanceInsights `json:"performance_insights,omitempty"`
	CostSummary   *monitor.CostSummary         `json:"cost_summary,omitempty"`
	BreakerReset  bool                         `json:"breaker_reset,omitempty"`
}

// NoteEventRequest is the request body for the event ingestion endpoint.
// Payload stays opaque here; handlers registered on the emitter decode
// the shapes they understand.
type NoteEventRequest struct {
	Type    string          `json:"type"    validate:"required"`
	Payload json.RawMessage `json:"payload"`
}

// NoteEventResponse acknowledges an accepted event.
type NoteEventResponse struct {
	Accepted bool      `json:"accepted"`
	EventID  uuid.UUID `json:"event_id"`
}

// StatusResponse is the response body for the status endpoint.
type StatusResponse struct {
	UserStats  *store.UserNoteStats         `json:"user_stats,omitempty"`
	SystemLoad *monitor.SystemLoad          `json:"system_load"`
	Insights   *monitor.PerformanceInsights `json:"insights,omitempty"`
	Cost       *monitor.CostSummary         `json:"cost,omitempty"`
}

// HealthResponse is the response body for the health endpoint.
type HealthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database"`
}
