package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/voxnote/voxnote-api/internal/api/shared"
	"github.com/voxnote/voxnote-api/internal/events"
)

// EventsHandler ingests note notifications from the upload service and
// forwards them to the in-process emitter, where registered handlers
// nudge the poll loop.
type EventsHandler struct {
	emitter events.EventEmitter
	logger  *slog.Logger
}

// NewEventsHandler creates a new EventsHandler.
func NewEventsHandler(emitter events.EventEmitter, log *slog.Logger) *EventsHandler {
	if log == nil {
		log = slog.Default()
	}
	return &EventsHandler{
		emitter: emitter,
		logger:  log.With(slog.String("component", "events_handler")),
	}
}

// PostEvent handles POST /api/events.
func (h *EventsHandler) PostEvent(w http.ResponseWriter, r *http.Request) {
	var req NoteEventRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}
	if req.Type == "" {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Event type is required")
		return
	}

	event := &events.NoteEvent{
		ID:        uuid.New(),
		Type:      req.Type,
		Payload:   req.Payload,
		CreatedAt: time.Now().UTC(),
	}

	if err := h.emitter.EmitEvent(r.Context(), event); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusInternalServerError,
			"Failed to publish event", err)
		return
	}

	h.logger.Debug("event accepted",
		slog.String("event_id", event.ID.String()),
		slog.String("event_type", event.Type))

	shared.RespondWithJSON(w, r, http.StatusAccepted, NoteEventResponse{
		Accepted: true,
		EventID:  event.ID,
	})
}
