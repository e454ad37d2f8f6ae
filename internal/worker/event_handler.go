package worker

import (
	"context"
	"errors"
	"log/slog"

	"github.com/voxnote/voxnote-api/internal/events"
)

// UploadEventHandler bridges upload notifications to the runner: a
// freshly uploaded note nudges the poll loop instead of waiting out the
// poll interval.
type UploadEventHandler struct {
	runner *Runner
	logger *slog.Logger
}

// NewUploadEventHandler creates an UploadEventHandler.
func NewUploadEventHandler(runner *Runner, log *slog.Logger) (*UploadEventHandler, error) {
	if runner == nil {
		return nil, errors.New("runner cannot be nil")
	}
	if log == nil {
		log = slog.Default()
	}
	return &UploadEventHandler{
		runner: runner,
		logger: log.With(slog.String("component", "upload_event_handler")),
	}, nil
}

var _ events.EventHandler = (*UploadEventHandler)(nil)

// HandleEvent implements events.EventHandler. Unknown event types are
// ignored so additional event kinds can flow through the same emitter.
func (h *UploadEventHandler) HandleEvent(ctx context.Context, event *events.NoteEvent) error {
	if event.Type != events.EventNoteUploaded {
		h.logger.Debug("ignoring event", slog.String("event_type", event.Type))
		return nil
	}

	var payload events.NoteUploadedPayload
	if err := event.UnmarshalPayload(&payload); err != nil {
		h.logger.Warn("malformed upload event payload, nudging anyway",
			slog.String("event_id", event.ID.String()),
			slog.String("error", err.Error()))
	} else {
		h.logger.Debug("note uploaded, nudging poll loop",
			slog.String("note_id", payload.NoteID.String()))
	}

	h.runner.Nudge()
	return nil
}
