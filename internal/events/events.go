package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event types emitted by upload collaborators.
const (
	// EventNoteUploaded signals that a new note's audio finished
	// uploading and is ready for processing.
	EventNoteUploaded = "note_uploaded"
)

// NoteEvent represents a notification about a note. The pipeline
// consumes these as poll nudges; the upload path lives in a separate
// service and only needs this shape to reach us.
type NoteEvent struct {
	// ID is a unique identifier for this event
	ID uuid.UUID `json:"id"`

	// Type indicates what happened to the note
	Type string `json:"type"`

	// Payload contains the event-specific data serialized as JSON
	Payload json.RawMessage `json:"payload"`

	// CreatedAt is the timestamp when the event was created
	CreatedAt time.Time `json:"created_at"`
}

// NoteUploadedPayload is the payload carried by EventNoteUploaded.
type NoteUploadedPayload struct {
	NoteID uuid.UUID `json:"note_id"`
	UserID uuid.UUID `json:"user_id"`
}

// UnmarshalPayload decodes the event payload into the provided structure.
func (e *NoteEvent) UnmarshalPayload(v interface{}) error {
	return json.Unmarshal(e.Payload, v)
}

// NewNoteEvent creates a new NoteEvent with the specified type and payload.
func NewNoteEvent(eventType string, payload interface{}) (*NoteEvent, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	return &NoteEvent{
		ID:        uuid.New(),
		Type:      eventType,
		Payload:   payloadBytes,
		CreatedAt: time.Now(),
	}, nil
}

// EventHandler defines an interface for components that can handle events.
type EventHandler interface {
	// HandleEvent processes the given event within the provided context.
	// Returns an error if the event cannot be handled successfully.
	HandleEvent(ctx context.Context, event *NoteEvent) error
}

// EventEmitter defines an interface for components that can emit events.
// This allows the upload surface to publish events without direct
// knowledge of the pipeline.
type EventEmitter interface {
	// EmitEvent publishes the given event to all registered handlers.
	// Returns an error if the event cannot be emitted.
	EmitEvent(ctx context.Context, event *NoteEvent) error
}
