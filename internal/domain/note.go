package domain

import (
	"time"

	"github.com/google/uuid"
)

// ProcessingState describes where a note currently sits in the pipeline,
// derived from its persisted fields rather than stored separately.
type ProcessingState string

// Possible processing states for a note.
const (
	ProcessingStatePending    ProcessingState = "pending"
	ProcessingStateProcessing ProcessingState = "processing"
	ProcessingStateCompleted  ProcessingState = "completed"
	ProcessingStateFailed     ProcessingState = "failed"
)

// NoteAnalysis is the structured result of semantic analysis over a
// note's transcription. It is persisted as JSONB alongside the note.
type NoteAnalysis struct {
	Summary     string   `json:"summary"`
	Sentiment   string   `json:"sentiment,omitempty"`
	Topics      []string `json:"topics,omitempty"`
	ActionItems []string `json:"action_items,omitempty"`
}

// Note represents one uploaded audio artifact plus its processing state.
// Notes are created by the upload service; this subsystem only mutates
// the processing-related fields.
type Note struct {
	ID                  uuid.UUID     `json:"id"`
	UserID              uuid.UUID     `json:"user_id"`
	AudioObjectKey      string        `json:"audio_object_key"`
	AudioSizeBytes      int64         `json:"audio_size_bytes"`
	DurationSeconds     float64       `json:"duration_seconds"`
	RecordedAt          time.Time     `json:"recorded_at"`
	Transcription       *string       `json:"transcription,omitempty"`
	Analysis            *NoteAnalysis `json:"analysis,omitempty"`
	ProcessedAt         *time.Time    `json:"processed_at,omitempty"`
	ProcessingStartedAt *time.Time    `json:"processing_started_at,omitempty"`
	ProcessingAttempts  int           `json:"processing_attempts"`
	ErrorMessage        *string       `json:"error_message,omitempty"`
	LastErrorAt         *time.Time    `json:"last_error_at,omitempty"`
	CreatedAt           time.Time     `json:"created_at"`
	UpdatedAt           time.Time     `json:"updated_at"`
}

// NewNote creates a new Note for the given owner and audio object.
// It generates a new UUID for the note ID and sets creation timestamps.
// Returns an error if validation fails.
func NewNote(userID uuid.UUID, audioObjectKey string, audioSizeBytes int64, durationSeconds float64, recordedAt time.Time) (*Note, error) {
	now := time.Now().UTC()
	note := &Note{
		ID:              uuid.New(),
		UserID:          userID,
		AudioObjectKey:  audioObjectKey,
		AudioSizeBytes:  audioSizeBytes,
		DurationSeconds: durationSeconds,
		RecordedAt:      recordedAt.UTC(),
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := note.Validate(); err != nil {
		return nil, err
	}

	return note, nil
}

// Validate checks if the Note has valid data.
// Returns an error if any field fails validation.
func (n *Note) Validate() error {
	if n.ID == uuid.Nil {
		return ErrEmptyNoteID
	}

	if n.UserID == uuid.Nil {
		return ErrEmptyNoteUserID
	}

	if n.AudioObjectKey == "" {
		return ErrEmptyAudioObjectKey
	}

	if n.AudioSizeBytes < 0 {
		return ErrNegativeAudioSize
	}

	if n.ProcessingAttempts < 0 {
		return ErrNegativeAttempts
	}

	if n.RecordedAt.IsZero() {
		return ErrEmptyRecordedAt
	}

	// processed_at is set only when both results are present.
	if n.ProcessedAt != nil && (n.Transcription == nil || n.Analysis == nil) {
		return ErrIncompleteResults
	}

	return nil
}

// State derives the note's processing state from its persisted fields.
// A held lock younger than lockTimeout means processing; an exhausted
// retry budget without a result means failed.
func (n *Note) State(lockTimeout time.Duration, maxAttempts int) ProcessingState {
	if n.ProcessedAt != nil {
		return ProcessingStateCompleted
	}
	if n.LockedWithin(lockTimeout, time.Now().UTC()) {
		return ProcessingStateProcessing
	}
	if n.ProcessingAttempts >= maxAttempts {
		return ProcessingStateFailed
	}
	return ProcessingStatePending
}

// LockedWithin reports whether the note holds a non-stale lock as of now.
func (n *Note) LockedWithin(lockTimeout time.Duration, now time.Time) bool {
	if n.ProcessingStartedAt == nil {
		return false
	}
	return now.Sub(*n.ProcessingStartedAt) < lockTimeout
}

// LockStale reports whether the note holds a lock older than lockTimeout,
// making it eligible for reclamation.
func (n *Note) LockStale(lockTimeout time.Duration, now time.Time) bool {
	if n.ProcessingStartedAt == nil {
		return false
	}
	return now.Sub(*n.ProcessingStartedAt) >= lockTimeout
}
