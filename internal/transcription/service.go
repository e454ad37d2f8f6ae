package transcription

import (
	"context"

	"github.com/voxnote/voxnote-api/internal/domain"
)

// AudioClip is one audio artifact handed to the external service.
type AudioClip struct {
	// Data is the raw audio payload.
	Data []byte

	// MIMEType identifies the audio encoding (e.g. "audio/ogg").
	MIMEType string
}

// Service defines the interface to the external AI service that turns
// audio into text and text into structured analysis. It serves as the
// boundary between the pipeline core and the external dependency; the
// circuit breaker wraps calls made through it.
type Service interface {
	// Transcribe converts the audio clip to text.
	// Returns ErrTransientFailure (wrapped) for retryable conditions and
	// the permanent sentinel errors from errors.go otherwise.
	Transcribe(ctx context.Context, clip AudioClip) (string, error)

	// Analyze produces a structured semantic analysis of the transcription.
	// The contextHint carries note metadata (duration, recorded-at) the
	// model may use; it can be empty.
	Analyze(ctx context.Context, transcription string, contextHint string) (*domain.NoteAnalysis, error)
}
