package transcription

import "errors"

// Common errors returned by the transcription package.
var (
	// ErrTranscriptionFailed is returned when transcription fails for any general reason.
	ErrTranscriptionFailed = errors.New("failed to transcribe audio")

	// ErrAnalysisFailed is returned when semantic analysis fails for any general reason.
	ErrAnalysisFailed = errors.New("failed to analyze transcription")

	// ErrInvalidResponse is returned when the model response cannot be parsed or is malformed.
	ErrInvalidResponse = errors.New("invalid response from language model")

	// ErrContentBlocked is returned when the model blocks the content due to safety filters.
	ErrContentBlocked = errors.New("content blocked by language model safety filters")

	// ErrTransientFailure is returned for temporary errors that might resolve on retry.
	ErrTransientFailure = errors.New("transient error calling language model")

	// ErrServiceUnavailable is returned when the circuit breaker short-circuits
	// a call without attempting the external service.
	ErrServiceUnavailable = errors.New("transcription service unavailable")

	// ErrInvalidConfig is returned when the service configuration is invalid.
	ErrInvalidConfig = errors.New("invalid transcription service configuration")

	// ErrEmptyAudio is returned when the audio clip has no data.
	ErrEmptyAudio = errors.New("audio clip cannot be empty")

	// ErrEmptyTranscription is returned when analysis is requested for empty text.
	ErrEmptyTranscription = errors.New("transcription text cannot be empty")
)
