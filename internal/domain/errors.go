package domain

import "errors"

// Common validation errors for Note.
var (
	ErrEmptyNoteID         = errors.New("note ID cannot be empty")
	ErrEmptyNoteUserID     = errors.New("note user ID cannot be empty")
	ErrEmptyAudioObjectKey = errors.New("note audio object key cannot be empty")
	ErrNegativeAudioSize   = errors.New("note audio size cannot be negative")
	ErrNegativeAttempts    = errors.New("note processing attempts cannot be negative")
	ErrEmptyRecordedAt     = errors.New("note recorded-at timestamp cannot be empty")
	ErrIncompleteResults   = errors.New("note cannot be marked processed without transcription and analysis")
)
