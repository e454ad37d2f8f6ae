package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/voxnote/voxnote-api/internal/domain"
)

// CandidateParams controls candidate selection for the processing pipeline.
type CandidateParams struct {
	// Owner restricts selection to one user's notes when non-nil.
	Owner *uuid.UUID

	// Limit caps the batch size; values <= 0 fall back to the store default.
	Limit int

	// LockTimeout determines when a held lock counts as stale and the
	// note becomes re-selectable.
	LockTimeout time.Duration

	// MaxAttempts excludes notes whose retry budget is exhausted.
	MaxAttempts int
}

// NoteError is one recent processing failure, surfaced by the monitor.
type NoteError struct {
	NoteID  uuid.UUID `json:"note_id"`
	UserID  uuid.UUID `json:"user_id"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// UserNoteStats summarizes one user's notes by derived processing state.
type UserNoteStats struct {
	Total      int `json:"total"`
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
}

// PipelineInsights aggregates processing outcomes over a day range.
type PipelineInsights struct {
	TotalProcessed    int     `json:"total_processed"`
	TotalFailed       int     `json:"total_failed"`
	CompletionRate    float64 `json:"completion_rate"`
	AvgAttempts       float64 `json:"avg_attempts"`
	AvgLatencySeconds float64 `json:"avg_latency_seconds"`
}

// CostUsage aggregates billable activity over a day range. Pricing is
// applied by the monitor from configured rates.
type CostUsage struct {
	TranscribedSeconds float64 `json:"transcribed_seconds"`
	AnalysisCalls      int     `json:"analysis_calls"`
}

// NoteStore defines the interface for note persistence and the
// store-backed coordination primitives the pipeline depends on.
// Version: 1.0
type NoteStore interface {
	// Create saves a new note to the store.
	// It handles domain validation internally.
	Create(ctx context.Context, note *domain.Note) error

	// GetByID retrieves a note by its unique ID.
	// Returns ErrNoteNotFound if the note does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Note, error)

	// AcquireLock atomically claims the note for processing. It succeeds
	// only when the note is unprocessed and either unlocked or holding a
	// lock older than lockTimeout. On success it sets the lock timestamp
	// and increments the attempt counter in the same statement.
	// A store error means the claim did not happen: callers must treat
	// (false, err) as "not acquired", never as silent ownership.
	AcquireLock(ctx context.Context, id uuid.UUID, lockTimeout time.Duration) (bool, error)

	// ReleaseLock unconditionally clears the note's lock timestamp.
	// Releasing an unlocked or missing note is a no-op.
	ReleaseLock(ctx context.Context, id uuid.UUID) error

	// SelectCandidates returns unprocessed notes eligible for processing,
	// oldest recorded first (ties broken by id for determinism).
	// Purely a read; claiming happens through AcquireLock.
	SelectCandidates(ctx context.Context, params CandidateParams) ([]*domain.Note, error)

	// SaveTranscription persists the transcription text for a note.
	// Returns ErrNoteNotFound if the note does not exist.
	SaveTranscription(ctx context.Context, id uuid.UUID, transcription string) error

	// MarkCompleted persists the analysis result and sets processed_at,
	// releasing the lock, but only if the note is not already processed.
	// Returns false (and no error) when another worker completed it first.
	MarkCompleted(ctx context.Context, id uuid.UUID, analysis *domain.NoteAnalysis) (bool, error)

	// RecordFailure persists the error message and last-error timestamp
	// and releases the lock, leaving processed_at untouched.
	RecordFailure(ctx context.Context, id uuid.UUID, message string) error

	// ResetStaleLocks clears locks older than olderThan and returns the
	// number of notes affected.
	ResetStaleLocks(ctx context.Context, olderThan time.Duration) (int, error)

	// ForceResetLocks clears every held lock regardless of age, also
	// clearing error_message/last_error_at and the attempt counter so the
	// affected notes are immediately eligible for retry.
	// Returns the number of notes affected.
	ForceResetLocks(ctx context.Context) (int, error)

	// CountActive returns the number of notes holding a non-stale lock.
	CountActive(ctx context.Context, lockTimeout time.Duration) (int, error)

	// AverageLockAge returns the mean age of non-stale locks, a proxy for
	// queue time. Returns zero when no notes are active.
	AverageLockAge(ctx context.Context, lockTimeout time.Duration) (time.Duration, error)

	// RecentErrors returns the most recent processing failures, newest first.
	RecentErrors(ctx context.Context, limit int) ([]NoteError, error)

	// UserStats summarizes one user's notes by derived state.
	UserStats(ctx context.Context, userID uuid.UUID, lockTimeout time.Duration, maxAttempts int) (*UserNoteStats, error)

	// Insights aggregates outcomes since the given time, for one user or
	// system-wide when userID is nil.
	Insights(ctx context.Context, userID *uuid.UUID, since time.Time) (*PipelineInsights, error)

	// CostUsage aggregates billable activity since the given time, for one
	// user or system-wide when userID is nil.
	CostUsage(ctx context.Context, userID *uuid.UUID, since time.Time) (*CostUsage, error)

	// WithTx returns a new NoteStore instance that uses the provided
	// transaction. The transaction is created and managed by the caller.
	WithTx(tx *sql.Tx) NoteStore
}
