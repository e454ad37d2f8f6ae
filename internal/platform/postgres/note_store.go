package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/voxnote/voxnote-api/internal/domain"
	"github.com/voxnote/voxnote-api/internal/platform/logger"
	"github.com/voxnote/voxnote-api/internal/store"
)

// defaultCandidateLimit bounds SelectCandidates when the caller passes
// a non-positive limit.
const defaultCandidateLimit = 10

// PostgresNoteStore implements the store.NoteStore interface
// using a PostgreSQL database as the storage backend.
type PostgresNoteStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresNoteStore creates a new PostgreSQL implementation of the
// NoteStore interface. It accepts a database connection or transaction
// that should be initialized and managed by the caller.
// If logger is nil, a default logger will be used.
func NewPostgresNoteStore(db store.DBTX, logger *slog.Logger) *PostgresNoteStore {
	if db == nil {
		panic("db cannot be nil")
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &PostgresNoteStore{
		db:     db,
		logger: logger.With(slog.String("component", "note_store")),
	}
}

// Ensure PostgresNoteStore implements store.NoteStore interface
var _ store.NoteStore = (*PostgresNoteStore)(nil)

// WithTx returns a new NoteStore that runs on the provided transaction.
func (s *PostgresNoteStore) WithTx(tx *sql.Tx) store.NoteStore {
	return &PostgresNoteStore{
		db:     tx,
		logger: s.logger,
	}
}

// noteColumns is the canonical column list scanned by scanNote.
const noteColumns = `id, user_id, audio_object_key, audio_size_bytes, duration_seconds,
	recorded_at, transcription, analysis, processed_at, processing_started_at,
	processing_attempts, error_message, last_error_at, created_at, updated_at`

// Create implements store.NoteStore.Create
// It saves a new note to the database, handling domain validation.
// Returns store.ErrDuplicate if a note with the same ID already exists.
func (s *PostgresNoteStore) Create(ctx context.Context, note *domain.Note) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := note.Validate(); err != nil {
		log.Warn("note validation failed during create",
			slog.String("error", err.Error()),
			slog.String("note_id", note.ID.String()))
		return err
	}

	analysisJSON, err := marshalAnalysis(note.Analysis)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO notes (id, user_id, audio_object_key, audio_size_bytes, duration_seconds,
			recorded_at, transcription, analysis, processed_at, processing_started_at,
			processing_attempts, error_message, last_error_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`
	_, err = s.db.ExecContext(
		ctx,
		query,
		note.ID,
		note.UserID,
		note.AudioObjectKey,
		note.AudioSizeBytes,
		note.DurationSeconds,
		note.RecordedAt,
		note.Transcription,
		analysisJSON,
		note.ProcessedAt,
		note.ProcessingStartedAt,
		note.ProcessingAttempts,
		note.ErrorMessage,
		note.LastErrorAt,
		note.CreatedAt,
		note.UpdatedAt,
	)

	if err != nil {
		if isUniqueViolation(err) {
			log.Warn("duplicate note ID during create",
				slog.String("note_id", note.ID.String()))
			return fmt.Errorf("%w: note with ID %s", store.ErrDuplicate, note.ID)
		}
		if isForeignKeyViolation(err) {
			log.Warn("foreign key violation during note creation",
				slog.String("error", err.Error()),
				slog.String("note_id", note.ID.String()),
				slog.String("user_id", note.UserID.String()))
			return fmt.Errorf("%w: user with ID %s not found",
				store.ErrInvalidEntity, note.UserID)
		}

		log.Error("failed to create note",
			slog.String("error", err.Error()),
			slog.String("note_id", note.ID.String()),
			slog.String("user_id", note.UserID.String()))
		return err
	}

	log.Info("note created successfully",
		slog.String("note_id", note.ID.String()),
		slog.String("user_id", note.UserID.String()))
	return nil
}

// GetByID implements store.NoteStore.GetByID
// Returns store.ErrNoteNotFound if the note does not exist.
func (s *PostgresNoteStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Note, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `SELECT ` + noteColumns + ` FROM notes WHERE id = $1`

	note, err := scanNote(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			log.Debug("note not found", slog.String("note_id", id.String()))
			return nil, store.ErrNoteNotFound
		}
		log.Error("failed to get note by ID",
			slog.String("error", err.Error()),
			slog.String("note_id", id.String()))
		return nil, err
	}

	return note, nil
}

// AcquireLock implements store.NoteStore.AcquireLock.
// The claim is a single conditional UPDATE so that two concurrent
// callers can never both succeed for the same note: the row predicate
// and the lock write happen atomically on the database side.
// A store error fails closed: the caller must not assume ownership.
func (s *PostgresNoteStore) AcquireLock(ctx context.Context, id uuid.UUID, lockTimeout time.Duration) (bool, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	now := time.Now().UTC()
	staleBefore := now.Add(-lockTimeout)

	query := `
		UPDATE notes
		SET processing_started_at = $2,
			processing_attempts = processing_attempts + 1,
			updated_at = $2
		WHERE id = $1
			AND processed_at IS NULL
			AND (processing_started_at IS NULL OR processing_started_at < $3)
	`

	result, err := s.db.ExecContext(ctx, query, id, now, staleBefore)
	if err != nil {
		log.Error("failed to acquire processing lock",
			slog.String("error", err.Error()),
			slog.String("note_id", id.String()))
		return false, err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		log.Error("failed to get rows affected for lock acquire",
			slog.String("error", err.Error()),
			slog.String("note_id", id.String()))
		return false, err
	}

	acquired := rowsAffected == 1
	if acquired {
		log.Debug("processing lock acquired",
			slog.String("note_id", id.String()))
	}
	return acquired, nil
}

// ReleaseLock implements store.NoteStore.ReleaseLock.
// Idempotent: releasing an unlocked or missing note is a no-op.
func (s *PostgresNoteStore) ReleaseLock(ctx context.Context, id uuid.UUID) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		UPDATE notes
		SET processing_started_at = NULL,
			updated_at = $2
		WHERE id = $1 AND processing_started_at IS NOT NULL
	`

	if _, err := s.db.ExecContext(ctx, query, id, time.Now().UTC()); err != nil {
		log.Error("failed to release processing lock",
			slog.String("error", err.Error()),
			slog.String("note_id", id.String()))
		return err
	}

	return nil
}

// SelectCandidates implements store.NoteStore.SelectCandidates.
// Ordering is recorded_at ascending with id as a deterministic
// tie-break, so the oldest notes are processed first.
func (s *PostgresNoteStore) SelectCandidates(ctx context.Context, params store.CandidateParams) ([]*domain.Note, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	limit := params.Limit
	if limit <= 0 {
		limit = defaultCandidateLimit
	}

	staleBefore := time.Now().UTC().Add(-params.LockTimeout)

	query := `SELECT ` + noteColumns + `
		FROM notes
		WHERE processed_at IS NULL
			AND (processing_started_at IS NULL OR processing_started_at < $1)
			AND processing_attempts < $2
	`
	args := []any{staleBefore, params.MaxAttempts}

	if params.Owner != nil {
		args = append(args, *params.Owner)
		query += ` AND user_id = $` + strconv.Itoa(len(args))
	}

	args = append(args, limit)
	query += ` ORDER BY recorded_at ASC, id ASC LIMIT $` + strconv.Itoa(len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		log.Error("failed to query processing candidates",
			slog.String("error", err.Error()))
		return nil, err
	}
	defer func() {
		if err := rows.Close(); err != nil {
			log.Error("failed to close rows", slog.String("error", err.Error()))
		}
	}()

	notes := []*domain.Note{}
	for rows.Next() {
		note, err := scanNote(rows)
		if err != nil {
			log.Error("failed to scan candidate row",
				slog.String("error", err.Error()))
			return nil, err
		}
		notes = append(notes, note)
	}

	if err := rows.Err(); err != nil {
		log.Error("error after scanning candidate rows",
			slog.String("error", err.Error()))
		return nil, err
	}

	log.Debug("selected processing candidates",
		slog.Int("count", len(notes)))
	return notes, nil
}

// SaveTranscription implements store.NoteStore.SaveTranscription.
// Returns store.ErrNoteNotFound if the note does not exist.
func (s *PostgresNoteStore) SaveTranscription(ctx context.Context, id uuid.UUID, transcription string) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		UPDATE notes
		SET transcription = $2, updated_at = $3
		WHERE id = $1
	`

	result, err := s.db.ExecContext(ctx, query, id, transcription, time.Now().UTC())
	if err != nil {
		log.Error("failed to save transcription",
			slog.String("error", err.Error()),
			slog.String("note_id", id.String()))
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return store.ErrNoteNotFound
	}

	log.Debug("transcription saved",
		slog.String("note_id", id.String()),
		slog.Int("length", len(transcription)))
	return nil
}

// MarkCompleted implements store.NoteStore.MarkCompleted.
// The update is conditioned on processed_at IS NULL, making the final
// persist idempotent: when a second worker reclaimed an expired lock
// and finished first, this returns (false, nil) and the caller treats
// the note as already done.
func (s *PostgresNoteStore) MarkCompleted(ctx context.Context, id uuid.UUID, analysis *domain.NoteAnalysis) (bool, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	analysisJSON, err := marshalAnalysis(analysis)
	if err != nil {
		return false, err
	}

	now := time.Now().UTC()
	query := `
		UPDATE notes
		SET analysis = $2,
			processed_at = $3,
			processing_started_at = NULL,
			error_message = NULL,
			last_error_at = NULL,
			updated_at = $3
		WHERE id = $1 AND processed_at IS NULL
	`

	result, err := s.db.ExecContext(ctx, query, id, analysisJSON, now)
	if err != nil {
		log.Error("failed to mark note completed",
			slog.String("error", err.Error()),
			slog.String("note_id", id.String()))
		return false, err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}

	if rowsAffected == 0 {
		// Distinguish "already processed" from "does not exist".
		var exists bool
		checkErr := s.db.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM notes WHERE id = $1)`, id).Scan(&exists)
		if checkErr != nil {
			return false, checkErr
		}
		if !exists {
			return false, store.ErrNoteNotFound
		}
		log.Debug("note already completed by another worker",
			slog.String("note_id", id.String()))
		return false, nil
	}

	log.Info("note marked completed",
		slog.String("note_id", id.String()))
	return true, nil
}

// RecordFailure implements store.NoteStore.RecordFailure.
// It releases the lock in the same statement so that retry eligibility
// depends only on the attempt counter and elapsed time.
func (s *PostgresNoteStore) RecordFailure(ctx context.Context, id uuid.UUID, message string) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	now := time.Now().UTC()
	query := `
		UPDATE notes
		SET error_message = $2,
			last_error_at = $3,
			processing_started_at = NULL,
			updated_at = $3
		WHERE id = $1
	`

	result, err := s.db.ExecContext(ctx, query, id, message, now)
	if err != nil {
		log.Error("failed to record processing failure",
			slog.String("error", err.Error()),
			slog.String("note_id", id.String()))
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return store.ErrNoteNotFound
	}

	log.Warn("processing failure recorded",
		slog.String("note_id", id.String()),
		slog.String("message", message))
	return nil
}

// ResetStaleLocks implements store.NoteStore.ResetStaleLocks.
func (s *PostgresNoteStore) ResetStaleLocks(ctx context.Context, olderThan time.Duration) (int, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	now := time.Now().UTC()
	staleBefore := now.Add(-olderThan)

	query := `
		UPDATE notes
		SET processing_started_at = NULL,
			updated_at = $1
		WHERE processed_at IS NULL
			AND processing_started_at IS NOT NULL
			AND processing_started_at < $2
	`

	result, err := s.db.ExecContext(ctx, query, now, staleBefore)
	if err != nil {
		log.Error("failed to reset stale locks",
			slog.String("error", err.Error()))
		return 0, err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}

	if rowsAffected > 0 {
		log.Info("stale locks reset",
			slog.Int64("count", rowsAffected))
	}
	return int(rowsAffected), nil
}

// ForceResetLocks implements store.NoteStore.ForceResetLocks.
// Operator override: clears every held lock and the error fields so
// affected notes become immediately eligible for retry.
func (s *PostgresNoteStore) ForceResetLocks(ctx context.Context) (int, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		UPDATE notes
		SET processing_started_at = NULL,
			processing_attempts = 0,
			error_message = NULL,
			last_error_at = NULL,
			updated_at = $1
		WHERE processing_started_at IS NOT NULL
	`

	result, err := s.db.ExecContext(ctx, query, time.Now().UTC())
	if err != nil {
		log.Error("failed to force-reset locks",
			slog.String("error", err.Error()))
		return 0, err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}

	log.Warn("all held locks force-reset",
		slog.Int64("count", rowsAffected))
	return int(rowsAffected), nil
}

// CountActive implements store.NoteStore.CountActive.
func (s *PostgresNoteStore) CountActive(ctx context.Context, lockTimeout time.Duration) (int, error) {
	staleBefore := time.Now().UTC().Add(-lockTimeout)

	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM notes
		WHERE processed_at IS NULL AND processing_started_at >= $1
	`, staleBefore).Scan(&count)
	if err != nil {
		return 0, err
	}
	return count, nil
}

// AverageLockAge implements store.NoteStore.AverageLockAge.
func (s *PostgresNoteStore) AverageLockAge(ctx context.Context, lockTimeout time.Duration) (time.Duration, error) {
	now := time.Now().UTC()
	staleBefore := now.Add(-lockTimeout)

	var seconds float64
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(AVG(EXTRACT(EPOCH FROM ($2::timestamptz - processing_started_at))), 0)
		FROM notes
		WHERE processed_at IS NULL AND processing_started_at >= $1
	`, staleBefore, now).Scan(&seconds)
	if err != nil {
		return 0, err
	}
	return time.Duration(seconds * float64(time.Second)), nil
}

// RecentErrors implements store.NoteStore.RecentErrors.
func (s *PostgresNoteStore) RecentErrors(ctx context.Context, limit int) ([]store.NoteError, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if limit <= 0 {
		limit = defaultCandidateLimit
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, error_message, last_error_at
		FROM notes
		WHERE error_message IS NOT NULL AND last_error_at IS NOT NULL
		ORDER BY last_error_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		log.Error("failed to query recent errors",
			slog.String("error", err.Error()))
		return nil, err
	}
	defer func() {
		if err := rows.Close(); err != nil {
			log.Error("failed to close rows", slog.String("error", err.Error()))
		}
	}()

	result := []store.NoteError{}
	for rows.Next() {
		var ne store.NoteError
		if err := rows.Scan(&ne.NoteID, &ne.UserID, &ne.Message, &ne.At); err != nil {
			return nil, err
		}
		result = append(result, ne)
	}
	return result, rows.Err()
}

// UserStats implements store.NoteStore.UserStats.
func (s *PostgresNoteStore) UserStats(ctx context.Context, userID uuid.UUID, lockTimeout time.Duration, maxAttempts int) (*store.UserNoteStats, error) {
	staleBefore := time.Now().UTC().Add(-lockTimeout)

	var stats store.UserNoteStats
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
			COUNT(*) FILTER (WHERE processed_at IS NOT NULL),
			COUNT(*) FILTER (WHERE processed_at IS NULL AND processing_started_at >= $2),
			COUNT(*) FILTER (WHERE processed_at IS NULL
				AND (processing_started_at IS NULL OR processing_started_at < $2)
				AND processing_attempts >= $3)
		FROM notes
		WHERE user_id = $1
	`, userID, staleBefore, maxAttempts).Scan(
		&stats.Total,
		&stats.Completed,
		&stats.Processing,
		&stats.Failed,
	)
	if err != nil {
		return nil, err
	}

	stats.Pending = stats.Total - stats.Completed - stats.Processing - stats.Failed
	return &stats, nil
}

// Insights implements store.NoteStore.Insights.
func (s *PostgresNoteStore) Insights(ctx context.Context, userID *uuid.UUID, since time.Time) (*store.PipelineInsights, error) {
	query := `
		SELECT COUNT(*) FILTER (WHERE processed_at >= $1),
			COUNT(*) FILTER (WHERE processed_at IS NULL AND last_error_at >= $1),
			COALESCE(AVG(processing_attempts) FILTER (WHERE processed_at >= $1), 0),
			COALESCE(AVG(EXTRACT(EPOCH FROM (processed_at - created_at)))
				FILTER (WHERE processed_at >= $1), 0)
		FROM notes
	`
	args := []any{since}
	if userID != nil {
		query += ` WHERE user_id = $2`
		args = append(args, *userID)
	}

	var insights store.PipelineInsights
	err := s.db.QueryRowContext(ctx, query, args...).Scan(
		&insights.TotalProcessed,
		&insights.TotalFailed,
		&insights.AvgAttempts,
		&insights.AvgLatencySeconds,
	)
	if err != nil {
		return nil, err
	}

	if total := insights.TotalProcessed + insights.TotalFailed; total > 0 {
		insights.CompletionRate = float64(insights.TotalProcessed) / float64(total)
	}
	return &insights, nil
}

// CostUsage implements store.NoteStore.CostUsage.
func (s *PostgresNoteStore) CostUsage(ctx context.Context, userID *uuid.UUID, since time.Time) (*store.CostUsage, error) {
	query := `
		SELECT COALESCE(SUM(duration_seconds) FILTER (WHERE processed_at >= $1), 0),
			COUNT(*) FILTER (WHERE processed_at >= $1)
		FROM notes
	`
	args := []any{since}
	if userID != nil {
		query += ` WHERE user_id = $2`
		args = append(args, *userID)
	}

	var usage store.CostUsage
	err := s.db.QueryRowContext(ctx, query, args...).Scan(
		&usage.TranscribedSeconds,
		&usage.AnalysisCalls,
	)
	if err != nil {
		return nil, err
	}
	return &usage, nil
}

// rowScanner abstracts *sql.Row and *sql.Rows for scanNote.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanNote scans one note row in noteColumns order.
func scanNote(row rowScanner) (*domain.Note, error) {
	var note domain.Note
	var analysisJSON []byte

	err := row.Scan(
		&note.ID,
		&note.UserID,
		&note.AudioObjectKey,
		&note.AudioSizeBytes,
		&note.DurationSeconds,
		&note.RecordedAt,
		&note.Transcription,
		&analysisJSON,
		&note.ProcessedAt,
		&note.ProcessingStartedAt,
		&note.ProcessingAttempts,
		&note.ErrorMessage,
		&note.LastErrorAt,
		&note.CreatedAt,
		&note.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(analysisJSON) > 0 {
		var analysis domain.NoteAnalysis
		if err := json.Unmarshal(analysisJSON, &analysis); err != nil {
			return nil, fmt.Errorf("failed to unmarshal note analysis: %w", err)
		}
		note.Analysis = &analysis
	}

	return &note, nil
}

// marshalAnalysis serializes an analysis for the JSONB column; nil maps
// to a NULL column value.
func marshalAnalysis(analysis *domain.NoteAnalysis) (any, error) {
	if analysis == nil {
		return nil, nil
	}
	data, err := json.Marshal(analysis)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal note analysis: %w", err)
	}
	return data, nil
}
