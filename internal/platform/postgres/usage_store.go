package postgres

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/voxnote/voxnote-api/internal/platform/logger"
	"github.com/voxnote/voxnote-api/internal/store"
)

// PostgresUsageStore implements the store.UsageStore interface
// using a PostgreSQL database as the storage backend.
type PostgresUsageStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresUsageStore creates a new PostgreSQL implementation of the
// UsageStore interface. If logger is nil, a default logger will be used.
func NewPostgresUsageStore(db store.DBTX, logger *slog.Logger) *PostgresUsageStore {
	if db == nil {
		panic("db cannot be nil")
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &PostgresUsageStore{
		db:     db,
		logger: logger.With(slog.String("component", "usage_store")),
	}
}

// Ensure PostgresUsageStore implements store.UsageStore interface
var _ store.UsageStore = (*PostgresUsageStore)(nil)

// WithTx returns a new UsageStore that runs on the provided transaction.
func (s *PostgresUsageStore) WithTx(tx *sql.Tx) store.UsageStore {
	return &PostgresUsageStore{
		db:     tx,
		logger: s.logger,
	}
}

// UpsertStorageUsage implements store.UsageStore.UpsertStorageUsage.
// GREATEST clamps the counter at zero so a delete racing an upload can
// never drive usage negative.
func (s *PostgresUsageStore) UpsertStorageUsage(ctx context.Context, userID uuid.UUID, deltaBytes int64) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	now := time.Now().UTC()
	query := `
		INSERT INTO usage_counters (user_id, storage_bytes, created_at, updated_at)
		VALUES ($1, GREATEST($2, 0), $3, $3)
		ON CONFLICT (user_id)
		DO UPDATE SET storage_bytes = GREATEST(usage_counters.storage_bytes + $2, 0),
			updated_at = $3
	`

	if _, err := s.db.ExecContext(ctx, query, userID, deltaBytes, now); err != nil {
		log.Error("failed to upsert storage usage",
			slog.String("error", err.Error()),
			slog.String("user_id", userID.String()),
			slog.Int64("delta_bytes", deltaBytes))
		return err
	}

	log.Debug("storage usage adjusted",
		slog.String("user_id", userID.String()),
		slog.Int64("delta_bytes", deltaBytes))
	return nil
}

// GetStorageUsage implements store.UsageStore.GetStorageUsage.
// Returns store.ErrUsageNotFound when the user has no counter row.
func (s *PostgresUsageStore) GetStorageUsage(ctx context.Context, userID uuid.UUID) (int64, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	var bytes int64
	err := s.db.QueryRowContext(ctx,
		`SELECT storage_bytes FROM usage_counters WHERE user_id = $1`,
		userID).Scan(&bytes)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, store.ErrUsageNotFound
		}
		log.Error("failed to get storage usage",
			slog.String("error", err.Error()),
			slog.String("user_id", userID.String()))
		return 0, err
	}

	return bytes, nil
}

// CountProcessingActivity implements store.UsageStore.CountProcessingActivity.
// Completions and recorded failures both count toward the rolling window
// because each one represents a consumed processing attempt.
func (s *PostgresUsageStore) CountProcessingActivity(ctx context.Context, userID uuid.UUID, since time.Time) (int, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM notes
		WHERE user_id = $1
			AND (processed_at >= $2 OR last_error_at >= $2)
	`, userID, since).Scan(&count)
	if err != nil {
		log.Error("failed to count processing activity",
			slog.String("error", err.Error()),
			slog.String("user_id", userID.String()))
		return 0, err
	}

	return count, nil
}
