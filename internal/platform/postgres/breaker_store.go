package postgres

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/voxnote/voxnote-api/internal/breaker"
	"github.com/voxnote/voxnote-api/internal/platform/logger"
	"github.com/voxnote/voxnote-api/internal/store"
)

// breakerStateID is the single shared row; the breaker guards one
// external service, so one row is all there is.
const breakerStateID = 1

// PostgresBreakerStore implements the breaker.StateStore interface,
// persisting breaker decision state so worker processes share a single
// view of the external service's health.
type PostgresBreakerStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresBreakerStore creates a new PostgreSQL implementation of the
// breaker.StateStore interface. If logger is nil, a default logger will
// be used.
func NewPostgresBreakerStore(db store.DBTX, logger *slog.Logger) *PostgresBreakerStore {
	if db == nil {
		panic("db cannot be nil")
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &PostgresBreakerStore{
		db:     db,
		logger: logger.With(slog.String("component", "breaker_store")),
	}
}

// Ensure PostgresBreakerStore implements breaker.StateStore interface
var _ breaker.StateStore = (*PostgresBreakerStore)(nil)

// Load implements breaker.StateStore.Load.
func (s *PostgresBreakerStore) Load(ctx context.Context) (*breaker.State, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	var (
		state           breaker.State
		mode            string
		windowStart     sql.NullTime
		lastFailureAt   sql.NullTime
		retryAt         sql.NullTime
		cooldownSeconds float64
	)

	err := s.db.QueryRowContext(ctx, `
		SELECT mode, failure_count, window_start, last_failure_at, retry_at,
			cooldown_seconds, version
		FROM breaker_state
		WHERE id = $1
	`, breakerStateID).Scan(
		&mode,
		&state.FailureCount,
		&windowStart,
		&lastFailureAt,
		&retryAt,
		&cooldownSeconds,
		&state.Version,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, breaker.ErrStateNotFound
		}
		log.Error("failed to load breaker state",
			slog.String("error", err.Error()))
		return nil, err
	}

	state.Mode = breaker.Mode(mode)
	if windowStart.Valid {
		state.WindowStart = windowStart.Time
	}
	if lastFailureAt.Valid {
		state.LastFailureAt = lastFailureAt.Time
	}
	if retryAt.Valid {
		state.RetryAt = retryAt.Time
	}
	state.Cooldown = time.Duration(cooldownSeconds * float64(time.Second))

	return &state, nil
}

// Save implements breaker.StateStore.Save.
// The version predicate makes the write a compare-and-set: a stale
// writer affects zero rows and gets ErrStaleState, never a silent
// overwrite of a newer decision.
func (s *PostgresBreakerStore) Save(ctx context.Context, state *breaker.State) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	now := time.Now().UTC()
	query := `
		INSERT INTO breaker_state (id, mode, failure_count, window_start,
			last_failure_at, retry_at, cooldown_seconds, version, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8 + 1, $9)
		ON CONFLICT (id)
		DO UPDATE SET mode = $2,
			failure_count = $3,
			window_start = $4,
			last_failure_at = $5,
			retry_at = $6,
			cooldown_seconds = $7,
			version = breaker_state.version + 1,
			updated_at = $9
		WHERE breaker_state.version = $8
	`

	result, err := s.db.ExecContext(
		ctx,
		query,
		breakerStateID,
		string(state.Mode),
		state.FailureCount,
		nullableTime(state.WindowStart),
		nullableTime(state.LastFailureAt),
		nullableTime(state.RetryAt),
		state.Cooldown.Seconds(),
		state.Version,
		now,
	)
	if err != nil {
		log.Error("failed to save breaker state",
			slog.String("error", err.Error()))
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		log.Debug("breaker state save lost version race",
			slog.Int64("version", state.Version))
		return breaker.ErrStaleState
	}

	state.Version++
	return nil
}

// nullableTime maps a zero time to a NULL column value.
func nullableTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}
