package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// UsageStore defines the interface for per-user resource accounting
// consumed by the quota layer.
// Version: 1.0
type UsageStore interface {
	// UpsertStorageUsage adjusts the user's stored-bytes counter by
	// deltaBytes, creating the counter row if absent. Negative deltas are
	// clamped at zero.
	UpsertStorageUsage(ctx context.Context, userID uuid.UUID, deltaBytes int64) error

	// GetStorageUsage returns the user's stored-bytes counter.
	// Returns ErrUsageNotFound if no counter exists for the user.
	GetStorageUsage(ctx context.Context, userID uuid.UUID) (int64, error)

	// CountProcessingActivity counts the user's processing outcomes
	// (completions and recorded failures) since the given time. Used for
	// the rolling-window processing quota.
	CountProcessingActivity(ctx context.Context, userID uuid.UUID, since time.Time) (int, error)

	// WithTx returns a new UsageStore instance that uses the provided
	// transaction. The transaction is created and managed by the caller.
	WithTx(tx *sql.Tx) UsageStore
}
