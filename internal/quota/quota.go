package quota

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/voxnote/voxnote-api/internal/config"
	"github.com/voxnote/voxnote-api/internal/platform/logger"
	"github.com/voxnote/voxnote-api/internal/store"
)

// CheckResult is the outcome of a quota check. When the underlying
// lookup fails the check fails open: WithinLimit is true and Error
// carries the advisory message. Limits are soft guarantees under
// backend degradation, by explicit design choice.
type CheckResult struct {
	WithinLimit  bool   `json:"within_limit"`
	CurrentUsage int64  `json:"current_usage"`
	Limit        int64  `json:"limit"`
	Error        string `json:"error,omitempty"`
}

// ObjectLister reports a user's total stored bytes in the audio object
// store. The production deployment backs this with the usage counters
// table; dev and tests use a filesystem lister.
type ObjectLister interface {
	UserUsage(ctx context.Context, userID uuid.UUID) (int64, error)
}

// Manager performs per-user admission control for storage and
// processing volume.
type Manager struct {
	lister ObjectLister
	usage  store.UsageStore
	cfg    config.QuotaConfig
	logger *slog.Logger
	now    func() time.Time
}

// NewManager creates a quota Manager.
func NewManager(lister ObjectLister, usage store.UsageStore, cfg config.QuotaConfig, log *slog.Logger) (*Manager, error) {
	if lister == nil {
		return nil, errors.New("object lister cannot be nil")
	}
	if usage == nil {
		return nil, errors.New("usage store cannot be nil")
	}
	if log == nil {
		return nil, errors.New("logger cannot be nil")
	}

	return &Manager{
		lister: lister,
		usage:  usage,
		cfg:    cfg,
		logger: log.With("component", "quota_manager"),
		now:    time.Now,
	}, nil
}

// CheckStorageQuota checks the user's stored bytes against the storage
// limit. A listing failure fails open with the error surfaced as an
// advisory field only.
func (m *Manager) CheckStorageQuota(ctx context.Context, userID uuid.UUID) CheckResult {
	log := logger.FromContextOrDefault(ctx, m.logger)

	used, err := m.lister.UserUsage(ctx, userID)
	if err != nil {
		log.Warn("storage quota lookup failed, admitting",
			"user_id", userID,
			"error", err)
		return CheckResult{
			WithinLimit: true,
			Limit:       m.cfg.StorageLimitBytes,
			Error:       err.Error(),
		}
	}

	return CheckResult{
		WithinLimit:  used < m.cfg.StorageLimitBytes,
		CurrentUsage: used,
		Limit:        m.cfg.StorageLimitBytes,
	}
}

// CheckProcessingQuota checks the user's processing activity within the
// rolling window against the processing limit. Same fail-open policy as
// the storage check.
func (m *Manager) CheckProcessingQuota(ctx context.Context, userID uuid.UUID) CheckResult {
	log := logger.FromContextOrDefault(ctx, m.logger)

	since := m.now().UTC().Add(-time.Duration(m.cfg.ProcessingWindowHrs) * time.Hour)
	count, err := m.usage.CountProcessingActivity(ctx, userID, since)
	if err != nil {
		log.Warn("processing quota lookup failed, admitting",
			"user_id", userID,
			"error", err)
		return CheckResult{
			WithinLimit: true,
			Limit:       int64(m.cfg.ProcessingLimit),
			Error:       err.Error(),
		}
	}

	return CheckResult{
		WithinLimit:  count < m.cfg.ProcessingLimit,
		CurrentUsage: int64(count),
		Limit:        int64(m.cfg.ProcessingLimit),
	}
}

// UpdateStorageUsage adjusts the user's stored-bytes counter. Quota
// bookkeeping must never block the primary processing path, so backend
// failures are logged and swallowed.
func (m *Manager) UpdateStorageUsage(ctx context.Context, userID uuid.UUID, deltaBytes int64) {
	log := logger.FromContextOrDefault(ctx, m.logger)

	if err := m.usage.UpsertStorageUsage(ctx, userID, deltaBytes); err != nil {
		log.Error("failed to update storage usage counter",
			"user_id", userID,
			"delta_bytes", deltaBytes,
			"error", err)
		return
	}

	log.Debug("storage usage updated",
		"user_id", userID,
		"delta_bytes", deltaBytes)
}
