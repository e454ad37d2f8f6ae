package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/voxnote/voxnote-api/internal/breaker"
	"github.com/voxnote/voxnote-api/internal/platform/logger"
	"github.com/voxnote/voxnote-api/internal/store"
)

// SystemLoad is a point-in-time snapshot of pipeline health, served on
// the status and dispatch surfaces.
type SystemLoad struct {
	ActiveJobs        int               `json:"active_jobs"`
	AvgLockAgeSeconds float64           `json:"avg_lock_age_seconds"`
	RecentErrors      []store.NoteError `json:"recent_errors"`
	Breaker           breaker.Status    `json:"breaker"`
	GeneratedAt       time.Time         `json:"generated_at"`
}

// PerformanceInsights summarizes processing outcomes over a day range.
type PerformanceInsights struct {
	Days              int     `json:"days"`
	TotalProcessed    int     `json:"total_processed"`
	TotalFailed       int     `json:"total_failed"`
	CompletionRate    float64 `json:"completion_rate"`
	FailureRate       float64 `json:"failure_rate"`
	AvgAttempts       float64 `json:"avg_attempts"`
	AvgLatencySeconds float64 `json:"avg_latency_seconds"`
}

// CostSummary prices the billable activity over a day range from the
// configured per-unit rates.
type CostSummary struct {
	Days                 int     `json:"days"`
	TranscriptionMinutes float64 `json:"transcription_minutes"`
	AnalysisCalls        int     `json:"analysis_calls"`
	TranscriptionCents   float64 `json:"transcription_cents"`
	AnalysisCents        float64 `json:"analysis_cents"`
	TotalCents           float64 `json:"total_cents"`
}

// Rates holds the per-unit pricing applied by CostSummary.
type Rates struct {
	// TranscriptionCentsPerMinute prices transcribed audio time.
	TranscriptionCentsPerMinute float64

	// AnalysisCentsPerCall prices each analysis call.
	AnalysisCentsPerCall float64
}

// Monitor aggregates pipeline observability from the note store and the
// circuit breaker.
type Monitor struct {
	notes       store.NoteStore
	breaker     *breaker.Breaker
	rates       Rates
	lockTimeout time.Duration
	errorLimit  int
	logger      *slog.Logger
	now         func() time.Time
}

// defaultErrorLimit caps how many recent errors SystemLoad returns.
const defaultErrorLimit = 10

// New creates a Monitor.
func New(notes store.NoteStore, brk *breaker.Breaker, rates Rates, lockTimeout time.Duration, log *slog.Logger) (*Monitor, error) {
	if notes == nil {
		return nil, errors.New("note store cannot be nil")
	}
	if brk == nil {
		return nil, errors.New("circuit breaker cannot be nil")
	}
	if log == nil {
		log = slog.Default()
	}

	return &Monitor{
		notes:       notes,
		breaker:     brk,
		rates:       rates,
		lockTimeout: lockTimeout,
		errorLimit:  defaultErrorLimit,
		logger:      log.With(slog.String("component", "monitor")),
		now:         time.Now,
	}, nil
}

// SystemLoad reports current pipeline activity and breaker health.
func (m *Monitor) SystemLoad(ctx context.Context) (*SystemLoad, error) {
	log := logger.FromContextOrDefault(ctx, m.logger)

	active, err := m.notes.CountActive(ctx, m.lockTimeout)
	if err != nil {
		log.Error("failed to count active jobs", slog.String("error", err.Error()))
		return nil, fmt.Errorf("failed to count active jobs: %w", err)
	}

	lockAge, err := m.notes.AverageLockAge(ctx, m.lockTimeout)
	if err != nil {
		log.Error("failed to compute average lock age", slog.String("error", err.Error()))
		return nil, fmt.Errorf("failed to compute average lock age: %w", err)
	}

	recentErrors, err := m.notes.RecentErrors(ctx, m.errorLimit)
	if err != nil {
		log.Error("failed to fetch recent errors", slog.String("error", err.Error()))
		return nil, fmt.Errorf("failed to fetch recent errors: %w", err)
	}
	if recentErrors == nil {
		recentErrors = []store.NoteError{}
	}

	return &SystemLoad{
		ActiveJobs:        active,
		AvgLockAgeSeconds: lockAge.Seconds(),
		RecentErrors:      recentErrors,
		Breaker:           m.breaker.Status(),
		GeneratedAt:       m.now().UTC(),
	}, nil
}

// PerformanceInsights aggregates outcomes for one user, or system-wide
// when userID is nil. days values below one are treated as one day.
func (m *Monitor) PerformanceInsights(ctx context.Context, userID *uuid.UUID, days int) (*PerformanceInsights, error) {
	if days < 1 {
		days = 1
	}
	since := m.now().UTC().AddDate(0, 0, -days)

	insights, err := m.notes.Insights(ctx, userID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate insights: %w", err)
	}

	result := &PerformanceInsights{
		Days:              days,
		TotalProcessed:    insights.TotalProcessed,
		TotalFailed:       insights.TotalFailed,
		CompletionRate:    insights.CompletionRate,
		AvgAttempts:       insights.AvgAttempts,
		AvgLatencySeconds: insights.AvgLatencySeconds,
	}
	if total := insights.TotalProcessed + insights.TotalFailed; total > 0 {
		result.FailureRate = float64(insights.TotalFailed) / float64(total)
	}
	return result, nil
}

// CostSummary prices billable activity for one user, or system-wide
// when userID is nil.
func (m *Monitor) CostSummary(ctx context.Context, userID *uuid.UUID, days int) (*CostSummary, error) {
	if days < 1 {
		days = 1
	}
	since := m.now().UTC().AddDate(0, 0, -days)

	usage, err := m.notes.CostUsage(ctx, userID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate cost usage: %w", err)
	}

	minutes := usage.TranscribedSeconds / 60
	transcriptionCents := minutes * m.rates.TranscriptionCentsPerMinute
	analysisCents := float64(usage.AnalysisCalls) * m.rates.AnalysisCentsPerCall

	return &CostSummary{
		Days:                 days,
		TranscriptionMinutes: minutes,
		AnalysisCalls:        usage.AnalysisCalls,
		TranscriptionCents:   transcriptionCents,
		AnalysisCents:        analysisCents,
		TotalCents:           transcriptionCents + analysisCents,
	}, nil
}
