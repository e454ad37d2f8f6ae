package breaker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/voxnote/voxnote-api/internal/platform/logger"
)

// Mode is the circuit breaker's current mode.
type Mode string

// Possible breaker modes.
const (
	// ModeClosed lets calls pass through while counting failures.
	ModeClosed Mode = "closed"

	// ModeOpen short-circuits calls without attempting the dependency.
	ModeOpen Mode = "open"

	// ModeHalfOpen allows a single trial call after the cooldown elapses.
	ModeHalfOpen Mode = "half_open"
)

// ErrOpen is returned by Allow when the breaker is open and the call
// must be short-circuited without touching the external dependency.
var ErrOpen = errors.New("circuit breaker is open")

// Config holds the breaker's tunable parameters.
type Config struct {
	// FailureThreshold is the number of failures within Window that trips
	// the breaker open.
	FailureThreshold int

	// Window is the rolling interval over which failures are counted.
	Window time.Duration

	// Cooldown is the initial open interval before a half-open trial.
	Cooldown time.Duration

	// MaxCooldown caps the cooldown growth on repeated trial failures.
	MaxCooldown time.Duration
}

// Status is a read-only snapshot of the breaker for observability.
type Status struct {
	Mode          Mode       `json:"mode"`
	FailureCount  int        `json:"failure_count"`
	LastFailureAt *time.Time `json:"last_failure_at,omitempty"`
	RetriesAt     *time.Time `json:"retries_at,omitempty"`
}

// Breaker is a failure-rate gate protecting the pipeline from an
// unstable external dependency. All workers in a process share one
// instance; multi-process deployments attach a StateStore so the
// decision state lives in the same persistent store as the locks.
type Breaker struct {
	mu     sync.Mutex
	cfg    Config
	state  State
	store  StateStore
	logger *slog.Logger
	now    func() time.Time

	// trialInFlight marks that this process has released the half-open
	// trial call and is waiting for its outcome. It is deliberately
	// process-local: at worst N processes each run one trial.
	trialInFlight bool
}

// New creates a Breaker in the closed mode. store may be nil, in which
// case the state is process-local.
func New(cfg Config, store StateStore, log *slog.Logger) *Breaker {
	if log == nil {
		log = slog.Default()
	}
	return &Breaker{
		cfg: cfg,
		state: State{
			Mode:     ModeClosed,
			Cooldown: cfg.Cooldown,
		},
		store:  store,
		logger: log.With("component", "circuit_breaker"),
		now:    time.Now,
	}
}

// Allow reports whether a call to the external dependency may proceed.
// It returns ErrOpen when the breaker is open (or a half-open trial is
// already in flight), and nil when the caller may make the call. Callers
// must follow up with RecordSuccess or RecordFailure.
func (b *Breaker) Allow(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.loadShared(ctx)
	now := b.now().UTC()

	switch b.state.Mode {
	case ModeClosed:
		return nil

	case ModeOpen:
		if now.Before(b.state.RetryAt) {
			return ErrOpen
		}
		// Cooldown elapsed: release exactly one trial call.
		b.state.Mode = ModeHalfOpen
		b.trialInFlight = true
		b.logger.Info("circuit breaker half-open, allowing trial call",
			"cooldown_seconds", b.state.Cooldown.Seconds())
		b.saveShared(ctx)
		return nil

	case ModeHalfOpen:
		if b.trialInFlight {
			return ErrOpen
		}
		b.trialInFlight = true
		return nil

	default:
		return nil
	}
}

// RecordSuccess reports a successful call. In half-open mode this closes
// the breaker and resets the failure counters and cooldown. In closed
// mode it leaves the windowed failure count alone: a brownout that
// interleaves successes with failures can still trip the breaker, and
// window expiry in RecordFailure handles decay.
func (b *Breaker) RecordSuccess(ctx context.Context) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.trialInFlight = false
	if b.state.Mode == ModeClosed {
		return
	}

	b.logger.Info("circuit breaker closing after successful call",
		"previous_mode", string(b.state.Mode))
	b.state.Mode = ModeClosed
	b.state.FailureCount = 0
	b.state.WindowStart = time.Time{}
	b.state.LastFailureAt = time.Time{}
	b.state.RetryAt = time.Time{}
	b.state.Cooldown = b.cfg.Cooldown
	b.saveShared(ctx)
}

// RecordFailure reports a failed call. Crossing the failure threshold
// within the rolling window opens the breaker; a failed half-open trial
// re-opens it with a grown cooldown.
func (b *Breaker) RecordFailure(ctx context.Context) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.trialInFlight = false
	now := b.now().UTC()
	b.state.LastFailureAt = now

	switch b.state.Mode {
	case ModeHalfOpen:
		// Trial failed: back to open with backoff growth.
		b.state.Cooldown = minDuration(b.state.Cooldown*2, b.cfg.MaxCooldown)
		b.open(now)

	case ModeClosed:
		// Rolling window: failures older than Window no longer count.
		if b.state.WindowStart.IsZero() || now.Sub(b.state.WindowStart) > b.cfg.Window {
			b.state.WindowStart = now
			b.state.FailureCount = 0
		}
		b.state.FailureCount++
		if b.state.FailureCount >= b.cfg.FailureThreshold {
			b.state.Cooldown = b.cfg.Cooldown
			b.open(now)
		}

	case ModeOpen:
		// Already open; nothing further to trip.
	}

	b.saveShared(ctx)
}

// Reset closes the breaker and clears all counters. Exposed for the
// administrative dispatch surface.
func (b *Breaker) Reset(ctx context.Context) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.logger.Info("circuit breaker reset requested", "previous_mode", string(b.state.Mode))
	b.trialInFlight = false
	b.state = State{
		Mode:     ModeClosed,
		Cooldown: b.cfg.Cooldown,
		Version:  b.state.Version,
	}
	b.saveShared(ctx)
}

// Status returns a snapshot of the breaker state.
func (b *Breaker) Status() Status {
	b.mu.Lock()
	defer b.mu.Unlock()

	st := Status{
		Mode:         b.state.Mode,
		FailureCount: b.state.FailureCount,
	}
	if !b.state.LastFailureAt.IsZero() {
		at := b.state.LastFailureAt
		st.LastFailureAt = &at
	}
	if b.state.Mode == ModeOpen && !b.state.RetryAt.IsZero() {
		at := b.state.RetryAt
		st.RetriesAt = &at
	}
	return st
}

// open transitions to the open mode. Callers hold the mutex.
func (b *Breaker) open(now time.Time) {
	b.state.Mode = ModeOpen
	b.state.RetryAt = now.Add(b.state.Cooldown)
	b.logger.Warn("circuit breaker opened",
		"failure_count", b.state.FailureCount,
		"retries_at", b.state.RetryAt)
}

// loadShared refreshes state from the shared store when one is attached.
// Store failures are logged and the local state keeps serving: the
// breaker degrades to per-process decisions rather than blocking the
// pipeline. Callers hold the mutex.
func (b *Breaker) loadShared(ctx context.Context) {
	if b.store == nil {
		return
	}
	shared, err := b.store.Load(ctx)
	if err != nil {
		if !errors.Is(err, ErrStateNotFound) {
			logger.FromContextOrDefault(ctx, b.logger).Warn(
				"failed to load shared breaker state, using local state",
				"error", err)
		}
		return
	}
	// The shared row wins except for the process-local trial flag.
	b.state = *shared
}

// saveShared persists state to the shared store when one is attached.
// A version conflict means another worker already advanced the state;
// the next loadShared picks it up. Callers hold the mutex.
func (b *Breaker) saveShared(ctx context.Context) {
	if b.store == nil {
		return
	}
	if err := b.store.Save(ctx, &b.state); err != nil {
		if errors.Is(err, ErrStaleState) {
			logger.FromContextOrDefault(ctx, b.logger).Debug(
				"shared breaker state advanced by another worker")
			return
		}
		logger.FromContextOrDefault(ctx, b.logger).Warn(
			"failed to save shared breaker state",
			"error", err)
	}
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}
