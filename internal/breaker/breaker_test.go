package breaker

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() Config {
	return Config{
		FailureThreshold: 3,
		Window:           time.Minute,
		Cooldown:         30 * time.Second,
		MaxCooldown:      5 * time.Minute,
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestBreaker returns a breaker with a controllable clock.
func newTestBreaker(cfg Config) (*Breaker, *time.Time) {
	b := New(cfg, nil, testLogger())
	now := time.Now().UTC()
	b.now = func() time.Time { return now }
	return b, &now
}

func TestBreaker_StartsClosed(t *testing.T) {
	t.Parallel()

	b, _ := newTestBreaker(testConfig())
	ctx := context.Background()

	assert.NoError(t, b.Allow(ctx))
	st := b.Status()
	assert.Equal(t, ModeClosed, st.Mode)
	assert.Zero(t, st.FailureCount)
	assert.Nil(t, st.RetriesAt)
}

func TestBreaker_OpensAfterThresholdFailures(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	b, _ := newTestBreaker(cfg)
	ctx := context.Background()

	for i := 0; i < cfg.FailureThreshold; i++ {
		require.NoError(t, b.Allow(ctx))
		b.RecordFailure(ctx)
	}

	st := b.Status()
	assert.Equal(t, ModeOpen, st.Mode)
	assert.Equal(t, cfg.FailureThreshold, st.FailureCount)
	require.NotNil(t, st.RetriesAt)

	// Subsequent calls short-circuit without touching the dependency.
	assert.ErrorIs(t, b.Allow(ctx), ErrOpen)
}

func TestBreaker_FailuresOutsideWindowDoNotTrip(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	b, now := newTestBreaker(cfg)
	ctx := context.Background()

	b.RecordFailure(ctx)
	b.RecordFailure(ctx)

	// Let the rolling window expire before the next failure.
	*now = now.Add(cfg.Window + time.Second)
	b.RecordFailure(ctx)

	st := b.Status()
	assert.Equal(t, ModeClosed, st.Mode)
	assert.Equal(t, 1, st.FailureCount)
}

func TestBreaker_InterleavedSuccessesDoNotMaskFailures(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	b, _ := newTestBreaker(cfg)
	ctx := context.Background()

	// A brownout: failures interleaved with successes inside one
	// window still accumulate toward the threshold.
	for i := 0; i < cfg.FailureThreshold-1; i++ {
		require.NoError(t, b.Allow(ctx))
		b.RecordFailure(ctx)
		require.NoError(t, b.Allow(ctx))
		b.RecordSuccess(ctx)
	}
	require.Equal(t, ModeClosed, b.Status().Mode)

	require.NoError(t, b.Allow(ctx))
	b.RecordFailure(ctx)

	st := b.Status()
	assert.Equal(t, ModeOpen, st.Mode)
	assert.Equal(t, cfg.FailureThreshold, st.FailureCount)
}

func TestBreaker_HalfOpenAfterCooldown(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	b, now := newTestBreaker(cfg)
	ctx := context.Background()

	for i := 0; i < cfg.FailureThreshold; i++ {
		b.RecordFailure(ctx)
	}
	require.Equal(t, ModeOpen, b.Status().Mode)

	// Before the cooldown elapses the breaker stays shut.
	assert.ErrorIs(t, b.Allow(ctx), ErrOpen)

	// After the cooldown exactly one trial call passes.
	*now = now.Add(cfg.Cooldown + time.Second)
	assert.NoError(t, b.Allow(ctx))
	assert.Equal(t, ModeHalfOpen, b.Status().Mode)
	assert.ErrorIs(t, b.Allow(ctx), ErrOpen)
}

func TestBreaker_TrialSuccessCloses(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	b, now := newTestBreaker(cfg)
	ctx := context.Background()

	for i := 0; i < cfg.FailureThreshold; i++ {
		b.RecordFailure(ctx)
	}
	*now = now.Add(cfg.Cooldown + time.Second)
	require.NoError(t, b.Allow(ctx))

	b.RecordSuccess(ctx)

	st := b.Status()
	assert.Equal(t, ModeClosed, st.Mode)
	assert.Zero(t, st.FailureCount)
	assert.Nil(t, st.RetriesAt)
	assert.NoError(t, b.Allow(ctx))
}

func TestBreaker_TrialFailureReopensWithBackoff(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	b, now := newTestBreaker(cfg)
	ctx := context.Background()

	for i := 0; i < cfg.FailureThreshold; i++ {
		b.RecordFailure(ctx)
	}
	*now = now.Add(cfg.Cooldown + time.Second)
	require.NoError(t, b.Allow(ctx))

	b.RecordFailure(ctx)

	st := b.Status()
	require.Equal(t, ModeOpen, st.Mode)
	require.NotNil(t, st.RetriesAt)
	// Cooldown doubled after the failed trial.
	assert.Equal(t, now.Add(2*cfg.Cooldown), *st.RetriesAt)
}

func TestBreaker_CooldownGrowthIsCapped(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.MaxCooldown = 45 * time.Second
	b, now := newTestBreaker(cfg)
	ctx := context.Background()

	for i := 0; i < cfg.FailureThreshold; i++ {
		b.RecordFailure(ctx)
	}

	// Fail several trials in a row; the cooldown must never exceed the cap.
	for i := 0; i < 4; i++ {
		*now = now.Add(cfg.MaxCooldown + time.Second)
		require.NoError(t, b.Allow(ctx))
		b.RecordFailure(ctx)

		st := b.Status()
		require.NotNil(t, st.RetriesAt)
		assert.LessOrEqual(t, st.RetriesAt.Sub(*now), cfg.MaxCooldown)
	}
}

func TestBreaker_Reset(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	b, _ := newTestBreaker(cfg)
	ctx := context.Background()

	for i := 0; i < cfg.FailureThreshold; i++ {
		b.RecordFailure(ctx)
	}
	require.Equal(t, ModeOpen, b.Status().Mode)

	b.Reset(ctx)

	st := b.Status()
	assert.Equal(t, ModeClosed, st.Mode)
	assert.Zero(t, st.FailureCount)
	assert.NoError(t, b.Allow(ctx))
}

// memoryStateStore is an in-memory StateStore with CAS semantics for tests.
type memoryStateStore struct {
	state *State
}

func (s *memoryStateStore) Load(ctx context.Context) (*State, error) {
	if s.state == nil {
		return nil, ErrStateNotFound
	}
	copied := *s.state
	return &copied, nil
}

func (s *memoryStateStore) Save(ctx context.Context, state *State) error {
	if s.state != nil && s.state.Version != state.Version {
		return ErrStaleState
	}
	copied := *state
	copied.Version++
	s.state = &copied
	state.Version = copied.Version
	return nil
}

func TestBreaker_SharedStateIsVisibleAcrossInstances(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	sharedStore := &memoryStateStore{}
	ctx := context.Background()

	first := New(cfg, sharedStore, testLogger())
	now := time.Now().UTC()
	first.now = func() time.Time { return now }

	second := New(cfg, sharedStore, testLogger())
	second.now = func() time.Time { return now }

	// First worker trips the breaker; the second observes it via the store.
	for i := 0; i < cfg.FailureThreshold; i++ {
		first.RecordFailure(ctx)
	}
	require.Equal(t, ModeOpen, first.Status().Mode)

	assert.ErrorIs(t, second.Allow(ctx), ErrOpen)
	assert.Equal(t, ModeOpen, second.Status().Mode)
}
