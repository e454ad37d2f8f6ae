package breaker

import (
	"context"
	"errors"
	"time"
)

// State is the serializable decision state of the breaker. When workers
// run as separate processes it is persisted to the same store that backs
// the note locks, with the same atomic-update discipline.
type State struct {
	Mode          Mode
	FailureCount  int
	WindowStart   time.Time
	LastFailureAt time.Time
	RetryAt       time.Time
	Cooldown      time.Duration

	// Version supports optimistic concurrency in shared stores.
	Version int64
}

// Errors returned by StateStore implementations.
var (
	// ErrStateNotFound indicates no shared state row exists yet; the
	// breaker starts closed.
	ErrStateNotFound = errors.New("breaker state not found")

	// ErrStaleState indicates a compare-and-set update lost the race with
	// another worker. The caller reloads the winning state.
	ErrStaleState = errors.New("breaker state version conflict")
)

// StateStore persists breaker state shared across worker processes.
// Implementations must make Save atomic: a Save with a stale Version
// returns ErrStaleState instead of overwriting newer state.
type StateStore interface {
	// Load retrieves the current shared state.
	// Returns ErrStateNotFound when no state has ever been saved.
	Load(ctx context.Context) (*State, error)

	// Save writes the state if state.Version still matches the stored
	// row, incrementing the version on success.
	// Returns ErrStaleState on a version conflict.
	Save(ctx context.Context, state *State) error
}
