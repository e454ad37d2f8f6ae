package worker

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/voxnote/voxnote-api/internal/domain"
	"github.com/voxnote/voxnote-api/internal/store"
)

func TestNewRunnerValidation(t *testing.T) {
	t.Parallel()

	o := newTestOrchestrator(t, &mockNoteStore{}, &mockService{}, nil, nil)

	_, err := NewRunner(nil, &mockNoteStore{}, RunnerConfig{}, discardLogger())
	assert.Error(t, err)

	_, err = NewRunner(o, nil, RunnerConfig{}, discardLogger())
	assert.Error(t, err)

	r, err := NewRunner(o, &mockNoteStore{}, RunnerConfig{}, discardLogger())
	require.NoError(t, err)
	assert.Equal(t, DefaultRunnerConfig().WorkerCount, r.cfg.WorkerCount,
		"zero config values fall back to defaults")
}

func TestRunnerProcessesCandidates(t *testing.T) {
	t.Parallel()

	completed := make(chan uuid.UUID, 4)
	var served atomic.Bool

	note := testNote(0)
	notes := &mockNoteStore{
		selectFn: func(ctx context.Context, params store.CandidateParams) ([]*domain.Note, error) {
			// Serve the candidate once; later polls find nothing.
			if served.CompareAndSwap(false, true) {
				return []*domain.Note{note}, nil
			}
			return nil, nil
		},
		markCompletedFn: func(ctx context.Context, id uuid.UUID, analysis *domain.NoteAnalysis) (bool, error) {
			completed <- id
			return true, nil
		},
	}

	o := newTestOrchestrator(t, notes, &mockService{}, nil, nil)
	r, err := NewRunner(o, notes, RunnerConfig{
		WorkerCount:       1,
		BatchSize:         4,
		PollInterval:      time.Hour,
		LockTimeout:       10 * time.Minute,
		MaxAttempts:       3,
		ReconcileInterval: time.Hour,
	}, discardLogger())
	require.NoError(t, err)

	r.Start()
	defer r.Stop()

	select {
	case id := <-completed:
		assert.Equal(t, note.ID, id)
	case <-time.After(5 * time.Second):
		t.Fatal("candidate was not processed by the startup poll")
	}
}

func TestRunnerNudgeWakesPollLoop(t *testing.T) {
	t.Parallel()

	polls := make(chan struct{}, 8)
	notes := &mockNoteStore{
		selectFn: func(ctx context.Context, params store.CandidateParams) ([]*domain.Note, error) {
			polls <- struct{}{}
			return nil, nil
		},
	}

	o := newTestOrchestrator(t, notes, &mockService{}, nil, nil)
	r, err := NewRunner(o, notes, RunnerConfig{
		WorkerCount:       1,
		BatchSize:         4,
		PollInterval:      time.Hour,
		LockTimeout:       10 * time.Minute,
		MaxAttempts:       3,
		ReconcileInterval: time.Hour,
	}, discardLogger())
	require.NoError(t, err)

	r.Start()
	defer r.Stop()

	// Startup poll.
	select {
	case <-polls:
	case <-time.After(5 * time.Second):
		t.Fatal("startup poll did not run")
	}

	r.Nudge()

	// The poll interval is an hour, so a second poll can only come from
	// the nudge.
	select {
	case <-polls:
	case <-time.After(5 * time.Second):
		t.Fatal("nudge did not wake the poll loop")
	}
}

func TestRunnerStopWaitsForWorkers(t *testing.T) {
	t.Parallel()

	notes := &mockNoteStore{}
	o := newTestOrchestrator(t, notes, &mockService{}, nil, nil)
	r, err := NewRunner(o, notes, RunnerConfig{
		WorkerCount:       2,
		PollInterval:      10 * time.Millisecond,
		ReconcileInterval: time.Hour,
		LockTimeout:       10 * time.Minute,
		MaxAttempts:       3,
		BatchSize:         4,
	}, discardLogger())
	require.NoError(t, err)

	r.Start()

	done := make(chan struct{})
	go func() {
		r.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop did not return")
	}
}

func TestRunnerNudgeCoalesces(t *testing.T) {
	t.Parallel()

	o := newTestOrchestrator(t, &mockNoteStore{}, &mockService{}, nil, nil)
	r, err := NewRunner(o, &mockNoteStore{}, RunnerConfig{}, discardLogger())
	require.NoError(t, err)

	// Without a running poll loop, repeated nudges must not block.
	for i := 0; i < 10; i++ {
		r.Nudge()
	}
}
