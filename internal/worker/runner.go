package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/voxnote/voxnote-api/internal/domain"
	"github.com/voxnote/voxnote-api/internal/store"
)

// RunnerConfig holds configuration for the background runner.
type RunnerConfig struct {
	// WorkerCount determines how many concurrent workers process notes
	WorkerCount int

	// BatchSize caps how many candidates one poll cycle selects
	BatchSize int

	// PollInterval is how often the poll loop looks for candidates
	PollInterval time.Duration

	// LockTimeout and MaxAttempts mirror the selector's eligibility
	// predicate and must match the orchestrator's configuration
	LockTimeout time.Duration
	MaxAttempts int

	// ReconcileInterval is how often stale locks are swept
	ReconcileInterval time.Duration
}

// DefaultRunnerConfig returns a RunnerConfig with reasonable defaults.
func DefaultRunnerConfig() RunnerConfig {
	return RunnerConfig{
		WorkerCount:       2,
		BatchSize:         10,
		PollInterval:      30 * time.Second,
		LockTimeout:       10 * time.Minute,
		MaxAttempts:       3,
		ReconcileInterval: 5 * time.Minute,
	}
}

// Runner manages background note processing: a poll loop feeds
// candidates to a pool of workers, and a reconciler sweeps stale locks.
// An upload notification can nudge the poll loop so fresh notes do not
// wait out a full poll interval.
type Runner struct {
	orchestrator *Orchestrator
	notes        store.NoteStore
	cfg          RunnerConfig
	noteChan     chan *domain.Note
	nudgeChan    chan struct{}
	ctx          context.Context
	cancelFunc   context.CancelFunc
	wg           sync.WaitGroup
	logger       *slog.Logger
}

// NewRunner creates a Runner.
func NewRunner(orchestrator *Orchestrator, notes store.NoteStore, cfg RunnerConfig, log *slog.Logger) (*Runner, error) {
	if orchestrator == nil {
		return nil, errors.New("orchestrator cannot be nil")
	}
	if notes == nil {
		return nil, errors.New("note store cannot be nil")
	}
	if log == nil {
		log = slog.Default()
	}

	defaults := DefaultRunnerConfig()
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = defaults.WorkerCount
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaults.BatchSize
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaults.PollInterval
	}
	if cfg.LockTimeout <= 0 {
		cfg.LockTimeout = defaults.LockTimeout
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaults.MaxAttempts
	}
	if cfg.ReconcileInterval <= 0 {
		cfg.ReconcileInterval = defaults.ReconcileInterval
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Runner{
		orchestrator: orchestrator,
		notes:        notes,
		cfg:          cfg,
		noteChan:     make(chan *domain.Note, cfg.BatchSize),
		nudgeChan:    make(chan struct{}, 1),
		ctx:          ctx,
		cancelFunc:   cancel,
		logger:       log.With(slog.String("component", "runner")),
	}, nil
}

// Start launches the worker pool, the poll loop, and the reconciler.
func (r *Runner) Start() {
	for i := 0; i < r.cfg.WorkerCount; i++ {
		r.wg.Add(1)
		go r.worker(i)
	}

	r.wg.Add(1)
	go r.pollLoop()

	r.wg.Add(1)
	go r.reconciler()

	r.logger.Info("runner started",
		slog.Int("worker_count", r.cfg.WorkerCount),
		slog.Duration("poll_interval", r.cfg.PollInterval))
}

// Stop gracefully shuts down the runner, waiting for in-flight work.
func (r *Runner) Stop() {
	r.cancelFunc()
	r.wg.Wait()
	close(r.noteChan)
	r.logger.Info("runner stopped")
}

// Nudge wakes the poll loop early. Safe to call from any goroutine;
// nudges coalesce when the loop is already busy.
func (r *Runner) Nudge() {
	select {
	case r.nudgeChan <- struct{}{}:
	default:
	}
}

// worker consumes candidates from the queue.
func (r *Runner) worker(id int) {
	defer r.wg.Done()

	log := r.logger.With(slog.Int("worker_id", id))
	log.Debug("starting worker")

	for {
		select {
		case <-r.ctx.Done():
			log.Debug("stopping worker")
			return

		case note, ok := <-r.noteChan:
			if !ok {
				return
			}
			if err := r.orchestrator.ProcessNote(r.ctx, note); err != nil {
				log.Error("note processing cycle failed",
					slog.String("note_id", note.ID.String()),
					slog.String("error", err.Error()))
			}
		}
	}
}

// pollLoop periodically selects candidates and feeds the worker pool.
func (r *Runner) pollLoop() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()

	// One immediate pass so a restart picks up the backlog right away.
	r.pollOnce()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			r.pollOnce()
		case <-r.nudgeChan:
			r.pollOnce()
		}
	}
}

// pollOnce selects one batch of candidates and enqueues them.
func (r *Runner) pollOnce() {
	notes, err := r.notes.SelectCandidates(r.ctx, store.CandidateParams{
		Limit:       r.cfg.BatchSize,
		LockTimeout: r.cfg.LockTimeout,
		MaxAttempts: r.cfg.MaxAttempts,
	})
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			r.logger.Error("failed to select candidates",
				slog.String("error", err.Error()))
		}
		return
	}

	if len(notes) == 0 {
		return
	}

	r.logger.Debug("enqueueing candidates", slog.Int("count", len(notes)))
	for _, note := range notes {
		select {
		case r.noteChan <- note:
		case <-r.ctx.Done():
			return
		}
	}
}

// reconciler periodically sweeps stale processing locks so notes
// abandoned by crashed workers become eligible again.
func (r *Runner) reconciler() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.cfg.ReconcileInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			count, err := r.orchestrator.ResetStuckProcessing(r.ctx, false)
			if err != nil {
				if !errors.Is(err, context.Canceled) {
					r.logger.Error("stale lock sweep failed",
						slog.String("error", err.Error()))
				}
				continue
			}
			if count > 0 {
				// The freed notes can run now rather than next poll.
				r.Nudge()
			}
		}
	}
}
