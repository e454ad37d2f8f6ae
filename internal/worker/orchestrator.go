package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/voxnote/voxnote-api/internal/breaker"
	"github.com/voxnote/voxnote-api/internal/domain"
	"github.com/voxnote/voxnote-api/internal/platform/logger"
	"github.com/voxnote/voxnote-api/internal/quota"
	"github.com/voxnote/voxnote-api/internal/store"
	"github.com/voxnote/voxnote-api/internal/transcription"
)

// OrchestratorConfig holds the orchestrator's pipeline parameters.
type OrchestratorConfig struct {
	// LockTimeout is how long a processing lock is honored before other
	// workers may reclaim the note.
	LockTimeout time.Duration

	// MaxAttempts bounds how many times a note is retried before it is
	// considered terminally failed.
	MaxAttempts int

	// CallTimeout bounds each external service call independently of the
	// lock timeout.
	CallTimeout time.Duration
}

// Orchestrator drives a single note through the processing pipeline:
// claim the lock, transcribe, analyze, persist. All external calls go
// through the circuit breaker; a failure on any step persists the error
// and releases the lock so retry eligibility is decided by the selector.
type Orchestrator struct {
	notes   store.NoteStore
	service transcription.Service
	breaker *breaker.Breaker
	quotas  *quota.Manager
	audio   AudioFetcher
	cfg     OrchestratorConfig
	logger  *slog.Logger
}

// NewOrchestrator creates an Orchestrator. quotas may be nil, in which
// case admission checks are skipped.
func NewOrchestrator(
	notes store.NoteStore,
	service transcription.Service,
	brk *breaker.Breaker,
	quotas *quota.Manager,
	audio AudioFetcher,
	cfg OrchestratorConfig,
	log *slog.Logger,
) (*Orchestrator, error) {
	if notes == nil {
		return nil, errors.New("note store cannot be nil")
	}
	if service == nil {
		return nil, errors.New("transcription service cannot be nil")
	}
	if brk == nil {
		return nil, errors.New("circuit breaker cannot be nil")
	}
	if audio == nil {
		return nil, errors.New("audio fetcher cannot be nil")
	}
	if log == nil {
		log = slog.Default()
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 60 * time.Second
	}

	return &Orchestrator{
		notes:   notes,
		service: service,
		breaker: brk,
		quotas:  quotas,
		audio:   audio,
		cfg:     cfg,
		logger:  log.With(slog.String("component", "orchestrator")),
	}, nil
}

// ProcessNote runs the pipeline for one candidate note. A nil return
// means the note reached a settled outcome for this cycle: completed,
// failed-and-recorded, skipped because the lock was lost, or deferred
// by quota or the open breaker.
func (o *Orchestrator) ProcessNote(ctx context.Context, note *domain.Note) error {
	log := logger.FromContextOrDefault(ctx, o.logger).With(
		slog.String("note_id", note.ID.String()),
		slog.String("user_id", note.UserID.String()))

	// Admission is checked before the lock so a quota-denied note does
	// not consume a retry attempt. Only first-attempt notes are gated:
	// a note that already consumed an attempt gets to finish its retries.
	if o.quotas != nil && note.ProcessingAttempts == 0 {
		result := o.quotas.CheckProcessingQuota(ctx, note.UserID)
		if !result.WithinLimit {
			log.Info("processing deferred by quota",
				slog.Int64("current_usage", result.CurrentUsage),
				slog.Int64("limit", result.Limit))
			return nil
		}
	}

	acquired, err := o.notes.AcquireLock(ctx, note.ID, o.cfg.LockTimeout)
	if err != nil {
		// Fail closed: without confirmation of the claim this worker
		// must not touch the note.
		return fmt.Errorf("failed to acquire processing lock: %w", err)
	}
	if !acquired {
		log.Debug("lock not acquired, skipping note")
		return nil
	}

	log.Info("processing note",
		slog.Int("attempt", note.ProcessingAttempts+1),
		slog.Int("max_attempts", o.cfg.MaxAttempts))

	transcript, err := o.transcribeStep(ctx, note, log)
	if err != nil {
		return o.handleFailure(ctx, note, err, log)
	}

	analysis, err := o.analyzeStep(ctx, note, transcript, log)
	if err != nil {
		return o.handleFailure(ctx, note, err, log)
	}

	updated, err := o.notes.MarkCompleted(ctx, note.ID, analysis)
	if err != nil {
		return o.handleFailure(ctx, note, fmt.Errorf("failed to persist results: %w", err), log)
	}
	if !updated {
		log.Info("note already completed by another worker")
		return nil
	}

	log.Info("note processing completed")
	return nil
}

// transcribeStep produces the transcription, reusing a persisted one
// from an earlier attempt when present.
func (o *Orchestrator) transcribeStep(ctx context.Context, note *domain.Note, log *slog.Logger) (string, error) {
	if note.Transcription != nil && *note.Transcription != "" {
		log.Debug("reusing transcription from earlier attempt")
		return *note.Transcription, nil
	}

	clip, err := o.audio.Fetch(ctx, note.AudioObjectKey)
	if err != nil {
		return "", fmt.Errorf("failed to fetch audio: %w", err)
	}

	transcript, err := callServiceBehindBreaker(ctx, o, func(callCtx context.Context) (string, error) {
		return o.service.Transcribe(callCtx, clip)
	})
	if err != nil {
		return "", err
	}

	// Persist the transcription immediately so a later failure in the
	// analysis step does not force re-transcription on retry.
	if err := o.notes.SaveTranscription(ctx, note.ID, transcript); err != nil {
		return "", fmt.Errorf("failed to save transcription: %w", err)
	}

	return transcript, nil
}

// analyzeStep produces the structured analysis for the transcription.
func (o *Orchestrator) analyzeStep(ctx context.Context, note *domain.Note, transcript string, log *slog.Logger) (*domain.NoteAnalysis, error) {
	contextHint := fmt.Sprintf("recorded %s, %.0f seconds of audio",
		note.RecordedAt.UTC().Format(time.RFC3339), note.DurationSeconds)

	return callServiceBehindBreaker(ctx, o, func(callCtx context.Context) (*domain.NoteAnalysis, error) {
		return o.service.Analyze(callCtx, transcript, contextHint)
	})
}

// callServiceBehindBreaker runs one external call behind the breaker with its own
// timeout, reporting the outcome back to the breaker. Permanent model
// answers (blocked content, malformed response) are the service being
// available but unhelpful, so only transient failures count against it.
func callServiceBehindBreaker[T any](ctx context.Context, o *Orchestrator, call func(context.Context) (T, error)) (T, error) {
	var zero T

	if err := o.breaker.Allow(ctx); err != nil {
		return zero, fmt.Errorf("%w: %v", transcription.ErrServiceUnavailable, err)
	}

	callCtx, cancel := context.WithTimeout(ctx, o.cfg.CallTimeout)
	defer cancel()

	result, err := call(callCtx)
	if err != nil {
		if errors.Is(err, transcription.ErrTransientFailure) {
			o.breaker.RecordFailure(ctx)
		} else {
			o.breaker.RecordSuccess(ctx)
		}
		return zero, err
	}

	o.breaker.RecordSuccess(ctx)
	return result, nil
}

// handleFailure settles a failed processing cycle: the error is
// persisted on the note and the lock released, so retry eligibility
// depends only on the attempt counter. A breaker short-circuit counts
// as a transient failure like any other; the breaker's cooldown, not a
// spared attempt, is what protects notes during an outage.
func (o *Orchestrator) handleFailure(ctx context.Context, note *domain.Note, procErr error, log *slog.Logger) error {
	if errors.Is(procErr, transcription.ErrServiceUnavailable) {
		log.Info("processing deferred, external service unavailable",
			slog.Int("attempt", note.ProcessingAttempts+1))
	} else {
		log.Warn("note processing failed",
			slog.String("error", procErr.Error()),
			slog.Int("attempt", note.ProcessingAttempts+1))
	}

	if err := o.notes.RecordFailure(ctx, note.ID, procErr.Error()); err != nil {
		log.Error("failed to record processing failure",
			slog.String("error", err.Error()))
		return fmt.Errorf("failed to record failure: %w", err)
	}

	return nil
}

// ResetStuckProcessing clears stale processing locks. In force mode it
// clears every held lock and the error state so affected notes retry
// immediately; otherwise only locks older than the configured timeout
// are released.
func (o *Orchestrator) ResetStuckProcessing(ctx context.Context, force bool) (int, error) {
	log := logger.FromContextOrDefault(ctx, o.logger)

	if force {
		count, err := o.notes.ForceResetLocks(ctx)
		if err != nil {
			return 0, fmt.Errorf("failed to force-reset processing locks: %w", err)
		}
		log.Warn("force-reset processing locks", slog.Int("count", count))
		return count, nil
	}

	count, err := o.notes.ResetStaleLocks(ctx, o.cfg.LockTimeout)
	if err != nil {
		return 0, fmt.Errorf("failed to reset stale processing locks: %w", err)
	}
	if count > 0 {
		log.Info("reset stale processing locks", slog.Int("count", count))
	}
	return count, nil
}
