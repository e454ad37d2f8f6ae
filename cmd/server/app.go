package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/voxnote/voxnote-api/internal/breaker"
	"github.com/voxnote/voxnote-api/internal/config"
	"github.com/voxnote/voxnote-api/internal/events"
	"github.com/voxnote/voxnote-api/internal/monitor"
	"github.com/voxnote/voxnote-api/internal/platform/gemini"
	"github.com/voxnote/voxnote-api/internal/platform/postgres"
	"github.com/voxnote/voxnote-api/internal/quota"
	"github.com/voxnote/voxnote-api/internal/service/auth"
	"github.com/voxnote/voxnote-api/internal/store"
	"github.com/voxnote/voxnote-api/internal/worker"
)

// application holds all the shared application dependencies to simplify
// management and ensure proper cleanup on shutdown.
type application struct {
	config *config.Config
	logger *slog.Logger
	db     *sql.DB

	noteStore  store.NoteStore
	usageStore store.UsageStore

	jwtService auth.JWTService
	verifier   auth.CredentialVerifier

	breaker      *breaker.Breaker
	quotas       *quota.Manager
	orchestrator *worker.Orchestrator
	runner       *worker.Runner
	monitor      *monitor.Monitor
	eventEmitter events.EventEmitter
}

// newApplication creates an application instance with all dependencies
// initialized and the worker pool started.
func newApplication(ctx context.Context, cfg *config.Config, logger *slog.Logger, db *sql.DB) (*application, error) {
	app := &application{
		config: cfg,
		logger: logger,
		db:     db,
	}

	var err error
	app.jwtService, err = auth.NewJWTService(cfg.Auth)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize JWT service: %w", err)
	}
	logger.Info("JWT authentication service initialized",
		"token_lifetime_minutes", cfg.Auth.TokenLifetimeMinutes)

	app.verifier, err = auth.NewBcryptCredentialVerifier(cfg.Auth.ServiceCredentialHash)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize credential verifier: %w", err)
	}

	app.noteStore = postgres.NewPostgresNoteStore(db, logger)
	app.usageStore = postgres.NewPostgresUsageStore(db, logger)

	// A shared breaker keeps its decision state in the same database as
	// the locks so all processes see Open at once. Without the flag the
	// state stays process-local.
	var breakerStore breaker.StateStore
	if cfg.Breaker.Shared {
		breakerStore = postgres.NewPostgresBreakerStore(db, logger)
	}
	app.breaker = breaker.New(breaker.Config{
		FailureThreshold: cfg.Breaker.FailureThreshold,
		Window:           time.Duration(cfg.Breaker.WindowSeconds) * time.Second,
		Cooldown:         time.Duration(cfg.Breaker.CooldownSeconds) * time.Second,
		MaxCooldown:      time.Duration(cfg.Breaker.MaxCooldownSeconds) * time.Second,
	}, breakerStore, logger)

	app.quotas, err = quota.NewManager(
		quota.NewCounterLister(app.usageStore),
		app.usageStore,
		cfg.Quota,
		logger,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize quota manager: %w", err)
	}

	transcriber, err := gemini.NewGeminiTranscriber(
		ctx,
		logger.With("component", "gemini_transcriber"),
		cfg.AI,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize transcription service: %w", err)
	}
	logger.Info("Transcription service initialized", "model", cfg.AI.ModelName)

	fetcher, err := worker.NewFilesystemFetcher(cfg.Storage.AudioRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize audio fetcher: %w", err)
	}

	lockTimeout := time.Duration(cfg.Pipeline.LockTimeoutMinutes) * time.Minute

	app.orchestrator, err = worker.NewOrchestrator(
		app.noteStore,
		transcriber,
		app.breaker,
		app.quotas,
		fetcher,
		worker.OrchestratorConfig{
			LockTimeout: lockTimeout,
			MaxAttempts: cfg.Pipeline.MaxAttempts,
			CallTimeout: time.Duration(cfg.AI.CallTimeoutSeconds) * time.Second,
		},
		logger,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize orchestrator: %w", err)
	}

	app.runner, err = worker.NewRunner(app.orchestrator, app.noteStore, worker.RunnerConfig{
		WorkerCount:       cfg.Pipeline.WorkerCount,
		BatchSize:         cfg.Pipeline.BatchSize,
		PollInterval:      time.Duration(cfg.Pipeline.PollIntervalSeconds) * time.Second,
		LockTimeout:       lockTimeout,
		MaxAttempts:       cfg.Pipeline.MaxAttempts,
		ReconcileInterval: time.Duration(cfg.Pipeline.ReconcileIntervalMinutes) * time.Minute,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize runner: %w", err)
	}

	app.monitor, err = monitor.New(app.noteStore, app.breaker, monitor.Rates{
		TranscriptionCentsPerMinute: cfg.AI.TranscriptionCentsPerMinute,
		AnalysisCentsPerCall:        cfg.AI.AnalysisCentsPerCall,
	}, lockTimeout, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize monitor: %w", err)
	}

	emitter := events.NewInMemoryEventEmitter(logger)
	uploadHandler, err := worker.NewUploadEventHandler(app.runner, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize upload event handler: %w", err)
	}
	emitter.RegisterHandler(uploadHandler)
	app.eventEmitter = emitter

	app.runner.Start()
	logger.Info("Worker pool started",
		"worker_count", cfg.Pipeline.WorkerCount,
		"poll_interval_seconds", cfg.Pipeline.PollIntervalSeconds)

	logger.Info("Application initialized successfully")
	return app, nil
}

// Run starts the HTTP server and blocks until shutdown completes.
func (app *application) Run(ctx context.Context) error {
	router := app.setupRouter()

	if err := app.startHTTPServer(ctx, router); err != nil {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// cleanup handles graceful shutdown of application resources. The
// runner stops first so in-flight notes finish or release their locks
// before the database connection goes away.
func (app *application) cleanup() {
	if app.runner != nil {
		app.runner.Stop()
	}

	if app.db != nil {
		if err := app.db.Close(); err != nil {
			app.logger.Error("Error closing database connection", "error", err)
		}
	}

	app.logger.Info("Application shutdown completed")
}
