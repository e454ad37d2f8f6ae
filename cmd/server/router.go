package main

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/voxnote/voxnote-api/internal/api"
	apiMiddleware "github.com/voxnote/voxnote-api/internal/api/middleware"
)

// setupRouter creates and configures the application router with all
// routes and middleware.
func (app *application) setupRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(apiMiddleware.TraceMiddleware)

	lockTimeout := time.Duration(app.config.Pipeline.LockTimeoutMinutes) * time.Minute

	adminHandler := api.NewAdminHandler(app.orchestrator, app.breaker, app.monitor, app.logger)
	statusHandler := api.NewStatusHandler(
		app.noteStore,
		app.monitor,
		lockTimeout,
		app.config.Pipeline.MaxAttempts,
		app.logger,
	)
	eventsHandler := api.NewEventsHandler(app.eventEmitter, app.logger)
	healthHandler := api.NewHealthHandler(app.db)
	authMiddleware := apiMiddleware.NewAuthMiddleware(app.jwtService, app.verifier)

	r.Route("/api", func(r chi.Router) {
		// Either a user JWT or the service credential.
		r.Group(func(r chi.Router) {
			r.Use(authMiddleware.Authenticate)
			r.Get("/status", statusHandler.GetStatus)
			r.Post("/admin/reset-processing", adminHandler.ResetProcessing)
		})

		// Service credential only.
		r.Group(func(r chi.Router) {
			r.Use(authMiddleware.RequireService)
			r.Post("/admin/dispatch", adminHandler.Dispatch)
			r.Post("/events", eventsHandler.PostEvent)
		})
	})

	r.Get("/health", healthHandler.GetHealth)

	return r
}
