package main

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/phrazzld/asyncapp/internal/api"
	apiMiddleware "github.com/phrazzld/asyncapp/internal/api/middleware"
)

// setupRouter creates the status API router. Open websocket streams are
// closed when ctx is cancelled.
func (a *application) setupRouter(ctx context.Context) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(apiMiddleware.NewTraceMiddleware(a.logger))

	var sampler api.ResourceSampler
	if a.sampler != nil {
		sampler = a.sampler
	}
	statusHandler := api.NewStatusHandler(a.runtime, sampler, a.logger)
	streamHandler := api.NewStreamHandler(ctx, a.messenger, a.runtime.Name(), a.logger)

	r.Get("/health", statusHandler.Health)

	r.Route("/api", func(r chi.Router) {
		r.Get("/status/tasks", statusHandler.GetTasks)
		r.Get("/status/periodicals", statusHandler.GetPeriodicals)
		r.Get("/status/resources", statusHandler.GetResources)
		r.Get("/status/stream/{channel}", streamHandler.Stream)
		r.Get("/results", statusHandler.GetResults)

		// Shutdown is only exposed when operators can authenticate
		if a.tokenService != nil {
			authMiddleware := apiMiddleware.NewAuthMiddleware(a.tokenService)
			r.With(authMiddleware.Authenticate).Post("/shutdown", statusHandler.Shutdown)
		}
	})

	return r
}
