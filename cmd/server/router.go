package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/phrazzld/overseer/internal/api"
	apiMiddleware "github.com/phrazzld/overseer/internal/api/middleware"
	"github.com/phrazzld/overseer/internal/task"
)

// setupRouter creates and configures the application router with all routes
// and middleware. It accepts the application dependencies to create handlers
// and register routes. Returns the configured router.
func (app *application) setupRouter() http.Handler {
	// Create a router
	r := chi.NewRouter()

	// Apply standard middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(apiMiddleware.NewTraceMiddleware(app.logger))

	// Create API handlers using the application's services
	taskHandler := api.NewTaskHandler(
		app.supervisor,
		app.gatherer,
		app.jobs,
		task.GatherOptions{StartJitterMax: app.batchJitter()},
		app.logger,
	)

	// Register routes
	r.Route("/api", func(r chi.Router) {
		// Task endpoints
		r.Post("/tasks", taskHandler.SubmitTask)
		r.Get("/tasks", taskHandler.ListTasks)
		r.Delete("/tasks/{id}", taskHandler.CancelTask)

		// Batch endpoint
		r.Post("/batches", taskHandler.GatherBatch)
	})

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, err := w.Write([]byte("OK"))
		if err != nil {
			app.logger.Error("Failed to write health check response", "error", err)
		}
	})

	return r
}
