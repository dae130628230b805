package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/phrazzld/mediaforge-api/internal/api"
	apiMiddleware "github.com/phrazzld/mediaforge-api/internal/api/middleware"
)

// setupRouter creates and configures the application router with all routes and middleware.
func (app *application) setupRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(apiMiddleware.NewTraceMiddleware(app.logger))

	taskHandler := api.NewTaskHandler(app.engine, app.logger)
	webhookHandler := api.NewWebhookHandler(app.engine, app.logger)
	authMiddleware := apiMiddleware.NewAuthMiddleware(app.jwtService)
	signature := apiMiddleware.NewWebhookSignature(app.config.Webhook.Secret, app.config.Webhook.Tolerance)

	r.Route("/api", func(r chi.Router) {
		r.Use(authMiddleware.Authenticate)

		r.Post("/tasks", taskHandler.SubmitTask)
		r.Get("/tasks/{id}", taskHandler.GetTask)
		r.Post("/tasks/{id}/cancel", taskHandler.CancelTask)
		r.Get("/kinds", taskHandler.ListKinds)
		r.Get("/queue", taskHandler.QueueSnapshot)
	})

	r.With(signature.Verify).Post("/webhooks/provider", webhookHandler.HandleProviderWebhook)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			app.logger.Error("Failed to write health check response", "error", err)
		}
	})

	return r
}
