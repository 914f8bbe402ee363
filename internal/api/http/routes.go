package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter creates the HTTP router with middleware, the /api routes and
// the Prometheus metrics endpoint.
func NewRouter(taskService TaskServiceI, corsOrigins []string, logger *slog.Logger) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Logger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: corsOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
		MaxAge:         300,
	}))

	h := NewTaskHandler(taskService, logger)

	r.Route("/api", func(r chi.Router) {
		r.Post("/check-size", h.CheckSize)
		r.Post("/archive", h.StartArchive)
		r.Get("/health", h.Health)

		r.Route("/download", func(r chi.Router) {
			r.Post("/start", h.StartDownload)
			r.Get("/progress/{taskID}", h.GetTask)
			r.Post("/cancel/{taskID}", h.Cancel)
			r.Post("/pause/{taskID}", h.Pause)
			r.Post("/resume/{taskID}", h.Resume)
			r.Get("/tasks", h.ListTasks)
			r.Delete("/tasks/{taskID}", h.RemoveTask)
		})
	})

	r.Handle("/metrics", promhttp.Handler())

	return r
}
