package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (s *Server) setupRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(s.requestMetrics)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/", s.handleIndex)
	r.Get("/tasks", s.handleListTasks)
	r.Get("/logs", s.handleLogs)
	r.Post("/add_task", s.handleAddTask)
	r.Post("/cancel_task/{id}", s.handleCancelTask)
	r.Post("/update_stale", s.handleUpdateStale)

	r.Get("/healthz", s.handleHealthCheck)
	r.Handle("/metrics", promhttp.Handler())

	return r
}
