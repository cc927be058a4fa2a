package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/novasearch/novacrawler/internal/crawler"
	"github.com/novasearch/novacrawler/internal/domain"
	"github.com/novasearch/novacrawler/internal/storage"
)

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(dashboardHTML)
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := s.store.ListTasks(r.Context(), s.config.TaskListLimit)
	if err != nil {
		s.logger.Error("failed to list tasks", zap.Error(err))
		s.respondWithError(w, http.StatusInternalServerError, "Could not retrieve tasks")
		return
	}
	s.respondWithJSON(w, http.StatusOK, tasks)
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	s.respondWithJSON(w, http.StatusOK, s.logs.Lines())
}

func (s *Server) handleAddTask(w http.ResponseWriter, r *http.Request) {
	var req domain.AddTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	u, err := url.ParseRequestURI(req.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		s.respondWithError(w, http.StatusBadRequest, "Invalid URL: must be absolute http(s)")
		return
	}
	if req.Depth < 1 || req.Depth > s.config.MaxDepth {
		s.respondWithError(w, http.StatusBadRequest,
			fmt.Sprintf("Depth must be between 1 and %d", s.config.MaxDepth))
		return
	}

	task := &domain.Task{
		Type:        domain.TaskTypeCrawl,
		URL:         req.URL,
		Depth:       req.Depth,
		SameDomain:  req.SameDomain,
		StealthMode: req.StealthMode,
		Status:      domain.StatusPending,
	}
	if err := s.store.CreateTask(r.Context(), task); err != nil {
		s.logger.Error("failed to create task", zap.Error(err))
		s.respondWithError(w, http.StatusInternalServerError, "Could not create task")
		return
	}
	s.engine.Enqueue(task.ID)
	s.metrics.IncTasksTotal(string(domain.TaskTypeCrawl))

	s.logger.Info("task submitted",
		zap.Int64("task_id", task.ID),
		zap.String("url", task.URL),
		zap.Int("depth", task.Depth),
		zap.Bool("same_domain", task.SameDomain),
		zap.Bool("stealth_mode", task.StealthMode))
	s.respondWithJSON(w, http.StatusAccepted, task)
}

func (s *Server) handleCancelTask(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		s.respondWithError(w, http.StatusBadRequest, "Invalid task id")
		return
	}

	if err := s.engine.Cancel(r.Context(), id); err != nil {
		switch {
		case errors.Is(err, storage.ErrTaskNotFound):
			s.respondWithError(w, http.StatusNotFound, "Task not found")
		case errors.Is(err, crawler.ErrNotCancellable):
			s.respondWithError(w, http.StatusConflict, "Task already finished")
		default:
			s.logger.Error("failed to cancel task", zap.Int64("task_id", id), zap.Error(err))
			s.respondWithError(w, http.StatusInternalServerError, "Could not cancel task")
		}
		return
	}

	s.logger.Info("task cancelled", zap.Int64("task_id", id))
	s.respondWithJSON(w, http.StatusOK, map[string]string{"message": "Task cancelled"})
}

func (s *Server) handleUpdateStale(w http.ResponseWriter, r *http.Request) {
	active, err := s.store.HasActiveStaleUpdate(r.Context())
	if err != nil {
		s.logger.Error("failed to check stale update state", zap.Error(err))
		s.respondWithError(w, http.StatusInternalServerError, "Could not check running tasks")
		return
	}
	if active {
		s.respondWithError(w, http.StatusConflict, "A stale update is already queued or running")
		return
	}

	task := &domain.Task{
		Type:   domain.TaskTypeStaleUpdate,
		Status: domain.StatusPending,
	}
	if err := s.store.CreateTask(r.Context(), task); err != nil {
		s.logger.Error("failed to create stale update task", zap.Error(err))
		s.respondWithError(w, http.StatusInternalServerError, "Could not create task")
		return
	}
	s.engine.Enqueue(task.ID)
	s.metrics.IncTasksTotal(string(domain.TaskTypeStaleUpdate))

	s.logger.Info("stale update submitted", zap.Int64("task_id", task.ID))
	s.respondWithJSON(w, http.StatusAccepted, task)
}

func (s *Server) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	healthStatus := make(map[string]string)

	if err := s.pgHealth.Ping(ctx); err != nil {
		healthStatus["postgres"] = "unhealthy"
		s.logger.Error("health check failed for postgres", zap.Error(err))
	} else {
		healthStatus["postgres"] = "healthy"
	}

	if err := s.rdHealth.Ping(ctx); err != nil {
		healthStatus["redis"] = "unhealthy"
		s.logger.Error("health check failed for redis", zap.Error(err))
	} else {
		healthStatus["redis"] = "healthy"
	}

	if healthStatus["postgres"] != "healthy" || healthStatus["redis"] != "healthy" {
		s.respondWithJSON(w, http.StatusServiceUnavailable, healthStatus)
		return
	}
	s.respondWithJSON(w, http.StatusOK, healthStatus)
}

func (s *Server) respondWithError(w http.ResponseWriter, code int, message string) {
	s.respondWithJSON(w, code, map[string]string{"error": message})
}

func (s *Server) respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, _ := json.Marshal(payload)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}
