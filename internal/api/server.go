package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/novasearch/novacrawler/internal/config"
	"github.com/novasearch/novacrawler/internal/domain"
	"github.com/novasearch/novacrawler/internal/monitoring"
)

// TaskStore is the slice of task persistence the HTTP layer needs.
type TaskStore interface {
	CreateTask(ctx context.Context, task *domain.Task) error
	ListTasks(ctx context.Context, limit int) ([]domain.Task, error)
	HasActiveStaleUpdate(ctx context.Context) (bool, error)
}

// TaskRunner accepts and cancels queued tasks.
type TaskRunner interface {
	Enqueue(id int64) bool
	Cancel(ctx context.Context, id int64) error
}

// LogSource exposes the recent log lines shown on the dashboard.
type LogSource interface {
	Lines() []string
}

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server holds the dependencies for the HTTP server.
type Server struct {
	config     *config.Config
	router     http.Handler
	httpServer *http.Server
	store      TaskStore
	engine     TaskRunner
	logs       LogSource
	pgHealth   Pinger
	rdHealth   Pinger
	metrics    *monitoring.Metrics
	logger     *zap.Logger
}

func NewServer(
	cfg *config.Config,
	store TaskStore,
	engine TaskRunner,
	logs LogSource,
	pgHealth Pinger,
	rdHealth Pinger,
	m *monitoring.Metrics,
	l *zap.Logger,
) *Server {
	s := &Server{
		config:   cfg,
		store:    store,
		engine:   engine,
		logs:     logs,
		pgHealth: pgHealth,
		rdHealth: rdHealth,
		metrics:  m,
		logger:   l,
	}
	s.router = s.setupRouter()
	return s
}

func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%s", s.config.ServerPort),
		Handler:      s.router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}
