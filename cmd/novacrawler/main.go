package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/novasearch/novacrawler/internal/api"
	"github.com/novasearch/novacrawler/internal/config"
	"github.com/novasearch/novacrawler/internal/crawler"
	"github.com/novasearch/novacrawler/internal/favicon"
	"github.com/novasearch/novacrawler/internal/logging"
	"github.com/novasearch/novacrawler/internal/monitoring"
	"github.com/novasearch/novacrawler/internal/storage"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("could not load config: %v", err)
	}

	// Initialize structured logger; the ring buffer feeds the dashboard's
	// log panel
	logBuffer := logging.NewBuffer(cfg.LogBufferLines)
	logger, err := logging.New(cfg.LogLevel, logBuffer)
	if err != nil {
		log.Fatalf("could not build logger: %v", err)
	}
	defer logger.Sync()

	ctx := context.Background()

	// Initialize Storage Layer
	pgStore, err := storage.NewPostgresStore(ctx, cfg.PostgresURL)
	if err != nil {
		logger.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer pgStore.Close()

	redisStore := storage.NewRedisStore(cfg.RedisAddr)
	if err := redisStore.Ping(ctx); err != nil {
		logger.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer redisStore.Close()

	// Initialize Monitoring
	metrics := monitoring.NewMetrics(prometheus.DefaultRegisterer)

	// Initialize Fetcher and Favicon Service
	crawlTimeout := time.Duration(cfg.CrawlTimeout) * time.Second
	var fetcher crawler.Fetcher
	switch cfg.FetchMode {
	case "browser":
		fetcher = crawler.NewBrowserFetcher(crawlTimeout, cfg.UserAgent)
	default:
		fetcher = crawler.NewHTTPFetcher(crawlTimeout, cfg.UserAgent)
	}
	logger.Info("fetcher initialized", zap.String("mode", cfg.FetchMode))

	favicons, err := favicon.NewService(pgStore, cfg.FaviconDir, cfg.FaviconWorkers, crawlTimeout, cfg.UserAgent, logger)
	if err != nil {
		logger.Fatal("failed to initialize favicon service", zap.Error(err))
	}

	// Initialize Crawl Engine
	engine := crawler.NewEngine(cfg, pgStore, pgStore, redisStore, fetcher, favicons, metrics, logger)
	engine.Start()
	if err := engine.ResumePending(ctx); err != nil {
		logger.Error("could not resume pending tasks", zap.Error(err))
	}

	// Initialize API Server
	server := api.NewServer(cfg, pgStore, engine, logBuffer, pgStore, redisStore, metrics, logger)

	// Graceful Shutdown
	go func() {
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("could not start server", zap.Error(err))
		}
	}()

	logger.Info("server started", zap.String("port", cfg.ServerPort))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	engine.Stop()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("server forced to shutdown", zap.Error(err))
	}

	logger.Info("server exiting")
}
