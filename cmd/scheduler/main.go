package main

import (
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/adsync-ai/adsync/internal/pkg/config"
	"github.com/adsync-ai/adsync/internal/pkg/database"
	"github.com/adsync-ai/adsync/internal/pkg/logger"
	"github.com/adsync-ai/adsync/internal/pkg/queue"
	pkgredis "github.com/adsync-ai/adsync/internal/pkg/redis"
	"github.com/adsync-ai/adsync/internal/scheduler"
	"github.com/adsync-ai/adsync/internal/scheduler/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Initialize logger
	logger.Init(cfg.App.Environment, cfg.App.Debug)

	log.Info().
		Str("app", cfg.App.Name).
		Str("service", "scheduler").
		Msg("Starting scheduler service")

	// Connect to database
	db, err := database.NewGormDB(&cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}

	// Connect to Redis
	redisClient, err := pkgredis.NewClient(&cfg.Redis)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}

	// Initialize queue client
	queueClient := queue.NewClient(&cfg.Redis)
	defer queueClient.Close()

	// Create scheduler config
	schedulerCfg := scheduler.DefaultConfig()
	schedulerCfg.RefreshInterval = cfg.Scheduler.RefreshInterval
	schedulerCfg.BatchSize = cfg.Scheduler.BatchSize
	schedulerCfg.MinIntervalS = cfg.Scheduler.MinIntervalS
	schedulerCfg.LeaderKey = cfg.Scheduler.LeaderKey
	schedulerCfg.LeaderTTL = cfg.Scheduler.LeaderTTL
	schedulerCfg.StaleThreshold = cfg.Scheduler.StaleThreshold
	schedulerCfg.RetentionDays = cfg.Scheduler.RetentionDays
	schedulerCfg.MaxQueueDepth = cfg.Scheduler.MaxQueueDepth
	schedulerCfg.ShutdownTimeout = cfg.Scheduler.ShutdownTimeout

	// Create scheduler
	s := scheduler.New(schedulerCfg, &scheduler.Dependencies{
		DB:    db,
		Redis: redisClient,
		Queue: queueClient,
	})

	// Start scheduler
	if err := s.Start(); err != nil {
		log.Fatal().Err(err).Msg("Failed to start scheduler")
	}

	// Diagnostics endpoint: prometheus metrics, health, raw snapshot
	exporter := metrics.NewExporter(s.Metrics())
	registry := prometheus.NewRegistry()
	if err := exporter.Register(registry); err != nil {
		log.Fatal().Err(err).Msg("Failed to register scheduler metrics")
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/health", exporter.Health())
	mux.HandleFunc("/snapshot", exporter.SnapshotHandler())

	go func() {
		log.Info().Str("addr", cfg.Scheduler.MetricsAddr).Msg("Scheduler diagnostics listening")
		if err := http.ListenAndServe(cfg.Scheduler.MetricsAddr, mux); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("Diagnostics server error")
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Received shutdown signal")

	// Stop scheduler
	if err := s.Stop(); err != nil {
		log.Error().Err(err).Msg("Error stopping scheduler")
	}

	log.Info().Msg("Scheduler stopped")
}
