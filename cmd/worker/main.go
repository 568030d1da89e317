package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/adsync-ai/adsync/internal/pkg/config"
	"github.com/adsync-ai/adsync/internal/pkg/database"
	"github.com/adsync-ai/adsync/internal/pkg/logger"
	pkgredis "github.com/adsync-ai/adsync/internal/pkg/redis"
	"github.com/adsync-ai/adsync/internal/provider"
	"github.com/adsync-ai/adsync/internal/worker"
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
		Str("service", "worker").
		Msg("Starting worker service")

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

	// Initialize the provider registry
	registry := provider.NewDefaultRegistry(&cfg.Providers)

	// Create worker
	w := worker.New(cfg, db, redisClient, registry)

	// Handle shutdown
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		log.Info().Msg("Shutting down worker...")
		w.Shutdown()
	}()

	// Start worker
	if err := w.Start(); err != nil {
		log.Fatal().Err(err).Msg("Worker error")
	}
}
