package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/adsync-ai/adsync/internal/api/handlers"
	"github.com/adsync-ai/adsync/internal/api/middleware"
	"github.com/adsync-ai/adsync/internal/domain/repositories"
	"github.com/adsync-ai/adsync/internal/domain/services"
	"github.com/adsync-ai/adsync/internal/pkg/clock"
	"github.com/adsync-ai/adsync/internal/pkg/config"
	"github.com/adsync-ai/adsync/internal/pkg/crypto"
	"github.com/adsync-ai/adsync/internal/pkg/metrics"
	"github.com/adsync-ai/adsync/internal/pkg/queue"
	pkgredis "github.com/adsync-ai/adsync/internal/pkg/redis"
	"github.com/adsync-ai/adsync/internal/trigger"
)

type Server struct {
	cfg        *config.Config
	router     *chi.Mux
	httpServer *http.Server
}

func NewServer(
	cfg *config.Config,
	db *gorm.DB,
	redisClient *pkgredis.Client,
	queueClient *queue.Client,
) *Server {
	router := chi.NewRouter()

	// Global middleware
	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(middleware.Logger())
	router.Use(middleware.Recoverer())
	router.Use(chimiddleware.Timeout(60 * time.Second))

	// CORS - support multiple origins (comma-separated in config)
	allowedOrigins := strings.Split(cfg.Server.CORSOrigins, ",")
	for i := range allowedOrigins {
		allowedOrigins[i] = strings.TrimSpace(allowedOrigins[i])
	}
	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID", "Idempotency-Key"},
		ExposedHeaders:   []string{"X-Request-ID", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
		AllowCredentials: true,
		MaxAge:           300,
	})
	router.Use(corsHandler.Handler)

	// Services
	jwtManager := crypto.NewJWTManager(crypto.JWTConfig{
		Secret:        cfg.JWT.Secret,
		AccessExpiry:  cfg.JWT.AccessExpiry,
		RefreshExpiry: cfg.JWT.RefreshExpiry,
		Issuer:        cfg.JWT.Issuer,
	})
	authSvc := services.NewAuthService(db, jwtManager)
	scheduleSvc := services.NewScheduleService(db)
	triggerSvc := trigger.NewService(db, queueClient, clock.New(), cfg.Trigger.LookbackWindow)

	// Handlers
	authHandler := handlers.NewAuthHandler(authSvc)
	scheduleHandler := handlers.NewScheduleHandler(scheduleSvc)
	taskHandler := handlers.NewTaskHandler(repositories.NewTaskRepository(db))
	runHandler := handlers.NewRunHandler(repositories.NewRunRepository(db))
	triggerHandler := handlers.NewTriggerHandler(triggerSvc)
	healthHandler := handlers.NewHealthHandler(db, redisClient)

	// Middleware
	authMiddleware := middleware.NewAuthMiddleware(jwtManager)
	rateLimiter := middleware.NewRateLimiter(redisClient)

	// Routes
	router.Route("/api/v1", func(r chi.Router) {
		// Public routes
		r.Group(func(r chi.Router) {
			r.Use(rateLimiter.Limit(100, time.Minute)) // 100 requests per minute

			r.Post("/auth/register", authHandler.Register)
			r.Post("/auth/login", authHandler.Login)
			r.Post("/auth/refresh", authHandler.Refresh)

			r.Get("/health", healthHandler.Health)
			r.Get("/health/live", healthHandler.Live)
			r.Get("/health/ready", healthHandler.Ready)
		})

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(authMiddleware.Authenticate)
			r.Use(authMiddleware.RequireWorkspace)
			r.Use(rateLimiter.Limit(1000, time.Minute)) // 1000 requests per minute

			// Task catalog
			r.Get("/tasks", taskHandler.List)
			r.Get("/tasks/{name}", taskHandler.Get)

			// Schedules
			r.Get("/schedules", scheduleHandler.List)
			r.Post("/schedules", scheduleHandler.Create)
			r.Get("/schedules/{id}", scheduleHandler.Get)
			r.Put("/schedules/{id}", scheduleHandler.Update)
			r.Delete("/schedules/{id}", scheduleHandler.Delete)
			r.Post("/schedules/{id}/enable", scheduleHandler.Enable)
			r.Post("/schedules/{id}/disable", scheduleHandler.Disable)

			// Runs
			r.Get("/runs", runHandler.List)
			r.Get("/runs/{id}", runHandler.Get)

			// On-demand trigger, workspace rate limited on top of the
			// per-user limit
			r.Group(func(r chi.Router) {
				r.Use(rateLimiter.LimitByWorkspace(cfg.Trigger.RateLimit, cfg.Trigger.RateWindow))
				r.Post("/trigger", triggerHandler.Trigger)
			})
		})
	})

	// Metrics endpoint (Prometheus)
	router.Handle("/metrics", metrics.Handler())

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return &Server{
		cfg:        cfg,
		router:     router,
		httpServer: httpServer,
	}
}

func (s *Server) Start() error {
	log.Info().Str("addr", s.httpServer.Addr).Msg("Starting HTTP server")
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) Router() *chi.Mux {
	return s.router
}
