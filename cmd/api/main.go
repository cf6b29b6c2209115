// Package main is the entry point for the flow engine API server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/civicdesk/chatflow/internal/apiclient"
	"github.com/civicdesk/chatflow/internal/config"
	"github.com/civicdesk/chatflow/internal/department"
	"github.com/civicdesk/chatflow/internal/dispatch"
	"github.com/civicdesk/chatflow/internal/engine"
	"github.com/civicdesk/chatflow/internal/handler"
	"github.com/civicdesk/chatflow/internal/middleware"
	"github.com/civicdesk/chatflow/internal/model"
	natsclient "github.com/civicdesk/chatflow/internal/nats"
	"github.com/civicdesk/chatflow/internal/scheduler"
	"github.com/civicdesk/chatflow/internal/store"
	"github.com/civicdesk/chatflow/pkg/logger"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	logger.SetGlobal(log)

	log.Info("starting flow engine API server")

	ctx := context.Background()

	// Connect to NATS
	natsClient, err := natsclient.Connect(natsclient.Config{
		URL:      cfg.NATSURL,
		CAFile:   cfg.NATSCAFile,
		CertFile: cfg.NATSCertFile,
		KeyFile:  cfg.NATSKeyFile,
		Token:    cfg.NATSToken,
	}, log)
	if err != nil {
		log.Error("failed to connect to NATS", zap.Error(err))
		os.Exit(1)
	}
	defer natsClient.Close()

	// Ensure JetStream stream exists
	streamManager := natsclient.NewStreamManager(natsClient)
	if err := streamManager.EnsureStream(ctx); err != nil {
		log.Error("failed to ensure stream", zap.Error(err))
		os.Exit(1)
	}

	// Connect to Redis
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer redisClient.Close()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Error("failed to connect to Redis", zap.Error(err))
		os.Exit(1)
	}

	// Stores
	flows := store.NewFlowRepository()
	sessions := store.NewRedisSessionStore(redisClient, cfg.SessionTTL)
	dedup := store.NewRedisDeduper(redisClient, cfg.DedupWindow)
	locks := store.NewRedisConversationLocks(redisClient, cfg.LockTTL)

	// Engine wiring
	departments := department.NewStaticProvider()
	executor := engine.NewExecutor(departments, log)
	invoker := apiclient.New(apiclient.Config{Timeout: cfg.APICallTimeout})
	dispatcher := dispatch.NewNATSDispatcher(streamManager)
	delayQueue := scheduler.NewRedisScheduler(redisClient)

	runner := engine.NewRunner(flows, sessions, dedup, locks, dispatcher, invoker, delayQueue, executor, engine.RunnerConfig{
		APICallTimeout: cfg.APICallTimeout,
		APIMaxRetries:  cfg.APIMaxRetries,
		APIRetryWait:   cfg.APIRetryWait,
	}, log)

	// Delay queue worker
	worker := scheduler.NewWorker(delayQueue, func(ctx context.Context, event *model.InboundEvent) error {
		_, err := runner.HandleEvent(ctx, event)
		return err
	}, cfg.DelayPollInterval, log)
	worker.Start(ctx)
	defer worker.Stop()

	// Initialize handlers
	healthHandler := handler.NewHealthHandler(natsClient, redisClient)
	webhookHandler := handler.NewWebhookHandler(runner, log)
	flowHandler := handler.NewFlowHandler(flows, log)
	sessionHandler := handler.NewSessionHandler(sessions, log)

	// Create router
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(log))
	r.Use(middleware.SecurityHeaders)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS())

	// Health endpoints (no auth required)
	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)

	// Metrics endpoint
	r.Handle("/metrics", promhttp.Handler())

	// Transport webhook: unauthenticated but rate limited per source.
	r.Group(func(r chi.Router) {
		r.Use(middleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))
		r.Post("/webhook/{tenantID}", webhookHandler.Receive)
	})

	// Admin API routes with authentication
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWTSecret))
		r.Use(middleware.UserRateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))

		r.Route("/flows", func(r chi.Router) {
			r.Post("/", flowHandler.Create)
			r.Get("/", flowHandler.List)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", flowHandler.Get)
				r.Post("/activate", flowHandler.Activate)
				r.Post("/deactivate", flowHandler.Deactivate)
			})
		})

		r.Get("/sessions/{conversationID}", sessionHandler.Get)
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      r,
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info("server listening", zap.String("port", cfg.ServerPort))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", zap.Error(err))
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	log.Info("server stopped")
}
