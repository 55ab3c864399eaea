// Package main is the entry point for the relay API server.
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
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/relaymesh/messaging-relay/internal/breaker"
	"github.com/relaymesh/messaging-relay/internal/cache"
	"github.com/relaymesh/messaging-relay/internal/codec"
	"github.com/relaymesh/messaging-relay/internal/config"
	"github.com/relaymesh/messaging-relay/internal/handler"
	"github.com/relaymesh/messaging-relay/internal/middleware"
	"github.com/relaymesh/messaging-relay/internal/notifier"
	"github.com/relaymesh/messaging-relay/internal/provider"
	"github.com/relaymesh/messaging-relay/internal/queue"
	"github.com/relaymesh/messaging-relay/internal/ratelimit"
	"github.com/relaymesh/messaging-relay/internal/realtime"
	"github.com/relaymesh/messaging-relay/internal/scheduler"
	"github.com/relaymesh/messaging-relay/internal/service"
	"github.com/relaymesh/messaging-relay/internal/store"
	"github.com/relaymesh/messaging-relay/pkg/logger"
	"github.com/relaymesh/messaging-relay/pkg/tracing"
)

func main() {
	_ = godotenv.Load()

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

	log.Info("starting relay server")

	// Initialize tracing if enabled
	ctx := context.Background()
	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "messaging-relay", cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer tracing.Shutdown(ctx, tp)
		}
	}

	// Message body codec
	cdc, err := codec.New(cfg.EncryptionKey)
	if err != nil {
		log.Error("invalid encryption key", zap.Error(err))
		os.Exit(1)
	}

	// Connect to Postgres
	st, err := store.New(ctx, cfg.PostgresURL)
	if err != nil {
		log.Error("failed to connect to postgres", zap.Error(err))
		os.Exit(1)
	}
	defer st.Close()

	// Connect to NATS
	rtClient, err := realtime.Connect(realtime.Config{
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
	defer rtClient.Close()

	fanout := realtime.NewFanout(rtClient)

	// Credential cache (optional)
	var creds cache.CredentialCache = cache.Noop{}
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer rdb.Close()
		creds = cache.NewRedisCache(rdb, cfg.RedisTTL)
	}

	// Process-scoped pipeline components, constructed here and passed by
	// reference; no package-level singletons.
	taskQueue := queue.New(queue.Options{
		Concurrency: cfg.QueueConcurrency,
		TaskTimeout: cfg.QueueTaskTimeout,
	}, log)
	defer taskQueue.Close()

	storageBreaker := breaker.New("storage", breaker.Options{
		FailureThreshold: cfg.StorageBreakerFailures,
		Timeout:          cfg.StorageBreakerTimeout,
		SuccessThreshold: cfg.StorageBreakerSuccesses,
		ResetTimeout:     cfg.StorageBreakerReset,
	}, log)
	apiBreaker := breaker.New("provider_api", breaker.Options{
		FailureThreshold: cfg.APIBreakerFailures,
		Timeout:          cfg.APIBreakerTimeout,
		SuccessThreshold: cfg.APIBreakerSuccesses,
		ResetTimeout:     cfg.APIBreakerReset,
	}, log)

	webhookLimiter := ratelimit.New("webhook", ratelimit.Options{
		Window:        cfg.WebhookLimitWindow,
		MaxRequests:   cfg.WebhookLimitRequests,
		BlockDuration: cfg.WebhookLimitBlock,
	}, log)
	defer webhookLimiter.Close()

	providerClient := provider.NewHTTPClient(cfg.ProviderBaseURL)

	// Initialize services
	ingestor := service.NewIngestor(st, taskQueue, webhookLimiter, storageBreaker,
		providerClient, cdc, cfg.QueueMaxRetries, log)
	sender := service.NewSender(st, storageBreaker, apiBreaker, providerClient, cdc, creds, log)
	query := service.NewQuery(st, cdc)
	schedule := service.NewSchedule(st)

	// Change notifier: storage commits drive realtime fanout.
	notifierCtx, stopNotifier := context.WithCancel(ctx)
	defer stopNotifier()
	changeNotifier := notifier.New(st.URL(), st, cdc, fanout, log)
	go changeNotifier.Run(notifierCtx)

	// Scheduled message dispatcher
	dispatcher := scheduler.NewDispatcher(st, sender, cfg.SchedulerBatchSize, log)
	sched, err := scheduler.New(cfg.SchedulerInterval, dispatcher.Tick, log)
	if err != nil {
		log.Error("failed to create scheduler", zap.Error(err))
		os.Exit(1)
	}
	sched.Start()
	defer sched.Stop()

	// Initialize handlers
	healthHandler := handler.NewHealthHandler(st, rtClient, taskQueue, storageBreaker, apiBreaker)
	webhookHandler := handler.NewWebhookHandler(ingestor, cfg.ProviderVerifyToken, log)
	messageHandler := handler.NewMessageHandler(sender, log)
	conversationHandler := handler.NewConversationHandler(query, log)
	scheduledHandler := handler.NewScheduledHandler(schedule, log)
	streamHandler := handler.NewStreamHandler(query, fanout, log)

	// Create router
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(log))
	r.Use(middleware.SecurityHeaders)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Requested-With"},
		ExposedHeaders:   []string{"Link", "X-Correlation-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health endpoints (no auth required)
	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)

	// Metrics endpoint
	r.Handle("/metrics", promhttp.Handler())

	// Provider webhook (admission control happens in the pipeline, keyed
	// by bot and caller IP; no JWT here)
	r.Get("/webhook/bot-message", webhookHandler.Verify)
	r.Post("/webhook/bot-message", webhookHandler.Receive)

	// API routes with authentication
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWTSecret))
		r.Use(middleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))

		r.Post("/messages/send-message", messageHandler.Send)

		r.Route("/conversations", func(r chi.Router) {
			r.Get("/", conversationHandler.List)
			r.Get("/{id}/messages", conversationHandler.Messages)
			r.Get("/{id}/stream", streamHandler.Conversation)
		})

		r.Get("/stream", streamHandler.Inbox)

		r.Route("/scheduled-messages", func(r chi.Router) {
			r.Post("/", scheduledHandler.Create)
			r.Get("/", scheduledHandler.List)
			r.Get("/{id}", scheduledHandler.Get)
			r.Put("/{id}", scheduledHandler.Update)
			r.Delete("/{id}", scheduledHandler.Cancel)
		})
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
