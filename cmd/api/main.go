// Package main is the entry point for the support inbox API server.
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
	"go.uber.org/zap"

	"github.com/capitalize-ai/support-inbox/internal/attachment"
	"github.com/capitalize-ai/support-inbox/internal/config"
	"github.com/capitalize-ai/support-inbox/internal/dedupe"
	"github.com/capitalize-ai/support-inbox/internal/handler"
	"github.com/capitalize-ai/support-inbox/internal/middleware"
	natsclient "github.com/capitalize-ai/support-inbox/internal/nats"
	"github.com/capitalize-ai/support-inbox/internal/service"
	"github.com/capitalize-ai/support-inbox/internal/store"
	"github.com/capitalize-ai/support-inbox/internal/whatsapp"
	"github.com/capitalize-ai/support-inbox/pkg/logger"
	"github.com/capitalize-ai/support-inbox/pkg/tracing"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err == nil {
		err = cfg.Validate()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	logger.SetGlobal(log)

	log.Info("starting support inbox")

	ctx := context.Background()
	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "support-inbox", cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer tracing.Shutdown(ctx, tp)
		}
	}

	// Database
	db, err := store.Open(cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		log.Fatal("failed to open database", zap.Error(err))
	}
	if err := store.Migrate(db); err != nil {
		log.Fatal("failed to migrate database", zap.Error(err))
	}
	st := store.New(db, log)

	// Realtime updates
	natsClient, err := natsclient.Connect(ctx, natsclient.Config{
		URL:      cfg.NATSURL,
		CAFile:   cfg.NATSCAFile,
		CertFile: cfg.NATSCertFile,
		KeyFile:  cfg.NATSKeyFile,
		Token:    cfg.NATSToken,
	}, log)
	if err != nil {
		log.Fatal("failed to connect to NATS", zap.Error(err))
	}
	defer natsClient.Close()

	streamManager := natsclient.NewStreamManager(natsClient, log)
	if err := streamManager.EnsureStream(ctx); err != nil {
		log.Fatal("failed to ensure stream", zap.Error(err))
	}

	checks := map[string]handler.Check{
		"database": func(ctx context.Context) error { return store.Ping(ctx, db) },
		"nats":     natsClient.Ping,
	}

	// Redelivery tracking
	var tracker dedupe.Tracker = dedupe.Nop{}
	if cfg.RedisAddr != "" {
		redisTracker, err := dedupe.NewRedisTracker(ctx, cfg.RedisAddr, cfg.DedupeTTL)
		if err != nil {
			log.Warn("redis unavailable, relying on the message table for redelivery checks", zap.Error(err))
		} else {
			defer redisTracker.Close()
			tracker = redisTracker
			checks["redis"] = redisTracker.Ping
		}
	}

	attachments, err := attachment.NewGCSStore(ctx, attachment.Config{
		Bucket:       cfg.AttachmentBucket,
		CDNDomain:    cfg.AttachmentCDNDomain,
		EmulatorHost: cfg.StorageEmulatorHost,
	}, log)
	if err != nil {
		log.Fatal("failed to create attachment store", zap.Error(err))
	}
	defer attachments.Close()

	waClient, err := whatsapp.NewClient(cfg.WhatsAppAPIBaseURL, cfg.WhatsAppAccessToken, cfg.WhatsAppPhoneNumberID)
	if err != nil {
		log.Fatal("failed to create WhatsApp client", zap.Error(err))
	}

	// Initialize services
	customerSvc := service.NewCustomerService(st.Customers, streamManager, log)
	conversationSvc := service.NewConversationService(st.Conversations, st.Customers, streamManager, log)
	mediaSvc := service.NewMediaService(waClient, attachments, log)
	responder := service.NewAutoResponder(waClient, st.Settings, conversationSvc, cfg.WhatsAppTemplateLanguage, log)
	ingestSvc := service.NewIngestService(service.IngestConfig{
		Customers:     customerSvc,
		Conversations: conversationSvc,
		Media:         mediaSvc,
		Responder:     responder,
		Sender:        waClient,
		Tracker:       tracker,
		BlockedNotice: cfg.BlockedNotice,
	}, log)
	agentSvc := service.NewAgentService(conversationSvc, customerSvc, waClient, log)
	settingsSvc := service.NewSettingsService(st.Settings, log)

	// Initialize handlers
	healthHandler := handler.NewHealthHandler(checks)
	webhookHandler := handler.NewWebhookHandler(ingestSvc, cfg.WhatsAppVerifyToken, log)
	conversationHandler := handler.NewConversationHandler(conversationSvc, log)
	messageHandler := handler.NewMessageHandler(agentSvc, conversationSvc, log)
	customerHandler := handler.NewCustomerHandler(customerSvc, log)
	settingsHandler := handler.NewSettingsHandler(settingsSvc, log)
	streamHandler := handler.NewStreamHandler(streamManager, log)

	// Create router
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(log))
	r.Use(middleware.SecurityHeaders)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(nil))

	// Health endpoints (no auth required)
	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)

	// Metrics endpoint
	r.Handle("/metrics", promhttp.Handler())

	// Provider webhook, authenticated by signature instead of JWT
	r.Route("/webhook", func(r chi.Router) {
		r.Use(middleware.WebhookRateLimit(cfg.RateLimitRequests*10, cfg.RateLimitWindow))
		r.Use(middleware.VerifySignature(cfg.WhatsAppAppSecret))
		r.Get("/", webhookHandler.Verify)
		r.Post("/", webhookHandler.Receive)
	})

	// API routes with authentication
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWTSecret))
		r.Use(middleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))

		// Conversations
		r.Route("/conversations", func(r chi.Router) {
			r.Get("/", conversationHandler.List)
			r.Post("/", messageHandler.Start)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", conversationHandler.Get)
				r.Post("/claim", conversationHandler.Claim)
				r.Post("/unclaim", conversationHandler.Unclaim)
				r.Post("/resolve", conversationHandler.Resolve)
				r.Post("/read", conversationHandler.MarkRead)
				r.Put("/notes", conversationHandler.UpdateNotes)

				// Messages
				r.Get("/messages", messageHandler.List)
				r.Post("/messages", messageHandler.Send)
			})
		})

		// Customers
		r.Post("/customers/block", customerHandler.Block)
		r.Put("/customers/{id}", customerHandler.Update)

		// Settings
		r.Get("/settings", settingsHandler.Get)
		r.Put("/settings", settingsHandler.Update)

		// Realtime
		r.Get("/events", streamHandler.Events)
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
			log.Fatal("server error", zap.Error(err))
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
