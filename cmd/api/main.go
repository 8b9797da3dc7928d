// Package main is the entry point for the API server.
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
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/zenyourself/reflection-core/internal/config"
	"github.com/zenyourself/reflection-core/internal/guidance"
	"github.com/zenyourself/reflection-core/internal/handler"
	"github.com/zenyourself/reflection-core/internal/journal"
	"github.com/zenyourself/reflection-core/internal/middleware"
	natsclient "github.com/zenyourself/reflection-core/internal/nats"
	"github.com/zenyourself/reflection-core/internal/service"
	"github.com/zenyourself/reflection-core/pkg/logger"
	"github.com/zenyourself/reflection-core/pkg/tracing"
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

	log.Info("starting API server")

	// Initialize tracing if enabled
	ctx := context.Background()
	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "reflection-core", cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing")
		} else {
			defer tracing.Shutdown(ctx, tp)
		}
	}

	// Journal store: JetStream when NATS is configured, in-memory otherwise
	var store journal.Store
	var natsConn *natsclient.Client
	if cfg.NATSEnabled {
		natsConn, err = natsclient.Connect(ctx, natsclient.Config{
			URL:      cfg.NATSURL,
			CAFile:   cfg.NATSCAFile,
			CertFile: cfg.NATSCertFile,
			KeyFile:  cfg.NATSKeyFile,
			Token:    cfg.NATSToken,
		}, log)
		if err != nil {
			log.Error("failed to connect to NATS")
			os.Exit(1)
		}
		defer natsConn.Close()

		journalStream := natsclient.NewJournalStream(natsConn)
		if err := journalStream.EnsureStream(ctx); err != nil {
			log.Error("failed to ensure journal stream")
			os.Exit(1)
		}
		store = journalStream
	} else {
		log.Warn("NATS disabled, journal entries are kept in memory only")
		store = journal.NewMemoryStore()
	}

	// Guidance backend: the remote Worker when configured, else an LLM
	// provider by available API key
	guideCfg := guidance.Config{
		WorkerURL:       cfg.WorkerURL,
		WorkerAPIKey:    cfg.WorkerAPIKey,
		AnthropicAPIKey: cfg.AnthropicAPIKey,
		OpenAIAPIKey:    cfg.OpenAIAPIKey,
		Timeout:         cfg.GuidanceTimeout,
	}
	switch {
	case cfg.WorkerURL != "":
		guideCfg.Provider = guidance.ProviderWorker
	case cfg.AnthropicAPIKey != "":
		guideCfg.Provider = guidance.ProviderAnthropic
	default:
		guideCfg.Provider = guidance.ProviderOpenAI
	}
	guide, err := guidance.New(guideCfg)
	if err != nil {
		log.Error("failed to create guidance service")
		os.Exit(1)
	}

	// Initialize services
	roundSvc := service.NewRoundService(guide, store, log, cfg.GuidanceTimeout, cfg.DefaultLocale)
	journalSvc := service.NewJournalService(store, log)

	// Initialize handlers
	healthHandler := handler.NewHealthHandler(natsConn)
	roundHandler := handler.NewRoundHandler(roundSvc, log)
	journalHandler := handler.NewJournalHandler(journalSvc, log)

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
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Requested-With"},
		ExposedHeaders:   []string{"X-Correlation-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health endpoints (no auth required)
	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)

	// Metrics endpoint
	r.Handle("/metrics", promhttp.Handler())

	// API routes with authentication
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWTSecret))
		r.Use(middleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))

		// Rounds
		r.Route("/rounds", func(r chi.Router) {
			r.Post("/", roundHandler.Start)
			r.Get("/", roundHandler.List)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", roundHandler.Get)
				r.Delete("/", roundHandler.Delete)

				r.Post("/answer", roundHandler.Answer)
				r.Post("/answer/undo", roundHandler.UndoAnswer)
				r.Post("/closure", roundHandler.Closure)
				r.Post("/mood", roundHandler.Mood)
				r.Post("/save", roundHandler.Save)
			})
		})

		// Journal
		r.Get("/journal", journalHandler.List)
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
			log.Error("server error")
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
		log.Error("server forced to shutdown")
	}

	log.Info("server stopped")
}
