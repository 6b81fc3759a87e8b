package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"betops/internal/common/database"
	"betops/internal/common/middleware"
	natsclient "betops/internal/common/nats"
	redisclient "betops/internal/common/redis"
	"betops/internal/customers"
	"betops/internal/p2p"
	p2papi "betops/internal/p2p/api"
	"betops/internal/p2p/store"
	"betops/migrations"
)

// Config holds service configuration
type Config struct {
	Port        int    `envconfig:"PORT" default:"8080"`
	Environment string `envconfig:"ENVIRONMENT" default:"development"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat   string `envconfig:"LOG_FORMAT" default:"json"`

	// Store selects the persistence backend: postgres or memory.
	// Memory is for local development only.
	Store string `envconfig:"P2P_STORE" default:"postgres"`

	RateLimit      int64         `envconfig:"RATE_LIMIT_PER_MINUTE" default:"120"`
	IdempotencyTTL time.Duration `envconfig:"IDEMPOTENCY_TTL" default:"24h"`
	CORSOrigins    []string      `envconfig:"CORS_ORIGINS" default:"*"`

	Database  database.Config
	NATS      natsclient.Config
	Redis     redisclient.Config
	Customers customers.Config
	Matching  p2p.Config
}

func main() {
	// Load .env if present; deployments rely on injected env vars.
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		fmt.Fprintf(os.Stderr, "failed to process config: %v\n", err)
		os.Exit(1)
	}

	logger := setupLogger(cfg.LogLevel, cfg.LogFormat)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Persistence
	var (
		db  *database.DB
		st  store.Store
		err error
	)
	switch cfg.Store {
	case "memory":
		logger.Warn("using in-memory store, data will not survive restarts")
		st = store.NewMemoryStore()
	default:
		db, err = database.New(ctx, cfg.Database, logger)
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer db.Close()

		if err := db.Migrate(migrations.FS); err != nil {
			logger.Error("failed to run migrations", "error", err)
			os.Exit(1)
		}
		st = store.NewPostgresStore(db)
	}

	// Event bus
	nc, err := natsclient.New(ctx, cfg.NATS, logger)
	if err != nil {
		logger.Error("failed to connect to NATS", "error", err)
		os.Exit(1)
	}
	defer nc.Close()

	if _, err := nc.EnsureStream(ctx, natsclient.DefaultStreamConfig("EVENTS", []string{"events.>"})); err != nil {
		logger.Error("failed to ensure event stream", "error", err)
		os.Exit(1)
	}
	publisher := natsclient.NewPublisher(nc, logger)

	// Redis for idempotency replay and rate limiting
	rdb, err := redisclient.New(ctx, cfg.Redis, logger)
	if err != nil {
		logger.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer rdb.Close()

	idempotencyStore := redisclient.NewIdempotencyStore(rdb)
	rateLimiter := redisclient.NewRateLimiter(rdb, cfg.RateLimit, time.Minute)

	// Matching service
	var identity p2p.IdentityChecker
	if cfg.Customers.BaseURL != "" {
		identity = customers.New(cfg.Customers, logger)
	}

	notifier := p2p.NewNATSNotifier(publisher, logger)
	settler := p2p.NewNATSSettler(publisher, logger)
	service := p2p.NewService(st, notifier, settler, identity, logger, cfg.Matching)

	sweeper := p2p.NewSweeper(service, logger)
	go sweeper.Run(ctx)

	// Live dashboard feed: new lifecycle events only, no replay.
	feed := p2papi.NewFeed(logger)
	feedConsumerCfg := natsclient.DefaultConsumerConfig("betops-dashboard-feed", "EVENTS", "events.p2p.match.>")
	feedConsumerCfg.DeliverNew = true
	feedConsumer, err := nc.EnsureConsumer(ctx, feedConsumerCfg)
	if err != nil {
		logger.Error("failed to ensure feed consumer", "error", err)
		os.Exit(1)
	}
	go func() {
		sub := natsclient.NewSubscriber(nc, feedConsumer, logger)
		if err := sub.Start(ctx, feed.Handle); err != nil && ctx.Err() == nil {
			logger.Error("feed subscriber stopped", "error", err)
		}
	}()
	go feed.Heartbeat(ctx, 30*time.Second)

	handler := p2papi.NewHandler(service, feed)

	// Router
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(middleware.CorrelationID)
	r.Use(middleware.Recoverer(logger))
	r.Use(middleware.Logger(logger))
	r.Use(middleware.CORS(cfg.CORSOrigins))
	r.Use(chimw.Compress(5))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if db != nil {
			if err := db.HealthCheck(r.Context()); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				w.Write([]byte(`{"status":"unhealthy","component":"database"}`))
				return
			}
		}
		if err := nc.HealthCheck(); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"unhealthy","component":"nats"}`))
			return
		}
		if err := rdb.HealthCheck(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"unhealthy","component":"redis"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	})

	r.Get("/ready", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ready"}`))
	})

	r.Route("/api/v1/p2p", func(r chi.Router) {
		r.Use(middleware.RateLimit(rateLimiter, clientKey))
		r.Use(middleware.Idempotency(idempotencyStore, cfg.IdempotencyTTL))
		r.Mount("/", handler.Routes())
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("starting betops service",
			"port", cfg.Port,
			"environment", cfg.Environment,
			"store", cfg.Store,
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()

	logger.Info("shutting down server")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	logger.Info("server stopped")
}

// clientKey buckets rate limiting per client address.
func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func setupLogger(level, format string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: logLevel,
	}

	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
