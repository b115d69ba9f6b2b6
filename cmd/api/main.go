// Package main is the entrypoint for the AffTrack API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"regexp"
	"strings"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/afftrack/afftrack/internal/cache"
	"github.com/afftrack/afftrack/internal/config"
	"github.com/afftrack/afftrack/internal/gaming"
	"github.com/afftrack/afftrack/internal/handler"
	"github.com/afftrack/afftrack/internal/metrics"
	"github.com/afftrack/afftrack/internal/middleware"
	"github.com/afftrack/afftrack/internal/postback"
	"github.com/afftrack/afftrack/internal/repository"
	"github.com/afftrack/afftrack/internal/server"
	"github.com/afftrack/afftrack/internal/tracking"
)

func main() {
	// Initialize context
	ctx := context.Background()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Initialize logger
	logger := initLogger(cfg)

	// Initialize database
	repo, err := repository.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error(
			"failed to connect to database",
			slog.String("error", sanitizeError(err, cfg.DatabaseURL)),
			slog.String("database_url", redactURL(cfg.DatabaseURL)),
		)
		os.Exit(1)
	}
	defer repo.Close()
	logger.Info("connected to database")

	// Initialize cache
	cacheClient, err := cache.New(ctx, cfg.RedisURL)
	if err != nil {
		logger.Error(
			"failed to connect to Redis",
			slog.String("error", sanitizeError(err, cfg.RedisURL)),
			slog.String("redis_url", redactURL(cfg.RedisURL)),
		)
		os.Exit(1)
	}
	defer cacheClient.Close()
	logger.Info("connected to Redis")

	// Initialize services
	recorder := metrics.NewInMemory()
	clickService := tracking.NewClickService(repo, repo, cacheClient, cfg.FallbackRedirectURL, logger, recorder)
	conversionService := tracking.NewConversionService(repo, repo, logger, recorder)

	publisher := postback.NewPublisher(cacheClient.Client(), logger)
	sender := postback.NewSender(repo, repo, postback.NewHTTPClient(), logger, recorder)
	intake := gaming.NewIntake(repo, repo, conversionService, publisher, logger, recorder)

	// Initialize handlers
	h := handler.New()
	healthHandler := handler.NewHealthHandler(repo, cacheClient)
	shortLinkHandler := handler.NewShortLinkHandler(cfg.BaseURL, logger)
	clickHandler := handler.NewClickHandler(clickService, logger)
	conversionHandler := handler.NewConversionHandler(conversionService, publisher, logger)
	gamingHandler := handler.NewGamingHandler(intake, logger)
	postbackHandler := handler.NewPostbackHandler(sender, repo, logger)
	metricsHandler := handler.NewMetricsHandler(recorder)

	// Setup router
	r := setupRouter(routerDeps{
		base:       h,
		health:     healthHandler,
		shortLink:  shortLinkHandler,
		click:      clickHandler,
		conversion: conversionHandler,
		gaming:     gamingHandler,
		postback:   postbackHandler,
		metrics:    metricsHandler,
	}, cfg, logger)

	// Create and run server
	srv := server.New(
		r,
		cfg.AppPort,
		cfg.ReadTimeout,
		cfg.WriteTimeout,
		cfg.ShutdownTimeout,
		logger,
	)

	// Postback delivery worker runs alongside the HTTP server and
	// drains in-flight jobs before the process exits.
	if cfg.PostbackWorkerEnabled {
		startPostbackWorker(srv, cacheClient, sender, publisher, repo, cfg, logger, recorder)
	} else {
		logger.Info("postback worker disabled")
	}

	logger.Info("starting server",
		"port", cfg.AppPort,
		"base_url", cfg.BaseURL,
		"env", cfg.AppEnv,
	)

	if err := srv.Run(); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

// startPostbackWorker launches the async postback consumer and wires
// its lifecycle into server shutdown.
func startPostbackWorker(
	srv *server.Server,
	cacheClient *cache.Cache,
	sender *postback.Sender,
	publisher *postback.Publisher,
	repo *repository.Repository,
	cfg *config.Config,
	logger *slog.Logger,
	recorder metrics.Recorder,
) {
	consumerID := workerConsumerID()
	worker := postback.NewWorker(cacheClient.Client(), sender, publisher, repo, consumerID, logger, recorder)
	worker.Tune(cfg.PostbackBatchSize, cfg.PostbackPollInterval)

	workerCtx, cancelWorker := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		defer close(done)
		if err := worker.Run(workerCtx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("postback worker exited", "error", err)
		}
	}()

	srv.OnShutdown("postback-worker", func(ctx context.Context) error {
		cancelWorker()
		select {
		case <-done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
}

func workerConsumerID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "afftrack"
	}
	return fmt.Sprintf("%s-%d", host, os.Getpid())
}

// initLogger initializes the slog logger based on configuration.
func initLogger(cfg *config.Config) *slog.Logger {
	var h slog.Handler

	level := parseLogLevel(cfg.LogLevel)

	opts := &slog.HandlerOptions{
		Level: level,
	}

	if cfg.LogFormat == "json" {
		h = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		h = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(h)
	slog.SetDefault(logger)

	return logger
}

// parseLogLevel converts string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

type routerDeps struct {
	base       *handler.Handler
	health     *handler.HealthHandler
	shortLink  *handler.ShortLinkHandler
	click      *handler.ClickHandler
	conversion *handler.ConversionHandler
	gaming     *handler.GamingHandler
	postback   *handler.PostbackHandler
	metrics    *handler.MetricsHandler
}

// setupRouter configures the chi router with all routes and middleware.
func setupRouter(deps routerDeps, cfg *config.Config, logger *slog.Logger) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Recoverer(logger))

	// Health and metrics endpoints
	r.Get("/healthz", deps.health.Healthz)
	r.Get("/readyz", deps.health.Readyz)
	r.Get("/metrics", deps.metrics.Metrics)

	// Root info endpoint
	r.Get("/", deps.base.Hello)

	// Cloaked short-link entry point
	r.Get("/s/{code}", deps.shortLink.Redirect)

	// Click tracking and validation
	r.Route("/v1", func(r chi.Router) {
		r.Get("/click", deps.click.Track)
		r.Get("/clicks/validate/{clickId}", deps.click.Validate)
	})

	// JSON intake routes share a request body cap
	r.Group(func(r chi.Router) {
		r.Use(limitBody(cfg.MaxRequestBodySize))

		r.Post("/conversions/track", deps.conversion.Track)
		r.Post("/postbacks/send", deps.postback.Send)

		r.Route("/webhooks/gaming", func(r chi.Router) {
			r.Post("/deposit", deps.gaming.Deposit)
			r.Post("/registration", deps.gaming.Registration)
		})
	})

	// 404 and 405 handlers
	r.NotFound(deps.base.NotFound)
	r.MethodNotAllowed(deps.base.MethodNotAllowed)

	return r
}

// limitBody caps request body size so oversized payloads fail during
// JSON decoding instead of exhausting memory.
func limitBody(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if maxBytes > 0 && r.Body != nil {
				r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			}
			next.ServeHTTP(w, r)
		})
	}
}

var passwordPattern = regexp.MustCompile(`(?i)password=[^\s]+`)

func redactURL(raw string) string {
	if raw == "" {
		return ""
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return "[redacted]"
	}

	if parsed.User != nil {
		username := parsed.User.Username()
		if username == "" {
			parsed.User = url.User("redacted")
		} else {
			parsed.User = url.User(username)
		}
	}

	return parsed.String()
}

func sanitizeError(err error, secrets ...string) string {
	if err == nil {
		return ""
	}

	msg := err.Error()
	for _, secret := range secrets {
		if secret == "" {
			continue
		}
		redacted := redactURL(secret)
		if redacted == "" {
			redacted = "[redacted]"
		}
		msg = strings.ReplaceAll(msg, secret, redacted)
	}

	return passwordPattern.ReplaceAllString(msg, "password=redacted")
}
