// Package app provides application initialization and lifecycle management.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/garyellow/wxbot-go/internal/bot"
	"github.com/garyellow/wxbot-go/internal/buildinfo"
	"github.com/garyellow/wxbot-go/internal/config"
	"github.com/garyellow/wxbot-go/internal/line"
	"github.com/garyellow/wxbot-go/internal/logger"
	"github.com/garyellow/wxbot-go/internal/metrics"
	"github.com/garyellow/wxbot-go/internal/pipeline"
	"github.com/garyellow/wxbot-go/internal/ratelimit"
	"github.com/garyellow/wxbot-go/internal/sentry"
	"github.com/garyellow/wxbot-go/internal/storage"
	"github.com/garyellow/wxbot-go/internal/telegram"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Replaced in tests; the real constructor calls getMe.
var newTelegramAPI = func(token string) (telegram.API, error) {
	return telegram.NewAPI(token)
}

// Application manages the application lifecycle and dependencies.
type Application struct {
	cfg         *config.Config
	logger      *logger.Logger
	store       storage.LocationStore
	metrics     *metrics.Metrics
	registry    *prometheus.Registry
	userLimiter *ratelimit.KeyedLimiter
	lineHandler *line.Handler // nil when LINE is not configured
	telegramBot *telegram.Bot // nil when Telegram is not configured
	router      *gin.Engine
	server      *http.Server
	wg          sync.WaitGroup // Background jobs
}

// Initialize creates and initializes a new application with all dependencies.
func Initialize(ctx context.Context, cfg *config.Config) (*Application, error) {
	log := logger.NewWithOptions(cfg.LogLevel, os.Stdout, logger.Options{
		BetterStackToken:    cfg.BetterStackToken,
		BetterStackEndpoint: cfg.BetterStackEndpoint,
	})
	log = log.WithField("service", "wxbot-go")
	if host, err := os.Hostname(); err == nil && host != "" {
		log = log.WithField("instance_id", host)
	}
	// Package-level slog calls pick up request IDs through the context handler.
	slog.SetDefault(log.Logger)

	log.WithField("version", buildinfo.Release()).Info("Initializing application...")
	if cfg.BetterStackToken != "" {
		log.WithField("endpoint", cfg.BetterStackEndpoint).Info("Better Stack logging enabled")
	}

	if err := sentry.Initialize(sentry.Config{
		DSN:         cfg.SentryDSN,
		Environment: cfg.SentryEnvironment,
		Release:     buildinfo.Release(),
		SampleRate:  cfg.SentrySampleRate,
	}); err != nil {
		log.WithError(err).Warn("Sentry initialization failed; continuing without error tracking")
	} else if sentry.IsEnabled() {
		log.WithField("environment", cfg.SentryEnvironment).Info("Sentry error tracking enabled")
	}

	store, err := storage.Open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("location store: %w", err)
	}
	log.WithField("backend", cfg.LocationStore).
		WithField("ttl", cfg.LocationTTL).
		Info("Location store connected")

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewBuildInfoCollector(),
	)
	m := metrics.New(registry)

	app, err := build(cfg, log, store, registry, m)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	log.WithField("platforms", cfg.Platforms()).Info("Initialization complete")
	return app, nil
}

// build wires everything after the store and metrics exist.
func build(cfg *config.Config, log *logger.Logger, store storage.LocationStore, registry *prometheus.Registry, m *metrics.Metrics) (*Application, error) {
	reports, err := pipeline.FromConfig(cfg, m, log)
	if err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}

	userLimiter := ratelimit.NewKeyedLimiter(ratelimit.KeyedConfig{
		Name:          "user",
		Burst:         cfg.Bot.UserRateBurst,
		RefillRate:    cfg.Bot.UserRateRefill,
		CleanupPeriod: config.RateLimiterCleanupInterval,
		Metrics:       m,
	})

	processor := bot.NewProcessor(bot.ProcessorConfig{
		Reports:         reports,
		Store:           store,
		UserLimiter:     userLimiter,
		Logger:          log,
		Metrics:         m,
		BotConfig:       &cfg.Bot,
		DefaultLanguage: cfg.DefaultLanguage,
	})

	app := &Application{
		cfg:         cfg,
		logger:      log,
		store:       store,
		metrics:     m,
		registry:    registry,
		userLimiter: userLimiter,
	}

	if cfg.HasLine() {
		client, err := line.NewClient(cfg.LineChannelToken)
		if err != nil {
			userLimiter.Stop()
			return nil, err
		}
		app.lineHandler, err = line.NewHandler(line.HandlerConfig{
			ChannelSecret: cfg.LineChannelSecret,
			Client:        client,
			OperatorID:    cfg.LineOperatorID,
			BotConfig:     &cfg.Bot,
			Metrics:       m,
			Logger:        log,
			Processor:     processor,
		})
		if err != nil {
			userLimiter.Stop()
			return nil, fmt.Errorf("line: %w", err)
		}
	}

	if cfg.HasTelegram() {
		api, err := newTelegramAPI(cfg.TelegramToken)
		if err != nil {
			userLimiter.Stop()
			return nil, err
		}
		app.telegramBot, err = telegram.New(telegram.Config{
			API:       api,
			Token:     cfg.TelegramToken,
			OwnerID:   cfg.TelegramOwnerID,
			Processor: processor,
			BotConfig: &cfg.Bot,
			Metrics:   m,
			Logger:    log,
		})
		if err != nil {
			userLimiter.Stop()
			return nil, fmt.Errorf("telegram: %w", err)
		}
	}

	app.router = app.setupRouter()
	app.server = &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           app.router,
		ReadHeaderTimeout: config.WebhookHTTPRead,
		ReadTimeout:       config.WebhookHTTPRead,
		WriteTimeout:      config.WebhookHTTPWrite,
		IdleTimeout:       config.WebhookHTTPIdle,
	}
	return app, nil
}

// Run starts the HTTP server and background jobs, then blocks until
// SIGINT/SIGTERM. Jobs are stopped and awaited before resources close so
// no job touches a closed store.
func (a *Application) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a.startBackgroundJobs(ctx)
	a.startHTTPServer()

	sig := a.waitForShutdownSignal()
	a.logger.WithField("signal", sig.String()).Info("Received shutdown signal")

	cancel()

	a.logger.Info("Waiting for background jobs to finish...")
	start := time.Now()
	a.wg.Wait()
	a.logger.WithField("duration_ms", time.Since(start).Milliseconds()).
		Info("All background jobs completed")

	return a.shutdown()
}

func (a *Application) startHTTPServer() {
	go func() {
		a.logger.WithField("port", a.cfg.Port).Info("Starting HTTP server")
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.WithError(err).Error("HTTP server error")
			sentry.CaptureException(err)
		}
	}()
}

func (a *Application) waitForShutdownSignal() os.Signal {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	return <-quit
}

// shutdown releases resources in dependency order:
// HTTP server, transports, store, limiters, logger, then Sentry.
func (a *Application) shutdown() error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()

	a.logger.Info("Stopping HTTP server...")
	if err := a.server.Shutdown(shutdownCtx); err != nil {
		a.logger.WithError(err).Error("HTTP server shutdown error")
	}

	a.logger.Info("Waiting for in-flight events to complete...")
	if a.lineHandler != nil {
		if err := a.lineHandler.Shutdown(shutdownCtx); err != nil {
			a.logger.WithError(err).Warn("LINE handler shutdown timeout")
		}
	}
	if a.telegramBot != nil {
		if err := a.telegramBot.Shutdown(shutdownCtx); err != nil {
			a.logger.WithError(err).Warn("Telegram bot shutdown timeout")
		}
	}

	a.logger.Info("Closing resources...")
	if err := a.store.Close(); err != nil {
		a.logger.WithError(err).WithField("component", "location_store").Error("Component close error")
	}
	a.userLimiter.Stop()

	a.logger.Info("Shutdown complete")
	if err := a.logger.Shutdown(shutdownCtx); err != nil {
		a.logger.WithError(err).Warn("Logger shutdown timed out")
	}
	sentry.Flush(config.SentryFlush)
	return nil
}
