package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"bookmuse/internal/app"
	"bookmuse/internal/config"
	"bookmuse/internal/ratelimit"
	"bookmuse/internal/server"
	"bookmuse/internal/util"
	"bookmuse/pkg/ai"
	"bookmuse/pkg/catalog"
	"bookmuse/pkg/store"
)

func main() {
	cfg, err := config.Load(config.ConfigPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := util.InitLogger(cfg.LogLevel)

	mainStore, err := buildStore(cfg, logger)
	if err != nil {
		fatal(logger, "failed to init store", err)
	}

	sessions, err := buildSessions(cfg)
	if err != nil {
		fatal(logger, "failed to init session store", err)
	}

	generator := buildGenerator(cfg, logger)

	catalogOpts := []catalog.Option{catalog.WithLogger(logger)}
	if cfg.CatalogBaseURL != "" {
		catalogOpts = append(catalogOpts, catalog.WithBaseURL(cfg.CatalogBaseURL))
	}
	if cfg.CoversBaseURL != "" {
		catalogOpts = append(catalogOpts, catalog.WithCoversBaseURL(cfg.CoversBaseURL))
	}
	catalogClient := catalog.NewClient(catalogOpts...)

	appCore, err := app.New(app.Config{
		Store:        mainStore,
		Generator:    generator,
		Catalog:      catalogClient,
		DailyLimit:   cfg.DailyMessageLimit,
		HistoryLimit: cfg.HistoryLimit,
		ContextLimit: cfg.ContextLimit,
		Logger:       logger,
	})
	if err != nil {
		fatal(logger, "failed to init app", err)
	}

	var authLimiter *ratelimit.FixedWindowLimiter
	if cfg.AuthRatePerMinute > 0 {
		authLimiter, err = ratelimit.NewRedisFixedWindowLimiter(
			cfg.RedisAddr, cfg.RedisPassword, "bookmuse:ratelimit:auth",
			cfg.AuthRatePerMinute, time.Minute,
		)
		if err != nil {
			fatal(logger, "failed to init auth rate limiter", err)
		}
	}

	httpServer := server.New(server.Config{
		App:               appCore,
		Store:             mainStore,
		Sessions:          sessions,
		Catalog:           catalogClient,
		AuthLimiter:       authLimiter,
		TrustForwardedFor: cfg.TrustForwardedFor,
	})

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	slog.Info("bookmuse server listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", "err", err)
	}
}

func buildStore(cfg config.FileConfig, logger *slog.Logger) (store.Store, error) {
	if cfg.DatabaseURL == "" {
		logger.Warn("databaseURL not set, using the in-memory store; data is lost on restart")
		return store.NewMemoryStore(), nil
	}
	return store.NewGormStore(cfg.DatabaseURL)
}

func buildSessions(cfg config.FileConfig) (store.SessionStore, error) {
	const sessionTTL = 30 * 24 * time.Hour
	switch cfg.SessionBackend {
	case "jwt":
		return store.NewJWTSessionStore(cfg.SessionSecret, sessionTTL)
	case "redis":
		return store.NewRedisSessionStore(cfg.RedisAddr, cfg.RedisPassword, sessionTTL), nil
	default:
		return store.NewMemorySessionStore(), nil
	}
}

// buildGenerator returns the Gemini client, or a generator that always yields
// the missing-key error so keyless development still serves fallback replies.
func buildGenerator(cfg config.FileConfig, logger *slog.Logger) ai.TextGenerator {
	client, err := ai.NewGeminiClient(cfg.GeminiAPIKey, cfg.GenerationModel)
	if err != nil {
		logger.Warn("gemini client not configured, chat turns will use the fallback reply", "err", err)
		return unconfiguredGenerator{err: err}
	}
	return client
}

type unconfiguredGenerator struct {
	err error
}

func (g unconfiguredGenerator) GenerateText(context.Context, string, string) (string, error) {
	return "", g.err
}

func fatal(logger *slog.Logger, msg string, err error) {
	logger.Error(msg, "err", err)
	os.Exit(1)
}
