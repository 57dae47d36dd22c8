package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/contentpulse/inspiration-api/internal/httpapi"
	"github.com/contentpulse/inspiration-api/internal/inspiration"
	"github.com/contentpulse/inspiration-api/internal/platform/config"
	"github.com/contentpulse/inspiration-api/internal/platform/observability"
	"github.com/contentpulse/inspiration-api/internal/reddit"
	"github.com/contentpulse/inspiration-api/internal/store"
	"github.com/contentpulse/inspiration-api/internal/trends"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Local development convenience; missing .env is fine.
	_ = godotenv.Load()

	cfg := config.MustLoad(os.Getenv("CONFIG_PATH"))

	// Observability first, everything else logs through it.
	logger := observability.NewLogger(cfg.Observability.Logging.Level, cfg.Observability.Logging.Format)

	metrics, err := observability.NewMetrics("inspiration-api", cfg.Observability.Metrics.Enabled)
	if err != nil {
		log.Fatalf("Failed to create metrics: %v", err)
	}

	tracer, err := observability.NewTracerProvider(ctx, "inspiration-api", cfg.Observability.Tracing.Endpoint, cfg.Observability.Tracing.Enabled)
	if err != nil {
		log.Fatalf("Failed to create tracer: %v", err)
	}
	defer tracer.Shutdown(ctx)

	logger.Info("observability setup complete")

	st, err := newStore(cfg)
	if err != nil {
		logger.LogError(ctx, "failed to create store", err)
		log.Fatalf("Failed to create store: %v", err)
	}
	defer st.Close()

	tokens := reddit.NewTokenManager(reddit.TokenManagerConfig{
		TokenURL:     cfg.Reddit.TokenURL,
		ClientID:     cfg.Reddit.ClientID,
		ClientSecret: cfg.Reddit.ClientSecret,
		Username:     cfg.Reddit.Username,
		Password:     cfg.Reddit.Password,
		UserAgent:    cfg.Reddit.UserAgent,
		Timeout:      cfg.Reddit.Timeout,
		Logger:       logger,
		Metrics:      metrics,
	})

	redditClient, err := reddit.NewClient(reddit.ClientConfig{
		BaseURL:        cfg.Reddit.BaseURL,
		UserAgent:      cfg.Reddit.UserAgent,
		Tokens:         tokens,
		Timeout:        cfg.Reddit.Timeout,
		RateLimitRPM:   cfg.Reddit.RateLimit.RequestsPerMinute,
		RateLimitBurst: cfg.Reddit.RateLimit.Burst,
		Logger:         logger,
		Metrics:        metrics,
	})
	if err != nil {
		logger.LogError(ctx, "failed to create reddit client", err)
		log.Fatalf("Failed to create reddit client: %v", err)
	}

	trendsClient := trends.NewClient(trends.Config{
		Enabled: cfg.Trends.Enabled,
		APIKey:  cfg.Trends.APIKey,
		APIHost: cfg.Trends.APIHost,
		BaseURL: cfg.Trends.BaseURL,
		Timeout: cfg.Trends.Timeout,
	}, st, logger, metrics)
	if err := trendsClient.Initialize(ctx); err != nil {
		// The service still runs reddit-only; trends routes fail fast.
		logger.LogWarn(ctx, "trends adapter unavailable", "error", err.Error())
	}

	svc, err := inspiration.NewService(inspiration.Config{
		Store:    st,
		Reddit:   redditClient,
		Trends:   trendsClient,
		Logger:   logger,
		Metrics:  metrics,
		TrendTTL: cfg.Store.TrendTTL,
	})
	if err != nil {
		logger.LogError(ctx, "failed to create service", err)
		log.Fatalf("Failed to create service: %v", err)
	}

	// Warm the option sets in the background so the first categories
	// request does not pay the upstream round trip.
	if trendsClient.Ready() {
		warmer := inspiration.NewWarmer(logger, 30*time.Second)
		warmer.Register(trendsClient)
		go warmer.Warmup(ctx)
	}

	handler := httpapi.NewHandler(svc, logger, metrics)
	router := httpapi.NewRouter(handler, metrics.Handler())

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		logger.Info("HTTP server listening", "address", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.LogError(ctx, "HTTP server error", err)
			cancel()
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("received signal, shutting down", "signal", sig.String())
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.LogError(shutdownCtx, "graceful shutdown failed", err)
	}
	logger.Info("server stopped")
}

func newStore(cfg *config.Config) (store.Store, error) {
	switch cfg.Store.Backend {
	case "memory":
		return store.NewMemoryStore(), nil
	default:
		return store.NewRedisStore(cfg.Store.Redis.Address, cfg.Store.Redis.Password, cfg.Store.Redis.DB)
	}
}
