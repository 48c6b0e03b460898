package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/attaboy/tracking/internal/app"
	"github.com/attaboy/tracking/internal/auth"
	"github.com/attaboy/tracking/internal/clientctx"
	"github.com/attaboy/tracking/internal/infra"
	"github.com/attaboy/tracking/internal/policy"
	"github.com/attaboy/tracking/internal/provider"
	"github.com/attaboy/tracking/internal/repository"
	"github.com/attaboy/tracking/internal/tracking"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load config
	cfg, err := infra.LoadConfig(logger)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	// Connect to Postgres
	pool, err := infra.NewPostgresPool(ctx, cfg)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pool.Close()
	logger.Info("connected to postgres")

	// Repositories
	repos := repository.NewPostgresSet()
	if cfg.RedisURL != "" {
		rdb, err := infra.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer rdb.Close()
		repos.Links = repository.NewCachedTrackingLinks(repos.Links, repos.TrafficSources, rdb, cfg.LinkCacheTTL, logger)
		logger.Info("tracking link cache enabled", "ttl", cfg.LinkCacheTTL)
	}

	// Optional collaborators
	locator, closeGeo, err := openLocator(cfg, logger)
	if err != nil {
		return err
	}
	defer closeGeo()

	var analytics tracking.ClickSink
	if cfg.ClickHouseAddr != "" {
		ch, err := infra.OpenClickAnalytics(cfg, logger)
		if err != nil {
			return fmt.Errorf("connect clickhouse: %w", err)
		}
		defer ch.Close()
		analytics = ch
		logger.Info("click analytics enabled", "addr", cfg.ClickHouseAddr)
	}

	conversionPolicy := policy.DefaultConversionPolicy()
	conversionPolicy.DuplicateWindow = cfg.ConversionDuplicateWindow

	dispatcher := tracking.NewDispatcher(cfg.BackgroundMaxInFlight, cfg.BackgroundTimeout, logger)

	r := app.NewRouter(app.RouterDeps{
		Pool:              pool,
		Health:            pool,
		Repos:             repos,
		Dispatcher:        dispatcher,
		TokenMgr:          auth.NewTokenManager(cfg.JWTSecret, cfg.PostbackTokenExpiry),
		Policy:            conversionPolicy,
		Logger:            logger,
		Locator:           locator,
		Analytics:         analytics,
		PublicBaseURL:     cfg.PublicBaseURL,
		PostbackRateLimit: cfg.PostbackRateLimit,
		GeoTimeout:        cfg.GeoTimeout,
	})

	// Start server
	addr := fmt.Sprintf(":%d", cfg.APIPort)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server starting", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}

	// Shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	// Let pending visitor and conversion writes land before the pool closes.
	dispatcher.Wait()

	logger.Info("server stopped gracefully")
	return nil
}

// openLocator picks the geo source: a local MaxMind database when configured,
// otherwise the HTTP API, otherwise none.
func openLocator(cfg *infra.Config, logger *slog.Logger) (clientctx.Locator, func(), error) {
	switch {
	case cfg.GeoIPDBPath != "":
		mm, err := provider.OpenMaxMind(cfg.GeoIPDBPath)
		if err != nil {
			return nil, nil, fmt.Errorf("open geoip database: %w", err)
		}
		logger.Info("geo lookups via maxmind", "path", cfg.GeoIPDBPath)
		return mm, func() { mm.Close() }, nil
	case cfg.GeoAPIURL != "":
		logger.Info("geo lookups via http api", "url", cfg.GeoAPIURL)
		return provider.NewHTTPGeo(cfg.GeoAPIURL, cfg.GeoTimeout, logger), func() {}, nil
	default:
		logger.Info("geo lookups disabled")
		return nil, func() {}, nil
	}
}
