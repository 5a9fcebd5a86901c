// Package main is the entry point for the road-risk API server.
//
// It loads configuration, builds the external provider clients, the
// enrichment pipeline, and the scoring orchestrator, mounts the HTTP chassis,
// and serves until a shutdown signal arrives.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"roadrisk/internal/api/handlers"
	"roadrisk/internal/cache"
	"roadrisk/internal/config"
	"roadrisk/internal/core"
	"roadrisk/internal/enrich"
	"roadrisk/internal/external"
	"roadrisk/internal/observability"
	"roadrisk/internal/risk"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// run encapsulates the startup lifecycle so main() can cleanly exit on error.
func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)
	logger.Info("road-risk API starting",
		"environment", cfg.Environment,
		"service", cfg.Service,
		"port", cfg.Server.Port,
	)

	metrics, err := observability.NewCollector(nil)
	if err != nil {
		return fmt.Errorf("registering metrics: %w", err)
	}

	vocab, err := enrich.ParseVocab(cfg.Model.VocabJSON)
	if err != nil {
		return fmt.Errorf("parsing model vocabulary: %w", err)
	}

	// Scored rows live in Redis when an address is configured, otherwise in
	// process memory alongside the geodata caches.
	var rowStore cache.RowStore
	var healthProbes []core.HealthProbe
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		rowStore = cache.NewRedisRowStore(rdb)
		healthProbes = append(healthProbes, redisProbe{client: rdb})
		logger.Info("scored-row cache backed by redis", "addr", cfg.Redis.Addr)
	}

	caches := cache.NewService(cache.Limits{
		Weather:       cfg.Cache.WeatherMax,
		Twilight:      cfg.Cache.TwilightMax,
		RoadFlags:     cfg.Cache.RoadFlagsMax,
		Rows:          cfg.Cache.RowsMax,
		FlagPrecision: cfg.Cache.FlagPrecision,
	}, rowStore)

	// Provider clients, each with its own timeout budget.
	weatherClient := external.NewOpenMeteoClient(
		&http.Client{Timeout: cfg.Providers.WeatherTimeout},
		external.OpenMeteoClientConfig{BaseURL: cfg.Providers.WeatherURL, Logger: logger},
	)
	sunClient := external.NewSunTimesClient(
		&http.Client{Timeout: cfg.Providers.SunTimesTimeout},
		external.SunTimesClientConfig{BaseURL: cfg.Providers.SunTimesURL, Logger: logger},
	)
	overpassClient := external.NewOverpassClient(
		&http.Client{Timeout: cfg.Providers.OverpassTimeout},
		external.OverpassClientConfig{BaseURL: cfg.Providers.OverpassURL, Logger: logger},
	)
	routingClient := external.NewOSRMClient(
		&http.Client{Timeout: cfg.Providers.RoutingTimeout},
		external.OSRMClientConfig{BaseURL: cfg.Providers.RoutingURL, Logger: logger},
	)
	modelClient := external.NewModelClient(
		&http.Client{Timeout: cfg.Model.Timeout},
		external.ModelClientConfig{BaseURL: cfg.Model.URL, Logger: logger},
	)

	builder := enrich.NewBuilder(
		enrich.NewWeatherProvider(weatherClient, caches, vocab, logger, metrics),
		enrich.NewTwilightProvider(sunClient, caches, logger, metrics),
		enrich.NewRoadFlagProvider(overpassClient, caches, cfg.RoadFlags.Enabled, cfg.RoadFlags.ThrottleDelay, logger, metrics),
		logger,
	)

	riskService := risk.NewService(routingClient, modelClient, builder, caches, logger, metrics, risk.Options{
		RouteMaxSamples:     cfg.Sampling.RouteMaxSamples,
		RouteDefaultSamples: cfg.Sampling.RouteDefault,
		NearbyMaxZones:      cfg.Sampling.NearbyMaxZones,
		NearbyZonePoints:    cfg.Sampling.NearbyZonePoints,
	})

	srv, err := core.NewServer(cfg, logger, metrics)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}
	srv.HealthProbes = healthProbes

	riskHandler := handlers.NewRiskHandler(riskService, logger)
	srv.V1RouteRegistrars = append(srv.V1RouteRegistrars, riskHandler.RegisterRoutes)
	srv.MountRoutes()

	return runHTTPServer(srv, cfg, logger)
}

// runHTTPServer serves until a shutdown signal or listener error, then
// drains in-flight requests within the configured grace period.
func runHTTPServer(srv *core.Server, cfg *config.Config, logger *slog.Logger) error {
	addr := ":" + cfg.Server.Port

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	logger.Info("initiating graceful shutdown")
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownGrace)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	logger.Info("server stopped cleanly")
	return nil
}

// newLogger creates the application-wide JSON logger at the configured level.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}

// redisProbe reports the health of the Redis scored-row store.
type redisProbe struct {
	client *redis.Client
}

func (p redisProbe) Name() string { return "redis" }

func (p redisProbe) Check(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}
