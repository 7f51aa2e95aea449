// Package main provides the entrypoint for the climabr API server.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/climabr/climabr/internal/api"
	"github.com/climabr/climabr/internal/api/middleware"
	"github.com/climabr/climabr/internal/config"
	"github.com/climabr/climabr/internal/database"
	"github.com/climabr/climabr/internal/dataset"
	"github.com/climabr/climabr/internal/derived"
	"github.com/climabr/climabr/internal/geoserver"
	"github.com/climabr/climabr/internal/query"
	"github.com/climabr/climabr/internal/telemetry"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	const serviceName = "climabr-api"

	// Setup structured logging
	log := zerolog.New(os.Stdout).
		With().
		Timestamp().
		Str("service", serviceName).
		Str("version", Version).
		Logger()

	log.Info().
		Str("build_time", BuildTime).
		Msg("starting climabr API")

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	// Initialize OpenTelemetry
	ctx := context.Background()
	tp, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    serviceName,
		ServiceVersion: Version,
		Environment:    cfg.Env,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		Enabled:        cfg.OTelEnabled,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize telemetry")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := tp.Shutdown(shutdownCtx); shutdownErr != nil {
			log.Error().Err(shutdownErr).Msg("failed to shutdown telemetry")
		}
	}()

	if cfg.OTelEnabled {
		log.Info().
			Str("otlp_endpoint", cfg.OTLPEndpoint).
			Msg("OpenTelemetry initialized")
	}

	// Initialize metrics
	metrics, err := middleware.NewMetrics()
	if err != nil {
		log.Error().Err(err).Msg("failed to initialize metrics")
		os.Exit(1) //nolint:gocritic // intentional exit, telemetry cleanup is best-effort
	}
	queryMetrics, err := middleware.NewQueryMetrics()
	if err != nil {
		log.Error().Err(err).Msg("failed to initialize query metrics")
		os.Exit(1)
	}

	// Build the dataset registry and warm it in the background. The server
	// starts immediately; /v1/ops/ready reports FAIL until the first source
	// is loaded, and queries against unloaded sources degrade with 503.
	registry := dataset.NewRegistry(dataset.RegistryConfig{
		Dir:                  cfg.ArchiveDir,
		LoadWorkers:          cfg.RegistryWorkers,
		MaxConcurrentCompute: int64(cfg.MaxConcurrentQueries),
		Logger:               log,
	})
	go func() {
		start := time.Now()
		if err := registry.LoadAll(ctx); err != nil {
			log.Error().Err(err).Msg("initial dataset load aborted")
			return
		}
		log.Info().
			Dur("duration", time.Since(start)).
			Str("dir", cfg.ArchiveDir).
			Msg("initial dataset load completed")
	}()
	defer registry.Close()

	// Optionally persist polygon statistics to Postgres.
	var derivedRepo derived.Repository
	if cfg.DerivedStoreEnabled {
		dbConfig := database.ConfigFromEnv()
		pool, err := database.Connect(ctx, dbConfig)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to database")
		}
		defer pool.Close()
		log.Info().
			Str("host", dbConfig.Host).
			Int("port", dbConfig.Port).
			Str("database", dbConfig.Database).
			Msg("database connected")
		derivedRepo = derived.NewPostgresRepository(pool)
	}

	// Optionally proxy WMS raster requests to GeoServer.
	var wmsProxy http.Handler
	if cfg.GeoServerURL != "" {
		proxy, err := geoserver.NewProxy(geoserver.ProxyConfig{
			UpstreamURL: cfg.GeoServerURL,
			Logger:      log,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create geoserver proxy")
		}
		wmsProxy = proxy
		log.Info().Str("upstream", cfg.GeoServerURL).Msg("WMS proxy enabled")
	}

	queryService := query.NewService(query.ServiceConfig{
		Registry: registry,
		Logger:   log,
		Derived:  derivedRepo,
	})
	log.Info().Msg("query service initialized")

	// Create router with configuration
	router := api.NewRouter(api.RouterConfig{
		Version:      Version,
		BuildTime:    BuildTime,
		Logger:       log,
		ServiceName:  serviceName,
		Metrics:      metrics,
		QueryMetrics: queryMetrics,
		Registry:     registry,
		QueryService: queryService,
		WMSProxy:     wmsProxy,
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info().
			Str("addr", server.Addr).
			Msg("server listening")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
		os.Exit(1)
	}

	log.Info().Msg("server stopped")
}
