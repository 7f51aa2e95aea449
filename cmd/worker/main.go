// Package main provides the entrypoint for the climabr reload worker. It
// keeps the dataset registry in sync with the archive tree on disk, on a
// schedule and on demand via Pub/Sub.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/climabr/climabr/internal/config"
	"github.com/climabr/climabr/internal/dataset"
	"github.com/climabr/climabr/internal/telemetry"
	"github.com/climabr/climabr/internal/worker"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	const serviceName = "climabr-worker"

	// Setup structured logging
	log := zerolog.New(os.Stdout).
		With().
		Timestamp().
		Str("service", serviceName).
		Str("version", Version).
		Logger()

	log.Info().
		Str("build_time", BuildTime).
		Msg("starting climabr worker")

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize OpenTelemetry
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
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if shutdownErr := tp.Shutdown(shutdownCtx); shutdownErr != nil {
			log.Error().Err(shutdownErr).Msg("failed to shutdown telemetry")
		}
	}()

	// Build the registry and warm it up before scheduling reloads.
	registry := dataset.NewRegistry(dataset.RegistryConfig{
		Dir:         cfg.ArchiveDir,
		LoadWorkers: cfg.RegistryWorkers,
		Logger:      log,
	})
	if err := registry.LoadAll(ctx); err != nil {
		log.Fatal().Err(err).Msg("initial dataset load aborted")
	}
	defer registry.Close()

	reloadJob := worker.NewReloadJob(worker.ReloadJobConfig{
		Config: worker.ReloadConfig{
			Interval:    cfg.ReloadInterval,
			Concurrency: cfg.RegistryWorkers,
		},
		Registry: registry,
		Logger:   log,
	})

	// Periodic full reloads.
	go reloadJob.RunPeriodic(ctx)
	log.Info().
		Dur("interval", cfg.ReloadInterval).
		Msg("periodic reload scheduled")

	// On-demand reloads via Pub/Sub, when configured.
	if cfg.PubSubProjectID != "" && cfg.PubSubSubscription != "" {
		handler, err := worker.NewPubSubHandler(ctx, worker.PubSubConfig{
			ProjectID:        cfg.PubSubProjectID,
			SubscriptionName: cfg.PubSubSubscription,
			ReloadJob:        reloadJob,
			Logger:           log,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create pubsub handler")
		}
		defer handler.Close()

		go func() {
			if err := handler.Start(ctx); err != nil {
				log.Error().Err(err).Msg("pubsub handler stopped")
			}
		}()
	} else {
		log.Info().Msg("pubsub not configured, periodic reloads only")
	}

	// Health endpoint for Cloud Run. Healthy means the registry holds at
	// least one published dataset.
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		loaded := 0
		for _, s := range registry.Status() {
			if s.Loaded {
				loaded++
			}
		}
		w.Header().Set("Content-Type", "application/json")
		status := http.StatusOK
		state := "healthy"
		if loaded == 0 {
			status = http.StatusServiceUnavailable
			state = "unhealthy"
		}
		w.WriteHeader(status)
		fmt.Fprintf(w, `{"status":%q,"version":%q,"datasets_loaded":%d}`, state, Version, loaded)
	})

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("health server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("health server error")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down worker")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("health server forced to shutdown")
	}

	log.Info().Msg("worker stopped")
}
