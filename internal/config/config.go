// Package config loads application configuration from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds all runtime configuration for the API server and worker.
type Config struct {
	// Port is the HTTP listen port.
	Port string `envconfig:"APP_PORT" default:"8080"`

	// Env is the deployment environment name (development, staging, production).
	Env string `envconfig:"APP_ENV" default:"development"`

	// ArchiveDir is the root directory holding the gridded archives, one
	// subdirectory per dataset category.
	ArchiveDir string `envconfig:"ARCHIVE_DIR" default:"./data/archives"`

	// RegistryWorkers bounds how many dataset sources load concurrently.
	RegistryWorkers int `envconfig:"REGISTRY_WORKERS" default:"4"`

	// MaxConcurrentQueries bounds how many queries run array extraction at
	// once; further requests wait at the compute gate.
	MaxConcurrentQueries int `envconfig:"MAX_CONCURRENT_QUERIES" default:"8"`

	// GeoServerURL is the upstream WMS endpoint proxied under /wms. Empty
	// disables the proxy routes.
	GeoServerURL string `envconfig:"GEOSERVER_URL"`

	// DerivedStoreEnabled turns on persistence of polygon statistics to
	// Postgres.
	DerivedStoreEnabled bool `envconfig:"DERIVED_STORE_ENABLED" default:"false"`

	// OTelEnabled turns on OTLP trace and metric export.
	OTelEnabled bool `envconfig:"OTEL_ENABLED" default:"false"`

	// OTLPEndpoint is the OTLP gRPC collector endpoint.
	OTLPEndpoint string `envconfig:"OTEL_EXPORTER_OTLP_ENDPOINT" default:"localhost:4317"`

	// PubSubProjectID and PubSubSubscription configure the worker's reload
	// subscription. Both empty disables Pub/Sub handling.
	PubSubProjectID    string `envconfig:"PUBSUB_PROJECT_ID"`
	PubSubSubscription string `envconfig:"PUBSUB_SUBSCRIPTION"`

	// ReloadInterval is the worker's periodic full-reload cadence.
	ReloadInterval time.Duration `envconfig:"RELOAD_INTERVAL" default:"24h"`
}

// Load reads configuration from the environment, after loading a .env file
// when one is present. A missing .env file is not an error.
func Load() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, fmt.Errorf("process environment: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.RegistryWorkers < 1 {
		return fmt.Errorf("REGISTRY_WORKERS must be >= 1, got %d", c.RegistryWorkers)
	}
	if c.MaxConcurrentQueries < 1 {
		return fmt.Errorf("MAX_CONCURRENT_QUERIES must be >= 1, got %d", c.MaxConcurrentQueries)
	}
	if c.ReloadInterval < time.Minute {
		return fmt.Errorf("RELOAD_INTERVAL must be >= 1m, got %s", c.ReloadInterval)
	}
	return nil
}
