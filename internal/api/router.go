// Package api provides the HTTP API for the climate data platform.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/climabr/climabr/internal/api/handler"
	"github.com/climabr/climabr/internal/api/middleware"
	"github.com/climabr/climabr/internal/dataset"
	"github.com/climabr/climabr/internal/query"
)

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Version      string
	BuildTime    string
	Logger       zerolog.Logger
	ServiceName  string
	Metrics      *middleware.Metrics
	QueryMetrics *middleware.QueryMetrics
	Registry     *dataset.Registry
	QueryService *query.Service

	// WMSProxy serves /wms when a GeoServer upstream is configured. Optional.
	WMSProxy http.Handler
}

// NewRouter creates a new chi router with all API routes configured.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	// Set default service name if not provided
	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "climabr-api"
	}

	// Global middleware - order matters
	r.Use(middleware.RequestID)            // Generate/propagate request ID first
	r.Use(middleware.Tracing(serviceName)) // Distributed tracing
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware()) // HTTP metrics
	}
	r.Use(middleware.Logger(cfg.Logger))   // Structured logging
	r.Use(middleware.Recovery(cfg.Logger)) // Panic recovery
	r.Use(chimiddleware.RealIP)            // Real IP extraction
	r.Use(middleware.SecurityHeaders)      // Security headers (HSTS, CSP, etc.)
	r.Use(middleware.RequireTLS)           // TLS enforcement (enabled via REQUIRE_TLS=true)

	// Initialize handlers
	opsHandler := handler.NewOpsHandler(cfg.Version, cfg.BuildTime, cfg.Registry)
	queryHandler := handler.NewQueryHandler(cfg.QueryService, cfg.QueryMetrics)

	// Rate limit middleware per endpoint category
	queryRateLimit := middleware.RateLimitByIP(middleware.QueryRateLimit)       // 30 req/min
	standardRateLimit := middleware.RateLimitByIP(middleware.StandardRateLimit) // 100 req/min

	// API v1 routes
	r.Route("/v1", func(r chi.Router) {
		// Ops endpoints (public)
		r.Route("/ops", func(r chi.Router) {
			r.Use(middleware.ContentTypeJSON)
			r.Get("/health", opsHandler.HealthCheck)
			r.Get("/ready", opsHandler.ReadinessCheck)
			r.Get("/status", opsHandler.SystemStatus)
		})

		// Query endpoints - expensive array work, strict rate limiting
		r.Route("/query/{variable}", func(r chi.Router) {
			r.Use(queryRateLimit)
			r.Use(middleware.ContentTypeJSON)
			r.Use(middleware.RequireJSON)
			r.Get("/point/history", queryHandler.PointHistory)
			r.Get("/point/trigger", queryHandler.PointTrigger)
			r.Get("/area/trigger", queryHandler.AreaTrigger)
			r.Post("/polygon/statistics", queryHandler.PolygonStatistics)
		})
	})

	// WMS pass-through for raster visualization. Responses are images, so
	// the JSON content-type middleware stays off this subtree.
	if cfg.WMSProxy != nil {
		r.With(standardRateLimit).Handle("/wms/*", http.StripPrefix("/wms", cfg.WMSProxy))
	}

	return r
}
