// Package api assembles the control-surface HTTP router: pipeline
// stages as separable operations, run results, and coverage queries.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.temporal.io/sdk/client"
	"go.uber.org/zap"

	"github.com/qaengine/qaengine/internal/api/handlers"
	"github.com/qaengine/qaengine/internal/api/middleware"
	"github.com/qaengine/qaengine/internal/observability"
	"github.com/qaengine/qaengine/internal/pipeline"
	"github.com/qaengine/qaengine/pkg/httputil"
)

// Router holds the HTTP router and its dependencies
type Router struct {
	chi.Router
	logger *zap.Logger
}

// RouterConfig contains configuration for the router
type RouterConfig struct {
	Service        *pipeline.Service
	TemporalClient client.Client
	TaskQueue      string
	Metrics        *observability.Metrics
	Logger         *zap.Logger
	EnableCORS     bool
	RateLimit      int
	APIKeyHeader   string
}

// NewRouter creates a new HTTP router with all routes configured
func NewRouter(cfg RouterConfig) *Router {
	r := chi.NewRouter()

	// Base middleware stack
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.NewRecoveryMiddleware(cfg.Logger).Handler)
	r.Use(middleware.NewLoggingMiddleware(cfg.Logger).Handler)
	r.Use(chimw.Timeout(10 * time.Minute)) // stage endpoints drive real browsers

	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.HTTPMiddleware)
	}

	if cfg.EnableCORS {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   []string{"*"},
			AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-API-Key", "X-Request-ID"},
			ExposedHeaders:   []string{"X-Request-ID", "X-RateLimit-Limit", "X-RateLimit-Remaining"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	if cache := cfg.Service.Cache(); cache != nil && cfg.RateLimit > 0 {
		r.Use(middleware.NewRateLimitMiddleware(cache, cfg.RateLimit, true).Handler)
	}

	// Health check endpoints (no auth required)
	r.Get("/health", healthHandler)
	r.Get("/ready", readyHandler(cfg.Service, cfg.TemporalClient))
	if cfg.Metrics != nil {
		r.Handle("/metrics", cfg.Metrics.Handler())
	}

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.NewAuthMiddleware(cfg.APIKeyHeader).Handler)

		runHandler := handlers.NewRunHandler(cfg.Service, cfg.TemporalClient, cfg.TaskQueue, cfg.Logger)
		stageHandler := handlers.NewStageHandler(cfg.Service, cfg.Logger)
		coverageHandler := handlers.NewCoverageHandler(cfg.Service, cfg.Logger)

		r.Route("/runs", func(r chi.Router) {
			r.Post("/", runHandler.Create)
			r.Get("/", runHandler.List)
			r.Get("/{id}", runHandler.Get)
		})

		r.Post("/crawl", stageHandler.Crawl)
		r.Post("/plan", stageHandler.Plan)
		r.Post("/execute", stageHandler.Execute)

		r.Route("/coverage", func(r chi.Router) {
			r.Get("/", coverageHandler.Show)
			r.Get("/gaps", coverageHandler.Gaps)
			r.Delete("/", coverageHandler.Reset)
		})
	})

	return &Router{
		Router: r,
		logger: cfg.Logger,
	}
}

// healthHandler returns basic health status
func healthHandler(w http.ResponseWriter, r *http.Request) {
	httputil.JSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "qaengine-api",
	})
}

// readyHandler checks if all dependencies are ready
func readyHandler(service *pipeline.Service, temporalClient client.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := make(map[string]string)
		allHealthy := true

		if cache := service.Cache(); cache != nil {
			if err := cache.Health(r.Context()); err != nil {
				checks["redis"] = "unhealthy: " + err.Error()
				allHealthy = false
			} else {
				checks["redis"] = "healthy"
			}
		} else {
			checks["redis"] = "not configured"
		}

		if temporalClient != nil {
			checks["temporal"] = "healthy"
		} else {
			checks["temporal"] = "not configured"
		}

		status := http.StatusOK
		statusText := "ready"
		if !allHealthy {
			status = http.StatusServiceUnavailable
			statusText = "not ready"
		}

		httputil.JSON(w, status, map[string]any{
			"status": statusText,
			"checks": checks,
		})
	}
}
