// Package api provides the HTTP API for trip planning.
package api

import (
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/roadtripper/roadtripper/internal/api/handler"
	"github.com/roadtripper/roadtripper/internal/api/middleware"
)

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Version     string
	BuildTime   string
	Logger      zerolog.Logger
	ServiceName string
	Metrics     *middleware.Metrics
	RequireTLS  bool

	// RateLimits falls back to middleware.DefaultRateLimits for any class left at zero.
	RateLimits middleware.RateLimits

	Trips     handler.TripService
	Tokens    handler.TokenIssuer
	Sessions  middleware.TripValidator
	Providers handler.ProviderHealthSource

	// Dependencies are probed by the readiness and status endpoints.
	Dependencies []handler.DependencyCheck
}

// NewRouter creates a new chi router with all API routes configured.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "roadtripper-api"
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
	r.Use(middleware.RequireTLS(cfg.RequireTLS))
	r.Use(middleware.ContentTypeJSON)
	r.Use(middleware.RequireJSON)

	opsHandler := handler.NewOpsHandler(handler.OpsConfig{
		Version:      cfg.Version,
		BuildTime:    cfg.BuildTime,
		Providers:    cfg.Providers,
		Dependencies: cfg.Dependencies,
	})
	tripHandler := handler.NewTripHandler(cfg.Trips, cfg.Tokens, cfg.Logger)

	sessionMiddleware := middleware.TripSession(cfg.Sessions)

	limits := cfg.RateLimits.WithDefaults()
	planRateLimit := middleware.RateLimitByIP(limits.Plan)
	expensiveRateLimit := middleware.RateLimitByTrip(limits.Expensive)
	standardRateLimit := middleware.RateLimitByTrip(limits.Standard)

	r.Route("/v1", func(r chi.Router) {
		r.Route("/ops", func(r chi.Router) {
			r.Get("/health", opsHandler.HealthCheck)
			r.Get("/ready", opsHandler.ReadinessCheck)
			r.Get("/status", opsHandler.SystemStatus)
		})

		r.Route("/trips", func(r chi.Router) {
			r.With(planRateLimit).Post("/", tripHandler.PlanTrip)

			r.Route("/{tripId}", func(r chi.Router) {
				r.Use(sessionMiddleware)

				r.With(standardRateLimit).Get("/", tripHandler.GetTrip)
				r.With(standardRateLimit).Patch("/preferences", tripHandler.UpdatePreferences)

				// Stop search and rerouting call the map providers
				r.Group(func(r chi.Router) {
					r.Use(expensiveRateLimit)
					r.Post("/stops/search", tripHandler.FindStops)
					r.Post("/waypoints", tripHandler.AddWaypoint)
					r.Delete("/waypoints/{waypointName}", tripHandler.RemoveWaypoint)
				})
			})
		})
	})

	return r
}
