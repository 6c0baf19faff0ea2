// Package main provides the entrypoint for the Roadtripper API server.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"googlemaps.github.io/maps"

	"github.com/roadtripper/roadtripper/internal/api"
	"github.com/roadtripper/roadtripper/internal/api/handler"
	"github.com/roadtripper/roadtripper/internal/api/middleware"
	"github.com/roadtripper/roadtripper/internal/config"
	"github.com/roadtripper/roadtripper/internal/database"
	"github.com/roadtripper/roadtripper/internal/geocode"
	"github.com/roadtripper/roadtripper/internal/places/googleplaces"
	"github.com/roadtripper/roadtripper/internal/provider/google"
	"github.com/roadtripper/roadtripper/internal/provider/resilience"
	"github.com/roadtripper/roadtripper/internal/routing"
	"github.com/roadtripper/roadtripper/internal/routing/googlemaps"
	"github.com/roadtripper/roadtripper/internal/routing/openrouteservice"
	"github.com/roadtripper/roadtripper/internal/session"
	"github.com/roadtripper/roadtripper/internal/stops"
	"github.com/roadtripper/roadtripper/internal/telemetry"
	"github.com/roadtripper/roadtripper/internal/trip"
	"github.com/roadtripper/roadtripper/internal/tripevents"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

const devSigningKey = "local-dev-signing-key-change-in-production"

func main() {
	const serviceName = "roadtripper-api"

	// Setup structured logging
	log := zerolog.New(os.Stdout).
		With().
		Timestamp().
		Str("service", serviceName).
		Str("version", Version).
		Logger()

	log.Info().
		Str("build_time", BuildTime).
		Msg("starting Roadtripper API")

	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	// Initialize OpenTelemetry
	ctx := context.Background()
	tp, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    serviceName,
		ServiceVersion: Version,
		Environment:    cfg.App.Env,
		OTLPEndpoint:   cfg.Telemetry.Endpoint,
		Enabled:        cfg.Telemetry.Enabled,
		SampleRatio:    cfg.Telemetry.SampleRatio,
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

	if cfg.Telemetry.Enabled {
		log.Info().
			Str("otlp_endpoint", cfg.Telemetry.Endpoint).
			Msg("OpenTelemetry initialized")
	}

	metrics, err := middleware.NewMetrics()
	if err != nil {
		log.Error().Err(err).Msg("failed to initialize metrics")
		os.Exit(1) //nolint:gocritic // intentional exit, telemetry cleanup is best-effort
	}
	providerMetrics, err := telemetry.NewProviderMetrics()
	if err != nil {
		log.Error().Err(err).Msg("failed to initialize provider metrics")
		os.Exit(1)
	}

	registry := resilience.NewRegistry()

	// One Maps client serves directions, places, and geocoding
	mapsClient, err := google.NewMapsClient(google.Config{
		APIKey:            cfg.Google.APIKey,
		BaseURL:           cfg.Google.BaseURL,
		Registry:          registry,
		RequestsPerSecond: cfg.Google.RequestsPerSecond,
		Logger:            log,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create Google Maps client")
	}

	placesClient, err := googleplaces.NewClient(googleplaces.ClientConfig{
		Maps:    mapsClient,
		Timeout: cfg.Google.Timeout,
		Metrics: providerMetrics,
		Logger:  log,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create places client")
	}

	directions, err := newDirections(cfg, mapsClient, registry, providerMetrics, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create directions provider")
	}
	cachedDirections := routing.NewCachingProvider(routing.CacheConfig{
		Provider: directions,
		TTL:      cfg.Directions.CacheTTL,
		Logger:   log,
	})
	log.Info().
		Str("provider", directions.Name()).
		Dur("cache_ttl", cfg.Directions.CacheTTL).
		Msg("directions provider initialized")

	finder := stops.NewFinder(stops.FinderConfig{
		Places:     placesClient,
		Directions: cachedDirections,
		Search:     cfg.Stops.SearchConfig(),
		Verify:     cfg.Stops.VerifyConfig(),
		Fuel:       cfg.Stops.FuelConfig(),
		Logger:     log,
	})

	var (
		repo trip.Repository
		deps []handler.DependencyCheck
	)
	if cfg.Database.Enabled {
		dbConfig := database.FromConfig(cfg.Database)
		var pool *pgxpool.Pool
		pool, err = database.Connect(ctx, dbConfig)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to database")
		}
		defer pool.Close()
		log.Info().
			Str("host", dbConfig.Host).
			Int("port", dbConfig.Port).
			Str("database", dbConfig.Database).
			Msg("database connected")

		if cfg.Database.AutoMigrate {
			if err = database.Migrate(ctx, pool, log); err != nil {
				log.Fatal().Err(err).Msg("failed to migrate database")
			}
		}

		repo = trip.NewPostgresRepository(pool)
		deps = append(deps, handler.DependencyCheck{Name: "postgres", Check: pool.Ping})
	} else {
		log.Warn().Msg("database disabled - trips are kept in memory and lost on restart")
		repo = trip.NewInMemoryRepository()
	}

	var events tripevents.Publisher = tripevents.NopPublisher{}
	if cfg.PubSub.ProjectID != "" {
		publisher, pubErr := tripevents.NewPubSubPublisher(ctx, tripevents.PubSubConfig{
			ProjectID: cfg.PubSub.ProjectID,
			Topic:     cfg.PubSub.TripTopic,
			Logger:    log,
		})
		if pubErr != nil {
			log.Fatal().Err(pubErr).Msg("failed to create trip event publisher")
		}
		defer func() {
			if closeErr := publisher.Close(); closeErr != nil {
				log.Error().Err(closeErr).Msg("failed to close trip event publisher")
			}
		}()
		events = publisher
		log.Info().
			Str("project", cfg.PubSub.ProjectID).
			Str("topic", cfg.PubSub.TripTopic).
			Msg("trip events publisher initialized")
	}

	trips := trip.NewService(trip.ServiceConfig{
		Repo:       repo,
		Resolver:   geocode.DefaultChain(log, placesClient, placesClient),
		Directions: cachedDirections,
		Finder:     finder,
		Geocoder:   placesClient,
		Events:     events,
		Logger:     log,
	})

	signingKey := cfg.Session.SigningKey
	if signingKey == "" {
		if cfg.IsProduction() {
			log.Fatal().Msg("SESSION_SIGNING_KEY is required in production")
		}
		signingKey = devSigningKey
		log.Warn().Msg("using default session signing key - not secure for production")
	}
	sessions, err := session.NewService(session.Config{
		SigningKey: signingKey,
		Issuer:     cfg.Session.Issuer,
		Audience:   cfg.Session.Audience,
		Expiry:     cfg.Session.Expiry,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create session service")
	}

	router := api.NewRouter(api.RouterConfig{
		Version:      Version,
		BuildTime:    BuildTime,
		Logger:       log,
		ServiceName:  serviceName,
		Metrics:      metrics,
		RequireTLS:   cfg.App.RequireTLS,
		RateLimits: middleware.RateLimits{
			Plan:      middleware.PerMinute(cfg.RateLimits.Plan),
			Expensive: middleware.PerMinute(cfg.RateLimits.Expensive),
			Standard:  middleware.PerMinute(cfg.RateLimits.Standard),
		},
		Trips:        trips,
		Tokens:       sessions,
		Sessions:     sessions,
		Providers:    registry,
		Dependencies: deps,
	})

	// Stop search fans out to many provider calls, so writes get more time than reads
	server := &http.Server{
		Addr:         ":" + cfg.App.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().
			Str("addr", server.Addr).
			Msg("server listening")

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
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

// newDirections builds the configured directions provider.
func newDirections(cfg *config.Config, mapsClient *maps.Client, registry *resilience.Registry, metrics *telemetry.ProviderMetrics, log zerolog.Logger) (routing.Provider, error) {
	switch cfg.Directions.Provider {
	case config.DirectionsOpenRouteService:
		return openrouteservice.NewClient(openrouteservice.ClientConfig{
			APIKey:   cfg.Directions.ORSAPIKey,
			BaseURL:  cfg.Directions.ORSBaseURL,
			Registry: registry,
			Logger:   log,
		})
	default:
		return googlemaps.NewClient(googlemaps.ClientConfig{
			Maps:    mapsClient,
			Timeout: cfg.Google.Timeout,
			Metrics: metrics,
			Logger:  log,
		})
	}
}
