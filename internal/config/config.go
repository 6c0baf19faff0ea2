// Package config loads service configuration from the environment and an
// optional config file.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/roadtripper/roadtripper/internal/stops"
)

// ErrMissingCredentials indicates a required provider credential is not set.
var ErrMissingCredentials = errors.New("missing provider credentials")

// Directions provider names.
const (
	DirectionsGoogle           = "google"
	DirectionsOpenRouteService = "openrouteservice"
)

// Config is the full service configuration.
type Config struct {
	App        AppConfig        `mapstructure:"app"`
	RateLimits RateLimitsConfig `mapstructure:"rate_limits"`
	Google     GoogleConfig     `mapstructure:"google"`
	Directions DirectionsConfig `mapstructure:"directions"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Session    SessionConfig    `mapstructure:"session"`
	PubSub     PubSubConfig     `mapstructure:"pubsub"`
	Telemetry  TelemetryConfig  `mapstructure:"telemetry"`
	Stops      StopsConfig      `mapstructure:"stops"`
}

// AppConfig holds HTTP server settings.
type AppConfig struct {
	Port string `mapstructure:"port"`
	Env  string `mapstructure:"env"`

	// RequireTLS rejects requests a load balancer forwarded over plain HTTP.
	RequireTLS bool `mapstructure:"require_tls"`
}

// GoogleConfig holds Google Maps Platform settings.
type GoogleConfig struct {
	APIKey            string        `mapstructure:"api_key"`
	RequestsPerSecond int           `mapstructure:"requests_per_second"`
	BaseURL           string        `mapstructure:"base_url"`
	Timeout           time.Duration `mapstructure:"timeout"`
}

// DirectionsConfig selects and tunes the directions provider.
type DirectionsConfig struct {
	Provider   string        `mapstructure:"provider"`
	ORSAPIKey  string        `mapstructure:"ors_api_key"`
	ORSBaseURL string        `mapstructure:"ors_base_url"`
	CacheTTL   time.Duration `mapstructure:"cache_ttl"`
}

// DatabaseConfig holds PostgreSQL settings. With Enabled false trips are kept in
// memory.
type DatabaseConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// SessionConfig holds trip token settings.
type SessionConfig struct {
	SigningKey string        `mapstructure:"signing_key"`
	Issuer     string        `mapstructure:"issuer"`
	Audience   string        `mapstructure:"audience"`
	Expiry     time.Duration `mapstructure:"expiry"`
}

// PubSubConfig holds trip event publishing settings. Events are dropped when
// ProjectID is empty.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TripTopic string `mapstructure:"trip_topic"`
}

// TelemetryConfig holds OpenTelemetry settings.
type TelemetryConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	Endpoint    string  `mapstructure:"endpoint"`
	SampleRatio float64 `mapstructure:"sample_ratio"`
}

// StopsConfig tunes stop search, scoring, and relaxation.
type StopsConfig struct {
	Weights              stops.ScoringWeights `mapstructure:"weights"`
	RelaxationMultiplier float64              `mapstructure:"relaxation_multiplier"`
	RatingRelaxStep      float64              `mapstructure:"rating_relax_step"`
	AverageSpeedMph      float64              `mapstructure:"average_speed_mph"`
	ProxyGateMultiplier  float64              `mapstructure:"proxy_gate_multiplier"`
	MaxDetailFetches     int                  `mapstructure:"max_detail_fetches"`
	InteriorSamples      int                  `mapstructure:"interior_samples"`
	FuelReserve          float64              `mapstructure:"fuel_reserve"`
	FuelToleranceMiles   float64              `mapstructure:"fuel_tolerance_miles"`
}

// RateLimitsConfig holds per-minute request budgets for each endpoint class.
type RateLimitsConfig struct {
	Plan      int `mapstructure:"plan"`
	Expensive int `mapstructure:"expensive"`
	Standard  int `mapstructure:"standard"`
}

// envBindings maps config keys to environment variables.
var envBindings = map[string]string{
	"app.port":                     "APP_PORT",
	"app.env":                      "APP_ENV",
	"app.require_tls":              "REQUIRE_TLS",
	"rate_limits.plan":             "RATE_LIMIT_PLAN_PER_MINUTE",
	"rate_limits.expensive":        "RATE_LIMIT_EXPENSIVE_PER_MINUTE",
	"rate_limits.standard":         "RATE_LIMIT_STANDARD_PER_MINUTE",
	"google.api_key":               "GOOGLE_MAPS_API_KEY",
	"google.requests_per_second":   "GOOGLE_MAPS_RPS",
	"google.base_url":              "GOOGLE_MAPS_BASE_URL",
	"google.timeout":               "GOOGLE_MAPS_TIMEOUT",
	"directions.provider":          "DIRECTIONS_PROVIDER",
	"directions.ors_api_key":       "ORS_API_KEY",
	"directions.ors_base_url":      "ORS_BASE_URL",
	"directions.cache_ttl":         "DIRECTIONS_CACHE_TTL",
	"database.enabled":             "DATABASE_ENABLED",
	"database.auto_migrate":        "DATABASE_AUTO_MIGRATE",
	"database.host":                "DATABASE_HOST",
	"database.port":                "DATABASE_PORT",
	"database.user":                "DATABASE_USER",
	"database.password":            "DATABASE_PASSWORD",
	"database.name":                "DATABASE_NAME",
	"database.ssl_mode":            "DATABASE_SSL_MODE",
	"database.max_open_conns":      "DATABASE_MAX_OPEN_CONNS",
	"database.max_idle_conns":      "DATABASE_MAX_IDLE_CONNS",
	"database.conn_max_lifetime":   "DATABASE_CONN_MAX_LIFETIME",
	"session.signing_key":          "SESSION_SIGNING_KEY",
	"session.issuer":               "SESSION_ISSUER",
	"session.audience":             "SESSION_AUDIENCE",
	"session.expiry":               "SESSION_EXPIRY",
	"pubsub.project_id":            "PUBSUB_PROJECT_ID",
	"pubsub.trip_topic":            "PUBSUB_TRIP_TOPIC",
	"telemetry.enabled":            "OTEL_ENABLED",
	"telemetry.endpoint":           "OTEL_EXPORTER_OTLP_ENDPOINT",
	"telemetry.sample_ratio":       "OTEL_TRACES_SAMPLER_ARG",
	"stops.relaxation_multiplier":  "STOPS_RELAXATION_MULTIPLIER",
	"stops.rating_relax_step":      "STOPS_RATING_RELAX_STEP",
	"stops.average_speed_mph":      "STOPS_AVERAGE_SPEED_MPH",
	"stops.proxy_gate_multiplier":  "STOPS_PROXY_GATE_MULTIPLIER",
	"stops.max_detail_fetches":     "STOPS_MAX_DETAIL_FETCHES",
	"stops.interior_samples":       "STOPS_INTERIOR_SAMPLES",
	"stops.fuel_reserve":           "STOPS_FUEL_RESERVE",
	"stops.fuel_tolerance_miles":   "STOPS_FUEL_TOLERANCE_MILES",
	"stops.weights.rating":         "STOPS_WEIGHT_RATING",
	"stops.weights.review_log":     "STOPS_WEIGHT_REVIEW_LOG",
	"stops.weights.detour_minute":  "STOPS_WEIGHT_DETOUR_MINUTE",
	"stops.weights.off_route_mile": "STOPS_WEIGHT_OFF_ROUTE_MILE",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.port", "8080")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.require_tls", false)
	v.SetDefault("rate_limits.plan", 10)
	v.SetDefault("rate_limits.expensive", 30)
	v.SetDefault("rate_limits.standard", 100)

	v.SetDefault("google.requests_per_second", 50)
	v.SetDefault("google.base_url", "")
	v.SetDefault("google.timeout", 8*time.Second)

	v.SetDefault("directions.provider", DirectionsGoogle)
	v.SetDefault("directions.ors_base_url", "")
	v.SetDefault("directions.cache_ttl", 15*time.Minute)

	v.SetDefault("database.enabled", false)
	v.SetDefault("database.auto_migrate", true)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "roadtripper")
	v.SetDefault("database.password", "localdev")
	v.SetDefault("database.name", "roadtripper")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)

	v.SetDefault("session.issuer", "https://api.roadtripper.app")
	v.SetDefault("session.audience", "roadtripper-api")
	v.SetDefault("session.expiry", 24*time.Hour)

	v.SetDefault("pubsub.trip_topic", "trip-events")

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.endpoint", "localhost:4317")
	v.SetDefault("telemetry.sample_ratio", 1.0)

	w := stops.DefaultScoringWeights()
	v.SetDefault("stops.weights.rating", w.Rating)
	v.SetDefault("stops.weights.review_log", w.ReviewLog)
	v.SetDefault("stops.weights.detour_minute", w.DetourMinute)
	v.SetDefault("stops.weights.off_route_mile", w.OffRouteMile)
	v.SetDefault("stops.weights.profile_match_bonus", w.ProfileMatchBonus)
	v.SetDefault("stops.weights.mid_route_bonus", w.MidRouteBonus)
	v.SetDefault("stops.weights.mid_route_start", w.MidRouteStart)
	v.SetDefault("stops.weights.mid_route_end", w.MidRouteEnd)
	v.SetDefault("stops.weights.fuel_target_mile", w.FuelTargetMile)

	vc := stops.DefaultVerifyConfig()
	v.SetDefault("stops.relaxation_multiplier", vc.RelaxationMultiplier)
	v.SetDefault("stops.rating_relax_step", vc.RatingRelaxStep)
	v.SetDefault("stops.average_speed_mph", vc.AverageSpeedMph)
	v.SetDefault("stops.proxy_gate_multiplier", vc.ProxyGateMultiplier)
	v.SetDefault("stops.max_detail_fetches", vc.MaxDetailFetches)
	v.SetDefault("stops.interior_samples", stops.DefaultSearchConfig().InteriorSamples)

	fc := stops.DefaultFuelConfig()
	v.SetDefault("stops.fuel_reserve", fc.Reserve)
	v.SetDefault("stops.fuel_tolerance_miles", fc.ToleranceMiles)
}

// Load reads configuration. Environment variables override values from the
// optional config file at path, which override the defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("binding %s: %w", env, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	cfg.Directions.Provider = strings.ToLower(strings.TrimSpace(cfg.Directions.Provider))

	return &cfg, nil
}

// Validate checks that the configured providers have credentials. A missing key
// is fatal at startup.
func (c *Config) Validate() error {
	if c.Google.APIKey == "" {
		return fmt.Errorf("%w: GOOGLE_MAPS_API_KEY is required for places and geocoding", ErrMissingCredentials)
	}
	switch c.Directions.Provider {
	case DirectionsGoogle:
	case DirectionsOpenRouteService:
		if c.Directions.ORSAPIKey == "" {
			return fmt.Errorf("%w: ORS_API_KEY is required when DIRECTIONS_PROVIDER=%s", ErrMissingCredentials, DirectionsOpenRouteService)
		}
	default:
		return fmt.Errorf("unknown directions provider %q", c.Directions.Provider)
	}
	if c.RateLimits.Plan < 0 || c.RateLimits.Expensive < 0 || c.RateLimits.Standard < 0 {
		return errors.New("rate limits must not be negative")
	}
	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		return fmt.Errorf("telemetry sample ratio %v is outside [0, 1]", c.Telemetry.SampleRatio)
	}
	return nil
}

// IsProduction reports whether the service runs in production.
func (c *Config) IsProduction() bool {
	return c.App.Env == "production"
}

// VerifyConfig returns the verification settings for the stop finder.
func (s StopsConfig) VerifyConfig() stops.VerifyConfig {
	vc := stops.DefaultVerifyConfig()
	vc.Weights = s.Weights
	vc.RelaxationMultiplier = s.RelaxationMultiplier
	vc.RatingRelaxStep = s.RatingRelaxStep
	vc.AverageSpeedMph = s.AverageSpeedMph
	vc.ProxyGateMultiplier = s.ProxyGateMultiplier
	vc.MaxDetailFetches = s.MaxDetailFetches
	return vc
}

// SearchConfig returns the candidate search settings.
func (s StopsConfig) SearchConfig() stops.SearchConfig {
	sc := stops.DefaultSearchConfig()
	sc.InteriorSamples = s.InteriorSamples
	return sc
}

// FuelConfig returns the fuel planning settings.
func (s StopsConfig) FuelConfig() stops.FuelConfig {
	fc := stops.DefaultFuelConfig()
	fc.Reserve = s.FuelReserve
	fc.ToleranceMiles = s.FuelToleranceMiles
	return fc
}
