// Package google builds the shared Google Maps Platform client used by the
// directions and places providers.
package google

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/rs/zerolog"
	"googlemaps.github.io/maps"

	"github.com/roadtripper/roadtripper/internal/provider/resilience"
)

// ProviderName identifies Google Maps Platform in logs, metrics, and the health registry.
const ProviderName = "google-maps"

// ErrMissingAPIKey is returned when no API key is configured.
var ErrMissingAPIKey = errors.New("google maps api key is empty")

// Response statuses reported by the Maps web services.
const (
	StatusZeroResults            = "ZERO_RESULTS"
	StatusNotFound               = "NOT_FOUND"
	StatusMaxWaypointsExceeded   = "MAX_WAYPOINTS_EXCEEDED"
	StatusMaxRouteLengthExceeded = "MAX_ROUTE_LENGTH_EXCEEDED"
	StatusInvalidRequest         = "INVALID_REQUEST"
	StatusOverDailyLimit         = "OVER_DAILY_LIMIT"
	StatusOverQueryLimit         = "OVER_QUERY_LIMIT"
	StatusRequestDenied          = "REQUEST_DENIED"
	StatusUnknownError           = "UNKNOWN_ERROR"
)

// most specific first: OVER_DAILY_LIMIT must not be read as a generic failure
var knownStatuses = []string{
	StatusMaxRouteLengthExceeded,
	StatusMaxWaypointsExceeded,
	StatusZeroResults,
	StatusNotFound,
	StatusInvalidRequest,
	StatusOverDailyLimit,
	StatusOverQueryLimit,
	StatusRequestDenied,
	StatusUnknownError,
}

// Config holds configuration for the Maps client.
type Config struct {
	// APIKey is the Maps Platform key (required).
	APIKey string

	// BaseURL overrides the API host (tests).
	BaseURL string

	// HTTPClient is the HTTP client to use. If nil, a resilient client is created.
	HTTPClient *http.Client

	// Registry receives the resilient client for health tracking (optional).
	Registry *resilience.Registry

	// RequestsPerSecond caps outgoing calls (default: 50).
	RequestsPerSecond int

	// Logger records circuit breaker transitions of the default client.
	Logger zerolog.Logger
}

// NewMapsClient creates a Maps client whose calls go through the resilience transport.
func NewMapsClient(cfg Config) (*maps.Client, error) {
	if cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		clientCfg := resilience.DefaultClientConfig(ProviderName)
		clientCfg.Registry = cfg.Registry
		clientCfg.Logger = cfg.Logger
		httpClient = resilience.NewClient(clientCfg).HTTPClient()
	}

	rps := cfg.RequestsPerSecond
	if rps == 0 {
		rps = 50
	}

	opts := []maps.ClientOption{
		maps.WithAPIKey(cfg.APIKey),
		maps.WithHTTPClient(httpClient),
		maps.WithRateLimit(rps),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, maps.WithBaseURL(strings.TrimRight(cfg.BaseURL, "/")))
	}

	client, err := maps.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("creating maps client: %w", err)
	}
	return client, nil
}

// Status extracts the service status from an error returned by the maps package.
// It returns "" for transport errors that carry no status.
func Status(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	for _, status := range knownStatuses {
		if strings.Contains(msg, status) {
			return status
		}
	}
	return ""
}

// FormatLatLng renders a coordinate the way the web services expect it.
func FormatLatLng(lat, lng float64) string {
	return fmt.Sprintf("%.6f,%.6f", lat, lng)
}
