// Package googlemaps provides a directions client backed by the Google Directions API.
package googlemaps

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"googlemaps.github.io/maps"

	"github.com/roadtripper/roadtripper/internal/provider/google"
	"github.com/roadtripper/roadtripper/internal/routing"
	"github.com/roadtripper/roadtripper/internal/telemetry"
)

// ProviderName identifies this directions provider.
const ProviderName = "google-directions"

// DefaultTimeout bounds a single directions call.
const DefaultTimeout = 8 * time.Second

// ClientConfig holds configuration for the directions client.
type ClientConfig struct {
	// Maps is a preconfigured client. If nil, one is built from Google.
	Maps *maps.Client

	// Google configures the Maps client when Maps is nil.
	Google google.Config

	// Timeout bounds each request (default: 8s).
	Timeout time.Duration

	// Metrics records provider calls (optional).
	Metrics *telemetry.ProviderMetrics

	// Logger for client operations.
	Logger zerolog.Logger
}

// Client requests driving routes from Google.
type Client struct {
	maps    *maps.Client
	timeout time.Duration
	metrics *telemetry.ProviderMetrics
	logger  zerolog.Logger
}

var _ routing.Provider = (*Client)(nil)

// NewClient creates a directions client. A missing API key is a configuration error.
func NewClient(cfg ClientConfig) (*Client, error) {
	mc := cfg.Maps
	if mc == nil {
		var err error
		mc, err = google.NewMapsClient(cfg.Google)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", routing.ErrConfiguration, err)
		}
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	return &Client{
		maps:    mc,
		timeout: timeout,
		metrics: cfg.Metrics,
		logger:  cfg.Logger,
	}, nil
}

// Name returns the provider name.
func (c *Client) Name() string {
	return ProviderName
}

// GetRoute requests a driving route through the waypoints in the order given.
// The request never sets optimize:true, so Google keeps the caller's order.
func (c *Client) GetRoute(ctx context.Context, req routing.DirectionsRequest) (*routing.Route, error) {
	if err := routing.ValidateRequest(req); err != nil {
		return nil, &routing.Error{
			Provider: ProviderName,
			Code:     "INVALID_REQUEST",
			Message:  "invalid directions request",
			Err:      err,
		}
	}

	dr := &maps.DirectionsRequest{
		Origin:      google.FormatLatLng(req.Origin.Lat, req.Origin.Lng),
		Destination: google.FormatLatLng(req.Destination.Lat, req.Destination.Lng),
		Mode:        maps.TravelModeDriving,
		Optimize:    false,
	}
	for _, wp := range req.Waypoints {
		dr.Waypoints = append(dr.Waypoints, google.FormatLatLng(wp.Lat, wp.Lng))
	}
	if req.AvoidTolls {
		dr.Avoid = []maps.Avoid{maps.AvoidTolls}
	}
	if req.PreferFast {
		dr.DepartureTime = "now"
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	c.logger.Debug().
		Int("waypoints", len(req.Waypoints)).
		Bool("avoid_tolls", req.AvoidTolls).
		Msg("requesting directions from Google")

	start := time.Now()
	routes, _, err := c.maps.Directions(ctx, dr)
	if err != nil {
		mapped := mapError(err)
		c.metrics.RecordRequest(ProviderName, "directions", time.Since(start), 0, mapped)
		return nil, mapped
	}
	c.metrics.RecordRequest(ProviderName, "directions", time.Since(start), len(routes), nil)

	if len(routes) == 0 {
		return nil, &routing.Error{
			Provider: ProviderName,
			Code:     google.StatusZeroResults,
			Message:  "provider returned no routes",
			Err:      routing.ErrNoRouteFound,
		}
	}

	route := toRoute(&routes[0])
	if len(route.Legs) != len(req.Waypoints)+1 {
		return nil, &routing.Error{
			Provider: ProviderName,
			Code:     "LEG_MISMATCH",
			Message:  fmt.Sprintf("expected %d legs, got %d", len(req.Waypoints)+1, len(route.Legs)),
			Err:      routing.ErrProviderUnavailable,
		}
	}

	c.logger.Debug().
		Int("legs", len(route.Legs)).
		Int("distance_m", route.DistanceMeters()).
		Msg("received directions from Google")

	return route, nil
}

// mapError converts a maps package error into the routing status taxonomy.
func mapError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return &routing.Error{
			Provider: ProviderName,
			Code:     "TIMEOUT",
			Message:  "directions request timed out",
			Err:      fmt.Errorf("%w: %v", routing.ErrProviderUnavailable, err),
		}
	}

	status := google.Status(err)
	newErr := func(message string, sentinel error) error {
		return &routing.Error{Provider: ProviderName, Code: status, Message: message, Err: sentinel}
	}

	switch status {
	case google.StatusZeroResults:
		return newErr("no route between the requested locations", routing.ErrNoRouteFound)
	case google.StatusNotFound:
		return newErr("a location could not be geocoded", routing.ErrInvalidWaypoint)
	case google.StatusMaxWaypointsExceeded:
		return newErr("too many waypoints in request", routing.ErrTooManyWaypoints)
	case google.StatusMaxRouteLengthExceeded:
		return newErr("requested route is too long", routing.ErrRouteTooFar)
	case google.StatusInvalidRequest:
		return newErr("directions request was rejected as invalid", routing.ErrInvalidCoordinates)
	case google.StatusOverQueryLimit, google.StatusOverDailyLimit:
		return newErr("API rate limit exceeded, please try again later", routing.ErrRateLimitExceeded)
	case google.StatusRequestDenied:
		return newErr("API access denied - check API key configuration", routing.ErrConfiguration)
	}

	return &routing.Error{
		Provider: ProviderName,
		Code:     "REQUEST_FAILED",
		Message:  "failed to reach directions provider",
		Err:      fmt.Errorf("%w: %v", routing.ErrProviderUnavailable, err),
	}
}

func toRoute(r *maps.Route) *routing.Route {
	route := &routing.Route{
		OverviewPolyline: r.OverviewPolyline.Points,
		Summary:          r.Summary,
		Warnings:         append([]string(nil), r.Warnings...),
		Provider:         ProviderName,
		FetchedAt:        time.Now(),
	}

	for _, l := range r.Legs {
		if l == nil {
			continue
		}
		leg := routing.Leg{
			StartLocation:   routing.Coordinate{Lat: l.StartLocation.Lat, Lng: l.StartLocation.Lng},
			EndLocation:     routing.Coordinate{Lat: l.EndLocation.Lat, Lng: l.EndLocation.Lng},
			StartAddress:    l.StartAddress,
			EndAddress:      l.EndAddress,
			DistanceMeters:  l.Distance.Meters,
			DurationSeconds: int(l.Duration.Seconds()),
		}
		for _, s := range l.Steps {
			if s == nil {
				continue
			}
			leg.Steps = append(leg.Steps, routing.Step{
				Instruction:     s.HTMLInstructions,
				DistanceMeters:  s.Distance.Meters,
				DurationSeconds: int(s.Duration.Seconds()),
				Start:           routing.Coordinate{Lat: s.StartLocation.Lat, Lng: s.StartLocation.Lng},
				End:             routing.Coordinate{Lat: s.EndLocation.Lat, Lng: s.EndLocation.Lng},
				Polyline:        s.Polyline.Points,
			})
		}
		route.Legs = append(route.Legs, leg)
	}

	return route
}
