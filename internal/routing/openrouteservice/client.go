// Package openrouteservice provides a driving directions client for the OpenRouteService API.
package openrouteservice

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/roadtripper/roadtripper/internal/provider/resilience"
	"github.com/roadtripper/roadtripper/internal/routing"
	"github.com/roadtripper/roadtripper/pkg/polyline"
)

const (
	// ProviderName identifies this directions provider.
	ProviderName = "openrouteservice"

	// DefaultBaseURL is the OpenRouteService API base URL.
	DefaultBaseURL = "https://api.openrouteservice.org"

	// DefaultTimeout is the default request timeout.
	DefaultTimeout = 8 * time.Second

	drivingProfile = "driving-car"
)

// HTTPDoer is an interface for executing HTTP requests.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// ClientConfig holds configuration for the OpenRouteService client.
type ClientConfig struct {
	// APIKey is the ORS API key (required).
	APIKey string

	// BaseURL is the API base URL (optional, defaults to ORS API).
	BaseURL string

	// HTTPClient is the HTTP client to use (optional).
	// If nil, uses a resilient client with defaults.
	HTTPClient HTTPDoer

	// Timeout is the request timeout (optional, defaults to 8s).
	Timeout time.Duration

	// Registry is the provider registry for health tracking (optional).
	Registry *resilience.Registry

	// Logger for client operations.
	Logger zerolog.Logger
}

// Client is an OpenRouteService API client.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient HTTPDoer
	logger     zerolog.Logger
}

var _ routing.Provider = (*Client)(nil)

// NewClient creates a new OpenRouteService client. A missing API key is a
// configuration error.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: ORS API key is empty", routing.ErrConfiguration)
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		clientCfg := resilience.DefaultClientConfig(ProviderName)
		clientCfg.Timeout = timeout
		clientCfg.Registry = cfg.Registry
		clientCfg.Logger = cfg.Logger
		httpClient = resilience.NewClient(clientCfg)
	}

	return &Client{
		apiKey:     cfg.APIKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		logger:     cfg.Logger,
	}, nil
}

// Name returns the provider name.
func (c *Client) Name() string {
	return ProviderName
}

// GetRoute requests a driving route through the waypoints in the order given.
// ORS never reorders intermediate coordinates.
func (c *Client) GetRoute(ctx context.Context, req routing.DirectionsRequest) (*routing.Route, error) {
	if err := routing.ValidateRequest(req); err != nil {
		return nil, &routing.Error{
			Provider: ProviderName,
			Code:     "INVALID_REQUEST",
			Message:  "invalid directions request",
			Err:      err,
		}
	}

	// ORS uses [lon, lat] order (GeoJSON)
	coords := make([][]float64, 0, len(req.Waypoints)+2)
	coords = append(coords, []float64{req.Origin.Lng, req.Origin.Lat})
	for _, wp := range req.Waypoints {
		coords = append(coords, []float64{wp.Lng, wp.Lat})
	}
	coords = append(coords, []float64{req.Destination.Lng, req.Destination.Lat})

	orsReq := orsRequest{
		Coordinates:  coords,
		Preference:   "recommended",
		Instructions: true,
		Geometry:     true,
		Units:        "m",
		Language:     "en",
	}
	if req.PreferFast {
		orsReq.Preference = "fastest"
	}
	if req.AvoidTolls {
		orsReq.Options = &orsOptions{AvoidFeatures: []string{"tollways"}}
	}

	body, err := json.Marshal(orsReq)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	url := fmt.Sprintf("%s/v2/directions/%s/json", c.baseURL, drivingProfile)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", c.apiKey)
	httpReq.Header.Set("Accept", "application/json")

	c.logger.Debug().
		Int("waypoints", len(req.Waypoints)).
		Bool("avoid_tolls", req.AvoidTolls).
		Msg("requesting directions from ORS")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &routing.Error{
			Provider: ProviderName,
			Code:     "REQUEST_FAILED",
			Message:  "failed to reach directions provider",
			Err:      fmt.Errorf("%w: %v", routing.ErrProviderUnavailable, err),
		}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, c.handleErrorResponse(resp.StatusCode, respBody)
	}

	var orsResp orsResponse
	if err := json.Unmarshal(respBody, &orsResp); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	if len(orsResp.Routes) == 0 {
		return nil, &routing.Error{
			Provider: ProviderName,
			Code:     "NO_ROUTE",
			Message:  "provider returned no routes",
			Err:      routing.ErrNoRouteFound,
		}
	}

	route, err := toRoute(&orsResp.Routes[0], len(coords))
	if err != nil {
		return nil, &routing.Error{
			Provider: ProviderName,
			Code:     "BAD_GEOMETRY",
			Message:  "provider returned malformed route geometry",
			Err:      err,
		}
	}

	c.logger.Debug().
		Int("legs", len(route.Legs)).
		Int("distance_m", route.DistanceMeters()).
		Msg("received directions from ORS")

	return route, nil
}

// handleErrorResponse maps ORS error responses to domain errors.
func (c *Client) handleErrorResponse(statusCode int, body []byte) error {
	var orsErr orsErrorResponse
	_ = json.Unmarshal(body, &orsErr)
	msg := orsErr.Error.Message

	newErr := func(code, message string, err error) error {
		if message == "" {
			message = fmt.Sprintf("directions provider returned status %d", statusCode)
		}
		return &routing.Error{Provider: ProviderName, Code: code, Message: message, Err: err}
	}

	switch {
	case statusCode == http.StatusTooManyRequests:
		return newErr("RATE_LIMIT", "API rate limit exceeded, please try again later", routing.ErrRateLimitExceeded)
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return newErr("FORBIDDEN", "API access denied - check API key configuration", routing.ErrConfiguration)
	case statusCode >= 500:
		return newErr(fmt.Sprintf("SERVER_%d", statusCode), "directions provider is temporarily unavailable", routing.ErrProviderUnavailable)
	}

	switch orsErr.Error.Code {
	case orsErrorCodeRouteNotFound:
		return newErr("NO_ROUTE", msg, routing.ErrNoRouteFound)
	case orsErrorCodePointNotFound:
		return newErr("POINT_NOT_FOUND", msg, routing.ErrInvalidWaypoint)
	case orsErrorCodeExceedsLimit:
		if strings.Contains(strings.ToLower(msg), "waypoint") {
			return newErr("TOO_MANY_WAYPOINTS", msg, routing.ErrTooManyWaypoints)
		}
		return newErr("ROUTE_TOO_LONG", msg, routing.ErrRouteTooFar)
	case orsErrorCodeInvalidValue:
		return newErr("BAD_REQUEST", msg, routing.ErrInvalidCoordinates)
	}

	if statusCode == http.StatusNotFound {
		return newErr("NO_ROUTE", msg, routing.ErrNoRouteFound)
	}
	return newErr(fmt.Sprintf("HTTP_%d", statusCode), msg, routing.ErrProviderUnavailable)
}

// toRoute converts an ORS route to the domain model. Each ORS segment becomes a leg;
// the route's way_points index the input coordinates within the decoded geometry.
func toRoute(r *orsRoute, inputCount int) (*routing.Route, error) {
	path, err := polyline.Decode(r.Geometry)
	if err != nil {
		return nil, err
	}

	at := func(i int) routing.Coordinate {
		if i < 0 || i >= len(path) {
			return path[len(path)-1]
		}
		return path[i]
	}

	wayPoints := r.WayPoints
	if len(wayPoints) != inputCount {
		return nil, fmt.Errorf("expected %d way points, got %d", inputCount, len(wayPoints))
	}

	route := &routing.Route{
		OverviewPolyline: r.Geometry,
		Provider:         ProviderName,
		FetchedAt:        time.Now(),
	}
	for _, w := range r.Warnings {
		route.Warnings = append(route.Warnings, w.Message)
	}

	for i, seg := range r.Segments {
		if i+1 >= len(wayPoints) {
			break
		}
		leg := routing.Leg{
			StartLocation:   at(wayPoints[i]),
			EndLocation:     at(wayPoints[i+1]),
			DistanceMeters:  int(seg.Distance),
			DurationSeconds: int(seg.Duration),
		}
		for _, st := range seg.Steps {
			step := routing.Step{
				Instruction:     st.Instruction,
				DistanceMeters:  int(st.Distance),
				DurationSeconds: int(st.Duration),
			}
			if len(st.WayPoints) == 2 {
				step.Start = at(st.WayPoints[0])
				step.End = at(st.WayPoints[1])
			}
			leg.Steps = append(leg.Steps, step)
		}
		route.Legs = append(route.Legs, leg)
	}

	route.Summary = summarize(route.Legs)
	return route, nil
}

// summarize names the longest step's road, if any.
func summarize(legs []routing.Leg) string {
	var best routing.Step
	for _, leg := range legs {
		for _, st := range leg.Steps {
			if st.DistanceMeters > best.DistanceMeters {
				best = st
			}
		}
	}
	return best.Instruction
}
