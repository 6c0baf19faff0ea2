// Package routing provides driving routes through ordered waypoints.
package routing

import (
	"context"
	"errors"
	"time"

	"github.com/roadtripper/roadtripper/internal/geo"
	"github.com/roadtripper/roadtripper/pkg/polyline"
)

// Sentinel errors for routing operations.
var (
	// ErrProviderUnavailable indicates the directions provider is down or the circuit breaker is open.
	ErrProviderUnavailable = errors.New("directions provider unavailable")

	// ErrNoRouteFound indicates the provider returned no route for the request.
	ErrNoRouteFound = errors.New("no route found")

	// ErrRouteTooFar indicates the endpoints are too far apart or have no road connection.
	ErrRouteTooFar = errors.New("locations are too far apart or have no road connection")

	// ErrInvalidWaypoint indicates a waypoint could not be routed to.
	ErrInvalidWaypoint = errors.New("a waypoint could not be reached")

	// ErrTooManyWaypoints indicates the provider's waypoint limit was exceeded.
	ErrTooManyWaypoints = errors.New("too many waypoints")

	// ErrRateLimitExceeded indicates the API quota has been exceeded.
	ErrRateLimitExceeded = errors.New("rate limit exceeded")

	// ErrInvalidCoordinates indicates the provided coordinates are invalid or out of range.
	ErrInvalidCoordinates = errors.New("invalid coordinates")

	// ErrConfiguration indicates missing or rejected provider credentials.
	ErrConfiguration = errors.New("directions provider is not configured")
)

// MaxWaypoints is the most intermediate waypoints a single request may carry.
const MaxWaypoints = 23

// Provider computes driving routes.
type Provider interface {
	// GetRoute returns a route from origin to destination through the waypoints in the
	// order given. Implementations must not ask the provider to reorder waypoints.
	GetRoute(ctx context.Context, req DirectionsRequest) (*Route, error)

	// Name returns the provider identifier for logging and metrics.
	Name() string
}

// Coordinate is a geographic point.
type Coordinate = polyline.Coordinate

// DirectionsRequest is the request for a single route.
type DirectionsRequest struct {
	Origin      Coordinate
	Destination Coordinate
	Waypoints   []Coordinate
	AvoidTolls  bool
	PreferFast  bool
}

// Route is a provider route made of contiguous legs.
type Route struct {
	OverviewPolyline string    `json:"overviewPolyline"`
	Legs             []Leg     `json:"legs"`
	Summary          string    `json:"summary,omitempty"`
	Warnings         []string  `json:"warnings,omitempty"`
	Provider         string    `json:"provider,omitempty"`
	FetchedAt        time.Time `json:"fetchedAt"`
}

// Leg is the part of a route between two consecutive stops.
type Leg struct {
	StartLocation   Coordinate `json:"startLocation"`
	EndLocation     Coordinate `json:"endLocation"`
	StartAddress    string     `json:"startAddress,omitempty"`
	EndAddress      string     `json:"endAddress,omitempty"`
	DistanceMeters  int        `json:"distanceMeters"`
	DurationSeconds int        `json:"durationSeconds"`
	Steps           []Step     `json:"steps,omitempty"`
}

// Step is a single maneuver within a leg.
type Step struct {
	Instruction     string     `json:"instruction"`
	DistanceMeters  int        `json:"distanceMeters"`
	DurationSeconds int        `json:"durationSeconds"`
	Start           Coordinate `json:"start"`
	End             Coordinate `json:"end"`
	Polyline        string     `json:"polyline,omitempty"`
}

// DistanceMeters returns the total distance over all legs.
func (r *Route) DistanceMeters() int {
	total := 0
	for _, leg := range r.Legs {
		total += leg.DistanceMeters
	}
	return total
}

// DurationSeconds returns the total duration over all legs.
func (r *Route) DurationSeconds() int {
	total := 0
	for _, leg := range r.Legs {
		total += leg.DurationSeconds
	}
	return total
}

// DistanceMiles returns the total distance in miles.
func (r *Route) DistanceMiles() float64 {
	return float64(r.DistanceMeters()) / geo.MetersPerMile
}

// DurationMinutes returns the total duration in minutes.
func (r *Route) DurationMinutes() float64 {
	return float64(r.DurationSeconds()) / 60
}

// Origin returns the first leg's start location.
func (r *Route) Origin() (Coordinate, bool) {
	if len(r.Legs) == 0 {
		return Coordinate{}, false
	}
	return r.Legs[0].StartLocation, true
}

// Destination returns the last leg's end location.
func (r *Route) Destination() (Coordinate, bool) {
	if len(r.Legs) == 0 {
		return Coordinate{}, false
	}
	return r.Legs[len(r.Legs)-1].EndLocation, true
}

// Path decodes the overview polyline.
func (r *Route) Path() ([]Coordinate, error) {
	return polyline.Decode(r.OverviewPolyline)
}

// Clone returns a deep copy of the route.
func (r *Route) Clone() *Route {
	if r == nil {
		return nil
	}
	out := *r
	out.Warnings = append([]string(nil), r.Warnings...)
	out.Legs = make([]Leg, len(r.Legs))
	for i, leg := range r.Legs {
		leg.Steps = append([]Step(nil), leg.Steps...)
		out.Legs[i] = leg
	}
	return &out
}

// Error provides detailed error information from the directions provider.
type Error struct {
	Provider string // Provider that generated the error
	Code     string // Status or error code from the provider
	Message  string // Human-readable error message
	Err      error  // Underlying error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsRetryable returns true if the error is transient and the request can be retried.
func (e *Error) IsRetryable() bool {
	return errors.Is(e.Err, ErrProviderUnavailable) || errors.Is(e.Err, ErrRateLimitExceeded)
}

// UserMessage returns a message suitable for end users describing why routing failed.
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrRouteTooFar):
		return "Those locations are too far apart or have no road connection between them."
	case errors.Is(err, ErrInvalidWaypoint):
		return "One of the stops could not be reached by road."
	case errors.Is(err, ErrTooManyWaypoints):
		return "The route has too many stops. Remove a stop and try again."
	case errors.Is(err, ErrNoRouteFound):
		return "No driving route could be found between those locations."
	case errors.Is(err, ErrInvalidCoordinates):
		return "One of the locations has invalid coordinates."
	default:
		return "Directions are temporarily unavailable. Please try again shortly."
	}
}

// ValidateRequest checks coordinates and the waypoint limit.
func ValidateRequest(req DirectionsRequest) error {
	if !geo.ValidCoordinate(req.Origin) || !geo.ValidCoordinate(req.Destination) {
		return ErrInvalidCoordinates
	}
	for _, wp := range req.Waypoints {
		if !geo.ValidCoordinate(wp) {
			return ErrInvalidCoordinates
		}
	}
	if len(req.Waypoints) > MaxWaypoints {
		return ErrTooManyWaypoints
	}
	return nil
}
