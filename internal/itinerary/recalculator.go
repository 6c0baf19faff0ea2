package itinerary

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/roadtripper/roadtripper/internal/routing"
)

// ErrRecalculation indicates the route could not be rebuilt through the waypoints.
// The routing error is wrapped alongside it.
var ErrRecalculation = errors.New("route recalculation failed")

// ErrNoBaseline indicates the baseline route has no legs to take endpoints from.
var ErrNoBaseline = errors.New("baseline route has no legs")

// Options are the routing preferences applied on recalculation.
type Options struct {
	AvoidTolls bool
	PreferFast bool
}

// RecalculatorConfig holds configuration for the Recalculator.
type RecalculatorConfig struct {
	// Timeout bounds the directions call (default 10s).
	Timeout time.Duration

	// Logger for recalculation.
	Logger zerolog.Logger
}

// Recalculator rebuilds a route through an ordered list of waypoints.
type Recalculator struct {
	directions routing.Provider
	timeout    time.Duration
	logger     zerolog.Logger
}

// NewRecalculator creates a Recalculator.
func NewRecalculator(directions routing.Provider, cfg RecalculatorConfig) *Recalculator {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Recalculator{
		directions: directions,
		timeout:    cfg.Timeout,
		logger:     cfg.Logger,
	}
}

// Recalculate requests a route from the baseline's origin to its destination
// through the waypoints in the order given. The endpoints come from the baseline's
// leg coordinates rather than the typed addresses, so a second geocode cannot move
// them. With no waypoints the baseline is returned without a provider call.
//
// On failure the returned error wraps both ErrRecalculation and the routing error;
// the caller keeps its prior route.
func (r *Recalculator) Recalculate(ctx context.Context, baseline *routing.Route, ordered []Waypoint, opts Options) (*routing.Route, error) {
	if baseline == nil {
		return nil, fmt.Errorf("%w: %w", ErrRecalculation, ErrNoBaseline)
	}
	origin, ok := baseline.Origin()
	if !ok {
		return nil, fmt.Errorf("%w: %w", ErrRecalculation, ErrNoBaseline)
	}
	destination, _ := baseline.Destination()

	if len(ordered) == 0 {
		return baseline.Clone(), nil
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	start := time.Now()
	route, err := r.directions.GetRoute(ctx, routing.DirectionsRequest{
		Origin:      origin,
		Destination: destination,
		Waypoints:   Locations(ordered),
		AvoidTolls:  opts.AvoidTolls,
		PreferFast:  opts.PreferFast,
	})
	if err != nil {
		r.logger.Warn().
			Err(err).
			Int("waypoints", len(ordered)).
			Dur("duration", time.Since(start)).
			Msg("route recalculation failed")
		return nil, fmt.Errorf("%w: %w", ErrRecalculation, err)
	}

	r.logger.Debug().
		Int("waypoints", len(ordered)).
		Int("legs", len(route.Legs)).
		Dur("duration", time.Since(start)).
		Msg("route recalculated")

	return route, nil
}
