package trip

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/roadtripper/roadtripper/internal/geo"
	"github.com/roadtripper/roadtripper/internal/geocode"
	"github.com/roadtripper/roadtripper/internal/itinerary"
	"github.com/roadtripper/roadtripper/internal/places"
	"github.com/roadtripper/roadtripper/internal/routing"
	"github.com/roadtripper/roadtripper/internal/stops"
	"github.com/roadtripper/roadtripper/internal/tripevents"
)

// EndpointResolver turns free-text origin and destination into coordinates.
type EndpointResolver interface {
	ResolveEndpoints(ctx context.Context, origin, destination string) (*geocode.Resolution, *geocode.Resolution, error)
}

// StopFinder searches for stops along a route.
type StopFinder interface {
	Find(ctx context.Context, req stops.FindRequest) (*stops.FindResult, error)
}

// Recalculator rebuilds a route through ordered waypoints.
type Recalculator interface {
	Recalculate(ctx context.Context, baseline *routing.Route, ordered []itinerary.Waypoint, opts itinerary.Options) (*routing.Route, error)
}

// ServiceConfig holds configuration for the trip service.
type ServiceConfig struct {
	Repo       Repository
	Resolver   EndpointResolver
	Directions routing.Provider
	Finder     StopFinder

	// Geocoder labels origins given as raw coordinates. Optional.
	Geocoder places.Geocoder

	// Recalculator defaults to an itinerary.Recalculator over Directions.
	Recalculator Recalculator

	// Events defaults to tripevents.NopPublisher.
	Events tripevents.Publisher

	// MaxConflictRetries bounds retries after a concurrent write (default 3).
	MaxConflictRetries uint64

	// ConflictBackoff is the first retry delay (default 50ms).
	ConflictBackoff time.Duration

	Now    func() time.Time
	Logger zerolog.Logger
}

// Service runs trip operations. Every mutation of a trip is a read-merge-write
// serialized per trip ID, and retried if another instance wrote in between.
type Service struct {
	repo       Repository
	resolver   EndpointResolver
	directions routing.Provider
	finder     StopFinder
	geocoder   places.Geocoder
	recalc     Recalculator
	events     tripevents.Publisher
	locks      *keyedMutex
	retries    uint64
	backoff    time.Duration
	now        func() time.Time
	logger     zerolog.Logger
}

// NewService creates a trip service.
func NewService(cfg ServiceConfig) *Service {
	if cfg.Recalculator == nil {
		cfg.Recalculator = itinerary.NewRecalculator(cfg.Directions, itinerary.RecalculatorConfig{Logger: cfg.Logger})
	}
	if cfg.Events == nil {
		cfg.Events = tripevents.NopPublisher{}
	}
	if cfg.MaxConflictRetries == 0 {
		cfg.MaxConflictRetries = 3
	}
	if cfg.ConflictBackoff <= 0 {
		cfg.ConflictBackoff = 50 * time.Millisecond
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Service{
		repo:       cfg.Repo,
		resolver:   cfg.Resolver,
		directions: cfg.Directions,
		finder:     cfg.Finder,
		geocoder:   cfg.Geocoder,
		recalc:     cfg.Recalculator,
		events:     cfg.Events,
		locks:      newKeyedMutex(),
		retries:    cfg.MaxConflictRetries,
		backoff:    cfg.ConflictBackoff,
		now:        cfg.Now,
		logger:     cfg.Logger,
	}
}

// PlanInput starts a trip.
type PlanInput struct {
	Origin      string
	Destination string

	// OriginPoint is the device location; it takes precedence over Origin.
	OriginPoint *Coordinate

	FuelLevel    *float64
	VehicleRange *float64
	Preferences  Preferences
}

// FindStopsInput asks for stops along the trip.
type FindStopsInput struct {
	Categories            map[string]bool
	Filters               map[string]stops.CategoryFilter
	CustomStops           []stops.CustomStop
	RestaurantPreferences *RestaurantPreferences
}

// FindStopsResult is the outcome of a stop search.
type FindStopsResult struct {
	Trip           *Trip
	Stops          []stops.Stop
	Categories     []stops.CategoryOutcome
	RelaxationNote string
	Warnings       []string
}

// WaypointResult is the outcome of adding or removing a waypoint.
type WaypointResult struct {
	Trip     *Trip
	Warnings []string
}

// Plan resolves the endpoints, fetches the baseline route, and stores a new trip.
func (s *Service) Plan(ctx context.Context, in PlanInput) (*Trip, error) {
	originInput := strings.TrimSpace(in.Origin)
	if in.OriginPoint != nil {
		originInput = geocode.FormatCoordinate(*in.OriginPoint)
	}

	origin, destination, err := s.resolver.ResolveEndpoints(ctx, originInput, in.Destination)
	if err != nil {
		return nil, err
	}
	if origin.Source == geocode.SourceCoordinates {
		origin.Label = geocode.ReverseLabel(ctx, s.geocoder, origin.Location)
	}

	prefs := MergePreferences(Preferences{}, in.Preferences)
	baseline, err := s.directions.GetRoute(ctx, routing.DirectionsRequest{
		Origin:      origin.Location,
		Destination: destination.Location,
		AvoidTolls:  deref(prefs.AvoidTolls),
		PreferFast:  deref(prefs.PreferFast),
	})
	if err != nil {
		return nil, err
	}
	if _, err := baseline.Path(); err != nil {
		return nil, fmt.Errorf("baseline route polyline: %w", err)
	}

	now := s.now().UTC()
	t := &Trip{
		ID:            uuid.NewString(),
		Origin:        Endpoint{Input: originInput, Label: origin.Label, Location: origin.Location, Source: origin.Source},
		Destination:   Endpoint{Input: in.Destination, Label: destination.Label, Location: destination.Location, Source: destination.Source},
		FuelLevel:     clonePtr(in.FuelLevel),
		VehicleRange:  clonePtr(in.VehicleRange),
		Preferences:   prefs,
		BaselineRoute: baseline,
		Route:         baseline.Clone(),
		Version:       1,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.repo.Create(ctx, t); err != nil {
		return nil, fmt.Errorf("storing trip: %w", err)
	}

	s.logger.Info().
		Str("trip_id", t.ID).
		Str("origin", t.Origin.Label).
		Str("destination", t.Destination.Label).
		Float64("miles", baseline.DistanceMiles()).
		Msg("trip planned")

	s.publish(ctx, tripevents.TypeTripPlanned, t, nil, "")
	return t, nil
}

// Get returns a trip.
func (s *Service) Get(ctx context.Context, id string) (*Trip, error) {
	return s.repo.Get(ctx, id)
}

// UpdatePreferences merges the update into the trip's preferences.
func (s *Service) UpdatePreferences(ctx context.Context, id string, update Preferences) (*Trip, error) {
	t, err := s.mutate(ctx, id, func(t *Trip) error {
		t.Preferences = MergePreferences(t.Preferences, update)
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, tripevents.TypePreferencesUpdated, t, nil, "")
	return t, nil
}

// FindStops merges the requested categories into the preferences, searches the
// baseline route for every requested category, and rebuilds the route through
// the found stops and any user-added waypoints.
func (s *Service) FindStops(ctx context.Context, id string, in FindStopsInput) (*FindStopsResult, error) {
	var res FindStopsResult

	t, err := s.mutate(ctx, id, func(t *Trip) error {
		res = FindStopsResult{}
		t.Preferences = MergePreferences(t.Preferences, Preferences{
			RequestedStops:        in.Categories,
			CustomStops:           in.CustomStops,
			CategoryFilters:       in.Filters,
			RestaurantPreferences: in.RestaurantPreferences,
		})

		opts := t.RouteOptions()
		found, err := s.finder.Find(ctx, stops.FindRequest{
			Route:       t.BaselineRoute,
			Categories:  t.Preferences.RequestedStops,
			Filters:     t.Filters(),
			CustomStops: t.Preferences.CustomStops,
			Fuel:        t.FuelState(),
			AvoidTolls:  opts.AvoidTolls,
			PreferFast:  opts.PreferFast,
		})
		if err != nil {
			return err
		}
		res.Stops = found.Stops
		res.Categories = found.Categories
		res.RelaxationNote = found.RelaxationNote()

		waypoints := userWaypoints(t.Waypoints)
		for _, st := range found.Stops {
			waypoints = append(waypoints, Waypoint{
				Name:     st.Name,
				Location: st.Location,
				PlaceID:  st.PlaceID,
				Source:   itinerary.SourceSearch,
			})
		}

		warning, err := s.reroute(ctx, t, waypoints)
		if err != nil {
			return err
		}
		if warning != "" {
			res.Warnings = append(res.Warnings, warning)
			return nil
		}
		// stored stops are always the ones the current route visits
		t.Stops = found.Stops
		return nil
	})
	if err != nil {
		return nil, err
	}
	res.Trip = t

	s.publish(ctx, tripevents.TypeStopsFound, t, requestedCategories(t.Preferences.RequestedStops), firstOrEmpty(res.Warnings))
	return &res, nil
}

// AddWaypoint adds a user waypoint, replacing one with the same name.
func (s *Service) AddWaypoint(ctx context.Context, id string, wp Waypoint) (*WaypointResult, error) {
	wp.Name = strings.TrimSpace(wp.Name)
	if wp.Name == "" {
		return nil, ErrWaypointNameMissing
	}
	if !geo.ValidCoordinate(wp.Location) {
		return nil, routing.ErrInvalidCoordinates
	}
	if wp.Source == "" {
		wp.Source = itinerary.SourceUser
	}

	var res WaypointResult
	t, err := s.mutate(ctx, id, func(t *Trip) error {
		res = WaypointResult{}
		waypoints := append([]Waypoint(nil), t.Waypoints...)
		if i := t.FindWaypoint(wp.Name); i >= 0 {
			waypoints[i] = wp
		} else {
			waypoints = append(waypoints, wp)
		}

		warning, err := s.reroute(ctx, t, waypoints)
		if err != nil {
			return err
		}
		if warning != "" {
			res.Warnings = append(res.Warnings, warning)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	res.Trip = t

	s.publish(ctx, tripevents.TypeWaypointAdded, t, nil, firstOrEmpty(res.Warnings))
	return &res, nil
}

// RemoveWaypoint removes the named waypoint. Removing the last one restores the
// baseline route without a provider call.
func (s *Service) RemoveWaypoint(ctx context.Context, id, name string) (*WaypointResult, error) {
	var res WaypointResult
	t, err := s.mutate(ctx, id, func(t *Trip) error {
		res = WaypointResult{}
		i := t.FindWaypoint(name)
		if i < 0 {
			return ErrWaypointNotFound
		}
		waypoints := append([]Waypoint(nil), t.Waypoints[:i]...)
		waypoints = append(waypoints, t.Waypoints[i+1:]...)

		warning, err := s.reroute(ctx, t, waypoints)
		if err != nil {
			return err
		}
		if warning != "" {
			res.Warnings = append(res.Warnings, warning)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	res.Trip = t

	s.publish(ctx, tripevents.TypeWaypointRemoved, t, nil, firstOrEmpty(res.Warnings))
	return &res, nil
}

// reroute orders the waypoints against the baseline and recalculates the route.
// When the provider fails, the trip keeps its prior route and waypoints and a
// warning is returned instead of an error.
func (s *Service) reroute(ctx context.Context, t *Trip, waypoints []Waypoint) (string, error) {
	baseline, err := t.BaselineRoute.Path()
	if err != nil {
		return "", fmt.Errorf("baseline route polyline: %w", err)
	}
	ordered := itinerary.Sequence(baseline, waypoints)

	route, err := s.recalc.Recalculate(ctx, t.BaselineRoute, ordered, t.RouteOptions())
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		s.logger.Warn().
			Err(err).
			Str("trip_id", t.ID).
			Int("waypoints", len(ordered)).
			Msg("keeping previous route after recalculation failure")
		return fmt.Sprintf("The route could not be updated: %s Your previous route is unchanged.", routing.UserMessage(err)), nil
	}

	t.Route = route
	t.Waypoints = ordered
	return "", nil
}

// mutate runs apply against the latest stored trip under the trip's lock and
// stores the result, retrying with backoff on a version conflict.
func (s *Service) mutate(ctx context.Context, id string, apply func(t *Trip) error) (*Trip, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = s.backoff
	bo.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(bo, s.retries), ctx)

	var out *Trip
	attempt := 0
	operation := func() error {
		attempt++
		t, err := s.repo.Get(ctx, id)
		if err != nil {
			return backoff.Permanent(err)
		}
		if err := apply(t); err != nil {
			return backoff.Permanent(err)
		}
		t.UpdatedAt = s.now().UTC()

		if err := s.repo.Update(ctx, t); err != nil {
			if errors.Is(err, ErrVersionConflict) {
				s.logger.Debug().
					Str("trip_id", id).
					Int("attempt", attempt).
					Msg("trip version conflict, retrying")
				return err
			}
			return backoff.Permanent(err)
		}
		out = t
		return nil
	}

	if err := backoff.Retry(operation, policy); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Service) publish(ctx context.Context, eventType string, t *Trip, categories []string, warning string) {
	err := s.events.Publish(ctx, tripevents.Event{
		Type:       eventType,
		TripID:     t.ID,
		Version:    t.Version,
		Waypoints:  len(t.Waypoints),
		Stops:      len(t.Stops),
		Categories: categories,
		Warning:    warning,
		OccurredAt: s.now().UTC(),
	})
	if err != nil {
		s.logger.Warn().Err(err).Str("trip_id", t.ID).Str("type", eventType).Msg("failed to publish trip event")
	}
}

func userWaypoints(wps []Waypoint) []Waypoint {
	var out []Waypoint
	for _, wp := range wps {
		if wp.Source != itinerary.SourceSearch {
			out = append(out, wp)
		}
	}
	return out
}

func requestedCategories(m map[string]bool) []string {
	var out []string
	for k, on := range m {
		if on {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

func firstOrEmpty(s []string) string {
	if len(s) == 0 {
		return ""
	}
	return s[0]
}
