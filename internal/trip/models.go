// Package trip holds the state of a trip-planning session and the operations
// that change it.
package trip

import (
	"errors"
	"strings"
	"time"

	"github.com/roadtripper/roadtripper/internal/itinerary"
	"github.com/roadtripper/roadtripper/internal/routing"
	"github.com/roadtripper/roadtripper/internal/stops"
	"github.com/roadtripper/roadtripper/pkg/polyline"
)

// Repository and service errors.
var (
	ErrTripNotFound        = errors.New("trip not found")
	ErrTripExists          = errors.New("trip already exists")
	ErrVersionConflict     = errors.New("trip was modified concurrently")
	ErrWaypointNotFound    = errors.New("waypoint not found")
	ErrWaypointNameMissing = errors.New("waypoint name is required")
)

// Coordinate is a geographic point.
type Coordinate = polyline.Coordinate

// Waypoint is a stop the route passes through.
type Waypoint = itinerary.Waypoint

// Endpoint is a resolved trip origin or destination.
type Endpoint struct {
	Input    string     `json:"input"`
	Label    string     `json:"label"`
	Location Coordinate `json:"location"`
	Source   string     `json:"source,omitempty"`
}

// RestaurantPreferences narrow restaurant searches.
type RestaurantPreferences struct {
	Cuisine       string   `json:"cuisine,omitempty" validate:"omitempty,max=40"`
	MinRating     *float64 `json:"minRating,omitempty" validate:"omitempty,gte=0,lte=5"`
	PriceLevelMax *int     `json:"priceLevelMax,omitempty" validate:"omitempty,gte=1,lte=4"`
}

// Preferences are the stop and routing preferences of a trip.
type Preferences struct {
	RequestedStops        map[string]bool                 `json:"requestedStops,omitempty"`
	CustomStops           []stops.CustomStop              `json:"customStops,omitempty" validate:"omitempty,dive"`
	RestaurantPreferences *RestaurantPreferences          `json:"restaurantPreferences,omitempty"`
	CategoryFilters       map[string]stops.CategoryFilter `json:"categoryFilters,omitempty" validate:"omitempty,dive"`
	AvoidTolls            *bool                           `json:"avoidTolls,omitempty"`
	PreferFast            *bool                           `json:"preferFast,omitempty"`
}

// Trip is a trip-planning session.
type Trip struct {
	ID           string      `json:"id"`
	Origin       Endpoint    `json:"origin"`
	Destination  Endpoint    `json:"destination"`
	FuelLevel    *float64    `json:"fuelLevel,omitempty"`
	VehicleRange *float64    `json:"vehicleRange,omitempty"`
	Preferences  Preferences `json:"preferences"`

	// BaselineRoute is the route without waypoints. Stop search and waypoint
	// ordering always project onto it.
	BaselineRoute *routing.Route `json:"baselineRoute"`

	// Route is the current route through the waypoints.
	Route *routing.Route `json:"route"`

	Stops     []stops.Stop `json:"stops,omitempty"`
	Waypoints []Waypoint   `json:"waypoints,omitempty"`

	Version   int       `json:"version"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Clone returns a deep copy of the trip.
func (t *Trip) Clone() *Trip {
	if t == nil {
		return nil
	}
	out := *t
	out.FuelLevel = clonePtr(t.FuelLevel)
	out.VehicleRange = clonePtr(t.VehicleRange)
	out.Preferences = t.Preferences.Clone()
	out.BaselineRoute = t.BaselineRoute.Clone()
	out.Route = t.Route.Clone()
	out.Stops = append([]stops.Stop(nil), t.Stops...)
	out.Waypoints = append([]Waypoint(nil), t.Waypoints...)
	return &out
}

// FuelState returns the vehicle's fuel state, or nil when either value is unknown.
func (t *Trip) FuelState() *stops.FuelState {
	if t.FuelLevel == nil || t.VehicleRange == nil {
		return nil
	}
	return &stops.FuelState{Level: *t.FuelLevel, RangeMiles: *t.VehicleRange}
}

// RouteOptions returns the routing flags from the preferences.
func (t *Trip) RouteOptions() itinerary.Options {
	return itinerary.Options{
		AvoidTolls: deref(t.Preferences.AvoidTolls),
		PreferFast: deref(t.Preferences.PreferFast),
	}
}

// Filters returns the per-category filters with restaurant preferences folded in.
func (t *Trip) Filters() map[string]stops.CategoryFilter {
	out := make(map[string]stops.CategoryFilter, len(t.Preferences.CategoryFilters)+1)
	for k, f := range t.Preferences.CategoryFilters {
		out[k] = f
	}
	if rp := t.Preferences.RestaurantPreferences; rp != nil {
		f := out["restaurant"]
		if rp.Cuisine != "" && f.Cuisine == "" {
			f.Cuisine = rp.Cuisine
		}
		if rp.MinRating != nil && f.MinRating == nil {
			f.MinRating = clonePtr(rp.MinRating)
		}
		if rp.PriceLevelMax != nil && f.PriceLevelMax == nil {
			f.PriceLevelMax = clonePtr(rp.PriceLevelMax)
		}
		out["restaurant"] = f
	}
	return out
}

// FindWaypoint returns the index of the waypoint with the given name, compared
// case-insensitively, or -1.
func (t *Trip) FindWaypoint(name string) int {
	name = strings.TrimSpace(name)
	for i, wp := range t.Waypoints {
		if strings.EqualFold(wp.Name, name) {
			return i
		}
	}
	return -1
}

// Clone returns a deep copy of the preferences.
func (p Preferences) Clone() Preferences {
	out := p
	if p.RequestedStops != nil {
		out.RequestedStops = make(map[string]bool, len(p.RequestedStops))
		for k, v := range p.RequestedStops {
			out.RequestedStops[k] = v
		}
	}
	out.CustomStops = append([]stops.CustomStop(nil), p.CustomStops...)
	if p.RestaurantPreferences != nil {
		rp := *p.RestaurantPreferences
		rp.MinRating = clonePtr(rp.MinRating)
		rp.PriceLevelMax = clonePtr(rp.PriceLevelMax)
		out.RestaurantPreferences = &rp
	}
	if p.CategoryFilters != nil {
		out.CategoryFilters = make(map[string]stops.CategoryFilter, len(p.CategoryFilters))
		for k, f := range p.CategoryFilters {
			out.CategoryFilters[k] = cloneFilter(f)
		}
	}
	out.AvoidTolls = clonePtr(p.AvoidTolls)
	out.PreferFast = clonePtr(p.PreferFast)
	return out
}

func cloneFilter(f stops.CategoryFilter) stops.CategoryFilter {
	f.MinRating = clonePtr(f.MinRating)
	f.MinReviews = clonePtr(f.MinReviews)
	f.MaxDetourMinutes = clonePtr(f.MaxDetourMinutes)
	f.MaxOffRouteMiles = clonePtr(f.MaxOffRouteMiles)
	f.MaxResults = clonePtr(f.MaxResults)
	f.PriceLevelMax = clonePtr(f.PriceLevelMax)
	return f
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func deref(b *bool) bool {
	return b != nil && *b
}
