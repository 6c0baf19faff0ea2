package models

import (
	"strings"

	"github.com/roadtripper/roadtripper/internal/routing"
	"github.com/roadtripper/roadtripper/internal/stops"
	"github.com/roadtripper/roadtripper/internal/trip"
)

// PlanTripRequest starts a trip. Either origin text or an originPoint (the
// device location) is required.
type PlanTripRequest struct {
	Origin       string            `json:"origin,omitempty" validate:"required_without=OriginPoint,omitempty,max=200"`
	OriginPoint  *Point            `json:"originPoint,omitempty" validate:"omitempty"`
	Destination  string            `json:"destination" validate:"required,max=200"`
	FuelLevel    *float64          `json:"fuelLevel,omitempty" validate:"omitempty,gte=0,lte=1"`
	VehicleRange *float64          `json:"vehicleRange,omitempty" validate:"omitempty,gt=0,lte=2000"`
	Preferences  *trip.Preferences `json:"preferences,omitempty" validate:"omitempty"`
}

// ToInput converts the request into a plan input.
func (r *PlanTripRequest) ToInput() trip.PlanInput {
	in := trip.PlanInput{
		Origin:       r.Origin,
		Destination:  strings.TrimSpace(r.Destination),
		FuelLevel:    r.FuelLevel,
		VehicleRange: r.VehicleRange,
	}
	if r.OriginPoint != nil {
		c := r.OriginPoint.Coordinate()
		in.OriginPoint = &c
	}
	if r.Preferences != nil {
		in.Preferences = *r.Preferences
	}
	return in
}

// SessionToken is the bearer token for a trip's later calls.
type SessionToken struct {
	Token     string    `json:"token"`
	ExpiresAt Timestamp `json:"expiresAt"`
}

// TripResponse wraps a trip. Session is only set when the trip is created.
type TripResponse struct {
	Trip    *trip.Trip    `json:"trip"`
	Session *SessionToken `json:"session,omitempty"`
}

// FindStopsRequest asks for stops along the trip. Categories are merged into
// the trip's requested stops; an empty request repeats the last search.
type FindStopsRequest struct {
	Categories            []string                        `json:"categories,omitempty" validate:"omitempty,max=20,dive,required,max=40"`
	Filters               map[string]stops.CategoryFilter `json:"filters,omitempty" validate:"omitempty,dive"`
	CustomStops           []stops.CustomStop              `json:"customStops,omitempty" validate:"omitempty,max=10,dive"`
	RestaurantPreferences *trip.RestaurantPreferences     `json:"restaurantPreferences,omitempty" validate:"omitempty"`
}

// ToInput converts the request into a stop search input.
func (r *FindStopsRequest) ToInput() trip.FindStopsInput {
	var categories map[string]bool
	if len(r.Categories) > 0 {
		categories = make(map[string]bool, len(r.Categories))
		for _, c := range r.Categories {
			categories[strings.ToLower(strings.TrimSpace(c))] = true
		}
	}
	return trip.FindStopsInput{
		Categories:            categories,
		Filters:               r.Filters,
		CustomStops:           r.CustomStops,
		RestaurantPreferences: r.RestaurantPreferences,
	}
}

// FindStopsResponse is the outcome of a stop search.
type FindStopsResponse struct {
	Stops          []stops.Stop            `json:"stops"`
	Categories     []stops.CategoryOutcome `json:"categories"`
	UpdatedRoute   *routing.Route          `json:"updatedRoute"`
	Waypoints      []trip.Waypoint         `json:"waypoints"`
	RelaxationNote string                  `json:"relaxationNote,omitempty"`
	Warnings       []string                `json:"warnings,omitempty"`
	Version        int                     `json:"version"`
}

// NewFindStopsResponse builds the response from a search result.
func NewFindStopsResponse(res *trip.FindStopsResult) FindStopsResponse {
	return FindStopsResponse{
		Stops:          nonNil(res.Stops),
		Categories:     nonNil(res.Categories),
		UpdatedRoute:   res.Trip.Route,
		Waypoints:      nonNil(res.Trip.Waypoints),
		RelaxationNote: res.RelaxationNote,
		Warnings:       res.Warnings,
		Version:        res.Trip.Version,
	}
}

// AddWaypointRequest adds a stop chosen by the user.
type AddWaypointRequest struct {
	Name     string `json:"name" validate:"required,max=120"`
	Location Point  `json:"location"`
	PlaceID  string `json:"placeId,omitempty" validate:"omitempty,max=200"`
}

// ToWaypoint converts the request into a user waypoint.
func (r *AddWaypointRequest) ToWaypoint() trip.Waypoint {
	return trip.Waypoint{
		Name:     strings.TrimSpace(r.Name),
		Location: r.Location.Coordinate(),
		PlaceID:  r.PlaceID,
	}
}

// WaypointResponse is the route after a waypoint change.
type WaypointResponse struct {
	UpdatedRoute *routing.Route  `json:"updatedRoute"`
	Waypoints    []trip.Waypoint `json:"waypoints"`
	Warnings     []string        `json:"warnings,omitempty"`
	Version      int             `json:"version"`
}

// NewWaypointResponse builds the response from a waypoint change.
func NewWaypointResponse(res *trip.WaypointResult) WaypointResponse {
	return WaypointResponse{
		UpdatedRoute: res.Trip.Route,
		Waypoints:    nonNil(res.Trip.Waypoints),
		Warnings:     res.Warnings,
		Version:      res.Trip.Version,
	}
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
