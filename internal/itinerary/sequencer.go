// Package itinerary orders accepted stops along a route and rebuilds the route
// through them.
package itinerary

import (
	"sort"

	"github.com/roadtripper/roadtripper/internal/geo"
	"github.com/roadtripper/roadtripper/pkg/polyline"
)

// Coordinate is a geographic point.
type Coordinate = polyline.Coordinate

// Waypoint sources.
const (
	SourceSearch = "search"
	SourceUser   = "user"
)

// Waypoint is a stop the route must pass through.
type Waypoint struct {
	Name     string     `json:"name"`
	Location Coordinate `json:"location"`
	PlaceID  string     `json:"placeId,omitempty"`
	Source   string     `json:"source,omitempty"`
}

// Sequence returns the waypoints in visiting order: ascending distance along the
// baseline path, with the name breaking ties. The input slice is not modified.
//
// baseline must be the route without waypoints. Projecting onto a route that
// already detours through some stops would let earlier choices skew the order.
func Sequence(baseline []Coordinate, waypoints []Waypoint) []Waypoint {
	type positioned struct {
		wp    Waypoint
		along float64
	}

	items := make([]positioned, len(waypoints))
	for i, wp := range waypoints {
		items[i] = positioned{wp: wp, along: geo.DistanceAlongRoute(wp.Location, baseline)}
	}

	sort.SliceStable(items, func(i, j int) bool {
		if items[i].along != items[j].along {
			return items[i].along < items[j].along
		}
		return items[i].wp.Name < items[j].wp.Name
	})

	out := make([]Waypoint, len(items))
	for i, it := range items {
		out[i] = it.wp
	}
	return out
}

// Locations returns the waypoint coordinates in order.
func Locations(waypoints []Waypoint) []Coordinate {
	out := make([]Coordinate, len(waypoints))
	for i, wp := range waypoints {
		out[i] = wp.Location
	}
	return out
}
