package stops

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/roadtripper/roadtripper/internal/geo"
	"github.com/roadtripper/roadtripper/internal/places"
	"github.com/roadtripper/roadtripper/internal/routing"
	"github.com/roadtripper/roadtripper/pkg/polyline"
)

// mockPlaces serves candidates from a search function and answers detail lookups
// for any candidate it has returned.
type mockPlaces struct {
	mu          sync.Mutex
	search      func(req places.NearbyRequest) ([]places.Candidate, error)
	reviews     map[string][]places.Review
	detailErr   map[string]error
	seen        map[string]places.Candidate
	searches    []places.NearbyRequest
	detailCalls int
}

func newMockPlaces(search func(req places.NearbyRequest) ([]places.Candidate, error)) *mockPlaces {
	return &mockPlaces{
		search:    search,
		reviews:   map[string][]places.Review{},
		detailErr: map[string]error{},
		seen:      map[string]places.Candidate{},
	}
}

func (m *mockPlaces) Name() string { return "mock" }

func (m *mockPlaces) SearchNearby(_ context.Context, req places.NearbyRequest) ([]places.Candidate, error) {
	res, err := m.search(req)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.searches = append(m.searches, req)
	for _, c := range res {
		m.seen[c.PlaceID] = c
	}
	return res, err
}

func (m *mockPlaces) GetDetails(_ context.Context, placeID string) (*places.Details, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.detailCalls++

	if err := m.detailErr[placeID]; err != nil {
		return nil, err
	}
	c, ok := m.seen[placeID]
	if !ok {
		return nil, places.ErrPlaceNotFound
	}
	return &places.Details{
		Candidate:        c,
		FormattedAddress: c.Address,
		Reviews:          append([]places.Review(nil), m.reviews[placeID]...),
	}, nil
}

// mockDirections adds a fixed number of seconds to the baseline for any route
// with a waypoint.
type mockDirections struct {
	mu              sync.Mutex
	baselineSeconds int
	extraSeconds    int
	err             error
	calls           int
}

func (m *mockDirections) Name() string { return "mock-directions" }

func (m *mockDirections) GetRoute(_ context.Context, req routing.DirectionsRequest) (*routing.Route, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	secs := m.baselineSeconds
	if len(req.Waypoints) > 0 {
		secs += m.extraSeconds
	}
	return &routing.Route{
		Legs: []routing.Leg{{StartLocation: req.Origin, EndLocation: req.Destination, DurationSeconds: secs}},
	}, nil
}

func (m *mockDirections) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// straightRoute builds a due-north route of the given length at 60 mph.
func straightRoute(miles float64) *routing.Route {
	start := Coordinate{Lat: 35.0, Lng: -100.0}
	degPerMile := 1 / (geo.EarthRadiusMiles * math.Pi / 180)
	end := Coordinate{Lat: start.Lat + miles*degPerMile, Lng: start.Lng}

	const vertices = 31
	path := make([]Coordinate, vertices)
	for i := range path {
		f := float64(i) / float64(vertices-1)
		path[i] = Coordinate{Lat: start.Lat + (end.Lat-start.Lat)*f, Lng: start.Lng}
	}

	return &routing.Route{
		OverviewPolyline: polyline.Encode(path),
		Legs: []routing.Leg{{
			StartLocation:   path[0],
			EndLocation:     path[len(path)-1],
			DistanceMeters:  int(miles * geo.MetersPerMile),
			DurationSeconds: int(miles * 60),
		}},
	}
}

// stationAt returns a candidate just east of a sample point.
func stationAt(prefix string, p Coordinate, types []string, rating float64, reviews int) places.Candidate {
	return places.Candidate{
		PlaceID:     fmt.Sprintf("%s-%.3f", prefix, p.Lat),
		Name:        fmt.Sprintf("%s %.3f", prefix, p.Lat),
		Location:    Coordinate{Lat: p.Lat, Lng: p.Lng + 0.002},
		Types:       types,
		Rating:      rating,
		ReviewCount: reviews,
	}
}
