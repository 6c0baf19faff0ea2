package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roadtripper/roadtripper/internal/api"
	"github.com/roadtripper/roadtripper/internal/api/handler"
	"github.com/roadtripper/roadtripper/internal/api/models"
	"github.com/roadtripper/roadtripper/internal/geocode"
	"github.com/roadtripper/roadtripper/internal/itinerary"
	"github.com/roadtripper/roadtripper/internal/routing"
	"github.com/roadtripper/roadtripper/internal/session"
	"github.com/roadtripper/roadtripper/internal/stops"
	"github.com/roadtripper/roadtripper/internal/trip"
	"github.com/roadtripper/roadtripper/pkg/polyline"
)

var _ handler.TripService = (*fakeTrips)(nil)

// fakeTrips is an in-memory handler.TripService.
type fakeTrips struct {
	trips map[string]*trip.Trip

	planErr  error
	stopsErr error

	lastPlan      trip.PlanInput
	lastFindStops trip.FindStopsInput
	lastPrefs     trip.Preferences
}

func newFakeTrips() *fakeTrips {
	return &fakeTrips{trips: map[string]*trip.Trip{}}
}

func testRoute() *routing.Route {
	path := []polyline.Coordinate{{Lat: 37.77, Lng: -122.42}, {Lat: 36.60, Lng: -121.89}, {Lat: 34.05, Lng: -118.24}}
	return &routing.Route{
		OverviewPolyline: polyline.Encode(path),
		Legs: []routing.Leg{{
			StartLocation:   path[0],
			EndLocation:     path[2],
			DistanceMeters:  615000,
			DurationSeconds: 21600,
		}},
		Provider: "test",
	}
}

func (f *fakeTrips) Plan(_ context.Context, in trip.PlanInput) (*trip.Trip, error) {
	f.lastPlan = in
	if f.planErr != nil {
		return nil, f.planErr
	}
	t := &trip.Trip{
		ID:            fmt.Sprintf("trip-%d", len(f.trips)+1),
		Origin:        trip.Endpoint{Input: in.Origin, Label: in.Origin},
		Destination:   trip.Endpoint{Input: in.Destination, Label: in.Destination},
		BaselineRoute: testRoute(),
		Route:         testRoute(),
		Preferences:   in.Preferences,
		Version:       1,
	}
	f.trips[t.ID] = t
	return t, nil
}

func (f *fakeTrips) Get(_ context.Context, id string) (*trip.Trip, error) {
	t, ok := f.trips[id]
	if !ok {
		return nil, trip.ErrTripNotFound
	}
	return t, nil
}

func (f *fakeTrips) UpdatePreferences(ctx context.Context, id string, update trip.Preferences) (*trip.Trip, error) {
	t, err := f.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	f.lastPrefs = update
	t.Preferences = trip.MergePreferences(t.Preferences, update)
	t.Version++
	return t, nil
}

func (f *fakeTrips) FindStops(ctx context.Context, id string, in trip.FindStopsInput) (*trip.FindStopsResult, error) {
	t, err := f.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	f.lastFindStops = in
	if f.stopsErr != nil {
		return nil, f.stopsErr
	}
	stop := stops.Stop{PlaceID: "p1", Name: "Shell", Category: "gas", Location: polyline.Coordinate{Lat: 36.6, Lng: -121.9}}
	t.Stops = []stops.Stop{stop}
	t.Waypoints = []trip.Waypoint{{Name: stop.Name, Location: stop.Location, PlaceID: stop.PlaceID, Source: itinerary.SourceSearch}}
	t.Version++
	return &trip.FindStopsResult{
		Trip:           t,
		Stops:          t.Stops,
		Categories:     []stops.CategoryOutcome{{Category: "gas", Label: "Gas station", Found: 1}},
		RelaxationNote: "",
	}, nil
}

func (f *fakeTrips) AddWaypoint(ctx context.Context, id string, wp trip.Waypoint) (*trip.WaypointResult, error) {
	t, err := f.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	wp.Source = itinerary.SourceUser
	t.Waypoints = append(t.Waypoints, wp)
	t.Version++
	return &trip.WaypointResult{Trip: t}, nil
}

func (f *fakeTrips) RemoveWaypoint(ctx context.Context, id, name string) (*trip.WaypointResult, error) {
	t, err := f.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	i := t.FindWaypoint(name)
	if i < 0 {
		return nil, trip.ErrWaypointNotFound
	}
	t.Waypoints = append(t.Waypoints[:i], t.Waypoints[i+1:]...)
	t.Version++
	return &trip.WaypointResult{
		Trip:     t,
		Warnings: []string{"The route could not be updated: Directions are temporarily unavailable. Please try again shortly. Your previous route is unchanged."},
	}, nil
}

type testEnv struct {
	router   http.Handler
	trips    *fakeTrips
	sessions *session.Service
}

func newTestEnv(t *testing.T, deps ...handler.DependencyCheck) *testEnv {
	t.Helper()
	sessions, err := session.NewService(session.Config{
		SigningKey: "test-secret-key-for-testing-only",
		Issuer:     "https://api.roadtripper.app",
		Audience:   "roadtripper-api",
	})
	require.NoError(t, err)

	trips := newFakeTrips()
	router := api.NewRouter(api.RouterConfig{
		Version:      "test",
		BuildTime:    "2024-01-01T00:00:00Z",
		Logger:       zerolog.New(io.Discard),
		Trips:        trips,
		Tokens:       sessions,
		Sessions:     sessions,
		Dependencies: deps,
	})
	return &testEnv{router: router, trips: trips, sessions: sessions}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader = http.NoBody
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

// plan creates a trip through the API and returns its ID and session token.
func (e *testEnv) plan(t *testing.T) (string, string) {
	t.Helper()
	w := e.do(t, http.MethodPost, "/v1/trips", "", map[string]any{
		"origin":      "San Francisco, CA",
		"destination": "Los Angeles, CA",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp models.TripResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotNil(t, resp.Session)
	return resp.Trip.ID, resp.Session.Token
}

func TestRouter_HealthCheck(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/v1/ops/health", "", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.NotEmpty(t, w.Header().Get("X-Request-Id"))

	var health models.Health
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &health))
	assert.Equal(t, models.HealthStatusOK, health.Status)
	assert.Equal(t, "test", health.Details["version"])
}

func TestRouter_ReadinessCheck(t *testing.T) {
	env := newTestEnv(t, handler.DependencyCheck{Name: "postgres", Check: func(context.Context) error { return nil }})

	w := env.do(t, http.MethodGet, "/v1/ops/ready", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	failing := newTestEnv(t, handler.DependencyCheck{Name: "postgres", Check: func(context.Context) error {
		return errors.New("connection refused")
	}})

	w = failing.do(t, http.MethodGet, "/v1/ops/ready", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	var health models.Health
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &health))
	assert.Equal(t, models.HealthStatusFail, health.Status)
	assert.Equal(t, "postgres", health.Details["failing"])
}

func TestRouter_SystemStatus(t *testing.T) {
	env := newTestEnv(t, handler.DependencyCheck{Name: "postgres", Check: func(context.Context) error { return nil }})

	w := env.do(t, http.MethodGet, "/v1/ops/status", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var status models.SystemStatus
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.Equal(t, models.HealthStatusOK, status.Status)
	require.Len(t, status.Subsystems, 1)
	assert.Equal(t, "postgres", status.Subsystems[0].Name)
	assert.Empty(t, status.Providers)
}

func TestRouter_PlanTrip(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/v1/trips", "", map[string]any{
		"originPoint":  map[string]float64{"lat": 37.77, "lng": -122.42},
		"destination":  "Los Angeles, CA",
		"fuelLevel":    0.4,
		"vehicleRange": 300,
		"preferences": map[string]any{
			"requestedStops": map[string]bool{"gas": true},
		},
	})

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, "/v1/trips/trip-1", w.Header().Get("Location"))

	var resp models.TripResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "trip-1", resp.Trip.ID)
	require.NotNil(t, resp.Session)
	assert.NotEmpty(t, resp.Session.Token)
	assert.True(t, resp.Session.ExpiresAt.Time().After(time.Now()))

	in := env.trips.lastPlan
	require.NotNil(t, in.OriginPoint)
	assert.InDelta(t, 37.77, in.OriginPoint.Lat, 1e-9)
	assert.Equal(t, 0.4, *in.FuelLevel)
	assert.True(t, in.Preferences.RequestedStops["gas"])

	tripID, err := env.sessions.Validate(resp.Session.Token)
	require.NoError(t, err)
	assert.Equal(t, "trip-1", tripID)
}

func TestRouter_PlanTrip_ValidationError(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name      string
		body      map[string]any
		wantField string
	}{
		{
			name:      "missing destination",
			body:      map[string]any{"origin": "San Francisco"},
			wantField: "destination",
		},
		{
			name:      "missing origin and origin point",
			body:      map[string]any{"destination": "Los Angeles"},
			wantField: "origin",
		},
		{
			name:      "fuel level out of range",
			body:      map[string]any{"origin": "SF", "destination": "LA", "fuelLevel": 1.5},
			wantField: "fuelLevel",
		},
		{
			name:      "origin point out of range",
			body:      map[string]any{"originPoint": map[string]float64{"lat": 95, "lng": 0}, "destination": "LA"},
			wantField: "originPoint.lat",
		},
		{
			name: "custom stop without keyword",
			body: map[string]any{"origin": "SF", "destination": "LA", "preferences": map[string]any{
				"customStops": []map[string]string{{"id": "bbq", "label": "BBQ"}},
			}},
			wantField: "preferences.customStops[0].keyword",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodPost, "/v1/trips", "", tt.body)

			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, "application/problem+json", w.Header().Get("Content-Type"))

			var problem models.Problem
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &problem))
			assert.Equal(t, models.ProblemTypeValidation, problem.Type)
			require.NotEmpty(t, problem.Errors)
			assert.Equal(t, tt.wantField, problem.Errors[0].Field)
		})
	}
}

func TestRouter_PlanTrip_InvalidJSON(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/trips", bytes.NewBufferString("{not json"))
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "invalid JSON body")
}

func TestRouter_PlanTrip_ErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantDetail string
		wantRetry  string
	}{
		{
			name:       "destination not found",
			err:        &geocode.LocationNotFoundError{Side: geocode.SideDestination, Input: "Atlantis"},
			wantStatus: http.StatusUnprocessableEntity,
			wantDetail: `destination location "Atlantis"`,
		},
		{
			name:       "no road connection",
			err:        &routing.Error{Provider: "google", Code: "ZERO_RESULTS", Message: "no route", Err: routing.ErrRouteTooFar},
			wantStatus: http.StatusUnprocessableEntity,
			wantDetail: "too far apart",
		},
		{
			name:       "provider down",
			err:        fmt.Errorf("directions: %w", routing.ErrProviderUnavailable),
			wantStatus: http.StatusServiceUnavailable,
			wantDetail: "temporarily unavailable",
			wantRetry:  "30",
		},
		{
			name:       "missing credentials",
			err:        routing.ErrConfiguration,
			wantStatus: http.StatusServiceUnavailable,
			wantDetail: "not available",
		},
		{
			name:       "malformed baseline polyline",
			err:        fmt.Errorf("baseline route polyline: %w", polyline.ErrMalformed),
			wantStatus: http.StatusInternalServerError,
			wantDetail: "could not be read",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.trips.planErr = tt.err

			w := env.do(t, http.MethodPost, "/v1/trips", "", map[string]any{
				"origin": "San Francisco", "destination": "Atlantis",
			})

			assert.Equal(t, tt.wantStatus, w.Code)
			var problem models.Problem
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &problem))
			assert.Contains(t, problem.Detail, tt.wantDetail)
			assert.Equal(t, "/v1/trips", problem.Instance)
			assert.Equal(t, tt.wantRetry, w.Header().Get("Retry-After"))
		})
	}
}

func TestRouter_TripRoutesRequireSession(t *testing.T) {
	env := newTestEnv(t)
	tripID, _ := env.plan(t)

	w := env.do(t, http.MethodGet, "/v1/trips/"+tripID, "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	other, _, err := env.sessions.Issue("trip-999")
	require.NoError(t, err)
	w = env.do(t, http.MethodGet, "/v1/trips/"+tripID, other, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestRouter_GetTrip(t *testing.T) {
	env := newTestEnv(t)
	tripID, token := env.plan(t)

	w := env.do(t, http.MethodGet, "/v1/trips/"+tripID, token, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp models.TripResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, tripID, resp.Trip.ID)
	assert.Nil(t, resp.Session)
	assert.NotEmpty(t, resp.Trip.Route.OverviewPolyline)
}

func TestRouter_GetTrip_NotFound(t *testing.T) {
	env := newTestEnv(t)
	token, _, err := env.sessions.Issue("trip-gone")
	require.NoError(t, err)

	w := env.do(t, http.MethodGet, "/v1/trips/trip-gone", token, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRouter_UpdatePreferences(t *testing.T) {
	env := newTestEnv(t)
	tripID, token := env.plan(t)

	w := env.do(t, http.MethodPatch, "/v1/trips/"+tripID+"/preferences", token, map[string]any{
		"requestedStops":        map[string]bool{"coffee": true},
		"restaurantPreferences": map[string]any{"cuisine": "thai", "minRating": 4.2},
		"avoidTolls":            true,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp models.TripResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Trip.Preferences.RequestedStops["coffee"])
	assert.Equal(t, "thai", resp.Trip.Preferences.RestaurantPreferences.Cuisine)
	assert.True(t, *resp.Trip.Preferences.AvoidTolls)
	assert.Equal(t, 2, resp.Trip.Version)

	w = env.do(t, http.MethodPatch, "/v1/trips/"+tripID+"/preferences", token, map[string]any{
		"restaurantPreferences": map[string]any{"minRating": 7},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRouter_FindStops(t *testing.T) {
	env := newTestEnv(t)
	tripID, token := env.plan(t)

	w := env.do(t, http.MethodPost, "/v1/trips/"+tripID+"/stops/search", token, map[string]any{
		"categories": []string{"Gas", " coffee "},
		"filters": map[string]any{
			"gas": map[string]any{"maxDetourMinutes": 5},
		},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp models.FindStopsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Stops, 1)
	assert.Equal(t, "Shell", resp.Stops[0].Name)
	require.Len(t, resp.Waypoints, 1)
	assert.NotNil(t, resp.UpdatedRoute)
	assert.Equal(t, 2, resp.Version)

	in := env.trips.lastFindStops
	assert.Equal(t, map[string]bool{"gas": true, "coffee": true}, in.Categories)
	assert.Equal(t, 5.0, *in.Filters["gas"].MaxDetourMinutes)
}

func TestRouter_FindStops_Validation(t *testing.T) {
	env := newTestEnv(t)
	tripID, token := env.plan(t)

	w := env.do(t, http.MethodPost, "/v1/trips/"+tripID+"/stops/search", token, map[string]any{
		"filters": map[string]any{"restaurant": map[string]any{"maxResults": 9}},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRouter_FindStops_MalformedRoute(t *testing.T) {
	env := newTestEnv(t)
	tripID, token := env.plan(t)
	env.trips.stopsErr = fmt.Errorf("decode route: %w", polyline.ErrMalformed)

	w := env.do(t, http.MethodPost, "/v1/trips/"+tripID+"/stops/search", token, map[string]any{})
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestRouter_Waypoints(t *testing.T) {
	env := newTestEnv(t)
	tripID, token := env.plan(t)

	w := env.do(t, http.MethodPost, "/v1/trips/"+tripID+"/waypoints", token, map[string]any{
		"name":     "Joe's Diner",
		"location": map[string]float64{"lat": 35.3, "lng": -120.6},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var added models.WaypointResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &added))
	require.Len(t, added.Waypoints, 1)
	assert.Equal(t, "Joe's Diner", added.Waypoints[0].Name)
	assert.Equal(t, itinerary.SourceUser, added.Waypoints[0].Source)

	w = env.do(t, http.MethodDelete, "/v1/trips/"+tripID+"/waypoints/Joe%27s%20Diner", token, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var removed models.WaypointResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &removed))
	assert.Empty(t, removed.Waypoints)
	assert.Len(t, removed.Warnings, 1)

	w = env.do(t, http.MethodDelete, "/v1/trips/"+tripID+"/waypoints/Nowhere", token, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(t, http.MethodPost, "/v1/trips/"+tripID+"/waypoints", token, map[string]any{
		"location": map[string]float64{"lat": 35.3, "lng": -120.6},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRouter_RemoveWaypoint_EscapedNames(t *testing.T) {
	tests := []struct {
		name string
		path string
	}{
		{"100% Juice", "100%25%20Juice"},
		{"A/B Cafe", "A%2FB%20Cafe"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			tripID, token := env.plan(t)

			w := env.do(t, http.MethodPost, "/v1/trips/"+tripID+"/waypoints", token, map[string]any{
				"name":     tt.name,
				"location": map[string]float64{"lat": 35.3, "lng": -120.6},
			})
			require.Equal(t, http.StatusOK, w.Code, w.Body.String())

			w = env.do(t, http.MethodDelete, "/v1/trips/"+tripID+"/waypoints/"+tt.path, token, nil)
			require.Equal(t, http.StatusOK, w.Code, w.Body.String())

			var removed models.WaypointResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &removed))
			assert.Empty(t, removed.Waypoints)
		})
	}
}

func TestRouter_RequestID_Generated(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/v1/ops/health", "", nil)

	requestID := w.Header().Get("X-Request-Id")
	assert.NotEmpty(t, requestID)
	assert.Contains(t, requestID, "req_")
}

func TestRouter_RequestID_Preserved(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/ops/health", http.NoBody)
	req.Header.Set("X-Request-Id", "custom_request_id")
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	assert.Equal(t, "custom_request_id", w.Header().Get("X-Request-Id"))
}

func TestRouter_NotFound(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/v1/nonexistent", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRouter_PlanTrip_RejectsNonJSONBody(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/trips", bytes.NewBufferString("origin=SF&destination=LA"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnsupportedMediaType, w.Code)
	assert.Empty(t, env.trips.lastPlan.Destination)
}
