package handler

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/roadtripper/roadtripper/internal/api/middleware"
	"github.com/roadtripper/roadtripper/internal/api/models"
	"github.com/roadtripper/roadtripper/internal/api/response"
	"github.com/roadtripper/roadtripper/internal/trip"
)

// TripService is the trip operations the handler needs.
type TripService interface {
	Plan(ctx context.Context, in trip.PlanInput) (*trip.Trip, error)
	Get(ctx context.Context, id string) (*trip.Trip, error)
	UpdatePreferences(ctx context.Context, id string, update trip.Preferences) (*trip.Trip, error)
	FindStops(ctx context.Context, id string, in trip.FindStopsInput) (*trip.FindStopsResult, error)
	AddWaypoint(ctx context.Context, id string, wp trip.Waypoint) (*trip.WaypointResult, error)
	RemoveWaypoint(ctx context.Context, id, name string) (*trip.WaypointResult, error)
}

// TokenIssuer issues trip session tokens.
type TokenIssuer interface {
	Issue(tripID string) (string, time.Time, error)
}

// TripHandler handles trip endpoints.
type TripHandler struct {
	trips    TripService
	tokens   TokenIssuer
	validate *validator.Validate
	logger   zerolog.Logger
}

// NewTripHandler creates a new TripHandler.
func NewTripHandler(trips TripService, tokens TokenIssuer, logger zerolog.Logger) *TripHandler {
	return &TripHandler{
		trips:    trips,
		tokens:   tokens,
		validate: newValidator(),
		logger:   logger,
	}
}

// PlanTrip handles POST /v1/trips - resolve endpoints and fetch the baseline route.
func (h *TripHandler) PlanTrip(w http.ResponseWriter, r *http.Request) {
	var req models.PlanTripRequest
	if !decodeAndValidate(w, r, h.validate, &req) {
		return
	}

	t, err := h.trips.Plan(r.Context(), req.ToInput())
	if err != nil {
		writeTripError(w, r, h.logger, err)
		return
	}

	token, expiresAt, err := h.tokens.Issue(t.ID)
	if err != nil {
		h.logger.Error().Err(err).Str("trip_id", t.ID).Msg("failed to issue session token")
		response.InternalError(w, r, "failed to start a session for the trip")
		return
	}

	response.Created(w, r, "/v1/trips/"+url.PathEscape(t.ID), models.TripResponse{
		Trip: t,
		Session: &models.SessionToken{
			Token:     token,
			ExpiresAt: models.Timestamp(expiresAt),
		},
	})
}

// GetTrip handles GET /v1/trips/{tripId}.
func (h *TripHandler) GetTrip(w http.ResponseWriter, r *http.Request) {
	t, err := h.trips.Get(r.Context(), tripID(r))
	if err != nil {
		writeTripError(w, r, h.logger, err)
		return
	}
	response.JSON(w, r, http.StatusOK, models.TripResponse{Trip: t})
}

// UpdatePreferences handles PATCH /v1/trips/{tripId}/preferences - merge preferences.
func (h *TripHandler) UpdatePreferences(w http.ResponseWriter, r *http.Request) {
	var prefs trip.Preferences
	if !decodeAndValidate(w, r, h.validate, &prefs) {
		return
	}

	t, err := h.trips.UpdatePreferences(r.Context(), tripID(r), prefs)
	if err != nil {
		writeTripError(w, r, h.logger, err)
		return
	}
	response.JSON(w, r, http.StatusOK, models.TripResponse{Trip: t})
}

// FindStops handles POST /v1/trips/{tripId}/stops/search - search, verify, and reroute.
func (h *TripHandler) FindStops(w http.ResponseWriter, r *http.Request) {
	var req models.FindStopsRequest
	if !decodeAndValidate(w, r, h.validate, &req) {
		return
	}

	res, err := h.trips.FindStops(r.Context(), tripID(r), req.ToInput())
	if err != nil {
		writeTripError(w, r, h.logger, err)
		return
	}
	response.JSON(w, r, http.StatusOK, models.NewFindStopsResponse(res))
}

// AddWaypoint handles POST /v1/trips/{tripId}/waypoints.
func (h *TripHandler) AddWaypoint(w http.ResponseWriter, r *http.Request) {
	var req models.AddWaypointRequest
	if !decodeAndValidate(w, r, h.validate, &req) {
		return
	}

	res, err := h.trips.AddWaypoint(r.Context(), tripID(r), req.ToWaypoint())
	if err != nil {
		writeTripError(w, r, h.logger, err)
		return
	}
	response.JSON(w, r, http.StatusOK, models.NewWaypointResponse(res))
}

// RemoveWaypoint handles DELETE /v1/trips/{tripId}/waypoints/{waypointName}.
func (h *TripHandler) RemoveWaypoint(w http.ResponseWriter, r *http.Request) {
	name, err := waypointName(r)
	if err != nil || name == "" {
		response.BadRequest(w, r, "waypointName is required", nil)
		return
	}

	res, err := h.trips.RemoveWaypoint(r.Context(), tripID(r), name)
	if err != nil {
		writeTripError(w, r, h.logger, err)
		return
	}
	response.JSON(w, r, http.StatusOK, models.NewWaypointResponse(res))
}

// tripID prefers the ID authorized by the session middleware.
func tripID(r *http.Request) string {
	if id := middleware.GetTripID(r.Context()); id != "" {
		return id
	}
	return chi.URLParam(r, middleware.TripIDParam)
}

// waypointName reads the name path parameter. chi matches on RawPath when the
// request carries escaped slashes, and the parameter is still escaped then.
func waypointName(r *http.Request) (string, error) {
	name := chi.URLParam(r, "waypointName")
	if r.URL.RawPath == "" {
		return name, nil
	}
	return url.PathUnescape(name)
}
