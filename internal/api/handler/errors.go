package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/roadtripper/roadtripper/internal/api/response"
	"github.com/roadtripper/roadtripper/internal/geocode"
	"github.com/roadtripper/roadtripper/internal/places"
	"github.com/roadtripper/roadtripper/internal/routing"
	"github.com/roadtripper/roadtripper/internal/stops"
	"github.com/roadtripper/roadtripper/internal/trip"
	"github.com/roadtripper/roadtripper/pkg/polyline"
)

// providerRetryAfter is roughly how long a tripped provider circuit stays open.
const providerRetryAfter = 30 * time.Second

// writeTripError maps a trip service error to a problem response.
func writeTripError(w http.ResponseWriter, r *http.Request, logger zerolog.Logger, err error) {
	var notFound *geocode.LocationNotFoundError

	switch {
	case errors.As(err, &notFound):
		response.Unprocessable(w, r, notFound.UserMessage())

	case errors.Is(err, trip.ErrTripNotFound):
		response.NotFound(w, r, "trip not found")
	case errors.Is(err, trip.ErrWaypointNotFound):
		response.NotFound(w, r, "no waypoint with that name on this trip")
	case errors.Is(err, trip.ErrWaypointNameMissing):
		response.BadRequest(w, r, "waypoint name is required", nil)
	case errors.Is(err, trip.ErrVersionConflict):
		response.Conflict(w, r, "the trip was changed by another request, please retry")

	case errors.Is(err, routing.ErrConfiguration), errors.Is(err, places.ErrConfiguration):
		logger.Error().Err(err).Msg("map provider is not configured")
		response.ServiceUnavailable(w, r, "trip planning is not available right now", 0)
	case errors.Is(err, routing.ErrProviderUnavailable),
		errors.Is(err, routing.ErrRateLimitExceeded),
		errors.Is(err, places.ErrProviderUnavailable):
		response.ServiceUnavailable(w, r, routing.UserMessage(err), providerRetryAfter)
	case errors.Is(err, routing.ErrNoRouteFound),
		errors.Is(err, routing.ErrRouteTooFar),
		errors.Is(err, routing.ErrInvalidWaypoint),
		errors.Is(err, routing.ErrTooManyWaypoints),
		errors.Is(err, routing.ErrInvalidCoordinates):
		response.Unprocessable(w, r, routing.UserMessage(err))

	case errors.Is(err, context.DeadlineExceeded):
		response.ServiceUnavailable(w, r, "the request took too long, please try again", 0)

	case errors.Is(err, polyline.ErrMalformed),
		errors.Is(err, polyline.ErrEmpty),
		errors.Is(err, stops.ErrMissingRoute):
		logger.Error().Err(err).Str("path", r.URL.Path).Msg("trip route is unusable")
		response.InternalError(w, r, "the trip's route could not be read")

	default:
		logger.Error().Err(err).Str("path", r.URL.Path).Msg("trip request failed")
		response.InternalError(w, r, "an unexpected error occurred")
	}
}
