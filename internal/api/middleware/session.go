package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/roadtripper/roadtripper/internal/api/models"
	"github.com/roadtripper/roadtripper/internal/session"
)

// TripIDParam is the URL parameter holding the trip ID on trip-scoped routes.
const TripIDParam = "tripId"

// tripIDKey is the context key for the authorized trip ID.
type tripIDKey struct{}

// TripValidator validates trip session tokens.
type TripValidator interface {
	ValidateFor(token, tripID string) error
}

// TripSession creates middleware that requires a bearer token issued for the
// trip named in the URL.
func TripSession(validator TripValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				writeUnauthorized(w, r, "missing authorization header")
				return
			}

			const bearerPrefix = "Bearer "
			if len(authHeader) < len(bearerPrefix) ||
				!strings.EqualFold(authHeader[:len(bearerPrefix)], bearerPrefix) {
				writeUnauthorized(w, r, "invalid authorization header format")
				return
			}

			tokenString := strings.TrimSpace(authHeader[len(bearerPrefix):])
			if tokenString == "" {
				writeUnauthorized(w, r, "missing bearer token")
				return
			}

			tripID := chi.URLParam(r, TripIDParam)
			if err := validator.ValidateFor(tokenString, tripID); err != nil {
				switch {
				case errors.Is(err, session.ErrTokenExpired):
					writeUnauthorized(w, r, "session token has expired")
				case errors.Is(err, session.ErrWrongTrip):
					writeForbidden(w, r, "session token does not grant access to this trip")
				case errors.Is(err, session.ErrInvalidToken):
					writeUnauthorized(w, r, "invalid session token")
				default:
					writeUnauthorized(w, r, "authentication failed")
				}
				return
			}

			ctx := context.WithValue(r.Context(), tripIDKey{}, tripID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// writeUnauthorized writes a 401 Unauthorized response.
// This is implemented directly here to avoid import cycle with response package.
func writeUnauthorized(w http.ResponseWriter, r *http.Request, detail string) {
	traceID := GetRequestID(r.Context())
	problem := models.NewUnauthorized(traceID, detail)
	problem.Instance = r.URL.Path
	problem.Write(w)
}

func writeForbidden(w http.ResponseWriter, r *http.Request, detail string) {
	traceID := GetRequestID(r.Context())
	problem := models.NewForbidden(traceID, detail)
	problem.Instance = r.URL.Path
	problem.Write(w)
}

// GetTripID retrieves the authorized trip ID from the context.
// Returns an empty string if the request carried no valid session.
func GetTripID(ctx context.Context) string {
	if id, ok := ctx.Value(tripIDKey{}).(string); ok {
		return id
	}
	return ""
}
