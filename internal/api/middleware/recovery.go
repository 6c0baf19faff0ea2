package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/rs/zerolog"

	"github.com/roadtripper/roadtripper/internal/api/models"
)

// Recovery returns a middleware that turns a handler panic into a 500 problem and
// logs the stack along with the route and trip it happened on.
func Recovery(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}

				requestID := GetRequestID(r.Context())
				route, tripID := routeInfo(r)
				log.Error().
					Str("request_id", requestID).
					Str("route", route).
					Str("trip_id", tripID).
					Interface("error", rec).
					Str("stack", string(debug.Stack())).
					Msg("panic recovered")

				problem := models.NewInternalError(requestID, "an unexpected error occurred")
				problem.Instance = r.URL.Path
				problem.Write(w)
			}()

			next.ServeHTTP(w, r)
		})
	}
}
