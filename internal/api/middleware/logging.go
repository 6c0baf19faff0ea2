package middleware

import (
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

// Logger returns a middleware that logs one line per request. Server errors log
// at error level and client errors at warn.
func Logger(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := newStatusRecorder(w)

			next.ServeHTTP(wrapped, r)

			route, tripID := routeInfo(r)

			var event *zerolog.Event
			switch {
			case wrapped.statusCode >= http.StatusInternalServerError:
				event = log.Error()
			case wrapped.statusCode >= http.StatusBadRequest:
				event = log.Warn()
			default:
				event = log.Info()
			}

			spanCtx := trace.SpanContextFromContext(r.Context())
			if spanCtx.IsValid() {
				event = event.
					Str("trace_id", spanCtx.TraceID().String()).
					Str("span_id", spanCtx.SpanID().String())
			}
			if tripID != "" {
				event = event.Str("trip_id", tripID)
			}

			event.
				Str("request_id", GetRequestID(r.Context())).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Str("route", route).
				Int("status", wrapped.statusCode).
				Int64("bytes", wrapped.written).
				Dur("duration", time.Since(start)).
				Str("remote_addr", r.RemoteAddr).
				Str("user_agent", r.UserAgent()).
				Msg("request completed")
		})
	}
}
