package middleware

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// statusRecorder captures the status code and body size written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
	written    int64
}

func newStatusRecorder(w http.ResponseWriter) *statusRecorder {
	return &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
}

func (rw *statusRecorder) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *statusRecorder) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.written += int64(n)
	return n, err
}

// routeInfo reads the matched route pattern and trip ID once chi has routed the
// request. Outside a chi router the raw path is used.
func routeInfo(r *http.Request) (route, tripID string) {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		return r.URL.Path, ""
	}
	route = rctx.RoutePattern()
	if route == "" {
		route = r.URL.Path
	}
	return route, rctx.URLParam(TripIDParam)
}
