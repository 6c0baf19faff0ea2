package middleware_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/roadtripper/roadtripper/internal/api/middleware"
)

func decodeLogLine(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	return entry
}

func TestLogger_LogsRequest(t *testing.T) {
	var buf bytes.Buffer
	log := zerolog.New(&buf)

	handler := middleware.Logger(log)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("response body"))
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/ops/health", http.NoBody)
	req.Header.Set("User-Agent", "roadtripper-ios/2.1")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	entry := decodeLogLine(t, &buf)
	assert.Equal(t, "request completed", entry["message"])
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "GET", entry["method"])
	assert.Equal(t, "/v1/ops/health", entry["path"])
	assert.Equal(t, "/v1/ops/health", entry["route"])
	assert.Equal(t, float64(200), entry["status"])
	assert.Equal(t, float64(13), entry["bytes"])
	assert.Equal(t, "roadtripper-ios/2.1", entry["user_agent"])
	assert.NotContains(t, entry, "trip_id")
	assert.NotContains(t, entry, "trace_id")
}

func TestLogger_LevelFollowsStatus(t *testing.T) {
	tests := []struct {
		status int
		level  string
	}{
		{http.StatusCreated, "info"},
		{http.StatusNotFound, "warn"},
		{http.StatusConflict, "warn"},
		{http.StatusServiceUnavailable, "error"},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			var buf bytes.Buffer
			handler := middleware.Logger(zerolog.New(&buf))(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
			}))

			handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/v1/trips", http.NoBody))

			entry := decodeLogLine(t, &buf)
			assert.Equal(t, tt.level, entry["level"])
			assert.Equal(t, float64(tt.status), entry["status"])
		})
	}
}

func TestLogger_IncludesRouteAndTripID(t *testing.T) {
	var buf bytes.Buffer

	r := chi.NewRouter()
	r.Use(middleware.Logger(zerolog.New(&buf)))
	r.Post("/v1/trips/{tripId}/stops/search", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/v1/trips/trip-42/stops/search", http.NoBody))

	entry := decodeLogLine(t, &buf)
	assert.Equal(t, "/v1/trips/{tripId}/stops/search", entry["route"])
	assert.Equal(t, "/v1/trips/trip-42/stops/search", entry["path"])
	assert.Equal(t, "trip-42", entry["trip_id"])
}

func TestLogger_IncludesRequestID(t *testing.T) {
	var buf bytes.Buffer

	handler := middleware.RequestID(
		middleware.Logger(zerolog.New(&buf))(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
		})),
	)

	req := httptest.NewRequest(http.MethodGet, "/test", http.NoBody)
	req.Header.Set("X-Request-Id", "req_from_client")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	entry := decodeLogLine(t, &buf)
	assert.Equal(t, "req_from_client", entry["request_id"])
}

func TestLogger_IncludesTraceID(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})
	defer func() { _ = tp.Shutdown(context.Background()) }()

	var buf bytes.Buffer

	handler := middleware.Tracing("test-service")(
		middleware.Logger(zerolog.New(&buf))(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
		})),
	)

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/test", http.NoBody))

	entry := decodeLogLine(t, &buf)

	traceID, ok := entry["trace_id"].(string)
	assert.True(t, ok)
	assert.Len(t, traceID, 32)

	spanID, ok := entry["span_id"].(string)
	assert.True(t, ok)
	assert.Len(t, spanID, 16)
}
