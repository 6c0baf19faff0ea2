package middleware_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/roadtripper/roadtripper/internal/api/middleware"
)

func setupTestMeter(t *testing.T) *sdkmetric.ManualReader {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	prev := otel.GetMeterProvider()
	otel.SetMeterProvider(mp)
	t.Cleanup(func() {
		otel.SetMeterProvider(prev)
		_ = mp.Shutdown(context.Background())
	})
	return reader
}

func requestTotals(t *testing.T, reader *sdkmetric.ManualReader) []metricdata.DataPoint[int64] {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name == "http.server.request.total" {
				sum, ok := m.Data.(metricdata.Sum[int64])
				require.True(t, ok)
				return sum.DataPoints
			}
		}
	}
	return nil
}

func TestNewMetrics(t *testing.T) {
	metrics, err := middleware.NewMetrics()
	require.NoError(t, err)
	assert.NotNil(t, metrics)
}

func TestMetrics_Middleware_LabelsByRoute(t *testing.T) {
	reader := setupTestMeter(t)
	metrics, err := middleware.NewMetrics()
	require.NoError(t, err)

	r := chi.NewRouter()
	r.Use(metrics.Middleware())
	r.Get("/v1/trips/{tripId}", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("{}"))
	})

	for _, id := range []string{"trip-1", "trip-2", "trip-3"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/trips/"+id, http.NoBody))
	}

	points := requestTotals(t, reader)
	require.Len(t, points, 1)
	assert.Equal(t, int64(3), points[0].Value)

	route, ok := points[0].Attributes.Value("http.route")
	require.True(t, ok)
	assert.Equal(t, "/v1/trips/{tripId}", route.AsString())
	_, isError := points[0].Attributes.Value("error")
	assert.False(t, isError)
}

func TestMetrics_Middleware_FlagsErrors(t *testing.T) {
	reader := setupTestMeter(t)
	metrics, err := middleware.NewMetrics()
	require.NoError(t, err)

	handler := metrics.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/trips", http.NoBody))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	points := requestTotals(t, reader)
	require.Len(t, points, 1)
	status, _ := points[0].Attributes.Value("http.status_code")
	assert.Equal(t, "503", status.AsString())
	isError, ok := points[0].Attributes.Value("error")
	require.True(t, ok)
	assert.True(t, isError.AsBool())
}

func TestMetrics_Middleware_DefaultStatusCode(t *testing.T) {
	metrics, err := middleware.NewMetrics()
	require.NoError(t, err)

	handler := metrics.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("response"))
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/test", http.NoBody))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "response", rec.Body.String())
}
