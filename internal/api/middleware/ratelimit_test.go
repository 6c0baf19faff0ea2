package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roadtripper/roadtripper/internal/api/middleware"
)

func okHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func sendFrom(h http.Handler, remoteAddr, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, http.NoBody)
	req.RemoteAddr = remoteAddr
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRateLimitByIP_BlocksOverLimit(t *testing.T) {
	handler := middleware.RateLimitByIP(middleware.PerMinute(3))(http.HandlerFunc(okHandler))

	for i := 0; i < 3; i++ {
		rec := sendFrom(handler, "10.0.0.1:12345", "/v1/trips", "")
		assert.Equal(t, http.StatusOK, rec.Code, "request %d should be allowed", i+1)
	}

	rec := sendFrom(handler, "10.0.0.1:12345", "/v1/trips", "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Contains(t, rec.Body.String(), "Rate limit exceeded")
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))

	// Another client is unaffected
	assert.Equal(t, http.StatusOK, sendFrom(handler, "10.0.0.2:12345", "/v1/trips", "").Code)
}

func TestRateLimit_RetryAfterFollowsWindow(t *testing.T) {
	cfg := middleware.RateLimitConfig{RequestLimit: 1, WindowLength: 10 * time.Second}
	handler := middleware.RateLimitByIP(cfg)(http.HandlerFunc(okHandler))

	sendFrom(handler, "10.0.1.1:1", "/v1/trips", "")
	rec := sendFrom(handler, "10.0.1.1:1", "/v1/trips", "")

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "10", rec.Header().Get("Retry-After"))
}

func TestRateLimitByTrip_KeysBySession(t *testing.T) {
	sessions := newTestSessions(t, nil)
	tokenA, _, err := sessions.Issue("trip-a")
	require.NoError(t, err)
	tokenB, _, err := sessions.Issue("trip-b")
	require.NoError(t, err)

	r := chi.NewRouter()
	r.With(middleware.TripSession(sessions), middleware.RateLimitByTrip(middleware.PerMinute(2))).
		Get("/trips/{tripId}", okHandler)

	// One trip reached from two addresses shares a budget
	assert.Equal(t, http.StatusOK, sendFrom(r, "192.168.1.1:1", "/trips/trip-a", tokenA).Code)
	assert.Equal(t, http.StatusOK, sendFrom(r, "192.168.1.2:1", "/trips/trip-a", tokenA).Code)
	assert.Equal(t, http.StatusTooManyRequests, sendFrom(r, "192.168.1.3:1", "/trips/trip-a", tokenA).Code)

	// Another trip from the same address has its own
	assert.Equal(t, http.StatusOK, sendFrom(r, "192.168.1.1:1", "/trips/trip-b", tokenB).Code)
}

func TestRateLimitByTrip_FallsBackToIP(t *testing.T) {
	handler := middleware.RateLimitByTrip(middleware.PerMinute(2))(http.HandlerFunc(okHandler))

	for i := 0; i < 2; i++ {
		assert.Equal(t, http.StatusOK, sendFrom(handler, "192.168.9.1:1", "/test", "").Code)
	}
	assert.Equal(t, http.StatusTooManyRequests, sendFrom(handler, "192.168.9.1:1", "/test", "").Code)
	assert.Equal(t, http.StatusOK, sendFrom(handler, "192.168.9.2:1", "/test", "").Code)
}

func TestRateLimitExceededResponse_Format(t *testing.T) {
	handler := middleware.RequestID(middleware.RateLimitByIP(middleware.PerMinute(1))(http.HandlerFunc(okHandler)))

	sendFrom(handler, "203.0.113.1:12345", "/v1/trips", "")
	rec := sendFrom(handler, "203.0.113.1:12345", "/v1/trips", "")

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
	body := rec.Body.String()
	assert.Contains(t, body, "too-many-requests")
	assert.Contains(t, body, `"instance":"/v1/trips"`)
}

func TestDefaultRateLimits(t *testing.T) {
	limits := middleware.DefaultRateLimits()

	assert.Equal(t, middleware.RateLimitConfig{RequestLimit: 10, WindowLength: time.Minute}, limits.Plan)
	assert.Equal(t, middleware.RateLimitConfig{RequestLimit: 30, WindowLength: time.Minute}, limits.Expensive)
	assert.Equal(t, middleware.RateLimitConfig{RequestLimit: 100, WindowLength: time.Minute}, limits.Standard)
}

func TestRateLimits_WithDefaults(t *testing.T) {
	limits := middleware.RateLimits{Expensive: middleware.PerMinute(5)}.WithDefaults()

	assert.Equal(t, 10, limits.Plan.RequestLimit)
	assert.Equal(t, 5, limits.Expensive.RequestLimit)
	assert.Equal(t, 100, limits.Standard.RequestLimit)
}
