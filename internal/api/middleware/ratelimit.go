package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/httprate"

	"github.com/roadtripper/roadtripper/internal/api/models"
)

// RateLimitConfig holds configuration for rate limiting.
type RateLimitConfig struct {
	RequestLimit int
	WindowLength time.Duration
}

// RateLimits groups the limits applied to each class of endpoint.
type RateLimits struct {
	// Plan covers trip creation, which geocodes twice and routes once per call.
	Plan RateLimitConfig
	// Expensive covers stop search and waypoint changes.
	Expensive RateLimitConfig
	// Standard covers cheap reads and preference updates.
	Standard RateLimitConfig
}

// DefaultRateLimits returns 10, 30, and 100 requests per minute.
func DefaultRateLimits() RateLimits {
	return RateLimits{
		Plan:      PerMinute(10),
		Expensive: PerMinute(30),
		Standard:  PerMinute(100),
	}
}

// WithDefaults replaces any class without a positive limit by its default.
func (l RateLimits) WithDefaults() RateLimits {
	def := DefaultRateLimits()
	if l.Plan.RequestLimit <= 0 || l.Plan.WindowLength <= 0 {
		l.Plan = def.Plan
	}
	if l.Expensive.RequestLimit <= 0 || l.Expensive.WindowLength <= 0 {
		l.Expensive = def.Expensive
	}
	if l.Standard.RequestLimit <= 0 || l.Standard.WindowLength <= 0 {
		l.Standard = def.Standard
	}
	return l
}

// PerMinute returns a limit of n requests per one minute window.
func PerMinute(n int) RateLimitConfig {
	return RateLimitConfig{RequestLimit: n, WindowLength: time.Minute}
}

// RateLimitByIP limits by client address. Run chi's RealIP first so proxies are
// looked through.
func RateLimitByIP(cfg RateLimitConfig) func(http.Handler) http.Handler {
	return httprate.Limit(
		cfg.RequestLimit,
		cfg.WindowLength,
		httprate.WithKeyFuncs(httprate.KeyByRealIP),
		httprate.WithLimitHandler(limitExceeded(cfg.WindowLength)),
	)
}

// RateLimitByTrip limits by the trip the session grants, falling back to the
// client address when no session was validated.
func RateLimitByTrip(cfg RateLimitConfig) func(http.Handler) http.Handler {
	return httprate.Limit(
		cfg.RequestLimit,
		cfg.WindowLength,
		httprate.WithKeyFuncs(keyByTripOrIP),
		httprate.WithLimitHandler(limitExceeded(cfg.WindowLength)),
	)
}

func keyByTripOrIP(r *http.Request) (string, error) {
	if tripID := GetTripID(r.Context()); tripID != "" {
		return "trip:" + tripID, nil
	}
	return httprate.KeyByRealIP(r)
}

// limitExceeded writes a 429 problem. httprate does not expose the reset time,
// so Retry-After is the full window.
func limitExceeded(window time.Duration) http.HandlerFunc {
	retryAfter := strconv.Itoa(int(window.Round(time.Second) / time.Second))
	return func(w http.ResponseWriter, r *http.Request) {
		problem := models.NewTooManyRequests(GetRequestID(r.Context()), "Rate limit exceeded. Please try again later.")
		problem.Instance = r.URL.Path
		w.Header().Set("Retry-After", retryAfter)
		problem.Write(w)
	}
}
