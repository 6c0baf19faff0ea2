package resilience_test

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roadtripper/roadtripper/internal/provider/resilience"
)

// lenientBreaker never trips during a test.
func lenientBreaker(name string) *resilience.CircuitBreakerConfig {
	cfg := resilience.DefaultCircuitBreakerConfig(name)
	cfg.ReadyToTrip = func(counts gobreaker.Counts) bool {
		return counts.Requests >= 100
	}
	return &cfg
}

func fastConfig(name string, retries uint64) resilience.ClientConfig {
	return resilience.ClientConfig{
		Name:            name,
		Timeout:         5 * time.Second,
		MaxRetries:      retries,
		InitialInterval: 10 * time.Millisecond,
		MaxInterval:     50 * time.Millisecond,
		CircuitBreaker:  lenientBreaker(name),
	}
}

func TestClient_SuccessfulRequest(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"OK"}`))
	}))
	defer server.Close()

	client := resilience.NewClient(resilience.DefaultClientConfig("test"))

	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, server.URL, http.NoBody)
	require.NoError(t, err)

	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestClient_RetryOn5xx(t *testing.T) {
	var attempts atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if attempts.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := resilience.NewClient(fastConfig("test-retry", 5))

	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, server.URL, http.NoBody)
	require.NoError(t, err)

	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int32(3), attempts.Load(), "should have retried until success")
}

func TestClient_RetryOn429(t *testing.T) {
	var attempts atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if attempts.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := resilience.NewClient(fastConfig("test-429", 3))

	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, server.URL, http.NoBody)
	require.NoError(t, err)

	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int32(2), attempts.Load())
}

func TestClient_ExhaustedRetriesReturnLastResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := resilience.NewClient(fastConfig("test-exhaust", 2))

	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, server.URL, http.NoBody)
	require.NoError(t, err)

	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
}

func TestClient_ReplaysBodyOnRetry(t *testing.T) {
	var attempts atomic.Int32
	var lastBody atomic.Value

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		lastBody.Store(string(body))
		if attempts.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := resilience.NewClient(fastConfig("test-body", 3))

	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, server.URL,
		bytes.NewReader([]byte(`{"coordinates":[[1,2],[3,4]]}`)))
	require.NoError(t, err)

	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, int32(2), attempts.Load())
	assert.Equal(t, `{"coordinates":[[1,2],[3,4]]}`, lastBody.Load())
}

func TestClient_AsRoundTripper(t *testing.T) {
	var attempts atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if attempts.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer server.Close()

	httpClient := resilience.NewClient(fastConfig("test-transport", 3)).HTTPClient()

	resp, err := httpClient.Get(server.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "ok", string(body))
	assert.Equal(t, int32(2), attempts.Load())
}

func TestClient_CircuitBreakerTrips(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	cbConfig := resilience.CircuitBreakerConfig{
		Name:        "test-trip",
		MaxRequests: 1,
		Timeout:     1 * time.Second,
		ReadyToTrip: resilience.DefaultReadyToTrip,
	}

	client := resilience.NewClient(resilience.ClientConfig{
		Name:            "test-trip",
		Timeout:         1 * time.Second,
		MaxRetries:      1,
		InitialInterval: 5 * time.Millisecond,
		MaxInterval:     10 * time.Millisecond,
		CircuitBreaker:  &cbConfig,
	})

	// each call makes two attempts; three calls exceed the trip threshold
	for i := 0; i < 3; i++ {
		req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, server.URL, http.NoBody)
		require.NoError(t, err)
		resp, _ := client.Do(req)
		if resp != nil {
			resp.Body.Close()
		}
	}

	assert.Equal(t, gobreaker.StateOpen, client.CircuitBreakerState())

	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, server.URL, http.NoBody)
	require.NoError(t, err)

	resp, err := client.Do(req)
	if resp != nil {
		resp.Body.Close()
	}
	assert.ErrorIs(t, err, resilience.ErrCircuitOpen)
}

func TestClient_LogsBreakerTransitions(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	var logs bytes.Buffer
	cbConfig := resilience.CircuitBreakerConfig{
		Name:        "google-maps",
		MaxRequests: 1,
		Timeout:     time.Second,
		ReadyToTrip: resilience.DefaultReadyToTrip,
	}
	client := resilience.NewClient(resilience.ClientConfig{
		Name:            "google-maps",
		Timeout:         time.Second,
		MaxRetries:      1,
		InitialInterval: 5 * time.Millisecond,
		MaxInterval:     10 * time.Millisecond,
		CircuitBreaker:  &cbConfig,
		Logger:          zerolog.New(&logs),
	})

	for i := 0; i < 3; i++ {
		req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, server.URL, http.NoBody)
		require.NoError(t, err)
		resp, _ := client.Do(req)
		if resp != nil {
			resp.Body.Close()
		}
	}
	require.Equal(t, gobreaker.StateOpen, client.CircuitBreakerState())

	out := logs.String()
	assert.Contains(t, out, `"message":"circuit breaker state changed"`)
	assert.Contains(t, out, `"level":"warn"`)
	assert.Contains(t, out, `"provider":"google-maps"`)
	assert.Contains(t, out, `"to":"open"`)
}

func TestClient_TimeoutHandling(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(500 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	cfg := fastConfig("test-timeout", 1)
	cfg.Timeout = 100 * time.Millisecond
	client := resilience.NewClient(cfg)

	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, server.URL, http.NoBody)
	require.NoError(t, err)

	resp, err := client.Do(req)
	if resp != nil {
		resp.Body.Close()
	}
	assert.Error(t, err, "should timeout")
}

func TestClient_ContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(1 * time.Second)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := resilience.NewClient(resilience.DefaultClientConfig("test-cancel"))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, server.URL, http.NoBody)
	require.NoError(t, err)

	resp, err := client.Do(req)
	if resp != nil {
		resp.Body.Close()
	}
	assert.Error(t, err, "should be canceled")
}

func TestClient_4xxNotRetried(t *testing.T) {
	var attempts atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	client := resilience.NewClient(fastConfig("test-4xx", 3))

	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, server.URL, http.NoBody)
	require.NoError(t, err)

	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, int32(1), attempts.Load(), "should not retry 4xx errors")
}

func TestClient_RecordsOutcomesInRegistry(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	registry := resilience.NewRegistry()
	cfg := fastConfig("test-registry", 1)
	cfg.Registry = registry
	client := resilience.NewClient(cfg)

	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, server.URL, http.NoBody)
	require.NoError(t, err)
	resp, err := client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	health := registry.GetHealth("test-registry")
	require.NotNil(t, health)
	require.NotNil(t, health.LastSuccessAt)
	assert.Nil(t, health.LastFailureAt)
}

func TestDefaultCircuitBreakerConfig(t *testing.T) {
	cfg := resilience.DefaultCircuitBreakerConfig("test")

	assert.Equal(t, "test", cfg.Name)
	assert.Equal(t, uint32(1), cfg.MaxRequests)
	assert.Equal(t, 60*time.Second, cfg.Timeout)
	assert.NotNil(t, cfg.ReadyToTrip)
}

func TestDefaultReadyToTrip(t *testing.T) {
	tests := []struct {
		name     string
		counts   gobreaker.Counts
		expected bool
	}{
		{"not enough requests", gobreaker.Counts{Requests: 4, TotalFailures: 4}, false},
		{"enough requests but low failure rate", gobreaker.Counts{Requests: 10, TotalFailures: 4}, false},
		{"enough requests and high failure rate", gobreaker.Counts{Requests: 10, TotalFailures: 5}, true},
		{"exactly 5 requests all failing", gobreaker.Counts{Requests: 5, TotalFailures: 5}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, resilience.DefaultReadyToTrip(tt.counts))
		})
	}
}

func TestDefaultClientConfig(t *testing.T) {
	cfg := resilience.DefaultClientConfig("google-maps")

	assert.Equal(t, "google-maps", cfg.Name)
	assert.Equal(t, 8*time.Second, cfg.Timeout)
	assert.Equal(t, uint64(2), cfg.MaxRetries)
	assert.Equal(t, 200*time.Millisecond, cfg.InitialInterval)
	assert.Equal(t, 2*time.Second, cfg.MaxInterval)
	assert.NotNil(t, cfg.CircuitBreaker)
}

func TestServerError(t *testing.T) {
	err := &resilience.ServerError{StatusCode: http.StatusInternalServerError}
	assert.Contains(t, err.Error(), "Internal Server Error")
}
