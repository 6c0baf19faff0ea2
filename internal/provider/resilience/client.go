package resilience

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
)

// Predefined errors for resilient operations.
var (
	// ErrCircuitOpen is returned when the circuit breaker is open.
	ErrCircuitOpen = errors.New("circuit breaker is open")

	// ErrMaxRetriesExceeded is returned when all retry attempts have been exhausted.
	ErrMaxRetriesExceeded = errors.New("max retries exceeded")
)

// ClientConfig holds configuration for the resilient HTTP client.
type ClientConfig struct {
	// Name identifies this client for circuit breaker naming.
	Name string

	// Timeout is the request timeout for individual HTTP calls.
	// Default: 8 seconds
	Timeout time.Duration

	// MaxRetries is the maximum number of retry attempts.
	// Default: 2
	MaxRetries uint64

	// InitialInterval is the initial retry backoff interval.
	// Default: 200ms
	InitialInterval time.Duration

	// MaxInterval is the maximum retry backoff interval.
	// Default: 2 seconds
	MaxInterval time.Duration

	// CircuitBreaker is the circuit breaker configuration.
	// If nil, uses DefaultCircuitBreakerConfig.
	CircuitBreaker *CircuitBreakerConfig

	// Transport is the underlying round tripper. Defaults to http.DefaultTransport.
	Transport http.RoundTripper

	// Registry, when set, receives the client and its call outcomes.
	Registry *Registry

	// Logger receives circuit breaker transitions unless the breaker config
	// sets its own OnStateChange.
	Logger zerolog.Logger
}

// DefaultClientConfig returns defaults sized for interactive map lookups, where a
// stalled call holds up a whole stop search.
func DefaultClientConfig(name string) ClientConfig {
	cbConfig := DefaultCircuitBreakerConfig(name)
	return ClientConfig{
		Name:            name,
		Timeout:         8 * time.Second,
		MaxRetries:      2,
		InitialInterval: 200 * time.Millisecond,
		MaxInterval:     2 * time.Second,
		CircuitBreaker:  &cbConfig,
	}
}

// Client is a resilient HTTP client with circuit breaker and retry logic.
// It also satisfies http.RoundTripper so SDK clients can be pointed at it.
type Client struct {
	httpClient     *http.Client
	circuitBreaker *gobreaker.CircuitBreaker[*http.Response]
	config         ClientConfig
}

var _ http.RoundTripper = (*Client)(nil)

// NewClient creates a new resilient HTTP client.
func NewClient(cfg ClientConfig) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 8 * time.Second
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 2
	}
	if cfg.InitialInterval == 0 {
		cfg.InitialInterval = 200 * time.Millisecond
	}
	if cfg.MaxInterval == 0 {
		cfg.MaxInterval = 2 * time.Second
	}
	if cfg.Transport == nil {
		cfg.Transport = http.DefaultTransport
	}

	cbConfig := DefaultCircuitBreakerConfig(cfg.Name)
	if cfg.CircuitBreaker != nil {
		cbConfig = *cfg.CircuitBreaker
	}
	if cbConfig.OnStateChange == nil {
		cbConfig.OnStateChange = LogStateChanges(cfg.Logger)
	}

	c := &Client{
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: cfg.Transport,
		},
		circuitBreaker: NewCircuitBreaker[*http.Response](cbConfig), //nolint:bodyclose // type param, not response
		config:         cfg,
	}
	if cfg.Registry != nil {
		cfg.Registry.Register(cfg.Name, c)
	}
	return c
}

// Name returns the configured client name.
func (c *Client) Name() string {
	return c.config.Name
}

// HTTPClient returns an *http.Client whose transport is this resilient client.
func (c *Client) HTTPClient() *http.Client {
	return &http.Client{Transport: c}
}

// RoundTrip implements http.RoundTripper.
func (c *Client) RoundTrip(req *http.Request) (*http.Response, error) {
	return c.DoWithContext(req.Context(), req)
}

// Do executes an HTTP request with circuit breaker protection and retry logic.
// The request is retried on transient failures (5xx, 429, network errors) with exponential backoff.
// Returns immediately with ErrCircuitOpen if the circuit breaker is open.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	return c.DoWithContext(req.Context(), req)
}

// DoWithContext executes an HTTP request with the given context.
func (c *Client) DoWithContext(ctx context.Context, req *http.Request) (*http.Response, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.config.InitialInterval
	bo.MaxInterval = c.config.MaxInterval
	bo.MaxElapsedTime = 0 // retries are bounded by WithMaxRetries

	policy := backoff.WithContext(backoff.WithMaxRetries(bo, c.config.MaxRetries), ctx)

	var lastResp *http.Response

	operation := func() error {
		attempt, err := cloneRequest(ctx, req)
		if err != nil {
			return backoff.Permanent(err)
		}

		resp, err := c.circuitBreaker.Execute(func() (*http.Response, error) { //nolint:bodyclose // caller is responsible for closing
			r, err := c.httpClient.Do(attempt)
			if err != nil {
				return nil, err
			}
			// 5xx and throttling count against the breaker
			if r.StatusCode >= 500 || r.StatusCode == http.StatusTooManyRequests {
				return r, &ServerError{StatusCode: r.StatusCode}
			}
			return r, nil
		})

		if err != nil {
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				return backoff.Permanent(ErrCircuitOpen)
			}
			if resp != nil {
				discard(lastResp)
				lastResp = resp
			}
			return err
		}

		discard(lastResp)
		lastResp = resp
		return nil
	}

	if err := backoff.Retry(operation, policy); err != nil {
		c.recordFailure(err)

		// a 5xx that exhausted retries is handed back so callers can map the status
		var serverErr *ServerError
		if lastResp != nil && errors.As(err, &serverErr) {
			return lastResp, nil
		}
		discard(lastResp)
		return nil, err
	}

	c.recordSuccess()
	return lastResp, nil
}

func (c *Client) recordSuccess() {
	if c.config.Registry != nil {
		c.config.Registry.RecordSuccess(c.config.Name)
	}
}

func (c *Client) recordFailure(err error) {
	if c.config.Registry != nil {
		c.config.Registry.RecordFailure(c.config.Name, err)
	}
}

// cloneRequest prepares a fresh copy of req for one attempt, rewinding the body.
func cloneRequest(ctx context.Context, req *http.Request) (*http.Request, error) {
	attempt := req.Clone(ctx)
	if req.Body == nil || req.Body == http.NoBody {
		return attempt, nil
	}
	if req.GetBody == nil {
		return nil, fmt.Errorf("request body for %s cannot be replayed", req.URL.Path)
	}
	body, err := req.GetBody()
	if err != nil {
		return nil, fmt.Errorf("rewinding request body: %w", err)
	}
	attempt.Body = body
	return attempt, nil
}

func discard(resp *http.Response) {
	if resp == nil || resp.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}

// ServerError represents an HTTP 5xx or 429 response.
type ServerError struct {
	StatusCode int
}

func (e *ServerError) Error() string {
	return "server error: " + http.StatusText(e.StatusCode)
}

// CircuitBreakerState returns the current state of the circuit breaker.
func (c *Client) CircuitBreakerState() gobreaker.State {
	return c.circuitBreaker.State()
}

// CircuitBreakerCounts returns the current counts of the circuit breaker.
func (c *Client) CircuitBreakerCounts() gobreaker.Counts {
	return c.circuitBreaker.Counts()
}
