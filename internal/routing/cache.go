package routing

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// CacheConfig holds configuration for the caching provider.
type CacheConfig struct {
	// Provider is the directions provider being cached.
	Provider Provider

	// Logger for cache operations.
	Logger zerolog.Logger

	// TTL is how long to cache routes (default: 10 minutes).
	TTL time.Duration

	// GridSize is the size of cache grid cells in degrees (default: 0.001 ~ 110m).
	// Requests whose points fall in the same cells share cached routes.
	GridSize float64

	// StaleIfErrorTTL allows serving stale routes on provider errors (default: 30 minutes).
	StaleIfErrorTTL time.Duration

	// CleanupInterval is how often to clean up expired entries (default: 5 minutes).
	CleanupInterval time.Duration
}

// CachingProvider wraps a Provider with an in-memory route cache. Detour lookups
// for the same candidate across repeated searches are served from here.
type CachingProvider struct {
	provider        Provider
	logger          zerolog.Logger
	ttl             time.Duration
	gridSize        float64
	staleIfErrorTTL time.Duration
	cleanupInterval time.Duration

	group singleflight.Group

	mu          sync.RWMutex
	cache       map[string]*cachedRoute
	lastCleanup time.Time
}

type cachedRoute struct {
	route     *Route
	fetchedAt time.Time
	expiresAt time.Time
}

var _ Provider = (*CachingProvider)(nil)

// NewCachingProvider creates a caching decorator around cfg.Provider.
func NewCachingProvider(cfg CacheConfig) *CachingProvider {
	ttl := cfg.TTL
	if ttl == 0 {
		ttl = 10 * time.Minute
	}

	gridSize := cfg.GridSize
	if gridSize == 0 {
		gridSize = 0.001
	}

	staleIfErrorTTL := cfg.StaleIfErrorTTL
	if staleIfErrorTTL == 0 {
		staleIfErrorTTL = 30 * time.Minute
	}

	cleanupInterval := cfg.CleanupInterval
	if cleanupInterval == 0 {
		cleanupInterval = 5 * time.Minute
	}

	return &CachingProvider{
		provider:        cfg.Provider,
		logger:          cfg.Logger,
		ttl:             ttl,
		gridSize:        gridSize,
		staleIfErrorTTL: staleIfErrorTTL,
		cleanupInterval: cleanupInterval,
		cache:           make(map[string]*cachedRoute),
	}
}

// Name returns the wrapped provider's name.
func (c *CachingProvider) Name() string {
	return c.provider.Name()
}

// GetRoute returns a cached route when a fresh one exists, otherwise fetches it.
// Concurrent requests for the same key share one provider call.
func (c *CachingProvider) GetRoute(ctx context.Context, req DirectionsRequest) (*Route, error) {
	if err := ValidateRequest(req); err != nil {
		return nil, &Error{
			Provider: c.provider.Name(),
			Code:     "INVALID_REQUEST",
			Message:  "invalid directions request",
			Err:      err,
		}
	}

	key := c.cacheKey(req)

	c.mu.RLock()
	if cached, ok := c.cache[key]; ok && time.Now().Before(cached.expiresAt) {
		c.mu.RUnlock()
		c.logger.Debug().Str("cache_key", key).Msg("cache hit for route")
		return cached.route.Clone(), nil
	}
	c.mu.RUnlock()

	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		return c.fetch(ctx, req, key)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Route).Clone(), nil
}

func (c *CachingProvider) fetch(ctx context.Context, req DirectionsRequest, key string) (*Route, error) {
	c.logger.Debug().
		Str("cache_key", key).
		Int("waypoints", len(req.Waypoints)).
		Str("provider", c.provider.Name()).
		Msg("fetching route from provider")

	route, err := c.provider.GetRoute(ctx, req)
	if err != nil {
		c.mu.RLock()
		cached, ok := c.cache[key]
		c.mu.RUnlock()

		if ok && time.Now().Before(cached.fetchedAt.Add(c.staleIfErrorTTL)) && isTransient(err) {
			c.logger.Warn().Err(err).
				Time("fetched_at", cached.fetchedAt).
				Str("cache_key", key).
				Msg("serving stale route due to provider error")
			return cached.route, nil
		}
		return nil, err
	}

	now := time.Now()
	c.mu.Lock()
	c.cache[key] = &cachedRoute{
		route:     route,
		fetchedAt: now,
		expiresAt: now.Add(c.ttl),
	}
	c.cleanupIfNeeded(now)
	c.mu.Unlock()

	return route, nil
}

// cacheKey quantizes every point onto the grid.
// Format: {flags}|{origin}|{waypoint;...}|{destination}.
func (c *CachingProvider) cacheKey(req DirectionsRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "tolls=%t,fast=%t|%s|", req.AvoidTolls, req.PreferFast, c.cell(req.Origin))
	for i, wp := range req.Waypoints {
		if i > 0 {
			b.WriteByte(';')
		}
		b.WriteString(c.cell(wp))
	}
	b.WriteByte('|')
	b.WriteString(c.cell(req.Destination))
	return b.String()
}

func (c *CachingProvider) cell(p Coordinate) string {
	lat := math.Floor(p.Lat/c.gridSize) * c.gridSize
	lng := math.Floor(p.Lng/c.gridSize) * c.gridSize
	return fmt.Sprintf("%.4f,%.4f", lat, lng)
}

// cleanupIfNeeded removes entries past the stale window. Callers hold c.mu.
func (c *CachingProvider) cleanupIfNeeded(now time.Time) {
	if now.Sub(c.lastCleanup) < c.cleanupInterval {
		return
	}
	c.lastCleanup = now

	expired := 0
	for key, cached := range c.cache {
		if now.After(cached.fetchedAt.Add(c.staleIfErrorTTL)) {
			delete(c.cache, key)
			expired++
		}
	}

	if expired > 0 {
		c.logger.Debug().Int("expired_entries", expired).Msg("cleaned up expired route cache entries")
	}
}

// InvalidateCache clears all cached routes.
func (c *CachingProvider) InvalidateCache() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache = make(map[string]*cachedRoute)
}

// CacheStats returns cache statistics.
func (c *CachingProvider) CacheStats() CacheStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	now := time.Now()
	stats := CacheStats{TotalEntries: len(c.cache), Provider: c.provider.Name()}
	for _, cached := range c.cache {
		if now.Before(cached.expiresAt) {
			stats.FreshEntries++
		} else if now.Before(cached.fetchedAt.Add(c.staleIfErrorTTL)) {
			stats.StaleEntries++
		}
	}
	return stats
}

// CacheStats contains cache statistics.
type CacheStats struct {
	TotalEntries int
	FreshEntries int
	StaleEntries int
	Provider     string
}

func isTransient(err error) bool {
	return errors.Is(err, ErrProviderUnavailable) || errors.Is(err, ErrRateLimitExceeded)
}
