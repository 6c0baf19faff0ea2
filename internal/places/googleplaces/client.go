// Package googleplaces implements places search and geocoding on Google Maps Platform.
package googleplaces

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"googlemaps.github.io/maps"

	"github.com/roadtripper/roadtripper/internal/places"
	"github.com/roadtripper/roadtripper/internal/provider/google"
	"github.com/roadtripper/roadtripper/internal/telemetry"
)

// ProviderName identifies this places provider.
const ProviderName = "google-places"

// DefaultTimeout bounds a single places call.
const DefaultTimeout = 8 * time.Second

// ClientConfig holds configuration for the places client.
type ClientConfig struct {
	// Maps is a preconfigured client. If nil, one is built from Google.
	Maps *maps.Client

	// Google configures the Maps client when Maps is nil.
	Google google.Config

	// Timeout bounds each request (default: 8s).
	Timeout time.Duration

	// Metrics records provider calls (optional).
	Metrics *telemetry.ProviderMetrics

	// Logger for client operations.
	Logger zerolog.Logger
}

// Client implements places.Provider, places.TextSearcher, and places.Geocoder.
type Client struct {
	maps    *maps.Client
	timeout time.Duration
	metrics *telemetry.ProviderMetrics
	logger  zerolog.Logger
}

var (
	_ places.Provider     = (*Client)(nil)
	_ places.TextSearcher = (*Client)(nil)
	_ places.Geocoder     = (*Client)(nil)
)

// NewClient creates a places client. A missing API key is a configuration error.
func NewClient(cfg ClientConfig) (*Client, error) {
	mc := cfg.Maps
	if mc == nil {
		var err error
		mc, err = google.NewMapsClient(cfg.Google)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", places.ErrConfiguration, err)
		}
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	return &Client{
		maps:    mc,
		timeout: timeout,
		metrics: cfg.Metrics,
		logger:  cfg.Logger,
	}, nil
}

// Name returns the provider name.
func (c *Client) Name() string {
	return ProviderName
}

// SearchNearby runs a nearby search around one point. ZERO_RESULTS is an empty result.
func (c *Client) SearchNearby(ctx context.Context, req places.NearbyRequest) ([]places.Candidate, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	nr := &maps.NearbySearchRequest{
		Location: &maps.LatLng{Lat: req.Location.Lat, Lng: req.Location.Lng},
		Radius:   uint(req.RadiusMeters),
		Keyword:  req.Keyword,
	}
	if req.Category != "" {
		nr.Type = maps.PlaceType(req.Category)
	}

	start := time.Now()
	resp, err := c.maps.NearbySearch(ctx, nr)
	if err != nil {
		if google.Status(err) == google.StatusZeroResults {
			c.metrics.RecordRequest(ProviderName, "nearby_search", time.Since(start), 0, nil)
			return nil, nil
		}
		mapped := c.mapError("nearby search", err)
		c.metrics.RecordRequest(ProviderName, "nearby_search", time.Since(start), 0, mapped)
		return nil, mapped
	}

	out := make([]places.Candidate, 0, len(resp.Results))
	for i := range resp.Results {
		out = append(out, toCandidate(&resp.Results[i]))
	}
	c.metrics.RecordRequest(ProviderName, "nearby_search", time.Since(start), len(out), nil)

	c.logger.Debug().
		Str("type", req.Category).
		Int("radius_m", req.RadiusMeters).
		Int("results", len(out)).
		Msg("nearby search complete")

	return out, nil
}

// GetDetails fetches hours, reviews, and contact data for a place.
func (c *Client) GetDetails(ctx context.Context, placeID string) (*places.Details, error) {
	if placeID == "" {
		return nil, places.ErrPlaceNotFound
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	res, err := c.maps.PlaceDetails(ctx, &maps.PlaceDetailsRequest{
		PlaceID: placeID,
	})
	if err != nil {
		var mapped error
		switch google.Status(err) {
		case google.StatusNotFound, google.StatusZeroResults, google.StatusInvalidRequest:
			mapped = fmt.Errorf("%w: %s", places.ErrPlaceNotFound, placeID)
		default:
			mapped = c.mapError("place details", err)
		}
		c.metrics.RecordRequest(ProviderName, "place_details", time.Since(start), 0, mapped)
		return nil, mapped
	}
	c.metrics.RecordRequest(ProviderName, "place_details", time.Since(start), 1, nil)

	d := &places.Details{
		Candidate: places.Candidate{
			PlaceID:        res.PlaceID,
			Name:           res.Name,
			Location:       places.Coordinate{Lat: res.Geometry.Location.Lat, Lng: res.Geometry.Location.Lng},
			Types:          append([]string(nil), res.Types...),
			Rating:         float64(res.Rating),
			ReviewCount:    res.UserRatingsTotal,
			PriceLevel:     res.PriceLevel,
			BusinessStatus: res.BusinessStatus,
			Address:        res.FormattedAddress,
		},
		FormattedAddress: res.FormattedAddress,
		Phone:            res.FormattedPhoneNumber,
		Website:          res.Website,
	}
	if res.OpeningHours != nil {
		d.OpenNow = res.OpeningHours.OpenNow
		d.WeekdayHours = append([]string(nil), res.OpeningHours.WeekdayText...)
	}
	for _, r := range res.Reviews {
		d.Reviews = append(d.Reviews, places.Review{Rating: r.Rating, Text: r.Text})
	}
	if d.PlaceID == "" {
		d.PlaceID = placeID
	}

	return d, nil
}

// TextSearch runs a free-text place query.
func (c *Client) TextSearch(ctx context.Context, query string) ([]places.Candidate, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	resp, err := c.maps.TextSearch(ctx, &maps.TextSearchRequest{Query: query})
	if err != nil {
		if google.Status(err) == google.StatusZeroResults {
			c.metrics.RecordRequest(ProviderName, "text_search", time.Since(start), 0, nil)
			return nil, nil
		}
		mapped := c.mapError("text search", err)
		c.metrics.RecordRequest(ProviderName, "text_search", time.Since(start), 0, mapped)
		return nil, mapped
	}

	out := make([]places.Candidate, 0, len(resp.Results))
	for i := range resp.Results {
		out = append(out, toCandidate(&resp.Results[i]))
	}
	c.metrics.RecordRequest(ProviderName, "text_search", time.Since(start), len(out), nil)
	return out, nil
}

// Geocode resolves an address. ZERO_RESULTS is an empty result.
func (c *Client) Geocode(ctx context.Context, address string) ([]places.GeocodeResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	results, err := c.maps.Geocode(ctx, &maps.GeocodingRequest{Address: address})
	if err != nil {
		if google.Status(err) == google.StatusZeroResults {
			c.metrics.RecordRequest(ProviderName, "geocode", time.Since(start), 0, nil)
			return nil, nil
		}
		mapped := c.mapError("geocode", err)
		c.metrics.RecordRequest(ProviderName, "geocode", time.Since(start), 0, mapped)
		return nil, mapped
	}
	c.metrics.RecordRequest(ProviderName, "geocode", time.Since(start), len(results), nil)

	out := make([]places.GeocodeResult, 0, len(results))
	for _, r := range results {
		out = append(out, places.GeocodeResult{
			FormattedAddress: r.FormattedAddress,
			Location:         places.Coordinate{Lat: r.Geometry.Location.Lat, Lng: r.Geometry.Location.Lng},
			PlaceID:          r.PlaceID,
		})
	}
	return out, nil
}

// ReverseGeocode returns the best formatted address for a point.
func (c *Client) ReverseGeocode(ctx context.Context, point places.Coordinate) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	results, err := c.maps.ReverseGeocode(ctx, &maps.GeocodingRequest{
		LatLng: &maps.LatLng{Lat: point.Lat, Lng: point.Lng},
	})
	if err != nil && google.Status(err) != google.StatusZeroResults {
		mapped := c.mapError("reverse geocode", err)
		c.metrics.RecordRequest(ProviderName, "reverse_geocode", time.Since(start), 0, mapped)
		return "", mapped
	}
	c.metrics.RecordRequest(ProviderName, "reverse_geocode", time.Since(start), len(results), nil)

	for _, r := range results {
		if r.FormattedAddress != "" {
			return r.FormattedAddress, nil
		}
	}
	return "", places.ErrNoResults
}

func (c *Client) mapError(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s: %w: %v", op, places.ErrProviderUnavailable, err)
	}
	if google.Status(err) == google.StatusRequestDenied {
		return fmt.Errorf("%s: %w: %v", op, places.ErrConfiguration, err)
	}
	return fmt.Errorf("%s: %w: %v", op, places.ErrProviderUnavailable, err)
}

func toCandidate(r *maps.PlacesSearchResult) places.Candidate {
	c := places.Candidate{
		PlaceID:        r.PlaceID,
		Name:           r.Name,
		Location:       places.Coordinate{Lat: r.Geometry.Location.Lat, Lng: r.Geometry.Location.Lng},
		Types:          append([]string(nil), r.Types...),
		Rating:         float64(r.Rating),
		ReviewCount:    r.UserRatingsTotal,
		PriceLevel:     r.PriceLevel,
		BusinessStatus: r.BusinessStatus,
		Address:        r.Vicinity,
	}
	if c.Address == "" {
		c.Address = r.FormattedAddress
	}
	if r.OpeningHours != nil {
		c.OpenNow = r.OpeningHours.OpenNow
	}
	return c
}
