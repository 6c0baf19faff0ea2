// Package places defines the places search and geocoding contracts used by stop
// discovery and endpoint resolution.
package places

import (
	"context"
	"errors"
	"strings"

	"github.com/roadtripper/roadtripper/pkg/polyline"
)

var (
	// ErrPlaceNotFound indicates the provider has no place with the given ID.
	ErrPlaceNotFound = errors.New("place not found")

	// ErrNoResults indicates a geocode or search produced nothing.
	ErrNoResults = errors.New("no results")

	// ErrProviderUnavailable indicates the places provider failed or is rate limited.
	ErrProviderUnavailable = errors.New("places provider unavailable")

	// ErrConfiguration indicates missing or rejected provider credentials.
	ErrConfiguration = errors.New("places provider is not configured")
)

// Coordinate is a geographic point.
type Coordinate = polyline.Coordinate

// Provider searches for points of interest and fetches their details.
type Provider interface {
	// SearchNearby returns places within RadiusMeters of Location.
	SearchNearby(ctx context.Context, req NearbyRequest) ([]Candidate, error)

	// GetDetails returns rich details for a place, or ErrPlaceNotFound.
	GetDetails(ctx context.Context, placeID string) (*Details, error)

	// Name returns the provider identifier.
	Name() string
}

// TextSearcher finds places from a free-text query.
type TextSearcher interface {
	TextSearch(ctx context.Context, query string) ([]Candidate, error)
}

// Geocoder converts between addresses and coordinates.
type Geocoder interface {
	// Geocode returns matches for an address, best first.
	Geocode(ctx context.Context, address string) ([]GeocodeResult, error)

	// ReverseGeocode returns the formatted address of a point, or ErrNoResults.
	ReverseGeocode(ctx context.Context, point Coordinate) (string, error)
}

// NearbyRequest is an area search around one sample point.
type NearbyRequest struct {
	Location     Coordinate
	RadiusMeters int
	Category     string // provider place type, e.g. "gas_station"
	Keyword      string
}

// Candidate is a place returned by a search.
type Candidate struct {
	PlaceID        string     `json:"placeId"`
	Name           string     `json:"name"`
	Location       Coordinate `json:"location"`
	Types          []string   `json:"types,omitempty"`
	Rating         float64    `json:"rating"`
	ReviewCount    int        `json:"reviewCount"`
	PriceLevel     int        `json:"priceLevel,omitempty"`
	OpenNow        *bool      `json:"openNow,omitempty"`
	BusinessStatus string     `json:"businessStatus,omitempty"`
	Address        string     `json:"address,omitempty"`
}

// HasType reports whether the candidate carries the provider type t.
func (c *Candidate) HasType(t string) bool {
	for _, ct := range c.Types {
		if strings.EqualFold(ct, t) {
			return true
		}
	}
	return false
}

// Operational reports whether the place is not known to be closed.
func (c *Candidate) Operational() bool {
	return c.BusinessStatus == "" || c.BusinessStatus == "OPERATIONAL"
}

// Review is a single user review.
type Review struct {
	Rating int    `json:"rating"`
	Text   string `json:"text"`
}

// Details is a candidate enriched with the detail lookup.
type Details struct {
	Candidate
	FormattedAddress string   `json:"formattedAddress,omitempty"`
	Phone            string   `json:"phone,omitempty"`
	Website          string   `json:"website,omitempty"`
	WeekdayHours     []string `json:"weekdayHours,omitempty"`
	Reviews          []Review `json:"reviews,omitempty"`
}

// ReviewText returns all review text lowercased and joined, for phrase matching.
func (d *Details) ReviewText() string {
	var b strings.Builder
	for _, r := range d.Reviews {
		b.WriteString(strings.ToLower(r.Text))
		b.WriteByte('\n')
	}
	return b.String()
}

// GeocodeResult is one geocoder match.
type GeocodeResult struct {
	FormattedAddress string     `json:"formattedAddress"`
	Location         Coordinate `json:"location"`
	PlaceID          string     `json:"placeId,omitempty"`
}
