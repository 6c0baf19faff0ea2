// Package geocode resolves free-text trip endpoints into coordinates by trying an
// ordered list of resolution strategies.
package geocode

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/roadtripper/roadtripper/internal/geo"
	"github.com/roadtripper/roadtripper/internal/places"
)

// ErrNotResolved is returned by a Resolver that has no answer for an input.
var ErrNotResolved = errors.New("location not resolved")

// Side names a trip endpoint.
type Side string

// Trip endpoints.
const (
	SideOrigin      Side = "origin"
	SideDestination Side = "destination"
)

// LocationNotFoundError reports which endpoint could not be resolved.
type LocationNotFoundError struct {
	Side  Side
	Input string
}

func (e *LocationNotFoundError) Error() string {
	return fmt.Sprintf("could not find %s location %q", e.Side, e.Input)
}

// Is lets errors.Is match any LocationNotFoundError against ErrNotResolved.
func (e *LocationNotFoundError) Is(target error) bool {
	return target == ErrNotResolved
}

// UserMessage returns a message naming the failed endpoint.
func (e *LocationNotFoundError) UserMessage() string {
	return fmt.Sprintf("We couldn't find the %s location %q. Try a more specific address or place name.", e.Side, e.Input)
}

// Resolution sources.
const (
	SourceCoordinates = "coordinates"
	SourceGeocode     = "geocode"
	SourceTextSearch  = "text_search"
)

// Resolution is a resolved endpoint.
type Resolution struct {
	Label    string           `json:"label"`
	Location places.Coordinate `json:"location"`
	Source   string           `json:"source"`
}

// Resolver turns an input string into a location, or returns ErrNotResolved.
type Resolver interface {
	Resolve(ctx context.Context, input string) (*Resolution, error)
	Name() string
}

// CoordinateResolver accepts literal "lat,lng" input.
type CoordinateResolver struct{}

// Name returns the strategy name.
func (CoordinateResolver) Name() string { return SourceCoordinates }

// Resolve parses "lat,lng" and validates the ranges.
func (CoordinateResolver) Resolve(_ context.Context, input string) (*Resolution, error) {
	p, ok := ParseCoordinate(input)
	if !ok {
		return nil, ErrNotResolved
	}
	return &Resolution{Label: FormatCoordinate(p), Location: p, Source: SourceCoordinates}, nil
}

// GeocodeResolver takes the geocoder's first match.
type GeocodeResolver struct {
	Geocoder places.Geocoder
}

// Name returns the strategy name.
func (r GeocodeResolver) Name() string { return SourceGeocode }

// Resolve geocodes the input.
func (r GeocodeResolver) Resolve(ctx context.Context, input string) (*Resolution, error) {
	results, err := r.Geocoder.Geocode(ctx, input)
	if err != nil {
		return nil, err
	}
	for _, res := range results {
		if geo.ValidCoordinate(res.Location) {
			return &Resolution{Label: labelOr(res.FormattedAddress, input), Location: res.Location, Source: SourceGeocode}, nil
		}
	}
	return nil, ErrNotResolved
}

// TextSearchResolver takes the first place from a text search.
type TextSearchResolver struct {
	Searcher places.TextSearcher
}

// Name returns the strategy name.
func (r TextSearchResolver) Name() string { return SourceTextSearch }

// Resolve runs a text search for the input.
func (r TextSearchResolver) Resolve(ctx context.Context, input string) (*Resolution, error) {
	results, err := r.Searcher.TextSearch(ctx, input)
	if err != nil {
		return nil, err
	}
	for _, c := range results {
		if !geo.ValidCoordinate(c.Location) {
			continue
		}
		label := c.Name
		if c.Address != "" {
			label = c.Name + ", " + c.Address
		}
		return &Resolution{Label: labelOr(label, input), Location: c.Location, Source: SourceTextSearch}, nil
	}
	return nil, ErrNotResolved
}

// Chain tries resolvers in order until one answers.
type Chain struct {
	resolvers []Resolver
	logger    zerolog.Logger
}

// NewChain creates a chain over the given resolvers.
func NewChain(logger zerolog.Logger, resolvers ...Resolver) *Chain {
	return &Chain{resolvers: resolvers, logger: logger}
}

// DefaultChain builds the standard coordinate → geocode → text search chain.
func DefaultChain(logger zerolog.Logger, geocoder places.Geocoder, searcher places.TextSearcher) *Chain {
	rs := []Resolver{CoordinateResolver{}}
	if geocoder != nil {
		rs = append(rs, GeocodeResolver{Geocoder: geocoder})
	}
	if searcher != nil {
		rs = append(rs, TextSearchResolver{Searcher: searcher})
	}
	return NewChain(logger, rs...)
}

// Resolve returns the first resolver's answer. A configuration error or a
// canceled context stops the chain. Other resolver errors are logged and the
// next strategy is tried; if nothing answers, the first of them is returned
// in place of ErrNotResolved.
func (c *Chain) Resolve(ctx context.Context, input string) (*Resolution, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return nil, ErrNotResolved
	}

	var providerErr error
	for _, r := range c.resolvers {
		res, err := r.Resolve(ctx, input)
		if err == nil && res != nil {
			return res, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if err == nil || isNotFound(err) {
			continue
		}
		if errors.Is(err, places.ErrConfiguration) {
			return nil, fmt.Errorf("%s resolver: %w", r.Name(), err)
		}
		c.logger.Warn().
			Err(err).
			Str("resolver", r.Name()).
			Msg("location resolver failed, trying next")
		if providerErr == nil {
			providerErr = fmt.Errorf("%s resolver: %w", r.Name(), err)
		}
	}
	if providerErr != nil {
		return nil, providerErr
	}
	return nil, ErrNotResolved
}

func isNotFound(err error) bool {
	return errors.Is(err, ErrNotResolved) ||
		errors.Is(err, places.ErrNoResults) ||
		errors.Is(err, places.ErrPlaceNotFound)
}

// ResolveEndpoints resolves both trip endpoints, naming the side that failed.
func (c *Chain) ResolveEndpoints(ctx context.Context, origin, destination string) (*Resolution, *Resolution, error) {
	o, err := c.Resolve(ctx, origin)
	if err != nil {
		if errors.Is(err, ErrNotResolved) {
			return nil, nil, &LocationNotFoundError{Side: SideOrigin, Input: origin}
		}
		return nil, nil, err
	}

	d, err := c.Resolve(ctx, destination)
	if err != nil {
		if errors.Is(err, ErrNotResolved) {
			return nil, nil, &LocationNotFoundError{Side: SideDestination, Input: destination}
		}
		return nil, nil, err
	}

	return o, d, nil
}

// ReverseLabel names a point with the geocoder's address, falling back to the
// formatted coordinate.
func ReverseLabel(ctx context.Context, geocoder places.Geocoder, p places.Coordinate) string {
	if geocoder != nil {
		if addr, err := geocoder.ReverseGeocode(ctx, p); err == nil && addr != "" {
			return addr
		}
	}
	return FormatCoordinate(p)
}

// ParseCoordinate parses "lat,lng" input.
func ParseCoordinate(input string) (places.Coordinate, bool) {
	parts := strings.Split(strings.TrimSpace(input), ",")
	if len(parts) != 2 {
		return places.Coordinate{}, false
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return places.Coordinate{}, false
	}
	lng, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return places.Coordinate{}, false
	}
	p := places.Coordinate{Lat: lat, Lng: lng}
	if !geo.ValidCoordinate(p) {
		return places.Coordinate{}, false
	}
	return p, true
}

// FormatCoordinate renders a point as "lat,lng" with five decimals.
func FormatCoordinate(p places.Coordinate) string {
	return strconv.FormatFloat(p.Lat, 'f', 5, 64) + "," + strconv.FormatFloat(p.Lng, 'f', 5, 64)
}

func labelOr(label, fallback string) string {
	if strings.TrimSpace(label) == "" {
		return fallback
	}
	return label
}
