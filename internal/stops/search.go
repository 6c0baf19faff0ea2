package stops

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/roadtripper/roadtripper/internal/geo"
	"github.com/roadtripper/roadtripper/internal/places"
)

// SearchConfig holds configuration for candidate search.
type SearchConfig struct {
	// InteriorSamples is the number of evenly spaced points inside the band (5-8, default 6).
	InteriorSamples int

	// BandStart and BandEnd bound the interior samples as route fractions (default 0.25-0.75).
	BandStart float64
	BandEnd   float64

	// Concurrency caps simultaneous area searches (default 4).
	Concurrency int

	// Logger for search operations.
	Logger zerolog.Logger
}

// DefaultSearchConfig returns the default search configuration.
func DefaultSearchConfig() SearchConfig {
	return SearchConfig{
		InteriorSamples: 6,
		BandStart:       0.25,
		BandEnd:         0.75,
		Concurrency:     4,
	}
}

// Searcher queries the places provider at sample points along a route.
type Searcher struct {
	places places.Provider
	cfg    SearchConfig
	logger zerolog.Logger
}

// NewSearcher creates a Searcher.
func NewSearcher(provider places.Provider, cfg SearchConfig) *Searcher {
	def := DefaultSearchConfig()
	if cfg.InteriorSamples == 0 {
		cfg.InteriorSamples = def.InteriorSamples
	}
	cfg.InteriorSamples = clampInt(cfg.InteriorSamples, 5, 8)
	if cfg.BandStart == 0 && cfg.BandEnd == 0 {
		cfg.BandStart, cfg.BandEnd = def.BandStart, def.BandEnd
	}
	if cfg.BandEnd <= cfg.BandStart {
		cfg.BandEnd = cfg.BandStart
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = def.Concurrency
	}
	return &Searcher{places: provider, cfg: cfg, logger: cfg.Logger}
}

// SamplePoints returns the route start, the interior band points, and the end.
func (s *Searcher) SamplePoints(path []Coordinate) []Coordinate {
	if len(path) == 0 {
		return nil
	}
	if len(path) == 1 {
		return []Coordinate{path[0]}
	}

	n := s.cfg.InteriorSamples
	out := make([]Coordinate, 0, n+2)
	out = append(out, path[0])
	for i := 0; i < n; i++ {
		f := s.cfg.BandStart
		if n > 1 {
			f += (s.cfg.BandEnd - s.cfg.BandStart) * float64(i) / float64(n-1)
		}
		out = append(out, geo.PointAtFraction(path, f))
	}
	out = append(out, path[len(path)-1])
	return out
}

// FindCandidates runs one area search per sample point and returns the deduplicated,
// loosely filtered union. When samples is nil the default sampling is used.
// A failing sample is skipped; ErrCandidateSearch is returned only when all fail.
func (s *Searcher) FindCandidates(ctx context.Context, path []Coordinate, profile Profile, samples []Coordinate) ([]places.Candidate, error) {
	if samples == nil {
		samples = s.SamplePoints(path)
	}
	if len(samples) == 0 {
		return nil, nil
	}

	results := make([][]places.Candidate, len(samples))
	errs := make([]error, len(samples))

	var g errgroup.Group
	g.SetLimit(s.cfg.Concurrency)
	for i, pt := range samples {
		g.Go(func() error {
			res, err := s.places.SearchNearby(ctx, places.NearbyRequest{
				Location:     pt,
				RadiusMeters: profile.RadiusMeters,
				Category:     profile.SearchType,
				Keyword:      profile.SearchKeyword,
			})
			if err != nil {
				errs[i] = err
				s.logger.Warn().
					Err(err).
					Str("category", profile.Category).
					Int("sample", i).
					Msg("area search failed, skipping sample")
				return nil
			}
			results[i] = res
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	var lastErr error
	for _, err := range errs {
		if err != nil {
			failed++
			lastErr = err
		}
	}
	if failed == len(samples) {
		return nil, fmt.Errorf("%w for %s: %v", ErrCandidateSearch, profile.Category, lastErr)
	}

	seen := make(map[string]bool)
	var all []places.Candidate
	for _, res := range results {
		for _, c := range res {
			if c.PlaceID == "" || seen[c.PlaceID] || !c.Operational() {
				continue
			}
			seen[c.PlaceID] = true
			all = append(all, c)
		}
	}

	filtered := make([]places.Candidate, 0, len(all))
	for i := range all {
		if MatchCandidate(&all[i], profile) != MatchNone {
			filtered = append(filtered, all[i])
		}
	}

	s.logger.Debug().
		Str("category", profile.Category).
		Int("samples", len(samples)).
		Int("failed", failed).
		Int("unique", len(all)).
		Int("matched", len(filtered)).
		Msg("candidate search complete")

	// over-include here; verification is stricter
	if len(filtered) == 0 {
		return all, nil
	}
	return filtered, nil
}

// MatchCandidate checks the type and name signals of a profile.
func MatchCandidate(c *places.Candidate, p Profile) MatchSignal {
	for _, t := range p.PrimaryTypes {
		if c.HasType(t) {
			return MatchPrimaryType
		}
	}
	for _, t := range p.FallbackTypes {
		if c.HasType(t) {
			return MatchFallbackType
		}
	}
	name := strings.ToLower(c.Name)
	for _, kw := range p.NameKeywords {
		if kw != "" && strings.Contains(name, strings.ToLower(kw)) {
			return MatchName
		}
	}
	return MatchNone
}

// MatchDetails adds the review keyword signal to MatchCandidate.
func MatchDetails(d *places.Details, p Profile) MatchSignal {
	if m := MatchCandidate(&d.Candidate, p); m != MatchNone {
		return m
	}
	text := d.ReviewText()
	for _, kw := range p.ReviewKeywords {
		if kw != "" && strings.Contains(text, strings.ToLower(kw)) {
			return MatchReviewKeyword
		}
	}
	return MatchNone
}
