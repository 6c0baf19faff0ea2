package stops

import (
	"math"
	"sort"
)

// ScoringWeights are the composite score coefficients.
type ScoringWeights struct {
	Rating            float64 `mapstructure:"rating"`
	ReviewLog         float64 `mapstructure:"review_log"`
	DetourMinute      float64 `mapstructure:"detour_minute"`
	OffRouteMile      float64 `mapstructure:"off_route_mile"`
	ProfileMatchBonus float64 `mapstructure:"profile_match_bonus"`
	MidRouteBonus     float64 `mapstructure:"mid_route_bonus"`
	MidRouteStart     float64 `mapstructure:"mid_route_start"`
	MidRouteEnd       float64 `mapstructure:"mid_route_end"`
	FuelTargetMile    float64 `mapstructure:"fuel_target_mile"`
}

// DefaultScoringWeights returns the standard weights.
func DefaultScoringWeights() ScoringWeights {
	return ScoringWeights{
		Rating:            20,
		ReviewLog:         10,
		DetourMinute:      2,
		OffRouteMile:      5,
		ProfileMatchBonus: 15,
		MidRouteBonus:     10,
		MidRouteStart:     0.25,
		MidRouteEnd:       0.75,
		FuelTargetMile:    2,
	}
}

// ScoreInput carries the terms of the composite score.
type ScoreInput struct {
	Rating        float64
	Reviews       int
	DetourMinutes float64
	OffRouteMiles float64
	ProfileMatch  bool
	Progress      float64

	// FuelDeviationMiles is |along - target| for fuel-target searches, nil otherwise.
	FuelDeviationMiles *float64
}

// Score computes the composite score. The mid-route bonus does not apply to
// fuel-target searches, where the target position governs placement.
func (w ScoringWeights) Score(in ScoreInput) float64 {
	s := in.Rating*w.Rating +
		math.Log10(float64(in.Reviews)+1)*w.ReviewLog -
		in.DetourMinutes*w.DetourMinute -
		in.OffRouteMiles*w.OffRouteMile
	if in.ProfileMatch {
		s += w.ProfileMatchBonus
	}
	if in.FuelDeviationMiles != nil {
		s -= *in.FuelDeviationMiles * w.FuelTargetMile
	} else if in.Progress >= w.MidRouteStart && in.Progress <= w.MidRouteEnd {
		s += w.MidRouteBonus
	}
	return s
}

// preliminary ranks candidates before detail fetches using only search data.
func (w ScoringWeights) preliminary(rating float64, reviews int, offRouteMiles float64) float64 {
	return rating*w.Rating + math.Log10(float64(reviews)+1)*w.ReviewLog - offRouteMiles*w.OffRouteMile
}

// Budget bounds how far out of the way a stop may be.
type Budget struct {
	MaxDetourMinutes float64
	MaxOffRouteMiles float64
}

// Allows reports whether a stop is within budget. Either limit suffices: a stop
// close in distance but slow to reach qualifies, and so does the reverse.
func (b Budget) Allows(detourMinutes, offRouteMiles float64) bool {
	return detourMinutes <= b.MaxDetourMinutes || offRouteMiles <= b.MaxOffRouteMiles
}

// Scale multiplies both limits.
func (b Budget) Scale(f float64) Budget {
	return Budget{MaxDetourMinutes: b.MaxDetourMinutes * f, MaxOffRouteMiles: b.MaxOffRouteMiles * f}
}

// rank sorts stops by score descending with place ID as tie-break.
func rank(stops []Stop) {
	sort.SliceStable(stops, func(i, j int) bool {
		if stops[i].Score != stops[j].Score {
			return stops[i].Score > stops[j].Score
		}
		return stops[i].PlaceID < stops[j].PlaceID
	})
}
