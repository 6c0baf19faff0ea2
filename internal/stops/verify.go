package stops

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/roadtripper/roadtripper/internal/geo"
	"github.com/roadtripper/roadtripper/internal/places"
	"github.com/roadtripper/roadtripper/internal/routing"
)

// VerifyConfig holds configuration for candidate verification.
type VerifyConfig struct {
	Weights ScoringWeights

	// AverageSpeedMph converts off-route distance into the detour proxy (default 40).
	AverageSpeedMph float64

	// ProxyGateMultiplier is how far over budget a proxy may be and still earn a
	// directions call (default 1.5).
	ProxyGateMultiplier float64

	// MaxDetailFetches bounds detail lookups per category (5-10, default 8).
	MaxDetailFetches int

	// DetailConcurrency caps simultaneous detail and detour calls (default 4).
	DetailConcurrency int

	// DetailTimeout and DetourTimeout bound each provider call (default 8s).
	DetailTimeout time.Duration
	DetourTimeout time.Duration

	// RatingRelaxStep lowers the rating floor for the relaxed pass (default 0.5).
	RatingRelaxStep float64

	// RelaxationMultiplier scales both budgets for the relaxed pass (default 1.5).
	RelaxationMultiplier float64

	// Logger for verification.
	Logger zerolog.Logger
}

// DefaultVerifyConfig returns the default verification configuration.
func DefaultVerifyConfig() VerifyConfig {
	return VerifyConfig{
		Weights:              DefaultScoringWeights(),
		AverageSpeedMph:      40,
		ProxyGateMultiplier:  1.5,
		MaxDetailFetches:     8,
		DetailConcurrency:    4,
		DetailTimeout:        8 * time.Second,
		DetourTimeout:        8 * time.Second,
		RatingRelaxStep:      0.5,
		RelaxationMultiplier: 1.5,
	}
}

// RouteContext is the baseline route a category is judged against.
type RouteContext struct {
	Path            []Coordinate
	TotalMiles      float64
	Origin          Coordinate
	Destination     Coordinate
	BaselineSeconds int
	AvoidTolls      bool
	PreferFast      bool
	Fuel            *FuelPlan
}

// Evaluation is a candidate that passed the quality gate, detail fetch, and
// category confirmation, with its route position and detour.
type Evaluation struct {
	Details         *places.Details
	Signal          MatchSignal
	OffRouteMiles   float64
	AlongMiles      float64
	Progress        float64
	DetourMinutes   float64
	DetourEstimated bool
	Verified        []string
	Cautions        []string
}

// Verifier fetches details, confirms categories, and estimates detours.
type Verifier struct {
	places     places.Provider
	directions routing.Provider
	cfg        VerifyConfig
	logger     zerolog.Logger
}

// NewVerifier creates a Verifier. directions may be nil, in which case every
// detour is the proxy estimate.
func NewVerifier(placesProvider places.Provider, directions routing.Provider, cfg VerifyConfig) *Verifier {
	def := DefaultVerifyConfig()
	if cfg.Weights == (ScoringWeights{}) {
		cfg.Weights = def.Weights
	}
	if cfg.AverageSpeedMph <= 0 {
		cfg.AverageSpeedMph = def.AverageSpeedMph
	}
	if cfg.ProxyGateMultiplier <= 0 {
		cfg.ProxyGateMultiplier = def.ProxyGateMultiplier
	}
	if cfg.MaxDetailFetches == 0 {
		cfg.MaxDetailFetches = def.MaxDetailFetches
	}
	cfg.MaxDetailFetches = clampInt(cfg.MaxDetailFetches, 5, 10)
	if cfg.DetailConcurrency <= 0 {
		cfg.DetailConcurrency = def.DetailConcurrency
	}
	if cfg.DetailTimeout <= 0 {
		cfg.DetailTimeout = def.DetailTimeout
	}
	if cfg.DetourTimeout <= 0 {
		cfg.DetourTimeout = def.DetourTimeout
	}
	if cfg.RatingRelaxStep == 0 {
		cfg.RatingRelaxStep = def.RatingRelaxStep
	}
	if cfg.RelaxationMultiplier <= 0 {
		cfg.RelaxationMultiplier = def.RelaxationMultiplier
	}
	return &Verifier{
		places:     placesProvider,
		directions: directions,
		cfg:        cfg,
		logger:     cfg.Logger,
	}
}

type shortlisted struct {
	candidate places.Candidate
	proj      geo.Projection
	prelim    float64
}

// Evaluate runs the quality gate, ranks by cheap signals, and fetches details and
// detours for the top candidates concurrently. A failed detail fetch drops only
// that candidate.
func (v *Verifier) Evaluate(ctx context.Context, rc RouteContext, p Profile, candidates []places.Candidate) []Evaluation {
	floor := p.MinRating - v.cfg.RatingRelaxStep

	var short []shortlisted
	for _, c := range candidates {
		if c.ReviewCount < p.MinReviews || c.Rating < floor {
			continue
		}
		if p.PriceLevelMax > 0 && c.PriceLevel > p.PriceLevelMax {
			continue
		}
		proj := geo.Project(c.Location, rc.Path)
		if rc.Fuel != nil && rc.Fuel.Required && proj.AlongMiles > rc.Fuel.TargetMiles+rc.Fuel.ToleranceMiles {
			continue
		}
		short = append(short, shortlisted{
			candidate: c,
			proj:      proj,
			prelim:    v.cfg.Weights.preliminary(c.Rating, c.ReviewCount, proj.DistanceMiles),
		})
	}

	sort.SliceStable(short, func(i, j int) bool {
		if short[i].prelim != short[j].prelim {
			return short[i].prelim > short[j].prelim
		}
		return short[i].candidate.PlaceID < short[j].candidate.PlaceID
	})
	if len(short) > v.cfg.MaxDetailFetches {
		short = short[:v.cfg.MaxDetailFetches]
	}

	results := make([]*Evaluation, len(short))
	var g errgroup.Group
	g.SetLimit(v.cfg.DetailConcurrency)
	for i, s := range short {
		g.Go(func() error {
			results[i] = v.evaluateOne(ctx, rc, p, s)
			return nil
		})
	}
	_ = g.Wait()

	out := make([]Evaluation, 0, len(results))
	for _, e := range results {
		if e != nil {
			out = append(out, *e)
		}
	}

	v.logger.Debug().
		Str("category", p.Category).
		Int("candidates", len(candidates)).
		Int("shortlisted", len(short)).
		Int("evaluated", len(out)).
		Msg("candidate verification complete")

	return out
}

func (v *Verifier) evaluateOne(ctx context.Context, rc RouteContext, p Profile, s shortlisted) *Evaluation {
	dctx, cancel := context.WithTimeout(ctx, v.cfg.DetailTimeout)
	d, err := v.places.GetDetails(dctx, s.candidate.PlaceID)
	cancel()
	if err != nil {
		v.logger.Warn().
			Err(err).
			Str("place_id", s.candidate.PlaceID).
			Msg("detail fetch failed, excluding candidate")
		return nil
	}
	fillFromCandidate(d, &s.candidate)

	signal := MatchDetails(d, p)
	if signal == MatchNone {
		v.logger.Debug().
			Str("place_id", d.PlaceID).
			Str("category", p.Category).
			Msg("candidate failed category confirmation")
		return nil
	}

	proj := s.proj
	if d.Location != s.candidate.Location {
		proj = geo.Project(d.Location, rc.Path)
	}

	detour, estimated := v.estimateDetour(ctx, rc, p, d.Location, proj.DistanceMiles)
	verified, cautions := ExtractAttributes(p.Attributes, d)

	return &Evaluation{
		Details:         d,
		Signal:          signal,
		OffRouteMiles:   proj.DistanceMiles,
		AlongMiles:      proj.AlongMiles,
		Progress:        progress(proj.AlongMiles, rc.TotalMiles),
		DetourMinutes:   detour,
		DetourEstimated: estimated,
		Verified:        verified,
		Cautions:        cautions,
	}
}

// estimateDetour returns the added minutes and whether the value is the proxy.
// Only candidates whose proxy is within the gate cost a directions call.
func (v *Verifier) estimateDetour(ctx context.Context, rc RouteContext, p Profile, loc Coordinate, offRouteMiles float64) (float64, bool) {
	proxy := offRouteMiles / v.cfg.AverageSpeedMph * 60 * 2
	if v.directions == nil || rc.BaselineSeconds <= 0 || proxy > p.MaxDetourMinutes*v.cfg.ProxyGateMultiplier {
		return proxy, true
	}

	dctx, cancel := context.WithTimeout(ctx, v.cfg.DetourTimeout)
	defer cancel()

	route, err := v.directions.GetRoute(dctx, routing.DirectionsRequest{
		Origin:      rc.Origin,
		Destination: rc.Destination,
		Waypoints:   []Coordinate{loc},
		AvoidTolls:  rc.AvoidTolls,
		PreferFast:  rc.PreferFast,
	})
	if err != nil {
		v.logger.Debug().Err(err).Msg("detour lookup failed, using estimate")
		return proxy, true
	}

	return max(0, float64(route.DurationSeconds()-rc.BaselineSeconds)/60), false
}

// Select filters evaluations against the profile's limits and returns the top
// stops. The relaxed pass scales both budgets and lowers the rating floor.
func (v *Verifier) Select(evals []Evaluation, p Profile, rc RouteContext, relaxed bool) []Stop {
	budget := Budget{MaxDetourMinutes: p.MaxDetourMinutes, MaxOffRouteMiles: p.MaxOffRouteMiles}
	floor := p.MinRating
	if relaxed {
		budget = budget.Scale(v.cfg.RelaxationMultiplier)
		floor -= v.cfg.RatingRelaxStep
	}

	var out []Stop
	for i := range evals {
		e := &evals[i]
		if e.Details.Rating < floor || !budget.Allows(e.DetourMinutes, e.OffRouteMiles) {
			continue
		}

		in := ScoreInput{
			Rating:        e.Details.Rating,
			Reviews:       e.Details.ReviewCount,
			DetourMinutes: e.DetourMinutes,
			OffRouteMiles: e.OffRouteMiles,
			ProfileMatch:  e.Signal.ProfileMatch(),
			Progress:      e.Progress,
		}
		if rc.Fuel != nil && rc.Fuel.Required {
			dev := math.Abs(e.AlongMiles - rc.Fuel.TargetMiles)
			in.FuelDeviationMiles = &dev
		}

		s := e.toStop(p)
		s.Score = v.cfg.Weights.Score(in)
		s.Relaxed = relaxed
		s.Justification = Justify(&s)
		out = append(out, s)
	}

	rank(out)
	if p.MaxResults > 0 && len(out) > p.MaxResults {
		out = out[:p.MaxResults]
	}
	return out
}

func (e *Evaluation) toStop(p Profile) Stop {
	d := e.Details
	return Stop{
		PlaceID:               d.PlaceID,
		Name:                  d.Name,
		Location:              d.Location,
		Address:               firstNonEmpty(d.FormattedAddress, d.Address),
		Category:              p.Category,
		Label:                 p.Label,
		Rating:                d.Rating,
		ReviewCount:           d.ReviewCount,
		PriceLevel:            d.PriceLevel,
		OpenNow:               d.OpenNow,
		DistanceOffRouteMiles: round2(e.OffRouteMiles),
		DetourMinutes:         round2(e.DetourMinutes),
		DetourEstimated:       e.DetourEstimated,
		AlongRouteMiles:       round2(e.AlongMiles),
		Progress:              round2(e.Progress),
		MatchSignal:           e.Signal,
		VerifiedAttributes:    e.Verified,
		Cautions:              e.Cautions,
	}
}

// fillFromCandidate backfills fields a detail response may omit.
func fillFromCandidate(d *places.Details, c *places.Candidate) {
	if d.PlaceID == "" {
		d.PlaceID = c.PlaceID
	}
	if d.Name == "" {
		d.Name = c.Name
	}
	if d.Location == (Coordinate{}) {
		d.Location = c.Location
	}
	if d.Rating == 0 {
		d.Rating = c.Rating
	}
	if d.ReviewCount == 0 {
		d.ReviewCount = c.ReviewCount
	}
	if len(d.Types) == 0 {
		d.Types = c.Types
	}
	if d.OpenNow == nil {
		d.OpenNow = c.OpenNow
	}
	if d.Address == "" {
		d.Address = c.Address
	}
}

func progress(along, total float64) float64 {
	if total <= 0 {
		return 0
	}
	return max(0, min(1, along/total))
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}
