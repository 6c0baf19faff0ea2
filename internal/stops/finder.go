package stops

import (
	"context"
	"fmt"
	"sort"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/roadtripper/roadtripper/internal/geo"
	"github.com/roadtripper/roadtripper/internal/places"
	"github.com/roadtripper/roadtripper/internal/routing"
)

const tracerName = "github.com/roadtripper/roadtripper/internal/stops"

// GasCategory is the category fuel planning applies to.
const GasCategory = "gas"

// FinderConfig holds configuration for the Finder.
type FinderConfig struct {
	// Places searches for and describes candidates (required).
	Places places.Provider

	// Directions prices detours. Wrap it in a routing.CachingProvider so repeat
	// lookups for the same candidate are served locally.
	Directions routing.Provider

	// Profiles defaults to DefaultProfiles().
	Profiles *ProfileSet

	Search SearchConfig
	Verify VerifyConfig
	Fuel   FuelConfig

	// Logger for finder operations.
	Logger zerolog.Logger
}

// Finder runs the search, verification, and relaxation pipeline per category.
type Finder struct {
	profiles *ProfileSet
	searcher *Searcher
	verifier *Verifier
	fuel     FuelConfig
	tracer   trace.Tracer
	logger   zerolog.Logger
}

// NewFinder creates a Finder.
func NewFinder(cfg FinderConfig) *Finder {
	profiles := cfg.Profiles
	if profiles == nil {
		profiles = DefaultProfiles()
	}
	cfg.Search.Logger = cfg.Logger
	cfg.Verify.Logger = cfg.Logger

	return &Finder{
		profiles: profiles,
		searcher: NewSearcher(cfg.Places, cfg.Search),
		verifier: NewVerifier(cfg.Places, cfg.Directions, cfg.Verify),
		fuel:     cfg.Fuel.withDefaults(),
		tracer:   otel.Tracer(tracerName),
		logger:   cfg.Logger,
	}
}

// Profiles returns the finder's profile set.
func (f *Finder) Profiles() *ProfileSet {
	return f.profiles
}

// Find searches every requested category against the route. Categories run in
// sorted order and a place accepted by an earlier category is not repeated. A
// failing category yields a note, never an error; only an unusable route fails
// the whole request.
func (f *Finder) Find(ctx context.Context, req FindRequest) (*FindResult, error) {
	ctx, span := f.tracer.Start(ctx, "stops.Find")
	defer span.End()

	if req.Route == nil {
		return nil, ErrMissingRoute
	}
	path, err := req.Route.Path()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "route polyline is malformed")
		return nil, fmt.Errorf("decoding route polyline: %w", err)
	}

	origin, _ := req.Route.Origin()
	destination, _ := req.Route.Destination()
	pathMiles := geo.PathLengthMiles(path)

	rc := RouteContext{
		Path:            path,
		TotalMiles:      pathMiles,
		Origin:          origin,
		Destination:     destination,
		BaselineSeconds: req.Route.DurationSeconds(),
		AvoidTolls:      req.AvoidTolls,
		PreferFast:      req.PreferFast,
	}

	profiles := f.requestedProfiles(req)
	span.SetAttributes(
		attribute.Int("stops.categories", len(profiles)),
		attribute.Float64("route.miles", pathMiles),
	)

	result := &FindResult{}
	seen := make(map[string]bool)

	for _, rp := range profiles {
		if rp.err != nil {
			result.Categories = append(result.Categories, CategoryOutcome{
				Category: rp.category,
				Label:    rp.category,
				Note:     fmt.Sprintf("Unknown stop type %q was skipped.", rp.category),
				Err:      rp.err,
			})
			result.Notes = append(result.Notes, fmt.Sprintf("Unknown stop type %q was skipped.", rp.category))
			continue
		}

		crc := rc
		var samples []Coordinate
		if rp.profile.Category == GasCategory && req.Fuel != nil {
			plan := f.fuelPlan(*req.Fuel, req.Route, pathMiles)
			if plan.Required {
				crc.Fuel = &plan
				samples = plan.SamplePoints(path, f.fuel)
			}
		}

		outcome, stops := f.findCategory(ctx, crc, rp.profile, samples)

		kept := stops[:0]
		for _, s := range stops {
			if seen[s.PlaceID] {
				continue
			}
			seen[s.PlaceID] = true
			kept = append(kept, s)
		}
		outcome.Found = len(kept)

		result.Stops = append(result.Stops, kept...)
		result.Categories = append(result.Categories, outcome)
		if outcome.Note != "" {
			result.Notes = append(result.Notes, outcome.Note)
		}
	}

	span.SetAttributes(attribute.Int("stops.found", len(result.Stops)))
	return result, nil
}

func (f *Finder) findCategory(ctx context.Context, rc RouteContext, p Profile, samples []Coordinate) (CategoryOutcome, []Stop) {
	ctx, span := f.tracer.Start(ctx, "stops.category", trace.WithAttributes(
		attribute.String("stops.category", p.Category),
		attribute.Bool("stops.fuel_target", rc.Fuel != nil),
	))
	defer span.End()

	outcome := CategoryOutcome{Category: p.Category, Label: p.Label}

	candidates, err := f.searcher.FindCandidates(ctx, rc.Path, p, samples)
	if err != nil {
		span.RecordError(err)
		f.logger.Warn().Err(err).Str("category", p.Category).Msg("stop search failed for category")
		outcome.Err = err
		outcome.Note = fmt.Sprintf("Couldn't search for %s right now.", p.Label)
		return outcome, nil
	}

	evals := f.verifier.Evaluate(ctx, rc, p, candidates)
	sel := f.verifier.SelectWithRelaxation(evals, p, rc)

	outcome.Evaluated = len(evals)
	outcome.Relaxed = sel.Relaxed
	outcome.Exhausted = sel.Exhausted
	outcome.Note = sel.Note

	span.SetAttributes(
		attribute.Int("stops.candidates", len(candidates)),
		attribute.Int("stops.evaluated", len(evals)),
		attribute.Int("stops.accepted", len(sel.Stops)),
		attribute.Bool("stops.relaxed", sel.Relaxed),
	)

	f.logger.Info().
		Str("category", p.Category).
		Int("candidates", len(candidates)).
		Int("evaluated", len(evals)).
		Int("accepted", len(sel.Stops)).
		Bool("relaxed", sel.Relaxed).
		Msg("category search complete")

	return outcome, sel.Stops
}

// fuelPlan computes the refuel target in path miles. The route's road distance
// decides whether a stop is needed; the target is scaled onto the polyline.
func (f *Finder) fuelPlan(state FuelState, route *routing.Route, pathMiles float64) FuelPlan {
	routeMiles := route.DistanceMiles()
	if routeMiles <= 0 {
		routeMiles = pathMiles
	}
	plan := PlanFuel(state, routeMiles, f.fuel)
	if plan.Required && routeMiles > 0 {
		plan.TargetMiles *= pathMiles / routeMiles
	}
	return plan
}

type requestedProfile struct {
	category string
	profile  Profile
	err      error
}

// requestedProfiles resolves requested categories and custom stops in sorted order.
func (f *Finder) requestedProfiles(req FindRequest) []requestedProfile {
	custom := make(map[string]CustomStop, len(req.CustomStops))
	for _, cs := range req.CustomStops {
		custom[cs.ID] = cs
	}

	keys := make(map[string]bool)
	for k, on := range req.Categories {
		if on {
			keys[k] = true
		}
	}
	for id := range custom {
		if on, ok := req.Categories[id]; !ok || on {
			keys[id] = true
		}
	}

	sorted := make([]string, 0, len(keys))
	for k := range keys {
		sorted = append(sorted, k)
	}
	sort.Strings(sorted)

	out := make([]requestedProfile, 0, len(sorted))
	for _, k := range sorted {
		var filter *CategoryFilter
		if fl, ok := req.Filters[k]; ok {
			filter = &fl
		}

		if cs, ok := custom[k]; ok {
			out = append(out, requestedProfile{category: k, profile: CustomProfile(cs, filter)})
			continue
		}
		p, err := f.profiles.Resolve(k, filter)
		out = append(out, requestedProfile{category: k, profile: p, err: err})
	}
	return out
}
