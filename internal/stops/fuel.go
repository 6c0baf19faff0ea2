package stops

import (
	"github.com/roadtripper/roadtripper/internal/geo"
)

// FuelConfig holds configuration for fuel planning.
type FuelConfig struct {
	// Reserve is the fraction of full range kept in the tank (default 0.2).
	Reserve float64

	// ToleranceMiles is how far past the target a gas stop may sit (default 10).
	ToleranceMiles float64

	// SampleOffsets are the search points relative to the target, in miles
	// (default -20, -10, 0).
	SampleOffsets []float64
}

// DefaultFuelConfig returns the default fuel planning configuration.
func DefaultFuelConfig() FuelConfig {
	return FuelConfig{
		Reserve:        0.2,
		ToleranceMiles: 10,
		SampleOffsets:  []float64{-20, -10, 0},
	}
}

func (c FuelConfig) withDefaults() FuelConfig {
	def := DefaultFuelConfig()
	if c.Reserve <= 0 {
		c.Reserve = def.Reserve
	}
	if c.ToleranceMiles <= 0 {
		c.ToleranceMiles = def.ToleranceMiles
	}
	if len(c.SampleOffsets) == 0 {
		c.SampleOffsets = def.SampleOffsets
	}
	return c
}

// FuelPlan says where along the route the vehicle should refuel.
type FuelPlan struct {
	UsableMiles    float64 `json:"usableMiles"`
	TargetMiles    float64 `json:"targetMiles"`
	ToleranceMiles float64 `json:"toleranceMiles"`
	Required       bool    `json:"required"`
}

// PlanFuel computes the refuel target for a route. A stop is required when the
// range left above the reserve is shorter than the route.
func PlanFuel(state FuelState, routeMiles float64, cfg FuelConfig) FuelPlan {
	cfg = cfg.withDefaults()

	level := max(0, min(1, state.Level))
	usable := level*state.RangeMiles - cfg.Reserve*state.RangeMiles

	plan := FuelPlan{
		UsableMiles:    usable,
		ToleranceMiles: cfg.ToleranceMiles,
	}
	if state.RangeMiles <= 0 || usable >= routeMiles {
		return plan
	}

	plan.Required = true
	plan.TargetMiles = max(0, usable)
	return plan
}

// SamplePoints returns the points at the configured offsets from the target,
// clamped to the route and deduplicated.
func (p FuelPlan) SamplePoints(path []Coordinate, cfg FuelConfig) []Coordinate {
	cfg = cfg.withDefaults()
	total := geo.PathLengthMiles(path)

	var out []Coordinate
	seen := make(map[Coordinate]bool)
	for _, off := range cfg.SampleOffsets {
		d := max(0, min(total, p.TargetMiles+off))
		pt := geo.PointAtDistance(path, d)
		if seen[pt] {
			continue
		}
		seen[pt] = true
		out = append(out, pt)
	}
	return out
}
