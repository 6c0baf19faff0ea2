package stops

import (
	"fmt"
	"strings"
)

// Selection is the result of choosing stops for one category.
type Selection struct {
	Stops     []Stop
	Relaxed   bool
	Exhausted bool
	Note      string
}

// SelectWithRelaxation applies the strict limits and, when nothing qualifies but
// candidates were evaluated, retries once over the same evaluations with the
// relaxed limits. No provider calls are made here.
func (v *Verifier) SelectWithRelaxation(evals []Evaluation, p Profile, rc RouteContext) Selection {
	label := strings.ToLower(p.Label)

	if len(evals) == 0 {
		return Selection{
			Exhausted: true,
			Note:      fmt.Sprintf("No %s options were found along this route.", label),
		}
	}

	if strict := v.Select(evals, p, rc, false); len(strict) > 0 {
		return Selection{Stops: strict}
	}

	relaxed := v.Select(evals, p, rc, true)
	if len(relaxed) == 0 {
		return Selection{
			Exhausted: true,
			Note:      fmt.Sprintf("No %s stops met the quality and detour limits along this route, even after relaxing them.", label),
		}
	}

	budget := Budget{MaxDetourMinutes: p.MaxDetourMinutes, MaxOffRouteMiles: p.MaxOffRouteMiles}.Scale(v.cfg.RelaxationMultiplier)
	return Selection{
		Stops:   relaxed,
		Relaxed: true,
		Note: fmt.Sprintf("Relaxed limits for %s to up to %.0f minutes of detour or %.1f miles off route, and a %.1f minimum rating.",
			label, budget.MaxDetourMinutes, budget.MaxOffRouteMiles, p.MinRating-v.cfg.RatingRelaxStep),
	}
}
