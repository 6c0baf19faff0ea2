package trip

import "github.com/roadtripper/roadtripper/internal/stops"

// MergePreferences applies an update to existing preferences and returns the
// result. Neither argument is modified.
//
//   - RequestedStops: union by category; a key present in the update wins.
//   - CustomStops: union by ID; an update with the same ID replaces the old entry
//     in place, new IDs are appended in update order.
//   - CategoryFilters: merged by category, then field by field; set fields in the
//     update overwrite.
//   - RestaurantPreferences: merged field by field.
//   - AvoidTolls, PreferFast: overwrite when set in the update.
//
// Merging the same update twice gives the same result as merging it once.
func MergePreferences(old, update Preferences) Preferences {
	out := old.Clone()

	if len(update.RequestedStops) > 0 && out.RequestedStops == nil {
		out.RequestedStops = make(map[string]bool, len(update.RequestedStops))
	}
	for k, v := range update.RequestedStops {
		out.RequestedStops[k] = v
	}

	for _, cs := range update.CustomStops {
		replaced := false
		for i := range out.CustomStops {
			if out.CustomStops[i].ID == cs.ID {
				out.CustomStops[i] = cs
				replaced = true
				break
			}
		}
		if !replaced {
			out.CustomStops = append(out.CustomStops, cs)
		}
	}
	if len(out.CustomStops) == 0 {
		out.CustomStops = nil
	}

	if len(update.CategoryFilters) > 0 && out.CategoryFilters == nil {
		out.CategoryFilters = make(map[string]stops.CategoryFilter, len(update.CategoryFilters))
	}
	for k, f := range update.CategoryFilters {
		out.CategoryFilters[k] = mergeFilter(out.CategoryFilters[k], f)
	}

	if rp := update.RestaurantPreferences; rp != nil {
		if out.RestaurantPreferences == nil {
			out.RestaurantPreferences = &RestaurantPreferences{}
		}
		if rp.Cuisine != "" {
			out.RestaurantPreferences.Cuisine = rp.Cuisine
		}
		if rp.MinRating != nil {
			out.RestaurantPreferences.MinRating = clonePtr(rp.MinRating)
		}
		if rp.PriceLevelMax != nil {
			out.RestaurantPreferences.PriceLevelMax = clonePtr(rp.PriceLevelMax)
		}
	}

	if update.AvoidTolls != nil {
		out.AvoidTolls = clonePtr(update.AvoidTolls)
	}
	if update.PreferFast != nil {
		out.PreferFast = clonePtr(update.PreferFast)
	}
	return out
}

func mergeFilter(old, update stops.CategoryFilter) stops.CategoryFilter {
	out := cloneFilter(old)
	if update.MinRating != nil {
		out.MinRating = clonePtr(update.MinRating)
	}
	if update.MinReviews != nil {
		out.MinReviews = clonePtr(update.MinReviews)
	}
	if update.MaxDetourMinutes != nil {
		out.MaxDetourMinutes = clonePtr(update.MaxDetourMinutes)
	}
	if update.MaxOffRouteMiles != nil {
		out.MaxOffRouteMiles = clonePtr(update.MaxOffRouteMiles)
	}
	if update.MaxResults != nil {
		out.MaxResults = clonePtr(update.MaxResults)
	}
	if update.PriceLevelMax != nil {
		out.PriceLevelMax = clonePtr(update.PriceLevelMax)
	}
	if update.Cuisine != "" {
		out.Cuisine = update.Cuisine
	}
	return out
}
