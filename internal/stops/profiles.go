package stops

import (
	"fmt"
	"sort"
	"strings"
)

// Maximum search radius accepted by the places provider.
const maxRadiusMeters = 50000

// Profile describes how to find and judge stops of one category.
type Profile struct {
	Category string `json:"category"`
	Label    string `json:"label"`

	// Loose matching signals. A candidate matches if any one hits.
	PrimaryTypes   []string `json:"primaryTypes,omitempty"`
	FallbackTypes  []string `json:"fallbackTypes,omitempty"`
	NameKeywords   []string `json:"nameKeywords,omitempty"`
	ReviewKeywords []string `json:"reviewKeywords,omitempty"`

	// Nearby search parameters.
	SearchType    string `json:"searchType,omitempty"`
	SearchKeyword string `json:"searchKeyword,omitempty"`
	RadiusMeters  int    `json:"radiusMeters"`

	// Quality and budget thresholds.
	MinRating        float64 `json:"minRating"`
	MinReviews       int     `json:"minReviews"`
	PriceLevelMax    int     `json:"priceLevelMax,omitempty"`
	MaxDetourMinutes float64 `json:"maxDetourMinutes"`
	MaxOffRouteMiles float64 `json:"maxOffRouteMiles"`
	MaxResults       int     `json:"maxResults"`

	Attributes []AttributeRule `json:"attributes,omitempty"`

	// Custom is set for profiles built from a user-defined stop.
	Custom bool `json:"custom,omitempty"`
}

// AttributeRule maps review phrases to a user-facing attribute.
type AttributeRule struct {
	Label    string   `json:"label"`
	Phrases  []string `json:"phrases"`
	Negative bool     `json:"negative,omitempty"`
}

// CategoryFilter overrides profile thresholds for one request.
type CategoryFilter struct {
	MinRating        *float64 `json:"minRating,omitempty" validate:"omitempty,gte=0,lte=5"`
	MinReviews       *int     `json:"minReviews,omitempty" validate:"omitempty,gte=0"`
	MaxDetourMinutes *float64 `json:"maxDetourMinutes,omitempty" validate:"omitempty,gt=0,lte=120"`
	MaxOffRouteMiles *float64 `json:"maxOffRouteMiles,omitempty" validate:"omitempty,gt=0,lte=50"`
	MaxResults       *int     `json:"maxResults,omitempty" validate:"omitempty,gte=1,lte=3"`
	PriceLevelMax    *int     `json:"priceLevelMax,omitempty" validate:"omitempty,gte=1,lte=4"`
	Cuisine          string   `json:"cuisine,omitempty" validate:"omitempty,max=40"`
}

// CustomStop is a user-defined stop category.
type CustomStop struct {
	ID        string `json:"id" validate:"required,max=40"`
	Label     string `json:"label" validate:"required,max=80"`
	Keyword   string `json:"keyword" validate:"required,max=80"`
	PlaceType string `json:"placeType,omitempty" validate:"omitempty,max=60"`
}

// ProfileSet is an immutable set of category profiles. Lookups return copies.
type ProfileSet struct {
	profiles map[string]Profile
}

// NewProfileSet builds a set from the given profiles. Later entries replace
// earlier ones with the same category.
func NewProfileSet(profiles ...Profile) *ProfileSet {
	s := &ProfileSet{profiles: make(map[string]Profile, len(profiles))}
	for _, p := range profiles {
		s.profiles[p.Category] = p.clone()
	}
	return s
}

// Get returns a copy of the profile for category.
func (s *ProfileSet) Get(category string) (Profile, bool) {
	p, ok := s.profiles[category]
	if !ok {
		return Profile{}, false
	}
	return p.clone(), true
}

// Categories returns the known categories in sorted order.
func (s *ProfileSet) Categories() []string {
	out := make([]string, 0, len(s.profiles))
	for k := range s.profiles {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Resolve returns the effective profile for category with filter applied.
func (s *ProfileSet) Resolve(category string, filter *CategoryFilter) (Profile, error) {
	p, ok := s.Get(category)
	if !ok {
		return Profile{}, fmt.Errorf("%w: %s", ErrUnknownCategory, category)
	}
	return p.withFilter(filter), nil
}

// CustomProfile builds an ad hoc profile for a user-defined stop.
func CustomProfile(cs CustomStop, filter *CategoryFilter) Profile {
	keyword := strings.ToLower(strings.TrimSpace(cs.Keyword))
	p := Profile{
		Category:         cs.ID,
		Label:            cs.Label,
		NameKeywords:     nonEmpty(keyword, strings.ToLower(cs.Label)),
		ReviewKeywords:   nonEmpty(keyword),
		SearchType:       cs.PlaceType,
		SearchKeyword:    cs.Keyword,
		RadiusMeters:     5000,
		MinRating:        4.0,
		MinReviews:       20,
		MaxDetourMinutes: 15,
		MaxOffRouteMiles: 3,
		MaxResults:       3,
		Custom:           true,
	}
	if cs.PlaceType != "" {
		p.PrimaryTypes = []string{cs.PlaceType}
	}
	return p.withFilter(filter)
}

func (p Profile) withFilter(f *CategoryFilter) Profile {
	if f == nil {
		return p
	}
	if f.MinRating != nil {
		p.MinRating = *f.MinRating
	}
	if f.MinReviews != nil {
		p.MinReviews = *f.MinReviews
	}
	if f.MaxDetourMinutes != nil {
		p.MaxDetourMinutes = *f.MaxDetourMinutes
	}
	if f.MaxOffRouteMiles != nil {
		p.MaxOffRouteMiles = *f.MaxOffRouteMiles
	}
	if f.MaxResults != nil {
		p.MaxResults = clampInt(*f.MaxResults, 1, 3)
	}
	if f.PriceLevelMax != nil {
		p.PriceLevelMax = *f.PriceLevelMax
	}
	if cuisine := strings.ToLower(strings.TrimSpace(f.Cuisine)); cuisine != "" {
		// specific cuisines are sparse along a route
		p.SearchKeyword = cuisine
		p.NameKeywords = append([]string{cuisine}, p.NameKeywords...)
		p.ReviewKeywords = append([]string{cuisine}, p.ReviewKeywords...)
		p.RadiusMeters = min(p.RadiusMeters*2, maxRadiusMeters)
		p.Label = titleCase(cuisine) + " " + strings.ToLower(p.Label)
	}
	return p
}

func (p Profile) clone() Profile {
	out := p
	out.PrimaryTypes = append([]string(nil), p.PrimaryTypes...)
	out.FallbackTypes = append([]string(nil), p.FallbackTypes...)
	out.NameKeywords = append([]string(nil), p.NameKeywords...)
	out.ReviewKeywords = append([]string(nil), p.ReviewKeywords...)
	out.Attributes = make([]AttributeRule, len(p.Attributes))
	for i, a := range p.Attributes {
		a.Phrases = append([]string(nil), a.Phrases...)
		out.Attributes[i] = a
	}
	return out
}

// DefaultProfiles returns the built-in category profiles.
func DefaultProfiles() *ProfileSet {
	cleanRestrooms := AttributeRule{Label: "clean restrooms", Phrases: []string{"clean restroom", "clean bathroom", "restrooms were clean", "bathrooms were clean", "restrooms are clean", "bathrooms are clean"}}
	dirtyRestrooms := AttributeRule{Label: "restroom cleanliness complaints", Phrases: []string{"dirty restroom", "dirty bathroom", "filthy", "gross bathroom"}, Negative: true}
	allHours := AttributeRule{Label: "24/7 operation", Phrases: []string{"24/7", "24 hours", "open all night", "always open"}}
	parking := AttributeRule{Label: "easy parking", Phrases: []string{"easy parking", "plenty of parking", "free parking", "big parking lot", "rv parking", "trailer parking"}}
	tightParking := AttributeRule{Label: "limited parking", Phrases: []string{"limited parking", "hard to park", "no parking", "tiny parking lot"}, Negative: true}

	return NewProfileSet(
		Profile{
			Category:         "gas",
			Label:            "Gas station",
			PrimaryTypes:     []string{"gas_station"},
			FallbackTypes:    []string{"convenience_store", "truck_stop"},
			NameKeywords:     []string{"gas", "fuel", "petro", "shell", "chevron", "exxon", "arco", "texaco", "mobil", "valero", "sinclair", "love's", "pilot", "flying j"},
			ReviewKeywords:   []string{"gas", "fuel", "pump", "diesel"},
			SearchType:       "gas_station",
			RadiusMeters:     3000,
			MinRating:        3.5,
			MinReviews:       20,
			MaxDetourMinutes: 10,
			MaxOffRouteMiles: 2,
			MaxResults:       1,
			Attributes: []AttributeRule{
				allHours,
				cleanRestrooms,
				{Label: "diesel available", Phrases: []string{"diesel"}},
				{Label: "good prices", Phrases: []string{"cheap gas", "good prices", "best price", "cheapest gas"}},
				dirtyRestrooms,
				{Label: "pump problems reported", Phrases: []string{"pump was broken", "pumps were broken", "pump not working", "out of order"}, Negative: true},
			},
		},
		Profile{
			Category:         "restaurant",
			Label:            "Restaurant",
			PrimaryTypes:     []string{"restaurant"},
			FallbackTypes:    []string{"meal_takeaway", "meal_delivery", "food", "bar"},
			NameKeywords:     []string{"restaurant", "grill", "diner", "kitchen", "bistro", "eatery", "bbq", "pizza", "taqueria", "cafe"},
			ReviewKeywords:   []string{"food", "meal", "dinner", "lunch", "breakfast", "menu", "delicious"},
			SearchType:       "restaurant",
			RadiusMeters:     5000,
			MinRating:        4.0,
			MinReviews:       50,
			MaxDetourMinutes: 15,
			MaxOffRouteMiles: 3,
			MaxResults:       3,
			Attributes: []AttributeRule{
				{Label: "vegetarian options", Phrases: []string{"vegetarian", "vegan", "plant-based", "plant based"}},
				{Label: "gluten-free options", Phrases: []string{"gluten-free", "gluten free", "celiac"}},
				{Label: "family friendly", Phrases: []string{"kid friendly", "kid-friendly", "kids menu", "family friendly", "great for kids"}},
				{Label: "fast service", Phrases: []string{"quick service", "fast service", "food came out fast", "food came out quick"}},
				{Label: "outdoor seating", Phrases: []string{"patio", "outdoor seating"}},
				{Label: "slow service reported", Phrases: []string{"slow service", "waited forever", "took forever", "long wait"}, Negative: true},
			},
		},
		Profile{
			Category:         "coffee",
			Label:            "Coffee",
			PrimaryTypes:     []string{"cafe"},
			FallbackTypes:    []string{"bakery"},
			NameKeywords:     []string{"coffee", "espresso", "cafe", "roasters", "roastery", "starbucks", "dutch bros"},
			ReviewKeywords:   []string{"coffee", "latte", "espresso", "cappuccino"},
			SearchType:       "cafe",
			SearchKeyword:    "coffee",
			RadiusMeters:     3000,
			MinRating:        4.0,
			MinReviews:       30,
			MaxDetourMinutes: 10,
			MaxOffRouteMiles: 2,
			MaxResults:       3,
			Attributes: []AttributeRule{
				{Label: "drive-thru", Phrases: []string{"drive-thru", "drive thru", "drive through"}},
				{Label: "wifi", Phrases: []string{"wifi", "wi-fi"}},
				{Label: "fresh pastries", Phrases: []string{"pastries", "pastry", "croissant", "scones"}},
				cleanRestrooms,
			},
		},
		Profile{
			Category:         "scenic",
			Label:            "Scenic stop",
			PrimaryTypes:     []string{"tourist_attraction", "park", "natural_feature"},
			FallbackTypes:    []string{"campground", "museum", "rv_park"},
			NameKeywords:     []string{"vista", "overlook", "viewpoint", "scenic", "falls", "lake", "state park", "canyon", "beach", "point"},
			ReviewKeywords:   []string{"view", "views", "scenic", "beautiful", "overlook", "sunset"},
			SearchType:       "tourist_attraction",
			SearchKeyword:    "scenic viewpoint",
			RadiusMeters:     10000,
			MinRating:        4.3,
			MinReviews:       50,
			MaxDetourMinutes: 25,
			MaxOffRouteMiles: 5,
			MaxResults:       3,
			Attributes: []AttributeRule{
				parking,
				{Label: "short walk", Phrases: []string{"short walk", "easy walk", "paved path", "steps from the parking"}},
				{Label: "restrooms on site", Phrases: []string{"restrooms", "bathrooms", "vault toilet"}},
				{Label: "often crowded", Phrases: []string{"crowded", "packed", "busy on weekends"}, Negative: true},
				tightParking,
			},
		},
		Profile{
			Category:         "ev_charging",
			Label:            "EV charging",
			PrimaryTypes:     []string{"electric_vehicle_charging_station"},
			FallbackTypes:    []string{"parking", "gas_station"},
			NameKeywords:     []string{"charging", "charger", "supercharger", "electrify", "chargepoint", "evgo", "ev "},
			ReviewKeywords:   []string{"charger", "charging", "kw", "supercharger"},
			SearchKeyword:    "ev charging station",
			RadiusMeters:     5000,
			MinRating:        3.5,
			MinReviews:       10,
			MaxDetourMinutes: 10,
			MaxOffRouteMiles: 2,
			MaxResults:       3,
			Attributes: []AttributeRule{
				{Label: "fast charging", Phrases: []string{"dc fast", "fast charging", "150kw", "250kw", "350kw", "supercharger"}},
				{Label: "amenities nearby", Phrases: []string{"walk to", "next to a", "restaurants nearby", "grocery store next door"}},
				{Label: "broken chargers reported", Phrases: []string{"broken charger", "chargers were down", "out of service", "not working"}, Negative: true},
			},
		},
		Profile{
			Category:         "rest_area",
			Label:            "Rest area",
			FallbackTypes:    []string{"park", "campground", "rv_park"},
			NameKeywords:     []string{"rest area", "rest stop", "welcome center", "safety roadside"},
			ReviewKeywords:   []string{"rest area", "rest stop", "restroom", "picnic"},
			SearchKeyword:    "rest area",
			RadiusMeters:     5000,
			MinRating:        3.5,
			MinReviews:       10,
			MaxDetourMinutes: 8,
			MaxOffRouteMiles: 1.5,
			MaxResults:       3,
			Attributes: []AttributeRule{
				cleanRestrooms,
				{Label: "picnic tables", Phrases: []string{"picnic"}},
				{Label: "pet area", Phrases: []string{"pet area", "dog area", "dog walk", "dog run"}},
				dirtyRestrooms,
			},
		},
		Profile{
			Category:         "lodging",
			Label:            "Lodging",
			PrimaryTypes:     []string{"lodging"},
			FallbackTypes:    []string{"campground", "rv_park"},
			NameKeywords:     []string{"hotel", "motel", "inn", "lodge", "suites", "resort"},
			ReviewKeywords:   []string{"room", "stay", "bed", "check-in", "check in"},
			SearchType:       "lodging",
			RadiusMeters:     8000,
			MinRating:        4.0,
			MinReviews:       50,
			MaxDetourMinutes: 15,
			MaxOffRouteMiles: 3,
			MaxResults:       1,
			Attributes: []AttributeRule{
				{Label: "free breakfast", Phrases: []string{"free breakfast", "breakfast included", "complimentary breakfast"}},
				{Label: "pet friendly", Phrases: []string{"pet friendly", "pet-friendly", "dog friendly", "pets allowed"}},
				parking,
				{Label: "noise complaints", Phrases: []string{"noisy", "thin walls", "loud"}, Negative: true},
			},
		},
		Profile{
			Category:         "grocery",
			Label:            "Grocery",
			PrimaryTypes:     []string{"supermarket", "grocery_or_supermarket"},
			FallbackTypes:    []string{"convenience_store", "store"},
			NameKeywords:     []string{"market", "grocery", "foods", "safeway", "trader joe", "whole foods", "kroger", "raley"},
			ReviewKeywords:   []string{"grocery", "groceries", "produce", "deli"},
			SearchType:       "supermarket",
			RadiusMeters:     5000,
			MinRating:        4.0,
			MinReviews:       50,
			MaxDetourMinutes: 12,
			MaxOffRouteMiles: 2,
			MaxResults:       3,
			Attributes: []AttributeRule{
				{Label: "fresh produce", Phrases: []string{"fresh produce", "great produce", "good produce"}},
				{Label: "deli counter", Phrases: []string{"deli", "sandwich counter", "hot food"}},
				parking,
			},
		},
	)
}

func nonEmpty(values ...string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func clampInt(v, lo, hi int) int {
	return max(lo, min(v, hi))
}
