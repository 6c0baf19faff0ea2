// Package stops finds, verifies, and ranks points of interest along a route.
package stops

import (
	"errors"
	"strings"

	"github.com/roadtripper/roadtripper/internal/routing"
	"github.com/roadtripper/roadtripper/pkg/polyline"
)

var (
	// ErrUnknownCategory indicates a requested category has no profile.
	ErrUnknownCategory = errors.New("unknown stop category")

	// ErrCandidateSearch indicates every area search for a category failed.
	ErrCandidateSearch = errors.New("candidate search failed")

	// ErrMissingRoute indicates a stop search was requested without a route.
	ErrMissingRoute = errors.New("route is required for stop search")
)

// Coordinate is a geographic point.
type Coordinate = polyline.Coordinate

// MatchSignal records which signal confirmed a candidate's category.
type MatchSignal string

// Category match signals, strongest first.
const (
	MatchNone          MatchSignal = ""
	MatchPrimaryType   MatchSignal = "primary_type"
	MatchFallbackType  MatchSignal = "fallback_type"
	MatchName          MatchSignal = "name"
	MatchReviewKeyword MatchSignal = "review_keyword"
)

// ProfileMatch reports whether the signal came from the profile's type or name
// tables rather than review text alone.
func (m MatchSignal) ProfileMatch() bool {
	return m == MatchPrimaryType || m == MatchFallbackType || m == MatchName
}

// Stop is an accepted, enriched candidate.
type Stop struct {
	PlaceID     string     `json:"placeId"`
	Name        string     `json:"name"`
	Location    Coordinate `json:"location"`
	Address     string     `json:"address,omitempty"`
	Category    string     `json:"category"`
	Label       string     `json:"label"`
	Rating      float64    `json:"rating"`
	ReviewCount int        `json:"reviewCount"`
	PriceLevel  int        `json:"priceLevel,omitempty"`
	OpenNow     *bool      `json:"openNow,omitempty"`

	DistanceOffRouteMiles float64 `json:"distanceOffRouteMiles"`
	DetourMinutes         float64 `json:"detourMinutes"`
	DetourEstimated       bool    `json:"detourEstimated,omitempty"`
	AlongRouteMiles       float64 `json:"alongRouteMiles"`
	Progress              float64 `json:"progress"`

	Score              float64     `json:"score"`
	MatchSignal        MatchSignal `json:"matchSignal"`
	Justification      string      `json:"justification"`
	VerifiedAttributes []string    `json:"verifiedAttributes,omitempty"`
	Cautions           []string    `json:"cautions,omitempty"`
	Relaxed            bool        `json:"relaxed,omitempty"`
}

// FuelState is the vehicle's fuel situation at departure.
type FuelState struct {
	Level      float64 `json:"fuelLevel"`    // 0..1
	RangeMiles float64 `json:"vehicleRange"` // full-tank range
}

// FindRequest asks for stops along a route.
type FindRequest struct {
	Route       *routing.Route
	Categories  map[string]bool
	Filters     map[string]CategoryFilter
	CustomStops []CustomStop
	Fuel        *FuelState
	AvoidTolls  bool
	PreferFast  bool
}

// CategoryOutcome summarizes the search for one category.
type CategoryOutcome struct {
	Category  string `json:"category"`
	Label     string `json:"label"`
	Found     int    `json:"found"`
	Evaluated int    `json:"evaluated"`
	Relaxed   bool   `json:"relaxed,omitempty"`
	Exhausted bool   `json:"exhausted,omitempty"`
	Note      string `json:"note,omitempty"`
	Err       error  `json:"-"`
}

// FindResult is the outcome of a stop search.
type FindResult struct {
	Stops      []Stop            `json:"stops"`
	Notes      []string          `json:"notes,omitempty"`
	Categories []CategoryOutcome `json:"categories"`
}

// RelaxationNote joins the per-category notes into one user-facing string.
func (r *FindResult) RelaxationNote() string {
	return strings.Join(r.Notes, " ")
}
