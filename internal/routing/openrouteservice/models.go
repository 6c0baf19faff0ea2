package openrouteservice

// orsRequest represents the ORS directions API request body.
type orsRequest struct {
	Coordinates  [][]float64 `json:"coordinates"`
	Preference   string      `json:"preference,omitempty"`
	Instructions bool        `json:"instructions"`
	Geometry     bool        `json:"geometry"`
	Units        string      `json:"units"`
	Language     string      `json:"language"`
	Options      *orsOptions `json:"options,omitempty"`
}

// orsOptions carries routing restrictions.
type orsOptions struct {
	AvoidFeatures []string `json:"avoid_features,omitempty"`
}

// orsResponse represents the ORS directions API response.
type orsResponse struct {
	Routes []orsRoute `json:"routes"`
	BBox   []float64  `json:"bbox,omitempty"`
}

// orsRoute represents a single route in the ORS response.
type orsRoute struct {
	Summary   routeSummary   `json:"summary"`
	Segments  []routeSegment `json:"segments,omitempty"`
	Geometry  string         `json:"geometry"`
	WayPoints []int          `json:"way_points,omitempty"`
	Warnings  []routeWarning `json:"warnings,omitempty"`
}

// routeSummary contains summary information for a route.
type routeSummary struct {
	Distance float64 `json:"distance"` // meters
	Duration float64 `json:"duration"` // seconds
}

// routeSegment is the part of the route between two input coordinates.
type routeSegment struct {
	Distance float64     `json:"distance"`
	Duration float64     `json:"duration"`
	Steps    []routeStep `json:"steps,omitempty"`
}

// routeStep represents a single maneuver in a segment.
type routeStep struct {
	Distance    float64 `json:"distance"`
	Duration    float64 `json:"duration"`
	Type        int     `json:"type"`
	Instruction string  `json:"instruction"`
	Name        string  `json:"name"`
	WayPoints   []int   `json:"way_points,omitempty"`
}

// routeWarning represents a warning for the entire route.
type routeWarning struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// orsErrorResponse represents an error response from ORS.
type orsErrorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// ORS error codes for error mapping.
const (
	orsErrorCodeInvalidValue  = 2003 // Invalid parameter value
	orsErrorCodeExceedsLimit  = 2004 // Route distance or waypoint count over the server limit
	orsErrorCodeRouteNotFound = 2009 // No route between the points
	orsErrorCodePointNotFound = 2010 // No routable point near a coordinate
)
