// Package geo measures how points relate to a route path: how far off the path they
// are, how far along it they project, and where a given distance along it lies.
//
// Closest-segment selection uses a local planar approximation. Every distance that is
// reported is a haversine great-circle value.
package geo

import (
	"math"

	"github.com/golang/geo/s2"

	"github.com/roadtripper/roadtripper/pkg/polyline"
)

// Earth radii for the spherical approximation.
const (
	EarthRadiusMiles  = 3959.0
	EarthRadiusMeters = 6371000.0

	// MetersPerMile converts provider distances.
	MetersPerMile = 1609.344
)

// Coordinate is re-exported so callers need only one geometry import.
type Coordinate = polyline.Coordinate

// Projection describes where a point lands on a path.
type Projection struct {
	// DistanceMiles is the great-circle distance from the point to the path.
	DistanceMiles float64

	// AlongMiles is the cumulative distance from the path start to the projected point.
	AlongMiles float64

	// SegmentIndex is the index of the segment start vertex the point projected onto.
	SegmentIndex int

	// Point is the projected location on the path.
	Point Coordinate
}

// HaversineMiles returns the great-circle distance between two points in miles.
func HaversineMiles(a, b Coordinate) float64 {
	return angle(a, b) * EarthRadiusMiles
}

// HaversineMeters returns the great-circle distance between two points in meters.
func HaversineMeters(a, b Coordinate) float64 {
	return angle(a, b) * EarthRadiusMeters
}

func angle(a, b Coordinate) float64 {
	return s2.LatLngFromDegrees(a.Lat, a.Lng).Distance(s2.LatLngFromDegrees(b.Lat, b.Lng)).Radians()
}

// ClosestPoint projects p onto the segment a-b and returns the closest point together
// with its segment parameter t in [0,1]. The projection is planar, with longitude scaled
// by the cosine of the segment's mean latitude.
func ClosestPoint(p, a, b Coordinate) (Coordinate, float64) {
	scale := math.Cos((a.Lat + b.Lat) / 2 * math.Pi / 180)

	dx := (b.Lng - a.Lng) * scale
	dy := b.Lat - a.Lat
	lengthSq := dx*dx + dy*dy
	if lengthSq == 0 {
		return a, 0
	}

	px := (p.Lng - a.Lng) * scale
	py := p.Lat - a.Lat
	t := (px*dx + py*dy) / lengthSq
	t = math.Max(0, math.Min(1, t))

	return Coordinate{
		Lat: a.Lat + t*(b.Lat-a.Lat),
		Lng: a.Lng + t*(b.Lng-a.Lng),
	}, t
}

// Project finds the closest point on path to p. An empty path yields an infinite
// distance; a single-vertex path projects onto that vertex.
func Project(p Coordinate, path []Coordinate) Projection {
	switch len(path) {
	case 0:
		return Projection{DistanceMiles: math.Inf(1)}
	case 1:
		return Projection{DistanceMiles: HaversineMiles(p, path[0]), Point: path[0]}
	}

	best := Projection{DistanceMiles: math.Inf(1)}
	travelled := 0.0

	for i := 0; i < len(path)-1; i++ {
		a, b := path[i], path[i+1]
		segment := HaversineMiles(a, b)
		closest, _ := ClosestPoint(p, a, b)

		// The planar pick can lose to an endpoint on long segments at high latitude.
		for _, c := range [...]Coordinate{closest, a, b} {
			if d := HaversineMiles(p, c); d < best.DistanceMiles {
				best = Projection{
					DistanceMiles: d,
					AlongMiles:    travelled + math.Min(HaversineMiles(a, c), segment),
					SegmentIndex:  i,
					Point:         c,
				}
			}
		}
		travelled += segment
	}

	return best
}

// DistanceToPath returns the minimum great-circle distance in miles from p to path.
func DistanceToPath(p Coordinate, path []Coordinate) float64 {
	return Project(p, path).DistanceMiles
}

// DistanceAlongRoute returns the cumulative miles from the path start to p's projection.
func DistanceAlongRoute(p Coordinate, path []Coordinate) float64 {
	return Project(p, path).AlongMiles
}

// ProgressAlongRoute returns p's fractional progress along path in [0,1].
// When totalMiles is not positive the path's own length is used.
func ProgressAlongRoute(p Coordinate, path []Coordinate, totalMiles float64) float64 {
	if totalMiles <= 0 {
		totalMiles = PathLengthMiles(path)
	}
	if totalMiles <= 0 {
		return 0
	}
	return clamp01(Project(p, path).AlongMiles / totalMiles)
}

// PathLengthMiles returns the great-circle length of path in miles.
func PathLengthMiles(path []Coordinate) float64 {
	var total float64
	for i := 1; i < len(path); i++ {
		total += HaversineMiles(path[i-1], path[i])
	}
	return total
}

// PointAtDistance returns the point reached after travelling miles along path.
// Distances beyond either end are clamped to the endpoints.
func PointAtDistance(path []Coordinate, miles float64) Coordinate {
	if len(path) == 0 {
		return Coordinate{}
	}
	if miles <= 0 {
		return path[0]
	}

	remaining := miles
	for i := 1; i < len(path); i++ {
		segment := HaversineMiles(path[i-1], path[i])
		if segment > 0 && remaining <= segment {
			f := remaining / segment
			return Coordinate{
				Lat: path[i-1].Lat + f*(path[i].Lat-path[i-1].Lat),
				Lng: path[i-1].Lng + f*(path[i].Lng-path[i-1].Lng),
			}
		}
		remaining -= segment
	}
	return path[len(path)-1]
}

// PointAtFraction returns the point at fraction f of the path's length.
func PointAtFraction(path []Coordinate, f float64) Coordinate {
	return PointAtDistance(path, clamp01(f)*PathLengthMiles(path))
}

// ValidCoordinate reports whether c lies within valid latitude/longitude ranges.
func ValidCoordinate(c Coordinate) bool {
	return c.Lat >= -90 && c.Lat <= 90 && c.Lng >= -180 && c.Lng <= 180 &&
		!math.IsNaN(c.Lat) && !math.IsNaN(c.Lng)
}

func clamp01(f float64) float64 {
	return math.Max(0, math.Min(1, f))
}
