// Package polyline decodes and encodes route paths in Google's encoded polyline format.
// The format is documented at: https://developers.google.com/maps/documentation/utilities/polylinealgorithm
//
// Directions providers return overview geometry in this format, so decoding is treated
// as a wire contract: malformed input is rejected outright instead of yielding a
// shortened path.
package polyline

import (
	"errors"
	"fmt"

	"github.com/golang/geo/s2"
	gopolyline "github.com/twpayne/go-polyline"
)

// Predefined codec errors.
var (
	// ErrEmpty is returned when decoding an empty string.
	ErrEmpty = errors.New("polyline: empty input")

	// ErrMalformed is returned when the byte stream is truncated or contains bytes
	// outside the polyline alphabet.
	ErrMalformed = errors.New("polyline: malformed input")
)

const earthRadiusMeters = 6371000

// Coordinate is a geographic point in decimal degrees.
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Decode decodes an encoded polyline (precision 5) into its ordered coordinates.
func Decode(encoded string) ([]Coordinate, error) {
	if encoded == "" {
		return nil, ErrEmpty
	}

	raw, rest, err := gopolyline.DecodeCoords([]byte(encoded))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if len(rest) != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrMalformed, len(rest))
	}

	coords := make([]Coordinate, 0, len(raw))
	for i, c := range raw {
		if len(c) != 2 {
			return nil, fmt.Errorf("%w: coordinate %d has %d dimensions", ErrMalformed, i, len(c))
		}
		coords = append(coords, Coordinate{Lat: c[0], Lng: c[1]})
	}
	return coords, nil
}

// MustDecode is like Decode but panics on error. Intended for fixtures.
func MustDecode(encoded string) []Coordinate {
	coords, err := Decode(encoded)
	if err != nil {
		panic(err)
	}
	return coords
}

// Encode encodes coordinates into a polyline string (precision 5).
func Encode(coords []Coordinate) string {
	if len(coords) == 0 {
		return ""
	}

	raw := make([][]float64, len(coords))
	for i, c := range coords {
		raw[i] = []float64{c.Lat, c.Lng}
	}
	return string(gopolyline.EncodeCoords(raw))
}

// Length returns the great-circle length of the path in meters.
func Length(coords []Coordinate) float64 {
	var total float64
	for i := 1; i < len(coords); i++ {
		total += distanceMeters(coords[i-1], coords[i])
	}
	return total
}

// Sample returns coordinates spaced roughly intervalMeters apart along the path,
// always including the first and last coordinate.
func Sample(coords []Coordinate, intervalMeters float64) []Coordinate {
	if len(coords) == 0 {
		return nil
	}
	if intervalMeters <= 0 {
		return coords
	}

	sampled := []Coordinate{coords[0]}
	carried := 0.0

	for i := 1; i < len(coords); i++ {
		from, to := coords[i-1], coords[i]
		segment := distanceMeters(from, to)
		if segment == 0 {
			continue
		}

		// offset is measured from the start of this segment
		offset := intervalMeters - carried
		for offset <= segment {
			f := offset / segment
			sampled = append(sampled, Coordinate{
				Lat: from.Lat + f*(to.Lat-from.Lat),
				Lng: from.Lng + f*(to.Lng-from.Lng),
			})
			offset += intervalMeters
		}
		carried = segment - (offset - intervalMeters)
	}

	last := coords[len(coords)-1]
	if sampled[len(sampled)-1] != last {
		sampled = append(sampled, last)
	}
	return sampled
}

func distanceMeters(a, b Coordinate) float64 {
	pa := s2.LatLngFromDegrees(a.Lat, a.Lng)
	pb := s2.LatLngFromDegrees(b.Lat, b.Lng)
	return pa.Distance(pb).Radians() * earthRadiusMeters
}
