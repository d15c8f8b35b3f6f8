// Package geo implements the coordinate and distance primitives the route
// model and planner build on.
package geo

import (
	"math"
	"math/rand"
)

// Coordinate is a point in degrees, x=longitude, y=latitude.
//
// Equality is exact float equality: the simulation snaps positions to node
// coordinates on arrival, so two Coordinates produced from the same node are
// expected to compare bitwise equal.
type Coordinate struct {
	X float64 // longitude
	Y float64 // latitude
}

// Equal reports whether two coordinates are bitwise identical.
func (c Coordinate) Equal(o Coordinate) bool {
	return c.X == o.X && c.Y == o.Y
}

// Distance returns the Euclidean distance between two coordinates in the
// degree plane. This is frozen per spec: the map is assumed small enough
// that Euclidean and great-circle distance agree closely enough, and
// Euclidean keeps the planner and motion model deterministic and cheap.
func Distance(a, b Coordinate) float64 {
	dx := a.X - b.X
	dy := a.Y - b.Y
	return math.Sqrt(dx*dx + dy*dy)
}

// Bounds is a rectangular region over the map's coordinate space.
type Bounds struct {
	MinLon float64
	MaxLon float64
	MinLat float64
	MaxLat float64
}

// LatSpan returns MaxLat - MinLat.
func (b Bounds) LatSpan() float64 {
	return b.MaxLat - b.MinLat
}

// Random returns a coordinate drawn uniformly from the bounds.
func (b Bounds) Random(rng *rand.Rand) Coordinate {
	lonSpan := b.MaxLon - b.MinLon
	latSpan := b.MaxLat - b.MinLat
	return Coordinate{
		X: b.MinLon + rng.Float64()*lonSpan,
		Y: b.MinLat + rng.Float64()*latSpan,
	}
}

// BoundsFromCoordinates computes the smallest Bounds containing every
// coordinate. Returns the zero Bounds for an empty slice.
func BoundsFromCoordinates(coords []Coordinate) Bounds {
	if len(coords) == 0 {
		return Bounds{}
	}
	b := Bounds{
		MinLon: coords[0].X, MaxLon: coords[0].X,
		MinLat: coords[0].Y, MaxLat: coords[0].Y,
	}
	for _, c := range coords[1:] {
		if c.X < b.MinLon {
			b.MinLon = c.X
		}
		if c.X > b.MaxLon {
			b.MaxLon = c.X
		}
		if c.Y < b.MinLat {
			b.MinLat = c.Y
		}
		if c.Y > b.MaxLat {
			b.MaxLat = c.Y
		}
	}
	return b
}

// Bearing returns the angle in radians from a to b, suitable for stepping
// motion via (cos theta, sin theta) on the degree plane.
func Bearing(a, b Coordinate) float64 {
	return math.Atan2(b.Y-a.Y, b.X-a.X)
}

// RandomRGB returns a random opaque color, used for render-only passenger
// markers.
type RGB struct {
	R, G, B uint8
}

func RandomRGB(rng *rand.Rand) RGB {
	return RGB{
		R: uint8(rng.Intn(256)),
		G: uint8(rng.Intn(256)),
		B: uint8(rng.Intn(256)),
	}
}
