// Package coverage models practice service areas as approximate circles and
// detects pairwise overlap between them. The equirectangular approximation
// degrades near the poles and across the antimeridian; service areas there
// are out of scope.
package coverage

import "math"

const (
	earthRadiusMiles = 3958.8
	milesPerDegLat   = 69.172

	// DefaultPolygonPoints is the vertex count used when rendering a
	// service circle.
	DefaultPolygonPoints = 64
)

// Point is a (lat, lng) pair in degrees.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Circle is a service area: a center plus a radius in miles.
type Circle struct {
	Center      Point
	RadiusMiles float64
}

// DistanceMiles returns the great-circle distance between two points.
func DistanceMiles(a, b Point) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLng := (b.Lng - a.Lng) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return earthRadiusMiles * 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// Polygon approximates the circle as an n-point ring. The longitude step is
// scaled by cos(latitude) so the ring stays circular away from the equator
// despite meridian convergence.
func (c Circle) Polygon(n int) []Point {
	if n < 3 {
		n = DefaultPolygonPoints
	}

	latDelta := c.RadiusMiles / milesPerDegLat
	lngDelta := latDelta
	if cosLat := math.Cos(c.Center.Lat * math.Pi / 180); cosLat > 1e-9 {
		lngDelta = latDelta / cosLat
	}

	ring := make([]Point, n)
	for i := 0; i < n; i++ {
		theta := 2 * math.Pi * float64(i) / float64(n)
		ring[i] = Point{
			Lat: c.Center.Lat + latDelta*math.Sin(theta),
			Lng: c.Center.Lng + lngDelta*math.Cos(theta),
		}
	}
	return ring
}

// Intersects reports whether the two service circles overlap. For circles
// the polygon intersection test reduces to comparing the center distance
// with the radius sum.
func (c Circle) Intersects(other Circle) bool {
	return DistanceMiles(c.Center, other.Center) < c.RadiusMiles+other.RadiusMiles
}
