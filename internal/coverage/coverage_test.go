package coverage

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDistanceMiles(t *testing.T) {
	// One degree of latitude is about 69 miles.
	d := DistanceMiles(Point{40.0, -75.0}, Point{41.0, -75.0})
	assert.InDelta(t, 69.1, d, 0.5)

	// Practices 0.05 degrees of latitude apart are roughly 3.5 miles apart.
	d = DistanceMiles(Point{40.0, -75.0}, Point{40.05, -75.0})
	assert.InDelta(t, 3.46, d, 0.1)

	assert.Zero(t, DistanceMiles(Point{40.0, -75.0}, Point{40.0, -75.0}))
}

func TestIntersects(t *testing.T) {
	a := Circle{Center: Point{40.0, -75.0}, RadiusMiles: 10}
	b := Circle{Center: Point{40.05, -75.0}, RadiusMiles: 10}
	assert.True(t, a.Intersects(b), "centers ~3.5mi apart with 10mi radii overlap")

	// ~50 miles north: well outside the combined radii.
	c := Circle{Center: Point{40.72, -75.0}, RadiusMiles: 10}
	assert.False(t, a.Intersects(c))

	// Circles whose radii sum to exactly the center distance only touch.
	gap := DistanceMiles(a.Center, b.Center)
	touchingA := Circle{Center: a.Center, RadiusMiles: gap / 2}
	touchingB := Circle{Center: b.Center, RadiusMiles: gap / 2}
	assert.False(t, touchingA.Intersects(touchingB))
}

func TestPolygonShape(t *testing.T) {
	c := Circle{Center: Point{40.0, -75.0}, RadiusMiles: 10}
	ring := c.Polygon(64)
	require.Len(t, ring, 64)

	// Every vertex should be close to the radius from the center.
	for _, p := range ring {
		d := DistanceMiles(c.Center, p)
		assert.InDelta(t, 10, d, 0.15, "vertex (%f,%f)", p.Lat, p.Lng)
	}
}

func TestPolygonLongitudeScaling(t *testing.T) {
	// At 60N, cos(lat)=0.5, so the longitude extent doubles the latitude
	// extent in degrees while staying circular in miles.
	c := Circle{Center: Point{60.0, 10.0}, RadiusMiles: 10}
	ring := c.Polygon(4)

	latExtent := math.Abs(ring[1].Lat - ring[3].Lat)
	lngExtent := math.Abs(ring[0].Lng - ring[2].Lng)
	assert.InDelta(t, 2.0, lngExtent/latExtent, 0.05)
}

func TestPolygonDefaultsSmallN(t *testing.T) {
	c := Circle{Center: Point{40.0, -75.0}, RadiusMiles: 5}
	assert.Len(t, c.Polygon(2), DefaultPolygonPoints)
}
