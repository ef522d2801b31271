package delaunay

import (
	"math"
	"testing"

	"panostitch/pkg/geometry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSquareWithCentre(t *testing.T) {
	points := []geometry.Point2D{
		{X: 0, Y: 0}, {X: 100, Y: 0}, {X: 0, Y: 100}, {X: 100, Y: 100},
		{X: 50, Y: 50},
	}
	tris := Triangulate(points)
	require.Len(t, tris, 4)
	for _, tri := range tris {
		assert.Contains(t, tri[:], 4)
		c, ok := Circumcircle(points[tri[0]], points[tri[1]], points[tri[2]])
		require.True(t, ok)
		for p, pt := range points {
			if p == tri[0] || p == tri[1] || p == tri[2] {
				continue
			}
			assert.GreaterOrEqual(t, pt.Distance(c.Center), c.Radius-1e-9)
		}
	}
}

func TestTrianglesCoverArea(t *testing.T) {
	points := []geometry.Point2D{
		{X: 0, Y: 0}, {X: 0, Y: 80}, {X: 120, Y: 0}, {X: 120, Y: 80},
		{X: 30, Y: 20}, {X: 90, Y: 25}, {X: 55, Y: 60}, {X: 100, Y: 70},
	}
	var area float64
	for _, tri := range Triangulate(points) {
		v := tri.Vertices(points)
		area += math.Abs(geometry.TriangleArea(v[0], v[1], v[2]))
	}
	assert.InDelta(t, 120*80, area, 1e-6)
}

func TestCollinearSkipped(t *testing.T) {
	points := []geometry.Point2D{{X: 0, Y: 0}, {X: 1, Y: 1}, {X: 2, Y: 2}}
	assert.Empty(t, Triangulate(points))

	_, ok := Circumcircle(points[0], points[1], points[2])
	assert.False(t, ok)
	_, ok = Circumcircle(points[0], points[0], points[0])
	assert.False(t, ok)
}

func TestCircumcircleAxisAligned(t *testing.T) {
	// Right triangle: the centre is the hypotenuse midpoint.
	c, ok := Circumcircle(geometry.Point2D{X: 0, Y: 0}, geometry.Point2D{X: 0, Y: 4}, geometry.Point2D{X: 3, Y: 0})
	require.True(t, ok)
	assert.InDelta(t, 1.5, c.Center.X, 1e-12)
	assert.InDelta(t, 2, c.Center.Y, 1e-12)
	assert.InDelta(t, 2.5, c.Radius, 1e-12)
}
