package geometry

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPointInPolygon(t *testing.T) {
	tri := []Point2D{{0, 0}, {10, 0}, {0, 10}}
	assert.True(t, PointInPolygon(Point2D{2, 2}, tri))
	assert.False(t, PointInPolygon(Point2D{8, 8}, tri))
	assert.False(t, PointInPolygon(Point2D{1, 1}, tri[:2]))
}

func TestSignedDistance(t *testing.T) {
	square := []Point2D{{0, 0}, {10, 0}, {10, 10}, {0, 10}}
	assert.InDelta(t, 5.0, SignedDistance(Point2D{5, 5}, square), 1e-12)
	assert.InDelta(t, 1.0, SignedDistance(Point2D{1, 5}, square), 1e-12)
	assert.InDelta(t, -2.0, SignedDistance(Point2D{12, 5}, square), 1e-12)
	assert.InDelta(t, -5.0, SignedDistance(Point2D{13, 14}, square), 1e-12)
}

func TestRectHelpers(t *testing.T) {
	r := RectFromCorners(10, 8, 2, 4)
	assert.Equal(t, Rect{X: 2, Y: 4, Width: 8, Height: 4}, r)
	assert.Equal(t, image.Rect(2, 4, 10, 8), r.Pixels())
	assert.Equal(t, image.Rect(-1, 0, 3, 5), RectFromCorners(-0.5, 0.2, 2.1, 4.9).Pixels())

	u := r.Union(Rect{Width: 1, Height: 1})
	assert.Equal(t, Rect{X: 0, Y: 0, Width: 10, Height: 8}, u)
	assert.Equal(t, r, r.Union(RectFromCorners(3, 5, 4, 6)))
}

func TestBoundingBoxAndCentroid(t *testing.T) {
	pts := []Point2D{{1, 2}, {5, -1}, {3, 7}}
	assert.Equal(t, Rect{X: 1, Y: -1, Width: 4, Height: 8}, BoundingBox(pts))
	c := Centroid(pts)
	assert.InDelta(t, 3.0, c.X, 1e-12)
	assert.InDelta(t, 8.0/3, c.Y, 1e-12)
	assert.Equal(t, Point2D{0, 3}, Point2D{-4, 3}.Clamp(10, 10))
}
