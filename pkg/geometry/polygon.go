package geometry

import "math"

// PointInPolygon tests if a point is inside a polygon using ray casting.
func PointInPolygon(p Point2D, polygon []Point2D) bool {
	if len(polygon) < 3 {
		return false
	}

	inside := false
	n := len(polygon)

	for i := 0; i < n; i++ {
		j := (i + 1) % n
		pi, pj := polygon[i], polygon[j]

		// Check if ray from p going right intersects edge pi-pj
		if ((pi.Y > p.Y) != (pj.Y > p.Y)) &&
			(p.X < (pj.X-pi.X)*(p.Y-pi.Y)/(pj.Y-pi.Y)+pi.X) {
			inside = !inside
		}
	}

	return inside
}

// SignedDistance returns the distance from p to the nearest polygon edge,
// positive inside the polygon and negative outside.
func SignedDistance(p Point2D, polygon []Point2D) float64 {
	if len(polygon) < 2 {
		return math.Inf(-1)
	}
	best := math.Inf(1)
	n := len(polygon)
	for i := 0; i < n; i++ {
		d := distToSegment(p, polygon[i], polygon[(i+1)%n])
		if d < best {
			best = d
		}
	}
	if PointInPolygon(p, polygon) {
		return best
	}
	return -best
}

// TriangleArea returns the signed area of triangle abc (positive when
// counter-clockwise in a y-up frame).
func TriangleArea(a, b, c Point2D) float64 {
	return crossProduct(a, b, c) / 2
}

// distToSegment returns the distance from p to segment a-b.
func distToSegment(p, a, b Point2D) float64 {
	l2 := distSq(a, b)
	if l2 == 0 {
		return p.Distance(a)
	}
	t := ((p.X-a.X)*(b.X-a.X) + (p.Y-a.Y)*(b.Y-a.Y)) / l2
	t = math.Max(0, math.Min(1, t))
	return p.Distance(Point2D{X: a.X + t*(b.X-a.X), Y: a.Y + t*(b.Y-a.Y)})
}

// crossProduct computes the cross product of vectors OA and OB.
func crossProduct(o, a, b Point2D) float64 {
	return (a.X-o.X)*(b.Y-o.Y) - (a.Y-o.Y)*(b.X-o.X)
}

// distSq computes the squared distance between two points.
func distSq(a, b Point2D) float64 {
	dx := b.X - a.X
	dy := b.Y - a.Y
	return dx*dx + dy*dy
}
