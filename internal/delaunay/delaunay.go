// Package delaunay triangulates small point sets by the empty-circumcircle
// test. It is cubic in the number of points, which is fine for control point
// meshes of a few dozen vertices.
package delaunay

import (
	"math"

	"panostitch/pkg/geometry"
)

// Triangle holds three indices into the triangulated point slice, in
// ascending order.
type Triangle [3]int

// Vertices resolves the triangle against points.
func (t Triangle) Vertices(points []geometry.Point2D) [3]geometry.Point2D {
	return [3]geometry.Point2D{points[t[0]], points[t[1]], points[t[2]]}
}

// Circle is a circumscribed circle.
type Circle struct {
	Center geometry.Point2D
	Radius float64
}

// relative slack on the emptiness test so cocircular points on the rim do
// not reject each other through rounding
const rimTolerance = 1e-9

// Triangulate returns every triple whose circumcircle holds no other point.
// Collinear triples have no circumcircle and are skipped. Four or more
// cocircular points produce overlapping triangles covering the same area.
func Triangulate(points []geometry.Point2D) []Triangle {
	n := len(points)
	var out []Triangle
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			for k := j + 1; k < n; k++ {
				c, ok := Circumcircle(points[i], points[j], points[k])
				if !ok || !empty(points, c, i, j, k) {
					continue
				}
				out = append(out, Triangle{i, j, k})
			}
		}
	}
	return out
}

func empty(points []geometry.Point2D, c Circle, i, j, k int) bool {
	limit := c.Radius * (1 - rimTolerance)
	for p, pt := range points {
		if p == i || p == j || p == k {
			continue
		}
		if pt.Distance(c.Center) < limit {
			return false
		}
	}
	return true
}

// Circumcircle intersects two perpendicular edge bisectors of the triangle
// abc. Of the three possible pairs it uses the best conditioned one. ok is
// false for collinear or coincident vertices.
func Circumcircle(a, b, c geometry.Point2D) (Circle, bool) {
	// Bisector of edge pq: (q-p)·x = (|q|²-|p|²)/2.
	type line struct{ nx, ny, d float64 }
	bisector := func(p, q geometry.Point2D) line {
		return line{q.X - p.X, q.Y - p.Y, (q.X*q.X + q.Y*q.Y - p.X*p.X - p.Y*p.Y) / 2}
	}
	lines := [3]line{bisector(b, c), bisector(a, c), bisector(a, b)}

	best, bestDet := [2]int{}, 0.0
	for _, pair := range [3][2]int{{0, 1}, {0, 2}, {1, 2}} {
		l1, l2 := lines[pair[0]], lines[pair[1]]
		det := l1.nx*l2.ny - l1.ny*l2.nx
		if math.Abs(det) > math.Abs(bestDet) {
			best, bestDet = pair, det
		}
	}

	scale := math.Max(a.Distance(b), math.Max(a.Distance(c), b.Distance(c)))
	if scale == 0 || math.Abs(bestDet) <= 1e-12*scale*scale {
		return Circle{}, false
	}

	l1, l2 := lines[best[0]], lines[best[1]]
	center := geometry.Point2D{
		X: (l1.d*l2.ny - l1.ny*l2.d) / bestDet,
		Y: (l1.nx*l2.d - l1.d*l2.nx) / bestDet,
	}
	radius := math.Min(center.Distance(a), math.Min(center.Distance(b), center.Distance(c)))
	return Circle{Center: center, Radius: radius}, true
}
