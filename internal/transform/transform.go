// Package transform provides the 3×3 homogeneous planar transform used to map
// the moved image onto the reference image, and its estimation from control
// points.
//
// Transforms act on row vectors: [x y 1]·T = [rx ry rh] and the mapped point
// is (rx/rh, ry/rh). Translation therefore lives in row 2.
package transform

import (
	"math"

	"panostitch/internal/linalg"
	"panostitch/pkg/geometry"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"golang.org/x/image/math/f64"
)

// Transform is a 3×3 homogeneous matrix in row-vector form.
type Transform [3][3]float64

// Identity returns the identity transform.
func Identity() Transform {
	return Transform{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}
}

// Translation returns a pure shift by (dx, dy).
func Translation(dx, dy float64) Transform {
	return Transform{{1, 0, 0}, {0, 1, 0}, {dx, dy, 1}}
}

// Rotation returns a rotation by angle radians about the origin.
func Rotation(angle float64) Transform {
	c, s := math.Cos(angle), math.Sin(angle)
	return Transform{{c, s, 0}, {-s, c, 0}, {0, 0, 1}}
}

// Scale returns a uniform scale about the origin.
func Scale(s float64) Transform {
	return Transform{{s, 0, 0}, {0, s, 0}, {0, 0, 1}}
}

// About conjugates t so that it acts about (cx, cy) instead of the origin.
func (t Transform) About(cx, cy float64) Transform {
	return Translation(-cx, -cy).Mul(t).Mul(Translation(cx, cy))
}

// Mul returns the matrix product t·u. With row vectors, t is applied first.
func (t Transform) Mul(u Transform) Transform {
	var out Transform
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			for k := 0; k < 3; k++ {
				out[i][j] += t[i][k] * u[k][j]
			}
		}
	}
	return out
}

// Apply maps (x, y) through t, dividing by the homogeneous coordinate.
func (t Transform) Apply(x, y float64) (float64, float64) {
	rx := x*t[0][0] + y*t[1][0] + t[2][0]
	ry := x*t[0][1] + y*t[1][1] + t[2][1]
	rh := x*t[0][2] + y*t[1][2] + t[2][2]
	return rx / rh, ry / rh
}

// ApplyPoint maps p through t.
func (t Transform) ApplyPoint(p geometry.Point2D) geometry.Point2D {
	x, y := t.Apply(p.X, p.Y)
	return geometry.Point2D{X: x, Y: y}
}

// Shifted returns t followed by a shift of (dx, dy). For affine transforms
// this only adds to the translation row.
func (t Transform) Shifted(dx, dy float64) Transform {
	return t.Mul(Translation(dx, dy))
}

// IsAffine reports whether t has no projective component.
func (t Transform) IsAffine() bool {
	const eps = 1e-12
	return math.Abs(t[0][2]) < eps && math.Abs(t[1][2]) < eps && math.Abs(t[2][2]) > eps
}

// Aff3 returns t as the column-vector affine matrix used by
// golang.org/x/image/draw. Only meaningful when IsAffine is true.
func (t Transform) Aff3() f64.Aff3 {
	h := t[2][2]
	return f64.Aff3{
		t[0][0] / h, t[1][0] / h, t[2][0] / h,
		t[0][1] / h, t[1][1] / h, t[2][1] / h,
	}
}

// Dense returns t as a gonum matrix.
func (t Transform) Dense() *mat.Dense {
	return mat.NewDense(3, 3, []float64{
		t[0][0], t[0][1], t[0][2],
		t[1][0], t[1][1], t[1][2],
		t[2][0], t[2][1], t[2][2],
	})
}

// FromDense copies a 3×3 gonum matrix into a Transform.
func FromDense(m mat.Matrix) (Transform, error) {
	r, c := m.Dims()
	if r != 3 || c != 3 {
		return Transform{}, errors.Wrapf(linalg.ErrShape, "transform from %dx%d matrix", r, c)
	}
	var t Transform
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			t[i][j] = m.At(i, j)
		}
	}
	return t, nil
}

// Invert returns the inverse of t computed through the SVD pseudo-inverse,
// so rank-deficient transforms still yield a usable result.
func Invert(t Transform) (Transform, error) {
	inv, _, err := linalg.PseudoInverse(t.Dense())
	if err != nil {
		return Transform{}, errors.Wrap(err, "invert transform")
	}
	return FromDense(inv)
}

// Decompose extracts an approximate uniform scale and rotation from t. The
// rotation is the mean of the two angles implied by the linear part; the
// scale is what remains on the diagonal once that rotation is removed. The
// result is only approximate when t contains shear.
func Decompose(t Transform) (scale, rotation float64) {
	rotation = (math.Atan2(-t[0][1], t[0][0]) + math.Atan2(t[1][0], t[1][1])) / 2

	c, s := math.Cos(rotation), math.Sin(rotation)
	// rinv · [[t00, t10], [t01, t11]]
	s00 := c*t[0][0] - s*t[0][1]
	s11 := s*t[1][0] + c*t[1][1]
	scale = math.Abs(s00+s11) / 2 / t[2][2]
	return scale, rotation
}

// FromShiftRotateScale builds the transform that shifts by (dx, dy) and then
// rotates by rot and scales by scale about the centre of a width×height frame.
func FromShiftRotateScale(dx, dy, rot, scale float64, width, height int) Transform {
	cx := float64(width-1) / 2
	cy := float64(height-1) / 2
	r := Rotation(rot).About(cx, cy)
	s := Scale(scale).About(cx, cy)
	return Translation(dx, dy).Mul(s.Mul(r))
}
