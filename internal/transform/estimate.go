package transform

import (
	"math"

	"panostitch/internal/linalg"
	"panostitch/pkg/geometry"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// ErrNoPoints is returned when a transform is requested from zero points.
var ErrNoPoints = errors.New("transform: no control points")

// Estimate is a fitted transform and its numerical diagnostics.
type Estimate struct {
	Transform Transform

	// ConditionNumber is max/min significant singular value of the
	// least-squares fit. It is 1 for the closed-form 1- and 2-point cases.
	ConditionNumber float64

	// Unconverged is set when the SVD ran out of iterations for some
	// singular value. The transform is still the best approximation found.
	Unconverged bool
}

// EstimateTransform fits the transform mapping each moved point onto its
// reference point. One point gives a pure shift; two give shift, rotation
// and uniform scale about the moved midpoint; three or more are fitted by
// SVD least squares.
func EstimateTransform(ref, moved []geometry.Point2D) (Estimate, error) {
	if len(ref) != len(moved) {
		return Estimate{}, errors.Errorf("transform: %d reference points but %d moved points", len(ref), len(moved))
	}
	switch len(ref) {
	case 0:
		return Estimate{}, ErrNoPoints
	case 1:
		return Estimate{
			Transform:       Translation(ref[0].X-moved[0].X, ref[0].Y-moved[0].Y),
			ConditionNumber: 1,
		}, nil
	case 2:
		return Estimate{Transform: fromTwoPoints(ref, moved), ConditionNumber: 1}, nil
	}
	return leastSquares(ref, moved)
}

func fromTwoPoints(ref, moved []geometry.Point2D) Transform {
	ravg := geometry.Centroid(ref)
	tavg := geometry.Centroid(moved)

	rdist := ref[0].Distance(ref[1])
	tdist := moved[0].Distance(moved[1])
	scale := 1.0
	if rdist != 0 && tdist != 0 {
		scale = tdist / rdist
	}

	rangle := math.Atan2(ref[0].Y-ref[1].Y, ref[0].X-ref[1].X)
	tangle := math.Atan2(moved[0].Y-moved[1].Y, moved[0].X-moved[1].X)

	rot := Rotation(rangle - tangle).About(tavg.X, tavg.Y)
	scl := Scale(1 / scale).About(tavg.X, tavg.Y)
	shift := Translation(ravg.X-tavg.X, ravg.Y-tavg.Y)
	return scl.Mul(rot.Mul(shift))
}

func leastSquares(ref, moved []geometry.Point2D) (Estimate, error) {
	n := len(ref)
	r := mat.NewDense(n, 3, nil)
	t := mat.NewDense(n, 3, nil)
	for i := range ref {
		r.SetRow(i, []float64{ref[i].X, ref[i].Y, 1})
		t.SetRow(i, []float64{moved[i].X, moved[i].Y, 1})
	}
	sol, err := linalg.SolveLeastSquares(t, r)
	if err != nil {
		return Estimate{}, errors.Wrap(err, "least-squares transform")
	}
	tr, err := FromDense(sol.X)
	if err != nil {
		return Estimate{}, err
	}
	return Estimate{Transform: tr, ConditionNumber: sol.ConditionNumber, Unconverged: len(sol.Unconverged) > 0}, nil
}

// Residuals returns, for each pair, the Euclidean distance between the
// mapped moved point and its reference point, plus the signed x and y
// components (mapped minus reference).
func Residuals(t Transform, ref, moved []geometry.Point2D) (dist, dx, dy []float64) {
	dist = make([]float64, len(ref))
	dx = make([]float64, len(ref))
	dy = make([]float64, len(ref))
	for i := range ref {
		p := t.ApplyPoint(moved[i])
		dx[i] = p.X - ref[i].X
		dy[i] = p.Y - ref[i].Y
		dist[i] = math.Hypot(dx[i], dy[i])
	}
	return dist, dx, dy
}
