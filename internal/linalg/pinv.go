package linalg

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// RankThreshold is the relative cutoff below which singular values are
// treated as zero. Saved control-point sets were fitted with this value, so
// it must not change.
const RankThreshold = 1e-10

// invertSingular returns diag(1/w) with values at or below
// max(w)·RankThreshold zeroed, and the condition number max(w)/min(kept w).
// The condition number is +Inf when nothing is kept.
func invertSingular(w []float64) (*mat.Dense, float64) {
	n := len(w)
	maxw := 0.0
	for _, v := range w {
		if v > maxw {
			maxw = v
		}
	}
	minw := maxw * RankThreshold
	wi := mat.NewDense(n, n, nil)
	wsmall := maxw
	kept := 0
	for i, v := range w {
		if v > minw {
			wi.Set(i, i, 1/v)
			kept++
			if v < wsmall {
				wsmall = v
			}
		}
	}
	if kept == 0 || wsmall == 0 {
		return wi, math.Inf(1)
	}
	return wi, maxw / wsmall
}

// Rank returns the number of singular values above the rank threshold.
func (r *SVDResult) Rank() int {
	maxw := 0.0
	for _, v := range r.W {
		maxw = math.Max(maxw, v)
	}
	n := 0
	for _, v := range r.W {
		if v > maxw*RankThreshold {
			n++
		}
	}
	return n
}

// PseudoInverse returns V·W⁺·Uᵀ and the condition number of a. It works
// for non-square and rank-deficient matrices with rows >= columns.
func PseudoInverse(a mat.Matrix) (*mat.Dense, float64, error) {
	d, err := SVD(a)
	if err != nil {
		return nil, 0, err
	}
	wi, cond := invertSingular(d.W)
	var out mat.Dense
	out.Product(d.V, wi, d.U.T())
	return &out, cond, nil
}

// LeastSquares solves a·x ≈ b in the least-squares sense as
// V·(W⁺·(Uᵀ·b)) and returns x with the condition number of a.
func LeastSquares(a, b mat.Matrix) (*mat.Dense, float64, error) {
	sol, err := SolveLeastSquares(a, b)
	if err != nil {
		return nil, 0, err
	}
	return sol.X, sol.ConditionNumber, nil
}

// Solution is a least-squares result with its diagnostics.
type Solution struct {
	X               *mat.Dense
	ConditionNumber float64

	// Unconverged is copied from the decomposition of a.
	Unconverged []int
}

// SolveLeastSquares is LeastSquares keeping the SVD diagnostics.
func SolveLeastSquares(a, b mat.Matrix) (*Solution, error) {
	ar, ac := a.Dims()
	br, bc := b.Dims()
	if ar != br {
		return nil, errors.Wrapf(ErrShape, "least squares %dx%d against %dx%d", ar, ac, br, bc)
	}
	d, err := SVD(a)
	if err != nil {
		return nil, err
	}
	wi, cond := invertSingular(d.W)

	ub, err := Multiply(d.U.T(), b)
	if err != nil {
		return nil, err
	}
	wub, err := Multiply(wi, ub)
	if err != nil {
		return nil, err
	}
	x, err := Multiply(d.V, wub)
	if err != nil {
		return nil, err
	}
	return &Solution{X: x, ConditionNumber: cond, Unconverged: d.Unconverged}, nil
}
