// Package linalg provides the dense matrix helpers and the singular value
// decomposition used to fit and invert planar transforms.
package linalg

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// ErrShape is returned when matrix dimensions are incompatible.
var ErrShape = errors.New("linalg: incompatible matrix shape")

// Multiply returns a·b.
func Multiply(a, b mat.Matrix) (*mat.Dense, error) {
	ar, ac := a.Dims()
	br, bc := b.Dims()
	if ac != br {
		return nil, errors.Wrapf(ErrShape, "multiply %dx%d by %dx%d", ar, ac, br, bc)
	}
	var c mat.Dense
	c.Mul(a, b)
	return &c, nil
}

// Transpose returns a copy of aᵀ.
func Transpose(a mat.Matrix) *mat.Dense {
	return mat.DenseCopyOf(a.T())
}

// FromRows builds a dense matrix from row slices. All rows must have the
// same length.
func FromRows(rows [][]float64) (*mat.Dense, error) {
	if len(rows) == 0 || len(rows[0]) == 0 {
		return nil, errors.Wrap(ErrShape, "empty matrix")
	}
	n := len(rows[0])
	data := make([]float64, 0, len(rows)*n)
	for i, r := range rows {
		if len(r) != n {
			return nil, errors.Wrapf(ErrShape, "row %d has %d columns, want %d", i, len(r), n)
		}
		data = append(data, r...)
	}
	return mat.NewDense(len(rows), n, data), nil
}

// Rows copies m into row slices.
func Rows(m mat.Matrix) [][]float64 {
	r, c := m.Dims()
	out := make([][]float64, r)
	for i := range out {
		out[i] = make([]float64, c)
		for j := range out[i] {
			out[i][j] = m.At(i, j)
		}
	}
	return out
}
