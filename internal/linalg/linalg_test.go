package linalg

import (
	"math"
	"sort"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

// The first worked example from Golub and Reinsch (1970).
var golubReinsch = [][]float64{
	{22, 10, 2, 3, 7},
	{14, 7, 10, 0, 8},
	{-1, 13, -1, -11, 3},
	{-3, -2, 13, -2, 4},
	{9, 8, 1, -2, 4},
	{9, 1, -7, 5, -1},
	{2, -6, 6, 5, 1},
	{4, 5, 0, -2, 2},
}

func assertMatrixNear(t *testing.T, want, got mat.Matrix, tol float64) {
	t.Helper()
	wr, wc := want.Dims()
	gr, gc := got.Dims()
	require.Equal(t, wr, gr)
	require.Equal(t, wc, gc)
	for i := 0; i < wr; i++ {
		for j := 0; j < wc; j++ {
			assert.InDelta(t, want.At(i, j), got.At(i, j), tol, "element (%d,%d)", i, j)
		}
	}
}

func TestSVDGolubReinsch(t *testing.T) {
	a, err := FromRows(golubReinsch)
	require.NoError(t, err)

	d, err := SVD(a)
	require.NoError(t, err)
	assert.Empty(t, d.Unconverged)

	w := append([]float64(nil), d.W...)
	sort.Sort(sort.Reverse(sort.Float64Slice(w)))
	want := []float64{math.Sqrt(1248), 20, math.Sqrt(384), 0, 0}
	for i := range want {
		assert.InDelta(t, want[i], w[i], 1e-9)
	}
	for _, v := range d.W {
		assert.GreaterOrEqual(t, v, 0.0)
	}
	assert.Equal(t, 3, d.Rank())

	var rebuilt mat.Dense
	rebuilt.Product(d.U, mat.NewDiagDense(len(d.W), d.W), d.V.T())
	assertMatrixNear(t, a, &rebuilt, 1e-9)

	// V is orthogonal.
	var vtv mat.Dense
	vtv.Mul(d.V.T(), d.V)
	assertMatrixNear(t, identity(5), &vtv, 1e-9)
}

func TestSVDRejectsWideMatrix(t *testing.T) {
	_, err := SVD(mat.NewDense(2, 3, nil))
	assert.True(t, errors.Is(err, ErrShape))
}

func TestPseudoInverseSquare(t *testing.T) {
	a := mat.NewDense(3, 3, []float64{
		2, 0, 0,
		0, 4, 0,
		1, 1, 1,
	})
	inv, cond, err := PseudoInverse(a)
	require.NoError(t, err)
	assert.Greater(t, cond, 1.0)

	var prod mat.Dense
	prod.Mul(a, inv)
	assertMatrixNear(t, identity(3), &prod, 1e-12)
}

func TestPseudoInverseRankDeficient(t *testing.T) {
	// Two identical columns: rank 1.
	a := mat.NewDense(3, 2, []float64{1, 1, 2, 2, 3, 3})
	inv, cond, err := PseudoInverse(a)
	require.NoError(t, err)
	assert.False(t, math.IsInf(cond, 0))

	// Moore-Penrose: a·a⁺·a = a.
	var aia mat.Dense
	aia.Product(a, inv, a)
	assertMatrixNear(t, a, &aia, 1e-12)
}

func TestLeastSquaresExactFit(t *testing.T) {
	// y = 2x + 1 sampled exactly.
	a := mat.NewDense(4, 2, []float64{0, 1, 1, 1, 2, 1, 3, 1})
	b := mat.NewDense(4, 1, []float64{1, 3, 5, 7})
	x, _, err := LeastSquares(a, b)
	require.NoError(t, err)
	assert.InDelta(t, 2.0, x.At(0, 0), 1e-12)
	assert.InDelta(t, 1.0, x.At(1, 0), 1e-12)

	_, _, err = LeastSquares(a, mat.NewDense(3, 1, nil))
	assert.True(t, errors.Is(err, ErrShape))
}

func TestMultiplyAndTranspose(t *testing.T) {
	a := mat.NewDense(2, 3, []float64{1, 2, 3, 4, 5, 6})
	at := Transpose(a)
	r, c := at.Dims()
	assert.Equal(t, 3, r)
	assert.Equal(t, 2, c)
	assert.Equal(t, 6.0, at.At(2, 1))

	p, err := Multiply(a, at)
	require.NoError(t, err)
	assert.Equal(t, 14.0, p.At(0, 0))
	assert.Equal(t, 77.0, p.At(1, 1))

	_, err = Multiply(a, a)
	assert.True(t, errors.Is(err, ErrShape))
}

func TestPythag(t *testing.T) {
	assert.Equal(t, 5.0, pythag(3, 4))
	assert.Equal(t, 5.0, pythag(-4, 3))
	assert.Equal(t, 0.0, pythag(0, 0))
	assert.InDelta(t, 1e300*math.Sqrt2, pythag(1e300, 1e300), 1e286)
}

func identity(n int) *mat.Dense {
	m := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		m.Set(i, i, 1)
	}
	return m
}
