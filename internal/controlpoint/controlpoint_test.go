package controlpoint

import (
	"testing"

	"panostitch/internal/transform"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sample() List {
	return List{
		New(10, 10, 20, 15),
		New(90, 10, 100, 15),
		New(10, 90, 20, 95).WithCorrelation(0.9),
		New(90, 90, 100, 95),
	}
}

func TestInvert(t *testing.T) {
	cp := New(1, 2, 3, 4).WithCorrelation(0.5)
	inv := cp.Invert()
	assert.Equal(t, 3.0, inv.X1)
	assert.Equal(t, 4.0, inv.Y1)
	assert.Equal(t, 1.0, inv.X2)
	assert.Equal(t, 2.0, inv.Y2)
	require.NotNil(t, inv.Correlation)
	assert.Equal(t, 0.5, *inv.Correlation)
	assert.NotSame(t, cp.Correlation, inv.Correlation)
	assert.Equal(t, cp, inv.Invert())
	assert.Equal(t, List{inv}, List{cp}.Inverse())
}

func TestListEdits(t *testing.T) {
	l := sample()

	added := l.Add(New(50, 50, 60, 55))
	assert.Len(t, added, 5)
	assert.Len(t, l, 4)

	del, err := l.Delete(1)
	require.NoError(t, err)
	assert.Equal(t, List{l[0], l[2], l[3]}, del)

	rep, err := l.Replace(0, New(0, 0, 0, 0))
	require.NoError(t, err)
	assert.Equal(t, 0.0, rep[0].X1)
	assert.Equal(t, 10.0, l[0].X1)

	up, err := l.MoveUp(2)
	require.NoError(t, err)
	assert.Equal(t, l[2], up[1])
	assert.Equal(t, l[1], up[2])

	down, err := l.MoveDown(0)
	require.NoError(t, err)
	assert.Equal(t, l[1], down[0])
	assert.Equal(t, l[0], down[1])
}

func TestListEditBounds(t *testing.T) {
	l := sample()
	cases := []func() (List, error){
		func() (List, error) { return l.Delete(4) },
		func() (List, error) { return l.Delete(-1) },
		func() (List, error) { return l.Replace(9, New(0, 0, 0, 0)) },
		func() (List, error) { return l.MoveUp(0) },
		func() (List, error) { return l.MoveDown(3) },
	}
	for i, c := range cases {
		out, err := c()
		assert.True(t, errors.Is(err, ErrIndexOutOfRange), "case %d", i)
		assert.Equal(t, l, out, "case %d", i)
	}
}

func TestColorBalancePointsTruncates(t *testing.T) {
	var l List
	for i := 0; i < 20; i++ {
		cp := New(float64(i), 0, float64(i), 0)
		if i == 3 {
			cp.ColorBalance = false
		}
		l = l.Add(cp)
	}
	cb := l.ColorBalancePoints()
	require.Len(t, cb, ColorBalanceCap)
	assert.Equal(t, 0.0, cb[0].X1)
	assert.Equal(t, 4.0, cb[3].X1)
	assert.Equal(t, 15.0, cb[14].X1)
}

func TestNearEdge(t *testing.T) {
	assert.True(t, New(5, 50, 50, 50).NearEdge(100, 100, 100, 100, 20))
	assert.True(t, New(50, 50, 50, 95).NearEdge(100, 100, 100, 100, 20))
	assert.False(t, New(50, 50, 50, 50).NearEdge(100, 100, 100, 100, 20))
}

func TestFitKeepsTransformAndErrorsTogether(t *testing.T) {
	s, err := NewSession(nil)
	require.NoError(t, err)
	assert.False(t, s.Fit.Valid)
	assert.Equal(t, 0, s.NPoints())

	s, err = s.Update(List{New(50, 50, 60, 55)})
	require.NoError(t, err)
	require.True(t, s.Fit.Valid)
	assert.Equal(t, transform.Translation(-10, -5), s.Fit.Transform)
	assert.Equal(t, []float64{0}, s.Fit.Errors)

	s, err = s.Update(sample())
	require.NoError(t, err)
	assert.Equal(t, 4, s.NPoints())
	require.Len(t, s.Fit.Errors, 4)
	for _, e := range s.Fit.Errors {
		assert.InDelta(t, 0, e, 1e-9)
	}
	assert.InDelta(t, 0, s.Fit.Summary().Max, 1e-9)
}

func TestFitResidualSigns(t *testing.T) {
	// Three consistent shifts plus one outlier.
	l := List{
		New(0, 0, 10, 10),
		New(100, 0, 110, 10),
		New(0, 100, 10, 110),
		New(100, 100, 112, 110),
	}
	fit, err := FitPoints(l)
	require.NoError(t, err)
	sum := fit.Summary()
	assert.Greater(t, sum.Max, 0.0)
	assert.GreaterOrEqual(t, sum.Max, sum.Mean)
	assert.GreaterOrEqual(t, sum.RMS, sum.Mean)
	assert.Greater(t, fit.XErrors[3], 0.0)
	for i := range l {
		assert.InDelta(t, fit.Errors[i]*fit.Errors[i],
			fit.XErrors[i]*fit.XErrors[i]+fit.YErrors[i]*fit.YErrors[i], 1e-9)
	}
}
