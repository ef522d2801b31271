package controlpoint

import (
	"math"

	"panostitch/internal/transform"

	"github.com/montanaflynn/stats"
	"github.com/pkg/errors"
)

// Fit is everything derived from a control point list. It is produced as a
// whole by FitPoints, so the transform and residuals always agree.
type Fit struct {
	// Valid is false when the list was empty and there is no transform.
	Valid bool

	Transform       transform.Transform
	ConditionNumber float64
	Unconverged     bool

	// Errors holds the Euclidean residual of each point; XErrors and
	// YErrors hold the signed components (mapped moved minus reference).
	Errors  []float64
	XErrors []float64
	YErrors []float64
}

// FitPoints recomputes the transform and residuals for points.
func FitPoints(points List) (Fit, error) {
	if len(points) == 0 {
		return Fit{}, nil
	}
	ref, moved := points.Arrays()
	est, err := transform.EstimateTransform(ref, moved)
	if err != nil {
		return Fit{}, errors.Wrap(err, "fit control points")
	}
	dist, dx, dy := transform.Residuals(est.Transform, ref, moved)
	return Fit{
		Valid:           true,
		Transform:       est.Transform,
		ConditionNumber: est.ConditionNumber,
		Unconverged:     est.Unconverged,
		Errors:          dist,
		XErrors:         dx,
		YErrors:         dy,
	}, nil
}

// Summary describes the residuals of a fit.
type Summary struct {
	Mean, Max, RMS, Median float64
}

// Summary returns residual statistics. The zero Summary is returned for an
// invalid fit.
func (f Fit) Summary() Summary {
	if !f.Valid || len(f.Errors) == 0 {
		return Summary{}
	}
	data := stats.Float64Data(f.Errors)
	mean, _ := stats.Mean(data)
	maxErr, _ := stats.Max(data)
	median, _ := stats.Median(data)
	var sq float64
	for _, e := range f.Errors {
		sq += e * e
	}
	return Summary{
		Mean:   mean,
		Max:    maxErr,
		RMS:    math.Sqrt(sq / float64(len(f.Errors))),
		Median: median,
	}
}

// Session pairs a control point list with its fit.
type Session struct {
	Points List
	Fit    Fit
}

// NewSession fits points and returns the resulting session.
func NewSession(points List) (Session, error) {
	return Session{}.Update(points)
}

// Update returns a session holding points and their fresh fit. The
// receiver is left untouched.
func (s Session) Update(points List) (Session, error) {
	fit, err := FitPoints(points)
	if err != nil {
		return s, err
	}
	return Session{Points: points.clone(), Fit: fit}, nil
}

// NPoints is the number of control points.
func (s Session) NPoints() int {
	return len(s.Points)
}
