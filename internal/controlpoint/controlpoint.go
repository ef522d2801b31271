// Package controlpoint holds the correspondence data model: control points,
// the ordered list they live in, and the fit derived from that list.
package controlpoint

import (
	"fmt"

	"panostitch/pkg/geometry"

	"github.com/pkg/errors"
)

// ErrIndexOutOfRange is returned by list edits addressing a missing entry.
var ErrIndexOutOfRange = errors.New("controlpoint: index out of range")

// ColorBalanceCap is the most points that feed the color-balance curves.
const ColorBalanceCap = 15

// ControlPoint locates the same feature at (X1, Y1) in the reference image
// and (X2, Y2) in the moved image. Values are never mutated in place.
type ControlPoint struct {
	X1, Y1, X2, Y2 float64

	// Correlation is the refinement score in [-1, 1], nil when the point
	// was placed by hand.
	Correlation *float64

	ColorBalance bool
}

// New returns a hand-placed control point that takes part in color balance.
func New(x1, y1, x2, y2 float64) ControlPoint {
	return ControlPoint{X1: x1, Y1: y1, X2: x2, Y2: y2, ColorBalance: true}
}

// WithCorrelation returns a copy of cp carrying the given score.
func (cp ControlPoint) WithCorrelation(c float64) ControlPoint {
	cp.Correlation = &c
	return cp
}

// Invert swaps the two images.
func (cp ControlPoint) Invert() ControlPoint {
	out := cp
	out.X1, out.Y1, out.X2, out.Y2 = cp.X2, cp.Y2, cp.X1, cp.Y1
	if cp.Correlation != nil {
		c := *cp.Correlation
		out.Correlation = &c
	}
	return out
}

// Reference returns the point in the reference image.
func (cp ControlPoint) Reference() geometry.Point2D {
	return geometry.Point2D{X: cp.X1, Y: cp.Y1}
}

// Moved returns the point in the moved image.
func (cp ControlPoint) Moved() geometry.Point2D {
	return geometry.Point2D{X: cp.X2, Y: cp.Y2}
}

// NearEdge reports whether either end lies within radius of its image edge.
func (cp ControlPoint) NearEdge(refW, refH, movedW, movedH int, radius float64) bool {
	near := func(x, y float64, w, h int) bool {
		return x < radius || y < radius ||
			x > float64(w-1)-radius || y > float64(h-1)-radius
	}
	return near(cp.X1, cp.Y1, refW, refH) || near(cp.X2, cp.Y2, movedW, movedH)
}

func (cp ControlPoint) String() string {
	s := fmt.Sprintf("(%.2f, %.2f) -> (%.2f, %.2f)", cp.X1, cp.Y1, cp.X2, cp.Y2)
	if cp.Correlation != nil {
		s += fmt.Sprintf(" corr=%.4f", *cp.Correlation)
	}
	if !cp.ColorBalance {
		s += " no-cb"
	}
	return s
}

// List is an ordered set of control points. Order matters: color balance
// uses the first ColorBalanceCap flagged points. Edits return a new list.
type List []ControlPoint

func (l List) clone() List {
	return append(List(nil), l...)
}

func (l List) check(i int) error {
	if i < 0 || i >= len(l) {
		return errors.Wrapf(ErrIndexOutOfRange, "index %d of %d", i, len(l))
	}
	return nil
}

// Add appends cp.
func (l List) Add(cp ControlPoint) List {
	return append(l.clone(), cp)
}

// Delete removes entry i.
func (l List) Delete(i int) (List, error) {
	if err := l.check(i); err != nil {
		return l, err
	}
	out := l.clone()
	return append(out[:i], out[i+1:]...), nil
}

// Replace swaps entry i for cp.
func (l List) Replace(i int, cp ControlPoint) (List, error) {
	if err := l.check(i); err != nil {
		return l, err
	}
	out := l.clone()
	out[i] = cp
	return out, nil
}

// MoveUp swaps entry i with its predecessor.
func (l List) MoveUp(i int) (List, error) {
	if err := l.check(i); err != nil {
		return l, err
	}
	if i == 0 {
		return l, errors.Wrap(ErrIndexOutOfRange, "first entry cannot move up")
	}
	out := l.clone()
	out[i-1], out[i] = out[i], out[i-1]
	return out, nil
}

// MoveDown swaps entry i with its successor.
func (l List) MoveDown(i int) (List, error) {
	if err := l.check(i); err != nil {
		return l, err
	}
	if i == len(l)-1 {
		return l, errors.Wrap(ErrIndexOutOfRange, "last entry cannot move down")
	}
	out := l.clone()
	out[i+1], out[i] = out[i], out[i+1]
	return out, nil
}

// Inverse returns every point inverted, for stitching in the other
// direction.
func (l List) Inverse() List {
	out := make(List, len(l))
	for i, cp := range l {
		out[i] = cp.Invert()
	}
	return out
}

// Arrays splits the list into reference and moved points.
func (l List) Arrays() (ref, moved []geometry.Point2D) {
	ref = make([]geometry.Point2D, len(l))
	moved = make([]geometry.Point2D, len(l))
	for i, cp := range l {
		ref[i] = cp.Reference()
		moved[i] = cp.Moved()
	}
	return ref, moved
}

// ColorBalancePoints returns the flagged points in list order, truncated to
// ColorBalanceCap.
func (l List) ColorBalancePoints() List {
	var out List
	for _, cp := range l {
		if !cp.ColorBalance {
			continue
		}
		if len(out) == ColorBalanceCap {
			break
		}
		out = append(out, cp)
	}
	return out
}
