// Package compositor lays two images onto a shared canvas, matches their
// colors and blends the seam.
package compositor

import (
	"image"
	"math"

	pimage "panostitch/internal/image"
	"panostitch/internal/resample"
	"panostitch/internal/transform"
	"panostitch/pkg/geometry"

	"github.com/pkg/errors"
)

// Placement is the reference and moved image warped onto a common canvas.
type Placement struct {
	Width, Height int

	// Shift moves reference coordinates onto the canvas. It keeps every
	// warped pixel at non-negative coordinates.
	Shift image.Point

	RefTransform   transform.Transform
	MovedTransform transform.Transform

	Ref   *pimage.Layer
	Moved *pimage.Layer

	// RefRect and MovedRect are the canvas rectangles covered by each
	// image before cropping to visible pixels.
	RefRect   image.Rectangle
	MovedRect image.Rectangle
}

// Bounds is the canvas rectangle.
func (p *Placement) Bounds() image.Rectangle {
	return image.Rect(0, 0, p.Width, p.Height)
}

// Overlap is the intersection of RefRect and MovedRect.
func (p *Placement) Overlap() image.Rectangle {
	return p.RefRect.Intersect(p.MovedRect)
}

// Place sizes a canvas holding ref and moved mapped through t, then warps
// both onto it. Each resulting layer is cropped to its visible pixels and
// carries a fully opaque mask.
func Place(ref, moved image.Image, t transform.Transform, opts resample.Options) (*Placement, error) {
	rb, tb := ref.Bounds(), moved.Bounds()
	rnx, rny := float64(rb.Dx()), float64(rb.Dy())
	tnx, tny := float64(tb.Dx()), float64(tb.Dy())

	var corners [4]geometry.Point2D
	for i, c := range [4][2]float64{{0, 0}, {tnx, 0}, {0, tny}, {tnx, tny}} {
		x, y := t.Apply(c[0], c[1])
		if math.IsNaN(x) || math.IsInf(x, 0) || math.IsNaN(y) || math.IsInf(y, 0) {
			return nil, errors.New("compositor: transform sends the moved image to infinity")
		}
		corners[i] = geometry.Point2D{X: x, Y: y}
	}
	box := geometry.BoundingBox(corners[:])
	canvas := box.Union(geometry.Rect{Width: rnx, Height: rny})

	x0 := int(math.Round(canvas.X))
	y0 := int(math.Round(canvas.Y))
	x1 := int(math.Round(canvas.X + canvas.Width))
	y1 := int(math.Round(canvas.Y + canvas.Height))
	shift := image.Pt(-x0, -y0)

	p := &Placement{
		Width:          x1 - x0,
		Height:         y1 - y0,
		Shift:          shift,
		RefTransform:   transform.Translation(float64(shift.X), float64(shift.Y)),
		MovedTransform: t.Shifted(float64(shift.X), float64(shift.Y)),
		RefRect:        image.Rect(shift.X, shift.Y, shift.X+rb.Dx(), shift.Y+rb.Dy()),
		MovedRect: image.Rect(
			int(math.Round(box.X+float64(shift.X))), int(math.Round(box.Y+float64(shift.Y))),
			int(math.Round(box.X+box.Width+float64(shift.X))), int(math.Round(box.Y+box.Height+float64(shift.Y))),
		),
	}

	var err error
	if p.Ref, err = warpLayer(ref, p.RefTransform, p.Bounds(), opts); err != nil {
		return nil, errors.Wrap(err, "place reference image")
	}
	if p.Moved, err = warpLayer(moved, p.MovedTransform, p.Bounds(), opts); err != nil {
		return nil, errors.Wrap(err, "place moved image")
	}
	return p, nil
}

func warpLayer(src image.Image, t transform.Transform, canvas image.Rectangle, opts resample.Options) (*pimage.Layer, error) {
	// Sources are treated as origin-based.
	if src.Bounds().Min != (image.Point{}) {
		src = pimage.FromImage(src).Image
	}
	dst := image.NewNRGBA(canvas)
	if err := resample.Warp(dst, src, t, opts); err != nil {
		return nil, err
	}
	l := pimage.NewLayer(dst)
	l.CropToVisible()
	l.AddMask(255)
	return l, nil
}
