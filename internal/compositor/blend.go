package compositor

import (
	"image"
	"math"

	pimage "panostitch/internal/image"
	"panostitch/pkg/geometry"

	"github.com/pkg/errors"
)

// BlendFractions are the accepted seam widths, as a fraction of the overlap.
var BlendFractions = []float64{0.05, 0.10, 0.15, 0.25, 0.5, 0.75, 1.0}

// DefaultBlendFraction is the seam width used when none is configured.
const DefaultBlendFraction = 0.25

// ValidBlendFraction reports whether f is one of BlendFractions.
func ValidBlendFraction(f float64) bool {
	for _, v := range BlendFractions {
		if math.Abs(v-f) < 1e-9 {
			return true
		}
	}
	return false
}

// secondary passes are this much narrower than the primary ones
const blendSizeDivisor = 3.0

// BlendMask paints a feathered seam into the reference layer mask. Inside
// the overlap, where the moved image is opaque, the reference fades out
// towards its own edges: a horizontal and a vertical ramp sized to
// fraction of the overlap, then two narrower ramps along the moved
// image's leading edges that restore the corners.
func BlendMask(p *Placement, fraction float64) error {
	if p == nil || p.Ref == nil || p.Moved == nil {
		return errors.New("compositor: cannot blend layers")
	}
	if fraction <= 0 || fraction > 1 {
		return errors.Errorf("compositor: blend fraction %v out of range", fraction)
	}
	rxy, txy := p.RefRect, p.MovedRect

	var xstarts, xfinish, ystarts, yfinish float64
	if rxy.Min.X < txy.Min.X { // reference is left of moved
		xfinish = float64(txy.Min.X)
		xstarts = float64(rxy.Max.X)
	} else {
		xstarts = float64(rxy.Min.X)
		xfinish = float64(txy.Max.X)
	}
	if rxy.Min.Y < txy.Min.Y { // reference is above moved
		yfinish = float64(txy.Min.Y)
		ystarts = float64(rxy.Max.Y)
	} else {
		ystarts = float64(rxy.Min.Y)
		yfinish = float64(txy.Max.Y)
	}

	x0 := math.Min(xstarts, xfinish)
	width := math.Max(xstarts, xfinish) - x0
	y0 := math.Min(ystarts, yfinish)
	height := math.Max(ystarts, yfinish) - y0
	overlap := image.Rect(int(x0), int(y0), int(x0+width), int(y0+height))

	mask := p.Ref.AddMask(255)
	off := p.Ref.Offset
	sel := func(x, y int) bool {
		cx, cy := x+off.X, y+off.Y
		return image.Pt(cx, cy).In(overlap) && p.Moved.PixelAt(cx, cy).A >= 250
	}
	local := func(x, y float64) geometry.Point2D {
		return geometry.Point2D{X: x - float64(off.X), Y: y - float64(off.Y)}
	}
	toward := func(from, to, limit float64) float64 {
		size := math.Min(math.Abs(to-from), limit)
		if to < from {
			return from - size
		}
		return from + size
	}
	xmid := (xstarts + xfinish) / 2
	ymid := (ystarts + yfinish) / 2

	// Primary horizontal ramp.
	x2 := toward(xstarts, xfinish, width*fraction)
	pimage.PaintGradient(mask, sel, local(xstarts, ymid), local(x2, ymid), false, pimage.BlendNormal)

	// Primary vertical ramp.
	y2 := toward(ystarts, yfinish, height*fraction)
	pimage.PaintGradient(mask, sel, local(xmid, ystarts), local(xmid, y2), false, pimage.BlendMultiply)

	// Secondary ramps along the far edges, sized from the other axis.
	x2 = toward(xfinish, xstarts, height*fraction/blendSizeDivisor)
	pimage.PaintGradient(mask, sel, local(xfinish, ymid), local(x2, ymid), true, pimage.BlendScreen)

	y2 = toward(yfinish, ystarts, width*fraction/blendSizeDivisor)
	pimage.PaintGradient(mask, sel, local(xmid, yfinish), local(xmid, y2), true, pimage.BlendScreen)
	return nil
}

// Render flattens the placement: the moved layer at the bottom, the
// reference layer over it through its mask.
func Render(p *Placement) *image.NRGBA {
	c := pimage.NewComposite(p.Width, p.Height)
	c.AddLayer(p.Moved, pimage.BlendNormal)
	c.AddLayer(p.Ref, pimage.BlendNormal)
	return c.Render()
}
