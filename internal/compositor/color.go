package compositor

import (
	"image"
	"math"
	"sort"

	"panostitch/internal/controlpoint"
	pimage "panostitch/internal/image"
	"panostitch/internal/transform"
	"panostitch/pkg/colorutil"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/interp"
)

// MaxCurveValues caps a curve at the fixed (0,0) and (255,255) anchors plus
// one pair per color balance point.
const MaxCurveValues = 2 * (2 + controlpoint.ColorBalanceCap)

// DefaultColorRadius is the sampling radius around each control point.
const DefaultColorRadius = 20.0

// Curves holds one tone curve per channel, each a flat list of
// (input, output) pairs. Inputs are moved-image values, outputs the
// matching reference values.
type Curves struct {
	Red, Green, Blue []float64
}

// NPairs returns the number of (input, output) pairs per channel.
func (c *Curves) NPairs() int {
	return len(c.Red) / 2
}

// SampleRadii shrinks radius so that neither sampling window leaves its
// image. The moved-image radius is scaled by the transform's scale; when
// it has to shrink the reference radius follows it.
func SampleRadii(cp controlpoint.ControlPoint, radius float64, refSize, movedSize image.Point, t *transform.Transform) (r, tr float64) {
	r = radius
	rnx, rny := float64(refSize.X), float64(refSize.Y)
	tnx, tny := float64(movedSize.X), float64(movedSize.Y)

	if r > cp.X1 {
		r = math.Max(cp.X1, 1)
	}
	if r > cp.Y1 {
		r = math.Max(cp.Y1, 1)
	}
	if cp.X1+r > rnx-1 {
		r = math.Max(rnx-cp.X1-1, 1)
	}
	if cp.Y1+r > rny-1 {
		r = math.Max(rny-cp.Y1-1, 1)
	}

	scale := 1.0
	if t != nil {
		scale, _ = transform.Decompose(*t)
		tr = math.Max(r/scale, 1)
	} else {
		tr = r
	}
	shrink := func(limit float64) {
		tr = math.Max(limit, 1)
		if t != nil {
			r = math.Max(tr*scale, 1)
		}
	}
	if tr > cp.X2 {
		shrink(cp.X2)
	}
	if tr > cp.Y2 {
		shrink(cp.Y2)
	}
	if cp.X2+tr > tnx-1 {
		shrink(tnx - cp.X2 - 1)
	}
	if cp.Y2+tr > tny-1 {
		shrink(tny - cp.Y2 - 1)
	}
	return r, tr
}

// BuildCurves samples both source images around each color balance point
// and pairs the colors into per-channel curves. Points whose windows hold
// no opaque pixel are skipped.
func BuildCurves(ref, moved image.Image, cps controlpoint.List, fit controlpoint.Fit, radius float64) *Curves {
	c := &Curves{
		Red:   []float64{0, 0, 255, 255},
		Green: []float64{0, 0, 255, 255},
		Blue:  []float64{0, 0, 255, 255},
	}
	var t *transform.Transform
	if fit.Valid {
		t = &fit.Transform
	}
	refLayer, movedLayer := pimage.FromImage(ref), pimage.FromImage(moved)
	refSize, movedSize := refLayer.Bounds().Size(), movedLayer.Bounds().Size()
	for _, cp := range cps.ColorBalancePoints() {
		r, tr := SampleRadii(cp, radius, refSize, movedSize, t)
		rc, ok := refLayer.Sample(cp.X1, cp.Y1, r)
		if !ok {
			continue
		}
		tc, ok := movedLayer.Sample(cp.X2, cp.Y2, tr)
		if !ok {
			continue
		}
		rv, tv := colorutil.Channels(rc), colorutil.Channels(tc)
		c.Red = append(c.Red, tv[0], rv[0])
		c.Green = append(c.Green, tv[1], rv[1])
		c.Blue = append(c.Blue, tv[2], rv[2])
	}
	if len(c.Red) > MaxCurveValues {
		c.Red = c.Red[:MaxCurveValues]
		c.Green = c.Green[:MaxCurveValues]
		c.Blue = c.Blue[:MaxCurveValues]
	}
	return c
}

// LUT evaluates a flat pair list as a monotone curve over 0..255. Inputs
// are sorted, outputs sharing an input are averaged (the 0 and 255 anchors
// always win) and outputs are forced non-decreasing before a Fritsch–Butland
// spline is fitted.
func LUT(pairs []float64) [256]uint8 {
	ys := map[float64][]float64{}
	for i := 0; i+1 < len(pairs); i += 2 {
		x := math.Max(0, math.Min(255, pairs[i]))
		ys[x] = append(ys[x], pairs[i+1])
	}
	xs := make([]float64, 0, len(ys))
	for x := range ys {
		xs = append(xs, x)
	}
	sort.Float64s(xs)

	out := make([]float64, len(xs))
	for i, x := range xs {
		switch x {
		case 0:
			out[i] = 0
		case 255:
			out[i] = 255
		default:
			var sum float64
			for _, y := range ys[x] {
				sum += y
			}
			out[i] = sum / float64(len(ys[x]))
		}
		if i > 0 && out[i] < out[i-1] {
			out[i] = out[i-1]
		}
	}

	var lut [256]uint8
	if len(xs) < 2 {
		for i := range lut {
			lut[i] = uint8(i)
		}
		return lut
	}
	var fb interp.FritschButland
	_ = fb.Fit(xs, out)
	for i := range lut {
		v := fb.Predict(float64(i))
		lut[i] = uint8(math.Round(math.Max(0, math.Min(255, v))))
	}
	return lut
}

// Apply remaps the color channels of img through the curves. Alpha is
// untouched.
func (c *Curves) Apply(img *image.NRGBA) {
	luts := [3][256]uint8{LUT(c.Red), LUT(c.Green), LUT(c.Blue)}
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		row := img.Pix[img.PixOffset(b.Min.X, y):]
		for x := 0; x < b.Dx(); x++ {
			px := row[x*4 : x*4+4 : x*4+4]
			px[0] = luts[0][px[0]]
			px[1] = luts[1][px[1]]
			px[2] = luts[2][px[2]]
		}
	}
}

// ColorBalance matches the warped moved layer to the reference by tone
// curves through the colors found at the control points. ref and moved are
// the unwarped source images the control points refer to; cps is the full
// list and only its color balance points are sampled. It does nothing with
// fewer than two points in total, without a moved layer, or when no flagged
// point was usable. The returned curves are nil in that case.
func ColorBalance(p *Placement, ref, moved image.Image, cps controlpoint.List, fit controlpoint.Fit, radius float64, log *zap.SugaredLogger) *Curves {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	if len(cps) < 2 || p == nil || p.Moved == nil || p.Moved.Image == nil {
		log.Debugw("color balance skipped", "points", len(cps))
		return nil
	}
	c := BuildCurves(ref, moved, cps, fit, radius)
	if len(c.Red) <= 4 {
		log.Debugw("color balance skipped, no usable points")
		return nil
	}
	c.Apply(p.Moved.Image)
	log.Debugw("color balanced", "pairs", c.NPairs())
	return c
}
