// Package correlate refines a control point by maximizing the normalized
// cross-correlation between two selections.
package correlate

import (
	"context"
	"image"
	"image/draw"
	"math"

	"panostitch/internal/controlpoint"
	"panostitch/internal/resample"
	"panostitch/internal/simplex"
	"panostitch/internal/transform"
	"panostitch/pkg/colorutil"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// ErrEmptySelection is returned when a selection does not overlap its image.
var ErrEmptySelection = errors.New("correlate: empty selection")

// Options configure Refine.
type Options struct {
	// Correlate enables the optimization. When false the selection centres
	// are paired as they are.
	Correlate bool

	// ColorBalance is copied onto the resulting control point.
	ColorBalance bool

	Simplex  simplex.Settings
	Resample resample.Options

	// Passes is how many times the optimizer restarts from its last best
	// vertex.
	Passes int

	// Progress, if set, receives the best correlation seen so far,
	// clamped at zero.
	Progress func(corr float64)

	Logger *zap.SugaredLogger
}

// DefaultOptions returns two 100-iteration passes at 1e-3 tolerances with
// cubic supersampled trial warps.
func DefaultOptions() Options {
	return Options{
		Correlate:    true,
		ColorBalance: true,
		Simplex:      simplex.Settings{FTol: 1e-3, XTol: 1e-3, MaxIter: 100},
		Resample:     resample.DefaultOptions(),
		Passes:       2,
		Logger:       zap.NewNop().Sugar(),
	}
}

// NCC returns the normalized cross-correlation of the brightness (r+g+b)
// of two equally sized images, taken over pixels opaque in both. It is 0
// when there is no such pixel or either side is flat.
func NCC(ref, moved *image.NRGBA) float64 {
	b := ref.Bounds().Intersect(moved.Bounds())

	var rsum, tsum float64
	n := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			rc, tc := ref.NRGBAAt(x, y), moved.NRGBAAt(x, y)
			if rc.A == 0 || tc.A == 0 {
				continue
			}
			rsum += float64(colorutil.Brightness(rc))
			tsum += float64(colorutil.Brightness(tc))
			n++
		}
	}
	if n == 0 {
		return 0
	}
	rmean, tmean := rsum/float64(n), tsum/float64(n)

	var rt, r2, t2 float64
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			rc, tc := ref.NRGBAAt(x, y), moved.NRGBAAt(x, y)
			if rc.A == 0 || tc.A == 0 {
				continue
			}
			rv := float64(colorutil.Brightness(rc)) - rmean
			tv := float64(colorutil.Brightness(tc)) - tmean
			rt += rv * tv
			r2 += rv * rv
			t2 += tv * tv
		}
	}
	if r2 == 0 || t2 == 0 {
		return 0
	}
	return rt / (math.Sqrt(r2) * math.Sqrt(t2))
}

// centred copies sel of img into the middle of a transparent w×h canvas.
func centred(img image.Image, sel image.Rectangle, w, h int) *image.NRGBA {
	canvas := image.NewNRGBA(image.Rect(0, 0, w, h))
	at := image.Pt((w-sel.Dx())/2, (h-sel.Dy())/2)
	draw.Draw(canvas, sel.Sub(sel.Min).Add(at), img, sel.Min, draw.Src)
	return canvas
}

func centre(r image.Rectangle) (float64, float64) {
	return float64(r.Min.X+r.Max.X) / 2, float64(r.Min.Y+r.Max.Y) / 2
}

// Refine builds a control point from a reference selection and a moved
// selection. Both selections are centred on a common canvas; the moved
// canvas is then shifted, rotated and scaled about its centre to maximize
// its correlation with the reference canvas. prior, if given, seeds the
// rotation and scale.
func Refine(ctx context.Context, ref, moved image.Image, refSel, movedSel image.Rectangle, prior *transform.Transform, opts Options) (controlpoint.ControlPoint, error) {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	refSel = refSel.Intersect(ref.Bounds())
	movedSel = movedSel.Intersect(moved.Bounds())
	if refSel.Empty() {
		return controlpoint.ControlPoint{}, errors.Wrap(ErrEmptySelection, "reference image")
	}
	if movedSel.Empty() {
		return controlpoint.ControlPoint{}, errors.Wrap(ErrEmptySelection, "moved image")
	}

	rw, rh := refSel.Dx(), refSel.Dy()
	tw, th := movedSel.Dx(), movedSel.Dy()
	xsize, ysize := max(rw, tw), max(rh, th)

	rcanvas := centred(ref, refSel, xsize, ysize)
	pristine := centred(moved, movedSel, xsize, ysize)
	corr := NCC(rcanvas, pristine)

	v := []float64{0, 0, 0, 1}
	if opts.Correlate {
		rot, scale := 0.0, 1.0
		if prior != nil {
			scale, rot = transform.Decompose(*prior)
		}
		v = []float64{0, 0, -rot, scale}
		steps := []float64{
			math.Max(math.Min(float64(rw)/8, float64(tw)/8), 1),
			math.Max(math.Min(float64(rh)/8, float64(th)/8), 1),
			0.10,
			0.10,
		}

		scratch := image.NewNRGBA(pristine.Rect)
		var evalErr error
		progress := 0.0
		objective := func(x []float64) float64 {
			if evalErr != nil {
				return -1
			}
			if err := ctx.Err(); err != nil {
				evalErr = err
				return -1
			}
			trial := transform.FromShiftRotateScale(x[0], x[1], x[2], x[3], xsize, ysize)
			// Warp rewrites every scratch pixel, so no trial sees another's output.
			if err := resample.Warp(scratch, pristine, trial, opts.Resample); err != nil {
				// A degenerate trial (zero scale) is just a bad vertex.
				log.Debugw("trial warp failed", "error", err)
				return -1
			}
			c := NCC(rcanvas, scratch)
			if opts.Progress != nil && c > progress {
				progress = c
				opts.Progress(progress)
			}
			return c
		}

		passes := opts.Passes
		if passes < 1 {
			passes = 1
		}
		for pass := 0; pass < passes; pass++ {
			res := simplex.Maximize(objective, v, steps, opts.Simplex)
			if evalErr != nil {
				return controlpoint.ControlPoint{}, errors.Wrap(evalErr, "correlate")
			}
			v, corr = res.X, res.F
			log.Debugw("correlation pass", "pass", pass, "corr", corr, "iterations", res.Iterations,
				"shift_x", v[0], "shift_y", v[1], "rotation", v[2], "scale", v[3])
		}
	}

	inv, err := transform.Invert(transform.FromShiftRotateScale(v[0], v[1], v[2], v[3], xsize, ysize))
	if err != nil {
		return controlpoint.ControlPoint{}, errors.Wrap(err, "correlate")
	}
	xc, yc := float64(xsize-1)/2, float64(ysize-1)/2
	sx, sy := inv.Apply(xc, yc)

	rx, ry := centre(refSel)
	tx, ty := centre(movedSel)
	cp := controlpoint.ControlPoint{
		X1:           rx,
		Y1:           ry,
		X2:           tx + sx - xc,
		Y2:           ty + sy - yc,
		ColorBalance: opts.ColorBalance,
	}
	return cp.WithCorrelation(corr), nil
}
