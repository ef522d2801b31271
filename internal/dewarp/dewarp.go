// Package dewarp removes the distortion a global transform cannot express
// by warping each triangle of the control point mesh on its own.
package dewarp

import (
	"context"
	"image"
	"math"

	"panostitch/internal/controlpoint"
	"panostitch/internal/delaunay"
	pimage "panostitch/internal/image"
	"panostitch/internal/resample"
	"panostitch/internal/transform"
	"panostitch/pkg/geometry"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// MinPoints is the smallest point count that triggers dewarping. Below it
// the global fit is exact and there is nothing left to remove.
const MinPoints = 4

// Options configure Dewarp.
type Options struct {
	Resample resample.Options

	// Feather is the half-width of the soft edge between triangles.
	Feather float64

	// Progress, if set, is called after each triangle.
	Progress func(done, total int)

	Logger *zap.SugaredLogger
}

// DefaultOptions returns a two-pixel feather and default resampling.
func DefaultOptions() Options {
	return Options{
		Resample: resample.DefaultOptions(),
		Feather:  2,
		Logger:   zap.NewNop().Sugar(),
	}
}

// Dewarp shifts every control point of the moved image by its residual so
// that the global transform maps it exactly, stretching the image between
// points piecewise-affinely. The image corners are pinned. With fewer than
// MinPoints points moved is returned unchanged.
func Dewarp(ctx context.Context, moved *image.NRGBA, cps controlpoint.List, fit controlpoint.Fit, opts Options) (*image.NRGBA, error) {
	if len(cps) < MinPoints {
		return moved, nil
	}
	if !fit.Valid || len(fit.XErrors) != len(cps) || len(fit.YErrors) != len(cps) {
		return nil, errors.New("dewarp: fit does not match control points")
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	if moved.Rect.Min != (image.Point{}) {
		moved = imaging.Clone(moved)
	}
	bounds := moved.Bounds()
	w, h := float64(bounds.Dx()), float64(bounds.Dy())

	_, nominal := cps.Arrays()
	nominal = append(nominal,
		geometry.Point2D{X: 0, Y: 0},
		geometry.Point2D{X: 0, Y: h},
		geometry.Point2D{X: w, Y: 0},
		geometry.Point2D{X: w, Y: h},
	)
	xerr := append(append([]float64(nil), fit.XErrors...), 0, 0, 0, 0)
	yerr := append(append([]float64(nil), fit.YErrors...), 0, 0, 0, 0)

	triangles := delaunay.Triangulate(nominal)
	log.Debugw("dewarping", "points", len(cps), "triangles", len(triangles))

	out := imaging.Clone(moved)
	scratch := pimage.NewLayer(imaging.Clone(moved))
	scratch.Mask = pimage.NewMask(bounds, 0)
	original := scratch.Snapshot()

	for i, tri := range triangles {
		if err := ctx.Err(); err != nil {
			return nil, errors.Wrap(err, "dewarp")
		}

		var from, to [3]geometry.Point2D
		maxErr := 0.0
		for k, idx := range tri {
			from[k] = nominal[idx]
			to[k] = geometry.Point2D{X: nominal[idx].X - xerr[idx], Y: nominal[idx].Y - yerr[idx]}
			maxErr = math.Max(maxErr, math.Max(math.Abs(xerr[idx]), math.Abs(yerr[idx])))
		}
		pad := maxErr*2 + 5

		est, err := transform.EstimateTransform(to[:], from[:])
		if err != nil {
			return nil, errors.Wrapf(err, "dewarp: triangle %v", tri)
		}

		box := geometry.BoundingBox(to[:])
		region := geometry.RectFromCorners(
			math.Max(box.X-pad, 0), math.Max(box.Y-pad, 0),
			math.Min(box.X+box.Width+pad, w-1)+1, math.Min(box.Y+box.Height+pad, h-1)+1,
		).Pixels()

		if err := resample.WarpRegion(scratch.Image, moved, est.Transform, region, opts.Resample); err != nil {
			return nil, errors.Wrapf(err, "dewarp: triangle %v", tri)
		}

		for k := range to {
			to[k] = to[k].Clamp(w-1, h-1)
		}
		pimage.FillPolygon(scratch.Mask, to[:], 255, opts.Feather)
		pimage.PasteMasked(out, scratch.Image, scratch.Mask, region)

		// Undo this triangle so the next one starts from the original.
		scratch.RestoreRect(original, region)

		if opts.Progress != nil {
			opts.Progress(i+1, len(triangles))
		}
	}
	return out, nil
}
