//go:build !gocv

package resample

import (
	"image"

	"panostitch/internal/transform"

	xdraw "golang.org/x/image/draw"
)

func interpolator(i Interpolation) xdraw.Interpolator {
	switch i {
	case InterpolationLinear:
		return xdraw.ApproxBiLinear
	case InterpolationCubic:
		return xdraw.CatmullRom
	default:
		return xdraw.NearestNeighbor
	}
}

func warp(dst xdraw.Image, src image.Image, t, inv transform.Transform, region image.Rectangle, opts Options) error {
	if !t.IsAffine() {
		warpProjective(dst, src, inv, region, opts)
		return nil
	}
	m := t.Aff3()
	m[2] -= float64(region.Min.X)
	m[5] -= float64(region.Min.Y)
	tmp := image.NewNRGBA(image.Rect(0, 0, region.Dx(), region.Dy()))
	interpolator(opts.Interpolation).Transform(tmp, m, src, src.Bounds(), xdraw.Src, nil)
	xdraw.Draw(dst, region, tmp, image.Point{}, xdraw.Src)
	return nil
}
