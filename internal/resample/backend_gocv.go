//go:build gocv

package resample

import (
	"image"
	"image/color"
	"image/draw"

	"panostitch/internal/transform"

	"gocv.io/x/gocv"
)

func cvInterpolation(i Interpolation) gocv.InterpolationFlags {
	switch i {
	case InterpolationLinear:
		return gocv.InterpolationLinear
	case InterpolationCubic:
		return gocv.InterpolationCubic
	default:
		return gocv.InterpolationNearestNeighbor
	}
}

// warp hands the whole region to OpenCV. OpenCV puts pixel centres on
// integers and uses column vectors, so the transform is shifted by half a
// pixel and transposed.
func warp(dst draw.Image, src image.Image, t, _ transform.Transform, region image.Rectangle, opts Options) error {
	sb := src.Bounds()
	cv := transform.Translation(0.5+float64(sb.Min.X), 0.5+float64(sb.Min.Y)).
		Mul(t).
		Mul(transform.Translation(-0.5-float64(region.Min.X), -0.5-float64(region.Min.Y)))

	m := gocv.NewMatWithSize(3, 3, gocv.MatTypeCV64F)
	defer m.Close()
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			m.SetDoubleAt(i, j, cv[j][i])
		}
	}

	in := imageToMat(src)
	defer in.Close()
	out := gocv.NewMat()
	defer out.Close()
	gocv.WarpPerspectiveWithParams(in, &out, m, region.Size(),
		cvInterpolation(opts.Interpolation), gocv.BorderConstant, color.RGBA{})

	draw.Draw(dst, region, matToImage(out), image.Point{}, draw.Src)
	return nil
}

// imageToMat converts an image to a 4-channel RGBA Mat, origin at the
// image bounds minimum.
func imageToMat(img image.Image) gocv.Mat {
	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	mat := gocv.NewMatWithSize(height, width, gocv.MatTypeCV8UC4)
	parallelRows(0, height, func(yStart, yEnd int) {
		for y := yStart; y < yEnd; y++ {
			for x := 0; x < width; x++ {
				c := color.NRGBAModel.Convert(img.At(x+bounds.Min.X, y+bounds.Min.Y)).(color.NRGBA)
				mat.SetUCharAt(y, x*4+0, c.R)
				mat.SetUCharAt(y, x*4+1, c.G)
				mat.SetUCharAt(y, x*4+2, c.B)
				mat.SetUCharAt(y, x*4+3, c.A)
			}
		}
	})
	return mat
}

// matToImage converts a 4-channel RGBA Mat back to an image.
func matToImage(mat gocv.Mat) *image.NRGBA {
	h := mat.Rows()
	w := mat.Cols()

	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	stride := img.Stride
	parallelRows(0, h, func(yStart, yEnd int) {
		for y := yStart; y < yEnd; y++ {
			rowOffset := y * stride
			for x := 0; x < w; x++ {
				pixOffset := rowOffset + x*4
				img.Pix[pixOffset+0] = mat.GetUCharAt(y, x*4+0)
				img.Pix[pixOffset+1] = mat.GetUCharAt(y, x*4+1)
				img.Pix[pixOffset+2] = mat.GetUCharAt(y, x*4+2)
				img.Pix[pixOffset+3] = mat.GetUCharAt(y, x*4+3)
			}
		}
	})
	return img
}
