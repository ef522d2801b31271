// Package colorutil provides shared color utilities for the stitcher.
package colorutil

import (
	"image"
	"image/color"
	"math"

	"github.com/lucasb-eyer/go-colorful"
)

// Mask and background colors.
var (
	Black       = color.RGBA{R: 0, G: 0, B: 0, A: 255}
	White       = color.RGBA{R: 255, G: 255, B: 255, A: 255}
	Transparent = color.NRGBA{}
)

// Brightness returns r+g+b of an 8-bit non-premultiplied pixel.
func Brightness(c color.NRGBA) int {
	return int(c.R) + int(c.G) + int(c.B)
}

// Average returns the mean color of the opaque pixels in the square window
// of the given radius centred on (x, y). ok is false when no opaque pixel
// falls inside the window.
func Average(img image.Image, x, y, radius float64) (avg colorful.Color, ok bool) {
	r := int(math.Round(radius))
	if r < 0 {
		r = 0
	}
	cx, cy := int(math.Round(x)), int(math.Round(y))
	win := image.Rect(cx-r, cy-r, cx+r+1, cy+r+1).Intersect(img.Bounds())

	var sr, sg, sb float64
	n := 0
	for py := win.Min.Y; py < win.Max.Y; py++ {
		for px := win.Min.X; px < win.Max.X; px++ {
			c := color.NRGBAModel.Convert(img.At(px, py)).(color.NRGBA)
			if c.A == 0 {
				continue
			}
			sr += float64(c.R)
			sg += float64(c.G)
			sb += float64(c.B)
			n++
		}
	}
	if n == 0 {
		return colorful.Color{}, false
	}
	k := 255 * float64(n)
	return colorful.Color{R: sr / k, G: sg / k, B: sb / k}.Clamped(), true
}

// Channels returns the 0-255 channel values of c.
func Channels(c colorful.Color) [3]float64 {
	return [3]float64{c.R * 255, c.G * 255, c.B * 255}
}
