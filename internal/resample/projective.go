package resample

import (
	"image"
	"image/draw"

	"panostitch/internal/transform"
)

// warpProjective inverse-maps every pixel of region through inv and
// averages samples×samples points spread over the pixel.
func warpProjective(dst draw.Image, src image.Image, inv transform.Transform, region image.Rectangle, opts Options) {
	s := newSampler(src)
	n := opts.samplesPerAxis()
	weight := 1 / float64(n*n)
	out, direct := dst.(*image.NRGBA)

	parallelRows(region.Min.Y, region.Max.Y, func(yStart, yEnd int) {
		for y := yStart; y < yEnd; y++ {
			for x := region.Min.X; x < region.Max.X; x++ {
				var acc rgba
				for j := 0; j < n; j++ {
					py := float64(y) + (float64(j)+0.5)/float64(n)
					for i := 0; i < n; i++ {
						px := float64(x) + (float64(i)+0.5)/float64(n)
						sx, sy := inv.Apply(px, py)
						if !s.inside(sx, sy) {
							continue
						}
						acc = acc.add(s.at(sx, sy, opts.Interpolation), weight)
					}
				}
				c := acc.nrgba()
				if direct {
					o := out.PixOffset(x, y)
					out.Pix[o+0], out.Pix[o+1], out.Pix[o+2], out.Pix[o+3] = c.R, c.G, c.B, c.A
				} else {
					dst.Set(x, y, c)
				}
			}
		}
	})
}
