package resample

import (
	"image"
	"image/color"
	"image/draw"
	"math"
	"runtime"
	"sync"
)

// premultiplied RGBA in [0, 255]
type rgba [4]float64

func (c rgba) add(o rgba, w float64) rgba {
	for k := range c {
		c[k] += o[k] * w
	}
	return c
}

func (c rgba) nrgba() color.NRGBA {
	a := math.Max(0, math.Min(255, c[3]))
	if a <= 0 {
		return color.NRGBA{}
	}
	ch := func(v float64) uint8 {
		return uint8(math.Round(math.Max(0, math.Min(255, v*255/a))))
	}
	return color.NRGBA{R: ch(c[0]), G: ch(c[1]), B: ch(c[2]), A: uint8(math.Round(a))}
}

// sampler reads an NRGBA image at continuous coordinates. Texels outside
// the image are transparent.
type sampler struct {
	img  *image.NRGBA
	rect image.Rectangle
}

func newSampler(src image.Image) *sampler {
	img, ok := src.(*image.NRGBA)
	if !ok {
		img = image.NewNRGBA(src.Bounds())
		draw.Draw(img, img.Rect, src, img.Rect.Min, draw.Src)
	}
	return &sampler{img: img, rect: img.Rect}
}

func (s *sampler) texel(x, y int) rgba {
	if !(image.Point{X: x, Y: y}).In(s.rect) {
		return rgba{}
	}
	i := s.img.PixOffset(x, y)
	p := s.img.Pix[i : i+4 : i+4]
	a := float64(p[3]) / 255
	return rgba{float64(p[0]) * a, float64(p[1]) * a, float64(p[2]) * a, float64(p[3])}
}

func (s *sampler) inside(x, y float64) bool {
	return x >= float64(s.rect.Min.X) && y >= float64(s.rect.Min.Y) &&
		x < float64(s.rect.Max.X) && y < float64(s.rect.Max.Y)
}

func (s *sampler) at(x, y float64, interp Interpolation) rgba {
	switch interp {
	case InterpolationLinear:
		return s.bilinear(x, y)
	case InterpolationCubic:
		return s.bicubic(x, y)
	default:
		return s.texel(int(math.Floor(x)), int(math.Floor(y)))
	}
}

func (s *sampler) bilinear(x, y float64) rgba {
	x, y = x-0.5, y-0.5
	x0, y0 := math.Floor(x), math.Floor(y)
	fx, fy := x-x0, y-y0
	ix, iy := int(x0), int(y0)
	var c rgba
	c = c.add(s.texel(ix, iy), (1-fx)*(1-fy))
	c = c.add(s.texel(ix+1, iy), fx*(1-fy))
	c = c.add(s.texel(ix, iy+1), (1-fx)*fy)
	c = c.add(s.texel(ix+1, iy+1), fx*fy)
	return c
}

// catmullRom is the a = -0.5 cubic convolution kernel.
func catmullRom(t float64) float64 {
	t = math.Abs(t)
	switch {
	case t < 1:
		return (1.5*t-2.5)*t*t + 1
	case t < 2:
		return ((-0.5*t+2.5)*t-4)*t + 2
	}
	return 0
}

func (s *sampler) bicubic(x, y float64) rgba {
	x, y = x-0.5, y-0.5
	x0, y0 := math.Floor(x), math.Floor(y)
	ix, iy := int(x0), int(y0)
	var wx, wy [4]float64
	for k := 0; k < 4; k++ {
		wx[k] = catmullRom(x - (x0 + float64(k-1)))
		wy[k] = catmullRom(y - (y0 + float64(k-1)))
	}
	var c rgba
	for j := 0; j < 4; j++ {
		for i := 0; i < 4; i++ {
			c = c.add(s.texel(ix+i-1, iy+j-1), wx[i]*wy[j])
		}
	}
	// Overshoot past the alpha would break the premultiplied invariant.
	c[3] = math.Max(0, math.Min(255, c[3]))
	for k := 0; k < 3; k++ {
		c[k] = math.Max(0, math.Min(c[3], c[k]))
	}
	return c
}

// parallelRows splits [y0, y1) into one stripe per CPU.
func parallelRows(y0, y1 int, fn func(yStart, yEnd int)) {
	height := y1 - y0
	numWorkers := runtime.NumCPU()
	rowsPerWorker := (height + numWorkers - 1) / numWorkers

	var wg sync.WaitGroup
	for w := 0; w < numWorkers; w++ {
		startY := y0 + w*rowsPerWorker
		endY := startY + rowsPerWorker
		if endY > y1 {
			endY = y1
		}
		if startY >= y1 {
			break
		}

		wg.Add(1)
		go func(yStart, yEnd int) {
			defer wg.Done()
			fn(yStart, yEnd)
		}(startY, endY)
	}
	wg.Wait()
}
