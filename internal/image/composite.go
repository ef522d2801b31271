package image

import (
	"image"
	"image/color"
	"math"

	"panostitch/pkg/colorutil"
)

// BlendMode specifies how layers and mask gradients are combined.
type BlendMode int

const (
	BlendNormal BlendMode = iota
	BlendMultiply
	BlendScreen
)

func (m BlendMode) String() string {
	switch m {
	case BlendNormal:
		return "Normal"
	case BlendMultiply:
		return "Multiply"
	case BlendScreen:
		return "Screen"
	default:
		return "Unknown"
	}
}

// Composite combines multiple layers into a single image.
type Composite struct {
	Width     int
	Height    int
	Layers    []*CompositeLayer
	BackColor color.NRGBA
}

// CompositeLayer wraps a Layer with compositing settings.
type CompositeLayer struct {
	Layer     *Layer
	BlendMode BlendMode
}

// NewComposite creates a new Composite with a transparent background.
func NewComposite(width, height int) *Composite {
	return &Composite{
		Width:     width,
		Height:    height,
		BackColor: colorutil.Transparent,
	}
}

// AddLayer stacks a layer on top of the ones already added. The layer's
// Offset places it on the canvas.
func (c *Composite) AddLayer(layer *Layer, mode BlendMode) {
	c.Layers = append(c.Layers, &CompositeLayer{
		Layer:     layer,
		BlendMode: mode,
	})
}

// Render produces the final composited image.
func (c *Composite) Render() *image.NRGBA {
	result := image.NewNRGBA(image.Rect(0, 0, c.Width, c.Height))

	// Fill background
	if c.BackColor != colorutil.Transparent {
		for i := 0; i < len(result.Pix); i += 4 {
			result.Pix[i+0] = c.BackColor.R
			result.Pix[i+1] = c.BackColor.G
			result.Pix[i+2] = c.BackColor.B
			result.Pix[i+3] = c.BackColor.A
		}
	}

	// Composite each layer
	for _, cl := range c.Layers {
		if cl.Layer == nil || cl.Layer.Image == nil || !cl.Layer.Visible {
			continue
		}
		c.compositeLayer(result, cl)
	}

	return result
}

// compositeLayer blends a single layer onto the result.
func (c *Composite) compositeLayer(dst *image.NRGBA, cl *CompositeLayer) {
	l := cl.Layer
	area := l.Bounds().Intersect(dst.Bounds())
	for y := area.Min.Y; y < area.Max.Y; y++ {
		for x := area.Min.X; x < area.Max.X; x++ {
			src := l.PixelAt(x, y)
			if src.A == 0 {
				continue
			}
			alpha := float64(src.A) / 255 * l.Opacity * float64(l.MaskAt(x, y)) / 255
			if alpha <= 0 {
				continue
			}
			i := dst.PixOffset(x, y)
			blendPixel(dst.Pix[i:i+4], src, cl.BlendMode, alpha)
		}
	}
}

// blendPixel composites src over the non-premultiplied pixel d with the
// given effective alpha.
func blendPixel(d []uint8, src color.NRGBA, mode BlendMode, alpha float64) {
	da := float64(d[3]) / 255
	outA := alpha + da*(1-alpha)
	if outA <= 0 {
		return
	}
	s := [3]uint8{src.R, src.G, src.B}
	for k := 0; k < 3; k++ {
		sf := float64(s[k]) / 255
		df := float64(d[k]) / 255
		// Against a transparent backdrop every mode reduces to the source.
		rf := sf*(1-da) + blendChannel(mode, sf, df)*da
		v := (rf*alpha + df*da*(1-alpha)) / outA
		d[k] = uint8(math.Round(clamp(v, 0, 1) * 255))
	}
	d[3] = uint8(math.Round(clamp(outA, 0, 1) * 255))
}

// blendChannel combines a source value s with a backdrop value d, both in
// [0, 1].
func blendChannel(mode BlendMode, s, d float64) float64 {
	switch mode {
	case BlendMultiply:
		return s * d
	case BlendScreen:
		return 1 - (1-s)*(1-d)
	default:
		return s
	}
}

func clamp(x, min, max float64) float64 {
	if x < min {
		return min
	}
	if x > max {
		return max
	}
	return x
}

// PasteMasked blends src into dst over r, weighting each pixel by the
// matching mask value. src, dst and mask share one coordinate space.
func PasteMasked(dst, src *image.NRGBA, mask *image.Gray, r image.Rectangle) {
	r = r.Intersect(dst.Bounds()).Intersect(src.Bounds()).Intersect(mask.Bounds())
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			m := mask.Pix[mask.PixOffset(x, y)]
			if m == 0 {
				continue
			}
			si, di := src.PixOffset(x, y), dst.PixOffset(x, y)
			if m == 255 {
				copy(dst.Pix[di:di+4], src.Pix[si:si+4])
				continue
			}
			w := float64(m) / 255
			sa := float64(src.Pix[si+3]) / 255 * w
			da := float64(dst.Pix[di+3]) / 255 * (1 - w)
			outA := sa + da
			if outA <= 0 {
				dst.Pix[di+3] = 0
				continue
			}
			for k := 0; k < 3; k++ {
				v := (float64(src.Pix[si+k])*sa + float64(dst.Pix[di+k])*da) / outA
				dst.Pix[di+k] = uint8(math.Round(clamp(v, 0, 255)))
			}
			dst.Pix[di+3] = uint8(math.Round(clamp(outA, 0, 1) * 255))
		}
	}
}
