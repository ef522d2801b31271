package image

import (
	"image"
	"math"

	"panostitch/pkg/geometry"
)

// NewMask returns a mask over r filled with v.
func NewMask(r image.Rectangle, v uint8) *image.Gray {
	m := image.NewGray(r)
	if v != 0 {
		for i := range m.Pix {
			m.Pix[i] = v
		}
	}
	return m
}

// Selection reports whether the mask pixel (x, y) may be edited.
type Selection func(x, y int) bool

// RectSelection selects the pixels of r.
func RectSelection(r image.Rectangle) Selection {
	return func(x, y int) bool {
		return image.Pt(x, y).In(r)
	}
}

// Intersect selects pixels chosen by both s and other.
func (s Selection) Intersect(other Selection) Selection {
	return func(x, y int) bool {
		return s(x, y) && other(x, y)
	}
}

// PaintGradient paints a linear black-to-white gradient running from
// `from` to `to` into the selected pixels of mask, combined with the
// existing values by mode. Before `from` the gradient is black, past `to`
// white; reverse swaps the ends. A zero-length gradient is uniform white,
// or black under BlendScreen, so it leaves Multiply and Screen passes
// unchanged.
func PaintGradient(mask *image.Gray, sel Selection, from, to geometry.Point2D, reverse bool, mode BlendMode) {
	dir := to.Sub(from)
	length2 := dir.X*dir.X + dir.Y*dir.Y

	b := mask.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if sel != nil && !sel(x, y) {
				continue
			}
			var g float64
			switch {
			case length2 == 0 && mode == BlendScreen:
				g = 0
			case length2 == 0:
				g = 1
			default:
				t := ((float64(x)-from.X)*dir.X + (float64(y)-from.Y)*dir.Y) / length2
				g = clamp(t, 0, 1)
				if reverse {
					g = 1 - g
				}
			}
			i := mask.PixOffset(x, y)
			d := float64(mask.Pix[i]) / 255
			mask.Pix[i] = uint8(math.Round(clamp(blendChannel(mode, g, d), 0, 1) * 255))
		}
	}
}

// FillPolygon sets the pixels of mask whose centres lie inside polygon to v.
// With feather > 0 the edge is a linear ramp of that half-width across the
// boundary.
func FillPolygon(mask *image.Gray, polygon []geometry.Point2D, v uint8, feather float64) {
	box := geometry.BoundingBox(polygon).Pixels()
	box.Max = box.Max.Add(image.Pt(1, 1))
	if feather > 0 {
		pad := int(math.Ceil(feather))
		box = box.Inset(-pad)
	}
	box = box.Intersect(mask.Bounds())
	for y := box.Min.Y; y < box.Max.Y; y++ {
		for x := box.Min.X; x < box.Max.X; x++ {
			p := geometry.Point2D{X: float64(x), Y: float64(y)}
			var w float64
			if feather > 0 {
				w = clamp((geometry.SignedDistance(p, polygon)+feather)/(2*feather), 0, 1)
			} else if geometry.PointInPolygon(p, polygon) {
				w = 1
			}
			if w == 0 {
				continue
			}
			i := mask.PixOffset(x, y)
			cur := float64(mask.Pix[i])
			mask.Pix[i] = uint8(math.Round(cur*(1-w) + float64(v)*w))
		}
	}
}
