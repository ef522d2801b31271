// Package image provides image loading, layer management, masks and
// compositing.
package image

import (
	"image"
	"image/color"
	"image/draw"
	_ "image/jpeg"
	_ "image/png"
	"path/filepath"
	"strings"

	"panostitch/pkg/colorutil"

	"github.com/disintegration/imaging"
	"github.com/lucasb-eyer/go-colorful"
	"github.com/pkg/errors"
	_ "github.com/spakin/netpbm"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
)

// Layer is an image placed on a canvas. Image bounds always start at the
// origin; Offset positions it on the canvas.
type Layer struct {
	Path  string
	Image *image.NRGBA

	// Mask scales the layer alpha (255 = opaque). nil means no mask.
	Mask *image.Gray

	Offset  image.Point
	Visible bool
	Opacity float64 // 0.0 - 1.0
}

// NewLayer wraps img in a visible, fully opaque layer at the origin.
func NewLayer(img *image.NRGBA) *Layer {
	return &Layer{
		Image:   img,
		Visible: true,
		Opacity: 1.0,
	}
}

// Load reads an image file and returns it as a layer. EXIF orientation is
// honoured for JPEG input.
func Load(path string) (*Layer, error) {
	if !IsSupportedFormat(path) {
		return nil, errors.Errorf("unsupported image format %q", filepath.Ext(path))
	}
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load image %s", path)
	}
	layer := FromImage(img)
	layer.Path = path
	return layer, nil
}

// FromImage copies any image into a layer.
func FromImage(img image.Image) *Layer {
	return NewLayer(imaging.Clone(img))
}

// Save writes img to path, picking the encoder from the extension.
func Save(img image.Image, path string) error {
	if err := imaging.Save(img, path); err != nil {
		return errors.Wrapf(err, "failed to save image %s", path)
	}
	return nil
}

// Width returns the image width in pixels.
func (l *Layer) Width() int {
	if l.Image == nil {
		return 0
	}
	return l.Image.Bounds().Dx()
}

// Height returns the image height in pixels.
func (l *Layer) Height() int {
	if l.Image == nil {
		return 0
	}
	return l.Image.Bounds().Dy()
}

// Bounds returns the layer extent in canvas coordinates.
func (l *Layer) Bounds() image.Rectangle {
	if l.Image == nil {
		return image.Rectangle{}
	}
	return l.Image.Bounds().Add(l.Offset)
}

// PixelAt returns the layer pixel at canvas coordinates, transparent
// outside the layer.
func (l *Layer) PixelAt(x, y int) color.NRGBA {
	p := image.Pt(x, y).Sub(l.Offset)
	if l.Image == nil || !p.In(l.Image.Bounds()) {
		return colorutil.Transparent
	}
	return l.Image.NRGBAAt(p.X, p.Y)
}

// MaskAt returns the mask value at canvas coordinates. Pixels of an
// unmasked layer read 255; pixels outside the layer read 0.
func (l *Layer) MaskAt(x, y int) uint8 {
	p := image.Pt(x, y).Sub(l.Offset)
	if l.Image == nil || !p.In(l.Image.Bounds()) {
		return 0
	}
	if l.Mask == nil {
		return 255
	}
	return l.Mask.GrayAt(p.X, p.Y).Y
}

// AddMask attaches a mask filled with v, replacing any existing mask.
func (l *Layer) AddMask(v uint8) *image.Gray {
	l.Mask = NewMask(l.Image.Bounds(), v)
	return l.Mask
}

// Snapshot is a saved copy of a layer's pixels.
type Snapshot struct {
	image *image.NRGBA
	mask  *image.Gray
}

// Snapshot copies the layer pixels and mask.
func (l *Layer) Snapshot() *Snapshot {
	s := &Snapshot{image: imaging.Clone(l.Image)}
	if l.Mask != nil {
		s.mask = cloneGray(l.Mask)
	}
	return s
}

// Restore copies a snapshot back into the layer buffers, reusing them when
// the sizes match.
func (l *Layer) Restore(s *Snapshot) {
	if l.Image == nil || l.Image.Bounds() != s.image.Bounds() {
		l.Image = imaging.Clone(s.image)
	}
	switch {
	case s.mask == nil:
		l.Mask = nil
	case l.Mask == nil || l.Mask.Bounds() != s.mask.Bounds():
		l.Mask = cloneGray(s.mask)
	}
	l.RestoreRect(s, l.Image.Bounds())
}

// RestoreRect copies the part of a snapshot inside r back into the layer.
func (l *Layer) RestoreRect(s *Snapshot, r image.Rectangle) {
	r = r.Intersect(s.image.Bounds())
	draw.Draw(l.Image, r, s.image, r.Min, draw.Src)
	if s.mask != nil && l.Mask != nil {
		draw.Draw(l.Mask, r, s.mask, r.Min, draw.Src)
	}
}

// VisibleBounds returns the smallest rectangle, in layer coordinates,
// holding every pixel with non-zero alpha.
func (l *Layer) VisibleBounds() image.Rectangle {
	var r image.Rectangle
	if l.Image == nil {
		return r
	}
	b := l.Image.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		row := l.Image.Pix[l.Image.PixOffset(b.Min.X, y):]
		for x := b.Min.X; x < b.Max.X; x++ {
			if row[(x-b.Min.X)*4+3] == 0 {
				continue
			}
			px := image.Rect(x, y, x+1, y+1)
			if r.Empty() {
				r = px
			} else {
				r = r.Union(px)
			}
		}
	}
	return r
}

// CropToVisible trims transparent borders and moves Offset so the content
// stays where it was on the canvas.
func (l *Layer) CropToVisible() {
	vis := l.VisibleBounds()
	if vis == l.Image.Bounds() {
		return
	}
	if vis.Empty() {
		l.Image = &image.NRGBA{}
		l.Mask = nil
		return
	}
	l.Image = imaging.Crop(l.Image, vis)
	if l.Mask != nil {
		m := image.NewGray(image.Rect(0, 0, vis.Dx(), vis.Dy()))
		draw.Draw(m, m.Bounds(), l.Mask, vis.Min, draw.Src)
		l.Mask = m
	}
	l.Offset = l.Offset.Add(vis.Min)
}

// Sample averages the opaque pixels around (x, y), given in layer
// coordinates.
func (l *Layer) Sample(x, y, radius float64) (colorful.Color, bool) {
	return colorutil.Average(l.Image, x, y, radius)
}

// SupportedFormats returns the list of supported image formats.
func SupportedFormats() []string {
	return []string{".tiff", ".tif", ".png", ".jpg", ".jpeg", ".bmp", ".ppm", ".pgm", ".pbm", ".pam"}
}

// IsSupportedFormat checks if the given path has a supported image format.
func IsSupportedFormat(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, format := range SupportedFormats() {
		if ext == format {
			return true
		}
	}
	return false
}

func cloneGray(g *image.Gray) *image.Gray {
	out := &image.Gray{
		Pix:    make([]uint8, len(g.Pix)),
		Stride: g.Stride,
		Rect:   g.Rect,
	}
	copy(out.Pix, g.Pix)
	return out
}
