package image

import (
	"image"
	"image/color"
	"path/filepath"
	"testing"

	"panostitch/pkg/geometry"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func solid(w, h int, c color.NRGBA) *image.NRGBA {
	return imaging.New(w, h, c)
}

func TestPaintGradientNormal(t *testing.T) {
	m := NewMask(image.Rect(0, 0, 21, 3), 0)
	PaintGradient(m, nil, geometry.Point2D{X: 5, Y: 0}, geometry.Point2D{X: 15, Y: 0}, false, BlendNormal)
	assert.Equal(t, uint8(0), m.GrayAt(0, 1).Y)
	assert.Equal(t, uint8(0), m.GrayAt(5, 1).Y)
	assert.InDelta(t, 128, int(m.GrayAt(10, 1).Y), 1)
	assert.Equal(t, uint8(255), m.GrayAt(15, 1).Y)
	assert.Equal(t, uint8(255), m.GrayAt(20, 1).Y)

	PaintGradient(m, nil, geometry.Point2D{X: 5, Y: 0}, geometry.Point2D{X: 15, Y: 0}, true, BlendNormal)
	assert.Equal(t, uint8(255), m.GrayAt(0, 1).Y)
	assert.Equal(t, uint8(0), m.GrayAt(20, 1).Y)
}

func TestPaintGradientModes(t *testing.T) {
	m := NewMask(image.Rect(0, 0, 11, 1), 255)
	PaintGradient(m, nil, geometry.Point2D{X: 0, Y: 0}, geometry.Point2D{X: 10, Y: 0}, false, BlendMultiply)
	assert.Equal(t, uint8(0), m.GrayAt(0, 0).Y)
	assert.Equal(t, uint8(255), m.GrayAt(10, 0).Y)

	// Screen with a reversed gradient lifts the dark start back to white.
	PaintGradient(m, nil, geometry.Point2D{X: 0, Y: 0}, geometry.Point2D{X: 10, Y: 0}, true, BlendScreen)
	assert.Equal(t, uint8(255), m.GrayAt(0, 0).Y)
	assert.Equal(t, uint8(255), m.GrayAt(10, 0).Y)
	assert.Less(t, m.GrayAt(5, 0).Y, uint8(255))
}

func TestPaintGradientZeroLength(t *testing.T) {
	m := NewMask(image.Rect(0, 0, 4, 4), 100)
	p := geometry.Point2D{X: 2, Y: 2}
	PaintGradient(m, nil, p, p, false, BlendMultiply)
	PaintGradient(m, nil, p, p, true, BlendScreen)
	for _, v := range m.Pix {
		assert.Equal(t, uint8(100), v)
	}
}

func TestPaintGradientSelection(t *testing.T) {
	m := NewMask(image.Rect(0, 0, 10, 10), 255)
	sel := RectSelection(image.Rect(0, 0, 5, 10)).Intersect(func(x, y int) bool { return y < 5 })
	PaintGradient(m, sel, geometry.Point2D{X: 20, Y: 0}, geometry.Point2D{X: 30, Y: 0}, false, BlendNormal)
	assert.Equal(t, uint8(0), m.GrayAt(2, 2).Y)
	assert.Equal(t, uint8(255), m.GrayAt(2, 7).Y)
	assert.Equal(t, uint8(255), m.GrayAt(7, 2).Y)
}

func TestFillPolygonFeather(t *testing.T) {
	m := NewMask(image.Rect(0, 0, 40, 40), 0)
	square := []geometry.Point2D{{X: 10, Y: 10}, {X: 30, Y: 10}, {X: 30, Y: 30}, {X: 10, Y: 30}}
	FillPolygon(m, square, 255, 2)
	assert.Equal(t, uint8(255), m.GrayAt(20, 20).Y)
	assert.Equal(t, uint8(0), m.GrayAt(5, 20).Y)
	edge := m.GrayAt(10, 20).Y
	assert.Greater(t, edge, uint8(0))
	assert.Less(t, edge, uint8(255))

	hard := NewMask(image.Rect(0, 0, 40, 40), 0)
	FillPolygon(hard, square, 200, 0)
	assert.Equal(t, uint8(200), hard.GrayAt(20, 20).Y)
	assert.Equal(t, uint8(0), hard.GrayAt(35, 20).Y)
}

func TestCompositeMaskAndOrder(t *testing.T) {
	red := color.NRGBA{R: 255, A: 255}
	blue := color.NRGBA{B: 255, A: 255}

	bottom := NewLayer(solid(10, 10, red))
	top := NewLayer(solid(10, 10, blue))
	mask := top.AddMask(255)
	for y := 0; y < 10; y++ {
		for x := 0; x < 5; x++ {
			mask.SetGray(x, y, color.Gray{Y: 0})
		}
	}

	c := NewComposite(12, 10)
	c.AddLayer(bottom, BlendNormal)
	c.AddLayer(top, BlendNormal)
	out := c.Render()

	assert.Equal(t, red, out.NRGBAAt(2, 5))
	assert.Equal(t, blue, out.NRGBAAt(7, 5))
	assert.Equal(t, uint8(0), out.NRGBAAt(11, 5).A)
}

func TestCompositeOffsetAndOpacity(t *testing.T) {
	white := color.NRGBA{R: 255, G: 255, B: 255, A: 255}
	l := NewLayer(solid(4, 4, white))
	l.Offset = image.Pt(2, 3)
	l.Opacity = 0.5

	c := NewComposite(8, 8)
	c.AddLayer(l, BlendNormal)
	out := c.Render()
	assert.Equal(t, uint8(0), out.NRGBAAt(1, 3).A)
	px := out.NRGBAAt(2, 3)
	assert.Equal(t, uint8(255), px.R)
	assert.InDelta(t, 128, int(px.A), 1)
}

func TestSnapshotRestore(t *testing.T) {
	l := NewLayer(solid(6, 6, color.NRGBA{G: 200, A: 255}))
	l.AddMask(255)
	snap := l.Snapshot()

	l.Image.SetNRGBA(1, 1, color.NRGBA{R: 9, A: 255})
	l.Mask.SetGray(1, 1, color.Gray{Y: 3})
	l.Restore(snap)

	assert.Equal(t, color.NRGBA{G: 200, A: 255}, l.Image.NRGBAAt(1, 1))
	assert.Equal(t, uint8(255), l.Mask.GrayAt(1, 1).Y)
}

func TestRestoreRect(t *testing.T) {
	l := NewLayer(solid(8, 8, color.NRGBA{B: 80, A: 255}))
	l.Mask = NewMask(l.Bounds(), 0)
	snap := l.Snapshot()

	for _, p := range []image.Point{{1, 1}, {6, 6}} {
		l.Image.SetNRGBA(p.X, p.Y, color.NRGBA{R: 250, A: 255})
		l.Mask.SetGray(p.X, p.Y, color.Gray{Y: 255})
	}
	l.RestoreRect(snap, image.Rect(0, 0, 4, 4))

	assert.Equal(t, color.NRGBA{B: 80, A: 255}, l.Image.NRGBAAt(1, 1))
	assert.Equal(t, uint8(0), l.Mask.GrayAt(1, 1).Y)
	assert.Equal(t, color.NRGBA{R: 250, A: 255}, l.Image.NRGBAAt(6, 6))
	assert.Equal(t, uint8(255), l.Mask.GrayAt(6, 6).Y)
}

func TestCropToVisible(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 20, 20))
	for y := 5; y < 8; y++ {
		for x := 10; x < 14; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: 1, A: 255})
		}
	}
	l := NewLayer(img)
	l.Offset = image.Pt(100, 50)
	l.AddMask(255)
	l.CropToVisible()

	assert.Equal(t, image.Rect(0, 0, 4, 3), l.Image.Bounds())
	assert.Equal(t, image.Rect(0, 0, 4, 3), l.Mask.Bounds())
	assert.Equal(t, image.Pt(110, 55), l.Offset)
	assert.Equal(t, uint8(255), l.MaskAt(110, 55))
	assert.Equal(t, uint8(0), l.MaskAt(109, 55))
}

func TestSample(t *testing.T) {
	img := solid(10, 10, color.NRGBA{R: 100, G: 50, B: 0, A: 255})
	img.SetNRGBA(0, 0, color.NRGBA{})
	l := NewLayer(img)
	c, ok := l.Sample(1, 1, 2)
	require.True(t, ok)
	r, g, b := c.RGB255()
	assert.Equal(t, uint8(100), r)
	assert.Equal(t, uint8(50), g)
	assert.Equal(t, uint8(0), b)
}

func TestLoadSave(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.png")
	src := solid(7, 5, color.NRGBA{R: 10, G: 20, B: 30, A: 255})
	require.NoError(t, Save(src, path))

	l, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, path, l.Path)
	assert.Equal(t, 7, l.Width())
	assert.Equal(t, 5, l.Height())
	assert.Equal(t, src.NRGBAAt(3, 3), l.Image.NRGBAAt(3, 3))

	_, err = Load(filepath.Join(dir, "a.xyz"))
	assert.Error(t, err)
	_, err = Load(filepath.Join(dir, "missing.png"))
	assert.Error(t, err)
}

func TestPasteMasked(t *testing.T) {
	dst := solid(4, 1, color.NRGBA{R: 0, A: 255})
	src := solid(4, 1, color.NRGBA{R: 200, A: 255})
	mask := NewMask(dst.Bounds(), 0)
	mask.Pix[1] = 255
	mask.Pix[2] = 128
	PasteMasked(dst, src, mask, dst.Bounds())

	assert.Equal(t, uint8(0), dst.NRGBAAt(0, 0).R)
	assert.Equal(t, uint8(200), dst.NRGBAAt(1, 0).R)
	assert.InDelta(t, 100, int(dst.NRGBAAt(2, 0).R), 1)
	assert.Equal(t, uint8(255), dst.NRGBAAt(2, 0).A)
}
