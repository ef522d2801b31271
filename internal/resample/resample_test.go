package resample

import (
	"image"
	"image/color"
	"testing"

	"panostitch/internal/transform"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gradientImage(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(x * 4), G: uint8(y * 4), B: 77, A: 255})
		}
	}
	return img
}

func TestWarpIntegerShift(t *testing.T) {
	src := gradientImage(40, 30)
	for _, interp := range []Interpolation{InterpolationNone, InterpolationLinear, InterpolationCubic} {
		t.Run(interp.String(), func(t *testing.T) {
			dst := image.NewNRGBA(image.Rect(0, 0, 50, 40))
			opts := DefaultOptions()
			opts.Interpolation = interp
			require.NoError(t, Warp(dst, src, transform.Translation(3, 2), opts))

			for _, p := range []image.Point{{10, 10}, {20, 5}, {30, 25}} {
				want := src.NRGBAAt(p.X, p.Y)
				got := dst.NRGBAAt(p.X+3, p.Y+2)
				assert.InDelta(t, int(want.R), int(got.R), 1, "%v", p)
				assert.InDelta(t, int(want.G), int(got.G), 1, "%v", p)
				assert.InDelta(t, 255, int(got.A), 1, "%v", p)
			}
			assert.Equal(t, uint8(0), dst.NRGBAAt(1, 1).A)
			assert.Equal(t, uint8(0), dst.NRGBAAt(45, 35).A)
		})
	}
}

func TestWarpRegionLeavesOutsideAlone(t *testing.T) {
	src := gradientImage(20, 20)
	dst := image.NewNRGBA(image.Rect(0, 0, 20, 20))
	marker := color.NRGBA{R: 1, G: 2, B: 3, A: 4}
	for y := 0; y < 20; y++ {
		for x := 0; x < 20; x++ {
			dst.SetNRGBA(x, y, marker)
		}
	}
	region := image.Rect(5, 5, 10, 10)
	opts := DefaultOptions()
	opts.Interpolation = InterpolationNone
	require.NoError(t, WarpRegion(dst, src, transform.Identity(), region, opts))

	assert.Equal(t, marker, dst.NRGBAAt(4, 4))
	assert.Equal(t, marker, dst.NRGBAAt(10, 7))
	assert.Equal(t, src.NRGBAAt(7, 7), dst.NRGBAAt(7, 7))
}

func TestWarpProjective(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 100, 100))
	red := color.NRGBA{R: 255, A: 255}
	for y := 40; y < 60; y++ {
		for x := 40; x < 60; x++ {
			src.SetNRGBA(x, y, red)
		}
	}
	tr := transform.Translation(5, -3)
	tr[0][2] = 1e-4
	require.False(t, tr.IsAffine())

	dst := image.NewNRGBA(image.Rect(0, 0, 100, 100))
	require.NoError(t, Warp(dst, src, tr, DefaultOptions()))

	x, y := tr.Apply(50, 50)
	assert.Equal(t, red, dst.NRGBAAt(int(x), int(y)))
	x, y = tr.Apply(20, 20)
	assert.Equal(t, uint8(0), dst.NRGBAAt(int(x), int(y)).A)
}

func TestSupersampleAverages(t *testing.T) {
	// One-pixel stripes halved in width: a single centre sample lands on
	// one stripe, supersampling sees both.
	src := image.NewNRGBA(image.Rect(0, 0, 64, 8))
	for y := 0; y < 8; y++ {
		for x := 0; x < 64; x += 2 {
			src.SetNRGBA(x, y, color.NRGBA{R: 255, G: 255, B: 255, A: 255})
			src.SetNRGBA(x+1, y, color.NRGBA{A: 255})
		}
	}
	tr := transform.Scale(0.5)
	tr[0][2] = 1e-9
	require.False(t, tr.IsAffine())

	opts := Options{Interpolation: InterpolationNone, Clip: true}
	plain := image.NewNRGBA(image.Rect(0, 0, 32, 4))
	require.NoError(t, Warp(plain, src, tr, opts))
	v := plain.NRGBAAt(10, 2).R
	assert.True(t, v == 0 || v == 255, "got %d", v)

	opts.Supersample, opts.RecursionLevel = true, 2
	smooth := image.NewNRGBA(image.Rect(0, 0, 32, 4))
	require.NoError(t, Warp(smooth, src, tr, opts))
	assert.InDelta(t, 128, int(smooth.NRGBAAt(10, 2).R), 2)
}

func TestWarpErrors(t *testing.T) {
	src := gradientImage(4, 4)
	dst := image.NewNRGBA(image.Rect(0, 0, 4, 4))

	err := Warp(dst, src, transform.Identity(), Options{})
	assert.True(t, errors.Is(err, ErrClipRequired))

	err = Warp(dst, src, transform.Scale(0), DefaultOptions())
	assert.Error(t, err)
}

func TestSamplesPerAxis(t *testing.T) {
	assert.Equal(t, 1, Options{}.samplesPerAxis())
	assert.Equal(t, 1, Options{Supersample: true}.samplesPerAxis())
	assert.Equal(t, 2, Options{Supersample: true, RecursionLevel: 1}.samplesPerAxis())
	assert.Equal(t, 8, DefaultOptions().samplesPerAxis())
}

func TestParseInterpolation(t *testing.T) {
	for _, i := range []Interpolation{InterpolationNone, InterpolationLinear, InterpolationCubic} {
		got, err := ParseInterpolation(i.String())
		require.NoError(t, err)
		assert.Equal(t, i, got)
	}
	_, err := ParseInterpolation("lanczos")
	assert.Error(t, err)
}
