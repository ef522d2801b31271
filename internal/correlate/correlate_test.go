package correlate

import (
	"context"
	"image"
	"image/color"
	"math"
	"math/rand"
	"testing"

	"panostitch/internal/transform"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// texture scatters soft colored blobs over a dark ground, moved by
// (dx, dy). The layout is seeded and irregular, so there is one
// correlation peak.
func texture(w, h int, dx, dy float64) *image.NRGBA {
	type blob struct {
		x, y, sigma float64
		amp         [3]float64
	}
	rng := rand.New(rand.NewSource(11))
	blobs := make([]blob, w*h/200+4)
	for i := range blobs {
		b := &blobs[i]
		b.x = rng.Float64()*float64(w+20) - 10
		b.y = rng.Float64()*float64(h+20) - 10
		b.sigma = 4 + 4*rng.Float64()
		for c := range b.amp {
			b.amp[c] = 30 + 80*rng.Float64()
		}
	}

	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			fx, fy := float64(x)-dx, float64(y)-dy
			v := [3]float64{30, 30, 30}
			for _, b := range blobs {
				d2 := (fx-b.x)*(fx-b.x) + (fy-b.y)*(fy-b.y)
				if d2 > 16*b.sigma*b.sigma {
					continue
				}
				g := math.Exp(-d2 / (2 * b.sigma * b.sigma))
				for c := range v {
					v[c] += b.amp[c] * g
				}
			}
			img.SetNRGBA(x, y, color.NRGBA{
				R: uint8(math.Min(v[0], 255)),
				G: uint8(math.Min(v[1], 255)),
				B: uint8(math.Min(v[2], 255)),
				A: 255,
			})
		}
	}
	return img
}

func TestNCC(t *testing.T) {
	a := texture(30, 30, 0, 0)
	assert.InDelta(t, 1.0, NCC(a, a), 1e-12)

	neg := image.NewNRGBA(a.Rect)
	for i := 0; i < len(a.Pix); i += 4 {
		neg.Pix[i], neg.Pix[i+1], neg.Pix[i+2], neg.Pix[i+3] = 255-a.Pix[i], 255-a.Pix[i+1], 255-a.Pix[i+2], 255
	}
	assert.InDelta(t, -1.0, NCC(a, neg), 1e-12)

	empty := image.NewNRGBA(a.Rect)
	assert.Equal(t, 0.0, NCC(a, empty))

	flat := image.NewNRGBA(a.Rect)
	for i := range flat.Pix {
		flat.Pix[i] = 200
	}
	assert.Equal(t, 0.0, NCC(a, flat))
}

func TestRefineFindsShift(t *testing.T) {
	ref := texture(120, 100, 0, 0)
	moved := texture(120, 100, 3, 2)
	sel := image.Rect(40, 30, 80, 70)

	opts := DefaultOptions()
	opts.Logger = zaptest.NewLogger(t).Sugar()
	var seen float64
	opts.Progress = func(c float64) { seen = c }

	cp, err := Refine(context.Background(), ref, moved, sel, sel, nil, opts)
	require.NoError(t, err)
	assert.Equal(t, 60.0, cp.X1)
	assert.Equal(t, 50.0, cp.Y1)
	assert.InDelta(t, 63.0, cp.X2, 0.25)
	assert.InDelta(t, 52.0, cp.Y2, 0.25)
	require.NotNil(t, cp.Correlation)
	assert.Greater(t, *cp.Correlation, 0.99)
	assert.Greater(t, seen, 0.9)
	assert.True(t, cp.ColorBalance)
}

func TestRefineWithPrior(t *testing.T) {
	ref := texture(120, 100, 0, 0)
	moved := texture(120, 100, -2, 1)
	sel := image.Rect(30, 30, 70, 70)
	prior := transform.Translation(2, -1)

	cp, err := Refine(context.Background(), ref, moved, sel, sel, &prior, DefaultOptions())
	require.NoError(t, err)
	assert.InDelta(t, 48.0, cp.X2, 0.25)
	assert.InDelta(t, 51.0, cp.Y2, 0.25)
}

func TestRefineWithoutCorrelation(t *testing.T) {
	ref := texture(60, 60, 0, 0)
	opts := DefaultOptions()
	opts.Correlate = false
	opts.ColorBalance = false

	cp, err := Refine(context.Background(), ref, ref, image.Rect(10, 10, 20, 30), image.Rect(30, 0, 50, 10), nil, opts)
	require.NoError(t, err)
	assert.Equal(t, 15.0, cp.X1)
	assert.Equal(t, 20.0, cp.Y1)
	assert.Equal(t, 40.0, cp.X2)
	assert.Equal(t, 5.0, cp.Y2)
	require.NotNil(t, cp.Correlation)
	assert.False(t, cp.ColorBalance)
}

func TestRefineEmptySelection(t *testing.T) {
	img := texture(20, 20, 0, 0)
	_, err := Refine(context.Background(), img, img, image.Rect(30, 30, 40, 40), image.Rect(0, 0, 5, 5), nil, DefaultOptions())
	assert.True(t, errors.Is(err, ErrEmptySelection))

	_, err = Refine(context.Background(), img, img, image.Rect(0, 0, 5, 5), image.Rectangle{}, nil, DefaultOptions())
	assert.True(t, errors.Is(err, ErrEmptySelection))
}

func TestRefineCancelled(t *testing.T) {
	img := texture(40, 40, 0, 0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Refine(ctx, img, img, image.Rect(5, 5, 35, 35), image.Rect(5, 5, 35, 35), nil, DefaultOptions())
	assert.True(t, errors.Is(err, context.Canceled))
}
