// Package resample maps an image through a planar transform.
//
// Pixel (x, y) covers [x, x+1) × [y, y+1); transforms act on those
// continuous coordinates, so a dst pixel takes the source value found at the
// inverse image of its centre.
package resample

import (
	"image"
	"image/draw"
	"strings"

	"panostitch/internal/transform"

	"github.com/pkg/errors"
)

// ErrClipRequired is returned for Options with Clip unset. Output is always
// clipped to the destination; growing the canvas is the caller's job.
var ErrClipRequired = errors.New("resample: only clipped output is supported")

// Interpolation selects the reconstruction filter.
type Interpolation int

const (
	InterpolationNone Interpolation = iota
	InterpolationLinear
	InterpolationCubic
)

func (i Interpolation) String() string {
	switch i {
	case InterpolationNone:
		return "none"
	case InterpolationLinear:
		return "linear"
	case InterpolationCubic:
		return "cubic"
	default:
		return "unknown"
	}
}

// ParseInterpolation accepts the names printed by Interpolation.String.
func ParseInterpolation(s string) (Interpolation, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "none", "nearest":
		return InterpolationNone, nil
	case "linear":
		return InterpolationLinear, nil
	case "cubic":
		return InterpolationCubic, nil
	}
	return 0, errors.Errorf("unknown interpolation %q", s)
}

// MarshalText lets Interpolation appear by name in YAML and JSON.
func (i Interpolation) MarshalText() ([]byte, error) {
	return []byte(i.String()), nil
}

// UnmarshalText parses an interpolation name.
func (i *Interpolation) UnmarshalText(b []byte) error {
	v, err := ParseInterpolation(string(b))
	if err != nil {
		return err
	}
	*i = v
	return nil
}

// Options control resampling quality.
type Options struct {
	Interpolation Interpolation `json:"interpolation" yaml:"interpolation"`
	// Supersample averages 2^min(RecursionLevel, 3) samples per axis for
	// each destination pixel of a projective warp. Affine warps are
	// filtered by the interpolation kernel instead.
	Supersample    bool `json:"supersample" yaml:"supersample"`
	RecursionLevel int  `json:"recursion_level" yaml:"recursion_level"`
	Clip           bool `json:"clip" yaml:"clip"`
}

// DefaultOptions returns cubic interpolation with supersampling.
func DefaultOptions() Options {
	return Options{
		Interpolation:  InterpolationCubic,
		Supersample:    true,
		RecursionLevel: 5,
		Clip:           true,
	}
}

// samplesPerAxis is the supersampling factor for one axis.
func (o Options) samplesPerAxis() int {
	if !o.Supersample || o.RecursionLevel <= 0 {
		return 1
	}
	level := o.RecursionLevel
	if level > 3 {
		level = 3
	}
	return 1 << level
}

// Warp replaces every pixel of dst with src mapped through t. Pixels whose
// source position falls outside src become transparent.
func Warp(dst draw.Image, src image.Image, t transform.Transform, opts Options) error {
	return WarpRegion(dst, src, t, dst.Bounds(), opts)
}

// WarpRegion is Warp restricted to the pixels of dst inside region. Pixels
// outside region are left untouched.
func WarpRegion(dst draw.Image, src image.Image, t transform.Transform, region image.Rectangle, opts Options) error {
	if !opts.Clip {
		return ErrClipRequired
	}
	region = region.Intersect(dst.Bounds())
	if region.Empty() || src.Bounds().Empty() {
		return nil
	}
	inv, err := transform.Invert(t)
	if err != nil {
		return errors.Wrap(err, "resample: invert transform")
	}
	if det := t[0][0]*t[1][1] - t[0][1]*t[1][0]; det == 0 {
		return errors.New("resample: singular transform")
	}
	return warp(dst, src, t, inv, region, opts)
}
