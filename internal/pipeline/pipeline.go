// Package pipeline drives a stitch from a fitted control point session to a
// composited panorama.
package pipeline

import (
	"context"
	"image"

	"panostitch/internal/compositor"
	"panostitch/internal/controlpoint"
	"panostitch/internal/dewarp"
	pimage "panostitch/internal/image"
	"panostitch/internal/resample"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// ErrInsufficientCorrespondences means there is no transform to stitch
// with. Nothing has been modified when it is returned.
var ErrInsufficientCorrespondences = errors.New("pipeline: no control points, cannot compute a transform")

// Stage is a step of Run.
type Stage int

const (
	StageCheck Stage = iota
	StageRemoveDistortion
	StageWarp
	StageColorBalance
	StageBlend
	StageComposite
	StageDone
)

func (s Stage) String() string {
	switch s {
	case StageCheck:
		return "check"
	case StageRemoveDistortion:
		return "remove-distortion"
	case StageWarp:
		return "warp"
	case StageColorBalance:
		return "color-balance"
	case StageBlend:
		return "blend"
	case StageComposite:
		return "composite"
	case StageDone:
		return "done"
	default:
		return "unknown"
	}
}

// Options control which optional stages run and how.
type Options struct {
	Resample resample.Options `json:"resample" yaml:"resample"`

	RemoveDistortion bool    `json:"remove_distortion" yaml:"remove_distortion"`
	ColorBalance     bool    `json:"color_balance" yaml:"color_balance"`
	ColorRadius      float64 `json:"color_radius" yaml:"color_radius"`
	Blend            bool    `json:"blend" yaml:"blend"`
	BlendFraction    float64 `json:"blend_fraction" yaml:"blend_fraction"`

	// Correlate is used by callers refining points before a stitch.
	Correlate bool `json:"correlate" yaml:"correlate"`

	// Progress, if set, is called as stages start and while long stages
	// advance, with the fraction of that stage done.
	Progress func(stage Stage, fraction float64) `json:"-" yaml:"-"`

	Logger *zap.SugaredLogger `json:"-" yaml:"-"`
}

// DefaultOptions enables every stage.
func DefaultOptions() Options {
	return Options{
		Resample:         resample.DefaultOptions(),
		RemoveDistortion: true,
		ColorBalance:     true,
		ColorRadius:      compositor.DefaultColorRadius,
		Blend:            true,
		BlendFraction:    compositor.DefaultBlendFraction,
		Correlate:        true,
		Logger:           zap.NewNop().Sugar(),
	}
}

// Validate checks values that would otherwise fail deep inside a stage.
func (o Options) Validate() error {
	if o.Blend && !compositor.ValidBlendFraction(o.BlendFraction) {
		return errors.Errorf("blend fraction %v must be one of %v", o.BlendFraction, compositor.BlendFractions)
	}
	if o.ColorBalance && o.ColorRadius <= 0 {
		return errors.Errorf("color radius %v must be positive", o.ColorRadius)
	}
	if !o.Resample.Clip {
		return resample.ErrClipRequired
	}
	return nil
}

// Result is the output of Run.
type Result struct {
	Image     *image.NRGBA
	Placement *compositor.Placement

	// Curves are the applied color balance curves, nil when skipped.
	Curves *compositor.Curves

	// Stages lists the stages that ran, in order.
	Stages []Stage
}

type run struct {
	ctx    context.Context
	opts   Options
	log    *zap.SugaredLogger
	result *Result
}

func (r *run) enter(s Stage) error {
	if err := r.ctx.Err(); err != nil {
		return errors.Wrapf(err, "before %s", s)
	}
	r.log.Debugw("stage", "stage", s.String())
	r.result.Stages = append(r.result.Stages, s)
	r.progress(s, 0)
	return nil
}

func (r *run) progress(s Stage, f float64) {
	if r.opts.Progress != nil {
		r.opts.Progress(s, f)
	}
}

// Run stitches moved onto ref using the session's fit. The inputs are not
// modified. Stages run in a fixed order; the optional ones are skipped when
// disabled or when their preconditions fail. ctx is checked before every
// stage and between dewarp triangles.
func Run(ctx context.Context, session controlpoint.Session, ref, moved image.Image, opts Options) (*Result, error) {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	r := &run{ctx: ctx, opts: opts, log: log, result: &Result{}}

	if err := r.enter(StageCheck); err != nil {
		return nil, err
	}
	if session.NPoints() == 0 || !session.Fit.Valid {
		return nil, ErrInsufficientCorrespondences
	}
	if err := opts.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid options")
	}

	work := pimage.FromImage(moved).Image
	if opts.RemoveDistortion && session.NPoints() >= dewarp.MinPoints {
		if err := r.enter(StageRemoveDistortion); err != nil {
			return nil, err
		}
		dopts := dewarp.DefaultOptions()
		dopts.Resample = opts.Resample
		dopts.Logger = log
		dopts.Progress = func(done, total int) {
			r.progress(StageRemoveDistortion, float64(done)/float64(total))
		}
		var err error
		work, err = dewarp.Dewarp(ctx, work, session.Points, session.Fit, dopts)
		if err != nil {
			return nil, errors.Wrap(err, "remove distortion")
		}
	}

	if err := r.enter(StageWarp); err != nil {
		return nil, err
	}
	p, err := compositor.Place(ref, work, session.Fit.Transform, opts.Resample)
	if err != nil {
		return nil, errors.Wrap(err, "warp image")
	}
	r.result.Placement = p
	log.Infof("canvas %dx%d, shift %v", p.Width, p.Height, p.Shift)

	if opts.ColorBalance {
		if err := r.enter(StageColorBalance); err != nil {
			return nil, err
		}
		r.result.Curves = compositor.ColorBalance(p, ref, work,
			session.Points, session.Fit, opts.ColorRadius, log)
	}

	if opts.Blend {
		if err := r.enter(StageBlend); err != nil {
			return nil, err
		}
		if err := compositor.BlendMask(p, opts.BlendFraction); err != nil {
			return nil, errors.Wrap(err, "blend seam")
		}
	}

	if err := r.enter(StageComposite); err != nil {
		return nil, err
	}
	r.result.Image = compositor.Render(p)

	r.result.Stages = append(r.result.Stages, StageDone)
	r.progress(StageDone, 1)
	return r.result, nil
}
