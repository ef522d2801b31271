// Command panostitch fits, refines and stitches two overlapping images.
package main

import (
	"context"
	"fmt"
	"image"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"panostitch/internal/app"
	"panostitch/internal/compositor"
	"panostitch/internal/config"
	"panostitch/internal/controlpoint"
	pimage "panostitch/internal/image"
	"panostitch/internal/pipeline"
	"panostitch/internal/resample"
	"panostitch/internal/store"
	"panostitch/internal/version"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

const (
	flagProject       = "project"
	flagConfig        = "config"
	flagDebug         = "debug"
	flagOutput        = "output"
	flagInterpolation = "interpolation"
	flagBlendFraction = "blend-fraction"
	flagColorRadius   = "color-radius"
	flagNoBlend       = "no-blend"
	flagNoColor       = "no-color-balance"
	flagNoDewarp      = "no-dewarp"
	flagNoCorrelate   = "no-correlate"
	flagWatch         = "watch"
	flagStore         = "store"
)

func main() {
	var logger *zap.SugaredLogger

	cliApp := &cli.App{
		Name:    "panostitch",
		Usage:   "stitch two overlapping images through control points",
		Version: version.String(),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    flagProject,
				Aliases: []string{"p"},
				Usage:   "project `FILE` holding images and control points",
			},
			&cli.StringFlag{
				Name:    flagConfig,
				Aliases: []string{"c"},
				Usage:   "load stitch options from a YAML or JSON `FILE`",
			},
			&cli.BoolFlag{
				Name:  flagDebug,
				Usage: "enable debug logging",
			},
		},
		Before: func(c *cli.Context) error {
			var l *zap.Logger
			var err error
			if c.Bool(flagDebug) {
				l, err = zap.NewDevelopment()
			} else {
				cfg := zap.NewProductionConfig()
				cfg.Encoding = "console"
				l, err = cfg.Build()
			}
			if err != nil {
				return err
			}
			logger = l.Sugar()
			return nil
		},
		After: func(c *cli.Context) error {
			if logger != nil {
				_ = logger.Sync()
			}
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:      "new",
				Usage:     "create a project for a reference and a moved image",
				ArgsUsage: "<reference> <moved>",
				Action: func(c *cli.Context) error {
					return newProject(c, logger)
				},
			},
			{
				Name:  "fit",
				Usage: "print the transform and residuals of the project's control points",
				Action: func(c *cli.Context) error {
					return fit(c, logger)
				},
			},
			{
				Name:      "refine",
				Usage:     "correlate a selection in each image and add the control point",
				ArgsUsage: "<x0,y0,x1,y1 in reference> <x0,y0,x1,y1 in moved>",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: flagNoCorrelate, Usage: "pair the selection centres without optimizing"},
				},
				Action: func(c *cli.Context) error {
					return refine(c, logger)
				},
			},
			{
				Name:  "stitch",
				Usage: "composite the moved image onto the reference",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: flagOutput, Aliases: []string{"o"}, Value: "panorama.png", Usage: "output image `FILE`"},
					&cli.StringFlag{Name: flagInterpolation, Usage: "none, linear or cubic"},
					&cli.Float64Flag{Name: flagBlendFraction, Usage: fmt.Sprintf("seam width, one of %v", compositor.BlendFractions)},
					&cli.Float64Flag{Name: flagColorRadius, Usage: "color sampling radius in pixels"},
					&cli.BoolFlag{Name: flagNoBlend, Usage: "skip seam blending"},
					&cli.BoolFlag{Name: flagNoColor, Usage: "skip color balance"},
					&cli.BoolFlag{Name: flagNoDewarp, Usage: "skip local distortion removal"},
					&cli.BoolFlag{Name: flagWatch, Usage: "restitch whenever the project or an image changes"},
				},
				Action: func(c *cli.Context) error {
					return stitch(c, logger)
				},
			},
			{
				Name:  "points",
				Usage: "edit the control point list",
				Subcommands: []*cli.Command{
					{
						Name:  "list",
						Usage: "print the points with their residuals",
						Action: func(c *cli.Context) error {
							return listPoints(c, logger)
						},
					},
					{
						Name:      "add",
						Usage:     "append a point",
						ArgsUsage: "<x1> <y1> <x2> <y2>",
						Action: func(c *cli.Context) error {
							return editPoints(c, logger, func(s *app.State) error {
								cp, err := pointArgs(c.Args().Slice())
								if err != nil {
									return err
								}
								return s.AddPoint(cp)
							})
						},
					},
					{
						Name:      "replace",
						Usage:     "overwrite a point",
						ArgsUsage: "<index> <x1> <y1> <x2> <y2>",
						Action: func(c *cli.Context) error {
							return editPoints(c, logger, func(s *app.State) error {
								i, err := indexArg(c)
								if err != nil {
									return err
								}
								cp, err := pointArgs(c.Args().Tail())
								if err != nil {
									return err
								}
								return s.ReplacePoint(i, cp)
							})
						},
					},
					{
						Name:      "delete",
						Usage:     "remove a point",
						ArgsUsage: "<index>",
						Action: func(c *cli.Context) error {
							return editPoints(c, logger, indexEdit(c, (*app.State).DeletePoint))
						},
					},
					{
						Name:      "up",
						Usage:     "move a point towards the front of the list",
						ArgsUsage: "<index>",
						Action: func(c *cli.Context) error {
							return editPoints(c, logger, indexEdit(c, (*app.State).MovePointUp))
						},
					},
					{
						Name:      "down",
						Usage:     "move a point towards the back of the list",
						ArgsUsage: "<index>",
						Action: func(c *cli.Context) error {
							return editPoints(c, logger, indexEdit(c, (*app.State).MovePointDown))
						},
					},
				},
			},
			{
				Name:  "store",
				Usage: "save and restore control point sets per image pair",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: flagStore, Usage: "database `FILE` (default: remembered, or panostitch.db)"},
				},
				Subcommands: []*cli.Command{
					{
						Name:  "save",
						Usage: "save the project's points, and their inverse for the reversed pair",
						Action: func(c *cli.Context) error {
							return storeSave(c, logger)
						},
					},
					{
						Name:  "load",
						Usage: "replace the project's points with the saved set",
						Action: func(c *cli.Context) error {
							return storeLoad(c, logger)
						},
					},
					{
						Name:  "list",
						Usage: "list saved pairs",
						Action: func(c *cli.Context) error {
							return storeList(c)
						},
					},
				},
			},
		},
	}

	if err := cliApp.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// projectPath returns the --project flag from any level of the command.
func projectPath(c *cli.Context) (string, error) {
	for _, ctx := range c.Lineage() {
		if p := ctx.String(flagProject); p != "" {
			return p, nil
		}
	}
	return "", errors.New("--project is required")
}

// openState loads the project and applies remembered preferences and the
// config file, in that order.
func openState(c *cli.Context, logger *zap.SugaredLogger) (*app.State, string, error) {
	path, err := projectPath(c)
	if err != nil {
		return nil, "", err
	}
	s := app.NewState(logger)
	if err := s.LoadProject(path); err != nil {
		return nil, "", err
	}
	for _, ctx := range c.Lineage() {
		if cfg := ctx.String(flagConfig); cfg != "" {
			opts, err := config.Load(cfg)
			if err != nil {
				return nil, "", err
			}
			opts.Logger = logger
			s.Options = opts
			break
		}
	}
	return s, path, nil
}

func newProject(c *cli.Context, logger *zap.SugaredLogger) error {
	path, err := projectPath(c)
	if err != nil {
		return err
	}
	if c.NArg() != 2 {
		return errors.New("need a reference and a moved image")
	}
	s := app.NewState(logger)
	config.LoadPrefs().Apply(&s.Options)
	if err := s.LoadReferenceImage(c.Args().Get(0)); err != nil {
		return err
	}
	if err := s.LoadMovedImage(c.Args().Get(1)); err != nil {
		return err
	}
	if err := s.SaveProject(path); err != nil {
		return err
	}
	prefs := config.LoadPrefs()
	prefs.SetString(config.PrefLastProject, path)
	prefs.SetString(config.PrefLastReference, c.Args().Get(0))
	prefs.SetString(config.PrefLastMoved, c.Args().Get(1))
	if err := prefs.Save(); err != nil {
		logger.Warnf("could not save preferences: %v", err)
	}
	logger.Infof("created %s", path)
	return nil
}

func fit(c *cli.Context, logger *zap.SugaredLogger) error {
	s, _, err := openState(c, logger)
	if err != nil {
		return err
	}
	session := s.Session()
	if !session.Fit.Valid {
		return pipeline.ErrInsufficientCorrespondences
	}
	t := session.Fit.Transform
	fmt.Printf("Points: %d\n", session.NPoints())
	fmt.Printf("Transform:\n")
	for _, row := range t {
		fmt.Printf("  %12.6f %12.6f %12.6f\n", row[0], row[1], row[2])
	}
	fmt.Printf("Condition number: %.4g\n", session.Fit.ConditionNumber)
	if session.Fit.Unconverged {
		fmt.Println("Warning: SVD did not converge, the transform is approximate.")
	}
	sum := session.Fit.Summary()
	fmt.Printf("Residuals: mean %.3f px, median %.3f px, RMS %.3f px, max %.3f px\n", sum.Mean, sum.Median, sum.RMS, sum.Max)
	return nil
}

func parseRect(s string) (r [4]int, err error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return r, errors.Errorf("selection %q: want x0,y0,x1,y1", s)
	}
	for i, p := range parts {
		if r[i], err = strconv.Atoi(strings.TrimSpace(p)); err != nil {
			return r, errors.Wrapf(err, "selection %q", s)
		}
	}
	return r, nil
}

func rect(r [4]int) image.Rectangle {
	return image.Rect(r[0], r[1], r[2], r[3])
}

func refine(c *cli.Context, logger *zap.SugaredLogger) error {
	if c.NArg() != 2 {
		return errors.New("need a selection in each image")
	}
	s, path, err := openState(c, logger)
	if err != nil {
		return err
	}
	if c.Bool(flagNoCorrelate) {
		s.Options.Correlate = false
	}
	a, err := parseRect(c.Args().Get(0))
	if err != nil {
		return err
	}
	b, err := parseRect(c.Args().Get(1))
	if err != nil {
		return err
	}
	ctx, cancel := signal.NotifyContext(c.Context, os.Interrupt)
	defer cancel()
	cp, err := s.RefinePoint(ctx, rect(a), rect(b))
	if err != nil {
		return err
	}
	fmt.Printf("Added %v\n", cp)
	return s.SaveProject(path)
}

func optionsFromFlags(c *cli.Context, opts *pipeline.Options) error {
	if v := c.String(flagInterpolation); v != "" {
		interp, err := resample.ParseInterpolation(v)
		if err != nil {
			return err
		}
		opts.Resample.Interpolation = interp
	}
	if c.IsSet(flagBlendFraction) {
		opts.BlendFraction = c.Float64(flagBlendFraction)
	}
	if c.IsSet(flagColorRadius) {
		opts.ColorRadius = c.Float64(flagColorRadius)
	}
	if c.Bool(flagNoBlend) {
		opts.Blend = false
	}
	if c.Bool(flagNoColor) {
		opts.ColorBalance = false
	}
	if c.Bool(flagNoDewarp) {
		opts.RemoveDistortion = false
	}
	return opts.Validate()
}

func stitch(c *cli.Context, logger *zap.SugaredLogger) error {
	s, path, err := openState(c, logger)
	if err != nil {
		return err
	}
	if err := optionsFromFlags(c, &s.Options); err != nil {
		return err
	}
	ctx, cancel := signal.NotifyContext(c.Context, os.Interrupt)
	defer cancel()

	out := c.String(flagOutput)
	s.Options.Progress = func(stage pipeline.Stage, f float64) {
		logger.Debugw("progress", "stage", stage.String(), "fraction", f)
	}
	run := func() error {
		start := time.Now()
		res, err := s.Stitch(ctx)
		if err != nil {
			return err
		}
		if err := pimage.Save(res.Image, out); err != nil {
			return err
		}
		logger.Infof("wrote %s (%dx%d) in %v", out, res.Placement.Width, res.Placement.Height, time.Since(start).Round(time.Millisecond))
		return nil
	}
	if err := run(); err != nil {
		return err
	}

	prefs := config.LoadPrefs()
	prefs.Remember(s.Options)
	if err := prefs.Save(); err != nil {
		logger.Warnf("could not save preferences: %v", err)
	}

	if !c.Bool(flagWatch) {
		return nil
	}
	watched := []string{path}
	if s.Reference != nil {
		watched = append(watched, s.Reference.Path)
	}
	if s.Moved != nil {
		watched = append(watched, s.Moved.Path)
	}
	w, err := app.NewWatcher(time.Second, watched...)
	if err != nil {
		return err
	}
	w.OnChange(func(changed []string) {
		logger.Infof("changed: %s", strings.Join(changed, ", "))
		opts := s.Options
		if err := s.LoadProject(path); err != nil {
			logger.Errorf("reload: %v", err)
			return
		}
		s.Options = opts
		if err := run(); err != nil {
			logger.Errorf("stitch: %v", err)
		}
	})
	logger.Infof("watching %d files, interrupt to stop", len(w.Paths()))
	if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func listPoints(c *cli.Context, logger *zap.SugaredLogger) error {
	s, _, err := openState(c, logger)
	if err != nil {
		return err
	}
	session := s.Session()
	var rw, rh, mw, mh int
	if s.Reference != nil && s.Moved != nil {
		rw, rh = s.Reference.Width(), s.Reference.Height()
		mw, mh = s.Moved.Width(), s.Moved.Height()
	}
	for i, cp := range session.Points {
		line := fmt.Sprintf("%3d  %v", i, cp)
		if session.Fit.Valid {
			line += fmt.Sprintf("  err=%.2f", session.Fit.Errors[i])
		}
		if rw > 0 && cp.NearEdge(rw, rh, mw, mh, s.Options.ColorRadius) {
			line += "  near-edge"
		}
		fmt.Println(line)
	}
	if n := len(session.Points.ColorBalancePoints()); n == controlpoint.ColorBalanceCap {
		fmt.Printf("Only the first %d color balance points are used.\n", n)
	}
	return nil
}

func editPoints(c *cli.Context, logger *zap.SugaredLogger, edit func(*app.State) error) error {
	s, path, err := openState(c, logger)
	if err != nil {
		return err
	}
	if err := edit(s); err != nil {
		return err
	}
	if err := s.SaveProject(path); err != nil {
		return err
	}
	return listPoints(c, logger)
}

func indexArg(c *cli.Context) (int, error) {
	i, err := strconv.Atoi(c.Args().First())
	if err != nil {
		return 0, errors.Wrap(err, "point index")
	}
	return i, nil
}

func indexEdit(c *cli.Context, op func(*app.State, int) error) func(*app.State) error {
	return func(s *app.State) error {
		i, err := indexArg(c)
		if err != nil {
			return err
		}
		return op(s, i)
	}
}

func pointArgs(args []string) (controlpoint.ControlPoint, error) {
	if len(args) != 4 {
		return controlpoint.ControlPoint{}, errors.New("need x1 y1 x2 y2")
	}
	var v [4]float64
	for i, a := range args {
		f, err := strconv.ParseFloat(a, 64)
		if err != nil {
			return controlpoint.ControlPoint{}, errors.Wrapf(err, "coordinate %d", i)
		}
		v[i] = f
	}
	return controlpoint.New(v[0], v[1], v[2], v[3]), nil
}

func storePath(c *cli.Context) string {
	for _, ctx := range c.Lineage() {
		if p := ctx.String(flagStore); p != "" {
			return p
		}
	}
	if p := config.LoadPrefs().String(config.PrefStorePath); p != "" {
		return p
	}
	return "panostitch.db"
}

func openStore(c *cli.Context) (*store.Store, error) {
	path := storePath(c)
	db, err := store.Open(path)
	if err != nil {
		return nil, err
	}
	prefs := config.LoadPrefs()
	prefs.SetString(config.PrefStorePath, path)
	_ = prefs.Save()
	return db, nil
}

func imagePaths(s *app.State) (ref, moved string, err error) {
	if s.Reference == nil || s.Moved == nil {
		return "", "", errors.New("project has no image pair")
	}
	return s.Reference.Path, s.Moved.Path, nil
}

func storeSave(c *cli.Context, logger *zap.SugaredLogger) (err error) {
	s, _, err := openState(c, logger)
	if err != nil {
		return err
	}
	ref, moved, err := imagePaths(s)
	if err != nil {
		return err
	}
	db, err := openStore(c)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := db.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	if err := db.Put(ref, moved, s.Session().Points); err != nil {
		return err
	}
	logger.Infof("saved %d points as %s", s.Session().NPoints(), store.Key(ref, moved))
	return nil
}

func storeLoad(c *cli.Context, logger *zap.SugaredLogger) (err error) {
	s, path, err := openState(c, logger)
	if err != nil {
		return err
	}
	ref, moved, err := imagePaths(s)
	if err != nil {
		return err
	}
	db, err := openStore(c)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := db.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	points, err := db.Get(ref, moved)
	if err != nil {
		return err
	}
	if err := s.SetPoints(points); err != nil {
		return err
	}
	logger.Infof("loaded %d points from %s", len(points), store.Key(ref, moved))
	return s.SaveProject(path)
}

func storeList(c *cli.Context) (err error) {
	db, err := openStore(c)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := db.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	keys, err := db.Keys()
	if err != nil {
		return err
	}
	for _, k := range keys {
		fmt.Println(k)
	}
	return nil
}
