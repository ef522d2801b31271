// Package app owns a stitch session: the two images, the control point list
// and its fit, and the options used to refine points and stitch.
package app

import (
	"context"
	goimage "image"
	"sync"

	"panostitch/internal/controlpoint"
	"panostitch/internal/correlate"
	"panostitch/internal/image"
	"panostitch/internal/pipeline"
	"panostitch/internal/project"
	"panostitch/internal/transform"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// State holds the application state including current project, images, and settings.
type State struct {
	mu sync.RWMutex

	// Project
	ProjectPath string
	Name        string
	Modified    bool

	// Images
	Reference *image.Layer
	Moved     *image.Layer

	Options pipeline.Options

	// Result of the last stitch, cleared when points change.
	Result *pipeline.Result

	session controlpoint.Session
	log     *zap.SugaredLogger

	// Event listeners
	listeners map[EventType][]EventListener
}

// EventType identifies different application events.
type EventType int

const (
	EventProjectLoaded EventType = iota
	EventProjectSaved
	EventImageLoaded
	EventPointsChanged
	EventStitchComplete
	EventModified
)

// EventListener is called when an event occurs.
type EventListener func(data interface{})

// NewState creates a new application state.
func NewState(log *zap.SugaredLogger) *State {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	opts := pipeline.DefaultOptions()
	opts.Logger = log
	return &State{
		Options:   opts,
		log:       log,
		listeners: make(map[EventType][]EventListener),
	}
}

// On registers an event listener for the specified event type.
func (s *State) On(event EventType, listener EventListener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners[event] = append(s.listeners[event], listener)
}

// Emit triggers all listeners for the specified event type.
func (s *State) Emit(event EventType, data interface{}) {
	s.mu.RLock()
	listeners := s.listeners[event]
	s.mu.RUnlock()

	for _, listener := range listeners {
		listener(data)
	}
}

// SetModified marks the project as modified and emits an event.
func (s *State) SetModified(modified bool) {
	s.mu.Lock()
	s.Modified = modified
	s.mu.Unlock()
	s.Emit(EventModified, modified)
}

// Session returns the current points and fit.
func (s *State) Session() controlpoint.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session
}

// SetPoints replaces the control points and refits. On error the state is
// left as it was.
func (s *State) SetPoints(points controlpoint.List) error {
	s.mu.Lock()
	next, err := s.session.Update(points)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	s.session = next
	s.Result = nil
	s.Modified = true
	s.mu.Unlock()

	if next.Fit.Unconverged {
		s.log.Warnw("transform fit did not fully converge", "points", next.NPoints())
	}
	sum := next.Fit.Summary()
	s.log.Debugw("points changed", "points", next.NPoints(), "mean_error", sum.Mean, "max_error", sum.Max)
	s.Emit(EventPointsChanged, next)
	return nil
}

func (s *State) edit(fn func(controlpoint.List) (controlpoint.List, error)) error {
	points, err := fn(s.Session().Points)
	if err != nil {
		return err
	}
	return s.SetPoints(points)
}

// AddPoint appends a control point.
func (s *State) AddPoint(cp controlpoint.ControlPoint) error {
	return s.edit(func(l controlpoint.List) (controlpoint.List, error) { return l.Add(cp), nil })
}

// DeletePoint removes point i.
func (s *State) DeletePoint(i int) error {
	return s.edit(func(l controlpoint.List) (controlpoint.List, error) { return l.Delete(i) })
}

// ReplacePoint overwrites point i.
func (s *State) ReplacePoint(i int, cp controlpoint.ControlPoint) error {
	return s.edit(func(l controlpoint.List) (controlpoint.List, error) { return l.Replace(i, cp) })
}

// MovePointUp swaps point i with the one before it.
func (s *State) MovePointUp(i int) error {
	return s.edit(func(l controlpoint.List) (controlpoint.List, error) { return l.MoveUp(i) })
}

// MovePointDown swaps point i with the one after it.
func (s *State) MovePointDown(i int) error {
	return s.edit(func(l controlpoint.List) (controlpoint.List, error) { return l.MoveDown(i) })
}

// LoadReferenceImage loads the image everything is stitched onto.
func (s *State) LoadReferenceImage(path string) error {
	layer, err := image.Load(path)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.Reference = layer
	s.Result = nil
	s.mu.Unlock()
	s.Emit(EventImageLoaded, path)
	return nil
}

// LoadMovedImage loads the image that gets warped onto the reference.
func (s *State) LoadMovedImage(path string) error {
	layer, err := image.Load(path)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.Moved = layer
	s.Result = nil
	s.mu.Unlock()
	s.Emit(EventImageLoaded, path)
	return nil
}

func (s *State) images() (ref, moved goimage.Image, err error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.Reference == nil || s.Moved == nil {
		return nil, nil, errors.New("both images must be loaded")
	}
	return s.Reference.Image, s.Moved.Image, nil
}

// RefinePoint correlates a selection in each image and appends the
// resulting control point. The current fit, if any, seeds the rotation and
// scale.
func (s *State) RefinePoint(ctx context.Context, refSel, movedSel goimage.Rectangle) (controlpoint.ControlPoint, error) {
	ref, moved, err := s.images()
	if err != nil {
		return controlpoint.ControlPoint{}, err
	}
	session := s.Session()

	copts := correlate.DefaultOptions()
	copts.Correlate = s.Options.Correlate
	copts.Resample = s.Options.Resample
	copts.Logger = s.log
	var prior *transform.Transform
	if session.Fit.Valid {
		prior = &session.Fit.Transform
	}
	cp, err := correlate.Refine(ctx, ref, moved, refSel, movedSel, prior, copts)
	if err != nil {
		return controlpoint.ControlPoint{}, errors.Wrap(err, "refine control point")
	}
	if err := s.AddPoint(cp); err != nil {
		return controlpoint.ControlPoint{}, err
	}
	return cp, nil
}

// Stitch runs the pipeline on the loaded images and current session.
func (s *State) Stitch(ctx context.Context) (*pipeline.Result, error) {
	ref, moved, err := s.images()
	if err != nil {
		return nil, err
	}
	res, err := pipeline.Run(ctx, s.Session(), ref, moved, s.Options)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.Result = res
	s.mu.Unlock()
	s.Emit(EventStitchComplete, res)
	return res, nil
}

// LoadProject loads a project from the specified path, including its
// images when they are set.
func (s *State) LoadProject(path string) error {
	proj, err := project.Load(path)
	if err != nil {
		return err
	}

	if p := proj.ReferenceImage(path); p != "" {
		if err := s.LoadReferenceImage(p); err != nil {
			return err
		}
	}
	if p := proj.MovedImage(path); p != "" {
		if err := s.LoadMovedImage(p); err != nil {
			return err
		}
	}

	session, err := controlpoint.NewSession(proj.ControlPoints())
	if err != nil {
		return errors.Wrap(err, "fit saved control points")
	}

	s.mu.Lock()
	s.ProjectPath = path
	s.Name = proj.Name
	s.session = session
	s.Options = proj.Settings
	s.Options.Logger = s.log
	s.Result = nil
	s.Modified = false
	s.mu.Unlock()

	s.Emit(EventProjectLoaded, path)
	return nil
}

// SaveProject saves the project to the specified path.
func (s *State) SaveProject(path string) error {
	s.mu.RLock()
	proj := project.New(s.Name)
	proj.Settings = s.Options
	proj.SetControlPoints(s.session.Points)
	if s.Reference != nil && s.Reference.Path != "" {
		proj.SetReferenceImage(path, s.Reference.Path)
	}
	if s.Moved != nil && s.Moved.Path != "" {
		proj.SetMovedImage(path, s.Moved.Path)
	}
	s.mu.RUnlock()

	if err := proj.Save(path); err != nil {
		return err
	}

	s.mu.Lock()
	s.ProjectPath = path
	s.Modified = false
	s.mu.Unlock()
	s.Emit(EventProjectSaved, path)
	return nil
}
