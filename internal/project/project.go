// Package project provides project file handling and persistence.
package project

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"panostitch/internal/controlpoint"
	"panostitch/internal/pipeline"

	"github.com/pkg/errors"
)

// CurrentVersion is the schema version written by Save.
const CurrentVersion = 1

// ErrUnsupportedVersion is returned for files written by a newer schema.
var ErrUnsupportedVersion = errors.New("project: unsupported schema version")

// File represents a stitch project file (.panoproj).
type File struct {
	Version  int       `json:"version"`
	Name     string    `json:"name"`
	Created  time.Time `json:"created"`
	Modified time.Time `json:"modified"`

	// Image paths (relative to project file)
	ReferenceImagePath string `json:"reference_image,omitempty"`
	MovedImagePath     string `json:"moved_image,omitempty"`

	Points []PointRecord `json:"points"`

	// User settings
	Settings pipeline.Options `json:"settings"`
}

// PointRecord is the stored form of a control point.
type PointRecord struct {
	X1           float64  `json:"x1"`
	Y1           float64  `json:"y1"`
	X2           float64  `json:"x2"`
	Y2           float64  `json:"y2"`
	Correlation  *float64 `json:"correlation,omitempty"`
	ColorBalance bool     `json:"colorBalance"`
}

// New creates a new project file with default settings.
func New(name string) *File {
	now := time.Now()
	return &File{
		Version:  CurrentVersion,
		Name:     name,
		Created:  now,
		Modified: now,
		Points:   []PointRecord{},
		Settings: pipeline.DefaultOptions(),
	}
}

// Load loads a project from a file.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read project")
	}
	p, err := Parse(data)
	if err != nil {
		return nil, errors.Wrapf(err, "load %s", path)
	}
	return p, nil
}

// Parse decodes a project. A bare JSON array is read as the legacy
// version 0 layout: a list of [x1, y1, x2, y2, correlation|null, colorBalance]
// tuples.
func Parse(data []byte) (*File, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		points, err := parseLegacy(trimmed)
		if err != nil {
			return nil, err
		}
		p := New("")
		p.Created, p.Modified = time.Time{}, time.Time{}
		p.Points = points
		return p, nil
	}

	proj := File{Settings: pipeline.DefaultOptions()}
	if err := json.Unmarshal(trimmed, &proj); err != nil {
		return nil, errors.Wrap(err, "decode project")
	}
	if proj.Version > CurrentVersion {
		return nil, errors.Wrapf(ErrUnsupportedVersion, "version %d, newest known %d", proj.Version, CurrentVersion)
	}
	proj.Version = CurrentVersion
	if proj.Points == nil {
		proj.Points = []PointRecord{}
	}
	return &proj, nil
}

func parseLegacy(data []byte) ([]PointRecord, error) {
	var tuples [][]json.RawMessage
	if err := json.Unmarshal(data, &tuples); err != nil {
		return nil, errors.Wrap(err, "decode legacy point list")
	}
	out := make([]PointRecord, 0, len(tuples))
	for i, tup := range tuples {
		if len(tup) < 4 {
			return nil, errors.Errorf("legacy point %d: %d fields, want at least 4", i, len(tup))
		}
		var rec PointRecord
		for j, dst := range []*float64{&rec.X1, &rec.Y1, &rec.X2, &rec.Y2} {
			if err := json.Unmarshal(tup[j], dst); err != nil {
				return nil, errors.Wrapf(err, "legacy point %d field %d", i, j)
			}
		}
		if len(tup) > 4 {
			if err := json.Unmarshal(tup[4], &rec.Correlation); err != nil {
				return nil, errors.Wrapf(err, "legacy point %d correlation", i)
			}
		}
		rec.ColorBalance = true
		if len(tup) > 5 {
			cb, err := legacyBool(tup[5])
			if err != nil {
				return nil, errors.Wrapf(err, "legacy point %d color balance", i)
			}
			rec.ColorBalance = cb
		}
		out = append(out, rec)
	}
	return out, nil
}

// legacyBool accepts true/false or a number, where non-zero is true.
func legacyBool(raw json.RawMessage) (bool, error) {
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return b, nil
	}
	var n float64
	if err := json.Unmarshal(raw, &n); err != nil {
		return false, err
	}
	return n != 0, nil
}

// Save saves the project to a file.
func (p *File) Save(path string) error {
	p.Version = CurrentVersion
	p.Modified = time.Now()

	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encode project")
	}

	return errors.Wrap(os.WriteFile(path, data, 0644), "write project")
}

// ControlPoints returns the stored points as a list.
func (p *File) ControlPoints() controlpoint.List {
	out := make(controlpoint.List, len(p.Points))
	for i, r := range p.Points {
		cp := controlpoint.ControlPoint{X1: r.X1, Y1: r.Y1, X2: r.X2, Y2: r.Y2, ColorBalance: r.ColorBalance}
		if r.Correlation != nil {
			cp = cp.WithCorrelation(*r.Correlation)
		}
		out[i] = cp
	}
	return out
}

// SetControlPoints replaces the stored points.
func (p *File) SetControlPoints(l controlpoint.List) {
	p.Points = Records(l)
	p.Modified = time.Now()
}

// Records converts a list to its stored form.
func Records(l controlpoint.List) []PointRecord {
	out := make([]PointRecord, len(l))
	for i, cp := range l {
		out[i] = PointRecord{X1: cp.X1, Y1: cp.Y1, X2: cp.X2, Y2: cp.Y2, ColorBalance: cp.ColorBalance}
		if cp.Correlation != nil {
			c := *cp.Correlation
			out[i].Correlation = &c
		}
	}
	return out
}

// SetReferenceImage sets the reference image path (relative to project).
func (p *File) SetReferenceImage(projectPath, imagePath string) {
	p.ReferenceImagePath = relative(projectPath, imagePath)
	p.Modified = time.Now()
}

// SetMovedImage sets the moved image path (relative to project).
func (p *File) SetMovedImage(projectPath, imagePath string) {
	p.MovedImagePath = relative(projectPath, imagePath)
	p.Modified = time.Now()
}

// ReferenceImage returns the absolute path to the reference image.
func (p *File) ReferenceImage(projectPath string) string {
	return absolute(projectPath, p.ReferenceImagePath)
}

// MovedImage returns the absolute path to the moved image.
func (p *File) MovedImage(projectPath string) string {
	return absolute(projectPath, p.MovedImagePath)
}

func relative(projectPath, imagePath string) string {
	rel, err := filepath.Rel(filepath.Dir(projectPath), imagePath)
	if err != nil {
		return imagePath
	}
	return rel
}

func absolute(projectPath, path string) string {
	if path == "" {
		return ""
	}
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(filepath.Dir(projectPath), path)
}
