// Package config loads stitch options from files and keeps user
// preferences between runs.
package config

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"

	"panostitch/internal/pipeline"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Load reads an options file over pipeline.DefaultOptions. The format is
// picked by extension: .yaml/.yml or .json. Unknown keys are rejected.
func Load(path string) (pipeline.Options, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return pipeline.Options{}, errors.Wrap(err, "read config")
	}
	opts, err := Parse(data, filepath.Ext(path))
	if err != nil {
		return pipeline.Options{}, errors.Wrapf(err, "config %s", path)
	}
	return opts, nil
}

// Parse decodes options in the format named by ext.
func Parse(data []byte, ext string) (pipeline.Options, error) {
	opts := pipeline.DefaultOptions()
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&opts); err != nil && !errors.Is(err, io.EOF) {
			return pipeline.Options{}, errors.Wrap(err, "decode yaml")
		}
	case ".json":
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&opts); err != nil {
			return pipeline.Options{}, errors.Wrap(err, "decode json")
		}
	default:
		return pipeline.Options{}, errors.Errorf("unsupported config format %q", ext)
	}
	if err := opts.Validate(); err != nil {
		return pipeline.Options{}, err
	}
	return opts, nil
}
