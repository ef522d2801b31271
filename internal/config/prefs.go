package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"panostitch/internal/pipeline"
	"panostitch/internal/resample"

	"github.com/pkg/errors"
)

const prefsFile = "preferences.json"

// Preference keys.
const (
	PrefLastReference = "last_reference"
	PrefLastMoved     = "last_moved"
	PrefLastProject   = "last_project"
	PrefInterpolation = "interpolation"
	PrefColorRadius   = "color_radius"
	PrefBlendFraction = "blend_fraction"
	PrefColorBalance  = "color_balance"
	PrefRemoveDistort = "remove_distortion"
	PrefCorrelate     = "correlate"
	PrefStorePath     = "store_path"
)

// Prefs stores application preferences as a key-value map.
type Prefs struct {
	mu     sync.RWMutex
	values map[string]interface{}
	path   string
}

// LoadPrefs reads preferences from $XDG_CONFIG_HOME/panostitch/preferences.json.
// Returns a Prefs with defaults if the file doesn't exist.
func LoadPrefs() *Prefs {
	configDir, err := os.UserConfigDir()
	if err != nil {
		configDir = filepath.Join(os.Getenv("HOME"), ".config")
	}
	return LoadPrefsFrom(filepath.Join(configDir, "panostitch", prefsFile))
}

// LoadPrefsFrom reads preferences from path.
func LoadPrefsFrom(path string) *Prefs {
	p := &Prefs{
		values: make(map[string]interface{}),
		path:   path,
	}
	data, err := os.ReadFile(p.path)
	if err != nil {
		return p
	}
	_ = json.Unmarshal(data, &p.values)
	return p
}

// Path is where Save writes.
func (p *Prefs) Path() string {
	return p.path
}

// Save writes preferences to disk.
func (p *Prefs) Save() error {
	p.mu.RLock()
	data, err := json.MarshalIndent(p.values, "", "  ")
	p.mu.RUnlock()
	if err != nil {
		return err
	}

	dir := filepath.Dir(p.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrap(err, "create preferences directory")
	}
	return errors.Wrap(os.WriteFile(p.path, data, 0o644), "write preferences")
}

// FloatWithFallback returns a float64 preference, or fallback if not set.
func (p *Prefs) FloatWithFallback(key string, fallback float64) float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if v, ok := p.values[key]; ok {
		switch n := v.(type) {
		case float64:
			return n
		case int:
			return float64(n)
		}
	}
	return fallback
}

// SetFloat stores a float64 preference.
func (p *Prefs) SetFloat(key string, val float64) {
	p.mu.Lock()
	p.values[key] = val
	p.mu.Unlock()
}

// String returns a string preference, or "" if not set.
func (p *Prefs) String(key string) string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if v, ok := p.values[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// SetString stores a string preference.
func (p *Prefs) SetString(key string, val string) {
	p.mu.Lock()
	p.values[key] = val
	p.mu.Unlock()
}

// Bool returns a bool preference, or fallback if not set.
func (p *Prefs) Bool(key string, fallback bool) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if v, ok := p.values[key]; ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return fallback
}

// SetBool stores a bool preference.
func (p *Prefs) SetBool(key string, val bool) {
	p.mu.Lock()
	p.values[key] = val
	p.mu.Unlock()
}

// Apply overlays remembered stitch settings onto opts. Unusable stored
// values are ignored.
func (p *Prefs) Apply(opts *pipeline.Options) {
	if s := p.String(PrefInterpolation); s != "" {
		if interp, err := resample.ParseInterpolation(s); err == nil {
			opts.Resample.Interpolation = interp
		}
	}
	if r := p.FloatWithFallback(PrefColorRadius, 0); r > 0 {
		opts.ColorRadius = r
	}
	if f := p.FloatWithFallback(PrefBlendFraction, 0); f > 0 {
		opts.BlendFraction = f
	}
	opts.ColorBalance = p.Bool(PrefColorBalance, opts.ColorBalance)
	opts.RemoveDistortion = p.Bool(PrefRemoveDistort, opts.RemoveDistortion)
	opts.Correlate = p.Bool(PrefCorrelate, opts.Correlate)
}

// Remember stores the stitch settings of opts.
func (p *Prefs) Remember(opts pipeline.Options) {
	p.SetString(PrefInterpolation, opts.Resample.Interpolation.String())
	p.SetFloat(PrefColorRadius, opts.ColorRadius)
	p.SetFloat(PrefBlendFraction, opts.BlendFraction)
	p.SetBool(PrefColorBalance, opts.ColorBalance)
	p.SetBool(PrefRemoveDistort, opts.RemoveDistortion)
	p.SetBool(PrefCorrelate, opts.Correlate)
}
