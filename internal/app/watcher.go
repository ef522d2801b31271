package app

import (
	"context"
	"path/filepath"
	"sort"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
)

// Watcher follows a set of files and calls back when any of them is
// rewritten. It is used to restitch when a project or one of its images
// changes on disk.
//
// The parent directories are watched rather than the files, so files that
// do not exist yet and editors that rename a temporary file over the
// target are both seen.
type Watcher struct {
	paths    []string
	watched  map[string]bool
	debounce time.Duration
	onChange func(changed []string)
	fs       *fsnotify.Watcher
}

// NewWatcher starts watching paths. Changes made after it returns are
// reported by Run. Events are batched until debounce passes without a new
// one.
func NewWatcher(debounce time.Duration, paths ...string) (*Watcher, error) {
	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "watch")
	}
	w := &Watcher{
		watched:  make(map[string]bool),
		debounce: debounce,
		fs:       fs,
	}
	dirs := make(map[string]bool)
	for _, p := range paths {
		p = resolve(p)
		if w.watched[p] {
			continue
		}
		w.watched[p] = true
		w.paths = append(w.paths, p)

		dir := filepath.Dir(p)
		if dirs[dir] {
			continue
		}
		dirs[dir] = true
		if err := fs.Add(dir); err != nil {
			fs.Close()
			return nil, errors.Wrapf(err, "watch %s", dir)
		}
	}
	return w, nil
}

// OnChange sets the callback. It runs on the goroutine calling Run.
func (w *Watcher) OnChange(callback func(changed []string)) {
	w.onChange = callback
}

// Run delivers batched changes until ctx is done, then releases the
// underlying watches.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fs.Close()

	pending := make(map[string]bool)
	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			name := filepath.Clean(ev.Name)
			if !w.watched[name] || ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			pending[name] = true
			timer.Reset(w.debounce)
		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			return errors.Wrap(err, "watch")
		case <-timer.C:
			if len(pending) == 0 {
				continue
			}
			changed := make([]string, 0, len(pending))
			for p := range pending {
				changed = append(changed, p)
			}
			sort.Strings(changed)
			pending = make(map[string]bool)
			if w.onChange != nil {
				w.onChange(changed)
			}
		}
	}
}

// Paths returns the watched files with symlinks resolved.
func (w *Watcher) Paths() []string {
	return w.paths
}

// resolve follows symlinks in path, or in its directory when the file does
// not exist yet.
func resolve(path string) string {
	if real, err := filepath.EvalSymlinks(path); err == nil {
		return real
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return filepath.Clean(path)
	}
	if dir, err := filepath.EvalSymlinks(filepath.Dir(abs)); err == nil {
		return filepath.Join(dir, filepath.Base(abs))
	}
	return abs
}
