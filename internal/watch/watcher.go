// SPDX-License-Identifier: MPL-2.0

// Package watch re-runs a deploy when files under the project directory
// change.
//
// Events are debounced: everything that changes within the quiet period is
// delivered to OnChange as one batch, so saving package.json and the lock
// file together triggers a single deploy.
package watch

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"

	"github.com/invowk/layerdeploy/internal/layer"
)

// DefaultDebounce is the quiet period used when Config.Debounce is unset.
const DefaultDebounce = 500 * time.Millisecond

// ErrAlreadyRunning is returned by a second call to Run.
var ErrAlreadyRunning = errors.New("watch: Run called more than once")

// defaultIgnores never trigger a deploy. node_modules is covered by the lock
// file; .layerdeploy holds the state file a deploy itself writes.
var defaultIgnores = []string{
	"**/.git/**",
	"**/node_modules/**",
	"**/.layerdeploy/**",
	"**/*.swp",
	"**/*~",
	"**/.DS_Store",
}

type (
	// Config configures a Watcher.
	Config struct {
		// Dir is the watched root. Empty means the working directory.
		Dir string
		// Patterns select the files that trigger OnChange, as doublestar
		// globs relative to Dir. Empty selects every file not ignored.
		Patterns []string
		// Ignore is merged with the built-in ignores.
		Ignore   []string
		Debounce time.Duration
		// OnChange receives the changed paths relative to Dir, sorted. Its
		// error is logged and watching continues.
		OnChange func(ctx context.Context, changed []string) error
		Observer layer.Observer
	}

	// Watcher delivers debounced change batches to Config.OnChange.
	Watcher struct {
		cfg      Config
		fsw      *fsnotify.Watcher
		dir      string
		ignores  []string
		debounce time.Duration
		observer layer.Observer
		started  atomic.Bool
	}
)

// New validates the patterns and registers every directory under Dir that is
// not ignored.
func New(cfg Config) (*Watcher, error) {
	dir := cfg.Dir
	if dir == "" {
		dir = "."
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("watch: resolve %s: %w", dir, err)
	}
	if err := validatePatterns("watch", cfg.Patterns); err != nil {
		return nil, err
	}
	if err := validatePatterns("ignore", cfg.Ignore); err != nil {
		return nil, err
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watch: create watcher: %w", err)
	}
	w := &Watcher{
		cfg:      cfg,
		fsw:      fsw,
		dir:      abs,
		ignores:  append(slices.Clone(defaultIgnores), cfg.Ignore...),
		debounce: cfg.Debounce,
		observer: cfg.Observer,
	}
	if w.debounce <= 0 {
		w.debounce = DefaultDebounce
	}
	if w.observer == nil {
		w.observer = layer.NopObserver{}
	}

	if err := w.addTree(abs); err != nil {
		_ = fsw.Close()
		return nil, err
	}
	return w, nil
}

// Run processes events until ctx is canceled, which is not an error. A
// batch that arrives while OnChange is still running waits for the next
// quiet period instead of running concurrently.
func (w *Watcher) Run(ctx context.Context) error {
	if !w.started.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer func() {
		if err := w.fsw.Close(); err != nil {
			w.observer.Warn("close watcher", "err", err)
		}
	}()

	var (
		mu      sync.Mutex
		pending = make(map[string]struct{})
		timer   *time.Timer
		busy    atomic.Bool
	)
	defer func() {
		mu.Lock()
		if timer != nil {
			timer.Stop()
		}
		mu.Unlock()
	}()

	fire := func() {
		if ctx.Err() != nil {
			return
		}
		if !busy.CompareAndSwap(false, true) {
			mu.Lock()
			timer.Reset(w.debounce)
			mu.Unlock()
			return
		}
		defer busy.Store(false)

		mu.Lock()
		changed := slices.Sorted(maps.Keys(pending))
		clear(pending)
		mu.Unlock()
		if len(changed) == 0 || w.cfg.OnChange == nil {
			return
		}
		w.observer.Info("change detected", "files", len(changed))
		if err := w.cfg.OnChange(ctx, changed); err != nil {
			w.observer.Warn("re-deploy failed", "err", err)
		}
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case evt, ok := <-w.fsw.Events:
			if !ok {
				return errors.New("watch: event channel closed")
			}
			rel := w.rel(evt.Name)
			if w.ignored(rel) {
				continue
			}
			if evt.Has(fsnotify.Create) {
				w.addIfDir(evt.Name)
			}
			if !w.selected(rel) {
				continue
			}
			mu.Lock()
			pending[rel] = struct{}{}
			if timer == nil {
				timer = time.AfterFunc(w.debounce, fire)
			} else {
				timer.Reset(w.debounce)
			}
			mu.Unlock()

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return errors.New("watch: error channel closed")
			}
			if isFatalFsnotifyError(err) {
				return fmt.Errorf("watch: %w", err)
			}
			w.observer.Warn("watcher error", "err", err)
		}
	}
}

func (w *Watcher) addTree(root string) error {
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			w.observer.Debug("skip unreadable path", "path", path, "err", err)
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if rel := w.rel(path); rel != "." && (w.ignored(rel) || w.ignored(rel+"/")) {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(path); err != nil {
			return fmt.Errorf("watch: add %s: %w", path, err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("watch: walk %s: %w", root, err)
	}
	return nil
}

func (w *Watcher) addIfDir(path string) {
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		return
	}
	if err := w.addTree(path); err != nil {
		w.observer.Warn("watch new directory", "path", path, "err", err)
	}
}

func (w *Watcher) rel(path string) string {
	rel, err := filepath.Rel(w.dir, path)
	if err != nil {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(rel)
}

func (w *Watcher) ignored(rel string) bool {
	return matchAny(w.ignores, rel)
}

func (w *Watcher) selected(rel string) bool {
	return len(w.cfg.Patterns) == 0 || matchAny(w.cfg.Patterns, rel)
}

func matchAny(patterns []string, rel string) bool {
	for _, p := range patterns {
		if ok, err := doublestar.Match(p, rel); err == nil && ok {
			return true
		}
	}
	return false
}

func validatePatterns(label string, patterns []string) error {
	for _, p := range patterns {
		if !doublestar.ValidatePattern(p) {
			return fmt.Errorf("watch: invalid %s pattern %q: %w", label, p, doublestar.ErrBadPattern)
		}
	}
	return nil
}
