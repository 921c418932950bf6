package config

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/gyaneshwarpardhi/scoutcue/internal/soundpack"
)

// PackLoader reads the sound pack file, applies per-event overrides and
// watches the file for changes. Sessions take a snapshot with Pack when they
// start, so a reload never changes a running session.
type PackLoader struct {
	path      string
	overrides map[string]string
	logger    *slog.Logger

	mu       sync.RWMutex
	current  *soundpack.Pack
	onChange []func(*soundpack.Pack)
}

// NewPackLoader creates a PackLoader and performs the initial load. An empty
// path uses the built-in empty pack plus the overrides.
func NewPackLoader(path string, overrides map[string]string, logger *slog.Logger) (*PackLoader, error) {
	if logger == nil {
		logger = slog.Default()
	}
	l := &PackLoader{path: path, overrides: overrides, logger: logger}
	p, err := l.load()
	if err != nil {
		return nil, err
	}
	l.current = p
	return l, nil
}

// Path is the watched pack file, empty for the built-in pack.
func (l *PackLoader) Path() string { return l.path }

// Pack returns the latest successfully loaded pack.
func (l *PackLoader) Pack() *soundpack.Pack {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.current
}

// OnChange registers a callback invoked after every successful reload.
func (l *PackLoader) OnChange(fn func(*soundpack.Pack)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onChange = append(l.onChange, fn)
}

// Watch starts a background goroutine that reloads the pack when its file
// changes. The parent directory is watched so editors that replace the file
// are seen too. Call the returned stop function to clean up.
func (l *PackLoader) Watch() (stop func(), err error) {
	if l.path == "" {
		return func() {}, nil
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("pack watcher: %w", err)
	}
	dir := filepath.Dir(l.path)
	if err := w.Add(dir); err != nil {
		w.Close()
		return nil, fmt.Errorf("pack watcher add %s: %w", dir, err)
	}
	target := filepath.Clean(l.path)

	done := make(chan struct{})
	go func() {
		defer w.Close()
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != target {
					continue
				}
				if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) {
					if _, err := l.Reload(); err != nil {
						// Keep serving the previous pack.
						l.logger.Warn("sound pack reload failed", "path", l.path, "err", err)
					}
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				l.logger.Warn("sound pack watcher", "err", err)
			case <-done:
				return
			}
		}
	}()

	var once sync.Once
	return func() { once.Do(func() { close(done) }) }, nil
}

// Reload forces an immediate re-read of the pack file.
func (l *PackLoader) Reload() (*soundpack.Pack, error) {
	p, err := l.load()
	if err != nil {
		return nil, err
	}
	l.mu.Lock()
	l.current = p
	callbacks := make([]func(*soundpack.Pack), len(l.onChange))
	copy(callbacks, l.onChange)
	l.mu.Unlock()

	l.logger.Info("sound pack loaded", "id", p.ID, "rules", len(p.Rules))
	for _, fn := range callbacks {
		fn(p)
	}
	return p, nil
}

func (l *PackLoader) load() (*soundpack.Pack, error) {
	p := soundpack.Default()
	if l.path != "" {
		var err error
		if p, err = soundpack.Load(l.path); err != nil {
			return nil, err
		}
	}
	p, err := p.WithOverrides(l.overrides)
	if err != nil {
		return nil, err
	}
	if err := ValidatePack(p); err != nil {
		return nil, fmt.Errorf("%s: %w", l.describe(), err)
	}
	return p, nil
}

func (l *PackLoader) describe() string {
	if l.path == "" {
		return "built-in sound pack"
	}
	return l.path
}
