package config

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// debounceInterval coalesces editor write bursts (rename+chmod+write)
// into a single reload.
const debounceInterval = 500 * time.Millisecond

// Watcher reloads the config file on change and hands the result to a
// callback. Parse failures keep the previous config.
type Watcher struct {
	path     string
	onChange func(Config)

	mu      sync.Mutex
	current Config
	timer   *time.Timer

	fw   *fsnotify.Watcher
	done chan struct{}
}

// NewWatcher loads path once and begins watching its directory. onChange
// fires with the initial config before NewWatcher returns, then again on
// every debounced file change.
func NewWatcher(path string, onChange func(Config)) (*Watcher, error) {
	cfg, err := Load(path)
	if err != nil {
		// Keep watching: the user may fix the file.
		log.Warn("config_initial_load_failed", "path", path, "error", err)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	// Watch the directory, not the file: editors replace files via
	// rename, which drops a watch on the file itself.
	if err := fw.Add(filepath.Dir(path)); err != nil {
		fw.Close()
		return nil, err
	}

	w := &Watcher{
		path:     path,
		onChange: onChange,
		current:  cfg,
		fw:       fw,
		done:     make(chan struct{}),
	}
	onChange(cfg)
	return w, nil
}

// Current returns the last successfully loaded config.
func (w *Watcher) Current() Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Run processes filesystem events until ctx is done.
func (w *Watcher) Run(ctx context.Context) {
	defer close(w.done)
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.fw.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != filepath.Clean(w.path) {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.scheduleReload()
		case err, ok := <-w.fw.Errors:
			if !ok {
				return
			}
			log.Warn("config_watch_error", "error", err)
		}
	}
}

func (w *Watcher) scheduleReload() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(debounceInterval, w.reload)
}

func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		log.Warn("config_reload_failed", "path", w.path, "error", err)
		return
	}
	w.mu.Lock()
	w.current = cfg
	w.mu.Unlock()
	log.Info("config_reloaded", "path", w.path)
	w.onChange(cfg)
}

// Close stops the underlying filesystem watcher.
func (w *Watcher) Close() error {
	return w.fw.Close()
}
