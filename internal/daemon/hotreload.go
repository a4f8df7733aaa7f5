package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/jmylchreest/pidisplay/internal/config"
)

// LoadFunc loads and validates a daemon config from path.
type LoadFunc func(path string) (*config.DaemonConfig, error)

// ConfigWatcher reloads the daemon config file when it changes on disk.
type ConfigWatcher struct {
	mu     sync.RWMutex
	logger *slog.Logger

	path    string
	load    LoadFunc
	current *config.DaemonConfig // last config that loaded cleanly

	// Editors write a file in several steps; reload once they settle.
	debounce time.Duration

	onReload func(*config.DaemonConfig)
	onError  func(error)

	fsw    *fsnotify.Watcher
	stopCh chan struct{}
	doneCh chan struct{}

	running bool
}

// NewConfigWatcher returns a stopped watcher for path.
// An empty path watches the default location.
func NewConfigWatcher(path string, logger *slog.Logger) *ConfigWatcher {
	if path == "" {
		path = config.DaemonConfigPath()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ConfigWatcher{
		logger:   logger,
		path:     path,
		load:     config.LoadDaemonConfig,
		debounce: 250 * time.Millisecond,
	}
}

// Path returns the watched file.
func (w *ConfigWatcher) Path() string {
	return w.path
}

// SetLoader replaces the function used to load the changed file.
func (w *ConfigWatcher) SetLoader(load LoadFunc) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.load = load
}

// SetDebounce sets how long the file must stay quiet before it is reloaded.
func (w *ConfigWatcher) SetDebounce(d time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.debounce = d
}

// SetReloadCallback is called with each changed config that loads cleanly.
func (w *ConfigWatcher) SetReloadCallback(callback func(*config.DaemonConfig)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onReload = callback
}

// SetErrorCallback is called when a changed file fails to load.
func (w *ConfigWatcher) SetErrorCallback(callback func(error)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onError = callback
}

// Start watches the file until ctx ends or Stop is called. initial is the
// config in effect. The directory is watched so that renames over the file
// are seen.
func (w *ConfigWatcher) Start(ctx context.Context, initial *config.DaemonConfig) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return nil
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	dir := filepath.Dir(w.path)
	if err := fsw.Add(dir); err != nil {
		_ = fsw.Close()
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	w.fsw = fsw
	w.current = initial
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})
	w.running = true

	go w.watchLoop(ctx, fsw, w.stopCh, w.doneCh, w.debounce)

	w.logger.Debug("watching config", "path", w.path)
	return nil
}

// Stop ends the watch and waits for it to finish. It is safe to call twice.
func (w *ConfigWatcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	close(w.stopCh)
	doneCh := w.doneCh
	fsw := w.fsw
	w.mu.Unlock()

	<-doneCh
	_ = fsw.Close()
	w.logger.Debug("stopped watching config", "path", w.path)
}

// Current returns the last config that loaded cleanly.
func (w *ConfigWatcher) Current() *config.DaemonConfig {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

func (w *ConfigWatcher) watchLoop(ctx context.Context, fsw *fsnotify.Watcher, stopCh, doneCh chan struct{}, debounce time.Duration) {
	defer close(doneCh)

	name := filepath.Base(w.path)
	timer := time.NewTimer(debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return

		case ev, ok := <-fsw.Events:
			if !ok {
				return
			}
			if filepath.Base(ev.Name) == name && ev.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				timer.Reset(debounce)
			}

		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("config watcher error", "error", err)

		case <-timer.C:
			w.reload()
		}
	}
}

// reload loads the changed file and reports the outcome.
func (w *ConfigWatcher) reload() {
	w.mu.RLock()
	load, onReload, onError, prev := w.load, w.onReload, w.onError, w.current
	w.mu.RUnlock()

	w.logger.Debug("config changed", "path", w.path)

	next, err := load(w.path)
	if err != nil {
		w.logger.Warn("rejected config change", "path", w.path, "error", err)
		if onError != nil {
			onError(err)
		}
		return
	}
	if prev != nil && *next == *prev {
		w.logger.Debug("config unchanged after reload", "path", w.path)
		return
	}

	w.mu.Lock()
	w.current = next
	w.mu.Unlock()

	w.logger.Info("config reloaded", "path", w.path)
	if onReload != nil {
		onReload(next)
	}
}
