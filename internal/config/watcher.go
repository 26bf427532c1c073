package config

import (
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads the config file when it changes on disk.
type Watcher struct {
	path      string
	watcher   *fsnotify.Watcher
	onChange  func(*Config, error)
	debounce  time.Duration
	stopCh    chan struct{}
	stopOnce  sync.Once
	mu        sync.Mutex
	lastEvent time.Time
	started   bool
	done      chan struct{}
}

// NewWatcher creates a watcher for the config file at path. onChange gets
// the freshly loaded config, or the error that prevented loading it.
func NewWatcher(path string, onChange func(*Config, error)) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &Watcher{
		path:     filepath.Clean(path),
		watcher:  fsWatcher,
		onChange: onChange,
		debounce: 150 * time.Millisecond, // editors write in bursts
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}, nil
}

// Start begins watching. The directory is watched rather than the file so
// editors that save by rename are seen too.
func (w *Watcher) Start() error {
	if err := w.watcher.Add(filepath.Dir(w.path)); err != nil {
		return err
	}
	w.started = true
	go w.watchLoop()
	return nil
}

// Stop stops the watcher
func (w *Watcher) Stop() error {
	var err error
	w.stopOnce.Do(func() {
		close(w.stopCh)
		err = w.watcher.Close()
		if w.started {
			<-w.done
		}
	})
	return err
}

// SetDebounce sets the debounce duration
func (w *Watcher) SetDebounce(d time.Duration) {
	w.debounce = d
}

func (w *Watcher) watchLoop() {
	defer close(w.done)
	var debounceTimer *time.Timer

	for {
		select {
		case <-w.stopCh:
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}

			w.mu.Lock()
			w.lastEvent = time.Now()
			w.mu.Unlock()

			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(w.debounce, func() {
				w.mu.Lock()
				elapsed := time.Since(w.lastEvent)
				w.mu.Unlock()

				if elapsed >= w.debounce {
					w.reload()
				}
			})

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			cfgLog.Warn("config_watch_error", slog.String("error", err.Error()))
		}
	}
}

func (w *Watcher) reload() {
	select {
	case <-w.stopCh:
		return
	default:
	}

	cfg, err := LoadFile(w.path)
	if err != nil {
		cfgLog.Warn("config_reload_failed", slog.String("path", w.path), slog.String("error", err.Error()))
		w.onChange(nil, err)
		return
	}

	if p, err := Path(); err == nil && filepath.Clean(p) == w.path {
		configCacheMu.Lock()
		configCache = cfg
		configCacheMu.Unlock()
	}

	cfgLog.Info("config_reloaded", slog.String("path", w.path))
	w.onChange(cfg, nil)
}
