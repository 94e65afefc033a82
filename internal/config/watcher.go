package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watcher reloads the configuration file when it changes on disk.
// Reload failures keep the previous configuration in effect.
type Watcher struct {
	logger  *zap.Logger
	path    string
	watcher *fsnotify.Watcher

	mu        sync.Mutex
	callbacks []func(*Config)
	running   bool
	timer     *time.Timer
	debounce  time.Duration

	ctx    context.Context
	cancel context.CancelFunc
}

// NewWatcher creates a watcher for the given configuration file.
func NewWatcher(logger *zap.Logger, configPath string) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Watcher{
		logger:   logger,
		path:     configPath,
		watcher:  fsw,
		debounce: time.Second,
		ctx:      ctx,
		cancel:   cancel,
	}, nil
}

// Start begins watching. onReload receives the freshly loaded
// configuration after every successful change.
func (w *Watcher) Start(onReload func(*Config)) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return fmt.Errorf("watcher already running")
	}

	if onReload != nil {
		w.callbacks = append(w.callbacks, onReload)
	}

	if err := w.watcher.Add(w.path); err != nil {
		return fmt.Errorf("failed to watch file %s: %w", w.path, err)
	}

	// Watch the directory too: editors replace files via rename.
	dir := filepath.Dir(w.path)
	if err := w.watcher.Add(dir); err != nil {
		w.logger.Warn("failed to watch directory",
			zap.String("dir", dir),
			zap.Error(err))
	}

	w.running = true
	go w.handleEvents()

	w.logger.Info("configuration watcher started", zap.String("path", w.path))
	return nil
}

// Stop stops the watcher.
func (w *Watcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running {
		return
	}

	w.cancel()
	w.watcher.Close()
	w.running = false

	if w.timer != nil {
		w.timer.Stop()
	}

	w.logger.Info("configuration watcher stopped")
}

// IsRunning reports whether the watcher is active.
func (w *Watcher) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

func (w *Watcher) handleEvents() {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}

			switch {
			case event.Op&fsnotify.Write == fsnotify.Write:
				w.scheduleReload()
			case event.Op&fsnotify.Create == fsnotify.Create:
				// recreated after delete or atomic rename
				w.watcher.Add(w.path)
				w.scheduleReload()
			case event.Op&fsnotify.Remove == fsnotify.Remove:
				w.logger.Warn("config file removed", zap.String("path", event.Name))
			case event.Op&fsnotify.Rename == fsnotify.Rename:
				go func() {
					time.Sleep(100 * time.Millisecond)
					w.watcher.Add(w.path)
				}()
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("file watcher error", zap.Error(err))

		case <-w.ctx.Done():
			return
		}
	}
}

// scheduleReload debounces bursts of write events into one reload.
func (w *Watcher) scheduleReload() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
	}

	w.timer = time.AfterFunc(w.debounce, func() {
		cfg, err := Load(w.path)
		if err != nil {
			w.logger.Error("config reload failed, keeping previous configuration",
				zap.String("path", w.path),
				zap.Error(err))
			return
		}

		w.mu.Lock()
		callbacks := make([]func(*Config), len(w.callbacks))
		copy(callbacks, w.callbacks)
		w.mu.Unlock()

		w.logger.Info("configuration reloaded", zap.String("path", w.path))
		for _, callback := range callbacks {
			callback(cfg)
		}
	})
}
