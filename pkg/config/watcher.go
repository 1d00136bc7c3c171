package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/meshpipe/meshpipe/pkg/pipeline"
)

// Reloader watches a configuration file and rebuilds the pipeline whenever
// the file changes. Pipelines are immutable once built, so a reload swaps in
// a fresh instance; callers fetch the current one through Pipeline.
type Reloader struct {
	path     string
	registry *Registry
	logger   *slog.Logger
	watcher  *fsnotify.Watcher
	cancel   context.CancelFunc

	mu       sync.RWMutex
	current  *pipeline.Pipeline
	lastErr  error
	onReload func(*pipeline.Pipeline)
}

// NewReloader builds the pipeline from the file at path and starts watching
// for changes. onReload, if non-nil, is invoked with each replacement
// pipeline after a successful rebuild.
func NewReloader(path string, reg *Registry, logger *slog.Logger, onReload func(*pipeline.Pipeline)) (*Reloader, error) {
	if logger == nil {
		logger = slog.Default()
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := &Reloader{
		path:     absPath,
		registry: reg,
		logger:   logger,
		watcher:  watcher,
		cancel:   cancel,
		onReload: onReload,
	}

	if err := r.load(); err != nil {
		_ = watcher.Close()
		cancel()
		return nil, err
	}

	// Watch the directory, not the file: editors replace files on save and
	// the original inode stops emitting events.
	if err := watcher.Add(filepath.Dir(absPath)); err != nil {
		_ = watcher.Close()
		cancel()
		return nil, fmt.Errorf("failed to watch directory: %w", err)
	}

	go r.watchLoop(ctx)
	return r, nil
}

// Pipeline returns the most recently built pipeline.
func (r *Reloader) Pipeline() *pipeline.Pipeline {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current
}

// LastError reports the error of the most recent reload attempt, nil when it
// succeeded. A failed reload keeps the previous pipeline serving.
func (r *Reloader) LastError() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastErr
}

// Close stops the watcher and cleans up resources.
func (r *Reloader) Close() error {
	r.cancel()
	return r.watcher.Close()
}

func (r *Reloader) watchLoop(ctx context.Context) {
	var debounceTimer *time.Timer
	debounceDuration := 100 * time.Millisecond

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-r.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != r.path {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Chmod) {
				if debounceTimer != nil {
					debounceTimer.Stop()
				}
				debounceTimer = time.AfterFunc(debounceDuration, func() {
					if err := r.load(); err != nil {
						r.logger.Error("pipeline reload failed", "path", r.path, "error", err)
					} else {
						r.logger.Info("pipeline reloaded", "path", r.path)
					}
				})
			}
		case err, ok := <-r.watcher.Errors:
			if !ok {
				return
			}
			r.logger.Error("config watcher error", "error", err)
		}
	}
}

func (r *Reloader) load() error {
	cfg, err := Load(r.path)
	if err == nil {
		var p *pipeline.Pipeline
		p, err = cfg.Build(r.registry, r.logger)
		if err == nil {
			r.mu.Lock()
			r.current = p
			r.lastErr = nil
			r.mu.Unlock()
			if r.onReload != nil {
				r.onReload(p)
			}
			return nil
		}
	}

	r.mu.Lock()
	r.lastErr = err
	r.mu.Unlock()
	return err
}
