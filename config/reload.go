package config

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ReloadCallback is invoked after a new configuration is applied.
type ReloadCallback func(old, new *Config)

// Snapshot is one entry in the reload history.
type Snapshot struct {
	Config    *Config   `json:"config"`
	AppliedAt time.Time `json:"applied_at"`
	Source    string    `json:"source"` // "initial", "reload", "rollback"
}

// Reloader hot-reloads configuration from a watched file. A reload that fails
// to parse or validate is discarded; the previous configuration stays active.
type Reloader struct {
	mu         sync.RWMutex
	current    *Config
	previous   *Config
	history    []Snapshot
	maxHistory int

	loader    *Loader
	watcher   *FileWatcher
	callbacks []ReloadCallback
	logger    *zap.Logger
}

// NewReloader creates a reloader for the given config path.
func NewReloader(path string, logger *zap.Logger) (*Reloader, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	loader := NewLoader().WithConfigPath(path)
	cfg, err := loader.Load()
	if err != nil {
		return nil, err
	}

	watcher, err := NewFileWatcher([]string{path}, WithWatcherLogger(logger))
	if err != nil {
		return nil, err
	}

	r := &Reloader{
		current:    cfg,
		maxHistory: 10,
		loader:     loader,
		watcher:    watcher,
		logger:     logger.With(zap.String("component", "config-reloader")),
	}
	r.record(cfg, "initial")
	watcher.OnChange(r.onFileEvent)
	return r, nil
}

// Start begins watching the config file.
func (r *Reloader) Start(ctx context.Context) error {
	return r.watcher.Start(ctx)
}

// Stop halts the watcher.
func (r *Reloader) Stop() {
	r.watcher.Stop()
}

// Current returns the active configuration.
func (r *Reloader) Current() *Config {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current
}

// OnReload registers a callback invoked after each applied reload.
func (r *Reloader) OnReload(cb ReloadCallback) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.callbacks = append(r.callbacks, cb)
}

// History returns the applied-configuration history, newest last.
func (r *Reloader) History() []Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Snapshot, len(r.history))
	copy(out, r.history)
	return out
}

// Reload forces a reload from disk.
func (r *Reloader) Reload() error {
	cfg, err := r.loader.Load()
	if err != nil {
		r.logger.Warn("config reload rejected", zap.Error(err))
		return err
	}
	r.apply(cfg, "reload")
	return nil
}

// Rollback restores the previously applied configuration.
func (r *Reloader) Rollback() error {
	r.mu.Lock()
	prev := r.previous
	r.mu.Unlock()
	if prev == nil {
		return fmt.Errorf("no previous config to roll back to")
	}
	r.apply(prev, "rollback")
	return nil
}

func (r *Reloader) onFileEvent(event FileEvent) {
	if event.Op == FileOpRemove {
		r.logger.Warn("config file removed, keeping current config", zap.String("path", event.Path))
		return
	}
	if err := r.Reload(); err != nil {
		r.logger.Warn("hot reload failed, keeping current config", zap.Error(err))
	}
}

func (r *Reloader) apply(cfg *Config, source string) {
	r.mu.Lock()
	old := r.current
	r.previous = old
	r.current = cfg
	r.record(cfg, source)
	callbacks := make([]ReloadCallback, len(r.callbacks))
	copy(callbacks, r.callbacks)
	r.mu.Unlock()

	for _, cb := range callbacks {
		cb(old, cfg)
	}
	r.logger.Info("config applied", zap.String("source", source))
}

// record appends to the history ring; callers hold r.mu except NewReloader.
func (r *Reloader) record(cfg *Config, source string) {
	r.history = append(r.history, Snapshot{Config: cfg, AppliedAt: time.Now(), Source: source})
	if len(r.history) > r.maxHistory {
		r.history = r.history[len(r.history)-r.maxHistory:]
	}
}
