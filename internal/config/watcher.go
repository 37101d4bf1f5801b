package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/hamed0406/pulsewatch/internal/domain"
	"github.com/hamed0406/pulsewatch/internal/metrics"
)

const reloadDebounce = 200 * time.Millisecond

// Watcher holds the current fleet snapshot and replaces it when the file
// changes. A reload that fails to parse keeps the previous snapshot.
type Watcher struct {
	path    string
	log     *zap.Logger
	current atomic.Pointer[domain.Fleet]
}

// NewWatcher loads the fleet once; a bad file at startup is an error.
func NewWatcher(path string, log *zap.Logger) (*Watcher, error) {
	if log == nil {
		log = zap.NewNop()
	}
	f, err := LoadFleet(path)
	if err != nil {
		return nil, err
	}
	w := &Watcher{path: path, log: log}
	w.current.Store(f)
	return w, nil
}

func (w *Watcher) Current() *domain.Fleet { return w.current.Load() }

// Reload re-reads the file and swaps the snapshot on success.
func (w *Watcher) Reload() error {
	f, err := LoadFleet(w.path)
	if err != nil {
		metrics.FleetReload(false)
		w.log.Warn("fleet_reload_failed", zap.String("path", w.path), zap.Error(err))
		return err
	}
	w.current.Store(f)
	metrics.FleetReload(true)
	w.log.Info("fleet_reloaded", zap.String("path", w.path), zap.Int("services", len(f.Services)))
	return nil
}

// Run watches the file's directory until ctx is done. Editors and config
// management usually replace the file instead of writing it in place, so
// the directory is watched and events are filtered by name.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("fleet watcher: %w", err)
	}
	defer fw.Close()

	dir := filepath.Dir(w.path)
	if err := fw.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	name := filepath.Clean(w.path)

	var debounce <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != name {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			debounce = time.After(reloadDebounce)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("fleet_watch_error", zap.Error(err))
		case <-debounce:
			debounce = nil
			_ = w.Reload()
		}
	}
}
