package config

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"ciwarden/pkg/logging"
)

const defaultDebounce = 500 * time.Millisecond

// Watcher reloads config.yaml when it changes.
//
// The directory is watched rather than the file so that editors replacing
// the file by rename are noticed. Bursts of events are debounced into one
// reload.
type Watcher struct {
	mu sync.Mutex

	configPath string
	debounce   time.Duration
	onChange   func(Config)

	watcher *fsnotify.Watcher
	timer   *time.Timer
	stopCh  chan struct{}
	running bool
}

// NewWatcher creates a watcher for configPath/config.yaml. onChange is called
// with each configuration that loads and validates.
func NewWatcher(configPath string, debounce time.Duration, onChange func(Config)) *Watcher {
	if debounce <= 0 {
		debounce = defaultDebounce
	}
	return &Watcher{
		configPath: configPath,
		debounce:   debounce,
		onChange:   onChange,
	}
}

// Start begins watching. It returns once the watch is established.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(w.configPath); err != nil {
		_ = watcher.Close()
		return err
	}

	w.watcher = watcher
	w.stopCh = make(chan struct{})
	w.running = true

	go w.processEvents(ctx, watcher, w.stopCh)

	logging.Info("ConfigLoader", "Watching %s for configuration changes", ConfigFilePath(w.configPath))
	return nil
}

func (w *Watcher) processEvents(ctx context.Context, watcher *fsnotify.Watcher, stopCh chan struct{}) {
	for {
		select {
		case <-ctx.Done():
			_ = w.Stop()
			return

		case <-stopCh:
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != configFileName {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			w.scheduleReload()

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			logging.Error("ConfigLoader", err, "Configuration watcher error")
		}
	}
}

func (w *Watcher) scheduleReload() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running {
		return
	}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.reload)
}

func (w *Watcher) reload() {
	w.mu.Lock()
	running := w.running
	w.mu.Unlock()
	if !running {
		return
	}

	cfg, err := LoadConfig(w.configPath)
	if err != nil {
		logging.Error("ConfigLoader", err, "Ignoring invalid configuration change")
		return
	}
	logging.Info("ConfigLoader", "Configuration reloaded")
	w.onChange(cfg)
}

// Stop stops watching. Pending reloads are dropped.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running {
		return nil
	}
	w.running = false
	close(w.stopCh)
	if w.timer != nil {
		w.timer.Stop()
	}

	err := w.watcher.Close()
	w.watcher = nil
	return err
}
