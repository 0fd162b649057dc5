package config

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type configRecorder struct {
	mu      sync.Mutex
	configs []Config
}

func (r *configRecorder) record(cfg Config) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.configs = append(r.configs, cfg)
}

func (r *configRecorder) last() (Config, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.configs) == 0 {
		return Config{}, 0
	}
	return r.configs[len(r.configs)-1], len(r.configs)
}

func TestWatcher_ReloadsValidChanges(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "executor:\n  workers: 1\n")

	rec := &configRecorder{}
	w := NewWatcher(dir, 20*time.Millisecond, rec.record)
	require.NoError(t, w.Start(context.Background()))
	defer func() { _ = w.Stop() }()

	writeConfig(t, dir, "executor:\n  workers: 7\n")

	assert.Eventually(t, func() bool {
		cfg, n := rec.last()
		return n > 0 && cfg.Executor.Workers == 7
	}, 5*time.Second, 10*time.Millisecond)
}

func TestWatcher_IgnoresInvalidChanges(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "executor:\n  workers: 1\n")

	rec := &configRecorder{}
	w := NewWatcher(dir, 20*time.Millisecond, rec.record)
	require.NoError(t, w.Start(context.Background()))
	defer func() { _ = w.Stop() }()

	writeConfig(t, dir, "executor:\n  workers: -3\n")
	time.Sleep(200 * time.Millisecond)

	_, n := rec.last()
	assert.Equal(t, 0, n)
}

func TestWatcher_StopIsIdempotent(t *testing.T) {
	w := NewWatcher(t.TempDir(), 0, func(Config) {})
	require.NoError(t, w.Start(context.Background()))
	assert.NoError(t, w.Stop())
	assert.NoError(t, w.Stop())
}

func TestWatcher_MissingDirectory(t *testing.T) {
	w := NewWatcher("/nonexistent/ciwarden", 0, func(Config) {})
	assert.Error(t, w.Start(context.Background()))
}
