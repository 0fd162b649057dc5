// Package poller runs one long-lived poll loop per (project, credential) pair.
package poller

import (
	"context"
	"sort"
	"sync"
	"time"

	"k8s.io/apimachinery/pkg/util/wait"

	"ciwarden/internal/ci"
	"ciwarden/pkg/logging"
)

const (
	DefaultInterval     = time.Minute
	DefaultJitterFactor = 0.1
)

// PollFunc is run once per tick. Errors are logged and the loop continues.
type PollFunc func(ctx context.Context, project ci.Project, credential ci.Credential) error

// Config configures a Manager.
type Config struct {
	Interval     time.Duration
	JitterFactor float64
	Poll         PollFunc
}

// Key identifies a poller.
type Key struct {
	ProjectID  string
	Credential string
}

func (k Key) String() string {
	return k.ProjectID + "/" + k.Credential
}

type poller struct {
	key    Key
	cancel context.CancelFunc
	done   chan struct{}

	mu         sync.RWMutex
	project    ci.Project
	credential ci.Credential
}

func (p *poller) target() (ci.Project, ci.Credential) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.project, p.credential
}

// Manager owns the pollers.
type Manager struct {
	config Config

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	pollers map[Key]*poller
	stopped bool
	wg      sync.WaitGroup
}

// NewManager creates a Manager whose pollers stop when ctx is done.
func NewManager(ctx context.Context, config Config) *Manager {
	if config.Interval <= 0 {
		config.Interval = DefaultInterval
	}
	if config.JitterFactor < 0 {
		config.JitterFactor = 0
	}
	if config.Poll == nil {
		config.Poll = func(context.Context, ci.Project, ci.Credential) error { return nil }
	}

	ctx, cancel := context.WithCancel(ctx)
	return &Manager{
		config:  config,
		ctx:     ctx,
		cancel:  cancel,
		pollers: make(map[Key]*poller),
	}
}

// Start launches a poller for the pair. Starting a pair that already has a
// poller only refreshes its project and returns false.
func (m *Manager) Start(project ci.Project, credential ci.Credential) bool {
	key := Key{ProjectID: project.ID, Credential: credential.Name}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopped {
		logging.Warn("Pollers", "Not starting poller %s: manager stopped", key)
		return false
	}
	if existing, ok := m.pollers[key]; ok {
		existing.mu.Lock()
		existing.project = project
		existing.credential = credential
		existing.mu.Unlock()
		logging.Debug("Pollers", "Poller %s already running", key)
		return false
	}

	ctx, cancel := context.WithCancel(m.ctx)
	p := &poller{
		key:        key,
		cancel:     cancel,
		done:       make(chan struct{}),
		project:    project,
		credential: credential,
	}
	m.pollers[key] = p

	m.wg.Add(1)
	go m.run(ctx, p)

	logging.Info("Pollers", "Started poller %s (every %s)", key, m.config.Interval)
	return true
}

func (m *Manager) run(ctx context.Context, p *poller) {
	defer m.wg.Done()
	defer close(p.done)

	wait.JitterUntilWithContext(ctx, func(ctx context.Context) {
		project, credential := p.target()
		if err := m.config.Poll(ctx, project, credential); err != nil {
			logging.Error("Pollers", err, "Poll of %s failed", p.key)
		}
	}, m.config.Interval, m.config.JitterFactor, true)

	logging.Debug("Pollers", "Poller %s stopped", p.key)
}

// Sync makes the pollers of credential match projects: new pairs are started,
// existing ones refreshed and pairs no longer listed are stopped.
func (m *Manager) Sync(credential ci.Credential, projects []ci.Project) {
	wanted := make(map[Key]bool, len(projects))
	for _, project := range projects {
		wanted[Key{ProjectID: project.ID, Credential: credential.Name}] = true
		m.Start(project, credential)
	}

	m.mu.Lock()
	var stale []*poller
	for key, p := range m.pollers {
		if key.Credential == credential.Name && !wanted[key] {
			stale = append(stale, p)
			delete(m.pollers, key)
		}
	}
	m.mu.Unlock()

	for _, p := range stale {
		p.cancel()
		<-p.done
		logging.Info("Pollers", "Removed poller %s", p.key)
	}
}

// Count returns the number of running pollers.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pollers)
}

// Keys returns the running pollers, sorted.
func (m *Manager) Keys() []Key {
	m.mu.Lock()
	keys := make([]Key, 0, len(m.pollers))
	for key := range m.pollers {
		keys = append(keys, key)
	}
	m.mu.Unlock()

	sort.Slice(keys, func(i, j int) bool {
		return keys[i].String() < keys[j].String()
	})
	return keys
}

// Stop stops every poller and waits for them to return.
func (m *Manager) Stop() {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	m.stopped = true
	m.pollers = make(map[Key]*poller)
	m.mu.Unlock()

	m.cancel()
	m.wg.Wait()
	logging.Info("Pollers", "All pollers stopped")
}
