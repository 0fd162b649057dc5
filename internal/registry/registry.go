// Package registry tracks which build executions have been admitted, keyed by
// project and commit sha.
//
// The registry is an existence index only: it does not own the executions it
// records and never retires admitted builds. Register is the sole admission
// point and is an atomic check-and-insert, so concurrent reconciliation passes
// and pollers racing for the same key admit exactly one execution. Remove only
// releases an admission whose setup never completed.
package registry

import (
	"sort"
	"sync"

	"ciwarden/internal/ci"
	"ciwarden/pkg/logging"
)

// Entry is anything that can be admitted, typically a *build.Execution.
type Entry interface {
	Key() ci.BuildKey
}

// Registry is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	entries map[ci.BuildKey]Entry
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		entries: make(map[ci.BuildKey]Entry),
	}
}

// Exists reports whether an execution for (projectID, sha) was admitted.
func (r *Registry) Exists(projectID, sha string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[ci.BuildKey{ProjectID: projectID, SHA: sha}]
	return ok
}

// Register admits e unless an execution with the same key is already present.
// It reports whether e was admitted.
func (r *Registry) Register(e Entry) bool {
	key := e.Key()

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[key]; ok {
		logging.Debug("Registry", "Suppressed duplicate execution %s", key)
		return false
	}
	r.entries[key] = e
	logging.Debug("Registry", "Registered execution %s", key)
	return true
}

// Remove releases e's key if e is the admitted entry. It reports whether
// anything was removed.
func (r *Registry) Remove(e Entry) bool {
	key := e.Key()

	r.mu.Lock()
	defer r.mu.Unlock()

	if current, ok := r.entries[key]; !ok || current != e {
		return false
	}
	delete(r.entries, key)
	logging.Debug("Registry", "Released execution %s", key)
	return true
}

// Get returns the admitted execution for key.
func (r *Registry) Get(key ci.BuildKey) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[key]
	return e, ok
}

// Len returns the number of admitted executions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Keys returns the admitted keys ordered by project then sha.
func (r *Registry) Keys() []ci.BuildKey {
	r.mu.RLock()
	keys := make([]ci.BuildKey, 0, len(r.entries))
	for k := range r.entries {
		keys = append(keys, k)
	}
	r.mu.RUnlock()

	sort.Slice(keys, func(i, j int) bool {
		if keys[i].ProjectID != keys[j].ProjectID {
			return keys[i].ProjectID < keys[j].ProjectID
		}
		return keys[i].SHA < keys[j].SHA
	})
	return keys
}
