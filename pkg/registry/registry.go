// Package registry maps instance identifiers to lazily created backend
// singletons. The registry is an explicit value, not process-global state:
// each caller (or test) constructs its own, so isolation comes for free.

package registry

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/mtavana/kvtier/pkg/cache"
)

// PolicyLRU is the only eviction policy variant currently supported.
const PolicyLRU = "LRU"

// Registry is a synchronized mapping from instance id to a backend singleton.
type Registry struct {
	mux       sync.Mutex
	conf      cache.Config
	instances map[string]cache.Backend
}

// New is the constructor for Registry. Backends created through GetOrCreate
// share the given config; a config with a non-empty path yields disk backends,
// otherwise memory backends.
func New(conf cache.Config) *Registry {
	return &Registry{conf: conf, instances: make(map[string]cache.Backend)}
}

// GetOrCreate returns the backend for the instance id, building it on first
// call with the eviction policy selected by policyName. An unsupported policy
// name fails the call and creates nothing. Later calls with the same id
// return the existing instance unconditionally; their policy name is ignored.
func (r *Registry) GetOrCreate(instanceID, policyName string) (cache.Backend, error) {
	r.mux.Lock()
	defer r.mux.Unlock()

	if backend, exists := r.instances[instanceID]; exists {
		return backend, nil
	}

	var backend cache.Backend
	switch policyName {
	case PolicyLRU:
		if r.conf.Path != "" {
			diskBackend, err := cache.NewDiskBackend(r.conf, nil /*evictor*/)
			if err != nil {
				return nil, fmt.Errorf("failed to create disk backend for instance %q: %w", instanceID, err)
			}
			backend = diskBackend
		} else {
			backend = cache.NewMemoryBackend(r.conf, nil /*evictor*/)
		}
	default:
		return nil, fmt.Errorf("eviction policy %q is not supported", policyName)
	}

	r.instances[instanceID] = backend
	slog.Info("Created backend instance.", "instance", instanceID, "policy", policyName)
	return backend, nil
}

// Get returns the backend for the instance id, never creating one.
func (r *Registry) Get(instanceID string) (cache.Backend, bool /*found*/) {
	r.mux.Lock()
	defer r.mux.Unlock()
	backend, exists := r.instances[instanceID]
	return backend, exists
}

// CloseAll closes every registered backend and empties the registry.
func (r *Registry) CloseAll() error {
	r.mux.Lock()
	defer r.mux.Unlock()

	var errs []error
	for instanceID, backend := range r.instances {
		if err := backend.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close instance %q: %w", instanceID, err))
		}
	}
	clear(r.instances)
	return errors.Join(errs...)
}
