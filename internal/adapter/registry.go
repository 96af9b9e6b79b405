package adapter

import (
	"fmt"
	"sync"

	"github.com/openmediate/gateway/internal/models"
)

// Registry is the adapter discovery mechanism: factories are registered by
// network kind at startup, and live adapter instances are created lazily per
// configured network and cached. A registered factory is the only way a
// network kind becomes servable.
type Registry struct {
	mu        sync.RWMutex
	factories map[models.NetworkKind]Factory
	instances map[int]Adapter // Network ID -> live adapter
	opts      Options
}

// NewRegistry creates an empty registry whose adapters are constructed with
// the given shared options.
func NewRegistry(opts Options) *Registry {
	return &Registry{
		factories: make(map[models.NetworkKind]Factory),
		instances: make(map[int]Adapter),
		opts:      opts,
	}
}

// Register associates a factory with a network kind. Registering the same
// kind twice replaces the factory; cached instances of that kind are kept
// until the next Reset.
func (r *Registry) Register(kind models.NetworkKind, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[kind] = factory
}

// AdapterFor returns the live adapter for a network, constructing it on
// first use. Unknown kinds and failed constructions surface as
// not_initialized mediation errors.
func (r *Registry) AdapterFor(n *models.Network) (Adapter, error) {
	r.mu.RLock()
	if a, ok := r.instances[n.ID]; ok {
		r.mu.RUnlock()
		return a, nil
	}
	factory, ok := r.factories[n.Kind]
	r.mu.RUnlock()

	if !ok {
		return nil, E(CodeNotInitialized, n.Name, fmt.Errorf("no adapter registered for kind %q", n.Kind))
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if a, ok := r.instances[n.ID]; ok {
		return a, nil
	}
	a, err := factory(n, r.opts)
	if err != nil {
		return nil, err
	}
	r.instances[n.ID] = a
	return a, nil
}

// Reset drops all cached adapter instances. Called after a configuration
// reload so adapters pick up changed credentials and endpoints.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.instances = make(map[int]Adapter)
}

// Kinds returns the registered network kinds, for startup logging.
func (r *Registry) Kinds() []models.NetworkKind {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kinds := make([]models.NetworkKind, 0, len(r.factories))
	for k := range r.factories {
		kinds = append(kinds, k)
	}
	return kinds
}
