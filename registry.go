package tagpool

import (
	"context"
	"fmt"
	"sync"
)

// DriverFactory builds a BackendDriver from a store's driver-specific
// options. Registered per driver name ("filesystem", "redis", ...) so a
// Registry can lazily construct stores by name alone.
type DriverFactory func(cfg StoreConfig) (BackendDriver, error)

// Registry holds multiple named pools, each backed by a possibly different
// driver, constructed lazily on first use (spec.md §9 "multi-store
// registry").
type Registry struct {
	mu           sync.RWMutex
	namespace    string
	lifetime     func() Config
	storeConfigs map[string]StoreConfig
	drivers      map[string]DriverFactory
	pools        map[string]*PoolImpl
	defaultStore string
}

// NewRegistry creates a Registry seeded with the named store configs.
// defaultStore names the store returned by Store("").
func NewRegistry(defaultStore string, stores map[string]StoreConfig) *Registry {
	configs := make(map[string]StoreConfig, len(stores))
	for name, cfg := range stores {
		configs[name] = cfg
	}
	return &Registry{
		storeConfigs: configs,
		drivers:      make(map[string]DriverFactory),
		pools:        make(map[string]*PoolImpl),
		defaultStore: defaultStore,
	}
}

// RegisterDriver registers a driver factory under name, for use by store
// configs whose Driver field matches it.
func (r *Registry) RegisterDriver(name string, factory DriverFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.drivers[name] = factory
}

// Store returns the pool for name, constructing it on first access. An
// empty name resolves to the registry's default store.
func (r *Registry) Store(name string) (*PoolImpl, error) {
	if name == "" {
		name = r.defaultStore
	}

	r.mu.RLock()
	pool, ok := r.pools[name]
	r.mu.RUnlock()
	if ok {
		return pool, nil
	}

	return r.createStore(name)
}

func (r *Registry) createStore(name string) (*PoolImpl, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if pool, ok := r.pools[name]; ok {
		return pool, nil
	}

	storeConfig, ok := r.storeConfigs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrStoreNotFound, name)
	}

	factory, ok := r.drivers[storeConfig.Driver]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrDriverNotFound, storeConfig.Driver)
	}

	driver, err := factory(storeConfig)
	if err != nil {
		return nil, ErrBackendFatal(storeConfig.Driver, err)
	}

	cfg := Config{
		Namespace:       storeConfig.Namespace,
		DefaultLifetime: storeConfig.DefaultLifetime,
	}
	pool, err := New(driver, cfg)
	if err != nil {
		return nil, err
	}
	r.pools[name] = pool
	return pool, nil
}

// Pools returns a snapshot of every pool constructed so far, keyed by store
// name. Stores never accessed are absent.
func (r *Registry) Pools() map[string]*PoolImpl {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]*PoolImpl, len(r.pools))
	for name, pool := range r.pools {
		out[name] = pool
	}
	return out
}

// Close flushes and tears down every constructed pool.
func (r *Registry) Close(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for name, pool := range r.pools {
		pool.Teardown(ctx)
		delete(r.pools, name)
	}
}
