// Package session keeps one cart engine per shopper session.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/utafrali/storefront/internal/engine"
	"github.com/utafrali/storefront/internal/storage"
)

// Registry lazily creates engines keyed by session ID. Each engine persists
// under storage.SnapshotKey(sessionID), so a session that reappears after a
// restart (or on another instance sharing the store) reloads its cart.
type Registry struct {
	mu      sync.Mutex
	store   storage.Store
	opts    []engine.Option
	engines map[string]*entry
	now     func() time.Time
	onEvict []func(cartKey string)
}

type entry struct {
	engine   *engine.Engine
	lastUsed time.Time
}

// NewRegistry creates a Registry whose engines use store and opts.
func NewRegistry(store storage.Store, opts ...engine.Option) *Registry {
	return &Registry{
		store:   store,
		opts:    opts,
		engines: make(map[string]*entry),
		now:     time.Now,
	}
}

// OnEvict registers fn to run with the storage key of every engine dropped by
// Forget or EvictIdle. Hooks run without the registry lock held.
func (r *Registry) OnEvict(fn func(cartKey string)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onEvict = append(r.onEvict, fn)
}

// Get returns the engine for sessionID, loading it from the store on first
// use.
func (r *Registry) Get(ctx context.Context, sessionID string) *engine.Engine {
	r.mu.Lock()
	defer r.mu.Unlock()

	if en, ok := r.engines[sessionID]; ok {
		en.lastUsed = r.now()
		return en.engine
	}
	e := engine.New(ctx, r.store, storage.SnapshotKey(sessionID), r.opts...)
	r.engines[sessionID] = &entry{engine: e, lastUsed: r.now()}
	return e
}

// Forget drops the in-memory engine for sessionID. The persisted snapshot
// stays, so a later Get reloads it.
func (r *Registry) Forget(sessionID string) {
	r.mu.Lock()
	en, ok := r.engines[sessionID]
	delete(r.engines, sessionID)
	hooks := r.onEvict
	r.mu.Unlock()

	if ok {
		runHooks(hooks, []string{en.engine.Key()})
	}
}

// Len returns the number of live engines.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.engines)
}

// EvictIdle drops engines not requested for longer than idle and returns how
// many were dropped. Their snapshots stay in the store.
func (r *Registry) EvictIdle(idle time.Duration) int {
	r.mu.Lock()
	cutoff := r.now().Add(-idle)
	var keys []string
	for id, en := range r.engines {
		if en.lastUsed.Before(cutoff) {
			delete(r.engines, id)
			keys = append(keys, en.engine.Key())
		}
	}
	hooks := r.onEvict
	r.mu.Unlock()

	runHooks(hooks, keys)
	return len(keys)
}

func runHooks(hooks []func(string), keys []string) {
	for _, key := range keys {
		for _, fn := range hooks {
			fn(key)
		}
	}
}
