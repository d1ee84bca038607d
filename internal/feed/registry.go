package feed

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"crypto_feed/internal/domain"
)

// Constructor builds a feed from options.
type Constructor func(opts Options) (Feed, error)

// Registry maps feed names ("Bitget", "HitBTC") to constructors.
type Registry struct {
	mu    sync.RWMutex
	ctors map[string]Constructor
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{ctors: make(map[string]Constructor)}
}

// Register adds a constructor. Registering a name twice replaces the previous one.
func (r *Registry) Register(name string, ctor Constructor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ctors[name] = ctor
}

// New builds the feed registered under name.
func (r *Registry) New(name string, opts Options) (Feed, error) {
	r.mu.RLock()
	ctor, ok := r.ctors[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%q (registered: %s): %w", name, strings.Join(r.Names(), ", "), domain.ErrUnknownExchange)
	}
	return ctor(opts)
}

// Names lists registered names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.ctors))
	for n := range r.ctors {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
