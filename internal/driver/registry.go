package driver

import (
	"fmt"
	"sync"

	"github.com/standardbeagle/bake/internal/bakeerr"
	"github.com/standardbeagle/bake/internal/obs"
)

// Registry is the process-wide set of known drivers, keyed by logical
// id ("lang.c", "lang.cpp", ...). Built-in drivers add themselves via
// an init() call to Register (spec §4.4 expansion, SPEC_FULL.md — the
// Go-native analogue of loading a shared object and invoking its
// bakemain symbol).
type Registry struct {
	mu      sync.Mutex
	plugins map[string]Plugin
	results map[string]*RegistrationContext
}

var defaultRegistry = NewRegistry()

// NewRegistry returns an empty registry. Tests construct their own so
// built-in drivers registered process-wide don't leak between them.
func NewRegistry() *Registry {
	return &Registry{
		plugins: make(map[string]Plugin),
		results: make(map[string]*RegistrationContext),
	}
}

// Default returns the process-wide registry built-in drivers self
// register into.
func Default() *Registry { return defaultRegistry }

// Register adds p to the default registry. Built-in drivers call this
// from their package's init().
func Register(p Plugin) { defaultRegistry.Add(p) }

// Add registers p, by id, overwriting any existing driver under the
// same id (re-registration updates in place, matching the node-level
// rule from spec §4.4).
func (r *Registry) Add(p Plugin) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.plugins[p.ID()] = p
	delete(r.results, p.ID())
}

// Lookup returns the driver registered under id, if any.
func (r *Registry) Lookup(id string) (Plugin, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.plugins[id]
	return p, ok
}

// Load runs (or returns the memoized result of) a driver's Register
// callback, yielding its rule-graph, ignore list, and artefact/link
// callbacks plus the Plugin value itself for lifecycle dispatch.
func (r *Registry) Load(id string) (*RegistrationContext, Plugin, error) {
	reg, err := r.register(id)
	if err != nil {
		return nil, nil, err
	}
	r.mu.Lock()
	p := r.plugins[id]
	r.mu.Unlock()
	return reg, p, nil
}

// register runs Plugin.Register exactly once per driver id, memoizing
// the resulting RegistrationContext so Import (driver composition) and
// repeated Load calls see a stable, already-built graph.
func (r *Registry) register(id string) (*RegistrationContext, error) {
	r.mu.Lock()
	if reg, ok := r.results[id]; ok {
		r.mu.Unlock()
		return reg, nil
	}
	p, ok := r.plugins[id]
	r.mu.Unlock()
	if !ok {
		return nil, bakeerr.Wrap(bakeerr.KindDriverRegistration, "load", "",
			fmt.Errorf("no driver registered for id %q", id))
	}

	obs.Driver("registering driver %s", id)
	reg := newRegistrationContext(r)
	if err := p.Register(reg); err != nil {
		if _, ok := err.(*bakeerr.Error); ok {
			return nil, err
		}
		return nil, bakeerr.Wrap(bakeerr.KindDriverRegistration, "register", id, err)
	}

	r.mu.Lock()
	r.results[id] = reg
	r.mu.Unlock()
	return reg, nil
}
