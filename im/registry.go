// Package im provides the IM layer: typed stanza dispatch, extension
// orchestration, roster/presence/privacy operations on top of a raw
// *xmpp.Session.
package im

import (
	"context"
	"fmt"
	"sync"

	"github.com/anchorwire/xmpp/plugin"
)

// Namespaced is implemented by extensions that advertise XML namespaces
// through service discovery. Extensions that don't implement it simply
// contribute nothing to Registry.Namespaces.
type Namespaced interface {
	Namespaces() []string
}

// Registry generalizes plugin.Manager: it resolves extension dependencies
// at Init time (a cycle is a programmer error, rejected there), supports
// unloading a single extension without tearing down the rest, and keeps a
// running union of every loaded extension's advertised namespaces.
type Registry struct {
	mu     sync.RWMutex
	mgr    *plugin.Manager
	loaded map[string]plugin.Plugin
	nsUnion []string
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		mgr:    plugin.NewManager(),
		loaded: make(map[string]plugin.Plugin),
	}
}

// Register adds an extension. It is not constructed (Initialize called)
// until Init runs.
func (r *Registry) Register(p plugin.Plugin) error {
	return r.mgr.Register(p)
}

// Init resolves dependencies and initializes every registered extension in
// dependency order, then computes the initial namespace union.
func (r *Registry) Init(ctx context.Context, params plugin.InitParams) error {
	if err := r.mgr.Initialize(ctx, params); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.mgr.Plugins() {
		r.loaded[p.Name()] = p
	}
	r.recomputeNamespaces()
	return nil
}

// Load returns the singleton extension registered under tag.
func (r *Registry) Load(tag string) (plugin.Plugin, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.loaded[tag]
	return p, ok
}

// Unload closes and removes tag, dropping any namespace it advertised from
// the union.
func (r *Registry) Unload(tag string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.loaded[tag]
	if !ok {
		return fmt.Errorf("im: extension %q is not loaded", tag)
	}
	if err := p.Close(); err != nil {
		return err
	}
	delete(r.loaded, tag)
	r.recomputeNamespaces()
	return nil
}

// Namespaces returns the union of every currently loaded extension's
// advertised namespaces, for disco#info to report.
func (r *Registry) Namespaces() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.nsUnion))
	copy(out, r.nsUnion)
	return out
}

// Close closes every loaded extension in reverse load order.
func (r *Registry) Close() error {
	return r.mgr.Close()
}

func (r *Registry) recomputeNamespaces() {
	seen := make(map[string]struct{})
	var out []string
	for _, p := range r.loaded {
		n, ok := p.(Namespaced)
		if !ok {
			continue
		}
		for _, ns := range n.Namespaces() {
			if _, dup := seen[ns]; dup {
				continue
			}
			seen[ns] = struct{}{}
			out = append(out, ns)
		}
	}
	r.nsUnion = out
}
