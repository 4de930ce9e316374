// Package registry owns rule destination bindings and keeps them aligned
// with the live, externally mutable list of tab names.
package registry

import (
	"fmt"
	"slices"
	"sync"

	"github.com/hpungsan/stasher/internal/errors"
	"github.com/hpungsan/stasher/internal/stash"
)

// Registry is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	minTabs int

	// live is the cached live tab list; display is IgnoreName followed by
	// one collision-free name per live tab.
	live    []string
	display []string

	bindings map[string]stash.Binding
	order    []string
}

// Option configures a Registry.
type Option func(*Registry)

// WithMinTabs sets the shortest live tab list Reconcile accepts.
func WithMinTabs(n int) Option {
	return func(r *Registry) {
		if n > 0 {
			r.minTabs = n
		}
	}
}

// New creates an empty registry.
func New(opts ...Option) *Registry {
	r := &Registry{
		minTabs:  1,
		display:  []string{stash.IgnoreName},
		bindings: make(map[string]stash.Binding),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Load replaces all state with persisted bindings and the cached tab list.
// Bindings are taken as stored; call Reconcile to re-resolve them.
func (r *Registry) Load(bindings []stash.Binding, cachedLive []string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.bindings = make(map[string]stash.Binding, len(bindings))
	r.order = r.order[:0]
	for _, b := range bindings {
		if _, dup := r.bindings[b.Identity]; !dup {
			r.order = append(r.order, b.Identity)
		}
		r.bindings[b.Identity] = b
	}
	r.live = slices.Clone(cachedLive)
	r.display = displayList(cachedLive)
}

// Register aligns the binding set with a freshly loaded rule set. New
// identities take the given default binding; identities not present in
// defaults are dropped and returned in registration order.
func (r *Registry) Register(defaults []stash.Binding) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	keep := make(map[string]bool, len(defaults))
	for _, b := range defaults {
		keep[b.Identity] = true
	}

	var removed []string
	order := make([]string, 0, len(defaults))
	for _, id := range r.order {
		if keep[id] {
			order = append(order, id)
			continue
		}
		removed = append(removed, id)
		delete(r.bindings, id)
	}
	for _, b := range defaults {
		if _, ok := r.bindings[b.Identity]; ok {
			continue
		}
		r.bindings[b.Identity] = b
		order = append(order, b.Identity)
	}
	r.order = order
	return removed
}

// Reconcile rebuilds the display list from live and re-resolves every
// binding against it. changed reports whether the display list or any
// binding differs from before.
func (r *Registry) Reconcile(live []string) (bool, error) {
	if len(live) < r.minTabs {
		return false, errors.NewInvalidTabNames(len(live), r.minTabs)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	display := displayList(live)
	changed := !slices.Equal(display, r.display)

	for _, id := range r.order {
		old := r.bindings[id]
		b := resolve(old, display)
		if b != old {
			r.bindings[id] = b
			changed = true
		}
	}

	r.display = display
	r.live = slices.Clone(live)
	return changed, nil
}

// Stale reports whether live differs by length or by any position's name
// from the list the registry last reconciled against.
func (r *Registry) Stale(live []string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return !slices.Equal(live, r.live)
}

// Get returns the binding for identity.
func (r *Registry) Get(identity string) (stash.Binding, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.bindings[identity]
	return b, ok
}

// Set binds identity to the tab currently displayed as displayName.
// IgnoreName selects the sentinel.
func (r *Registry) Set(identity, displayName string) (stash.Binding, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.bindings[identity]
	if !ok {
		return stash.Binding{}, errors.NewNotFound("rule", identity)
	}
	p := slices.Index(r.display, displayName)
	if p < 0 {
		return stash.Binding{}, errors.NewNotFound("tab", displayName)
	}
	b.Index = p - 1
	b.Name = displayName
	r.bindings[identity] = b
	return b, nil
}

// DisplayNames returns IgnoreName followed by the resolved tab names.
func (r *Registry) DisplayNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.display)
}

// LiveNames returns the cached live tab list.
func (r *Registry) LiveNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.live)
}

// Bindings returns every binding in registration order.
func (r *Registry) Bindings() []stash.Binding {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]stash.Binding, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.bindings[id])
	}
	return out
}

func displayList(live []string) []string {
	out := make([]string, 0, len(live)+1)
	out = append(out, stash.IgnoreName)
	for i, name := range live {
		if slices.Contains(out, name) {
			name = fmt.Sprintf("%s (%d)", name, i+1)
		}
		out = append(out, name)
	}
	return out
}

// resolve prefers an exact name match, then the old index if it is still in
// range, then the sentinel.
func resolve(b stash.Binding, display []string) stash.Binding {
	if p := slices.Index(display, b.Name); p >= 0 {
		b.Index = p - 1
		b.Name = display[p]
		return b
	}
	if b.Index >= 0 && b.Index+1 < len(display) {
		b.Name = display[b.Index+1]
		return b
	}
	b.Index = stash.IgnoreIndex
	b.Name = stash.IgnoreName
	return b
}
