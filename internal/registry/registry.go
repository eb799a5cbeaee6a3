// Package registry holds the compiled ability bodies an embedding
// application registers by name. The archetype table references handlers by
// these names; dispatch resolves them once at build time.
package registry

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/vk/gridwalk/internal/walker"
)

// Registry maps handler names to compiled ability bodies for a single
// application instance.
type Registry struct {
	handlers map[string]walker.Func
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{handlers: make(map[string]walker.Func)}
}

// Register binds a handler name to an ability body. Names are unique;
// registering a duplicate is a programming error and panics.
func (r *Registry) Register(name string, fn walker.Func) {
	if _, exists := r.handlers[name]; exists {
		panic(fmt.Sprintf("ability handler %q already registered", name))
	}
	if fn == nil {
		panic(fmt.Sprintf("ability handler %q is nil", name))
	}
	slog.Debug("Registering ability handler.", "name", name)
	r.handlers[name] = fn
}

// Lookup returns the handler registered under name.
func (r *Registry) Lookup(name string) (walker.Func, bool) {
	fn, ok := r.handlers[name]
	return fn, ok
}

// Names returns all registered handler names, sorted.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
