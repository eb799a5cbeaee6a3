// Package dispatch builds the static ability registry: a precomputed table
// from (actor archetype, target archetype, phase) triggers to ordered
// ability bodies. Dispatch at traversal time is a table scan over ancestor
// chains, not virtual-method lookup, and is fully deterministic.
package dispatch

import (
	"fmt"
	"sort"

	"github.com/vk/gridwalk/internal/registry"
	"github.com/vk/gridwalk/internal/schema"
	"github.com/vk/gridwalk/internal/walker"
)

// binding is one declared ability with its resolved body and its global
// declaration sequence number (the dispatch tie-breaker).
type binding struct {
	decl schema.AbilityDecl
	fn   walker.Func
	seq  int
}

// Dispatcher resolves which abilities fire for a (walker, location, phase)
// event. Built once from the archetype table, read-only afterwards.
type Dispatcher struct {
	table    *schema.Table
	bindings []binding
}

// Build links every ability declaration in the table against the handler
// registry. A declaration naming an unregistered handler is a load-time
// error, not a traversal-time one.
func Build(table *schema.Table, reg *registry.Registry) (*Dispatcher, error) {
	d := &Dispatcher{table: table}
	for seq, decl := range table.AllAbilities() {
		fn, ok := reg.Lookup(decl.Handler)
		if !ok {
			return nil, fmt.Errorf("ability %q: handler %q is not registered", decl.Name, decl.Handler)
		}
		d.bindings = append(d.bindings, binding{decl: decl, fn: fn, seq: seq})
	}
	return d, nil
}

// Resolve returns the abilities matching the event, most specific type
// first, then declaration order. An ability matches when its actor type is
// the walker's archetype or an ancestor of it, and its target type is the
// location's archetype or an ancestor of it. Specificity is the combined
// ancestor distance of both matches: exact pairings fire before inherited
// ones.
func (d *Dispatcher) Resolve(actor, target string, phase schema.Phase) []walker.ResolvedAbility {
	type match struct {
		b        binding
		distance int
	}
	var matches []match
	for _, b := range d.bindings {
		if b.decl.Phase != phase {
			continue
		}
		da, ok := d.table.Distance(actor, b.decl.Actor)
		if !ok {
			continue
		}
		dt, ok := d.table.Distance(target, b.decl.Target)
		if !ok {
			continue
		}
		matches = append(matches, match{b: b, distance: da + dt})
	}
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].distance != matches[j].distance {
			return matches[i].distance < matches[j].distance
		}
		return matches[i].b.seq < matches[j].b.seq
	})
	out := make([]walker.ResolvedAbility, len(matches))
	for i, m := range matches {
		out[i] = walker.ResolvedAbility{
			Name:   m.b.decl.Name,
			Params: m.b.decl.Params,
			Fn:     m.b.fn,
		}
	}
	return out
}
