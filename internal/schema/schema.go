// Package schema defines the resolved archetype table: the engine-facing
// representation of every node, edge, walker, and object kind a program
// declares, together with field specifications, ancestor chains, and ability
// declarations. The front-end produces it; everything downstream (dispatch,
// instantiation, filtering) only ever consults this table.
package schema

import (
	"fmt"

	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
)

// Kind distinguishes the four declarable archetype kinds.
type Kind int

const (
	KindNode Kind = iota
	KindEdge
	KindWalker
	KindObject
)

// String returns the HCL block keyword for the kind.
func (k Kind) String() string {
	switch k {
	case KindNode:
		return "node"
	case KindEdge:
		return "edge"
	case KindWalker:
		return "walker"
	case KindObject:
		return "object"
	}
	return "unknown"
}

// Phase identifies when an ability fires relative to a walker's presence at
// a location.
type Phase int

const (
	// PhaseEntry abilities fire when the walker arrives at a location.
	PhaseEntry Phase = iota
	// PhaseExit abilities fire once, for the last processed location, when
	// the walker's queue permanently empties.
	PhaseExit
)

// String returns the program-facing name of the phase.
func (p Phase) String() string {
	if p == PhaseExit {
		return "exit"
	}
	return "entry"
}

// ParsePhase converts a program-facing phase name to a Phase.
func ParsePhase(s string) (Phase, error) {
	switch s {
	case "entry":
		return PhaseEntry, nil
	case "exit":
		return PhaseExit, nil
	}
	return PhaseEntry, fmt.Errorf("unknown phase %q (want \"entry\" or \"exit\")", s)
}

// FieldSpec describes one declared field of an archetype.
type FieldSpec struct {
	Name string
	Type cty.Type
	// Default is the value assigned at instantiation when the caller
	// provides none. cty.NilVal means the field starts as a typed null.
	Default cty.Value
}

// AbilityDecl binds a handler to an (actor archetype, target archetype,
// phase) trigger. Actor is always the walker side; Target the location side.
// An ability declared inside a walker block and one declared inside a node
// block both normalize to this shape, which is what makes dispatch
// bidirectional.
type AbilityDecl struct {
	Name    string
	Actor   string
	Target  string
	Phase   Phase
	Handler string
	// Params carries static per-binding configuration from the declaration
	// to the handler.
	Params map[string]cty.Value
}

// Archetype is one resolved entry of the archetype table.
type Archetype struct {
	Name    string
	Kind    Kind
	Extends string
	// Shared marks a node archetype whose instances sit outside any user's
	// exclusive subtree and are exempt from isolation checks.
	Shared    bool
	Fields    []FieldSpec
	Abilities []AbilityDecl
}

// RootArchetype is the reserved per-user anchor node kind. It is present in
// every table and cannot be redeclared.
const RootArchetype = "Root"

// Table is the archetype table. It is built once at load time and read-only
// afterwards, so lookups need no locking.
type Table struct {
	archetypes map[string]*Archetype
	order      []string
}

// NewTable returns a table pre-populated with the reserved Root archetype.
func NewTable() *Table {
	t := &Table{archetypes: make(map[string]*Archetype)}
	t.archetypes[RootArchetype] = &Archetype{Name: RootArchetype, Kind: KindNode}
	t.order = append(t.order, RootArchetype)
	return t
}

// Add registers an archetype. Names are unique across all kinds.
func (t *Table) Add(a *Archetype) error {
	if a.Name == "" {
		return fmt.Errorf("archetype with empty name")
	}
	if _, exists := t.archetypes[a.Name]; exists {
		return fmt.Errorf("archetype %q declared more than once", a.Name)
	}
	t.archetypes[a.Name] = a
	t.order = append(t.order, a.Name)
	return nil
}

// Lookup returns the archetype with the given name.
func (t *Table) Lookup(name string) (*Archetype, bool) {
	a, ok := t.archetypes[name]
	return a, ok
}

// Names returns archetype names in declaration order.
func (t *Table) Names() []string {
	out := make([]string, len(t.order))
	copy(out, t.order)
	return out
}

// Ancestors returns the inheritance chain for name, most derived first,
// starting with name itself.
func (t *Table) Ancestors(name string) []string {
	var chain []string
	for cur := name; cur != ""; {
		a, ok := t.archetypes[cur]
		if !ok {
			break
		}
		chain = append(chain, cur)
		cur = a.Extends
	}
	return chain
}

// Distance returns how many inheritance hops separate name from ancestor.
// Zero means an exact match. The second return is false when ancestor is not
// in name's chain.
func (t *Table) Distance(name, ancestor string) (int, bool) {
	for i, a := range t.Ancestors(name) {
		if a == ancestor {
			return i, true
		}
	}
	return 0, false
}

// Assignable reports whether name is ancestor or derives from it.
func (t *Table) Assignable(name, ancestor string) bool {
	_, ok := t.Distance(name, ancestor)
	return ok
}

// FieldSpecs returns the effective field specifications for name, base
// archetype fields first, derived overrides replacing same-named entries.
func (t *Table) FieldSpecs(name string) []FieldSpec {
	chain := t.Ancestors(name)
	var specs []FieldSpec
	index := make(map[string]int)
	// Walk base-first so derived declarations win.
	for i := len(chain) - 1; i >= 0; i-- {
		a := t.archetypes[chain[i]]
		for _, f := range a.Fields {
			if at, seen := index[f.Name]; seen {
				specs[at] = f
				continue
			}
			index[f.Name] = len(specs)
			specs = append(specs, f)
		}
	}
	return specs
}

// Instantiate builds a field map for a fresh instance of name: declared
// defaults first, then the caller's args converted to the declared types.
// Unknown arg names are rejected so typos surface at spawn/create time.
func (t *Table) Instantiate(name string, args map[string]cty.Value) (map[string]cty.Value, error) {
	if _, ok := t.archetypes[name]; !ok {
		return nil, fmt.Errorf("unknown archetype %q", name)
	}
	specs := t.FieldSpecs(name)
	fields := make(map[string]cty.Value, len(specs))
	types := make(map[string]cty.Type, len(specs))
	for _, f := range specs {
		types[f.Name] = f.Type
		if f.Default != cty.NilVal {
			fields[f.Name] = f.Default
		} else {
			fields[f.Name] = cty.NullVal(f.Type)
		}
	}
	for k, v := range args {
		ty, declared := types[k]
		if !declared {
			return nil, fmt.Errorf("archetype %q has no field %q", name, k)
		}
		converted, err := convert.Convert(v, ty)
		if err != nil {
			return nil, fmt.Errorf("field %q of %q: %w", k, name, err)
		}
		fields[k] = converted
	}
	return fields, nil
}

// AllAbilities returns every ability declaration in the table, in archetype
// declaration order then per-archetype declaration order. The slice index is
// the tie-breaking sequence number for dispatch.
func (t *Table) AllAbilities() []AbilityDecl {
	var out []AbilityDecl
	for _, name := range t.order {
		out = append(out, t.archetypes[name].Abilities...)
	}
	return out
}

// Validate checks referential integrity of the table: extends chains resolve
// without cycles and ability actor/target names exist with sensible kinds.
func (t *Table) Validate() error {
	for _, name := range t.order {
		a := t.archetypes[name]
		if a.Extends != "" {
			parent, ok := t.archetypes[a.Extends]
			if !ok {
				return fmt.Errorf("archetype %q extends unknown %q", name, a.Extends)
			}
			if parent.Kind != a.Kind {
				return fmt.Errorf("archetype %q (%s) cannot extend %q (%s)", name, a.Kind, a.Extends, parent.Kind)
			}
			if err := t.checkChain(name); err != nil {
				return err
			}
		}
		for _, ab := range a.Abilities {
			actor, ok := t.archetypes[ab.Actor]
			if !ok {
				return fmt.Errorf("ability %q of %q: unknown actor archetype %q", ab.Name, name, ab.Actor)
			}
			if actor.Kind != KindWalker {
				return fmt.Errorf("ability %q of %q: actor %q is not a walker", ab.Name, name, ab.Actor)
			}
			target, ok := t.archetypes[ab.Target]
			if !ok {
				return fmt.Errorf("ability %q of %q: unknown target archetype %q", ab.Name, name, ab.Target)
			}
			if target.Kind != KindNode && target.Kind != KindEdge {
				return fmt.Errorf("ability %q of %q: target %q is not a node or edge", ab.Name, name, ab.Target)
			}
			if ab.Handler == "" {
				return fmt.Errorf("ability %q of %q: missing handler", ab.Name, name)
			}
		}
	}
	return nil
}

func (t *Table) checkChain(name string) error {
	seen := make(map[string]bool)
	for cur := name; cur != ""; {
		if seen[cur] {
			return fmt.Errorf("inheritance cycle involving archetype %q", cur)
		}
		seen[cur] = true
		a, ok := t.archetypes[cur]
		if !ok {
			return nil
		}
		cur = a.Extends
	}
	return nil
}
