package walker

import (
	"context"
	"fmt"

	"github.com/zclconf/go-cty/cty"

	"github.com/vk/gridwalk/internal/capability"
	"github.com/vk/gridwalk/internal/filter"
	"github.com/vk/gridwalk/internal/graph"
	"github.com/vk/gridwalk/internal/schema"
	"github.com/vk/gridwalk/internal/session"
)

// Traversal is the view an ability body gets of its walker, its current
// location, and the graph. Every mutation issued through it is recorded for
// rollback should the traversal later abort.
type Traversal struct {
	sched  *Scheduler
	sess   *session.Session
	walker *Walker
	here   graph.ID
	phase  schema.Phase
	params map[string]cty.Value
	undo   *undoLog

	pending []graph.ID
}

// HereID returns the id of the current location.
func (t *Traversal) HereID() graph.ID {
	return t.here
}

// HereNode returns a copy of the current location as a node.
func (t *Traversal) HereNode(ctx context.Context) (graph.Node, error) {
	return t.sess.Store().Node(ctx, t.here)
}

// HereEdge returns a copy of the current location as an edge.
func (t *Traversal) HereEdge(ctx context.Context) (graph.Edge, error) {
	return t.sess.Store().Edge(ctx, t.here)
}

// HereField reads one field of the current location, node or edge.
func (t *Traversal) HereField(ctx context.Context, name string) (cty.Value, error) {
	if n, err := t.sess.Store().Node(ctx, t.here); err == nil {
		if v, ok := n.Fields[name]; ok {
			return v, nil
		}
		return cty.NilVal, fmt.Errorf("node %s has no field %q", t.here, name)
	}
	e, err := t.sess.Store().Edge(ctx, t.here)
	if err != nil {
		return cty.NilVal, err
	}
	if v, ok := e.Fields[name]; ok {
		return v, nil
	}
	return cty.NilVal, fmt.Errorf("edge %s has no field %q", t.here, name)
}

// SetHereField writes one field of the current location.
func (t *Traversal) SetHereField(ctx context.Context, name string, value cty.Value) error {
	return t.SetField(ctx, t.here, name, value)
}

// SetField writes one field of any element, recording the previous state
// for rollback.
func (t *Traversal) SetField(ctx context.Context, id graph.ID, name string, value cty.Value) error {
	store := t.sess.Store()
	if n, err := store.Node(ctx, id); err == nil {
		prev, had := n.Fields[name]
		if err := store.SetNodeField(ctx, id, name, value); err != nil {
			return err
		}
		t.undo.push(func() {
			if had {
				_ = store.SetNodeField(ctx, id, name, prev)
			} else {
				_ = store.DeleteNodeField(ctx, id, name)
			}
		})
		return nil
	}
	e, err := store.Edge(ctx, id)
	if err != nil {
		return err
	}
	prev, had := e.Fields[name]
	if err := store.SetEdgeField(ctx, id, name, value); err != nil {
		return err
	}
	t.undo.push(func() {
		if had {
			_ = store.SetEdgeField(ctx, id, name, prev)
		} else {
			_ = store.DeleteEdgeField(ctx, id, name)
		}
	})
	return nil
}

// WalkerField reads one field of the walker's own memory.
func (t *Traversal) WalkerField(name string) (cty.Value, bool) {
	v, ok := t.walker.Fields[name]
	return v, ok
}

// SetWalkerField writes the walker's own memory. Walker state dies with the
// walker, so no undo is recorded.
func (t *Traversal) SetWalkerField(name string, value cty.Value) {
	t.walker.Fields[name] = value
}

// Param reads a static parameter from the ability's declaration.
func (t *Traversal) Param(name string) (cty.Value, bool) {
	v, ok := t.params[name]
	return v, ok
}

// ParamString reads a string parameter, returning fallback when absent.
func (t *Traversal) ParamString(name, fallback string) string {
	v, ok := t.params[name]
	if !ok || v.IsNull() || v.Type() != cty.String {
		return fallback
	}
	return v.AsString()
}

// Visit appends elements to the back of the walker's queue. The enqueue is
// applied by the scheduler after the ability body returns, in the order
// given.
func (t *Traversal) Visit(ids ...graph.ID) {
	t.pending = append(t.pending, ids...)
}

// Select returns the ids of adjacent nodes reachable from the current
// location over edges matching the expression, in adjacency order. The
// expression's archetype matches the edge type (archetype-or-ancestor);
// its predicates run against the edge's fields.
func (t *Traversal) Select(ctx context.Context, dir graph.Direction, expr filter.Expr) ([]graph.ID, error) {
	store := t.sess.Store()
	table := t.sess.Table()
	edges, err := store.Adjacent(ctx, t.here, dir, func(e *graph.Edge) bool {
		return expr.Matches(e.Archetype, e.Fields, table.Assignable)
	})
	if err != nil {
		return nil, err
	}
	targets := make([]graph.ID, 0, len(edges))
	for _, eid := range edges {
		e, err := store.Edge(ctx, eid)
		if err != nil {
			return nil, err
		}
		targets = append(targets, e.Other(t.here))
	}
	return targets, nil
}

// SelectNodes filters a candidate node set by archetype and property
// predicates.
func (t *Traversal) SelectNodes(ctx context.Context, candidates []graph.ID, expr filter.Expr) ([]graph.ID, error) {
	store := t.sess.Store()
	table := t.sess.Table()
	var out []graph.ID
	for _, id := range candidates {
		n, err := store.Node(ctx, id)
		if err != nil {
			return nil, err
		}
		if expr.Matches(n.Archetype, n.Fields, table.Assignable) {
			out = append(out, id)
		}
	}
	return out, nil
}

// VisitAdjacent selects adjacent nodes per Select and stages them for
// visitation.
func (t *Traversal) VisitAdjacent(ctx context.Context, dir graph.Direction, expr filter.Expr) error {
	ids, err := t.Select(ctx, dir, expr)
	if err != nil {
		return err
	}
	t.Visit(ids...)
	return nil
}

// Assign applies field assignments to every element of the set and returns
// the set unchanged in membership. Idempotent by construction.
func (t *Traversal) Assign(ctx context.Context, set []graph.ID, assignments ...filter.Assignment) ([]graph.ID, error) {
	for _, id := range set {
		for _, a := range assignments {
			if err := t.SetField(ctx, id, a.Field, a.Value); err != nil {
				return nil, err
			}
		}
	}
	return set, nil
}

// Report appends a value to the walker's result accumulator, delivered to
// the spawner when the walker terminates.
func (t *Traversal) Report(v cty.Value) {
	t.walker.report = append(t.walker.report, v)
}

// CreateNode instantiates a node archetype under the session's ownership
// rules.
func (t *Traversal) CreateNode(ctx context.Context, archetype string, args map[string]cty.Value) (graph.ID, error) {
	id, err := t.sess.CreateNode(ctx, archetype, args)
	if err != nil {
		return "", err
	}
	store := t.sess.Store()
	t.undo.push(func() { _ = store.DeleteNode(ctx, id) })
	return id, nil
}

// Connect creates an edge under the session's isolation rules.
func (t *Traversal) Connect(ctx context.Context, a, b graph.ID, archetype string, directed bool, args map[string]cty.Value) (graph.ID, error) {
	id, err := t.sess.Connect(ctx, a, b, archetype, directed, args)
	if err != nil {
		return "", err
	}
	store := t.sess.Store()
	t.undo.push(func() { _ = store.DeleteEdge(ctx, id) })
	return id, nil
}

// DeleteEdge destroys an edge, remembering it for rollback.
func (t *Traversal) DeleteEdge(ctx context.Context, id graph.ID) error {
	store := t.sess.Store()
	e, err := store.Edge(ctx, id)
	if err != nil {
		return err
	}
	if err := store.DeleteEdge(ctx, id); err != nil {
		return err
	}
	t.undo.push(func() { store.RestoreEdge(e) })
	return nil
}

// DeleteNode destroys a node (cascading to incident edges), remembering the
// whole neighborhood for rollback.
func (t *Traversal) DeleteNode(ctx context.Context, id graph.ID) error {
	store := t.sess.Store()
	n, err := store.Node(ctx, id)
	if err != nil {
		return err
	}
	incidentIDs, err := store.Adjacent(ctx, id, graph.Any, nil)
	if err != nil {
		return err
	}
	incident := make([]graph.Edge, 0, len(incidentIDs))
	for _, eid := range incidentIDs {
		e, err := store.Edge(ctx, eid)
		if err != nil {
			return err
		}
		incident = append(incident, e)
	}
	if err := store.DeleteNode(ctx, id); err != nil {
		return err
	}
	t.undo.push(func() { store.RestoreNode(n, incident) })
	return nil
}

// Complete invokes the injected external completion capability. The call
// suspends only this walker's current step.
func (t *Traversal) Complete(ctx context.Context, prompt string) (string, error) {
	if t.sched.completer == nil {
		return "", capability.ErrNotConfigured
	}
	return t.sched.completer.Complete(ctx, prompt)
}

// Session returns the user session this traversal runs under.
func (t *Traversal) Session() *session.Session {
	return t.sess
}
