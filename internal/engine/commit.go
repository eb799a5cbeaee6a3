package engine

import (
	"context"
	"fmt"

	"github.com/vk/gridwalk/internal/ctxlog"
	"github.com/vk/gridwalk/internal/graph"
	"github.com/vk/gridwalk/internal/persist"
)

// Save commits all state reachable from any root: mark phase walks the
// graph from every root (reading through to storage for elements not
// faulted into memory), the backend's replace-all Save is the sweep phase,
// and in-memory garbage is pruned afterwards. On failure the in-memory
// state rewinds to the last committed snapshot and the PersistenceError is
// returned.
func (e *Engine) Save(ctx context.Context) error {
	e.commitMu.Lock()
	defer e.commitMu.Unlock()
	logger := ctxlog.FromContext(ctx)

	snap, markedNodes, markedEdges, err := e.collect(ctx)
	if err != nil {
		e.rollback()
		return err
	}
	if err := e.storage.Save(ctx, snap); err != nil {
		e.rollback()
		if _, ok := err.(*persist.PersistenceError); ok {
			return err
		}
		return &persist.PersistenceError{Op: "save", Err: err}
	}

	// Reachability GC on the live store: anything the mark phase did not
	// see is garbage.
	nodes, edges := e.store.LocalIDs()
	pruned := 0
	for _, id := range nodes {
		if !markedNodes[id] {
			e.store.Remove(id)
			pruned++
		}
	}
	for _, id := range edges {
		if !markedEdges[id] {
			e.store.Remove(id)
			pruned++
		}
	}

	e.setBoundary(e.store.Snapshot(), e.sessions.Roots())
	logger.Info("committed session state", "nodes", len(snap.Nodes), "edges", len(snap.Edges), "pruned", pruned)
	return nil
}

// Load reconstructs in-memory state from storage. Eager mode materializes
// the whole stored graph; lazy mode installs only root nodes and a
// fetch-on-miss resolver, leaving hop expansion to first touch.
func (e *Engine) Load(ctx context.Context) error {
	e.commitMu.Lock()
	defer e.commitMu.Unlock()
	logger := ctxlog.FromContext(ctx)

	roots, err := e.storage.LoadRoots(ctx)
	if err != nil {
		return err
	}
	e.store.Clear()
	for _, r := range roots {
		e.sessions.Bind(r.UserID, graph.ID(r.RootID))
	}

	if e.opts.LazyLoad {
		for _, r := range roots {
			rec, incident, ok, err := e.storage.LoadNode(ctx, r.RootID)
			if err != nil {
				return err
			}
			if !ok {
				return &persist.PersistenceError{Op: "load", Err: fmt.Errorf("root %s of user %s not stored", r.RootID, r.UserID)}
			}
			if err := e.installRecords([]persist.NodeRecord{rec}, incident); err != nil {
				return err
			}
		}
		e.store.SetResolver(&persist.GraphResolver{Store: e.storage})
		logger.Info("loaded graph lazily", "roots", len(roots))
	} else {
		snap, err := e.storage.LoadAll(ctx)
		if err != nil {
			return err
		}
		if err := e.installRecords(snap.Nodes, snap.Edges); err != nil {
			return err
		}
		logger.Info("loaded graph eagerly", "nodes", len(snap.Nodes), "edges", len(snap.Edges), "roots", len(roots))
	}

	e.setBoundary(e.store.Snapshot(), e.sessions.Roots())
	return nil
}

func (e *Engine) installRecords(nodes []persist.NodeRecord, edges []persist.EdgeRecord) error {
	gn := make([]*graph.Node, 0, len(nodes))
	for _, rec := range nodes {
		n, err := persist.NodeFromRecord(rec)
		if err != nil {
			return err
		}
		gn = append(gn, n)
	}
	ge := make([]*graph.Edge, 0, len(edges))
	for _, rec := range edges {
		ed, err := persist.EdgeFromRecord(rec)
		if err != nil {
			return err
		}
		ge = append(ge, ed)
	}
	e.store.Install(gn, ge)
	return nil
}

// collect is the mark phase: BFS from every root over the union of the live
// store and the backing store, producing the snapshot to commit plus the
// mark sets for in-memory pruning.
func (e *Engine) collect(ctx context.Context) (persist.Snapshot, map[graph.ID]bool, map[graph.ID]bool, error) {
	snap := persist.Snapshot{}
	markedNodes := make(map[graph.ID]bool)
	markedEdges := make(map[graph.ID]bool)

	var queue []graph.ID
	for user, root := range e.sessions.Roots() {
		snap.Roots = append(snap.Roots, persist.RootRecord{UserID: user, RootID: string(root)})
		queue = append(queue, root)
	}

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if markedNodes[id] {
			continue
		}
		markedNodes[id] = true

		if e.store.HasLocal(id) {
			n, err := e.store.Node(ctx, id)
			if err != nil {
				return snap, nil, nil, err
			}
			rec, err := persist.NodeToRecord(n)
			if err != nil {
				return snap, nil, nil, err
			}
			snap.Nodes = append(snap.Nodes, rec)
			for _, eid := range append(append([]graph.ID(nil), n.Out...), n.In...) {
				if markedEdges[eid] {
					continue
				}
				ed, err := e.store.Edge(ctx, eid)
				if err != nil {
					return snap, nil, nil, &graph.InvalidReferenceError{Edge: eid, Endpoint: id}
				}
				markedEdges[eid] = true
				erec, err := persist.EdgeToRecord(ed)
				if err != nil {
					return snap, nil, nil, err
				}
				snap.Edges = append(snap.Edges, erec)
				queue = append(queue, ed.Other(id))
			}
			continue
		}

		// Reachable but never faulted in: carry the stored records through
		// unchanged so a lazy session does not have to materialize the
		// whole graph just to commit.
		rec, incident, ok, err := e.storage.LoadNode(ctx, string(id))
		if err != nil {
			return snap, nil, nil, err
		}
		if !ok {
			return snap, nil, nil, &persist.PersistenceError{Op: "mark", Err: &graph.ReferenceError{ID: id}}
		}
		snap.Nodes = append(snap.Nodes, rec)
		for _, er := range incident {
			eid := graph.ID(er.ID)
			if markedEdges[eid] {
				continue
			}
			markedEdges[eid] = true
			snap.Edges = append(snap.Edges, er)
			other := er.Source
			if other == string(id) {
				other = er.Target
			}
			queue = append(queue, graph.ID(other))
		}
	}
	return snap, markedNodes, markedEdges, nil
}

func (e *Engine) rollback() {
	e.boundaryMu.Lock()
	defer e.boundaryMu.Unlock()
	e.store.Restore(e.boundary)
	e.sessions.ReplaceRoots(e.boundaryRoots)
}

func (e *Engine) setBoundary(m *graph.Memento, roots map[string]graph.ID) {
	e.boundaryMu.Lock()
	defer e.boundaryMu.Unlock()
	e.boundary = m
	e.boundaryRoots = roots
}
