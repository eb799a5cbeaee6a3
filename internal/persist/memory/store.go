// Package memory provides an ephemeral, thread-safe, in-memory
// implementation of the persist.Store contract. It backs tests and CLI runs
// that configure no state path; nothing survives the process.
package memory

import (
	"context"
	"sync"

	"github.com/vk/gridwalk/internal/persist"
)

// Store keeps records in maps behind one mutex. Save is atomic by
// construction: the maps are swapped wholesale under the lock.
type Store struct {
	mu    sync.RWMutex
	nodes map[string]persist.NodeRecord
	edges map[string]persist.EdgeRecord
	roots map[string]string
	// incident indexes edge ids by endpoint node id, for LoadNode.
	incident map[string][]string
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		nodes:    make(map[string]persist.NodeRecord),
		edges:    make(map[string]persist.EdgeRecord),
		roots:    make(map[string]string),
		incident: make(map[string][]string),
	}
}

// Save implements persist.Store: replace-all semantics, which is exactly
// the sweep phase of reachability GC.
func (s *Store) Save(ctx context.Context, snap persist.Snapshot) error {
	nodes := make(map[string]persist.NodeRecord, len(snap.Nodes))
	edges := make(map[string]persist.EdgeRecord, len(snap.Edges))
	roots := make(map[string]string, len(snap.Roots))
	incident := make(map[string][]string)
	for _, n := range snap.Nodes {
		nodes[n.ID] = n
	}
	for _, e := range snap.Edges {
		edges[e.ID] = e
		incident[e.Source] = append(incident[e.Source], e.ID)
		if e.Target != e.Source {
			incident[e.Target] = append(incident[e.Target], e.ID)
		}
	}
	for _, r := range snap.Roots {
		roots[r.UserID] = r.RootID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nodes, s.edges, s.roots, s.incident = nodes, edges, roots, incident
	return nil
}

// LoadAll implements persist.Store.
func (s *Store) LoadAll(ctx context.Context) (persist.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := persist.Snapshot{}
	for _, n := range s.nodes {
		snap.Nodes = append(snap.Nodes, n)
	}
	for _, e := range s.edges {
		snap.Edges = append(snap.Edges, e)
	}
	for user, root := range s.roots {
		snap.Roots = append(snap.Roots, persist.RootRecord{UserID: user, RootID: root})
	}
	return snap, nil
}

// LoadRoots implements persist.Store.
func (s *Store) LoadRoots(ctx context.Context) ([]persist.RootRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []persist.RootRecord
	for user, root := range s.roots {
		out = append(out, persist.RootRecord{UserID: user, RootID: root})
	}
	return out, nil
}

// LoadNode implements persist.Store.
func (s *Store) LoadNode(ctx context.Context, id string) (persist.NodeRecord, []persist.EdgeRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.nodes[id]
	if !ok {
		return persist.NodeRecord{}, nil, false, nil
	}
	var incident []persist.EdgeRecord
	for _, eid := range s.incident[id] {
		if e, ok := s.edges[eid]; ok {
			incident = append(incident, e)
		}
	}
	return n, incident, true, nil
}

// Close implements persist.Store.
func (s *Store) Close() error {
	return nil
}

// Len reports stored record counts, for tests.
func (s *Store) Len() (nodes, edges int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.nodes), len(s.edges)
}
