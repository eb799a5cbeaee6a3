// Package graph implements the authoritative in-memory store of nodes,
// edges, and their adjacency. The store knows nothing about users or
// walkers; isolation and traversal live above it.
//
// Concurrency: one store-wide RWMutex guards every operation. Walker steps
// take it per operation, never across an ability body, so a suspended
// ability (storage fetch, external capability call) blocks only its own
// walker. Finer per-element locking can replace this without changing the
// API.
package graph

import (
	"context"
	"sync"

	"github.com/zclconf/go-cty/cty"
)

// Resolver supplies fetch-on-miss for lazily loaded graphs. Fetched
// elements are installed into the store, so repeated access is memory-speed.
type Resolver interface {
	// FetchNode returns the node with the given id plus its incident edges,
	// or ok=false when the backing store has no such node.
	FetchNode(ctx context.Context, id ID) (node *Node, incident []*Edge, ok bool, err error)
}

// Store is the arena of live graph elements keyed by id.
type Store struct {
	mu       sync.RWMutex
	nodes    map[ID]*Node
	edges    map[ID]*Edge
	resolver Resolver
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		nodes: make(map[ID]*Node),
		edges: make(map[ID]*Edge),
	}
}

// SetResolver installs the fetch-on-miss hook used for lazy loading.
func (s *Store) SetResolver(r Resolver) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resolver = r
}

// CreateNode allocates a node and returns its id.
func (s *Store) CreateNode(archetype string, fields map[string]cty.Value) ID {
	n := &Node{
		ID:        NewID(),
		Archetype: archetype,
		Fields:    cloneFields(fields),
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nodes[n.ID] = n
	return n.ID
}

// CreateEdge allocates an edge between two existing nodes and links it into
// their adjacency lists. A directed edge lands in source.Out and target.In;
// an undirected edge is traversable from both sides and lands in both lists
// of both endpoints.
func (s *Store) CreateEdge(ctx context.Context, archetype string, source, target ID, directed bool, fields map[string]cty.Value) (ID, error) {
	src, err := s.node(ctx, source)
	if err != nil {
		return "", &InvalidReferenceError{Endpoint: source}
	}
	dst, err := s.node(ctx, target)
	if err != nil {
		return "", &InvalidReferenceError{Endpoint: target}
	}
	e := &Edge{
		ID:        NewID(),
		Archetype: archetype,
		Source:    source,
		Target:    target,
		Directed:  directed,
		Fields:    cloneFields(fields),
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.edges[e.ID] = e
	if directed {
		src.Out = append(src.Out, e.ID)
		dst.In = append(dst.In, e.ID)
	} else {
		src.Out = append(src.Out, e.ID)
		src.In = append(src.In, e.ID)
		if dst != src {
			dst.Out = append(dst.Out, e.ID)
			dst.In = append(dst.In, e.ID)
		}
	}
	return e.ID, nil
}

// Node returns a copy of the node with the given id, resolving a miss
// through the lazy-load hook when one is installed. Mutate through store
// methods, never through the copy.
func (s *Store) Node(ctx context.Context, id ID) (Node, error) {
	n, err := s.node(ctx, id)
	if err != nil {
		return Node{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return *n.clone(), nil
}

// Edge returns a copy of the edge with the given id.
func (s *Store) Edge(ctx context.Context, id ID) (Edge, error) {
	e, err := s.edge(ctx, id)
	if err != nil {
		return Edge{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return *e.clone(), nil
}

// IsNode reports whether id names a live (or resolvable) node as opposed to
// an edge.
func (s *Store) IsNode(ctx context.Context, id ID) bool {
	_, err := s.node(ctx, id)
	return err == nil
}

// HasLocal reports whether id is present in memory, without consulting the
// resolver. The persistence mark phase uses it to decide when to read
// adjacency from the backing store instead of faulting everything in.
func (s *Store) HasLocal(id ID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, n := s.nodes[id]
	_, e := s.edges[id]
	return n || e
}

// SetNodeField updates one field of a node.
func (s *Store) SetNodeField(ctx context.Context, id ID, name string, value cty.Value) error {
	n, err := s.node(ctx, id)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	n.Fields[name] = value
	return nil
}

// DeleteNodeField removes one field of a node. Walker rollback uses it to
// undo a write that introduced the field.
func (s *Store) DeleteNodeField(ctx context.Context, id ID, name string) error {
	n, err := s.node(ctx, id)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(n.Fields, name)
	return nil
}

// SetEdgeField updates one field of an edge.
func (s *Store) SetEdgeField(ctx context.Context, id ID, name string, value cty.Value) error {
	e, err := s.edge(ctx, id)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e.Fields[name] = value
	return nil
}

// DeleteEdgeField removes one field of an edge.
func (s *Store) DeleteEdgeField(ctx context.Context, id ID, name string) error {
	e, err := s.edge(ctx, id)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(e.Fields, name)
	return nil
}

// SetOwner stamps the exclusive-subtree owner of a node.
func (s *Store) SetOwner(ctx context.Context, id, owner ID) error {
	n, err := s.node(ctx, id)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	n.Owner = owner
	return nil
}

// MarkShared designates a node as shared, clearing any owner.
func (s *Store) MarkShared(ctx context.Context, id ID) error {
	n, err := s.node(ctx, id)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	n.Shared = true
	n.Owner = ""
	return nil
}

// Adjacent returns the edge ids incident to node in the given direction, in
// adjacency (insertion) order, keeping only edges the match predicate
// accepts. A nil predicate accepts everything. O(degree).
func (s *Store) Adjacent(ctx context.Context, node ID, dir Direction, match func(*Edge) bool) ([]ID, error) {
	n, err := s.node(ctx, node)
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	candidates := make([]ID, 0, len(n.Out)+len(n.In))
	switch dir {
	case Out:
		candidates = append(candidates, n.Out...)
	case In:
		candidates = append(candidates, n.In...)
	case Any:
		seen := make(map[ID]bool, len(n.Out)+len(n.In))
		for _, id := range append(append([]ID(nil), n.Out...), n.In...) {
			if !seen[id] {
				seen[id] = true
				candidates = append(candidates, id)
			}
		}
	}
	s.mu.RUnlock()

	var out []ID
	for _, eid := range candidates {
		e, err := s.edge(ctx, eid)
		if err != nil {
			return nil, &InvalidReferenceError{Edge: eid, Endpoint: node}
		}
		if match == nil || match(e) {
			out = append(out, eid)
		}
	}
	return out, nil
}

// DeleteEdge removes an edge and unlinks it from both endpoints.
func (s *Store) DeleteEdge(ctx context.Context, id ID) error {
	e, err := s.edge(ctx, id)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unlinkEdgeLocked(e)
	delete(s.edges, id)
	return nil
}

// DeleteNode removes a node. Deletion cascades: every incident edge is
// destroyed first, then the node record itself. This is the documented
// policy choice; ability code prunes subgraphs freely without re-deriving
// incident edges.
func (s *Store) DeleteNode(ctx context.Context, id ID) error {
	n, err := s.node(ctx, id)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, eid := range append(append([]ID(nil), n.Out...), n.In...) {
		if e, ok := s.edges[eid]; ok {
			s.unlinkEdgeLocked(e)
			delete(s.edges, eid)
		}
	}
	delete(s.nodes, id)
	return nil
}

// RestoreNode reinserts a previously deleted node and its incident edges.
// Used by walker rollback; the inputs are the copies captured before the
// delete.
func (s *Store) RestoreNode(n Node, incident []Edge) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nodes[n.ID] = n.clone()
	for i := range incident {
		c := incident[i].clone()
		s.edges[c.ID] = c
		// The cascade unlinked this edge from surviving peers; relink them.
		// The restored node's own lists already carry the id.
		for _, endpoint := range []ID{c.Source, c.Target} {
			if endpoint == n.ID {
				continue
			}
			peer, ok := s.nodes[endpoint]
			if !ok {
				continue
			}
			if c.Directed {
				if endpoint == c.Source {
					peer.Out = appendMissing(peer.Out, c.ID)
				} else {
					peer.In = appendMissing(peer.In, c.ID)
				}
			} else {
				peer.Out = appendMissing(peer.Out, c.ID)
				peer.In = appendMissing(peer.In, c.ID)
			}
		}
	}
}

// RestoreEdge reinserts a previously deleted edge and relinks adjacency.
func (s *Store) RestoreEdge(e Edge) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := e.clone()
	s.edges[c.ID] = c
	if src, ok := s.nodes[c.Source]; ok {
		if c.Directed {
			src.Out = appendMissing(src.Out, c.ID)
		} else {
			src.Out = appendMissing(src.Out, c.ID)
			src.In = appendMissing(src.In, c.ID)
		}
	}
	if dst, ok := s.nodes[c.Target]; ok && c.Target != c.Source {
		if c.Directed {
			dst.In = appendMissing(dst.In, c.ID)
		} else {
			dst.Out = appendMissing(dst.Out, c.ID)
			dst.In = appendMissing(dst.In, c.ID)
		}
	}
}

// Remove drops an element from memory without touching adjacency
// bookkeeping of survivors. Only the persistence sweep uses it, after the
// mark phase has proven nothing reachable references the element.
func (s *Store) Remove(id ID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.nodes, id)
	delete(s.edges, id)
}

// Install places fully formed elements into the store, overwriting any
// previous record with the same id. The persistence load path uses it.
func (s *Store) Install(nodes []*Node, edges []*Edge) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, n := range nodes {
		s.nodes[n.ID] = n.clone()
	}
	for _, e := range edges {
		s.edges[e.ID] = e.clone()
	}
}

// Clear drops every element. Load rebuilds from storage afterwards.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nodes = make(map[ID]*Node)
	s.edges = make(map[ID]*Edge)
}

// LocalIDs returns the ids of every in-memory node and edge.
func (s *Store) LocalIDs() (nodes []ID, edges []ID) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for id := range s.nodes {
		nodes = append(nodes, id)
	}
	for id := range s.edges {
		edges = append(edges, id)
	}
	return nodes, edges
}

// Memento is a deep copy of the whole store, taken at commit boundaries.
type Memento struct {
	nodes map[ID]*Node
	edges map[ID]*Edge
}

// Snapshot captures the current state for later Restore.
func (s *Store) Snapshot() *Memento {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m := &Memento{
		nodes: make(map[ID]*Node, len(s.nodes)),
		edges: make(map[ID]*Edge, len(s.edges)),
	}
	for id, n := range s.nodes {
		m.nodes[id] = n.clone()
	}
	for id, e := range s.edges {
		m.edges[id] = e.clone()
	}
	return m
}

// Restore rewinds the store to a snapshot.
func (s *Store) Restore(m *Memento) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nodes = make(map[ID]*Node, len(m.nodes))
	s.edges = make(map[ID]*Edge, len(m.edges))
	for id, n := range m.nodes {
		s.nodes[id] = n.clone()
	}
	for id, e := range m.edges {
		s.edges[id] = e.clone()
	}
}

// node returns the live node pointer, faulting it in through the resolver
// on a miss.
func (s *Store) node(ctx context.Context, id ID) (*Node, error) {
	s.mu.RLock()
	n, ok := s.nodes[id]
	r := s.resolver
	s.mu.RUnlock()
	if ok {
		return n, nil
	}
	if r == nil {
		return nil, &ReferenceError{ID: id}
	}
	fetched, incident, found, err := r.FetchNode(ctx, id)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, &ReferenceError{ID: id}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	// Another goroutine may have resolved the same id meanwhile.
	if n, ok := s.nodes[id]; ok {
		return n, nil
	}
	s.nodes[id] = fetched
	for _, e := range incident {
		if _, exists := s.edges[e.ID]; !exists {
			s.edges[e.ID] = e
		}
	}
	return fetched, nil
}

func (s *Store) edge(ctx context.Context, id ID) (*Edge, error) {
	s.mu.RLock()
	e, ok := s.edges[id]
	s.mu.RUnlock()
	if ok {
		return e, nil
	}
	return nil, &ReferenceError{ID: id}
}

// unlinkEdgeLocked removes the edge id from both endpoints' adjacency lists.
func (s *Store) unlinkEdgeLocked(e *Edge) {
	for _, endpoint := range []ID{e.Source, e.Target} {
		if n, ok := s.nodes[endpoint]; ok {
			n.Out = removeID(n.Out, e.ID)
			n.In = removeID(n.In, e.ID)
		}
	}
}

func appendMissing(list []ID, id ID) []ID {
	for _, v := range list {
		if v == id {
			return list
		}
	}
	return append(list, id)
}

func removeID(list []ID, id ID) []ID {
	out := list[:0]
	for _, v := range list {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}
