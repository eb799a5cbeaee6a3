package graph

import (
	"github.com/google/uuid"
	"github.com/zclconf/go-cty/cty"
)

// ID is the stable, opaque identifier of a node or edge. IDs are globally
// unique and never reused; all cross-references in the store are IDs, never
// pointers, so cyclic graphs carry no ownership problems and serialization
// can write IDs straight through.
type ID string

// NewID mints a fresh element id.
func NewID() ID {
	return ID(uuid.NewString())
}

// Direction selects which adjacency list of a node to read.
type Direction int

const (
	Out Direction = iota
	In
	Any
)

// Node is a data-holding location in the graph. Adjacency is kept as two
// ordered edge-id lists; insertion order is what gives walkers their
// deterministic visitation order.
type Node struct {
	ID        ID
	Archetype string
	Fields    map[string]cty.Value
	Out       []ID
	In        []ID
	// Owner is the root node anchoring the exclusive subtree this node
	// belongs to. Empty means unowned (not yet attached) or shared.
	Owner ID
	// Shared nodes sit outside every exclusive subtree and may be referenced
	// from any user's graph.
	Shared bool
}

// Edge is a typed, attributed relationship between two nodes. An undirected
// edge appears in both adjacency lists of both endpoints.
type Edge struct {
	ID        ID
	Archetype string
	Source    ID
	Target    ID
	Directed  bool
	Fields    map[string]cty.Value
}

// Other returns the endpoint opposite to from.
func (e *Edge) Other(from ID) ID {
	if e.Source == from {
		return e.Target
	}
	return e.Source
}

func (n *Node) clone() *Node {
	c := *n
	c.Fields = cloneFields(n.Fields)
	c.Out = append([]ID(nil), n.Out...)
	c.In = append([]ID(nil), n.In...)
	return &c
}

func (e *Edge) clone() *Edge {
	c := *e
	c.Fields = cloneFields(e.Fields)
	return &c
}

func cloneFields(fields map[string]cty.Value) map[string]cty.Value {
	out := make(map[string]cty.Value, len(fields))
	for k, v := range fields {
		out[k] = v
	}
	return out
}
