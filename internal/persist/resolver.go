package persist

import (
	"context"

	"github.com/vk/gridwalk/internal/graph"
)

// GraphResolver adapts a Store to graph.Resolver, giving the live store
// fetch-on-miss hop expansion. Installing it is what makes lazy loading
// transparent to the scheduler: an adjacency touch on an unloaded node
// faults the node and its incident edges into memory.
type GraphResolver struct {
	Store Store
}

// FetchNode implements graph.Resolver.
func (r *GraphResolver) FetchNode(ctx context.Context, id graph.ID) (*graph.Node, []*graph.Edge, bool, error) {
	rec, incident, ok, err := r.Store.LoadNode(ctx, string(id))
	if err != nil || !ok {
		return nil, nil, ok, err
	}
	n, err := NodeFromRecord(rec)
	if err != nil {
		return nil, nil, false, err
	}
	edges := make([]*graph.Edge, 0, len(incident))
	for _, er := range incident {
		e, err := EdgeFromRecord(er)
		if err != nil {
			return nil, nil, false, err
		}
		edges = append(edges, e)
	}
	return n, edges, true, nil
}

// NodeFromRecord converts a stored record to a live node.
func NodeFromRecord(rec NodeRecord) (*graph.Node, error) {
	fields, err := DecodeFields(rec.Fields)
	if err != nil {
		return nil, err
	}
	n := &graph.Node{
		ID:        graph.ID(rec.ID),
		Archetype: rec.Archetype,
		Fields:    fields,
		Owner:     graph.ID(rec.Owner),
		Shared:    rec.Shared,
	}
	for _, id := range rec.Out {
		n.Out = append(n.Out, graph.ID(id))
	}
	for _, id := range rec.In {
		n.In = append(n.In, graph.ID(id))
	}
	return n, nil
}

// EdgeFromRecord converts a stored record to a live edge.
func EdgeFromRecord(rec EdgeRecord) (*graph.Edge, error) {
	fields, err := DecodeFields(rec.Fields)
	if err != nil {
		return nil, err
	}
	return &graph.Edge{
		ID:        graph.ID(rec.ID),
		Archetype: rec.Archetype,
		Source:    graph.ID(rec.Source),
		Target:    graph.ID(rec.Target),
		Directed:  rec.Directed,
		Fields:    fields,
	}, nil
}

// NodeToRecord converts a live node to its stored shape.
func NodeToRecord(n graph.Node) (NodeRecord, error) {
	fields, err := EncodeFields(n.Fields)
	if err != nil {
		return NodeRecord{}, err
	}
	rec := NodeRecord{
		ID:        string(n.ID),
		Archetype: n.Archetype,
		Fields:    fields,
		Owner:     string(n.Owner),
		Shared:    n.Shared,
		Version:   RecordVersion,
	}
	for _, id := range n.Out {
		rec.Out = append(rec.Out, string(id))
	}
	for _, id := range n.In {
		rec.In = append(rec.In, string(id))
	}
	return rec, nil
}

// EdgeToRecord converts a live edge to its stored shape.
func EdgeToRecord(e graph.Edge) (EdgeRecord, error) {
	fields, err := EncodeFields(e.Fields)
	if err != nil {
		return EdgeRecord{}, err
	}
	return EdgeRecord{
		ID:        string(e.ID),
		Archetype: e.Archetype,
		Source:    string(e.Source),
		Target:    string(e.Target),
		Directed:  e.Directed,
		Fields:    fields,
		Version:   RecordVersion,
	}, nil
}
