// Package persist defines the abstract storage contract for
// reachability-based persistence: versioned node/edge records, per-user
// root bindings, and the transactional Save/Load operations the engine's
// mark-and-sweep commit drives. Backends live in subpackages.
package persist

import (
	"context"
	"fmt"

	"github.com/zclconf/go-cty/cty"
	ctyjson "github.com/zclconf/go-cty/cty/json"
)

// RecordVersion is stamped on every written record to support incremental
// migration of stored graphs.
const RecordVersion = 1

// NodeRecord is the persisted shape of a node. Adjacency is ids, which is
// already the in-memory cross-reference format, so there is no pointer
// swizzling on either side.
type NodeRecord struct {
	ID        string
	Archetype string
	Fields    []byte
	Out       []string
	In        []string
	Owner     string
	Shared    bool
	Version   int
}

// EdgeRecord is the persisted shape of an edge.
type EdgeRecord struct {
	ID        string
	Archetype string
	Source    string
	Target    string
	Directed  bool
	Fields    []byte
	Version   int
}

// RootRecord binds a user identity to its root node.
type RootRecord struct {
	UserID string
	RootID string
}

// Snapshot is the full reachable state written by one commit.
type Snapshot struct {
	Nodes []NodeRecord
	Edges []EdgeRecord
	Roots []RootRecord
}

// PersistenceError reports a serialization or storage failure. It aborts
// the whole session transaction.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence failure during %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// Store is the backend contract. Save replaces the stored graph with the
// snapshot in one transaction: records present are upserted, records absent
// are pruned (the sweep half of reachability GC). Either the whole snapshot
// lands or none of it does.
type Store interface {
	Save(ctx context.Context, snap Snapshot) error
	// LoadAll returns the complete stored graph, for eager loading.
	LoadAll(ctx context.Context) (Snapshot, error)
	// LoadRoots returns only the user/root bindings.
	LoadRoots(ctx context.Context) ([]RootRecord, error)
	// LoadNode returns one node record plus its incident edge records, for
	// lazy hop expansion. ok=false when the node is not stored.
	LoadNode(ctx context.Context, id string) (NodeRecord, []EdgeRecord, bool, error)
	Close() error
}

// EncodeFields serializes a field map. Values are wrapped in a dynamic
// object so the type information round-trips without consulting the
// archetype table at load time.
func EncodeFields(fields map[string]cty.Value) ([]byte, error) {
	obj := cty.EmptyObjectVal
	if len(fields) > 0 {
		obj = cty.ObjectVal(fields)
	}
	b, err := ctyjson.Marshal(obj, cty.DynamicPseudoType)
	if err != nil {
		return nil, &PersistenceError{Op: "encode fields", Err: err}
	}
	return b, nil
}

// DecodeFields deserializes a field map written by EncodeFields.
func DecodeFields(b []byte) (map[string]cty.Value, error) {
	if len(b) == 0 {
		return map[string]cty.Value{}, nil
	}
	v, err := ctyjson.Unmarshal(b, cty.DynamicPseudoType)
	if err != nil {
		return nil, &PersistenceError{Op: "decode fields", Err: err}
	}
	if v.IsNull() || !v.Type().IsObjectType() {
		return map[string]cty.Value{}, nil
	}
	if v.Type().Equals(cty.EmptyObject) {
		return map[string]cty.Value{}, nil
	}
	return v.AsValueMap(), nil
}
