package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/gridwalk/internal/persist"
)

func open(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func sampleSnapshot() persist.Snapshot {
	return persist.Snapshot{
		Nodes: []persist.NodeRecord{
			{ID: "n1", Archetype: "Person", Fields: []byte(`{}`), Out: []string{"e1"}, Owner: "n1", Version: 1},
			{ID: "n2", Archetype: "Person", Fields: []byte(`{}`), In: []string{"e1"}, Owner: "n1", Shared: false, Version: 1},
		},
		Edges: []persist.EdgeRecord{
			{ID: "e1", Archetype: "Knows", Source: "n1", Target: "n2", Directed: true, Fields: []byte(`{}`), Version: 1},
		},
		Roots: []persist.RootRecord{{UserID: "alice", RootID: "n1"}},
	}
}

func TestOpenRequiresPath(t *testing.T) {
	_, err := Open("")
	assert.Error(t, err)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := open(t)

	require.NoError(t, s.Save(ctx, sampleSnapshot()))

	snap, err := s.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, snap.Nodes, 2)
	require.Len(t, snap.Edges, 1)
	require.Len(t, snap.Roots, 1)

	byID := map[string]persist.NodeRecord{}
	for _, n := range snap.Nodes {
		byID[n.ID] = n
	}
	assert.Equal(t, []string{"e1"}, byID["n1"].Out)
	assert.Equal(t, []string{"e1"}, byID["n2"].In)
	assert.Equal(t, "n1", byID["n1"].Owner)

	e := snap.Edges[0]
	assert.Equal(t, "n1", e.Source)
	assert.Equal(t, "n2", e.Target)
	assert.True(t, e.Directed)

	assert.Equal(t, "alice", snap.Roots[0].UserID)
}

func TestSaveReplacesStoredGraph(t *testing.T) {
	ctx := context.Background()
	s := open(t)
	require.NoError(t, s.Save(ctx, sampleSnapshot()))

	require.NoError(t, s.Save(ctx, persist.Snapshot{
		Nodes: []persist.NodeRecord{{ID: "n1", Archetype: "Person", Fields: []byte(`{}`), Version: 1}},
		Roots: []persist.RootRecord{{UserID: "alice", RootID: "n1"}},
	}))

	snap, err := s.LoadAll(ctx)
	require.NoError(t, err)
	assert.Len(t, snap.Nodes, 1)
	assert.Empty(t, snap.Edges, "omitted records must be swept")

	_, _, ok, err := s.LoadNode(ctx, "n2")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLoadNodeWithIncidentEdges(t *testing.T) {
	ctx := context.Background()
	s := open(t)
	require.NoError(t, s.Save(ctx, sampleSnapshot()))

	rec, incident, ok, err := s.LoadNode(ctx, "n2")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Person", rec.Archetype)
	require.Len(t, incident, 1)
	assert.Equal(t, "e1", incident[0].ID)

	_, _, ok, err = s.LoadNode(ctx, "ghost")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestReopenSeesCommittedState(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state.db")

	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Save(ctx, sampleSnapshot()))
	require.NoError(t, s.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	defer reopened.Close()

	roots, err := reopened.LoadRoots(ctx)
	require.NoError(t, err)
	require.Len(t, roots, 1)
	assert.Equal(t, "n1", roots[0].RootID)
}
