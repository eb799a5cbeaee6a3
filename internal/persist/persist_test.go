package persist

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"

	"github.com/vk/gridwalk/internal/graph"
)

func TestFieldsCodec(t *testing.T) {
	t.Run("values survive with their types", func(t *testing.T) {
		in := map[string]cty.Value{
			"name":   cty.StringVal("Ada"),
			"age":    cty.NumberIntVal(36),
			"active": cty.True,
		}
		b, err := EncodeFields(in)
		require.NoError(t, err)

		out, err := DecodeFields(b)
		require.NoError(t, err)
		assert.Equal(t, cty.StringVal("Ada"), out["name"])
		assert.Equal(t, cty.True, out["active"])
		assert.True(t, out["age"].RawEquals(cty.NumberIntVal(36)))
	})

	t.Run("empty map round-trips", func(t *testing.T) {
		b, err := EncodeFields(nil)
		require.NoError(t, err)
		out, err := DecodeFields(b)
		require.NoError(t, err)
		assert.Empty(t, out)
	})

	t.Run("nil bytes decode to empty", func(t *testing.T) {
		out, err := DecodeFields(nil)
		require.NoError(t, err)
		assert.Empty(t, out)
	})

	t.Run("garbage yields PersistenceError", func(t *testing.T) {
		_, err := DecodeFields([]byte("{not json"))
		var perr *PersistenceError
		assert.ErrorAs(t, err, &perr)
	})
}

func TestRecordConversion(t *testing.T) {
	node := graph.Node{
		ID:        "n1",
		Archetype: "Person",
		Fields:    map[string]cty.Value{"name": cty.StringVal("Ada")},
		Out:       []graph.ID{"e1"},
		In:        []graph.ID{"e2"},
		Owner:     "root1",
		Shared:    false,
	}
	rec, err := NodeToRecord(node)
	require.NoError(t, err)
	assert.Equal(t, RecordVersion, rec.Version)

	back, err := NodeFromRecord(rec)
	require.NoError(t, err)
	assert.Equal(t, node.ID, back.ID)
	assert.Equal(t, node.Archetype, back.Archetype)
	assert.Equal(t, node.Out, back.Out)
	assert.Equal(t, node.In, back.In)
	assert.Equal(t, node.Owner, back.Owner)
	assert.Equal(t, cty.StringVal("Ada"), back.Fields["name"])

	edge := graph.Edge{
		ID:        "e1",
		Archetype: "Knows",
		Source:    "n1",
		Target:    "n2",
		Directed:  true,
		Fields:    map[string]cty.Value{"since": cty.NumberIntVal(2020)},
	}
	erec, err := EdgeToRecord(edge)
	require.NoError(t, err)
	eback, err := EdgeFromRecord(erec)
	require.NoError(t, err)
	assert.Equal(t, edge.ID, eback.ID)
	assert.Equal(t, edge.Source, eback.Source)
	assert.Equal(t, edge.Target, eback.Target)
	assert.True(t, eback.Directed)
	assert.True(t, eback.Fields["since"].RawEquals(cty.NumberIntVal(2020)))
}
