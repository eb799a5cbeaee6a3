package program

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"

	"github.com/vk/gridwalk/internal/schema"
)

func writeProgram(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
	return dir
}

const socialProgram = `
node "Person" {
  field "name" {
    type    = string
    default = ""
  }
  field "age" {
    type    = number
    default = 0
  }
}

node "Bulletin" {
  shared = true
}

edge "Knows" {
  field "since" {
    type    = number
    default = 0
  }
}

walker "Greeter" {
  field "greeting" {
    type    = string
    default = "hello"
  }

  ability "greet" {
    with    = "Person"
    handler = "core.log"
    params  = { message = "hi" }
  }

  ability "farewell" {
    with    = "Person"
    phase   = "exit"
    handler = "core.log"
  }
}

let "p1" {
  type   = "Person"
  fields = { name = "Alice" }
}

connect {
  from = "root"
  to   = "p1"
  type = "Knows"
}

spawn {
  walker = "Greeter"
  start  = "p1"
  args   = { greeting = "hey" }
}
`

func TestLoadProgram(t *testing.T) {
	ctx := context.Background()
	dir := writeProgram(t, map[string]string{"main.hcl": socialProgram})

	prog, err := Load(ctx, dir)
	require.NoError(t, err)

	t.Run("archetypes", func(t *testing.T) {
		person, ok := prog.Table.Lookup("Person")
		require.True(t, ok)
		assert.Equal(t, schema.KindNode, person.Kind)
		require.Len(t, person.Fields, 2)
		assert.Equal(t, cty.String, person.Fields[0].Type)

		bulletin, ok := prog.Table.Lookup("Bulletin")
		require.True(t, ok)
		assert.True(t, bulletin.Shared)

		knows, ok := prog.Table.Lookup("Knows")
		require.True(t, ok)
		assert.Equal(t, schema.KindEdge, knows.Kind)
	})

	t.Run("walker abilities normalize to actor and target", func(t *testing.T) {
		greeter, ok := prog.Table.Lookup("Greeter")
		require.True(t, ok)
		require.Len(t, greeter.Abilities, 2)

		greet := greeter.Abilities[0]
		assert.Equal(t, "Greeter", greet.Actor)
		assert.Equal(t, "Person", greet.Target)
		assert.Equal(t, schema.PhaseEntry, greet.Phase)
		assert.Equal(t, "core.log", greet.Handler)
		assert.Equal(t, cty.StringVal("hi"), greet.Params["message"])

		farewell := greeter.Abilities[1]
		assert.Equal(t, schema.PhaseExit, farewell.Phase)
	})

	t.Run("entry statements keep source order", func(t *testing.T) {
		require.Len(t, prog.Entry, 3)

		let, ok := prog.Entry[0].(*LetStmt)
		require.True(t, ok)
		assert.Equal(t, "p1", let.Handle)
		assert.Equal(t, "Person", let.Archetype)
		assert.Equal(t, cty.StringVal("Alice"), let.Fields["name"])

		conn, ok := prog.Entry[1].(*ConnectStmt)
		require.True(t, ok)
		assert.Equal(t, "root", conn.From)
		assert.Equal(t, "p1", conn.To)
		assert.True(t, conn.Directed)

		spawn, ok := prog.Entry[2].(*SpawnStmt)
		require.True(t, ok)
		assert.Equal(t, "Greeter", spawn.Walker)
		assert.Equal(t, "p1", spawn.Start)
		assert.Equal(t, cty.StringVal("hey"), spawn.Args["greeting"])
	})
}

func TestLoadNodeAbility(t *testing.T) {
	ctx := context.Background()
	dir := writeProgram(t, map[string]string{"main.hcl": `
walker "Greeter" {}

node "Person" {
  ability "welcome" {
    with    = "Greeter"
    handler = "core.log"
  }
}
`})

	prog, err := Load(ctx, dir)
	require.NoError(t, err)

	person, ok := prog.Table.Lookup("Person")
	require.True(t, ok)
	require.Len(t, person.Abilities, 1)
	// Declared on the location: `with` names the visiting walker.
	assert.Equal(t, "Greeter", person.Abilities[0].Actor)
	assert.Equal(t, "Person", person.Abilities[0].Target)
}

func TestLoadSingleFile(t *testing.T) {
	ctx := context.Background()
	dir := writeProgram(t, map[string]string{"main.hcl": `node "Person" {}`})

	prog, err := Load(ctx, filepath.Join(dir, "main.hcl"))
	require.NoError(t, err)
	_, ok := prog.Table.Lookup("Person")
	assert.True(t, ok)
}

func TestLoadErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("missing path", func(t *testing.T) {
		_, err := Load(ctx, filepath.Join(t.TempDir(), "nowhere"))
		assert.Error(t, err)
	})

	t.Run("empty directory", func(t *testing.T) {
		_, err := Load(ctx, t.TempDir())
		assert.ErrorContains(t, err, "no .hcl program files")
	})

	t.Run("syntax error", func(t *testing.T) {
		dir := writeProgram(t, map[string]string{"bad.hcl": `node "Person" {`})
		_, err := Load(ctx, dir)
		assert.ErrorContains(t, err, "failed to parse")
	})

	t.Run("unknown field type keyword", func(t *testing.T) {
		dir := writeProgram(t, map[string]string{"bad.hcl": `
node "Person" {
  field "name" {
    type = varchar
  }
}
`})
		_, err := Load(ctx, dir)
		assert.ErrorContains(t, err, "unsupported type keyword")
	})

	t.Run("object archetypes declare no abilities", func(t *testing.T) {
		dir := writeProgram(t, map[string]string{"bad.hcl": `
object "Config" {
  ability "nope" {
    with    = "Config"
    handler = "core.log"
  }
}
`})
		_, err := Load(ctx, dir)
		assert.ErrorContains(t, err, "object archetypes declare no abilities")
	})

	t.Run("invalid table fails validation", func(t *testing.T) {
		dir := writeProgram(t, map[string]string{"bad.hcl": `
node "Person" {
  extends = "Nowhere"
}
`})
		_, err := Load(ctx, dir)
		assert.ErrorContains(t, err, "invalid archetype table")
	})
}
