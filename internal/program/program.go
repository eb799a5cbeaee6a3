// Package program loads the resolved program representation the engine
// consumes: an archetype table (node/edge/walker/object kinds with fields,
// ancestor chains, and ability declarations) plus the ordered top-level
// entry statements. The surface compiler is out of scope; its output is
// expressed as HCL manifests, with ability bodies referenced by registered
// handler name.
package program

import (
	"github.com/vk/gridwalk/internal/schema"
	"github.com/zclconf/go-cty/cty"
)

// Program is one loaded program: the archetype table plus the entry
// sequence.
type Program struct {
	Table *schema.Table
	Entry []Statement
}

// Statement is one top-level entry statement, executed in declaration
// order.
type Statement interface {
	stmt()
}

// LetStmt creates a node and binds it to a program-local handle.
type LetStmt struct {
	Handle    string
	Archetype string
	Fields    map[string]cty.Value
}

// ConnectStmt creates an edge between two handles. The reserved handle
// "root" names the running user's root node.
type ConnectStmt struct {
	From      string
	To        string
	Archetype string
	Directed  bool
	Fields    map[string]cty.Value
}

// SpawnStmt spawns a walker at a handle and blocks until it terminates.
type SpawnStmt struct {
	Walker string
	Start  string
	Args   map[string]cty.Value
}

func (*LetStmt) stmt()     {}
func (*ConnectStmt) stmt() {}
func (*SpawnStmt) stmt()   {}
