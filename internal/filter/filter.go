// Package filter evaluates type and property predicates over graph
// elements. Evaluation never raises: a missing field, a type mismatch, or a
// null simply excludes the element from the result.
package filter

import (
	"strings"

	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
)

// Op is a comparison operator in a property predicate.
type Op int

const (
	OpEq Op = iota
	OpNe
	OpLt
	OpLe
	OpGt
	OpGe
)

// ParseOp converts the program-facing operator spelling.
func ParseOp(s string) (Op, bool) {
	switch s {
	case "==", "eq":
		return OpEq, true
	case "!=", "ne":
		return OpNe, true
	case "<", "lt":
		return OpLt, true
	case "<=", "le":
		return OpLe, true
	case ">", "gt":
		return OpGt, true
	case ">=", "ge":
		return OpGe, true
	}
	return OpEq, false
}

// Predicate is one property comparison. Predicates in an Expr are joined by
// AND.
type Predicate struct {
	Field string
	Op    Op
	Value cty.Value
}

// Expr selects elements by archetype and property predicates. An empty
// Archetype matches any type tag.
type Expr struct {
	Archetype  string
	Predicates []Predicate
}

// Matches reports whether an element with the given archetype and fields
// satisfies the expression. assignable decides type-tag compatibility
// (archetype-or-ancestor); a nil assignable means exact tag match.
func (e Expr) Matches(archetype string, fields map[string]cty.Value, assignable func(got, want string) bool) bool {
	if e.Archetype != "" {
		if assignable != nil {
			if !assignable(archetype, e.Archetype) {
				return false
			}
		} else if archetype != e.Archetype {
			return false
		}
	}
	for _, p := range e.Predicates {
		got, ok := fields[p.Field]
		if !ok || got.IsNull() {
			return false
		}
		if !compare(got, p.Value, p.Op) {
			return false
		}
	}
	return true
}

// Assignment is the side-effecting filter form: a field update applied to
// every element of a set.
type Assignment struct {
	Field string
	Value cty.Value
}

// compare evaluates got <op> want, treating anything non-comparable as a
// non-match.
func compare(got, want cty.Value, op Op) bool {
	if !got.IsKnown() || !want.IsKnown() {
		return false
	}
	converted, err := convert.Convert(want, got.Type())
	if err != nil {
		// Incomparable types: equality is trivially false, inequality true.
		return op == OpNe
	}
	want = converted
	switch op {
	case OpEq:
		return got.Equals(want).True()
	case OpNe:
		return got.Equals(want).False()
	}
	ord, ok := order(got, want)
	if !ok {
		return false
	}
	switch op {
	case OpLt:
		return ord < 0
	case OpLe:
		return ord <= 0
	case OpGt:
		return ord > 0
	case OpGe:
		return ord >= 0
	}
	return false
}

// order returns -1/0/1 for values with a defined ordering (numbers and
// strings), and ok=false otherwise.
func order(a, b cty.Value) (int, bool) {
	switch {
	case a.Type() == cty.Number && b.Type() == cty.Number:
		return a.AsBigFloat().Cmp(b.AsBigFloat()), true
	case a.Type() == cty.String && b.Type() == cty.String:
		return strings.Compare(a.AsString(), b.AsString()), true
	}
	return 0, false
}
