package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"
)

func TestParseOp(t *testing.T) {
	for spelling, want := range map[string]Op{
		"==": OpEq, "eq": OpEq,
		"!=": OpNe, "ne": OpNe,
		"<": OpLt, "lt": OpLt,
		"<=": OpLe, "le": OpLe,
		">": OpGt, "gt": OpGt,
		">=": OpGe, "ge": OpGe,
	} {
		op, ok := ParseOp(spelling)
		require.True(t, ok, spelling)
		assert.Equal(t, want, op, spelling)
	}

	_, ok := ParseOp("~=")
	assert.False(t, ok)
}

func TestMatchesArchetype(t *testing.T) {
	fields := map[string]cty.Value{"name": cty.StringVal("Ada")}

	t.Run("exact match without assignable", func(t *testing.T) {
		expr := Expr{Archetype: "Person"}
		assert.True(t, expr.Matches("Person", fields, nil))
		assert.False(t, expr.Matches("Robot", fields, nil))
	})

	t.Run("empty archetype matches anything", func(t *testing.T) {
		expr := Expr{}
		assert.True(t, expr.Matches("Whatever", fields, nil))
	})

	t.Run("assignable widens the tag match", func(t *testing.T) {
		expr := Expr{Archetype: "Thing"}
		subtypeOfThing := func(got, want string) bool {
			return want == "Thing" && (got == "Thing" || got == "Person")
		}
		assert.True(t, expr.Matches("Person", fields, subtypeOfThing))
		assert.False(t, expr.Matches("Robot", fields, subtypeOfThing))
	})
}

func TestMatchesPredicates(t *testing.T) {
	fields := map[string]cty.Value{
		"name": cty.StringVal("Ada"),
		"age":  cty.NumberIntVal(36),
		"note": cty.NullVal(cty.String),
	}

	cases := []struct {
		name string
		expr Expr
		want bool
	}{
		{"string equality", Expr{Predicates: []Predicate{{Field: "name", Op: OpEq, Value: cty.StringVal("Ada")}}}, true},
		{"string inequality", Expr{Predicates: []Predicate{{Field: "name", Op: OpNe, Value: cty.StringVal("Bob")}}}, true},
		{"number less-than", Expr{Predicates: []Predicate{{Field: "age", Op: OpLt, Value: cty.NumberIntVal(40)}}}, true},
		{"number greater-equal fails", Expr{Predicates: []Predicate{{Field: "age", Op: OpGe, Value: cty.NumberIntVal(40)}}}, false},
		{"predicates are conjunctive", Expr{Predicates: []Predicate{
			{Field: "name", Op: OpEq, Value: cty.StringVal("Ada")},
			{Field: "age", Op: OpGt, Value: cty.NumberIntVal(100)},
		}}, false},
		{"missing field never matches", Expr{Predicates: []Predicate{{Field: "ghost", Op: OpEq, Value: cty.StringVal("x")}}}, false},
		{"null field never matches", Expr{Predicates: []Predicate{{Field: "note", Op: OpEq, Value: cty.StringVal("x")}}}, false},
		{"string compared against number converts", Expr{Predicates: []Predicate{{Field: "age", Op: OpEq, Value: cty.StringVal("36")}}}, true},
		{"incomparable types equal is false", Expr{Predicates: []Predicate{{Field: "name", Op: OpEq, Value: cty.ListValEmpty(cty.String)}}}, false},
		{"incomparable types not-equal is true", Expr{Predicates: []Predicate{{Field: "name", Op: OpNe, Value: cty.ListValEmpty(cty.String)}}}, true},
		{"strings order lexically", Expr{Predicates: []Predicate{{Field: "name", Op: OpLt, Value: cty.StringVal("Bob")}}}, true},
		{"no ordering across unconvertible types", Expr{Predicates: []Predicate{{Field: "age", Op: OpLt, Value: cty.True}}}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.expr.Matches("Person", fields, nil))
		})
	}
}
