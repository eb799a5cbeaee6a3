// Package walker implements the traversal scheduler: the queue-driven state
// machine that moves a walker across the graph, dispatches abilities at each
// location, and interprets the cooperative control verdicts
// (continue/skip/disengage) those abilities return.
package walker

import (
	"context"
	"fmt"

	"github.com/zclconf/go-cty/cty"

	"github.com/vk/gridwalk/internal/graph"
	"github.com/vk/gridwalk/internal/schema"
)

// State is the walker lifecycle state.
type State int

const (
	// StateQueued means the walker has pending locations.
	StateQueued State = iota
	// StateRunning means ability bodies for the current location are
	// executing.
	StateRunning
	// StateTerminated means the queue drained or the walker disengaged.
	StateTerminated
)

// Verdict is the control-flow result an ability body returns to the
// scheduler. Enqueueing is not a verdict: Traversal.Visit stages enqueues
// as a side effect, applied whatever the verdict.
type Verdict int

const (
	// Continue proceeds to the next ability for the current location.
	Continue Verdict = iota
	// Skip abandons the remaining abilities for the current location only.
	Skip
	// Disengage clears the whole queue and terminates the walker
	// immediately; no further abilities of any kind run.
	Disengage
)

// Func is a compiled ability body. It may mutate walker and graph state
// through the Traversal and returns a Verdict plus an error; an error aborts
// the walker's traversal with rollback.
type Func func(ctx context.Context, t *Traversal) (Verdict, error)

// ResolvedAbility is one dispatch-ordered ability ready to invoke.
type ResolvedAbility struct {
	Name   string
	Params map[string]cty.Value
	Fn     Func
}

// Resolver yields the ordered ability list for a (walker archetype, location
// archetype, phase) event. The dispatch package implements it.
type Resolver interface {
	Resolve(actor, target string, phase schema.Phase) []ResolvedAbility
}

// Walker is one mobile computation: its archetype, its instance fields (the
// memory it carries across the traversal), its pending-location queue, and
// its accumulated report.
type Walker struct {
	Archetype string
	Fields    map[string]cty.Value

	state  State
	queue  []graph.ID
	report []cty.Value
	steps  int
}

// New instantiates a walker archetype with defaults plus spawn args.
func New(table *schema.Table, archetype string, args map[string]cty.Value) (*Walker, error) {
	arch, ok := table.Lookup(archetype)
	if !ok || arch.Kind != schema.KindWalker {
		return nil, fmt.Errorf("unknown walker archetype %q", archetype)
	}
	fields, err := table.Instantiate(archetype, args)
	if err != nil {
		return nil, err
	}
	return &Walker{Archetype: archetype, Fields: fields}, nil
}

// State returns the walker's lifecycle state.
func (w *Walker) State() State {
	return w.state
}

// Report returns the values the walker reported so far.
func (w *Walker) Report() []cty.Value {
	return append([]cty.Value(nil), w.report...)
}

// TraversalLimitError reports a walker that exceeded the configured step
// ceiling.
type TraversalLimitError struct {
	Walker string
	Limit  int
}

func (e *TraversalLimitError) Error() string {
	return fmt.Sprintf("walker %q exceeded traversal limit of %d steps", e.Walker, e.Limit)
}

// AbilityError wraps an error raised inside an ability body. It aborts only
// the offending walker.
type AbilityError struct {
	Walker   string
	Ability  string
	Location graph.ID
	Err      error
}

func (e *AbilityError) Error() string {
	return fmt.Sprintf("ability %q of walker %q failed at %s: %v", e.Ability, e.Walker, e.Location, e.Err)
}

func (e *AbilityError) Unwrap() error {
	return e.Err
}
