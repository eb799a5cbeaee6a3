package walker

import (
	"context"

	"github.com/zclconf/go-cty/cty"

	"github.com/vk/gridwalk/internal/capability"
	"github.com/vk/gridwalk/internal/ctxlog"
	"github.com/vk/gridwalk/internal/graph"
	"github.com/vk/gridwalk/internal/schema"
	"github.com/vk/gridwalk/internal/session"
)

// DefaultMaxSteps guards against runaway traversals when the host
// configures no ceiling.
const DefaultMaxSteps = 10_000

// Options tune one scheduler instance.
type Options struct {
	// MaxSteps is the per-walker step ceiling. Zero means DefaultMaxSteps.
	MaxSteps int
}

// Scheduler runs one walker's queue to completion. It is safe to share one
// scheduler across concurrently spawned walkers: all mutable traversal state
// lives on the Walker and Traversal, both confined to the spawning
// goroutine.
type Scheduler struct {
	table     *schema.Table
	abilities Resolver
	completer capability.Completer
	opts      Options
}

// NewScheduler wires a scheduler over the archetype table, the ability
// resolver, and the optional external completer.
func NewScheduler(table *schema.Table, abilities Resolver, completer capability.Completer, opts Options) *Scheduler {
	if opts.MaxSteps <= 0 {
		opts.MaxSteps = DefaultMaxSteps
	}
	return &Scheduler{table: table, abilities: abilities, completer: completer, opts: opts}
}

// Run processes the walker's queue strictly in FIFO order, starting from
// start, until the queue drains, the walker disengages, or an error aborts
// it. On error every graph mutation the walker made is rolled back and the
// error is returned for the spawner; the report is only returned on clean
// termination.
func (s *Scheduler) Run(ctx context.Context, sess *session.Session, w *Walker, start graph.ID) ([]cty.Value, error) {
	logger := ctxlog.FromContext(ctx).With("walker", w.Archetype)
	undo := &undoLog{}

	w.queue = []graph.ID{start}
	w.state = StateQueued

	var last graph.ID
	for len(w.queue) > 0 {
		if err := ctx.Err(); err != nil {
			undo.revert(ctx)
			w.state = StateTerminated
			return nil, err
		}
		w.steps++
		if w.steps > s.opts.MaxSteps {
			undo.revert(ctx)
			w.state = StateTerminated
			return nil, &TraversalLimitError{Walker: w.Archetype, Limit: s.opts.MaxSteps}
		}

		loc := w.queue[0]
		w.queue = w.queue[1:]
		last = loc
		w.state = StateRunning

		verdict, err := s.runPhase(ctx, sess, w, loc, schema.PhaseEntry, undo)
		if err != nil {
			undo.revert(ctx)
			w.state = StateTerminated
			return nil, err
		}
		if verdict == Disengage {
			logger.Debug("walker disengaged", "at", loc)
			w.queue = nil
			w.state = StateTerminated
			return w.Report(), nil
		}
		w.state = StateQueued
	}

	// The queue has permanently emptied: exit abilities fire exactly once,
	// for the archetype of the last-visited location.
	if last != "" {
		if _, err := s.runPhase(ctx, sess, w, last, schema.PhaseExit, undo); err != nil {
			undo.revert(ctx)
			w.state = StateTerminated
			return nil, err
		}
	}
	w.state = StateTerminated
	return w.Report(), nil
}

// runPhase dispatches all matching abilities for (walker, location, phase)
// in resolved order, applying staged visits after each body and stopping on
// Skip or Disengage.
func (s *Scheduler) runPhase(ctx context.Context, sess *session.Session, w *Walker, loc graph.ID, phase schema.Phase, undo *undoLog) (Verdict, error) {
	locArch, err := s.locationArchetype(ctx, sess, loc)
	if err != nil {
		return Continue, err
	}
	logger := ctxlog.FromContext(ctx)
	for _, ab := range s.abilities.Resolve(w.Archetype, locArch, phase) {
		t := &Traversal{
			sched:  s,
			sess:   sess,
			walker: w,
			here:   loc,
			phase:  phase,
			params: ab.Params,
			undo:   undo,
		}
		verdict, err := ab.Fn(ctx, t)
		if err != nil {
			return Continue, &AbilityError{Walker: w.Archetype, Ability: ab.Name, Location: loc, Err: err}
		}
		// Staged visits happened before the verdict; they count even when
		// the body then skips. Exit abilities cannot re-animate a
		// permanently empty queue.
		if len(t.pending) > 0 {
			if phase == schema.PhaseExit {
				logger.Warn("visit ignored in exit ability", "ability", ab.Name)
			} else {
				w.queue = append(w.queue, t.pending...)
			}
		}
		switch verdict {
		case Skip:
			logger.Debug("ability skipped remaining abilities", "ability", ab.Name, "at", loc)
			return Continue, nil
		case Disengage:
			return Disengage, nil
		}
	}
	return Continue, nil
}

// locationArchetype resolves the archetype tag of a node or edge id.
func (s *Scheduler) locationArchetype(ctx context.Context, sess *session.Session, id graph.ID) (string, error) {
	store := sess.Store()
	if n, err := store.Node(ctx, id); err == nil {
		return n.Archetype, nil
	}
	e, err := store.Edge(ctx, id)
	if err != nil {
		return "", err
	}
	return e.Archetype, nil
}
