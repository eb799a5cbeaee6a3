// Package engine is the top-level facade of the object-spatial execution
// engine: it owns the live graph store, the session manager, the walker
// scheduler, and the persistence commit loop, and exposes the operations
// callers and services use (Spawn, Connect, RootFor, Save, Load).
package engine

import (
	"context"
	"sync"

	"github.com/zclconf/go-cty/cty"

	"github.com/vk/gridwalk/internal/capability"
	"github.com/vk/gridwalk/internal/ctxlog"
	"github.com/vk/gridwalk/internal/graph"
	"github.com/vk/gridwalk/internal/persist"
	"github.com/vk/gridwalk/internal/schema"
	"github.com/vk/gridwalk/internal/session"
	"github.com/vk/gridwalk/internal/walker"
)

// Options tune one engine instance.
type Options struct {
	// MaxSteps is the per-walker traversal ceiling.
	MaxSteps int
	// LazyLoad makes Load install only roots plus a fetch-on-miss resolver
	// instead of materializing the whole stored graph.
	LazyLoad bool
}

// Report is the value list a walker accumulated for its spawner.
type Report struct {
	Values []cty.Value
}

// Engine wires the component stack together. Spawned walkers run
// concurrently under a read lock; Save and Load take the write side, so a
// commit never observes a half-finished traversal.
type Engine struct {
	store    *graph.Store
	table    *schema.Table
	sessions *session.Manager
	sched    *walker.Scheduler
	storage  persist.Store
	opts     Options

	// commitMu separates traversals (readers) from commit/load (writer).
	commitMu sync.RWMutex
	// boundary is the in-memory state at the last commit, restored when a
	// commit fails. The root bindings rewind with the store: a binding must
	// not survive the rollback of the root node it names.
	boundaryMu    sync.Mutex
	boundary      *graph.Memento
	boundaryRoots map[string]graph.ID
}

// New assembles an engine. storage must not be nil; use the in-memory
// backend for ephemeral runs.
func New(table *schema.Table, abilities walker.Resolver, storage persist.Store, completer capability.Completer, opts Options) *Engine {
	store := graph.NewStore()
	e := &Engine{
		store:    store,
		table:    table,
		sessions: session.NewManager(store, table),
		sched:    walker.NewScheduler(table, abilities, completer, walker.Options{MaxSteps: opts.MaxSteps}),
		storage:  storage,
		opts:     opts,
	}
	e.setBoundary(store.Snapshot(), e.sessions.Roots())
	return e
}

// Store exposes the live graph store.
func (e *Engine) Store() *graph.Store {
	return e.store
}

// Table exposes the archetype table.
func (e *Engine) Table() *schema.Table {
	return e.table
}

// Sessions exposes the root/session manager.
func (e *Engine) Sessions() *session.Manager {
	return e.sessions
}

// RootFor resolves or creates the root node for a user identity.
func (e *Engine) RootFor(ctx context.Context, userID string) (graph.ID, error) {
	e.commitMu.RLock()
	defer e.commitMu.RUnlock()
	return e.sessions.RootFor(ctx, userID)
}

// Session opens a session for the user.
func (e *Engine) Session(ctx context.Context, userID string) (*session.Session, error) {
	e.commitMu.RLock()
	defer e.commitMu.RUnlock()
	return e.sessions.Session(ctx, userID)
}

// Spawn instantiates a walker at start and runs its queue to completion,
// blocking until the traversal terminates. The report is returned on clean
// termination; on failure the walker's mutations have been rolled back and
// the structured error describes the abort. Concurrent spawns are
// independent tasks; callers wanting parallelism spawn from separate
// goroutines.
func (e *Engine) Spawn(ctx context.Context, sess *session.Session, walkerArchetype string, args map[string]cty.Value, start graph.ID) (Report, error) {
	e.commitMu.RLock()
	defer e.commitMu.RUnlock()
	w, err := walker.New(e.table, walkerArchetype, args)
	if err != nil {
		return Report{}, err
	}
	logger := ctxlog.FromContext(ctx)
	logger.Debug("spawning walker", "walker", walkerArchetype, "start", start, "user", sess.UserID)
	values, err := e.sched.Run(ctx, sess, w, start)
	if err != nil {
		logger.Warn("walker aborted", "walker", walkerArchetype, "error", err)
		return Report{}, err
	}
	return Report{Values: values}, nil
}

// CreateNode instantiates a node archetype inside the session.
func (e *Engine) CreateNode(ctx context.Context, sess *session.Session, archetype string, args map[string]cty.Value) (graph.ID, error) {
	e.commitMu.RLock()
	defer e.commitMu.RUnlock()
	return sess.CreateNode(ctx, archetype, args)
}

// Connect creates a directed edge between a and b under isolation rules.
func (e *Engine) Connect(ctx context.Context, sess *session.Session, a, b graph.ID, edgeArchetype string, args map[string]cty.Value) (graph.ID, error) {
	e.commitMu.RLock()
	defer e.commitMu.RUnlock()
	return sess.Connect(ctx, a, b, edgeArchetype, true, args)
}
