// Package session maps user identities to dedicated root nodes and enforces
// cross-user isolation at edge-creation time. All per-user state travels in
// an explicit Session value; there is no package-level current user.
package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/zclconf/go-cty/cty"

	"github.com/vk/gridwalk/internal/ctxlog"
	"github.com/vk/gridwalk/internal/graph"
	"github.com/vk/gridwalk/internal/schema"
)

// IsolationError reports an attempt to connect two nodes that belong to
// different users' exclusive subtrees.
type IsolationError struct {
	A, B           graph.ID
	OwnerA, OwnerB graph.ID
}

func (e *IsolationError) Error() string {
	return fmt.Sprintf("cannot connect %s (owned by root %s) to %s (owned by root %s): cross-user isolation", e.A, e.OwnerA, e.B, e.OwnerB)
}

// Manager owns the user-to-root binding table.
type Manager struct {
	store *graph.Store
	table *schema.Table

	mu    sync.Mutex
	roots map[string]graph.ID
}

// NewManager returns a manager over the given store and archetype table.
func NewManager(store *graph.Store, table *schema.Table) *Manager {
	return &Manager{
		store: store,
		table: table,
		roots: make(map[string]graph.ID),
	}
}

// RootFor resolves or creates the root node for a user identity. Idempotent
// and atomic: concurrent first calls for the same user yield one root.
func (m *Manager) RootFor(ctx context.Context, userID string) (graph.ID, error) {
	if userID == "" {
		return "", fmt.Errorf("empty user id")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if id, ok := m.roots[userID]; ok {
		return id, nil
	}
	fields, err := m.table.Instantiate(schema.RootArchetype, nil)
	if err != nil {
		return "", err
	}
	id := m.store.CreateNode(schema.RootArchetype, fields)
	// A root anchors its own exclusive subtree.
	if err := m.store.SetOwner(ctx, id, id); err != nil {
		return "", err
	}
	m.roots[userID] = id
	ctxlog.FromContext(ctx).Info("created root for user", "user", userID, "root", id)
	return id, nil
}

// Bind installs a user-to-root mapping recovered from storage.
func (m *Manager) Bind(userID string, rootID graph.ID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.roots[userID] = rootID
}

// Roots returns a copy of the binding table.
func (m *Manager) Roots() map[string]graph.ID {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]graph.ID, len(m.roots))
	for k, v := range m.roots {
		out[k] = v
	}
	return out
}

// ReplaceRoots swaps the binding table wholesale. The engine uses it to
// rewind bindings to a commit boundary together with the graph store; a
// binding must never outlive the root node it points at.
func (m *Manager) ReplaceRoots(roots map[string]graph.ID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.roots = make(map[string]graph.ID, len(roots))
	for k, v := range roots {
		m.roots[k] = v
	}
}

// Session is one user's view of the graph: every create/connect issued
// through it carries the user's root for ownership stamping and isolation
// checks.
type Session struct {
	UserID string
	Root   graph.ID

	mgr   *Manager
	store *graph.Store
	table *schema.Table
}

// Session opens a session for the user, creating the root on first use.
func (m *Manager) Session(ctx context.Context, userID string) (*Session, error) {
	root, err := m.RootFor(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &Session{
		UserID: userID,
		Root:   root,
		mgr:    m,
		store:  m.store,
		table:  m.table,
	}, nil
}

// CreateNode instantiates a node archetype inside this session. Shared
// archetypes produce shared nodes; everything else is stamped with the
// session's root as owner.
func (s *Session) CreateNode(ctx context.Context, archetype string, args map[string]cty.Value) (graph.ID, error) {
	arch, ok := s.table.Lookup(archetype)
	if !ok || arch.Kind != schema.KindNode {
		return "", fmt.Errorf("unknown node archetype %q", archetype)
	}
	fields, err := s.table.Instantiate(archetype, args)
	if err != nil {
		return "", err
	}
	id := s.store.CreateNode(archetype, fields)
	if arch.Shared {
		if err := s.store.MarkShared(ctx, id); err != nil {
			return "", err
		}
	} else if err := s.store.SetOwner(ctx, id, s.Root); err != nil {
		return "", err
	}
	return id, nil
}

// Connect creates an edge between a and b after the isolation check. An
// unowned, non-shared endpoint adopts the other endpoint's owner, and the
// adoption propagates through any unowned component hanging off it.
func (s *Session) Connect(ctx context.Context, a, b graph.ID, archetype string, directed bool, args map[string]cty.Value) (graph.ID, error) {
	arch, ok := s.table.Lookup(archetype)
	if !ok || arch.Kind != schema.KindEdge {
		return "", fmt.Errorf("unknown edge archetype %q", archetype)
	}
	fields, err := s.table.Instantiate(archetype, args)
	if err != nil {
		return "", err
	}
	na, err := s.store.Node(ctx, a)
	if err != nil {
		return "", err
	}
	nb, err := s.store.Node(ctx, b)
	if err != nil {
		return "", err
	}
	if !na.Shared && !nb.Shared {
		switch {
		case na.Owner != "" && nb.Owner != "" && na.Owner != nb.Owner:
			return "", &IsolationError{A: a, B: b, OwnerA: na.Owner, OwnerB: nb.Owner}
		case na.Owner == "" && nb.Owner != "":
			if err := s.adopt(ctx, a, nb.Owner); err != nil {
				return "", err
			}
		case nb.Owner == "" && na.Owner != "":
			if err := s.adopt(ctx, b, na.Owner); err != nil {
				return "", err
			}
		}
	}
	return s.store.CreateEdge(ctx, archetype, a, b, directed, fields)
}

// adopt stamps owner onto start and every unowned, non-shared node reachable
// from it, so later connects see consistent ownership.
func (s *Session) adopt(ctx context.Context, start graph.ID, owner graph.ID) error {
	queue := []graph.ID{start}
	seen := map[graph.ID]bool{start: true}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		n, err := s.store.Node(ctx, id)
		if err != nil {
			return err
		}
		if n.Shared || n.Owner != "" {
			continue
		}
		if err := s.store.SetOwner(ctx, id, owner); err != nil {
			return err
		}
		edges, err := s.store.Adjacent(ctx, id, graph.Any, nil)
		if err != nil {
			return err
		}
		for _, eid := range edges {
			e, err := s.store.Edge(ctx, eid)
			if err != nil {
				return err
			}
			other := e.Other(id)
			if !seen[other] {
				seen[other] = true
				queue = append(queue, other)
			}
		}
	}
	return nil
}

// Store exposes the underlying graph store for read-side operations.
func (s *Session) Store() *graph.Store {
	return s.store
}

// Table exposes the archetype table.
func (s *Session) Table() *schema.Table {
	return s.table
}
