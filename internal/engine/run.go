package engine

import (
	"context"
	"fmt"

	"github.com/vk/gridwalk/internal/ctxlog"
	"github.com/vk/gridwalk/internal/graph"
	"github.com/vk/gridwalk/internal/program"
	"github.com/vk/gridwalk/internal/session"
)

// SpawnResult pairs one entry-sequence spawn with its outcome.
type SpawnResult struct {
	Walker string
	Report Report
}

// RunProgram executes a program's top-level entry statements in declaration
// order under the given session. The reserved handle "root" names the
// session's root node. Results of every spawn are returned in order.
func (e *Engine) RunProgram(ctx context.Context, sess *session.Session, prog *program.Program) ([]SpawnResult, error) {
	logger := ctxlog.FromContext(ctx)
	handles := map[string]graph.ID{"root": sess.Root}
	var results []SpawnResult

	for _, stmt := range prog.Entry {
		switch s := stmt.(type) {
		case *program.LetStmt:
			if _, taken := handles[s.Handle]; taken {
				return results, fmt.Errorf("handle %q already bound", s.Handle)
			}
			id, err := e.CreateNode(ctx, sess, s.Archetype, s.Fields)
			if err != nil {
				return results, fmt.Errorf("let %q: %w", s.Handle, err)
			}
			handles[s.Handle] = id
			logger.Debug("created node", "handle", s.Handle, "archetype", s.Archetype, "id", id)

		case *program.ConnectStmt:
			from, ok := handles[s.From]
			if !ok {
				return results, fmt.Errorf("connect: unknown handle %q", s.From)
			}
			to, ok := handles[s.To]
			if !ok {
				return results, fmt.Errorf("connect: unknown handle %q", s.To)
			}
			e.commitMu.RLock()
			_, err := sess.Connect(ctx, from, to, s.Archetype, s.Directed, s.Fields)
			e.commitMu.RUnlock()
			if err != nil {
				return results, fmt.Errorf("connect %s -> %s: %w", s.From, s.To, err)
			}

		case *program.SpawnStmt:
			start, ok := handles[s.Start]
			if !ok {
				return results, fmt.Errorf("spawn: unknown handle %q", s.Start)
			}
			report, err := e.Spawn(ctx, sess, s.Walker, s.Args, start)
			if err != nil {
				return results, fmt.Errorf("spawn %q: %w", s.Walker, err)
			}
			results = append(results, SpawnResult{Walker: s.Walker, Report: report})
		}
	}
	return results, nil
}
