package walker

import (
	"context"

	"github.com/vk/gridwalk/internal/ctxlog"
)

// undoLog accumulates inverse operations for every graph mutation a walker
// makes. On ability failure the log is replayed in reverse, restoring the
// store to the walker's last commit boundary. Mutations by concurrent
// sibling walkers are untouched; only this walker's effects rewind.
type undoLog struct {
	ops []func()
}

func (u *undoLog) push(op func()) {
	u.ops = append(u.ops, op)
}

func (u *undoLog) revert(ctx context.Context) {
	if len(u.ops) > 0 {
		ctxlog.FromContext(ctx).Debug("rolling back walker mutations", "ops", len(u.ops))
	}
	for i := len(u.ops) - 1; i >= 0; i-- {
		u.ops[i]()
	}
	u.ops = nil
}
