package app

import (
	"context"
	"fmt"

	"github.com/vk/gridwalk/internal/ctxlog"
	"github.com/vk/gridwalk/internal/engine"
)

// Run executes the program's entry sequence for the configured user and
// commits reachable state. One Run is one session: either every mutation it
// made persists, or the failure left stored state untouched.
func (a *App) Run(ctx context.Context) ([]engine.SpawnResult, error) {
	ctx = ctxlog.WithLogger(ctx, a.logger)

	sess, err := a.eng.Session(ctx, a.cfg.UserID)
	if err != nil {
		return nil, fmt.Errorf("opening session for %q: %w", a.cfg.UserID, err)
	}

	results, err := a.eng.RunProgram(ctx, sess, a.prog)
	if err != nil {
		return results, err
	}

	if err := a.eng.Save(ctx); err != nil {
		return results, fmt.Errorf("committing session: %w", err)
	}

	for _, res := range results {
		a.logger.Info("walker report", "walker", res.Walker, "values", len(res.Report.Values))
	}
	return results, nil
}
