// Package capability declares the opaque external capabilities the engine
// exposes to ability bodies. Implementations live in subpackages so the
// engine core carries no provider dependencies.
package capability

import (
	"context"
	"errors"
)

// ErrNotConfigured is returned when an ability invokes a capability the
// host never injected.
var ErrNotConfigured = errors.New("capability not configured")

// Completer is a synchronous text-completion capability. Calls are
// suspension points: they block only the calling walker's current step.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// CompleterFunc adapts a plain function to the Completer interface.
type CompleterFunc func(ctx context.Context, prompt string) (string, error)

// Complete implements Completer.
func (f CompleterFunc) Complete(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}
