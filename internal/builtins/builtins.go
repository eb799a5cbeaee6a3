// Package builtins registers the generic ability handlers that make pure
// HCL programs runnable without custom Go code. Each handler is configured
// through the `params` attribute of its ability declaration.
package builtins

import (
	"context"

	"github.com/zclconf/go-cty/cty"

	"github.com/vk/gridwalk/internal/ctxlog"
	"github.com/vk/gridwalk/internal/filter"
	"github.com/vk/gridwalk/internal/graph"
	"github.com/vk/gridwalk/internal/registry"
	"github.com/vk/gridwalk/internal/walker"
)

// Register installs every builtin handler.
func Register(r *registry.Registry) {
	r.Register("core.log", logHere)
	r.Register("core.report_field", reportField)
	r.Register("core.set_field", setField)
	r.Register("core.visit", visit)
	r.Register("core.complete", complete)
	r.Register("core.disengage", disengage)
}

// logHere logs the current location. Params: message (optional).
func logHere(ctx context.Context, t *walker.Traversal) (walker.Verdict, error) {
	ctxlog.FromContext(ctx).Info(t.ParamString("message", "walker visiting"), "here", t.HereID())
	return walker.Continue, nil
}

// reportField appends the named field of the current location to the
// walker's report. Params: field (required).
func reportField(ctx context.Context, t *walker.Traversal) (walker.Verdict, error) {
	v, err := t.HereField(ctx, t.ParamString("field", ""))
	if err != nil {
		return walker.Continue, err
	}
	t.Report(v)
	return walker.Continue, nil
}

// setField writes a constant to a field of the current location. Params:
// field (required), value (required).
func setField(ctx context.Context, t *walker.Traversal) (walker.Verdict, error) {
	value, ok := t.Param("value")
	if !ok {
		value = cty.NullVal(cty.DynamicPseudoType)
	}
	return walker.Continue, t.SetHereField(ctx, t.ParamString("field", ""), value)
}

// visit enqueues adjacent nodes. Params: edge (edge archetype, empty = any),
// dir ("out", "in", or "any", default "out").
func visit(ctx context.Context, t *walker.Traversal) (walker.Verdict, error) {
	dir := graph.Out
	switch t.ParamString("dir", "out") {
	case "in":
		dir = graph.In
	case "any":
		dir = graph.Any
	}
	expr := filter.Expr{Archetype: t.ParamString("edge", "")}
	return walker.Continue, t.VisitAdjacent(ctx, dir, expr)
}

// complete sends the text in one field of the current location to the
// external completion capability and stores the answer in another. Params:
// prompt_field (required), into (required).
func complete(ctx context.Context, t *walker.Traversal) (walker.Verdict, error) {
	prompt, err := t.HereField(ctx, t.ParamString("prompt_field", ""))
	if err != nil {
		return walker.Continue, err
	}
	text, err := t.Complete(ctx, prompt.AsString())
	if err != nil {
		return walker.Continue, err
	}
	return walker.Continue, t.SetHereField(ctx, t.ParamString("into", ""), cty.StringVal(text))
}

// disengage cancels the walker's remaining traversal immediately.
func disengage(ctx context.Context, t *walker.Traversal) (walker.Verdict, error) {
	return walker.Disengage, nil
}
