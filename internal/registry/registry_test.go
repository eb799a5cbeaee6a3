package registry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/gridwalk/internal/walker"
)

func noop(ctx context.Context, t *walker.Traversal) (walker.Verdict, error) {
	return walker.Continue, nil
}

func TestRegisterAndLookup(t *testing.T) {
	r := New()
	r.Register("core.noop", noop)

	fn, ok := r.Lookup("core.noop")
	require.True(t, ok)
	assert.NotNil(t, fn)

	_, ok = r.Lookup("missing")
	assert.False(t, ok)
}

func TestRegisterDuplicatePanics(t *testing.T) {
	r := New()
	r.Register("core.noop", noop)
	assert.Panics(t, func() { r.Register("core.noop", noop) })
}

func TestRegisterNilPanics(t *testing.T) {
	r := New()
	assert.Panics(t, func() { r.Register("core.nil", nil) })
}

func TestNamesSorted(t *testing.T) {
	r := New()
	r.Register("zeta", noop)
	r.Register("alpha", noop)
	r.Register("mid", noop)
	assert.Equal(t, []string{"alpha", "mid", "zeta"}, r.Names())
}
