// Package testutil provides the shared harness for program-level tests:
// fixture programs written to a temp dir, a fully wired app, and captured
// log output.
package testutil

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vk/gridwalk/internal/app"
	"github.com/vk/gridwalk/internal/builtins"
	"github.com/vk/gridwalk/internal/config"
	"github.com/vk/gridwalk/internal/engine"
	"github.com/vk/gridwalk/internal/registry"
)

// SafeBuffer is a thread-safe buffer for capturing log output in tests.
type SafeBuffer struct {
	b  bytes.Buffer
	mu sync.Mutex
}

// Write implements the io.Writer interface for SafeBuffer.
func (b *SafeBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.Write(p)
}

// String implements the fmt.Stringer interface for SafeBuffer.
func (b *SafeBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.String()
}

// Result holds the outcomes of a harness run.
type Result struct {
	App       *app.App
	Results   []engine.SpawnResult
	Err       error
	LogOutput string
}

// Options tweak the harness-assembled config and registry.
type Options struct {
	// Register adds test-specific handlers on top of the builtins.
	Register func(*registry.Registry)
	// Mutate adjusts the config before the app is built.
	Mutate func(*config.Config)
}

// RunProgram writes the given program files into a temp dir, assembles an
// app over the in-memory state store, and runs the program once for the
// "tester" user.
func RunProgram(t *testing.T, files map[string]string, opts Options) *Result {
	t.Helper()

	dir := t.TempDir()
	for name, content := range files {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}

	cfg := &config.Config{
		ProgramPath: dir,
		UserID:      "tester",
		MaxSteps:    1000,
		LogLevel:    "debug",
		LogFormat:   "text",
	}
	if opts.Mutate != nil {
		opts.Mutate(cfg)
	}

	reg := registry.New()
	builtins.Register(reg)
	if opts.Register != nil {
		opts.Register(reg)
	}

	logBuffer := &SafeBuffer{}
	ctx := context.Background()

	a, err := app.New(ctx, logBuffer, cfg, reg)
	if err != nil {
		return &Result{Err: err, LogOutput: logBuffer.String()}
	}
	t.Cleanup(func() { _ = a.Close() })

	results, err := a.Run(ctx)
	return &Result{
		App:       a,
		Results:   results,
		Err:       err,
		LogOutput: logBuffer.String(),
	}
}
