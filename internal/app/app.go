// Package app wires the engine together for one process: logger, program,
// dispatcher, persistence backend, and optional external capabilities.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/vk/gridwalk/internal/capability"
	"github.com/vk/gridwalk/internal/capability/openai"
	"github.com/vk/gridwalk/internal/config"
	"github.com/vk/gridwalk/internal/ctxlog"
	"github.com/vk/gridwalk/internal/dispatch"
	"github.com/vk/gridwalk/internal/engine"
	"github.com/vk/gridwalk/internal/persist"
	"github.com/vk/gridwalk/internal/persist/memory"
	"github.com/vk/gridwalk/internal/persist/sqlite"
	"github.com/vk/gridwalk/internal/program"
	"github.com/vk/gridwalk/internal/registry"
)

// App is one assembled engine process.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	prog    *program.Program
	eng     *engine.Engine
	storage persist.Store
}

// New loads the program, builds the dispatcher against the provided handler
// registry, opens the persistence backend, and restores stored state.
func New(ctx context.Context, out io.Writer, cfg *config.Config, reg *registry.Registry) (*App, error) {
	logger := newLogger(cfg.LogLevel, cfg.LogFormat, out)
	ctx = ctxlog.WithLogger(ctx, logger)

	prog, err := program.Load(ctx, cfg.ProgramPath)
	if err != nil {
		return nil, fmt.Errorf("loading program: %w", err)
	}
	dispatcher, err := dispatch.Build(prog.Table, reg)
	if err != nil {
		return nil, fmt.Errorf("building dispatcher: %w", err)
	}

	var storage persist.Store
	if cfg.StatePath != "" {
		storage, err = sqlite.Open(cfg.StatePath)
		if err != nil {
			return nil, fmt.Errorf("opening state store: %w", err)
		}
		logger.Info("using sqlite state store", "path", cfg.StatePath)
	} else {
		storage = memory.New()
		logger.Debug("using in-memory state store")
	}

	var completer capability.Completer
	if cfg.OpenAIAPIKey != "" {
		var opts []openai.Option
		if cfg.OpenAIModel != "" {
			opts = append(opts, openai.WithModel(cfg.OpenAIModel))
		}
		completer = openai.New(cfg.OpenAIAPIKey, opts...)
		logger.Info("external completion capability enabled")
	}

	eng := engine.New(prog.Table, dispatcher, storage, completer, engine.Options{
		MaxSteps: cfg.MaxSteps,
		LazyLoad: cfg.LazyLoad,
	})
	if err := eng.Load(ctx); err != nil {
		_ = storage.Close()
		return nil, fmt.Errorf("loading stored state: %w", err)
	}

	return &App{cfg: cfg, logger: logger, prog: prog, eng: eng, storage: storage}, nil
}

// Engine exposes the assembled engine, mainly for tests and embedding.
func (a *App) Engine() *engine.Engine {
	return a.eng
}

// Program exposes the loaded program.
func (a *App) Program() *program.Program {
	return a.prog
}

// Logger exposes the app logger.
func (a *App) Logger() *slog.Logger {
	return a.logger
}

// Close releases the persistence backend.
func (a *App) Close() error {
	return a.storage.Close()
}
