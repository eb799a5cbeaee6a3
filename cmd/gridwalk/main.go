package main

import (
	"context"
	"fmt"
	"os"

	"github.com/vk/gridwalk/internal/app"
	"github.com/vk/gridwalk/internal/builtins"
	"github.com/vk/gridwalk/internal/cli"
	"github.com/vk/gridwalk/internal/config"
	"github.com/vk/gridwalk/internal/registry"
)

func main() {
	os.Exit(run())
}

func run() int {
	base, err := config.FromEnv()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return 2
	}

	cfg, done, err := cli.Parse(os.Args[1:], base, os.Stderr)
	if err != nil {
		if exitErr, ok := err.(*cli.ExitError); ok {
			fmt.Fprintln(os.Stderr, "error:", exitErr.Message)
			return exitErr.Code
		}
		fmt.Fprintln(os.Stderr, "error:", err)
		return 2
	}
	if done {
		return 0
	}

	reg := registry.New()
	builtins.Register(reg)

	ctx := context.Background()
	a, err := app.New(ctx, os.Stderr, cfg, reg)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return 1
	}
	defer a.Close()

	if _, err := a.Run(ctx); err != nil {
		a.Logger().Error("run failed", "error", err)
		return 1
	}
	return 0
}
