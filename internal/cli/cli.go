// Package cli parses command-line arguments into the runtime configuration.
package cli

import (
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/vk/gridwalk/internal/config"
)

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

// Parse processes command-line arguments on top of an env-derived base
// config. It returns the effective config, a boolean indicating the program
// should exit cleanly (help shown), or an ExitError.
func Parse(args []string, base *config.Config, output io.Writer) (*config.Config, bool, error) {
	flagSet := flag.NewFlagSet("gridwalk", flag.ContinueOnError)
	flagSet.SetOutput(output)

	flagSet.Usage = func() {
		fmt.Fprint(output, `
gridwalk - object-spatial execution engine.

Usage:
  gridwalk [options] [PROGRAM_PATH]

Arguments:
  PROGRAM_PATH
    Path to a single .hcl program file or a directory containing .hcl files.

Options:
`)
		flagSet.PrintDefaults()
	}

	cfg := *base
	programFlag := flagSet.String("program", "", "Path to the program file or directory.")
	stateFlag := flagSet.String("state", cfg.StatePath, "SQLite state file. Empty runs fully in memory.")
	userFlag := flagSet.String("user", cfg.UserID, "User identity for the session.")
	maxStepsFlag := flagSet.Int("max-steps", cfg.MaxSteps, "Per-walker traversal step ceiling.")
	lazyFlag := flagSet.Bool("lazy", cfg.LazyLoad, "Load roots only, expanding the graph on demand.")
	logFormatFlag := flagSet.String("log-format", cfg.LogFormat, "Log output format: 'text' or 'json'.")
	logLevelFlag := flagSet.String("log-level", cfg.LogLevel, "Logging level: 'debug', 'info', 'warn', 'error'.")

	if err := flagSet.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return nil, true, nil
		}
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}

	if *programFlag != "" {
		cfg.ProgramPath = *programFlag
	} else if flagSet.NArg() > 0 {
		cfg.ProgramPath = flagSet.Arg(0)
	}
	cfg.StatePath = *stateFlag
	cfg.UserID = *userFlag
	cfg.MaxSteps = *maxStepsFlag
	cfg.LazyLoad = *lazyFlag
	cfg.LogFormat = strings.ToLower(*logFormatFlag)
	cfg.LogLevel = strings.ToLower(*logLevelFlag)

	if cfg.ProgramPath == "" {
		flagSet.Usage()
		return nil, true, nil
	}
	if err := cfg.Validate(); err != nil {
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}
	return &cfg, false, nil
}
