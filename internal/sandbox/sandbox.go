// Package sandbox runs operator-supplied shell commands and Go snippets on
// the host and renders each run as an In/Out/Time chat report.
//
// Shell commands go through a runner.Runner with a hard timeout. Go
// snippets run in an embedded interpreter (yaegi) whose output is captured
// in memory; snippet failures are reported with a trace reduced to the
// snippet's own frames.
package sandbox

import (
	"log/slog"
	"time"

	"github.com/jkaninda/mlinzi/internal/runner"
)

const defaultShellTimeout = 2 * time.Minute

// Config tunes a Sandbox.
type Config struct {
	// ShellTimeout bounds a shell run. Zero = two minutes.
	ShellTimeout time.Duration
}

// Sandbox executes shell and evaluate requests.
type Sandbox struct {
	runner       runner.Runner
	shellTimeout time.Duration
	logger       *slog.Logger
}

// New creates a Sandbox that runs shell commands through r.
func New(r runner.Runner, cfg Config, logger *slog.Logger) *Sandbox {
	timeout := cfg.ShellTimeout
	if timeout <= 0 {
		timeout = defaultShellTimeout
	}
	return &Sandbox{
		runner:       r,
		shellTimeout: timeout,
		logger:       logger,
	}
}
