// Package runner executes external programs on the host with a hard timeout.
//
// Guarantees:
//   - Arguments are passed as a discrete argv, never through a shell
//   - The child runs in its own process group (Setpgid)
//   - On timeout or cancel the whole group is killed and reaped
//   - stdout/stderr are capped to prevent OOM
package runner

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when the executable cannot be located.
	ErrNotFound = errors.New("executable not found")

	// ErrTimeout is returned when the program outlives its timeout.
	ErrTimeout = errors.New("execution timed out")
)

// Runner executes a single external program.
type Runner interface {
	Run(ctx context.Context, req Request) (*Result, error)
}

// Request defines what to run and for how long.
type Request struct {
	// Program is the executable name (resolved via PATH) or path.
	Program string

	// Args are passed to the program as-is.
	Args []string

	// Dir is the working directory. Empty = current directory.
	Dir string

	// Env replaces the inherited environment when non-nil.
	Env []string

	// Timeout overrides the runner default. Zero = use default.
	Timeout time.Duration
}

// Result captures a completed program run. A non-zero ExitCode is a
// result, not an error.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Duration time.Duration
}
