package sandbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jkaninda/mlinzi/internal/runner"
	"github.com/jkaninda/mlinzi/internal/timeutil"
)

// Shell runs argv on the host. A missing executable, a timeout and a
// non-zero exit are all reported in the Result; only cancellation and
// unexpected runner failures are returned as errors.
func (s *Sandbox) Shell(ctx context.Context, argv []string) (*Result, error) {
	if len(argv) == 0 || argv[0] == "" {
		return nil, fmt.Errorf("empty command")
	}

	start := time.Now()
	res, err := s.runner.Run(ctx, runner.Request{
		Program: argv[0],
		Args:    argv[1:],
		Timeout: s.shellTimeout,
	})
	result := &Result{
		Input:   strings.Join(argv, " "),
		Elapsed: time.Since(start),
	}

	switch {
	case errors.Is(err, runner.ErrNotFound):
		result.Body = fmt.Sprintf("⚠️ Error executing command:\n```%s```\n\n", err)
		return result, nil
	case errors.Is(err, runner.ErrTimeout):
		s.logger.Warn("shell snippet timed out",
			slog.String("program", argv[0]),
			slog.Duration("timeout", s.shellTimeout),
		)
		result.Body = fmt.Sprintf("🕑 Snippet failed to finish within %s.\n\n", timeutil.SpellTimeout(s.shellTimeout))
		return result, nil
	case err != nil:
		return nil, fmt.Errorf("running %s: %w", argv[0], err)
	}

	stdout := res.Stdout
	if stdout != "" && !strings.HasSuffix(stdout, "\n") {
		stdout += "\n"
	}
	result.Body = codeBlock(stdout) + ExitNote(res.ExitCode) + "\n"
	return result, nil
}

// ExitNote flags a non-zero exit code; it is empty for zero.
func ExitNote(code int) string {
	if code == 0 {
		return ""
	}
	return fmt.Sprintf("⚠️ Return code: %d", code)
}
