package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os/exec"
	"syscall"
	"time"
)

const (
	// maxOutputBytes caps stdout/stderr to prevent OOM from chatty commands.
	maxOutputBytes = 1 << 20 // 1 MB

	defaultTimeout = 2 * time.Minute

	// waitDelay bounds how long Wait blocks on pipes held open by
	// descendants after the group has been killed.
	waitDelay = 2 * time.Second
)

// ProcessRunner runs programs as child OS processes.
type ProcessRunner struct {
	defaultTimeout time.Duration
	logger         *slog.Logger
}

// NewProcessRunner creates a ProcessRunner. A zero timeout selects the
// two-minute default.
func NewProcessRunner(timeout time.Duration, logger *slog.Logger) *ProcessRunner {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &ProcessRunner{defaultTimeout: timeout, logger: logger}
}

// Run executes req and waits for it to exit.
func (r *ProcessRunner) Run(ctx context.Context, req Request) (*Result, error) {
	if req.Program == "" {
		return nil, fmt.Errorf("empty program")
	}

	path, err := exec.LookPath(req.Program)
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, req.Program)
		}
		return nil, fmt.Errorf("resolving %s: %w", req.Program, err)
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = r.defaultTimeout
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, path, req.Args...)
	cmd.Dir = req.Dir
	if req.Env != nil {
		cmd.Env = req.Env
	}

	// The child leads its own process group so that anything it spawns
	// is reachable by a single kill.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		// Negative PID = kill the entire process group.
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
	cmd.WaitDelay = waitDelay

	var stdoutBuf, stderrBuf bytes.Buffer
	cmd.Stdout = &limitedWriter{w: &stdoutBuf, remaining: maxOutputBytes}
	cmd.Stderr = &limitedWriter{w: &stderrBuf, remaining: maxOutputBytes}

	r.logger.Debug("runner executing",
		slog.String("program", path),
		slog.Any("args", req.Args),
		slog.String("dir", req.Dir),
		slog.Duration("timeout", timeout),
	)

	start := time.Now()
	runErr := cmd.Run()
	duration := time.Since(start)

	exitCode := 0
	if runErr != nil {
		// Timeout takes precedence: the kill surfaces as an ExitError.
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			r.logger.Warn("runner execution timed out",
				slog.String("program", path),
				slog.Duration("timeout", timeout),
			)
			return nil, fmt.Errorf("%w after %s", ErrTimeout, timeout)
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		var exitErr *exec.ExitError
		if !errors.As(runErr, &exitErr) {
			return nil, fmt.Errorf("running %s: %w", req.Program, runErr)
		}
		exitCode = exitErr.ExitCode()
	}

	r.logger.Debug("runner execution completed",
		slog.String("program", path),
		slog.Int("exit_code", exitCode),
		slog.Duration("duration", duration),
		slog.Int("stdout_bytes", stdoutBuf.Len()),
		slog.Int("stderr_bytes", stderrBuf.Len()),
	)

	return &Result{
		Stdout:   stdoutBuf.String(),
		Stderr:   stderrBuf.String(),
		ExitCode: exitCode,
		Duration: duration,
	}, nil
}

// limitedWriter wraps a writer and stops writing after a byte limit.
// Excess data is silently discarded.
type limitedWriter struct {
	w         io.Writer
	remaining int
}

func (lw *limitedWriter) Write(p []byte) (int, error) {
	if lw.remaining <= 0 {
		return len(p), nil
	}
	n := len(p)
	if n > lw.remaining {
		p = p[:lw.remaining]
	}
	written, err := lw.w.Write(p)
	lw.remaining -= written
	if err != nil {
		return written, err
	}
	// Report the full length so the child never sees a short write.
	return n, nil
}
