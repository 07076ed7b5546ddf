// Package supervisor controls the lifetime of the bot process: it turns a
// stop request into context cancellation and, once shutdown has finished,
// either lets the process exit or replaces it with a fresh instance of the
// same executable.
package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"
	"syscall"
)

// Control is the process-control surface used during shutdown.
type Control interface {
	// RequestStop begins shutdown and returns without waiting.
	RequestStop()

	// Replace swaps the process image. It diverges on success.
	Replace(path string, argv, env []string) error

	// Terminate exits with code.
	Terminate(code int)
}

// Supervisor implements process control for a single bot process.
type Supervisor struct {
	cancel context.CancelFunc
	manual atomic.Bool
	logger *slog.Logger

	// Indirections for the OS primitives.
	execve     func(path string, argv, env []string) error
	exit       func(code int)
	executable func() (string, error)
	args       func() []string
	environ    func() []string
}

// New creates a Supervisor. cancel must cancel the context the bot's
// main loop runs under.
func New(cancel context.CancelFunc, logger *slog.Logger) *Supervisor {
	return &Supervisor{
		cancel:     cancel,
		logger:     logger,
		execve:     syscall.Exec,
		exit:       os.Exit,
		executable: os.Executable,
		args:       func() []string { return os.Args },
		environ:    os.Environ,
	}
}

// RequestStop begins shutdown. It does not wait for it to complete.
func (s *Supervisor) RequestStop() {
	s.cancel()
}

// MarkManualStop records that the coming stop was requested by an operator.
func (s *Supervisor) MarkManualStop() {
	s.manual.Store(true)
}

// ManualStop reports whether MarkManualStop was called.
func (s *Supervisor) ManualStop() bool {
	return s.manual.Load()
}

// Replace swaps the current process image for path. It only returns on
// failure.
func (s *Supervisor) Replace(path string, argv, env []string) error {
	return s.execve(path, argv, env)
}

// Terminate exits the process with code.
func (s *Supervisor) Terminate(code int) {
	s.exit(code)
}

// Finish is the last step of shutdown. When restart is false it returns
// and the process exits normally. When restart is true, release runs first
// so that the store connection and other owned resources are closed, then
// the process is replaced by the same executable with the original argv
// and environment; Finish does not return in that case.
func (s *Supervisor) Finish(restart bool, release func()) {
	if !restart {
		if s.ManualStop() {
			s.logger.Info("bot stopped by operator")
		} else {
			s.logger.Info("bot stopped")
		}
		return
	}

	if release != nil {
		release()
	}

	path, err := s.executable()
	if err != nil {
		s.logger.Error("resolving executable for restart", slog.String("error", err.Error()))
		s.Terminate(1)
		return
	}

	argv := s.args()
	s.logger.Info("starting new bot instance",
		slog.String("executable", path),
		slog.Any("args", argv),
	)
	if err := s.Replace(path, argv, s.environ()); err != nil {
		s.logger.Error(fmt.Sprintf("re-executing %s failed", path), slog.String("error", err.Error()))
		s.Terminate(1)
	}
}

var _ Control = (*Supervisor)(nil)
