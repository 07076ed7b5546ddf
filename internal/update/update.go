// Package update pulls the bot's own source from git, refreshes its
// dependencies and binary with an isolated Go toolchain when one is
// configured, and hands over to the restart coordinator.
package update

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/jkaninda/mlinzi/internal/gitrepo"
	"github.com/jkaninda/mlinzi/internal/observability"
	"github.com/jkaninda/mlinzi/internal/restart"
	"github.com/jkaninda/mlinzi/internal/runner"
)

const (
	defaultLockFile = "go.sum"
	defaultTarget   = "./cmd/mlinzi"
	buildTimeout    = 10 * time.Minute
)

var (
	// ErrPreconditionFailed means git is missing or no repository was found.
	ErrPreconditionFailed = errors.New("update precondition failed")

	// ErrRemoteNotFound means the named remote does not exist.
	ErrRemoteNotFound = errors.New("update remote not found")

	// ErrNoTrackingRemote means no remote was named and the branch has no
	// upstream.
	ErrNoTrackingRemote = errors.New("branch has no tracking remote")

	// ErrDependencyUpdateFailed means the module download or rebuild failed
	// after a pull.
	ErrDependencyUpdateFailed = errors.New("dependency update failed")
)

// Error is an update failure with the text shown to the operator.
type Error struct {
	Kind error
	Text string
}

func (e *Error) Error() string { return e.Text }
func (e *Error) Unwrap() error { return e.Kind }

// Repository is the git work tree being updated.
type Repository interface {
	CurrentCommit(ctx context.Context) (string, error)
	ResolveRemote(ctx context.Context, name string) (string, error)
	TrackingRemote(ctx context.Context) (string, error)
	ActiveBranch(ctx context.Context) (string, error)
	Pull(ctx context.Context, remote string) error
	Diff(ctx context.Context, oldCommit string) ([]string, error)
	WorkingTreeDir() string
}

// Restarter schedules the post-update restart.
type Restarter interface {
	Restart(ctx context.Context, r restart.Responder, opts restart.Options) error
}

// Config tunes the Updater.
type Config struct {
	// RepoDir is any directory inside the work tree. Empty = the current
	// working directory.
	RepoDir string
	// LockFile is the dependency lock path relative to the repository root.
	LockFile string
	// ToolchainDir is an isolated Go installation (it contains bin/go).
	// Empty = dependencies and rebuilds are left to the operator.
	ToolchainDir string
	// Target is the package built into the running executable.
	Target string
}

// Updater runs the self-update flow.
type Updater struct {
	cfg       Config
	open      func(ctx context.Context) (Repository, error)
	runner    runner.Runner
	restarter Restarter
	metrics   *observability.MetricsCollector
	logger    *slog.Logger

	now        func() time.Time
	executable func() (string, error)
}

// New creates an Updater. metrics may be nil.
func New(cfg Config, r runner.Runner, restarter Restarter, metrics *observability.MetricsCollector, logger *slog.Logger) *Updater {
	if cfg.LockFile == "" {
		cfg.LockFile = defaultLockFile
	}
	if cfg.Target == "" {
		cfg.Target = defaultTarget
	}
	u := &Updater{
		cfg:        cfg,
		runner:     r,
		restarter:  restarter,
		metrics:    metrics,
		logger:     logger,
		now:        time.Now,
		executable: os.Executable,
	}
	u.open = func(ctx context.Context) (Repository, error) {
		dir := cfg.RepoDir
		if dir == "" {
			dir = "."
		}
		return gitrepo.Open(ctx, r, dir, logger)
	}
	return u
}

// Update pulls from remoteName, or from the branch's upstream when empty.
// The returned text is the final reply; it is empty when a restart was
// scheduled. Operator-facing failures are *Error values.
func (u *Updater) Update(ctx context.Context, reply restart.Responder, remoteName string) (string, error) {
	text, outcome, err := u.update(ctx, reply, remoteName)
	if u.metrics != nil {
		u.metrics.UpdatesTotal.WithLabelValues(outcome).Inc()
	}
	if err != nil {
		u.logger.Warn("self-update stopped",
			slog.String("outcome", outcome),
			slog.String("error", err.Error()),
		)
	}
	return text, err
}

func (u *Updater) update(ctx context.Context, reply restart.Responder, remoteName string) (string, string, error) {
	repo, err := u.open(ctx)
	switch {
	case errors.Is(err, gitrepo.ErrGitMissing):
		return "", "precondition_failed", &Error{Kind: ErrPreconditionFailed, Text: "__The__ `git` __command is required for self-updating.__"}
	case err != nil:
		u.logger.Debug("locating repository", slog.String("error", err.Error()))
		return "", "precondition_failed", &Error{Kind: ErrPreconditionFailed, Text: "__Unable to locate Git repository data.__"}
	}

	remote, err := u.resolveRemote(ctx, repo, remoteName)
	if err != nil {
		var uerr *Error
		if errors.As(err, &uerr) && errors.Is(uerr, ErrRemoteNotFound) {
			return "", "remote_not_found", err
		}
		if errors.As(err, &uerr) && errors.Is(uerr, ErrNoTrackingRemote) {
			return "", "no_tracking_remote", err
		}
		return "", "error", err
	}

	startedAt := u.now()
	oldCommit, err := repo.CurrentCommit(ctx)
	if err != nil {
		return "", "error", fmt.Errorf("reading current commit: %w", err)
	}

	if _, err := reply.Respond(ctx, fmt.Sprintf("Pulling changes from `%s`...", remote)); err != nil {
		return "", "error", err
	}
	if err := repo.Pull(ctx, remote); err != nil {
		return "", "error", fmt.Errorf("pulling from %s: %w", remote, err)
	}

	changed, err := repo.Diff(ctx, oldCommit)
	if err != nil {
		return "", "error", fmt.Errorf("diffing against %s: %w", oldCommit, err)
	}
	if len(changed) == 0 {
		return "No updates found.", "no_updates", nil
	}
	u.logger.Info("pulled updates",
		slog.String("remote", remote),
		slog.String("from", oldCommit),
		slog.Int("changed_files", len(changed)),
	)

	goBin := u.toolchain()
	workdir := repo.WorkingTreeDir()

	if touches(changed, u.cfg.LockFile) {
		if goBin == "" {
			return manualDependencyText, "manual_dependencies", nil
		}
		if _, err := reply.Respond(ctx, "Updating dependencies..."); err != nil {
			return "", "error", err
		}
		if out, err := u.goTool(ctx, goBin, workdir, "mod", "download"); err != nil {
			return "", "dependency_update_failed", dependencyFailure(out, err)
		}
		if out, err := u.rebuild(ctx, goBin, workdir); err != nil {
			return "", "dependency_update_failed", dependencyFailure(out, err)
		}
	} else if goBin != "" {
		if _, err := reply.Respond(ctx, "Rebuilding..."); err != nil {
			return "", "error", err
		}
		if out, err := u.rebuild(ctx, goBin, workdir); err != nil {
			return "", "dependency_update_failed", dependencyFailure(out, err)
		}
	}

	if err := u.restarter.Restart(ctx, reply, restart.Options{At: startedAt, Reason: restart.ReasonUpdate}); err != nil {
		return "", "error", err
	}
	return "", "restarting", nil
}

const manualDependencyText = `Successfully pulled updates.

**Update dependencies manually** to avoid errors, then restart the bot for the update to take effect.

Dependency updates are automatic if a Go toolchain is configured with ` + "`update.toolchain_dir`" + ` or ` + "`MLINZI_TOOLCHAIN`" + `.`

func dependencyFailure(out string, err error) error {
	if out == "" {
		out = err.Error()
	}
	return &Error{
		Kind: ErrDependencyUpdateFailed,
		Text: fmt.Sprintf("⚠️ Error updating dependencies:\n\n```%s```\n\nFix the issue manually and then restart the bot.", out),
	}
}

func (u *Updater) resolveRemote(ctx context.Context, repo Repository, name string) (string, error) {
	if name != "" {
		remote, err := repo.ResolveRemote(ctx, name)
		if errors.Is(err, gitrepo.ErrRemoteNotFound) {
			return "", &Error{Kind: ErrRemoteNotFound, Text: fmt.Sprintf("__Remote__ `%s` __not found.__", name)}
		}
		return remote, err
	}

	remote, err := repo.TrackingRemote(ctx)
	if errors.Is(err, gitrepo.ErrNoUpstream) {
		branch, berr := repo.ActiveBranch(ctx)
		if berr != nil {
			return "", berr
		}
		return "", &Error{Kind: ErrNoTrackingRemote, Text: fmt.Sprintf("__Current branch__ `%s` __is not tracking a remote.__", branch)}
	}
	return remote, err
}

// toolchain returns the isolated go binary, or "" when none is usable.
func (u *Updater) toolchain() string {
	if u.cfg.ToolchainDir == "" {
		return ""
	}
	goBin := filepath.Join(u.cfg.ToolchainDir, "bin", "go")
	if info, err := os.Stat(goBin); err != nil || info.IsDir() {
		u.logger.Warn("configured toolchain has no go binary", slog.String("path", goBin))
		return ""
	}
	return goBin
}

func (u *Updater) rebuild(ctx context.Context, goBin, workdir string) (string, error) {
	exe, err := u.executable()
	if err != nil {
		return "", fmt.Errorf("resolving executable: %w", err)
	}
	return u.goTool(ctx, goBin, workdir, "build", "-o", exe, u.cfg.Target)
}

// goTool runs the isolated go binary and returns its combined output.
func (u *Updater) goTool(ctx context.Context, goBin, workdir string, args ...string) (string, error) {
	res, err := u.runner.Run(ctx, runner.Request{
		Program: goBin,
		Args:    args,
		Dir:     workdir,
		Timeout: buildTimeout,
	})
	if err != nil {
		return "", err
	}
	out := res.Stdout + res.Stderr
	if res.ExitCode != 0 {
		return out, fmt.Errorf("go %s: exit status %d", args[0], res.ExitCode)
	}
	return out, nil
}

// touches reports whether path is among the changed files.
func touches(changed []string, path string) bool {
	want := filepath.ToSlash(filepath.Clean(path))
	for _, c := range changed {
		if filepath.ToSlash(filepath.Clean(c)) == want {
			return true
		}
	}
	return false
}
