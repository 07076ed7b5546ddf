// Package gitrepo drives the git CLI for the bot's own source checkout.
package gitrepo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/jkaninda/mlinzi/internal/runner"
)

const (
	gitTimeout     = 30 * time.Second
	networkTimeout = 2 * time.Minute
)

var (
	// ErrGitMissing is returned when the git executable is not installed.
	ErrGitMissing = errors.New("git executable not found")

	// ErrNotRepository is returned when dir is not inside a work tree.
	ErrNotRepository = errors.New("not a git repository")

	// ErrRemoteNotFound is returned for an unknown remote name.
	ErrRemoteNotFound = errors.New("remote not found")

	// ErrNoUpstream is returned when the branch tracks no remote.
	ErrNoUpstream = errors.New("branch is not tracking a remote")
)

// CommandError is a git invocation that exited non-zero.
type CommandError struct {
	Args     []string
	ExitCode int
	Output   string
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("git %s: exit status %d: %s", strings.Join(e.Args, " "), e.ExitCode, strings.TrimSpace(e.Output))
}

// Repo is a git work tree.
type Repo struct {
	dir    string
	runner runner.Runner
	logger *slog.Logger
}

// Open locates the work tree containing dir.
func Open(ctx context.Context, r runner.Runner, dir string, logger *slog.Logger) (*Repo, error) {
	probe := &Repo{dir: dir, runner: r, logger: logger}
	top, err := probe.git(ctx, gitTimeout, "rev-parse", "--show-toplevel")
	if err != nil {
		var cerr *CommandError
		if errors.As(err, &cerr) {
			return nil, fmt.Errorf("%w: %s", ErrNotRepository, dir)
		}
		return nil, err
	}
	return &Repo{dir: top, runner: r, logger: logger}, nil
}

// WorkingTreeDir returns the top-level directory of the work tree.
func (r *Repo) WorkingTreeDir() string {
	return r.dir
}

// CurrentCommit returns the full hash of HEAD.
func (r *Repo) CurrentCommit(ctx context.Context) (string, error) {
	return r.git(ctx, gitTimeout, "rev-parse", "HEAD")
}

// ActiveBranch returns the checked-out branch name, or "HEAD" when detached.
func (r *Repo) ActiveBranch(ctx context.Context) (string, error) {
	return r.git(ctx, gitTimeout, "rev-parse", "--abbrev-ref", "HEAD")
}

// ResolveRemote checks that a remote called name exists.
func (r *Repo) ResolveRemote(ctx context.Context, name string) (string, error) {
	out, err := r.git(ctx, gitTimeout, "remote")
	if err != nil {
		return "", err
	}
	for _, remote := range strings.Fields(out) {
		if remote == name {
			return remote, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrRemoteNotFound, name)
}

// TrackingRemote returns the remote the active branch tracks.
func (r *Repo) TrackingRemote(ctx context.Context) (string, error) {
	branch, err := r.ActiveBranch(ctx)
	if err != nil {
		return "", err
	}
	remote, err := r.git(ctx, gitTimeout, "config", "--get", "branch."+branch+".remote")
	if err != nil {
		var cerr *CommandError
		if errors.As(err, &cerr) && cerr.ExitCode == 1 {
			return "", fmt.Errorf("%w: %s", ErrNoUpstream, branch)
		}
		return "", err
	}
	if remote == "" {
		return "", fmt.Errorf("%w: %s", ErrNoUpstream, branch)
	}
	return remote, nil
}

// Pull fast-forwards the active branch from remote.
func (r *Repo) Pull(ctx context.Context, remote string) error {
	branch, err := r.ActiveBranch(ctx)
	if err != nil {
		return err
	}
	_, err = r.git(ctx, networkTimeout, "pull", "--ff-only", remote, branch)
	return err
}

// Fetch updates remote-tracking refs for remote.
func (r *Repo) Fetch(ctx context.Context, remote string) error {
	_, err := r.git(ctx, networkTimeout, "fetch", "--quiet", remote)
	return err
}

// Behind counts the commits on remote/branch that HEAD does not have.
func (r *Repo) Behind(ctx context.Context, remote, branch string) (int, error) {
	out, err := r.git(ctx, gitTimeout, "rev-list", "--count", "HEAD.."+remote+"/"+branch)
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(out)
	if err != nil {
		return 0, fmt.Errorf("parsing rev-list count %q: %w", out, err)
	}
	return n, nil
}

// Diff lists the paths that changed between oldCommit and HEAD.
func (r *Repo) Diff(ctx context.Context, oldCommit string) ([]string, error) {
	out, err := r.git(ctx, gitTimeout, "diff", "--name-only", oldCommit, "HEAD")
	if err != nil {
		return nil, err
	}
	var paths []string
	for _, line := range strings.Split(out, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			paths = append(paths, line)
		}
	}
	return paths, nil
}

// git runs one git subcommand in the work tree and returns its trimmed
// stdout.
func (r *Repo) git(ctx context.Context, timeout time.Duration, args ...string) (string, error) {
	res, err := r.runner.Run(ctx, runner.Request{
		Program: "git",
		Args:    args,
		Dir:     r.dir,
		Timeout: timeout,
	})
	if err != nil {
		if errors.Is(err, runner.ErrNotFound) {
			return "", ErrGitMissing
		}
		return "", fmt.Errorf("git %s: %w", strings.Join(args, " "), err)
	}
	if res.ExitCode != 0 {
		r.logger.Debug("git command failed",
			slog.String("args", strings.Join(args, " ")),
			slog.Int("exit_code", res.ExitCode),
		)
		return "", &CommandError{Args: args, ExitCode: res.ExitCode, Output: res.Stderr + res.Stdout}
	}
	return strings.TrimSpace(res.Stdout), nil
}
