package update

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/jkaninda/mlinzi/internal/gitrepo"
	"github.com/jkaninda/mlinzi/internal/runner"
	"github.com/jkaninda/mlinzi/internal/transport"
)

// Upstream is the part of a repository the Checker polls.
type Upstream interface {
	ActiveBranch(ctx context.Context) (string, error)
	TrackingRemote(ctx context.Context) (string, error)
	Fetch(ctx context.Context, remote string) error
	Behind(ctx context.Context, remote, branch string) (int, error)
}

// Checker periodically fetches the tracking remote and tells a chat when
// new commits are available. It never pulls.
type Checker struct {
	open   func(ctx context.Context) (Upstream, error)
	client transport.Client
	chatID int64
	logger *slog.Logger
	parser cron.Parser

	mu       sync.Mutex
	notified int // commits behind at the last notification
}

// NewChecker creates a Checker for the work tree containing repoDir.
func NewChecker(repoDir string, r runner.Runner, client transport.Client, chatID int64, logger *slog.Logger) *Checker {
	if repoDir == "" {
		repoDir = "."
	}
	return &Checker{
		open: func(ctx context.Context) (Upstream, error) {
			return gitrepo.Open(ctx, r, repoDir, logger)
		},
		client: client,
		chatID: chatID,
		logger: logger,
		parser: cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
	}
}

// Start schedules Check on spec and returns a function that stops the
// schedule and waits for a running check.
func (c *Checker) Start(ctx context.Context, spec string) (func(), error) {
	sched, err := c.parser.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("parsing update check schedule %q: %w", spec, err)
	}

	cr := cron.New(cron.WithParser(c.parser), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	cr.Schedule(sched, cron.FuncJob(func() {
		if err := c.Check(ctx); err != nil {
			c.logger.Warn("update check failed", slog.String("error", err.Error()))
		}
	}))
	cr.Start()
	c.logger.Info("update checker started", slog.String("schedule", spec), slog.Int64("chat_id", c.chatID))

	return func() {
		<-cr.Stop().Done()
		c.logger.Info("update checker stopped")
	}, nil
}

// Check fetches once and notifies when HEAD is behind its upstream by a
// different number of commits than last reported.
func (c *Checker) Check(ctx context.Context) error {
	repo, err := c.open(ctx)
	if err != nil {
		return err
	}
	remote, err := repo.TrackingRemote(ctx)
	if err != nil {
		return err
	}
	branch, err := repo.ActiveBranch(ctx)
	if err != nil {
		return err
	}
	if err := repo.Fetch(ctx, remote); err != nil {
		return err
	}
	behind, err := repo.Behind(ctx, remote, branch)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if behind == 0 || behind == c.notified {
		c.notified = behind
		return nil
	}

	noun := "commits"
	if behind == 1 {
		noun = "commit"
	}
	text := fmt.Sprintf("%d new %s available on `%s/%s`. Run /update to apply.", behind, noun, remote, branch)
	if _, err := c.client.SendMessage(ctx, c.chatID, text); err != nil {
		return fmt.Errorf("sending update notice: %w", err)
	}
	c.notified = behind
	c.logger.Info("update available", slog.String("remote", remote), slog.Int("behind", behind))
	return nil
}
