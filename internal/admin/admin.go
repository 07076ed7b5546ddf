// Package admin implements the operator commands: diagnostics, shell and
// snippet execution, and stop/restart/update.
package admin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jkaninda/mlinzi/internal/command"
	"github.com/jkaninda/mlinzi/internal/restart"
	"github.com/jkaninda/mlinzi/internal/runner"
	"github.com/jkaninda/mlinzi/internal/sandbox"
	"github.com/jkaninda/mlinzi/internal/speedtest"
	"github.com/jkaninda/mlinzi/internal/storage"
	"github.com/jkaninda/mlinzi/internal/timeutil"
	"github.com/jkaninda/mlinzi/internal/update"
)

// Lifecycle stops or restarts the bot.
type Lifecycle interface {
	Stop(ctx context.Context, r restart.Responder) error
	Restart(ctx context.Context, r restart.Responder, opts restart.Options) error
}

// Updater runs the self-update flow.
type Updater interface {
	Update(ctx context.Context, reply restart.Responder, remoteName string) (string, error)
}

// Deps are the collaborators of the admin commands.
type Deps struct {
	Sandbox        *sandbox.Sandbox
	Runner         runner.Runner
	Lifecycle      Lifecycle
	Updater        Updater
	NewSpeedTester func() speedtest.Tester
	Store          storage.Store
	SysinfoTimeout time.Duration
	Logger         *slog.Logger
}

// Admin holds the command handlers.
type Admin struct {
	deps Deps
	reg  *command.Registry
}

// New creates the admin commands.
func New(deps Deps) *Admin {
	if deps.SysinfoTimeout <= 0 {
		deps.SysinfoTimeout = time.Minute
	}
	if deps.NewSpeedTester == nil {
		deps.NewSpeedTester = func() speedtest.Tester { return speedtest.NewClient() }
	}
	return &Admin{deps: deps}
}

// Register adds every admin command to reg. help lists the whole registry.
func (a *Admin) Register(reg *command.Registry) error {
	a.reg = reg
	return reg.Register(
		command.Definition{Name: "sysinfo", Description: "Get information about the host system", Aliases: []string{"si"}, Handler: a.sysinfo},
		command.Definition{Name: "speedtest", Description: "Test Internet speed", Aliases: []string{"stest", "st"}, Handler: a.speedtest},
		command.Definition{Name: "shell", Description: "Run a snippet in a shell", Usage: "[shell snippet]", Aliases: []string{"sh"}, Handler: a.shell},
		command.Definition{Name: "eval", Description: "Evaluate Go code", Usage: "[code snippet]", Aliases: []string{"ev", "exec"}, Handler: a.eval},
		command.Definition{Name: "stop", Description: "Stop this bot", Handler: a.stop},
		command.Definition{Name: "restart", Description: "Restart this bot", Aliases: []string{"re", "rst"}, Handler: a.restart},
		command.Definition{Name: "update", Description: "Update this bot from Git and restart", Usage: "[remote name?]", Aliases: []string{"up", "upd"}, Handler: a.update},
		command.Definition{Name: "help", Description: "List available commands", Handler: a.help},
	)
}

func (a *Admin) sysinfo(ctx context.Context, c *command.Context) (string, error) {
	if _, err := c.Respond(ctx, "Collecting system information..."); err != nil {
		return "", err
	}

	res, err := a.deps.Runner.Run(ctx, runner.Request{
		Program: "neofetch",
		Args:    []string{"--stdout"},
		Timeout: a.deps.SysinfoTimeout,
	})
	switch {
	case errors.Is(err, runner.ErrTimeout):
		return fmt.Sprintf("🕑 `neofetch` failed to finish within %s.", timeutil.SpellTimeout(a.deps.SysinfoTimeout)), nil
	case errors.Is(err, runner.ErrNotFound):
		return "❌ [neofetch](https://github.com/dylanaraps/neofetch) must be installed on the host system.", nil
	case err != nil:
		return "", err
	}

	info := res.Stdout
	if res.ExitCode == 0 {
		// The first two lines are the user@host banner and its underline.
		lines := strings.Split(info, "\n")
		if len(lines) > 2 {
			info = strings.Join(lines[2:], "\n")
		} else {
			info = ""
		}
	}
	return "```" + info + "```" + sandbox.ExitNote(res.ExitCode), nil
}

func (a *Admin) speedtest(ctx context.Context, c *command.Context) (string, error) {
	return speedtest.Run(ctx, a.deps.NewSpeedTester(), c)
}

func (a *Admin) shell(ctx context.Context, c *command.Context) (string, error) {
	if len(c.Args) == 0 || strings.TrimSpace(c.Args[0]) == "" {
		return "Give me code to run", nil
	}
	if _, err := c.Respond(ctx, "Running snippet..."); err != nil {
		return "", err
	}
	res, err := a.deps.Sandbox.Shell(ctx, c.Args)
	if err != nil {
		return "", err
	}
	return res.Report(), nil
}

func (a *Admin) eval(ctx context.Context, c *command.Context) (string, error) {
	if strings.TrimSpace(c.Input) == "" {
		return "Give me code to evaluate.", nil
	}
	env := &sandbox.Env{
		Client:   c.Client(),
		Commands: a.reg,
		Store:    a.deps.Store,
		Chat:     c.ChatID,
		Message:  c.MessageID,
	}
	res, err := a.deps.Sandbox.Evaluate(ctx, c.Input, env)
	if err != nil {
		return "", err
	}
	return res.Report(), nil
}

func (a *Admin) stop(ctx context.Context, c *command.Context) (string, error) {
	return "", a.deps.Lifecycle.Stop(ctx, c)
}

func (a *Admin) restart(ctx context.Context, c *command.Context) (string, error) {
	if err := a.deps.Lifecycle.Restart(ctx, c, restart.Options{}); err != nil {
		return "", fmt.Errorf("scheduling restart: %w", err)
	}
	return "", nil
}

func (a *Admin) update(ctx context.Context, c *command.Context) (string, error) {
	text, err := a.deps.Updater.Update(ctx, c, strings.TrimSpace(c.Input))
	var uerr *update.Error
	if errors.As(err, &uerr) {
		return uerr.Text, nil
	}
	return text, err
}

func (a *Admin) help(_ context.Context, _ *command.Context) (string, error) {
	var b strings.Builder
	b.WriteString("**Available commands:**\n")
	for _, def := range a.reg.Definitions() {
		fmt.Fprintf(&b, "\n/%s", def.Name)
		if def.Usage != "" {
			fmt.Fprintf(&b, " %s", def.Usage)
		}
		if def.Description != "" {
			fmt.Fprintf(&b, ": %s", def.Description)
		}
		if len(def.Aliases) > 0 {
			fmt.Fprintf(&b, " (aliases: %s)", strings.Join(def.Aliases, ", "))
		}
	}
	return b.String(), nil
}
