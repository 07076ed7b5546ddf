package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jkaninda/mlinzi/internal/admin"
	"github.com/jkaninda/mlinzi/internal/command"
	"github.com/jkaninda/mlinzi/internal/gateway"
	"github.com/jkaninda/mlinzi/internal/gateway/httpapi"
	"github.com/jkaninda/mlinzi/internal/gateway/telegram"
	"github.com/jkaninda/mlinzi/internal/observability"
	"github.com/jkaninda/mlinzi/internal/ratelimit"
	"github.com/jkaninda/mlinzi/internal/restart"
	"github.com/jkaninda/mlinzi/internal/sandbox"
	"github.com/jkaninda/mlinzi/internal/supervisor"
	"github.com/jkaninda/mlinzi/internal/update"
)

const shutdownGrace = 10 * time.Second

// runBot starts the bot and blocks until it is stopped. When a restart was
// requested it re-executes the binary instead of returning.
func runBot(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	sc, err := initShared(cfg)
	if err != nil {
		return err
	}
	defer sc.Cleanup()
	logger := sc.Logger

	// Signal-aware context; cancelling runCtx is how /stop and /restart
	// end the main loop.
	sigCtx, stopSignals := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stopSignals()
	runCtx, cancel := context.WithCancel(sigCtx)
	defer cancel()
	sup := supervisor.New(cancel, logger)

	metrics := sc.Obs.MetricsOrNil()

	// Telegram.
	limiter := ratelimit.NewLimiter(ratelimit.Config{
		RequestsPerMinute: cfg.Telegram.RateLimit.RequestsPerMinute,
		BurstSize:         cfg.Telegram.RateLimit.BurstSize,
	})
	tg, err := telegram.NewGateway(telegram.Config{
		BotToken:     cfg.Telegram.BotToken,
		AllowedUsers: cfg.Telegram.AllowedUsers,
		PollTimeout:  cfg.Telegram.PollTimeout(),
	}, limiter, logger)
	if err != nil {
		return err
	}
	client := tg.Client()

	ownerID, username, err := tg.Identify(runCtx)
	if err != nil {
		return err
	}
	logger.Info("bot identity resolved", slog.Int64("owner_id", ownerID), slog.String("username", username))

	// Restart protocol. The previous process may have left a record.
	state := restart.NewStateStore(sc.Store.RestartDocuments(), ownerID)
	coord := restart.NewCoordinator(state, client, sup, metrics, logger)
	if _, err := coord.Resume(runCtx); err != nil {
		logger.Error("resuming after restart", slog.String("error", err.Error()))
	}

	// Commands.
	updater := update.New(update.Config{
		RepoDir:      cfg.Update.Repo(),
		LockFile:     cfg.Update.LockFilePath(),
		ToolchainDir: cfg.Update.Toolchain(),
		Target:       cfg.Update.Target(),
	}, sc.Runner, coord, metrics, logger)

	reg := command.NewRegistry()
	cmds := admin.New(admin.Deps{
		Sandbox:        sandbox.New(sc.Runner, sandbox.Config{ShellTimeout: cfg.Sandbox.ShellTimeout()}, logger),
		Runner:         sc.Runner,
		Lifecycle:      coord,
		Updater:        updater,
		Store:          sc.Store,
		SysinfoTimeout: cfg.Sandbox.SysinfoTimeout(),
		Logger:         logger,
	})
	if err := cmds.Register(reg); err != nil {
		return fmt.Errorf("registering commands: %w", err)
	}

	dispatcher := command.NewDispatcher(reg, client, observability.NewCommandRecorder(sc.Obs), logger)
	tg.SetHandler(dispatcher)
	if err := tg.RegisterCommands(runCtx, reg.Definitions()); err != nil {
		logger.Warn("publishing command menu", slog.String("error", err.Error()))
	}

	// Periodic upstream check (optional).
	stopChecker := func() {}
	if spec := cfg.Update.Schedule(); spec != "" {
		checker := update.NewChecker(cfg.Update.Repo(), sc.Runner, client, cfg.Update.NotifyChat(), logger)
		stopChecker, err = checker.Start(runCtx, spec)
		if err != nil {
			return err
		}
	}

	gateways := []gateway.Gateway{tg}

	// Ops HTTP server (optional).
	if cfg.HTTP != nil && cfg.HTTP.Enabled {
		hc := sc.Obs.HealthOrNil()
		if hc != nil {
			hc.AddCheck("storage", sc.Store.Ping)
		}
		httpCfg := httpapi.Config{
			ListenAddr:    cfg.HTTP.Addr(),
			HealthChecker: hc,
			Metrics:       metrics,
			Pending:       state,
		}
		if metrics != nil {
			httpCfg.MetricsRegistry = metrics.Registry
			httpCfg.MetricsPath = cfg.Observability.Metrics.Path
		}
		if ts := sc.Obs.TracerOrNil(); ts != nil {
			httpCfg.Tracer = ts.Tracer()
		}
		gateways = append(gateways, httpapi.NewGateway(httpCfg, logger))
	}

	errs := make(chan error, len(gateways))
	for _, gw := range gateways {
		go func(g gateway.Gateway) {
			errs <- g.Start(runCtx)
		}(gw)
	}
	logger.Info("mlinzi started", slog.Int("gateways", len(gateways)))

	var runErr error
	select {
	case <-runCtx.Done():
		logger.Info("shutdown requested")
	case err := <-errs:
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("gateway failed", slog.String("error", err.Error()))
			runErr = err
		}
		cancel()
	}

	stopChecker()

	// Graceful shutdown with deadline.
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancelShutdown()
	for i := len(gateways) - 1; i >= 0; i-- {
		if err := gateways[i].Stop(shutdownCtx); err != nil {
			logger.Error("gateway shutdown error", slog.String("error", err.Error()))
		}
	}

	// Only returns when no restart is pending.
	sup.Finish(coord.Pending(), sc.Cleanup)
	return runErr
}
