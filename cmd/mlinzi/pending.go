package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jkaninda/mlinzi/internal/gateway/telegram"
	"github.com/jkaninda/mlinzi/internal/restart"
	"github.com/jkaninda/mlinzi/internal/timeutil"
)

var pendingCmd = &cobra.Command{
	Use:   "pending",
	Short: "Show the restart record the next boot will resume, without consuming it",
	RunE:  runPending,
}

func runPending(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	sc, err := initShared(cfg)
	if err != nil {
		return err
	}
	defer sc.Cleanup()

	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	// Restart state is keyed by the bot's own user id.
	tg, err := telegram.NewGateway(telegram.Config{BotToken: cfg.Telegram.BotToken}, nil, sc.Logger)
	if err != nil {
		return err
	}
	ownerID, _, err := tg.Identify(ctx)
	if err != nil {
		return err
	}

	state := restart.NewStateStore(sc.Store.RestartDocuments(), ownerID)
	rec, count, err := state.Peek(ctx)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if rec == nil {
		fmt.Fprintln(out, "No restart pending.")
		return nil
	}
	age := time.Since(time.UnixMicro(rec.ScheduledAtMicros))
	fmt.Fprintf(out, "Restart pending (%d record(s)):\n", count)
	fmt.Fprintf(out, "  reason:         %s\n", rec.Reason)
	fmt.Fprintf(out, "  status message: %d/%d\n", rec.StatusChatID, rec.StatusMessageID)
	fmt.Fprintf(out, "  requested:      %s ago\n", timeutil.FormatDuration(age))
	return nil
}
