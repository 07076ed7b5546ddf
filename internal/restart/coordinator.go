package restart

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/jkaninda/mlinzi/internal/observability"
	"github.com/jkaninda/mlinzi/internal/timeutil"
	"github.com/jkaninda/mlinzi/internal/transport"
)

// Responder posts (or updates) the reply to the command being handled.
type Responder interface {
	Respond(ctx context.Context, text string) (transport.Message, error)
}

// Process is the part of the process supervisor the coordinator drives.
type Process interface {
	// MarkManualStop records that the coming stop was operator-initiated.
	MarkManualStop()

	// RequestStop begins the ordinary shutdown sequence and returns
	// without waiting for it.
	RequestStop()
}

// Options tune a single restart request.
type Options struct {
	// At is when the restart was initiated. Zero = now.
	At time.Time

	// Reason defaults to ReasonManual.
	Reason Reason
}

// Resumed describes the outcome of a boot-time resume.
type Resumed struct {
	Record  Record
	Elapsed time.Duration
	Text    string
}

// Coordinator owns the restart protocol: persist intent, flag the process
// for re-exec, stop; then on the next boot consume the intent and report.
type Coordinator struct {
	state   *StateStore
	client  transport.Client
	process Process
	metrics *observability.MetricsCollector
	logger  *slog.Logger

	// pending is set once a restart has been persisted and is read by the
	// supervisor when shutdown completes.
	pending atomic.Bool

	now func() time.Time
}

// NewCoordinator creates a Coordinator. metrics may be nil.
func NewCoordinator(state *StateStore, client transport.Client, process Process, metrics *observability.MetricsCollector, logger *slog.Logger) *Coordinator {
	return &Coordinator{
		state:   state,
		client:  client,
		process: process,
		metrics: metrics,
		logger:  logger,
		now:     time.Now,
	}
}

// Pending reports whether the process should re-exec once stopped.
func (c *Coordinator) Pending() bool {
	return c.pending.Load()
}

// Stop shuts the bot down without scheduling a restart.
func (c *Coordinator) Stop(ctx context.Context, r Responder) error {
	if _, err := r.Respond(ctx, "Stopping bot..."); err != nil {
		return err
	}
	c.process.MarkManualStop()
	if _, err := r.Respond(ctx, "Stopped"); err != nil {
		c.logger.Warn("sending stop acknowledgement", slog.String("error", err.Error()))
	}
	c.logger.Info("stop requested by operator")
	c.process.RequestStop()
	return nil
}

// Restart persists a restart record pointing at the acknowledgement
// message and stops the process with the re-exec flag set.
func (c *Coordinator) Restart(ctx context.Context, r Responder, opts Options) error {
	ack, err := r.Respond(ctx, "Restarting bot...")
	if err != nil {
		return err
	}

	at := opts.At
	if at.IsZero() {
		at = c.now()
	}
	reason := opts.Reason
	if reason == "" {
		reason = ReasonManual
	}

	rec := Record{
		StatusChatID:      ack.ChatID,
		StatusMessageID:   ack.ID,
		ScheduledAtMicros: at.UnixMicro(),
		Reason:            reason,
	}
	if err := c.state.AddRecord(ctx, rec); err != nil {
		return err
	}

	c.pending.Store(true)
	c.process.MarkManualStop()

	if c.metrics != nil {
		c.metrics.RestartsTotal.WithLabelValues(string(reason)).Inc()
	}
	c.logger.Info("preparing to restart",
		slog.String("reason", string(reason)),
		slog.Int64("status_chat_id", rec.StatusChatID),
		slog.Int64("status_message_id", rec.StatusMessageID),
	)
	c.process.RequestStop()
	return nil
}

// Resume consumes the pending restart state left by the previous process
// and edits its status message with the downtime. Failures after the
// state is cleared are logged, not retried. Returns nil when there was
// nothing to report.
func (c *Coordinator) Resume(ctx context.Context) (*Resumed, error) {
	rec, err := c.state.TakeFirst(ctx)
	if err != nil {
		c.recordResume("error")
		return nil, err
	}
	if rec == nil {
		return nil, nil
	}
	if !rec.HasStatusMessage() {
		c.logger.Warn("restart record has no status message, skipping report",
			slog.String("reason", string(rec.Reason)),
		)
		c.recordResume("skipped")
		return nil, nil
	}

	elapsed := c.now().Sub(time.UnixMicro(rec.ScheduledAtMicros))
	updated := ""
	if rec.Reason == ReasonUpdate {
		updated = "updated and "
	}
	duration := timeutil.FormatDuration(elapsed)
	text := fmt.Sprintf("Bot %srestarted in %s.", updated, duration)
	c.logger.Info(fmt.Sprintf("Bot %srestarted in %s", updated, duration),
		slog.Duration("downtime", elapsed),
	)

	resumed := &Resumed{Record: *rec, Elapsed: elapsed, Text: text}

	msg, err := c.client.FetchMessage(ctx, rec.StatusChatID, rec.StatusMessageID)
	if err != nil {
		c.logger.Warn("fetching restart status message",
			slog.Int64("chat_id", rec.StatusChatID),
			slog.Int64("message_id", rec.StatusMessageID),
			slog.String("error", err.Error()),
		)
		c.recordResume("failed")
		return resumed, nil
	}
	if _, err := c.client.EditOrReplaceMessage(ctx, msg.ChatID, msg.ID, text); err != nil {
		c.logger.Warn("editing restart status message",
			slog.Int64("chat_id", msg.ChatID),
			slog.Int64("message_id", msg.ID),
			slog.String("error", err.Error()),
		)
		c.recordResume("failed")
		return resumed, nil
	}

	c.recordResume("reported")
	return resumed, nil
}

func (c *Coordinator) recordResume(outcome string) {
	if c.metrics != nil {
		c.metrics.ResumesTotal.WithLabelValues(outcome).Inc()
	}
}
