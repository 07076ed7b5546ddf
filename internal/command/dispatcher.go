package command

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/google/uuid"

	"github.com/jkaninda/mlinzi/internal/observability"
	"github.com/jkaninda/mlinzi/internal/transport"
)

// Result reports what Dispatch did with a message.
type Result struct {
	Matched bool
	Command string
	Err     error
}

// Dispatcher runs the handler registered for a message's command.
type Dispatcher struct {
	reg      *Registry
	client   transport.Client
	recorder *observability.CommandRecorder
	logger   *slog.Logger
	newID    func() string
}

// NewDispatcher creates a Dispatcher. recorder may be nil.
func NewDispatcher(reg *Registry, client transport.Client, recorder *observability.CommandRecorder, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		reg:      reg,
		client:   client,
		recorder: recorder,
		logger:   logger,
		newID:    uuid.NewString,
	}
}

// Dispatch handles in if it names a registered command. Handler errors are
// rendered as the command's reply; only transport failures while replying
// are swallowed (and logged).
func (d *Dispatcher) Dispatch(ctx context.Context, in Incoming) Result {
	name, ok := parseCommandName(in.Text)
	if !ok {
		return Result{}
	}
	def, ok := d.reg.Lookup(name)
	if !ok {
		return Result{}
	}

	correlationID := d.newID()
	c := NewContext(d.client, in, correlationID)
	logger := d.logger.With(
		slog.String("command", def.Name),
		slog.String("correlation_id", correlationID),
		slog.Int64("chat_id", in.ChatID),
	)
	logger.Info("command received", slog.Int64("sender_id", in.SenderID), slog.Int("args", len(c.Args)))

	ctx, done := d.recorder.Start(ctx, def.Name, correlationID)
	reply, err := invoke(ctx, def, c)

	status := "success"
	switch {
	case errors.Is(err, ErrInternal):
		status = "internal_error"
		logger.Error("command failed internally", slog.String("error", err.Error()))
		reply = fmt.Sprintf("⚠️ Internal error while running `%s` (ref `%s`).", def.Name, correlationID)
	case err != nil:
		status = "error"
		logger.Warn("command failed", slog.String("error", err.Error()))
		reply = "⚠️ " + err.Error()
	}

	if reply != "" {
		if _, rerr := c.Respond(ctx, reply); rerr != nil {
			logger.Error("publishing command reply", slog.String("error", rerr.Error()))
		}
	}
	done(status, err)

	return Result{Matched: true, Command: def.Name, Err: err}
}

// invoke runs the handler, turning a panic into an internal error.
func invoke(ctx context.Context, def Definition, c *Context) (reply string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: panic in %s: %v\n%s", ErrInternal, def.Name, r, debug.Stack())
			reply = ""
		}
	}()
	return def.Handler(ctx, c)
}
