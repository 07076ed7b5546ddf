// Package telegram is the bot's Telegram gateway: it long-polls the Bot API,
// hands allowed users' messages to the command dispatcher, and implements
// the chat transport the commands reply through.
//
// Security:
//   - User allowlist: only listed Telegram user IDs are served (default-deny)
//   - Messages from anyone else are dropped without a reply
//   - Bot token comes from config or TELEGRAM_BOT_TOKEN and is never logged
//   - Per-user rate limiting
package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/mymmrac/telego"

	"github.com/jkaninda/mlinzi/internal/command"
	"github.com/jkaninda/mlinzi/internal/ratelimit"
)

const defaultPollTimeout = 30 * time.Second

// Config configures the Telegram gateway.
type Config struct {
	BotToken     string
	AllowedUsers []int64       // Telegram user IDs allowed to interact. Empty = deny all.
	PollTimeout  time.Duration // Long poll timeout. 0 = 30s.
}

// Handler processes one incoming message.
type Handler interface {
	Dispatch(ctx context.Context, in command.Incoming) command.Result
}

// Gateway is the Telegram gateway.
type Gateway struct {
	config  Config
	bot     *telego.Bot
	client  *Client
	handler Handler
	limiter *ratelimit.Limiter
	logger  *slog.Logger
	allowed map[int64]bool

	inflight sync.WaitGroup
}

// NewGateway creates the bot client. limiter may be nil.
func NewGateway(cfg Config, limiter *ratelimit.Limiter, logger *slog.Logger) (*Gateway, error) {
	bot, err := telego.NewBot(cfg.BotToken, telego.WithLogger(telegoLogger{logger: logger, token: cfg.BotToken}))
	if err != nil {
		return nil, fmt.Errorf("creating telegram bot: %w", err)
	}

	allowed := make(map[int64]bool, len(cfg.AllowedUsers))
	for _, uid := range cfg.AllowedUsers {
		allowed[uid] = true
	}
	return &Gateway{
		config:  cfg,
		bot:     bot,
		client:  NewClient(bot, logger),
		limiter: limiter,
		logger:  logger,
		allowed: allowed,
	}, nil
}

// Client returns the transport commands reply through.
func (g *Gateway) Client() *Client {
	return g.client
}

// SetHandler installs the message handler. It must be called before Start.
func (g *Gateway) SetHandler(h Handler) {
	g.handler = h
}

// Identify returns the bot's own Telegram user id.
func (g *Gateway) Identify(ctx context.Context) (int64, string, error) {
	me, err := g.bot.GetMe(ctx)
	if err != nil {
		return 0, "", fmt.Errorf("fetching bot identity: %w", err)
	}
	return me.ID, me.Username, nil
}

// RegisterCommands publishes the command menu.
func (g *Gateway) RegisterCommands(ctx context.Context, defs []command.Definition) error {
	cmds := make([]telego.BotCommand, 0, len(defs))
	for _, def := range defs {
		if def.Description == "" {
			continue
		}
		cmds = append(cmds, telego.BotCommand{Command: def.Name, Description: def.Description})
	}
	return g.bot.SetMyCommands(ctx, &telego.SetMyCommandsParams{Commands: cmds})
}

// Start long-polls until ctx is canceled. Each message is handled on its
// own goroutine.
func (g *Gateway) Start(ctx context.Context) error {
	if g.handler == nil {
		return fmt.Errorf("telegram gateway has no handler")
	}

	timeout := g.config.PollTimeout
	if timeout <= 0 {
		timeout = defaultPollTimeout
	}
	updates, err := g.bot.UpdatesViaLongPolling(ctx, &telego.GetUpdatesParams{
		Timeout:        int(timeout / time.Second),
		AllowedUpdates: []string{"message"},
	})
	if err != nil {
		return fmt.Errorf("starting long polling: %w", err)
	}
	g.logger.Info("telegram gateway starting long polling",
		slog.Duration("timeout", timeout),
		slog.Int("allowed_users", len(g.allowed)),
	)

	for {
		select {
		case <-ctx.Done():
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if update.Message == nil {
				continue
			}
			msg := *update.Message
			g.inflight.Add(1)
			go func() {
				defer g.inflight.Done()
				g.handleMessage(ctx, msg)
			}()
		}
	}
}

// Stop waits for in-flight messages until ctx expires.
func (g *Gateway) Stop(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		g.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		g.logger.Info("telegram gateway stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for in-flight telegram messages: %w", ctx.Err())
	}
}

func (g *Gateway) handleMessage(ctx context.Context, msg telego.Message) {
	if msg.From == nil || msg.Text == "" {
		return
	}
	userID := msg.From.ID

	// Default-deny, and no reply: strangers learn nothing about the bot.
	if !g.allowed[userID] {
		g.logger.Debug("telegram user not in allowlist", slog.Int64("telegram_user_id", userID))
		return
	}

	if g.limiter != nil {
		if err := g.limiter.Allow(userID); err != nil {
			g.logger.Warn("telegram user rate limited", slog.Int64("telegram_user_id", userID))
			if _, err := g.client.SendMessage(ctx, msg.Chat.ID, "Rate limit exceeded. Please wait before trying again."); err != nil {
				g.logger.Error("sending rate limit notice", slog.String("error", err.Error()))
			}
			return
		}
	}

	g.handler.Dispatch(ctx, command.Incoming{
		ChatID:    msg.Chat.ID,
		MessageID: int64(msg.MessageID),
		SenderID:  userID,
		Text:      msg.Text,
	})
}

// telegoLogger routes telego's own logging to slog with the token masked.
type telegoLogger struct {
	logger *slog.Logger
	token  string
}

func (l telegoLogger) redact(format string, args []any) string {
	msg := fmt.Sprintf(format, args...)
	if l.token != "" {
		msg = strings.ReplaceAll(msg, l.token, "BOT_TOKEN")
	}
	return msg
}

func (l telegoLogger) Debugf(format string, args ...any) {
	l.logger.Debug(l.redact(format, args), slog.String("component", "telego"))
}

func (l telegoLogger) Errorf(format string, args ...any) {
	l.logger.Error(l.redact(format, args), slog.String("component", "telego"))
}
