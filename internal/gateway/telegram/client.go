package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"

	"github.com/jkaninda/mlinzi/internal/transport"
)

// telegramSafeMaxLen leaves room for the HTML markup added on conversion.
const telegramSafeMaxLen = 4000

// botAPI is the subset of *telego.Bot the client uses.
type botAPI interface {
	SendMessage(ctx context.Context, params *telego.SendMessageParams) (*telego.Message, error)
	EditMessageText(ctx context.Context, params *telego.EditMessageTextParams) (*telego.Message, error)
	GetChat(ctx context.Context, params *telego.GetChatParams) (*telego.ChatFullInfo, error)
}

// Client implements transport.Client over the Bot API. Text is Markdown
// and is sent as Telegram HTML, falling back to plain text when Telegram
// rejects the markup.
type Client struct {
	bot    botAPI
	logger *slog.Logger
}

// NewClient wraps a telego bot.
func NewClient(bot *telego.Bot, logger *slog.Logger) *Client {
	return &Client{bot: bot, logger: logger}
}

// SendMessage sends text to chatID. Long text is split across several
// messages; the first one is returned.
func (c *Client) SendMessage(ctx context.Context, chatID int64, text string) (transport.Message, error) {
	if strings.TrimSpace(text) == "" {
		return transport.Message{}, errors.New("refusing to send an empty message")
	}

	var first transport.Message
	for i, chunk := range splitMessage(text, telegramSafeMaxLen) {
		msg, err := c.send(ctx, chatID, chunk)
		if err != nil {
			return transport.Message{}, err
		}
		if i == 0 {
			first = transport.Message{ChatID: chatID, ID: int64(msg.MessageID), Text: text}
		}
	}
	return first, nil
}

func (c *Client) send(ctx context.Context, chatID int64, chunk string) (*telego.Message, error) {
	params := tu.Message(tu.ID(chatID), markdownToTelegramHTML(chunk))
	params.ParseMode = telego.ModeHTML

	msg, err := c.bot.SendMessage(ctx, params)
	if err == nil {
		return msg, nil
	}
	c.logger.Warn("telegram HTML send failed, falling back to plain text",
		slog.Int64("chat_id", chatID),
		slog.String("error", err.Error()),
	)
	msg, err = c.bot.SendMessage(ctx, tu.Message(tu.ID(chatID), chunk))
	if err != nil {
		return nil, fmt.Errorf("sending telegram message: %w", err)
	}
	return msg, nil
}

// EditOrReplaceMessage edits messageID in place. If Telegram refuses the
// edit (the message is gone, too old, or not the bot's) a new message is
// sent instead. Overflow beyond the first chunk is sent as new messages.
func (c *Client) EditOrReplaceMessage(ctx context.Context, chatID, messageID int64, text string) (transport.Message, error) {
	if strings.TrimSpace(text) == "" {
		return transport.Message{}, errors.New("refusing to send an empty message")
	}

	chunks := splitMessage(text, telegramSafeMaxLen)
	if err := c.edit(ctx, chatID, messageID, chunks[0]); err != nil {
		c.logger.Info("telegram edit failed, sending a new message",
			slog.Int64("chat_id", chatID),
			slog.Int64("message_id", messageID),
			slog.String("error", err.Error()),
		)
		return c.SendMessage(ctx, chatID, text)
	}
	for _, chunk := range chunks[1:] {
		if _, err := c.send(ctx, chatID, chunk); err != nil {
			return transport.Message{}, err
		}
	}
	return transport.Message{ChatID: chatID, ID: messageID, Text: text}, nil
}

func (c *Client) edit(ctx context.Context, chatID, messageID int64, chunk string) error {
	params := tu.EditMessageText(tu.ID(chatID), int(messageID), markdownToTelegramHTML(chunk))
	params.ParseMode = telego.ModeHTML

	_, err := c.bot.EditMessageText(ctx, params)
	if err == nil || isNotModified(err) {
		return nil
	}
	_, perr := c.bot.EditMessageText(ctx, tu.EditMessageText(tu.ID(chatID), int(messageID), chunk))
	if perr == nil || isNotModified(perr) {
		return nil
	}
	return perr
}

// FetchMessage confirms the chat is reachable. The Bot API cannot read
// back a message, so the returned Message carries no text.
func (c *Client) FetchMessage(ctx context.Context, chatID, messageID int64) (transport.Message, error) {
	if _, err := c.bot.GetChat(ctx, &telego.GetChatParams{ChatID: tu.ID(chatID)}); err != nil {
		return transport.Message{}, fmt.Errorf("looking up chat %d: %w", chatID, err)
	}
	return transport.Message{ChatID: chatID, ID: messageID}, nil
}

// isNotModified reports Telegram's rejection of an edit that would leave
// the message unchanged.
func isNotModified(err error) bool {
	return strings.Contains(err.Error(), "message is not modified")
}

var _ transport.Client = (*Client)(nil)
