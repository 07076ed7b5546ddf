// Package transport defines the chat client contract used by the admin
// commands and the restart coordinator. The Telegram gateway implements it.
package transport

import "context"

// Message identifies a chat message known to the bot.
type Message struct {
	ChatID int64
	ID     int64
	Text   string
}

// Client sends, edits and looks up chat messages.
type Client interface {
	SendMessage(ctx context.Context, chatID int64, text string) (Message, error)

	// EditOrReplaceMessage edits the message in place. When the message
	// cannot be edited (e.g. it was authored by someone else) a new message
	// is sent to the same chat instead.
	EditOrReplaceMessage(ctx context.Context, chatID, messageID int64, text string) (Message, error)

	FetchMessage(ctx context.Context, chatID, messageID int64) (Message, error)
}
