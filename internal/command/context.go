package command

import (
	"context"
	"sync"

	"github.com/jkaninda/mlinzi/internal/transport"
)

// Incoming is a chat message offered to the dispatcher.
type Incoming struct {
	ChatID    int64
	MessageID int64
	SenderID  int64
	Text      string
}

// Context carries one command invocation.
type Context struct {
	// Name is the command token as typed, without the slash or bot mention.
	Name string
	// Args are the shell-style tokens after the command.
	Args []string
	// Input is the raw text after the command token and its separator.
	Input string
	// Text is the full message text.
	Text string

	ChatID        int64
	MessageID     int64
	SenderID      int64
	CorrelationID string

	client transport.Client

	mu       sync.Mutex
	response *transport.Message
}

// NewContext builds a Context for an incoming message. Dispatch does this;
// it is exported for handlers invoked outside a dispatcher.
func NewContext(client transport.Client, in Incoming, correlationID string) *Context {
	name, input := splitCommand(in.Text)
	return &Context{
		Name:          name,
		Args:          tokenize(input),
		Input:         input,
		Text:          in.Text,
		ChatID:        in.ChatID,
		MessageID:     in.MessageID,
		SenderID:      in.SenderID,
		CorrelationID: correlationID,
		client:        client,
	}
}

// Client returns the transport the command replies through.
func (c *Context) Client() transport.Client {
	return c.client
}

// Respond publishes text as this command's status message. The first call
// sends a new message to the chat; later calls edit that message.
func (c *Context) Respond(ctx context.Context, text string) (transport.Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var (
		msg transport.Message
		err error
	)
	if c.response == nil {
		msg, err = c.client.SendMessage(ctx, c.ChatID, text)
	} else {
		msg, err = c.client.EditOrReplaceMessage(ctx, c.response.ChatID, c.response.ID, text)
	}
	if err != nil {
		return transport.Message{}, err
	}
	c.response = &msg
	return msg, nil
}

// Response returns the current status message, if any was sent.
func (c *Context) Response() (transport.Message, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.response == nil {
		return transport.Message{}, false
	}
	return *c.response, true
}
