// Package command routes chat messages of the form "/name args" to
// registered handlers and publishes their replies.
package command

import (
	"context"
	"errors"
)

// ErrInternal marks handler failures that are bugs rather than operator
// mistakes. The dispatcher logs them and shows the operator a generic notice.
var ErrInternal = errors.New("internal error")

// Handler runs a command. A non-empty returned text becomes the final reply,
// replacing any progress message the handler posted through Respond.
type Handler func(ctx context.Context, c *Context) (string, error)

// Definition describes one command.
type Definition struct {
	Name        string
	Description string
	Usage       string
	Aliases     []string
	Handler     Handler
}
