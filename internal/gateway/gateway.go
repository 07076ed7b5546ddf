// Package gateway defines the interface for the bot's long-running entry
// points (the Telegram poller and the ops HTTP server).
package gateway

import "context"

// Gateway is a long-running entry point.
type Gateway interface {
	// Start runs the gateway and blocks until it exits or the context is
	// canceled. Returns an error only on failure.
	Start(ctx context.Context) error

	// Stop performs graceful shutdown. The context carries a deadline
	// for the grace period. In-flight work should drain before returning.
	Stop(ctx context.Context) error
}
