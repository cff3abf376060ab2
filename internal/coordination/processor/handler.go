// Package processor provides the command handler chain of the coordination
// engine. Middleware wraps the engine's decide-and-apply handler to add
// logging, tracing, slow-command warnings and deduplication.
package processor

import (
	"context"

	"github.com/impel-dev/impel/internal/coordination/command"
)

// CommandHandler executes a command.
type CommandHandler interface {
	Handle(ctx context.Context, cmd command.Command) (*command.Result, error)
}

// HandlerFunc adapts a function to CommandHandler.
type HandlerFunc func(ctx context.Context, cmd command.Command) (*command.Result, error)

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, cmd command.Command) (*command.Result, error) {
	return f(ctx, cmd)
}

// Middleware wraps a CommandHandler to add additional behavior.
// Middleware functions are composed using ChainMiddleware.
type Middleware func(CommandHandler) CommandHandler

// ChainMiddleware applies middlewares to a handler in reverse order.
// The first middleware in the list will be the outermost wrapper.
// For example: ChainMiddleware(handler, logging, dedup, timeout)
// Results in: logging(dedup(timeout(handler)))
func ChainMiddleware(handler CommandHandler, middlewares ...Middleware) CommandHandler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		handler = middlewares[i](handler)
	}
	return handler
}
