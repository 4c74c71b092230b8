package bidiproto

import (
	"context"
	"encoding/json"
)

// Handler executes one BiDi command and returns its result payload, or a
// BiDi *Error (prefer bidiproto.NewError so ErrorKind is preserved).
type Handler func(ctx context.Context, params json.RawMessage) (interface{}, error)

// Router dispatches commands to the processor that registered their
// method name. A method absent from the table is "unknown command",
// per spec's error taxonomy, regardless of which module it looks like
// it belongs to.
type Router struct {
	handlers map[string]Handler
}

// NewRouter returns an empty Router.
func NewRouter() *Router {
	return &Router{handlers: make(map[string]Handler)}
}

// Register binds method to handler. Re-registering a method overwrites
// the previous binding; processors should register exactly once at
// session construction.
func (r *Router) Register(method string, handler Handler) {
	r.handlers[method] = handler
}

// Dispatch looks up the handler for cmd.Method and invokes it.
func (r *Router) Dispatch(ctx context.Context, cmd *Command) (interface{}, error) {
	handler, ok := r.handlers[cmd.Method]
	if !ok {
		return nil, NewError(ErrUnknownCommand, "no handler registered for method "+cmd.Method)
	}
	return handler(ctx, cmd.Params)
}
