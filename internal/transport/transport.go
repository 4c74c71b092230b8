// Package transport implements the three ways a BiDi session can carry
// messages to and from a client: a WebSocket server bound to a host:port,
// a NUL-framed OS pipe over stdin/stdout, and a mapper-hosted binding
// pair. All three satisfy Transport so the session layer is agnostic to
// which one is in play (spec.md §6).
package transport

import "context"

// Transport is a bidirectional channel for one BiDi session's raw JSON
// messages. Send and Receive are safe to call concurrently with each
// other. Send may be called from several goroutines at once (the event
// loop delivering events and each command goroutine sending its reply);
// Receive is called by one goroutine at a time (the session's command
// reader).
type Transport interface {
	// Send writes one JSON message to the client.
	Send(ctx context.Context, message []byte) error

	// Receive blocks until the next client message arrives, the
	// transport closes, or ctx is done.
	Receive(ctx context.Context) ([]byte, error)

	// Close tears down the transport. Safe to call more than once.
	Close() error
}

// LaunchedSentinel is the message the mapper-hosted binding mode sends
// once the browser has launched, per spec.md §6's two-binding contract.
const LaunchedSentinel = "launched"
