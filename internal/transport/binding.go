package transport

import (
	"context"
	"errors"
	"sync"
)

// Binding is the mapper-hosted transport variant: messages leave via an
// injected send callback (the host's `sendBidiResponse` binding) and
// arrive via Deliver, fed by the host's `window.onBidiMessage` binding.
// Actual page-binding plumbing is host-specific and out of this repo's
// control; this type only defines the Transport contract plus the
// LaunchedSentinel constant the host sends once the browser is up.
type Binding struct {
	send func(ctx context.Context, message []byte) error

	inbox     chan []byte
	closed    chan struct{}
	closeOnce sync.Once
}

// NewBinding wraps send (the host's outbound binding call) as a
// Transport. Call Deliver for every inbound message the host's
// window.onBidiMessage binding receives.
func NewBinding(send func(ctx context.Context, message []byte) error) *Binding {
	return &Binding{
		send:   send,
		inbox:  make(chan []byte, 32),
		closed: make(chan struct{}),
	}
}

// Deliver feeds one inbound message to Receive. Called by the host's
// onBidiMessage handler, not by the session's own goroutines.
func (b *Binding) Deliver(message []byte) {
	select {
	case b.inbox <- message:
	case <-b.closed:
	}
}

func (b *Binding) Send(ctx context.Context, message []byte) error {
	return b.send(ctx, message)
}

func (b *Binding) Receive(ctx context.Context) ([]byte, error) {
	select {
	case msg := <-b.inbox:
		return msg, nil
	case <-b.closed:
		return nil, errBindingClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (b *Binding) Close() error {
	b.closeOnce.Do(func() { close(b.closed) })
	return nil
}

var errBindingClosed = errors.New("transport: binding closed")
