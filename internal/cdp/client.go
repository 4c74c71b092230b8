package cdp

import (
	"context"
	"sync"
)

// Client is a thin handle for issuing commands and subscribing to events
// on one CDP session. The root "browser" client has an empty SessionID.
type Client struct {
	conn      *Connection
	sessionID string

	listeners sync.Map // map[string]*eventHandlers, keyed by CDP method
}

// SessionID returns the CDP session id this client is bound to, or the
// empty string for the root browser client.
func (cl *Client) SessionID() string {
	return cl.sessionID
}

// Send sends a CDP command on this client's session and waits for the
// reply, using DefaultTimeout.
func (cl *Client) Send(method string, params interface{}) ([]byte, error) {
	ctx, cancel := context.WithTimeout(context.Background(), DefaultTimeout)
	defer cancel()
	return cl.SendContext(ctx, method, params)
}

// SendContext sends a CDP command on this client's session with a
// caller-supplied context for cancellation.
func (cl *Client) SendContext(ctx context.Context, method string, params interface{}) ([]byte, error) {
	return cl.conn.sendCommand(ctx, method, params, cl.sessionID)
}

// Subscribe registers a handler for CDP events matching method, scoped
// to this client's session. Multiple handlers may be registered for the
// same method; all are called, in registration order.
func (cl *Client) Subscribe(method string, handler func(Event)) {
	actual, _ := cl.listeners.LoadOrStore(method, &eventHandlers{})
	actual.(*eventHandlers).add(handler)
}

// dispatchEvent calls every handler registered for evt.Method.
func (cl *Client) dispatchEvent(evt Event) {
	if actual, ok := cl.listeners.Load(evt.Method); ok {
		actual.(*eventHandlers).call(evt)
	}
}

// eventHandlers is a thread-safe, ordered list of event handlers for one
// CDP method on one client.
type eventHandlers struct {
	mu       sync.RWMutex
	handlers []func(Event)
}

func (h *eventHandlers) add(handler func(Event)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handlers = append(h.handlers, handler)
}

func (h *eventHandlers) call(evt Event) {
	h.mu.RLock()
	handlers := h.handlers
	h.mu.RUnlock()

	for _, handler := range handlers {
		handler(evt)
	}
}
