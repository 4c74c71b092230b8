package cdp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
)

// DefaultTimeout is the default timeout for CDP commands.
const DefaultTimeout = 30 * time.Second

// ErrClosed is returned by any pending or future command once the
// connection has closed, per spec.md's "closed" internal error kind.
var ErrClosed = errors.New("cdp connection closed")

// pendingCmd tracks one in-flight command so it can be resolved by id
// or rejected in bulk when its session detaches or the connection closes.
type pendingCmd struct {
	sessionID string
	respCh    chan *Response
}

// Connection multiplexes a single transport among many logical CDP
// sessions. There is always exactly one root "browser" Client with no
// session id; per-target sessions are created on Target.attachedToTarget
// and torn down on Target.detachedFromTarget.
type Connection struct {
	conn    Conn
	writeMu sync.Mutex
	msgID   atomic.Int64

	pending  sync.Map // map[int64]*pendingCmd
	sessions sync.Map // map[string]*Client, keyed by sessionId

	browser *Client

	closed   atomic.Bool
	closedCh chan struct{}
	closeErr error
	closeMu  sync.Mutex

	done chan struct{}
}

// NewConnection creates a Connection over the given transport and starts
// its read loop. The returned connection is terminal on transport error —
// there is no reconnect.
func NewConnection(conn Conn) *Connection {
	c := &Connection{
		conn:     conn,
		closedCh: make(chan struct{}),
		done:     make(chan struct{}),
	}
	c.browser = &Client{conn: c, sessionID: ""}
	go c.readLoop()
	return c
}

// Dial connects to a CDP endpoint and returns a new Connection.
func Dial(ctx context.Context, wsURL string) (*Connection, error) {
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to CDP endpoint: %w", err)
	}
	return NewConnection(conn), nil
}

// BrowserClient returns the root client, which has no session id and
// receives every session-less event (notably Target.* events).
func (c *Connection) BrowserClient() *Client {
	return c.browser
}

// ClientForSession returns the client attached to the given session id,
// or false if no such session is currently attached.
func (c *Connection) ClientForSession(sessionID string) (*Client, bool) {
	v, ok := c.sessions.Load(sessionID)
	if !ok {
		return nil, false
	}
	return v.(*Client), true
}

// Close closes the connection and the underlying transport. All pending
// commands, on any session, are rejected with ErrClosed exactly once.
func (c *Connection) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	close(c.closedCh)

	c.closeMu.Lock()
	err := c.conn.Close(websocket.StatusNormalClosure, "connection closing")
	c.closeMu.Unlock()

	<-c.done

	c.rejectAllPending(ErrClosed)

	return err
}

// Err returns the error that caused the connection to close, if any.
func (c *Connection) Err() error {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()
	return c.closeErr
}

// sendCommand assigns a monotonic id, writes the command to the
// transport, and blocks until a matching reply arrives, the context is
// done, or the connection closes.
func (c *Connection) sendCommand(ctx context.Context, method string, params interface{}, sessionID string) (json.RawMessage, error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}

	id := c.msgID.Add(1)
	req := Request{
		ID:        id,
		Method:    method,
		Params:    params,
		SessionID: sessionID,
	}

	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	respCh := make(chan *Response, 1)
	c.pending.Store(id, &pendingCmd{sessionID: sessionID, respCh: respCh})
	defer c.pending.Delete(id)

	c.writeMu.Lock()
	err = c.conn.Write(ctx, websocket.MessageText, data)
	c.writeMu.Unlock()
	if err != nil {
		if c.closed.Load() {
			return nil, ErrClosed
		}
		return nil, fmt.Errorf("failed to send request: %w", err)
	}

	select {
	case resp := <-respCh:
		if resp.Error != nil {
			return nil, resp.Error
		}
		return resp.Result, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("request timed out: %w", ctx.Err())
	case <-c.closedCh:
		return nil, ErrClosed
	}
}

// readLoop reads frames from the transport and dispatches them as
// replies or events until the transport errors or the connection closes.
func (c *Connection) readLoop() {
	defer close(c.done)

	ctx := context.Background()
	for {
		_, data, err := c.conn.Read(ctx)
		if err != nil {
			if !c.closed.Load() {
				c.closeMu.Lock()
				c.closeErr = err
				c.closeMu.Unlock()
				c.closed.Store(true)
				close(c.closedCh)
			}
			return
		}

		resp, evt, err := parseMessage(data)
		if err != nil {
			continue // malformed frame, drop per spec's "unknown ids dropped silently" spirit
		}

		if resp != nil {
			c.dispatchResponse(resp)
		} else if evt != nil {
			c.dispatchEvent(evt)
		}
	}
}

// dispatchResponse resolves the pending command matching resp.ID, if any.
// Unknown ids are dropped silently, matching §4.1.
func (c *Connection) dispatchResponse(resp *Response) {
	v, ok := c.pending.LoadAndDelete(resp.ID)
	if !ok {
		return
	}
	pc := v.(*pendingCmd)
	select {
	case pc.respCh <- resp:
	default:
	}
}

// dispatchEvent routes an event to its target client, handling the two
// Target lifecycle events specially before normal routing.
func (c *Connection) dispatchEvent(evt *Event) {
	switch evt.Method {
	case "Target.attachedToTarget":
		var params targetAttachedParams
		if err := json.Unmarshal(evt.Params, &params); err == nil && params.SessionID != "" {
			c.sessions.Store(params.SessionID, &Client{conn: c, sessionID: params.SessionID})
		}
	case "Target.detachedFromTarget":
		var params targetDetachedParams
		if err := json.Unmarshal(evt.Params, &params); err == nil && params.SessionID != "" {
			c.rejectPendingForSession(params.SessionID, ErrClosed)
			c.sessions.Delete(params.SessionID)
		}
	}

	var target *Client
	if evt.SessionID == "" {
		target = c.browser
	} else {
		v, ok := c.sessions.Load(evt.SessionID)
		if !ok {
			return // unknown session id: drop the event
		}
		target = v.(*Client)
	}
	target.dispatchEvent(*evt)
}

// rejectPendingForSession resolves every pending command issued on the
// given session with err. Used when a session detaches.
func (c *Connection) rejectPendingForSession(sessionID string, err error) {
	c.pending.Range(func(key, value any) bool {
		pc := value.(*pendingCmd)
		if pc.sessionID != sessionID {
			return true
		}
		c.pending.Delete(key)
		select {
		case pc.respCh <- &Response{Error: &Error{Message: err.Error()}}:
		default:
		}
		return true
	})
}

// rejectAllPending resolves every remaining pending command with err.
// Called once, from Close, after the read loop has exited.
func (c *Connection) rejectAllPending(err error) {
	c.pending.Range(func(key, value any) bool {
		pc := value.(*pendingCmd)
		c.pending.Delete(key)
		select {
		case pc.respCh <- &Response{Error: &Error{Message: err.Error()}}:
		default:
		}
		return true
	})
}
