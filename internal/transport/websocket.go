package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"

	"github.com/coder/websocket"
)

// WebSocketServer listens on a host:port and treats each inbound
// connection, on any path, as one BiDi session. Modeled on the
// accept-loop/closed-channel shutdown idiom the teacher uses for its own
// local IPC server, adapted to serve WebSocket upgrades instead of a Unix
// socket.
type WebSocketServer struct {
	listener net.Listener
	srv      *http.Server

	mu       sync.Mutex
	sessions chan *wsSession

	closed    chan struct{}
	closeOnce sync.Once
}

// NewWebSocketServer binds addr (host:port) and starts accepting HTTP
// upgrade requests in the background. Each accepted connection is handed
// to the caller via Accept.
func NewWebSocketServer(addr string) (*WebSocketServer, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", addr, err)
	}

	s := &WebSocketServer{
		listener: ln,
		sessions: make(chan *wsSession, 8),
		closed:   make(chan struct{}),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/session", s.handleUpgrade)
	mux.HandleFunc("/", s.handleUpgrade)
	s.srv = &http.Server{Handler: mux}

	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			select {
			case <-s.closed:
			default:
			}
		}
	}()

	return s, nil
}

// Addr returns the bound listener address, useful when addr was ":0".
func (s *WebSocketServer) Addr() string {
	return s.listener.Addr().String()
}

func (s *WebSocketServer) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		return
	}

	session := &wsSession{conn: conn, closed: make(chan struct{})}
	select {
	case s.sessions <- session:
	case <-s.closed:
		_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
	}
}

// Accept blocks until a client connects, returning a Transport for that
// connection, or an error once the server is closed.
func (s *WebSocketServer) Accept(ctx context.Context) (Transport, error) {
	select {
	case session := <-s.sessions:
		return session, nil
	case <-s.closed:
		return nil, ErrServerClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close stops accepting new connections and shuts down the listener.
func (s *WebSocketServer) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.closed)
		err = s.srv.Close()
	})
	return err
}

// ErrServerClosed is returned by Accept once the server has closed.
var ErrServerClosed = errors.New("transport: websocket server closed")

// wsSession adapts a single *websocket.Conn into a Transport.
type wsSession struct {
	conn      *websocket.Conn
	closeOnce sync.Once
	closed    chan struct{}
}

func (c *wsSession) Send(ctx context.Context, message []byte) error {
	return c.conn.Write(ctx, websocket.MessageText, message)
}

func (c *wsSession) Receive(ctx context.Context) ([]byte, error) {
	_, data, err := c.conn.Read(ctx)
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (c *wsSession) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		err = c.conn.Close(websocket.StatusNormalClosure, "session closing")
	})
	return err
}
