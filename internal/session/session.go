// Package session ties the transport, the CDP connection, the registries
// (browsing context, subscription, event), and the command processors
// together into one running translator, the way internal/daemon.Daemon
// ties together the browser, the CDP client, and the IPC server.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/grantcarthew/bidictl/internal/bidievent"
	"github.com/grantcarthew/bidictl/internal/bidiproto"
	"github.com/grantcarthew/bidictl/internal/browser"
	"github.com/grantcarthew/bidictl/internal/browsingcontext"
	"github.com/grantcarthew/bidictl/internal/cdp"
	"github.com/grantcarthew/bidictl/internal/log"
	"github.com/grantcarthew/bidictl/internal/network"
	"github.com/grantcarthew/bidictl/internal/subscription"
	"github.com/grantcarthew/bidictl/internal/transport"
)

// Config holds session configuration.
type Config struct {
	Headless bool
	Port     int
}

// cdpEvent is one CDP notification queued for the event-loop goroutine.
type cdpEvent struct {
	sessionID string
	method    string
	params    json.RawMessage
}

// Session is one running instance of the translator: one transport
// connection, one CDP connection, and the registries/processors wired
// to it. Shared stores (contexts, subs, events, tracker) guard
// themselves; Session additionally owns the CDP event-ingestion
// ordering and the pending-result bookkeeping for commands that park
// waiting on a future CDP event.
type Session struct {
	cfg       Config
	transport transport.Transport
	log       *log.Logger

	browser *browser.Browser
	cdp     *cdp.Connection

	contexts *browsingcontext.Registry
	subs     *subscription.Manager
	events   *bidievent.Manager
	tracker  *network.Tracker
	router   *bidiproto.Router

	cdpEvents chan cdpEvent

	pendingMu        sync.Mutex
	pendingCreates   map[string]chan string   // targetId -> contextId
	pendingDOMLoaded map[string]chan struct{} // sessionId -> domContentEventFired signal
	pendingLoaded    map[string]chan struct{} // sessionId -> loadEventFired signal

	shutdown     chan struct{}
	shutdownOnce sync.Once
}

// New constructs a Session bound to transport t. The CDP connection and
// browser process are not started until Run.
func New(cfg Config, t transport.Transport, logger *log.Logger) *Session {
	s := &Session{
		cfg:            cfg,
		transport:      t,
		log:            logger,
		contexts:       browsingcontext.NewRegistry(),
		subs:           subscription.NewManager(),
		router:         bidiproto.NewRouter(),
		cdpEvents:        make(chan cdpEvent, 256),
		pendingCreates:   make(map[string]chan string),
		pendingDOMLoaded: make(map[string]chan struct{}),
		pendingLoaded:    make(map[string]chan struct{}),
		shutdown:         make(chan struct{}),
	}
	s.events = bidievent.NewManager(s.subs.ChannelsFor, s.deliverEvent)
	return s
}

// deliverEvent marshals and sends one BiDi event notification, the
// bidievent.Deliverer callback.
func (s *Session) deliverEvent(method string, params interface{}, channel string) {
	data, err := json.Marshal(bidiproto.NewEvent(method, params, channel))
	if err != nil {
		s.log.Errorf("session", "failed to marshal event %s: %v", method, err)
		return
	}
	if err := s.transport.Send(context.Background(), data); err != nil {
		s.log.Debugf("session", "failed to deliver event %s: %v", method, err)
	}
}

// Run launches the browser, dials its CDP endpoint, registers every
// command processor, and blocks serializing CDP event ingestion until
// ctx is cancelled, the transport closes, or a session.end command
// fires. Mirrors the shape of internal/daemon.Daemon.Run, minus the PID
// file and REPL.
func (s *Session) Run(ctx context.Context) error {
	b, err := browser.Start(browser.LaunchOptions{
		Port:     s.cfg.Port,
		Headless: s.cfg.Headless,
	})
	if err != nil {
		return fmt.Errorf("failed to start browser: %w", err)
	}
	s.browser = b
	defer s.browser.Close()

	version, err := b.Version(ctx)
	if err != nil {
		return fmt.Errorf("failed to get browser version: %w", err)
	}

	conn, err := cdp.Dial(ctx, version.WebSocketURL)
	if err != nil {
		return fmt.Errorf("failed to connect to CDP: %w", err)
	}
	s.cdp = conn
	defer s.cdp.Close()

	s.tracker = network.NewTracker(s.subs, s.events, s.contexts, &cdpSender{conn}, s.log)
	s.registerProcessors()
	s.subscribeTargetEvents()

	if _, err := conn.BrowserClient().Send("Target.setDiscoverTargets", map[string]interface{}{"discover": true}); err != nil {
		return fmt.Errorf("failed to set discover targets: %w", err)
	}
	if _, err := conn.BrowserClient().Send("Target.setAutoAttach", map[string]interface{}{
		"autoAttach":             true,
		"flatten":                true,
		"waitForDebuggerOnStart": true,
	}); err != nil {
		return fmt.Errorf("failed to enable auto-attach: %w", err)
	}

	cmdCh := make(chan []byte)
	recvErrCh := make(chan error, 1)
	go s.readCommands(ctx, cmdCh, recvErrCh)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.shutdown:
			return nil
		case err := <-recvErrCh:
			return err
		case msg := <-cmdCh:
			go s.handleCommand(ctx, msg)
		case evt := <-s.cdpEvents:
			s.handleCDPEvent(evt)
		}
	}
}

// readCommands feeds every inbound transport frame onto cmdCh until the
// transport errors or the session shuts down.
func (s *Session) readCommands(ctx context.Context, cmdCh chan<- []byte, errCh chan<- error) {
	for {
		msg, err := s.transport.Receive(ctx)
		if err != nil {
			errCh <- err
			return
		}
		select {
		case cmdCh <- msg:
		case <-s.shutdown:
			return
		case <-ctx.Done():
			return
		}
	}
}

// handleCommand parses, dispatches, and replies to one inbound BiDi
// command. Runs on its own goroutine per command so a command parked
// waiting on a future CDP event never blocks the event loop or sibling
// commands.
func (s *Session) handleCommand(ctx context.Context, raw []byte) {
	cmd, err := bidiproto.ParseCommand(raw)
	if err != nil {
		resp := bidiproto.NewParseErrorResponse(bidiproto.ErrInvalidArgument, err.Error())
		s.send(resp)
		return
	}

	cctx := withChannel(ctx, cmd.Channel)
	result, err := s.router.Dispatch(cctx, cmd)
	if err != nil {
		kind := bidiproto.ErrUnknownError
		msg := err.Error()
		if bidiErr, ok := err.(*bidiproto.Error); ok {
			kind = bidiErr.Kind
			msg = bidiErr.Message
		}
		s.send(bidiproto.NewErrorResponse(cmd.ID, kind, msg, cmd.Channel))
		return
	}
	s.send(bidiproto.NewSuccessResponse(cmd.ID, result, cmd.Channel))
}

func (s *Session) send(v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		s.log.Errorf("session", "failed to marshal response: %v", err)
		return
	}
	if err := s.transport.Send(context.Background(), data); err != nil {
		s.log.Debugf("session", "failed to send response: %v", err)
	}
}

// cdpSender adapts a *cdp.Connection into network.CDPSender, resolving
// sessionID to the session's Client (or the browser client for "").
type cdpSender struct {
	conn *cdp.Connection
}

func (c *cdpSender) Send(sessionID, method string, params interface{}) ([]byte, error) {
	client := c.conn.BrowserClient()
	if sessionID != "" {
		cl, ok := c.conn.ClientForSession(sessionID)
		if !ok {
			return nil, fmt.Errorf("cdp: no client for session %s", sessionID)
		}
		client = cl
	}
	return client.Send(method, params)
}

// Close signals Run to stop, unblocking every parked command with
// ErrClosed. Safe to call more than once and from any goroutine.
func (s *Session) Close() {
	s.shutdownOnce.Do(func() { close(s.shutdown) })
}

// newContextID mints a BiDi browsing context id. Distinct from the CDP
// session id: a context outlives the CDP session only in the sense that
// its id is never reused, not that it is independently addressable.
func newContextID() string {
	return uuid.NewString()
}
