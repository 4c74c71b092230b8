package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/grantcarthew/bidictl/internal/log"
)

// TestMain verifies no goroutine started by a test in this package
// outlives it — the two-tier concurrency model (§5) spawns a goroutine
// per inbound command, so a leak here usually means a command handler
// is blocked on a channel nothing will ever signal.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestNewDoesNotStartAnyGoroutine(t *testing.T) {
	s := New(Config{}, &fakeTransport{}, log.New(false))
	s.Close()
	s.Close() // Close must be idempotent
}

// TestReadCommandsStopsOnContextCancel confirms readCommands exits once
// the transport's blocking Receive unblocks via ctx cancellation; it does
// not itself watch s.shutdown until Receive has already returned, since
// a real Transport.Receive can only be interrupted through ctx.
func TestReadCommandsStopsOnContextCancel(t *testing.T) {
	ft := &fakeTransport{}
	s := New(Config{}, ft, log.New(false))

	ctx, cancel := context.WithCancel(context.Background())
	cmdCh := make(chan []byte)
	errCh := make(chan error, 1)
	done := make(chan struct{})
	go func() {
		s.readCommands(ctx, cmdCh, errCh)
		close(done)
	}()

	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("expected readCommands to return once its context is cancelled")
	}
}

func TestHandleCommandUnknownMethodReturnsError(t *testing.T) {
	ft := &fakeTransport{}
	s := New(Config{}, ft, log.New(false))

	raw := []byte(`{"id":1,"method":"bogus.method","params":{}}`)
	s.handleCommand(context.Background(), raw)

	msgs := ft.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "unknown command", msgs[0]["error"])
}
