package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grantcarthew/bidictl/internal/log"
)

func newTestSession() *Session {
	return New(Config{}, nil, log.New(false))
}

func TestPendingCreateResolvesOnce(t *testing.T) {
	s := newTestSession()

	ch := s.registerPendingCreate("target-1")

	got, ok := s.takePendingCreate("target-1")
	require.True(t, ok, "expected pending create to be found")
	got <- "context-1"

	select {
	case ctxID := <-ch:
		assert.Equal(t, "context-1", ctxID)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for resolved context id")
	}

	_, ok = s.takePendingCreate("target-1")
	assert.False(t, ok, "expected second take to find nothing, the slot was already consumed")
}

func TestPendingCreateAbandon(t *testing.T) {
	s := newTestSession()
	s.registerPendingCreate("target-2")
	s.abandonPendingCreate("target-2")

	_, ok := s.takePendingCreate("target-2")
	assert.False(t, ok, "expected abandoned pending create to be gone")
}

func TestDOMWaitSignalDelivers(t *testing.T) {
	s := newTestSession()
	ch := s.registerDOMWait("sess-1")
	s.signalDOMLoaded("sess-1")

	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for DOM-loaded signal")
	}
}

func TestDOMWaitClearPreventsLateSignal(t *testing.T) {
	s := newTestSession()
	s.registerDOMWait("sess-2")
	s.clearDOMWait("sess-2")

	// signalDOMLoaded after clear must not panic or block, and the
	// channel it would have sent on is no longer registered.
	s.signalDOMLoaded("sess-2")
}

func TestLoadWaitSignalDelivers(t *testing.T) {
	s := newTestSession()
	ch := s.registerLoadWait("sess-3")
	s.signalLoaded("sess-3")

	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for load signal")
	}
}
