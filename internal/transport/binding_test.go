package transport

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestBinding_SendInvokesCallback(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	var got []byte
	b := NewBinding(func(ctx context.Context, message []byte) error {
		mu.Lock()
		defer mu.Unlock()
		got = message
		return nil
	})

	if err := b.Send(context.Background(), []byte("hello")); err != nil {
		t.Fatalf("Send: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if string(got) != "hello" {
		t.Errorf("expected callback to receive %q, got %q", "hello", got)
	}
}

func TestBinding_DeliverFeedsReceive(t *testing.T) {
	t.Parallel()

	b := NewBinding(func(ctx context.Context, message []byte) error { return nil })
	b.Deliver([]byte("inbound"))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	msg, err := b.Receive(ctx)
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if string(msg) != "inbound" {
		t.Errorf("expected %q, got %q", "inbound", msg)
	}
}

func TestBinding_ReceiveUnblocksOnClose(t *testing.T) {
	t.Parallel()

	b := NewBinding(func(ctx context.Context, message []byte) error { return nil })

	done := make(chan error, 1)
	go func() {
		_, err := b.Receive(context.Background())
		done <- err
	}()

	if err := b.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	select {
	case err := <-done:
		if err == nil {
			t.Error("expected Receive to return an error once closed")
		}
	case <-time.After(time.Second):
		t.Fatal("Receive did not unblock after Close")
	}
}

func TestBinding_CloseIsIdempotent(t *testing.T) {
	t.Parallel()

	b := NewBinding(func(ctx context.Context, message []byte) error { return nil })
	if err := b.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := b.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}
