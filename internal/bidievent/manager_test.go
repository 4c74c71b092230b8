package bidievent

import (
	"reflect"
	"testing"
)

func allChannels(method, contextID string) []string {
	return []string{"ch1"}
}

func TestEnqueue_DeliversImmediately(t *testing.T) {
	t.Parallel()

	var delivered []string
	m := NewManager(allChannels, func(method string, params interface{}, channel string) {
		delivered = append(delivered, method)
	})

	m.Enqueue("ctx1", "browsingContext.load", nil)
	if !reflect.DeepEqual(delivered, []string{"browsingContext.load"}) {
		t.Errorf("got %v", delivered)
	}
}

func TestEnqueuePromise_PreservesRegistrationOrderOnLateResolve(t *testing.T) {
	t.Parallel()

	var delivered []string
	m := NewManager(allChannels, func(method string, params interface{}, channel string) {
		delivered = append(delivered, method)
	})

	p := m.EnqueuePromise("ctx1")
	m.Enqueue("ctx1", "network.responseStarted", nil) // queued behind the still-pending promise

	if len(delivered) != 0 {
		t.Fatalf("expected nothing delivered yet, got %v", delivered)
	}

	p.Resolve("network.beforeRequestSent", nil)

	want := []string{"network.beforeRequestSent", "network.responseStarted"}
	if !reflect.DeepEqual(delivered, want) {
		t.Errorf("got %v, want %v", delivered, want)
	}
}

func TestPromise_DropFreesSlotWithoutEmitting(t *testing.T) {
	t.Parallel()

	var delivered []string
	m := NewManager(allChannels, func(method string, params interface{}, channel string) {
		delivered = append(delivered, method)
	})

	p := m.EnqueuePromise("ctx1")
	m.Enqueue("ctx1", "network.responseCompleted", nil)

	p.Drop()

	want := []string{"network.responseCompleted"}
	if !reflect.DeepEqual(delivered, want) {
		t.Errorf("got %v, want %v", delivered, want)
	}
}

func TestEnqueue_PerContextOrderingIndependentAcrossContexts(t *testing.T) {
	t.Parallel()

	delivered := map[string][]string{}
	m := NewManager(allChannels, func(method string, params interface{}, channel string) {
		ctx, _ := params.(string)
		delivered[ctx] = append(delivered[ctx], method)
	})

	m.Enqueue("ctx1", "a", "ctx1")
	m.Enqueue("ctx2", "b", "ctx2")
	m.Enqueue("ctx1", "c", "ctx1")

	if !reflect.DeepEqual(delivered["ctx1"], []string{"a", "c"}) {
		t.Errorf("ctx1 order wrong: %v", delivered["ctx1"])
	}
	if !reflect.DeepEqual(delivered["ctx2"], []string{"b"}) {
		t.Errorf("ctx2 order wrong: %v", delivered["ctx2"])
	}
}

func TestRegisterSubscribeHook_ReplaysOnNotify(t *testing.T) {
	t.Parallel()

	m := NewManager(allChannels, func(method string, params interface{}, channel string) {})

	var replayedChannels []string
	m.RegisterSubscribeHook("browsingContext.contextCreated", func(channel string) {
		replayedChannels = append(replayedChannels, channel)
	})

	m.NotifySubscribed("browsingContext.contextCreated", "late-subscriber")

	if !reflect.DeepEqual(replayedChannels, []string{"late-subscriber"}) {
		t.Errorf("got %v", replayedChannels)
	}
}

func TestTrackContext_KnownContexts(t *testing.T) {
	t.Parallel()

	m := NewManager(allChannels, func(method string, params interface{}, channel string) {})
	m.TrackContext("ctx1")
	m.TrackContext("ctx2")

	known := m.KnownContexts()
	if len(known) != 2 {
		t.Fatalf("expected 2 known contexts, got %v", known)
	}

	m.UntrackContext("ctx1")
	known = m.KnownContexts()
	if len(known) != 1 || known[0] != "ctx2" {
		t.Errorf("expected only ctx2 to remain, got %v", known)
	}
}

func TestMultiplePromises_ResolveOutOfOrderStillOrdersOutput(t *testing.T) {
	t.Parallel()

	var delivered []string
	m := NewManager(allChannels, func(method string, params interface{}, channel string) {
		delivered = append(delivered, method)
	})

	p1 := m.EnqueuePromise("ctx1")
	p2 := m.EnqueuePromise("ctx1")

	// Resolve p2 first; nothing should flush since p1 is still pending.
	p2.Resolve("second", nil)
	if len(delivered) != 0 {
		t.Fatalf("expected no delivery before p1 resolves, got %v", delivered)
	}

	p1.Resolve("first", nil)
	want := []string{"first", "second"}
	if !reflect.DeepEqual(delivered, want) {
		t.Errorf("got %v, want %v", delivered, want)
	}
}
