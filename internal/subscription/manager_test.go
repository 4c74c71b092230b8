package subscription

import (
	"reflect"
	"testing"
)

func TestSubscribe_ModuleWildcardExpands(t *testing.T) {
	t.Parallel()

	m := NewManager()
	m.Subscribe([]string{"network"}, nil, nil, "ch1")

	for _, evt := range []string{"network.beforeRequestSent", "network.responseStarted", "network.authRequired"} {
		if !m.IsSubscribed(evt, "ctx1") {
			t.Errorf("expected module wildcard to expand to %s", evt)
		}
	}
}

func TestSubscribe_GlobalMatchesAnyContext(t *testing.T) {
	t.Parallel()

	m := NewManager()
	m.Subscribe([]string{"browsingContext.load"}, nil, nil, "ch1")

	if !m.IsSubscribed("browsingContext.load", "any-context") {
		t.Error("expected global subscription to match any context")
	}
	if !m.IsSubscribed("browsingContext.load", "") {
		t.Error("expected global subscription to match the global pair too")
	}
}

func TestSubscribe_ContextScopedDoesNotMatchOtherContexts(t *testing.T) {
	t.Parallel()

	m := NewManager()
	m.Subscribe([]string{"browsingContext.load"}, []string{"ctx1"}, nil, "ch1")

	if !m.IsSubscribed("browsingContext.load", "ctx1") {
		t.Error("expected subscription to match ctx1")
	}
	if m.IsSubscribed("browsingContext.load", "ctx2") {
		t.Error("expected subscription to not match ctx2")
	}
}

func TestChannelsFor_FirstSubscribedFirstOrder(t *testing.T) {
	t.Parallel()

	m := NewManager()
	m.Subscribe([]string{"network.beforeRequestSent"}, nil, nil, "second")
	m.Subscribe([]string{"network.beforeRequestSent"}, nil, nil, "first-added-second-call")
	m.Subscribe([]string{"network.beforeRequestSent"}, nil, nil, "third")

	got := m.ChannelsFor("network.beforeRequestSent", "ctx1")
	want := []string{"second", "first-added-second-call", "third"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestUnsubscribeByID(t *testing.T) {
	t.Parallel()

	m := NewManager()
	id := m.Subscribe([]string{"network.beforeRequestSent"}, nil, nil, "ch1")

	if err := m.UnsubscribeByID(id); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.IsSubscribed("network.beforeRequestSent", "ctx1") {
		t.Error("expected subscription to be removed")
	}
}

func TestUnsubscribeByID_UnknownFails(t *testing.T) {
	t.Parallel()

	m := NewManager()
	if err := m.UnsubscribeByID("nonexistent"); err == nil {
		t.Error("expected error for unknown subscription id")
	}
}

func TestUnsubscribeByAttributes_AtomicFailureLeavesStateUnchanged(t *testing.T) {
	t.Parallel()

	m := NewManager()
	m.Subscribe([]string{"network.beforeRequestSent"}, []string{"ctx1"}, nil, "ch1")

	err := m.UnsubscribeByAttributes([]string{"network.beforeRequestSent"}, []string{"ctx1", "ctx2"}, "ch1")
	if err == nil {
		t.Fatal("expected error since ctx2 has no matching subscription")
	}

	// ctx1's subscription must be untouched.
	if !m.IsSubscribed("network.beforeRequestSent", "ctx1") {
		t.Error("expected ctx1 subscription to survive the failed atomic unsubscribe")
	}
}

func TestUnsubscribeByAttributes_RemovesMatchingPair(t *testing.T) {
	t.Parallel()

	m := NewManager()
	m.Subscribe([]string{"network.beforeRequestSent"}, []string{"ctx1"}, nil, "ch1")

	if err := m.UnsubscribeByAttributes([]string{"network.beforeRequestSent"}, []string{"ctx1"}, "ch1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.IsSubscribed("network.beforeRequestSent", "ctx1") {
		t.Error("expected subscription to be removed")
	}
}

func TestUnsubscribeByAttributes_GlobalPair(t *testing.T) {
	t.Parallel()

	m := NewManager()
	m.Subscribe([]string{"network.beforeRequestSent"}, nil, nil, "ch1")

	if err := m.UnsubscribeByAttributes([]string{"network.beforeRequestSent"}, nil, "ch1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.IsSubscribed("network.beforeRequestSent", "anything") {
		t.Error("expected global subscription to be removed")
	}
}

func TestNestedContextSubscribesEnclosingTopLevel(t *testing.T) {
	t.Parallel()

	// The manager trusts its caller to have already resolved a nested
	// context id to its enclosing top-level id before calling Subscribe;
	// this test documents that contract by subscribing directly to the
	// resolved top-level id and confirming it matches.
	m := NewManager()
	topLevelID := "top1"
	m.Subscribe([]string{"browsingContext.load"}, []string{topLevelID}, nil, "ch1")

	if !m.IsSubscribed("browsingContext.load", topLevelID) {
		t.Error("expected subscription to match the resolved top-level context")
	}
}
