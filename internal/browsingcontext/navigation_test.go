package browsingcontext

import "testing"

func TestStartNavigation_AssignsUUID(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	r.CreateContext("ctx1", "", "", "t1", "s1")

	nav, preempted := r.StartNavigation("ctx1", "https://example.com")
	if preempted != "" {
		t.Errorf("expected no preemption on first navigation, got %q", preempted)
	}
	if nav.ID == "" {
		t.Error("expected a non-empty navigation id")
	}
	if nav.Status != NavPending {
		t.Errorf("expected pending status, got %q", nav.Status)
	}
	if got := r.GetNavigationID("ctx1"); got != nav.ID {
		t.Errorf("expected GetNavigationID to return %q, got %q", nav.ID, got)
	}
}

func TestStartNavigation_PreemptsPending(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	r.CreateContext("ctx1", "", "", "t1", "s1")

	first, _ := r.StartNavigation("ctx1", "https://a.example")
	second, preempted := r.StartNavigation("ctx1", "https://b.example")

	if preempted != first.ID {
		t.Errorf("expected first navigation %q to be preempted, got %q", first.ID, preempted)
	}
	if second.ID == first.ID {
		t.Error("expected a distinct id for the new navigation")
	}
	if got := r.GetNavigationID("ctx1"); got != second.ID {
		t.Errorf("expected current navigation to be the second one, got %q", got)
	}
}

func TestCommitNavigation(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	r.CreateContext("ctx1", "", "", "t1", "s1")
	nav, _ := r.StartNavigation("ctx1", "https://example.com")

	committed := r.CommitNavigation("ctx1", "https://example.com/")
	if committed == nil || committed.Status != NavCommitted {
		t.Fatalf("expected committed navigation, got %+v", committed)
	}
	if committed.ID != nav.ID {
		t.Errorf("expected same navigation id, got %q vs %q", committed.ID, nav.ID)
	}

	ctx, _ := r.Get("ctx1")
	if ctx.URL != "https://example.com/" {
		t.Errorf("expected context URL updated, got %q", ctx.URL)
	}
}

func TestFailNavigation(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	r.CreateContext("ctx1", "", "", "t1", "s1")
	r.StartNavigation("ctx1", "https://example.com")

	failed := r.FailNavigation("ctx1")
	if failed == nil || failed.Status != NavFailed {
		t.Fatalf("expected failed navigation, got %+v", failed)
	}
}

func TestCommitNavigation_NoPendingNavigationIsNoOp(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	r.CreateContext("ctx1", "", "", "t1", "s1")

	if got := r.CommitNavigation("ctx1", "https://example.com"); got != nil {
		t.Errorf("expected nil when no pending navigation, got %+v", got)
	}
}

func TestGetNavigationID_UnknownContext(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	if got := r.GetNavigationID("nonexistent"); got != "" {
		t.Errorf("expected empty string, got %q", got)
	}
}
