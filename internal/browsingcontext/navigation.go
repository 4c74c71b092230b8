package browsingcontext

import "github.com/google/uuid"

// NavStatus is the lifecycle state of a Navigation.
type NavStatus string

const (
	NavPending   NavStatus = "pending"
	NavCommitted NavStatus = "committed"
	NavFailed    NavStatus = "failed"
	NavAborted   NavStatus = "aborted"
)

// Navigation is one document navigation within a context, identified by a
// UUID chosen when the document request is first observed.
type Navigation struct {
	ID           string
	ContextID    string
	StartURL     string
	CommittedURL string
	Status       NavStatus
}

// StartNavigation begins a new navigation in ctxID, returning the new
// Navigation and the id of any navigation it preempted (""  if none). A
// preempted navigation is marked aborted; per spec.md §4.6 the caller must
// emit navigationAborted for the preempted id before navigationStarted
// for the new one.
func (r *Registry) StartNavigation(ctxID, startURL string) (nav *Navigation, preemptedID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.navigations[ctxID]; ok && existing.Status == NavPending {
		existing.Status = NavAborted
		preemptedID = existing.ID
	}

	nav = &Navigation{
		ID:        uuid.NewString(),
		ContextID: ctxID,
		StartURL:  startURL,
		Status:    NavPending,
	}
	r.navigations[ctxID] = nav
	return nav, preemptedID
}

// CommitNavigation marks ctxID's current pending navigation committed at
// the given URL. No-op if there is no pending navigation.
func (r *Registry) CommitNavigation(ctxID, committedURL string) *Navigation {
	r.mu.Lock()
	defer r.mu.Unlock()

	nav, ok := r.navigations[ctxID]
	if !ok || nav.Status != NavPending {
		return nil
	}
	nav.Status = NavCommitted
	nav.CommittedURL = committedURL
	if ctx, ok := r.contexts[ctxID]; ok {
		ctx.URL = committedURL
	}
	return nav
}

// FailNavigation marks ctxID's current pending navigation failed.
func (r *Registry) FailNavigation(ctxID string) *Navigation {
	r.mu.Lock()
	defer r.mu.Unlock()

	nav, ok := r.navigations[ctxID]
	if !ok || nav.Status != NavPending {
		return nil
	}
	nav.Status = NavFailed
	return nav
}

// GetNavigationID returns the UUID of ctxID's current navigation, or ""
// if none is tracked (no navigation ever started, or its record was
// cleared).
func (r *Registry) GetNavigationID(ctxID string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	nav, ok := r.navigations[ctxID]
	if !ok {
		return ""
	}
	return nav.ID
}
