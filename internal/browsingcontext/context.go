// Package browsingcontext tracks the BiDi browsing-context tree and
// per-context navigation state as driven by CDP target and page-lifecycle
// events. It exposes exactly the contracts spec.md §4.6 names as consumed
// by the network tracker and the browsing-context processor:
// findTopLevelContextId, getNavigationId, onTargetAttached/onTargetDetached.
package browsingcontext

import "sync"

// Context is one BiDi browsing context: a browser frame, tied 1:1 to a
// CDP target for top-level contexts (nested frames share their top-level
// context's CDP session).
type Context struct {
	ID            string
	ParentID      string // "" for a top-level context
	UserContextID string
	TargetID      string
	SessionID     string
	URL           string
	Children      []string
}

// IsTopLevel reports whether c has no parent.
func (c *Context) IsTopLevel() bool {
	return c.ParentID == ""
}

// Registry owns the context tree, the target/session index, and the
// per-context navigation state. Like every piece of session state, it is
// mutated only from the event-loop goroutine (spec.md §5) and so needs no
// internal locking for that traffic; the mutex here guards against the
// rare cross-goroutine read (e.g. a CDP body-fetch goroutine consulting
// FindTopLevelContextID) rather than true concurrent writers.
type Registry struct {
	mu               sync.Mutex
	contexts         map[string]*Context
	targetToContext  map[string]string
	sessionToContext map[string]string
	navigations      map[string]*Navigation
}

// NewRegistry returns an empty context registry.
func NewRegistry() *Registry {
	return &Registry{
		contexts:         make(map[string]*Context),
		targetToContext:  make(map[string]string),
		sessionToContext: make(map[string]string),
		navigations:      make(map[string]*Navigation),
	}
}

// CreateContext registers a new context and indexes it by target and
// session id. parentID is "" for a top-level context.
func (r *Registry) CreateContext(id, parentID, userContextID, targetID, sessionID string) *Context {
	r.mu.Lock()
	defer r.mu.Unlock()

	ctx := &Context{
		ID:            id,
		ParentID:      parentID,
		UserContextID: userContextID,
		TargetID:      targetID,
		SessionID:     sessionID,
	}
	r.contexts[id] = ctx
	if targetID != "" {
		r.targetToContext[targetID] = id
	}
	if sessionID != "" {
		r.sessionToContext[sessionID] = id
	}
	if parentID != "" {
		if parent, ok := r.contexts[parentID]; ok {
			parent.Children = append(parent.Children, id)
		}
	}
	return ctx
}

// Get returns the context with the given id, if any.
func (r *Registry) Get(id string) (*Context, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.contexts[id]
	return c, ok
}

// ContextForTarget returns the context id attached to targetID.
func (r *Registry) ContextForTarget(targetID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.targetToContext[targetID]
	return id, ok
}

// ContextForSession returns the context id owning sessionID.
func (r *Registry) ContextForSession(sessionID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.sessionToContext[sessionID]
	return id, ok
}

// SessionForContext returns the CDP session id owning ctxID, which for a
// nested context is inherited from its top-level ancestor.
func (r *Registry) SessionForContext(ctxID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	topID := r.findTopLevelLocked(ctxID)
	c, ok := r.contexts[topID]
	if !ok || c.SessionID == "" {
		return "", false
	}
	return c.SessionID, true
}

// FindTopLevelContextID walks up the parent chain from ctxID and returns
// the id of its top-level ancestor (or ctxID itself if it is top-level,
// or "" if ctxID is unknown).
func (r *Registry) FindTopLevelContextID(ctxID string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.findTopLevelLocked(ctxID)
}

func (r *Registry) findTopLevelLocked(ctxID string) string {
	seen := make(map[string]struct{})
	for {
		c, ok := r.contexts[ctxID]
		if !ok {
			return ""
		}
		if c.IsTopLevel() {
			return c.ID
		}
		if _, loop := seen[ctxID]; loop {
			return c.ID // cycle guard: never trust a malformed tree into an infinite loop
		}
		seen[ctxID] = struct{}{}
		ctxID = c.ParentID
	}
}

// RemoveContext removes ctxID and every descendant, returning the ids
// removed in post-order: each descendant before its parent, ctxID last.
func (r *Registry) RemoveContext(ctxID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var removed []string
	var walk func(id string)
	walk = func(id string) {
		c, ok := r.contexts[id]
		if !ok {
			return
		}
		for _, child := range c.Children {
			walk(child)
		}
		delete(r.contexts, id)
		delete(r.navigations, id)
		if c.TargetID != "" {
			delete(r.targetToContext, c.TargetID)
		}
		if c.SessionID != "" {
			delete(r.sessionToContext, c.SessionID)
		}
		removed = append(removed, id)
	}
	walk(ctxID)
	return removed
}

// OnTargetAttached registers the context for a newly-attached CDP target.
// parentContextID is "" for a new top-level target (a new tab/window).
func (r *Registry) OnTargetAttached(contextID, parentContextID, userContextID, targetID, sessionID string) *Context {
	return r.CreateContext(contextID, parentContextID, userContextID, targetID, sessionID)
}

// OnTargetDetached tears down the context owning sessionID and every
// descendant, returning the removed context ids. Returns ok=false if the
// session was never tracked.
func (r *Registry) OnTargetDetached(sessionID string) (removed []string, ok bool) {
	ctxID, found := r.ContextForSession(sessionID)
	if !found {
		return nil, false
	}
	return r.RemoveContext(ctxID), true
}

// GetTree returns every context currently tracked, for browsingContext.getTree.
func (r *Registry) GetTree() []*Context {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Context, 0, len(r.contexts))
	for _, c := range r.contexts {
		out = append(out, c)
	}
	return out
}
