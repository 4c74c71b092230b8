package session

import (
	"encoding/json"

	"github.com/grantcarthew/bidictl/internal/cdp"
)

// targetAttachedParams mirrors CDP's Target.attachedToTarget, the subset
// this package needs. cdp.Connection has its own unexported equivalent
// it uses to index sessions before routing the event; this is a second,
// session-scoped decoding of the same payload.
type targetAttachedParams struct {
	SessionID  string `json:"sessionId"`
	TargetInfo struct {
		TargetID string `json:"targetId"`
		Type     string `json:"type"`
		OpenerID string `json:"openerId"`
	} `json:"targetInfo"`
	WaitingForDebugger bool `json:"waitingForDebugger"`
}

// targetDetachedParams mirrors CDP's Target.detachedFromTarget.
type targetDetachedParams struct {
	SessionID string `json:"sessionId"`
	TargetID  string `json:"targetId"`
}

// onTargetAttached registers the new context, enables the CDP domains
// the translator needs on it, subscribes its per-session events, and
// resolves any browsingContext.create parked waiting for this target.
// Only page/iframe targets become browsing contexts; workers and other
// target types attach (auto-attach is flat) but are left untracked.
func (s *Session) onTargetAttached(raw json.RawMessage) {
	var p targetAttachedParams
	if err := json.Unmarshal(raw, &p); err != nil {
		s.log.Errorf("session", "malformed Target.attachedToTarget: %v", err)
		return
	}
	if p.TargetInfo.Type != "page" && p.TargetInfo.Type != "iframe" {
		s.resumeIfWaiting(p.SessionID)
		return
	}

	parentContextID := ""
	if p.TargetInfo.OpenerID != "" {
		if ctxID, ok := s.contexts.ContextForTarget(p.TargetInfo.OpenerID); ok {
			parentContextID = ctxID
		}
	}

	contextID := newContextID()
	s.contexts.OnTargetAttached(contextID, parentContextID, "", p.TargetInfo.TargetID, p.SessionID)
	s.events.TrackContext(contextID)

	topLevel := s.contexts.FindTopLevelContextID(contextID)
	s.tracker.RegisterSession(p.SessionID, topLevel)

	cl, ok := s.cdp.ClientForSession(p.SessionID)
	if !ok {
		s.log.Errorf("session", "no CDP client for newly attached session %s", p.SessionID)
		return
	}
	s.enableSessionDomains(cl)

	s.events.Enqueue(contextID, "browsingContext.contextCreated", map[string]interface{}{
		"context":        contextID,
		"url":            "about:blank",
		"children":       nil,
		"parent":         nullableContextID(parentContextID),
		"userContext":    "default",
		"originalOpener": nullableContextID(""),
	})

	s.resumeIfWaiting(p.SessionID)

	if resolveCh, ok := s.takePendingCreate(p.TargetInfo.TargetID); ok {
		resolveCh <- contextID
	}
}

// resumeIfWaiting resumes a target that auto-attach paused pending a
// debugger, whether or not it became a tracked browsing context.
func (s *Session) resumeIfWaiting(sessionID string) {
	cl, ok := s.cdp.ClientForSession(sessionID)
	if !ok {
		return
	}
	_, _ = cl.Send("Runtime.runIfWaitingForDebugger", map[string]interface{}{})
}

// enableSessionDomains turns on the CDP domains the translator observes
// for every attached page/iframe target, mirroring the teacher's
// enableDomainsForSession.
func (s *Session) enableSessionDomains(cl *cdp.Client) {
	_, _ = cl.Send("Page.enable", map[string]interface{}{})
	_, _ = cl.Send("Runtime.enable", map[string]interface{}{})
	_, _ = cl.Send("Network.enable", map[string]interface{}{})
	_, _ = cl.Send("DOM.enable", map[string]interface{}{})

	sessionID := cl.SessionID()
	forward := func(evt cdp.Event) { s.enqueueCDPEvent(sessionID, evt.Method, evt.Params) }

	cl.Subscribe("Page.frameNavigated", forward)
	cl.Subscribe("Page.domContentEventFired", forward)
	cl.Subscribe("Page.loadEventFired", forward)
	cl.Subscribe("Page.javascriptDialogOpening", forward)
	cl.Subscribe("Page.javascriptDialogClosed", forward)

	cl.Subscribe("Network.requestWillBeSent", forward)
	cl.Subscribe("Network.requestWillBeSentExtraInfo", forward)
	cl.Subscribe("Network.responseReceived", forward)
	cl.Subscribe("Network.responseReceivedExtraInfo", forward)
	cl.Subscribe("Network.requestServedFromCache", forward)
	cl.Subscribe("Network.loadingFinished", forward)
	cl.Subscribe("Network.loadingFailed", forward)

	cl.Subscribe("Fetch.requestPaused", forward)
	cl.Subscribe("Fetch.authRequired", forward)
}

// onTargetDetached tears down the context(s) owning sessionID, un-wires
// the tracker's Fetch.enable bookkeeping, and emits contextDestroyed for
// every removed context.
func (s *Session) onTargetDetached(raw json.RawMessage) {
	var p targetDetachedParams
	if err := json.Unmarshal(raw, &p); err != nil {
		s.log.Errorf("session", "malformed Target.detachedFromTarget: %v", err)
		return
	}

	removed, ok := s.contexts.OnTargetDetached(p.SessionID)
	if !ok {
		return
	}
	s.tracker.UnregisterSession(p.SessionID)
	for _, ctxID := range removed {
		s.events.Enqueue(ctxID, "browsingContext.contextDestroyed", map[string]interface{}{
			"context": ctxID,
		})
		s.events.UntrackContext(ctxID)
	}
}

// onFrameNavigated commits the pending navigation for the context owning
// sessionID and emits navigationCommitted.
func (s *Session) onFrameNavigated(sessionID string, raw json.RawMessage) {
	var p struct {
		Frame struct {
			ID       string `json:"id"`
			ParentID string `json:"parentId"`
			URL      string `json:"url"`
		} `json:"frame"`
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return
	}
	if p.Frame.ParentID != "" {
		return // nested-frame navigation: not a tracked browsing context
	}

	contextID, ok := s.contexts.ContextForSession(sessionID)
	if !ok {
		return
	}

	nav := s.contexts.CommitNavigation(contextID, p.Frame.URL)
	if nav == nil {
		return
	}
	s.events.Enqueue(contextID, "browsingContext.navigationCommitted", map[string]interface{}{
		"context":    contextID,
		"navigation": nav.ID,
		"url":        nav.CommittedURL,
		"timestamp":  0,
	})
}

// onDOMContentEventFired emits domContentLoaded and resolves any
// browsingContext.navigate waiting on wait="interactive".
func (s *Session) onDOMContentEventFired(sessionID string) {
	contextID, ok := s.contexts.ContextForSession(sessionID)
	if !ok {
		return
	}
	navID := s.contexts.GetNavigationID(contextID)
	s.events.Enqueue(contextID, "browsingContext.domContentLoaded", map[string]interface{}{
		"context":    contextID,
		"navigation": nullableString(navID),
		"url":        "",
		"timestamp":  0,
	})
	s.signalDOMLoaded(sessionID)
}

// onLoadEventFired emits load and resolves any browsingContext.navigate
// waiting on wait="complete".
func (s *Session) onLoadEventFired(sessionID string) {
	contextID, ok := s.contexts.ContextForSession(sessionID)
	if !ok {
		return
	}
	navID := s.contexts.GetNavigationID(contextID)
	s.events.Enqueue(contextID, "browsingContext.load", map[string]interface{}{
		"context":    contextID,
		"navigation": nullableString(navID),
		"url":        "",
		"timestamp":  0,
	})
	s.signalLoaded(sessionID)
}

// onDialogOpening emits userPromptOpened.
func (s *Session) onDialogOpening(sessionID string, raw json.RawMessage) {
	contextID, ok := s.contexts.ContextForSession(sessionID)
	if !ok {
		return
	}
	var p struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	}
	_ = json.Unmarshal(raw, &p)
	s.events.Enqueue(contextID, "browsingContext.userPromptOpened", map[string]interface{}{
		"context": contextID,
		"type":    p.Type,
		"message": p.Message,
	})
}

// onDialogClosed emits userPromptClosed.
func (s *Session) onDialogClosed(sessionID string, raw json.RawMessage) {
	contextID, ok := s.contexts.ContextForSession(sessionID)
	if !ok {
		return
	}
	var p struct {
		Result bool `json:"result"`
	}
	_ = json.Unmarshal(raw, &p)
	s.events.Enqueue(contextID, "browsingContext.userPromptClosed", map[string]interface{}{
		"context": contextID,
		"accepted": p.Result,
	})
}

func nullableContextID(id string) interface{} {
	if id == "" {
		return nil
	}
	return id
}

func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
