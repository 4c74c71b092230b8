package session

import (
	"encoding/json"

	"github.com/grantcarthew/bidictl/internal/cdp"
	"github.com/grantcarthew/bidictl/internal/network"
)

// subscribeTargetEvents wires the session-less Target.* lifecycle events,
// the only two CDP events the session cares about before any per-target
// session exists. Every handler is invoked on the CDP connection's own
// read loop, so it must not block or call cl.Send — it only enqueues.
func (s *Session) subscribeTargetEvents() {
	browser := s.cdp.BrowserClient()
	browser.Subscribe("Target.attachedToTarget", func(evt cdp.Event) {
		s.enqueueCDPEvent("", evt.Method, evt.Params)
	})
	browser.Subscribe("Target.detachedFromTarget", func(evt cdp.Event) {
		s.enqueueCDPEvent("", evt.Method, evt.Params)
	})
}

// enqueueCDPEvent forwards one CDP notification to the session's
// event-loop goroutine, dropping it if the session is already shutting
// down rather than leaking the calling goroutine.
func (s *Session) enqueueCDPEvent(sessionID, method string, params json.RawMessage) {
	select {
	case s.cdpEvents <- cdpEvent{sessionID: sessionID, method: method, params: params}:
	case <-s.shutdown:
	}
}

// handleCDPEvent runs on the session's single event-ingestion goroutine
// and is the only place that mutates the tracker, the context registry,
// and the event manager in response to CDP notifications.
func (s *Session) handleCDPEvent(evt cdpEvent) {
	switch evt.method {
	case "Target.attachedToTarget":
		s.onTargetAttached(evt.params)
	case "Target.detachedFromTarget":
		s.onTargetDetached(evt.params)

	case "Network.requestWillBeSent":
		var p network.RequestWillBeSentParams
		if err := json.Unmarshal(evt.params, &p); err != nil {
			return
		}
		contextID, _ := s.contexts.ContextForSession(evt.sessionID)
		s.tracker.IngestRequestWillBeSent(evt.sessionID, contextID, &p)
	case "Network.requestWillBeSentExtraInfo":
		var p network.RequestWillBeSentExtraInfoParams
		if err := json.Unmarshal(evt.params, &p); err != nil {
			return
		}
		s.tracker.IngestRequestWillBeSentExtraInfo(&p)
	case "Network.responseReceived":
		var p network.ResponseReceivedParams
		if err := json.Unmarshal(evt.params, &p); err != nil {
			return
		}
		s.tracker.IngestResponseReceived(&p)
	case "Network.responseReceivedExtraInfo":
		var p network.ResponseReceivedExtraInfoParams
		if err := json.Unmarshal(evt.params, &p); err != nil {
			return
		}
		s.tracker.IngestResponseReceivedExtraInfo(&p)
	case "Network.requestServedFromCache":
		var p struct {
			RequestID string `json:"requestId"`
		}
		if err := json.Unmarshal(evt.params, &p); err != nil {
			return
		}
		s.tracker.IngestRequestServedFromCache(p.RequestID)
	case "Network.loadingFinished":
		var p struct {
			RequestID string `json:"requestId"`
		}
		if err := json.Unmarshal(evt.params, &p); err != nil {
			return
		}
		s.tracker.IngestLoadingFinished(evt.sessionID, p.RequestID)
	case "Network.loadingFailed":
		var p struct {
			RequestID string `json:"requestId"`
			ErrorText string `json:"errorText"`
		}
		if err := json.Unmarshal(evt.params, &p); err != nil {
			return
		}
		s.tracker.IngestLoadingFailed(p.RequestID, p.ErrorText)

	case "Fetch.requestPaused":
		var p network.FetchRequestPausedParams
		if err := json.Unmarshal(evt.params, &p); err != nil {
			return
		}
		s.tracker.IngestFetchRequestPaused(evt.sessionID, &p)
	case "Fetch.authRequired":
		var p network.FetchAuthRequiredParams
		if err := json.Unmarshal(evt.params, &p); err != nil {
			return
		}
		s.tracker.IngestFetchAuthRequired(evt.sessionID, &p)

	case "Page.frameNavigated":
		s.onFrameNavigated(evt.sessionID, evt.params)
	case "Page.domContentEventFired":
		s.onDOMContentEventFired(evt.sessionID)
	case "Page.loadEventFired":
		s.onLoadEventFired(evt.sessionID)
	case "Page.javascriptDialogOpening":
		s.onDialogOpening(evt.sessionID, evt.params)
	case "Page.javascriptDialogClosed":
		s.onDialogClosed(evt.sessionID, evt.params)
	}
}
