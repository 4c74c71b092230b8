package network

import (
	"context"
	"fmt"
	"strings"

	"github.com/grantcarthew/bidictl/internal/bidiproto"
	"github.com/grantcarthew/bidictl/internal/urlpattern"
)

// IngestFetchRequestPaused handles Fetch.requestPaused. A paused event
// with no ResponseStatusCode/ResponseErrorReason is the request phase;
// otherwise it is the response phase. If no installed intercept actually
// matches (a CDP quirk: Fetch.enable is session-wide, not per-pattern),
// the tracker continues it immediately without touching BiDi state.
func (t *Tracker) IngestFetchRequestPaused(sessionID string, p *FetchRequestPausedParams) {
	t.mu.Lock()
	defer t.mu.Unlock()

	requestID := p.NetworkID
	if requestID == "" {
		requestID = p.RequestID
	}
	req := t.getOrCreate(requestID)
	req.FetchRequestID = p.RequestID

	isResponsePhase := p.ResponseStatusCode != 0 || p.ResponseErrorReason != ""

	var phase Phase
	if isResponsePhase {
		phase = PhaseResponseStarted
		req.ResponsePaused = p
	} else {
		phase = PhaseBeforeRequestSent
		req.RequestPaused = p
	}

	ids := t.matchingInterceptIDs(req, phase)
	if len(ids) == 0 {
		t.continueImmediately(sessionID, p, isResponsePhase)
		if isResponsePhase {
			req.ResponsePaused = nil
		} else {
			req.RequestPaused = nil
		}
		return
	}

	req.InterceptPhase = phase
	req.InterceptIDs = ids
	t.evaluateGates(req)
}

// IngestFetchAuthRequired handles Fetch.authRequired. Unlike the other
// gates this phase may recur (successive proxy/server challenges), so it
// always emits.
func (t *Tracker) IngestFetchAuthRequired(sessionID string, p *FetchAuthRequiredParams) {
	t.mu.Lock()
	defer t.mu.Unlock()

	requestID := p.NetworkID
	if requestID == "" {
		requestID = p.RequestID
	}
	req := t.getOrCreate(requestID)
	req.FetchRequestID = p.RequestID
	req.Auth = p
	req.InterceptPhase = PhaseAuthRequired
	req.InterceptIDs = t.matchingInterceptIDs(req, PhaseAuthRequired)

	t.events.Enqueue(req.ContextID, "network.authRequired", map[string]interface{}{
		"context":       nullableContext(req.ContextID),
		"navigation":    nullableString(req.NavigationID),
		"redirectCount": req.RedirectCount,
		"response": map[string]interface{}{
			"url":        req.url(),
			"status":     401,
			"statusText": "",
			"fromCache":  false,
			"headers":    map[string]string{},
			"authChallenges": []interface{}{
				map[string]string{
					"scheme": p.AuthChallenge.Scheme,
					"realm":  p.AuthChallenge.Realm,
				},
			},
		},
	})
}

func (t *Tracker) matchingInterceptIDs(req *Request, phase Phase) []string {
	var ids []string
	for id, ic := range t.intercepts {
		if !ic.Phases[phase] {
			continue
		}
		if !ic.appliesToContext(req.TopLevelContext) {
			continue
		}
		if ic.matchesURL(req.url()) {
			ids = append(ids, id)
		}
	}
	return ids
}

func (t *Tracker) continueImmediately(sessionID string, p *FetchRequestPausedParams, responsePhase bool) {
	method := "Fetch.continueRequest"
	if responsePhase {
		method = "Fetch.continueResponse"
	}
	_, _ = t.cdp.Send(sessionID, method, map[string]interface{}{"requestId": p.RequestID})
}

// ContinueRequest implements network.continueRequest: requires the
// request to be parked in beforeRequestSent.
func (t *Tracker) ContinueRequest(ctx context.Context, sessionID, requestID string, url, method *string, headers []NameValue, body *string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	req, err := t.lockedRequireRequest(requestID)
	if err != nil {
		return err
	}
	if req.InterceptPhase != PhaseBeforeRequestSent {
		return bidiproto.NewError(bidiproto.ErrInvalidArgument, "request is not parked in the beforeRequestSent phase")
	}
	if method != nil {
		if verr := bidiproto.ValidateHTTPMethod(*method); verr != nil {
			return bidiproto.NewError(bidiproto.ErrInvalidArgument, verr.Error())
		}
	}
	for _, h := range headers {
		if verr := bidiproto.ValidateHeaderValue(h.Value); verr != nil {
			return bidiproto.NewError(bidiproto.ErrInvalidArgument, verr.Error())
		}
	}

	params := map[string]interface{}{"requestId": req.FetchRequestID}
	if url != nil {
		params["url"] = *url
	}
	if method != nil {
		params["method"] = *method
	}
	if len(headers) > 0 {
		params["headers"] = headers
	}
	if body != nil {
		params["postData"] = *body
	}

	if _, err := t.cdp.Send(sessionID, "Fetch.continueRequest", params); err != nil {
		return translateCDPError(err)
	}
	t.clearIntercept(req)
	return nil
}

// ContinueResponse implements network.continueResponse: requires the
// request to be parked in responseStarted or authRequired. In
// authRequired it answers the challenge with Fetch.continueWithAuth and
// response "Default"; it takes no credentials, so it never sends
// "ProvideCredentials".
func (t *Tracker) ContinueResponse(ctx context.Context, sessionID, requestID string, statusCode *int, reasonPhrase *string, headers []NameValue) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	req, err := t.lockedRequireRequest(requestID)
	if err != nil {
		return err
	}
	if req.InterceptPhase != PhaseResponseStarted && req.InterceptPhase != PhaseAuthRequired {
		return bidiproto.NewError(bidiproto.ErrInvalidArgument, "request is not parked in the responseStarted or authRequired phase")
	}
	for _, h := range headers {
		if verr := bidiproto.ValidateHeaderValue(h.Value); verr != nil {
			return bidiproto.NewError(bidiproto.ErrInvalidArgument, verr.Error())
		}
	}

	if req.InterceptPhase == PhaseAuthRequired {
		if _, err := t.cdp.Send(sessionID, "Fetch.continueWithAuth", map[string]interface{}{
			"requestId":             req.FetchRequestID,
			"authChallengeResponse": map[string]interface{}{"response": "Default"},
		}); err != nil {
			return translateCDPError(err)
		}
		t.clearIntercept(req)
		return nil
	}

	params := map[string]interface{}{"requestId": req.FetchRequestID}
	if statusCode != nil {
		params["responseCode"] = *statusCode
	}
	if reasonPhrase != nil {
		params["responsePhrase"] = *reasonPhrase
	}
	if len(headers) > 0 {
		params["responseHeaders"] = headers
	}

	if _, err := t.cdp.Send(sessionID, "Fetch.continueResponse", params); err != nil {
		return translateCDPError(err)
	}
	t.clearIntercept(req)
	return nil
}

// ContinueWithAuth implements network.continueWithAuth: only valid while
// parked in authRequired.
func (t *Tracker) ContinueWithAuth(ctx context.Context, sessionID, requestID string, action string, username, password *string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	req, err := t.lockedRequireRequest(requestID)
	if err != nil {
		return err
	}
	if req.InterceptPhase != PhaseAuthRequired {
		return bidiproto.NewError(bidiproto.ErrInvalidArgument, "request is not parked awaiting authentication")
	}

	authResponse := map[string]interface{}{"response": action}
	if username != nil {
		authResponse["username"] = *username
	}
	if password != nil {
		authResponse["password"] = *password
	}

	if _, err := t.cdp.Send(sessionID, "Fetch.continueWithAuth", map[string]interface{}{
		"requestId":    req.FetchRequestID,
		"authChallengeResponse": authResponse,
	}); err != nil {
		return translateCDPError(err)
	}
	t.clearIntercept(req)
	return nil
}

// FailRequest implements network.failRequest: forbidden while parked in
// authRequired (there's no CDP equivalent of failing an auth challenge).
func (t *Tracker) FailRequest(ctx context.Context, sessionID, requestID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	req, err := t.lockedRequireRequest(requestID)
	if err != nil {
		return err
	}
	if req.InterceptPhase == PhaseAuthRequired || req.InterceptPhase == "" {
		return bidiproto.NewError(bidiproto.ErrInvalidArgument, "request cannot be failed in its current phase")
	}

	if _, err := t.cdp.Send(sessionID, "Fetch.failRequest", map[string]interface{}{
		"requestId":   req.FetchRequestID,
		"errorReason": "Failed",
	}); err != nil {
		return translateCDPError(err)
	}
	t.clearIntercept(req)
	delete(t.requests, req.ID)
	return nil
}

// ProvideResponse implements network.provideResponse: accepted in any
// parked phase, fulfilling the request with a synthetic response.
func (t *Tracker) ProvideResponse(ctx context.Context, sessionID, requestID string, statusCode *int, reasonPhrase *string, headers []NameValue, body *string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	req, err := t.lockedRequireRequest(requestID)
	if err != nil {
		return err
	}
	if req.InterceptPhase == "" {
		return bidiproto.NewError(bidiproto.ErrInvalidArgument, "request is not currently parked")
	}
	for _, h := range headers {
		if verr := bidiproto.ValidateHeaderValue(h.Value); verr != nil {
			return bidiproto.NewError(bidiproto.ErrInvalidArgument, verr.Error())
		}
	}

	params := map[string]interface{}{"requestId": req.FetchRequestID}
	if statusCode != nil {
		params["responseCode"] = *statusCode
	} else {
		params["responseCode"] = 200
	}
	if reasonPhrase != nil {
		params["responsePhrase"] = *reasonPhrase
	}
	if len(headers) > 0 {
		params["responseHeaders"] = headers
	}
	if body != nil {
		params["body"] = *body
	}

	if _, err := t.cdp.Send(sessionID, "Fetch.fulfillRequest", params); err != nil {
		return translateCDPError(err)
	}
	t.clearIntercept(req)
	return nil
}

func (t *Tracker) clearIntercept(req *Request) {
	req.InterceptPhase = ""
	req.InterceptIDs = nil
	req.RequestPaused = nil
	req.ResponsePaused = nil
	t.evaluateGates(req)
}

func (t *Tracker) lockedRequireRequest(requestID string) (*Request, error) {
	req, ok := t.requests[requestID]
	if !ok {
		return nil, errNoSuchRequest
	}
	return req, nil
}

// translateCDPError converts a CDP "Invalid header" style rejection into
// BiDi's invalid argument; anything else passes through as unknown error.
func translateCDPError(err error) error {
	if strings.Contains(err.Error(), "Invalid header") {
		return bidiproto.NewError(bidiproto.ErrInvalidArgument, err.Error())
	}
	return bidiproto.NewError(bidiproto.ErrUnknownError, fmt.Sprintf("CDP command failed: %v", err))
}

// AddIntercept implements network.addIntercept.
func (t *Tracker) AddIntercept(phases []Phase, patterns []urlpattern.Pattern, contexts []string) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	compiled := make([]*urlpattern.Compiled, 0, len(patterns))
	for _, p := range patterns {
		c, err := urlpattern.Compile(p)
		if err != nil {
			return "", bidiproto.NewError(bidiproto.ErrInvalidArgument, err.Error())
		}
		compiled = append(compiled, c)
	}

	phaseSet := make(map[Phase]bool, len(phases))
	for _, ph := range phases {
		phaseSet[ph] = true
	}

	id := t.nextIDString()
	t.intercepts[id] = &Intercept{
		ID:       id,
		Patterns: compiled,
		Phases:   phaseSet,
		Contexts: toBoolSet(contexts),
	}
	t.recomputeFetchStates()
	return id, nil
}

// RemoveIntercept implements network.removeIntercept.
func (t *Tracker) RemoveIntercept(id string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.intercepts[id]; !ok {
		return bidiproto.NewError(bidiproto.ErrNoSuchIntercept, "no such intercept")
	}
	delete(t.intercepts, id)
	t.recomputeFetchStates()
	return nil
}

// AddDataCollector implements network.addDataCollector.
func (t *Tracker) AddDataCollector(dataTypes []string, maxSize int, contexts, userContexts []string) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	id := t.nextIDString()
	t.collectors[id] = &Collector{
		ID:           id,
		MaxSize:      maxSize,
		DataTypes:    toBoolSet(dataTypes),
		Contexts:     toBoolSet(contexts),
		UserContexts: toBoolSet(userContexts),
	}
	t.recomputeFetchStates()
	return id, nil
}

// RemoveDataCollector implements network.removeDataCollector.
func (t *Tracker) RemoveDataCollector(id string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.collectors[id]; !ok {
		return bidiproto.NewError(bidiproto.ErrNoSuchCollector, "no such collector")
	}
	delete(t.collectors, id)
	t.recomputeFetchStates()
	return nil
}

// RegisterSession associates sessionID with its top-level context so
// Fetch.enable reference counting has a session to toggle. Called when a
// target attaches.
func (t *Tracker) RegisterSession(sessionID, topLevelContextID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.sessions[sessionID] = topLevelContextID
	t.syncFetchStateLocked(sessionID)
}

// UnregisterSession drops sessionID when its target detaches.
func (t *Tracker) UnregisterSession(sessionID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.sessions, sessionID)
	delete(t.fetchStates, sessionID)
}

// recomputeFetchStates re-derives every registered session's Fetch.enable
// need from the current intercept and collector sets, flipping
// Fetch.enable/disable only at the 0-to-1/1-to-0 transition. Caller holds
// t.mu.
func (t *Tracker) recomputeFetchStates() {
	for sessionID := range t.sessions {
		t.syncFetchStateLocked(sessionID)
	}
}

func (t *Tracker) syncFetchStateLocked(sessionID string) {
	topLevel := t.sessions[sessionID]

	interceptCount := 0
	for _, ic := range t.intercepts {
		if ic.appliesToContext(topLevel) {
			interceptCount++
		}
	}
	collectorCount := 0
	for _, c := range t.collectors {
		if c.appliesToContext(topLevel) {
			collectorCount++
		}
	}

	st, ok := t.fetchStates[sessionID]
	if !ok {
		st = &fetchState{}
		t.fetchStates[sessionID] = st
	}
	st.interceptCount = interceptCount
	st.collectorCount = collectorCount

	wantEnabled := interceptCount > 0 || collectorCount > 0
	if wantEnabled && !st.enabled {
		st.enabled = true
		_, _ = t.cdp.Send(sessionID, "Fetch.enable", map[string]interface{}{"patterns": []interface{}{map[string]string{"urlPattern": "*"}}})
	} else if !wantEnabled && st.enabled {
		st.enabled = false
		_, _ = t.cdp.Send(sessionID, "Fetch.disable", map[string]interface{}{})
	}
}

// GetData implements network.getData: returns the collected body for
// requestID under collectorID.
func (t *Tracker) GetData(collectorID, requestID string) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.collectors[collectorID]; !ok {
		return nil, bidiproto.NewError(bidiproto.ErrNoSuchCollector, "no such collector")
	}
	bucket, ok := t.collectorData[collectorID]
	if !ok {
		return nil, bidiproto.NewError(bidiproto.ErrNoSuchRequest, "no data collected for this request")
	}
	body, ok := bucket[requestID]
	if !ok {
		return nil, bidiproto.NewError(bidiproto.ErrNoSuchRequest, "no data collected for this request")
	}
	return body, nil
}

// DisownData implements network.disownData: releases the stored body so
// it can be garbage collected.
func (t *Tracker) DisownData(collectorID, requestID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	bucket, ok := t.collectorData[collectorID]
	if !ok {
		return bidiproto.NewError(bidiproto.ErrNoSuchCollector, "no such collector")
	}
	delete(bucket, requestID)
	return nil
}

func toBoolSet(vals []string) map[string]bool {
	if len(vals) == 0 {
		return nil
	}
	out := make(map[string]bool, len(vals))
	for _, v := range vals {
		out[v] = true
	}
	return out
}
