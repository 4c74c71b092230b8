package network

import (
	"strconv"
	"strings"
	"sync"

	"github.com/grantcarthew/bidictl/internal/bidievent"
	"github.com/grantcarthew/bidictl/internal/bidiproto"
	"github.com/grantcarthew/bidictl/internal/log"
)

// SubscriptionChecker answers whether any channel is currently
// subscribed to an event for a context, backed by *subscription.Manager.
type SubscriptionChecker interface {
	IsSubscribed(event, contextID string) bool
}

// EventEnqueuer buffers and orders outgoing BiDi events, backed by
// *bidievent.Manager.
type EventEnqueuer interface {
	Enqueue(contextID, method string, params interface{})
	EnqueuePromise(contextID string) *bidievent.Promise
}

// ContextResolver answers the browsing-context contracts the tracker
// consumes, backed by *browsingcontext.Registry.
type ContextResolver interface {
	FindTopLevelContextID(ctxID string) string
	GetNavigationID(ctxID string) string
	SessionForContext(ctxID string) (string, bool)
}

// CDPSender issues a CDP command on a session and returns its raw result.
type CDPSender interface {
	Send(sessionID, method string, params interface{}) ([]byte, error)
}

// Tracker is the network request state machine: it ingests CDP
// Network.*/Fetch.* events, maintains one Request record per CDP
// requestId, and emits BiDi network events through an EventEnqueuer once
// each gate becomes ready.
type Tracker struct {
	mu         sync.Mutex
	requests   map[string]*Request
	intercepts map[string]*Intercept
	collectors map[string]*Collector
	nextID     int64

	fetchStates map[string]*fetchState // sessionID -> toggled Fetch.enable state
	sessions    map[string]string      // sessionID -> top-level context id, for Fetch.enable recounting

	// collectorData holds collected response bodies: collectorID -> CDP
	// requestId -> body bytes, populated by fetchResponseBody.
	collectorData map[string]map[string][]byte

	subs    SubscriptionChecker
	events  EventEnqueuer
	ctxRes  ContextResolver
	cdp     CDPSender
	log     *log.Logger
}

type fetchState struct {
	interceptCount int
	collectorCount int
	enabled        bool
}

// NewTracker wires a Tracker to its collaborators.
func NewTracker(subs SubscriptionChecker, events EventEnqueuer, ctxRes ContextResolver, cdp CDPSender, logger *log.Logger) *Tracker {
	return &Tracker{
		requests:    make(map[string]*Request),
		intercepts:  make(map[string]*Intercept),
		collectors:  make(map[string]*Collector),
		fetchStates:   make(map[string]*fetchState),
		sessions:      make(map[string]string),
		collectorData: make(map[string]map[string][]byte),
		subs:        subs,
		events:      events,
		ctxRes:      ctxRes,
		cdp:         cdp,
		log:         logger,
	}
}

func (t *Tracker) nextIDString() string {
	t.nextID++
	return strconv.FormatInt(t.nextID, 10)
}

func (t *Tracker) getOrCreate(requestID string) *Request {
	r, ok := t.requests[requestID]
	if !ok {
		r = newRequest(requestID)
		t.requests[requestID] = r
	}
	return r
}

// isFavicon suppresses /favicon.ico entirely, per spec.md §4.5.5.
func isFavicon(url string) bool {
	return strings.HasSuffix(url, "/favicon.ico")
}

// interceptionExpected reports whether phase is expected for req: the
// subscription manager must report the target subscribed to
// network.<phase>, AND at least one installed intercept must match the
// request URL and list this phase.
func (t *Tracker) interceptionExpected(req *Request, phase Phase) bool {
	eventName := "network." + string(phase)
	if !t.subs.IsSubscribed(eventName, req.TopLevelContext) {
		return false
	}
	for _, ic := range t.intercepts {
		if !ic.Phases[phase] {
			continue
		}
		if !ic.appliesToContext(req.TopLevelContext) {
			continue
		}
		if ic.matchesURL(req.url()) {
			return true
		}
	}
	return false
}

// requestExtraInfoResolved reports whether request extra-info's absence is
// already explained (so the tracker shouldn't keep waiting for it).
func (t *Tracker) requestExtraInfoResolved(req *Request) bool {
	if req.RequestExtraInfo != nil {
		return true
	}
	if req.ServedFromCache {
		return true
	}
	if req.ResponseInfo != nil && !req.ResponseInfo.HasExtraInfo {
		return true
	}
	if req.isDataURL() {
		return true
	}
	if req.Failed {
		return true
	}
	return false
}

func (t *Tracker) responseExtraInfoResolved(req *Request) bool {
	if req.ResponseExtraInfo != nil {
		return true
	}
	if req.ServedFromCache {
		return true
	}
	if req.ResponseInfo != nil && !req.ResponseInfo.HasExtraInfo {
		return true
	}
	if req.isDataURL() {
		return true
	}
	if req.Failed {
		return true
	}
	return false
}

// IngestRequestWillBeSent handles Network.requestWillBeSent, including
// the redirect case where a predecessor record already exists.
func (t *Tracker) IngestRequestWillBeSent(sessionID, contextID string, p *RequestWillBeSentParams) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if isFavicon(p.Request.URL) {
		return
	}

	topLevel := t.ctxRes.FindTopLevelContextID(contextID)
	req, existed := t.requests[p.RequestID]
	isRedirect := existed && req.RequestInfo != nil && p.RedirectResponse != nil

	if !existed {
		req = newRequest(p.RequestID)
		t.requests[p.RequestID] = req
	}
	req.ContextID = contextID
	req.TopLevelContext = topLevel
	req.LoaderID = p.LoaderID

	if isRedirect {
		// Reserve the ordering slots before mutating the record, so a
		// same-tick event for the continuing request can't jump ahead
		// of the redirect's synthetic events.
		startedPromise := t.events.EnqueuePromise(contextID)
		completedPromise := t.events.EnqueuePromise(contextID)

		redirectResp := p.RedirectResponse
		req.RedirectCount++
		startedPromise.Resolve("network.responseStarted", t.buildResponseStartedParams(req, redirectResp, false))
		completedPromise.Resolve("network.responseCompleted", t.buildResponseCompletedParams(req, redirectResp, false))

		// Reset per-request gates for the new leg of the chain.
		req.emitted = make(map[string]bool)
		req.RequestExtraInfo = nil
		req.RequestPaused = nil
		req.ResponseInfo = nil
		req.ResponseExtraInfo = nil
		req.ResponsePaused = nil
		req.ServedFromCache = false
		req.Failed = false
	}

	req.RequestInfo = p
	if p.LoaderID == p.RequestID {
		nav, _ := t.navigationForDocument(contextID, p.DocumentURL)
		req.NavigationID = nav
	}

	t.evaluateGates(req)
}

func (t *Tracker) navigationForDocument(contextID, _ string) (string, bool) {
	id := t.ctxRes.GetNavigationID(contextID)
	return id, id != ""
}

// IngestRequestWillBeSentExtraInfo handles
// Network.requestWillBeSentExtraInfo.
func (t *Tracker) IngestRequestWillBeSentExtraInfo(p *RequestWillBeSentExtraInfoParams) {
	t.mu.Lock()
	defer t.mu.Unlock()

	req, ok := t.requests[p.RequestID]
	if !ok {
		return
	}
	req.RequestExtraInfo = p
	t.evaluateGates(req)
}

// IngestResponseReceived handles Network.responseReceived.
func (t *Tracker) IngestResponseReceived(p *ResponseReceivedParams) {
	t.mu.Lock()
	defer t.mu.Unlock()

	req, ok := t.requests[p.RequestID]
	if !ok {
		return
	}
	req.ResponseInfo = p
	t.evaluateGates(req)
}

// IngestResponseReceivedExtraInfo handles
// Network.responseReceivedExtraInfo, dropping the redirect-artifact case
// per spec.md §4.5.4.
func (t *Tracker) IngestResponseReceivedExtraInfo(p *ResponseReceivedExtraInfoParams) {
	t.mu.Lock()
	defer t.mu.Unlock()

	req, ok := t.requests[p.RequestID]
	if !ok {
		return
	}

	if isRedirectArtifact(p, req) {
		return
	}

	req.ResponseExtraInfo = p
	t.evaluateGates(req)
}

// isRedirectArtifact reports whether extra-info p belongs to a 3xx
// response whose Location header equals the in-flight request's URL —
// the signature of a redirect-extra-info artifact that would otherwise
// mis-attribute to the final response (spec.md §4.5.4).
func isRedirectArtifact(p *ResponseReceivedExtraInfoParams, req *Request) bool {
	loc, ok := p.Headers["location"]
	if !ok || req.RequestInfo == nil {
		return false
	}
	return loc == req.RequestInfo.Request.URL
}

// IngestRequestServedFromCache handles Network.requestServedFromCache.
func (t *Tracker) IngestRequestServedFromCache(requestID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	req, ok := t.requests[requestID]
	if !ok {
		return
	}
	req.ServedFromCache = true
	t.evaluateGates(req)
}

// IngestLoadingFinished handles Network.loadingFinished: it re-evaluates
// the emission gates, fires any matching collectors' body fetch, and
// disposes the record once responseCompleted has emitted.
func (t *Tracker) IngestLoadingFinished(sessionID, requestID string) {
	t.mu.Lock()
	req, ok := t.requests[requestID]
	if !ok {
		t.mu.Unlock()
		return
	}
	matchingCollectors := t.matchingCollectorIDs(req)
	t.evaluateGates(req)
	if req.hasEmitted("responseCompleted") {
		delete(t.requests, requestID)
	}
	t.mu.Unlock()

	if len(matchingCollectors) > 0 {
		t.fetchResponseBody(sessionID, requestID, matchingCollectors)
	}
}

// matchingCollectorIDs returns the ids of every collector configured for
// dataType=response that applies to req's context. Caller holds t.mu.
func (t *Tracker) matchingCollectorIDs(req *Request) []string {
	if req == nil {
		return nil
	}
	var ids []string
	for id, c := range t.collectors {
		if !c.DataTypes["response"] {
			continue
		}
		if !c.appliesToContext(req.TopLevelContext) {
			continue
		}
		ids = append(ids, id)
	}
	return ids
}

// fetchResponseBody retrieves the response body for requestID from CDP
// and stores it against every matching collector. Fired from a goroutine
// keyed by requestId, tolerant of "no body" errors, so it never blocks
// the event-loop goroutine that called IngestLoadingFinished.
func (t *Tracker) fetchResponseBody(sessionID, requestID string, collectorIDs []string) {
	go func() {
		raw, err := t.cdp.Send(sessionID, "Network.getResponseBody", map[string]interface{}{"requestId": requestID})
		if err != nil {
			if t.log != nil {
				t.log.Debugf("network", "getResponseBody failed for %s: %v", requestID, err)
			}
			return
		}

		t.mu.Lock()
		defer t.mu.Unlock()
		for _, id := range collectorIDs {
			bucket, ok := t.collectorData[id]
			if !ok {
				bucket = make(map[string][]byte)
				t.collectorData[id] = bucket
			}
			bucket[requestID] = raw
		}
	}()
}

// IngestLoadingFailed handles Network.loadingFailed: it marks the record
// failed and emits network.fetchError exactly once.
func (t *Tracker) IngestLoadingFailed(requestID, errorText string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	req, ok := t.requests[requestID]
	if !ok {
		return
	}
	req.Failed = true
	t.evaluateGates(req)

	if !req.hasEmitted("fetchError") {
		req.markEmitted("fetchError")
		t.events.Enqueue(req.ContextID, "network.fetchError", map[string]interface{}{
			"context":       nullableContext(req.ContextID),
			"navigation":    nullableString(req.NavigationID),
			"redirectCount": req.RedirectCount,
			"errorText":     errorText,
		})
	}
	delete(t.requests, requestID)
}

// evaluateGates runs the three emission gates in order, emitting every
// one that is both ready and not yet emitted. Caller holds t.mu.
func (t *Tracker) evaluateGates(req *Request) {
	if !req.hasEmitted("beforeRequestSent") && t.beforeRequestSentReady(req) {
		req.markEmitted("beforeRequestSent")
		t.events.Enqueue(req.ContextID, "network.beforeRequestSent", t.buildBeforeRequestSentParams(req))
	}

	if !req.hasEmitted("responseStarted") && t.responseStartedReady(req) {
		req.markEmitted("responseStarted")
		t.events.Enqueue(req.ContextID, "network.responseStarted", t.buildResponseStartedParams(req, req.responseDataOrNil(), req.interceptBlocked(PhaseResponseStarted)))
	}

	if !req.hasEmitted("responseCompleted") && t.responseCompletedReady(req) {
		req.markEmitted("responseCompleted")
		t.events.Enqueue(req.ContextID, "network.responseCompleted", t.buildResponseCompletedParams(req, req.responseDataOrNil(), false))
	}
}

func (r *Request) responseDataOrNil() *ResponseData {
	if r.ResponseInfo == nil {
		return nil
	}
	return &r.ResponseInfo.Response
}

func (r *Request) interceptBlocked(phase Phase) bool {
	return r.InterceptPhase == phase
}

func (t *Tracker) beforeRequestSentReady(req *Request) bool {
	if req.RequestInfo == nil {
		return false
	}
	if t.interceptionExpected(req, PhaseBeforeRequestSent) {
		return req.RequestPaused != nil
	}
	return t.requestExtraInfoResolved(req)
}

func (t *Tracker) responseStartedReady(req *Request) bool {
	if req.ResponseInfo != nil {
		return true
	}
	if t.interceptionExpected(req, PhaseResponseStarted) {
		return req.ResponsePaused != nil
	}
	return false
}

func (t *Tracker) responseCompletedReady(req *Request) bool {
	if req.ResponseInfo == nil {
		return false
	}
	if !t.responseExtraInfoResolved(req) {
		return false
	}
	if t.interceptionExpected(req, PhaseResponseStarted) {
		return req.ResponsePaused != nil
	}
	return true
}

func nullableContext(id string) interface{} {
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

var errNoSuchRequest = bidiproto.NewError(bidiproto.ErrNoSuchRequest, "network request not found")

// RequestByID returns the tracked record for id, or errNoSuchRequest.
func (t *Tracker) RequestByID(id string) (*Request, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	r, ok := t.requests[id]
	if !ok {
		return nil, errNoSuchRequest
	}
	return r, nil
}

func fmtTimestamp(wallTime float64) int64 {
	return int64(wallTime * 1000)
}
