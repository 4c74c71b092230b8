package network

import "github.com/grantcarthew/bidictl/internal/bidievent"

// Request is the per-requestId record the tracker accumulates CDP event
// fragments into. Identity is the CDP request id, stable across a
// redirect chain (spec.md §3's "stable across redirects only as a
// family" invariant).
type Request struct {
	ID              string
	ContextID       string
	TopLevelContext string
	NavigationID    string
	LoaderID        string
	RedirectCount   int
	ServedFromCache bool
	Failed          bool

	RequestInfo      *RequestWillBeSentParams
	RequestExtraInfo *RequestWillBeSentExtraInfoParams
	RequestPaused    *FetchRequestPausedParams
	Auth             *FetchAuthRequiredParams

	ResponseInfo      *ResponseReceivedParams
	ResponseExtraInfo *ResponseReceivedExtraInfoParams
	ResponsePaused    *FetchRequestPausedParams

	// InterceptPhase is "" when the request is not currently parked
	// awaiting a client command, or one of PhaseBeforeRequestSent,
	// PhaseResponseStarted, PhaseAuthRequired otherwise.
	InterceptPhase Phase
	InterceptIDs   []string
	FetchRequestID string // Fetch-domain id to continue/fail/provideResponse against

	emitted map[string]bool

	pendingResponseStarted   *bidievent.Promise
	pendingResponseCompleted *bidievent.Promise
}

func newRequest(id string) *Request {
	return &Request{ID: id, emitted: make(map[string]bool)}
}

func (r *Request) hasEmitted(gate string) bool {
	return r.emitted[gate]
}

func (r *Request) markEmitted(gate string) {
	r.emitted[gate] = true
}

func (r *Request) isDataURL() bool {
	if r.RequestInfo == nil {
		return false
	}
	return len(r.RequestInfo.Request.URL) >= 5 && r.RequestInfo.Request.URL[:5] == "data:"
}

func (r *Request) url() string {
	if r.RequestInfo != nil {
		return r.RequestInfo.Request.URL
	}
	return ""
}
