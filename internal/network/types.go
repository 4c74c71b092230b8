// Package network implements the BiDi network request tracker: the
// correlation of CDP's Network.*/Fetch.* events into the five BiDi
// network events, with interception, redirects, and cache semantics.
// This is the hardest part of the translator (spec.md §4.5).
package network

import "github.com/grantcarthew/bidictl/internal/urlpattern"

// RequestData mirrors the CDP Network.Request object fields the tracker
// needs.
type RequestData struct {
	URL      string            `json:"url"`
	Method   string            `json:"method"`
	Headers  map[string]string `json:"headers"`
	HasPostData bool           `json:"hasPostData"`
}

// Initiator mirrors CDP's Network.Initiator.
type Initiator struct {
	Type string `json:"type"`
}

// Timing mirrors the subset of CDP's Network.ResourceTiming the tracker
// uses to compute BiDi millisecond-offset phase timings.
type Timing struct {
	RequestTime      float64 `json:"requestTime"`
	SendStart        float64 `json:"sendStart"`
	SendEnd          float64 `json:"sendEnd"`
	ReceiveHeadersEnd float64 `json:"receiveHeadersEnd"`
}

// ResponseData mirrors the CDP Network.Response object fields the
// tracker needs, including the subset present on a redirectResponse.
type ResponseData struct {
	URL           string            `json:"url"`
	Status        int               `json:"status"`
	StatusText    string            `json:"statusText"`
	Headers       map[string]string `json:"headers"`
	MimeType      string            `json:"mimeType"`
	Timing        *Timing           `json:"timing,omitempty"`
	FromDiskCache bool              `json:"fromDiskCache"`
}

// RequestWillBeSentParams mirrors CDP's Network.requestWillBeSent.
type RequestWillBeSentParams struct {
	RequestID            string        `json:"requestId"`
	LoaderID             string        `json:"loaderId"`
	DocumentURL          string        `json:"documentURL"`
	Request              RequestData   `json:"request"`
	WallTime             float64       `json:"wallTime"`
	Initiator            Initiator     `json:"initiator"`
	RedirectResponse     *ResponseData `json:"redirectResponse,omitempty"`
	RedirectHasExtraInfo bool          `json:"redirectHasExtraInfo"`
	FrameID              string        `json:"frameId"`
}

// RequestWillBeSentExtraInfoParams mirrors CDP's
// Network.requestWillBeSentExtraInfo.
type RequestWillBeSentExtraInfoParams struct {
	RequestID string            `json:"requestId"`
	Headers   map[string]string `json:"headers"`
}

// ResponseReceivedParams mirrors CDP's Network.responseReceived.
type ResponseReceivedParams struct {
	RequestID    string       `json:"requestId"`
	LoaderID     string       `json:"loaderId"`
	Response     ResponseData `json:"response"`
	HasExtraInfo bool         `json:"hasExtraInfo"`
	FrameID      string       `json:"frameId"`
}

// ResponseReceivedExtraInfoParams mirrors CDP's
// Network.responseReceivedExtraInfo.
type ResponseReceivedExtraInfoParams struct {
	RequestID string            `json:"requestId"`
	Headers   map[string]string `json:"headers"`
}

// FetchRequestPausedParams mirrors CDP's Fetch.requestPaused. Its
// RequestID is the Fetch-domain id, distinct from Network's requestId;
// NetworkID ties the two together.
type FetchRequestPausedParams struct {
	RequestID           string        `json:"requestId"`
	NetworkID           string        `json:"networkId"`
	Request             RequestData   `json:"request"`
	FrameID              string       `json:"frameId"`
	ResponseStatusCode  int           `json:"responseStatusCode"`
	ResponseErrorReason string        `json:"responseErrorReason"`
	ResponseHeaders     []NameValue   `json:"responseHeaders"`
}

// NameValue mirrors CDP's Fetch.HeaderEntry.
type NameValue struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// AuthChallenge mirrors CDP's Fetch.AuthChallenge.
type AuthChallenge struct {
	Source string `json:"source"`
	Origin string `json:"origin"`
	Scheme string `json:"scheme"`
	Realm  string `json:"realm"`
}

// FetchAuthRequiredParams mirrors CDP's Fetch.authRequired.
type FetchAuthRequiredParams struct {
	RequestID     string        `json:"requestId"`
	NetworkID     string        `json:"networkId"`
	Request       RequestData   `json:"request"`
	AuthChallenge AuthChallenge `json:"authChallenge"`
}

// Phase is a network interception phase.
type Phase string

const (
	PhaseBeforeRequestSent Phase = "beforeRequestSent"
	PhaseResponseStarted   Phase = "responseStarted"
	PhaseAuthRequired      Phase = "authRequired"
)

// Intercept is one network.addIntercept registration.
type Intercept struct {
	ID       string
	Patterns []*urlpattern.Compiled
	Phases   map[Phase]bool
	Contexts map[string]bool // empty = applies to every context
}

func (i *Intercept) appliesToContext(topLevelCtx string) bool {
	if len(i.Contexts) == 0 {
		return true
	}
	return i.Contexts[topLevelCtx]
}

func (i *Intercept) matchesURL(url string) bool {
	if len(i.Patterns) == 0 {
		return true
	}
	for _, p := range i.Patterns {
		if ok, _ := p.Match(url); ok {
			return true
		}
	}
	return false
}

// Collector is one network.addDataCollector registration.
type Collector struct {
	ID           string
	MaxSize      int
	DataTypes    map[string]bool
	Contexts     map[string]bool
	UserContexts map[string]bool
}

func (c *Collector) appliesToContext(topLevelCtx string) bool {
	if len(c.Contexts) == 0 {
		return true
	}
	return c.Contexts[topLevelCtx]
}
