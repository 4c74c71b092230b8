package session

import (
	"context"
	"encoding/json"

	"github.com/grantcarthew/bidictl/internal/bidiproto"
	"github.com/grantcarthew/bidictl/internal/network"
	"github.com/grantcarthew/bidictl/internal/urlpattern"
)

func (s *Session) registerNetworkProcessor() {
	s.router.Register("network.addIntercept", s.handleAddIntercept)
	s.router.Register("network.removeIntercept", s.handleRemoveIntercept)
	s.router.Register("network.continueRequest", s.handleContinueRequest)
	s.router.Register("network.continueResponse", s.handleContinueResponse)
	s.router.Register("network.continueWithAuth", s.handleContinueWithAuth)
	s.router.Register("network.failRequest", s.handleFailRequest)
	s.router.Register("network.provideResponse", s.handleProvideResponse)
	s.router.Register("network.setCacheBehavior", s.handleSetCacheBehavior)
	s.router.Register("network.addDataCollector", s.handleAddDataCollector)
	s.router.Register("network.removeDataCollector", s.handleRemoveDataCollector)
	s.router.Register("network.getData", s.handleGetData)
	s.router.Register("network.disownData", s.handleDisownData)
}

// urlPatternJSON mirrors the discriminated union BiDi's network.UrlPattern
// is: {type: "string", pattern} or {type: "pattern", protocol, ...}.
type urlPatternJSON struct {
	Type     string  `json:"type"`
	Pattern  string  `json:"pattern"`
	Protocol *string `json:"protocol"`
	Hostname *string `json:"hostname"`
	Port     *string `json:"port"`
	Pathname *string `json:"pathname"`
	Search   *string `json:"search"`
}

func (p urlPatternJSON) toPattern() (urlpattern.Pattern, error) {
	if p.Type == "string" {
		pattern, err := urlpattern.ParseString(p.Pattern)
		if err != nil {
			return urlpattern.Pattern{}, err
		}
		if _, err := urlpattern.Compile(pattern); err != nil {
			return urlpattern.Pattern{}, err
		}
		return pattern, nil
	}
	return urlpattern.Pattern{
		Protocol: p.Protocol,
		Hostname: p.Hostname,
		Port:     p.Port,
		Pathname: p.Pathname,
		Search:   p.Search,
	}, nil
}

type addInterceptParams struct {
	Phases      []string         `json:"phases"`
	URLPatterns []urlPatternJSON `json:"urlPatterns"`
	Contexts    []string         `json:"contexts"`
}

func (s *Session) handleAddIntercept(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var p addInterceptParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, bidiproto.NewError(bidiproto.ErrInvalidArgument, err.Error())
	}
	if len(p.Phases) == 0 {
		return nil, bidiproto.NewError(bidiproto.ErrInvalidArgument, "phases must not be empty")
	}

	phases := make([]network.Phase, 0, len(p.Phases))
	for _, ph := range p.Phases {
		phases = append(phases, network.Phase(ph))
	}
	patterns := make([]urlpattern.Pattern, 0, len(p.URLPatterns))
	for _, up := range p.URLPatterns {
		pattern, err := up.toPattern()
		if err != nil {
			return nil, bidiproto.NewError(bidiproto.ErrInvalidArgument, err.Error())
		}
		patterns = append(patterns, pattern)
	}

	id, err := s.tracker.AddIntercept(phases, patterns, p.Contexts)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"intercept": id}, nil
}

func (s *Session) handleRemoveIntercept(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var p struct {
		Intercept string `json:"intercept"`
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, bidiproto.NewError(bidiproto.ErrInvalidArgument, err.Error())
	}
	if err := s.tracker.RemoveIntercept(p.Intercept); err != nil {
		return nil, err
	}
	return map[string]interface{}{}, nil
}

func sessionForRequest(s *Session, requestID string) string {
	req, err := s.tracker.RequestByID(requestID)
	if err != nil {
		return ""
	}
	sessionID, _ := s.contexts.SessionForContext(req.TopLevelContext)
	return sessionID
}

type continueRequestParams struct {
	Request string             `json:"request"`
	URL     *string            `json:"url"`
	Method  *string            `json:"method"`
	Headers []network.NameValue `json:"headers"`
	Body    *string            `json:"body"`
}

func (s *Session) handleContinueRequest(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var p continueRequestParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, bidiproto.NewError(bidiproto.ErrInvalidArgument, err.Error())
	}
	sessionID := sessionForRequest(s, p.Request)
	if err := s.tracker.ContinueRequest(ctx, sessionID, p.Request, p.URL, p.Method, p.Headers, p.Body); err != nil {
		return nil, err
	}
	return map[string]interface{}{}, nil
}

type continueResponseParams struct {
	Request      string             `json:"request"`
	StatusCode   *int               `json:"statusCode"`
	ReasonPhrase *string            `json:"reasonPhrase"`
	Headers      []network.NameValue `json:"headers"`
}

func (s *Session) handleContinueResponse(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var p continueResponseParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, bidiproto.NewError(bidiproto.ErrInvalidArgument, err.Error())
	}
	sessionID := sessionForRequest(s, p.Request)
	if err := s.tracker.ContinueResponse(ctx, sessionID, p.Request, p.StatusCode, p.ReasonPhrase, p.Headers); err != nil {
		return nil, err
	}
	return map[string]interface{}{}, nil
}

type continueWithAuthParams struct {
	Request  string  `json:"request"`
	Action   string  `json:"action"`
	Username *string `json:"username"`
	Password *string `json:"password"`
}

func (s *Session) handleContinueWithAuth(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var p continueWithAuthParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, bidiproto.NewError(bidiproto.ErrInvalidArgument, err.Error())
	}
	sessionID := sessionForRequest(s, p.Request)
	if err := s.tracker.ContinueWithAuth(ctx, sessionID, p.Request, p.Action, p.Username, p.Password); err != nil {
		return nil, err
	}
	return map[string]interface{}{}, nil
}

func (s *Session) handleFailRequest(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var p struct {
		Request string `json:"request"`
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, bidiproto.NewError(bidiproto.ErrInvalidArgument, err.Error())
	}
	sessionID := sessionForRequest(s, p.Request)
	if err := s.tracker.FailRequest(ctx, sessionID, p.Request); err != nil {
		return nil, err
	}
	return map[string]interface{}{}, nil
}

type provideResponseParams struct {
	Request      string             `json:"request"`
	StatusCode   *int               `json:"statusCode"`
	ReasonPhrase *string            `json:"reasonPhrase"`
	Headers      []network.NameValue `json:"headers"`
	Body         *string            `json:"body"`
}

func (s *Session) handleProvideResponse(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var p provideResponseParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, bidiproto.NewError(bidiproto.ErrInvalidArgument, err.Error())
	}
	sessionID := sessionForRequest(s, p.Request)
	if err := s.tracker.ProvideResponse(ctx, sessionID, p.Request, p.StatusCode, p.ReasonPhrase, p.Headers, p.Body); err != nil {
		return nil, err
	}
	return map[string]interface{}{}, nil
}

func (s *Session) handleSetCacheBehavior(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var p struct {
		CacheBehavior string   `json:"cacheBehavior"`
		Contexts      []string `json:"contexts"`
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, bidiproto.NewError(bidiproto.ErrInvalidArgument, err.Error())
	}
	disabled := p.CacheBehavior == "bypass"

	targets := p.Contexts
	if len(targets) == 0 {
		for _, c := range s.contexts.GetTree() {
			targets = append(targets, c.ID)
		}
	}
	for _, ctxID := range targets {
		sessionID, ok := s.contexts.SessionForContext(ctxID)
		if !ok {
			continue
		}
		cl, ok := s.cdp.ClientForSession(sessionID)
		if !ok {
			continue
		}
		_, _ = cl.SendContext(ctx, "Network.setCacheDisabled", map[string]interface{}{"cacheDisabled": disabled})
	}
	return map[string]interface{}{}, nil
}

type addDataCollectorParams struct {
	DataTypes    []string `json:"dataTypes"`
	MaxEncodedDataSize int `json:"maxEncodedDataSize"`
	Contexts     []string `json:"contexts"`
	UserContexts []string `json:"userContexts"`
}

func (s *Session) handleAddDataCollector(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var p addDataCollectorParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, bidiproto.NewError(bidiproto.ErrInvalidArgument, err.Error())
	}
	id, err := s.tracker.AddDataCollector(p.DataTypes, p.MaxEncodedDataSize, p.Contexts, p.UserContexts)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"collector": id}, nil
}

func (s *Session) handleRemoveDataCollector(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var p struct {
		Collector string `json:"collector"`
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, bidiproto.NewError(bidiproto.ErrInvalidArgument, err.Error())
	}
	if err := s.tracker.RemoveDataCollector(p.Collector); err != nil {
		return nil, err
	}
	return map[string]interface{}{}, nil
}

func (s *Session) handleGetData(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var p struct {
		Collector string `json:"collector"`
		Request   string `json:"request"`
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, bidiproto.NewError(bidiproto.ErrInvalidArgument, err.Error())
	}
	body, err := s.tracker.GetData(p.Collector, p.Request)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"bytes": string(body)}, nil
}

func (s *Session) handleDisownData(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var p struct {
		Collector string `json:"collector"`
		Request   string `json:"request"`
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, bidiproto.NewError(bidiproto.ErrInvalidArgument, err.Error())
	}
	if err := s.tracker.DisownData(p.Collector, p.Request); err != nil {
		return nil, err
	}
	return map[string]interface{}{}, nil
}
