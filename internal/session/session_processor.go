package session

import (
	"context"
	"encoding/json"

	"github.com/grantcarthew/bidictl/internal/bidiproto"
)

// registerProcessors binds every BiDi command method this translator
// understands to its processor, plus an unsupported-operation stub for
// every named-but-unimplemented method, so the router is total over the
// namespace spec.md's error taxonomy assumes.
func (s *Session) registerProcessors() {
	s.registerSessionProcessor()
	s.registerBrowsingContextProcessor()
	s.registerNetworkProcessor()
	s.registerScriptProcessor()
	s.registerStubProcessor()
}

func (s *Session) registerSessionProcessor() {
	s.router.Register("session.new", s.handleSessionNew)
	s.router.Register("session.status", s.handleSessionStatus)
	s.router.Register("session.subscribe", s.handleSessionSubscribe)
	s.router.Register("session.unsubscribe", s.handleSessionUnsubscribe)
	s.router.Register("session.end", s.handleSessionEnd)

	s.events.RegisterSubscribeHook("browsingContext.contextCreated", func(channel string) {
		for _, ctxID := range s.events.KnownContexts() {
			ctx, ok := s.contexts.Get(ctxID)
			if !ok {
				continue
			}
			s.deliverEvent("browsingContext.contextCreated", map[string]interface{}{
				"context":        ctx.ID,
				"url":            ctx.URL,
				"children":       nil,
				"parent":         nullableContextID(ctx.ParentID),
				"userContext":    "default",
				"originalOpener": nil,
			}, channel)
		}
	})
}

// handleSessionNew always grants the one browser/context tree this
// translator drives; it accepts but does not enforce any requested
// capability (acceptInsecureCerts, proxy), per spec.md's non-goals.
func (s *Session) handleSessionNew(ctx context.Context, params json.RawMessage) (interface{}, error) {
	return map[string]interface{}{
		"sessionId": "bidictl",
		"capabilities": map[string]interface{}{
			"browserName":    "chrome",
			"browserVersion": "",
			"platformName":   "",
			"acceptInsecureCerts": false,
			"setWindowRect":  true,
		},
	}, nil
}

func (s *Session) handleSessionStatus(ctx context.Context, params json.RawMessage) (interface{}, error) {
	return map[string]interface{}{
		"ready":   true,
		"message": "",
	}, nil
}

// topLevelContexts resolves each context id to its top-level ancestor, since
// subscription.Manager and the network tracker key subscriptions off
// top-level context ids only: subscribing to a nested context must subscribe
// to the context tree it belongs to. An id FindTopLevelContextID can't
// resolve (not yet known to this session) is passed through unchanged.
func (s *Session) topLevelContexts(contexts []string) []string {
	if len(contexts) == 0 {
		return contexts
	}
	out := make([]string, len(contexts))
	for i, ctxID := range contexts {
		if top := s.contexts.FindTopLevelContextID(ctxID); top != "" {
			out[i] = top
		} else {
			out[i] = ctxID
		}
	}
	return out
}

type subscribeParams struct {
	Events       []string `json:"events"`
	Contexts     []string `json:"contexts"`
	UserContexts []string `json:"userContexts"`
}

func (s *Session) handleSessionSubscribe(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var p subscribeParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, bidiproto.NewError(bidiproto.ErrInvalidArgument, err.Error())
	}
	if len(p.Events) == 0 {
		return nil, bidiproto.NewError(bidiproto.ErrInvalidArgument, "events must not be empty")
	}

	channel := channelFrom(ctx)
	id := s.subs.Subscribe(p.Events, s.topLevelContexts(p.Contexts), p.UserContexts, channel)

	for _, evt := range p.Events {
		s.events.NotifySubscribed(evt, channel)
	}

	return map[string]interface{}{"subscription": id}, nil
}

type unsubscribeParams struct {
	Subscriptions []string `json:"subscriptions"`
	Events        []string `json:"events"`
	Contexts      []string `json:"contexts"`
}

func (s *Session) handleSessionUnsubscribe(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var p unsubscribeParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, bidiproto.NewError(bidiproto.ErrInvalidArgument, err.Error())
	}

	if len(p.Subscriptions) > 0 {
		for _, id := range p.Subscriptions {
			if err := s.subs.UnsubscribeByID(id); err != nil {
				return nil, bidiproto.NewError(bidiproto.ErrInvalidArgument, err.Error())
			}
		}
		return map[string]interface{}{}, nil
	}

	channel := channelFrom(ctx)
	if err := s.subs.UnsubscribeByAttributes(p.Events, s.topLevelContexts(p.Contexts), channel); err != nil {
		return nil, bidiproto.NewError(bidiproto.ErrInvalidArgument, err.Error())
	}
	return map[string]interface{}{}, nil
}

// handleSessionEnd closes the CDP connection and signals Run to stop;
// every command still parked on a future CDP event unblocks with
// closed, per §7.
func (s *Session) handleSessionEnd(ctx context.Context, params json.RawMessage) (interface{}, error) {
	go s.Close()
	return map[string]interface{}{}, nil
}
