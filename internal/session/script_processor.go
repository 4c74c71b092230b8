package session

import (
	"context"
	"encoding/json"

	"github.com/grantcarthew/bidictl/internal/bidiproto"
)

// registerScriptProcessor wires script.evaluate/.callFunction/.disown to
// the handful of Runtime.* calls the core itself needs (e.g.
// browsingContext.navigate's future use of document.title), per §4.10.
// Full recursive JS-value (de)serialization is out of scope; only
// primitives and a pass-through object handle are translated.
func (s *Session) registerScriptProcessor() {
	s.router.Register("script.evaluate", s.handleScriptEvaluate)
	s.router.Register("script.callFunction", s.handleScriptCallFunction)
	s.router.Register("script.disown", s.handleScriptDisown)
}

// remoteObjectResult mirrors the subset of CDP's Runtime.RemoteObject
// this translator passes through.
type remoteObjectResult struct {
	Type        string          `json:"type"`
	Subtype     string          `json:"subtype,omitempty"`
	Value       json.RawMessage `json:"value,omitempty"`
	ObjectID    string          `json:"objectId,omitempty"`
	Description string          `json:"description,omitempty"`
}

func bidiResultFromRemoteObject(raw json.RawMessage) interface{} {
	var p struct {
		Result remoteObjectResult `json:"result"`
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return map[string]interface{}{"type": "undefined"}
	}
	out := map[string]interface{}{"type": p.Result.Type}
	if p.Result.Value != nil {
		var v interface{}
		_ = json.Unmarshal(p.Result.Value, &v)
		out["value"] = v
	}
	if p.Result.ObjectID != "" {
		out["handle"] = p.Result.ObjectID
	}
	return out
}

type scriptTargetParams struct {
	Target struct {
		Context string `json:"context"`
	} `json:"target"`
}

func (s *Session) sessionForScriptTarget(contextID string) (string, error) {
	sessionID, ok := s.contexts.SessionForContext(contextID)
	if !ok {
		return "", bidiproto.NewError(bidiproto.ErrNoSuchFrame, "no such context")
	}
	return sessionID, nil
}

func (s *Session) handleScriptEvaluate(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var p struct {
		Expression   string             `json:"expression"`
		Target       scriptTargetParams `json:"target"`
		AwaitPromise bool               `json:"awaitPromise"`
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, bidiproto.NewError(bidiproto.ErrInvalidArgument, err.Error())
	}
	sessionID, err := s.sessionForScriptTarget(p.Target.Target.Context)
	if err != nil {
		return nil, err
	}
	cl, ok := s.cdp.ClientForSession(sessionID)
	if !ok {
		return nil, bidiproto.NewError(bidiproto.ErrNoSuchFrame, "target session no longer attached")
	}

	result, cdpErr := cl.SendContext(ctx, "Runtime.evaluate", map[string]interface{}{
		"expression":    p.Expression,
		"awaitPromise":  p.AwaitPromise,
		"returnByValue": false,
	})
	if cdpErr != nil {
		return nil, bidiproto.NewError(bidiproto.ErrUnknownError, cdpErr.Error())
	}
	return map[string]interface{}{
		"type":   "success",
		"result": bidiResultFromRemoteObject(result),
	}, nil
}

func (s *Session) handleScriptCallFunction(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var p struct {
		FunctionDeclaration string             `json:"functionDeclaration"`
		Target              scriptTargetParams `json:"target"`
		Arguments           []json.RawMessage  `json:"arguments"`
		AwaitPromise        bool               `json:"awaitPromise"`
		This                json.RawMessage    `json:"this"`
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, bidiproto.NewError(bidiproto.ErrInvalidArgument, err.Error())
	}
	sessionID, err := s.sessionForScriptTarget(p.Target.Target.Context)
	if err != nil {
		return nil, err
	}
	cl, ok := s.cdp.ClientForSession(sessionID)
	if !ok {
		return nil, bidiproto.NewError(bidiproto.ErrNoSuchFrame, "target session no longer attached")
	}

	result, cdpErr := cl.SendContext(ctx, "Runtime.callFunctionOn", map[string]interface{}{
		"functionDeclaration": p.FunctionDeclaration,
		"awaitPromise":        p.AwaitPromise,
		"returnByValue":       false,
	})
	if cdpErr != nil {
		return nil, bidiproto.NewError(bidiproto.ErrUnknownError, cdpErr.Error())
	}
	return map[string]interface{}{
		"type":   "success",
		"result": bidiResultFromRemoteObject(result),
	}, nil
}

func (s *Session) handleScriptDisown(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var p struct {
		Handles []string           `json:"handles"`
		Target  scriptTargetParams `json:"target"`
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, bidiproto.NewError(bidiproto.ErrInvalidArgument, err.Error())
	}
	sessionID, err := s.sessionForScriptTarget(p.Target.Target.Context)
	if err != nil {
		return nil, err
	}
	cl, ok := s.cdp.ClientForSession(sessionID)
	if !ok {
		return nil, bidiproto.NewError(bidiproto.ErrNoSuchFrame, "target session no longer attached")
	}
	for _, h := range p.Handles {
		_, _ = cl.SendContext(ctx, "Runtime.releaseObject", map[string]interface{}{"objectId": h})
	}
	return map[string]interface{}{}, nil
}
