package session

import (
	"context"
	"encoding/json"

	"github.com/grantcarthew/bidictl/internal/bidiproto"
)

// maxViewportDimension mirrors the platform cap WebDriver BiDi
// implementations enforce on browsingContext.setViewport.
const maxViewportDimension = 10_000_000

func (s *Session) registerBrowsingContextProcessor() {
	s.router.Register("browsingContext.create", s.handleContextCreate)
	s.router.Register("browsingContext.close", s.handleContextClose)
	s.router.Register("browsingContext.navigate", s.handleContextNavigate)
	s.router.Register("browsingContext.reload", s.handleContextReload)
	s.router.Register("browsingContext.getTree", s.handleContextGetTree)
	s.router.Register("browsingContext.setViewport", s.handleContextSetViewport)
}

type contextCreateParams struct {
	Type             string  `json:"type"`
	ReferenceContext *string `json:"referenceContext"`
	Background       bool    `json:"background"`
}

// handleContextCreate issues Target.createTarget and parks until
// Target.attachedToTarget resolves the new context id, per §4.7.
func (s *Session) handleContextCreate(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var p contextCreateParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, bidiproto.NewError(bidiproto.ErrInvalidArgument, err.Error())
	}

	cdpParams := map[string]interface{}{"url": "about:blank"}
	if p.Type == "window" {
		cdpParams["newWindow"] = true
	}
	cdpParams["background"] = p.Background

	result, err := s.cdp.BrowserClient().SendContext(ctx, "Target.createTarget", cdpParams)
	if err != nil {
		return nil, bidiproto.NewError(bidiproto.ErrUnknownError, err.Error())
	}
	var created struct {
		TargetID string `json:"targetId"`
	}
	if err := json.Unmarshal(result, &created); err != nil {
		return nil, bidiproto.NewError(bidiproto.ErrUnknownError, err.Error())
	}

	waitCh := s.registerPendingCreate(created.TargetID)
	select {
	case contextID := <-waitCh:
		return map[string]interface{}{"context": contextID}, nil
	case <-ctx.Done():
		s.abandonPendingCreate(created.TargetID)
		return nil, bidiproto.ErrClosed
	case <-s.shutdown:
		s.abandonPendingCreate(created.TargetID)
		return nil, bidiproto.ErrClosed
	}
}

type contextIDParams struct {
	Context string `json:"context"`
}

func (s *Session) handleContextClose(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var p contextIDParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, bidiproto.NewError(bidiproto.ErrInvalidArgument, err.Error())
	}
	bctx, ok := s.contexts.Get(p.Context)
	if !ok {
		return nil, bidiproto.NewError(bidiproto.ErrNoSuchFrame, "no such context")
	}

	_, err := s.cdp.BrowserClient().SendContext(ctx, "Target.closeTarget", map[string]interface{}{"targetId": bctx.TargetID})
	if err != nil {
		return nil, bidiproto.NewError(bidiproto.ErrUnknownError, err.Error())
	}
	return map[string]interface{}{}, nil
}

type navigateParams struct {
	Context string `json:"context"`
	URL     string `json:"url"`
	Wait    string `json:"wait"`
}

// handleContextNavigate races CDP's own navigate ack against the BiDi
// navigation lifecycle, resolving on whichever the wait parameter names
// (teacher's handleNavigate "return before frameNavigated" pattern,
// generalized to the three wait levels).
func (s *Session) handleContextNavigate(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var p navigateParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, bidiproto.NewError(bidiproto.ErrInvalidArgument, err.Error())
	}

	sessionID, ok := s.contexts.SessionForContext(p.Context)
	if !ok {
		return nil, bidiproto.NewError(bidiproto.ErrNoSuchFrame, "no such context")
	}
	cl, ok := s.cdp.ClientForSession(sessionID)
	if !ok {
		return nil, bidiproto.NewError(bidiproto.ErrNoSuchFrame, "target session no longer attached")
	}

	nav, preemptedID := s.contexts.StartNavigation(p.Context, p.URL)
	if preemptedID != "" {
		s.events.Enqueue(p.Context, "browsingContext.navigationAborted", map[string]interface{}{
			"context":    p.Context,
			"navigation": preemptedID,
			"url":        p.URL,
		})
	}
	s.events.Enqueue(p.Context, "browsingContext.navigationStarted", map[string]interface{}{
		"context":    p.Context,
		"navigation": nav.ID,
		"url":        p.URL,
	})

	domCh := s.registerDOMWait(sessionID)
	loadCh := s.registerLoadWait(sessionID)

	if _, err := cl.SendContext(ctx, "Page.navigate", map[string]interface{}{"url": p.URL}); err != nil {
		s.clearDOMWait(sessionID)
		s.clearLoadWait(sessionID)
		s.contexts.FailNavigation(p.Context)
		return nil, bidiproto.NewError(bidiproto.ErrUnknownError, err.Error())
	}

	switch p.Wait {
	case "interactive":
		s.clearLoadWait(sessionID)
		select {
		case <-domCh:
		case <-ctx.Done():
			return nil, bidiproto.ErrClosed
		case <-s.shutdown:
			return nil, bidiproto.ErrClosed
		}
	case "complete":
		s.clearDOMWait(sessionID)
		select {
		case <-loadCh:
		case <-ctx.Done():
			return nil, bidiproto.ErrClosed
		case <-s.shutdown:
			return nil, bidiproto.ErrClosed
		}
	default:
		s.clearDOMWait(sessionID)
		s.clearLoadWait(sessionID)
	}

	return map[string]interface{}{
		"navigation": nav.ID,
		"url":        p.URL,
	}, nil
}

func (s *Session) handleContextReload(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var p struct {
		Context       string `json:"context"`
		IgnoreCache   bool   `json:"ignoreCache"`
		Wait          string `json:"wait"`
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, bidiproto.NewError(bidiproto.ErrInvalidArgument, err.Error())
	}

	sessionID, ok := s.contexts.SessionForContext(p.Context)
	if !ok {
		return nil, bidiproto.NewError(bidiproto.ErrNoSuchFrame, "no such context")
	}
	cl, ok := s.cdp.ClientForSession(sessionID)
	if !ok {
		return nil, bidiproto.NewError(bidiproto.ErrNoSuchFrame, "target session no longer attached")
	}

	nav, _ := s.contexts.StartNavigation(p.Context, "")
	s.events.Enqueue(p.Context, "browsingContext.navigationStarted", map[string]interface{}{
		"context":    p.Context,
		"navigation": nav.ID,
		"url":        "",
	})

	domCh := s.registerDOMWait(sessionID)
	loadCh := s.registerLoadWait(sessionID)

	if _, err := cl.SendContext(ctx, "Page.reload", map[string]interface{}{"ignoreCache": p.IgnoreCache}); err != nil {
		s.clearDOMWait(sessionID)
		s.clearLoadWait(sessionID)
		s.contexts.FailNavigation(p.Context)
		return nil, bidiproto.NewError(bidiproto.ErrUnknownError, err.Error())
	}

	switch p.Wait {
	case "interactive":
		s.clearLoadWait(sessionID)
		select {
		case <-domCh:
		case <-ctx.Done():
			return nil, bidiproto.ErrClosed
		case <-s.shutdown:
			return nil, bidiproto.ErrClosed
		}
	case "complete":
		s.clearDOMWait(sessionID)
		select {
		case <-loadCh:
		case <-ctx.Done():
			return nil, bidiproto.ErrClosed
		case <-s.shutdown:
			return nil, bidiproto.ErrClosed
		}
	default:
		s.clearDOMWait(sessionID)
		s.clearLoadWait(sessionID)
	}

	return map[string]interface{}{"navigation": nav.ID}, nil
}

func (s *Session) handleContextGetTree(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	tree := s.contexts.GetTree()
	out := make([]map[string]interface{}, 0, len(tree))
	for _, c := range tree {
		out = append(out, map[string]interface{}{
			"context":     c.ID,
			"url":         c.URL,
			"children":    c.Children,
			"parent":      nullableContextID(c.ParentID),
			"userContext": "default",
		})
	}
	return map[string]interface{}{"contexts": out}, nil
}

type setViewportParams struct {
	Context  string `json:"context"`
	Viewport *struct {
		Width  int `json:"width"`
		Height int `json:"height"`
	} `json:"viewport"`
	DevicePixelRatio *float64 `json:"devicePixelRatio"`
}

func (s *Session) handleContextSetViewport(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var p setViewportParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, bidiproto.NewError(bidiproto.ErrInvalidArgument, err.Error())
	}

	sessionID, ok := s.contexts.SessionForContext(p.Context)
	if !ok {
		return nil, bidiproto.NewError(bidiproto.ErrNoSuchFrame, "no such context")
	}
	cl, ok := s.cdp.ClientForSession(sessionID)
	if !ok {
		return nil, bidiproto.NewError(bidiproto.ErrNoSuchFrame, "target session no longer attached")
	}

	cdpParams := map[string]interface{}{"mobile": false}
	if p.Viewport != nil {
		if p.Viewport.Width > maxViewportDimension || p.Viewport.Height > maxViewportDimension {
			return nil, bidiproto.NewError(bidiproto.ErrInvalidArgument, "viewport dimensions exceed the platform cap")
		}
		cdpParams["width"] = p.Viewport.Width
		cdpParams["height"] = p.Viewport.Height
	}
	ratio := 1.0
	if p.DevicePixelRatio != nil {
		ratio = *p.DevicePixelRatio
	}
	cdpParams["deviceScaleFactor"] = ratio

	if _, err := cl.SendContext(ctx, "Emulation.setDeviceMetricsOverride", cdpParams); err != nil {
		return nil, bidiproto.NewError(bidiproto.ErrUnknownError, err.Error())
	}
	return map[string]interface{}{}, nil
}
