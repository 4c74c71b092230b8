package network

import "strings"

// buildBeforeRequestSentParams assembles network.beforeRequestSent's
// params from the accumulated request-side buckets.
func (t *Tracker) buildBeforeRequestSentParams(req *Request) map[string]interface{} {
	headers := map[string]string{}
	for k, v := range req.RequestInfo.Request.Headers {
		headers[k] = v
	}
	if req.RequestExtraInfo != nil {
		for k, v := range req.RequestExtraInfo.Headers {
			headers[k] = v
		}
	}

	blocked := req.InterceptPhase == PhaseBeforeRequestSent
	params := map[string]interface{}{
		"context":       nullableContext(req.ContextID),
		"navigation":    nullableString(req.NavigationID),
		"redirectCount": req.RedirectCount,
		"request": map[string]interface{}{
			"request": req.ID,
			"url":     req.RequestInfo.Request.URL,
			"method":  req.RequestInfo.Request.Method,
			"headers": headers,
		},
		"timestamp": fmtTimestamp(req.RequestInfo.WallTime),
		"initiator": map[string]interface{}{
			"type": req.RequestInfo.Initiator.Type,
		},
		"isBlocked": blocked,
	}
	if blocked {
		params["intercepts"] = req.InterceptIDs
	}
	return params
}

// buildResponseStartedParams assembles network.responseStarted's params.
// resp may be the live response or a redirectResponse payload for the
// synthetic redirect event.
func (t *Tracker) buildResponseStartedParams(req *Request, resp *ResponseData, blocked bool) map[string]interface{} {
	params := map[string]interface{}{
		"context":       nullableContext(req.ContextID),
		"navigation":    nullableString(req.NavigationID),
		"redirectCount": req.RedirectCount,
		"response":      t.buildResponseObject(req, resp),
		"isBlocked":     blocked,
	}
	if blocked {
		params["intercepts"] = req.InterceptIDs
	}
	return params
}

// buildResponseCompletedParams assembles network.responseCompleted's
// params.
func (t *Tracker) buildResponseCompletedParams(req *Request, resp *ResponseData, blocked bool) map[string]interface{} {
	return map[string]interface{}{
		"context":       nullableContext(req.ContextID),
		"navigation":    nullableString(req.NavigationID),
		"redirectCount": req.RedirectCount,
		"response":      t.buildResponseObject(req, resp),
	}
}

func (t *Tracker) buildResponseObject(req *Request, resp *ResponseData) map[string]interface{} {
	if resp == nil {
		return map[string]interface{}{
			"url":             req.url(),
			"fromCache":       req.ServedFromCache,
			"status":          0,
			"statusText":      "",
			"headers":         map[string]string{},
		}
	}

	headers := map[string]string{}
	for k, v := range resp.Headers {
		headers[k] = v
	}
	if req.ResponseExtraInfo != nil {
		for k, v := range req.ResponseExtraInfo.Headers {
			headers[k] = v
		}
	}

	out := map[string]interface{}{
		"url":        resp.URL,
		"fromCache":  req.ServedFromCache || resp.FromDiskCache,
		"status":     resp.Status,
		"statusText": resp.StatusText,
		"mimeType":   resp.MimeType,
		"headers":    headers,
	}

	if auth := authChallengeFromHeaders(resp.Status, headers); auth != nil {
		out["authChallenges"] = []interface{}{auth}
	}

	return out
}

// authChallengeFromHeaders parses a 401/407 response's challenge header
// into {scheme, realm}, per spec.md §4.5.6.
func authChallengeFromHeaders(status int, headers map[string]string) map[string]string {
	var raw string
	switch status {
	case 401:
		raw = headerLookup(headers, "www-authenticate")
	case 407:
		raw = headerLookup(headers, "proxy-authenticate")
	default:
		return nil
	}
	if raw == "" {
		return nil
	}
	return parseChallenge(raw)
}

func headerLookup(headers map[string]string, key string) string {
	for k, v := range headers {
		if strings.EqualFold(k, key) {
			return v
		}
	}
	return ""
}

// parseChallenge splits "Scheme realm=\"value\", ..." into {scheme, realm}.
func parseChallenge(raw string) map[string]string {
	scheme := raw
	realm := ""
	if i := strings.IndexByte(raw, ' '); i >= 0 {
		scheme = raw[:i]
		rest := raw[i+1:]
		const needle = `realm="`
		if idx := strings.Index(rest, needle); idx >= 0 {
			start := idx + len(needle)
			if end := strings.IndexByte(rest[start:], '"'); end >= 0 {
				realm = rest[start : start+end]
			}
		}
	}
	return map[string]string{"scheme": scheme, "realm": realm}
}
