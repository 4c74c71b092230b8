package subscription

// moduleEvents lists every event a whole-module wildcard subscription
// expands to, fixed at subscribe time per the module's event surface.
var moduleEvents = map[string][]string{
	"browsingContext": {
		"browsingContext.contextCreated",
		"browsingContext.contextDestroyed",
		"browsingContext.navigationStarted",
		"browsingContext.fragmentNavigated",
		"browsingContext.historyUpdated",
		"browsingContext.domContentLoaded",
		"browsingContext.load",
		"browsingContext.downloadWillBegin",
		"browsingContext.navigationAborted",
		"browsingContext.navigationCommitted",
		"browsingContext.navigationFailed",
		"browsingContext.userPromptOpened",
		"browsingContext.userPromptClosed",
	},
	"network": {
		"network.beforeRequestSent",
		"network.responseStarted",
		"network.responseCompleted",
		"network.authRequired",
		"network.fetchError",
	},
	"script": {
		"script.message",
		"script.realmCreated",
		"script.realmDestroyed",
	},
	"log": {
		"log.entryAdded",
	},
}

// expandEvents resolves module wildcards ("network") to their fixed event
// list, leaving fully-qualified event names ("network.beforeRequestSent")
// untouched. The expansion is computed once, at subscribe time: later
// additions to a module's surface never retroactively affect an existing
// subscription.
func expandEvents(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	var out []string
	add := func(name string) {
		if _, ok := seen[name]; ok {
			return
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}

	for _, name := range names {
		if expanded, ok := moduleEvents[name]; ok {
			for _, e := range expanded {
				add(e)
			}
			continue
		}
		add(name)
	}
	return out
}
