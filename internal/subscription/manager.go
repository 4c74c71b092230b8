// Package subscription tracks BiDi subscribe/unsubscribe state and answers,
// for any (event, browsing context) pair, the ordered set of channels an
// outgoing event must be delivered on.
//
// The manager is the single source of truth for "is this event
// observable?" — the network tracker consults IsSubscribed before
// waiting for a request to be paused for interception.
package subscription

import (
	"fmt"
	"strconv"
	"sync"
)

// entry is one subscription: the caller-supplied id, its expanded event
// set, the top-level context ids it applies to (empty means every
// context), the user-context ids it applies to (empty means every user
// context), and the channel tag events on it are tagged with.
type entry struct {
	id           string
	events       map[string]struct{}
	contexts     map[string]struct{}
	userContexts map[string]struct{}
	channel      string
}

func (e *entry) global() bool {
	return len(e.contexts) == 0 && len(e.userContexts) == 0
}

// Manager is safe for concurrent use: every method holds its mutex, as
// the event loop reads it while command goroutines subscribe and
// unsubscribe.
type Manager struct {
	mu     sync.Mutex
	subs   map[string]*entry
	order  []string
	nextID int64
}

// NewManager returns an empty subscription manager.
func NewManager() *Manager {
	return &Manager{subs: make(map[string]*entry)}
}

// Subscribe registers a new subscription and returns its id. contexts and
// userContexts are taken as already resolved to top-level ids — resolving
// a nested context to its enclosing top-level context is the caller's
// responsibility (the browsing-context registry owns that mapping).
// An empty events list is rejected by the caller one layer up; Subscribe
// itself accepts it and simply matches nothing.
func (m *Manager) Subscribe(events, contexts, userContexts []string, channel string) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	id := strconv.FormatInt(m.nextID, 10)

	e := &entry{
		id:           id,
		events:       toSet(expandEvents(events)),
		contexts:     toSet(contexts),
		userContexts: toSet(userContexts),
		channel:      channel,
	}
	m.subs[id] = e
	m.order = append(m.order, id)
	return id
}

// UnsubscribeByID removes the subscription with the given id.
func (m *Manager) UnsubscribeByID(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.subs[id]; !ok {
		return fmt.Errorf("no subscription found for id %q", id)
	}
	m.remove(id)
	return nil
}

// UnsubscribeByAttributes removes, atomically, the given events restricted
// to the given contexts on the given channel. If any (event, context)
// pair named has no matching subscription, the call fails and no state is
// changed. An empty contexts list means "the global pair".
func (m *Manager) UnsubscribeByAttributes(events, contexts []string, channel string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	expanded := expandEvents(events)
	checkContexts := contexts
	if len(checkContexts) == 0 {
		checkContexts = []string{""}
	}

	var candidates []*entry
	for _, id := range m.order {
		e := m.subs[id]
		if e.channel == channel {
			candidates = append(candidates, e)
		}
	}

	for _, evt := range expanded {
		for _, ctx := range checkContexts {
			if !coveredBy(candidates, evt, ctx) {
				return fmt.Errorf("no subscription found for event %q context %q on channel %q", evt, ctx, channel)
			}
		}
	}

	contextSet := toSet(contexts)
	for _, e := range candidates {
		for _, evt := range expanded {
			if _, ok := e.events[evt]; !ok {
				continue
			}
			if len(contextSet) == 0 {
				if e.global() {
					delete(e.events, evt)
				}
				continue
			}
			if e.global() {
				// A context-scoped unsubscribe cannot narrow a global
				// subscription; nothing to remove from it.
				continue
			}
			for ctx := range contextSet {
				delete(e.contexts, ctx)
			}
			if len(e.contexts) == 0 {
				delete(e.events, evt)
			}
		}
		if len(e.events) == 0 {
			m.remove(e.id)
		}
	}
	return nil
}

// ChannelsFor returns, in first-subscribed-first order, the distinct
// channel tags subscribed to event for the given top-level context id.
func (m *Manager) ChannelsFor(event, contextID string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	seen := make(map[string]struct{})
	var channels []string
	for _, id := range m.order {
		e := m.subs[id]
		if _, ok := e.events[event]; !ok {
			continue
		}
		if !e.matchesContext(contextID) {
			continue
		}
		if _, dup := seen[e.channel]; dup {
			continue
		}
		seen[e.channel] = struct{}{}
		channels = append(channels, e.channel)
	}
	return channels
}

// IsSubscribed reports whether any channel at all is subscribed to event
// for the given top-level context id (or globally, if contextID is "").
func (m *Manager) IsSubscribed(event, contextID string) bool {
	return len(m.ChannelsFor(event, contextID)) > 0
}

func (e *entry) matchesContext(contextID string) bool {
	if len(e.contexts) == 0 {
		return true
	}
	if contextID == "" {
		return false
	}
	_, ok := e.contexts[contextID]
	return ok
}

func (m *Manager) remove(id string) {
	delete(m.subs, id)
	for i, oid := range m.order {
		if oid == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
}

func coveredBy(candidates []*entry, event, contextID string) bool {
	for _, e := range candidates {
		if _, ok := e.events[event]; !ok {
			continue
		}
		if e.global() {
			return true
		}
		if contextID == "" {
			continue
		}
		if _, ok := e.contexts[contextID]; ok {
			return true
		}
	}
	return false
}

func toSet(values []string) map[string]struct{} {
	if len(values) == 0 {
		return nil
	}
	s := make(map[string]struct{}, len(values))
	for _, v := range values {
		s[v] = struct{}{}
	}
	return s
}
