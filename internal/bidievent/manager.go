// Package bidievent buffers and orders outgoing BiDi events per browsing
// context, supporting deferred "promise" events whose delivery slot is
// reserved at registration time and filled in later, out of order, without
// disturbing causal ordering.
package bidievent

import "sync"

// ChannelResolver answers, for an event method and a top-level context id
// ("" for context-less events), the ordered set of channels currently
// subscribed to it. It is normally backed by a *subscription.Manager.
type ChannelResolver func(method, contextID string) []string

// Deliverer is called once per (event, channel) pair, in enqueue order
// within that channel.
type Deliverer func(method string, params interface{}, channel string)

type slotState int

const (
	slotPending slotState = iota
	slotReady
	slotDropped
)

type slot struct {
	state  slotState
	method string
	params interface{}
}

// Manager orders and delivers BiDi events. It is not safe for concurrent
// use by design — per spec §5 the event manager is driven exclusively by
// the session's single event-loop goroutine — but guards its internal
// state with a mutex anyway since Promise.Resolve may be called from a
// CDP read-loop goroutine racing the event loop's own enqueues.
type Manager struct {
	mu       sync.Mutex
	queues   map[string][]*slot
	resolve  ChannelResolver
	deliver  Deliverer
	hooks    map[string][]func(channel string)
	contexts map[string]struct{} // observed context ids, for subscribe-hook bookkeeping
}

// NewManager returns a Manager that resolves subscribed channels via
// resolve and delivers events via deliver.
func NewManager(resolve ChannelResolver, deliver Deliverer) *Manager {
	return &Manager{
		queues:   make(map[string][]*slot),
		resolve:  resolve,
		deliver:  deliver,
		hooks:    make(map[string][]func(channel string)),
		contexts: make(map[string]struct{}),
	}
}

// globalKey is the queue key used for events with no associated context.
const globalKey = ""

// Enqueue appends an immediately-ready event to contextID's queue (or the
// global queue, if contextID is ""). Flushing happens synchronously.
func (m *Manager) Enqueue(contextID, method string, params interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := &slot{state: slotReady, method: method, params: params}
	m.queues[contextID] = append(m.queues[contextID], s)
	m.flush(contextID)
}

// Promise is a reserved, not-yet-resolved slot in a context's event
// queue. Exactly one of Resolve or Drop must be called, exactly once.
type Promise struct {
	m         *Manager
	contextID string
	slot      *slot
}

// EnqueuePromise reserves a slot for contextID's queue at the current
// enqueue position, to be filled in later by Resolve or Drop. This is how
// the network tracker preserves ordering when a CDP event's companion
// extraInfo event hasn't arrived yet.
func (m *Manager) EnqueuePromise(contextID string) *Promise {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := &slot{state: slotPending}
	m.queues[contextID] = append(m.queues[contextID], s)
	return &Promise{m: m, contextID: contextID, slot: s}
}

// Resolve fills the promise's slot with method/params and flushes any
// slots now unblocked. The slot keeps its original registration position.
func (p *Promise) Resolve(method string, params interface{}) {
	p.m.mu.Lock()
	defer p.m.mu.Unlock()

	p.slot.state = slotReady
	p.slot.method = method
	p.slot.params = params
	p.m.flush(p.contextID)
}

// Drop abandons the promise silently, freeing its slot without emitting
// anything.
func (p *Promise) Drop() {
	p.m.mu.Lock()
	defer p.m.mu.Unlock()

	p.slot.state = slotDropped
	p.m.flush(p.contextID)
}

// flush delivers every ready/dropped slot at the head of contextID's
// queue, stopping at the first still-pending slot so ordering is never
// violated. Caller must hold m.mu.
func (m *Manager) flush(contextID string) {
	q := m.queues[contextID]
	i := 0
	for i < len(q) && q[i].state != slotPending {
		s := q[i]
		if s.state == slotReady {
			for _, channel := range m.resolve(s.method, contextID) {
				m.deliver(s.method, s.params, channel)
			}
		}
		i++
	}
	m.queues[contextID] = q[i:]
}

// RegisterSubscribeHook records hook to be invoked with the subscribing
// channel whenever a new subscription is established covering event.
// Used so late subscribers receive synthetic replay events (e.g.
// browsingContext.contextCreated for every context that already exists).
func (m *Manager) RegisterSubscribeHook(event string, hook func(channel string)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hooks[event] = append(m.hooks[event], hook)
}

// NotifySubscribed must be called after a subscription is established
// for event on channel; it replays any registered subscribe hooks.
func (m *Manager) NotifySubscribed(event, channel string) {
	m.mu.Lock()
	hooks := append([]func(channel string){}, m.hooks[event]...)
	m.mu.Unlock()

	for _, hook := range hooks {
		hook(channel)
	}
}

// TrackContext records contextID as observed, for callers that want to
// enumerate known contexts when building a subscribe-hook replay.
func (m *Manager) TrackContext(contextID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.contexts[contextID] = struct{}{}
}

// UntrackContext removes contextID from the observed set and drops its
// queue; any slots still pending in it are discarded.
func (m *Manager) UntrackContext(contextID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.contexts, contextID)
	delete(m.queues, contextID)
}

// KnownContexts returns the currently tracked context ids, for subscribe
// hooks that need to enumerate existing contexts at replay time.
func (m *Manager) KnownContexts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.contexts))
	for id := range m.contexts {
		out = append(out, id)
	}
	return out
}
