package session

// registerPendingCreate reserves a slot keyed by the CDP targetId that
// Target.createTarget returned, so onTargetAttached can hand the new
// context id back to the blocked browsingContext.create call once
// Target.attachedToTarget arrives — the promise/parking idiom of §5,
// one layer above bidievent.Promise.
func (s *Session) registerPendingCreate(targetID string) chan string {
	ch := make(chan string, 1)
	s.pendingMu.Lock()
	s.pendingCreates[targetID] = ch
	s.pendingMu.Unlock()
	return ch
}

func (s *Session) takePendingCreate(targetID string) (chan string, bool) {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()
	ch, ok := s.pendingCreates[targetID]
	if ok {
		delete(s.pendingCreates, targetID)
	}
	return ch, ok
}

func (s *Session) abandonPendingCreate(targetID string) {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()
	delete(s.pendingCreates, targetID)
}

// registerDOMWait/registerLoadWait reserve a per-session signal channel
// for browsingContext.navigate's wait="interactive"/"complete" racing,
// grounded on the teacher's waitForLoadEvent (a channel stashed in a map
// keyed by session id, resolved by the event-loop goroutine, read with a
// timeout by the waiting command goroutine).
func (s *Session) registerDOMWait(sessionID string) chan struct{} {
	ch := make(chan struct{}, 1)
	s.pendingMu.Lock()
	s.pendingDOMLoaded[sessionID] = ch
	s.pendingMu.Unlock()
	return ch
}

func (s *Session) signalDOMLoaded(sessionID string) {
	s.pendingMu.Lock()
	ch, ok := s.pendingDOMLoaded[sessionID]
	delete(s.pendingDOMLoaded, sessionID)
	s.pendingMu.Unlock()
	if ok {
		ch <- struct{}{}
	}
}

func (s *Session) clearDOMWait(sessionID string) {
	s.pendingMu.Lock()
	delete(s.pendingDOMLoaded, sessionID)
	s.pendingMu.Unlock()
}

func (s *Session) registerLoadWait(sessionID string) chan struct{} {
	ch := make(chan struct{}, 1)
	s.pendingMu.Lock()
	s.pendingLoaded[sessionID] = ch
	s.pendingMu.Unlock()
	return ch
}

func (s *Session) signalLoaded(sessionID string) {
	s.pendingMu.Lock()
	ch, ok := s.pendingLoaded[sessionID]
	delete(s.pendingLoaded, sessionID)
	s.pendingMu.Unlock()
	if ok {
		ch <- struct{}{}
	}
}

func (s *Session) clearLoadWait(sessionID string) {
	s.pendingMu.Lock()
	delete(s.pendingLoaded, sessionID)
	s.pendingMu.Unlock()
}
