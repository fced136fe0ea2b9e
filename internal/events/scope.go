package events

import "sync"

// Scope groups the subscriptions acquired on behalf of one owner (a widget
// instance) so they can all be released together on teardown.
type Scope struct {
	bus   *EventBus
	owner string

	mu     sync.Mutex
	subs   []scopedSub
	closed bool
}

type scopedSub struct {
	eventType EventType
	ch        <-chan Event
}

// NewScope creates a subscription scope for owner on bus.
func (eb *EventBus) NewScope(owner string) *Scope {
	return &Scope{bus: eb, owner: owner}
}

// Owner returns the instance handle this scope was created for.
func (s *Scope) Owner() string {
	return s.owner
}

// Subscribe subscribes to eventType and records the subscription in the scope.
// After Close it returns a closed channel.
func (s *Scope) Subscribe(eventType EventType) <-chan Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		ch := make(chan Event)
		close(ch)
		return ch
	}

	ch := s.bus.Subscribe(eventType)
	s.subs = append(s.subs, scopedSub{eventType: eventType, ch: ch})
	return ch
}

// Close releases every subscription held by the scope. Safe to call more than once.
func (s *Scope) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	for _, sub := range s.subs {
		s.bus.Unsubscribe(sub.eventType, sub.ch)
	}
	s.subs = nil
}

// Len reports the number of live subscriptions held by the scope.
func (s *Scope) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}
