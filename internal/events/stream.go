package events

import "sync"

// Subscriber is invoked once per published event, in publication order.
// Subscribers run synchronously inside AddEvent and must not publish to the
// same stream from within the callback; they signal their own goroutines
// instead.
type Subscriber func(Event)

// Stream is the ordered, append-only publish/subscribe channel scoped to one
// session. A publish does not return until every subscriber has finished
// processing the event, so a slow subscriber delays further publishes rather
// than growing an unbounded buffer.
type Stream struct {
	mu          sync.Mutex
	events      []Event
	subscribers []Subscriber
}

func NewStream() *Stream {
	return &Stream{}
}

// Subscribe registers a callback invoked for every subsequently published
// event, in subscription order.
func (s *Stream) Subscribe(fn Subscriber) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscribers = append(s.subscribers, fn)
}

// AddEvent stamps the event's source, appends it to the log, and invokes
// every subscriber before returning. Events from a single caller are
// observed in the order published; concurrent callers serialize on the
// stream but may interleave with each other.
func (s *Stream) AddEvent(ev Event, src Source) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ev.setSource(src)
	s.events = append(s.events, ev)

	for _, fn := range s.subscribers {
		fn(ev)
	}
}

// Events returns a snapshot of the published log.
func (s *Stream) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}

// Len returns the number of published events.
func (s *Stream) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}
