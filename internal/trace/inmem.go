package trace

import "sync"

// InmemSink collects events in memory, for tests and local development —
// mirroring the teacher's runlog/inmem.Store scoping.
type InmemSink struct {
	mu     sync.Mutex
	events []Event
}

// NewInmemSink returns an empty in-memory sink.
func NewInmemSink() *InmemSink {
	return &InmemSink{}
}

// Append stores e.
func (s *InmemSink) Append(e Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return nil
}

// Close is a no-op.
func (s *InmemSink) Close() error { return nil }

// Events returns a snapshot of every appended event, oldest first.
func (s *InmemSink) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}
