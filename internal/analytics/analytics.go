package analytics

import (
	"sync"
	"time"
)

// Event is one tracked occurrence. Properties are free-form and small.
type Event struct {
	Name       string         `json:"name"`
	UserID     string         `json:"user_id,omitempty"`
	Properties map[string]any `json:"properties,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// Sink receives events fire-and-forget. Implementations must never block the
// caller for long and must never let a delivery failure propagate.
type Sink interface {
	Track(name, userID string, properties map[string]any)
}

// NopSink discards everything.
type NopSink struct{}

func (NopSink) Track(string, string, map[string]any) {}

// MemorySink keeps the most recent events in a bounded ring buffer. When the
// buffer is full the oldest event is dropped. It needs no teardown.
type MemorySink struct {
	mu       sync.Mutex
	capacity int
	events   []Event
	start    int
	count    int
}

// NewMemorySink creates a sink holding at most capacity events.
func NewMemorySink(capacity int) *MemorySink {
	if capacity <= 0 {
		capacity = 1000
	}
	return &MemorySink{
		capacity: capacity,
		events:   make([]Event, capacity),
	}
}

// Track records an event, evicting the oldest when at capacity.
func (s *MemorySink) Track(name, userID string, properties map[string]any) {
	evt := Event{
		Name:       name,
		UserID:     userID,
		Properties: properties,
		OccurredAt: time.Now().UTC(),
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.count < s.capacity {
		s.events[(s.start+s.count)%s.capacity] = evt
		s.count++
		return
	}
	s.events[s.start] = evt
	s.start = (s.start + 1) % s.capacity
}

// Recent returns up to n events, newest first.
func (s *MemorySink) Recent(n int) []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n <= 0 || n > s.count {
		n = s.count
	}
	out := make([]Event, 0, n)
	for i := 0; i < n; i++ {
		idx := (s.start + s.count - 1 - i) % s.capacity
		out = append(out, s.events[idx])
	}
	return out
}

// Len returns the number of buffered events.
func (s *MemorySink) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

// MultiSink fans events out to several sinks.
type MultiSink []Sink

func (m MultiSink) Track(name, userID string, properties map[string]any) {
	for _, s := range m {
		if s != nil {
			s.Track(name, userID, properties)
		}
	}
}
