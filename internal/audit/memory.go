package audit

import (
	"context"
	"sync"
)

// Memory keeps appended events in process. Used by tests and as a buffer for
// the live security-event stream.
type Memory struct {
	mu     sync.Mutex
	events []Event
}

// NewMemory constructs an empty in-memory sink.
func NewMemory() *Memory { return &Memory{} }

func (m *Memory) Append(ctx context.Context, evt Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, evt)
	return nil
}

// Events returns a copy of everything appended so far.
func (m *Memory) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Event, len(m.events))
	copy(out, m.events)
	return out
}

// Len reports how many events have been appended.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events)
}
