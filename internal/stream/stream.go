// Package stream fan-outs audit events to live subscribers, backing the
// admin-facing security event feed.
package stream

import (
	"context"
	"sync"

	"soundoff.org/internal/audit"
)

// Stream delivers audit events to all active subscribers (SSE clients).
type Stream struct {
	mu   sync.RWMutex
	subs map[int]chan audit.Event
	next int
}

// New initialises an empty stream.
func New() *Stream {
	return &Stream{subs: make(map[int]chan audit.Event)}
}

// Subscribe registers a subscriber and returns a channel which will receive
// events. The channel is closed when the provided context ends.
func (s *Stream) Subscribe(ctx context.Context) <-chan audit.Event {
	ch := make(chan audit.Event, 16)

	s.mu.Lock()
	id := s.next
	s.next++
	s.subs[id] = ch
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		delete(s.subs, id)
		close(ch)
		s.mu.Unlock()
	}()

	return ch
}

// Publish fan-outs the event to all subscribers.
func (s *Stream) Publish(evt audit.Event) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ch := range s.subs {
		select {
		case ch <- evt:
		default:
			// Drop when subscriber is slow to avoid blocking.
		}
	}
}

// Append lets the stream sit behind the audit.Sink interface, typically
// combined with a durable sink via audit.MultiSink. Publishing never fails.
func (s *Stream) Append(ctx context.Context, evt audit.Event) error {
	s.Publish(evt)
	return nil
}
