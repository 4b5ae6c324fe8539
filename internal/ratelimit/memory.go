package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Memory is an in-process sliding-window Counter. Each key holds the
// timestamps of its attempts inside the trailing window; a single mutex makes
// increment-and-compare atomic across concurrent callers.
type Memory struct {
	mu   sync.Mutex
	hits map[string][]time.Time
	now  func() time.Time
}

// NewMemory constructs an empty counter.
func NewMemory() *Memory {
	return &Memory{
		hits: make(map[string][]time.Time),
		now:  time.Now,
	}
}

// SetClock overrides the time source. Test hook.
func (m *Memory) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

func (m *Memory) CheckAndIncrement(ctx context.Context, key string, window time.Duration, limit int) (Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	cutoff := now.Add(-window)

	recent := m.hits[key][:0]
	for _, ts := range m.hits[key] {
		if ts.After(cutoff) {
			recent = append(recent, ts)
		}
	}

	if len(recent) >= limit {
		m.hits[key] = recent
		retry := recent[0].Add(window).Sub(now)
		if retry < time.Second {
			retry = time.Second
		}
		return Result{Allowed: false, Remaining: 0, RetryAfter: retry}, nil
	}

	recent = append(recent, now)
	m.hits[key] = recent
	return Result{Allowed: true, Remaining: limit - len(recent)}, nil
}

// Prune drops keys with no attempts inside the window. Callers may run it
// periodically to bound memory on long-lived processes.
func (m *Memory) Prune(window time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cutoff := m.now().Add(-window)
	for key, stamps := range m.hits {
		recent := stamps[:0]
		for _, ts := range stamps {
			if ts.After(cutoff) {
				recent = append(recent, ts)
			}
		}
		if len(recent) == 0 {
			delete(m.hits, key)
			continue
		}
		m.hits[key] = recent
	}
}
