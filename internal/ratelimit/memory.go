package ratelimit

import (
	"context"
	"sync"
	"time"
)

const sweepThreshold = 10000

// MemoryStore keeps counters in process memory, so each instance limits on its own
type MemoryStore struct {
	mu       sync.Mutex
	counters map[string]Counter
	now      func() time.Time
}

// MemoryOption customizes a MemoryStore
type MemoryOption func(*MemoryStore)

// WithClock replaces time.Now
func WithClock(now func() time.Time) MemoryOption {
	return func(s *MemoryStore) {
		s.now = now
	}
}

func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		counters: make(map[string]Counter),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryStore) Increment(_ context.Context, key string, window time.Duration) (Counter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	c, ok := s.counters[key]
	if !ok || !now.Before(c.ResetAt) {
		if len(s.counters) >= sweepThreshold {
			s.sweep(now)
		}
		c = Counter{Count: 1, ResetAt: now.Add(window)}
	} else {
		c.Count++
	}
	s.counters[key] = c
	return c, nil
}

// sweep drops expired windows, caller holds the lock
func (s *MemoryStore) sweep(now time.Time) {
	for key, c := range s.counters {
		if !now.Before(c.ResetAt) {
			delete(s.counters, key)
		}
	}
}

// Len returns the number of tracked keys
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.counters)
}
