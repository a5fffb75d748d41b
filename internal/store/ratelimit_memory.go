package store

import (
	"context"
	"sync"
	"time"
)

// RateLimitMemoryStore is an in-memory implementation of ratelimit.Store.
// Limits are per process.
type RateLimitMemoryStore struct {
	mu       sync.Mutex
	requests map[string][]time.Time
	now      func() time.Time
}

// NewRateLimitMemoryStore creates a new in-memory rate limit store.
func NewRateLimitMemoryStore() *RateLimitMemoryStore {
	return &RateLimitMemoryStore{
		requests: make(map[string][]time.Time),
		now:      time.Now,
	}
}

func (s *RateLimitMemoryStore) Record(_ context.Context, key string, window time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	recent := prune(s.requests[key], now.Add(-window))
	recent = append(recent, now)
	s.requests[key] = recent

	return int64(len(recent)), nil
}

// Sweep drops keys whose requests are all older than window and returns
// how many keys remain.
func (s *RateLimitMemoryStore) Sweep(window time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-window)

	for key, timestamps := range s.requests {
		if recent := prune(timestamps, cutoff); len(recent) == 0 {
			delete(s.requests, key)
		} else {
			s.requests[key] = recent
		}
	}

	return len(s.requests)
}

// prune drops timestamps not after cutoff. Timestamps are in ascending order.
func prune(timestamps []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(timestamps) && !timestamps[i].After(cutoff) {
		i++
	}

	return timestamps[i:]
}
