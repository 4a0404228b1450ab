package common

import (
	"sync"
)

// Stats keeps named monotonically increasing counters. It is safe for concurrent use.
type Stats struct {
	counts map[string]uint64
	mu     sync.Mutex
}

func NewStats() *Stats {
	return &Stats{
		counts: map[string]uint64{},
		mu:     sync.Mutex{},
	}
}

func (s *Stats) Incr(key string) {
	s.Add(key, 1)
}

func (s *Stats) Add(key string, n uint64) {
	s.mu.Lock()
	s.counts[key] += n
	s.mu.Unlock()
}

// Snapshot returns a copy of all counters.
func (s *Stats) Snapshot() map[string]uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	res := make(map[string]uint64, len(s.counts))
	for k, v := range s.counts {
		res[k] = v
	}
	return res
}
