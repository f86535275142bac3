package dispatch

import (
	"sync"
	"time"
)

// Stats holds the monotonic counters of one job. The cache counters
// are bumped by the translator as it consults its lookup tiers.
type Stats struct {
	mu          sync.Mutex
	submitted   int
	completed   int
	failed      int
	retried     int
	cacheHits   int
	cacheMisses int
	totalWall   time.Duration
}

// NewStats returns zeroed counters.
func NewStats() *Stats {
	return &Stats{}
}

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	Submitted   int           `json:"submitted"`
	Completed   int           `json:"completed"`
	Failed      int           `json:"failed"`
	Retried     int           `json:"retried"`
	CacheHits   int           `json:"cache_hits"`
	CacheMisses int           `json:"cache_misses"`
	TotalWall   time.Duration `json:"total_wall"`
	MeanWall    time.Duration `json:"mean_wall"`
}

// Snapshot copies the counters under the lock.
func (s *Stats) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		Submitted:   s.submitted,
		Completed:   s.completed,
		Failed:      s.failed,
		Retried:     s.retried,
		CacheHits:   s.cacheHits,
		CacheMisses: s.cacheMisses,
		TotalWall:   s.totalWall,
	}
	if done := s.completed + s.failed; done > 0 {
		snap.MeanWall = s.totalWall / time.Duration(done)
	}
	return snap
}

// RecordCacheHit notes that a chunk was served from a lookup tier.
func (s *Stats) RecordCacheHit() {
	s.mu.Lock()
	s.cacheHits++
	s.mu.Unlock()
}

// RecordCacheMiss notes that a chunk required a provider call.
func (s *Stats) RecordCacheMiss() {
	s.mu.Lock()
	s.cacheMisses++
	s.mu.Unlock()
}

func (s *Stats) addSubmitted(n int) {
	s.mu.Lock()
	s.submitted += n
	s.mu.Unlock()
}

func (s *Stats) recordSuccess(wall time.Duration) {
	s.mu.Lock()
	s.completed++
	s.totalWall += wall
	s.mu.Unlock()
}

func (s *Stats) recordFailure(wall time.Duration) {
	s.mu.Lock()
	s.failed++
	s.totalWall += wall
	s.mu.Unlock()
}

func (s *Stats) recordRetry() {
	s.mu.Lock()
	s.retried++
	s.mu.Unlock()
}
