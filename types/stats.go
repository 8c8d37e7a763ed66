package types

import (
	"sync"
	"time"
)

// OpStatsSnapshot is a point-in-time view of an OpStats recorder.
type OpStatsSnapshot struct {
	Operations int64         `json:"operations"`
	Failures   int64         `json:"failures"`
	AvgLatency time.Duration `json:"avg_latency"`
}

// OpStats records operation counts, failures and a bounded latency history
// for one subsystem. The facade aggregates snapshots from all subsystems into
// its coordination metrics.
type OpStats struct {
	mu         sync.Mutex
	operations int64
	failures   int64
	latencies  []time.Duration
	next       int
	filled     bool
	capacity   int
}

// NewOpStats creates a recorder keeping at most capacity latency samples.
func NewOpStats(capacity int) *OpStats {
	if capacity <= 0 {
		capacity = 100
	}
	return &OpStats{
		latencies: make([]time.Duration, capacity),
		capacity:  capacity,
	}
}

// Record adds one operation outcome.
func (s *OpStats) Record(latency time.Duration, success bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.operations++
	if !success {
		s.failures++
	}
	s.latencies[s.next] = latency
	s.next++
	if s.next == s.capacity {
		s.next = 0
		s.filled = true
	}
}

// Snapshot returns the current counters and mean latency.
func (s *OpStats) Snapshot() OpStatsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := s.next
	if s.filled {
		n = s.capacity
	}
	var total time.Duration
	for i := 0; i < n; i++ {
		total += s.latencies[i]
	}
	snap := OpStatsSnapshot{Operations: s.operations, Failures: s.failures}
	if n > 0 {
		snap.AvgLatency = total / time.Duration(n)
	}
	return snap
}
