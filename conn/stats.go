package conn

import (
	"sync"
	"time"
)

// Stats accumulates query counters for a Conn (spec.md §5's observability
// note: "the pool exposes enough to let an operator see exhaustion
// coming"). Adapted from the teacher's dialect/sql/stats.go counters,
// trimmed to the fields a pooled Postgres client actually needs.
type Stats struct {
	mu            sync.Mutex
	totalQueries  int64
	totalErrors   int64
	totalDuration time.Duration
}

// StatsSnapshot is an immutable point-in-time read of Stats.
type StatsSnapshot struct {
	TotalQueries    int64
	TotalErrors     int64
	AverageDuration time.Duration
}

func (s *Stats) record(d time.Duration, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.totalQueries++
	s.totalDuration += d
	if err != nil {
		s.totalErrors++
	}
}

// Snapshot returns the counters accumulated so far.
func (s *Stats) Snapshot() StatsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := StatsSnapshot{TotalQueries: s.totalQueries, TotalErrors: s.totalErrors}
	if s.totalQueries > 0 {
		snap.AverageDuration = s.totalDuration / time.Duration(s.totalQueries)
	}
	return snap
}
