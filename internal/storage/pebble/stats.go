package pebblestore

import (
	"sync/atomic"
	"time"
)

// Stats is a MetricsHook that keeps running totals.
type Stats struct {
	writes       atomic.Int64
	writeBytes   atomic.Int64
	reads        atomic.Int64
	readBytes    atomic.Int64
	commits      atomic.Int64
	commitOps    atomic.Int64
	commitBytes  atomic.Int64
	commitMicros atomic.Int64
}

func (s *Stats) ObserveWrite(_ time.Duration, bytes int) {
	s.writes.Add(1)
	s.writeBytes.Add(int64(bytes))
}

func (s *Stats) ObserveRead(_ time.Duration, bytes int) {
	s.reads.Add(1)
	s.readBytes.Add(int64(bytes))
}

func (s *Stats) ObserveBatchCommit(elapsed time.Duration, numOps int, bytes int) {
	s.commits.Add(1)
	s.commitOps.Add(int64(numOps))
	s.commitBytes.Add(int64(bytes))
	s.commitMicros.Add(elapsed.Microseconds())
}

// StatsSnapshot is a point-in-time copy of Stats.
type StatsSnapshot struct {
	Writes       int64 `json:"writes"`
	WriteBytes   int64 `json:"write_bytes"`
	Reads        int64 `json:"reads"`
	ReadBytes    int64 `json:"read_bytes"`
	Commits      int64 `json:"commits"`
	CommitOps    int64 `json:"commit_ops"`
	CommitBytes  int64 `json:"commit_bytes"`
	CommitMicros int64 `json:"commit_micros"`
}

func (s *Stats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		Writes:       s.writes.Load(),
		WriteBytes:   s.writeBytes.Load(),
		Reads:        s.reads.Load(),
		ReadBytes:    s.readBytes.Load(),
		Commits:      s.commits.Load(),
		CommitOps:    s.commitOps.Load(),
		CommitBytes:  s.commitBytes.Load(),
		CommitMicros: s.commitMicros.Load(),
	}
}
