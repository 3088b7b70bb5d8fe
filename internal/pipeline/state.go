// Package pipeline implements the edge → fog → cloud telemetry stages and
// the scheduler driving them.
package pipeline

import "sync"

// Counters is a point-in-time copy of the pipeline counters.
type Counters struct {
	MessageCount  int
	FilteredCount int
	SentCount     int
	// Latencies holds dispatch round-trip times in milliseconds, in order.
	Latencies []float64
}

// State holds the counters shared by every stage and stream.
type State struct {
	mu sync.Mutex
	c  Counters
}

// NewState returns zeroed counters.
func NewState() *State {
	return &State{}
}

// IncMessage counts a reading reaching the filter and returns the new total.
func (s *State) IncMessage() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.c.MessageCount++
	return s.c.MessageCount
}

// IncFiltered counts a reading accepted by the filter.
func (s *State) IncFiltered() {
	s.mu.Lock()
	s.c.FilteredCount++
	s.mu.Unlock()
}

// RecordSent counts a successful dispatch and stores its latency.
func (s *State) RecordSent(latencyMs float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.c.SentCount++
	s.c.Latencies = append(s.c.Latencies, latencyMs)
}

// Counters returns a copy safe to use without holding the lock.
func (s *State) Counters() Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.c
	c.Latencies = append([]float64(nil), s.c.Latencies...)
	return c
}
