package pipeline

import (
	"fmt"
	"io"
)

// Snapshot summarises the counters at one point in time.
type Snapshot struct {
	Processed int `json:"processed"`
	Filtered  int `json:"filtered"`
	Sent      int `json:"sent"`
	// LatencySamples is zero when no dispatch succeeded yet; AvgLatencyMs is
	// meaningless in that case.
	LatencySamples int     `json:"latency_samples"`
	AvgLatencyMs   float64 `json:"avg_latency_ms"`
	// FilteringRatio is filtered/processed.
	FilteringRatio float64 `json:"filtering_ratio"`
	// AggregationReduction is (filtered-sent)/filtered.
	AggregationReduction float64 `json:"aggregation_reduction"`
}

// NewSnapshot derives the report figures from c.
func NewSnapshot(c Counters) Snapshot {
	s := Snapshot{
		Processed:      c.MessageCount,
		Filtered:       c.FilteredCount,
		Sent:           c.SentCount,
		LatencySamples: len(c.Latencies),
	}
	if len(c.Latencies) > 0 {
		var sum float64
		for _, l := range c.Latencies {
			sum += l
		}
		s.AvgLatencyMs = sum / float64(len(c.Latencies))
	}
	if c.MessageCount > 0 {
		s.FilteringRatio = float64(c.FilteredCount) / float64(c.MessageCount)
	}
	if c.FilteredCount > 0 {
		s.AggregationReduction = float64(c.FilteredCount-c.SentCount) / float64(c.FilteredCount)
	}
	return s
}

// Report takes a snapshot of state.
func Report(state *State) Snapshot {
	return NewSnapshot(state.Counters())
}

// HasLatency reports whether an average latency is available.
func (s Snapshot) HasLatency() bool { return s.LatencySamples > 0 }

// WriteText writes the human readable metrics report.
func (s Snapshot) WriteText(w io.Writer) error {
	var err error
	p := func(format string, args ...any) {
		if err == nil {
			_, err = fmt.Fprintf(w, format, args...)
		}
	}
	if s.HasLatency() {
		p("Metrics: Average Cloud Latency: %.2f ms\n", s.AvgLatencyMs)
	}
	p("Metrics: Total Messages Processed: %d\n", s.Processed)
	p("Metrics: Filtered Messages: %d\n", s.Filtered)
	p("Metrics: Messages Sent to Cloud: %d\n", s.Sent)
	p("Metrics: Data Reduction (Filtering): %.2f%%\n", s.FilteringRatio*100)
	p("Metrics: Data Reduction (Aggregation): %.2f%%\n", s.AggregationReduction*100)
	return err
}
