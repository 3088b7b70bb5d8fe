package pipeline

import (
	"aircraft-mon/internal/telemetry"
)

// Filter passes readings hotter than Threshold.
type Filter struct {
	Threshold float64
	state     *State
}

// NewFilter returns a filter counting into state.
func NewFilter(state *State, threshold float64) *Filter {
	return &Filter{Threshold: threshold, state: state}
}

// Apply counts r and reports whether it passes. Rejection is not an error.
func (f *Filter) Apply(r telemetry.Reading) (telemetry.Reading, bool) {
	r, ok, _ := f.apply(r)
	return r, ok
}

// apply also returns the message count reached by this reading.
func (f *Filter) apply(r telemetry.Reading) (telemetry.Reading, bool, int) {
	n := f.state.IncMessage()
	if r.Temperature > f.Threshold {
		f.state.IncFiltered()
		return r, true, n
	}
	return telemetry.Reading{}, false, n
}
