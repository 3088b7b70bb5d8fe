package pipeline

import (
	"time"

	"aircraft-mon/internal/telemetry"
)

// Observer receives pipeline events. Implementations must be safe for
// concurrent use since every stream runs on its own goroutine.
type Observer interface {
	OnReading(r telemetry.Reading, accepted bool)
	OnAggregate(a telemetry.AggregateReading)
	OnDispatch(a telemetry.AggregateReading, latency time.Duration, err error)
	OnReport(s Snapshot)
}

// Observers fans events out to several observers.
type Observers []Observer

func (o Observers) OnReading(r telemetry.Reading, accepted bool) {
	for _, ob := range o {
		ob.OnReading(r, accepted)
	}
}

func (o Observers) OnAggregate(a telemetry.AggregateReading) {
	for _, ob := range o {
		ob.OnAggregate(a)
	}
}

func (o Observers) OnDispatch(a telemetry.AggregateReading, latency time.Duration, err error) {
	for _, ob := range o {
		ob.OnDispatch(a, latency, err)
	}
}

func (o Observers) OnReport(s Snapshot) {
	for _, ob := range o {
		ob.OnReport(s)
	}
}
