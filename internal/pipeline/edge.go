package pipeline

import (
	"context"
	"time"

	"aircraft-mon/internal/logging"
	"aircraft-mon/internal/telemetry"
)

// Sleeper blocks for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Sleep is the real-time Sleeper.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// EdgeCollector models the BLE link between a sensor and the edge node.
type EdgeCollector struct {
	Latency time.Duration
	Sleep   Sleeper
}

// NewEdgeCollector returns a collector delaying each reading by latency.
func NewEdgeCollector(latency time.Duration) *EdgeCollector {
	return &EdgeCollector{Latency: latency, Sleep: Sleep}
}

// Collect waits for the link latency and returns the reading unchanged.
func (e *EdgeCollector) Collect(ctx context.Context, r telemetry.Reading) (telemetry.Reading, error) {
	sleep := e.Sleep
	if sleep == nil {
		sleep = Sleep
	}
	if err := sleep(ctx, e.Latency); err != nil {
		return telemetry.Reading{}, err
	}
	logging.FromContext(ctx).Debug("edge collected", "sensor_id", r.SensorID,
		"temperature", r.Temperature, "humidity", r.Humidity, "air_quality", r.AirQuality)
	return r, nil
}
