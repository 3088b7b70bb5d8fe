package pipeline

import (
	"sync"
	"time"

	"aircraft-mon/internal/telemetry"
)

// Aggregator averages accepted readings over count-based windows.
//
// In shared mode every stream feeds one window and aggregates carry the
// "aggregated" label. In per-sensor mode each sensor has its own window and
// aggregates carry the sensor id.
type Aggregator struct {
	window    int
	perSensor bool
	now       func() time.Time

	mu      sync.Mutex
	buffers map[string][]telemetry.Reading
}

// NewAggregator returns an aggregator emitting every window readings.
func NewAggregator(window int, perSensor bool) *Aggregator {
	if window < 1 {
		window = 1
	}
	return &Aggregator{
		window:    window,
		perSensor: perSensor,
		now:       time.Now,
		buffers:   make(map[string][]telemetry.Reading),
	}
}

func (a *Aggregator) key(sensorID string) string {
	if a.perSensor {
		return sensorID
	}
	return telemetry.AggregatedSensorID
}

// Accumulate buffers r and returns the window mean once the window is full.
func (a *Aggregator) Accumulate(r telemetry.Reading) (telemetry.AggregateReading, bool) {
	key := a.key(r.SensorID)

	a.mu.Lock()
	buf := append(a.buffers[key], r)
	if len(buf) < a.window {
		a.buffers[key] = buf
		a.mu.Unlock()
		return telemetry.AggregateReading{}, false
	}
	a.buffers[key] = buf[:0:0]
	a.mu.Unlock()

	agg := mean(buf)
	agg.SensorID = key
	agg.Timestamp = a.now().UTC()
	return agg, true
}

// Pending returns how many readings wait in the window fed by sensorID.
func (a *Aggregator) Pending(sensorID string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.buffers[a.key(sensorID)])
}

func mean(buf []telemetry.Reading) telemetry.AggregateReading {
	var t, h, q float64
	for _, r := range buf {
		t += r.Temperature
		h += r.Humidity
		q += r.AirQuality
	}
	n := float64(len(buf))
	return telemetry.AggregateReading{
		Temperature: t / n,
		Humidity:    h / n,
		AirQuality:  q / n,
		Count:       len(buf),
	}
}
