package pipeline

import (
	"context"
	"errors"
	"math"
	"strconv"
	"strings"
	"time"

	"aircraft-mon/internal/logging"
	"aircraft-mon/internal/sink"
	"aircraft-mon/internal/telemetry"
)

// ErrNoSink is returned when a stream has no connected sink.
var ErrNoSink = errors.New("no telemetry sink for stream")

// Dispatcher sends aggregates to the cloud and records delivery metrics.
type Dispatcher struct {
	AlertThreshold float64

	state    *State
	observer Observer
	now      func() time.Time
}

// NewDispatcher returns a dispatcher recording into state.
func NewDispatcher(state *State, alertThreshold float64) *Dispatcher {
	return &Dispatcher{AlertThreshold: alertThreshold, state: state, now: time.Now}
}

// Dispatch sends agg through s. Only successful sends are counted; failures
// are logged and returned without retry.
func (d *Dispatcher) Dispatch(ctx context.Context, s sink.TelemetrySink, agg telemetry.AggregateReading) error {
	log := logging.FromContext(ctx)
	if s == nil {
		log.Debug("aggregate dropped, stream has no sink", "sensor_id", agg.SensorID)
		return ErrNoSink
	}

	msg := sink.Message{Body: FormatBody(agg), Attributes: d.Attributes(agg)}
	start := d.now()
	err := s.Send(ctx, msg)
	elapsed := d.now().Sub(start)
	if d.observer != nil {
		d.observer.OnDispatch(agg, elapsed, err)
	}
	if err != nil {
		log.Error("cloud send failed", "sensor_id", agg.SensorID, "err", err)
		if sink.IsRateLimited(err) {
			log.Warn("cloud endpoint is throttling; consider increasing SENSOR_INTERVAL", "sensor_id", agg.SensorID)
		}
		return err
	}

	latencyMs := float64(elapsed) / float64(time.Millisecond)
	d.state.RecordSent(latencyMs)
	log.Info("cloud sent", "sensor_id", agg.SensorID, "body", string(msg.Body),
		sink.AttrTemperatureAlert, msg.Attributes[sink.AttrTemperatureAlert],
		"latency_ms", strconv.FormatFloat(latencyMs, 'f', 2, 64))
	return nil
}

// Attributes returns the message attributes for agg.
func (d *Dispatcher) Attributes(agg telemetry.AggregateReading) map[string]string {
	return map[string]string{
		sink.AttrSensorID:         agg.SensorID,
		sink.AttrTemperatureAlert: strconv.FormatBool(agg.Temperature > d.AlertThreshold),
	}
}

// FormatBody renders the telemetry body with keys in fixed order.
func FormatBody(agg telemetry.AggregateReading) []byte {
	var b strings.Builder
	b.WriteString(`{"temperature": `)
	b.WriteString(formatFloat(agg.Temperature))
	b.WriteString(`, "humidity": `)
	b.WriteString(formatFloat(agg.Humidity))
	b.WriteString(`, "air_quality": `)
	b.WriteString(formatFloat(agg.AirQuality))
	b.WriteString(`}`)
	return []byte(b.String())
}

// formatFloat renders v in shortest round-trip form, always with a decimal
// point or exponent: 25 → "25.0", 0.00001 → "1e-05".
func formatFloat(v float64) string {
	abs := math.Abs(v)
	if abs != 0 && (abs < 1e-4 || abs >= 1e16) {
		return strconv.FormatFloat(v, 'e', -1, 64)
	}
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.ContainsRune(s, '.') {
		s += ".0"
	}
	return s
}
