package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"aircraft-mon/internal/logging"
	"aircraft-mon/internal/sink"
	"aircraft-mon/internal/telemetry"
)

func aggregate(temp, hum, aq float64) telemetry.AggregateReading {
	return telemetry.AggregateReading{SensorID: telemetry.AggregatedSensorID, Temperature: temp, Humidity: hum, AirQuality: aq, Count: 10}
}

func TestDispatchSuccess(t *testing.T) {
	state := NewState()
	d := NewDispatcher(state, 30)
	clock := newFakeClock()
	d.now = clock.Now
	s := &stubSink{}

	for i := 0; i < 3; i++ {
		if err := d.Dispatch(context.Background(), s, aggregate(25, 5.5, 5.5)); err != nil {
			t.Fatalf("Dispatch: %v", err)
		}
	}
	c := state.Counters()
	if c.SentCount != 3 || len(c.Latencies) != 3 {
		t.Fatalf("sent=%d latencies=%d, want 3/3", c.SentCount, len(c.Latencies))
	}
	msgs := s.sent()
	if string(msgs[0].Body) != `{"temperature": 25.0, "humidity": 5.5, "air_quality": 5.5}` {
		t.Fatalf("body = %s", msgs[0].Body)
	}
	if msgs[0].Attributes[sink.AttrSensorID] != "aggregated" || msgs[0].Attributes[sink.AttrTemperatureAlert] != "false" {
		t.Fatalf("attributes = %#v", msgs[0].Attributes)
	}
}

type slowSink struct {
	stubSink
	clock *fakeClock
	delay time.Duration
}

func (s *slowSink) Send(ctx context.Context, msg sink.Message) error {
	s.clock.Advance(s.delay)
	return s.stubSink.Send(ctx, msg)
}

func TestDispatchMeasuresLatency(t *testing.T) {
	state := NewState()
	d := NewDispatcher(state, 30)
	clock := newFakeClock()
	d.now = clock.Now

	if err := d.Dispatch(context.Background(), &slowSink{clock: clock, delay: 42 * time.Millisecond}, aggregate(25, 1, 1)); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if got := state.Counters().Latencies[0]; got != 42 {
		t.Fatalf("latency = %v ms, want 42", got)
	}
}

func TestDispatchFailure(t *testing.T) {
	state := NewState()
	state.IncMessage()
	state.IncFiltered()
	d := NewDispatcher(state, 30)
	boom := &sink.SendError{Kind: sink.KindTransport, Sink: "stub", Err: errors.New("connection reset")}

	err := d.Dispatch(context.Background(), &stubSink{err: boom}, aggregate(25, 1, 1))
	if !errors.Is(err, boom) {
		t.Fatalf("expected send error, got %v", err)
	}
	c := state.Counters()
	if c.SentCount != 0 || len(c.Latencies) != 0 {
		t.Fatalf("failed send was counted: %#v", c)
	}
	if c.MessageCount != 1 || c.FilteredCount != 1 {
		t.Fatalf("upstream counters changed: %#v", c)
	}
}

func TestDispatchRateLimitedWarns(t *testing.T) {
	var buf bytes.Buffer
	ctx := logging.NewContext(context.Background(), slog.New(slog.NewJSONHandler(&buf, nil)))
	d := NewDispatcher(NewState(), 30)
	limited := &sink.SendError{Kind: sink.KindRateLimited, Sink: "mqtt:s1", Err: errors.New("reason code 0x97")}

	if err := d.Dispatch(ctx, &stubSink{err: limited}, aggregate(25, 1, 1)); !sink.IsRateLimited(err) {
		t.Fatalf("expected rate-limited error, got %v", err)
	}
	var warned bool
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		var rec map[string]any
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			t.Fatalf("invalid log line %q: %v", line, err)
		}
		if rec["level"] == "WARN" && strings.Contains(rec["msg"].(string), "SENSOR_INTERVAL") {
			warned = true
		}
	}
	if !warned {
		t.Fatalf("expected throttling advisory, got logs:\n%s", buf.String())
	}

	buf.Reset()
	transport := &sink.SendError{Kind: sink.KindTransport, Sink: "mqtt:s1", Err: errors.New("eof")}
	d.Dispatch(ctx, &stubSink{err: transport}, aggregate(25, 1, 1))
	if strings.Contains(buf.String(), "SENSOR_INTERVAL") {
		t.Fatalf("advisory logged for a non rate-limit failure")
	}
}

func TestDispatchNoSink(t *testing.T) {
	state := NewState()
	d := NewDispatcher(state, 30)
	if err := d.Dispatch(context.Background(), nil, aggregate(25, 1, 1)); !errors.Is(err, ErrNoSink) {
		t.Fatalf("expected ErrNoSink, got %v", err)
	}
	if state.Counters().SentCount != 0 {
		t.Fatalf("dispatch without sink was counted")
	}
}

func TestTemperatureAlertBoundary(t *testing.T) {
	d := NewDispatcher(NewState(), 30)
	if got := d.Attributes(aggregate(30, 0, 0))[sink.AttrTemperatureAlert]; got != "false" {
		t.Fatalf("alert at 30 = %s, want false", got)
	}
	if got := d.Attributes(aggregate(30.0001, 0, 0))[sink.AttrTemperatureAlert]; got != "true" {
		t.Fatalf("alert at 30.0001 = %s, want true", got)
	}
}

func TestFormatBody(t *testing.T) {
	// Summed at run time so the float64 rounding is kept.
	a, b := 0.1, 0.2
	cases := []struct {
		agg  telemetry.AggregateReading
		want string
	}{
		{aggregate(25, 5.5, 5.5), `{"temperature": 25.0, "humidity": 5.5, "air_quality": 5.5}`},
		{aggregate(-12.125, 0, 499.99), `{"temperature": -12.125, "humidity": 0.0, "air_quality": 499.99}`},
		{aggregate(a+b, 0.00001, 1e16), `{"temperature": 0.30000000000000004, "humidity": 1e-05, "air_quality": 1e+16}`},
	}
	for _, tc := range cases {
		body := FormatBody(tc.agg)
		if string(body) != tc.want {
			t.Fatalf("FormatBody = %s, want %s", body, tc.want)
		}
		var decoded map[string]float64
		if err := json.Unmarshal(body, &decoded); err != nil {
			t.Fatalf("body is not JSON: %v", err)
		}
		if decoded["temperature"] != tc.agg.Temperature {
			t.Fatalf("temperature lost precision: %v != %v", decoded["temperature"], tc.agg.Temperature)
		}
	}
}
