package pipeline

import (
	"context"
	"sync"
	"time"

	"aircraft-mon/internal/sink"
	"aircraft-mon/internal/telemetry"
)

type stubSink struct {
	mu           sync.Mutex
	msgs         []sink.Message
	err          error
	disconnected int
}

func (s *stubSink) Send(_ context.Context, msg sink.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.msgs = append(s.msgs, msg)
	return nil
}

func (s *stubSink) Disconnect() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disconnected++
	return nil
}

func (s *stubSink) sent() []sink.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]sink.Message(nil), s.msgs...)
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock { return &fakeClock{t: time.Unix(1_000, 0)} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// sleep advances the fake clock instead of blocking.
func (c *fakeClock) sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.Advance(d)
	return nil
}

// scriptedSource replays fixed readings and cancels once they run out.
type scriptedSource struct {
	mu       sync.Mutex
	readings []telemetry.Reading
	cancel   context.CancelFunc
	clock    *fakeClock
	work     time.Duration
	starts   []time.Time
}

func (s *scriptedSource) Generate(sensorID string) telemetry.Reading {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.clock != nil {
		s.starts = append(s.starts, s.clock.Now())
		s.clock.Advance(s.work)
	}
	if len(s.readings) == 0 {
		s.cancel()
		return telemetry.Reading{SensorID: sensorID}
	}
	r := s.readings[0]
	s.readings = s.readings[1:]
	r.SensorID = sensorID
	return r
}

type recordingReporter struct {
	mu    sync.Mutex
	snaps []Snapshot
}

func (r *recordingReporter) Report(s Snapshot) {
	r.mu.Lock()
	r.snaps = append(r.snaps, s)
	r.mu.Unlock()
}

func reading(id string, temp, hum, aq float64) telemetry.Reading {
	return telemetry.Reading{SensorID: id, Temperature: temp, Humidity: hum, AirQuality: aq}
}
