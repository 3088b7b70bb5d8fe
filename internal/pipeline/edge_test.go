package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestEdgeCollectPassesReadingThrough(t *testing.T) {
	var waited []time.Duration
	e := NewEdgeCollector(6 * time.Millisecond)
	e.Sleep = func(_ context.Context, d time.Duration) error {
		waited = append(waited, d)
		return nil
	}
	in := reading("Sensor_1", 25, 40, 100)
	out, err := e.Collect(context.Background(), in)
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if out != in {
		t.Fatalf("reading changed: %+v != %+v", out, in)
	}
	if len(waited) != 1 || waited[0] != 6*time.Millisecond {
		t.Fatalf("expected one 6ms wait, got %v", waited)
	}
}

func TestEdgeCollectCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	e := NewEdgeCollector(time.Hour)
	if _, err := e.Collect(ctx, reading("Sensor_1", 25, 40, 100)); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestSleepZeroDuration(t *testing.T) {
	if err := Sleep(context.Background(), 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	start := time.Now()
	if err := Sleep(context.Background(), 5*time.Millisecond); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if time.Since(start) < 5*time.Millisecond {
		t.Fatalf("sleep returned early")
	}
}

func TestStateConcurrentUpdates(t *testing.T) {
	s := NewState()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				s.IncMessage()
				s.IncFiltered()
				s.RecordSent(1.5)
			}
		}()
	}
	wg.Wait()
	c := s.Counters()
	if c.MessageCount != 800 || c.FilteredCount != 800 || c.SentCount != 800 {
		t.Fatalf("unexpected counters %+v", c)
	}
	if len(c.Latencies) != 800 {
		t.Fatalf("expected 800 latencies, got %d", len(c.Latencies))
	}
	c.Latencies[0] = 99
	if s.Counters().Latencies[0] != 1.5 {
		t.Fatalf("Counters must return a copy")
	}
}
