package sink

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestFileSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "telemetry.jsonl")
	fs, err := NewFileSink(path)
	if err != nil {
		t.Fatalf("NewFileSink: %v", err)
	}
	ts := time.Unix(100, 0).UTC()
	fs.now = func() time.Time { return ts }

	msgs := []Message{
		{Body: []byte(`{"temperature": 25.0, "humidity": 5.5, "air_quality": 5.5}`), Attributes: map[string]string{AttrSensorID: "aggregated", AttrTemperatureAlert: "false"}},
		{Body: []byte(`{"temperature": 31.5, "humidity": 40.0, "air_quality": 12.0}`), Attributes: map[string]string{AttrSensorID: "aggregated", AttrTemperatureAlert: "true"}},
	}
	for _, m := range msgs {
		if err := fs.Send(context.Background(), m); err != nil {
			t.Fatalf("Send: %v", err)
		}
	}
	if err := fs.Disconnect(); err != nil {
		t.Fatalf("Disconnect: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	var got []Envelope
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var env Envelope
		if err := json.Unmarshal(sc.Bytes(), &env); err != nil {
			t.Fatalf("decode line: %v", err)
		}
		got = append(got, env)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(got))
	}
	if !got[0].Timestamp.Equal(ts) {
		t.Fatalf("ts = %v, want %v", got[0].Timestamp, ts)
	}
	if got[1].Attributes[AttrTemperatureAlert] != "true" {
		t.Fatalf("unexpected attributes: %#v", got[1].Attributes)
	}
	var body map[string]float64
	if err := json.Unmarshal(got[0].Body, &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["humidity"] != 5.5 {
		t.Fatalf("humidity = %v, want 5.5", body["humidity"])
	}
}

func TestFileSinkSendAfterDisconnect(t *testing.T) {
	fs, err := NewFileSink(filepath.Join(t.TempDir(), "out.jsonl"))
	if err != nil {
		t.Fatalf("NewFileSink: %v", err)
	}
	if err := fs.Disconnect(); err != nil {
		t.Fatalf("Disconnect: %v", err)
	}
	if err := fs.Disconnect(); err != nil {
		t.Fatalf("second Disconnect: %v", err)
	}
	err = fs.Send(context.Background(), Message{Body: []byte(`{}`)})
	if !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}
