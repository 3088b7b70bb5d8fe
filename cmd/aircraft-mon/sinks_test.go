package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"aircraft-mon/internal/config"
	"aircraft-mon/internal/sink"
)

type fakeSink struct{ sensorID, creds string }

func (f *fakeSink) Send(context.Context, sink.Message) error { return nil }
func (f *fakeSink) Disconnect() error                        { return nil }

func fakeConnector(calls *[]string, fail map[string]bool) sink.Connector {
	return func(_ context.Context, sensorID, creds string) (sink.TelemetrySink, error) {
		*calls = append(*calls, sensorID+"|"+creds)
		if fail[sensorID] {
			return nil, &sink.ConnectError{SensorID: sensorID, Err: errors.New("refused")}
		}
		return &fakeSink{sensorID: sensorID, creds: creds}, nil
	}
}

func TestNewStreamsPrintOnly(t *testing.T) {
	var calls []string
	streams, cleanup, err := newStreams(context.Background(), config.Default(), sinkOptions{PrintOnly: true}, fakeConnector(&calls, nil))
	if err != nil {
		t.Fatalf("newStreams returned error: %v", err)
	}
	defer cleanup()
	if len(streams) != 3 {
		t.Fatalf("expected 3 streams, got %d", len(streams))
	}
	for _, s := range streams {
		if _, ok := s.Sink.(*sink.StdoutSink); !ok {
			t.Fatalf("expected *sink.StdoutSink for %s, got %T", s.SensorID, s.Sink)
		}
	}
	if len(calls) != 0 {
		t.Fatalf("connector should not be called in print-only mode: %v", calls)
	}
}

func TestNewStreamsLogFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "telemetry.log")
	var calls []string
	streams, cleanup, err := newStreams(context.Background(), config.Default(), sinkOptions{PrintOnly: true, LogFile: path}, fakeConnector(&calls, nil))
	if err != nil {
		t.Fatalf("newStreams returned error: %v", err)
	}
	for _, s := range streams {
		if _, ok := s.Sink.(*sink.MultiSink); !ok {
			t.Fatalf("expected *sink.MultiSink, got %T", s.Sink)
		}
	}
	msg := sink.Message{Body: []byte(`{"temperature": 25.0}`), Attributes: map[string]string{sink.AttrSensorID: "aggregated"}}
	if err := streams[0].Sink.Send(context.Background(), msg); err != nil {
		t.Fatalf("send: %v", err)
	}
	// A stream disconnect must leave the shared file open for the others.
	if err := streams[0].Sink.Disconnect(); err != nil {
		t.Fatalf("disconnect: %v", err)
	}
	if err := streams[1].Sink.Send(context.Background(), msg); err != nil {
		t.Fatalf("send after sibling disconnect: %v", err)
	}
	cleanup()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if n := strings.Count(string(data), "\n"); n != 2 {
		t.Fatalf("expected 2 log lines, got %d: %s", n, data)
	}
}

func TestNewStreamsConnectFailure(t *testing.T) {
	cfg := config.Default()
	cfg.Sensors[0].ConnectionString = "HostName=a;DeviceId=Sensor_1"
	cfg.Sensors[1].ConnectionString = "HostName=a;DeviceId=Sensor_2"
	t.Setenv("MQTT_CONNECTION_STRING", "")
	var calls []string
	streams, cleanup, err := newStreams(context.Background(), cfg, sinkOptions{}, fakeConnector(&calls, map[string]bool{"Sensor_2": true}))
	if err != nil {
		t.Fatalf("newStreams returned error: %v", err)
	}
	defer cleanup()
	if _, ok := streams[0].Sink.(*fakeSink); !ok {
		t.Fatalf("expected connected sink for Sensor_1, got %T", streams[0].Sink)
	}
	if streams[1].Sink != nil {
		t.Fatalf("expected nil sink for failed sensor, got %T", streams[1].Sink)
	}
	if streams[1].SensorID != "Sensor_2" {
		t.Fatalf("unexpected sensor id %q", streams[1].SensorID)
	}
	if _, ok := streams[2].Sink.(*sink.StdoutSink); !ok {
		t.Fatalf("expected stdout fallback without credentials, got %T", streams[2].Sink)
	}
	if len(calls) != 2 {
		t.Fatalf("expected 2 connect calls, got %v", calls)
	}
}

func TestNewStreamsEnvConnectionString(t *testing.T) {
	t.Setenv("MQTT_CONNECTION_STRING", "HostName=hub.example.com;DeviceId=shared")
	var calls []string
	streams, cleanup, err := newStreams(context.Background(), config.Default(), sinkOptions{}, fakeConnector(&calls, nil))
	if err != nil {
		t.Fatalf("newStreams returned error: %v", err)
	}
	defer cleanup()
	for _, s := range streams {
		fs, ok := s.Sink.(*fakeSink)
		if !ok {
			t.Fatalf("expected *fakeSink, got %T", s.Sink)
		}
		if fs.creds != "HostName=hub.example.com;DeviceId=shared" {
			t.Fatalf("unexpected credentials %q", fs.creds)
		}
	}
}

func TestNewStreamsEmbeddedBroker(t *testing.T) {
	t.Setenv("MQTT_CONNECTION_STRING", "")
	var calls []string
	streams, cleanup, err := newStreams(context.Background(), config.Default(), sinkOptions{BrokerAddr: ":1883"}, fakeConnector(&calls, nil))
	if err != nil {
		t.Fatalf("newStreams returned error: %v", err)
	}
	defer cleanup()
	fs, ok := streams[2].Sink.(*fakeSink)
	if !ok {
		t.Fatalf("expected *fakeSink, got %T", streams[2].Sink)
	}
	if fs.creds != "HostName=localhost;TcpPort=1883;DeviceId=Sensor_3" {
		t.Fatalf("unexpected credentials %q", fs.creds)
	}
}

func TestNewReplaySinkFallback(t *testing.T) {
	t.Setenv("MQTT_CONNECTION_STRING", "")
	t.Setenv("GREPTIMEDB_ENDPOINT", "")
	var calls []string
	s, err := newReplaySink(context.Background(), false, fakeConnector(&calls, nil))
	if err != nil {
		t.Fatalf("newReplaySink returned error: %v", err)
	}
	if _, ok := s.(*sink.StdoutSink); !ok {
		t.Fatalf("expected *sink.StdoutSink, got %T", s)
	}

	t.Setenv("MQTT_CONNECTION_STRING", "HostName=hub;DeviceId=replay")
	s, err = newReplaySink(context.Background(), false, fakeConnector(&calls, nil))
	if err != nil {
		t.Fatalf("newReplaySink returned error: %v", err)
	}
	if fs, ok := s.(*fakeSink); !ok || fs.sensorID != "replay" {
		t.Fatalf("expected replay MQTT sink, got %#v", s)
	}
}

func TestNewStreamsQuietFallback(t *testing.T) {
	t.Setenv("MQTT_CONNECTION_STRING", "")
	var calls []string
	for _, printOnly := range []bool{false, true} {
		streams, cleanup, err := newStreams(context.Background(), config.Default(), sinkOptions{PrintOnly: printOnly, Quiet: true}, fakeConnector(&calls, nil))
		if err != nil {
			t.Fatalf("newStreams returned error: %v", err)
		}
		for _, s := range streams {
			if _, ok := s.Sink.(sink.DiscardSink); !ok {
				t.Fatalf("print-only=%v: expected sink.DiscardSink, got %T", printOnly, s.Sink)
			}
		}
		cleanup()
	}
}

func TestSimulateFlagDefaults(t *testing.T) {
	if got := simulateCmd.Flags().Lookup("admin-addr").DefValue; got != "" {
		t.Fatalf("admin-addr default = %q, want empty", got)
	}
	if got := simulateCmd.Flags().Lookup("pipeline-mode").DefValue; got != config.ModeEdgeFog {
		t.Fatalf("pipeline-mode default = %q", got)
	}
}
