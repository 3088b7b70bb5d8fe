package main

import (
	"context"
	"fmt"
	"net"
	"os"

	"aircraft-mon/internal/config"
	"aircraft-mon/internal/logging"
	"aircraft-mon/internal/pipeline"
	"aircraft-mon/internal/sink"
)

// sinkOptions select the destinations of each sensor stream.
type sinkOptions struct {
	PrintOnly bool
	LogFile   string
	// BrokerAddr is used for sensors without credentials when set.
	BrokerAddr string
	// Quiet replaces the STDOUT fallback with a discarding sink while the
	// terminal is owned by the TUI.
	Quiet bool
}

// sharedSink is handed to several streams; it is disconnected once by the
// cleanup function instead of by every stream.
type sharedSink struct{ sink.TelemetrySink }

func (sharedSink) Disconnect() error { return nil }

// newStreams opens one sink per configured sensor. A sensor whose connection
// fails gets a nil sink and is logged; the pipeline decides whether any
// stream is usable. The returned cleanup closes the shared sinks.
func newStreams(ctx context.Context, cfg *config.PipelineConfig, opts sinkOptions, connect sink.Connector) ([]pipeline.Stream, func(), error) {
	log := logging.FromContext(ctx)
	var shared []sink.TelemetrySink
	cleanup := func() {
		for _, s := range shared {
			if err := s.Disconnect(); err != nil {
				log.Warn("sink disconnect failed", "err", err)
			}
		}
	}

	if opts.LogFile != "" {
		fs, err := sink.NewFileSink(opts.LogFile)
		if err != nil {
			return nil, nil, err
		}
		shared = append(shared, fs)
	}
	if !opts.PrintOnly && cfg.Greptime.Endpoint != "" {
		gs, err := sink.NewGreptimeSink(greptimeSettings(cfg))
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("init GreptimeDB sink: %w", err)
		}
		shared = append(shared, gs)
	}

	var stdout sink.TelemetrySink = sink.NewStdoutSink()
	if opts.Quiet {
		stdout = sink.NewDiscardSink()
	}
	streams := make([]pipeline.Stream, 0, len(cfg.Sensors))
	for _, sensor := range cfg.Sensors {
		primary, err := primarySink(ctx, sensor, opts, connect, stdout)
		if err != nil {
			log.Error("sensor stream has no sink", "sensor_id", sensor.ID, "err", err)
			streams = append(streams, pipeline.Stream{SensorID: sensor.ID})
			continue
		}
		s := primary
		if len(shared) > 0 {
			sinks := []sink.TelemetrySink{primary}
			for _, sh := range shared {
				sinks = append(sinks, sharedSink{sh})
			}
			s = sink.NewMultiSink(sinks...)
		}
		log.Info("sensor stream ready", "sensor_id", sensor.ID, "sink", fmt.Sprintf("%T", primary))
		streams = append(streams, pipeline.Stream{SensorID: sensor.ID, Sink: s})
	}
	return streams, cleanup, nil
}

// primarySink picks the cloud endpoint of one sensor: the local fallback in
// print-only mode, otherwise MQTT when credentials are available.
func primarySink(ctx context.Context, sensor config.Sensor, opts sinkOptions, connect sink.Connector, stdout sink.TelemetrySink) (sink.TelemetrySink, error) {
	if opts.PrintOnly {
		return stdout, nil
	}
	creds := sensor.ConnectionString
	if creds == "" {
		creds = os.Getenv("MQTT_CONNECTION_STRING")
	}
	if creds == "" && opts.BrokerAddr != "" {
		host, port, err := net.SplitHostPort(opts.BrokerAddr)
		if err != nil {
			return nil, err
		}
		if host == "" {
			host = "localhost"
		}
		creds = fmt.Sprintf("HostName=%s;TcpPort=%s;DeviceId=%s", host, port, sensor.ID)
	}
	if creds == "" {
		return stdout, nil
	}
	return connect(ctx, sensor.ID, creds)
}

func greptimeSettings(cfg *config.PipelineConfig) sink.GreptimeSettings {
	return sink.GreptimeSettings{
		Endpoint: cfg.Greptime.Endpoint,
		Port:     cfg.Greptime.Port,
		Database: cfg.Greptime.Database,
		Table:    cfg.Greptime.Table,
		Username: cfg.Greptime.Username,
		Password: cfg.Greptime.Password,
	}
}
