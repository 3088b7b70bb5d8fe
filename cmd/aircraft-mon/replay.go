package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"aircraft-mon/internal/config"
	"aircraft-mon/internal/logging"
	"aircraft-mon/internal/sink"
)

var (
	replayInput     string
	replaySpeed     float64
	replayPrintOnly bool
)

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Replay a telemetry log file",
	Long:  "replay re-sends messages from a JSONL log written with --log-file to MQTT, GreptimeDB or STDOUT.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if replayInput == "" {
			return fmt.Errorf("input file required")
		}
		ctx := cmd.Context()
		dst, err := newReplaySink(ctx, replayPrintOnly, sink.MQTTConnector(sink.MQTTOptions{Topic: config.DefaultTopic, QoS: 1}))
		if err != nil {
			return err
		}
		defer dst.Disconnect()
		n, err := sink.ReplayFile(ctx, replayInput, dst, replaySpeed)
		logging.FromContext(ctx).Info("replay finished", "messages", n)
		return err
	},
}

// newReplaySink prefers MQTT_CONNECTION_STRING, then GREPTIMEDB_ENDPOINT,
// falling back to STDOUT.
func newReplaySink(ctx context.Context, printOnly bool, connect sink.Connector) (sink.TelemetrySink, error) {
	if printOnly {
		return sink.NewStdoutSink(), nil
	}
	if cs := os.Getenv("MQTT_CONNECTION_STRING"); cs != "" {
		return connect(ctx, "replay", cs)
	}
	cfg := config.Default()
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	if cfg.Greptime.Endpoint != "" {
		return sink.NewGreptimeSink(greptimeSettings(cfg))
	}
	return sink.NewStdoutSink(), nil
}

func init() {
	replayCmd.Flags().StringVar(&replayInput, "input", "", "Path to telemetry log file")
	replayCmd.Flags().Float64Var(&replaySpeed, "speed", 1.0, "Playback speed multiplier, 0 to send without delay")
	replayCmd.Flags().BoolVar(&replayPrintOnly, "print-only", false, "Print telemetry to STDOUT instead of sending it")
	replayCmd.MarkFlagRequired("input")
}
