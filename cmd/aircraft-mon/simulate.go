package main

import (
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"aircraft-mon/internal/admin"
	"aircraft-mon/internal/broker"
	"aircraft-mon/internal/config"
	"aircraft-mon/internal/logging"
	"aircraft-mon/internal/metrics"
	"aircraft-mon/internal/pipeline"
	"aircraft-mon/internal/report"
	"aircraft-mon/internal/sink"
	"aircraft-mon/internal/telemetry"
)

var (
	simPrintOnly      bool
	simConfigPath     string
	simSchemaPath     string
	simInterval       time.Duration
	simWindowMode     string
	simPipelineMode   string
	simLogFile        string
	simTUI            bool
	simAdminAddr      string
	simEmbeddedBroker string
	simBrokerQuota    int
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run the sensor pipeline until interrupted",
	Long:  "simulate generates sensor readings, filters and aggregates them, and sends the aggregates to the configured cloud sinks. Metrics are reported periodically and on shutdown.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(simConfigPath, simSchemaPath)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("interval") {
			cfg.SensorInterval = simInterval
		}
		if cmd.Flags().Changed("window-mode") {
			cfg.WindowMode = simWindowMode
		}
		if cmd.Flags().Changed("pipeline-mode") {
			cfg.PipelineMode = simPipelineMode
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		ctx := cmd.Context()
		if simTUI {
			// The TUI owns the terminal.
			ctx = logging.NewContext(ctx, slog.New(slog.NewTextHandler(io.Discard, nil)))
		}
		log := logging.FromContext(ctx).With("run_id", uuid.NewString())
		ctx = logging.NewContext(ctx, log)

		brokerAddr := ""
		if simEmbeddedBroker != "" {
			b, err := broker.Start(broker.Options{
				Address:      simEmbeddedBroker,
				PublishLimit: simBrokerQuota,
				Logger:       log.With("component", "broker"),
			})
			if err != nil {
				return err
			}
			defer b.Close()
			if err := b.Subscribe("devices/+/messages/events", 1, func(d broker.Delivery) {
				log.Debug("broker received telemetry", "topic", d.Topic, "body", string(d.Payload),
					sink.AttrTemperatureAlert, d.Attributes[sink.AttrTemperatureAlert])
			}); err != nil {
				return err
			}
			brokerAddr = simEmbeddedBroker
			log.Info("embedded MQTT broker listening", "addr", brokerAddr, "quota", simBrokerQuota)
		}

		streams, cleanup, err := newStreams(ctx, cfg, sinkOptions{
			PrintOnly:  simPrintOnly,
			LogFile:    simLogFile,
			BrokerAddr: brokerAddr,
			Quiet:      simTUI,
		}, sink.MQTTConnector(sink.MQTTOptions{Topic: cfg.MQTT.Topic, QoS: cfg.MQTT.QoS}))
		if err != nil {
			return err
		}
		defer cleanup()

		sched := pipeline.NewScheduler(cfg, telemetry.NewGenerator(cfg.Ranges, cfg.Seed), streams)
		exporter := metrics.NewExporter()
		observers := pipeline.Observers{exporter}
		var ui *report.TUI
		if simTUI {
			ui = report.NewTUI(cfg)
			defer ui.Close()
			observers = append(observers, ui)
			sched.SetReporter(ui)
		} else {
			sched.SetReporter(report.NewTextReporter(os.Stdout))
		}
		sched.SetObserver(observers)

		if simAdminAddr != "" {
			srv := admin.NewServer(sched, exporter.Handler())
			go func() {
				log.Info("admin server listening", "addr", simAdminAddr)
				if err := srv.Start(ctx, simAdminAddr); err != nil {
					log.Error("admin server failed", "err", err)
				}
			}()
		}

		err = sched.Run(ctx)
		if ui != nil {
			ui.Close()
			report.NewTextReporter(os.Stdout).Report(pipeline.Report(sched.State()))
		}
		log.Info("aircraft monitoring pipeline stopped")
		return err
	},
}

func init() {
	simulateCmd.Flags().BoolVar(&simPrintOnly, "print-only", false, "Print telemetry to STDOUT instead of sending it to the cloud")
	simulateCmd.Flags().StringVar(&simConfigPath, "config", "config/pipeline.yaml", "Path to pipeline configuration YAML")
	simulateCmd.Flags().StringVar(&simSchemaPath, "schema", "schemas/pipeline.cue", "Path to CUE schema file")
	simulateCmd.Flags().DurationVar(&simInterval, "interval", 250*time.Millisecond, "Sensor interval override with a unit (e.g. 250ms, 1s); SENSOR_INTERVAL also accepts bare seconds")
	simulateCmd.Flags().StringVar(&simWindowMode, "window-mode", config.WindowShared, "Aggregation window mode (shared or per_sensor)")
	simulateCmd.Flags().StringVar(&simPipelineMode, "pipeline-mode", config.ModeEdgeFog, "Pipeline mode (edge_fog or cloud_only baseline)")
	simulateCmd.Flags().StringVar(&simLogFile, "log-file", "", "Path to export dispatched telemetry (JSONL)")
	simulateCmd.Flags().BoolVar(&simTUI, "tui", false, "Show the live terminal dashboard")
	simulateCmd.Flags().StringVar(&simAdminAddr, "admin-addr", "", "Admin HTTP listen address (e.g. :8080), empty to disable")
	simulateCmd.Flags().StringVar(&simEmbeddedBroker, "embedded-broker", "", "Start an in-process MQTT broker on this address and use it for sensors without credentials")
	simulateCmd.Flags().IntVar(&simBrokerQuota, "broker-quota", 0, "Publishes per client per second accepted by the embedded broker, 0 for unlimited")
}
