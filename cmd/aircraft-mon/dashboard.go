package main

import (
	"github.com/spf13/cobra"

	"aircraft-mon/internal/config"
	"aircraft-mon/internal/dashboard"
	"aircraft-mon/internal/logging"
)

var (
	dashOut        string
	dashConfigPath string
	dashSchemaPath string
)

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Render Grafana dashboards for the GreptimeDB telemetry table",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(dashConfigPath, dashSchemaPath)
		if err != nil {
			return err
		}
		if err := dashboard.Render(dashOut, dashboard.Params{
			Table:          cfg.Greptime.Table,
			AlertThreshold: cfg.AlertThreshold,
		}); err != nil {
			return err
		}
		logging.FromContext(cmd.Context()).Info("dashboards rendered", "dir", dashOut)
		return nil
	},
}

func init() {
	dashboardCmd.Flags().StringVar(&dashOut, "out", "build", "Output directory")
	dashboardCmd.Flags().StringVar(&dashConfigPath, "config", "config/pipeline.yaml", "Path to pipeline configuration YAML")
	dashboardCmd.Flags().StringVar(&dashSchemaPath, "schema", "schemas/pipeline.cue", "Path to CUE schema file")
}
