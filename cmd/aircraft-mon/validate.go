package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"aircraft-mon/internal/config"
)

var (
	valConfigPath string
	valSchemaPath string
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a pipeline configuration file",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(valConfigPath, valSchemaPath)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: ok (%d sensors, window %d, %s mode)\n",
			valConfigPath, len(cfg.Sensors), cfg.AggregationWindow, cfg.WindowMode)
		return nil
	},
}

func init() {
	validateCmd.Flags().StringVar(&valConfigPath, "config", "config/pipeline.yaml", "Path to pipeline configuration YAML")
	validateCmd.Flags().StringVar(&valSchemaPath, "schema", "schemas/pipeline.cue", "Path to CUE schema file")
}
