// CUE schema validation code
package config

import (
	"errors"
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/encoding/yaml"

	"aircraft-mon/internal/telemetry"
)

// schemaDefinition is the closed definition every config file must satisfy.
const schemaDefinition = "#Pipeline"

// ValidateWithCue validates a YAML configuration file using a CUE schema file.
func ValidateWithCue(configFile, cueFile string) error {
	ctx := cuecontext.New()

	// Read YAML config
	yamlBytes, err := os.ReadFile(configFile)
	if err != nil {
		return fmt.Errorf("cannot read YAML config: %w", err)
	}
	file, err := yaml.Extract(configFile, yamlBytes)
	if err != nil {
		return fmt.Errorf("cannot parse YAML config: %w", err)
	}
	configVal := ctx.BuildFile(file)
	if configVal.Err() != nil {
		return fmt.Errorf("cannot build YAML config: %w", configVal.Err())
	}

	// Read CUE schema
	schemaBytes, err := os.ReadFile(cueFile)
	if err != nil {
		return fmt.Errorf("cannot read CUE schema: %w", err)
	}
	schemaVal := ctx.CompileBytes(schemaBytes, cue.Filename(cueFile))
	if schemaVal.Err() != nil {
		return fmt.Errorf("cannot compile CUE schema: %w", schemaVal.Err())
	}
	def := schemaVal.LookupPath(cue.ParsePath(schemaDefinition))
	if !def.Exists() {
		return fmt.Errorf("CUE schema %s does not define %s", cueFile, schemaDefinition)
	}

	// Merge values with schema
	final := def.Unify(configVal)
	if final.Err() != nil {
		return fmt.Errorf("schema unify failed: %w", final.Err())
	}

	// Validate final structure
	if err := final.Validate(); err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}
	return nil
}

// Validate checks semantic constraints CUE cannot express on its own.
func (c *PipelineConfig) Validate() error {
	var errs []error
	if c.SensorInterval <= 0 {
		errs = append(errs, fmt.Errorf("sensor_interval must be positive, got %s", c.SensorInterval))
	}
	if c.BLELatency < 0 {
		errs = append(errs, fmt.Errorf("ble_latency must not be negative, got %s", c.BLELatency))
	}
	errs = append(errs,
		validateRange("temperature", c.Ranges.Temperature),
		validateRange("humidity", c.Ranges.Humidity),
		validateRange("air_quality", c.Ranges.AirQuality),
	)
	if c.AggregationWindow < 1 {
		errs = append(errs, fmt.Errorf("aggregation_window must be at least 1, got %d", c.AggregationWindow))
	}
	if c.ReportEvery < 1 {
		errs = append(errs, fmt.Errorf("report_every must be at least 1, got %d", c.ReportEvery))
	}
	switch c.WindowMode {
	case WindowShared, WindowPerSensor:
	default:
		errs = append(errs, fmt.Errorf("window_mode must be %q or %q, got %q", WindowShared, WindowPerSensor, c.WindowMode))
	}
	switch c.PipelineMode {
	case ModeEdgeFog, ModeCloudOnly:
	default:
		errs = append(errs, fmt.Errorf("pipeline_mode must be %q or %q, got %q", ModeEdgeFog, ModeCloudOnly, c.PipelineMode))
	}
	if len(c.Sensors) == 0 {
		errs = append(errs, errors.New("at least one sensor is required"))
	}
	seen := make(map[string]bool, len(c.Sensors))
	for i, s := range c.Sensors {
		if s.ID == "" {
			errs = append(errs, fmt.Errorf("sensors[%d].id is required", i))
			continue
		}
		if seen[s.ID] {
			errs = append(errs, fmt.Errorf("duplicate sensor id %q", s.ID))
		}
		seen[s.ID] = true
	}
	if c.MQTT.QoS > 1 {
		errs = append(errs, fmt.Errorf("mqtt.qos must be 0 or 1, got %d", c.MQTT.QoS))
	}
	return errors.Join(errs...)
}

func validateRange(name string, r telemetry.Range) error {
	if r.Min > r.Max {
		return fmt.Errorf("%s range min %v exceeds max %v", name, r.Min, r.Max)
	}
	return nil
}
