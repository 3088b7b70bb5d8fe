// YAML config loader with CUE validation integration
package config

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"aircraft-mon/internal/telemetry"
)

// Window modes for the fog aggregation stage.
const (
	WindowShared    = "shared"
	WindowPerSensor = "per_sensor"
)

// Pipeline modes. ModeCloudOnly is the baseline deployment that forwards
// every reading without edge filtering or fog aggregation.
const (
	ModeEdgeFog   = "edge_fog"
	ModeCloudOnly = "cloud_only"
)

// Sensor describes one simulated sensor stream and the credentials of its
// cloud connection. An empty connection string selects the default sink.
type Sensor struct {
	ID               string `yaml:"id"`
	ConnectionString string `yaml:"connection_string"`
}

// MQTTConfig tunes the MQTT telemetry sink.
type MQTTConfig struct {
	Topic string `yaml:"topic"`
	QoS   byte   `yaml:"qos"`
}

// GreptimeConfig points the optional GreptimeDB sink at a database.
type GreptimeConfig struct {
	Endpoint string `yaml:"endpoint"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	Table    string `yaml:"table"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// PipelineConfig is the root configuration of the edge/fog/cloud pipeline.
type PipelineConfig struct {
	SensorInterval    time.Duration    `yaml:"sensor_interval"`
	BLELatency        time.Duration    `yaml:"ble_latency"`
	Ranges            telemetry.Ranges `yaml:"ranges"`
	FilterThreshold   float64          `yaml:"filter_threshold"`
	AggregationWindow int              `yaml:"aggregation_window"`
	AlertThreshold    float64          `yaml:"alert_threshold"`
	ReportEvery       int              `yaml:"report_every"`
	WindowMode        string           `yaml:"window_mode"`
	PipelineMode      string           `yaml:"pipeline_mode"`
	Seed              int64            `yaml:"seed"`
	Sensors           []Sensor         `yaml:"sensors"`
	MQTT              MQTTConfig       `yaml:"mqtt"`
	Greptime          GreptimeConfig   `yaml:"greptime"`
}

// DefaultTopic is the IoT Hub device-to-cloud topic pattern.
const DefaultTopic = "devices/{device_id}/messages/events"

// Default returns the configuration of the reference deployment: three RSL10
// sensors sampled every 250ms over a 6ms BLE link.
func Default() *PipelineConfig {
	return &PipelineConfig{
		SensorInterval:    250 * time.Millisecond,
		BLELatency:        6 * time.Millisecond,
		Ranges:            telemetry.DefaultRanges(),
		FilterThreshold:   20,
		AggregationWindow: 10,
		AlertThreshold:    30,
		ReportEvery:       30,
		WindowMode:        WindowShared,
		PipelineMode:      ModeEdgeFog,
		Sensors: []Sensor{
			{ID: "Sensor_1"},
			{ID: "Sensor_2"},
			{ID: "Sensor_3"},
		},
		MQTT: MQTTConfig{Topic: DefaultTopic, QoS: 1},
		Greptime: GreptimeConfig{
			Port:     4001,
			Database: "public",
			Table:    "aircraft_telemetry",
		},
	}
}

// Load reads a YAML config on top of Default, validates it against a CUE
// schema when cueSchemaPath is set, then applies environment overrides.
func Load(configPath, cueSchemaPath string) (*PipelineConfig, error) {
	if cueSchemaPath != "" {
		if err := ValidateWithCue(configPath, cueSchemaPath); err != nil {
			return nil, err
		}
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("cannot unmarshal YAML config: %w", err)
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields from SENSOR_INTERVAL, BLE_LATENCY,
// GREPTIMEDB_ENDPOINT and GREPTIMEDB_TABLE when they are set. Durations
// accept Go syntax ("250ms") or bare seconds ("0.25").
func (c *PipelineConfig) ApplyEnv() error {
	if v := os.Getenv("SENSOR_INTERVAL"); v != "" {
		d, err := parseEnvDuration(v)
		if err != nil {
			return fmt.Errorf("invalid SENSOR_INTERVAL: %w", err)
		}
		c.SensorInterval = d
	}
	if v := os.Getenv("BLE_LATENCY"); v != "" {
		d, err := parseEnvDuration(v)
		if err != nil {
			return fmt.Errorf("invalid BLE_LATENCY: %w", err)
		}
		c.BLELatency = d
	}
	if v := os.Getenv("GREPTIMEDB_ENDPOINT"); v != "" {
		c.Greptime.Endpoint = v
	}
	if v := os.Getenv("GREPTIMEDB_TABLE"); v != "" {
		c.Greptime.Table = v
	}
	return nil
}

// parseEnvDuration reads a Go duration, falling back to a unit-less number
// of seconds.
func parseEnvDuration(v string) (time.Duration, error) {
	if d, err := time.ParseDuration(v); err == nil {
		return d, nil
	}
	secs, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil || math.IsNaN(secs) || math.IsInf(secs, 0) {
		return 0, fmt.Errorf("%q is neither a duration nor a number of seconds", v)
	}
	return time.Duration(secs * float64(time.Second)), nil
}

// SensorIDs returns the configured sensor identities in order.
func (c *PipelineConfig) SensorIDs() []string {
	ids := make([]string, len(c.Sensors))
	for i, s := range c.Sensors {
		ids[i] = s.ID
	}
	return ids
}
