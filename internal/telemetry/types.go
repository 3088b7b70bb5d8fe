// Sensor reading and aggregate structs
package telemetry

import "time"

// AggregatedSensorID labels aggregates built from the shared window.
const AggregatedSensorID = "aggregated"

// Reading represents one sample from an aircraft sensor.
type Reading struct {
	SensorID    string    `json:"sensor_id"`
	Temperature float64   `json:"temperature"` // °C
	Humidity    float64   `json:"humidity"`    // % RH
	AirQuality  float64   `json:"air_quality"` // AQI
	Timestamp   time.Time `json:"ts"`
}

// AggregateReading is the windowed mean of accepted readings.
type AggregateReading struct {
	SensorID    string    `json:"sensor_id"`
	Temperature float64   `json:"temperature"`
	Humidity    float64   `json:"humidity"`
	AirQuality  float64   `json:"air_quality"`
	Count       int       `json:"count"`
	Timestamp   time.Time `json:"ts"`
}

// Range is an inclusive [Min, Max] interval for a simulated field.
type Range struct {
	Min float64 `yaml:"min" json:"min"`
	Max float64 `yaml:"max" json:"max"`
}

// Contains reports whether v lies inside the range.
func (r Range) Contains(v float64) bool {
	return v >= r.Min && v <= r.Max
}

// Ranges groups the value domains of the three simulated fields.
type Ranges struct {
	Temperature Range `yaml:"temperature"`
	Humidity    Range `yaml:"humidity"`
	AirQuality  Range `yaml:"air_quality"`
}

// DefaultRanges mirrors the RSL10 sensor datasheet domains.
func DefaultRanges() Ranges {
	return Ranges{
		Temperature: Range{Min: -40, Max: 85},
		Humidity:    Range{Min: 0, Max: 100},
		AirQuality:  Range{Min: 0, Max: 500},
	}
}
