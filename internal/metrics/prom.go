// Package metrics exports pipeline activity as Prometheus metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"aircraft-mon/internal/pipeline"
	"aircraft-mon/internal/sink"
	"aircraft-mon/internal/telemetry"
)

// Exporter is a pipeline.Observer updating Prometheus collectors.
type Exporter struct {
	gatherer prometheus.Gatherer

	readings    *prometheus.CounterVec
	aggregates  prometheus.Counter
	dispatches  *prometheus.CounterVec
	latency     prometheus.Histogram
	aggregateT  *prometheus.GaugeVec
	filtering   prometheus.Gauge
	aggregation prometheus.Gauge
}

// NewExporter registers the pipeline collectors on a fresh registry.
func NewExporter() *Exporter {
	return NewExporterWithRegistry(prometheus.NewRegistry())
}

// NewExporterWithRegistry registers the collectors on reg.
func NewExporterWithRegistry(reg *prometheus.Registry) *Exporter {
	e := &Exporter{
		gatherer: reg,
		readings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "aircraft_readings_total",
			Help: "Sensor readings reaching the filter, by sensor and outcome.",
		}, []string{"sensor_id", "result"}),
		aggregates: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "aircraft_aggregates_total",
			Help: "Aggregates emitted by the fog layer.",
		}),
		dispatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "aircraft_dispatch_total",
			Help: "Cloud dispatch attempts by result.",
		}, []string{"result"}),
		latency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "aircraft_dispatch_latency_seconds",
			Help:    "Wall-clock duration of cloud send calls.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		}),
		aggregateT: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "aircraft_aggregate_temperature_celsius",
			Help: "Mean temperature of the last aggregate per window.",
		}, []string{"sensor_id"}),
		filtering: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "aircraft_filtering_ratio",
			Help: "Filtered over processed readings at the last report.",
		}),
		aggregation: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "aircraft_aggregation_reduction_ratio",
			Help: "Share of filtered readings not sent individually at the last report.",
		}),
	}
	reg.MustRegister(e.readings, e.aggregates, e.dispatches, e.latency, e.aggregateT, e.filtering, e.aggregation)
	return e
}

// Handler serves the registry in the Prometheus exposition format.
func (e *Exporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.gatherer, promhttp.HandlerOpts{})
}

func (e *Exporter) OnReading(r telemetry.Reading, accepted bool) {
	result := "discarded"
	if accepted {
		result = "accepted"
	}
	e.readings.WithLabelValues(r.SensorID, result).Inc()
}

func (e *Exporter) OnAggregate(a telemetry.AggregateReading) {
	e.aggregates.Inc()
	e.aggregateT.WithLabelValues(a.SensorID).Set(a.Temperature)
}

func (e *Exporter) OnDispatch(_ telemetry.AggregateReading, latency time.Duration, err error) {
	switch {
	case err == nil:
		e.dispatches.WithLabelValues("sent").Inc()
		e.latency.Observe(latency.Seconds())
	case sink.IsRateLimited(err):
		e.dispatches.WithLabelValues("rate_limited").Inc()
	default:
		e.dispatches.WithLabelValues("failed").Inc()
	}
}

func (e *Exporter) OnReport(s pipeline.Snapshot) {
	e.filtering.Set(s.FilteringRatio)
	e.aggregation.Set(s.AggregationReduction)
}
