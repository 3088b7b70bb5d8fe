package pipeline

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"aircraft-mon/internal/config"
	"aircraft-mon/internal/logging"
	"aircraft-mon/internal/sink"
	"aircraft-mon/internal/telemetry"
)

// ErrNoSinks is returned by Run when no stream has a connected sink.
var ErrNoSinks = errors.New("no telemetry sink could be connected")

// Status is the scheduler lifecycle state.
type Status int32

const (
	StatusInit Status = iota
	StatusRunning
	StatusStopping
	StatusStopped
)

func (s Status) String() string {
	switch s {
	case StatusRunning:
		return "RUNNING"
	case StatusStopping:
		return "STOPPING"
	case StatusStopped:
		return "STOPPED"
	default:
		return "INIT"
	}
}

// Source produces readings for a sensor identity.
type Source interface {
	Generate(sensorID string) telemetry.Reading
}

// Reporter receives periodic and final metrics snapshots.
type Reporter interface {
	Report(s Snapshot)
}

// Stream is one sensor identity and its cloud connection. Sink is nil when
// the connection could not be opened.
type Stream struct {
	SensorID string
	Sink     sink.TelemetrySink
}

// Scheduler drives one worker per stream through the pipeline stages.
type Scheduler struct {
	streams     []Stream
	source      Source
	edge        *EdgeCollector
	filter      *Filter
	agg         *Aggregator
	disp        *Dispatcher
	state       *State
	interval    time.Duration
	reportEvery int
	cloudOnly   bool

	reporter Reporter
	observer Observer
	sleep    Sleeper
	now      func() time.Time
	status   atomic.Int32
}

// NewScheduler wires the stages from cfg.
func NewScheduler(cfg *config.PipelineConfig, source Source, streams []Stream) *Scheduler {
	state := NewState()
	return &Scheduler{
		streams:     streams,
		source:      source,
		edge:        NewEdgeCollector(cfg.BLELatency),
		filter:      NewFilter(state, cfg.FilterThreshold),
		agg:         NewAggregator(cfg.AggregationWindow, cfg.WindowMode == config.WindowPerSensor),
		disp:        NewDispatcher(state, cfg.AlertThreshold),
		state:       state,
		interval:    cfg.SensorInterval,
		reportEvery: cfg.ReportEvery,
		cloudOnly:   cfg.PipelineMode == config.ModeCloudOnly,
		sleep:       Sleep,
		now:         time.Now,
	}
}

// SetReporter sets the receiver of metrics reports.
func (s *Scheduler) SetReporter(r Reporter) { s.reporter = r }

// SetObserver sets the receiver of stage events.
func (s *Scheduler) SetObserver(o Observer) {
	s.observer = o
	s.disp.observer = o
}

// SetSleeper replaces the delay used for link latency and pacing.
func (s *Scheduler) SetSleeper(sl Sleeper) {
	s.sleep = sl
	s.edge.Sleep = sl
}

// State returns the shared counters.
func (s *Scheduler) State() *State { return s.state }

// Status returns the lifecycle state.
func (s *Scheduler) Status() Status { return Status(s.status.Load()) }

// Streams returns the configured streams.
func (s *Scheduler) Streams() []Stream { return s.streams }

// Run processes every stream until ctx is cancelled, then emits the final
// report and disconnects all sinks.
func (s *Scheduler) Run(ctx context.Context) error {
	log := logging.FromContext(ctx)
	if !s.hasSink() {
		s.status.Store(int32(StatusStopped))
		return ErrNoSinks
	}

	s.status.Store(int32(StatusRunning))
	log.Info("starting pipeline", "streams", len(s.streams), "interval", s.interval, "cloud_only", s.cloudOnly)

	g, gctx := errgroup.WithContext(ctx)
	for _, st := range s.streams {
		g.Go(func() error { return s.runStream(gctx, st) })
	}
	err := g.Wait()

	s.status.Store(int32(StatusStopping))
	log.Info("stopping pipeline")
	s.emitReport(ctx)
	s.disconnectAll(ctx)
	s.status.Store(int32(StatusStopped))

	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return nil
}

func (s *Scheduler) hasSink() bool {
	for _, st := range s.streams {
		if st.Sink != nil {
			return true
		}
	}
	return false
}

func (s *Scheduler) runStream(ctx context.Context, st Stream) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		start := s.now()
		if err := s.tick(ctx, st); err != nil {
			return err
		}
		if err := s.sleep(ctx, nextDelay(s.interval, s.now().Sub(start))); err != nil {
			return err
		}
	}
}

// tick runs one reading through every stage. Only cancellation is returned
// as an error; stage failures are logged and dropped.
func (s *Scheduler) tick(ctx context.Context, st Stream) error {
	log := logging.FromContext(ctx)
	r := s.source.Generate(st.SensorID)
	r, err := s.edge.Collect(ctx, r)
	if err != nil {
		return err
	}

	if s.cloudOnly {
		return s.forward(ctx, st, r)
	}

	_, accepted, n := s.filter.apply(r)
	if s.observer != nil {
		s.observer.OnReading(r, accepted)
	}
	if accepted {
		log.Debug("filtered", "sensor_id", r.SensorID, "temperature", r.Temperature)
		if agg, ok := s.agg.Accumulate(r); ok {
			log.Info("fog aggregated", "sensor_id", agg.SensorID, "temperature", agg.Temperature,
				"humidity", agg.Humidity, "air_quality", agg.AirQuality, "count", agg.Count)
			if s.observer != nil {
				s.observer.OnAggregate(agg)
			}
			// Failures are logged by the dispatcher and never stop the stream.
			_ = s.disp.Dispatch(ctx, st.Sink, agg)
		}
	} else {
		log.Debug("discarded", "sensor_id", st.SensorID, "threshold", s.filter.Threshold)
	}

	if s.reportEvery > 0 && n%s.reportEvery == 0 {
		s.emitReport(ctx)
	}
	return nil
}

// forward sends a reading straight to the cloud as a single-sample
// aggregate. Nothing is discarded, so the filtered count tracks the message
// count and both reduction ratios reflect the unreduced baseline.
func (s *Scheduler) forward(ctx context.Context, st Stream, r telemetry.Reading) error {
	n := s.state.IncMessage()
	s.state.IncFiltered()
	if s.observer != nil {
		s.observer.OnReading(r, true)
	}
	_ = s.disp.Dispatch(ctx, st.Sink, telemetry.AggregateReading{
		SensorID:    r.SensorID,
		Temperature: r.Temperature,
		Humidity:    r.Humidity,
		AirQuality:  r.AirQuality,
		Count:       1,
		Timestamp:   r.Timestamp,
	})
	if s.reportEvery > 0 && n%s.reportEvery == 0 {
		s.emitReport(ctx)
	}
	return nil
}

func (s *Scheduler) emitReport(ctx context.Context) {
	snap := Report(s.state)
	if s.observer != nil {
		s.observer.OnReport(snap)
	}
	if s.reporter != nil {
		s.reporter.Report(snap)
		return
	}
	logging.FromContext(ctx).Info("metrics", "processed", snap.Processed, "filtered", snap.Filtered,
		"sent", snap.Sent, "avg_latency_ms", snap.AvgLatencyMs)
}

func (s *Scheduler) disconnectAll(ctx context.Context) {
	log := logging.FromContext(ctx)
	for _, st := range s.streams {
		if st.Sink == nil {
			continue
		}
		if err := st.Sink.Disconnect(); err != nil {
			log.Warn("sink disconnect failed", "sensor_id", st.SensorID, "err", err)
		}
	}
}

// nextDelay returns the pause keeping tick starts interval apart.
func nextDelay(interval, elapsed time.Duration) time.Duration {
	if elapsed >= interval {
		return 0
	}
	return interval - elapsed
}
