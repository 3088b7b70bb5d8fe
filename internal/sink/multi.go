package sink

import (
	"context"
	"errors"
)

// MultiSink fan-outs messages to several sinks.
type MultiSink struct {
	sinks []TelemetrySink
}

// NewMultiSink creates a new MultiSink.
func NewMultiSink(sinks ...TelemetrySink) *MultiSink {
	return &MultiSink{sinks: sinks}
}

// Send delivers msg to every sink and joins their errors.
func (m *MultiSink) Send(ctx context.Context, msg Message) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Send(ctx, msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Disconnect disconnects every sink and joins their errors.
func (m *MultiSink) Disconnect() error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Disconnect(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
