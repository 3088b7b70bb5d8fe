// Sink implementation printing telemetry to STDOUT
package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// StdoutSink prints each message as a JSON envelope line.
type StdoutSink struct {
	mu  sync.Mutex
	out io.Writer
	now func() time.Time
}

// NewStdoutSink creates a StdoutSink writing to os.Stdout.
func NewStdoutSink() *StdoutSink {
	return &StdoutSink{out: os.Stdout, now: time.Now}
}

// Send outputs a single message.
func (s *StdoutSink) Send(_ context.Context, msg Message) error {
	data, err := json.Marshal(newEnvelope(msg, s.now().UTC()))
	if err != nil {
		return &SendError{Kind: KindRejected, Sink: "stdout", Err: err}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintln(s.out, string(data))
	return nil
}

// Disconnect is a no-op.
func (s *StdoutSink) Disconnect() error { return nil }

// DiscardSink accepts and drops every message. It stands in for StdoutSink
// when the terminal belongs to an interactive UI.
type DiscardSink struct{}

// NewDiscardSink returns a DiscardSink.
func NewDiscardSink() DiscardSink { return DiscardSink{} }

func (DiscardSink) Send(context.Context, Message) error { return nil }

func (DiscardSink) Disconnect() error { return nil }
