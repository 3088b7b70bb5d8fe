package sink

import (
	"context"
	"encoding/json"
	"os"
	"sync"
	"time"
)

// FileSink appends messages as JSONL envelopes to a file.
type FileSink struct {
	mu  sync.Mutex
	f   *os.File
	enc *json.Encoder
	now func() time.Time
}

// NewFileSink creates (or truncates) path.
func NewFileSink(path string) (*FileSink, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	return &FileSink{f: f, enc: json.NewEncoder(f), now: time.Now}, nil
}

// Send logs a single message.
func (s *FileSink) Send(_ context.Context, msg Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return &SendError{Kind: KindTransport, Sink: "file", Err: ErrClosed}
	}
	if err := s.enc.Encode(newEnvelope(msg, s.now().UTC())); err != nil {
		return &SendError{Kind: KindTransport, Sink: "file", Err: err}
	}
	return nil
}

// Disconnect closes the underlying file.
func (s *FileSink) Disconnect() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return nil
	}
	err := s.f.Close()
	s.f = nil
	return err
}
