package sink

import (
	"context"
	"errors"
	"testing"
)

func TestMultiSink(t *testing.T) {
	a := &collectSink{}
	b := &collectSink{}
	m := NewMultiSink(a, b)
	msg := Message{Body: []byte(`{}`), Attributes: map[string]string{AttrSensorID: "s1"}}
	if err := m.Send(context.Background(), msg); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(a.msgs) != 1 || len(b.msgs) != 1 {
		t.Fatalf("expected both sinks to receive the message, got %d and %d", len(a.msgs), len(b.msgs))
	}
}

func TestMultiSinkJoinsErrors(t *testing.T) {
	limited := &SendError{Kind: KindRateLimited, Sink: "mqtt:s1", Err: errors.New("quota exceeded")}
	failing := &collectSink{err: limited}
	ok := &collectSink{}
	m := NewMultiSink(failing, ok)

	err := m.Send(context.Background(), Message{Body: []byte(`{}`)})
	if err == nil {
		t.Fatalf("expected error")
	}
	if !IsRateLimited(err) {
		t.Fatalf("joined error lost its kind: %v", err)
	}
	if len(ok.msgs) != 1 {
		t.Fatalf("healthy sink should still receive the message")
	}

	if err := m.Disconnect(); !errors.Is(err, limited) {
		t.Fatalf("Disconnect error = %v", err)
	}
	if failing.disconnected != 1 || ok.disconnected != 1 {
		t.Fatalf("every sink must be disconnected")
	}
}
