package sink

import (
	"errors"
	"fmt"
)

// SendErrorKind classifies delivery failures.
type SendErrorKind byte

const (
	// KindTransport covers network and protocol failures.
	KindTransport SendErrorKind = iota
	// KindRateLimited means the endpoint throttled the sender.
	KindRateLimited
	// KindRejected means the endpoint refused the message for another reason.
	KindRejected
)

func (k SendErrorKind) String() string {
	switch k {
	case KindRateLimited:
		return "rate_limited"
	case KindRejected:
		return "rejected"
	default:
		return "transport"
	}
}

// SendError is returned by TelemetrySink.Send.
type SendError struct {
	Kind SendErrorKind
	Sink string
	Err  error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("%s send failed (%s): %v", e.Sink, e.Kind, e.Err)
}

func (e *SendError) Unwrap() error { return e.Err }

// ConnectError is returned when a sink cannot be opened.
type ConnectError struct {
	SensorID string
	Err      error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("connect sink for %s: %v", e.SensorID, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// ErrClosed is returned when sending on a disconnected sink.
var ErrClosed = errors.New("sink is disconnected")

// IsRateLimited reports whether err carries a rate-limit SendError.
func IsRateLimited(err error) bool {
	var se *SendError
	return errors.As(err, &se) && se.Kind == KindRateLimited
}
