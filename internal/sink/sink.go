// Package sink holds the cloud-side endpoints that receive dispatched telemetry.
package sink

import (
	"context"
	"encoding/json"
	"time"
)

// Attribute keys attached to every telemetry message.
const (
	AttrSensorID         = "sensor_id"
	AttrTemperatureAlert = "temperatureAlert"
)

// Message is one transport message: a JSON body plus string attributes.
type Message struct {
	Body       []byte
	Attributes map[string]string
}

// TelemetrySink is a connected cloud telemetry endpoint.
type TelemetrySink interface {
	// Send delivers one message. It blocks until the endpoint acknowledges it.
	Send(ctx context.Context, msg Message) error
	// Disconnect releases the connection. It is best-effort.
	Disconnect() error
}

// Connector opens a sink for the given sensor using its credentials.
type Connector func(ctx context.Context, sensorID, credentials string) (TelemetrySink, error)

// Envelope is the on-disk and on-screen form of a Message.
type Envelope struct {
	Body       json.RawMessage   `json:"body"`
	Attributes map[string]string `json:"attributes"`
	Timestamp  time.Time         `json:"ts"`
}

func newEnvelope(msg Message, ts time.Time) Envelope {
	return Envelope{Body: json.RawMessage(msg.Body), Attributes: msg.Attributes, Timestamp: ts}
}

// Message converts the envelope back to a transport message.
func (e Envelope) Message() Message {
	return Message{Body: []byte(e.Body), Attributes: e.Attributes}
}
