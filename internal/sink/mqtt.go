package sink

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/eclipse/paho.golang/paho"
	"github.com/google/uuid"
)

// MQTT v5 reason codes signalling throttling.
const (
	reasonMessageRateTooHigh byte = 0x96
	reasonQuotaExceeded      byte = 0x97
)

// pahoClient is the subset of *paho.Client used by MQTTSink.
type pahoClient interface {
	Connect(ctx context.Context, cp *paho.Connect) (*paho.Connack, error)
	Publish(ctx context.Context, p *paho.Publish) (*paho.PublishResponse, error)
	Disconnect(d *paho.Disconnect) error
}

// MQTTOptions configures the publish side of an MQTT sink.
type MQTTOptions struct {
	// Topic may contain {device_id}, replaced by the device id.
	Topic string
	QoS   byte
}

// MQTTSink publishes telemetry to an MQTT v5 broker such as an IoT hub.
type MQTTSink struct {
	name   string
	client pahoClient
	topic  string
	qos    byte
	closed atomic.Bool
}

// MQTTConnector returns a Connector dialing MQTT brokers from connection strings.
func MQTTConnector(opts MQTTOptions) Connector {
	return func(ctx context.Context, sensorID, credentials string) (TelemetrySink, error) {
		cs, err := ParseConnectionString(credentials)
		if err != nil {
			return nil, &ConnectError{SensorID: sensorID, Err: err}
		}
		if cs.DeviceID == "" {
			cs.DeviceID = sensorID
		}
		s, err := DialMQTT(ctx, cs, opts)
		if err != nil {
			return nil, &ConnectError{SensorID: sensorID, Err: err}
		}
		return s, nil
	}
}

// DialMQTT opens a connection and performs the MQTT CONNECT handshake.
func DialMQTT(ctx context.Context, cs *ConnectionSettings, opts MQTTOptions) (*MQTTSink, error) {
	conn, err := dial(ctx, cs)
	if err != nil {
		return nil, err
	}

	clientID := cs.ClientID
	if clientID == "" {
		clientID = cs.DeviceID
	}
	if clientID == "" {
		clientID = "aircraft-mon-" + uuid.NewString()
	}

	client := paho.NewClient(paho.ClientConfig{
		ClientID: clientID,
		Conn:     conn,
	})
	s := newMQTTSink(client, cs.DeviceID, opts)
	if err := s.connect(ctx, cs, clientID); err != nil {
		conn.Close()
		return nil, err
	}
	return s, nil
}

func dial(ctx context.Context, cs *ConnectionSettings) (net.Conn, error) {
	if cs.UseTLS {
		d := tls.Dialer{Config: &tls.Config{ServerName: cs.HostName, MinVersion: tls.VersionTLS12}}
		return d.DialContext(ctx, "tcp", cs.Address())
	}
	var d net.Dialer
	return d.DialContext(ctx, "tcp", cs.Address())
}

func newMQTTSink(client pahoClient, deviceID string, opts MQTTOptions) *MQTTSink {
	topic := opts.Topic
	if topic == "" {
		topic = "devices/{device_id}/messages/events"
	}
	return &MQTTSink{
		name:   "mqtt:" + deviceID,
		client: client,
		topic:  strings.ReplaceAll(topic, "{device_id}", deviceID),
		qos:    opts.QoS,
	}
}

func (s *MQTTSink) connect(ctx context.Context, cs *ConnectionSettings, clientID string) error {
	username, password, err := cs.Credentials(time.Now())
	if err != nil {
		return err
	}
	cp := &paho.Connect{
		ClientID:   clientID,
		KeepAlive:  uint16(cs.KeepAlive / time.Second),
		CleanStart: true,
	}
	if username != "" {
		cp.Username = username
		cp.UsernameFlag = true
	}
	if password != "" {
		cp.Password = []byte(password)
		cp.PasswordFlag = true
	}
	ca, err := s.client.Connect(ctx, cp)
	if err != nil {
		if ca != nil && ca.Properties != nil && ca.Properties.ReasonString != "" {
			return fmt.Errorf("MQTT connect: %w (%s)", err, ca.Properties.ReasonString)
		}
		return fmt.Errorf("MQTT connect: %w", err)
	}
	return nil
}

// Topic returns the resolved publish topic.
func (s *MQTTSink) Topic() string { return s.topic }

// Send publishes msg with its attributes as MQTT user properties.
func (s *MQTTSink) Send(ctx context.Context, msg Message) error {
	if s.closed.Load() {
		return &SendError{Kind: KindTransport, Sink: s.name, Err: ErrClosed}
	}
	pub := &paho.Publish{
		QoS:     s.qos,
		Topic:   s.topic,
		Payload: msg.Body,
		Properties: &paho.PublishProperties{
			ContentType: "application/json",
			User:        userProperties(msg.Attributes),
		},
	}
	res, err := s.client.Publish(ctx, pub)

	// Paho can return (nil, nil) for QoS 0.
	if pub.QoS == 0 && res == nil && err == nil {
		return nil
	}
	return s.translate(res, err)
}

func (s *MQTTSink) translate(res *paho.PublishResponse, err error) error {
	if res != nil && res.ReasonCode >= 0x80 {
		kind := KindRejected
		if res.ReasonCode == reasonQuotaExceeded || res.ReasonCode == reasonMessageRateTooHigh {
			kind = KindRateLimited
		}
		reason := fmt.Sprintf("reason code 0x%02x", res.ReasonCode)
		if res.Properties != nil && res.Properties.ReasonString != "" {
			reason += ": " + res.Properties.ReasonString
		}
		return &SendError{Kind: kind, Sink: s.name, Err: errors.New(reason)}
	}
	if err != nil {
		return &SendError{Kind: KindTransport, Sink: s.name, Err: err}
	}
	return nil
}

// Disconnect sends DISCONNECT and closes the connection.
func (s *MQTTSink) Disconnect() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.client.Disconnect(&paho.Disconnect{ReasonCode: 0})
}

func userProperties(attrs map[string]string) paho.UserProperties {
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	props := make(paho.UserProperties, 0, len(keys))
	for _, k := range keys {
		props = append(props, paho.UserProperty{Key: k, Value: attrs[k]})
	}
	return props
}
