package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	gpb "github.com/GreptimeTeam/greptime-proto/go/greptime/v1"
	greptime "github.com/GreptimeTeam/greptimedb-ingester-go"
	"github.com/GreptimeTeam/greptimedb-ingester-go/table"
	"github.com/GreptimeTeam/greptimedb-ingester-go/table/types"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// greptimeClient is the subset of the ingester client used by GreptimeSink.
type greptimeClient interface {
	Write(ctx context.Context, tables ...*table.Table) (*gpb.GreptimeResponse, error)
}

// GreptimeSettings locate the GreptimeDB instance receiving aggregates.
type GreptimeSettings struct {
	Endpoint string
	Port     int
	Database string
	Table    string
	Username string
	Password string
}

// GreptimeSink writes telemetry messages as rows of a GreptimeDB table.
type GreptimeSink struct {
	client greptimeClient
	table  string
	now    func() time.Time
}

// NewGreptimeSink creates a sink backed by the GreptimeDB ingester client.
func NewGreptimeSink(s GreptimeSettings) (*GreptimeSink, error) {
	cfg := greptime.NewConfig(s.Endpoint).WithPort(s.Port).WithDatabase(s.Database)
	if s.Username != "" {
		cfg = cfg.WithAuth(s.Username, s.Password)
	}
	client, err := greptime.NewClient(cfg)
	if err != nil {
		return nil, err
	}
	return &GreptimeSink{client: client, table: s.Table, now: time.Now}, nil
}

// body mirrors the JSON body produced by the dispatcher.
type body struct {
	Temperature float64 `json:"temperature"`
	Humidity    float64 `json:"humidity"`
	AirQuality  float64 `json:"air_quality"`
}

// Send inserts one row: sensor_id tag, the three averages, the alert flag and ts.
func (s *GreptimeSink) Send(ctx context.Context, msg Message) error {
	var b body
	if err := json.Unmarshal(msg.Body, &b); err != nil {
		return &SendError{Kind: KindRejected, Sink: "greptime", Err: fmt.Errorf("decode body: %w", err)}
	}

	tbl, err := s.newTable()
	if err != nil {
		return &SendError{Kind: KindRejected, Sink: "greptime", Err: err}
	}
	alert := msg.Attributes[AttrTemperatureAlert] == "true"
	if err := tbl.AddRow(msg.Attributes[AttrSensorID], b.Temperature, b.Humidity, b.AirQuality, alert, s.now().UTC()); err != nil {
		return &SendError{Kind: KindRejected, Sink: "greptime", Err: err}
	}

	if _, err := s.client.Write(ctx, tbl); err != nil {
		kind := KindTransport
		if status.Code(err) == codes.ResourceExhausted {
			kind = KindRateLimited
		}
		return &SendError{Kind: kind, Sink: "greptime", Err: err}
	}
	return nil
}

func (s *GreptimeSink) newTable() (*table.Table, error) {
	tbl, err := table.New(s.table)
	if err != nil {
		return nil, err
	}
	if err := tbl.AddTagColumn("sensor_id", types.STRING); err != nil {
		return nil, err
	}
	for _, name := range []string{"temperature", "humidity", "air_quality"} {
		if err := tbl.AddFieldColumn(name, types.FLOAT64); err != nil {
			return nil, err
		}
	}
	if err := tbl.AddFieldColumn("temperature_alert", types.BOOLEAN); err != nil {
		return nil, err
	}
	if err := tbl.AddTimestampColumn("ts", types.TIMESTAMP_MILLISECOND); err != nil {
		return nil, err
	}
	return tbl, nil
}

// Disconnect closes the ingester client if it supports closing.
func (s *GreptimeSink) Disconnect() error {
	if c, ok := s.client.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
