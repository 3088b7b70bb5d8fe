package sink

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"time"
)

// Replay re-sends envelopes read from r to dst. A speed >0 reproduces the
// recorded spacing divided by speed; speed <= 0 sends without delay.
// It returns the number of messages sent.
func Replay(ctx context.Context, r io.Reader, dst TelemetrySink, speed float64) (int, error) {
	dec := json.NewDecoder(r)
	var prev time.Time
	sent := 0
	for {
		var env Envelope
		if err := dec.Decode(&env); err != nil {
			if err == io.EOF {
				return sent, nil
			}
			return sent, err
		}
		if !prev.IsZero() && speed > 0 {
			diff := env.Timestamp.Sub(prev)
			if speed != 1 {
				diff = time.Duration(float64(diff) / speed)
			}
			if diff > 0 {
				select {
				case <-ctx.Done():
					return sent, ctx.Err()
				case <-time.After(diff):
				}
			}
		}
		if err := dst.Send(ctx, env.Message()); err != nil {
			return sent, err
		}
		sent++
		prev = env.Timestamp
	}
}

// ReplayFile opens a JSONL log and replays its messages.
func ReplayFile(ctx context.Context, path string, dst TelemetrySink, speed float64) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	return Replay(ctx, f, dst, speed)
}
