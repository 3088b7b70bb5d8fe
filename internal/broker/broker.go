// Package broker runs an in-process MQTT broker standing in for the cloud hub.
package broker

import (
	"bytes"
	"log/slog"
	"sync"
	"time"

	mochi "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/hooks/auth"
	"github.com/mochi-mqtt/server/v2/listeners"
	"github.com/mochi-mqtt/server/v2/packets"
)

// Options configures the embedded broker.
type Options struct {
	// Address is the TCP listen address, e.g. "localhost:1883".
	Address string
	// PublishLimit caps publishes per client per Window; 0 disables the quota.
	PublishLimit int
	Window       time.Duration
	Logger       *slog.Logger
}

// Delivery is a telemetry message observed by the broker.
type Delivery struct {
	Topic      string
	Payload    []byte
	Attributes map[string]string
}

// Broker wraps a mochi MQTT server.
type Broker struct {
	srv *mochi.Server
}

// Start launches the broker and begins serving.
func Start(opts Options) (*Broker, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	srv := mochi.New(&mochi.Options{InlineClient: true, Logger: logger})
	if err := srv.AddHook(new(auth.AllowHook), nil); err != nil {
		return nil, err
	}
	if opts.PublishLimit > 0 {
		window := opts.Window
		if window <= 0 {
			window = time.Second
		}
		q := &quotaHook{limit: opts.PublishLimit, window: window, now: time.Now, seen: make(map[string]*quotaWindow)}
		if err := srv.AddHook(q, nil); err != nil {
			return nil, err
		}
	}
	tcp := listeners.NewTCP(listeners.Config{Type: "tcp", ID: "aircraft-mon", Address: opts.Address})
	if err := srv.AddListener(tcp); err != nil {
		return nil, err
	}
	if err := srv.Serve(); err != nil {
		return nil, err
	}
	return &Broker{srv: srv}, nil
}

// Subscribe registers fn for every publish matching filter.
func (b *Broker) Subscribe(filter string, id int, fn func(Delivery)) error {
	return b.srv.Subscribe(filter, id, func(_ *mochi.Client, _ packets.Subscription, pk packets.Packet) {
		attrs := make(map[string]string, len(pk.Properties.User))
		for _, up := range pk.Properties.User {
			attrs[up.Key] = up.Val
		}
		fn(Delivery{Topic: pk.TopicName, Payload: pk.Payload, Attributes: attrs})
	})
}

// Close stops the broker.
func (b *Broker) Close() error {
	return b.srv.Close()
}

type quotaWindow struct {
	start time.Time
	count int
}

// quotaHook rejects publishes above limit per window with reason code 0x97.
type quotaHook struct {
	mochi.HookBase
	limit  int
	window time.Duration
	now    func() time.Time

	mu   sync.Mutex
	seen map[string]*quotaWindow
}

func (h *quotaHook) ID() string { return "publish-quota" }

func (h *quotaHook) Provides(b byte) bool {
	return bytes.Contains([]byte{mochi.OnPublish, mochi.OnDisconnect}, []byte{b})
}

func (h *quotaHook) OnPublish(cl *mochi.Client, pk packets.Packet) (packets.Packet, error) {
	if cl.Net.Inline {
		return pk, nil
	}
	if !h.allow(cl.ID) {
		return pk, packets.ErrQuotaExceeded
	}
	return pk, nil
}

func (h *quotaHook) OnDisconnect(cl *mochi.Client, _ error, _ bool) {
	h.mu.Lock()
	delete(h.seen, cl.ID)
	h.mu.Unlock()
}

func (h *quotaHook) allow(clientID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	now := h.now()
	w, ok := h.seen[clientID]
	if !ok || now.Sub(w.start) >= h.window {
		w = &quotaWindow{start: now}
		h.seen[clientID] = w
	}
	w.count++
	return w.count <= h.limit
}
