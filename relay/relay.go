// Package relay forwards raw encoded frames to an external streaming sink
// over a WebSocket connection it owns and reconnects on failure. The relay
// is a live-view path: on queue overflow the oldest frame is dropped so the
// newest is always admitted, and Enqueue never blocks the capture loop.
package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	_ "image/jpeg"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/TheGonzalezDesigns/corpus-vision/component"
	"github.com/TheGonzalezDesigns/corpus-vision/errors"
	"github.com/TheGonzalezDesigns/corpus-vision/metric"
	"github.com/TheGonzalezDesigns/corpus-vision/pkg/buffer"
	"github.com/TheGonzalezDesigns/corpus-vision/pkg/retry"
)

const defaultQueueCapacity = 100

// hello is the handshake sent before streaming binary frames.
type hello struct {
	Type   string `json:"type"`
	Width  int    `json:"w"`
	Height int    `json:"h"`
	Format string `json:"fmt"`
}

// Config holds construction parameters for the relay.
type Config struct {
	Enabled         bool
	URL             string
	QueueCapacity   int
	ReconnectWait   time.Duration
	Logger          *slog.Logger
	MetricsRegistry *metric.MetricsRegistry
}

// Relay owns the upstream connection and a bounded frame queue.
type Relay struct {
	enabled       bool
	url           string
	reconnectWait time.Duration

	queue  buffer.Buffer[[]byte]
	logger *slog.Logger

	// frame dimensions for the handshake, settable before or after Start
	dimsMu sync.Mutex
	width  int
	height int

	// Lifecycle management
	lifecycleMu sync.Mutex
	running     bool
	cancel      context.CancelFunc
	done        chan struct{}

	sent      int64
	sendFails int64

	metrics *relayMetrics
}

type relayMetrics struct {
	framesEnqueued prometheus.Counter
	framesSent     prometheus.Counter
	framesDropped  prometheus.Counter
	sendErrors     prometheus.Counter
	reconnects     prometheus.Counter
}

func newRelayMetrics(registry *metric.MetricsRegistry) *relayMetrics {
	if registry == nil {
		return nil
	}

	m := &relayMetrics{
		framesEnqueued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "corpusvision",
			Subsystem: "relay",
			Name:      "frames_enqueued_total",
			Help:      "Total frames enqueued for relaying",
		}),
		framesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "corpusvision",
			Subsystem: "relay",
			Name:      "frames_sent_total",
			Help:      "Total frames sent upstream",
		}),
		framesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "corpusvision",
			Subsystem: "relay",
			Name:      "frames_dropped_total",
			Help:      "Total frames dropped due to queue overflow",
		}),
		sendErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "corpusvision",
			Subsystem: "relay",
			Name:      "send_errors_total",
			Help:      "Total upstream send failures",
		}),
		reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "corpusvision",
			Subsystem: "relay",
			Name:      "reconnects_total",
			Help:      "Total upstream reconnection attempts",
		}),
	}

	registry.PrometheusRegistry().MustRegister(
		m.framesEnqueued,
		m.framesSent,
		m.framesDropped,
		m.sendErrors,
		m.reconnects,
	)
	return m
}

// New creates a relay. A disabled relay (Enabled false or empty URL)
// accepts Enqueue calls as no-ops and starts nothing.
func New(cfg Config) *Relay {
	if cfg.QueueCapacity <= 0 {
		cfg.QueueCapacity = defaultQueueCapacity
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.ReconnectWait <= 0 {
		cfg.ReconnectWait = 2 * time.Second
	}

	metrics := newRelayMetrics(cfg.MetricsRegistry)

	queue := buffer.NewCircular[[]byte](cfg.QueueCapacity,
		buffer.WithOverflowPolicy[[]byte](buffer.DropOldest),
		buffer.WithDropCallback[[]byte](func([]byte) {
			if metrics != nil {
				metrics.framesDropped.Inc()
			}
		}),
	)

	return &Relay{
		enabled:       cfg.Enabled && cfg.URL != "",
		url:           cfg.URL,
		reconnectWait: cfg.ReconnectWait,
		queue:         queue,
		logger:        cfg.Logger,
		metrics:       metrics,
	}
}

// Name implements component.LifecycleComponent.
func (r *Relay) Name() string {
	return "ingest-relay"
}

// Enabled reports whether the relay will forward frames.
func (r *Relay) Enabled() bool {
	return r.enabled
}

// SetDims records the frame dimensions announced in the handshake.
func (r *Relay) SetDims(w, h int) {
	r.dimsMu.Lock()
	r.width = w
	r.height = h
	r.dimsMu.Unlock()
}

// deriveDims fills in the handshake dimensions from the first decodable
// frame when none were set explicitly.
func (r *Relay) deriveDims(frame []byte) {
	r.dimsMu.Lock()
	known := r.width != 0 || r.height != 0
	r.dimsMu.Unlock()
	if known {
		return
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(frame))
	if err != nil {
		return
	}
	r.SetDims(cfg.Width, cfg.Height)
}

// Enqueue pushes a frame into the bounded queue. Never blocks; when the
// queue is full the oldest frame is dropped to admit this one. No-op when
// the relay is disabled.
func (r *Relay) Enqueue(frame []byte) {
	if !r.enabled {
		return
	}
	r.deriveDims(frame)
	if err := r.queue.Write(frame); err != nil {
		return
	}
	if r.metrics != nil {
		r.metrics.framesEnqueued.Inc()
	}
}

// QueueSize returns the number of frames currently queued.
func (r *Relay) QueueSize() int {
	return r.queue.Size()
}

// Initialize validates the relay configuration.
func (r *Relay) Initialize() error {
	if r.enabled && r.url == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "Relay", "Initialize",
			"ingest URL required when enabled")
	}
	return nil
}

// Start launches the background sender. Idempotent; a disabled relay
// starts nothing and returns nil.
func (r *Relay) Start(ctx context.Context) error {
	r.lifecycleMu.Lock()
	defer r.lifecycleMu.Unlock()

	if !r.enabled {
		r.logger.Info("ingest relay disabled, skipping start")
		return nil
	}
	if r.running {
		return nil
	}

	senderCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.done = make(chan struct{})
	r.running = true

	go r.senderLoop(senderCtx)
	r.logger.Info("ingest relay started", "url", r.url)
	return nil
}

// Stop terminates the background sender within the timeout. Idempotent.
func (r *Relay) Stop(timeout time.Duration) error {
	r.lifecycleMu.Lock()
	defer r.lifecycleMu.Unlock()

	if !r.running {
		return nil
	}
	r.running = false
	r.cancel()

	select {
	case <-r.done:
	case <-time.After(timeout):
		return errors.WrapTransient(errors.ErrStopTimeout, "Relay", "Stop",
			"wait for sender goroutine")
	}

	r.logger.Info("ingest relay stopped",
		"sent", atomic.LoadInt64(&r.sent),
		"send_failures", atomic.LoadInt64(&r.sendFails))
	return nil
}

// senderLoop dials, streams, and reconnects until cancelled.
func (r *Relay) senderLoop(ctx context.Context) {
	defer close(r.done)

	backoff := retry.Config{
		MaxAttempts:  retry.Unlimited,
		InitialDelay: r.reconnectWait,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
		AddJitter:    true,
	}

	for ctx.Err() == nil {
		conn, err := retry.DoWithResult(ctx, backoff, func() (*websocket.Conn, error) {
			if r.metrics != nil {
				r.metrics.reconnects.Inc()
			}
			c, _, dialErr := websocket.DefaultDialer.DialContext(ctx, r.url, nil)
			if dialErr != nil {
				r.logger.Warn("ingest dial failed, retrying", "url", r.url, "error", dialErr)
			}
			return c, dialErr
		})
		if err != nil {
			return
		}

		r.streamFrames(ctx, conn)
		_ = conn.Close()
	}
}

// streamFrames sends the handshake and drains the queue onto conn until the
// connection fails or the context is cancelled.
func (r *Relay) streamFrames(ctx context.Context, conn *websocket.Conn) {
	r.dimsMu.Lock()
	h := hello{Type: "hello", Width: r.width, Height: r.height, Format: "jpeg"}
	r.dimsMu.Unlock()

	data, err := json.Marshal(h)
	if err == nil {
		_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			r.logger.Warn("ingest handshake failed", "error", err)
			return
		}
	}

	for {
		if ctx.Err() != nil {
			return
		}

		frame, ok := r.queue.Read()
		if !ok {
			// Queue empty, poll again shortly
			select {
			case <-ctx.Done():
				return
			case <-time.After(50 * time.Millisecond):
				continue
			}
		}

		_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
			atomic.AddInt64(&r.sendFails, 1)
			if r.metrics != nil {
				r.metrics.sendErrors.Inc()
			}
			r.logger.Warn("ingest send failed, reconnecting",
				"error", fmt.Errorf("%w: %v", errors.ErrConnectionLost, err))
			return
		}

		atomic.AddInt64(&r.sent, 1)
		if r.metrics != nil {
			r.metrics.framesSent.Inc()
		}
	}
}

var _ component.LifecycleComponent = (*Relay)(nil)
