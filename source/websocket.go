package source

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/TheGonzalezDesigns/corpus-vision/errors"
	"github.com/TheGonzalezDesigns/corpus-vision/monitor"
	"github.com/TheGonzalezDesigns/corpus-vision/pkg/retry"
)

// WebSocketConfig configures a WebSocket capture feed.
type WebSocketConfig struct {
	// URL of the feed, e.g. "ws://127.0.0.1:8090/frames". Binary messages
	// are treated as JPEG frames; text messages are ignored.
	URL string

	// ReconnectWait is the initial delay between reconnect attempts
	// (default: 2s).
	ReconnectWait time.Duration

	Logger *slog.Logger
}

// WebSocketSource reads binary JPEG frames from a WebSocket feed and
// reconnects for as long as it is open.
type WebSocketSource struct {
	url    string
	logger *slog.Logger
	feed   *feed

	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
}

// OpenWebSocket starts the receiver. The source reconnects on failure
// until Close is called or ctx is cancelled.
func OpenWebSocket(ctx context.Context, cfg WebSocketConfig) (*WebSocketSource, error) {
	if cfg.URL == "" {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "WebSocketSource", "Open",
			"feed URL required")
	}
	if cfg.ReconnectWait <= 0 {
		cfg.ReconnectWait = 2 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	recvCtx, cancel := context.WithCancel(ctx)
	s := &WebSocketSource{
		url:    cfg.URL,
		logger: cfg.Logger,
		feed:   newFeed(),
		cancel: cancel,
		done:   make(chan struct{}),
	}

	go s.receive(recvCtx, cfg.ReconnectWait)
	return s, nil
}

// ReadFrame implements monitor.FrameSource.
func (s *WebSocketSource) ReadFrame(ctx context.Context) (monitor.Frame, error) {
	return s.feed.read(ctx)
}

// Dropped returns the count of frames discarded by backpressure.
func (s *WebSocketSource) Dropped() int64 {
	return s.feed.Dropped()
}

// Close stops the receiver. Safe to call more than once.
func (s *WebSocketSource) Close() error {
	s.closeOnce.Do(func() {
		s.cancel()
		<-s.done
	})
	return nil
}

func (s *WebSocketSource) receive(ctx context.Context, reconnectWait time.Duration) {
	defer close(s.done)

	backoff := retry.Config{
		MaxAttempts:  retry.Unlimited,
		InitialDelay: reconnectWait,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
		AddJitter:    true,
	}

	for ctx.Err() == nil {
		conn, err := retry.DoWithResult(ctx, backoff, func() (*websocket.Conn, error) {
			c, _, dialErr := websocket.DefaultDialer.DialContext(ctx, s.url, nil)
			if dialErr != nil {
				s.logger.Warn("capture feed dial failed, retrying", "url", s.url, "error", dialErr)
			}
			return c, dialErr
		})
		if err != nil {
			return
		}

		s.logger.Info("capture feed connected", "url", s.url)
		s.readFrames(ctx, conn)
		_ = conn.Close()
	}
}

func (s *WebSocketSource) readFrames(ctx context.Context, conn *websocket.Conn) {
	// Closing the connection is the only way to unblock a gorilla read.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-stop:
		}
	}()

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				s.logger.Warn("capture feed read failed, reconnecting", "error", err)
			}
			return
		}
		if msgType == websocket.BinaryMessage && len(data) > 0 {
			s.feed.push(data)
		}
	}
}

var _ monitor.FrameSource = (*WebSocketSource)(nil)
