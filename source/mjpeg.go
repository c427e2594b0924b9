package source

import (
	"context"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/TheGonzalezDesigns/corpus-vision/errors"
	"github.com/TheGonzalezDesigns/corpus-vision/monitor"
)

// maxFrameBytes bounds a single MJPEG part read.
const maxFrameBytes = 8 << 20

// MJPEGConfig configures an MJPEG-over-HTTP capture feed.
type MJPEGConfig struct {
	// URL of the stream, e.g. "http://127.0.0.1:8081/stream". The
	// response must be multipart/x-mixed-replace with JPEG parts.
	URL string

	// ReconnectWait is the initial delay between reconnect attempts
	// (default: 2s).
	ReconnectWait time.Duration

	Logger *slog.Logger
}

// MJPEGSource reads JPEG frames from a multipart MJPEG HTTP stream.
type MJPEGSource struct {
	url    string
	logger *slog.Logger
	client *http.Client
	feed   *feed

	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
}

// OpenMJPEG starts the receiver. The source reconnects on failure until
// Close is called or ctx is cancelled.
func OpenMJPEG(ctx context.Context, cfg MJPEGConfig) (*MJPEGSource, error) {
	if cfg.URL == "" {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "MJPEGSource", "Open",
			"stream URL required")
	}
	if cfg.ReconnectWait <= 0 {
		cfg.ReconnectWait = 2 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	recvCtx, cancel := context.WithCancel(ctx)
	s := &MJPEGSource{
		url:    cfg.URL,
		logger: cfg.Logger,
		client: &http.Client{},
		feed:   newFeed(),
		cancel: cancel,
		done:   make(chan struct{}),
	}

	go s.receive(recvCtx, cfg.ReconnectWait)
	return s, nil
}

// ReadFrame implements monitor.FrameSource.
func (s *MJPEGSource) ReadFrame(ctx context.Context) (monitor.Frame, error) {
	return s.feed.read(ctx)
}

// Dropped returns the count of frames discarded by backpressure.
func (s *MJPEGSource) Dropped() int64 {
	return s.feed.Dropped()
}

// Close stops the receiver. Safe to call more than once.
func (s *MJPEGSource) Close() error {
	s.closeOnce.Do(func() {
		s.cancel()
		<-s.done
	})
	return nil
}

func (s *MJPEGSource) receive(ctx context.Context, reconnectWait time.Duration) {
	defer close(s.done)

	for ctx.Err() == nil {
		if err := s.stream(ctx); err != nil && ctx.Err() == nil {
			s.logger.Warn("mjpeg stream failed, reconnecting", "url", s.url, "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(reconnectWait):
		}
	}
}

// stream connects once and pushes parts until the stream breaks.
func (s *MJPEGSource) stream(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return errors.WrapInvalid(err, "MJPEGSource", "stream", "build request")
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return errors.WrapTransient(err, "MJPEGSource", "stream", "connect to stream")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return errors.WrapTransient(errors.ErrSourceUnavailable, "MJPEGSource", "stream",
			"unexpected response status")
	}

	mediaType, params, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if err != nil || !strings.HasPrefix(mediaType, "multipart/") || params["boundary"] == "" {
		return errors.WrapInvalid(errors.ErrSourceUnavailable, "MJPEGSource", "stream",
			"response is not a multipart stream")
	}

	reader := multipart.NewReader(resp.Body, params["boundary"])
	for {
		part, err := reader.NextPart()
		if err != nil {
			return errors.WrapTransient(err, "MJPEGSource", "stream", "read next part")
		}

		data, err := io.ReadAll(io.LimitReader(part, maxFrameBytes))
		_ = part.Close()
		if err != nil {
			return errors.WrapTransient(err, "MJPEGSource", "stream", "read frame body")
		}
		if len(data) > 0 {
			s.feed.push(data)
		}
	}
}

var _ monitor.FrameSource = (*MJPEGSource)(nil)
