package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/jpeg"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDisabledRelayIsNoOp(t *testing.T) {
	r := New(Config{Enabled: false, URL: "ws://127.0.0.1:1/ingest"})

	require.False(t, r.Enabled())
	require.NoError(t, r.Initialize())

	r.Enqueue([]byte("frame"))
	assert.Equal(t, 0, r.QueueSize())

	require.NoError(t, r.Start(context.Background()))
	require.NoError(t, r.Stop(time.Second))
}

func TestEmptyURLDisablesRelay(t *testing.T) {
	r := New(Config{Enabled: true, URL: ""})

	require.False(t, r.Enabled())
	r.Enqueue([]byte("frame"))
	assert.Equal(t, 0, r.QueueSize())
}

func TestEnqueueDropsOldestAtCapacity(t *testing.T) {
	r := New(Config{Enabled: true, URL: "ws://127.0.0.1:1/ingest", QueueCapacity: 3})

	for i := 0; i < 10; i++ {
		r.Enqueue([]byte{byte(i)})
	}

	assert.Equal(t, 3, r.QueueSize())

	// Oldest dropped, newest retained
	frame, ok := r.queue.Read()
	require.True(t, ok)
	assert.Equal(t, byte(7), frame[0])
}

func TestEnqueueNeverBlocks(t *testing.T) {
	r := New(Config{Enabled: true, URL: "ws://127.0.0.1:1/ingest", QueueCapacity: 2})

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 1000; i++ {
			r.Enqueue([]byte{byte(i)})
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Enqueue blocked")
	}
}

// ingestSink is a test WebSocket endpoint recording the handshake and frames.
type ingestSink struct {
	srv    *httptest.Server
	hello  chan hello
	frames chan []byte
}

func newIngestSink(t *testing.T) *ingestSink {
	t.Helper()

	sink := &ingestSink{
		hello:  make(chan hello, 1),
		frames: make(chan []byte, 64),
	}

	upgrader := websocket.Upgrader{}
	sink.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		conn, err := upgrader.Upgrade(w, req, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		for {
			msgType, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			switch msgType {
			case websocket.TextMessage:
				var h hello
				if json.Unmarshal(data, &h) == nil {
					select {
					case sink.hello <- h:
					default:
					}
				}
			case websocket.BinaryMessage:
				sink.frames <- data
			}
		}
	}))
	t.Cleanup(sink.srv.Close)

	return sink
}

func (s *ingestSink) wsURL() string {
	return "ws" + strings.TrimPrefix(s.srv.URL, "http")
}

func TestRelayStreamsFramesWithHandshake(t *testing.T) {
	sink := newIngestSink(t)

	r := New(Config{Enabled: true, URL: sink.wsURL(), QueueCapacity: 10})
	r.SetDims(1280, 720)

	require.NoError(t, r.Initialize())
	require.NoError(t, r.Start(context.Background()))
	defer r.Stop(2 * time.Second)

	select {
	case h := <-sink.hello:
		assert.Equal(t, "hello", h.Type)
		assert.Equal(t, 1280, h.Width)
		assert.Equal(t, 720, h.Height)
		assert.Equal(t, "jpeg", h.Format)
	case <-time.After(3 * time.Second):
		t.Fatal("handshake not received")
	}

	r.Enqueue([]byte("frame-1"))
	r.Enqueue([]byte("frame-2"))

	for _, want := range []string{"frame-1", "frame-2"} {
		select {
		case frame := <-sink.frames:
			assert.Equal(t, want, string(frame))
		case <-time.After(3 * time.Second):
			t.Fatalf("frame %q not received", want)
		}
	}
}

func TestHandshakeDimsDerivedFromFirstFrame(t *testing.T) {
	sink := newIngestSink(t)

	r := New(Config{Enabled: true, URL: sink.wsURL(), QueueCapacity: 10})
	r.Enqueue(tinyJPEG(t, 4, 2))

	require.NoError(t, r.Initialize())
	require.NoError(t, r.Start(context.Background()))
	defer r.Stop(2 * time.Second)

	select {
	case h := <-sink.hello:
		assert.Equal(t, 4, h.Width)
		assert.Equal(t, 2, h.Height)
	case <-time.After(3 * time.Second):
		t.Fatal("handshake not received")
	}
}

func tinyJPEG(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h)), nil))
	return buf.Bytes()
}

func TestStopIsIdempotent(t *testing.T) {
	sink := newIngestSink(t)

	r := New(Config{Enabled: true, URL: sink.wsURL()})
	require.NoError(t, r.Start(context.Background()))

	require.NoError(t, r.Stop(2*time.Second))
	require.NoError(t, r.Stop(2*time.Second))
}

func TestStartIsIdempotent(t *testing.T) {
	sink := newIngestSink(t)

	r := New(Config{Enabled: true, URL: sink.wsURL()})
	require.NoError(t, r.Start(context.Background()))
	require.NoError(t, r.Start(context.Background()))
	require.NoError(t, r.Stop(2*time.Second))
}
