package source

import (
	"context"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFeedPushNeverBlocksAndKeepsNewest(t *testing.T) {
	f := newFeed()

	for i := 0; i < 50; i++ {
		f.push([]byte{byte(i)})
	}

	assert.Equal(t, int64(50-feedDepth), f.Dropped())

	frame, err := f.read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, byte(50-feedDepth), frame.Data[0])
}

func TestFeedReadHonorsContext(t *testing.T) {
	f := newFeed()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := f.read(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestOpenWebSocketRequiresURL(t *testing.T) {
	_, err := OpenWebSocket(context.Background(), WebSocketConfig{})
	require.Error(t, err)
}

func TestWebSocketSourceReceivesFrames(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for i := 0; i < 5; i++ {
			if err := conn.WriteMessage(websocket.BinaryMessage, []byte(fmt.Sprintf("frame-%d", i))); err != nil {
				return
			}
			time.Sleep(10 * time.Millisecond)
		}
		// Keep the connection open until the client goes away
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	s, err := OpenWebSocket(context.Background(), WebSocketConfig{URL: url})
	require.NoError(t, err)
	defer s.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	frame, err := s.ReadFrame(ctx)
	require.NoError(t, err)
	assert.Equal(t, "frame-0", string(frame.Data))
	assert.Greater(t, frame.TimestampMS, int64(0))
}

func TestWebSocketSourceCloseIdempotent(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	s, err := OpenWebSocket(context.Background(), WebSocketConfig{URL: url})
	require.NoError(t, err)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
}

func TestOpenMJPEGRequiresURL(t *testing.T) {
	_, err := OpenMJPEG(context.Background(), MJPEGConfig{})
	require.Error(t, err)
}

func TestMJPEGSourceReceivesFrames(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mw := multipart.NewWriter(w)
		w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary="+mw.Boundary())
		w.WriteHeader(http.StatusOK)

		flusher := w.(http.Flusher)
		for i := 0; i < 5; i++ {
			part, err := mw.CreatePart(textproto.MIMEHeader{
				"Content-Type": []string{"image/jpeg"},
			})
			if err != nil {
				return
			}
			fmt.Fprintf(part, "jpeg-%d", i)
			flusher.Flush()
			time.Sleep(10 * time.Millisecond)
		}
		// Hold the stream open briefly so the client reads all parts
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	s, err := OpenMJPEG(context.Background(), MJPEGConfig{URL: srv.URL})
	require.NoError(t, err)
	defer s.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	frame, err := s.ReadFrame(ctx)
	require.NoError(t, err)
	assert.Equal(t, "jpeg-0", string(frame.Data))
}

func TestMJPEGSourceRejectsNonMultipart(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		fmt.Fprint(w, "not a stream")
	}))
	defer srv.Close()

	s, err := OpenMJPEG(context.Background(), MJPEGConfig{URL: srv.URL, ReconnectWait: 50 * time.Millisecond})
	require.NoError(t, err)
	defer s.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	_, err = s.ReadFrame(ctx)
	require.Error(t, err)
}
