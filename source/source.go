// Package source provides capture feed clients that implement
// monitor.FrameSource. Two transports are supported: binary JPEG frames
// over a WebSocket, and multipart MJPEG over HTTP. Both hold only the
// freshest frames; a slow consumer sees new frames, not a growing backlog.
package source

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/TheGonzalezDesigns/corpus-vision/errors"
	"github.com/TheGonzalezDesigns/corpus-vision/monitor"
)

const feedDepth = 8

// feed is the shared frame hand-off between a receiver goroutine and
// ReadFrame callers. Writes never block: when the channel is full the
// stalest frame is discarded to admit the new one.
type feed struct {
	frames  chan monitor.Frame
	dropped atomic.Int64
}

func newFeed() *feed {
	return &feed{frames: make(chan monitor.Frame, feedDepth)}
}

func (f *feed) push(data []byte) {
	frame := monitor.Frame{Data: data, TimestampMS: time.Now().UnixMilli()}
	for {
		select {
		case f.frames <- frame:
			return
		default:
			select {
			case <-f.frames:
				f.dropped.Add(1)
			default:
			}
		}
	}
}

func (f *feed) read(ctx context.Context) (monitor.Frame, error) {
	select {
	case frame := <-f.frames:
		return frame, nil
	case <-ctx.Done():
		return monitor.Frame{}, errors.WrapTransient(ctx.Err(), "FrameSource", "ReadFrame",
			"wait for frame")
	}
}

// Dropped returns the number of frames discarded because the consumer fell
// behind.
func (f *feed) Dropped() int64 {
	return f.dropped.Load()
}
