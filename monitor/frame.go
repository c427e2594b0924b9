package monitor

import "context"

// Frame is one encoded frame from the capture source.
type Frame struct {
	// Data is the JPEG-encoded frame.
	Data []byte

	// TimestampMS is the capture time in epoch milliseconds.
	TimestampMS int64
}

// FrameSource produces encoded frames. Implementations wrap whatever
// capture hardware or feed is in use; the monitor never touches devices
// directly.
type FrameSource interface {
	// ReadFrame returns the next frame. It must respect ctx cancellation
	// and return promptly when the deadline passes.
	ReadFrame(ctx context.Context) (Frame, error)

	// Close releases the source.
	Close() error
}
