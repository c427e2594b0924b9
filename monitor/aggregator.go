package monitor

import (
	"time"
)

// WindowResult is the snapshot of a closed aggregation window. Frames are
// owned by the result; the aggregator holds no reference after close.
type WindowResult struct {
	StartMS        int64
	DurationMS     int64
	Frames         [][]byte
	ConfidenceHint float64
}

// aggregator groups consecutive triggered frames into event windows.
//
// The machine has two states. Idle: no window open; a triggered frame opens
// one. Active: frames accumulate; the window closes when triggers go quiet
// for longer than quietThreshold, or unconditionally once maxDuration has
// elapsed since the window opened. Closing snapshots and clears the state
// before any result is returned, so downstream work can be slow without
// blocking the next window.
type aggregator struct {
	quietThreshold time.Duration
	maxDuration    time.Duration

	active      bool
	startTime   time.Time
	lastTrigger time.Time
	frames      [][]byte
	confidence  float64
}

func newAggregator(quietThreshold, maxDuration time.Duration) *aggregator {
	return &aggregator{
		quietThreshold: quietThreshold,
		maxDuration:    maxDuration,
	}
}

// observe feeds one frame decision into the machine. Returns a closed
// window and true when this frame closed one.
func (a *aggregator) observe(now time.Time, triggered bool, confidence float64, frame []byte) (WindowResult, bool) {
	if triggered {
		if !a.active {
			a.active = true
			a.startTime = now
			a.frames = nil
		}
		a.lastTrigger = now
		a.frames = append(a.frames, frame)
		a.confidence = confidence
	}

	if !a.active {
		return WindowResult{}, false
	}

	quiet := !triggered && now.Sub(a.lastTrigger) > a.quietThreshold
	timedOut := now.Sub(a.startTime) >= a.maxDuration
	if !quiet && !timedOut {
		return WindowResult{}, false
	}

	result := WindowResult{
		StartMS:        a.startTime.UnixMilli(),
		DurationMS:     now.Sub(a.startTime).Milliseconds(),
		Frames:         a.frames,
		ConfidenceHint: a.confidence,
	}

	a.active = false
	a.frames = nil
	a.confidence = 0

	return result, true
}

// isActive reports whether a window is currently open.
func (a *aggregator) isActive() bool {
	return a.active
}
