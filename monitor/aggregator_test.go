package monitor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAggregatorStaysIdleWithoutTriggers(t *testing.T) {
	agg := newAggregator(250*time.Millisecond, 5*time.Second)

	now := time.Unix(100, 0)
	for i := 0; i < 90; i++ {
		_, closed := agg.observe(now, false, 0, []byte("frame"))
		assert.False(t, closed)
		now = now.Add(33 * time.Millisecond)
	}
	assert.False(t, agg.isActive())
}

func TestAggregatorQuietClose(t *testing.T) {
	agg := newAggregator(250*time.Millisecond, 5*time.Second)
	start := time.Unix(100, 0)

	// Three triggered frames open and extend a window.
	now := start
	for i := 0; i < 3; i++ {
		_, closed := agg.observe(now, true, 80, []byte{byte(i)})
		require.False(t, closed)
		now = now.Add(33 * time.Millisecond)
	}
	require.True(t, agg.isActive())

	// A quiet frame within the threshold keeps the window open.
	_, closed := agg.observe(now.Add(100*time.Millisecond), false, 0, []byte("quiet"))
	require.False(t, closed)

	// Quiet past the threshold closes it.
	closeTime := now.Add(400 * time.Millisecond)
	result, closed := agg.observe(closeTime, false, 0, []byte("quiet"))
	require.True(t, closed)

	assert.Len(t, result.Frames, 3)
	assert.Equal(t, start.UnixMilli(), result.StartMS)
	assert.Equal(t, closeTime.Sub(start).Milliseconds(), result.DurationMS)
	assert.Equal(t, 80.0, result.ConfidenceHint)
	assert.False(t, agg.isActive())
}

func TestAggregatorQuietFramesNotCollected(t *testing.T) {
	agg := newAggregator(250*time.Millisecond, 5*time.Second)
	now := time.Unix(100, 0)

	agg.observe(now, true, 50, []byte("t1"))
	agg.observe(now.Add(50*time.Millisecond), false, 0, []byte("q1"))
	agg.observe(now.Add(100*time.Millisecond), true, 60, []byte("t2"))

	result, closed := agg.observe(now.Add(500*time.Millisecond), false, 0, []byte("q2"))
	require.True(t, closed)
	assert.Equal(t, [][]byte{[]byte("t1"), []byte("t2")}, result.Frames)
}

func TestAggregatorTriggerResumeExtendsWindow(t *testing.T) {
	agg := newAggregator(250*time.Millisecond, 5*time.Second)
	now := time.Unix(100, 0)
	step := 33 * time.Millisecond

	// Trigger burst, a short lull, then one more trigger before the quiet
	// threshold expires: all of it is one window.
	script := []bool{true, true, true, false, false, true,
		false, false, false, false, false, false, false, false, false, false}

	var result WindowResult
	var windows int
	for _, triggered := range script {
		r, closed := agg.observe(now, triggered, 75, []byte("f"))
		if closed {
			result = r
			windows++
		}
		now = now.Add(step)
	}

	require.Equal(t, 1, windows)
	assert.Len(t, result.Frames, 4)
	assert.False(t, agg.isActive())
}

func TestAggregatorTimeoutCloseUnderSustainedTriggers(t *testing.T) {
	agg := newAggregator(250*time.Millisecond, 5*time.Second)
	start := time.Unix(100, 0)

	now := start
	var result WindowResult
	closed := false
	frames := 0
	for !closed {
		result, closed = agg.observe(now, true, 90, []byte("frame"))
		frames++
		now = now.Add(100 * time.Millisecond)
	}

	// Closed at the 5s mark despite uninterrupted triggers.
	assert.GreaterOrEqual(t, result.DurationMS, int64(5000))
	assert.Len(t, result.Frames, frames)
	assert.False(t, agg.isActive())

	// The machine accepts a new window right away.
	_, closed = agg.observe(now, true, 90, []byte("frame"))
	assert.False(t, closed)
	assert.True(t, agg.isActive())
}

func TestAggregatorClearsStateOnClose(t *testing.T) {
	agg := newAggregator(250*time.Millisecond, 5*time.Second)
	now := time.Unix(100, 0)

	agg.observe(now, true, 70, []byte("a"))
	first, closed := agg.observe(now.Add(time.Second), false, 0, []byte("q"))
	require.True(t, closed)
	require.Len(t, first.Frames, 1)

	// Second window shares nothing with the first.
	agg.observe(now.Add(2*time.Second), true, 40, []byte("b"))
	second, closed := agg.observe(now.Add(3*time.Second), false, 0, []byte("q"))
	require.True(t, closed)
	assert.Equal(t, [][]byte{[]byte("b")}, second.Frames)
	assert.Equal(t, 40.0, second.ConfidenceHint)
}

func TestAggregatorSingleTriggerWindow(t *testing.T) {
	agg := newAggregator(250*time.Millisecond, 5*time.Second)
	now := time.Unix(100, 0)

	_, closed := agg.observe(now, true, 55, []byte("only"))
	require.False(t, closed)

	result, closed := agg.observe(now.Add(300*time.Millisecond), false, 0, []byte("q"))
	require.True(t, closed)
	assert.Len(t, result.Frames, 1)
}
