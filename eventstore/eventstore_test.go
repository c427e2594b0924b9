package eventstore

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "events.jsonl"))
	require.NoError(t, err)
	return s
}

func makeEvent(tsMS int64, desc string) Event {
	return Event{
		Type:         "waldo_event",
		TimestampMS:  tsMS,
		TimestampISO: time.UnixMilli(tsMS).UTC().Format(time.RFC3339),
		DurationMS:   1200,
		FramesCount:  4,
		Description:  desc,
		Source:       "waldo_monitor",
	}
}

func TestNewRequiresPath(t *testing.T) {
	_, err := New("")
	require.Error(t, err)
}

func TestAppendAndRecentRoundTrip(t *testing.T) {
	s := newTestStore(t)

	base := time.Now().UnixMilli()
	for i := 0; i < 5; i++ {
		require.NoError(t, s.Append(makeEvent(base+int64(i)*1000, "event")))
	}

	events, err := s.Recent(5)
	require.NoError(t, err)
	require.Len(t, events, 5)

	// Original append order, required fields intact
	for i, ev := range events {
		assert.Equal(t, base+int64(i)*1000, ev.TimestampMS)
		assert.NotEmpty(t, ev.TimestampISO)
		assert.Equal(t, int64(1200), ev.DurationMS)
		assert.Equal(t, 4, ev.FramesCount)
	}
}

func TestRecentLimits(t *testing.T) {
	s := newTestStore(t)
	base := time.Now().UnixMilli()
	for i := 0; i < 10; i++ {
		require.NoError(t, s.Append(makeEvent(base+int64(i), "e")))
	}

	events, err := s.Recent(3)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, base+int64(7), events[0].TimestampMS)

	all, err := s.Recent(0)
	require.NoError(t, err)
	assert.Len(t, all, 10)
}

func TestRecentEmptyStore(t *testing.T) {
	s := newTestStore(t)
	events, err := s.Recent(10)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestReadSkipsMalformedLines(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Append(makeEvent(time.Now().UnixMilli(), "ok")))

	f, err := os.OpenFile(s.Path(), os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString("not json\n\n{\"broken\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	require.NoError(t, s.Append(makeEvent(time.Now().UnixMilli(), "also ok")))

	events, err := s.Recent(10)
	require.NoError(t, err)
	assert.Len(t, events, 2)
}

func TestRangeInclusive(t *testing.T) {
	s := newTestStore(t)
	t0 := time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		require.NoError(t, s.Append(makeEvent(t0.Add(time.Duration(i)*time.Minute).UnixMilli(), "e")))
	}

	events, err := s.Range(t0.Add(time.Minute), t0.Add(3*time.Minute))
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, t0.Add(time.Minute).UnixMilli(), events[0].TimestampMS)
	assert.Equal(t, t0.Add(3*time.Minute).UnixMilli(), events[2].TimestampMS)
}

func TestRangeSkipsUnparseableTimestamps(t *testing.T) {
	s := newTestStore(t)
	ev := makeEvent(time.Now().UnixMilli(), "bad ts")
	ev.TimestampISO = "garbage"
	require.NoError(t, s.Append(ev))

	events, err := s.Range(time.Now().Add(-time.Hour), time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestContextProjection(t *testing.T) {
	s := newTestStore(t)
	now := time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	// One stale event outside the window, three inside
	require.NoError(t, s.Append(makeEvent(now.Add(-30*time.Minute).UnixMilli(), "stale")))
	for i := 0; i < 3; i++ {
		require.NoError(t, s.Append(makeEvent(now.Add(time.Duration(i-3)*time.Minute).UnixMilli(), "fresh")))
	}

	ctx, err := s.Context(15, 20)
	require.NoError(t, err)

	assert.Equal(t, 15, ctx.WindowMinutes)
	assert.Equal(t, 3, ctx.Count)
	require.Len(t, ctx.Events, 3)

	// Oldest to newest
	prev := ""
	for _, ev := range ctx.Events {
		assert.Equal(t, "fresh", ev.Description)
		assert.True(t, strings.Compare(prev, ev.TimestampISO) <= 0)
		prev = ev.TimestampISO
	}
}

func TestContextHonorsLimit(t *testing.T) {
	s := newTestStore(t)
	now := time.Now().UTC()
	for i := 0; i < 10; i++ {
		require.NoError(t, s.Append(makeEvent(now.Add(time.Duration(i-10)*time.Second).UnixMilli(), "e")))
	}

	ctx, err := s.Context(15, 4)
	require.NoError(t, err)
	assert.Equal(t, 4, ctx.Count)

	// The 4 most recent, oldest first
	first := ctx.Events[0].TimestampISO
	last := ctx.Events[3].TimestampISO
	assert.True(t, strings.Compare(first, last) <= 0)
}

func TestConcurrentAppends(t *testing.T) {
	s := newTestStore(t)
	var wg sync.WaitGroup
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 25; i++ {
				_ = s.Append(makeEvent(time.Now().UnixMilli(), "c"))
			}
		}(g)
	}
	wg.Wait()

	events, err := s.Recent(0)
	require.NoError(t, err)
	assert.Len(t, events, 100)
}
