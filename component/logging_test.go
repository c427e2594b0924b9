package component

import (
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureSink struct {
	mu      sync.Mutex
	entries []LogEntry
}

func (s *captureSink) PublishLog(entry LogEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
}

func (s *captureSink) all() []LogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]LogEntry(nil), s.entries...)
}

func TestNewLogger(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	cl := NewLogger("monitor", nil, nil, logger)
	assert.Equal(t, "monitor", cl.componentName)
	assert.False(t, cl.natsEnabled)
	assert.Nil(t, cl.sink)
}

func TestLoggerPublishesToSink(t *testing.T) {
	sink := &captureSink{}
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	cl := NewLogger("monitor", sink, nil, logger)

	cl.Info("window opened")
	cl.Warn("frame read slow")
	cl.Error("describe failed", errors.New("api timeout"))

	entries := sink.all()
	require.Len(t, entries, 3)

	assert.Equal(t, LogLevelInfo, entries[0].Level)
	assert.Equal(t, "window opened", entries[0].Message)
	assert.Equal(t, "monitor", entries[0].Component)
	assert.NotEmpty(t, entries[0].Timestamp)

	assert.Equal(t, LogLevelWarn, entries[1].Level)

	assert.Equal(t, LogLevelError, entries[2].Level)
	assert.Contains(t, entries[2].Stack, "api timeout")
}

func TestLoggerNoSinkNoNATS(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	cl := NewLogger("monitor", nil, nil, logger)

	// No sink and no NATS connection means local logging only; must not panic.
	cl.Debug("debug")
	cl.Info("info")
	cl.Error("error", nil)
}
