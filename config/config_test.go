package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 250*time.Millisecond, cfg.Monitor.QuietThreshold)
	assert.Equal(t, 5*time.Second, cfg.Monitor.MaxWindowDuration)
	assert.Equal(t, 30, cfg.Monitor.LogEveryNFrames)
	assert.Equal(t, 0.90, cfg.Novelty.SimilarityThreshold)
	assert.Equal(t, 60*time.Second, cfg.Novelty.Window)
	assert.Equal(t, 100, cfg.Ingest.QueueCapacity)
	assert.Equal(t, 5010, cfg.Hub.Port)
	assert.Equal(t, "websocket", cfg.Source.Type)
	assert.Equal(t, 2*time.Second, cfg.Oracle.Timeout)
}

func TestLoadNoFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Hub.Port, cfg.Hub.Port)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/config.json")
	require.Error(t, err)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	data := `{
		"monitor": {"quiet_threshold": 500000000, "log_every_n_frames": 10},
		"hub": {"port": 6020},
		"store": {"path": "/tmp/events.jsonl"}
	}`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 500*time.Millisecond, cfg.Monitor.QuietThreshold)
	assert.Equal(t, 10, cfg.Monitor.LogEveryNFrames)
	assert.Equal(t, 6020, cfg.Hub.Port)
	assert.Equal(t, "/tmp/events.jsonl", cfg.Store.Path)
	// Untouched fields keep defaults
	assert.Equal(t, 5*time.Second, cfg.Monitor.MaxWindowDuration)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("CV_HUB_PORT", "7000")
	t.Setenv("CV_MONITOR_QUIET_THRESHOLD", "300ms")
	t.Setenv("CV_SPEECH_ENABLED", "true")
	t.Setenv("CV_SPEECH_URL", "http://localhost:5001")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 7000, cfg.Hub.Port)
	assert.Equal(t, 300*time.Millisecond, cfg.Monitor.QuietThreshold)
	assert.True(t, cfg.Speech.Enabled)
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown source type", func(c *Config) { c.Source.Type = "v4l2" }},
		{"empty source url", func(c *Config) { c.Source.URL = "" }},
		{"oracle url without timeout", func(c *Config) { c.Oracle.Timeout = 0 }},
		{"zero quiet threshold", func(c *Config) { c.Monitor.QuietThreshold = 0 }},
		{"window shorter than quiet", func(c *Config) { c.Monitor.MaxWindowDuration = 100 * time.Millisecond }},
		{"zero read timeout", func(c *Config) { c.Monitor.FrameReadTimeout = 0 }},
		{"zero log interval", func(c *Config) { c.Monitor.LogEveryNFrames = 0 }},
		{"similarity above one", func(c *Config) { c.Novelty.SimilarityThreshold = 1.5 }},
		{"negative novelty window", func(c *Config) { c.Novelty.Window = -time.Second }},
		{"ingest enabled without url", func(c *Config) { c.Ingest.Enabled = true; c.Ingest.URL = "" }},
		{"ingest zero capacity", func(c *Config) { c.Ingest.Enabled = true; c.Ingest.QueueCapacity = 0 }},
		{"bad hub port", func(c *Config) { c.Hub.Port = 0 }},
		{"empty hub path", func(c *Config) { c.Hub.Path = "" }},
		{"empty store path", func(c *Config) { c.Store.Path = "" }},
		{"speech enabled without url", func(c *Config) { c.Speech.Enabled = true; c.Speech.URL = "" }},
		{"bad metrics port", func(c *Config) { c.Metrics.Enabled = true; c.Metrics.Port = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
