// Package config defines the application configuration for the vision
// pipeline. Configuration is read once at startup from an optional JSON
// file, then overridden by environment variables, then validated.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/TheGonzalezDesigns/corpus-vision/errors"
)

// Config represents the complete application configuration
type Config struct {
	Source  SourceConfig  `json:"source"`
	Oracle  OracleConfig  `json:"oracle"`
	Monitor MonitorConfig `json:"monitor"`
	Novelty NoveltyConfig `json:"novelty"`
	Ingest  IngestConfig  `json:"ingest"`
	Hub     HubConfig     `json:"hub"`
	Store   StoreConfig   `json:"store"`
	Vision  VisionConfig  `json:"vision"`
	Speech  SpeechConfig  `json:"speech"`
	NATS    NATSConfig    `json:"nats"`
	Metrics MetricsConfig `json:"metrics"`
}

// SourceConfig selects the capture feed. Type is "websocket" (binary JPEG
// frames over a WebSocket) or "mjpeg" (multipart MJPEG over HTTP).
type SourceConfig struct {
	Type string `json:"type" env:"CV_SOURCE_TYPE"`
	URL  string `json:"url" env:"CV_SOURCE_URL"`
}

// OracleConfig points at the change-detection service. An empty URL means
// no oracle is available: aggregation is disabled and the pipeline runs in
// relay-only mode.
type OracleConfig struct {
	URL     string        `json:"url,omitempty" env:"CV_ORACLE_URL"`
	Timeout time.Duration `json:"timeout" env:"CV_ORACLE_TIMEOUT"`
}

// MonitorConfig controls the capture loop and aggregation windows
type MonitorConfig struct {
	QuietThreshold    time.Duration `json:"quiet_threshold" env:"CV_MONITOR_QUIET_THRESHOLD"`
	MaxWindowDuration time.Duration `json:"max_window_duration" env:"CV_MONITOR_MAX_WINDOW_DURATION"`
	FrameReadTimeout  time.Duration `json:"frame_read_timeout" env:"CV_MONITOR_FRAME_READ_TIMEOUT"`
	LogEveryNFrames   int           `json:"log_every_n_frames" env:"CV_MONITOR_LOG_EVERY_N_FRAMES"`
}

// NoveltyConfig controls duplicate-speech suppression
type NoveltyConfig struct {
	SimilarityThreshold float64       `json:"similarity_threshold" env:"CV_NOVELTY_SIMILARITY_THRESHOLD"`
	Window              time.Duration `json:"window" env:"CV_NOVELTY_WINDOW"`
}

// IngestConfig controls the raw-frame relay
type IngestConfig struct {
	Enabled       bool          `json:"enabled" env:"CV_INGEST_ENABLED"`
	URL           string        `json:"url" env:"CV_INGEST_URL"`
	QueueCapacity int           `json:"queue_capacity" env:"CV_INGEST_QUEUE_CAPACITY"`
	ReconnectWait time.Duration `json:"reconnect_wait" env:"CV_INGEST_RECONNECT_WAIT"`
}

// HubConfig controls the broadcast WebSocket server
type HubConfig struct {
	Port int    `json:"port" env:"CV_HUB_PORT"`
	Path string `json:"path" env:"CV_HUB_PATH"`
}

// StoreConfig controls event persistence
type StoreConfig struct {
	Path string `json:"path" env:"CV_STORE_PATH"`
}

// VisionConfig controls the AI description providers
type VisionConfig struct {
	ProviderOrder []string `json:"provider_order" env:"CV_VISION_PROVIDER_ORDER"`
	BaseURL       string   `json:"base_url" env:"CV_VISION_BASE_URL"`
	APIKey        string   `json:"api_key" env:"CV_VISION_API_KEY"`
	Model         string   `json:"model" env:"CV_VISION_MODEL"`
	FirstPerson   bool     `json:"first_person" env:"CV_VISION_FIRST_PERSON"`
}

// SpeechConfig controls spoken announcements
type SpeechConfig struct {
	Enabled bool   `json:"enabled" env:"CV_SPEECH_ENABLED"`
	URL     string `json:"url" env:"CV_SPEECH_URL"`
}

// NATSConfig controls the optional NATS mirror of logs and events.
// An empty URL disables the mirror entirely.
type NATSConfig struct {
	URL string `json:"url,omitempty" env:"CV_NATS_URL"`
}

// MetricsConfig controls the Prometheus endpoint
type MetricsConfig struct {
	Enabled bool   `json:"enabled" env:"CV_METRICS_ENABLED"`
	Port    int    `json:"port" env:"CV_METRICS_PORT"`
	Path    string `json:"path" env:"CV_METRICS_PATH"`
}

// DefaultConfig returns the configuration used when no file or environment
// overrides are present.
func DefaultConfig() *Config {
	return &Config{
		Source: SourceConfig{
			Type: "websocket",
			URL:  "ws://127.0.0.1:8090/frames",
		},
		Oracle: OracleConfig{
			URL:     "http://127.0.0.1:8091",
			Timeout: 2 * time.Second,
		},
		Monitor: MonitorConfig{
			QuietThreshold:    250 * time.Millisecond,
			MaxWindowDuration: 5 * time.Second,
			FrameReadTimeout:  2 * time.Second,
			LogEveryNFrames:   30,
		},
		Novelty: NoveltyConfig{
			SimilarityThreshold: 0.90,
			Window:              60 * time.Second,
		},
		Ingest: IngestConfig{
			Enabled:       false,
			URL:           "ws://127.0.0.1:8089/ingest",
			QueueCapacity: 100,
			ReconnectWait: 2 * time.Second,
		},
		Hub: HubConfig{
			Port: 5010,
			Path: "/ws",
		},
		Store: StoreConfig{
			Path: "waldo_events.jsonl",
		},
		Vision: VisionConfig{
			ProviderOrder: []string{"openai"},
			Model:         "gpt-4o-mini",
			FirstPerson:   true,
		},
		Speech: SpeechConfig{
			Enabled: false,
			URL:     "http://127.0.0.1:5001",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Port:    9090,
			Path:    "/metrics",
		},
	}
}

// Load reads configuration from an optional JSON file at path (empty path
// skips the file), applies environment overrides, and validates the result.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.WrapFatal(err, "Config", "Load", "read config file")
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, errors.WrapInvalid(err, "Config", "Load", "parse config file")
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, errors.WrapInvalid(err, "Config", "Load", "parse environment overrides")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the configuration is internally consistent
func (c *Config) Validate() error {
	fail := func(msg string) error {
		return errors.WrapInvalid(fmt.Errorf("%s", msg), "Config", "Validate", "invalid configuration")
	}

	if c.Source.Type != "websocket" && c.Source.Type != "mjpeg" {
		return fail("source.type must be websocket or mjpeg")
	}
	if c.Source.URL == "" {
		return fail("source.url is required")
	}

	if c.Oracle.URL != "" && c.Oracle.Timeout <= 0 {
		return fail("oracle.timeout must be positive when an oracle url is set")
	}

	if c.Monitor.QuietThreshold <= 0 {
		return fail("monitor.quiet_threshold must be positive")
	}
	if c.Monitor.MaxWindowDuration <= 0 {
		return fail("monitor.max_window_duration must be positive")
	}
	if c.Monitor.MaxWindowDuration < c.Monitor.QuietThreshold {
		return fail("monitor.max_window_duration must be >= monitor.quiet_threshold")
	}
	if c.Monitor.FrameReadTimeout <= 0 {
		return fail("monitor.frame_read_timeout must be positive")
	}
	if c.Monitor.LogEveryNFrames <= 0 {
		return fail("monitor.log_every_n_frames must be positive")
	}

	if c.Novelty.SimilarityThreshold < 0 || c.Novelty.SimilarityThreshold > 1 {
		return fail("novelty.similarity_threshold must be in [0, 1]")
	}
	if c.Novelty.Window < 0 {
		return fail("novelty.window cannot be negative")
	}

	if c.Ingest.Enabled {
		if c.Ingest.URL == "" {
			return fail("ingest.url is required when ingest is enabled")
		}
		if c.Ingest.QueueCapacity <= 0 {
			return fail("ingest.queue_capacity must be positive")
		}
	}

	if c.Hub.Port <= 0 || c.Hub.Port > 65535 {
		return fail("hub.port must be a valid TCP port")
	}
	if c.Hub.Path == "" {
		return fail("hub.path is required")
	}

	if c.Store.Path == "" {
		return fail("store.path is required")
	}

	if c.Speech.Enabled && c.Speech.URL == "" {
		return fail("speech.url is required when speech is enabled")
	}

	if c.Metrics.Enabled && (c.Metrics.Port <= 0 || c.Metrics.Port > 65535) {
		return fail("metrics.port must be a valid TCP port")
	}

	return nil
}
