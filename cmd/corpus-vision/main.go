// Package main implements the entry point for the corpus-vision pipeline.
// Corpus-vision continuously ingests a live frame stream, consults a
// change-detection oracle, and converts bursts of changed frames into
// debounced events with AI description, persistence, and fan-out.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/TheGonzalezDesigns/corpus-vision/component"
	"github.com/TheGonzalezDesigns/corpus-vision/config"
	"github.com/TheGonzalezDesigns/corpus-vision/eventstore"
	"github.com/TheGonzalezDesigns/corpus-vision/hub"
	"github.com/TheGonzalezDesigns/corpus-vision/metric"
	"github.com/TheGonzalezDesigns/corpus-vision/monitor"
	"github.com/TheGonzalezDesigns/corpus-vision/oracle"
	"github.com/TheGonzalezDesigns/corpus-vision/relay"
	"github.com/TheGonzalezDesigns/corpus-vision/source"
	"github.com/TheGonzalezDesigns/corpus-vision/speech"
	"github.com/TheGonzalezDesigns/corpus-vision/vision"
)

// Build information constants
const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "corpus-vision"
)

func main() {
	// Add panic recovery
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := run(); err != nil {
		slog.Error("Application failed", "error", err, "exit_code", 1)
		os.Exit(1)
	}
}

func run() error {
	cliCfg, logger, shouldExit, err := initializeCLI()
	if shouldExit || err != nil {
		return err
	}

	cfg, err := config.Load(cliCfg.ConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if cliCfg.Validate {
		slog.Info("Configuration is valid")
		return nil
	}

	signalCtx, signalCancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer signalCancel()

	nc := connectNATS(cfg)
	if nc != nil {
		defer func() { _ = nc.Drain() }()
	}

	metricsRegistry, metricServer := setupMetrics(cfg)
	if metricServer != nil {
		defer func() { _ = metricServer.Stop() }()
	}

	pipeline, err := buildPipeline(signalCtx, cfg, logger, nc, metricsRegistry)
	if err != nil {
		return err
	}
	defer func() { _ = pipeline.source.Close() }()

	return runWithSignalHandling(signalCtx, pipeline, cliCfg.ShutdownTimeout)
}

// initializeCLI parses flags and sets up logging
func initializeCLI() (*CLIConfig, *slog.Logger, bool, error) {
	cliCfg := parseFlags()
	if err := validateFlags(cliCfg); err != nil {
		return nil, nil, false, fmt.Errorf("invalid flags: %w", err)
	}

	if cliCfg.ShowVersion {
		fmt.Printf("%s version %s\n", appName, Version)
		return nil, nil, true, nil
	}

	if cliCfg.ShowHelp {
		printDetailedHelp()
		return nil, nil, true, nil
	}

	logger := setupLogger(cliCfg.LogLevel, cliCfg.LogFormat)
	slog.SetDefault(logger)

	slog.Info("Starting corpus-vision (continuous frame-stream monitoring)",
		"version", Version,
		"build_time", BuildTime,
		"config_path", cliCfg.ConfigPath)

	return cliCfg, logger, false, nil
}

// connectNATS connects the optional log/event mirror. The mirror is best
// effort: a failed connection is logged and the pipeline runs without it.
func connectNATS(cfg *config.Config) *nats.Conn {
	if cfg.NATS.URL == "" {
		return nil
	}

	nc, err := nats.Connect(cfg.NATS.URL,
		nats.Name(appName),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second))
	if err != nil {
		slog.Warn("NATS mirror unavailable, continuing without it",
			"url", cfg.NATS.URL, "error", err)
		return nil
	}

	slog.Info("NATS mirror connected", "url", cfg.NATS.URL)
	return nc
}

// setupMetrics creates the registry and starts the Prometheus endpoint
// when metrics are enabled.
func setupMetrics(cfg *config.Config) (*metric.MetricsRegistry, *metric.Server) {
	if !cfg.Metrics.Enabled {
		return nil, nil
	}

	registry := metric.NewMetricsRegistry()
	server := metric.NewServer(cfg.Metrics.Port, cfg.Metrics.Path, registry)

	go func() {
		if err := server.Start(); err != nil {
			slog.Error("Metrics server failed", "error", err)
		}
	}()

	slog.Info("Metrics endpoint enabled", "address", server.Address())
	return registry, server
}

// pipeline holds the constructed components in start order.
type pipeline struct {
	manager *component.Manager
	source  monitor.FrameSource
	relay   *relay.Relay
	monitor *monitor.Monitor
}

// buildPipeline constructs every component from configuration and registers
// the lifecycle-managed ones in dependency order.
func buildPipeline(
	ctx context.Context,
	cfg *config.Config,
	logger *slog.Logger,
	nc *nats.Conn,
	metricsRegistry *metric.MetricsRegistry,
) (*pipeline, error) {
	store, err := eventstore.New(cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("open event store: %w", err)
	}
	slog.Info("Event store ready", "path", store.Path())

	hubOpts := []hub.Option{}
	if nc != nil {
		hubOpts = append(hubOpts, hub.WithNATS(nc))
	}
	broadcastHub := hub.New(hubOpts...)

	hubServer := hub.NewServer(hub.ServerConfig{
		Port:            cfg.Hub.Port,
		Path:            cfg.Hub.Path,
		Hub:             broadcastHub,
		Logger:          logger,
		MetricsRegistry: metricsRegistry,
	})

	frameRelay := relay.New(relay.Config{
		Enabled:         cfg.Ingest.Enabled,
		URL:             cfg.Ingest.URL,
		QueueCapacity:   cfg.Ingest.QueueCapacity,
		ReconnectWait:   cfg.Ingest.ReconnectWait,
		Logger:          logger,
		MetricsRegistry: metricsRegistry,
	})

	frameSource, err := openSource(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	manager := component.NewManager(logger)
	manager.Register(hubServer)
	manager.Register(frameRelay)

	p := &pipeline{
		manager: manager,
		source:  frameSource,
		relay:   frameRelay,
	}

	// No oracle means no aggregation: raw relaying still runs, driven by
	// a plain pump instead of the monitor.
	if cfg.Oracle.URL == "" {
		slog.Warn("No oracle configured, running in relay-only mode")
		return p, nil
	}

	changeOracle, err := oracle.NewHTTPClient(oracle.HTTPConfig{
		URL:     cfg.Oracle.URL,
		Timeout: cfg.Oracle.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("create oracle client: %w", err)
	}

	mon := monitor.New(monitor.Config{
		Source:    frameSource,
		Oracle:    changeOracle,
		Describer: buildDescriber(cfg, logger),
		Store:     store,
		Hub:       broadcastHub,
		Relay:     frameRelay,
		Speaker: speech.New(speech.Config{
			Enabled: cfg.Speech.Enabled,
			URL:     cfg.Speech.URL,
		}),
		QuietThreshold:      cfg.Monitor.QuietThreshold,
		MaxWindowDuration:   cfg.Monitor.MaxWindowDuration,
		FrameReadTimeout:    cfg.Monitor.FrameReadTimeout,
		LogEveryNFrames:     cfg.Monitor.LogEveryNFrames,
		SimilarityThreshold: cfg.Novelty.SimilarityThreshold,
		NoveltyWindow:       cfg.Novelty.Window,
		Logger:              component.NewLogger("monitor", broadcastHub, nc, logger),
		MetricsRegistry:     metricsRegistry,
	})
	manager.Register(mon)
	p.monitor = mon

	return p, nil
}

// openSource opens the configured capture feed.
func openSource(ctx context.Context, cfg *config.Config, logger *slog.Logger) (monitor.FrameSource, error) {
	switch cfg.Source.Type {
	case "websocket":
		return source.OpenWebSocket(ctx, source.WebSocketConfig{
			URL:    cfg.Source.URL,
			Logger: logger,
		})
	case "mjpeg":
		return source.OpenMJPEG(ctx, source.MJPEGConfig{
			URL:    cfg.Source.URL,
			Logger: logger,
		})
	default:
		return nil, fmt.Errorf("unknown source type: %s", cfg.Source.Type)
	}
}

// buildDescriber assembles the provider chain from configuration. Unknown
// provider names are skipped; an empty chain disables AI description.
func buildDescriber(cfg *config.Config, logger *slog.Logger) vision.Describer {
	var providers []vision.Describer
	for _, name := range cfg.Vision.ProviderOrder {
		switch name {
		case "openai":
			provider, err := vision.NewOpenAIDescriber(vision.OpenAIConfig{
				BaseURL:     cfg.Vision.BaseURL,
				APIKey:      cfg.Vision.APIKey,
				Model:       cfg.Vision.Model,
				FirstPerson: cfg.Vision.FirstPerson,
			})
			if err != nil {
				slog.Warn("Skipping vision provider", "provider", name, "error", err)
				continue
			}
			providers = append(providers, provider)
		default:
			slog.Warn("Unknown vision provider", "provider", name)
		}
	}

	if len(providers) == 0 {
		slog.Warn("No vision providers configured, events will have no descriptions")
		return nil
	}

	return vision.NewRouter(logger, providers...)
}

// runWithSignalHandling starts components and handles shutdown signals
func runWithSignalHandling(signalCtx context.Context, p *pipeline, shutdownTimeout time.Duration) error {
	if err := p.manager.Initialize(); err != nil {
		return fmt.Errorf("initialize components: %w", err)
	}

	if err := p.manager.Start(signalCtx); err != nil {
		return fmt.Errorf("start components: %w", err)
	}

	// Relay-only mode has no monitor driving the source, pump frames
	// straight into the relay.
	if p.monitor == nil {
		go pumpFrames(signalCtx, p.source, p.relay)
	}

	slog.Info("corpus-vision started successfully")

	<-signalCtx.Done()
	slog.Info("Received shutdown signal")

	if err := p.manager.Stop(shutdownTimeout); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	slog.Info("corpus-vision shutdown complete")
	return nil
}

// pumpFrames forwards raw frames from the source to the relay until the
// context is cancelled. Read failures are tolerated, the source reconnects
// on its own.
func pumpFrames(ctx context.Context, src monitor.FrameSource, frameRelay *relay.Relay) {
	for {
		frame, err := src.ReadFrame(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			continue
		}
		frameRelay.Enqueue(frame.Data)
	}
}
