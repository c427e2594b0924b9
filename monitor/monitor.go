// Package monitor runs the continuous frame-stream loop: every frame is
// read from the source, mirrored to the ingest relay, scored by the change
// oracle, and fed to an aggregation window. Closed windows are handed to a
// single-worker pool for the slow downstream pipeline (describe, persist,
// broadcast, speak) so the capture loop never stalls and events keep
// window-close order.
package monitor

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/TheGonzalezDesigns/corpus-vision/component"
	"github.com/TheGonzalezDesigns/corpus-vision/errors"
	"github.com/TheGonzalezDesigns/corpus-vision/eventstore"
	"github.com/TheGonzalezDesigns/corpus-vision/hub"
	"github.com/TheGonzalezDesigns/corpus-vision/metric"
	"github.com/TheGonzalezDesigns/corpus-vision/oracle"
	"github.com/TheGonzalezDesigns/corpus-vision/pkg/worker"
	"github.com/TheGonzalezDesigns/corpus-vision/vision"
)

const (
	defaultQuietThreshold      = 250 * time.Millisecond
	defaultMaxWindowDuration   = 5 * time.Second
	defaultFrameReadTimeout    = 2 * time.Second
	defaultLogEveryNFrames     = 30
	defaultSimilarityThreshold = 0.90
	defaultNoveltyWindow       = 60 * time.Second

	serviceName = "monitor"
)

// Broadcaster fans messages out to dashboard subscribers.
type Broadcaster interface {
	Broadcast(msg hub.Message)
}

// FrameRelay accepts raw frames for the live-view stream.
type FrameRelay interface {
	Enqueue(frame []byte)
}

// Speaker voices a description.
type Speaker interface {
	Speak(ctx context.Context, text string) bool
	Enabled() bool
}

// EventAppender persists closed window events.
type EventAppender interface {
	Append(event eventstore.Event) error
}

// Config wires the monitor's collaborators. Source and Oracle are
// required; everything else degrades to a no-op when nil.
type Config struct {
	Source    FrameSource
	Oracle    oracle.Oracle
	Describer vision.Describer
	Store     EventAppender
	Hub       Broadcaster
	Relay     FrameRelay
	Speaker   Speaker

	QuietThreshold    time.Duration
	MaxWindowDuration time.Duration
	FrameReadTimeout  time.Duration
	LogEveryNFrames   int

	SimilarityThreshold float64
	NoveltyWindow       time.Duration

	Logger          *component.Logger
	MetricsRegistry *metric.MetricsRegistry
}

// Stats is a point-in-time snapshot of monitoring counters.
type Stats struct {
	Monitoring        bool    `json:"monitoring"`
	UptimeSeconds     float64 `json:"uptime_seconds"`
	FPS               float64 `json:"fps"`
	FramesProcessed   int64   `json:"frames_processed"`
	Triggers          int64   `json:"ai_triggers"`
	FramesSaved       int64   `json:"api_calls_saved"`
	EfficiencyPercent float64 `json:"efficiency_percent"`
}

// Monitor is the continuous monitoring loop.
type Monitor struct {
	cfg  Config
	log  *component.Logger
	agg  *aggregator
	nov  *noveltyFilter
	pool *worker.Pool[WindowResult]

	metrics *metric.Metrics

	lifecycleMu sync.Mutex
	running     atomic.Bool
	cancel      context.CancelFunc
	done        chan struct{}
	startNanos  atomic.Int64

	framesProcessed atomic.Int64
	triggers        atomic.Int64
	framesSaved     atomic.Int64
	readFailures    atomic.Int64
}

// New creates a monitor. Missing tuning values take the documented
// defaults.
func New(cfg Config) *Monitor {
	if cfg.QuietThreshold <= 0 {
		cfg.QuietThreshold = defaultQuietThreshold
	}
	if cfg.MaxWindowDuration <= 0 {
		cfg.MaxWindowDuration = defaultMaxWindowDuration
	}
	if cfg.FrameReadTimeout <= 0 {
		cfg.FrameReadTimeout = defaultFrameReadTimeout
	}
	if cfg.LogEveryNFrames <= 0 {
		cfg.LogEveryNFrames = defaultLogEveryNFrames
	}
	if cfg.SimilarityThreshold <= 0 {
		cfg.SimilarityThreshold = defaultSimilarityThreshold
	}
	if cfg.NoveltyWindow <= 0 {
		cfg.NoveltyWindow = defaultNoveltyWindow
	}
	if cfg.Logger == nil {
		cfg.Logger = component.NewLogger(serviceName, nil, nil, nil)
	}

	var core *metric.Metrics
	if cfg.MetricsRegistry != nil {
		core = cfg.MetricsRegistry.CoreMetrics()
	}

	return &Monitor{
		cfg:     cfg,
		log:     cfg.Logger,
		agg:     newAggregator(cfg.QuietThreshold, cfg.MaxWindowDuration),
		nov:     newNoveltyFilter(cfg.SimilarityThreshold, cfg.NoveltyWindow),
		metrics: core,
	}
}

// Name implements component.LifecycleComponent.
func (m *Monitor) Name() string {
	return "continuous-monitor"
}

// Initialize validates required collaborators.
func (m *Monitor) Initialize() error {
	if m.cfg.Source == nil {
		return errors.WrapFatal(errors.ErrSourceUnavailable, "Monitor", "Initialize",
			"frame source required")
	}
	if m.cfg.Oracle == nil {
		return errors.WrapFatal(errors.ErrOracleUnavailable, "Monitor", "Initialize",
			"change oracle required")
	}
	return nil
}

// Start begins monitoring. Counters reset on every start.
func (m *Monitor) Start(ctx context.Context) error {
	m.lifecycleMu.Lock()
	defer m.lifecycleMu.Unlock()

	if m.running.Load() {
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "Monitor", "Start",
			"monitoring already active")
	}
	if err := m.Initialize(); err != nil {
		return err
	}

	m.framesProcessed.Store(0)
	m.triggers.Store(0)
	m.framesSaved.Store(0)
	m.readFailures.Store(0)
	m.startNanos.Store(time.Now().UnixNano())

	loopCtx, cancel := context.WithCancel(ctx)
	// A fresh single-worker pool each start keeps event order aligned with
	// window-close order and allows restart after Stop. The pool outlives
	// loop cancellation so queued windows finish their downstream calls
	// during the Stop drain.
	m.pool = worker.NewPool[WindowResult](1, 16, m.processWindow)
	if err := m.pool.Start(context.WithoutCancel(ctx)); err != nil {
		cancel()
		return err
	}

	m.cancel = cancel
	m.done = make(chan struct{})
	m.running.Store(true)

	go m.run(loopCtx)

	if m.metrics != nil {
		m.metrics.RecordServiceStatus(serviceName, 2)
	}
	m.broadcastState(true)
	m.log.Info("continuous monitoring active, waiting for scene changes")
	return nil
}

// Stop halts the loop and drains in-flight window processing within the
// timeout. Idempotent.
func (m *Monitor) Stop(timeout time.Duration) error {
	m.lifecycleMu.Lock()
	defer m.lifecycleMu.Unlock()

	if !m.running.Load() {
		return nil
	}
	m.running.Store(false)
	m.cancel()

	select {
	case <-m.done:
	case <-time.After(timeout):
		return errors.WrapTransient(errors.ErrStopTimeout, "Monitor", "Stop",
			"wait for monitor loop")
	}

	// Queued windows finish before the pool releases its worker.
	if err := m.pool.Stop(timeout); err != nil {
		return err
	}

	stats := m.Stats()
	m.log.Info(fmt.Sprintf("monitoring stopped: frames=%d triggers=%d saved=%d efficiency=%.1f%%",
		stats.FramesProcessed, stats.Triggers, stats.FramesSaved, stats.EfficiencyPercent))

	if m.metrics != nil {
		m.metrics.RecordServiceStatus(serviceName, 0)
	}
	m.broadcastState(false)
	if m.cfg.Hub != nil {
		m.cfg.Hub.Broadcast(hub.NewStatsMessage(
			stats.FramesProcessed, stats.Triggers, stats.FramesSaved, stats.EfficiencyPercent))
	}
	return nil
}

// Running reports whether the loop is active.
func (m *Monitor) Running() bool {
	return m.running.Load()
}

// Stats returns a snapshot of the monitoring counters.
func (m *Monitor) Stats() Stats {
	processed := m.framesProcessed.Load()
	saved := m.framesSaved.Load()

	var uptime, fps float64
	if start := m.startNanos.Load(); start > 0 {
		uptime = time.Since(time.Unix(0, start)).Seconds()
		if uptime > 0 {
			fps = float64(processed) / uptime
		}
	}

	efficiency := 0.0
	if processed > 0 {
		efficiency = float64(saved) / float64(processed) * 100
	}

	return Stats{
		Monitoring:        m.running.Load(),
		UptimeSeconds:     round1(uptime),
		FPS:               round1(fps),
		FramesProcessed:   processed,
		Triggers:          m.triggers.Load(),
		FramesSaved:       saved,
		EfficiencyPercent: round1(efficiency),
	}
}

func (m *Monitor) run(ctx context.Context) {
	defer close(m.done)

	for ctx.Err() == nil {
		m.iterate(ctx)
	}
}

func (m *Monitor) iterate(ctx context.Context) {
	readCtx, cancel := context.WithTimeout(ctx, m.cfg.FrameReadTimeout)
	frame, err := m.cfg.Source.ReadFrame(readCtx)
	cancel()

	if err != nil {
		if ctx.Err() != nil {
			return
		}
		failures := m.readFailures.Add(1)
		if failures%int64(m.cfg.LogEveryNFrames) == 1 {
			m.log.Error("frame capture failed", err)
		}
		if m.metrics != nil {
			m.metrics.RecordError(serviceName, "frame_read")
		}
		// Brief pause so a dead source doesn't spin the loop
		select {
		case <-ctx.Done():
		case <-time.After(100 * time.Millisecond):
		}
		return
	}

	processed := m.framesProcessed.Add(1)
	if m.metrics != nil {
		m.metrics.RecordFrameReceived(serviceName)
	}

	if m.cfg.Relay != nil {
		m.cfg.Relay.Enqueue(frame.Data)
	}

	decision, err := m.cfg.Oracle.Process(ctx, frame.Data, frame.TimestampMS)
	if err != nil {
		// Fail open: a broken oracle must not stall the stream.
		decision = oracle.TriggerDecision{}
		m.log.Error("oracle processing failed, continuing without trigger", err)
		if m.metrics != nil {
			m.metrics.RecordError(serviceName, "oracle")
		}
	}

	if decision.ShouldTrigger {
		m.triggers.Add(1)
	} else {
		m.framesSaved.Add(1)
	}

	result, closed := m.agg.observe(time.Now(), decision.ShouldTrigger, decision.Confidence, frame.Data)
	if closed {
		m.log.Info(fmt.Sprintf("event window closed: frames=%d duration_ms=%d confidence=%.1f%%",
			len(result.Frames), result.DurationMS, result.ConfidenceHint))
		if err := m.pool.Submit(result); err != nil {
			m.log.Error("window queue full, event dropped", err)
			if m.metrics != nil {
				m.metrics.RecordError(serviceName, "window_queue")
			}
		}
	}

	if decision.ShouldTrigger || processed%int64(m.cfg.LogEveryNFrames) == 0 {
		m.logFrameAnalysis(decision)
	}
}

// logFrameAnalysis emits the reduced-frequency analysis log line plus the
// dashboard cooldown and stats messages.
func (m *Monitor) logFrameAnalysis(decision oracle.TriggerDecision) {
	status := m.cfg.Oracle.Status()
	remaining := status.CooldownRemaining()

	m.log.Info(fmt.Sprintf("frame analysis: trigger=%t confidence=%.1f%% objects=%d scene=%s cooldown=%.1fs",
		decision.ShouldTrigger, decision.Confidence, decision.TrackedObjects,
		status.Scene, remaining.Seconds()))

	if m.cfg.Hub == nil {
		return
	}
	if remaining > 0 {
		m.cfg.Hub.Broadcast(hub.NewCooldownMessage(status.Scene.String(), remaining))
	}
	stats := m.Stats()
	m.cfg.Hub.Broadcast(hub.NewStatsMessage(
		stats.FramesProcessed, stats.Triggers, stats.FramesSaved, stats.EfficiencyPercent))
}

// processWindow runs the slow downstream pipeline for one closed window.
// Failures degrade stepwise: a decode failure drops the event; a describe
// failure persists the event without a description; store and broadcast
// failures are logged and the pipeline continues.
func (m *Monitor) processWindow(ctx context.Context, result WindowResult) error {
	start := time.Now()
	defer func() {
		if m.metrics != nil {
			m.metrics.RecordProcessingDuration(serviceName, "window", time.Since(start).Seconds())
		}
	}()

	if len(result.Frames) == 0 {
		return nil
	}

	last := result.Frames[len(result.Frames)-1]
	if _, _, err := image.DecodeConfig(bytes.NewReader(last)); err != nil {
		m.log.Error("window frame decode failed, dropping event", err)
		if m.metrics != nil {
			m.metrics.RecordError(serviceName, "frame_decode")
		}
		return errors.WrapInvalid(errors.ErrFrameDecode, "Monitor", "processWindow",
			"decode last window frame")
	}

	var desc vision.Description
	if m.cfg.Describer != nil {
		describeStart := time.Now()
		d, err := m.cfg.Describer.Describe(ctx, last)
		if m.cfg.Hub != nil {
			m.cfg.Hub.Broadcast(hub.NewAPIMessage(err == nil, time.Since(describeStart).Milliseconds()))
		}
		if err != nil {
			m.log.Error("scene description failed, persisting event without one", err)
			if m.metrics != nil {
				m.metrics.RecordError(serviceName, "describe")
			}
		} else {
			desc = d
		}
	}

	event := m.buildEvent(result, desc)

	if m.cfg.Store != nil {
		if err := m.cfg.Store.Append(event); err != nil {
			m.log.Error("event store append failed", err)
			if m.metrics != nil {
				m.metrics.RecordError(serviceName, "store_append")
			}
		}
	}

	if m.cfg.Hub != nil {
		m.cfg.Hub.Broadcast(hub.NewEventMessage(
			event.FramesCount, event.DurationMS, event.Description, event.ConfidenceHint))
	}

	m.maybeSpeak(ctx, desc.Text)
	return nil
}

func (m *Monitor) buildEvent(result WindowResult, desc vision.Description) eventstore.Event {
	event := eventstore.Event{
		ID:             uuid.NewString(),
		Type:           "waldo_event",
		TimestampMS:    result.StartMS,
		TimestampISO:   time.UnixMilli(result.StartMS).UTC().Format(time.RFC3339Nano),
		DurationMS:     result.DurationMS,
		FramesCount:    len(result.Frames),
		ConfidenceHint: round1(result.ConfidenceHint),
		Description:    desc.Text,
		Observations:   desc.Observations,
		Changes:        desc.Changes,
		Source:         "waldo_monitor",
	}
	if desc.Text != "" {
		novel := desc.Novel
		event.Novel = &novel
		if desc.Salience != 0 {
			salience := desc.Salience
			event.Salience = &salience
		}
	}
	return event
}

// maybeSpeak applies the novelty filter and voices the description. The
// baseline advances only when the speech service actually accepted the
// text.
func (m *Monitor) maybeSpeak(ctx context.Context, text string) {
	if text == "" || m.cfg.Speaker == nil || !m.cfg.Speaker.Enabled() {
		return
	}

	now := time.Now()
	if !m.nov.shouldSpeak(text, now) {
		m.log.Info("description suppressed, repeats last spoken summary")
		return
	}

	if m.cfg.Speaker.Speak(ctx, text) {
		m.nov.spoke(text, now)
	} else {
		m.log.Warn("speech service rejected description")
	}
}

func (m *Monitor) broadcastState(monitoring bool) {
	if m.cfg.Hub == nil {
		return
	}
	scene := ""
	if m.cfg.Oracle != nil {
		scene = m.cfg.Oracle.Status().Scene.String()
	}
	m.cfg.Hub.Broadcast(hub.NewStateMessage(monitoring, scene))
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

var _ component.LifecycleComponent = (*Monitor)(nil)
