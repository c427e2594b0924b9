package metric

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains platform-level metrics shared by all components.
// Component-specific metrics (window counts, relay drops) are registered
// through the MetricsRegistrar interface instead.
type Metrics struct {
	ServiceStatus      *prometheus.GaugeVec
	FramesReceived     *prometheus.CounterVec
	ProcessingDuration *prometheus.HistogramVec
	ErrorsTotal        *prometheus.CounterVec
	HealthCheckStatus  *prometheus.GaugeVec

	// NATS mirror metrics (zero-valued when the mirror is disabled)
	NATSConnected  prometheus.Gauge
	NATSReconnects prometheus.Counter
}

// NewMetrics creates a new Metrics instance with all platform metrics
func NewMetrics() *Metrics {
	return &Metrics{
		ServiceStatus: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "corpusvision",
				Subsystem: "service",
				Name:      "status",
				Help:      "Service status (0=stopped, 1=starting, 2=running, 3=stopping, 4=failed)",
			},
			[]string{"service"},
		),

		FramesReceived: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "corpusvision",
				Subsystem: "frames",
				Name:      "received_total",
				Help:      "Total number of frames received",
			},
			[]string{"service"},
		),

		ProcessingDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "corpusvision",
				Subsystem: "processing",
				Name:      "duration_seconds",
				Help:      "Per-operation processing duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"service", "operation"},
		),

		ErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "corpusvision",
				Subsystem: "errors",
				Name:      "total",
				Help:      "Total number of errors",
			},
			[]string{"service", "type"},
		),

		HealthCheckStatus: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "corpusvision",
				Subsystem: "health",
				Name:      "status",
				Help:      "Health check status (0=unhealthy, 1=healthy)",
			},
			[]string{"service"},
		),

		NATSConnected: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "corpusvision",
				Subsystem: "nats",
				Name:      "connected",
				Help:      "NATS connection status (0=disconnected, 1=connected)",
			},
		),

		NATSReconnects: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "corpusvision",
				Subsystem: "nats",
				Name:      "reconnects_total",
				Help:      "Total number of NATS reconnections",
			},
		),
	}
}

// RecordServiceStatus updates service status metric
func (c *Metrics) RecordServiceStatus(service string, status int) {
	c.ServiceStatus.WithLabelValues(service).Set(float64(status))
}

// RecordFrameReceived increments the received frame counter
func (c *Metrics) RecordFrameReceived(service string) {
	c.FramesReceived.WithLabelValues(service).Inc()
}

// RecordProcessingDuration observes an operation duration in seconds
func (c *Metrics) RecordProcessingDuration(service, operation string, seconds float64) {
	c.ProcessingDuration.WithLabelValues(service, operation).Observe(seconds)
}

// RecordError increments the error counter for a service
func (c *Metrics) RecordError(service, errorType string) {
	c.ErrorsTotal.WithLabelValues(service, errorType).Inc()
}

// RecordHealthStatus updates the health check gauge
func (c *Metrics) RecordHealthStatus(service string, healthy bool) {
	v := 0.0
	if healthy {
		v = 1.0
	}
	c.HealthCheckStatus.WithLabelValues(service).Set(v)
}
