// Package metric provides Prometheus-based metrics collection and an HTTP
// endpoint for monitoring the vision pipeline.
//
// The package offers a centralized metrics registry managing both core
// platform metrics (service status, frame counts, processing durations) and
// component-specific metrics registered through the MetricsRegistrar
// interface. A small HTTP server exposes metrics in Prometheus format.
//
// Basic usage:
//
//	registry := metric.NewMetricsRegistry()
//	server := metric.NewServer(9090, "/metrics", registry)
//	go func() {
//	    if err := server.Start(); err != nil {
//	        log.Printf("metrics server error: %v", err)
//	    }
//	}()
//
//	core := registry.CoreMetrics()
//	core.RecordServiceStatus("monitor", 2)
//	core.RecordFrameReceived("monitor")
package metric
