package component

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

// LogLevel represents the severity level of a log entry
type LogLevel string

const (
	// LogLevelDebug represents debug-level logs
	LogLevelDebug LogLevel = "DEBUG"
	// LogLevelInfo represents informational logs
	LogLevelInfo LogLevel = "INFO"
	// LogLevelWarn represents warning logs
	LogLevelWarn LogLevel = "WARN"
	// LogLevelError represents error logs
	LogLevelError LogLevel = "ERROR"
)

// LogEntry is a structured log entry fanned out to dashboard clients and,
// when the mirror is enabled, published to NATS.
type LogEntry struct {
	Timestamp string   `json:"timestamp"` // RFC3339 format
	Level     LogLevel `json:"level"`
	Component string   `json:"component"`
	Message   string   `json:"message"`
	Stack     string   `json:"stack,omitempty"` // Error details for ERROR entries
}

// LogSink receives log entries for fan-out to connected clients. The
// broadcast hub implements this.
type LogSink interface {
	PublishLog(entry LogEntry)
}

// Logger provides structured logging for components. It wraps a standard
// slog.Logger for local logging, forwards entries to an optional LogSink for
// dashboard streaming, and mirrors to NATS when a connection is provided.
type Logger struct {
	componentName string
	sink          LogSink
	nc            *nats.Conn
	logger        *slog.Logger
	natsEnabled   bool
}

// NewLogger creates a component logger. sink and nc may both be nil, in
// which case entries only go to the local slog.Logger.
func NewLogger(componentName string, sink LogSink, nc *nats.Conn, logger *slog.Logger) *Logger {
	return &Logger{
		componentName: componentName,
		sink:          sink,
		nc:            nc,
		logger:        logger,
		natsEnabled:   nc != nil,
	}
}

// Debug logs a debug-level message
func (cl *Logger) Debug(msg string) {
	cl.DebugContext(context.Background(), msg)
}

// Info logs an info-level message
func (cl *Logger) Info(msg string) {
	cl.InfoContext(context.Background(), msg)
}

// Warn logs a warning-level message
func (cl *Logger) Warn(msg string) {
	cl.WarnContext(context.Background(), msg)
}

// Error logs an error-level message with optional error details
func (cl *Logger) Error(msg string, err error) {
	cl.ErrorContext(context.Background(), msg, err)
}

// DebugContext logs a debug-level message with context
func (cl *Logger) DebugContext(ctx context.Context, msg string) {
	cl.publish(ctx, LogLevelDebug, msg, "")
	if cl.logger != nil {
		cl.logger.Debug(msg, "component", cl.componentName)
	}
}

// InfoContext logs an info-level message with context
func (cl *Logger) InfoContext(ctx context.Context, msg string) {
	cl.publish(ctx, LogLevelInfo, msg, "")
	if cl.logger != nil {
		cl.logger.Info(msg, "component", cl.componentName)
	}
}

// WarnContext logs a warning-level message with context
func (cl *Logger) WarnContext(ctx context.Context, msg string) {
	cl.publish(ctx, LogLevelWarn, msg, "")
	if cl.logger != nil {
		cl.logger.Warn(msg, "component", cl.componentName)
	}
}

// ErrorContext logs an error-level message with optional error details and context
func (cl *Logger) ErrorContext(ctx context.Context, msg string, err error) {
	stack := ""
	if err != nil {
		stack = fmt.Sprintf("%+v", err)
	}
	cl.publish(ctx, LogLevelError, msg, stack)
	if cl.logger != nil {
		cl.logger.Error(msg, "component", cl.componentName, "error", err)
	}
}

// publish fans the entry out to the sink and the NATS mirror.
func (cl *Logger) publish(ctx context.Context, level LogLevel, message, stack string) {
	if cl.sink == nil && !cl.natsEnabled {
		return
	}

	select {
	case <-ctx.Done():
		return
	default:
	}

	entry := LogEntry{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Level:     level,
		Component: cl.componentName,
		Message:   message,
		Stack:     stack,
	}

	if cl.sink != nil {
		cl.sink.PublishLog(entry)
	}

	if !cl.natsEnabled {
		return
	}

	data, err := json.Marshal(entry)
	if err != nil {
		if cl.logger != nil {
			cl.logger.Error("Failed to marshal log entry", "error", err)
		}
		return
	}

	// Guard against nc being cleared after the enabled check
	nc := cl.nc
	if nc == nil {
		return
	}

	subject := fmt.Sprintf("logs.vision.%s", cl.componentName)
	if err := nc.Publish(subject, data); err != nil {
		if cl.logger != nil {
			cl.logger.Error("Failed to publish log to NATS", "error", err, "subject", subject)
		}
	}
}
