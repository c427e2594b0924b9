package errors

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorClassString(t *testing.T) {
	tests := []struct {
		class ErrorClass
		want  string
	}{
		{ErrorTransient, "transient"},
		{ErrorInvalid, "invalid"},
		{ErrorFatal, "fatal"},
		{ErrorClass(99), "unknown"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.class.String())
	}
}

func TestWrapFormatsMessage(t *testing.T) {
	base := errors.New("boom")
	err := Wrap(base, "Monitor", "Start", "open capture source")
	require.Error(t, err)
	assert.Equal(t, "Monitor.Start: open capture source failed: boom", err.Error())
	assert.True(t, errors.Is(err, base))
}

func TestWrapNilReturnsNil(t *testing.T) {
	assert.NoError(t, Wrap(nil, "c", "m", "a"))
	assert.NoError(t, WrapTransient(nil, "c", "m", "a"))
	assert.NoError(t, WrapInvalid(nil, "c", "m", "a"))
	assert.NoError(t, WrapFatal(nil, "c", "m", "a"))
}

func TestClassification(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		transient bool
		invalid   bool
		fatal     bool
	}{
		{"nil", nil, false, false, false},
		{"frame read sentinel", ErrFrameRead, true, false, false},
		{"wrapped frame read", fmt.Errorf("read: %w", ErrFrameRead), true, false, false},
		{"context deadline", context.DeadlineExceeded, true, false, false},
		{"oracle unavailable", ErrOracleUnavailable, false, false, true},
		{"source unavailable", ErrSourceUnavailable, false, false, true},
		{"invalid config", ErrInvalidConfig, false, true, true},
		{"decode failure", ErrFrameDecode, false, true, false},
		{"wrap transient", WrapTransient(errors.New("x"), "Relay", "send", "write frame"), true, false, false},
		{"wrap invalid", WrapInvalid(errors.New("x"), "Config", "Validate", "check threshold"), false, true, false},
		{"wrap fatal", WrapFatal(errors.New("x"), "Monitor", "Start", "open source"), false, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.transient, IsTransient(tt.err), "IsTransient")
			assert.Equal(t, tt.invalid, IsInvalid(tt.err), "IsInvalid")
			assert.Equal(t, tt.fatal, IsFatal(tt.err), "IsFatal")
		})
	}
}

func TestClassifyPrecedence(t *testing.T) {
	// Fatal wins over invalid, unknown defaults to transient.
	assert.Equal(t, ErrorFatal, Classify(ErrInvalidConfig))
	assert.Equal(t, ErrorInvalid, Classify(ErrFrameDecode))
	assert.Equal(t, ErrorTransient, Classify(errors.New("mystery")))
}

func TestClassifiedErrorUnwrap(t *testing.T) {
	base := errors.New("disk gone")
	err := WrapTransient(base, "EventStore", "Append", "write line")

	var ce *ClassifiedError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, ErrorTransient, ce.Class)
	assert.Equal(t, "EventStore", ce.Component)
	assert.True(t, errors.Is(err, base))
}
