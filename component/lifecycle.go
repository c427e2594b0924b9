package component

import (
	"context"
	"time"
)

// State represents the current lifecycle state of a component
type State int

const (
	// StateCreated indicates component was created but not initialized
	StateCreated State = iota
	// StateInitialized indicates component was initialized but not started
	StateInitialized
	// StateStarted indicates component is running
	StateStarted
	// StateStopped indicates component was stopped
	StateStopped
	// StateFailed indicates component failed during lifecycle operation
	StateFailed
)

// String returns a string representation of the component state
func (cs State) String() string {
	switch cs {
	case StateCreated:
		return "created"
	case StateInitialized:
		return "initialized"
	case StateStarted:
		return "started"
	case StateStopped:
		return "stopped"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// LifecycleComponent defines components that support full lifecycle management:
//   - Initialize() error                    // Setup/create only, NO context
//   - Start(ctx context.Context) error      // Start with context passed through
//   - Stop(timeout time.Duration) error     // Stop with timeout for graceful shutdown
//
// Components never store the context they receive in Start; the manager owns
// per-component contexts and cancels them during shutdown.
type LifecycleComponent interface {
	Name() string
	Initialize() error
	Start(ctx context.Context) error
	Stop(timeout time.Duration) error
}

// ManagedComponent tracks a component and its lifecycle state
type ManagedComponent struct {
	Component LifecycleComponent
	State     State

	// Named child context for this specific component, created by the
	// manager as a child of the run context.
	Context context.Context
	Cancel  context.CancelFunc

	// StartOrder tracks the order components were started for reverse shutdown
	StartOrder int

	// LastError tracks the last error that occurred during lifecycle operations
	LastError error
}
