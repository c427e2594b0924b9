package component

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Manager starts components in registration order and stops them in reverse.
// The vision pipeline has hard start dependencies (hub before monitor, store
// before monitor), so startup is sequential rather than parallel.
type Manager struct {
	logger *slog.Logger

	mu         sync.Mutex
	components []*ManagedComponent
	started    bool
}

// NewManager creates a component manager. A nil logger uses slog.Default().
func NewManager(logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{logger: logger}
}

// Register adds a component. Registration order is start order.
func (m *Manager) Register(c LifecycleComponent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.components = append(m.components, &ManagedComponent{
		Component:  c,
		State:      StateCreated,
		StartOrder: len(m.components),
	})
}

// Initialize initializes all registered components in order.
func (m *Manager) Initialize() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, mc := range m.components {
		if err := mc.Component.Initialize(); err != nil {
			mc.State = StateFailed
			mc.LastError = err
			return fmt.Errorf("initialize %s: %w", mc.Component.Name(), err)
		}
		mc.State = StateInitialized
	}
	return nil
}

// Start starts all components in registration order. Each component gets a
// named child context so it can be cancelled individually during shutdown.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.started {
		return nil
	}

	for _, mc := range m.components {
		childCtx, cancel := context.WithCancel(ctx)
		mc.Context = childCtx
		mc.Cancel = cancel

		m.logger.Info("starting component", "name", mc.Component.Name())
		if err := mc.Component.Start(childCtx); err != nil {
			mc.State = StateFailed
			mc.LastError = err
			cancel()
			return fmt.Errorf("start %s: %w", mc.Component.Name(), err)
		}
		mc.State = StateStarted
	}

	m.started = true
	return nil
}

// Stop stops all started components in reverse start order. Every component
// gets a stop attempt even when an earlier one fails; the first error is
// returned.
func (m *Manager) Stop(timeout time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.started {
		return nil
	}

	var firstErr error
	for i := len(m.components) - 1; i >= 0; i-- {
		mc := m.components[i]
		if mc.State != StateStarted {
			continue
		}

		m.logger.Info("stopping component", "name", mc.Component.Name())
		if err := mc.Component.Stop(timeout); err != nil {
			mc.State = StateFailed
			mc.LastError = err
			m.logger.Error("component stop failed", "name", mc.Component.Name(), "error", err)
			if firstErr == nil {
				firstErr = fmt.Errorf("stop %s: %w", mc.Component.Name(), err)
			}
		} else {
			mc.State = StateStopped
		}

		if mc.Cancel != nil {
			mc.Cancel()
		}
	}

	m.started = false
	return firstErr
}

// States returns a snapshot of component names and their lifecycle states.
func (m *Manager) States() map[string]State {
	m.mu.Lock()
	defer m.mu.Unlock()

	states := make(map[string]State, len(m.components))
	for _, mc := range m.components {
		states[mc.Component.Name()] = mc.State
	}
	return states
}
