// Package oracle defines the change-detection boundary. The oracle inspects
// each captured frame and decides whether the scene changed enough to be
// worth a full AI analysis. The detection itself runs in an external
// service; this package holds the interface the monitor depends on and an
// HTTP client for that service.
package oracle

import (
	"context"
	"fmt"
	"time"

	"github.com/TheGonzalezDesigns/corpus-vision/errors"
)

// SceneState is the oracle's discrete classification of the scene.
type SceneState int

const (
	// SceneStable means no significant change is being tracked
	SceneStable SceneState = iota
	// SceneVolatile means recent change is still settling
	SceneVolatile
	// SceneDisturbed means the scene is actively changing
	SceneDisturbed
)

// String returns a string representation of the scene state
func (s SceneState) String() string {
	switch s {
	case SceneStable:
		return "stable"
	case SceneVolatile:
		return "volatile"
	case SceneDisturbed:
		return "disturbed"
	default:
		return "unknown"
	}
}

// TriggerDecision is the oracle's verdict on a single frame. Immutable once
// produced.
type TriggerDecision struct {
	ShouldTrigger  bool
	Confidence     float64 // 0-100
	TrackedObjects int
	Scene          SceneState
}

// Validate checks the decision invariants
func (d TriggerDecision) Validate() error {
	if d.Confidence < 0 || d.Confidence > 100 {
		return errors.WrapInvalid(
			fmt.Errorf("confidence %.2f out of range [0, 100]", d.Confidence),
			"TriggerDecision", "Validate", "invalid confidence")
	}
	if d.TrackedObjects < 0 {
		return errors.WrapInvalid(
			fmt.Errorf("tracked objects %d cannot be negative", d.TrackedObjects),
			"TriggerDecision", "Validate", "invalid object count")
	}
	return nil
}

// SceneStatus reports the oracle's current scene state and any active
// trigger cooldowns.
type SceneStatus struct {
	Scene             SceneState
	VolatileCooldown  time.Duration
	DisturbedCooldown time.Duration
}

// CooldownRemaining returns the larger of the two cooldowns.
func (s SceneStatus) CooldownRemaining() time.Duration {
	if s.VolatileCooldown > s.DisturbedCooldown {
		return s.VolatileCooldown
	}
	return s.DisturbedCooldown
}

// Oracle is the per-frame change detector. Process must be cheap enough to
// call at capture rate. The monitor treats any Process error as a
// no-trigger decision and keeps going.
type Oracle interface {
	Process(ctx context.Context, frame []byte, timestampMS int64) (TriggerDecision, error)
	Status() SceneStatus
}
