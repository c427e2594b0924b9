package oracle

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSceneStateString(t *testing.T) {
	assert.Equal(t, "stable", SceneStable.String())
	assert.Equal(t, "volatile", SceneVolatile.String())
	assert.Equal(t, "disturbed", SceneDisturbed.String())
	assert.Equal(t, "unknown", SceneState(42).String())
}

func TestTriggerDecisionValidate(t *testing.T) {
	tests := []struct {
		name     string
		decision TriggerDecision
		wantErr  bool
	}{
		{"valid", TriggerDecision{ShouldTrigger: true, Confidence: 85.5, TrackedObjects: 2, Scene: SceneDisturbed}, false},
		{"zero value", TriggerDecision{}, false},
		{"confidence at bounds", TriggerDecision{Confidence: 100}, false},
		{"confidence too high", TriggerDecision{Confidence: 100.1}, true},
		{"confidence negative", TriggerDecision{Confidence: -1}, true},
		{"negative objects", TriggerDecision{TrackedObjects: -1}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.decision.Validate()
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestSceneStatusCooldownRemaining(t *testing.T) {
	s := SceneStatus{VolatileCooldown: 2 * time.Second, DisturbedCooldown: 5 * time.Second}
	assert.Equal(t, 5*time.Second, s.CooldownRemaining())

	s = SceneStatus{VolatileCooldown: 3 * time.Second}
	assert.Equal(t, 3*time.Second, s.CooldownRemaining())

	assert.Equal(t, time.Duration(0), SceneStatus{}.CooldownRemaining())
}
