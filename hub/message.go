package hub

import (
	"encoding/json"
	"time"

	"github.com/TheGonzalezDesigns/corpus-vision/component"
)

// Type discriminates wire messages fanned out to dashboard clients.
type Type string

const (
	// TypeEvent announces a closed aggregation window
	TypeEvent Type = "waldo_event"
	// TypeLog carries a structured log entry
	TypeLog Type = "waldo_log"
	// TypeState reports monitoring on/off and scene state
	TypeState Type = "waldo_state"
	// TypeAPI reports an AI description call result
	TypeAPI Type = "api"
	// TypeCooldown reports an active trigger cooldown
	TypeCooldown Type = "cooldown"
	// TypeStats carries periodic pipeline counters
	TypeStats Type = "stats"
)

// Message is the JSON wire envelope: a type discriminator, a millisecond
// timestamp, and type-specific fields flattened into the same object.
type Message struct {
	Type   Type
	TS     int64
	Fields map[string]any
}

// MarshalJSON flattens Fields alongside type and ts.
func (m Message) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(m.Fields)+2)
	for k, v := range m.Fields {
		out[k] = v
	}
	out["type"] = string(m.Type)
	out["ts"] = m.TS
	return json.Marshal(out)
}

// UnmarshalJSON splits type and ts back out of the flat object.
func (m *Message) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if t, ok := raw["type"].(string); ok {
		m.Type = Type(t)
	}
	if ts, ok := raw["ts"].(float64); ok {
		m.TS = int64(ts)
	}
	delete(raw, "type")
	delete(raw, "ts")
	m.Fields = raw
	return nil
}

func newMessage(t Type, fields map[string]any) Message {
	return Message{Type: t, TS: time.Now().UnixMilli(), Fields: fields}
}

// NewEventMessage announces a closed window.
func NewEventMessage(frames int, durationMS int64, description string, confidenceHint float64) Message {
	fields := map[string]any{
		"frames":      frames,
		"duration_ms": durationMS,
	}
	if description != "" {
		fields["description"] = description
	}
	if confidenceHint > 0 {
		fields["confidence_hint"] = confidenceHint
	}
	return newMessage(TypeEvent, fields)
}

// NewLogMessage wraps a structured log entry.
func NewLogMessage(entry component.LogEntry) Message {
	return newMessage(TypeLog, map[string]any{
		"level":     string(entry.Level),
		"component": entry.Component,
		"message":   entry.Message,
	})
}

// NewStateMessage reports the monitoring flag and current scene.
func NewStateMessage(monitoring bool, scene string) Message {
	return newMessage(TypeState, map[string]any{
		"monitoring": monitoring,
		"scene":      scene,
	})
}

// NewAPIMessage reports an AI description call.
func NewAPIMessage(success bool, durationMS int64) Message {
	return newMessage(TypeAPI, map[string]any{
		"success":     success,
		"duration_ms": durationMS,
	})
}

// NewCooldownMessage reports an active trigger cooldown.
func NewCooldownMessage(scene string, remaining time.Duration) Message {
	return newMessage(TypeCooldown, map[string]any{
		"scene":             scene,
		"remaining_seconds": remaining.Seconds(),
	})
}

// NewStatsMessage carries the periodic pipeline counters.
func NewStatsMessage(framesProcessed, triggers, framesSaved int64, efficiencyPct float64) Message {
	return newMessage(TypeStats, map[string]any{
		"frames_processed": framesProcessed,
		"triggers":         triggers,
		"frames_saved":     framesSaved,
		"efficiency_pct":   efficiencyPct,
	})
}
