// Package vision turns encoded frames into natural-language scene
// descriptions by calling an external AI vision provider. Providers are
// interchangeable behind the Describer interface and can be chained in a
// Router so the first healthy provider wins.
package vision

import (
	"context"
	"encoding/json"
	"strings"
)

// Description is the structured result of an AI scene analysis. Only Text
// is guaranteed; the remaining fields are populated when the provider
// returns a structured body.
type Description struct {
	Text         string   `json:"description"`
	Observations []string `json:"observations,omitempty"`
	Changes      []string `json:"changes,omitempty"`
	Novel        bool     `json:"novel,omitempty"`
	Salience     int      `json:"salience,omitempty"`
}

// Describer analyzes a single JPEG-encoded frame.
type Describer interface {
	// Describe returns a scene description for the frame. Implementations
	// must respect ctx cancellation.
	Describe(ctx context.Context, jpeg []byte) (Description, error)

	// Name identifies the provider for logging.
	Name() string
}

// FirstPersonPrompt asks for a companion-style description of the scene.
const FirstPersonPrompt = "Describe what you see in this image from a first-person perspective, " +
	"as if you are an AI companion looking through your camera. " +
	"Start with 'I can see' or 'I notice' and describe the scene naturally. " +
	"Keep it concise, around 1-2 sentences."

// NeutralPrompt asks for a plain description with no persona.
const NeutralPrompt = "Describe what you see in this image concisely."

// parseDescription accepts either a structured JSON body or plain text.
// Models sometimes wrap JSON in a markdown fence, so fences are stripped
// before the JSON attempt.
func parseDescription(raw string) Description {
	trimmed := strings.TrimSpace(raw)
	candidate := trimmed

	if strings.HasPrefix(candidate, "```") {
		candidate = strings.TrimPrefix(candidate, "```json")
		candidate = strings.TrimPrefix(candidate, "```")
		candidate = strings.TrimSuffix(strings.TrimSpace(candidate), "```")
		candidate = strings.TrimSpace(candidate)
	}

	if strings.HasPrefix(candidate, "{") {
		var desc Description
		if err := json.Unmarshal([]byte(candidate), &desc); err == nil && desc.Text != "" {
			return desc
		}
	}

	return Description{Text: trimmed}
}
