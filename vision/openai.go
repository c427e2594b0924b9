package vision

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/TheGonzalezDesigns/corpus-vision/errors"
)

// OpenAIDescriber calls an OpenAI-compatible chat completion endpoint with
// an inline image. Works with OpenAI cloud, LocalAI, or any compatible
// vision endpoint via BaseURL.
type OpenAIDescriber struct {
	client *openai.Client
	model  string
	prompt string
}

// OpenAIConfig configures the OpenAI-compatible describer.
type OpenAIConfig struct {
	// BaseURL of the service. Empty means OpenAI cloud.
	BaseURL string

	// APIKey for authentication. Optional for local services.
	APIKey string

	// Model to use, e.g. "gpt-4o-mini".
	Model string

	// FirstPerson selects the companion-style prompt.
	FirstPerson bool

	// Timeout for HTTP requests (default: 30s).
	Timeout time.Duration
}

// NewOpenAIDescriber creates a describer for an OpenAI-compatible endpoint.
func NewOpenAIDescriber(cfg OpenAIConfig) (*OpenAIDescriber, error) {
	if cfg.Model == "" {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "OpenAIDescriber", "New",
			"model is required")
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = "dummy-key" // Local services don't need real key
	}

	clientCfg := openai.DefaultConfig(apiKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	clientCfg.HTTPClient = &http.Client{
		Timeout: timeout,
	}

	prompt := NeutralPrompt
	if cfg.FirstPerson {
		prompt = FirstPersonPrompt
	}

	return &OpenAIDescriber{
		client: openai.NewClientWithConfig(clientCfg),
		model:  cfg.Model,
		prompt: prompt,
	}, nil
}

// Name implements Describer.
func (d *OpenAIDescriber) Name() string {
	return "openai"
}

// Describe sends the frame as a base64 data URL in a chat completion.
func (d *OpenAIDescriber) Describe(ctx context.Context, jpeg []byte) (Description, error) {
	if len(jpeg) == 0 {
		return Description{}, errors.WrapInvalid(errors.ErrFrameDecode, "OpenAIDescriber", "Describe",
			"empty frame")
	}

	dataURL := fmt.Sprintf("data:image/jpeg;base64,%s", base64.StdEncoding.EncodeToString(jpeg))

	req := openai.ChatCompletionRequest{
		Model:     d.model,
		MaxTokens: 300,
		Messages: []openai.ChatCompletionMessage{
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{
						Type: openai.ChatMessagePartTypeText,
						Text: d.prompt,
					},
					{
						Type: openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{
							URL:    dataURL,
							Detail: openai.ImageURLDetailAuto,
						},
					},
				},
			},
		},
	}

	resp, err := d.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return Description{}, errors.WrapTransient(err, "OpenAIDescriber", "Describe",
			"chat completion")
	}
	if len(resp.Choices) == 0 {
		return Description{}, errors.WrapTransient(errors.ErrProviderFailed, "OpenAIDescriber", "Describe",
			"empty response")
	}

	desc := parseDescription(resp.Choices[0].Message.Content)
	if desc.Text == "" {
		return Description{}, errors.WrapTransient(errors.ErrProviderFailed, "OpenAIDescriber", "Describe",
			"blank description")
	}
	return desc, nil
}

var _ Describer = (*OpenAIDescriber)(nil)
