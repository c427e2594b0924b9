// Package speech posts descriptions to an external text-to-speech service.
// Speech is best-effort: a failure is logged by the caller and never
// retried, since a stale description is worse than a missed one.
package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"
)

const defaultTimeout = 10 * time.Second

// Client posts text to the speech service's /speak endpoint.
type Client struct {
	enabled bool
	baseURL string
	http    *http.Client
}

// Config configures the speech client.
type Config struct {
	// Enabled gates all speech output. A disabled client performs no I/O.
	Enabled bool

	// URL is the base URL of the speech service, e.g. "http://127.0.0.1:5001".
	URL string

	// Timeout for the speak request (default: 10s).
	Timeout time.Duration
}

// New creates a speech client. Empty URL disables the client.
func New(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}
	return &Client{
		enabled: cfg.Enabled && cfg.URL != "",
		baseURL: strings.TrimSuffix(cfg.URL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// Enabled reports whether Speak will attempt any I/O.
func (c *Client) Enabled() bool {
	return c.enabled
}

// Speak posts the text and reports whether the service accepted it.
// Disabled clients return false without any network activity.
func (c *Client) Speak(ctx context.Context, text string) bool {
	if !c.enabled || text == "" {
		return false
	}

	body, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return false
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/speak", bytes.NewReader(body))
	if err != nil {
		return false
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	return resp.StatusCode == http.StatusOK
}
