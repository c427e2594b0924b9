package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/TheGonzalezDesigns/corpus-vision/errors"
)

const (
	defaultProcessTimeout = 2 * time.Second
	defaultStatusTimeout  = 500 * time.Millisecond
)

// HTTPConfig configures an HTTP-backed oracle client.
type HTTPConfig struct {
	// URL is the base URL of the change-detection service.
	URL string

	// Timeout bounds a single Process call. Defaults to 2s; the oracle
	// has to keep up with capture rate, so keep this short.
	Timeout time.Duration
}

// HTTPClient talks to an external change-detection service. Frames are
// posted as raw bytes to <URL>/process; scene status comes from
// <URL>/status. The service owns the pixel comparison, this client owns
// nothing but the wire contract.
type HTTPClient struct {
	baseURL string
	http    *http.Client

	mu         sync.Mutex
	lastStatus SceneStatus
}

type processResponse struct {
	ShouldTrigger  bool    `json:"should_trigger"`
	Confidence     float64 `json:"confidence"`
	TrackedObjects int     `json:"tracked_objects"`
	SceneState     string  `json:"scene_state"`
}

type statusResponse struct {
	SceneState          string `json:"scene_state"`
	VolatileCooldownMS  int64  `json:"volatile_cooldown_ms"`
	DisturbedCooldownMS int64  `json:"disturbed_cooldown_ms"`
}

// NewHTTPClient creates an oracle client for the service at cfg.URL.
func NewHTTPClient(cfg HTTPConfig) (*HTTPClient, error) {
	if cfg.URL == "" {
		return nil, errors.WrapInvalid(ErrMissingURL, "Oracle", "NewHTTPClient", "validate config")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultProcessTimeout
	}
	return &HTTPClient{
		baseURL: strings.TrimSuffix(cfg.URL, "/"),
		http:    &http.Client{Timeout: timeout},
	}, nil
}

// ErrMissingURL indicates the oracle client was built without a service URL.
var ErrMissingURL = fmt.Errorf("oracle service url is required")

// Process submits one frame for change detection.
func (c *HTTPClient) Process(ctx context.Context, frame []byte, timestampMS int64) (TriggerDecision, error) {
	if len(frame) == 0 {
		return TriggerDecision{}, errors.WrapInvalid(
			fmt.Errorf("empty frame"), "Oracle", "Process", "validate frame")
	}

	url := c.baseURL + "/process?ts=" + strconv.FormatInt(timestampMS, 10)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(frame))
	if err != nil {
		return TriggerDecision{}, errors.WrapInvalid(err, "Oracle", "Process", "build request")
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := c.http.Do(req)
	if err != nil {
		return TriggerDecision{}, errors.WrapTransient(err, "Oracle", "Process", "call change-detection service")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return TriggerDecision{}, errors.WrapTransient(
			fmt.Errorf("change-detection service returned %d", resp.StatusCode),
			"Oracle", "Process", "call change-detection service")
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return TriggerDecision{}, errors.WrapTransient(err, "Oracle", "Process", "read response")
	}

	var pr processResponse
	if err := json.Unmarshal(body, &pr); err != nil {
		return TriggerDecision{}, errors.WrapInvalid(err, "Oracle", "Process", "decode response")
	}

	decision := TriggerDecision{
		ShouldTrigger:  pr.ShouldTrigger,
		Confidence:     pr.Confidence,
		TrackedObjects: pr.TrackedObjects,
		Scene:          parseSceneState(pr.SceneState),
	}
	if err := decision.Validate(); err != nil {
		return TriggerDecision{}, err
	}

	c.mu.Lock()
	c.lastStatus.Scene = decision.Scene
	c.mu.Unlock()

	return decision, nil
}

// Status reports the service's current scene state and cooldowns. The call
// is bounded by a short timeout; on failure the last known status is
// returned so callers never block on a flaky service.
func (c *HTTPClient) Status() SceneStatus {
	ctx, cancel := context.WithTimeout(context.Background(), defaultStatusTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/status", nil)
	if err != nil {
		return c.cachedStatus()
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return c.cachedStatus()
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return c.cachedStatus()
	}

	var sr statusResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&sr); err != nil {
		return c.cachedStatus()
	}

	status := SceneStatus{
		Scene:             parseSceneState(sr.SceneState),
		VolatileCooldown:  time.Duration(sr.VolatileCooldownMS) * time.Millisecond,
		DisturbedCooldown: time.Duration(sr.DisturbedCooldownMS) * time.Millisecond,
	}

	c.mu.Lock()
	c.lastStatus = status
	c.mu.Unlock()

	return status
}

func (c *HTTPClient) cachedStatus() SceneStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastStatus
}

func parseSceneState(s string) SceneState {
	switch strings.ToLower(s) {
	case "volatile":
		return SceneVolatile
	case "disturbed":
		return SceneDisturbed
	default:
		return SceneStable
	}
}

var _ Oracle = (*HTTPClient)(nil)
