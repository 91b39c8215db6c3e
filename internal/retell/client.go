package retell

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Client talks to the voice-AI platform's REST API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates an API client with the given bearer credential.
func NewClient(baseURL, apiKey string, timeout time.Duration, logger *slog.Logger) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.With(slog.String("component", "voiceai")),
	}
}

type registerRequest struct {
	AgentID          string            `json:"agent_id"`
	FromNumber       string            `json:"from_number"`
	ToNumber         string            `json:"to_number"`
	Direction        string            `json:"direction"`
	DynamicVariables map[string]string `json:"retell_llm_dynamic_variables,omitempty"`
}

type registerResponse struct {
	CallID string `json:"call_id"`
}

// RegisterCall creates an outbound call session with the platform and
// returns the provider's call id.
func (c *Client) RegisterCall(ctx context.Context, toNumber, fromNumber, agentID string, variables map[string]string) (string, error) {
	payload := registerRequest{
		AgentID:          agentID,
		FromNumber:       fromNumber,
		ToNumber:         toNumber,
		Direction:        "outbound",
		DynamicVariables: variables,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to encode register request: %w", err)
	}

	url := c.baseURL + "/v2/register-phone-call"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build register request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to call voice-AI API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("voice-AI API returned %d: %s", resp.StatusCode, string(snippet))
	}

	var out registerResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to decode register response: %w", err)
	}
	if out.CallID == "" {
		return "", fmt.Errorf("voice-AI API returned no call id")
	}

	c.logger.Debug("call registered with provider",
		slog.String("call_id", out.CallID),
		slog.String("to_number", toNumber),
	)
	return out.CallID, nil
}
