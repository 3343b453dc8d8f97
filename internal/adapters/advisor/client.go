// Package advisor provides the language-model advisory channel the matcher
// and route manager consult. The engine treats the advisor as optional:
// every caller has a deterministic fallback, so advisor failures degrade
// quality, never availability.
package advisor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/andrescamacho/fleetdispatch-go/internal/domain/shared"
)

const (
	defaultBaseURL     = "https://api.groq.com/openai/v1"
	defaultModel       = "llama-3.3-70b-versatile"
	defaultTimeout     = 30 * time.Second
	defaultTemperature = 0.1
	defaultMaxTokens   = 1024
)

// Advisor produces a free-text completion for a system + user prompt pair.
type Advisor interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Client talks to an OpenAI-compatible chat completions endpoint.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	model      string
}

// NewClient creates an advisor client. An empty model selects the default.
func NewClient(baseURL, apiKey, model string) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if model == "" {
		model = defaultModel
	}
	return &Client{
		httpClient: &http.Client{Timeout: defaultTimeout},
		baseURL:    baseURL,
		apiKey:     apiKey,
		model:      model,
	}
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Complete sends the prompt pair and returns the first choice's text.
// Status codes are classified so callers can tell throttling from a dead
// endpoint when deciding how loudly to log the fallback.
func (c *Client) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	payload := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		Temperature: defaultTemperature,
		MaxTokens:   defaultMaxTokens,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", shared.NewMalformed(fmt.Sprintf("advisor request: %v", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", shared.NewUnavailable("advisor request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", shared.NewTimeout("advisor completion", ctx.Err())
		}
		return "", shared.NewUnavailable("advisor completion", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", shared.NewUnavailable("advisor response read", err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return "", shared.NewUnavailable(fmt.Sprintf("advisor auth rejected (%d)", resp.StatusCode), nil)
	case resp.StatusCode == http.StatusTooManyRequests:
		return "", shared.NewUnavailable("advisor rate limited", nil)
	case resp.StatusCode != http.StatusOK:
		return "", shared.NewUnavailable(fmt.Sprintf("advisor status %d: %s", resp.StatusCode, respBody), nil)
	}

	var parsed chatResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", shared.NewMalformed(fmt.Sprintf("advisor response: %v", err))
	}
	if parsed.Error != nil {
		return "", shared.NewUnavailable("advisor error: "+parsed.Error.Message, nil)
	}
	if len(parsed.Choices) == 0 {
		return "", shared.NewMalformed("advisor returned no choices")
	}
	return parsed.Choices[0].Message.Content, nil
}
