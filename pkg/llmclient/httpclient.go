package llmclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/meridianflow/meridian/pkg/registry"
)

// HTTPClient is the default Client implementation: it POSTs an
// OpenAI-compatible chat-completions request to the endpoint configured for
// the model profile's provider and returns the first choice's message
// content. Concrete provider SDKs are deliberately not wired (§1) — this
// talks to any endpoint implementing the same wire shape (vLLM, LiteLLM,
// Azure OpenAI, OpenAI itself).
type HTTPClient struct {
	HTTP *http.Client
	// Endpoints maps a model profile's Provider to a chat-completions URL.
	Endpoints map[string]string
	// APIKeyEnvVars maps a Provider to the environment variable holding its key.
	APIKeyEnvVars map[string]string
}

// NewHTTPClient builds an HTTPClient with built-in default provider
// endpoints and API key env vars.
func NewHTTPClient(httpClient *http.Client) *HTTPClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &HTTPClient{
		HTTP: httpClient,
		Endpoints: map[string]string{
			"openai":    "https://api.openai.com/v1/chat/completions",
			"anthropic": "https://api.anthropic.com/v1/chat/completions",
			"azure":     "https://api.openai.azure.com/v1/chat/completions",
		},
		APIKeyEnvVars: map[string]string{
			"openai":    "OPENAI_API_KEY",
			"anthropic": "ANTHROPIC_API_KEY",
			"azure":     "AZURE_OPENAI_API_KEY",
		},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	TopP        float64       `json:"top_p,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Complete implements Client by issuing one chat-completions call. A 5xx
// status or network failure is returned wrapped as a TransientError so
// RetryingClient retries it; a 4xx status and malformed responses are
// returned as-is (not retried — retrying against the same prompt won't help).
func (c *HTTPClient) Complete(ctx context.Context, profile registry.ModelProfile, prompt string) (string, error) {
	endpoint, ok := c.Endpoints[profile.Provider]
	if !ok {
		return "", fmt.Errorf("no endpoint configured for provider %q", profile.Provider)
	}

	reqBody, err := json.Marshal(chatRequest{
		Model:       profile.Model,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		Temperature: profile.Temperature,
		MaxTokens:   profile.MaxTokens,
		TopP:        profile.TopP,
	})
	if err != nil {
		return "", fmt.Errorf("encoding chat request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return "", fmt.Errorf("building chat request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if envVar, ok := c.APIKeyEnvVars[profile.Provider]; ok {
		if key := os.Getenv(envVar); key != "" {
			httpReq.Header.Set("Authorization", "Bearer "+key)
		}
	}

	resp, err := c.HTTP.Do(httpReq)
	if err != nil {
		return "", NewTransientError(fmt.Errorf("calling %s: %w", profile.Provider, err))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", NewTransientError(fmt.Errorf("reading %s response: %w", profile.Provider, err))
	}
	if resp.StatusCode >= 500 {
		return "", NewTransientError(fmt.Errorf("%s returned %s", profile.Provider, resp.Status))
	}
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("%s returned %s: %s", profile.Provider, resp.Status, respBody)
	}

	var parsed chatResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("decoding %s response: %w", profile.Provider, err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("%s returned no choices", profile.Provider)
	}
	return parsed.Choices[0].Message.Content, nil
}
