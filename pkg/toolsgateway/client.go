// Package toolsgateway defines the HTTP client contract for the external
// tools gateway service. The gateway itself (and its mock business-rule
// tools) is out of scope (spec §1) — only the Go-side client interface and
// its error taxonomy live here.
package toolsgateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/meridianflow/meridian/pkg/registry"
)

// Client invokes a tool by id against the gateway's endpoint for that tool.
type Client interface {
	Invoke(ctx context.Context, tool registry.Tool, input map[string]any) (map[string]any, error)
}

// ToolError classifies a gateway failure (§7: ToolError 404/400/timeout).
type ToolError struct {
	ToolID     string
	StatusCode int
	Err        error
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("tool %q failed (status %d): %v", e.ToolID, e.StatusCode, e.Err)
}
func (e *ToolError) Unwrap() error { return e.Err }

// IsNotFound reports whether err represents a 404 from the gateway.
func IsNotFound(err error) bool {
	var te *ToolError
	return errors.As(err, &te) && te.StatusCode == http.StatusNotFound
}

// HTTPClient is the default Client implementation: POSTs input to the
// tool's endpoint and decodes a JSON object response, with a bounded
// timeout and no retries beyond what the caller's own retry loop supplies
// (tool calls are recorded as recoverable failures in the worker loop, not
// retried transparently here).
type HTTPClient struct {
	HTTP    *http.Client
	Timeout time.Duration
}

// NewHTTPClient builds an HTTPClient with a sane default timeout.
func NewHTTPClient(timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPClient{HTTP: &http.Client{Timeout: timeout}, Timeout: timeout}
}

// Invoke POSTs input as JSON to tool.Endpoint and decodes the response body
// as a JSON object.
func (c *HTTPClient) Invoke(ctx context.Context, tool registry.Tool, input map[string]any) (map[string]any, error) {
	body, err := json.Marshal(input)
	if err != nil {
		return nil, &ToolError{ToolID: tool.ID, Err: fmt.Errorf("encoding tool input: %w", err)}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tool.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, &ToolError{ToolID: tool.ID, Err: fmt.Errorf("building request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, &ToolError{ToolID: tool.ID, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &ToolError{ToolID: tool.ID, StatusCode: resp.StatusCode, Err: fmt.Errorf("reading response: %w", err)}
	}
	if resp.StatusCode >= 400 {
		return nil, &ToolError{ToolID: tool.ID, StatusCode: resp.StatusCode, Err: fmt.Errorf("gateway returned %s", resp.Status)}
	}
	var out map[string]any
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, &ToolError{ToolID: tool.ID, StatusCode: resp.StatusCode, Err: fmt.Errorf("decoding response: %w", err)}
	}
	return out, nil
}
