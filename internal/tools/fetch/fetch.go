// Package fetch implements the HTTP(S) fetch built-in tool.
package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sparrowlabs/agentkit/internal/agent"
)

const (
	// DefaultTimeout applies when the caller does not specify one.
	DefaultTimeout = 30 * time.Second
	// MaxTimeout is the hard cap a caller-supplied timeout is clamped to.
	MaxTimeout = 120 * time.Second
	// MaxBodyBytes bounds how much of the response body is read.
	MaxBodyBytes = 1 << 20
)

// Tool fetches an HTTP(S) URL and returns its body, status, and headers.
type Tool struct {
	client *http.Client
}

// New creates a fetch tool. A zero-value Tool is usable; New exists for
// parity with the package's other constructors and future client tuning.
func New() *Tool {
	return &Tool{client: &http.Client{}}
}

// Name returns the tool name.
func (t *Tool) Name() string { return "web_fetch" }

// Capabilities reports network access; never auto-approved under accept_edits.
func (t *Tool) Capabilities() agent.Capability { return agent.CapNetwork }

// Description returns the tool description.
func (t *Tool) Description() string {
	return "Fetch an http(s) URL and return its status, headers, and body (truncated to 1MB)."
}

// Schema returns the JSON schema for the tool parameters.
func (t *Tool) Schema() json.RawMessage {
	schema := map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"url": map[string]interface{}{
				"type":        "string",
				"description": "http or https URL to fetch.",
			},
			"headers": map[string]interface{}{
				"type":        "object",
				"description": "Optional request headers.",
			},
			"timeout": map[string]interface{}{
				"type":        "integer",
				"description": "Timeout in seconds (default 30, hard cap 120).",
				"minimum":     1,
			},
		},
		"required": []string{"url"},
	}
	payload, err := json.Marshal(schema)
	if err != nil {
		return json.RawMessage(`{"type":"object"}`)
	}
	return payload
}

// Execute performs the HTTP(S) request.
func (t *Tool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var input struct {
		URL     string            `json:"url"`
		Headers map[string]string `json:"headers"`
		Timeout int               `json:"timeout"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return errorResult(fmt.Sprintf("Invalid parameters: %v", err)), nil
	}
	if strings.TrimSpace(input.URL) == "" {
		return errorResult("url is required"), nil
	}

	parsed, err := url.Parse(input.URL)
	if err != nil {
		return errorResult(fmt.Sprintf("invalid url: %v", err)), nil
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return errorResult("only http and https URLs are supported"), nil
	}

	timeout := DefaultTimeout
	if input.Timeout > 0 {
		timeout = time.Duration(input.Timeout) * time.Second
	}
	if timeout > MaxTimeout {
		timeout = MaxTimeout
	}

	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, parsed.String(), nil)
	if err != nil {
		return errorResult(fmt.Sprintf("build request: %v", err)), nil
	}
	for k, v := range input.Headers {
		req.Header.Set(k, v)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return errorResult(fmt.Sprintf("request failed: %v", err)), nil
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxBodyBytes))
	if err != nil {
		return errorResult(fmt.Sprintf("read response: %v", err)), nil
	}

	headers := map[string]string{}
	for k := range resp.Header {
		headers[k] = resp.Header.Get(k)
	}

	result := map[string]interface{}{
		"status":      resp.StatusCode,
		"headers":     headers,
		"body":        string(body),
		"truncated":   resp.ContentLength > int64(len(body)) && resp.ContentLength > 0,
	}
	payload, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return errorResult(fmt.Sprintf("encode result: %v", err)), nil
	}
	return &agent.ToolResult{Content: string(payload)}, nil
}

func errorResult(message string) *agent.ToolResult {
	payload, err := json.Marshal(map[string]string{"error": message})
	if err != nil {
		return &agent.ToolResult{Content: message, IsError: true}
	}
	return &agent.ToolResult{Content: string(payload), IsError: true}
}
