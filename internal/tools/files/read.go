package files

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/sparrowlabs/agentkit/internal/agent"
)

// Config controls filesystem tool defaults.
type Config struct {
	Workspace    string
	MaxReadBytes int
	// Tracker enforces the read-before-write invariant across Read/Write/Update.
	// A nil Tracker disables the invariant (every mutation is allowed).
	Tracker *FileTracker
}

// ReadTool implements a safe, line-oriented file reader. Line numbering is
// 1-based and shared with UpdateTool so that an offset/limit pair returned
// by Read addresses the same lines Update expects for start_line/end_line.
type ReadTool struct {
	resolver   Resolver
	maxReadLen int
	tracker    *FileTracker
}

// NewReadTool creates a read tool scoped to the workspace.
func NewReadTool(cfg Config) *ReadTool {
	limit := cfg.MaxReadBytes
	if limit <= 0 {
		limit = 200000
	}
	return &ReadTool{
		resolver:   Resolver{Root: cfg.Workspace},
		maxReadLen: limit,
		tracker:    cfg.Tracker,
	}
}

// Name returns the tool name.
func (t *ReadTool) Name() string {
	return "read"
}

// Capabilities reports read as a pure observation, auto-approvable under accept_edits.
func (t *ReadTool) Capabilities() agent.Capability {
	return agent.CapRead
}

// Description returns the tool description.
func (t *ReadTool) Description() string {
	return "Read a file from the workspace, optionally restricted to a 1-based line range."
}

// Schema returns the JSON schema for the tool parameters.
func (t *ReadTool) Schema() json.RawMessage {
	schema := map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"file_path": map[string]interface{}{
				"type":        "string",
				"description": "Path to the file (relative to workspace).",
			},
			"offset": map[string]interface{}{
				"type":        "integer",
				"description": "1-based line number to start reading from (default: 1).",
				"minimum":     1,
			},
			"limit": map[string]interface{}{
				"type":        "integer",
				"description": "Maximum number of lines to return.",
				"minimum":     1,
			},
		},
		"required": []string{"file_path"},
	}
	payload, err := json.Marshal(schema)
	if err != nil {
		return json.RawMessage(`{"type":"object"}`)
	}
	return payload
}

// Execute reads a file, line-indexed and size-bounded.
func (t *ReadTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	_ = ctx
	var input struct {
		Path   string `json:"file_path"`
		Offset int    `json:"offset"`
		Limit  int    `json:"limit"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return toolError(fmt.Sprintf("Invalid parameters: %v", err)), nil
	}
	if strings.TrimSpace(input.Path) == "" {
		return toolError("file_path is required"), nil
	}
	if input.Offset < 0 {
		return toolError("offset must be >= 1"), nil
	}
	offset := input.Offset
	if offset == 0 {
		offset = 1
	}

	resolved, err := t.resolver.Resolve(input.Path)
	if err != nil {
		return toolError(err.Error()), nil
	}

	file, err := os.Open(resolved)
	if err != nil {
		return toolError(fmt.Sprintf("open file: %v", err)), nil
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var lines []string
	var totalBytes int
	lineNum := 0
	truncatedByLimit := false
	truncatedByBytes := false
	totalLines := 0
	for scanner.Scan() {
		lineNum++
		totalLines++
		if lineNum < offset {
			continue
		}
		if input.Limit > 0 && len(lines) >= input.Limit {
			truncatedByLimit = true
			continue
		}
		text := scanner.Text()
		if totalBytes+len(text) > t.maxReadLen {
			truncatedByBytes = true
			continue
		}
		totalBytes += len(text)
		lines = append(lines, fmt.Sprintf("%d\t%s", lineNum, text))
	}
	if err := scanner.Err(); err != nil {
		return toolError(fmt.Sprintf("read file: %v", err)), nil
	}

	if t.tracker != nil {
		t.tracker.RecordRead(resolved)
	}

	result := map[string]interface{}{
		"path":       input.Path,
		"content":    strings.Join(lines, "\n"),
		"start_line": offset,
		"end_line":   offset + len(lines) - 1,
		"total_lines": totalLines,
		"truncated":  truncatedByLimit || truncatedByBytes,
	}
	payload, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return toolError(fmt.Sprintf("encode result: %v", err)), nil
	}

	return &agent.ToolResult{Content: string(payload)}, nil
}

func toolError(message string) *agent.ToolResult {
	payload, err := json.Marshal(map[string]string{"error": message})
	if err != nil {
		return &agent.ToolResult{Content: message, IsError: true}
	}
	return &agent.ToolResult{Content: string(payload), IsError: true}
}
