// Package search implements the Grep and Glob built-in tools.
package search

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/sparrowlabs/agentkit/internal/agent"
	"github.com/sparrowlabs/agentkit/internal/tools/files"
)

const defaultMaxResults = 200

// GrepTool streams matching lines from files under a root directory using a
// buffered line reader, never slurping a whole file into memory.
type GrepTool struct {
	resolver files.Resolver
}

// NewGrepTool creates a grep tool scoped to the workspace.
func NewGrepTool(root string) *GrepTool {
	return &GrepTool{resolver: files.Resolver{Root: root}}
}

// Name returns the tool name.
func (t *GrepTool) Name() string { return "grep" }

// Capabilities reports read, auto-approvable under accept_edits.
func (t *GrepTool) Capabilities() agent.Capability { return agent.CapRead }

// Description returns the tool description.
func (t *GrepTool) Description() string {
	return "Search files under a path for a regular expression, streaming matches line by line."
}

// Schema returns the JSON schema for the tool parameters.
func (t *GrepTool) Schema() json.RawMessage {
	schema := map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"pattern": map[string]interface{}{
				"type":        "string",
				"description": "Regular expression to search for.",
			},
			"path": map[string]interface{}{
				"type":        "string",
				"description": "File or directory to search (default: workspace root).",
			},
			"file_pattern": map[string]interface{}{
				"type":        "string",
				"description": "Glob filter applied to file names, e.g. '*.go'.",
			},
			"ignore_case": map[string]interface{}{
				"type":        "boolean",
				"description": "Case-insensitive match.",
			},
			"max_results": map[string]interface{}{
				"type":        "integer",
				"description": "Maximum number of matching lines to return (default 200).",
				"minimum":     1,
			},
		},
		"required": []string{"pattern"},
	}
	payload, err := json.Marshal(schema)
	if err != nil {
		return json.RawMessage(`{"type":"object"}`)
	}
	return payload
}

type grepMatch struct {
	Path string `json:"path"`
	Line int    `json:"line"`
	Text string `json:"text"`
}

// Execute streams matches from the target file(s).
func (t *GrepTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var input struct {
		Pattern     string `json:"pattern"`
		Path        string `json:"path"`
		FilePattern string `json:"file_pattern"`
		IgnoreCase  bool   `json:"ignore_case"`
		MaxResults  int    `json:"max_results"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return errorResult(fmt.Sprintf("Invalid parameters: %v", err)), nil
	}
	if strings.TrimSpace(input.Pattern) == "" {
		return errorResult("pattern is required"), nil
	}

	pattern := input.Pattern
	if input.IgnoreCase {
		pattern = "(?i)" + pattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return errorResult(fmt.Sprintf("invalid pattern: %v", err)), nil
	}

	maxResults := input.MaxResults
	if maxResults <= 0 {
		maxResults = defaultMaxResults
	}

	searchPath := input.Path
	if searchPath == "" {
		searchPath = "."
	}
	root, err := t.resolver.Resolve(searchPath)
	if err != nil {
		return errorResult(err.Error()), nil
	}

	var matches []grepMatch
	truncated := false

	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			return nil
		}
		if input.FilePattern != "" {
			if ok, _ := filepath.Match(input.FilePattern, d.Name()); !ok {
				return nil
			}
		}
		if len(matches) >= maxResults {
			truncated = true
			return nil
		}
		return grepFile(path, root, re, maxResults, &matches, &truncated)
	})
	if walkErr != nil && walkErr != context.Canceled {
		return errorResult(fmt.Sprintf("search failed: %v", walkErr)), nil
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Path != matches[j].Path {
			return matches[i].Path < matches[j].Path
		}
		return matches[i].Line < matches[j].Line
	})

	result := map[string]interface{}{
		"matches":   matches,
		"count":     len(matches),
		"truncated": truncated,
	}
	payload, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return errorResult(fmt.Sprintf("encode result: %v", err)), nil
	}
	return &agent.ToolResult{Content: string(payload)}, nil
}

func grepFile(path, root string, re *regexp.Regexp, maxResults int, matches *[]grepMatch, truncated *bool) error {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNum := 0
	rel, err := filepath.Rel(root, path)
	if err != nil {
		rel = path
	}
	for scanner.Scan() {
		lineNum++
		if len(*matches) >= maxResults {
			*truncated = true
			return nil
		}
		line := scanner.Text()
		if re.MatchString(line) {
			*matches = append(*matches, grepMatch{Path: rel, Line: lineNum, Text: line})
		}
	}
	return nil
}

func errorResult(message string) *agent.ToolResult {
	payload, err := json.Marshal(map[string]string{"error": message})
	if err != nil {
		return &agent.ToolResult{Content: message, IsError: true}
	}
	return &agent.ToolResult{Content: string(payload), IsError: true}
}
