package search

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sparrowlabs/agentkit/internal/agent"
	"github.com/sparrowlabs/agentkit/internal/tools/files"
)

// GlobTool lists paths under the workspace matching a glob pattern,
// supporting "**" recursive segments.
type GlobTool struct {
	resolver files.Resolver
	root     string
}

// NewGlobTool creates a glob tool scoped to the workspace.
func NewGlobTool(root string) *GlobTool {
	return &GlobTool{resolver: files.Resolver{Root: root}, root: root}
}

// Name returns the tool name.
func (t *GlobTool) Name() string { return "glob" }

// Capabilities reports read, auto-approvable under accept_edits.
func (t *GlobTool) Capabilities() agent.Capability { return agent.CapRead }

// Description returns the tool description.
func (t *GlobTool) Description() string {
	return "List workspace paths matching a glob pattern (supports ** for recursive matches)."
}

// Schema returns the JSON schema for the tool parameters.
func (t *GlobTool) Schema() json.RawMessage {
	schema := map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"pattern": map[string]interface{}{
				"type":        "string",
				"description": "Glob pattern, e.g. 'src/**/*.go'.",
			},
			"path": map[string]interface{}{
				"type":        "string",
				"description": "Directory the pattern is relative to (default: workspace root).",
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

// Execute expands the glob pattern against the filesystem.
func (t *GlobTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	_ = ctx
	var input struct {
		Pattern string `json:"pattern"`
		Path    string `json:"path"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return errorResult(fmt.Sprintf("Invalid parameters: %v", err)), nil
	}
	if strings.TrimSpace(input.Pattern) == "" {
		return errorResult("pattern is required"), nil
	}

	base := input.Path
	if base == "" {
		base = "."
	}
	baseAbs, err := t.resolver.Resolve(base)
	if err != nil {
		return errorResult(err.Error()), nil
	}

	var matches []string
	err = filepath.WalkDir(baseAbs, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		rel, relErr := filepath.Rel(baseAbs, path)
		if relErr != nil {
			return nil
		}
		if rel == "." {
			return nil
		}
		if matchGlob(input.Pattern, filepath.ToSlash(rel)) {
			matches = append(matches, rel)
		}
		return nil
	})
	if err != nil {
		return errorResult(fmt.Sprintf("glob failed: %v", err)), nil
	}
	sort.Strings(matches)

	result := map[string]interface{}{
		"matches": matches,
		"count":   len(matches),
	}
	payload, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return errorResult(fmt.Sprintf("encode result: %v", err)), nil
	}
	return &agent.ToolResult{Content: string(payload)}, nil
}

// matchGlob supports "**" as a path-spanning wildcard in addition to the
// single-segment "*"/"?" semantics of filepath.Match.
func matchGlob(pattern, path string) bool {
	if !strings.Contains(pattern, "**") {
		ok, _ := filepath.Match(pattern, path)
		return ok
	}
	parts := strings.SplitN(pattern, "**", 2)
	prefix := strings.TrimSuffix(parts[0], "/")
	suffix := strings.TrimPrefix(parts[1], "/")

	if prefix != "" && !strings.HasPrefix(path, prefix) {
		return false
	}
	remainder := strings.TrimPrefix(path, prefix)
	remainder = strings.TrimPrefix(remainder, "/")

	if suffix == "" {
		return true
	}
	if ok, _ := filepath.Match(suffix, remainder); ok {
		return true
	}
	// suffix may itself need to match only the trailing segment(s).
	segments := strings.Split(remainder, "/")
	for i := range segments {
		candidate := strings.Join(segments[i:], "/")
		if ok, _ := filepath.Match(suffix, candidate); ok {
			return true
		}
	}
	return false
}
