// Package list implements the directory-listing built-in tool.
package list

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sparrowlabs/agentkit/internal/agent"
	"github.com/sparrowlabs/agentkit/internal/tools/files"
)

// Tool lists directory entries under the workspace.
type Tool struct {
	resolver files.Resolver
}

// New creates a list tool scoped to the workspace.
func New(root string) *Tool {
	return &Tool{resolver: files.Resolver{Root: root}}
}

// Name returns the tool name.
func (t *Tool) Name() string { return "list" }

// Capabilities reports read, auto-approvable under accept_edits.
func (t *Tool) Capabilities() agent.Capability { return agent.CapRead }

// Description returns the tool description.
func (t *Tool) Description() string {
	return "List the entries of a workspace directory, optionally recursively."
}

// Schema returns the JSON schema for the tool parameters.
func (t *Tool) Schema() json.RawMessage {
	schema := map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"path": map[string]interface{}{
				"type":        "string",
				"description": "Directory to list (relative to workspace).",
			},
			"recursive": map[string]interface{}{
				"type":        "boolean",
				"description": "Descend into subdirectories.",
			},
			"show_hidden": map[string]interface{}{
				"type":        "boolean",
				"description": "Include dotfiles/dot-directories.",
			},
		},
		"required": []string{"path"},
	}
	payload, err := json.Marshal(schema)
	if err != nil {
		return json.RawMessage(`{"type":"object"}`)
	}
	return payload
}

type entry struct {
	Path  string `json:"path"`
	IsDir bool   `json:"is_dir"`
	Size  int64  `json:"size,omitempty"`
}

// Execute lists the requested directory.
func (t *Tool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	_ = ctx
	var input struct {
		Path       string `json:"path"`
		Recursive  bool   `json:"recursive"`
		ShowHidden bool   `json:"show_hidden"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return errorResult(fmt.Sprintf("Invalid parameters: %v", err)), nil
	}
	if strings.TrimSpace(input.Path) == "" {
		input.Path = "."
	}

	root, err := t.resolver.Resolve(input.Path)
	if err != nil {
		return errorResult(err.Error()), nil
	}

	info, err := os.Stat(root)
	if err != nil {
		return errorResult(fmt.Sprintf("stat: %v", err)), nil
	}
	if !info.IsDir() {
		return errorResult("path is not a directory"), nil
	}

	var entries []entry
	if input.Recursive {
		err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return nil
			}
			if path == root {
				return nil
			}
			if !input.ShowHidden && strings.HasPrefix(d.Name(), ".") {
				if d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			rel, relErr := filepath.Rel(root, path)
			if relErr != nil {
				rel = path
			}
			size := int64(0)
			if fi, statErr := d.Info(); statErr == nil {
				size = fi.Size()
			}
			entries = append(entries, entry{Path: rel, IsDir: d.IsDir(), Size: size})
			return nil
		})
		if err != nil {
			return errorResult(fmt.Sprintf("list failed: %v", err)), nil
		}
	} else {
		dirEntries, err := os.ReadDir(root)
		if err != nil {
			return errorResult(fmt.Sprintf("read dir: %v", err)), nil
		}
		for _, d := range dirEntries {
			if !input.ShowHidden && strings.HasPrefix(d.Name(), ".") {
				continue
			}
			size := int64(0)
			if fi, statErr := d.Info(); statErr == nil {
				size = fi.Size()
			}
			entries = append(entries, entry{Path: d.Name(), IsDir: d.IsDir(), Size: size})
		}
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })

	result := map[string]interface{}{
		"path":    input.Path,
		"entries": entries,
		"count":   len(entries),
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
