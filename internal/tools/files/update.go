package files

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/sparrowlabs/agentkit/internal/agent"
)

// replacement is one line-range substitution. StartLine/EndLine are 1-based
// and inclusive, matching ReadTool's line numbering. StartLine == EndLine+1
// (i.e. an empty range starting right after the prior line) inserts
// NewContent before StartLine without removing any existing line.
type replacement struct {
	StartLine  int    `json:"start_line"`
	EndLine    int    `json:"end_line"`
	NewContent string `json:"new_content"`
}

// UpdateTool replaces one or more 1-based, inclusive line ranges in a file.
// Overlapping ranges within a single call are rejected so the result is
// unambiguous regardless of application order.
type UpdateTool struct {
	resolver Resolver
	tracker  *FileTracker
}

// NewUpdateTool creates an update tool scoped to the workspace.
func NewUpdateTool(cfg Config) *UpdateTool {
	return &UpdateTool{resolver: Resolver{Root: cfg.Workspace}, tracker: cfg.Tracker}
}

// Name returns the tool name.
func (t *UpdateTool) Name() string {
	return "update"
}

// Capabilities reports write, auto-approvable under accept_edits.
func (t *UpdateTool) Capabilities() agent.Capability {
	return agent.CapWrite
}

// Description returns the tool description.
func (t *UpdateTool) Description() string {
	return "Replace one or more 1-based, inclusive line ranges in a file the model has already read."
}

// Schema returns the JSON schema for the tool parameters.
func (t *UpdateTool) Schema() json.RawMessage {
	rangeSchema := map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"start_line": map[string]interface{}{
				"type":        "integer",
				"description": "1-based first line of the range to replace.",
				"minimum":     1,
			},
			"end_line": map[string]interface{}{
				"type":        "integer",
				"description": "1-based last line of the range to replace, inclusive. Set to start_line-1 to insert before start_line without deleting.",
				"minimum":     0,
			},
			"new_content": map[string]interface{}{
				"type":        "string",
				"description": "Text replacing the range (may be multi-line or empty to delete).",
			},
		},
		"required": []string{"start_line", "end_line", "new_content"},
	}
	schema := map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"file_path": map[string]interface{}{
				"type":        "string",
				"description": "Path to the file to update (relative to workspace).",
			},
			"start_line":  rangeSchema["properties"].(map[string]interface{})["start_line"],
			"end_line":    rangeSchema["properties"].(map[string]interface{})["end_line"],
			"new_content": rangeSchema["properties"].(map[string]interface{})["new_content"],
			"replacements": map[string]interface{}{
				"type":        "array",
				"description": "Multiple non-overlapping line-range replacements, applied together.",
				"items":       rangeSchema,
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

// Execute applies the requested line-range replacements.
func (t *UpdateTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	_ = ctx
	var input struct {
		Path         string        `json:"file_path"`
		StartLine    int           `json:"start_line"`
		EndLine      int           `json:"end_line"`
		NewContent   string        `json:"new_content"`
		Replacements []replacement `json:"replacements"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return toolError(fmt.Sprintf("Invalid parameters: %v", err)), nil
	}
	if strings.TrimSpace(input.Path) == "" {
		return toolError("file_path is required"), nil
	}

	replacements := input.Replacements
	if len(replacements) == 0 {
		if input.StartLine == 0 {
			return toolError("start_line is required when replacements is omitted"), nil
		}
		replacements = []replacement{{
			StartLine:  input.StartLine,
			EndLine:    input.EndLine,
			NewContent: input.NewContent,
		}}
	}

	for _, r := range replacements {
		if r.StartLine < 1 {
			return toolError("start_line must be >= 1"), nil
		}
		if r.EndLine < r.StartLine-1 {
			return toolError("end_line must be >= start_line-1"), nil
		}
	}
	if err := rejectOverlaps(replacements); err != nil {
		return toolError(err.Error()), nil
	}

	resolved, err := t.resolver.Resolve(input.Path)
	if err != nil {
		return toolError(err.Error()), nil
	}

	if t.tracker != nil {
		if err := t.tracker.CheckUpdate(resolved); err != nil {
			return toolError(err.Error()), nil
		}
	}

	file, err := os.Open(resolved)
	if err != nil {
		return toolError(fmt.Sprintf("open file: %v", err)), nil
	}
	var original []string
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		original = append(original, scanner.Text())
	}
	scanErr := scanner.Err()
	file.Close()
	if scanErr != nil {
		return toolError(fmt.Sprintf("read file: %v", scanErr)), nil
	}

	sorted := append([]replacement(nil), replacements...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].StartLine < sorted[j].StartLine })

	var out []string
	cursor := 1 // next unconsumed original line, 1-based
	for _, r := range sorted {
		if r.StartLine > cursor {
			out = append(out, original[cursor-1:r.StartLine-1]...)
		}
		if r.NewContent != "" {
			out = append(out, strings.Split(r.NewContent, "\n")...)
		}
		cursor = r.EndLine + 1
		if cursor < r.StartLine {
			cursor = r.StartLine
		}
	}
	if cursor-1 < len(original) {
		out = append(out, original[cursor-1:]...)
	}

	content := strings.Join(out, "\n")
	if len(original) > 0 {
		content += "\n"
	}
	if err := os.WriteFile(resolved, []byte(content), 0o644); err != nil {
		return toolError(fmt.Sprintf("write file: %v", err)), nil
	}

	if t.tracker != nil {
		t.tracker.RecordUpdate(resolved)
	}

	result := map[string]interface{}{
		"path":         input.Path,
		"replacements": len(replacements),
		"lines":        len(out),
	}
	payload, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return toolError(fmt.Sprintf("encode result: %v", err)), nil
	}
	return &agent.ToolResult{Content: string(payload)}, nil
}

// rejectOverlaps returns an error if any two ranges share a line. Adjacent
// insert points (end_line == start_line-1) never overlap with anything.
func rejectOverlaps(rs []replacement) error {
	sorted := append([]replacement(nil), rs...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].StartLine < sorted[j].StartLine })
	for i := 1; i < len(sorted); i++ {
		prev, cur := sorted[i-1], sorted[i]
		if prev.EndLine >= prev.StartLine && cur.StartLine <= prev.EndLine {
			return fmt.Errorf("overlapping replacements: lines %d-%d and %d-%d", prev.StartLine, prev.EndLine, cur.StartLine, cur.EndLine)
		}
	}
	return nil
}
