// Package javascript implements the sandboxed-JS-engine built-in tool.
package javascript

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/dop251/goja"
	"github.com/sparrowlabs/agentkit/internal/agent"
)

// DefaultTimeout bounds how long a single script may run before it is
// interrupted.
const DefaultTimeout = 5 * time.Second

var identifierPattern = regexp.MustCompile(`^[A-Za-z_$][A-Za-z0-9_$]*$`)

// ToolHistoryEntry is one prior tool call/result exposed to the script as a
// global variable, keyed by a sanitized form of its tool_call_id.
type ToolHistoryEntry struct {
	ID     string
	Name   string
	Input  json.RawMessage
	Output string
}

// Tool executes JavaScript in a sandboxed goja VM. Prior tool history is
// injected as global variables so a script can post-process earlier results
// without re-running the tools that produced them.
type Tool struct {
	// History supplies the current turn's tool history at execution time.
	History func() []ToolHistoryEntry
}

// New creates a JavaScript sandbox tool. historyFn may be nil.
func New(historyFn func() []ToolHistoryEntry) *Tool {
	return &Tool{History: historyFn}
}

// Name returns the tool name (the "sandbox" alias resolves to this).
func (t *Tool) Name() string { return "execute_code" }

// Capabilities reports exec; never auto-approved under accept_edits.
func (t *Tool) Capabilities() agent.Capability { return agent.CapExec }

// Description returns the tool description.
func (t *Tool) Description() string {
	return "Execute JavaScript in a sandboxed engine. Prior tool results are available as global variables; an optional 'input' value is available as the global `input`."
}

// Schema returns the JSON schema for the tool parameters.
func (t *Tool) Schema() json.RawMessage {
	schema := map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"code": map[string]interface{}{
				"type":        "string",
				"description": "JavaScript source to execute. The last expression's value becomes the result.",
			},
			"input": map[string]interface{}{
				"description": "Optional value exposed to the script as the global `input`.",
			},
		},
		"required": []string{"code"},
	}
	payload, err := json.Marshal(schema)
	if err != nil {
		return json.RawMessage(`{"type":"object"}`)
	}
	return payload
}

// Execute runs the script in a fresh VM, bounded by DefaultTimeout.
func (t *Tool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var input struct {
		Code  string          `json:"code"`
		Input json.RawMessage `json:"input"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return errorResult(fmt.Sprintf("Invalid parameters: %v", err)), nil
	}
	if input.Code == "" {
		return errorResult("code is required"), nil
	}

	vm := goja.New()

	if len(input.Input) > 0 {
		var decoded interface{}
		if err := json.Unmarshal(input.Input, &decoded); err == nil {
			_ = vm.Set("input", decoded)
		}
	}

	if t.History != nil {
		for _, entry := range t.History() {
			name := sanitizeIdentifier(entry.ID)
			if name == "" {
				continue
			}
			var decodedInput interface{}
			_ = json.Unmarshal(entry.Input, &decodedInput)
			_ = vm.Set(name, map[string]interface{}{
				"name":   entry.Name,
				"input":  decodedInput,
				"output": entry.Output,
			})
		}
	}

	done := make(chan struct{})
	var value goja.Value
	var runErr error

	go func() {
		defer close(done)
		value, runErr = vm.RunString(input.Code)
	}()

	timeout := DefaultTimeout
	select {
	case <-done:
	case <-time.After(timeout):
		vm.Interrupt("execution timed out")
		<-done
		return errorResult(fmt.Sprintf("script timed out after %v", timeout)), nil
	case <-ctx.Done():
		vm.Interrupt("cancelled")
		<-done
		return errorResult("cancelled"), nil
	}

	if runErr != nil {
		return errorResult(fmt.Sprintf("script error: %v", runErr)), nil
	}

	exported := value.Export()
	payload, err := json.MarshalIndent(map[string]interface{}{"result": exported}, "", "  ")
	if err != nil {
		return &agent.ToolResult{Content: fmt.Sprintf("%v", exported)}, nil
	}
	return &agent.ToolResult{Content: string(payload)}, nil
}

func sanitizeIdentifier(id string) string {
	clean := "tool_" + regexp.MustCompile(`[^A-Za-z0-9_$]`).ReplaceAllString(id, "_")
	if !identifierPattern.MatchString(clean) {
		return ""
	}
	return clean
}

func errorResult(message string) *agent.ToolResult {
	payload, err := json.Marshal(map[string]string{"error": message})
	if err != nil {
		return &agent.ToolResult{Content: message, IsError: true}
	}
	return &agent.ToolResult{Content: string(payload), IsError: true}
}
