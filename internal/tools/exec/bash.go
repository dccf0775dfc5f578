// Package exec implements the sandboxed shell-command built-in tool.
package exec

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/sparrowlabs/agentkit/internal/agent"
)

const (
	// DefaultTimeout is used when the caller does not specify one.
	DefaultTimeout = 120 * time.Second
	// MaxTimeout is the hard cap a caller-supplied timeout is clamped to.
	MaxTimeout = 600 * time.Second
)

// Config controls the shell tool's defaults.
type Config struct {
	// WorkingDirectory is the directory commands run in. Defaults to ".".
	WorkingDirectory string
}

// Tool runs shell commands via `/bin/bash -c`, capturing combined
// stdout/stderr and always appending a trailing exit-code marker.
type Tool struct {
	workDir string
}

// New creates a shell execution tool.
func New(cfg Config) *Tool {
	dir := cfg.WorkingDirectory
	if dir == "" {
		dir = "."
	}
	return &Tool{workDir: dir}
}

// Name returns the canonical tool name ("bash"/"shell" alias to this).
func (t *Tool) Name() string {
	return "exec"
}

// Capabilities reports exec; never auto-approved under accept_edits.
func (t *Tool) Capabilities() agent.Capability {
	return agent.CapExec
}

// Description returns the tool description.
func (t *Tool) Description() string {
	return "Run a shell command with /bin/bash -c and return combined stdout/stderr plus the exit code."
}

// Schema returns the JSON schema for the tool parameters.
func (t *Tool) Schema() json.RawMessage {
	schema := map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"command": map[string]interface{}{
				"type":        "string",
				"description": "Shell command to execute.",
			},
			"timeout": map[string]interface{}{
				"type":        "integer",
				"description": "Timeout in seconds (default 120, hard cap 600).",
				"minimum":     1,
			},
		},
		"required": []string{"command"},
	}
	payload, err := json.Marshal(schema)
	if err != nil {
		return json.RawMessage(`{"type":"object"}`)
	}
	return payload
}

// Execute runs the command and always appends an "[exit code: N]" marker.
func (t *Tool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var input struct {
		Command string `json:"command"`
		Timeout int    `json:"timeout"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return errorResult(fmt.Sprintf("Invalid parameters: %v", err)), nil
	}
	if strings.TrimSpace(input.Command) == "" {
		return errorResult("command is required"), nil
	}

	timeout := DefaultTimeout
	if input.Timeout > 0 {
		timeout = time.Duration(input.Timeout) * time.Second
	}
	if timeout > MaxTimeout {
		timeout = MaxTimeout
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, "/bin/bash", "-c", input.Command)
	cmd.Dir = t.workDir

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	runErr := cmd.Run()

	exitCode := 0
	if runCtx.Err() == context.DeadlineExceeded {
		out.WriteString("\ncommand timed out after " + timeout.String())
		exitCode = -1
	} else if runErr != nil {
		if exitErr, ok := runErr.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			out.WriteString("\n" + runErr.Error())
			exitCode = -1
		}
	}

	content := out.String()
	content += fmt.Sprintf("\n[exit code: %d]", exitCode)

	// A non-zero exit code is informative, not a tool-execution failure;
	// the model decides what it means. Only genuine execution failures
	// (bad params, engine errors) are reported as IsError.
	return &agent.ToolResult{Content: content}, nil
}

func errorResult(message string) *agent.ToolResult {
	return &agent.ToolResult{Content: message, IsError: true}
}
