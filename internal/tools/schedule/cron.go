// Package schedule implements the cron built-in tool: it lets the model
// register a recurring prompt against a session, replayed on a cron
// schedule until cancelled.
package schedule

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/sparrowlabs/agentkit/internal/agent"
)

// Dispatcher delivers a scheduled prompt back into the owning runtime. The
// schedule tool never calls Runtime.Process directly so it stays decoupled
// from the agent package; callers wire the two together at construction.
type Dispatcher func(ctx context.Context, sessionID, prompt string)

type scheduledJob struct {
	ID        string `json:"id"`
	SessionID string `json:"session_id"`
	Prompt    string `json:"prompt"`
	CronExpr  string `json:"cron_expr"`
	entryID   cron.EntryID
}

// Tool exposes create/list/cancel operations over an in-process cron.Cron
// scheduler. It does not persist across process restarts; a redeploy loses
// any outstanding schedules, same as the job store the runtime uses for
// async tool calls.
type Tool struct {
	mu      sync.Mutex
	c       *cron.Cron
	jobs    map[string]*scheduledJob
	dispatch Dispatcher
}

// New starts a cron scheduler (second-less, standard 5-field expressions)
// and returns a tool that lets the model manage entries on it. dispatch is
// invoked on the scheduler's own goroutine each time an entry fires.
func New(dispatch Dispatcher) *Tool {
	t := &Tool{
		c:        cron.New(),
		jobs:     make(map[string]*scheduledJob),
		dispatch: dispatch,
	}
	t.c.Start()
	return t
}

// Close stops the underlying scheduler, waiting for any in-flight entry to
// finish.
func (t *Tool) Close() {
	ctx := t.c.Stop()
	<-ctx.Done()
}

func (t *Tool) Name() string { return "cron" }

// Capabilities reports exec (it triggers future agent turns); never auto-approved under accept_edits.
func (t *Tool) Capabilities() agent.Capability { return agent.CapExec }

func (t *Tool) Description() string {
	return "Manage recurring scheduled prompts: create a cron-triggered re-prompt, list pending ones, or cancel one."
}

func (t *Tool) Schema() json.RawMessage {
	schema := map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"action": map[string]interface{}{
				"type": "string",
				"enum": []string{"create", "list", "cancel"},
			},
			"cron_expr": map[string]interface{}{
				"type":        "string",
				"description": "Standard 5-field cron expression, required for action=create.",
			},
			"session_id": map[string]interface{}{
				"type":        "string",
				"description": "Session the prompt is replayed into, required for action=create.",
			},
			"prompt": map[string]interface{}{
				"type":        "string",
				"description": "Prompt text delivered on each firing, required for action=create.",
			},
			"id": map[string]interface{}{
				"type":        "string",
				"description": "Job id, required for action=cancel.",
			},
		},
		"required": []string{"action"},
	}
	payload, err := json.Marshal(schema)
	if err != nil {
		return json.RawMessage(`{"type":"object"}`)
	}
	return payload
}

func (t *Tool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var input struct {
		Action    string `json:"action"`
		CronExpr  string `json:"cron_expr"`
		SessionID string `json:"session_id"`
		Prompt    string `json:"prompt"`
		ID        string `json:"id"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return errorResult(fmt.Sprintf("invalid parameters: %v", err))
	}

	switch input.Action {
	case "create":
		return t.create(input.CronExpr, input.SessionID, input.Prompt)
	case "list":
		return t.list()
	case "cancel":
		return t.cancel(input.ID)
	default:
		return errorResult("action must be one of create, list, cancel")
	}
}

func (t *Tool) create(cronExpr, sessionID, prompt string) (*agent.ToolResult, error) {
	if cronExpr == "" || sessionID == "" || prompt == "" {
		return errorResult("cron_expr, session_id, and prompt are all required for action=create")
	}

	job := &scheduledJob{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Prompt:    prompt,
		CronExpr:  cronExpr,
	}

	entryID, err := t.c.AddFunc(cronExpr, func() {
		if t.dispatch != nil {
			t.dispatch(context.Background(), job.SessionID, job.Prompt)
		}
	})
	if err != nil {
		return errorResult(fmt.Sprintf("invalid cron expression: %v", err))
	}
	job.entryID = entryID

	t.mu.Lock()
	t.jobs[job.ID] = job
	t.mu.Unlock()

	return okResult(map[string]interface{}{"id": job.ID, "next_run": t.c.Entry(entryID).Next})
}

func (t *Tool) list() (*agent.ToolResult, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]map[string]interface{}, 0, len(t.jobs))
	for _, job := range t.jobs {
		out = append(out, map[string]interface{}{
			"id":         job.ID,
			"session_id": job.SessionID,
			"cron_expr":  job.CronExpr,
			"next_run":   t.c.Entry(job.entryID).Next,
		})
	}
	return okResult(map[string]interface{}{"jobs": out})
}

func (t *Tool) cancel(id string) (*agent.ToolResult, error) {
	if id == "" {
		return errorResult("id is required for action=cancel")
	}
	t.mu.Lock()
	job, ok := t.jobs[id]
	if ok {
		delete(t.jobs, id)
	}
	t.mu.Unlock()
	if !ok {
		return errorResult(fmt.Sprintf("no scheduled job with id %q", id))
	}
	t.c.Remove(job.entryID)
	return okResult(map[string]interface{}{"cancelled": id})
}

func okResult(payload map[string]interface{}) (*agent.ToolResult, error) {
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return errorResult(fmt.Sprintf("encode result: %v", err))
	}
	return &agent.ToolResult{Content: string(data)}, nil
}

func errorResult(message string) (*agent.ToolResult, error) {
	data, err := json.Marshal(map[string]string{"error": message})
	if err != nil {
		return &agent.ToolResult{Content: message, IsError: true}, nil
	}
	return &agent.ToolResult{Content: string(data), IsError: true}, nil
}
