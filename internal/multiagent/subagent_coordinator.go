package multiagent

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sparrowlabs/agentkit/internal/agent"
	"github.com/sparrowlabs/agentkit/internal/sessions"
	"github.com/sparrowlabs/agentkit/pkg/models"
)

// SubAgentTask describes one independent unit of work to hand to a fresh,
// isolated agent session. Unlike a handoff, a sub-agent task never shares
// history with its parent: it starts cold and reports back a single result.
type SubAgentTask struct {
	// ID uniquely identifies the task within a batch. Generated if empty.
	ID string

	// Description is a short human-readable label for progress reporting.
	Description string

	// Prompt is the task submitted to the sub-agent as its first user message.
	Prompt string

	// SystemPrompt overrides the coordinator's default system prompt for this task.
	SystemPrompt string

	// Tools restricts the sub-agent to a subset of the coordinator's tool
	// catalog by name. Empty means every tool the coordinator was given.
	Tools []string

	// Timeout bounds how long this task may run. Nil means unbounded (subject
	// to the parent context); a non-nil zero duration fails the task
	// immediately without invoking the model.
	Timeout *time.Duration

	// MaxTurns caps the sub-agent's agentic loop iterations. 0 uses the
	// runtime default.
	MaxTurns int

	// SummarizeResult requests a one-shot summarization pass over long output.
	SummarizeResult bool
}

// SubAgentResult is the outcome of running a single SubAgentTask.
type SubAgentResult struct {
	ID            string
	Description   string
	Summary       string
	FullOutput    string
	Success       bool
	Error         string
	Duration      time.Duration
	TurnCount     int
	ToolCallCount int
}

// SubAgentBatchResult aggregates every task result from one coordinator run.
type SubAgentBatchResult struct {
	Results       []SubAgentResult
	TotalDuration time.Duration
}

// SubAgentProgressStage names a lifecycle point of a sub-agent task.
type SubAgentProgressStage string

const (
	SubAgentStarted         SubAgentProgressStage = "started"
	SubAgentToolCall        SubAgentProgressStage = "tool_call"
	SubAgentMessageReceived SubAgentProgressStage = "message_received"
	SubAgentCompleted       SubAgentProgressStage = "completed"
	SubAgentFailed          SubAgentProgressStage = "failed"
)

// SubAgentProgressEvent is delivered best-effort to a coordinator's progress callback.
type SubAgentProgressEvent struct {
	TaskID string
	Stage  SubAgentProgressStage
	Detail string
}

// SubAgentProgressFunc receives progress notifications. The coordinator calls
// it synchronously from worker goroutines with panics recovered, so a slow or
// misbehaving callback degrades but never aborts task progression.
type SubAgentProgressFunc func(SubAgentProgressEvent)

// SubAgentCoordinatorConfig configures a SubAgentCoordinator.
type SubAgentCoordinatorConfig struct {
	// ConcurrencyLimit bounds how many tasks run at once. <= 0 defaults to 3.
	ConcurrencyLimit int

	// Provider is the LLM backend each sub-agent's Runtime is built on.
	Provider agent.LLMProvider

	// Model overrides the provider's default model for sub-agent turns.
	Model string

	// SummaryProvider backs the optional result-summarization pass. Falls
	// back to Provider when nil.
	SummaryProvider agent.LLMProvider

	// SummaryModel overrides the model used for summarization, typically a
	// cheaper/smaller model than Model.
	SummaryModel string

	// Tools is the full catalog of tools available to sub-agents; a task's
	// Tools field (if set) narrows this per-task.
	Tools []agent.Tool

	// Progress, if set, receives best-effort lifecycle notifications.
	Progress SubAgentProgressFunc
}

const (
	defaultSubAgentConcurrency = 3

	// summarizeThreshold is the FullOutput length above which SummarizeResult
	// triggers a summarization pass.
	summarizeThreshold = 500

	// summarizeInputCap bounds how much of FullOutput is sent to the summarizer.
	summarizeInputCap = 10000

	summarizerSystemPrompt = "You are a concise summarizer. Summarize the assistant output below in a " +
		"few sentences, preserving the key findings and any action items. Do not add commentary " +
		"about the summarization itself."
)

// SubAgentCoordinator runs a batch of independent SubAgentTasks in parallel,
// each against its own fresh agent.Runtime and in-memory session, bounded by
// a configurable concurrency limit. Sub-agent failures are isolated: one
// task's failure never cancels its siblings or fails the batch.
type SubAgentCoordinator struct {
	cfg SubAgentCoordinatorConfig
}

// NewSubAgentCoordinator creates a coordinator from cfg.
func NewSubAgentCoordinator(cfg SubAgentCoordinatorConfig) *SubAgentCoordinator {
	if cfg.ConcurrencyLimit <= 0 {
		cfg.ConcurrencyLimit = defaultSubAgentConcurrency
	}
	return &SubAgentCoordinator{cfg: cfg}
}

// Run executes every task to completion (or timeout/cancellation) and
// returns a batch result. It only returns a non-nil error for configuration
// problems that prevent any task from running at all; individual task
// failures are captured in their SubAgentResult instead.
//
// Results are ordered by completion, not by submission order: the task that
// finishes first occupies Results[0].
func (c *SubAgentCoordinator) Run(ctx context.Context, tasks []SubAgentTask) (*SubAgentBatchResult, error) {
	if c.cfg.Provider == nil {
		return nil, fmt.Errorf("subagent coordinator: no provider configured")
	}
	start := time.Now()
	if len(tasks) == 0 {
		return &SubAgentBatchResult{TotalDuration: time.Since(start)}, nil
	}

	limit := c.cfg.ConcurrencyLimit
	if limit > len(tasks) {
		limit = len(tasks)
	}

	queue := make(chan SubAgentTask, len(tasks))
	for _, t := range tasks {
		if t.ID == "" {
			t.ID = uuid.NewString()
		}
		queue <- t
	}
	close(queue)

	resultsCh := make(chan SubAgentResult, len(tasks))
	var wg sync.WaitGroup
	for i := 0; i < limit; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for task := range queue {
				resultsCh <- c.runTask(ctx, task)
			}
		}()
	}

	wg.Wait()
	close(resultsCh)

	results := make([]SubAgentResult, 0, len(tasks))
	for r := range resultsCh {
		results = append(results, r)
	}

	return &SubAgentBatchResult{
		Results:       results,
		TotalDuration: time.Since(start),
	}, nil
}

func (c *SubAgentCoordinator) runTask(parent context.Context, task SubAgentTask) SubAgentResult {
	start := time.Now()
	c.emitProgress(task.ID, SubAgentStarted, task.Description)

	if task.Timeout != nil && *task.Timeout <= 0 {
		res := SubAgentResult{
			ID:          task.ID,
			Description: task.Description,
			Success:     false,
			Error:       "task timed out: zero timeout configured, model never invoked",
			Duration:    time.Since(start),
		}
		c.emitProgress(task.ID, SubAgentFailed, res.Error)
		return res
	}

	ctx := parent
	if task.Timeout != nil && *task.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(parent, *task.Timeout)
		defer cancel()
	}

	store := sessions.NewMemoryStore()
	runtime := agent.NewRuntime(c.cfg.Provider, store)
	if c.cfg.Model != "" {
		runtime.SetDefaultModel(c.cfg.Model)
	}
	if task.SystemPrompt != "" {
		runtime.SetSystemPrompt(task.SystemPrompt)
	}
	if task.MaxTurns > 0 {
		runtime.SetMaxIterations(task.MaxTurns)
	}
	for _, tool := range c.cfg.Tools {
		if len(task.Tools) == 0 || containsValue(task.Tools, tool.Name()) {
			runtime.RegisterTool(tool)
		}
	}

	session := &models.Session{
		ID:        uuid.NewString(),
		AgentID:   "subagent:" + task.ID,
		CreatedAt: start,
		UpdatedAt: start,
	}
	if err := store.Create(ctx, session); err != nil {
		return c.failure(task, start, fmt.Sprintf("failed to create sub-agent session: %v", err))
	}

	msg := &models.Message{
		ID:        uuid.NewString(),
		SessionID: session.ID,
		Role:      models.RoleUser,
		Content:   task.Prompt,
		CreatedAt: start,
	}

	chunks, err := runtime.Process(ctx, session, msg)
	if err != nil {
		return c.failure(task, start, err.Error())
	}

	var output strings.Builder
	toolCallCount := 0
	var runErr error

consume:
	for {
		select {
		case <-ctx.Done():
			runErr = fmt.Errorf("task timed out after %s", time.Since(start).Round(time.Millisecond))
			break consume
		case chunk, ok := <-chunks:
			if !ok {
				break consume
			}
			if chunk.Error != nil {
				runErr = chunk.Error
				break consume
			}
			if chunk.Text != "" {
				output.WriteString(chunk.Text)
				c.emitProgress(task.ID, SubAgentMessageReceived, "")
			}
			if chunk.ToolResult != nil {
				toolCallCount++
				c.emitProgress(task.ID, SubAgentToolCall, "")
			}
		}
	}

	if runErr != nil {
		res := c.failure(task, start, runErr.Error())
		res.FullOutput = output.String()
		return res
	}

	fullOutput := output.String()
	summary := ""
	if task.SummarizeResult && len(fullOutput) > summarizeThreshold {
		summary = c.summarize(parent, fullOutput)
		if summary == "" {
			summary = fullOutput[:summarizeThreshold]
		}
	}

	res := SubAgentResult{
		ID:            task.ID,
		Description:   task.Description,
		Summary:       summary,
		FullOutput:    fullOutput,
		Success:       true,
		Duration:      time.Since(start),
		TurnCount:     toolCallCount + 1,
		ToolCallCount: toolCallCount,
	}
	c.emitProgress(task.ID, SubAgentCompleted, "")
	return res
}

func (c *SubAgentCoordinator) failure(task SubAgentTask, start time.Time, errMsg string) SubAgentResult {
	c.emitProgress(task.ID, SubAgentFailed, errMsg)
	return SubAgentResult{
		ID:          task.ID,
		Description: task.Description,
		Success:     false,
		Error:       errMsg,
		Duration:    time.Since(start),
	}
}

// summarize runs a one-shot summarization query against SummaryProvider (or
// Provider as fallback) over at most the first summarizeInputCap characters
// of output. Returns "" on any failure so callers fall back to a raw excerpt.
func (c *SubAgentCoordinator) summarize(ctx context.Context, output string) string {
	provider := c.cfg.SummaryProvider
	if provider == nil {
		provider = c.cfg.Provider
	}
	if provider == nil {
		return ""
	}

	input := output
	if len(input) > summarizeInputCap {
		input = input[:summarizeInputCap]
	}

	req := &agent.CompletionRequest{
		Model:  c.cfg.SummaryModel,
		System: summarizerSystemPrompt,
		Messages: []agent.CompletionMessage{
			{Role: "user", Content: input},
		},
		MaxTokens: 512,
	}

	chunks, err := provider.Complete(ctx, req)
	if err != nil {
		return ""
	}

	var summary strings.Builder
	for chunk := range chunks {
		if chunk.Error != nil {
			return ""
		}
		summary.WriteString(chunk.Text)
	}
	return strings.TrimSpace(summary.String())
}

func (c *SubAgentCoordinator) emitProgress(taskID string, stage SubAgentProgressStage, detail string) {
	if c.cfg.Progress == nil {
		return
	}
	defer func() { _ = recover() }()
	c.cfg.Progress(SubAgentProgressEvent{TaskID: taskID, Stage: stage, Detail: detail})
}
