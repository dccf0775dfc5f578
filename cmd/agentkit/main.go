// Package main provides a minimal reference CLI for driving the agentkit
// runtime from a terminal. It exists to exercise AgentClient/AgentLoop
// end-to-end; CLI packaging itself is outside the runtime's contract and
// callers embedding the SDK are expected to build their own entry point.
package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/sparrowlabs/agentkit/internal/agent"
	"github.com/sparrowlabs/agentkit/internal/agent/providers"
	"github.com/sparrowlabs/agentkit/internal/hooks"
	"github.com/sparrowlabs/agentkit/internal/sessions"
	"github.com/sparrowlabs/agentkit/internal/tools/browser"
	"github.com/sparrowlabs/agentkit/internal/tools/exec"
	"github.com/sparrowlabs/agentkit/internal/tools/fetch"
	"github.com/sparrowlabs/agentkit/internal/tools/files"
	"github.com/sparrowlabs/agentkit/internal/tools/javascript"
	"github.com/sparrowlabs/agentkit/internal/tools/list"
	"github.com/sparrowlabs/agentkit/internal/tools/schedule"
	"github.com/sparrowlabs/agentkit/internal/tools/search"
	"github.com/sparrowlabs/agentkit/internal/tools/subagent"
	"github.com/sparrowlabs/agentkit/pkg/models"
	"github.com/spf13/cobra"
)

var (
	version = "dev"

	workspace      string
	model          string
	maxIterations  int
	toolParallel   int
	systemPrompt   string
	permissionMode string
)

func main() {
	root := &cobra.Command{
		Use:     "agentkit",
		Short:   "Reference CLI for the agentkit agent runtime",
		Version: version,
	}

	root.PersistentFlags().StringVar(&workspace, "workspace", ".", "workspace directory exposed to file tools")
	root.PersistentFlags().StringVar(&model, "model", "claude-sonnet-4-20250514", "model identifier to request")
	root.PersistentFlags().IntVar(&maxIterations, "max-iterations", 10, "maximum tool-use iterations per query")
	root.PersistentFlags().IntVar(&toolParallel, "tool-parallelism", 4, "maximum concurrent tool executions")
	root.PersistentFlags().StringVar(&systemPrompt, "system", "", "system prompt override")
	root.PersistentFlags().StringVar(&permissionMode, "permission-mode", "ask", "tool approval gate: ask, accept_edits, or accept_all")

	root.AddCommand(newChatCommand())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newChatCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive REPL against the configured model",
		RunE:  runChat,
	}
}

func runChat(cmd *cobra.Command, args []string) error {
	apiKey := os.Getenv("ANTHROPIC_API_KEY")
	if apiKey == "" {
		return fmt.Errorf("ANTHROPIC_API_KEY is not set")
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	provider, err := providers.NewAnthropicProvider(providers.AnthropicConfig{
		APIKey:       apiKey,
		DefaultModel: model,
	})
	if err != nil {
		return fmt.Errorf("construct provider: %w", err)
	}

	hookRegistry := hooks.NewRegistry(logger)
	hookRegistry.Register(string(hooks.EventFileUploadPre), func(_ context.Context, event *hooks.Event) error {
		logger.Info("uploading attachment", "path", event.Context["path"], "size", event.Context["size"])
		return nil
	})
	hookRegistry.Register(string(hooks.EventFileUploadPost), func(_ context.Context, event *hooks.Event) error {
		logger.Info("attachment uploaded", "path", event.Context["path"], "file_id", event.Context["file_id"])
		return nil
	})
	provider.SetHooks(hookRegistry)
	toolHooks := hooks.NewToolHookManager(hookRegistry, logger)

	store := sessions.NewMemoryStore()
	opts := agent.DefaultRuntimeOptions()
	opts.MaxIterations = maxIterations
	opts.ToolParallelism = toolParallel
	opts.Logger = logger
	opts.PermissionMode = agent.PermissionMode(permissionMode)
	opts.ApprovalChecker = agent.NewApprovalChecker(nil)

	runtime := agent.NewRuntimeWithOptions(provider, store, opts)
	runtime.SetDefaultModel(model)
	runtime.SetHooks(toolHooks)
	if systemPrompt != "" {
		runtime.SetSystemPrompt(systemPrompt)
	}

	tracker := files.NewFileTracker(true)
	if watcher, err := files.NewWatcher(tracker, logger); err != nil {
		logger.Warn("file watcher unavailable, falling back to mtime checks only", "error", err)
	} else {
		tracker.SetWatcher(watcher)
		defer watcher.Close()
	}
	fileCfg := files.Config{Workspace: workspace, MaxReadBytes: 256 * 1024, Tracker: tracker}
	runtime.RegisterTool(files.NewReadTool(fileCfg))
	runtime.RegisterTool(files.NewWriteTool(fileCfg))
	runtime.RegisterTool(files.NewUpdateTool(fileCfg))
	runtime.RegisterTool(files.NewApplyPatchTool(fileCfg))

	runtime.RegisterTool(exec.New(exec.Config{WorkingDirectory: workspace}))
	runtime.RegisterTool(search.NewGrepTool(workspace))
	runtime.RegisterTool(search.NewGlobTool(workspace))
	runtime.RegisterTool(list.New(workspace))
	runtime.RegisterTool(fetch.New())
	runtime.RegisterTool(browser.New(workspace, tracker))
	runtime.RegisterTool(javascript.New(func() []javascript.ToolHistoryEntry { return nil }))

	cronTool := schedule.New(func(dispatchCtx context.Context, sessionID, prompt string) {
		sess, err := store.Get(dispatchCtx, sessionID)
		if err != nil {
			logger.Warn("scheduled prompt dropped, session not found", "session_id", sessionID, "error", err)
			return
		}
		msg := &models.Message{
			ID:        uuid.NewString(),
			SessionID: sessionID,
			Role:      models.RoleUser,
			Content:   prompt,
			CreatedAt: time.Now(),
		}
		chunks, err := runtime.Process(dispatchCtx, sess, msg)
		if err != nil {
			logger.Warn("scheduled prompt failed to start", "session_id", sessionID, "error", err)
			return
		}
		for range chunks {
			// Drain silently; the CLI's interactive loop is not listening for
			// output delivered outside a user-initiated turn.
		}
	})
	defer cronTool.Close()
	runtime.RegisterTool(cronTool)

	subManager := subagent.NewManager(runtime, 3)
	runtime.RegisterTool(subagent.NewSpawnTool(subManager))
	runtime.RegisterTool(subagent.NewStatusTool(subManager))
	runtime.RegisterTool(subagent.NewCancelTool(subManager))

	session := &models.Session{
		ID:        uuid.NewString(),
		AgentID:   "cli",
		Channel:   models.ChannelAPI,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	if err := store.Create(context.Background(), session); err != nil {
		return fmt.Errorf("create session: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	scanner := bufio.NewScanner(os.Stdin)
	fmt.Println("agentkit chat — Ctrl+D to exit")
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := scanner.Text()
		if line == "" {
			continue
		}

		msg := &models.Message{
			ID:        uuid.NewString(),
			SessionID: session.ID,
			Role:      models.RoleUser,
			Content:   line,
			CreatedAt: time.Now(),
		}

		chunks, err := runtime.Process(ctx, session, msg)
		if err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			continue
		}
		for chunk := range chunks {
			switch {
			case chunk.Error != nil:
				fmt.Fprintln(os.Stderr, "error:", chunk.Error)
			case chunk.Text != "":
				fmt.Print(chunk.Text)
			case chunk.ToolEvent != nil:
				fmt.Fprintf(os.Stderr, "\n[tool %s: %s]\n", chunk.ToolEvent.ToolName, chunk.ToolEvent.Stage)
			}
		}
		fmt.Println()
	}
	return scanner.Err()
}
