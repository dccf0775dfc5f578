package browser

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sparrowlabs/agentkit/internal/agent"
	"github.com/sparrowlabs/agentkit/internal/tools/files"
)

func TestWebCanvasRejectsEmptyHTML(t *testing.T) {
	tool := New(t.TempDir(), files.NewFileTracker(true))
	params, _ := json.Marshal(map[string]interface{}{"html": "   "})
	result, err := tool.Execute(context.Background(), params)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected an error result for empty html")
	}
}

func TestWebCanvasWritesFileUnderWorkspace(t *testing.T) {
	root := t.TempDir()
	tool := New(root, files.NewFileTracker(true))

	params, _ := json.Marshal(map[string]interface{}{
		"html": "<html><head></head><body>hi</body></html>",
	})
	result, err := tool.Execute(context.Background(), params)
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}

	var payload map[string]interface{}
	if jsonErr := json.Unmarshal([]byte(result.Content), &payload); jsonErr != nil {
		t.Fatalf("result is not JSON: %v (%s)", jsonErr, result.Content)
	}
	relPath, ok := payload["path"].(string)
	if !ok || relPath == "" {
		t.Fatalf("expected a path in the result, got %+v", payload)
	}
	if !strings.HasPrefix(relPath, "webcanvas"+string(filepath.Separator)) {
		t.Fatalf("expected path under webcanvas/, got %q", relPath)
	}

	data, err := os.ReadFile(filepath.Join(root, relPath))
	if err != nil {
		t.Fatalf("expected file to exist on disk: %v", err)
	}
	if !strings.Contains(string(data), "hi") {
		t.Fatalf("written file missing expected content: %s", data)
	}
}

func TestWebCanvasInjectsInputGlobal(t *testing.T) {
	html := injectCanvasInput("<html><head></head><body></body></html>", "payload")
	if !strings.Contains(html, "window.canvasInput") {
		t.Fatalf("expected canvasInput script injected, got %s", html)
	}
	if !strings.Contains(html, `"payload"`) {
		t.Fatalf("expected encoded input value in script, got %s", html)
	}
}

func TestWebCanvasCapabilityIsWrite(t *testing.T) {
	tool := New(t.TempDir(), nil)
	if tool.Capabilities() != agent.CapWrite {
		t.Fatalf("expected CapWrite, got %v", tool.Capabilities())
	}
}
