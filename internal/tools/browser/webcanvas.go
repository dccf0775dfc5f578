// Package browser implements the web_canvas built-in tool: it writes an
// HTML file into the workspace and renders it in headless Chrome to give
// the agent a screenshot of what it just built.
package browser

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	"golang.org/x/image/draw"

	"github.com/sparrowlabs/agentkit/internal/agent"
	"github.com/sparrowlabs/agentkit/internal/tools/files"
)

const (
	// DefaultTimeout bounds how long rendering the written file may take.
	DefaultTimeout = 30 * time.Second

	// MaxDimension bounds the rendered viewport and the downscaled output
	// image on either axis.
	MaxDimension = 2000
)

// aspectDimensions maps a requested aspect ratio to a viewport size. An
// unrecognized or empty ratio falls back to "16:9".
var aspectDimensions = map[string][2]int{
	"1:1":  {900, 900},
	"4:3":  {1024, 768},
	"16:9": {1280, 720},
	"9:16": {720, 1280},
}

// Tool writes a caller-supplied HTML document into the workspace and
// renders it in headless Chrome, returning the written path plus a
// screenshot (PNG, base64) of the result.
type Tool struct {
	resolver      files.Resolver
	tracker       *files.FileTracker
	allocatorOpts []chromedp.ExecAllocatorOption
}

// New creates a web_canvas tool scoped to the given workspace. tracker may
// be nil, in which case the read-before-write invariant is not enforced for
// this tool's own output file (each call writes a freshly named file, so
// there is nothing to have read first).
func New(workspace string, tracker *files.FileTracker) *Tool {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts, chromedp.Flag("disable-gpu", true), chromedp.NoSandbox)
	return &Tool{
		resolver:      files.Resolver{Root: workspace},
		tracker:       tracker,
		allocatorOpts: opts,
	}
}

func (t *Tool) Name() string { return "web_canvas" }

// Capabilities reports write: this tool's primary effect is creating a file
// in the workspace, so it is auto-approvable under accept_edits.
func (t *Tool) Capabilities() agent.Capability { return agent.CapWrite }

func (t *Tool) Description() string {
	return "Write an HTML document to the workspace and render it in a headless browser, returning the file path and a screenshot."
}

func (t *Tool) Schema() json.RawMessage {
	schema := map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"html": map[string]interface{}{
				"type":        "string",
				"description": "Complete HTML document to write and render.",
			},
			"aspect_ratio": map[string]interface{}{
				"type":        "string",
				"description": "Viewport aspect ratio: one of 1:1, 4:3, 16:9, 9:16 (default 16:9).",
			},
			"input": map[string]interface{}{
				"type":        "string",
				"description": "Optional data made available to the page as the global window.canvasInput.",
			},
		},
		"required": []string{"html"},
	}
	payload, err := json.Marshal(schema)
	if err != nil {
		return json.RawMessage(`{"type":"object"}`)
	}
	return payload
}

func (t *Tool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var input struct {
		HTML        string `json:"html"`
		AspectRatio string `json:"aspect_ratio"`
		Input       string `json:"input"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return errorResult(fmt.Sprintf("invalid parameters: %v", err)), nil
	}
	if strings.TrimSpace(input.HTML) == "" {
		return errorResult("html is required"), nil
	}

	dims, ok := aspectDimensions[input.AspectRatio]
	if !ok {
		dims = aspectDimensions["16:9"]
	}
	width, height := dims[0], dims[1]

	content := input.HTML
	if input.Input != "" {
		content = injectCanvasInput(content, input.Input)
	}

	relPath := filepath.Join("webcanvas", uuid.NewString()+".html")
	resolved, err := t.resolver.Resolve(relPath)
	if err != nil {
		return errorResult(err.Error()), nil
	}
	if t.tracker != nil {
		if err := t.tracker.CheckWrite(resolved, true); err != nil {
			return errorResult(err.Error()), nil
		}
	}
	if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
		return errorResult(fmt.Sprintf("create directory: %v", err)), nil
	}
	if err := os.WriteFile(resolved, []byte(content), 0o644); err != nil {
		return errorResult(fmt.Sprintf("write html: %v", err)), nil
	}
	if t.tracker != nil {
		t.tracker.RecordWrite(resolved)
	}

	timeout := DefaultTimeout
	title, shot, err := t.render(ctx, resolved, width, height, timeout)
	if err != nil {
		// The file is written; rendering is best-effort enrichment, so a
		// render failure still reports success with no screenshot.
		result := map[string]interface{}{
			"path":          relPath,
			"bytes_written": len(content),
			"aspect_ratio":  input.AspectRatio,
			"render_error":  err.Error(),
		}
		payload, _ := json.MarshalIndent(result, "", "  ")
		return &agent.ToolResult{Content: string(payload)}, nil
	}

	result := map[string]interface{}{
		"path":          relPath,
		"bytes_written": len(content),
		"aspect_ratio":  input.AspectRatio,
		"title":         title,
		"width":         width,
		"height":        height,
		"image_base64":  encodeBase64(shot),
		"mime_type":     "image/png",
	}
	payload, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return errorResult(fmt.Sprintf("encode result: %v", err)), nil
	}
	return &agent.ToolResult{Content: string(payload)}, nil
}

func (t *Tool) render(ctx context.Context, path string, width, height int, timeout time.Duration) (string, []byte, error) {
	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, t.allocatorOpts...)
	defer allocCancel()
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	defer browserCancel()
	runCtx, runCancel := context.WithTimeout(browserCtx, timeout)
	defer runCancel()

	var title string
	var shot []byte
	actions := []chromedp.Action{
		chromedp.EmulateViewport(int64(width), int64(height)),
		navigateAndWaitLoad("file://" + path),
		chromedp.Title(&title),
		chromedp.CaptureScreenshot(&shot),
	}
	if err := chromedp.Run(runCtx, actions...); err != nil {
		return "", nil, fmt.Errorf("render failed: %w", err)
	}

	shot, err := downscale(shot, MaxDimension)
	if err != nil {
		return "", nil, fmt.Errorf("encode screenshot: %w", err)
	}
	return title, shot, nil
}

// injectCanvasInput makes the caller-supplied input available to page
// scripts as window.canvasInput, inserted right after the opening <head> or,
// failing that, prepended to the document.
func injectCanvasInput(html, input string) string {
	encoded, err := json.Marshal(input)
	if err != nil {
		return html
	}
	script := fmt.Sprintf("<script>window.canvasInput = %s;</script>", encoded)
	if idx := strings.Index(strings.ToLower(html), "<head>"); idx != -1 {
		insertAt := idx + len("<head>")
		return html[:insertAt] + script + html[insertAt:]
	}
	return script + html
}

// downscale shrinks an oversized capture so the image sent back to the
// model never exceeds MaxDimension on its longer edge.
func downscale(pngBytes []byte, maxDim int) ([]byte, error) {
	img, err := png.Decode(bytes.NewReader(pngBytes))
	if err != nil {
		return pngBytes, nil // not a PNG we can parse; return as captured
	}
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w <= maxDim && h <= maxDim {
		return pngBytes, nil
	}

	scale := float64(maxDim) / float64(w)
	if hs := float64(maxDim) / float64(h); hs < scale {
		scale = hs
	}
	dstW := int(float64(w) * scale)
	dstH := int(float64(h) * scale)

	dst := image.NewRGBA(image.Rect(0, 0, dstW, dstH))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)

	var buf bytes.Buffer
	if err := png.Encode(&buf, dst); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func encodeBase64(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

func errorResult(message string) *agent.ToolResult {
	payload, err := json.Marshal(map[string]string{"error": message})
	if err != nil {
		return &agent.ToolResult{Content: message, IsError: true}
	}
	return &agent.ToolResult{Content: string(payload), IsError: true}
}

// navigateAndWaitLoad issues the raw CDP Page.navigate command and blocks
// until the frame reports committed navigation, mirroring what
// chromedp.Navigate does internally but giving us the frame ID and error
// code directly for richer diagnostics on failed loads.
func navigateAndWaitLoad(url string) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		_, _, errText, err := page.Navigate(url).Do(ctx)
		if err != nil {
			return err
		}
		if errText != "" {
			return fmt.Errorf("navigation error: %s", errText)
		}
		return nil
	})
}
