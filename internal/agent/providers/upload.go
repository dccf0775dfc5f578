package providers

import (
	"context"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/sparrowlabs/agentkit/internal/agent"
	"github.com/sparrowlabs/agentkit/internal/hooks"
)

// AttachmentErrorKind categorizes a failure resolving a local file attachment.
type AttachmentErrorKind string

const (
	AttachmentErrorMissing    AttachmentErrorKind = "missing_attachment"
	AttachmentErrorTooLarge   AttachmentErrorKind = "too_large"
	AttachmentErrorUnreadable AttachmentErrorKind = "unreadable"
)

// AttachmentError reports a failure resolving an image/document attachment
// prior to sending a request. It is raised from Complete via
// resolveFileAttachments, never from a tool handler.
type AttachmentError struct {
	Kind   AttachmentErrorKind
	Path   string
	Max    int64
	Actual int64
}

func (e *AttachmentError) Error() string {
	switch e.Kind {
	case AttachmentErrorTooLarge:
		return fmt.Sprintf("attachment %q too large: %d bytes exceeds limit of %d", e.Path, e.Actual, e.Max)
	case AttachmentErrorMissing:
		return fmt.Sprintf("attachment %q has neither file_id nor local_path set", e.Path)
	default:
		return fmt.Sprintf("attachment %q could not be read", e.Path)
	}
}

const (
	maxImageUploadBytes    = 5 * 1024 * 1024
	maxDocumentUploadBytes = 32 * 1024 * 1024
	maxOtherUploadBytes    = 32 * 1024 * 1024
)

// UploadCache maps an absolute local path to the provider file_id it was
// uploaded under. It lives for the lifetime of the owning AnthropicProvider;
// two resolutions of the same path within one cache upload exactly once.
type UploadCache struct {
	mu    sync.Mutex
	files map[string]string
}

// NewUploadCache constructs an empty upload cache.
func NewUploadCache() *UploadCache {
	return &UploadCache{files: make(map[string]string)}
}

func (c *UploadCache) get(path string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id, ok := c.files[path]
	return id, ok
}

func (c *UploadCache) put(path, fileID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.files[path] = fileID
}

// resolveFileAttachments walks every attachment in the request and, for any
// whose LocalPath is set and FileID empty, uploads it via the Files API and
// rewrites it to reference the returned file_id. Attachments that already
// carry a FileID or a remote URL pass through unchanged. Idempotent: calling
// it twice on an already-resolved request does not re-upload.
func (p *AnthropicProvider) resolveFileAttachments(ctx context.Context, messages []agent.CompletionMessage) error {
	for mi := range messages {
		for ai := range messages[mi].Attachments {
			att := &messages[mi].Attachments[ai]
			if att.FileID != "" {
				continue
			}
			if att.LocalPath == "" {
				if att.URL != "" {
					continue // inline/base64 or remote URL attachment, nothing to upload
				}
				return &AttachmentError{Kind: AttachmentErrorMissing}
			}

			absPath, err := filepath.Abs(att.LocalPath)
			if err != nil {
				return &AttachmentError{Kind: AttachmentErrorUnreadable, Path: att.LocalPath}
			}

			if cached, ok := p.uploads.get(absPath); ok {
				att.FileID = cached
				att.LocalPath = ""
				continue
			}

			fileID, err := p.uploadFile(ctx, absPath, att.Type, att.MimeType)
			if err != nil {
				return err
			}
			p.uploads.put(absPath, fileID)
			att.FileID = fileID
			att.LocalPath = ""
		}
	}
	return nil
}

func (p *AnthropicProvider) uploadFile(ctx context.Context, absPath, attType, mimeType string) (string, error) {
	info, err := os.Stat(absPath)
	if err != nil {
		return "", &AttachmentError{Kind: AttachmentErrorUnreadable, Path: absPath}
	}

	if p.hooks != nil {
		if err := p.hooks.Trigger(ctx, &hooks.Event{
			Type:    hooks.EventFileUploadPre,
			Context: map[string]any{"path": absPath, "type": attType, "mime_type": mimeType, "size": info.Size()},
		}); err != nil {
			return "", fmt.Errorf("file upload canceled by hook: %w", err)
		}
	}

	limit := int64(maxOtherUploadBytes)
	switch {
	case attType == "image" || strings.HasPrefix(mimeType, "image/"):
		limit = maxImageUploadBytes
	case attType == "document" || mimeType == "application/pdf":
		limit = maxDocumentUploadBytes
	}
	if info.Size() > limit {
		return "", &AttachmentError{Kind: AttachmentErrorTooLarge, Path: absPath, Max: limit, Actual: info.Size()}
	}

	f, err := os.Open(absPath)
	if err != nil {
		return "", &AttachmentError{Kind: AttachmentErrorUnreadable, Path: absPath}
	}
	defer f.Close()

	contentType := mimeType
	if contentType == "" {
		contentType = mime.TypeByExtension(filepath.Ext(absPath))
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	uploaded, err := p.client.Beta.Files.Upload(ctx, anthropic.BetaFileUploadParams{
		File: anthropic.File(f, filepath.Base(absPath), contentType),
	})
	if err != nil {
		return "", p.wrapError(err, "")
	}

	if p.hooks != nil {
		p.hooks.TriggerAsync(ctx, &hooks.Event{
			Type:    hooks.EventFileUploadPost,
			Context: map[string]any{"path": absPath, "file_id": uploaded.ID},
		})
	}

	return uploaded.ID, nil
}
