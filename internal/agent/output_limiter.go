package agent

import (
	"fmt"
	"strings"
)

// DefaultOutputMaxBytes and DefaultOutputMaxItems bound a single tool
// result before it reaches the model or persistence: large listings,
// grep matches, and file reads get cut rather than blowing the context
// budget on one call.
const (
	DefaultOutputMaxBytes = 50 * 1024
	DefaultOutputMaxItems = 500
)

// OutputLimiter enforces a byte and line-count budget on tool output.
type OutputLimiter struct {
	MaxBytes int
	MaxItems int
}

// DefaultOutputLimiter returns the standard 50KB / 500-line budget.
func DefaultOutputLimiter() OutputLimiter {
	return OutputLimiter{MaxBytes: DefaultOutputMaxBytes, MaxItems: DefaultOutputMaxItems}
}

// Truncate cuts content down to the configured budget, snapping to the
// nearest preceding newline so no line is cut mid-way, and appends a
// single marker line reporting the original size and suggesting a
// narrower query. It reports whether truncation occurred.
func (l OutputLimiter) Truncate(content string) (string, bool) {
	maxBytes := l.MaxBytes
	if maxBytes <= 0 {
		maxBytes = DefaultOutputMaxBytes
	}
	maxItems := l.MaxItems
	if maxItems <= 0 {
		maxItems = DefaultOutputMaxItems
	}

	originalBytes := len(content)
	lines := strings.Split(content, "\n")
	originalItems := len(lines)

	if originalBytes <= maxBytes && originalItems <= maxItems {
		return content, false
	}

	kept := lines
	if len(kept) > maxItems {
		kept = kept[:maxItems]
	}
	truncated := strings.Join(kept, "\n")

	if len(truncated) > maxBytes {
		cutoff := maxBytes
		if idx := strings.LastIndexByte(truncated[:cutoff], '\n'); idx > 0 {
			cutoff = idx
		}
		truncated = truncated[:cutoff]
	}

	marker := fmt.Sprintf(
		"\n... [output truncated: %d bytes / %d lines originally; showing first %d bytes / %d lines. Narrow your query to see the rest.]",
		originalBytes, originalItems, len(truncated), len(strings.Split(truncated, "\n")),
	)
	return truncated + marker, true
}
