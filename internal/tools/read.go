package tools

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/samsaffron/term-chat/internal/llm"
	"go.uber.org/zap"
)

// ReadFileTool implements the readFile tool.
type ReadFileTool struct {
	ws        Workspace
	cache     *OverflowCache
	threshold int
	logger    *zap.Logger
}

// NewReadFileTool creates a new ReadFileTool. Results longer than threshold
// characters are summarized and stored in cache.
func NewReadFileTool(ws Workspace, cache *OverflowCache, threshold int, logger *zap.Logger) *ReadFileTool {
	return &ReadFileTool{
		ws:        ws,
		cache:     cache,
		threshold: threshold,
		logger:    logger,
	}
}

// ReadFileArgs are the arguments for readFile.
type ReadFileArgs struct {
	Path string `json:"path"`
}

func (t *ReadFileTool) Spec() llm.ToolSpec {
	return llm.ToolSpec{
		Name:        ReadFileToolName,
		Description: "Read the full contents of a text file.",
		Schema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"path": map[string]interface{}{
					"type":        "string",
					"description": "Absolute or relative path to the file to read",
				},
			},
			"required": []string{"path"},
		},
	}
}

func (t *ReadFileTool) Execute(ctx context.Context, call llm.ToolCall) llm.ToolResult {
	var a ReadFileArgs
	if toolErr := decodeArgs(call, &a); toolErr != nil {
		return errorResult(call, toolErr)
	}
	if a.Path == "" {
		return errorResult(call, NewToolError(ErrInvalidParams, "path is required"))
	}
	path, err := filepath.Abs(a.Path)
	if err != nil {
		return errorResult(call, NewToolErrorf(ErrInvalidParams, "invalid path %q: %v", a.Path, err))
	}

	content, err := t.ws.ReadTextFile(path)
	if err != nil {
		return errorResult(call, classifyFSError(path, err))
	}

	text := formatFileContent(path, content)
	if utf8.RuneCountInString(text) <= t.threshold {
		return textResult(call, text)
	}

	if _, err := t.cache.Put(call.ID, path, content); err != nil {
		// Without a cache entry the model must get the full text directly.
		t.logger.Warn("overflow cache unavailable", zap.String("tool_call_id", call.ID), zap.Error(err))
		return textResult(call, text)
	}
	result := textResult(call, summarizeFile(path, content))
	result.Cached = true
	return result
}

func formatFileContent(path, content string) string {
	return fmt.Sprintf("File: %s\n\n%s", path, content)
}

func summarizeFile(path, content string) string {
	return fmt.Sprintf("File %s: %d bytes, %d lines (full content passed to the assistant)", path, len(content), countLines(content))
}

func countLines(content string) int {
	if content == "" {
		return 0
	}
	n := strings.Count(content, "\n")
	if !strings.HasSuffix(content, "\n") {
		n++
	}
	return n
}
