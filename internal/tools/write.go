package tools

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/samsaffron/term-chat/internal/llm"
)

// WriteFileTool implements the writeFile tool.
type WriteFileTool struct {
	ws Workspace
}

// NewWriteFileTool creates a new WriteFileTool.
func NewWriteFileTool(ws Workspace) *WriteFileTool {
	return &WriteFileTool{ws: ws}
}

// WriteFileArgs are the arguments for writeFile.
type WriteFileArgs struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

func (t *WriteFileTool) Spec() llm.ToolSpec {
	return llm.ToolSpec{
		Name:        WriteFileToolName,
		Description: "Create or overwrite a file with the specified content. Creates parent directories if needed.",
		Schema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"path": map[string]interface{}{
					"type":        "string",
					"description": "Path to the file to write",
				},
				"content": map[string]interface{}{
					"type":        "string",
					"description": "Full file content to write",
				},
			},
			"required": []string{"path", "content"},
		},
	}
}

func (t *WriteFileTool) Execute(ctx context.Context, call llm.ToolCall) llm.ToolResult {
	var a WriteFileArgs
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

	if err := t.ws.WriteTextFile(path, a.Content); err != nil {
		return errorResult(call, classifyFSError(path, err))
	}
	return textResult(call, fmt.Sprintf("Wrote %d bytes to %s", len(a.Content), path))
}
