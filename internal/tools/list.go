package tools

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/samsaffron/term-chat/internal/llm"
)

// ListFilesTool implements the listFiles tool.
type ListFilesTool struct {
	ws Workspace
}

// NewListFilesTool creates a new ListFilesTool.
func NewListFilesTool(ws Workspace) *ListFilesTool {
	return &ListFilesTool{ws: ws}
}

// ListFilesArgs are the arguments for listFiles.
type ListFilesArgs struct {
	Path       string `json:"path,omitempty"`
	ShowHidden bool   `json:"showHidden,omitempty"`
}

func (t *ListFilesTool) Spec() llm.ToolSpec {
	return llm.ToolSpec{
		Name:        ListFilesToolName,
		Description: "List the entries of a directory, sorted by name.",
		Schema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"path": map[string]interface{}{
					"type":        "string",
					"description": "Directory to list (default: current directory)",
					"default":     ".",
				},
				"showHidden": map[string]interface{}{
					"type":        "boolean",
					"description": "Include entries whose name starts with a dot",
					"default":     false,
				},
			},
		},
	}
}

func (t *ListFilesTool) Execute(ctx context.Context, call llm.ToolCall) llm.ToolResult {
	var a ListFilesArgs
	if toolErr := decodeArgs(call, &a); toolErr != nil {
		return errorResult(call, toolErr)
	}
	if a.Path == "" {
		a.Path = "."
	}
	path, err := filepath.Abs(a.Path)
	if err != nil {
		return errorResult(call, NewToolErrorf(ErrInvalidParams, "invalid path %q: %v", a.Path, err))
	}

	entries, err := t.ws.ListDirectory(path, a.ShowHidden)
	if err != nil {
		return errorResult(call, classifyFSError(path, err))
	}
	if len(entries) == 0 {
		return textResult(call, fmt.Sprintf("Directory %s is empty", path))
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Directory %s (%d entries):\n", path, len(entries))
	for _, entry := range entries {
		if entry.IsDir {
			fmt.Fprintf(&sb, "[dir]  %s/\n", entry.Name)
			continue
		}
		fmt.Fprintf(&sb, "[file] %s (%d bytes)\n", entry.Name, entry.Size)
	}
	return textResult(call, strings.TrimSuffix(sb.String(), "\n"))
}

// classifyFSError maps filesystem errors onto tool error types.
func classifyFSError(path string, err error) *ToolError {
	var toolErr *ToolError
	switch {
	case errors.As(err, &toolErr):
		return toolErr
	case errors.Is(err, os.ErrNotExist):
		return NewToolError(ErrFileNotFound, path)
	case errors.Is(err, os.ErrPermission):
		return NewToolErrorf(ErrPermissionDenied, "access denied: %s", path)
	default:
		return NewToolErrorf(ErrExecutionFailed, "%v", err)
	}
}
