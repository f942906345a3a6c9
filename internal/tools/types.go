// Package tools provides the local tools the model can call: directory
// listing, file reading and writing, and shell execution.
package tools

import "fmt"

// ToolErrorType classifies tool failures in the text returned to the model.
type ToolErrorType string

const (
	ErrFileNotFound     ToolErrorType = "FILE_NOT_FOUND"
	ErrNotADirectory    ToolErrorType = "NOT_A_DIRECTORY"
	ErrInvalidParams    ToolErrorType = "INVALID_PARAMS"
	ErrExecutionFailed  ToolErrorType = "EXECUTION_FAILED"
	ErrPermissionDenied ToolErrorType = "PERMISSION_DENIED"
	ErrTimeout          ToolErrorType = "TIMEOUT"
	ErrUnknownTool      ToolErrorType = "UNKNOWN_TOOL"
)

// ToolError provides structured error information for the model.
type ToolError struct {
	Type    ToolErrorType `json:"type"`
	Message string        `json:"message"`
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// NewToolError creates a new ToolError.
func NewToolError(errType ToolErrorType, message string) *ToolError {
	return &ToolError{Type: errType, Message: message}
}

// NewToolErrorf creates a new ToolError with formatted message.
func NewToolErrorf(errType ToolErrorType, format string, args ...interface{}) *ToolError {
	return &ToolError{Type: errType, Message: fmt.Sprintf(format, args...)}
}

// formatToolError formats a ToolError for LLM consumption.
func formatToolError(err *ToolError) string {
	return fmt.Sprintf("Error [%s]: %s", err.Type, err.Message)
}

// Tool specification names
const (
	ListFilesToolName    = "listFiles"
	ReadFileToolName     = "readFile"
	WriteFileToolName    = "writeFile"
	ExecuteShellToolName = "executeShell"
)

// AllToolNames returns all tool names in the order they are offered to the model.
func AllToolNames() []string {
	return []string{
		ListFilesToolName,
		ReadFileToolName,
		WriteFileToolName,
		ExecuteShellToolName,
	}
}
