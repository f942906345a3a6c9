package tools

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/samsaffron/term-chat/internal/llm"
)

// ShellTool implements the executeShell tool.
type ShellTool struct {
	ws             Workspace
	defaultTimeout time.Duration
	limits         OutputLimits
}

// NewShellTool creates a new ShellTool.
func NewShellTool(ws Workspace, defaultTimeout time.Duration, limits OutputLimits) *ShellTool {
	return &ShellTool{
		ws:             ws,
		defaultTimeout: defaultTimeout,
		limits:         limits,
	}
}

// ShellArgs are the arguments for the executeShell tool.
type ShellArgs struct {
	Command        string `json:"command"`
	WorkingDir     string `json:"workingDir,omitempty"`
	TimeoutSeconds int    `json:"timeoutSeconds,omitempty"`
}

func (t *ShellTool) Spec() llm.ToolSpec {
	return llm.ToolSpec{
		Name:        ExecuteShellToolName,
		Description: "Execute a shell command. Returns stdout, stderr, and exit code.",
		Schema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"command": map[string]interface{}{
					"type":        "string",
					"description": "Shell command to execute",
				},
				"workingDir": map[string]interface{}{
					"type":        "string",
					"description": "Working directory (defaults to current directory)",
				},
				"timeoutSeconds": map[string]interface{}{
					"type":        "integer",
					"description": "Command timeout in seconds (default: 30, max: 300)",
					"default":     30,
				},
			},
			"required": []string{"command"},
		},
	}
}

func (t *ShellTool) Execute(ctx context.Context, call llm.ToolCall) llm.ToolResult {
	var a ShellArgs
	if toolErr := decodeArgs(call, &a); toolErr != nil {
		return errorResult(call, toolErr)
	}
	if strings.TrimSpace(a.Command) == "" {
		return errorResult(call, NewToolError(ErrInvalidParams, "command is required"))
	}

	timeout := t.defaultTimeout
	if a.TimeoutSeconds > 0 {
		timeout = time.Duration(a.TimeoutSeconds) * time.Second
	}
	if timeout > MaxShellTimeout {
		timeout = MaxShellTimeout
	}

	workDir := a.WorkingDir
	if workDir == "" {
		var err error
		workDir, err = os.Getwd()
		if err != nil {
			return errorResult(call, NewToolErrorf(ErrExecutionFailed, "cannot get working directory: %v", err))
		}
	}

	res, err := t.ws.RunCommand(ctx, a.Command, workDir, timeout)
	result := textResult(call, formatShellResult(res, t.limits))
	result.ExitCode = res.ExitCode
	switch {
	case errors.Is(err, ErrCommandTimeout):
		result.IsError = true
		result.Content = formatToolError(NewToolErrorf(ErrTimeout, "command timed out after %s", timeout)) + "\n\n" + result.Content
	case err != nil:
		result.IsError = true
		result.Content = formatToolError(NewToolErrorf(ErrExecutionFailed, "command error: %v", err)) + "\n\n" + result.Content
	}
	return result
}

// truncateUTF8 cuts s to at most n bytes without splitting a rune.
func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// formatShellResult formats the shell result for the LLM.
func formatShellResult(result CommandResult, limits OutputLimits) string {
	var sb strings.Builder

	stdout := result.Stdout
	stderr := result.Stderr
	truncated := false

	if int64(len(stdout)) > limits.MaxBytes {
		stdout = truncateUTF8(stdout, int(limits.MaxBytes))
		truncated = true
	}
	if int64(len(stderr)) > limits.MaxBytes {
		stderr = truncateUTF8(stderr, int(limits.MaxBytes))
		truncated = true
	}

	if stdout != "" {
		sb.WriteString("stdout:\n")
		sb.WriteString(stdout)
		if !strings.HasSuffix(stdout, "\n") {
			sb.WriteString("\n")
		}
	}

	if stderr != "" {
		if stdout != "" {
			sb.WriteString("\n")
		}
		sb.WriteString("stderr:\n")
		sb.WriteString(stderr)
		if !strings.HasSuffix(stderr, "\n") {
			sb.WriteString("\n")
		}
	}

	if stdout != "" || stderr != "" {
		sb.WriteString("\n")
	}
	sb.WriteString(fmt.Sprintf("exit_code: %d", result.ExitCode))

	if truncated {
		sb.WriteString("\n\n[Output truncated due to size limit]")
	}

	return sb.String()
}
