package tools

import (
	"context"
	"encoding/json"

	"github.com/samsaffron/term-chat/internal/llm"
	"go.uber.org/zap"
)

// Tool is a single callable tool.
type Tool interface {
	Spec() llm.ToolSpec
	Execute(ctx context.Context, call llm.ToolCall) llm.ToolResult
}

// Executor dispatches tool calls to the local tools and owns the overflow
// cache for their oversized results. It implements llm.ToolExecutor.
type Executor struct {
	tools  []Tool
	byName map[string]Tool
	cache  *OverflowCache
	logger *zap.Logger
}

var _ llm.ToolExecutor = (*Executor)(nil)

// NewExecutor creates an Executor over ws with all four tools registered.
func NewExecutor(ws Workspace, opts Options) *Executor {
	opts = opts.withDefaults()
	logger := opts.Logger.Named("tools")
	cache := NewOverflowCache(logger)

	e := &Executor{
		byName: make(map[string]Tool),
		cache:  cache,
		logger: logger,
	}
	e.register(NewListFilesTool(ws))
	e.register(NewReadFileTool(ws, cache, opts.OverflowThreshold, logger))
	e.register(NewWriteFileTool(ws))
	e.register(NewShellTool(ws, opts.ShellTimeout, opts.Limits))
	return e
}

func (e *Executor) register(tool Tool) {
	e.tools = append(e.tools, tool)
	e.byName[tool.Spec().Name] = tool
}

// Specs returns the tool definitions in registration order.
func (e *Executor) Specs() []llm.ToolSpec {
	specs := make([]llm.ToolSpec, 0, len(e.tools))
	for _, tool := range e.tools {
		specs = append(specs, tool.Spec())
	}
	return specs
}

// Execute runs call. Failures are reported in the result, never as an error.
func (e *Executor) Execute(ctx context.Context, call llm.ToolCall) llm.ToolResult {
	tool, ok := e.byName[call.Name]
	if !ok {
		e.logger.Warn("unknown tool requested", zap.String("tool", call.Name), zap.String("tool_call_id", call.ID))
		return errorResult(call, NewToolErrorf(ErrUnknownTool, "no tool named %q", call.Name))
	}
	return tool.Execute(ctx, call)
}

// ContextContent returns the text the model should see for result: the full
// cached text when the result was summarized, otherwise its content.
func (e *Executor) ContextContent(result llm.ToolResult) string {
	if !result.Cached {
		return result.Content
	}
	entry, ok := e.cache.Get(result.ToolCallID)
	if !ok {
		e.logger.Warn("overflow entry missing", zap.String("tool_call_id", result.ToolCallID))
		return result.Content
	}
	return formatFileContent(entry.Source, entry.Content)
}

// Cache exposes the overflow cache.
func (e *Executor) Cache() *OverflowCache {
	return e.cache
}

// Cleanup releases the overflow cache. It is safe to call more than once.
func (e *Executor) Cleanup() error {
	if n := e.cache.Len(); n > 0 {
		e.logger.Debug("removing cached tool results", zap.Int("count", n))
	}
	return e.cache.Cleanup()
}

func errorResult(call llm.ToolCall, err *ToolError) llm.ToolResult {
	return llm.ToolResult{
		ToolCallID: call.ID,
		Name:       call.Name,
		Content:    formatToolError(err),
		IsError:    true,
	}
}

func textResult(call llm.ToolCall, content string) llm.ToolResult {
	return llm.ToolResult{
		ToolCallID: call.ID,
		Name:       call.Name,
		Content:    content,
	}
}

// decodeArgs unmarshals call arguments; empty arguments decode as {}.
func decodeArgs(call llm.ToolCall, v interface{}) *ToolError {
	args := call.Arguments
	if len(args) == 0 {
		args = json.RawMessage("{}")
	}
	if err := json.Unmarshal(args, v); err != nil {
		return NewToolErrorf(ErrInvalidParams, "invalid arguments for %s: %v", call.Name, err)
	}
	return nil
}
