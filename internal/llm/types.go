package llm

import (
	"context"
	"encoding/json"
)

// Role identifies a message role.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is one entry of a conversation history.
type Message struct {
	Role       Role
	Content    string
	Name       string     // Tool name, only set on tool messages
	ToolCallID string     // Set on tool messages
	ToolCalls  []ToolCall // Set on assistant messages that requested tools
}

// ToolSpec describes a callable tool.
type ToolSpec struct {
	Name        string
	Description string
	Schema      map[string]interface{}
}

// ToolCall is a model-requested tool invocation.
type ToolCall struct {
	ID        string
	Name      string
	Arguments json.RawMessage
}

// ToolResult is the output from executing a tool call.
//
// When Cached is true, Content is a short summary meant for display and the
// full text is held by the executor's overflow cache.
type ToolResult struct {
	ToolCallID string
	Name       string
	Content    string
	Cached     bool
	ExitCode   int  // Only meaningful for shell executions
	IsError    bool // True if this result represents a tool execution error
}

// Completion is the first choice of a non-streaming model turn.
type Completion struct {
	Model     string
	Content   string
	ToolCalls []ToolCall
}

// ToolExecutor runs tool calls on behalf of the engine.
type ToolExecutor interface {
	// Specs returns the tool definitions attached to tool-enabled requests.
	Specs() []ToolSpec
	// Execute never fails; failures are reported through the result content.
	Execute(ctx context.Context, call ToolCall) ToolResult
	// ContextContent returns the text the model should see for result.
	ContextContent(result ToolResult) string
}

// EventType describes streaming events.
type EventType string

const (
	EventTextDelta    EventType = "text_delta"
	EventToolProgress EventType = "tool_progress" // One line per executed tool
	EventNotice       EventType = "notice"        // Loop status, e.g. iteration or ceiling notices
)

// Event represents a streamed output update.
type Event struct {
	Type EventType
	Text string
}

func SystemText(text string) Message {
	return Message{Role: RoleSystem, Content: text}
}

func UserText(text string) Message {
	return Message{Role: RoleUser, Content: text}
}

func AssistantText(text string) Message {
	return Message{Role: RoleAssistant, Content: text}
}

// AssistantToolCalls echoes a tool-call request back into the history.
func AssistantToolCalls(text string, calls []ToolCall) Message {
	cp := make([]ToolCall, len(calls))
	copy(cp, calls)
	return Message{Role: RoleAssistant, Content: text, ToolCalls: cp}
}

func ToolResultMessage(id, name, content string) Message {
	return Message{Role: RoleTool, ToolCallID: id, Name: name, Content: content}
}

// cloneMessages returns a copy of msgs that shares no slices with it.
func cloneMessages(msgs []Message) []Message {
	out := make([]Message, len(msgs))
	for i, m := range msgs {
		if len(m.ToolCalls) > 0 {
			calls := make([]ToolCall, len(m.ToolCalls))
			copy(calls, m.ToolCalls)
			m.ToolCalls = calls
		}
		out[i] = m
	}
	return out
}
