package llm

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
)

type onceCall struct {
	Model    string
	Messages []Message
	Specs    []ToolSpec
}

// fakeCompleter answers requests from scripts keyed by call number.
type fakeCompleter struct {
	mu          sync.Mutex
	once        func(call int, model string, msgs []Message) (Completion, error)
	stream      func(call int, model string) (FragmentStream, error)
	onceCalls   []onceCall
	streamCalls []string
}

func (c *fakeCompleter) CompleteOnce(ctx context.Context, model string, messages []Message, specs []ToolSpec) (Completion, error) {
	c.mu.Lock()
	c.onceCalls = append(c.onceCalls, onceCall{Model: model, Messages: cloneMessages(messages), Specs: specs})
	call := len(c.onceCalls) - 1
	c.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return Completion{}, err
	}
	completion, err := c.once(call, model, messages)
	if err == nil {
		completion.Model = model
	}
	return completion, err
}

func (c *fakeCompleter) CompleteStream(ctx context.Context, model string, messages []Message) (FragmentStream, error) {
	c.mu.Lock()
	c.streamCalls = append(c.streamCalls, model)
	call := len(c.streamCalls) - 1
	c.mu.Unlock()
	return c.stream(call, model)
}

func (c *fakeCompleter) calls() []onceCall {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]onceCall, len(c.onceCalls))
	copy(out, c.onceCalls)
	return out
}

func (c *fakeCompleter) models() []string {
	var out []string
	for _, call := range c.calls() {
		out = append(out, call.Model)
	}
	return out
}

// sliceFragments yields fragments and then err (io.EOF when nil).
type sliceFragments struct {
	fragments []string
	err       error
	index     int
	closed    bool
}

func (s *sliceFragments) Recv() (string, error) {
	if s.index >= len(s.fragments) {
		if s.err != nil {
			return "", s.err
		}
		return "", io.EOF
	}
	f := s.fragments[s.index]
	s.index++
	return f, nil
}

func (s *sliceFragments) Close() error {
	s.closed = true
	return nil
}

// fakeExecutor records calls and answers them through fn.
type fakeExecutor struct {
	mu    sync.Mutex
	fn    func(ctx context.Context, call ToolCall) ToolResult
	calls []ToolCall
}

func (e *fakeExecutor) Specs() []ToolSpec {
	return []ToolSpec{{
		Name:        "readFile",
		Description: "Read a file",
		Schema:      map[string]interface{}{"type": "object"},
	}}
}

func (e *fakeExecutor) Execute(ctx context.Context, call ToolCall) ToolResult {
	e.mu.Lock()
	e.calls = append(e.calls, call)
	e.mu.Unlock()
	if e.fn == nil {
		return ToolResult{ToolCallID: call.ID, Name: call.Name, Content: "ok"}
	}
	return e.fn(ctx, call)
}

func (e *fakeExecutor) ContextContent(result ToolResult) string {
	if result.Cached {
		return "full:" + result.ToolCallID
	}
	return result.Content
}

func (e *fakeExecutor) executed() []ToolCall {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]ToolCall, len(e.calls))
	copy(out, e.calls)
	return out
}

func unavailable(model string) error {
	return &TransportError{Model: model, StatusCode: 503, Body: "service unavailable"}
}

func testRegistry(t *testing.T, models ...string) *ModelRegistry {
	t.Helper()
	if len(models) == 0 {
		models = []string{"model-a", "model-b", "model-c"}
	}
	r, err := NewModelRegistry(models)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	return r
}

// drain collects all events until the session ends.
func drain(t *testing.T, s *Session) ([]Event, error) {
	t.Helper()
	var events []Event
	for {
		ev, err := s.Recv()
		if errors.Is(err, io.EOF) {
			return events, nil
		}
		if err != nil {
			return events, err
		}
		events = append(events, ev)
	}
}

func textOf(events []Event) string {
	var out string
	for _, ev := range events {
		if ev.Type == EventTextDelta {
			out += ev.Text
		}
	}
	return out
}

func eventsOfType(events []Event, typ EventType) []Event {
	var out []Event
	for _, ev := range events {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}
