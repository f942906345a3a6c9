package llm

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

// DefaultMaxIterations bounds the number of tool-enabled model calls in a
// single session.
const DefaultMaxIterations = 25

// EngineOptions configures an Engine.
type EngineOptions struct {
	MaxIterations int
	Logger        *zap.Logger
}

// Engine drives the tool-call loop: it asks the model for the next step,
// runs any requested tools, feeds their results back and repeats until the
// model answers in plain text or the iteration ceiling is reached.
type Engine struct {
	fallback      *Fallback
	tools         ToolExecutor
	maxIterations int
	logger        *zap.Logger

	// issued holds every tool call ID this engine has dispatched, so IDs stay
	// unique across sessions that share one executor.
	issued   map[string]struct{}
	issuedMu sync.Mutex
}

func NewEngine(fallback *Fallback, tools ToolExecutor, opts EngineOptions) *Engine {
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = DefaultMaxIterations
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Engine{
		fallback:      fallback,
		tools:         tools,
		maxIterations: opts.MaxIterations,
		logger:        opts.Logger.Named("engine"),
		issued:        make(map[string]struct{}),
	}
}

// MaxIterations returns the configured iteration ceiling.
func (e *Engine) MaxIterations() int {
	return e.maxIterations
}

// Stream starts a tool-enabled session over history. The final answer is
// delivered as text deltas of one grapheme cluster each.
func (e *Engine) Stream(ctx context.Context, history []Message) *Session {
	return newSession(ctx, history, e.runLoop)
}

// toolOutcome keeps the two renditions of a tool result apart: Display is
// shown to the user, Context is what the model receives.
type toolOutcome struct {
	Result  ToolResult
	Display string
	Context string
}

func (e *Engine) runLoop(ctx context.Context, s *Session) error {
	specs := e.tools.Specs()

	for iteration := 1; iteration <= e.maxIterations; iteration++ {
		if ctx.Err() != nil {
			return ErrCancelled
		}
		s.setIteration(iteration)

		completion, err := e.fallback.Chat(ctx, s.snapshot(), specs)
		if err != nil {
			return err
		}

		if len(completion.ToolCalls) == 0 {
			e.logger.Debug("final answer", zap.String("model", completion.Model), zap.Int("iteration", iteration))
			if err := s.emitText(ctx, completion.Content); err != nil {
				return err
			}
			s.appendHistory(AssistantText(completion.Content))
			return nil
		}

		calls := e.ensureUniqueToolCallIDs(completion.ToolCalls, s.snapshot())
		notice := fmt.Sprintf("Running %d tool call(s) (iteration %d/%d)", len(calls), iteration, e.maxIterations)
		if err := s.emit(ctx, Event{Type: EventNotice, Text: notice}); err != nil {
			return err
		}

		results := make([]Message, 0, len(calls))
		for _, call := range calls {
			if ctx.Err() != nil {
				return ErrCancelled
			}
			outcome := e.executeToolCall(ctx, call, iteration)
			if ctx.Err() != nil {
				return ErrCancelled
			}
			if err := s.emit(ctx, Event{Type: EventToolProgress, Text: progressLine(call, outcome)}); err != nil {
				return err
			}
			results = append(results, ToolResultMessage(call.ID, call.Name, outcome.Context))
		}

		s.appendHistory(append([]Message{AssistantToolCalls(completion.Content, calls)}, results...)...)
	}

	// Ceiling reached: one more call with tools withheld forces an answer.
	e.logger.Warn("tool iteration ceiling reached", zap.Int("max_iterations", e.maxIterations))
	notice := fmt.Sprintf("Reached the limit of %d tool iterations; asking for a final answer without tools", e.maxIterations)
	if err := s.emit(ctx, Event{Type: EventNotice, Text: notice}); err != nil {
		return err
	}
	completion, err := e.fallback.Chat(ctx, s.snapshot(), nil)
	if err != nil {
		return err
	}
	if err := s.emitText(ctx, completion.Content); err != nil {
		return err
	}
	s.appendHistory(AssistantText(completion.Content))
	return nil
}

func (e *Engine) executeToolCall(ctx context.Context, call ToolCall, iteration int) toolOutcome {
	result := e.tools.Execute(ctx, call)
	outcome := toolOutcome{
		Result:  result,
		Display: result.Content,
		Context: result.Content,
	}
	if result.Cached {
		outcome.Context = e.tools.ContextContent(result)
	}
	e.logger.Info("tool call",
		zap.String("tool", call.Name),
		zap.String("tool_call_id", call.ID),
		zap.Int("iteration", iteration),
		zap.Bool("cached", result.Cached),
		zap.Bool("error", result.IsError),
		zap.Int("exit_code", result.ExitCode))
	return outcome
}

// ensureUniqueToolCallIDs replaces missing IDs, and IDs already used by this
// engine or present in history, with freshly generated ones.
func (e *Engine) ensureUniqueToolCallIDs(calls []ToolCall, history []Message) []ToolCall {
	e.issuedMu.Lock()
	defer e.issuedMu.Unlock()

	for _, msg := range history {
		for _, call := range msg.ToolCalls {
			e.issued[call.ID] = struct{}{}
		}
	}

	out := make([]ToolCall, len(calls))
	for i, call := range calls {
		id := strings.TrimSpace(call.ID)
		if _, dup := e.issued[id]; id == "" || dup {
			fresh := "call_" + uuid.NewString()
			e.logger.Debug("replacing tool call id", zap.String("original", call.ID), zap.String("id", fresh))
			id = fresh
		}
		call.ID = id
		e.issued[id] = struct{}{}
		out[i] = call
	}
	return out
}

// toolPreview picks the most telling argument of a call for display.
func toolPreview(call ToolCall) string {
	for _, key := range []string{"path", "command"} {
		if v := gjson.GetBytes(call.Arguments, key); v.Type == gjson.String && v.Str != "" {
			return v.Str
		}
	}
	return ""
}

func progressLine(call ToolCall, outcome toolOutcome) string {
	status := "✓"
	if outcome.Result.IsError {
		status = "✗"
	}
	name := call.Name
	if preview := toolPreview(call); preview != "" {
		name = fmt.Sprintf("%s(%s)", call.Name, preview)
	}
	return fmt.Sprintf("%s %s: %s", status, name, outcome.Display)
}
