package llm

import (
	"context"
	"errors"
	"io"
	"strings"

	"go.uber.org/zap"
)

// FragmentStream yields text fragments of a streaming completion.
type FragmentStream interface {
	Recv() (string, error)
	Close() error
}

// Completer is the wire-level client used by Fallback. Transport implements it.
type Completer interface {
	CompleteOnce(ctx context.Context, model string, messages []Message, specs []ToolSpec) (Completion, error)
	CompleteStream(ctx context.Context, model string, messages []Message) (FragmentStream, error)
}

// Fallback runs logical requests against the model registry, moving to the
// next model when one reports itself unavailable. Models are tried
// immediately and in order; the first non-retryable failure is returned as is.
type Fallback struct {
	completer Completer
	registry  *ModelRegistry
	logger    *zap.Logger
}

// NewFallback creates a Fallback. A nil logger disables logging.
func NewFallback(completer Completer, registry *ModelRegistry, logger *zap.Logger) *Fallback {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fallback{
		completer: completer,
		registry:  registry,
		logger:    logger.Named("fallback"),
	}
}

// Chat performs one non-streaming turn. Tools are attached when specs is
// non-empty; pass nil to request a plain answer.
func (f *Fallback) Chat(ctx context.Context, messages []Message, specs []ToolSpec) (Completion, error) {
	var attempts []error
	for _, model := range f.registry.models {
		if ctx.Err() != nil {
			return Completion{}, ErrCancelled
		}
		completion, err := f.completer.CompleteOnce(ctx, model, messages, specs)
		if err == nil {
			if len(attempts) > 0 {
				f.logger.Info("fallback model answered", zap.String("model", model), zap.Int("skipped", len(attempts)))
			}
			return completion, nil
		}
		if ctx.Err() != nil {
			return Completion{}, ErrCancelled
		}
		if !isRetryable(err) {
			return Completion{}, err
		}
		f.logger.Warn("model unavailable, trying next", zap.String("model", model), zap.Error(err))
		attempts = append(attempts, err)
	}
	return Completion{}, &ExhaustedError{Attempts: attempts}
}

// Stream runs a plain streaming request without tools. A model is abandoned
// for the next one only if it failed before the consumer received its first
// fragment; later failures end the session. The fragments of one session
// therefore always come from a single model.
func (f *Fallback) Stream(ctx context.Context, history []Message) *Session {
	return newSession(ctx, history, f.streamPlain)
}

func (f *Fallback) streamPlain(ctx context.Context, s *Session) error {
	messages := s.snapshot()
	var attempts []error
	for _, model := range f.registry.models {
		if ctx.Err() != nil {
			return ErrCancelled
		}
		text, yielded, err := f.forward(ctx, s, model, messages)
		if err == nil {
			s.appendHistory(AssistantText(text))
			return nil
		}
		if ctx.Err() != nil {
			return ErrCancelled
		}
		if yielded || !isRetryable(err) {
			return err
		}
		f.logger.Warn("model unavailable, trying next", zap.String("model", model), zap.Error(err))
		attempts = append(attempts, err)
	}
	return &ExhaustedError{Attempts: attempts}
}

// forward relays one model's fragments to the session and reports whether
// any fragment reached the consumer.
func (f *Fallback) forward(ctx context.Context, s *Session, model string, messages []Message) (string, bool, error) {
	stream, err := f.completer.CompleteStream(ctx, model, messages)
	if err != nil {
		return "", false, err
	}
	defer stream.Close()

	var text strings.Builder
	yielded := false
	for {
		fragment, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return text.String(), yielded, nil
		}
		if err != nil {
			return "", yielded, err
		}
		if err := s.emit(ctx, Event{Type: EventTextDelta, Text: fragment}); err != nil {
			return "", yielded, err
		}
		yielded = true
		text.WriteString(fragment)
	}
}
