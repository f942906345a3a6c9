package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFallbackChat(t *testing.T) {
	tests := []struct {
		name       string
		failures   map[string]error
		wantModels []string
		wantModel  string
		wantErr    func(t *testing.T, err error)
	}{
		{
			name:       "primary answers",
			wantModels: []string{"model-a"},
			wantModel:  "model-a",
		},
		{
			name:       "503 moves to next model",
			failures:   map[string]error{"model-a": unavailable("model-a")},
			wantModels: []string{"model-a", "model-b"},
			wantModel:  "model-b",
		},
		{
			name: "unavailable in body moves to next model",
			failures: map[string]error{
				"model-a": &TransportError{Model: "model-a", StatusCode: 429, Body: "Model is currently UNAVAILABLE"},
			},
			wantModels: []string{"model-a", "model-b"},
			wantModel:  "model-b",
		},
		{
			name: "fatal error stops immediately",
			failures: map[string]error{
				"model-a": &TransportError{Model: "model-a", StatusCode: 400, Body: "bad request"},
			},
			wantModels: []string{"model-a"},
			wantErr: func(t *testing.T, err error) {
				var te *TransportError
				require.ErrorAs(t, err, &te)
				assert.Equal(t, 400, te.StatusCode)
				assert.NotErrorIs(t, err, ErrAllModelsExhausted)
			},
		},
		{
			name: "network error is fatal",
			failures: map[string]error{
				"model-a": &TransportError{Model: "model-a", Err: errors.New("connection refused")},
			},
			wantModels: []string{"model-a"},
			wantErr: func(t *testing.T, err error) {
				assert.NotErrorIs(t, err, ErrAllModelsExhausted)
			},
		},
		{
			name: "every model unavailable",
			failures: map[string]error{
				"model-a": unavailable("model-a"),
				"model-b": unavailable("model-b"),
				"model-c": unavailable("model-c"),
			},
			wantModels: []string{"model-a", "model-b", "model-c"},
			wantErr: func(t *testing.T, err error) {
				require.ErrorIs(t, err, ErrAllModelsExhausted)
				var exhausted *ExhaustedError
				require.ErrorAs(t, err, &exhausted)
				assert.Len(t, exhausted.Attempts, 3)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			completer := &fakeCompleter{
				once: func(call int, model string, msgs []Message) (Completion, error) {
					if err, ok := tt.failures[model]; ok {
						return Completion{}, err
					}
					return Completion{Content: "hello from " + model}, nil
				},
			}
			fb := NewFallback(completer, testRegistry(t), nil)

			completion, err := fb.Chat(context.Background(), []Message{UserText("hi")}, nil)
			assert.Equal(t, tt.wantModels, completer.models())
			if tt.wantErr != nil {
				require.Error(t, err)
				tt.wantErr(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantModel, completion.Model)
			assert.Equal(t, "hello from "+tt.wantModel, completion.Content)
		})
	}
}

func TestFallbackChatCancelled(t *testing.T) {
	completer := &fakeCompleter{
		once: func(call int, model string, msgs []Message) (Completion, error) {
			return Completion{Content: "never"}, nil
		},
	}
	fb := NewFallback(completer, testRegistry(t), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := fb.Chat(ctx, []Message{UserText("hi")}, nil)
	require.ErrorIs(t, err, ErrCancelled)
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, completer.calls())
}

func TestFallbackStreamRetriesBeforeFirstFragment(t *testing.T) {
	var streams []*sliceFragments
	completer := &fakeCompleter{
		stream: func(call int, model string) (FragmentStream, error) {
			switch model {
			case "model-a":
				return nil, unavailable(model)
			case "model-b":
				s := &sliceFragments{err: unavailable(model)}
				streams = append(streams, s)
				return s, nil
			default:
				s := &sliceFragments{fragments: []string{"Hel", "lo"}}
				streams = append(streams, s)
				return s, nil
			}
		},
	}
	fb := NewFallback(completer, testRegistry(t), nil)

	session := fb.Stream(context.Background(), []Message{UserText("hi")})
	defer session.Close()
	events, err := drain(t, session)
	require.NoError(t, err)

	assert.Equal(t, []string{"model-a", "model-b", "model-c"}, completer.streamCalls)
	assert.Equal(t, "Hello", textOf(events))
	for _, s := range streams {
		assert.True(t, s.closed, "stream should be closed")
	}
	history := session.History()
	require.Len(t, history, 2)
	assert.Equal(t, AssistantText("Hello"), history[1])
}

func TestFallbackStreamFailureAfterFirstFragmentIsFatal(t *testing.T) {
	completer := &fakeCompleter{
		stream: func(call int, model string) (FragmentStream, error) {
			return &sliceFragments{fragments: []string{"Hel"}, err: unavailable(model)}, nil
		},
	}
	fb := NewFallback(completer, testRegistry(t), nil)

	session := fb.Stream(context.Background(), []Message{UserText("hi")})
	defer session.Close()
	events, err := drain(t, session)

	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.NotErrorIs(t, err, ErrAllModelsExhausted)
	assert.Equal(t, "Hel", textOf(events))
	assert.Equal(t, []string{"model-a"}, completer.streamCalls)
	assert.Len(t, session.History(), 1)
}

func TestFallbackStreamExhausted(t *testing.T) {
	completer := &fakeCompleter{
		stream: func(call int, model string) (FragmentStream, error) {
			return nil, unavailable(model)
		},
	}
	fb := NewFallback(completer, testRegistry(t), nil)

	session := fb.Stream(context.Background(), []Message{UserText("hi")})
	defer session.Close()
	_, err := drain(t, session)
	require.ErrorIs(t, err, ErrAllModelsExhausted)
}

func TestNewModelRegistry(t *testing.T) {
	r, err := NewModelRegistry([]string{" a ", "", "b", "a", "c"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, r.Models())
	assert.Equal(t, "a", r.Primary())

	models := r.Models()
	models[0] = "mutated"
	assert.Equal(t, "a", r.Primary())

	_, err = NewModelRegistry([]string{" ", ""})
	assert.ErrorIs(t, err, ErrNoModels)
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"503", &TransportError{StatusCode: 503}, true},
		{"body mentions unavailable", &TransportError{StatusCode: 502, Body: "upstream Unavailable"}, true},
		{"in-band unavailable", &TransportError{Body: "Provider unavailable"}, true},
		{"429 rate limit", &TransportError{StatusCode: 429, Body: "rate limited"}, false},
		{"500", &TransportError{StatusCode: 500, Body: "internal error"}, false},
		{"plain error", errors.New("unavailable"), false},
		{"cancelled", ErrCancelled, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isRetryable(tt.err))
		})
	}
}
