package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type capturedRequest struct {
	Path    string
	Headers http.Header
	Body    []byte
}

type requestLog struct {
	mu       sync.Mutex
	requests []capturedRequest
}

func (l *requestLog) all() []capturedRequest {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]capturedRequest, len(l.requests))
	copy(out, l.requests)
	return out
}

func newTestServer(t *testing.T, handler func(w http.ResponseWriter, body []byte)) (*httptest.Server, *requestLog) {
	t.Helper()
	log := &requestLog{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		log.mu.Lock()
		log.requests = append(log.requests, capturedRequest{Path: r.URL.Path, Headers: r.Header.Clone(), Body: body})
		log.mu.Unlock()
		handler(w, body)
	}))
	t.Cleanup(func() {
		srv.Client().CloseIdleConnections()
		srv.Close()
	})
	return srv, log
}

func newTestTransport(t *testing.T, srv *httptest.Server, logger *zap.Logger) *Transport {
	t.Helper()
	tr, err := NewTransport(TransportConfig{
		BaseURL:     srv.URL + "/",
		APIKey:      "sk-test",
		Temperature: 0,
		AppTitle:    "term-chat",
		HTTPClient:  srv.Client(),
		Logger:      logger,
	})
	require.NoError(t, err)
	return tr
}

func TestNewTransportRequiresAPIKey(t *testing.T) {
	_, err := NewTransport(TransportConfig{APIKey: "  "})
	require.Error(t, err)
}

func TestCompleteOnceRequestShape(t *testing.T) {
	srv, captured := newTestServer(t, func(w http.ResponseWriter, body []byte) {
		fmt.Fprint(w, `{"choices":[{"message":{"role":"assistant","content":"hi there"}}]}`)
	})
	tr := newTestTransport(t, srv, nil)

	specs := []ToolSpec{{Name: "readFile", Description: "Read a file", Schema: map[string]interface{}{"type": "object"}}}
	history := []Message{
		UserText("hello"),
		AssistantToolCalls("", []ToolCall{{ID: "call_1", Name: "readFile"}}),
		ToolResultMessage("call_1", "readFile", "data"),
	}
	completion, err := tr.CompleteOnce(context.Background(), "model-a", history, specs)
	require.NoError(t, err)
	assert.Equal(t, "hi there", completion.Content)
	assert.Equal(t, "model-a", completion.Model)
	assert.NotNil(t, completion.ToolCalls)
	assert.Empty(t, completion.ToolCalls)

	requests := captured.all()
	require.Len(t, requests, 1)
	req := requests[0]
	assert.Equal(t, "/chat/completions", req.Path)
	assert.Equal(t, "Bearer sk-test", req.Headers.Get("Authorization"))
	assert.Equal(t, "application/json", req.Headers.Get("Content-Type"))
	assert.Equal(t, "term-chat", req.Headers.Get("X-Title"))
	assert.Empty(t, req.Headers.Get("HTTP-Referer"))

	body := gjson.ParseBytes(req.Body)
	assert.Equal(t, "model-a", body.Get("model").String())
	assert.True(t, body.Get("temperature").Exists(), "temperature must always be sent")
	assert.False(t, body.Get("stream").Exists())
	assert.Equal(t, "readFile", body.Get("tools.0.function.name").String())
	assert.Equal(t, "function", body.Get("tools.0.type").String())
	assert.Equal(t, "{}", body.Get("messages.1.tool_calls.0.function.arguments").String())
	assert.Equal(t, "call_1", body.Get("messages.2.tool_call_id").String())
}

func TestCompleteOnceWithoutToolsOmitsToolField(t *testing.T) {
	srv, captured := newTestServer(t, func(w http.ResponseWriter, body []byte) {
		fmt.Fprint(w, `{"choices":[{"message":{"content":"ok"}}]}`)
	})
	tr := newTestTransport(t, srv, nil)

	_, err := tr.CompleteOnce(context.Background(), "model-a", []Message{UserText("hi")}, nil)
	require.NoError(t, err)
	assert.False(t, gjson.GetBytes(captured.all()[0].Body, "tools").Exists())
}

func TestCompleteOnceParsesToolCalls(t *testing.T) {
	srv, _ := newTestServer(t, func(w http.ResponseWriter, body []byte) {
		fmt.Fprint(w, `{"choices":[{"message":{"content":"","tool_calls":[
			{"id":"call_a","type":"function","function":{"name":"listFiles","arguments":"{\"path\":\".\"}"}},
			{"id":"call_b","type":"function","function":{"name":"readFile","arguments":"{\"path\":\"go.mod\"}"}}
		]}}]}`)
	})
	tr := newTestTransport(t, srv, nil)

	completion, err := tr.CompleteOnce(context.Background(), "model-a", []Message{UserText("hi")}, nil)
	require.NoError(t, err)
	require.Len(t, completion.ToolCalls, 2)
	assert.Equal(t, "call_a", completion.ToolCalls[0].ID)
	assert.Equal(t, "listFiles", completion.ToolCalls[0].Name)
	assert.JSONEq(t, `{"path":"go.mod"}`, string(completion.ToolCalls[1].Arguments))
}

func TestCompleteOnceErrors(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantStatus int
		retryable  bool
	}{
		{"503", http.StatusServiceUnavailable, `{"error":"overloaded"}`, 503, true},
		{"401", http.StatusUnauthorized, `{"error":{"message":"bad key"}}`, 401, false},
		{"in-band unavailable", http.StatusOK, `{"error":{"code":503,"message":"Provider returned error"}}`, 503, true},
		{"in-band message", http.StatusOK, `{"error":{"code":"x","message":"model unavailable"}}`, 0, true},
		{"no choices", http.StatusOK, `{"choices":[]}`, 200, false},
		{"malformed", http.StatusOK, `{"choices":`, 200, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := newTestServer(t, func(w http.ResponseWriter, body []byte) {
				w.WriteHeader(tt.status)
				fmt.Fprint(w, tt.body)
			})
			tr := newTestTransport(t, srv, nil)

			_, err := tr.CompleteOnce(context.Background(), "model-a", []Message{UserText("hi")}, nil)
			var te *TransportError
			require.ErrorAs(t, err, &te)
			assert.Equal(t, tt.wantStatus, te.StatusCode)
			assert.Equal(t, "model-a", te.Model)
			assert.Equal(t, tt.retryable, isRetryable(err))
		})
	}
}

func sseHandler(lines ...string) func(w http.ResponseWriter, body []byte) {
	return func(w http.ResponseWriter, body []byte) {
		w.Header().Set("Content-Type", "text/event-stream")
		for _, line := range lines {
			fmt.Fprintf(w, "%s\n", line)
		}
	}
}

func chunk(text string) string {
	payload, _ := json.Marshal(map[string]interface{}{
		"choices": []interface{}{map[string]interface{}{"delta": map[string]string{"content": text}}},
	})
	return "data: " + string(payload)
}

func collectFragments(t *testing.T, stream FragmentStream) ([]string, error) {
	t.Helper()
	defer stream.Close()
	var out []string
	for {
		text, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, text)
	}
}

func TestCompleteStreamDecodesFragments(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	srv, captured := newTestServer(t, sseHandler(
		": keep-alive",
		chunk("Hel"),
		"",
		`data: {"choices":[{"delta":{"role":"assistant"}}]}`,
		"data: {not json",
		chunk("lo"),
		chunk(""),
		"data: [DONE]",
		chunk("ignored"),
	))
	tr := newTestTransport(t, srv, zap.New(core))

	stream, err := tr.CompleteStream(context.Background(), "model-a", []Message{UserText("hi")})
	require.NoError(t, err)
	fragments, err := collectFragments(t, stream)
	require.NoError(t, err)
	assert.Equal(t, []string{"Hel", "lo"}, fragments)

	req := captured.all()[0]
	assert.True(t, gjson.GetBytes(req.Body, "stream").Bool())
	assert.Equal(t, "text/event-stream", req.Headers.Get("Accept"))
	assert.Equal(t, 1, logs.FilterMessage("skipping malformed stream chunk").Len())
}

func TestCompleteStreamEndsAtEOFWithoutDone(t *testing.T) {
	srv, _ := newTestServer(t, sseHandler(chunk("partial")))
	tr := newTestTransport(t, srv, nil)

	stream, err := tr.CompleteStream(context.Background(), "model-a", []Message{UserText("hi")})
	require.NoError(t, err)
	fragments, err := collectFragments(t, stream)
	require.NoError(t, err)
	assert.Equal(t, []string{"partial"}, fragments)
}

func TestCompleteStreamInBandError(t *testing.T) {
	srv, _ := newTestServer(t, sseHandler(
		chunk("Hi"),
		`data: {"error":{"code":503,"message":"Model temporarily unavailable"}}`,
	))
	tr := newTestTransport(t, srv, nil)

	stream, err := tr.CompleteStream(context.Background(), "model-a", []Message{UserText("hi")})
	require.NoError(t, err)
	fragments, err := collectFragments(t, stream)
	assert.Equal(t, []string{"Hi"}, fragments)
	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, 503, te.StatusCode)
	assert.True(t, strings.Contains(te.Body, "unavailable"))
}

func TestCompleteStreamHTTPError(t *testing.T) {
	srv, _ := newTestServer(t, func(w http.ResponseWriter, body []byte) {
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprint(w, "no capacity")
	})
	tr := newTestTransport(t, srv, nil)

	stream, err := tr.CompleteStream(context.Background(), "model-a", []Message{UserText("hi")})
	assert.Nil(t, stream)
	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, 503, te.StatusCode)
	assert.Equal(t, "no capacity", te.Body)
	assert.True(t, isRetryable(err))
}

func TestTransportWithFallbackSkipsLaterModels(t *testing.T) {
	srv, captured := newTestServer(t, func(w http.ResponseWriter, body []byte) {
		switch gjson.GetBytes(body, "model").String() {
		case "model-a":
			w.WriteHeader(http.StatusServiceUnavailable)
		default:
			fmt.Fprint(w, `{"choices":[{"message":{"content":"from b"}}]}`)
		}
	})
	tr := newTestTransport(t, srv, nil)
	fb := NewFallback(tr, testRegistry(t), nil)

	completion, err := fb.Chat(context.Background(), []Message{UserText("hi")}, nil)
	require.NoError(t, err)
	assert.Equal(t, "from b", completion.Content)

	var models []string
	for _, req := range captured.all() {
		models = append(models, gjson.GetBytes(req.Body, "model").String())
	}
	assert.Equal(t, []string{"model-a", "model-b"}, models)
}
