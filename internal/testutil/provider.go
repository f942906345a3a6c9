// Package testutil provides a scripted OpenAI-compatible endpoint for tests
// that drive the chat client end to end.
package testutil

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/tidwall/gjson"
)

// Reply is one scripted response from the fake provider.
type Reply struct {
	Status    int    // 0 means 200
	Body      string // Raw body for error statuses
	Content   string
	ToolCalls []ToolCallReply
	Fragments []string // Sent as SSE deltas when the request asks for a stream
}

// ToolCallReply is a tool call the fake model requests.
type ToolCallReply struct {
	ID        string
	Name      string
	Arguments string
}

// Text returns a plain assistant reply.
func Text(content string) Reply {
	return Reply{Content: content}
}

// Stream returns a reply streamed as the given fragments.
func Stream(fragments ...string) Reply {
	return Reply{Fragments: fragments}
}

// CallTool returns a reply that requests a single tool call.
func CallTool(id, name, arguments string) Reply {
	return Reply{ToolCalls: []ToolCallReply{{ID: id, Name: name, Arguments: arguments}}}
}

// Unavailable returns the retryable failure a saturated model reports.
func Unavailable() Reply {
	return Reply{Status: http.StatusServiceUnavailable, Body: `{"error":{"message":"model unavailable"}}`}
}

// FakeProvider serves /chat/completions from a queue of replies.
type FakeProvider struct {
	Server *httptest.Server

	mu       sync.Mutex
	replies  []Reply
	requests []string
}

// NewFakeProvider starts a fake provider that is closed when the test ends.
func NewFakeProvider(t testing.TB, replies ...Reply) *FakeProvider {
	t.Helper()
	p := &FakeProvider{replies: replies}
	p.Server = httptest.NewServer(http.HandlerFunc(p.serve))
	t.Cleanup(func() {
		p.Server.Client().CloseIdleConnections()
		p.Server.Close()
	})
	return p
}

// URL is the base URL to configure as base_url.
func (p *FakeProvider) URL() string {
	return p.Server.URL
}

// Enqueue appends replies to the script.
func (p *FakeProvider) Enqueue(replies ...Reply) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.replies = append(p.replies, replies...)
}

// Requests returns the decoded bodies received so far.
func (p *FakeProvider) Requests() []gjson.Result {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]gjson.Result, len(p.requests))
	for i, body := range p.requests {
		out[i] = gjson.Parse(body)
	}
	return out
}

func (p *FakeProvider) next(body string) (Reply, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.requests = append(p.requests, body)
	if len(p.replies) == 0 {
		return Reply{}, false
	}
	r := p.replies[0]
	p.replies = p.replies[1:]
	return r, true
}

func (p *FakeProvider) serve(w http.ResponseWriter, r *http.Request) {
	data, _ := io.ReadAll(r.Body)
	reply, ok := p.next(string(data))
	if !ok {
		http.Error(w, `{"error":{"message":"no scripted reply"}}`, http.StatusInternalServerError)
		return
	}
	if reply.Status != 0 && reply.Status != http.StatusOK {
		w.WriteHeader(reply.Status)
		fmt.Fprint(w, reply.Body)
		return
	}
	if gjson.GetBytes(data, "stream").Bool() {
		writeStream(w, reply)
		return
	}
	writeCompletion(w, reply)
}

func writeStream(w http.ResponseWriter, reply Reply) {
	w.Header().Set("Content-Type", "text/event-stream")
	fragments := reply.Fragments
	if fragments == nil && reply.Content != "" {
		fragments = []string{reply.Content}
	}
	flusher, _ := w.(http.Flusher)
	for _, f := range fragments {
		chunk, _ := json.Marshal(map[string]any{
			"choices": []any{map[string]any{"delta": map[string]any{"content": f}}},
		})
		fmt.Fprintf(w, "data: %s\n\n", chunk)
		if flusher != nil {
			flusher.Flush()
		}
	}
	fmt.Fprint(w, "data: [DONE]\n\n")
}

func writeCompletion(w http.ResponseWriter, reply Reply) {
	content := reply.Content
	if content == "" && len(reply.Fragments) > 0 {
		for _, f := range reply.Fragments {
			content += f
		}
	}
	message := map[string]any{"role": "assistant", "content": content}
	if len(reply.ToolCalls) > 0 {
		calls := make([]any, 0, len(reply.ToolCalls))
		for _, tc := range reply.ToolCalls {
			calls = append(calls, map[string]any{
				"id":       tc.ID,
				"type":     "function",
				"function": map[string]any{"name": tc.Name, "arguments": tc.Arguments},
			})
		}
		message["tool_calls"] = calls
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"choices": []any{map[string]any{"message": message}},
	})
}
