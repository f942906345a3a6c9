package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	// DefaultBaseURL is the OpenRouter OpenAI-compatible API root.
	DefaultBaseURL = "https://openrouter.ai/api/v1"

	// maxErrorBody bounds how much of an error response is kept in a TransportError.
	maxErrorBody = 4096
)

// defaultHTTPClient only bounds connection setup. Completions may stream for
// as long as the model keeps producing tokens.
var defaultHTTPClient = &http.Client{
	Transport: &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout: 15 * time.Second,
		IdleConnTimeout:     90 * time.Second,
	},
}

// TransportConfig configures a Transport.
type TransportConfig struct {
	BaseURL     string
	APIKey      string
	Temperature float64
	AppURL      string // Optional OpenRouter attribution (HTTP-Referer)
	AppTitle    string // Optional OpenRouter attribution (X-Title)
	HTTPClient  *http.Client
	Logger      *zap.Logger
}

// Transport issues chat completion requests against an OpenAI-compatible API.
type Transport struct {
	baseURL     string
	apiKey      string
	temperature float64
	headers     map[string]string
	client      *http.Client
	logger      *zap.Logger
}

// NewTransport creates a Transport. An API key is required.
func NewTransport(cfg TransportConfig) (*Transport, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("transport: api key is required")
	}
	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	client := cfg.HTTPClient
	if client == nil {
		client = defaultHTTPClient
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Transport{
		baseURL:     baseURL,
		apiKey:      cfg.APIKey,
		temperature: cfg.Temperature,
		headers: map[string]string{
			"HTTP-Referer": cfg.AppURL,
			"X-Title":      cfg.AppTitle,
		},
		client: client,
		logger: logger.Named("transport"),
	}, nil
}

// OpenAI-compatible request/response structures
type oaiChatRequest struct {
	Model       string       `json:"model"`
	Messages    []oaiMessage `json:"messages"`
	Temperature float64      `json:"temperature"`
	Tools       []oaiTool    `json:"tools,omitempty"`
	Stream      bool         `json:"stream,omitempty"`
}

type oaiMessage struct {
	Role       string        `json:"role"`
	Content    string        `json:"content"`
	Name       string        `json:"name,omitempty"`
	ToolCalls  []oaiToolCall `json:"tool_calls,omitempty"`
	ToolCallID string        `json:"tool_call_id,omitempty"`
}

type oaiTool struct {
	Type     string      `json:"type"`
	Function oaiFunction `json:"function"`
}

type oaiFunction struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters"`
}

type oaiToolCall struct {
	ID       string `json:"id,omitempty"`
	Type     string `json:"type,omitempty"`
	Function struct {
		Name      string `json:"name,omitempty"`
		Arguments string `json:"arguments,omitempty"`
	} `json:"function"`
}

type oaiChatResponse struct {
	ID      string       `json:"id"`
	Model   string       `json:"model"`
	Choices []oaiChoice  `json:"choices"`
	Error   *oaiAPIError `json:"error,omitempty"`
}

type oaiChoice struct {
	Index        int         `json:"index"`
	Message      *oaiMessage `json:"message,omitempty"`
	FinishReason string      `json:"finish_reason"`
}

type oaiAPIError struct {
	Code    interface{} `json:"code"` // int on OpenRouter, string on some servers
	Message string      `json:"message"`
}

func (e *oaiAPIError) status() int {
	if code, ok := e.Code.(float64); ok {
		return int(code)
	}
	return 0
}

func toWireMessages(msgs []Message) []oaiMessage {
	out := make([]oaiMessage, 0, len(msgs))
	for _, m := range msgs {
		wm := oaiMessage{
			Role:       string(m.Role),
			Content:    m.Content,
			Name:       m.Name,
			ToolCallID: m.ToolCallID,
		}
		for _, call := range m.ToolCalls {
			var tc oaiToolCall
			tc.ID = call.ID
			tc.Type = "function"
			tc.Function.Name = call.Name
			tc.Function.Arguments = string(call.Arguments)
			if tc.Function.Arguments == "" {
				tc.Function.Arguments = "{}"
			}
			wm.ToolCalls = append(wm.ToolCalls, tc)
		}
		out = append(out, wm)
	}
	return out
}

func toWireTools(specs []ToolSpec) []oaiTool {
	if len(specs) == 0 {
		return nil
	}
	out := make([]oaiTool, 0, len(specs))
	for _, spec := range specs {
		out = append(out, oaiTool{
			Type: "function",
			Function: oaiFunction{
				Name:        spec.Name,
				Description: spec.Description,
				Parameters:  spec.Schema,
			},
		})
	}
	return out
}

func (t *Transport) makeChatRequest(ctx context.Context, req oaiChatRequest) (*http.Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+t.apiKey)
	if req.Stream {
		httpReq.Header.Set("Accept", "text/event-stream")
	}
	for key, value := range t.headers {
		if value == "" {
			continue
		}
		httpReq.Header.Set(key, value)
	}

	t.logger.Debug("chat request",
		zap.String("model", req.Model),
		zap.Int("messages", len(req.Messages)),
		zap.Int("tools", len(req.Tools)),
		zap.Bool("stream", req.Stream))
	return t.client.Do(httpReq)
}

// CompleteOnce performs a single non-streaming turn against model. Tools are
// attached when specs is non-empty.
func (t *Transport) CompleteOnce(ctx context.Context, model string, messages []Message, specs []ToolSpec) (Completion, error) {
	resp, err := t.makeChatRequest(ctx, oaiChatRequest{
		Model:       model,
		Messages:    toWireMessages(messages),
		Temperature: t.temperature,
		Tools:       toWireTools(specs),
	})
	if err != nil {
		return Completion{}, &TransportError{Model: model, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Completion{}, &TransportError{Model: model, StatusCode: resp.StatusCode, Err: fmt.Errorf("read response: %w", err)}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Completion{}, &TransportError{Model: model, StatusCode: resp.StatusCode, Body: truncateBody(body)}
	}

	var parsed oaiChatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return Completion{}, &TransportError{Model: model, StatusCode: resp.StatusCode, Body: truncateBody(body), Err: fmt.Errorf("malformed response: %w", err)}
	}
	if parsed.Error != nil {
		return Completion{}, &TransportError{Model: model, StatusCode: parsed.Error.status(), Body: parsed.Error.Message}
	}
	if len(parsed.Choices) == 0 || parsed.Choices[0].Message == nil {
		return Completion{}, &TransportError{Model: model, StatusCode: resp.StatusCode, Body: "response contained no choices"}
	}

	msg := parsed.Choices[0].Message
	completion := Completion{
		Model:     model,
		Content:   msg.Content,
		ToolCalls: []ToolCall{},
	}
	for _, tc := range msg.ToolCalls {
		completion.ToolCalls = append(completion.ToolCalls, ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: json.RawMessage(tc.Function.Arguments),
		})
	}
	t.logger.Debug("chat response",
		zap.String("model", model),
		zap.Int("content_len", len(completion.Content)),
		zap.Int("tool_calls", len(completion.ToolCalls)))
	return completion, nil
}

// CompleteStream starts a streaming turn against model without tools. The
// returned stream must be closed by the caller.
func (t *Transport) CompleteStream(ctx context.Context, model string, messages []Message) (FragmentStream, error) {
	resp, err := t.makeChatRequest(ctx, oaiChatRequest{
		Model:       model,
		Messages:    toWireMessages(messages),
		Temperature: t.temperature,
		Stream:      true,
	})
	if err != nil {
		return nil, &TransportError{Model: model, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		resp.Body.Close()
		return nil, &TransportError{Model: model, StatusCode: resp.StatusCode, Body: string(body)}
	}
	return newTextStream(model, resp.Body, t.logger), nil
}

func truncateBody(body []byte) string {
	if len(body) > maxErrorBody {
		return string(body[:maxErrorBody]) + "..."
	}
	return string(body)
}
