// Package chat is the entry point the terminal UI talks to. A Client turns a
// conversation into a live Session, routed through the tool loop when tools
// are enabled and through the plain streaming call otherwise.
package chat

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/samsaffron/term-chat/internal/config"
	"github.com/samsaffron/term-chat/internal/debuglog"
	"github.com/samsaffron/term-chat/internal/llm"
	"github.com/samsaffron/term-chat/internal/tools"
	"go.uber.org/zap"
)

// Option customizes a Client.
type Option func(*clientOptions)

type clientOptions struct {
	httpClient *http.Client
	workspace  tools.Workspace
}

// WithHTTPClient replaces the transport's HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(o *clientOptions) { o.httpClient = c }
}

// WithWorkspace replaces the local filesystem and shell the tools act on.
func WithWorkspace(ws tools.Workspace) Option {
	return func(o *clientOptions) { o.workspace = ws }
}

// Client owns one conversation's collaborators: the fallback chain, the tool
// loop and the tool executor with its overflow cache.
type Client struct {
	registry     *llm.ModelRegistry
	fallback     *llm.Fallback
	engine       *llm.Engine
	executor     *tools.Executor
	systemPrompt string
	logger       *zap.Logger

	mu           sync.Mutex
	toolsEnabled bool
	session      *llm.Session
}

// New builds a Client from cfg. It refuses to construct without an API key
// (config.ErrMissingAPIKey) or without models (llm.ErrNoModels).
func New(cfg *config.Config, logger *zap.Logger, opts ...Option) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger = debuglog.OrNop(logger)

	o := clientOptions{workspace: tools.OSWorkspace{}}
	for _, opt := range opts {
		opt(&o)
	}

	registry, err := llm.NewModelRegistry(cfg.Models)
	if err != nil {
		return nil, err
	}
	transport, err := llm.NewTransport(llm.TransportConfig{
		BaseURL:     cfg.BaseURL,
		APIKey:      cfg.APIKey,
		Temperature: cfg.Temperature,
		AppURL:      cfg.AppURL,
		AppTitle:    cfg.AppTitle,
		HTTPClient:  o.httpClient,
		Logger:      logger,
	})
	if err != nil {
		return nil, err
	}

	fallback := llm.NewFallback(transport, registry, logger)
	executor := tools.NewExecutor(o.workspace, tools.Options{
		OverflowThreshold: cfg.Tools.OverflowThreshold,
		ShellTimeout:      time.Duration(cfg.Tools.ShellTimeout) * time.Second,
		Logger:            logger,
	})
	engine := llm.NewEngine(fallback, executor, llm.EngineOptions{
		MaxIterations: cfg.MaxIterations,
		Logger:        logger,
	})

	logger.Debug("chat client ready",
		zap.Strings("models", registry.Models()),
		zap.Bool("tools", cfg.Tools.Enabled))

	return &Client{
		registry:     registry,
		fallback:     fallback,
		engine:       engine,
		executor:     executor,
		systemPrompt: cfg.SystemPrompt,
		logger:       logger,
		toolsEnabled: cfg.Tools.Enabled,
	}, nil
}

// Submit starts a turn over history and returns its live session. Any turn
// still in flight is cancelled first. history is not modified; the session's
// History holds the conversation including this turn once it ends.
func (c *Client) Submit(ctx context.Context, history []llm.Message) *llm.Session {
	history = c.withSystemPrompt(history)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session != nil {
		c.session.Cancel()
	}
	if c.toolsEnabled {
		c.session = c.engine.Stream(ctx, history)
	} else {
		c.session = c.fallback.Stream(ctx, history)
	}
	return c.session
}

// Cancel stops the turn in flight, if any. Safe to call at any time.
func (c *Client) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session != nil {
		c.session.Cancel()
	}
}

// Busy reports whether a turn is still producing.
func (c *Client) Busy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return false
	}
	select {
	case <-c.session.Done():
		return false
	default:
		return true
	}
}

// Cleanup cancels the turn in flight, waits for it to stop and removes the
// overflow cache. It is idempotent and safe to call from a signal handler.
func (c *Client) Cleanup() error {
	c.mu.Lock()
	s := c.session
	c.session = nil
	c.mu.Unlock()

	if s != nil {
		_ = s.Close()
	}
	return c.executor.Cleanup()
}

// SetToolsEnabled switches between the tool loop and plain streaming for
// later turns.
func (c *Client) SetToolsEnabled(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.toolsEnabled = enabled
}

// ToolsEnabled reports whether later turns may call tools.
func (c *Client) ToolsEnabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.toolsEnabled
}

// Models returns the fallback order.
func (c *Client) Models() []string {
	return c.registry.Models()
}

// PrimaryModel returns the model every turn tries first.
func (c *Client) PrimaryModel() string {
	return c.registry.Primary()
}

// MaxIterations returns the tool iteration ceiling.
func (c *Client) MaxIterations() int {
	return c.engine.MaxIterations()
}

// CacheDir returns the overflow cache directory, or "" before anything was cached.
func (c *Client) CacheDir() string {
	return c.executor.Cache().Dir()
}

func (c *Client) withSystemPrompt(history []llm.Message) []llm.Message {
	if c.systemPrompt == "" || (len(history) > 0 && history[0].Role == llm.RoleSystem) {
		return history
	}
	out := make([]llm.Message, 0, len(history)+1)
	out = append(out, llm.SystemText(c.systemPrompt))
	return append(out, history...)
}
