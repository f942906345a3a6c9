package tools

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// CacheEntry is the full text of an oversized tool result.
type CacheEntry struct {
	Path    string // Copy on disk
	Source  string // File the content was read from
	Content string
}

// OverflowCache holds full tool results whose UI rendition was summarized,
// keyed by tool call ID. It is backed by a private temp directory created on
// first use and removed by Cleanup.
type OverflowCache struct {
	mu      sync.Mutex
	dir     string
	seq     int
	entries map[string]CacheEntry
	logger  *zap.Logger
}

func NewOverflowCache(logger *zap.Logger) *OverflowCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OverflowCache{
		entries: make(map[string]CacheEntry),
		logger:  logger.Named("overflow"),
	}
}

// Put stores content for the tool call id. An existing entry for the same id
// is replaced.
func (c *OverflowCache) Put(id, source, content string) (CacheEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.dir == "" {
		dir, err := os.MkdirTemp("", "term-chat-overflow-")
		if err != nil {
			return CacheEntry{}, fmt.Errorf("create overflow dir: %w", err)
		}
		c.dir = dir
	}

	c.seq++
	path := filepath.Join(c.dir, fmt.Sprintf("%04d-%s", c.seq, cacheFileName(id)))
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		return CacheEntry{}, fmt.Errorf("write overflow entry: %w", err)
	}
	if _, ok := c.entries[id]; ok {
		c.logger.Warn("replacing overflow entry", zap.String("tool_call_id", id))
	}
	entry := CacheEntry{Path: path, Source: source, Content: content}
	c.entries[id] = entry
	c.logger.Debug("cached tool result",
		zap.String("tool_call_id", id),
		zap.String("path", path),
		zap.Int("bytes", len(content)))
	return entry, nil
}

func (c *OverflowCache) Get(id string) (CacheEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[id]
	return entry, ok
}

// Len returns the number of cached results.
func (c *OverflowCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Dir returns the backing directory, or "" before the first Put.
func (c *OverflowCache) Dir() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dir
}

// Cleanup removes the backing directory and forgets every entry. It may be
// called repeatedly and from any goroutine.
func (c *OverflowCache) Cleanup() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]CacheEntry)
	if c.dir == "" {
		return nil
	}
	dir := c.dir
	c.dir = ""
	if err := os.RemoveAll(dir); err != nil {
		c.logger.Warn("failed to remove overflow dir", zap.String("path", dir), zap.Error(err))
		return fmt.Errorf("remove overflow dir: %w", err)
	}
	return nil
}

// cacheFileName maps a tool call ID onto a safe file name.
func cacheFileName(id string) string {
	name := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, id)
	if name == "" {
		name = "result"
	}
	return name + ".txt"
}
