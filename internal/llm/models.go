package llm

import (
	"errors"
	"strings"
)

// ErrNoModels is returned when a registry is built from an empty model list.
var ErrNoModels = errors.New("no models configured")

// DefaultModels is the fallback order used when the config does not list any.
// Free OpenRouter models tend to be rate limited or briefly unavailable, hence
// more than one entry.
var DefaultModels = []string{
	"deepseek/deepseek-chat-v3-0324:free",
	"meta-llama/llama-3.3-70b-instruct:free",
	"mistralai/mistral-small-3.1-24b-instruct:free",
	"google/gemma-3-27b-it:free",
}

// ModelRegistry is an ordered, immutable list of model identifiers that are
// tried top to bottom for every logical request.
type ModelRegistry struct {
	models []string
}

// NewModelRegistry builds a registry from models, dropping blank and
// duplicate entries while keeping the first occurrence's position.
func NewModelRegistry(models []string) (*ModelRegistry, error) {
	seen := make(map[string]struct{}, len(models))
	out := make([]string, 0, len(models))
	for _, m := range models {
		m = strings.TrimSpace(m)
		if m == "" {
			continue
		}
		if _, ok := seen[m]; ok {
			continue
		}
		seen[m] = struct{}{}
		out = append(out, m)
	}
	if len(out) == 0 {
		return nil, ErrNoModels
	}
	return &ModelRegistry{models: out}, nil
}

// Models returns a copy of the registry in priority order.
func (r *ModelRegistry) Models() []string {
	out := make([]string, len(r.models))
	copy(out, r.models)
	return out
}

// Primary returns the first model tried for every request.
func (r *ModelRegistry) Primary() string {
	return r.models[0]
}
