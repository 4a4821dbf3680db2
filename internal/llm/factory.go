package llm

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Veraticus/the-books-must-balance/internal/common"
)

// NewAdapter creates the adapter for a provider configuration.
func NewAdapter(cfg ProviderConfig) (Adapter, error) {
	switch strings.ToLower(cfg.AdapterKind()) {
	case ProviderOpenAI:
		return newOpenAIAdapter(cfg)
	case ProviderAnthropic:
		return newAnthropicAdapter(cfg)
	case ProviderGemini:
		return newGeminiAdapter(cfg)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, cfg.AdapterKind())
	}
}

// NewAdapters builds adapters for every registry provider. Providers
// without an API key are skipped with a warning; other errors are fatal.
func NewAdapters(registry *Registry, logger *slog.Logger) (map[string]Adapter, error) {
	logger = common.OrDefault(logger)
	adapters := make(map[string]Adapter)

	for _, cfg := range registry.All() {
		adapter, err := NewAdapter(cfg)
		if errors.Is(err, ErrMissingAPIKey) {
			logger.Warn("provider disabled: no API key", "provider", cfg.ID)
			continue
		}
		if err != nil {
			return nil, err
		}
		adapters[cfg.ID] = adapter
	}

	return adapters, nil
}

// Usable narrows registry to the providers that have an adapter, so the
// selector never draws a provider that cannot be called.
func Usable(registry *Registry, adapters map[string]Adapter) *Registry {
	return registry.Restrict(func(p ProviderConfig) bool {
		_, ok := adapters[p.ID]
		return ok
	})
}
