package llm

import (
	"fmt"
	"slices"
	"time"

	"github.com/Veraticus/the-books-must-balance/internal/common"
)

// Capability names a kind of work a provider can do.
type Capability string

// Known capabilities.
const (
	CapabilityCategorization    Capability = "categorization"
	CapabilityInsightGeneration Capability = "insight-generation"
)

// Provider identifiers shipped by default.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderGemini    = "gemini"

	// DefaultProviderID is returned by the selector when no provider
	// supports a capability.
	DefaultProviderID = ProviderOpenAI
)

// ProviderConfig describes one AI backend. It is read-only once loaded.
type ProviderConfig struct {
	ID           string
	Kind         string // adapter to use; defaults to ID
	Model        string
	APIKey       string
	BaseURL      string
	Capabilities []Capability
	Weight       float64
	CostUnit     float64
	Temperature  float64
	Timeout      time.Duration
	MaxRetries   int
	MaxTokens    int
	RateLimit    int // requests per minute; zero disables limiting
}

// AdapterKind returns the adapter this provider should use.
func (p ProviderConfig) AdapterKind() string {
	if p.Kind != "" {
		return p.Kind
	}
	return p.ID
}

// Supports reports whether the provider declares capability.
func (p ProviderConfig) Supports(capability Capability) bool {
	return slices.Contains(p.Capabilities, capability)
}

// Validate checks the provider configuration.
func (p ProviderConfig) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("%w: provider id is required", common.ErrInvalidConfig)
	}
	if p.Weight < 0 {
		return fmt.Errorf("%w: provider %s weight cannot be negative", common.ErrInvalidConfig, p.ID)
	}
	if p.MaxRetries < 0 {
		return fmt.Errorf("%w: provider %s max_retries cannot be negative", common.ErrInvalidConfig, p.ID)
	}
	if p.Timeout <= 0 {
		return fmt.Errorf("%w: provider %s timeout must be positive", common.ErrInvalidConfig, p.ID)
	}
	if p.RateLimit < 0 {
		return fmt.Errorf("%w: provider %s rate_limit cannot be negative", common.ErrInvalidConfig, p.ID)
	}
	return nil
}

// DefaultProviders returns the built-in provider table.
func DefaultProviders() []ProviderConfig {
	return []ProviderConfig{
		{
			ID:           ProviderOpenAI,
			Model:        "gpt-4o-mini",
			Capabilities: []Capability{CapabilityCategorization, CapabilityInsightGeneration},
			Weight:       50,
			CostUnit:     1.0,
			Timeout:      30 * time.Second,
			MaxRetries:   2,
		},
		{
			ID:           ProviderAnthropic,
			Model:        "claude-3-5-haiku-latest",
			Capabilities: []Capability{CapabilityCategorization, CapabilityInsightGeneration},
			Weight:       30,
			CostUnit:     1.5,
			Timeout:      30 * time.Second,
			MaxRetries:   2,
		},
		{
			ID:           ProviderGemini,
			Model:        "gemini-1.5-flash",
			Capabilities: []Capability{CapabilityCategorization},
			Weight:       20,
			CostUnit:     0.5,
			Timeout:      20 * time.Second,
			MaxRetries:   1,
		},
	}
}

// Registry is the immutable set of configured providers.
type Registry struct {
	byID      map[string]ProviderConfig
	defaultID string
	providers []ProviderConfig
}

// NewRegistry validates providers and builds a registry. Provider order is
// preserved; it determines how the selector walks weights.
func NewRegistry(providers []ProviderConfig, defaultID string) (*Registry, error) {
	if defaultID == "" {
		defaultID = DefaultProviderID
	}

	byID := make(map[string]ProviderConfig, len(providers))
	for _, p := range providers {
		if err := p.Validate(); err != nil {
			return nil, err
		}
		if _, dup := byID[p.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate provider %s", common.ErrInvalidConfig, p.ID)
		}
		p.Capabilities = slices.Clone(p.Capabilities)
		byID[p.ID] = p
	}

	ordered := make([]ProviderConfig, 0, len(providers))
	for _, p := range providers {
		ordered = append(ordered, byID[p.ID])
	}

	return &Registry{
		byID:      byID,
		defaultID: defaultID,
		providers: ordered,
	}, nil
}

// Get returns the provider with id.
func (r *Registry) Get(id string) (ProviderConfig, bool) {
	p, ok := r.byID[id]
	return p, ok
}

// All returns every provider in registry order.
func (r *Registry) All() []ProviderConfig {
	return slices.Clone(r.providers)
}

// Capable returns the providers supporting capability, in registry order.
func (r *Registry) Capable(capability Capability) []ProviderConfig {
	var out []ProviderConfig
	for _, p := range r.providers {
		if p.Supports(capability) {
			out = append(out, p)
		}
	}
	return out
}

// Restrict returns a registry holding only the providers keep accepts, in
// the same order and with the same default id.
func (r *Registry) Restrict(keep func(ProviderConfig) bool) *Registry {
	out := &Registry{
		byID:      make(map[string]ProviderConfig, len(r.providers)),
		defaultID: r.defaultID,
	}
	for _, p := range r.providers {
		if keep(p) {
			out.byID[p.ID] = p
			out.providers = append(out.providers, p)
		}
	}
	return out
}

// DefaultID returns the fallback provider id.
func (r *Registry) DefaultID() string {
	return r.defaultID
}
