package config

import (
	"fmt"
	"os"
	"slices"
	"sort"
	"time"

	"github.com/spf13/viper"

	"github.com/Veraticus/the-books-must-balance/internal/common"
	"github.com/Veraticus/the-books-must-balance/internal/engine"
	"github.com/Veraticus/the-books-must-balance/internal/feedback"
	"github.com/Veraticus/the-books-must-balance/internal/llm"
	"github.com/Veraticus/the-books-must-balance/internal/pattern"
)

// Default file locations.
const (
	DefaultDatabasePath = "~/.local/share/books/books.db"
	DefaultAuditPath    = "~/.local/share/books/audit.jsonl"
)

// apiKeyEnv maps adapter kinds to the environment variable holding their key.
var apiKeyEnv = map[string]string{
	llm.ProviderOpenAI:    "OPENAI_API_KEY",
	llm.ProviderAnthropic: "ANTHROPIC_API_KEY",
	llm.ProviderGemini:    "GEMINI_API_KEY",
}

// LoggingConfig controls the process logger.
type LoggingConfig struct {
	Level  string
	Format string
}

// RulesConfig controls the rule engine and its cache.
type RulesConfig struct {
	ShortCircuitFloor float64
	CacheTTL          time.Duration
}

// Config is the typed application configuration.
type Config struct {
	DatabasePath    string
	AuditPath       string
	DefaultProvider string
	Logging         LoggingConfig
	Providers       []llm.ProviderConfig
	Engine          engine.Options
	Promotion       feedback.Options
	Rules           RulesConfig
	SelectorSeed    uint64
}

// SetDefaults registers default values on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("database.path", DefaultDatabasePath)
	v.SetDefault("audit.path", DefaultAuditPath)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("rules.short_circuit_floor", pattern.DefaultShortCircuitFloor)
	v.SetDefault("rules.cache_ttl", pattern.DefaultCacheTTL)

	opts := engine.DefaultOptions()
	v.SetDefault("engine.capability", string(opts.Capability))
	v.SetDefault("engine.history_limit", opts.HistoryLimit)
	v.SetDefault("engine.batch_concurrency", opts.BatchConcurrency)

	promo := feedback.DefaultOptions()
	v.SetDefault("promotion.threshold", promo.Threshold)
	v.SetDefault("promotion.similarity", promo.Similarity)
	v.SetDefault("promotion.initial_confidence", promo.InitialConfidence)
	v.SetDefault("promotion.reinforce_step", promo.ReinforceStep)
	v.SetDefault("promotion.max_confidence", promo.MaxConfidence)
}

// Load builds a Config from v. Values come from the config file or BOOKS_
// environment variables; provider API keys fall back to each vendor's
// conventional environment variable.
func Load(v *viper.Viper) (*Config, error) {
	SetDefaults(v)

	cfg := &Config{
		DatabasePath:    ExpandPath(v.GetString("database.path")),
		AuditPath:       ExpandPath(v.GetString("audit.path")),
		DefaultProvider: v.GetString("default_provider"),
		Logging: LoggingConfig{
			Level:  v.GetString("logging.level"),
			Format: v.GetString("logging.format"),
		},
		Rules: RulesConfig{
			ShortCircuitFloor: v.GetFloat64("rules.short_circuit_floor"),
			CacheTTL:          v.GetDuration("rules.cache_ttl"),
		},
		Engine: engine.Options{
			Capability:            llm.Capability(v.GetString("engine.capability")),
			MaxAttempts:           v.GetInt("engine.max_attempts"),
			HistoryLimit:          v.GetInt("engine.history_limit"),
			BatchConcurrency:      v.GetInt("engine.batch_concurrency"),
			PersistSuggestedRules: v.GetBool("engine.persist_suggested_rules"),
		},
		Promotion: feedback.Options{
			Threshold:         v.GetInt("promotion.threshold"),
			Similarity:        v.GetFloat64("promotion.similarity"),
			InitialConfidence: v.GetFloat64("promotion.initial_confidence"),
			ReinforceStep:     v.GetFloat64("promotion.reinforce_step"),
			MaxConfidence:     v.GetFloat64("promotion.max_confidence"),
		},
		SelectorSeed: v.GetUint64("selector.seed"),
	}

	providers, err := loadProviders(v)
	if err != nil {
		return nil, err
	}
	cfg.Providers = providers

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	if c.DatabasePath == "" {
		return fmt.Errorf("%w: database.path is required", common.ErrMissingConfig)
	}
	if c.Rules.ShortCircuitFloor <= 0 || c.Rules.ShortCircuitFloor > 1 {
		return fmt.Errorf("%w: rules.short_circuit_floor must be in (0,1], got %.2f", common.ErrInvalidConfig, c.Rules.ShortCircuitFloor)
	}
	if c.Rules.CacheTTL < 0 {
		return fmt.Errorf("%w: rules.cache_ttl cannot be negative", common.ErrInvalidConfig)
	}
	if c.Promotion.Threshold < 1 {
		return fmt.Errorf("%w: promotion.threshold must be at least 1", common.ErrInvalidConfig)
	}
	if _, err := common.ParseLevel(c.Logging.Level); err != nil {
		return err
	}
	if c.DefaultProvider != "" && !slices.ContainsFunc(c.Providers, func(p llm.ProviderConfig) bool {
		return p.ID == c.DefaultProvider
	}) {
		return fmt.Errorf("%w: default_provider %q is not configured", common.ErrInvalidConfig, c.DefaultProvider)
	}
	return nil
}

// Registry builds the provider registry.
func (c *Config) Registry() (*llm.Registry, error) {
	return llm.NewRegistry(c.Providers, c.DefaultProvider)
}

// RNG returns the selector's random source: seeded when selector.seed is
// set, process-wide otherwise.
func (c *Config) RNG() llm.RNG {
	if c.SelectorSeed == 0 {
		return nil
	}
	return llm.NewSeededRNG(c.SelectorSeed)
}

// loadProviders overlays configured provider settings on the built-in
// table. Providers not in the table are added in name order; a provider
// with enabled=false is removed.
func loadProviders(v *viper.Viper) ([]llm.ProviderConfig, error) {
	defaults := llm.DefaultProviders()
	known := make(map[string]bool, len(defaults))
	for _, p := range defaults {
		known[p.ID] = true
	}

	var extra []string
	for id := range v.GetStringMap("providers") {
		if !known[id] {
			extra = append(extra, id)
		}
	}
	sort.Strings(extra)

	all := defaults
	for _, id := range extra {
		all = append(all, llm.ProviderConfig{ID: id, Timeout: 30 * time.Second, MaxRetries: 1})
	}

	out := make([]llm.ProviderConfig, 0, len(all))
	for _, p := range all {
		prefix := "providers." + p.ID + "."
		if v.IsSet(prefix+"enabled") && !v.GetBool(prefix+"enabled") {
			continue
		}

		p = overlayProvider(v, prefix, p)
		if p.APIKey == "" {
			if env, ok := apiKeyEnv[p.AdapterKind()]; ok {
				p.APIKey = os.Getenv(env)
			}
		}

		if err := p.Validate(); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func overlayProvider(v *viper.Viper, prefix string, p llm.ProviderConfig) llm.ProviderConfig {
	if v.IsSet(prefix + "kind") {
		p.Kind = v.GetString(prefix + "kind")
	}
	if v.IsSet(prefix + "model") {
		p.Model = v.GetString(prefix + "model")
	}
	if v.IsSet(prefix + "api_key") {
		p.APIKey = v.GetString(prefix + "api_key")
	}
	if v.IsSet(prefix + "base_url") {
		p.BaseURL = v.GetString(prefix + "base_url")
	}
	if v.IsSet(prefix + "weight") {
		p.Weight = v.GetFloat64(prefix + "weight")
	}
	if v.IsSet(prefix + "cost") {
		p.CostUnit = v.GetFloat64(prefix + "cost")
	}
	if v.IsSet(prefix + "temperature") {
		p.Temperature = v.GetFloat64(prefix + "temperature")
	}
	if v.IsSet(prefix + "timeout") {
		p.Timeout = v.GetDuration(prefix + "timeout")
	}
	if v.IsSet(prefix + "max_retries") {
		p.MaxRetries = v.GetInt(prefix + "max_retries")
	}
	if v.IsSet(prefix + "max_tokens") {
		p.MaxTokens = v.GetInt(prefix + "max_tokens")
	}
	if v.IsSet(prefix + "rate_limit") {
		p.RateLimit = v.GetInt(prefix + "rate_limit")
	}
	if v.IsSet(prefix + "capabilities") {
		var caps []llm.Capability
		for _, c := range v.GetStringSlice(prefix + "capabilities") {
			caps = append(caps, llm.Capability(c))
		}
		p.Capabilities = caps
	}
	return p
}
