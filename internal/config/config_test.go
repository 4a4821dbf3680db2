package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/the-books-must-balance/internal/common"
	"github.com/Veraticus/the-books-must-balance/internal/llm"
)

func clearKeys(t *testing.T) {
	t.Helper()
	for _, env := range apiKeyEnv {
		t.Setenv(env, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearKeys(t)

	cfg, err := Load(viper.New())
	require.NoError(t, err)

	home, err := os.UserHomeDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".local/share/books/books.db"), cfg.DatabasePath)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.InDelta(t, 0.9, cfg.Rules.ShortCircuitFloor, 1e-9)
	assert.Equal(t, 5*time.Minute, cfg.Rules.CacheTTL)
	assert.Equal(t, 3, cfg.Promotion.Threshold)
	assert.Equal(t, llm.CapabilityCategorization, cfg.Engine.Capability)
	assert.Zero(t, cfg.Engine.MaxAttempts)
	assert.Nil(t, cfg.RNG())

	require.Len(t, cfg.Providers, 3)
	assert.Equal(t, llm.ProviderOpenAI, cfg.Providers[0].ID)
	assert.InDelta(t, 50.0, cfg.Providers[0].Weight, 1e-9)

	registry, err := cfg.Registry()
	require.NoError(t, err)
	assert.Equal(t, llm.DefaultProviderID, registry.DefaultID())
}

func TestLoad_ProviderOverrides(t *testing.T) {
	clearKeys(t)
	t.Setenv("ANTHROPIC_API_KEY", "from-env")

	v := viper.New()
	v.Set("providers.openai.weight", 10)
	v.Set("providers.openai.api_key", "from-config")
	v.Set("providers.openai.timeout", "5s")
	v.Set("providers.gemini.enabled", false)
	v.Set("providers.local.kind", "openai")
	v.Set("providers.local.base_url", "http://localhost:8080/v1")
	v.Set("providers.local.weight", 5)
	v.Set("providers.local.capabilities", []string{"categorization"})
	v.Set("selector.seed", 42)
	v.Set("default_provider", "anthropic")

	cfg, err := Load(v)
	require.NoError(t, err)

	require.Len(t, cfg.Providers, 3)
	openai, anthropic, local := cfg.Providers[0], cfg.Providers[1], cfg.Providers[2]

	assert.InDelta(t, 10.0, openai.Weight, 1e-9)
	assert.Equal(t, "from-config", openai.APIKey)
	assert.Equal(t, 5*time.Second, openai.Timeout)
	assert.Equal(t, "from-env", anthropic.APIKey)

	assert.Equal(t, "local", local.ID)
	assert.Equal(t, "openai", local.AdapterKind())
	assert.True(t, local.Supports(llm.CapabilityCategorization))
	assert.Equal(t, "http://localhost:8080/v1", local.BaseURL)

	assert.NotNil(t, cfg.RNG())
	assert.Equal(t, "anthropic", cfg.DefaultProvider)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		set  map[string]any
		name string
	}{
		{name: "floor above one", set: map[string]any{"rules.short_circuit_floor": 1.5}},
		{name: "negative weight", set: map[string]any{"providers.openai.weight": -1}},
		{name: "bad log level", set: map[string]any{"logging.level": "loud"}},
		{name: "unknown default provider", set: map[string]any{"default_provider": "mistral"}},
		{name: "zero threshold", set: map[string]any{"promotion.threshold": 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearKeys(t)
			v := viper.New()
			for k, val := range tt.set {
				v.Set(k, val)
			}
			_, err := Load(v)
			assert.ErrorIs(t, err, common.ErrInvalidConfig)
		})
	}
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)
	t.Setenv("BOOKS_TEST_DIR", "/srv/books")

	tests := []struct {
		in   string
		want string
	}{
		{in: "", want: ""},
		{in: "~", want: home},
		{in: "~/books.db", want: filepath.Join(home, "books.db")},
		{in: "$BOOKS_TEST_DIR/books.db", want: "/srv/books/books.db"},
		{in: "/abs/books.db", want: "/abs/books.db"},
		{in: "~other/books.db", want: "~other/books.db"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ExpandPath(tt.in))
		})
	}
}
