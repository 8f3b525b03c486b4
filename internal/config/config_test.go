package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := LoadFrom(viper.New())
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Pipeline.AgentTimeout)
	assert.Equal(t, 10*time.Second, cfg.Pipeline.AttemptTimeout)
	assert.Equal(t, 2*time.Second, cfg.Pipeline.AggregationMargin)
	assert.Equal(t, 4000, cfg.Pipeline.PromptMinChars)
	assert.InDelta(t, 0.9, cfg.Pipeline.FallbackCeiling, 1e-9)
	assert.Equal(t, "memory", cfg.Cache.Backend)
	assert.Equal(t, 24*time.Hour, cfg.Cache.TTL)
	assert.Equal(t, []string{"openai", "anthropic", "gemini", "compat"}, cfg.Providers.ProviderOrder())
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("AGENT_TIMEOUT", "45s")
	t.Setenv("CACHE_BACKEND", "redis")
	t.Setenv("CACHE_TTL", "0s")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("PROVIDER_ORDER", "Gemini, openai,gemini,,")
	t.Setenv("FALLBACK_CONFIDENCE_CEILING", "0.8")

	cfg, err := LoadFrom(viper.New())
	require.NoError(t, err)

	assert.Equal(t, 45*time.Second, cfg.Pipeline.AgentTimeout)
	assert.Equal(t, "redis", cfg.Cache.Backend)
	assert.Equal(t, time.Duration(0), cfg.Cache.TTL)
	assert.True(t, cfg.Providers.OpenAI.Enabled())
	assert.False(t, cfg.Providers.Anthropic.Enabled())
	assert.Equal(t, []string{"gemini", "openai"}, cfg.Providers.ProviderOrder())
	assert.InDelta(t, 0.8, cfg.Pipeline.FallbackCeiling, 1e-9)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"ceiling above one", map[string]string{"FALLBACK_CONFIDENCE_CEILING": "1.5"}},
		{"unknown cache backend", map[string]string{"CACHE_BACKEND": "memcached"}},
		{"zero agent timeout", map[string]string{"AGENT_TIMEOUT": "0s"}},
		{"attempt timeout too close to agent timeout", map[string]string{"ATTEMPT_TIMEOUT": "20s", "AGENT_TIMEOUT": "30s"}},
		{"max below min prompt", map[string]string{"PROMPT_MAX_INPUT_CHARS": "100"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := LoadFrom(viper.New())
			assert.Error(t, err)
		})
	}
}
