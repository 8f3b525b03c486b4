package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Providers ProvidersConfig `mapstructure:"providers"`
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port           int    `mapstructure:"port"`
	Host           string `mapstructure:"host"`
	GinMode        string `mapstructure:"gin_mode"`
	AllowedOrigins string `mapstructure:"allowed_origins"`
	AllowedMethods string `mapstructure:"allowed_methods"`
	AllowedHeaders string `mapstructure:"allowed_headers"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"` // json or console
	File       string `mapstructure:"file"`   // optional rotated file sink
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// PipelineConfig holds orchestration knobs
type PipelineConfig struct {
	AgentTimeout       time.Duration `mapstructure:"agent_timeout"`
	AttemptTimeout     time.Duration `mapstructure:"attempt_timeout"`
	AggregationMargin  time.Duration `mapstructure:"aggregation_margin"`
	RetryDelay         time.Duration `mapstructure:"retry_delay"`
	PromptMinChars     int           `mapstructure:"prompt_min_chars"`
	PromptMaxChars     int           `mapstructure:"prompt_max_chars"`
	FallbackCeiling    float64       `mapstructure:"fallback_ceiling"`
	Temperature        float64       `mapstructure:"temperature"`
	MaxTokens          int           `mapstructure:"max_tokens"`
	AgentSpecsFile     string        `mapstructure:"agent_specs_file"`
	SchemaDefaultsFile string        `mapstructure:"schema_defaults_file"`
}

// CacheConfig holds result cache configuration
type CacheConfig struct {
	Backend       string        `mapstructure:"backend"` // memory, postgres, sqlite, redis or none
	TTL           time.Duration `mapstructure:"ttl"`     // 0 disables expiry
	FallbackTTL   time.Duration `mapstructure:"fallback_ttl"`
	Size          int           `mapstructure:"size"`
	DatabaseURL   string        `mapstructure:"database_url"`
	SQLitePath    string        `mapstructure:"sqlite_path"`
	RedisAddr     string        `mapstructure:"redis_addr"`
	RedisPassword string        `mapstructure:"redis_password"`
	RedisDB       int           `mapstructure:"redis_db"`
	KeyPrefix     string        `mapstructure:"key_prefix"`
}

// ProvidersConfig holds credentials for every text-generation backend
type ProvidersConfig struct {
	Order     string         `mapstructure:"order"` // comma separated priority list
	OpenAI    ProviderConfig `mapstructure:"openai"`
	Anthropic ProviderConfig `mapstructure:"anthropic"`
	Gemini    ProviderConfig `mapstructure:"gemini"`
	Compat    ProviderConfig `mapstructure:"compat"`
}

// ProviderConfig holds one backend's credentials. A provider without an API key
// reports itself unavailable.
type ProviderConfig struct {
	APIKey    string `mapstructure:"api_key"`
	APIBase   string `mapstructure:"api_base"`
	Model     string `mapstructure:"model"`
	ExtraBody string `mapstructure:"extra_body"` // JSON merged into OpenAI-compatible requests
}

// Enabled reports whether credentials are present
func (p ProviderConfig) Enabled() bool {
	return strings.TrimSpace(p.APIKey) != ""
}

// ProviderOrder returns the configured provider names in priority order
func (c *ProvidersConfig) ProviderOrder() []string {
	var out []string
	seen := map[string]bool{}
	for _, name := range strings.Split(c.Order, ",") {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, name)
	}
	return out
}

// envBindings maps config keys to environment variables
var envBindings = map[string]string{
	"server.port":            "SERVER_PORT",
	"server.host":            "SERVER_HOST",
	"server.gin_mode":        "GIN_MODE",
	"server.allowed_origins": "CORS_ALLOWED_ORIGINS",
	"server.allowed_methods": "CORS_ALLOWED_METHODS",
	"server.allowed_headers": "CORS_ALLOWED_HEADERS",

	"logging.level":        "LOG_LEVEL",
	"logging.format":       "LOG_FORMAT",
	"logging.file":         "LOG_FILE",
	"logging.max_size_mb":  "LOG_MAX_SIZE_MB",
	"logging.max_backups":  "LOG_MAX_BACKUPS",
	"logging.max_age_days": "LOG_MAX_AGE_DAYS",

	"pipeline.agent_timeout":        "AGENT_TIMEOUT",
	"pipeline.attempt_timeout":      "ATTEMPT_TIMEOUT",
	"pipeline.aggregation_margin":   "AGGREGATION_MARGIN",
	"pipeline.retry_delay":          "RETRY_DELAY",
	"pipeline.prompt_min_chars":     "PROMPT_MIN_INPUT_CHARS",
	"pipeline.prompt_max_chars":     "PROMPT_MAX_INPUT_CHARS",
	"pipeline.fallback_ceiling":     "FALLBACK_CONFIDENCE_CEILING",
	"pipeline.temperature":          "GENERATION_TEMPERATURE",
	"pipeline.max_tokens":           "GENERATION_MAX_TOKENS",
	"pipeline.agent_specs_file":     "AGENT_SPECS_FILE",
	"pipeline.schema_defaults_file": "SCHEMA_DEFAULTS_FILE",

	"cache.backend":        "CACHE_BACKEND",
	"cache.ttl":            "CACHE_TTL",
	"cache.fallback_ttl":   "CACHE_FALLBACK_TTL",
	"cache.size":           "CACHE_SIZE",
	"cache.database_url":   "DATABASE_URL",
	"cache.sqlite_path":    "SQLITE_PATH",
	"cache.redis_addr":     "REDIS_ADDR",
	"cache.redis_password": "REDIS_PASSWORD",
	"cache.redis_db":       "REDIS_DB",
	"cache.key_prefix":     "CACHE_KEY_PREFIX",

	"providers.order":              "PROVIDER_ORDER",
	"providers.openai.api_key":     "OPENAI_API_KEY",
	"providers.openai.api_base":    "OPENAI_BASE_URL",
	"providers.openai.model":       "OPENAI_MODEL",
	"providers.anthropic.api_key":  "ANTHROPIC_API_KEY",
	"providers.anthropic.api_base": "ANTHROPIC_BASE_URL",
	"providers.anthropic.model":    "ANTHROPIC_MODEL",
	"providers.gemini.api_key":     "GEMINI_API_KEY",
	"providers.gemini.model":       "GEMINI_MODEL",
	"providers.compat.api_key":     "COMPAT_API_KEY",
	"providers.compat.api_base":    "COMPAT_API_BASE",
	"providers.compat.model":       "COMPAT_MODEL",
	"providers.compat.extra_body":  "COMPAT_EXTRA_BODY",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.gin_mode", "release")
	v.SetDefault("server.allowed_origins", "*")
	v.SetDefault("server.allowed_methods", "GET,POST,OPTIONS")
	v.SetDefault("server.allowed_headers", "Content-Type,Authorization")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.file", "")
	v.SetDefault("logging.max_size_mb", 100)
	v.SetDefault("logging.max_backups", 3)
	v.SetDefault("logging.max_age_days", 28)

	v.SetDefault("pipeline.agent_timeout", 30*time.Second)
	v.SetDefault("pipeline.attempt_timeout", 10*time.Second)
	v.SetDefault("pipeline.aggregation_margin", 2*time.Second)
	v.SetDefault("pipeline.retry_delay", 250*time.Millisecond)
	v.SetDefault("pipeline.prompt_min_chars", 4000)
	v.SetDefault("pipeline.prompt_max_chars", 16000)
	v.SetDefault("pipeline.fallback_ceiling", 0.9)
	v.SetDefault("pipeline.temperature", 0.2)
	v.SetDefault("pipeline.max_tokens", 4096)
	v.SetDefault("pipeline.agent_specs_file", "")
	v.SetDefault("pipeline.schema_defaults_file", "")

	v.SetDefault("cache.backend", "memory")
	v.SetDefault("cache.ttl", 24*time.Hour)
	v.SetDefault("cache.fallback_ttl", 10*time.Minute)
	v.SetDefault("cache.size", 1024)
	v.SetDefault("cache.database_url", "")
	v.SetDefault("cache.sqlite_path", "archpipe-cache.db")
	v.SetDefault("cache.redis_addr", "localhost:6379")
	v.SetDefault("cache.redis_password", "")
	v.SetDefault("cache.redis_db", 0)
	v.SetDefault("cache.key_prefix", "archpipe:cache:")

	v.SetDefault("providers.order", "openai,anthropic,gemini,compat")
	v.SetDefault("providers.openai.api_key", "")
	v.SetDefault("providers.openai.api_base", "")
	v.SetDefault("providers.openai.model", "gpt-4o-mini")
	v.SetDefault("providers.anthropic.api_key", "")
	v.SetDefault("providers.anthropic.api_base", "")
	v.SetDefault("providers.anthropic.model", "claude-3-5-haiku-latest")
	v.SetDefault("providers.gemini.api_key", "")
	v.SetDefault("providers.gemini.model", "gemini-2.0-flash")
	v.SetDefault("providers.compat.api_key", "")
	v.SetDefault("providers.compat.api_base", "https://integrate.api.nvidia.com/v1")
	v.SetDefault("providers.compat.model", "deepseek-ai/deepseek-v3.1-terminus")
	v.SetDefault("providers.compat.extra_body", "")
}

// Load reads configuration from an optional .env file and the environment
func Load() (*Config, error) {
	// Try to load .env file (optional)
	_ = godotenv.Load()
	return LoadFrom(viper.New())
}

// LoadFrom reads configuration through an existing viper instance, which lets
// callers layer flags or config files over the environment.
func LoadFrom(v *viper.Viper) (*Config, error) {
	setDefaults(v)
	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", env, err)
		}
	}

	var cfg Config
	decodeHook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
	))
	if err := v.Unmarshal(&cfg, decodeHook); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks value ranges that would break the pipeline
func (c *Config) Validate() error {
	p := c.Pipeline
	if p.AgentTimeout <= 0 {
		return fmt.Errorf("AGENT_TIMEOUT must be positive, got %s", p.AgentTimeout)
	}
	if p.AttemptTimeout <= 0 {
		return fmt.Errorf("ATTEMPT_TIMEOUT must be positive, got %s", p.AttemptTimeout)
	}
	if 2*p.AttemptTimeout >= p.AgentTimeout {
		// a timed-out call and its retry must leave room for the next provider
		return fmt.Errorf("ATTEMPT_TIMEOUT (%s) must be under half of AGENT_TIMEOUT (%s)", p.AttemptTimeout, p.AgentTimeout)
	}
	if p.AggregationMargin < 0 {
		return fmt.Errorf("AGGREGATION_MARGIN must not be negative, got %s", p.AggregationMargin)
	}
	if p.PromptMinChars <= 0 {
		return fmt.Errorf("PROMPT_MIN_INPUT_CHARS must be positive, got %d", p.PromptMinChars)
	}
	if p.PromptMaxChars < p.PromptMinChars {
		return fmt.Errorf("PROMPT_MAX_INPUT_CHARS (%d) below PROMPT_MIN_INPUT_CHARS (%d)", p.PromptMaxChars, p.PromptMinChars)
	}
	if p.FallbackCeiling <= 0 || p.FallbackCeiling > 1 {
		return fmt.Errorf("FALLBACK_CONFIDENCE_CEILING must be in (0,1], got %v", p.FallbackCeiling)
	}
	switch strings.ToLower(c.Cache.Backend) {
	case "memory", "postgres", "sqlite", "redis", "none", "":
	default:
		return fmt.Errorf("unknown CACHE_BACKEND %q", c.Cache.Backend)
	}
	if c.Cache.TTL < 0 {
		return fmt.Errorf("CACHE_TTL must not be negative, got %s", c.Cache.TTL)
	}
	return nil
}
