package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"archpipe/internal/config"
)

// Prompt is the fully rendered instruction sent to a provider
type Prompt struct {
	Task   TaskKind
	System string
	User   string
}

// Text returns system and user parts joined, used for logging and hashing
func (p Prompt) Text() string {
	return p.System + "\n\n" + p.User
}

// GenerationConfig holds sampling parameters shared by all providers
type GenerationConfig struct {
	Temperature float64
	MaxTokens   int
	JSONMode    bool // request a JSON object response where the backend supports it
}

// Client is a uniform interface to a text-generation backend.
//
// Submit must honor ctx cancellation and return a *ProviderError whose kind is
// one of ErrTimeout, ErrRateLimited, ErrAuthFailure, ErrTransientNetwork or
// ErrUnavailable. Available is decided once at construction.
type Client interface {
	Name() string
	Available() bool
	Submit(ctx context.Context, prompt Prompt, cfg GenerationConfig) (string, error)
}

// Provider names accepted in PROVIDER_ORDER
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderGemini    = "gemini"
	ProviderCompat    = "compat"
)

// unavailableClient stands in for a provider whose configuration is absent or
// whose SDK client could not be constructed
type unavailableClient struct {
	name   string
	reason string
}

func (u *unavailableClient) Name() string    { return u.name }
func (u *unavailableClient) Available() bool { return false }

func (u *unavailableClient) Submit(context.Context, Prompt, GenerationConfig) (string, error) {
	return "", &ProviderError{Provider: u.name, Kind: ErrUnavailable, Err: fmt.Errorf("%s", u.reason)}
}

// NewProvidersFromConfig constructs clients in PROVIDER_ORDER priority order.
// Unknown names are logged and ignored.
func NewProvidersFromConfig(ctx context.Context, cfg config.ProvidersConfig, logger zerolog.Logger) []Client {
	var clients []Client
	for _, name := range cfg.ProviderOrder() {
		var c Client
		switch name {
		case ProviderOpenAI:
			c = NewOpenAIProvider(cfg.OpenAI)
		case ProviderAnthropic:
			c = NewAnthropicProvider(cfg.Anthropic)
		case ProviderGemini:
			c = NewGeminiProvider(ctx, cfg.Gemini)
		case ProviderCompat:
			c = NewCompatProvider(cfg.Compat, logger)
		default:
			logger.Warn().Str("provider", name).Msg("unknown provider in PROVIDER_ORDER, ignoring")
			continue
		}
		logger.Info().
			Str("provider", c.Name()).
			Bool("available", c.Available()).
			Msg("provider configured")
		clients = append(clients, c)
	}
	return clients
}

// ProviderStatus describes one configured provider for diagnostics
type ProviderStatus struct {
	Name      string `json:"name"`
	Available bool   `json:"available"`
	Priority  int    `json:"priority"`
}

// DescribeProviders lists providers with their availability in priority order
func DescribeProviders(clients []Client) []ProviderStatus {
	out := make([]ProviderStatus, 0, len(clients))
	for i, c := range clients {
		out = append(out, ProviderStatus{Name: c.Name(), Available: c.Available(), Priority: i + 1})
	}
	return out
}

func missingKey(provider string) *unavailableClient {
	return &unavailableClient{
		name:   provider,
		reason: fmt.Sprintf("%s_API_KEY is not set", strings.ToUpper(provider)),
	}
}
