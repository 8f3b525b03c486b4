package service

import (
	"context"
	"errors"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"archpipe/internal/config"
)

const anthropicDefaultMaxTokens = 4096

// AnthropicProvider submits prompts through the Anthropic Messages API
type AnthropicProvider struct {
	client *anthropic.Client
	model  string
}

// NewAnthropicProvider creates an Anthropic client, or an unavailable stand-in
// when no API key is configured
func NewAnthropicProvider(cfg config.ProviderConfig) Client {
	if !cfg.Enabled() {
		return missingKey(ProviderAnthropic)
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.APIBase != "" {
		opts = append(opts, option.WithBaseURL(cfg.APIBase))
	}
	client := anthropic.NewClient(opts...)

	return &AnthropicProvider{client: &client, model: cfg.Model}
}

// Name returns the provider identifier
func (p *AnthropicProvider) Name() string { return ProviderAnthropic }

// Available reports true; construction already verified credentials
func (p *AnthropicProvider) Available() bool { return true }

// Submit sends a single-turn message and concatenates the text blocks of the reply
func (p *AnthropicProvider) Submit(ctx context.Context, prompt Prompt, cfg GenerationConfig) (string, error) {
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = anthropicDefaultMaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model),
		MaxTokens: int64(maxTokens),
		System: []anthropic.TextBlockParam{
			{Text: prompt.System},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt.User)),
		},
		Temperature: anthropic.Float(cfg.Temperature),
	}

	msg, err := p.client.Messages.New(ctx, params)
	if err != nil {
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			return "", newProviderError(ProviderAnthropic, apiErr.StatusCode, err)
		}
		return "", newProviderError(ProviderAnthropic, 0, err)
	}

	var b strings.Builder
	for _, block := range msg.Content {
		if text, ok := block.AsAny().(anthropic.TextBlock); ok {
			b.WriteString(text.Text)
		}
	}
	return b.String(), nil
}
