package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"archpipe/internal/config"
)

// OpenAIProvider submits prompts through the official OpenAI SDK
type OpenAIProvider struct {
	client *openai.Client
	model  string
}

// NewOpenAIProvider creates an OpenAI client, or an unavailable stand-in when
// no API key is configured
func NewOpenAIProvider(cfg config.ProviderConfig) Client {
	if !cfg.Enabled() {
		return missingKey(ProviderOpenAI)
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0), // retries belong to the orchestrator
	}
	if cfg.APIBase != "" {
		opts = append(opts, option.WithBaseURL(cfg.APIBase))
	}
	client := openai.NewClient(opts...)

	return &OpenAIProvider{client: &client, model: cfg.Model}
}

// Name returns the provider identifier
func (p *OpenAIProvider) Name() string { return ProviderOpenAI }

// Available reports true; construction already verified credentials
func (p *OpenAIProvider) Available() bool { return true }

// Submit performs a non-streaming chat completion
func (p *OpenAIProvider) Submit(ctx context.Context, prompt Prompt, cfg GenerationConfig) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model: shared.ChatModel(p.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(prompt.System),
			openai.UserMessage(prompt.User),
		},
		Temperature: openai.Float(cfg.Temperature),
	}
	if cfg.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(cfg.MaxTokens))
	}
	if cfg.JSONMode {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		}
	}

	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return "", newProviderError(ProviderOpenAI, apiErr.StatusCode, err)
		}
		return "", newProviderError(ProviderOpenAI, 0, err)
	}
	if len(resp.Choices) == 0 {
		return "", newProviderError(ProviderOpenAI, 0, fmt.Errorf("%w: no choices in response", ErrTransientNetwork))
	}
	return resp.Choices[0].Message.Content, nil
}
