package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"archpipe/internal/config"
)

// GeminiProvider submits prompts through the Google Gen AI SDK
type GeminiProvider struct {
	client *genai.Client
	model  string
}

// NewGeminiProvider creates a Gemini client. A missing key or a client
// construction failure yields an unavailable provider.
func NewGeminiProvider(ctx context.Context, cfg config.ProviderConfig) Client {
	if !cfg.Enabled() {
		return missingKey(ProviderGemini)
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return &unavailableClient{name: ProviderGemini, reason: fmt.Sprintf("client construction failed: %v", err)}
	}
	return &GeminiProvider{client: client, model: cfg.Model}
}

// Name returns the provider identifier
func (p *GeminiProvider) Name() string { return ProviderGemini }

// Available reports true; construction already verified credentials
func (p *GeminiProvider) Available() bool { return true }

// Submit generates content with the system prompt as system instruction
func (p *GeminiProvider) Submit(ctx context.Context, prompt Prompt, cfg GenerationConfig) (string, error) {
	gc := &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: prompt.System}}},
		Temperature:       genai.Ptr(float32(cfg.Temperature)),
	}
	if cfg.MaxTokens > 0 {
		gc.MaxOutputTokens = int32(cfg.MaxTokens)
	}
	if cfg.JSONMode {
		gc.ResponseMIMEType = "application/json"
	}

	resp, err := p.client.Models.GenerateContent(ctx, p.model,
		[]*genai.Content{{Role: "user", Parts: []*genai.Part{{Text: prompt.User}}}},
		gc,
	)
	if err != nil {
		var apiErr genai.APIError
		if errors.As(err, &apiErr) {
			return "", newProviderError(ProviderGemini, apiErr.Code, err)
		}
		return "", newProviderError(ProviderGemini, 0, err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", newProviderError(ProviderGemini, 0, fmt.Errorf("%w: no candidates in response", ErrTransientNetwork))
	}

	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part != nil {
			b.WriteString(part.Text)
		}
	}
	return b.String(), nil
}
