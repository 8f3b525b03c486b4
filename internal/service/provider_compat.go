package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"archpipe/internal/config"
)

const maxCompatResponseBytes = 4 << 20

// CompatProvider talks to any OpenAI-compatible chat completions endpoint
// (NVIDIA NIM, DeepSeek, vLLM, Ollama) over plain HTTP
type CompatProvider struct {
	config     config.ProviderConfig
	httpClient *http.Client
	extraBody  map[string]any
	topP       float64
}

// NewCompatProvider creates an OpenAI-compatible client with auto-detection of provider
func NewCompatProvider(cfg config.ProviderConfig, logger zerolog.Logger) Client {
	if !cfg.Enabled() {
		return missingKey(ProviderCompat)
	}
	if cfg.APIBase == "" {
		return &unavailableClient{name: ProviderCompat, reason: "COMPAT_API_BASE is not set"}
	}

	p := &CompatProvider{
		config:     cfg,
		httpClient: &http.Client{},
	}
	p.config.APIBase = strings.TrimRight(cfg.APIBase, "/")

	if IsNVIDIAProvider(p.config.APIBase) {
		p.topP = 0.7
		logger.Debug().Str("api_base", p.config.APIBase).Msg("detected NVIDIA API provider")
	}

	if cfg.ExtraBody != "" {
		var extra map[string]any
		if err := json.Unmarshal([]byte(cfg.ExtraBody), &extra); err != nil {
			logger.Warn().Err(err).Msg("failed to parse COMPAT_EXTRA_BODY, ignoring")
		} else {
			p.extraBody = extra
		}
	}
	return p
}

// WithHTTPClient replaces the HTTP client, used by tests
func (p *CompatProvider) WithHTTPClient(c *http.Client) *CompatProvider {
	p.httpClient = c
	return p
}

// Name returns the provider identifier
func (p *CompatProvider) Name() string { return ProviderCompat }

// Available reports true; construction already verified credentials
func (p *CompatProvider) Available() bool { return true }

// ChatCompletionRequest represents a chat completion request
type ChatCompletionRequest struct {
	Model          string          `json:"model"`
	Messages       []ChatMessage   `json:"messages"`
	Temperature    float64         `json:"temperature"`
	TopP           float64         `json:"top_p,omitempty"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	ResponseFormat *ResponseFormat `json:"response_format,omitempty"`
	ExtraBody      map[string]any  `json:"extra_body,omitempty"`
}

// ChatMessage represents a single message in the conversation
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ResponseFormat specifies the format of the response
type ResponseFormat struct {
	Type string `json:"type"` // "json_object" or "text"
}

// ChatCompletionResponse represents the API response
type ChatCompletionResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Index        int         `json:"index"`
		Message      ChatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
}

// Submit performs a chat completion request
func (p *CompatProvider) Submit(ctx context.Context, prompt Prompt, cfg GenerationConfig) (string, error) {
	req := ChatCompletionRequest{
		Model: p.config.Model,
		Messages: []ChatMessage{
			{Role: "system", Content: prompt.System},
			{Role: "user", Content: prompt.User},
		},
		Temperature: cfg.Temperature,
		TopP:        p.topP,
		MaxTokens:   cfg.MaxTokens,
		ExtraBody:   p.extraBody,
	}
	if cfg.JSONMode {
		req.ResponseFormat = &ResponseFormat{Type: "json_object"}
	}

	reqBody, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/chat/completions", p.config.APIBase)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBody))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.config.APIKey)

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return "", newProviderError(ProviderCompat, 0, fmt.Errorf("failed to send request: %w", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxCompatResponseBytes))
	if err != nil {
		return "", newProviderError(ProviderCompat, 0, fmt.Errorf("failed to read response: %w", err))
	}

	if resp.StatusCode != http.StatusOK {
		return "", newProviderError(ProviderCompat, resp.StatusCode,
			fmt.Errorf("API request failed: %s", truncateBody(body)))
	}

	var result ChatCompletionResponse
	if err := json.Unmarshal(body, &result); err != nil {
		// A 200 with a non-JSON envelope usually means a proxy error page
		return "", newProviderError(ProviderCompat, 0, fmt.Errorf("%w: failed to unmarshal response: %v", ErrTransientNetwork, err))
	}
	if len(result.Choices) == 0 {
		return "", newProviderError(ProviderCompat, 0, fmt.Errorf("%w: no choices in response", ErrTransientNetwork))
	}
	return result.Choices[0].Message.Content, nil
}

// IsNVIDIAProvider checks if the base URL is NVIDIA API
func IsNVIDIAProvider(baseURL string) bool {
	return strings.HasPrefix(strings.TrimRight(baseURL, "/"), "https://integrate.api.nvidia.com")
}

func truncateBody(body []byte) string {
	const limit = 256
	if len(body) <= limit {
		return string(body)
	}
	return string(body[:limit]) + "..."
}
