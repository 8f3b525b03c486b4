package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"archpipe/internal/config"
)

func newCompatForTest(t *testing.T, handler http.HandlerFunc, extraBody string) *CompatProvider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client := NewCompatProvider(config.ProviderConfig{
		APIKey:    "test-key",
		APIBase:   srv.URL + "/",
		Model:     "test-model",
		ExtraBody: extraBody,
	}, zerolog.Nop())
	p, ok := client.(*CompatProvider)
	require.True(t, ok)
	return p.WithHTTPClient(srv.Client())
}

func TestCompatProviderSubmit(t *testing.T) {
	var got ChatCompletionRequest
	p := newCompatForTest(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"1","model":"test-model","choices":[{"index":0,"message":{"role":"assistant","content":"{\"ok\":true}"},"finish_reason":"stop"}]}`))
	}, `{"chat_template_kwargs":{"thinking":false}}`)

	out, err := p.Submit(context.Background(), Prompt{System: "sys", User: "usr"}, GenerationConfig{
		Temperature: 0.2,
		MaxTokens:   128,
		JSONMode:    true,
	})
	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, out)

	assert.Equal(t, "test-model", got.Model)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, "usr", got.Messages[1].Content)
	assert.Equal(t, 128, got.MaxTokens)
	require.NotNil(t, got.ResponseFormat)
	assert.Equal(t, "json_object", got.ResponseFormat.Type)
	assert.Contains(t, got.ExtraBody, "chat_template_kwargs")
	assert.Zero(t, got.TopP)
}

func TestCompatProviderErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		kind   error
	}{
		{"unauthorized", http.StatusUnauthorized, `{"error":"bad key"}`, ErrAuthFailure},
		{"rate limited", http.StatusTooManyRequests, `{"error":"slow down"}`, ErrRateLimited},
		{"server error", http.StatusBadGateway, `upstream`, ErrTransientNetwork},
		{"html page", http.StatusOK, `<html>oops</html>`, ErrTransientNetwork},
		{"no choices", http.StatusOK, `{"choices":[]}`, ErrTransientNetwork},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newCompatForTest(t, func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}, "")

			_, err := p.Submit(context.Background(), Prompt{User: "x"}, GenerationConfig{})
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.kind)

			var perr *ProviderError
			require.ErrorAs(t, err, &perr)
			assert.Equal(t, ProviderCompat, perr.Provider)
		})
	}
}

func TestCompatProviderHonorsContext(t *testing.T) {
	p := newCompatForTest(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}, "")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err := p.Submit(ctx, Prompt{User: "x"}, GenerationConfig{})
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestNewCompatProviderUnavailable(t *testing.T) {
	c := NewCompatProvider(config.ProviderConfig{}, zerolog.Nop())
	assert.False(t, c.Available())
	assert.Equal(t, ProviderCompat, c.Name())

	c = NewCompatProvider(config.ProviderConfig{APIKey: "k"}, zerolog.Nop())
	assert.False(t, c.Available())
	_, err := c.Submit(context.Background(), Prompt{}, GenerationConfig{})
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestIsNVIDIAProvider(t *testing.T) {
	assert.True(t, IsNVIDIAProvider("https://integrate.api.nvidia.com/v1/"))
	assert.False(t, IsNVIDIAProvider("http://localhost:11434/v1"))
}
