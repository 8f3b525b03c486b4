package handler

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"archpipe/internal/config"
	"archpipe/internal/model"
	"archpipe/internal/service"
)

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	for _, name := range []string{"OPENAI_API_KEY", "ANTHROPIC_API_KEY", "GEMINI_API_KEY", "COMPAT_API_KEY"} {
		t.Setenv(name, "")
	}

	cfg, err := config.LoadFrom(viper.New())
	require.NoError(t, err)
	pipeline, closer, err := service.BuildPipeline(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = closer.Close() })

	return NewRouter(pipeline, cfg.Server, BuildInfo{Version: "test"}, zerolog.Nop())
}

func doJSON(t *testing.T, r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestExtractEndpoint(t *testing.T) {
	r := newTestRouter(t)

	w := doJSON(t, r, http.MethodPost, "/api/v1/parameters/extract", model.ExtractRequest{
		Text:   "30평 아파트, 침실 2개, 남향 거실",
		Locale: "ko",
	})
	require.Equal(t, http.StatusOK, w.Code)

	var ext service.Extraction
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &ext))
	assert.Equal(t, model.SourceFallback, ext.Source)
	assert.InDelta(t, 30, ext.Result.Parameters.TotalArea.Value, 1e-9)
	assert.Len(t, ext.CacheHash, 64)

	// the cached entry is reachable by hash
	w = doJSON(t, r, http.MethodGet, "/api/v1/cache/"+ext.CacheHash, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var entry model.CacheEntry
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &entry))
	assert.Equal(t, ext.CacheHash, entry.InputHash)

	w = doJSON(t, r, http.MethodGet, "/api/v1/cache/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"stores":1`)
}

func TestBadRequests(t *testing.T) {
	r := newTestRouter(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
	}{
		{"malformed extract", http.MethodPost, "/api/v1/parameters/extract", `{"text":`, http.StatusBadRequest},
		{"chat without message", http.MethodPost, "/api/v1/chat", `{"locale":"ko"}`, http.StatusBadRequest},
		{"unknown agent", http.MethodPost, "/api/v1/analysis", `{"text":"house","agents":["plumbing"]}`, http.StatusBadRequest},
		{"short cache hash", http.MethodGet, "/api/v1/cache/abc", "", http.StatusBadRequest},
		{"unknown cache hash", http.MethodGet, "/api/v1/cache/" + strings.Repeat("0", 64), "", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
		})
	}
}

func TestAnalysisEndpoint(t *testing.T) {
	r := newTestRouter(t)

	w := doJSON(t, r, http.MethodPost, "/api/v1/analysis", model.AnalysisRequest{
		ExtractRequest: model.ExtractRequest{Text: "two storey house, 150 m2, 4 bedrooms", Locale: "en"},
		Agents:         []string{"architectural", "cost"},
	})
	require.Equal(t, http.StatusOK, w.Code)

	var composite model.CompositeAnalysisResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &composite))
	assert.Len(t, composite.Agents, 2)
	assert.Contains(t, composite.Agents, "cost")
	assert.LessOrEqual(t, composite.OverallScore, 0.9)
}

func TestAnalysisStreamEndpoint(t *testing.T) {
	r := newTestRouter(t)

	w := doJSON(t, r, http.MethodPost, "/api/v1/analysis/stream", model.AnalysisRequest{
		ExtractRequest: model.ExtractRequest{Text: "30평 아파트", Locale: "ko"},
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/event-stream")

	var events []string
	scanner := bufio.NewScanner(w.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if name, ok := strings.CutPrefix(scanner.Text(), "event: "); ok {
			events = append(events, name)
		}
	}
	require.NotEmpty(t, events)
	assert.Equal(t, "start", events[0])
	assert.Equal(t, []string{"result", "done"}, events[len(events)-2:])

	agents := 0
	for _, e := range events {
		if e == "agent" {
			agents++
		}
	}
	assert.Equal(t, 4, agents)
}

func TestValidateOptimizeChatEndpoints(t *testing.T) {
	r := newTestRouter(t)
	params := model.ParameterResult{BuildingType: model.BuildingHouse, TotalArea: model.Area{Value: 120, Unit: "m2"}}

	w := doJSON(t, r, http.MethodPost, "/api/v1/parameters/validate", model.ValidateRequest{Parameters: params, Locale: "en"})
	require.Equal(t, http.StatusOK, w.Code)
	var report model.ValidationReport
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))
	assert.Equal(t, model.SourceFallback, report.Source)
	assert.NotNil(t, report.Warnings)

	w = doJSON(t, r, http.MethodPost, "/api/v1/parameters/optimize", model.OptimizeRequest{Parameters: params, Goals: []string{"energy"}})
	require.Equal(t, http.StatusOK, w.Code)
	var optimized model.ParameterResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &optimized))
	assert.Equal(t, model.BuildingHouse, optimized.BuildingType)

	w = doJSON(t, r, http.MethodPost, "/api/v1/chat", model.ChatRequest{Message: "Can I add a basement?", Locale: "en"})
	require.Equal(t, http.StatusOK, w.Code)
	var reply model.ChatReply
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &reply))
	assert.NotEmpty(t, reply.Answer)
}

func TestSystemEndpoints(t *testing.T) {
	r := newTestRouter(t)

	w := doJSON(t, r, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"healthy"`)

	w = doJSON(t, r, http.MethodGet, "/version", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"version":"test","build_time":"","git_commit":""}`, w.Body.String())

	w = doJSON(t, r, http.MethodGet, "/api/v1/providers", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Providers []service.ProviderStatus `json:"providers"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Providers, 4)
	assert.Equal(t, "openai", body.Providers[0].Name)
	assert.False(t, body.Providers[0].Available)
}
