package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"archpipe/internal/model"
	"archpipe/internal/service"
)

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	for _, name := range []string{"OPENAI_API_KEY", "ANTHROPIC_API_KEY", "GEMINI_API_KEY", "COMPAT_API_KEY"} {
		t.Setenv(name, "")
	}
	t.Setenv("CACHE_BACKEND", "none")

	cmd := newRootCmd("test", service.BuildPipeline)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestExtractCommand(t *testing.T) {
	out, err := run(t, "", "extract", "30평 아파트, 침실 2개, 남향 거실")
	require.NoError(t, err)

	var ext service.Extraction
	require.NoError(t, json.Unmarshal([]byte(out), &ext))
	assert.Equal(t, model.SourceFallback, ext.Source)
	assert.InDelta(t, 30, ext.Result.Parameters.TotalArea.Value, 1e-9)
}

func TestExtractCommandReadsStdin(t *testing.T) {
	out, err := run(t, "office 500 m2, 5 floors", "extract", "--locale", "en", "-o", "text")
	require.NoError(t, err)
	assert.Contains(t, out, "Source")
	assert.Contains(t, out, "500 m2")
}

func TestAnalyzeCommand(t *testing.T) {
	out, err := run(t, "", "analyze", "--agents", "cost,structural", "-o", "text", "two storey house, 150 m2")
	require.NoError(t, err)
	assert.Contains(t, out, "AGENT")
	assert.Contains(t, out, "cost")
	assert.Contains(t, out, "structural")
	assert.NotContains(t, out, "materials")
	assert.Contains(t, out, "Overall score")

	_, err = run(t, "", "analyze", "--agents", "plumbing", "house")
	assert.ErrorIs(t, err, service.ErrInvalidAgents)
}

func TestHashCommand(t *testing.T) {
	a, err := run(t, "", "hash", "30평  아파트")
	require.NoError(t, err)
	b, err := run(t, "", "hash", "30평 아파트")
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Len(t, strings.TrimSpace(a), 64)

	c, err := run(t, "", "hash", "--namespace", "analysis", "30평 아파트")
	require.NoError(t, err)
	assert.NotEqual(t, a, c)
}

func TestUnsupportedOutput(t *testing.T) {
	_, err := run(t, "", "hash", "-o", "yaml", "x")
	assert.Error(t, err)
}
