package service

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"archpipe/internal/model"
)

func TestDefaultAgentSpecs(t *testing.T) {
	specs := DefaultAgentSpecs()
	require.Len(t, specs, 4)
	var total float64
	for _, s := range specs {
		total += s.Weight
		assert.Equal(t, string(TaskAnalyze), s.Task)
	}
	assert.InDelta(t, 1.0, total, 1e-9)
	require.NoError(t, validateSpecs(specs))
}

func TestLoadAgentSpecs(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "agents.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
agents:
  - id: energy
    schema: materials
    focus: envelope insulation
    weight: 0.5
    timeout: 45s
  - id: review
    title: Plan review
    schema: validation
`), 0o600))

	specs, err := LoadAgentSpecs(path, DefaultSchemaTable())
	require.NoError(t, err)
	require.Len(t, specs, 2)
	assert.Equal(t, "energy", specs[0].Title)
	assert.Equal(t, 45*time.Second, specs[0].Timeout)
	assert.Equal(t, string(TaskAnalyze), specs[1].Task)
	assert.Equal(t, model.SchemaValidation, specs[1].Schema)
}

func TestLoadAgentSpecsErrors(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name    string
		content string
		target  error
	}{
		{"unknown schema", "agents:\n  - id: a\n    schema: acoustics\n", ErrUnknownSchema},
		{"duplicate id", "agents:\n  - id: a\n    schema: cost\n  - id: a\n    schema: cost\n", ErrInvalidAgents},
		{"empty", "agents: []\n", ErrInvalidAgents},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, tt.name+".yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o600))
			_, err := LoadAgentSpecs(path, DefaultSchemaTable())
			assert.True(t, errors.Is(err, tt.target), "got %v", err)
		})
	}

	_, err := LoadAgentSpecs(filepath.Join(dir, "missing.yaml"), DefaultSchemaTable())
	assert.Error(t, err)
}

func TestSelectAgents(t *testing.T) {
	specs := DefaultAgentSpecs()

	all, err := SelectAgents(specs, nil)
	require.NoError(t, err)
	assert.Len(t, all, 4)

	some, err := SelectAgents(specs, []string{"cost", "materials"})
	require.NoError(t, err)
	require.Len(t, some, 2)
	assert.Equal(t, "cost", some[0].ID)

	_, err = SelectAgents(specs, []string{"acoustics"})
	assert.True(t, errors.Is(err, ErrInvalidAgents))
}
