package service

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"archpipe/internal/model"
)

// DefaultAgentSpecs returns the built-in specialist agents
func DefaultAgentSpecs() []model.AgentSpec {
	return []model.AgentSpec{
		{
			ID:     "architectural",
			Title:  "Architectural design",
			Task:   string(TaskAnalyze),
			Schema: model.SchemaParameters,
			Focus:  "space program, room layout, orientation and daylight, building type and style",
			Weight: 0.3,
		},
		{
			ID:     "materials",
			Title:  "Materials",
			Task:   string(TaskAnalyze),
			Schema: model.SchemaMaterials,
			Focus:  "primary structure and finish materials, sustainability and cost per m2 of the material choices",
			Weight: 0.2,
		},
		{
			ID:     "structural",
			Title:  "Structural engineering",
			Task:   string(TaskAnalyze),
			Schema: model.SchemaStructural,
			Focus:  "structural system, foundation, spans, seismic design and structural risks",
			Weight: 0.25,
		},
		{
			ID:     "cost",
			Title:  "Cost estimation",
			Task:   string(TaskAnalyze),
			Schema: model.SchemaCost,
			Focus:  "construction cost estimate, cost breakdown by trade, schedule and budget risks",
			Weight: 0.25,
		},
	}
}

type agentFile struct {
	Agents []model.AgentSpec `yaml:"agents"`
}

// LoadAgentSpecs reads agent specs from a YAML file. An empty path returns the
// built-in agents.
func LoadAgentSpecs(path string, table *SchemaTable) ([]model.AgentSpec, error) {
	if path == "" {
		return DefaultAgentSpecs(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read agent specs %s: %w", path, err)
	}
	var f agentFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse agent specs %s: %w", path, err)
	}
	if len(f.Agents) == 0 {
		return nil, fmt.Errorf("%w: %s defines no agents", ErrInvalidAgents, path)
	}
	for i := range f.Agents {
		if err := normalizeSpec(&f.Agents[i], table); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	}
	if err := validateSpecs(f.Agents); err != nil {
		return nil, err
	}
	return f.Agents, nil
}

// SelectAgents returns the specs whose ids are listed, in the listed order.
// No ids selects all specs.
func SelectAgents(specs []model.AgentSpec, ids []string) ([]model.AgentSpec, error) {
	if len(ids) == 0 {
		return specs, nil
	}
	byID := make(map[string]model.AgentSpec, len(specs))
	for _, s := range specs {
		byID[s.ID] = s
	}
	out := make([]model.AgentSpec, 0, len(ids))
	for _, id := range ids {
		s, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("%w: unknown agent %q", ErrInvalidAgents, id)
		}
		out = append(out, s)
	}
	return out, validateSpecs(out)
}

func normalizeSpec(s *model.AgentSpec, table *SchemaTable) error {
	if s.Task == "" {
		s.Task = string(TaskAnalyze)
	}
	if s.Title == "" {
		s.Title = s.ID
	}
	if s.Weight < 0 {
		return fmt.Errorf("%w: agent %q has negative weight", ErrInvalidAgents, s.ID)
	}
	if s.Schema == model.SchemaParameters {
		return nil
	}
	if _, ok := table.Schemas[s.Schema]; !ok {
		return fmt.Errorf("%w: agent %q uses schema %q", ErrUnknownSchema, s.ID, s.Schema)
	}
	return nil
}
