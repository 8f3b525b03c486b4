package model

import (
	"fmt"
	"time"
)

// Schema kinds understood by the normalizer
const (
	SchemaParameters = "parameters"
	SchemaMaterials  = "materials"
	SchemaStructural = "structural"
	SchemaCost       = "cost"
	SchemaValidation = "validation"
	SchemaChat       = "chat"
)

// AgentStatus is the terminal state of one specialist agent
type AgentStatus string

const (
	AgentCompleted AgentStatus = "completed"
	AgentFailed    AgentStatus = "failed"
)

// Result sources
const (
	SourceFallback = "fallback"
	SourceCache    = "cache"
	SourceNone     = "none"
)

// CanonicalResult is the schema-complete output of the normalizer for any schema kind.
// Parameters is always populated; Findings holds the fixed key set of the schema.
type CanonicalResult struct {
	Schema          string          `json:"schema"`
	Parameters      ParameterResult `json:"parameters"`
	Title           string          `json:"title"`
	Summary         string          `json:"summary"`
	Recommendations []string        `json:"recommendations"`
	Findings        map[string]any  `json:"findings"`
	Confidence      float64         `json:"confidence"`
}

// AgentSpec pairs a prompt template and schema kind with an agent identity
type AgentSpec struct {
	ID      string        `json:"id" yaml:"id"`
	Title   string        `json:"title" yaml:"title"`
	Task    string        `json:"task" yaml:"task"`
	Schema  string        `json:"schema" yaml:"schema"`
	Focus   string        `json:"focus,omitempty" yaml:"focus"`
	Weight  float64       `json:"weight" yaml:"weight"`
	Timeout time.Duration `json:"timeout,omitempty" yaml:"timeout"`
}

// AgentAnalysisResult is the outcome of one specialist agent
type AgentAnalysisResult struct {
	AgentID          string              `json:"agentId"`
	Title            string              `json:"title"`
	Status           AgentStatus         `json:"status"`
	Confidence       float64             `json:"confidence"`
	Recommendations  []string            `json:"recommendations"`
	Result           CanonicalResult     `json:"result"`
	Source           string              `json:"source"`
	ProcessingTimeMs int64               `json:"processingTimeMs"`
	Error            string              `json:"error,omitempty"`
	Attempts         []GenerationAttempt `json:"attempts,omitempty"`
}

// CompositeAnalysisResult aggregates all agent results of one dispatch
type CompositeAnalysisResult struct {
	Agents           map[string]AgentAnalysisResult `json:"agents"`
	OverallScore     float64                        `json:"overallScore"`
	Timestamp        time.Time                      `json:"timestamp"`
	ProcessingTimeMs int64                          `json:"processingTimeMs"`
}

// Validate checks that every agent entry is schema-complete with bounded confidence values
func (c *CompositeAnalysisResult) Validate() error {
	if c == nil {
		return fmt.Errorf("composite result is nil")
	}
	if c.OverallScore < 0 || c.OverallScore > 1 || c.OverallScore != c.OverallScore {
		return fmt.Errorf("overallScore %v out of range", c.OverallScore)
	}
	for id, a := range c.Agents {
		if !inUnitRange(a.Confidence) {
			return fmt.Errorf("agent %s: confidence %v out of range", id, a.Confidence)
		}
		if a.Recommendations == nil {
			return fmt.Errorf("agent %s: recommendations is nil", id)
		}
		if err := a.Result.Parameters.Validate(); err != nil {
			return fmt.Errorf("agent %s: %w", id, err)
		}
	}
	return nil
}
