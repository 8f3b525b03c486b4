package service

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"archpipe/internal/model"
)

// Scorer aggregates agent confidences into the composite score
type Scorer struct {
	// ceiling is reported when no agent completed
	ceiling float64
}

// NewScorer creates a scorer with the fallback confidence ceiling
func NewScorer(ceiling float64) *Scorer {
	return &Scorer{ceiling: ceiling}
}

// OverallScore returns the weight-weighted mean confidence of completed agents.
// Agents are visited in id order so the result does not depend on completion order.
func (s *Scorer) OverallScore(agents map[string]model.AgentAnalysisResult, weights map[string]float64) float64 {
	ids := make([]string, 0, len(agents))
	for id, a := range agents {
		if a.Status == model.AgentCompleted {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return s.ceiling
	}
	sort.Strings(ids)

	values := make([]float64, len(ids))
	w := make([]float64, len(ids))
	var total float64
	for i, id := range ids {
		values[i] = clamp(agents[id].Confidence, 0, 1)
		w[i] = math.Max(weights[id], 0)
		total += w[i]
	}
	if total == 0 {
		// equal weights
		w = nil
	}

	score := stat.Mean(values, w)
	if math.IsNaN(score) || math.IsInf(score, 0) {
		return s.ceiling
	}
	return clamp(score, 0, 1)
}

// Rank orders agent ids by confidence descending, completed agents first
func (s *Scorer) Rank(agents map[string]model.AgentAnalysisResult) []string {
	ids := make([]string, 0, len(agents))
	for id := range agents {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		a, b := agents[ids[i]], agents[ids[j]]
		if (a.Status == model.AgentCompleted) != (b.Status == model.AgentCompleted) {
			return a.Status == model.AgentCompleted
		}
		if a.Confidence != b.Confidence {
			return a.Confidence > b.Confidence
		}
		return ids[i] < ids[j]
	})
	return ids
}
