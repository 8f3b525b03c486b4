package model

// ValidationReport is the outcome of reviewing a ParameterResult
type ValidationReport struct {
	Valid       bool     `json:"valid"`
	Score       float64  `json:"score"`
	Issues      []string `json:"issues"`
	Warnings    []string `json:"warnings"`
	Suggestions []string `json:"suggestions"`
	Summary     string   `json:"summary"`
	Confidence  float64  `json:"confidence"`
	Source      string   `json:"source"`
}

// ChatReply is a free-form answer about a project
type ChatReply struct {
	Answer      string   `json:"answer"`
	Suggestions []string `json:"suggestions"`
	Confidence  float64  `json:"confidence"`
	Source      string   `json:"source"`
}
