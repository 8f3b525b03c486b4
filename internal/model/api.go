package model

// ExtractRequest is the body of POST /api/v1/parameters/extract
type ExtractRequest struct {
	Text             string        `json:"text"`
	Locale           string        `json:"locale"`
	BuildingTypeHint string        `json:"buildingTypeHint"`
	Context          DesignContext `json:"context"`
}

// DesignRequest converts the body into a pipeline request
func (r ExtractRequest) DesignRequest() DesignRequest {
	return NewDesignRequest(r.Text, r.Locale, r.BuildingTypeHint, r.Context)
}

// AnalysisRequest is the body of POST /api/v1/analysis and its stream variant.
// Agents selects agents by id; empty runs all of them.
type AnalysisRequest struct {
	ExtractRequest
	Agents []string `json:"agents"`
}

// ValidateRequest is the body of POST /api/v1/parameters/validate
type ValidateRequest struct {
	Parameters ParameterResult `json:"parameters"`
	Locale     string          `json:"locale"`
}

// OptimizeRequest is the body of POST /api/v1/parameters/optimize
type OptimizeRequest struct {
	Parameters ParameterResult `json:"parameters"`
	Goals      []string        `json:"goals"`
	Locale     string          `json:"locale"`
}

// ChatRequest is the body of POST /api/v1/chat
type ChatRequest struct {
	Message string        `json:"message" binding:"required"`
	Context DesignContext `json:"context"`
	Locale  string        `json:"locale"`
}

// ErrorResponse is returned for every failed request
type ErrorResponse struct {
	Error string `json:"error"`
}
