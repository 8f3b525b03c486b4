package model

import "strings"

// Supported locales
const (
	LocaleKorean  = "ko"
	LocaleEnglish = "en"
)

// DesignContext carries structured project data supplied by the calling layer.
// It is treated as opaque pass-through data and embedded into prompts as JSON.
type DesignContext struct {
	Budget          *float64       `json:"budget,omitempty"`
	Currency        string         `json:"currency,omitempty"`
	Location        string         `json:"location,omitempty"`
	SiteArea        *float64       `json:"siteArea,omitempty"`
	PriorParameters map[string]any `json:"priorParameters,omitempty"`
	Project         map[string]any `json:"project,omitempty"`
}

// IsZero reports whether no context field is set
func (c DesignContext) IsZero() bool {
	return c.Budget == nil && c.Currency == "" && c.Location == "" && c.SiteArea == nil &&
		len(c.PriorParameters) == 0 && len(c.Project) == 0
}

// DesignRequest is the immutable input of one pipeline invocation
type DesignRequest struct {
	Text             string        `json:"text"`
	Locale           string        `json:"locale"`
	BuildingTypeHint string        `json:"buildingTypeHint,omitempty"`
	Context          DesignContext `json:"context"`
}

// NewDesignRequest creates a request with a normalized locale
func NewDesignRequest(text, locale, buildingTypeHint string, ctx DesignContext) DesignRequest {
	return DesignRequest{
		Text:             text,
		Locale:           NormalizeLocale(locale),
		BuildingTypeHint: strings.TrimSpace(buildingTypeHint),
		Context:          ctx,
	}
}

// NormalizeLocale maps a locale tag (e.g. "ko-KR", "en_US") to a supported locale,
// defaulting to Korean.
func NormalizeLocale(locale string) string {
	l := strings.ToLower(strings.TrimSpace(locale))
	switch {
	case strings.HasPrefix(l, "en"):
		return LocaleEnglish
	default:
		return LocaleKorean
	}
}
